package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/config"
	"gitlab.com/timkado/api/post-loader-service/internal/application"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

// CacheValidationTrigger runs one cache sweep. Satisfied by *application.CacheMaintenance.
type CacheValidationTrigger interface {
	Validate(ctx context.Context, trigger string) error
}

// ValidationConsumer listens on nats.validation_subject and runs a cache sweep for
// every message. Messages with a reply subject get "ok" or "error: <reason>" back.
type ValidationConsumer struct {
	nc          *nats.Conn
	sub         *nats.Subscription
	maintenance CacheValidationTrigger
	logger      domain.Logger
	timeout     time.Duration
}

// NewValidationConsumer connects and subscribes. An empty nats.url returns a nil
// consumer and a no-op cleanup.
func NewValidationConsumer(ctx context.Context, cfgProvider config.Provider, maintenance CacheValidationTrigger, appLogger domain.Logger) (*ValidationConsumer, func(), error) {
	appFullCfg := cfgProvider.Get()
	natsCfg := appFullCfg.NATS
	if natsCfg.URL == "" {
		appLogger.Info(ctx, "NATS URL not configured; cache validation consumer disabled")
		return nil, func() {}, nil
	}

	appLogger.Info(ctx, "Attempting to connect to NATS server", "url", natsCfg.URL)

	nc, err := nats.Connect(natsCfg.URL,
		nats.Name(fmt.Sprintf("%s-validation-%s", appFullCfg.App.ServiceName, appFullCfg.Server.PodID)),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			subject := ""
			if s != nil {
				subject = s.Subject
			}
			appLogger.Error(ctx, "NATS error", "subscription", subject, "error", err.Error())
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS connection closed")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			appLogger.Warn(ctx, "NATS disconnected", "error", err)
		}),
	)
	if err != nil {
		appLogger.Error(ctx, "Failed to connect to NATS", "url", natsCfg.URL, "error", err.Error())
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsCfg.URL, err)
	}

	c := &ValidationConsumer{
		nc:          nc,
		maintenance: maintenance,
		logger:      appLogger,
		timeout:     appFullCfg.RemoteTimeout() * 3,
	}

	sub, err := nc.Subscribe(natsCfg.ValidationSubject, c.onMessage)
	if err != nil {
		appLogger.Error(ctx, "Failed to subscribe to validation subject", "subject", natsCfg.ValidationSubject, "error", err.Error())
		nc.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", natsCfg.ValidationSubject, err)
	}
	c.sub = sub
	appLogger.Info(ctx, "Subscribed to cache validation subject", "subject", natsCfg.ValidationSubject)

	cleanup := func() {
		appLogger.Info(context.Background(), "Closing NATS validation consumer...")
		c.Close()
	}
	return c, cleanup, nil
}

func (c *ValidationConsumer) onMessage(msg *nats.Msg) {
	reply := c.handle(msg.Subject)
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(reply); err != nil {
		c.logger.Warn(context.Background(), "Failed to reply to validation request", "subject", msg.Subject, "error", err.Error())
	}
}

// handle runs the sweep and returns the reply payload.
func (c *ValidationConsumer) handle(subject string) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.maintenance.Validate(ctx, application.TriggerNATS); err != nil {
		c.logger.Error(ctx, "NATS triggered cache validation failed", "subject", subject, "error", err.Error())
		return []byte("error: " + err.Error())
	}
	c.logger.Info(ctx, "NATS triggered cache validation completed", "subject", subject)
	return []byte("ok")
}

// Connected reports whether the underlying connection is up. Used by /ready.
func (c *ValidationConsumer) Connected() bool {
	return c != nil && c.nc != nil && c.nc.IsConnected()
}

// Close drains the subscription and the connection.
func (c *ValidationConsumer) Close() {
	if c == nil || c.nc == nil || c.nc.IsClosed() {
		return
	}
	c.logger.Info(context.Background(), "Draining NATS connection...")
	if err := c.nc.Drain(); err != nil {
		c.logger.Error(context.Background(), "Error draining NATS connection", "error", err.Error())
	}
}

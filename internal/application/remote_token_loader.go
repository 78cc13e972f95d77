package application

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
	"gitlab.com/timkado/api/post-loader-service/pkg/contextkeys"
)

// RemoteSessionTokenLoader obtains a session token from the login endpoint.
// When username is set the request carries HTTP basic auth.
type RemoteSessionTokenLoader struct {
	url      string
	client   domain.HTTPClient
	username string
	password string
	logger   domain.Logger
}

func NewRemoteSessionTokenLoader(url string, client domain.HTTPClient, username, password string, logger domain.Logger) *RemoteSessionTokenLoader {
	if client == nil || logger == nil {
		panic("application: RemoteSessionTokenLoader requires a client and a logger")
	}
	return &RemoteSessionTokenLoader{
		url:      url,
		client:   client,
		username: username,
		password: password,
		logger:   logger,
	}
}

// LoadToken is the callback variant of Load.
func (l *RemoteSessionTokenLoader) LoadToken(ctx context.Context, completion func(domain.Result[string])) domain.Task {
	ctx = context.WithValue(ctx, contextkeys.ResourceKey, metrics.ResourceSession)
	return runTask(ctx, l.logger, "RemoteSessionTokenLoaderLoad", completion, func(ctx context.Context) domain.Result[string] {
		token, err := l.Load(ctx)
		return domain.Result[string]{Value: token, Err: err}
	})
}

// Load blocks until the login request completes.
func (l *RemoteSessionTokenLoader) Load(ctx context.Context) (string, error) {
	started := time.Now()
	token, err := l.load(ctx)
	observeRemote(metrics.ResourceSession, err, started)
	if err != nil {
		l.logger.Warn(ctx, "Session token request failed", "error", err.Error())
		return "", err
	}
	return token, nil
}

func (l *RemoteSessionTokenLoader) load(ctx context.Context) (string, error) {
	req, err := newGetRequest(ctx, l.url, nil)
	if err != nil {
		// The login call only knows connectivity and data failures.
		return "", fmt.Errorf("%w: login request: %v", domain.ErrConnectivity, err.Error())
	}
	if l.username != "" {
		req.SetBasicAuth(l.username, l.password)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: login: %v", domain.ErrConnectivity, err)
	}
	return mapSessionToken(resp)
}

func mapSessionToken(resp *domain.HTTPResponse) (string, error) {
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: login status %d", domain.ErrInvalidData, resp.StatusCode)
	}
	var token remoteSessionToken
	if err := json.Unmarshal(resp.Body, &token); err != nil {
		return "", fmt.Errorf("%w: login body: %v", domain.ErrInvalidData, err)
	}
	if token.APIKey == nil || *token.APIKey == "" {
		return "", fmt.Errorf("%w: login response has no api_key", domain.ErrInvalidData)
	}
	return *token.APIKey, nil
}

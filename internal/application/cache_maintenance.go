package application

import (
	"context"
	"sync"
	"time"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
	"gitlab.com/timkado/api/post-loader-service/pkg/safego"
)

// Validation triggers, used as metric labels.
const (
	TriggerSchedule = "schedule"
	TriggerAdmin    = "admin"
	TriggerNATS     = "nats"
	TriggerShutdown = "shutdown"
)

// CacheMaintenance runs cache validation sweeps on a schedule and on demand.
// Sweeps never overlap.
type CacheMaintenance struct {
	validator domain.CacheValidator
	interval  time.Duration
	logger    domain.Logger

	// sweepSlot is held from the start of a sweep until the validator completes,
	// even when the caller that started it has given up waiting.
	sweepSlot chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewCacheMaintenance(validator domain.CacheValidator, interval time.Duration, logger domain.Logger) *CacheMaintenance {
	if validator == nil || logger == nil {
		panic("application: CacheMaintenance requires a validator and a logger")
	}
	return &CacheMaintenance{
		validator: validator,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
		sweepSlot: make(chan struct{}, 1),
	}
}

// Validate runs one sweep and blocks until it finishes or ctx ends. A sweep
// still running for an earlier caller makes Validate wait for it first.
func (m *CacheMaintenance) Validate(ctx context.Context, trigger string) error {
	var err error
	select {
	case m.sweepSlot <- struct{}{}:
		err = m.sweep(ctx)
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		m.logger.Error(ctx, "Cache validation failed", "trigger", trigger, "error", err.Error())
		metrics.IncrementValidationRun(trigger, metrics.OutcomeError)
		return err
	}
	m.logger.Debug(ctx, "Cache validation finished", "trigger", trigger)
	metrics.IncrementValidationRun(trigger, metrics.OutcomeSuccess)
	return nil
}

// sweep must be called holding sweepSlot; the slot is released by the
// validator's completion, not by the return of sweep.
func (m *CacheMaintenance) sweep(ctx context.Context) error {
	done := make(chan error, 1)
	m.validator.ValidateCache(ctx, func(err error) {
		<-m.sweepSlot
		done <- err
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the periodic sweep. A non-positive interval disables it.
func (m *CacheMaintenance) Start(appCtx context.Context) {
	if m.interval <= 0 {
		m.logger.Warn(appCtx, "Cache validation interval not configured; periodic validation disabled")
		return
	}
	m.logger.Info(appCtx, "Starting cache validation loop", "interval", m.interval.String())

	m.wg.Add(1)
	safego.Execute(appCtx, m.logger, "CacheValidationLoop", func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = m.Validate(appCtx, TriggerSchedule)
			case <-m.stopCh:
				m.logger.Info(context.Background(), "Cache validation loop stopped")
				return
			case <-appCtx.Done():
				m.logger.Info(context.Background(), "Cache validation loop stopping, application context done")
				return
			}
		}
	})
}

// Stop ends the periodic sweep and waits for an in-progress tick to return.
func (m *CacheMaintenance) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

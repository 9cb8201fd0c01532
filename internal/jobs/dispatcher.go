package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
	"github.com/tipjar/slack-tip-server/internal/metrics"
)

// Task is work scheduled after an inbound request has been acknowledged.
type Task func(ctx context.Context) error

// Dispatcher runs tasks on detached goroutines with a per-task timeout.
// Panics are recovered and logged at fatal level without exiting.
type Dispatcher struct {
	timeout time.Duration
	slots   chan struct{}
	metrics *metrics.Metrics

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewDispatcher(timeout time.Duration, maxConcurrent int, m *metrics.Metrics) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Dispatcher{
		timeout: timeout,
		slots:   make(chan struct{}, maxConcurrent),
		metrics: m,
	}
}

func (d *Dispatcher) Start() {
	log.Info().
		Dur("timeout", d.timeout).
		Int("maxConcurrent", cap(d.slots)).
		Msg("dispatcher started")
}

// Submit schedules task. It returns false once Stop has been called.
func (d *Dispatcher) Submit(name string, task Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		log.Warn().Str("task", name).Msg("dispatcher stopped, dropping task")
		return false
	}

	d.wg.Add(1)
	go d.run(name, task)
	return true
}

// Stop rejects new tasks and waits for in-flight ones until ctx is done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("dispatcher stopped")
		return nil
	case <-ctx.Done():
		log.Warn().Msg("dispatcher stop timed out with tasks in flight")
		return ctx.Err()
	}
}

func (d *Dispatcher) run(name string, task Task) {
	defer d.wg.Done()

	d.slots <- struct{}{}
	defer func() { <-d.slots }()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err := apperrors.UncaughtFatal(name, rec)
			d.metrics.Error(string(err.Code))
			log.WithLevel(zerolog.FatalLevel).
				Str("task", name).
				Str("code", string(err.Code)).
				Interface("panic", rec).
				Msg(err.Message)
		}
	}()

	start := time.Now()
	if err := task(ctx); err != nil {
		code := apperrors.GetCode(err)
		d.metrics.Error(string(code))
		log.Error().
			Err(err).
			Str("task", name).
			Str("code", string(code)).
			Dur("elapsed", time.Since(start)).
			Msg("dispatched task failed")
		return
	}
	log.Debug().Str("task", name).Dur("elapsed", time.Since(start)).Msg("dispatched task finished")
}

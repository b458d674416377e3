// Package scheduler implements the fixed-interval collection loop.
// Each cycle runs every resolver of every server sequentially, stores fresh
// results in the result store and isolates resolver failures so one broken
// probe never stops the others. Cycles never overlap: the interval is the
// pause after a cycle finishes, not a fixed tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/data-collector/internal/models"
	"github.com/Guliveer/vitalis/data-collector/internal/resolver"
)

// Outcome label values of the resolver run counter.
const (
	outcomeResult  = "result"
	outcomeSkipped = "skipped"
	outcomeError   = "error"
)

// ResultStore is the part of the result cache the loop needs.
type ResultStore interface {
	Get(serverID, resolverID string) *models.Result
	Update(serverID, resolverID string, result *models.Result)
}

// Scheduler drives resolver execution at a fixed interval.
type Scheduler struct {
	servers  []resolver.Server
	results  ResultStore
	interval time.Duration
	logger   *zap.Logger

	runs          *prometheus.CounterVec
	cycleDuration prometheus.Gauge
}

// New creates a Scheduler for servers that pauses interval between cycles.
func New(servers []resolver.Server, results ResultStore, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		servers:  servers,
		results:  results,
		interval: interval,
		logger:   logger,
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "data_collector",
				Name:      "resolver_runs_total",
				Help:      "Resolver runs by outcome.",
			},
			[]string{"resolver", "outcome"},
		),
		cycleDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "data_collector",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of the last complete collection cycle.",
		}),
	}
}

// Register adds the scheduler's own metrics to reg.
func (s *Scheduler) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{s.runs, s.cycleDuration} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("registering scheduler metrics: %w", err)
		}
	}
	return nil
}

// Start runs collection cycles until ctx is cancelled. The first cycle starts
// immediately. It returns nil on cancellation and an error only if the loop
// itself failed; a failure there is logged before returning.
func (s *Scheduler) Start(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collection loop panicked: %v", r)
			s.logger.Error("Collection loop stopped",
				zap.Error(err),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	for {
		s.RunCycle(ctx)

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle processes every server and resolver once, in configured order.
// It stops early only when ctx is cancelled.
func (s *Scheduler) RunCycle(ctx context.Context) {
	start := time.Now()

	for _, server := range s.servers {
		s.logger.Debug("Resolving data for server", zap.String("server", server.Hostname))
		for _, res := range server.Resolvers {
			if ctx.Err() != nil {
				return
			}
			s.runResolver(ctx, server, res)
		}
	}

	s.cycleDuration.Set(time.Since(start).Seconds())
}

// runResolver runs one resolver and applies its outcome to the store.
func (s *Scheduler) runResolver(ctx context.Context, server resolver.Server, res resolver.Resolver) {
	id := res.ID()
	log := s.logger.With(
		zap.String("server", server.Hostname),
		zap.String("resolver", id))

	previous := s.results.Get(server.Hostname, id)
	outcome, err := invoke(ctx, res, server, previous)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		var pe *panicError
		if errors.As(err, &pe) {
			fields = append(fields, zap.ByteString("stack", pe.stack))
		}
		log.Error("Resolver failed", fields...)
		s.runs.WithLabelValues(id, outcomeError).Inc()
		return
	}

	switch o := outcome.(type) {
	case *models.Result:
		if o == nil {
			break
		}
		s.results.Update(server.Hostname, id, o)
		s.runs.WithLabelValues(id, outcomeResult).Inc()
		log.Debug("Resolver produced result", zap.Int("metrics", o.Len()))
		return
	case models.SkippedRun:
		s.runs.WithLabelValues(id, outcomeSkipped).Inc()
		log.Debug("Skipped resolver run", zap.String("reason", o.Reason))
		return
	}

	log.Error("Resolver failed", zap.Error(fmt.Errorf("resolver returned %T, want a result or a skipped run", outcome)))
	s.runs.WithLabelValues(id, outcomeError).Inc()
}

// panicError is a resolver panic converted into an error.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("resolver panicked: %v", e.value)
}

// invoke calls res.Run and turns a panic into an error.
func invoke(ctx context.Context, res resolver.Resolver, server resolver.Server, previous *models.Result) (outcome models.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return res.Run(ctx, server, previous)
}

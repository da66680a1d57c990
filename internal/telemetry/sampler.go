package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of store state.
type Stats struct {
	Users int
	DB    sql.DBStats
}

// StatsFunc is called on every tick to gather current state.
type StatsFunc func(ctx context.Context) (Stats, error)

// Sampler periodically copies store state into gauges.
type Sampler struct {
	metrics  *Metrics
	statsFn  StatsFunc
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSampler returns a sampler, or nil when metrics are disabled.
func NewSampler(m *Metrics, statsFn StatsFunc, interval time.Duration, logger *slog.Logger) *Sampler {
	if m == nil || statsFn == nil {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{metrics: m, statsFn: statsFn, interval: interval, logger: logger}
}

// Start samples immediately and then on every interval. Non-blocking.
func (s *Sampler) Start() {
	if s == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.sample(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sample(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the background loop.
func (s *Sampler) Shutdown() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sampler) sample(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	st, err := s.statsFn(ctx)
	if err != nil {
		s.logger.Debug("metrics sample failed", "error", err)
		return
	}
	s.metrics.UsersTotal.Set(float64(st.Users))
	s.metrics.DBConnectionsOpen.Set(float64(st.DB.OpenConnections))
	s.metrics.DBConnectionsIdle.Set(float64(st.DB.Idle))
	s.metrics.DBConnectionsUsed.Set(float64(st.DB.InUse))
}

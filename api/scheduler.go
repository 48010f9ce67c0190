/*
scheduler.go - Automated schedule regeneration

PURPOSE:
  Keeps every active protocol's PENDING horizon rolling forward. As days
  pass, the 365-day window drifts; regenerating daily keeps the stored
  future schedule aligned with the protocol definition without user
  action.

DESIGN:
  - Background goroutine with a configurable check interval
  - Each pass regenerates every active protocol
  - Regeneration is idempotent (natural-key upserts), so overlapping or
    repeated runs converge instead of duplicating rows
  - Leftover counts are logged for operator visibility

USAGE:
  sched := NewRegenerationScheduler(store, handler.Service, logger)
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - dosing/service.go: Regenerate
  - handlers.go: the manual /regenerate endpoint
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/peptra/dose-engine/dosing"
)

// RegenerationScheduler periodically regenerates active protocols.
type RegenerationScheduler struct {
	Store         dosing.ProtocolStore
	Service       *dosing.Service
	CheckInterval time.Duration
	Enabled       bool

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRegenerationScheduler creates a scheduler with a 24h interval.
func NewRegenerationScheduler(store dosing.ProtocolStore, service *dosing.Service, log zerolog.Logger) *RegenerationScheduler {
	return &RegenerationScheduler{
		Store:         store,
		Service:       service,
		CheckInterval: 24 * time.Hour,
		Enabled:       true,
		log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *RegenerationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info().Msg("regeneration scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)
	go rs.run()

	rs.log.Info().Dur("interval", rs.CheckInterval).Msg("regeneration scheduler started")
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (rs *RegenerationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.log.Info().Msg("regeneration scheduler stopped")
	}
}

func (rs *RegenerationScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.regenerateAll()

	for {
		select {
		case <-rs.ticker.C:
			rs.regenerateAll()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RegenerationScheduler) regenerateAll() {
	ctx := context.Background()

	protocols, err := rs.Store.ListActiveProtocols(ctx)
	if err != nil {
		rs.log.Error().Err(err).Msg("failed to list active protocols")
		return
	}

	processed := 0
	for _, p := range protocols {
		report, err := rs.Service.Regenerate(ctx, p.ID)
		if err != nil {
			rs.log.Error().Err(err).Str("protocol", p.ID).Msg("scheduled regeneration failed")
			continue
		}
		if report.Leftover > 0 {
			rs.log.Warn().Str("protocol", p.ID).Int("leftover", report.Leftover).
				Msg("stale pending doses could not be deleted")
		}
		processed++
	}

	if processed > 0 {
		rs.log.Info().Int("protocols", processed).Msg("scheduled regeneration completed")
	}
}

// RunNow triggers an immediate pass (for testing/admin).
func (rs *RegenerationScheduler) RunNow() {
	rs.regenerateAll()
}

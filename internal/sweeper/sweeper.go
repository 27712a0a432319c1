// Package sweeper runs the periodic housekeeping pass: starting cycles for
// auto-rotating homes and expiring challenges whose window has closed.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/rotation"
	"github.com/dukerupert/chorewheel/internal/telemetry"
)

type HomeLister interface {
	ListAutoRotating() ([]model.Home, error)
}

type CycleStarter interface {
	StartCycleIfNeeded(homeID int64) (*rotation.Result, bool, error)
}

type ChallengeExpirer interface {
	ExpireChallenges() (int, error)
}

// Report summarises one pass.
type Report struct {
	HomesChecked      int `json:"homes_checked"`
	CyclesStarted     int `json:"cycles_started"`
	Closed            int `json:"closed"`
	Assigned          int `json:"assigned"`
	ChallengesExpired int `json:"challenges_expired"`
	Failures          int `json:"failures"`
}

type Sweeper struct {
	mu         sync.RWMutex
	homes      HomeLister
	rotation   CycleStarter
	challenges ChallengeExpirer
	logger     *slog.Logger
	interval   time.Duration
	cancel     context.CancelFunc
	done       chan struct{}

	// OnCycleStarted is called after a home rolls into a new cycle.
	OnCycleStarted func(homeID int64, res *rotation.Result)
}

func New(homes HomeLister, rot CycleStarter, challenges ChallengeExpirer, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		homes:      homes,
		rotation:   rot,
		challenges: challenges,
		logger:     logger,
		interval:   interval,
	}
}

// Start runs a pass immediately and then every interval until ctx is
// cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce performs one pass. A failing home is logged and skipped; the
// challenge expiry still runs.
func (s *Sweeper) RunOnce(ctx context.Context) Report {
	var r Report

	homes, err := s.homes.ListAutoRotating()
	if err != nil {
		r.Failures++
		telemetry.SideEffectFailures.WithLabelValues("sweep_homes").Inc()
		s.logger.Error("sweeper: list homes", "error", err)
	}
	for _, h := range homes {
		if ctx.Err() != nil {
			return r
		}
		r.HomesChecked++
		res, started, err := s.rotation.StartCycleIfNeeded(h.ID)
		if err != nil {
			r.Failures++
			telemetry.SideEffectFailures.WithLabelValues("sweep_rotation").Inc()
			s.logger.Error("sweeper: start cycle", "home_id", h.ID, "error", err)
			continue
		}
		if !started {
			continue
		}
		r.CyclesStarted++
		r.Closed += res.Closed
		r.Assigned += res.Assigned
		if s.OnCycleStarted != nil {
			s.OnCycleStarted(h.ID, res)
		}
	}

	n, err := s.challenges.ExpireChallenges()
	if err != nil {
		r.Failures++
		telemetry.SideEffectFailures.WithLabelValues("sweep_challenges").Inc()
		s.logger.Error("sweeper: expire challenges", "error", err)
	}
	r.ChallengesExpired = n

	if r.CyclesStarted > 0 || r.ChallengesExpired > 0 || r.Failures > 0 {
		s.logger.Info("sweep finished", "homes", r.HomesChecked, "cycles_started", r.CyclesStarted,
			"assigned", r.Assigned, "challenges_expired", r.ChallengesExpired, "failures", r.Failures)
	}
	return r
}

// Package schedule runs the periodic desk jobs: the stats broadcast with a
// queue consistency audit, and the pruning of long-closed sessions.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/zulandar/switchboard/internal/models"
)

// Desk is the subset of desk.Desk the jobs drive.
type Desk interface {
	BroadcastStats(ctx context.Context) models.SystemStats
	CheckInvariant() []string
	Prune(olderThan time.Duration) int
}

// Opts configures a Scheduler. An empty spec disables that job.
type Opts struct {
	Desk      Desk
	Stats     string
	Prune     string
	Retention time.Duration
	Logger    zerolog.Logger
}

// Scheduler owns a cron instance with the registered jobs.
type Scheduler struct {
	cron      *cron.Cron
	desk      Desk
	retention time.Duration
	log       zerolog.Logger
	// ctx is the context passed to jobs; replaced by Run.
	ctx context.Context
}

// New registers the configured jobs. Specs use the standard five-field
// syntax or descriptors such as "@every 30s".
func New(opts Opts) (*Scheduler, error) {
	if opts.Desk == nil {
		return nil, fmt.Errorf("schedule: desk is required")
	}
	s := &Scheduler{
		cron:      cron.New(),
		desk:      opts.Desk,
		retention: opts.Retention,
		log:       opts.Logger.With().Str("component", "schedule").Logger(),
		ctx:       context.Background(),
	}
	if opts.Stats != "" {
		if _, err := s.cron.AddFunc(opts.Stats, s.StatsJob); err != nil {
			return nil, fmt.Errorf("schedule: stats %q: %w", opts.Stats, err)
		}
	}
	if opts.Prune != "" && opts.Retention > 0 {
		if _, err := s.cron.AddFunc(opts.Prune, s.PruneJob); err != nil {
			return nil, fmt.Errorf("schedule: prune %q: %w", opts.Prune, err)
		}
	}
	return s, nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int { return len(s.cron.Entries()) }

// Run starts the jobs and blocks until ctx is cancelled, then waits for any
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info().Int("jobs", s.Jobs()).Msg("scheduler started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// StatsJob broadcasts stats and logs any queue inconsistency.
func (s *Scheduler) StatsJob() {
	st := s.desk.BroadcastStats(s.ctx)
	s.log.Debug().Int("queue", st.QueueLength).Int("active", st.ActiveSessions).
		Int("available_agents", st.AvailableAgents).Msg("stats broadcast")
	for _, p := range s.desk.CheckInvariant() {
		s.log.Warn().Str("problem", p).Msg("queue inconsistency")
	}
}

// PruneJob drops closed sessions older than the retention window.
func (s *Scheduler) PruneJob() {
	s.desk.Prune(s.retention)
}

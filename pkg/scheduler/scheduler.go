// Package scheduler delivers configured recurring notifications to the
// workspaces that have live connections.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ToFut/Tredy-sub001/pkg/gateway"
	"github.com/ToFut/Tredy-sub001/pkg/runtime"
)

// Job is one recurring workspace notification
type Job struct {
	WorkspaceID string
	Spec        string
	Message     string
}

// Scheduler runs cron jobs that push out-of-band status events to the
// workspace registry. Workspaces with no open connection simply miss
// the delivery; there is no queueing.
type Scheduler struct {
	cron     *cron.Cron
	registry *gateway.WorkspaceRegistry
	logger   zerolog.Logger
}

// Config holds the dependencies for creating a Scheduler
type Config struct {
	Registry *gateway.WorkspaceRegistry
	Logger   zerolog.Logger
}

// New creates a stopped scheduler
func New(cfg Config) (*Scheduler, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("workspace registry is required")
	}
	return &Scheduler{
		cron:     cron.New(),
		registry: cfg.Registry,
		logger:   cfg.Logger,
	}, nil
}

// AddJob registers one job; spec is a standard 5-field cron expression
func (s *Scheduler) AddJob(job Job) error {
	if job.WorkspaceID == "" {
		return fmt.Errorf("job workspace id is required")
	}

	_, err := s.cron.AddFunc(job.Spec, func() {
		s.logger.Debug().
			Str("workspace_id", job.WorkspaceID).
			Str("spec", job.Spec).
			Msg("Delivering scheduled notification")
		s.registry.Deliver(job.WorkspaceID, runtime.Event{
			Type:    runtime.EventStatusResponse,
			Content: job.Message,
		})
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", job.Spec, err)
	}
	return nil
}

// Start begins firing jobs
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop halts the scheduler; running job functions finish on their own
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info().Msg("Scheduler stopped")
}

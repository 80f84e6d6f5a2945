// Package scheduler backs up recently used documents on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/clareza/clareza/internal/document"
	"github.com/clareza/clareza/internal/logging"
	"github.com/clareza/clareza/internal/metrics"
	"github.com/clareza/clareza/internal/recent"
)

// Run statuses
const (
	StatusCompleted   = "completed"
	StatusPartial     = "partial"
	StatusSkippedBusy = "skipped_busy"
	StatusFailed      = "failed"
)

// Triggers
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Backupper copies a document to a backup file.
type Backupper interface {
	CreateBackup(path string) (*document.BackupInfo, error)
}

// RecentLister lists recently used documents, newest first.
type RecentLister interface {
	List(ctx context.Context, limit int) ([]recent.File, error)
}

// Config configures the scheduler.
type Config struct {
	Schedule string // standard cron spec or descriptor such as "@every 15m"
	Batch    int    // documents considered per run
	Log      *logging.Logger
}

// Scheduler runs automatic backups.
type Scheduler struct {
	schedule string
	sched    cron.Schedule
	batch    int
	docs     Backupper
	recent   RecentLister
	log      *logging.Logger

	cron *cron.Cron

	mu          sync.Mutex
	running     bool
	isRunning   bool // prevents overlapping runs
	lastRun     time.Time
	lastStatus  string
	lastBackups []document.BackupInfo
	lastHash    map[string]string // path -> content hash at last automatic backup
}

// Status describes the scheduler for the status endpoint.
type Status struct {
	Schedule    string                `json:"schedule"`
	Running     bool                  `json:"running"`
	NextRun     *time.Time            `json:"next_run,omitempty"`
	LastRun     *time.Time            `json:"last_run,omitempty"`
	LastStatus  string                `json:"last_status,omitempty"`
	LastBackups []document.BackupInfo `json:"last_backups,omitempty"`
}

// Result reports one run.
type Result struct {
	Status  string                `json:"status"`
	Backups []document.BackupInfo `json:"backups"`
	Skipped int                   `json:"skipped"` // unchanged or missing documents
	Errors  []string              `json:"errors,omitempty"`
}

// New creates a scheduler. The schedule is validated here.
func New(cfg Config, docs Backupper, rec RecentLister) (*Scheduler, error) {
	sched, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 5
	}
	if cfg.Log == nil {
		cfg.Log = logging.Discard()
	}
	return &Scheduler{
		schedule: cfg.Schedule,
		sched:    sched,
		batch:    cfg.Batch,
		docs:     docs,
		recent:   rec,
		log:      cfg.Log.Named("scheduler"),
		lastHash: make(map[string]string),
	}, nil
}

// Start begins running backups on the schedule.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron = cron.New()
	s.cron.Schedule(s.sched, cron.FuncJob(func() {
		s.RunOnce(context.Background(), TriggerSchedule)
	}))
	s.cron.Start()
	s.running = true

	s.log.Info("scheduler started", map[string]any{
		"schedule": s.schedule,
		"next_run": s.sched.Next(time.Now()).Format(time.RFC3339),
		"batch":    s.batch,
	})
	return nil
}

// Stop halts the schedule and waits for a running backup to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	c := s.cron
	s.mu.Unlock()

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce backs up the most recent documents whose content changed since
// their last automatic backup. Overlapping calls are skipped.
func (s *Scheduler) RunOnce(ctx context.Context, trigger string) Result {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		s.log.Info("backup run skipped", map[string]any{"trigger": trigger, "reason": "busy"})
		return Result{Status: StatusSkippedBusy, Backups: []document.BackupInfo{}}
	}
	s.isRunning = true
	s.mu.Unlock()

	res := s.run(ctx, trigger)

	s.mu.Lock()
	s.isRunning = false
	s.lastRun = time.Now().UTC()
	s.lastStatus = res.Status
	s.lastBackups = res.Backups
	s.mu.Unlock()

	s.log.Info("backup run finished", map[string]any{
		"trigger": trigger,
		"status":  res.Status,
		"backups": len(res.Backups),
		"skipped": res.Skipped,
		"errors":  len(res.Errors),
	})
	return res
}

func (s *Scheduler) run(ctx context.Context, trigger string) Result {
	res := Result{Backups: []document.BackupInfo{}}

	files, err := s.recent.List(ctx, s.batch)
	if err != nil {
		metrics.RecordBackup(trigger, err)
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	for _, f := range files {
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, ctx.Err().Error())
			break
		}
		data, err := os.ReadFile(f.Path)
		if errors.Is(err, os.ErrNotExist) {
			res.Skipped++
			continue
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", f.Path, err))
			metrics.RecordBackup(trigger, err)
			continue
		}

		hash := document.Hash(string(data))
		s.mu.Lock()
		unchanged := s.lastHash[f.Path] == hash
		s.mu.Unlock()
		if unchanged {
			res.Skipped++
			continue
		}

		info, err := s.docs.CreateBackup(f.Path)
		metrics.RecordBackup(trigger, err)
		if err != nil {
			s.log.Warn("automatic backup failed", map[string]any{"path": f.Path, "error": err.Error()})
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", f.Path, err))
			continue
		}
		s.mu.Lock()
		s.lastHash[f.Path] = hash
		s.mu.Unlock()
		res.Backups = append(res.Backups, *info)
	}

	switch {
	case len(res.Errors) == 0:
		res.Status = StatusCompleted
	case len(res.Backups) > 0:
		res.Status = StatusPartial
	default:
		res.Status = StatusFailed
	}
	return res
}

// Status returns the schedule and the last run.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Schedule:    s.schedule,
		Running:     s.running,
		LastStatus:  s.lastStatus,
		LastBackups: s.lastBackups,
	}
	if s.running {
		next := s.sched.Next(time.Now()).UTC()
		st.NextRun = &next
	}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		st.LastRun = &last
	}
	return st
}

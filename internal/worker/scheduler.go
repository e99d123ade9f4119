// Package worker runs the fixed daily jobs of the pipeline and the background
// task runner that executes both scheduled and manually triggered work.
package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"dailyfeed/internal/config"
	"dailyfeed/internal/observability"
	contextutils "dailyfeed/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// Job names, matching the schedule section keys
const (
	JobResetStreaks     = "reset_streaks"
	JobAnswerGeneration = "answer_generation"
	JobTokenCleanup     = "token_cleanup"
	JobDailyFlow        = "daily_flow"
)

// Trigger sources recorded in run history
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// RunRecord tracks individual job runs
type RunRecord struct {
	Job       string        `json:"job"`
	TaskID    string        `json:"task_id,omitempty"`
	Trigger   string        `json:"trigger"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"` // Success, Failure
	Details   string        `json:"details"`
}

// JobInfo describes one scheduled job
type JobInfo struct {
	Name        string    `json:"name"`
	Time        string    `json:"time"`
	LastFiredOn string    `json:"last_fired_on,omitempty"`
	NextRun     time.Time `json:"next_run"`
}

type scheduledJob struct {
	name   string
	clock  string
	hour   int
	minute int
	run    TaskFunc
}

// Scheduler fires each registered job at most once per calendar day, on the
// first check at or after its configured time in the pipeline time zone.
// A job whose time already passed when the process starts still fires that
// day; every job is safe to repeat.
type Scheduler struct {
	jobs     []*scheduledJob
	byName   map[string]*scheduledJob
	runner   *TaskRunner
	loc      *time.Location
	interval time.Duration

	mu          sync.RWMutex
	lastFired   map[string]string
	history     []RunRecord
	historySize int

	logger  *observability.Logger
	metrics *observability.PipelineMetrics
	timeNow func() time.Time
}

// NewScheduler binds job functions to their configured times. Every key in
// jobs needs a time in cfg.
func NewScheduler(cfg config.ScheduleConfig, timezone string, jobs map[string]TaskFunc, runner *TaskRunner, logger *observability.Logger, metrics *observability.PipelineMetrics) (*Scheduler, error) {
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = config.SchedulerCheckInterval
	}
	historySize := cfg.HistorySize
	if historySize < 1 {
		historySize = config.DefaultRunHistorySize
	}

	s := &Scheduler{
		byName:      make(map[string]*scheduledJob, len(jobs)),
		runner:      runner,
		loc:         contextutils.LoadLocation(timezone),
		interval:    interval,
		lastFired:   make(map[string]string, len(jobs)),
		history:     make([]RunRecord, 0, historySize),
		historySize: historySize,
		logger:      logger,
		metrics:     metrics,
		timeNow:     time.Now,
	}

	times := cfg.Times()
	for name, fn := range jobs {
		clock, ok := times[name]
		if !ok || clock == "" {
			return nil, contextutils.WrapErrorf(contextutils.ErrConfigInvalid, "no schedule time configured for job %q", name)
		}
		hour, minute, err := config.ParseClock(clock)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrConfigInvalid, "schedule.%s: %v", name, err)
		}
		job := &scheduledJob{name: name, clock: clock, hour: hour, minute: minute, run: fn}
		s.jobs = append(s.jobs, job)
		s.byName[name] = job
	}

	sort.Slice(s.jobs, func(i, j int) bool {
		a, b := s.jobs[i], s.jobs[j]
		if a.hour != b.hour {
			return a.hour < b.hour
		}
		if a.minute != b.minute {
			return a.minute < b.minute
		}
		return a.name < b.name
	})
	return s, nil
}

// Start checks for due jobs on every tick until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "Scheduler started", map[string]interface{}{
		"jobs":     len(s.jobs),
		"timezone": s.loc.String(),
		"interval": s.interval.String(),
	})

	s.checkDue(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Scheduler shutting down", nil)
			return
		case <-ticker.C:
			s.checkDue(ctx)
		}
	}
}

// checkDue submits every job that is due and has not fired today, and returns the task ids
func (s *Scheduler) checkDue(ctx context.Context) []string {
	now := s.timeNow().In(s.loc)
	today := contextutils.CalendarDate(now, s.loc)

	var taskIDs []string
	for _, job := range s.jobs {
		due := time.Date(now.Year(), now.Month(), now.Day(), job.hour, job.minute, 0, 0, s.loc)
		if now.Before(due) {
			continue
		}

		s.mu.Lock()
		fired := s.lastFired[job.name] == today
		if !fired {
			s.lastFired[job.name] = today
		}
		s.mu.Unlock()
		if fired {
			continue
		}

		s.logger.Info(ctx, "Scheduled job due", map[string]interface{}{
			"job":  job.name,
			"date": today,
			"time": job.clock,
		})
		taskIDs = append(taskIDs, s.submit(job, TriggerScheduled))
	}
	return taskIDs
}

// Trigger submits a job immediately, outside its schedule, and returns the task id
func (s *Scheduler) Trigger(ctx context.Context, name string) (string, error) {
	job, ok := s.byName[name]
	if !ok {
		return "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown job %q", name)
	}
	id := s.submit(job, TriggerManual)
	s.logger.Info(ctx, "Job triggered manually", map[string]interface{}{
		"job":     name,
		"task_id": id,
	})
	return id, nil
}

// RunNow executes a job synchronously on the caller's goroutine
func (s *Scheduler) RunNow(ctx context.Context, name string) (RunRecord, error) {
	job, ok := s.byName[name]
	if !ok {
		return RunRecord{}, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown job %q", name)
	}
	ctx = contextutils.WithJobName(ctx, name)
	record, err := s.execute(ctx, job, TriggerManual)
	return record, err
}

func (s *Scheduler) submit(job *scheduledJob, trigger string) string {
	return s.runner.Submit(job.name, func(ctx context.Context) (string, error) {
		record, err := s.execute(ctx, job, trigger)
		return record.Details, err
	})
}

// execute runs the job, records it in history and metrics
func (s *Scheduler) execute(ctx context.Context, job *scheduledJob, trigger string) (record RunRecord, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "run_job",
		observability.AttributeJob(job.name),
		attribute.String("job.trigger", trigger),
	)
	defer observability.FinishSpan(span, &err)

	record = RunRecord{
		Job:       job.name,
		TaskID:    contextutils.GetTaskIDFromContext(ctx),
		Trigger:   trigger,
		StartTime: s.timeNow(),
	}

	details, err := runRecovered(ctx, job.run)

	record.EndTime = s.timeNow()
	record.Duration = record.EndTime.Sub(record.StartTime)
	record.Details = details
	if err != nil {
		record.Status = "Failure"
		if record.Details == "" {
			record.Details = err.Error()
		}
	} else {
		record.Status = "Success"
	}

	s.recordRunHistory(record)
	s.metrics.RecordJobRun(ctx, job.name, err)
	return record, err
}

// recordRunHistory records the run in history and trims the slice
func (s *Scheduler) recordRunHistory(record RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, record)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
}

// GetHistory returns the recorded runs, oldest first
func (s *Scheduler) GetHistory() []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make([]RunRecord, len(s.history))
	copy(history, s.history)
	return history
}

// Jobs lists the registered jobs in schedule order. NextRun is in the past
// for a job that is due but not yet picked up by a check.
func (s *Scheduler) Jobs() []JobInfo {
	now := s.timeNow().In(s.loc)
	today := contextutils.CalendarDate(now, s.loc)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, job := range s.jobs {
		next := time.Date(now.Year(), now.Month(), now.Day(), job.hour, job.minute, 0, 0, s.loc)
		if s.lastFired[job.name] == today {
			next = time.Date(now.Year(), now.Month(), now.Day()+1, job.hour, job.minute, 0, 0, s.loc)
		}
		out = append(out, JobInfo{
			Name:        job.name,
			Time:        job.clock,
			LastFiredOn: s.lastFired[job.name],
			NextRun:     next,
		})
	}
	return out
}

// HasJob reports whether name is a registered job
func (s *Scheduler) HasJob(name string) bool {
	_, ok := s.byName[name]
	return ok
}

func runRecovered(ctx context.Context, fn TaskFunc) (details string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = contextutils.ErrorWithContextf("job panicked: %v", p)
		}
	}()
	return fn(ctx)
}

package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobStatus represents the last known state of a job.
type JobStatus string

const (
	StatusIdle    JobStatus = "idle"
	StatusRunning JobStatus = "running"
	StatusFulfill JobStatus = "fulfill"
	StatusReject  JobStatus = "reject"
)

// Job defines a periodic background task.
type Job struct {
	Name        string
	Description string
	Interval    time.Duration
	Fn          func(ctx context.Context) error
}

type jobState struct {
	Job
	mu        sync.Mutex
	status    JobStatus
	message   string
	lastRunAt *time.Time
	nextRunAt time.Time
}

// ListItem is the serializable representation of a job.
type ListItem struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      JobStatus  `json:"status"`
	Message     string     `json:"message,omitempty"`
	NextDate    time.Time  `json:"nextDate"`
	LastRunAt   *time.Time `json:"lastRunAt,omitempty"`
}

// Scheduler runs named jobs on fixed intervals.
type Scheduler struct {
	mu     sync.RWMutex
	jobs   map[string]*jobState
	logger *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		jobs:   make(map[string]*jobState),
		logger: logger,
	}
}

// Register adds a job to the scheduler. Must be called before Start.
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = &jobState{
		Job:       job,
		status:    StatusIdle,
		nextRunAt: time.Now().Add(job.Interval),
	}
}

// Start launches all registered jobs in background goroutines until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, js := range s.jobs {
		go s.runLoop(ctx, js)
	}
}

func (s *Scheduler) runLoop(ctx context.Context, js *jobState) {
	ticker := time.NewTicker(js.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, js)
			js.mu.Lock()
			js.nextRunAt = time.Now().Add(js.Interval)
			js.mu.Unlock()
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, js *jobState) {
	js.mu.Lock()
	if js.status == StatusRunning {
		js.mu.Unlock()
		return
	}
	js.status = StatusRunning
	js.mu.Unlock()

	start := time.Now()
	err := js.Fn(ctx)

	js.mu.Lock()
	js.lastRunAt = &start
	if err != nil {
		js.status = StatusReject
		js.message = err.Error()
	} else {
		js.status = StatusFulfill
		js.message = ""
	}
	js.mu.Unlock()

	if err != nil {
		s.logger.Warn("cron job failed", zap.String("job", js.Name), zap.Error(err))
		return
	}
	s.logger.Debug("cron job done", zap.String("job", js.Name), zap.Duration("duration", time.Since(start)))
}

// RunNow executes a job synchronously, skipping if it is already running.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	js, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	s.execute(ctx, js)
	return nil
}

// List returns a summary of all registered jobs sorted by name.
func (s *Scheduler) List() []ListItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]ListItem, 0, len(s.jobs))
	for _, js := range s.jobs {
		js.mu.Lock()
		items = append(items, ListItem{
			Name:        js.Name,
			Description: js.Description,
			Status:      js.status,
			Message:     js.message,
			NextDate:    js.nextRunAt,
			LastRunAt:   js.lastRunAt,
		})
		js.mu.Unlock()
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

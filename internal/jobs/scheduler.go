// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/robfig/cron"

	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

// Job is one scheduled task. Name must be unique within a Scheduler.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// Scheduler fires registered jobs on their schedules. A job whose previous
// run is still in flight is skipped rather than stacked.
type Scheduler struct {
	log  *logger.Logger
	cron *cron.Cron

	mu      sync.Mutex
	jobs    map[string]Job
	running mapset.Set[string]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(baseLog *logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:     baseLog.With("component", "JobScheduler"),
		cron:    cron.New(),
		jobs:    make(map[string]Job),
		running: mapset.NewThreadUnsafeSet[string](),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) Register(j Job) error {
	if j == nil {
		return fmt.Errorf("nil job")
	}
	name := j.Name()
	if name == "" {
		return fmt.Errorf("job Name() is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job already registered: %s", name)
	}
	if err := s.cron.AddFunc(j.Schedule(), func() { s.trigger(j) }); err != nil {
		return fmt.Errorf("schedule job %s (%q): %w", name, j.Schedule(), err)
	}
	s.jobs[name] = j
	return nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	s.mu.Unlock()
	s.log.Info("scheduler started", "jobs", names)
	s.cron.Start()
}

// Stop halts the schedule, cancels in-flight runs and waits for them.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// RunNow triggers a job outside its schedule, subject to the same overlap guard.
// It reports false when the job is unknown or already running.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return s.trigger(j)
}

func (s *Scheduler) trigger(j Job) bool {
	name := j.Name()
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	if s.running.Contains(name) {
		s.mu.Unlock()
		s.log.Warn("job still running, skipping", "job", name)
		return false
	}
	s.running.Add(name)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running.Remove(name)
			s.mu.Unlock()
		}()
		s.run(j)
	}()
	return true
}

func (s *Scheduler) run(j Job) {
	log := s.log.With("job", j.Name())
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panic", "panic", r)
		}
	}()
	if err := j.Run(s.ctx); err != nil {
		log.Error("job failed", "error", err, "elapsed", time.Since(start).String())
		return
	}
	log.Debug("job finished", "elapsed", time.Since(start).String())
}

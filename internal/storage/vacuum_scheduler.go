// Package storage hosts the background vacuum scheduler: a generic
// CRON/INTERVAL/ONCE job scheduler narrowed to the one recurring job
// this engine runs — reclaiming dead row versions via VACUUM.
package storage

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/relstore/reldb/internal/catalog"
)

// VacuumExecutor runs a VACUUM of one table. The engine package
// implements this so the scheduler can trigger vacuums without a
// circular import.
type VacuumExecutor interface {
	ExecuteVacuum(ctx context.Context, table string) error
}

// VacuumScheduler periodically vacuums tables according to jobs recorded
// in the catalog.
type VacuumScheduler struct {
	catalog  *catalog.Manager
	executor VacuumExecutor
	cron     *cron.Cron
	mu       sync.Mutex
	running  map[string]context.CancelFunc
	stopCh   chan struct{}
}

// NewVacuumScheduler builds a scheduler backed by cat and executor.
func NewVacuumScheduler(cat *catalog.Manager, executor VacuumExecutor) *VacuumScheduler {
	return &VacuumScheduler{
		catalog:  cat,
		executor: executor,
		cron:     cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
		running:  make(map[string]context.CancelFunc),
		stopCh:   make(chan struct{}),
	}
}

// ScheduleTable registers a recurring VACUUM job for table on the given
// cron expression (6-field, seconds-first, e.g. "0 */5 * * * *" for
// every 5 minutes).
func (s *VacuumScheduler) ScheduleTable(table, cronExpr string) error {
	job := &catalog.Job{
		Name:         "vacuum:" + table,
		Table:        table,
		ScheduleType: "CRON",
		CronExpr:     cronExpr,
		Enabled:      true,
	}
	if err := s.catalog.RegisterJob(job); err != nil {
		return err
	}
	return s.scheduleJob(job)
}

// Start registers every enabled job already in the catalog and starts
// the cron loop.
func (s *VacuumScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := s.catalog.ListEnabledJobs()
	for _, job := range jobs {
		if err := s.scheduleJob(job); err != nil {
			log.Printf("vacuum scheduler: failed to schedule %q: %v", job.Name, err)
		}
	}
	s.cron.Start()
	log.Printf("vacuum scheduler started with %d job(s)", len(jobs))
	return nil
}

// Stop cancels the context of any in-flight vacuum, then halts the cron
// loop and waits for running jobs to return.
func (s *VacuumScheduler) Stop() {
	s.mu.Lock()
	for name, cancel := range s.running {
		log.Printf("vacuum scheduler: canceling running job %q", name)
		cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("vacuum scheduler stopped")
}

func (s *VacuumScheduler) scheduleJob(job *catalog.Job) error {
	if job.ScheduleType != "CRON" {
		return fmt.Errorf("vacuum scheduler: unsupported schedule type %q", job.ScheduleType)
	}
	if job.CronExpr == "" {
		return fmt.Errorf("vacuum scheduler: empty CRON expression for job %q", job.Name)
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(job.CronExpr)
	if err != nil {
		return fmt.Errorf("vacuum scheduler: invalid CRON expression %q: %w", job.CronExpr, err)
	}
	next := schedule.Next(time.Now().UTC())
	job.NextRunAt = &next

	_, err = s.cron.AddFunc(job.CronExpr, func() {
		s.runJob(job)
	})
	return err
}

func (s *VacuumScheduler) runJob(job *catalog.Job) {
	s.mu.Lock()
	if _, running := s.running[job.Name]; running {
		s.mu.Unlock()
		log.Printf("vacuum scheduler: %q already running, skipping this tick", job.Name)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	s.running[job.Name] = cancel
	s.mu.Unlock()

	start := time.Now()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.running, job.Name)
		s.mu.Unlock()

		next := time.Now().Add(time.Minute)
		if parser := (cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)); job.CronExpr != "" {
			if schedule, err := parser.Parse(job.CronExpr); err == nil {
				next = schedule.Next(time.Now().UTC())
			}
		}
		if err := s.catalog.UpdateJobRuntime(job.Name, start, next); err != nil {
			log.Printf("vacuum scheduler: failed to record runtime for %q: %v", job.Name, err)
		}
	}()

	log.Printf("vacuum scheduler: running %q", job.Name)
	if err := s.executor.ExecuteVacuum(ctx, job.Table); err != nil {
		log.Printf("vacuum scheduler: %q failed: %v", job.Name, err)
		return
	}
	log.Printf("vacuum scheduler: %q completed", job.Name)
}

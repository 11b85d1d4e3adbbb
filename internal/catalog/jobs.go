package catalog

import (
	"fmt"
	"time"
)

// Job is a scheduled background task. reldb schedules exactly one kind of
// job — periodic VACUUM of a table — and keeps a general
// CRON/INTERVAL/ONCE shape, but the scheduler it backs
// (internal/storage/vacuum_scheduler.go) runs CRON jobs only and rejects
// the other two schedule types.
type Job struct {
	Name         string
	Table        string
	ScheduleType string // "CRON", "INTERVAL", or "ONCE"
	CronExpr     string
	IntervalMs   int64
	RunAt        *time.Time
	Enabled      bool
	LastRunAt    *time.Time
	NextRunAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterJob adds a new job or updates an existing one by name.
func (m *Manager) RegisterJob(job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.Name == "" {
		return fmt.Errorf("catalog: job name cannot be empty")
	}
	now := entryTime()
	if m.jobs == nil {
		m.jobs = make(map[string]*Job)
	}
	if m.jobs[job.Name] == nil {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.Name] = job
	return nil
}

// GetJob retrieves a job by name.
func (m *Manager) GetJob(name string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[name]
	if !ok {
		return nil, fmt.Errorf("catalog: job %q not found", name)
	}
	return job, nil
}

// ListEnabledJobs returns every job whose Enabled flag is set.
func (m *Manager) ListEnabledJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if job.Enabled {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// UpdateJobRuntime records a job's most recent and next scheduled run.
func (m *Manager) UpdateJobRuntime(name string, lastRun, nextRun time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("catalog: job %q not found", name)
	}
	job.LastRunAt = &lastRun
	job.NextRunAt = &nextRun
	job.UpdatedAt = entryTime()
	return nil
}

// DeleteJob removes a job from the catalog.
func (m *Manager) DeleteJob(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[name]; !ok {
		return fmt.Errorf("catalog: job %q not found", name)
	}
	delete(m.jobs, name)
	return nil
}

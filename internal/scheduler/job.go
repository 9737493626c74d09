package scheduler

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"skytrace-backend/internal/source"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobRunning  = errors.New("job is already running")
	ErrJobExists   = errors.New("job already exists")
	ErrInvalidJob  = errors.New("invalid job")
)

// JobSpec describes a job to register.
type JobSpec struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	ClientType      string         `json:"client_type"`
	Config          map[string]any `json:"config"`
	IntervalMinutes int            `json:"interval_minutes"`
	Tenant          string         `json:"tenant"`
	Enabled         *bool          `json:"enabled"`
}

func (s JobSpec) validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidJob)
	case s.ClientType == "":
		return fmt.Errorf("%w: client_type is required", ErrInvalidJob)
	case s.IntervalMinutes <= 0:
		return fmt.Errorf("%w: interval_minutes must be positive", ErrInvalidJob)
	case s.Tenant == "":
		return fmt.Errorf("%w: tenant is required", ErrInvalidJob)
	}
	return nil
}

// Job binds one client to one tenant with a polling interval.
// All fields except the identity and configuration are guarded by the scheduler's lock.
type Job struct {
	ID              string
	Name            string
	ClientType      string
	Config          map[string]any
	IntervalMinutes int
	TenantRef       string
	CreatedAt       time.Time

	Enabled    bool
	LastRun    *time.Time
	NextRun    time.Time
	RunCount   int
	ErrorCount int
	LastError  *string

	client  source.Client
	running bool
}

func newJob(spec JobSpec, client source.Client, now time.Time) *Job {
	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}
	return &Job{
		ID:              spec.ID,
		Name:            spec.Name,
		ClientType:      spec.ClientType,
		Config:          maps.Clone(spec.Config),
		IntervalMinutes: spec.IntervalMinutes,
		TenantRef:       spec.Tenant,
		CreatedAt:       now,
		Enabled:         enabled,
		NextRun:         now,
		client:          client,
	}
}

// Interval is the time between the end of one run and the next due time.
func (j *Job) Interval() time.Duration {
	return time.Duration(j.IntervalMinutes) * time.Minute
}

// IsDue reports whether the job is enabled and its next run time has passed.
func (j *Job) IsDue(now time.Time) bool {
	return j.Enabled && !now.Before(j.NextRun)
}

func (j *Job) complete(at time.Time, result source.Result) {
	j.LastRun = &at
	j.RunCount++
	if result.Success {
		j.LastError = nil
	} else {
		j.ErrorCount++
		msg := result.Error
		j.LastError = &msg
	}
	j.NextRun = at.Add(j.Interval())
}

// storeOptions reads use_archive_refresh and archive_reason from the job config.
// A non-empty reason overrides the configured one.
func (j *Job) storeOptions(reason string) source.StoreOptions {
	opts := source.StoreOptions{Reason: reason}
	if v, ok := j.Config["use_archive_refresh"].(bool); ok {
		opts.UseArchiveRefresh = v
	}
	if opts.Reason == "" {
		if v, ok := j.Config["archive_reason"].(string); ok {
			opts.Reason = v
		}
	}
	return opts
}

// JobInfo is a point-in-time snapshot of a job.
type JobInfo struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	ClientType      string         `json:"client_type"`
	Config          map[string]any `json:"config"`
	IntervalMinutes int            `json:"interval_minutes"`
	Tenant          string         `json:"tenant"`
	Enabled         bool           `json:"enabled"`
	CreatedAt       time.Time      `json:"created_at"`
	LastRun         *time.Time     `json:"last_run"`
	NextRun         time.Time      `json:"next_run"`
	RunCount        int            `json:"run_count"`
	ErrorCount      int            `json:"error_count"`
	LastError       *string        `json:"last_error"`
	Running         bool           `json:"running"`
}

func (j *Job) info() JobInfo {
	info := JobInfo{
		ID:              j.ID,
		Name:            j.Name,
		ClientType:      j.ClientType,
		Config:          redact(j.Config),
		IntervalMinutes: j.IntervalMinutes,
		Tenant:          j.TenantRef,
		Enabled:         j.Enabled,
		CreatedAt:       j.CreatedAt,
		NextRun:         j.NextRun,
		RunCount:        j.RunCount,
		ErrorCount:      j.ErrorCount,
		Running:         j.running,
	}
	if j.LastRun != nil {
		t := *j.LastRun
		info.LastRun = &t
	}
	if j.LastError != nil {
		e := *j.LastError
		info.LastError = &e
	}
	return info
}

var secretKeys = []string{"rapidapi_key", "api_key", "password", "token"}

// redact copies cfg with credential values masked.
func redact(cfg map[string]any) map[string]any {
	out := maps.Clone(cfg)
	if out == nil {
		return map[string]any{}
	}
	for _, k := range secretKeys {
		if _, ok := out[k]; ok {
			out[k] = "***"
		}
	}
	return out
}

// Status summarizes the scheduler's job collection.
type Status struct {
	Status       string    `json:"status"`
	TotalJobs    int       `json:"total_jobs"`
	EnabledJobs  int       `json:"enabled_jobs"`
	DisabledJobs int       `json:"disabled_jobs"`
	Jobs         []JobInfo `json:"jobs"`
}

package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"skytrace-backend/internal/model"
	"skytrace-backend/internal/source"
	"skytrace-backend/internal/store"
)

const (
	DefaultPollInterval = time.Minute
	DefaultTenantName   = "Default Organization"

	publishTimeout = 5 * time.Second
)

// Publisher receives a RunEvent after every run.
type Publisher interface {
	Publish(ctx context.Context, v any) error
}

// AlertDispatcher receives the emergency alerts raised by a run.
type AlertDispatcher interface {
	Dispatch(alert model.EmergencyAlert)
}

// RunEvent describes one finished run.
type RunEvent struct {
	JobID   string `json:"job_id"`
	JobName string `json:"job_name"`
	Tenant  string `json:"tenant"`
	source.Result
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Options configures a Scheduler.
type Options struct {
	PollInterval            time.Duration
	DefaultTenant           string
	AutoCreateDefaultTenant bool
	PersistJobs             bool
}

// Scheduler owns the job collection and is the only path that executes a job.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*Job

	registry  *source.Registry
	env       source.Env
	store     store.Store
	opts      Options
	publisher Publisher
	alerts    AlertDispatcher
	hooks     []func(RunEvent)

	now   func() time.Time
	newID func() string

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler that builds clients from registry. env.Store backs tenant
// resolution, job persistence and every client the scheduler builds.
func New(registry *source.Registry, env source.Env, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Scheduler{
		jobs:     make(map[string]*Job),
		registry: registry,
		env:      env,
		store:    env.Store,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// SetPublisher sets where run events go.
func (s *Scheduler) SetPublisher(p Publisher) { s.publisher = p }

// SetAlertDispatcher sets where emergency alerts go.
func (s *Scheduler) SetAlertDispatcher(d AlertDispatcher) { s.alerts = d }

// OnRun registers a hook called after every run.
func (s *Scheduler) OnRun(hook func(RunEvent)) { s.hooks = append(s.hooks, hook) }

// AddJob validates spec, builds its client and registers it. An id that is already
// registered is rejected with ErrJobExists. With job persistence enabled the
// definition is stored first and a storage failure fails the add.
func (s *Scheduler) AddJob(ctx context.Context, spec JobSpec) (JobInfo, error) {
	return s.add(ctx, spec, s.opts.PersistJobs, false)
}

// RegisterJob adds a job from static configuration without persisting it.
// It replaces a job with the same id unless that job is running.
func (s *Scheduler) RegisterJob(spec JobSpec) (JobInfo, error) {
	return s.add(context.Background(), spec, false, true)
}

func (s *Scheduler) add(ctx context.Context, spec JobSpec, persist, replace bool) (JobInfo, error) {
	if spec.Tenant == "" {
		spec.Tenant = s.opts.DefaultTenant
	}
	if err := spec.validate(); err != nil {
		return JobInfo{}, err
	}
	if spec.ID == "" {
		spec.ID = s.newID()
	}

	s.mu.Lock()
	err := s.checkReplace(spec.ID, replace)
	s.mu.Unlock()
	if err != nil {
		return JobInfo{}, err
	}

	client, err := s.registry.New(spec.ClientType, spec.Config, s.env)
	if err != nil {
		return JobInfo{}, fmt.Errorf("job %s: %w", spec.ID, err)
	}

	job := newJob(spec, client, s.now())
	if persist {
		if err := s.persist(ctx, job); err != nil {
			return JobInfo{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReplace(job.ID, replace); err != nil {
		return JobInfo{}, err
	}
	if _, exists := s.jobs[job.ID]; exists {
		slog.Info("replacing job", "job_id", job.ID)
	}
	s.jobs[job.ID] = job
	slog.Info("added job", "job_id", job.ID, "name", job.Name, "client_type", job.ClientType, "interval_minutes", job.IntervalMinutes, "tenant", job.TenantRef)
	return job.info(), nil
}

// checkReplace reports whether id may be registered. A running job is never replaced.
// Callers hold s.mu.
func (s *Scheduler) checkReplace(id string, replace bool) error {
	existing, ok := s.jobs[id]
	switch {
	case !ok:
		return nil
	case !replace:
		return fmt.Errorf("%w: %s", ErrJobExists, id)
	case existing.running:
		return fmt.Errorf("%w: %s", ErrJobRunning, id)
	}
	return nil
}

// LoadPersisted registers every stored job definition, replacing idle jobs with the same id.
// Definitions that no longer build are logged and skipped.
func (s *Scheduler) LoadPersisted(ctx context.Context) error {
	defs, err := s.store.ListJobDefinitions(ctx)
	if err != nil {
		return err
	}
	for _, def := range defs {
		var cfg map[string]any
		if len(def.Config) > 0 {
			if err := json.Unmarshal(def.Config, &cfg); err != nil {
				slog.Error("skipping persisted job with unreadable config", "job_id", def.ID, "error", err)
				continue
			}
		}
		enabled := def.Enabled
		spec := JobSpec{
			ID:              def.ID,
			Name:            def.Name,
			ClientType:      def.ClientType,
			Config:          cfg,
			IntervalMinutes: def.IntervalMinutes,
			Tenant:          def.TenantRef,
			Enabled:         &enabled,
		}
		if _, err := s.add(ctx, spec, false, true); err != nil {
			slog.Error("skipping persisted job", "job_id", def.ID, "error", err)
		}
	}
	return nil
}

// Remove deletes a job. A run already in flight finishes but its outcome is discarded.
func (s *Scheduler) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.jobs[id]; !ok {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	s.mu.Unlock()

	slog.Info("removed job", "job_id", id)
	if s.opts.PersistJobs {
		if err := s.store.DeleteJobDefinition(ctx, id); err != nil {
			slog.Error("failed to delete persisted job", "job_id", id, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) Enable(ctx context.Context, id string) (JobInfo, error) {
	return s.SetEnabled(ctx, id, true)
}

func (s *Scheduler) Disable(ctx context.Context, id string) (JobInfo, error) {
	return s.SetEnabled(ctx, id, false)
}

// SetEnabled flips the enabled flag. The next run time is left unchanged.
func (s *Scheduler) SetEnabled(ctx context.Context, id string, enabled bool) (JobInfo, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return JobInfo{}, ErrJobNotFound
	}
	job.Enabled = enabled
	info := job.info()
	s.mu.Unlock()

	slog.Info("job enabled state changed", "job_id", id, "enabled", enabled)
	if s.opts.PersistJobs {
		if err := s.persist(ctx, job); err != nil {
			slog.Error("failed to persist job", "job_id", id, "error", err)
		}
	}
	return info, nil
}

func (s *Scheduler) Get(id string) (JobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return JobInfo{}, ErrJobNotFound
	}
	return job.info(), nil
}

// List returns every job, oldest first.
func (s *Scheduler) List() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.info())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Scheduler) Status() Status {
	jobs := s.List()
	st := Status{Status: "stopped", TotalJobs: len(jobs), Jobs: jobs}
	if s.Running() {
		st.Status = "running"
	}
	for _, j := range jobs {
		if j.Enabled {
			st.EnabledJobs++
		} else {
			st.DisabledJobs++
		}
	}
	return st
}

// RunNow executes a job immediately through the same path as the loop,
// archiving under the manual refresh reason.
func (s *Scheduler) RunNow(ctx context.Context, id string) (source.Result, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return source.Result{}, ErrJobNotFound
	}
	if job.running {
		s.mu.Unlock()
		return source.Result{}, ErrJobRunning
	}
	job.running = true
	s.mu.Unlock()

	return s.execute(ctx, job, model.ArchiveReasonManualRefresh), nil
}

// Start launches the polling loop. It runs due jobs immediately and then once per poll interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	slog.Info("starting scheduler", "poll_interval", s.opts.PollInterval, "jobs", len(s.List()))
	go s.loop(ctx, s.done)
}

// Stop ends the loop and waits for the current run, if any, to finish.
func (s *Scheduler) Stop() {
	s.loopMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("scheduler stopped")
}

func (s *Scheduler) Running() bool {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	s.RunDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue executes every due job sequentially, earliest next run first, and returns how many ran.
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var due []*Job
	for _, job := range s.jobs {
		if job.IsDue(now) && !job.running {
			due = append(due, job)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextRun.Equal(due[j].NextRun) {
			return due[i].NextRun.Before(due[j].NextRun)
		}
		return due[i].ID < due[j].ID
	})

	ran := 0
	for _, job := range due {
		if ctx.Err() != nil {
			break
		}
		if !s.admit(job, now) {
			continue
		}
		s.execute(ctx, job, "")
		ran++
	}
	return ran
}

// admit marks job as running if it is still registered, due and idle.
func (s *Scheduler) admit(job *Job, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[job.ID] != job || job.running || !job.IsDue(now) {
		return false
	}
	job.running = true
	return true
}

// execute runs an admitted job and records the outcome. It never returns an error:
// failures are recorded on the job.
func (s *Scheduler) execute(ctx context.Context, job *Job, reason string) source.Result {
	started := s.now()
	slog.Info("running job", "job_id", job.ID, "name", job.Name, "tenant", job.TenantRef)

	var result source.Result
	tenantID, err := s.resolveTenant(ctx, job.TenantRef)
	if err != nil {
		slog.Error("job tenant unavailable", "job_id", job.ID, "error", err)
		result = source.Result{Success: false, Error: err.Error(), Errors: 1}
	} else {
		result = source.FetchAndStore(ctx, job.client, tenantID, job.storeOptions(reason))
	}

	finished := s.now()
	s.finish(job, finished, result)

	event := RunEvent{
		JobID:      job.ID,
		JobName:    job.Name,
		Tenant:     job.TenantRef,
		Result:     result,
		StartedAt:  started,
		FinishedAt: finished,
	}
	s.notify(ctx, event)
	return result
}

func (s *Scheduler) finish(job *Job, at time.Time, result source.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.running = false
	if s.jobs[job.ID] != job {
		slog.Warn("discarding result of removed job", "job_id", job.ID)
		return
	}
	job.complete(at, result)
	if result.Success {
		slog.Info("job completed", "job_id", job.ID, "collected", result.Collected, "created", result.Created, "updated", result.Updated, "archived", result.Archived, "errors", result.Errors, "next_run", job.NextRun)
	} else {
		slog.Warn("job failed", "job_id", job.ID, "error", result.Error, "error_count", job.ErrorCount, "next_run", job.NextRun)
	}
}

func (s *Scheduler) notify(ctx context.Context, event RunEvent) {
	if s.publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		if err := s.publisher.Publish(pubCtx, event); err != nil {
			slog.Error("failed to publish run event", "job_id", event.JobID, "error", err)
		}
		cancel()
	}
	if s.alerts != nil {
		for _, alert := range event.Alerts {
			s.alerts.Dispatch(alert)
		}
	}
	for _, hook := range s.hooks {
		hook(event)
	}
}

// resolveTenant finds the job's tenant by id or slug. The default tenant is created
// on first use when auto-creation is enabled.
func (s *Scheduler) resolveTenant(ctx context.Context, ref string) (uuid.UUID, error) {
	tenant, err := s.store.ResolveTenant(ctx, ref)
	if errors.Is(err, store.ErrTenantNotFound) && s.opts.AutoCreateDefaultTenant && ref == s.opts.DefaultTenant {
		tenant, err = s.store.EnsureTenant(ctx, ref, DefaultTenantName)
		if err == nil {
			slog.Info("created default tenant", "slug", ref, "tenant_id", tenant.ID)
		}
	}
	if err != nil {
		return uuid.Nil, err
	}
	return tenant.ID, nil
}

func (s *Scheduler) persist(ctx context.Context, job *Job) error {
	s.mu.Lock()
	def := model.ScheduledJob{
		ID:              job.ID,
		Name:            job.Name,
		ClientType:      job.ClientType,
		IntervalMinutes: job.IntervalMinutes,
		TenantRef:       job.TenantRef,
		Enabled:         job.Enabled,
	}
	s.mu.Unlock()

	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("failed to encode job config: %w", err)
	}
	def.Config = cfg
	return s.store.SaveJobDefinition(ctx, def)
}

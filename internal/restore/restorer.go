// Package restore implements the EBS snapshot restore engine.
// It resolves instances and snapshots into per-device plans, creates the replacement
// volumes, and swaps them onto the instance between an optional stop and start.
package restore

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/cesarempathy/ebs-restore/internal/aws"
	"github.com/cesarempathy/ebs-restore/internal/logger"
)

// Flags select which stages of a restore run.
type Flags struct {
	// Stop stops the instance and waits for it before swapping.
	Stop bool
	// Start starts the instance after a successful swap.
	Start bool
	// Execute enables mutating calls. Without it a restore only plans.
	Execute bool
}

// Config holds the restore configuration
type Config struct {
	Flags          Flags
	MaxConcurrency int
	WaitTimeout    time.Duration
	RunID          string
}

// Step represents a restore step
type Step int

// Restore step constants representing the state of one instance.
const (
	StepPending Step = iota
	StepPlanning
	StepPlanned
	StepStopping
	StepStopped
	StepCreatingVolumes
	StepSwapping
	StepSwapped
	StepStarting
	StepDone
	StepDryRun
	StepFailed
)

func (s Step) String() string {
	names := []string{
		"Pending",
		"Planning",
		"Planned",
		"Stopping",
		"Stopped",
		"Creating Volumes",
		"Swapping Volumes",
		"Swapped",
		"Starting",
		"Completed",
		"Dry Run",
		"Failed",
	}
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// IsFinal reports whether no further step follows.
func (s Step) IsFinal() bool {
	return s == StepDone || s == StepDryRun || s == StepFailed
}

// InstanceStatus represents the current status of one instance restore
type InstanceStatus struct {
	InstanceID string
	Name       string
	Step       Step
	// FailedStep is the step that was running when Step became StepFailed.
	FailedStep Step
	Progress   int
	Error      error
	StartTime  time.Time
	EndTime    time.Time
	Devices    int
	// CreatedVolumes maps device name to the restored volume.
	CreatedVolumes map[string]string
	SwappedDevices []string
}

// DisplayName returns "name (id)" or just the id.
func (s *InstanceStatus) DisplayName() string {
	if s.Name == "" {
		return s.InstanceID
	}
	return s.Name + " (" + s.InstanceID + ")"
}

// Result is the outcome of one ExecuteRestore call. It is returned even on failure.
type Result struct {
	Instance       aws.Instance
	Plan           *Plan
	DryRun         bool
	Stopped        bool
	Started        bool
	Volumes        []MaterializedVolume
	SwappedDevices []string
	Err            error
}

// Failed reports whether the restore ended with an error.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// Job is one instance and its plan, ready to execute.
type Job struct {
	Instance aws.Instance
	Plan     *Plan
}

// Option configures a Restorer.
type Option func(*Restorer)

// WithMetrics records restore metrics on m instead of the global meter.
func WithMetrics(m *Metrics) Option {
	return func(r *Restorer) {
		r.metrics = m
	}
}

// Restorer runs restores and tracks per-instance status for the UI.
type Restorer struct {
	config   Config
	api      aws.EC2API
	metrics  *Metrics
	statuses map[string]*InstanceStatus
	order    []string
	results  []*Result
	mu       sync.RWMutex
	started  bool
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a new Restorer
func New(config Config, api aws.EC2API, opts ...Option) *Restorer {
	r := &Restorer{
		config:   config,
		api:      api,
		statuses: make(map[string]*InstanceStatus),
		done:     make(chan struct{}),
	}
	if m, err := NewMetrics(nil); err == nil {
		r.metrics = m
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetConfig returns the restore config
func (r *Restorer) GetConfig() Config {
	return r.config
}

// Track registers an instance so it shows up in GetStatuses before any work starts.
func (r *Restorer) Track(inst aws.Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackLocked(inst)
}

func (r *Restorer) trackLocked(inst aws.Instance) *InstanceStatus {
	if s, ok := r.statuses[inst.InstanceID]; ok {
		return s
	}
	s := &InstanceStatus{
		InstanceID:     inst.InstanceID,
		Name:           inst.Name,
		Step:           StepPending,
		CreatedVolumes: make(map[string]string),
	}
	r.statuses[inst.InstanceID] = s
	r.order = append(r.order, inst.InstanceID)
	return s
}

// Order returns tracked instance IDs in the order they were first seen.
func (r *Restorer) Order() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// GetStatuses returns a copy of all instance statuses
func (r *Restorer) GetStatuses() map[string]*InstanceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*InstanceStatus, len(r.statuses))
	for k, v := range r.statuses {
		copyStatus := *v
		copyStatus.CreatedVolumes = make(map[string]string, len(v.CreatedVolumes))
		for dev, vol := range v.CreatedVolumes {
			copyStatus.CreatedVolumes[dev] = vol
		}
		copyStatus.SwappedDevices = slices.Clone(v.SwappedDevices)
		result[k] = &copyStatus
	}
	return result
}

// IsDone returns true once Run has finished every job
func (r *Restorer) IsDone() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when Run returns.
func (r *Restorer) Done() <-chan struct{} {
	return r.done
}

// Running reports whether Run has been entered and has not returned yet.
func (r *Restorer) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.started && !r.IsDone()
}

func (r *Restorer) updateStatus(instanceID string, step Step, progress int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.statuses[instanceID]
	if !ok {
		return
	}
	if err != nil {
		s.FailedStep = s.Step
		s.Error = err
		s.Step = StepFailed
		s.EndTime = time.Now()
		return
	}
	s.Step = step
	s.Progress = progress
	if step.IsFinal() {
		s.EndTime = time.Now()
	}
}

func (r *Restorer) withStatus(instanceID string, fn func(s *InstanceStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.statuses[instanceID]; ok {
		fn(s)
	}
}

// PlanRestore fetches the snapshot catalog of the instance and builds its plan.
func (r *Restorer) PlanRestore(ctx context.Context, inst aws.Instance, selector Selector) (*Plan, error) {
	r.Track(inst)
	r.updateStatus(inst.InstanceID, StepPlanning, 0, nil)

	snapshots, err := SnapshotsForInstance(ctx, r.api, inst)
	if err != nil {
		r.updateStatus(inst.InstanceID, StepFailed, 0, err)
		return nil, err
	}

	plan, err := BuildPlan(inst, snapshots, selector)
	if err != nil {
		re := asError(err)
		logger.FromContext(ctx).Warn("plan failed",
			"instance", inst.InstanceID,
			"kind", string(re.Kind),
			"device", re.Device,
			"snapshot", re.SnapshotID,
			"error", err,
		)
		r.updateStatus(inst.InstanceID, StepFailed, 0, err)
		return nil, err
	}

	r.withStatus(inst.InstanceID, func(s *InstanceStatus) { s.Devices = plan.Len() })
	r.updateStatus(inst.InstanceID, StepPlanned, 10, nil)
	return plan, nil
}

// ExecuteRestore runs a plan against the instance: stop, create volumes, swap, start.
//
// Without flags.Execute no mutating call is made. An empty plan is refused before
// anything else. The instance state is described again before the first mutating call
// and once more before the swap; a running instance is never swapped, and without
// flags.Stop it is refused with KindInstanceRunning. Any stage failure ends the restore
// of this instance and nothing is rolled back. The returned Result is never nil.
func (r *Restorer) ExecuteRestore(ctx context.Context, inst aws.Instance, plan *Plan, flags Flags) (*Result, error) {
	log := logger.FromContext(ctx).With("instance", inst.InstanceID)
	result := &Result{Instance: inst, Plan: plan}

	r.mu.Lock()
	r.trackLocked(inst).StartTime = time.Now()
	r.mu.Unlock()

	fail := func(err error) (*Result, error) {
		result.Err = err
		r.updateStatus(inst.InstanceID, StepFailed, 0, err)
		r.metrics.recordInstance(ctx, "failed")
		re := asError(err)
		log.Error("restore failed",
			"stage", re.Stage.String(),
			"kind", string(re.Kind),
			"device", re.Device,
			"volume", re.VolumeID,
			"snapshot", re.SnapshotID,
			"error", err,
		)
		return result, err
	}

	if plan == nil || plan.Len() == 0 {
		return fail(errNothingToRestore(inst.InstanceID))
	}

	if !flags.Execute {
		result.DryRun = true
		r.updateStatus(inst.InstanceID, StepDryRun, 100, nil)
		r.metrics.recordInstance(ctx, "dry_run")
		log.Info("dry run, no changes made", "devices", plan.Devices())
		return result, nil
	}

	if inst.State != aws.InstanceStateStopped && !flags.Stop {
		return fail(errInstanceRunning(inst.InstanceID, inst.State, StepStopping, "stop was not requested"))
	}

	// The discovered state can be minutes old once the snapshots were picked.
	state, err := r.currentState(ctx, inst.InstanceID, StepStopping)
	if err != nil {
		return fail(err)
	}
	if state != aws.InstanceStateStopped {
		if !flags.Stop {
			return fail(errInstanceRunning(inst.InstanceID, state, StepStopping, "stop was not requested"))
		}
		if err := r.stop(ctx, inst); err != nil {
			return fail(err)
		}
		result.Stopped = true
	}
	r.updateStatus(inst.InstanceID, StepStopped, 25, nil)

	r.updateStatus(inst.InstanceID, StepCreatingVolumes, 40, nil)
	volumes, err := Materialize(ctx, r.api, inst, plan, MaterializeOptions{
		Timeout: r.config.WaitTimeout,
		RunID:   r.config.RunID,
		Metrics: r.metrics,
	})
	result.Volumes = volumes
	r.withStatus(inst.InstanceID, func(s *InstanceStatus) {
		for _, v := range volumes {
			s.CreatedVolumes[v.Device()] = v.VolumeID
		}
	})
	if err != nil {
		return fail(err)
	}

	r.updateStatus(inst.InstanceID, StepSwapping, 60, nil)
	state, err = r.currentState(ctx, inst.InstanceID, StepSwapping)
	if err != nil {
		return fail(err)
	}
	if state != aws.InstanceStateStopped {
		return fail(errInstanceRunning(inst.InstanceID, state, StepSwapping, "it left the stopped state before the swap"))
	}
	swapped, err := Swap(ctx, r.api, plan, volumes)
	result.SwappedDevices = swapped
	r.withStatus(inst.InstanceID, func(s *InstanceStatus) { s.SwappedDevices = slices.Clone(swapped) })
	if err != nil {
		return fail(err)
	}
	r.updateStatus(inst.InstanceID, StepSwapped, 85, nil)

	if flags.Start {
		r.updateStatus(inst.InstanceID, StepStarting, 90, nil)
		if err := r.start(ctx, inst); err != nil {
			return fail(err)
		}
		result.Started = true
	}

	r.updateStatus(inst.InstanceID, StepDone, 100, nil)
	r.metrics.recordInstance(ctx, "success")
	log.Info("restore completed", "devices", swapped, "started", result.Started)
	return result, nil
}

// currentState describes the instance again and returns its state.
func (r *Restorer) currentState(ctx context.Context, instanceID string, stage Step) (string, error) {
	found, err := r.api.DescribeInstances(ctx, aws.InstanceFilter{InstanceIDs: []string{instanceID}})
	if err != nil {
		return "", &Error{Kind: KindUpstream, Stage: stage, InstanceID: instanceID, Message: "describe instance", Err: err}
	}
	inst, ok := lo.Find(found, func(i aws.Instance) bool { return i.InstanceID == instanceID })
	if !ok {
		return "", &Error{Kind: KindNotFound, Stage: stage, InstanceID: instanceID, Message: "instance no longer exists"}
	}
	return inst.State, nil
}

func errInstanceRunning(instanceID, state string, stage Step, reason string) *Error {
	return &Error{
		Kind:       KindInstanceRunning,
		Stage:      stage,
		InstanceID: instanceID,
		Message:    "instance is " + state + " and " + reason,
	}
}

func (r *Restorer) stop(ctx context.Context, inst aws.Instance) error {
	r.updateStatus(inst.InstanceID, StepStopping, 15, nil)
	if err := r.api.StopInstance(ctx, inst.InstanceID); err != nil {
		return &Error{Kind: KindUpstream, Stage: StepStopping, InstanceID: inst.InstanceID, Message: "stop instance", Err: err}
	}
	if err := r.api.WaitForInstanceStopped(ctx, inst.InstanceID, r.waitTimeout()); err != nil {
		return &Error{Kind: waitKind(err), Stage: StepStopping, InstanceID: inst.InstanceID, Message: "waiting for instance to stop", Err: err}
	}
	return nil
}

func (r *Restorer) start(ctx context.Context, inst aws.Instance) error {
	if err := r.api.StartInstance(ctx, inst.InstanceID); err != nil {
		return &Error{Kind: KindUpstream, Stage: StepStarting, InstanceID: inst.InstanceID, Message: "start instance", Err: err}
	}
	if err := r.api.WaitForInstanceRunning(ctx, inst.InstanceID, r.waitTimeout()); err != nil {
		return &Error{Kind: waitKind(err), Stage: StepStarting, InstanceID: inst.InstanceID, Message: "waiting for instance to start", Err: err}
	}
	return nil
}

func (r *Restorer) waitTimeout() time.Duration {
	if r.config.WaitTimeout > 0 {
		return r.config.WaitTimeout
	}
	return aws.DefaultWaitTimeout
}

func waitKind(err error) Kind {
	switch {
	case errors.Is(err, aws.ErrWaitCancelled):
		return KindWaitCancelled
	case errors.Is(err, aws.ErrWaitTimeout):
		return KindTimeout
	default:
		return KindUpstream
	}
}

// Run executes every job with the configured flags, at most MaxConcurrency instances at
// a time. Instances are independent: a failure never stops its siblings. Results are
// index-aligned with jobs.
func (r *Restorer) Run(ctx context.Context, jobs []Job) []*Result {
	r.mu.Lock()
	r.started = true
	for _, job := range jobs {
		r.trackLocked(job.Instance)
	}
	r.mu.Unlock()

	results, _ := MapConcurrent(ctx, jobs, r.config.MaxConcurrency, func(ctx context.Context, job Job) (*Result, error) {
		res, _ := r.ExecuteRestore(ctx, job.Instance, job.Plan, r.config.Flags)
		return res, nil
	})

	r.mu.Lock()
	r.results = results
	r.mu.Unlock()
	r.doneOnce.Do(func() { close(r.done) })

	return results
}

// Results returns the results of the last finished Run, or nil while it is running.
func (r *Restorer) Results() []*Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.results)
}

// HasFailures reports whether any result carries an error.
func HasFailures(results []*Result) bool {
	for _, res := range results {
		if res != nil && res.Failed() {
			return true
		}
	}
	return false
}

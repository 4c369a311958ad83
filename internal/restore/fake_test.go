package restore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cesarempathy/ebs-restore/internal/aws"
)

// call is one recorded EC2API invocation, e.g. {Op: "attach", Args: "i-1 vol-new-snap-1 /dev/sda1"}.
type call struct {
	Op   string
	Args string
}

var mutatingOps = []string{"stop", "start", "create", "detach", "attach"}

// fakeEC2 is an in-memory EC2API that records every call.
type fakeEC2 struct {
	mu    sync.Mutex
	calls []call

	instances []aws.Instance
	volumes   []aws.VolumeInfo
	snapshots []aws.Snapshot

	describeInstancesErr error
	describeVolumesErr   error
	describeSnapshotsErr error
	stopErr              error
	waitStoppedErr       error
	startErr             error
	waitRunningErr       error
	waitAvailableErr     error
	// createErr, detachErr and attachErr fail selected requests.
	createErr func(spec aws.VolumeSpec) error
	detachErr func(device string) error
	attachErr func(device string) error

	// createDelay holds every create request, to make overlap observable.
	createDelay time.Duration
	specs       []aws.VolumeSpec
}

func (f *fakeEC2) record(op string, args ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Op: op, Args: strings.Join(args, " ")})
}

func (f *fakeEC2) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeEC2) Ops() []string {
	calls := f.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

func (f *fakeEC2) MutatingCalls() []call {
	var out []call
	for _, c := range f.Calls() {
		if slices.Contains(mutatingOps, c.Op) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeEC2) CallsOf(op string) []call {
	var out []call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeEC2) Specs() []aws.VolumeSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.specs)
}

func (f *fakeEC2) DescribeInstances(_ context.Context, filter aws.InstanceFilter) ([]aws.Instance, error) {
	f.record("describe-instances", append(slices.Clone(filter.InstanceIDs), filter.Names...)...)
	if f.describeInstancesErr != nil {
		return nil, f.describeInstancesErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []aws.Instance
	for _, inst := range f.instances {
		if slices.Contains(filter.InstanceIDs, inst.InstanceID) {
			out = append(out, inst)
		}
	}
	// Instances matching both an id and a name are returned twice, like two separate queries would.
	for _, inst := range f.instances {
		if inst.Name != "" && slices.Contains(filter.Names, inst.Name) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (f *fakeEC2) DescribeVolumes(_ context.Context, ids []string) ([]aws.VolumeInfo, error) {
	f.record("describe-volumes", ids...)
	if f.describeVolumesErr != nil {
		return nil, f.describeVolumesErr
	}
	var out []aws.VolumeInfo
	for _, v := range f.volumes {
		if slices.Contains(ids, v.VolumeID) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeEC2) DescribeSnapshots(_ context.Context, volumeIDs []string) ([]aws.Snapshot, error) {
	f.record("describe-snapshots", volumeIDs...)
	if f.describeSnapshotsErr != nil {
		return nil, f.describeSnapshotsErr
	}
	return slices.Clone(f.snapshots), nil
}

func (f *fakeEC2) StopInstance(_ context.Context, id string) error {
	f.record("stop", id)
	if f.stopErr != nil {
		return f.stopErr
	}
	f.setState(id, aws.InstanceStateStopped)
	return nil
}

func (f *fakeEC2) WaitForInstanceStopped(_ context.Context, id string, _ time.Duration) error {
	f.record("wait-stopped", id)
	return f.waitStoppedErr
}

func (f *fakeEC2) StartInstance(_ context.Context, id string) error {
	f.record("start", id)
	if f.startErr != nil {
		return f.startErr
	}
	f.setState(id, aws.InstanceStateRunning)
	return nil
}

// setState changes the state DescribeInstances reports for the instance.
func (f *fakeEC2) setState(id, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.instances {
		if f.instances[i].InstanceID == id {
			f.instances[i].State = state
		}
	}
}

func (f *fakeEC2) WaitForInstanceRunning(_ context.Context, id string, _ time.Duration) error {
	f.record("wait-running", id)
	return f.waitRunningErr
}

func (f *fakeEC2) CreateVolume(ctx context.Context, spec aws.VolumeSpec) (string, error) {
	f.record("create", spec.SnapshotID)
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()

	if f.createDelay > 0 {
		select {
		case <-time.After(f.createDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.createErr != nil {
		if err := f.createErr(spec); err != nil {
			return "", err
		}
	}
	return "vol-new-" + spec.SnapshotID, nil
}

func (f *fakeEC2) WaitForVolumesAvailable(_ context.Context, ids []string, _ time.Duration) error {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	f.record("wait-available", sorted...)
	return f.waitAvailableErr
}

func (f *fakeEC2) DetachVolume(_ context.Context, instanceID, volumeID, device string) error {
	f.record("detach", instanceID, device, volumeID)
	if f.detachErr != nil {
		return f.detachErr(device)
	}
	return nil
}

func (f *fakeEC2) AttachVolume(_ context.Context, instanceID, volumeID, device string) error {
	f.record("attach", instanceID, volumeID, device)
	if f.attachErr != nil {
		return f.attachErr(device)
	}
	return nil
}

var _ aws.EC2API = (*fakeEC2)(nil)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// testInstance is i-1 with /dev/sda1 (vol-a, 20 GiB) and /dev/sdb (vol-b, 100 GiB).
func testInstance() aws.Instance {
	return aws.Instance{
		InstanceID:       "i-1",
		Name:             "web",
		State:            aws.InstanceStateRunning,
		AvailabilityZone: "us-east-1a",
		RootDeviceName:   "/dev/sda1",
		Attachments: []aws.Attachment{
			{DeviceName: "/dev/sda1", VolumeID: "vol-a", SizeGiB: 20, VolumeType: "gp3", Iops: 3000, Throughput: 125},
			{DeviceName: "/dev/sdb", VolumeID: "vol-b", SizeGiB: 100, VolumeType: "gp2"},
		},
	}
}

func testSnapshots() []aws.Snapshot {
	return []aws.Snapshot{
		{SnapshotID: "snap-1", VolumeID: "vol-a", SizeGiB: 20, State: aws.SnapshotStateCompleted, StartTime: baseTime},
		{SnapshotID: "snap-2", VolumeID: "vol-b", SizeGiB: 100, State: aws.SnapshotStateCompleted, StartTime: baseTime},
		{SnapshotID: "snap-3", VolumeID: "vol-a", SizeGiB: 20, State: aws.SnapshotStatePending, StartTime: baseTime.Add(time.Hour)},
	}
}

func newFake() *fakeEC2 {
	return &fakeEC2{
		instances: []aws.Instance{testInstance()},
		snapshots: testSnapshots(),
	}
}

// testPlan builds the plan i-1 gets with the newest candidate per device.
func testPlan() *Plan {
	inst := testInstance()
	snaps := testSnapshots()
	return NewPlan(inst, []PlanEntry{
		{Attachment: inst.Attachments[0], Snapshot: snaps[0]},
		{Attachment: inst.Attachments[1], Snapshot: snaps[1]},
	})
}

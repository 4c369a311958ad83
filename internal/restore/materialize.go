package restore

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"

	"github.com/cesarempathy/ebs-restore/internal/aws"
	"github.com/cesarempathy/ebs-restore/internal/logger"
)

// Tags written on every restored volume.
const (
	TagDevice   = "ebs-restore:device"
	TagSnapshot = "ebs-restore:snapshot"
	TagInstance = "ebs-restore:instance"
	TagRunID    = "ebs-restore:run-id"
)

// MaterializedVolume is a volume created from a planned snapshot.
type MaterializedVolume struct {
	VolumeID   string
	SnapshotID string
	SizeGiB    int32
	Tags       map[string]string
}

// Device returns the device the volume was created for, read from its correlation tag.
func (v MaterializedVolume) Device() string {
	return v.Tags[TagDevice]
}

// MaterializeOptions tunes Materialize.
type MaterializeOptions struct {
	// Timeout bounds the wait for all volumes to become available. Zero means aws.DefaultWaitTimeout.
	Timeout time.Duration
	RunID   string
	// Concurrency bounds concurrent create requests. Zero means unbounded.
	Concurrency int
	Metrics     *Metrics
}

// Materialize creates one volume per plan entry in the instance's availability zone and
// waits until all of them are available.
//
// Every create request is issued and awaited even when some fail; any failure yields
// KindPartialCreateFailure listing the volumes that were created, and no wait is started.
// The volumes created so far are returned alongside every error.
func Materialize(ctx context.Context, api aws.EC2API, inst aws.Instance, plan *Plan, opts MaterializeOptions) ([]MaterializedVolume, error) {
	log := logger.FromContext(ctx)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = aws.DefaultWaitTimeout
	}
	start := time.Now()

	entries := plan.Entries()
	if len(entries) == 0 {
		return nil, nil
	}
	created, createErr := MapConcurrent(ctx, entries, opts.Concurrency, func(ctx context.Context, e PlanEntry) (MaterializedVolume, error) {
		spec := volumeSpec(inst, e, opts.RunID)
		id, err := api.CreateVolume(ctx, spec)
		if err != nil {
			log.Error("create volume failed",
				"instance", inst.InstanceID, "device", e.Device(), "snapshot", e.SnapshotID(), "error", err)
			return MaterializedVolume{}, &Error{
				Kind:       KindUpstream,
				Stage:      StepCreatingVolumes,
				InstanceID: inst.InstanceID,
				Device:     e.Device(),
				SnapshotID: e.SnapshotID(),
				Message:    "create volume",
				Err:        err,
			}
		}
		log.Info("created volume",
			"instance", inst.InstanceID, "device", e.Device(), "snapshot", e.SnapshotID(), "volume", id)
		return MaterializedVolume{
			VolumeID:   id,
			SnapshotID: e.SnapshotID(),
			SizeGiB:    e.Snapshot.SizeGiB,
			Tags:       spec.Tags,
		}, nil
	})

	volumes := lo.Filter(created, func(v MaterializedVolume, _ int) bool { return v.VolumeID != "" })
	volumeIDs := lo.Map(volumes, func(v MaterializedVolume, _ int) string { return v.VolumeID })

	if createErr != nil {
		opts.Metrics.recordVolumeCreate(ctx, start, "failed")
		first := asError(createErr)
		return volumes, &Error{
			Kind:       KindPartialCreateFailure,
			Stage:      StepCreatingVolumes,
			InstanceID: inst.InstanceID,
			Device:     first.Device,
			SnapshotID: first.SnapshotID,
			VolumeIDs:  volumeIDs,
			Message:    "not every volume could be created",
			Err:        createErr,
		}
	}

	if err := api.WaitForVolumesAvailable(ctx, volumeIDs, timeout); err != nil {
		opts.Metrics.recordVolumeCreate(ctx, start, "failed")
		kind := KindVolumeNotAvailable
		if errors.Is(err, aws.ErrWaitCancelled) {
			kind = KindWaitCancelled
		}
		return volumes, &Error{
			Kind:       kind,
			Stage:      StepCreatingVolumes,
			InstanceID: inst.InstanceID,
			VolumeIDs:  volumeIDs,
			Message:    "waiting for volumes to become available",
			Err:        err,
		}
	}

	opts.Metrics.recordVolumeCreate(ctx, start, "success")
	log.Info("volumes available", "instance", inst.InstanceID, "volumes", volumeIDs)
	return volumes, nil
}

func volumeSpec(inst aws.Instance, e PlanEntry, runID string) aws.VolumeSpec {
	tags := map[string]string{
		TagDevice:   e.Device(),
		TagSnapshot: e.SnapshotID(),
		TagInstance: inst.InstanceID,
	}
	if runID != "" {
		tags[TagRunID] = runID
	}
	if inst.Name != "" {
		tags[aws.NameTag] = inst.Name + " " + e.Device()
	}

	return aws.VolumeSpec{
		SnapshotID:       e.SnapshotID(),
		AvailabilityZone: inst.AvailabilityZone,
		VolumeType:       e.Attachment.VolumeType,
		Iops:             e.Attachment.Iops,
		Throughput:       e.Attachment.Throughput,
		Tags:             tags,
	}
}

package restore

import (
	"context"

	"github.com/cesarempathy/ebs-restore/internal/aws"
	"github.com/cesarempathy/ebs-restore/internal/logger"
)

// SnapshotsForInstance returns every snapshot of the instance's EBS volumes, in any state.
// Devices without an EBS volume are ignored.
func SnapshotsForInstance(ctx context.Context, api aws.EC2API, inst aws.Instance) ([]aws.Snapshot, error) {
	volumeIDs := ebsVolumeIDs(inst)
	if len(volumeIDs) == 0 {
		return nil, nil
	}

	snapshots, err := api.DescribeSnapshots(ctx, volumeIDs)
	if err != nil {
		return nil, &Error{
			Kind:       KindUpstream,
			Stage:      StepPlanning,
			InstanceID: inst.InstanceID,
			Message:    "describe snapshots",
			Err:        err,
		}
	}

	logger.FromContext(ctx).Debug("fetched snapshot catalog",
		"instance", inst.InstanceID, "volumes", len(volumeIDs), "snapshots", len(snapshots))
	return snapshots, nil
}

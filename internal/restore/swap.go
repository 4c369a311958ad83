package restore

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"github.com/cesarempathy/ebs-restore/internal/aws"
	"github.com/cesarempathy/ebs-restore/internal/logger"
)

// Swap replaces the original volume of every planned device with the materialized volume
// tagged for the same device, one device at a time in plan order. The volume detached
// from each device is the one recorded in the plan.
//
// Correlation is checked for all devices before anything is detached. A failed detach or
// attach stops the swap; nothing is rolled back and the devices swapped so far are
// returned with the error. Original volumes are left detached, never deleted.
func Swap(ctx context.Context, api aws.EC2API, plan *Plan, volumes []MaterializedVolume) ([]string, error) {
	log := logger.FromContext(ctx)
	instanceID := plan.Instance().InstanceID
	byDevice := lo.KeyBy(volumes, func(v MaterializedVolume) string { return v.Device() })

	devices := plan.Devices()
	for _, device := range devices {
		if _, ok := byDevice[device]; !ok {
			source, _ := plan.SourceVolume(device)
			return nil, &Error{
				Kind:       KindCorrelationMissing,
				Stage:      StepSwapping,
				InstanceID: instanceID,
				Device:     device,
				VolumeID:   source,
				Message:    "no restored volume is tagged for this device",
			}
		}
	}

	swapped := make([]string, 0, len(devices))
	for _, device := range devices {
		vol := byDevice[device]
		source, _ := plan.SourceVolume(device)

		if err := api.DetachVolume(ctx, instanceID, source, device); err != nil {
			log.Error("detach volume failed",
				"instance", instanceID, "device", device, "volume", source, "error", err)
			return swapped, &Error{
				Kind:       swapKind(err, KindDetachFailed),
				Stage:      StepSwapping,
				InstanceID: instanceID,
				Device:     device,
				VolumeID:   source,
				Message:    "detach original volume",
				Err:        err,
			}
		}
		log.Info("detached volume", "instance", instanceID, "device", device, "volume", source)

		if err := api.AttachVolume(ctx, instanceID, vol.VolumeID, device); err != nil {
			log.Error("attach volume failed",
				"instance", instanceID, "device", device, "volume", vol.VolumeID,
				"snapshot", vol.SnapshotID, "error", err)
			return swapped, &Error{
				Kind:       swapKind(err, KindAttachFailed),
				Stage:      StepSwapping,
				InstanceID: instanceID,
				Device:     device,
				VolumeID:   vol.VolumeID,
				SnapshotID: vol.SnapshotID,
				Message:    "attach restored volume",
				Err:        err,
			}
		}
		log.Info("attached volume", "instance", instanceID, "device", device, "volume", vol.VolumeID)

		swapped = append(swapped, device)
	}

	return swapped, nil
}

// swapKind reports an interrupted settle wait as KindWaitCancelled since the
// attachment state is unknown at that point.
func swapKind(err error, fallback Kind) Kind {
	if errors.Is(err, aws.ErrWaitCancelled) {
		return KindWaitCancelled
	}
	return fallback
}

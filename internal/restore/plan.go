package restore

import (
	"errors"
	"slices"

	"github.com/samber/lo"

	"github.com/cesarempathy/ebs-restore/internal/aws"
)

// PlanEntry pairs one device with the snapshot chosen for it.
type PlanEntry struct {
	Attachment aws.Attachment
	Snapshot   aws.Snapshot
}

// Device returns the device name the entry restores.
func (e PlanEntry) Device() string { return e.Attachment.DeviceName }

// SourceVolumeID returns the volume currently attached to the device.
func (e PlanEntry) SourceVolumeID() string { return e.Attachment.VolumeID }

// SnapshotID returns the chosen snapshot.
func (e PlanEntry) SnapshotID() string { return e.Snapshot.SnapshotID }

// Plan is the immutable device to snapshot mapping for one instance.
type Plan struct {
	instance aws.Instance
	entries  []PlanEntry
	sources  map[string]string
}

// NewPlan builds a plan from entries in attachment order.
func NewPlan(inst aws.Instance, entries []PlanEntry) *Plan {
	sources := make(map[string]string, len(entries))
	for _, e := range entries {
		sources[e.Device()] = e.SourceVolumeID()
	}
	return &Plan{
		instance: inst,
		entries:  slices.Clone(entries),
		sources:  sources,
	}
}

// Instance returns the instance the plan was built for.
func (p *Plan) Instance() aws.Instance { return p.instance }

// Entries returns a copy of the plan entries in attachment order.
func (p *Plan) Entries() []PlanEntry { return slices.Clone(p.entries) }

// Len returns the number of planned devices.
func (p *Plan) Len() int { return len(p.entries) }

// Devices returns the planned device names in attachment order.
func (p *Plan) Devices() []string {
	return lo.Map(p.entries, func(e PlanEntry, _ int) string { return e.Device() })
}

// SourceVolume returns the original volume of a planned device.
func (p *Plan) SourceVolume(device string) (string, bool) {
	id, ok := p.sources[device]
	return id, ok
}

// Candidates returns the completed snapshots whose size equals sizeGiB, in input order.
func Candidates(snapshots []aws.Snapshot, sizeGiB int32) []aws.Snapshot {
	return lo.Filter(snapshots, func(s aws.Snapshot, _ int) bool {
		return s.State == aws.SnapshotStateCompleted && s.SizeGiB == sizeGiB
	})
}

// BuildPlan resolves one snapshot per EBS device of the instance. Devices are visited
// in attachment order and the first device without candidates, or the first aborted
// selection, fails the whole plan. An instance without EBS devices has nothing to
// restore and fails with KindNoCandidateSnapshot.
func BuildPlan(inst aws.Instance, snapshots []aws.Snapshot, selector Selector) (*Plan, error) {
	attachments := ebsAttachments(inst)
	if len(attachments) == 0 {
		return nil, errNothingToRestore(inst.InstanceID)
	}
	entries := make([]PlanEntry, 0, len(attachments))

	for _, att := range attachments {
		candidates := Candidates(snapshots, att.SizeGiB)
		if len(candidates) == 0 {
			return nil, &Error{
				Kind:       KindNoCandidateSnapshot,
				Stage:      StepPlanning,
				InstanceID: inst.InstanceID,
				Device:     att.DeviceName,
				VolumeID:   att.VolumeID,
				Message:    "no completed snapshot matches the volume size",
			}
		}

		chosen, err := selector.Select(inst, att, SortNewestFirst(candidates))
		if err != nil {
			msg := "selection failed"
			if errors.Is(err, ErrSelectionAborted) {
				msg = "operator aborted"
			}
			return nil, &Error{
				Kind:       KindSelectionAborted,
				Stage:      StepPlanning,
				InstanceID: inst.InstanceID,
				Device:     att.DeviceName,
				VolumeID:   att.VolumeID,
				Message:    msg,
				Err:        err,
			}
		}

		if !lo.ContainsBy(candidates, func(s aws.Snapshot) bool { return s.SnapshotID == chosen.SnapshotID }) {
			return nil, &Error{
				Kind:       KindSelectionAborted,
				Stage:      StepPlanning,
				InstanceID: inst.InstanceID,
				Device:     att.DeviceName,
				SnapshotID: chosen.SnapshotID,
				Message:    "selected snapshot is not a candidate for this device",
			}
		}

		entries = append(entries, PlanEntry{Attachment: att, Snapshot: chosen})
	}

	return NewPlan(inst, entries), nil
}

func errNothingToRestore(instanceID string) *Error {
	return &Error{
		Kind:       KindNoCandidateSnapshot,
		Stage:      StepPlanning,
		InstanceID: instanceID,
		Message:    "instance has no EBS volumes to restore",
	}
}

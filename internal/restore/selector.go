package restore

import (
	"errors"
	"slices"

	"github.com/cesarempathy/ebs-restore/internal/aws"
)

// ErrSelectionAborted is returned by a Selector when the operator declines to choose.
var ErrSelectionAborted = errors.New("snapshot selection aborted")

// Selector chooses the snapshot to restore onto one device.
// Candidates are never empty and are ordered newest first.
type Selector interface {
	Select(inst aws.Instance, att aws.Attachment, candidates []aws.Snapshot) (aws.Snapshot, error)
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(inst aws.Instance, att aws.Attachment, candidates []aws.Snapshot) (aws.Snapshot, error)

// Select calls f.
func (f SelectorFunc) Select(inst aws.Instance, att aws.Attachment, candidates []aws.Snapshot) (aws.Snapshot, error) {
	return f(inst, att, candidates)
}

// LatestSelector picks the most recent candidate without asking.
type LatestSelector struct{}

// Select returns the newest candidate.
func (LatestSelector) Select(_ aws.Instance, _ aws.Attachment, candidates []aws.Snapshot) (aws.Snapshot, error) {
	if len(candidates) == 0 {
		return aws.Snapshot{}, ErrSelectionAborted
	}
	return SortNewestFirst(candidates)[0], nil
}

// SortNewestFirst returns a copy of snapshots ordered by start time, newest first.
// Ties keep their original order.
func SortNewestFirst(snapshots []aws.Snapshot) []aws.Snapshot {
	sorted := slices.Clone(snapshots)
	slices.SortStableFunc(sorted, func(a, b aws.Snapshot) int {
		return b.StartTime.Compare(a.StartTime)
	})
	return sorted
}

package restore

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies restore failures so callers can branch on them.
type Kind string

// Error kinds
const (
	// KindNotFound is returned when no instance matches the search criteria
	KindNotFound Kind = "not_found"

	// KindNoCandidateSnapshot is returned when a device has no eligible snapshot
	KindNoCandidateSnapshot Kind = "no_candidate_snapshot"

	// KindSelectionAborted is returned when the operator declines to choose a snapshot
	KindSelectionAborted Kind = "selection_aborted"

	// KindUpstream is returned for failed EC2 calls without a more specific kind
	KindUpstream Kind = "upstream_error"

	// KindPartialCreateFailure is returned when at least one volume could not be created
	KindPartialCreateFailure Kind = "partial_create_failure"

	// KindVolumeNotAvailable is returned when created volumes never became available
	KindVolumeNotAvailable Kind = "volume_not_available"

	KindDetachFailed Kind = "detach_failed"
	KindAttachFailed Kind = "attach_failed"

	// KindCorrelationMissing means a planned device has no materialized volume
	KindCorrelationMissing Kind = "correlation_missing"

	// KindWaitCancelled means a wait was interrupted and the remote state is unknown
	KindWaitCancelled Kind = "wait_cancelled"

	KindTimeout Kind = "timeout"

	// KindInstanceRunning is returned when a swap would run against a running instance
	KindInstanceRunning Kind = "instance_running"
)

// Error is a restore failure with enough context to resume by hand.
type Error struct {
	Kind       Kind
	Stage      Step
	InstanceID string
	Device     string
	VolumeID   string
	SnapshotID string
	// VolumeIDs lists volumes that were created before a partial create failure.
	VolumeIDs []string
	Message   string
	Err       error
}

// Error returns a formatted error message
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}

	var ctx []string
	if e.InstanceID != "" {
		ctx = append(ctx, "instance "+e.InstanceID)
	}
	if e.Stage != StepPending {
		ctx = append(ctx, "stage "+e.Stage.String())
	}
	if e.Device != "" {
		ctx = append(ctx, "device "+e.Device)
	}
	if e.VolumeID != "" {
		ctx = append(ctx, "volume "+e.VolumeID)
	}
	if e.SnapshotID != "" {
		ctx = append(ctx, "snapshot "+e.SnapshotID)
	}
	if len(e.VolumeIDs) > 0 {
		ctx = append(ctx, "created "+strings.Join(e.VolumeIDs, ","))
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(ctx, ", "))
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var restoreErr *Error
	if errors.As(err, &restoreErr) {
		return restoreErr.Kind
	}
	return ""
}

// IsKind checks if an error belongs to a specific kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// asError returns err as *Error, wrapping foreign errors as KindUpstream.
func asError(err error) *Error {
	var restoreErr *Error
	if errors.As(err, &restoreErr) {
		return restoreErr
	}
	return &Error{Kind: KindUpstream, Err: err}
}

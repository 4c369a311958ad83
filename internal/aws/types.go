package aws

import (
	"time"
)

// NameTag is the tag key EC2 uses for human readable names.
const NameTag = "Name"

// Instance is the subset of an EC2 instance description the restore engine needs.
type Instance struct {
	InstanceID       string
	Name             string
	State            string
	AvailabilityZone string
	RootDeviceName   string
	Attachments      []Attachment
}

// DisplayName returns "name (id)" or just the id when the instance has no Name tag.
func (i Instance) DisplayName() string {
	if i.Name == "" {
		return i.InstanceID
	}
	return i.Name + " (" + i.InstanceID + ")"
}

// IsRunning reports whether the instance is pending or running.
func (i Instance) IsRunning() bool {
	return i.State == InstanceStateRunning || i.State == InstanceStatePending
}

// Instance state names as reported by EC2.
const (
	InstanceStatePending  = "pending"
	InstanceStateRunning  = "running"
	InstanceStateStopping = "stopping"
	InstanceStateStopped  = "stopped"
)

// Attachment is one block device mapping of an instance.
// VolumeID is empty for devices that are not EBS backed.
type Attachment struct {
	DeviceName          string
	VolumeID            string
	SizeGiB             int32
	VolumeType          string
	Iops                int32
	Throughput          int32
	DeleteOnTermination bool
}

// IsEBS reports whether the device is backed by an EBS volume.
func (a Attachment) IsEBS() bool {
	return a.VolumeID != ""
}

// VolumeInfo contains information about an EBS volume
type VolumeInfo struct {
	VolumeID         string
	AvailabilityZone string
	State            string
	SizeGiB          int32
	VolumeType       string
	Iops             int32
	Throughput       int32
	Tags             map[string]string
}

// SnapshotState is the completion state of a snapshot.
type SnapshotState string

// Snapshot states as reported by EC2.
const (
	SnapshotStatePending   SnapshotState = "pending"
	SnapshotStateCompleted SnapshotState = "completed"
	SnapshotStateError     SnapshotState = "error"
)

// Snapshot describes an EBS snapshot.
type Snapshot struct {
	SnapshotID  string
	VolumeID    string
	SizeGiB     int32
	State       SnapshotState
	StartTime   time.Time
	Progress    string
	Name        string
	Description string
}

// VolumeSpec describes a volume to create from a snapshot.
type VolumeSpec struct {
	SnapshotID       string
	AvailabilityZone string
	VolumeType       string
	Iops             int32
	Throughput       int32
	Tags             map[string]string
}

// InstanceFilter selects instances either by ID or by Name tag value.
type InstanceFilter struct {
	InstanceIDs []string
	Names       []string
}

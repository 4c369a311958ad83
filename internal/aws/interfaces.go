// Package aws provides AWS EC2 client functionality for instance, volume and snapshot operations.
package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// EC2API defines the EC2 operations used by the restore engine.
// This interface enables mocking for unit tests.
type EC2API interface {
	// DescribeInstances returns the instances matching the filter, with their block device mappings.
	DescribeInstances(ctx context.Context, filter InstanceFilter) ([]Instance, error)

	// DescribeVolumes returns detailed information about the given volumes.
	DescribeVolumes(ctx context.Context, volumeIDs []string) ([]VolumeInfo, error)

	// DescribeSnapshots returns every snapshot taken from any of the given volumes.
	DescribeSnapshots(ctx context.Context, volumeIDs []string) ([]Snapshot, error)

	// StopInstance requests an instance stop.
	StopInstance(ctx context.Context, instanceID string) error

	// WaitForInstanceStopped waits until the instance is stopped.
	WaitForInstanceStopped(ctx context.Context, instanceID string, timeout time.Duration) error

	// StartInstance requests an instance start.
	StartInstance(ctx context.Context, instanceID string) error

	// WaitForInstanceRunning waits until the instance is running and its status checks pass.
	WaitForInstanceRunning(ctx context.Context, instanceID string, timeout time.Duration) error

	// CreateVolume creates a new EBS volume from a snapshot and returns its ID.
	CreateVolume(ctx context.Context, spec VolumeSpec) (string, error)

	// WaitForVolumesAvailable waits for all volumes to be available.
	WaitForVolumesAvailable(ctx context.Context, volumeIDs []string, timeout time.Duration) error

	// DetachVolume detaches a volume from an instance device and waits until it is detached.
	DetachVolume(ctx context.Context, instanceID, volumeID, device string) error

	// AttachVolume attaches a volume to an instance device and waits until it is in use.
	AttachVolume(ctx context.Context, instanceID, volumeID, device string) error
}

// ec2ClientAPI is the subset of the SDK client the Client relies on.
type ec2ClientAPI interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeInstanceStatus(ctx context.Context, params *ec2.DescribeInstanceStatusInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceStatusOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	CreateVolume(ctx context.Context, params *ec2.CreateVolumeInput, optFns ...func(*ec2.Options)) (*ec2.CreateVolumeOutput, error)
	DetachVolume(ctx context.Context, params *ec2.DetachVolumeInput, optFns ...func(*ec2.Options)) (*ec2.DetachVolumeOutput, error)
	AttachVolume(ctx context.Context, params *ec2.AttachVolumeInput, optFns ...func(*ec2.Options)) (*ec2.AttachVolumeOutput, error)
}

// Ensure Client implements EC2API
var _ EC2API = (*Client)(nil)

package aws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// DefaultWaitTimeout bounds every wait for a remote state change.
const DefaultWaitTimeout = time.Hour

// Wait failures. Waiter errors are wrapped with one of these so callers can tell
// an expired wait from an interrupted one.
var (
	ErrWaitTimeout   = errors.New("timed out waiting for resource state")
	ErrWaitCancelled = errors.New("wait cancelled before resource state was reached")
)

// Options configures the EC2 client.
type Options struct {
	Profile     string
	Region      string
	EndpointURL string
	// WaitTimeout bounds the settle waits performed by DetachVolume and AttachVolume.
	WaitTimeout time.Duration
}

// Client wraps the AWS EC2 client
type Client struct {
	ec2         ec2ClientAPI
	waitTimeout time.Duration
}

// NewEC2Client creates a new AWS EC2 client
func NewEC2Client(ctx context.Context, opts Options) (*Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := ec2.NewFromConfig(cfg, func(o *ec2.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
	})

	c := NewEC2ClientWithInterface(client)
	if opts.WaitTimeout > 0 {
		c.waitTimeout = opts.WaitTimeout
	}
	return c, nil
}

// NewEC2ClientWithInterface creates a Client around any implementation of the SDK calls it uses.
func NewEC2ClientWithInterface(api ec2ClientAPI) *Client {
	return &Client{ec2: api, waitTimeout: DefaultWaitTimeout}
}

// DescribeInstances returns all non-terminated instances matching the filter.
// IDs and names are queried separately and merged by instance ID.
func (c *Client) DescribeInstances(ctx context.Context, filter InstanceFilter) ([]Instance, error) {
	var queries [][]ec2types.Filter
	if len(filter.InstanceIDs) > 0 {
		queries = append(queries, []ec2types.Filter{{Name: aws.String("instance-id"), Values: filter.InstanceIDs}})
	}
	if len(filter.Names) > 0 {
		queries = append(queries, []ec2types.Filter{{Name: aws.String("tag:" + NameTag), Values: filter.Names}})
	}

	var instances []Instance
	seen := make(map[string]bool)
	for _, filters := range queries {
		filters = append(filters, ec2types.Filter{
			Name:   aws.String("instance-state-name"),
			Values: []string{InstanceStatePending, InstanceStateRunning, InstanceStateStopping, InstanceStateStopped},
		})

		paginator := ec2.NewDescribeInstancesPaginator(c.ec2, &ec2.DescribeInstancesInput{Filters: filters})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			for _, reservation := range page.Reservations {
				for _, inst := range reservation.Instances {
					id := aws.ToString(inst.InstanceId)
					if seen[id] {
						continue
					}
					seen[id] = true
					instances = append(instances, convertInstance(inst))
				}
			}
		}
	}

	return instances, nil
}

// DescribeVolumes returns detailed information about the given volumes
func (c *Client) DescribeVolumes(ctx context.Context, volumeIDs []string) ([]VolumeInfo, error) {
	if len(volumeIDs) == 0 {
		return nil, nil
	}

	result, err := c.ec2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: volumeIDs,
	})
	if err != nil {
		return nil, err
	}

	volumes := make([]VolumeInfo, 0, len(result.Volumes))
	for _, vol := range result.Volumes {
		volumes = append(volumes, VolumeInfo{
			VolumeID:         aws.ToString(vol.VolumeId),
			AvailabilityZone: aws.ToString(vol.AvailabilityZone),
			State:            string(vol.State),
			SizeGiB:          aws.ToInt32(vol.Size),
			VolumeType:       string(vol.VolumeType),
			Iops:             aws.ToInt32(vol.Iops),
			Throughput:       aws.ToInt32(vol.Throughput),
			Tags:             convertTags(vol.Tags),
		})
	}
	return volumes, nil
}

// DescribeSnapshots returns all snapshots taken from the given volumes, in any state.
func (c *Client) DescribeSnapshots(ctx context.Context, volumeIDs []string) ([]Snapshot, error) {
	if len(volumeIDs) == 0 {
		return nil, nil
	}

	paginator := ec2.NewDescribeSnapshotsPaginator(c.ec2, &ec2.DescribeSnapshotsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("volume-id"), Values: volumeIDs},
		},
	})

	var snapshots []Snapshot
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, snap := range page.Snapshots {
			tags := convertTags(snap.Tags)
			snapshots = append(snapshots, Snapshot{
				SnapshotID:  aws.ToString(snap.SnapshotId),
				VolumeID:    aws.ToString(snap.VolumeId),
				SizeGiB:     aws.ToInt32(snap.VolumeSize),
				State:       SnapshotState(snap.State),
				StartTime:   aws.ToTime(snap.StartTime),
				Progress:    aws.ToString(snap.Progress),
				Name:        tags[NameTag],
				Description: aws.ToString(snap.Description),
			})
		}
	}
	return snapshots, nil
}

// StopInstance requests an instance stop
func (c *Client) StopInstance(ctx context.Context, instanceID string) error {
	_, err := c.ec2.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{instanceID},
	})
	return err
}

// WaitForInstanceStopped waits for an instance to reach the stopped state
func (c *Client) WaitForInstanceStopped(ctx context.Context, instanceID string, timeout time.Duration) error {
	waiter := ec2.NewInstanceStoppedWaiter(c.ec2)
	err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	}, timeout)
	return classifyWaitErr(ctx, err)
}

// StartInstance requests an instance start
func (c *Client) StartInstance(ctx context.Context, instanceID string) error {
	_, err := c.ec2.StartInstances(ctx, &ec2.StartInstancesInput{
		InstanceIds: []string{instanceID},
	})
	return err
}

// WaitForInstanceRunning waits for an instance to pass its status checks
func (c *Client) WaitForInstanceRunning(ctx context.Context, instanceID string, timeout time.Duration) error {
	waiter := ec2.NewInstanceStatusOkWaiter(c.ec2)
	err := waiter.Wait(ctx, &ec2.DescribeInstanceStatusInput{
		InstanceIds: []string{instanceID},
	}, timeout)
	return classifyWaitErr(ctx, err)
}

// CreateVolume creates a new EBS volume from a snapshot
func (c *Client) CreateVolume(ctx context.Context, spec VolumeSpec) (string, error) {
	input := &ec2.CreateVolumeInput{
		AvailabilityZone: aws.String(spec.AvailabilityZone),
		SnapshotId:       aws.String(spec.SnapshotID),
	}

	if spec.VolumeType != "" {
		input.VolumeType = ec2types.VolumeType(spec.VolumeType)
	}
	switch input.VolumeType {
	case ec2types.VolumeTypeIo1, ec2types.VolumeTypeIo2:
		if spec.Iops > 0 {
			input.Iops = aws.Int32(spec.Iops)
		}
	case ec2types.VolumeTypeGp3:
		if spec.Iops > 0 {
			input.Iops = aws.Int32(spec.Iops)
		}
		if spec.Throughput > 0 {
			input.Throughput = aws.Int32(spec.Throughput)
		}
	}

	if len(spec.Tags) > 0 {
		input.TagSpecifications = []ec2types.TagSpecification{
			{
				ResourceType: ec2types.ResourceTypeVolume,
				Tags:         toEC2Tags(spec.Tags),
			},
		}
	}

	result, err := c.ec2.CreateVolume(ctx, input)
	if err != nil {
		return "", err
	}
	if result.VolumeId == nil {
		return "", fmt.Errorf("create volume from %s returned no volume id", spec.SnapshotID)
	}

	return *result.VolumeId, nil
}

// WaitForVolumesAvailable waits for every volume to be available. An empty id list
// returns immediately; DescribeVolumes without ids would cover the whole region.
func (c *Client) WaitForVolumesAvailable(ctx context.Context, volumeIDs []string, timeout time.Duration) error {
	if len(volumeIDs) == 0 {
		return nil
	}
	waiter := ec2.NewVolumeAvailableWaiter(c.ec2)
	err := waiter.Wait(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: volumeIDs,
	}, timeout)
	return classifyWaitErr(ctx, err)
}

// DetachVolume detaches a volume and waits for it to become available again
func (c *Client) DetachVolume(ctx context.Context, instanceID, volumeID, device string) error {
	_, err := c.ec2.DetachVolume(ctx, &ec2.DetachVolumeInput{
		VolumeId:   aws.String(volumeID),
		InstanceId: aws.String(instanceID),
		Device:     aws.String(device),
	})
	if err != nil {
		return err
	}

	waiter := ec2.NewVolumeAvailableWaiter(c.ec2)
	err = waiter.Wait(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: []string{volumeID},
	}, c.waitTimeout)
	return classifyWaitErr(ctx, err)
}

// AttachVolume attaches a volume to a device and waits for it to be in use
func (c *Client) AttachVolume(ctx context.Context, instanceID, volumeID, device string) error {
	_, err := c.ec2.AttachVolume(ctx, &ec2.AttachVolumeInput{
		VolumeId:   aws.String(volumeID),
		InstanceId: aws.String(instanceID),
		Device:     aws.String(device),
	})
	if err != nil {
		return err
	}

	waiter := ec2.NewVolumeInUseWaiter(c.ec2)
	err = waiter.Wait(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: []string{volumeID},
	}, c.waitTimeout)
	return classifyWaitErr(ctx, err)
}

// classifyWaitErr wraps waiter errors with ErrWaitCancelled or ErrWaitTimeout.
func classifyWaitErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrWaitCancelled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "exceeded max wait time") {
		return fmt.Errorf("%w: %w", ErrWaitTimeout, err)
	}
	return err
}

func convertInstance(inst ec2types.Instance) Instance {
	tags := convertTags(inst.Tags)
	result := Instance{
		InstanceID:     aws.ToString(inst.InstanceId),
		Name:           tags[NameTag],
		RootDeviceName: aws.ToString(inst.RootDeviceName),
	}
	if inst.State != nil {
		result.State = string(inst.State.Name)
	}
	if inst.Placement != nil {
		result.AvailabilityZone = aws.ToString(inst.Placement.AvailabilityZone)
	}

	for _, mapping := range inst.BlockDeviceMappings {
		att := Attachment{DeviceName: aws.ToString(mapping.DeviceName)}
		if mapping.Ebs != nil {
			att.VolumeID = aws.ToString(mapping.Ebs.VolumeId)
			att.DeleteOnTermination = aws.ToBool(mapping.Ebs.DeleteOnTermination)
		}
		result.Attachments = append(result.Attachments, att)
	}
	return result
}

// convertTags converts AWS SDK tags to a map
func convertTags(tags []ec2types.Tag) map[string]string {
	result := make(map[string]string, len(tags))
	for _, tag := range tags {
		if tag.Key != nil {
			result[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}
	}
	return result
}

// toEC2Tags converts a map into SDK tags, ordered by key so requests are deterministic.
func toEC2Tags(tags map[string]string) []ec2types.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]ec2types.Tag, 0, len(keys))
	for _, k := range keys {
		result = append(result, ec2types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return result
}

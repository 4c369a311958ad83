package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEC2API implements the ec2ClientAPI interface for testing
type mockEC2API struct {
	describeInstancesFunc      func(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	describeInstanceStatusFunc func(ctx context.Context, params *ec2.DescribeInstanceStatusInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceStatusOutput, error)
	describeVolumesFunc        func(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	describeSnapshotsFunc      func(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	stopInstancesFunc          func(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	startInstancesFunc         func(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	createVolumeFunc           func(ctx context.Context, params *ec2.CreateVolumeInput, optFns ...func(*ec2.Options)) (*ec2.CreateVolumeOutput, error)
	detachVolumeFunc           func(ctx context.Context, params *ec2.DetachVolumeInput, optFns ...func(*ec2.Options)) (*ec2.DetachVolumeOutput, error)
	attachVolumeFunc           func(ctx context.Context, params *ec2.AttachVolumeInput, optFns ...func(*ec2.Options)) (*ec2.AttachVolumeOutput, error)
}

func (m *mockEC2API) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if m.describeInstancesFunc != nil {
		return m.describeInstancesFunc(ctx, params, optFns...)
	}
	return nil, errors.New("DescribeInstances not implemented")
}

func (m *mockEC2API) DescribeInstanceStatus(ctx context.Context, params *ec2.DescribeInstanceStatusInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceStatusOutput, error) {
	if m.describeInstanceStatusFunc != nil {
		return m.describeInstanceStatusFunc(ctx, params, optFns...)
	}
	return nil, errors.New("DescribeInstanceStatus not implemented")
}

func (m *mockEC2API) DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	if m.describeVolumesFunc != nil {
		return m.describeVolumesFunc(ctx, params, optFns...)
	}
	return nil, errors.New("DescribeVolumes not implemented")
}

func (m *mockEC2API) DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error) {
	if m.describeSnapshotsFunc != nil {
		return m.describeSnapshotsFunc(ctx, params, optFns...)
	}
	return nil, errors.New("DescribeSnapshots not implemented")
}

func (m *mockEC2API) StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	if m.stopInstancesFunc != nil {
		return m.stopInstancesFunc(ctx, params, optFns...)
	}
	return nil, errors.New("StopInstances not implemented")
}

func (m *mockEC2API) StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	if m.startInstancesFunc != nil {
		return m.startInstancesFunc(ctx, params, optFns...)
	}
	return nil, errors.New("StartInstances not implemented")
}

func (m *mockEC2API) CreateVolume(ctx context.Context, params *ec2.CreateVolumeInput, optFns ...func(*ec2.Options)) (*ec2.CreateVolumeOutput, error) {
	if m.createVolumeFunc != nil {
		return m.createVolumeFunc(ctx, params, optFns...)
	}
	return nil, errors.New("CreateVolume not implemented")
}

func (m *mockEC2API) DetachVolume(ctx context.Context, params *ec2.DetachVolumeInput, optFns ...func(*ec2.Options)) (*ec2.DetachVolumeOutput, error) {
	if m.detachVolumeFunc != nil {
		return m.detachVolumeFunc(ctx, params, optFns...)
	}
	return nil, errors.New("DetachVolume not implemented")
}

func (m *mockEC2API) AttachVolume(ctx context.Context, params *ec2.AttachVolumeInput, optFns ...func(*ec2.Options)) (*ec2.AttachVolumeOutput, error) {
	if m.attachVolumeFunc != nil {
		return m.attachVolumeFunc(ctx, params, optFns...)
	}
	return nil, errors.New("AttachVolume not implemented")
}

func volumesInState(state ec2types.VolumeState) func(context.Context, *ec2.DescribeVolumesInput, ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	return func(_ context.Context, params *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
		out := &ec2.DescribeVolumesOutput{}
		for _, id := range params.VolumeIds {
			out.Volumes = append(out.Volumes, ec2types.Volume{VolumeId: aws.String(id), State: state})
		}
		return out, nil
	}
}

func filterValues(filters []ec2types.Filter, name string) []string {
	for _, f := range filters {
		if aws.ToString(f.Name) == name {
			return f.Values
		}
	}
	return nil
}

func TestClient_DescribeInstances(t *testing.T) {
	t.Parallel()

	webInstance := ec2types.Instance{
		InstanceId:     aws.String("i-1"),
		RootDeviceName: aws.String("/dev/sda1"),
		State:          &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
		Placement:      &ec2types.Placement{AvailabilityZone: aws.String("eu-west-1a")},
		Tags:           []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String("web-1")}},
		BlockDeviceMappings: []ec2types.InstanceBlockDeviceMapping{
			{DeviceName: aws.String("/dev/sda1"), Ebs: &ec2types.EbsInstanceBlockDevice{VolumeId: aws.String("vol-a"), DeleteOnTermination: aws.Bool(true)}},
			{DeviceName: aws.String("/dev/sdb"), Ebs: &ec2types.EbsInstanceBlockDevice{VolumeId: aws.String("vol-b")}},
			{DeviceName: aws.String("/dev/sdc")},
		},
	}

	cases := []struct {
		name      string
		filter    InstanceFilter
		mockSetup func(t *testing.T, m *mockEC2API)
		wantIDs   []string
		wantErr   bool
	}{
		{
			name:   "by_id",
			filter: InstanceFilter{InstanceIDs: []string{"i-1"}},
			mockSetup: func(t *testing.T, m *mockEC2API) {
				m.describeInstancesFunc = func(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
					assert.Equal(t, []string{"i-1"}, filterValues(params.Filters, "instance-id"))
					assert.Contains(t, filterValues(params.Filters, "instance-state-name"), "stopped")
					return &ec2.DescribeInstancesOutput{
						Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{webInstance}}},
					}, nil
				}
			},
			wantIDs: []string{"i-1"},
		},
		{
			name:   "ids_and_names_merged",
			filter: InstanceFilter{InstanceIDs: []string{"i-1"}, Names: []string{"web-1", "db-1"}},
			mockSetup: func(_ *testing.T, m *mockEC2API) {
				m.describeInstancesFunc = func(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
					if filterValues(params.Filters, "tag:Name") != nil {
						return &ec2.DescribeInstancesOutput{
							Reservations: []ec2types.Reservation{
								{Instances: []ec2types.Instance{webInstance}},
								{Instances: []ec2types.Instance{{InstanceId: aws.String("i-2")}}},
							},
						}, nil
					}
					return &ec2.DescribeInstancesOutput{
						Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{webInstance}}},
					}, nil
				}
			},
			wantIDs: []string{"i-1", "i-2"},
		},
		{
			name:   "no_match",
			filter: InstanceFilter{Names: []string{"missing"}},
			mockSetup: func(_ *testing.T, m *mockEC2API) {
				m.describeInstancesFunc = func(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
					return &ec2.DescribeInstancesOutput{}, nil
				}
			},
			wantIDs: nil,
		},
		{
			name:   "api_error",
			filter: InstanceFilter{InstanceIDs: []string{"i-1"}},
			mockSetup: func(_ *testing.T, m *mockEC2API) {
				m.describeInstancesFunc = func(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
					return nil, errors.New("AWS API error")
				}
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mock := &mockEC2API{}
			tc.mockSetup(t, mock)
			client := NewEC2ClientWithInterface(mock)

			instances, err := client.DescribeInstances(context.Background(), tc.filter)

			if tc.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			ids := make([]string, 0, len(instances))
			for _, inst := range instances {
				ids = append(ids, inst.InstanceID)
			}
			if tc.wantIDs == nil {
				assert.Empty(t, ids)
			} else {
				assert.Equal(t, tc.wantIDs, ids)
			}
		})
	}
}

func TestClient_DescribeInstances_Conversion(t *testing.T) {
	t.Parallel()

	mock := &mockEC2API{
		describeInstancesFunc: func(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
			return &ec2.DescribeInstancesOutput{
				Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{{
					InstanceId:     aws.String("i-1"),
					RootDeviceName: aws.String("/dev/sda1"),
					State:          &ec2types.InstanceState{Name: ec2types.InstanceStateNameStopped},
					Placement:      &ec2types.Placement{AvailabilityZone: aws.String("eu-west-1b")},
					Tags:           []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String("db-1")}},
					BlockDeviceMappings: []ec2types.InstanceBlockDeviceMapping{
						{DeviceName: aws.String("/dev/sda1"), Ebs: &ec2types.EbsInstanceBlockDevice{VolumeId: aws.String("vol-a"), DeleteOnTermination: aws.Bool(true)}},
						{DeviceName: aws.String("/dev/sdc")},
					},
				}}}},
			}, nil
		},
	}

	instances, err := NewEC2ClientWithInterface(mock).DescribeInstances(context.Background(), InstanceFilter{InstanceIDs: []string{"i-1"}})
	require.NoError(t, err)
	require.Len(t, instances, 1)

	inst := instances[0]
	assert.Equal(t, "db-1", inst.Name)
	assert.Equal(t, "stopped", inst.State)
	assert.Equal(t, "eu-west-1b", inst.AvailabilityZone)
	assert.Equal(t, "/dev/sda1", inst.RootDeviceName)
	assert.False(t, inst.IsRunning())
	assert.Equal(t, "db-1 (i-1)", inst.DisplayName())

	require.Len(t, inst.Attachments, 2)
	assert.Equal(t, Attachment{DeviceName: "/dev/sda1", VolumeID: "vol-a", DeleteOnTermination: true}, inst.Attachments[0])
	assert.True(t, inst.Attachments[0].IsEBS())
	assert.False(t, inst.Attachments[1].IsEBS())
}

func TestClient_DescribeVolumes(t *testing.T) {
	t.Parallel()

	mock := &mockEC2API{
		describeVolumesFunc: func(_ context.Context, params *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
			assert.Equal(t, []string{"vol-a"}, params.VolumeIds)
			return &ec2.DescribeVolumesOutput{
				Volumes: []ec2types.Volume{{
					VolumeId:         aws.String("vol-a"),
					AvailabilityZone: aws.String("eu-west-1a"),
					State:            ec2types.VolumeStateInUse,
					Size:             aws.Int32(20),
					VolumeType:       ec2types.VolumeTypeGp3,
					Iops:             aws.Int32(3000),
					Throughput:       aws.Int32(125),
					Tags:             []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String("root")}},
				}},
			}, nil
		},
	}
	client := NewEC2ClientWithInterface(mock)

	volumes, err := client.DescribeVolumes(context.Background(), []string{"vol-a"})
	require.NoError(t, err)
	require.Len(t, volumes, 1)
	assert.Equal(t, VolumeInfo{
		VolumeID:         "vol-a",
		AvailabilityZone: "eu-west-1a",
		State:            "in-use",
		SizeGiB:          20,
		VolumeType:       "gp3",
		Iops:             3000,
		Throughput:       125,
		Tags:             map[string]string{"Name": "root"},
	}, volumes[0])

	empty, err := client.DescribeVolumes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClient_DescribeSnapshots(t *testing.T) {
	t.Parallel()

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		volumeIDs []string
		mockSetup func(t *testing.T, m *mockEC2API)
		want      []Snapshot
		wantErr   bool
	}{
		{
			name:      "success",
			volumeIDs: []string{"vol-a", "vol-b"},
			mockSetup: func(t *testing.T, m *mockEC2API) {
				m.describeSnapshotsFunc = func(_ context.Context, params *ec2.DescribeSnapshotsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error) {
					assert.Equal(t, []string{"vol-a", "vol-b"}, filterValues(params.Filters, "volume-id"))
					return &ec2.DescribeSnapshotsOutput{
						Snapshots: []ec2types.Snapshot{
							{
								SnapshotId:  aws.String("snap-1"),
								VolumeId:    aws.String("vol-a"),
								VolumeSize:  aws.Int32(20),
								State:       ec2types.SnapshotStateCompleted,
								StartTime:   aws.Time(started),
								Progress:    aws.String("100%"),
								Description: aws.String("nightly"),
								Tags:        []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String("web-root")}},
							},
							{
								SnapshotId: aws.String("snap-3"),
								VolumeId:   aws.String("vol-a"),
								VolumeSize: aws.Int32(20),
								State:      ec2types.SnapshotStatePending,
							},
						},
					}, nil
				}
			},
			want: []Snapshot{
				{SnapshotID: "snap-1", VolumeID: "vol-a", SizeGiB: 20, State: SnapshotStateCompleted, StartTime: started, Progress: "100%", Name: "web-root", Description: "nightly"},
				{SnapshotID: "snap-3", VolumeID: "vol-a", SizeGiB: 20, State: SnapshotStatePending},
			},
		},
		{
			name:      "no_volumes_skips_call",
			volumeIDs: nil,
			mockSetup: func(_ *testing.T, _ *mockEC2API) {},
			want:      nil,
		},
		{
			name:      "api_error",
			volumeIDs: []string{"vol-a"},
			mockSetup: func(_ *testing.T, m *mockEC2API) {
				m.describeSnapshotsFunc = func(_ context.Context, _ *ec2.DescribeSnapshotsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error) {
					return nil, errors.New("AWS API error")
				}
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mock := &mockEC2API{}
			tc.mockSetup(t, mock)
			client := NewEC2ClientWithInterface(mock)

			snapshots, err := client.DescribeSnapshots(context.Background(), tc.volumeIDs)

			if tc.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, snapshots)
		})
	}
}

func TestClient_CreateVolume(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		spec      VolumeSpec
		mockSetup func(t *testing.T, m *mockEC2API)
		wantID    string
		wantErr   bool
	}{
		{
			name: "gp3_with_tags",
			spec: VolumeSpec{
				SnapshotID:       "snap-123",
				AvailabilityZone: "us-west-2a",
				VolumeType:       "gp3",
				Iops:             4000,
				Throughput:       250,
				Tags:             map[string]string{"ebs-restore:device": "/dev/sdb", "Name": "restored"},
			},
			mockSetup: func(t *testing.T, m *mockEC2API) {
				m.createVolumeFunc = func(_ context.Context, params *ec2.CreateVolumeInput, _ ...func(*ec2.Options)) (*ec2.CreateVolumeOutput, error) {
					assert.Equal(t, "snap-123", aws.ToString(params.SnapshotId))
					assert.Equal(t, "us-west-2a", aws.ToString(params.AvailabilityZone))
					assert.Equal(t, ec2types.VolumeTypeGp3, params.VolumeType)
					assert.Equal(t, int32(4000), aws.ToInt32(params.Iops))
					assert.Equal(t, int32(250), aws.ToInt32(params.Throughput))
					require.Len(t, params.TagSpecifications, 1)
					assert.Equal(t, ec2types.ResourceTypeVolume, params.TagSpecifications[0].ResourceType)
					tags := params.TagSpecifications[0].Tags
					require.Len(t, tags, 2)
					assert.Equal(t, "Name", aws.ToString(tags[0].Key))
					assert.Equal(t, "ebs-restore:device", aws.ToString(tags[1].Key))
					assert.Equal(t, "/dev/sdb", aws.ToString(tags[1].Value))
					return &ec2.CreateVolumeOutput{VolumeId: aws.String("vol-newvol")}, nil
				}
			},
			wantID: "vol-newvol",
		},
		{
			name: "gp2_drops_iops",
			spec: VolumeSpec{SnapshotID: "snap-123", AvailabilityZone: "us-west-2a", VolumeType: "gp2", Iops: 100},
			mockSetup: func(t *testing.T, m *mockEC2API) {
				m.createVolumeFunc = func(_ context.Context, params *ec2.CreateVolumeInput, _ ...func(*ec2.Options)) (*ec2.CreateVolumeOutput, error) {
					assert.Nil(t, params.Iops)
					assert.Nil(t, params.Throughput)
					assert.Empty(t, params.TagSpecifications)
					return &ec2.CreateVolumeOutput{VolumeId: aws.String("vol-gp2")}, nil
				}
			},
			wantID: "vol-gp2",
		},
		{
			name: "missing_volume_id",
			spec: VolumeSpec{SnapshotID: "snap-123", AvailabilityZone: "us-west-2a"},
			mockSetup: func(_ *testing.T, m *mockEC2API) {
				m.createVolumeFunc = func(_ context.Context, _ *ec2.CreateVolumeInput, _ ...func(*ec2.Options)) (*ec2.CreateVolumeOutput, error) {
					return &ec2.CreateVolumeOutput{}, nil
				}
			},
			wantErr: true,
		},
		{
			name: "api_error",
			spec: VolumeSpec{SnapshotID: "snap-error", AvailabilityZone: "us-west-2a"},
			mockSetup: func(_ *testing.T, m *mockEC2API) {
				m.createVolumeFunc = func(_ context.Context, _ *ec2.CreateVolumeInput, _ ...func(*ec2.Options)) (*ec2.CreateVolumeOutput, error) {
					return nil, errors.New("AWS API error")
				}
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mock := &mockEC2API{}
			tc.mockSetup(t, mock)
			client := NewEC2ClientWithInterface(mock)

			volumeID, err := client.CreateVolume(context.Background(), tc.spec)

			if tc.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantID, volumeID)
		})
	}
}

func TestClient_StopStartInstance(t *testing.T) {
	t.Parallel()

	var stopped, started []string
	mock := &mockEC2API{
		stopInstancesFunc: func(_ context.Context, params *ec2.StopInstancesInput, _ ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
			stopped = append(stopped, params.InstanceIds...)
			return &ec2.StopInstancesOutput{}, nil
		},
		startInstancesFunc: func(_ context.Context, params *ec2.StartInstancesInput, _ ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
			started = append(started, params.InstanceIds...)
			return nil, errors.New("InsufficientInstanceCapacity")
		},
	}
	client := NewEC2ClientWithInterface(mock)

	require.NoError(t, client.StopInstance(context.Background(), "i-1"))
	require.Error(t, client.StartInstance(context.Background(), "i-1"))
	assert.Equal(t, []string{"i-1"}, stopped)
	assert.Equal(t, []string{"i-1"}, started)
}

func TestClient_WaitForVolumesAvailable(t *testing.T) {
	t.Parallel()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name    string
		ctx     context.Context
		state   ec2types.VolumeState
		timeout time.Duration
		wantErr error
	}{
		{
			name:    "available",
			ctx:     context.Background(),
			state:   ec2types.VolumeStateAvailable,
			timeout: time.Minute,
		},
		{
			name:    "timeout",
			ctx:     context.Background(),
			state:   ec2types.VolumeStateCreating,
			timeout: time.Millisecond,
			wantErr: ErrWaitTimeout,
		},
		{
			name:    "cancelled",
			ctx:     cancelled,
			state:   ec2types.VolumeStateCreating,
			timeout: time.Minute,
			wantErr: ErrWaitCancelled,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mock := &mockEC2API{describeVolumesFunc: volumesInState(tc.state)}
			client := NewEC2ClientWithInterface(mock)

			err := client.WaitForVolumesAvailable(tc.ctx, []string{"vol-1", "vol-2"}, tc.timeout)

			if tc.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestClient_WaitForVolumesAvailable_NoIDs(t *testing.T) {
	t.Parallel()

	calls := 0
	mock := &mockEC2API{
		describeVolumesFunc: func(_ context.Context, _ *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
			calls++
			return &ec2.DescribeVolumesOutput{}, nil
		},
	}
	client := NewEC2ClientWithInterface(mock)

	require.NoError(t, client.WaitForVolumesAvailable(context.Background(), nil, time.Millisecond))
	require.NoError(t, client.WaitForVolumesAvailable(context.Background(), []string{}, time.Millisecond))
	assert.Zero(t, calls, "an empty id list must not describe every volume in the region")
}

func TestClient_DetachVolume(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		mock := &mockEC2API{
			detachVolumeFunc: func(_ context.Context, params *ec2.DetachVolumeInput, _ ...func(*ec2.Options)) (*ec2.DetachVolumeOutput, error) {
				assert.Equal(t, "vol-a", aws.ToString(params.VolumeId))
				assert.Equal(t, "i-1", aws.ToString(params.InstanceId))
				assert.Equal(t, "/dev/sda1", aws.ToString(params.Device))
				return &ec2.DetachVolumeOutput{}, nil
			},
			describeVolumesFunc: volumesInState(ec2types.VolumeStateAvailable),
		}

		err := NewEC2ClientWithInterface(mock).DetachVolume(context.Background(), "i-1", "vol-a", "/dev/sda1")
		require.NoError(t, err)
	})

	t.Run("api_error", func(t *testing.T) {
		t.Parallel()

		mock := &mockEC2API{
			detachVolumeFunc: func(_ context.Context, _ *ec2.DetachVolumeInput, _ ...func(*ec2.Options)) (*ec2.DetachVolumeOutput, error) {
				return nil, errors.New("IncorrectState")
			},
		}

		err := NewEC2ClientWithInterface(mock).DetachVolume(context.Background(), "i-1", "vol-a", "/dev/sda1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "IncorrectState")
	})
}

func TestClient_AttachVolume(t *testing.T) {
	t.Parallel()

	var attached *ec2.AttachVolumeInput
	mock := &mockEC2API{
		attachVolumeFunc: func(_ context.Context, params *ec2.AttachVolumeInput, _ ...func(*ec2.Options)) (*ec2.AttachVolumeOutput, error) {
			attached = params
			return &ec2.AttachVolumeOutput{}, nil
		},
		describeVolumesFunc: volumesInState(ec2types.VolumeStateInUse),
	}

	err := NewEC2ClientWithInterface(mock).AttachVolume(context.Background(), "i-1", "vol-new", "/dev/sdb")
	require.NoError(t, err)
	require.NotNil(t, attached)
	assert.Equal(t, "vol-new", aws.ToString(attached.VolumeId))
	assert.Equal(t, "i-1", aws.ToString(attached.InstanceId))
	assert.Equal(t, "/dev/sdb", aws.ToString(attached.Device))
}

func TestClassifyWaitErr(t *testing.T) {
	t.Parallel()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, classifyWaitErr(context.Background(), nil))
	assert.ErrorIs(t, classifyWaitErr(context.Background(), errors.New("exceeded max wait time for VolumeAvailable waiter")), ErrWaitTimeout)
	assert.ErrorIs(t, classifyWaitErr(cancelled, errors.New("request cancelled while waiting")), ErrWaitCancelled)

	other := errors.New("waiter state transitioned to Failure")
	got := classifyWaitErr(context.Background(), other)
	assert.Equal(t, other, got)
	assert.NotErrorIs(t, got, ErrWaitTimeout)
}

package restore

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"github.com/cesarempathy/ebs-restore/internal/aws"
	"github.com/cesarempathy/ebs-restore/internal/logger"
)

// Criteria selects instances by ID and/or Name tag.
type Criteria struct {
	InstanceIDs []string
	Names       []string
}

// IsEmpty reports whether no selector is set.
func (c Criteria) IsEmpty() bool {
	return len(c.InstanceIDs) == 0 && len(c.Names) == 0
}

func (c Criteria) String() string {
	var parts []string
	if len(c.InstanceIDs) > 0 {
		parts = append(parts, "ids="+strings.Join(c.InstanceIDs, ","))
	}
	if len(c.Names) > 0 {
		parts = append(parts, "names="+strings.Join(c.Names, ","))
	}
	return strings.Join(parts, " ")
}

// FindInstances resolves the criteria to instances, enriching every EBS attachment with
// the size and type of its volume. It fails with KindNotFound when nothing matches.
func FindInstances(ctx context.Context, api aws.EC2API, criteria Criteria) ([]aws.Instance, error) {
	if criteria.IsEmpty() {
		return nil, &Error{Kind: KindNotFound, Message: "no instance ids or names given"}
	}

	instances, err := api.DescribeInstances(ctx, aws.InstanceFilter{
		InstanceIDs: criteria.InstanceIDs,
		Names:       criteria.Names,
	})
	if err != nil {
		return nil, &Error{Kind: KindUpstream, Message: "describe instances", Err: err}
	}

	instances = lo.UniqBy(instances, func(inst aws.Instance) string { return inst.InstanceID })
	if len(instances) == 0 {
		return nil, &Error{Kind: KindNotFound, Message: "no instances match " + criteria.String()}
	}

	volumeIDs := lo.Uniq(lo.FlatMap(instances, func(inst aws.Instance, _ int) []string {
		return ebsVolumeIDs(inst)
	}))
	volumes, err := api.DescribeVolumes(ctx, volumeIDs)
	if err != nil {
		return nil, &Error{Kind: KindUpstream, Message: "describe attached volumes", Err: err}
	}
	byID := lo.KeyBy(volumes, func(v aws.VolumeInfo) string { return v.VolumeID })

	for i := range instances {
		for j, att := range instances[i].Attachments {
			vol, ok := byID[att.VolumeID]
			if !att.IsEBS() || !ok {
				continue
			}
			att.SizeGiB = vol.SizeGiB
			att.VolumeType = vol.VolumeType
			att.Iops = vol.Iops
			att.Throughput = vol.Throughput
			instances[i].Attachments[j] = att
		}
	}

	logger.FromContext(ctx).Debug("resolved instances", "criteria", criteria.String(), "count", len(instances))
	return instances, nil
}

// ebsVolumeIDs returns the volume IDs of the instance's EBS attachments, in attachment order.
func ebsVolumeIDs(inst aws.Instance) []string {
	return lo.FilterMap(inst.Attachments, func(att aws.Attachment, _ int) (string, bool) {
		return att.VolumeID, att.IsEBS()
	})
}

// ebsAttachments returns the instance's EBS attachments, in attachment order.
func ebsAttachments(inst aws.Instance) []aws.Attachment {
	return lo.Filter(inst.Attachments, func(att aws.Attachment, _ int) bool {
		return att.IsEBS()
	})
}

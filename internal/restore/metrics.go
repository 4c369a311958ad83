package restore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/cesarempathy/ebs-restore/internal/restore"

// Metrics holds the metrics instruments for restore operations.
type Metrics struct {
	volumeCreateDuration metric.Float64Histogram
	instancesTotal       metric.Int64Counter
}

// NewMetrics creates the restore instruments on meter. A nil meter uses the global provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	volumeCreateDuration, err := meter.Float64Histogram(
		"ebs_restore_volume_create_duration_seconds",
		metric.WithDescription("Time from create request until every volume of an instance is available"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	instancesTotal, err := meter.Int64Counter(
		"ebs_restore_instances_total",
		metric.WithDescription("Total number of instances processed by the restore engine"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		volumeCreateDuration: volumeCreateDuration,
		instancesTotal:       instancesTotal,
	}, nil
}

func (m *Metrics) recordVolumeCreate(ctx context.Context, start time.Time, status string) {
	if m == nil {
		return
	}
	m.volumeCreateDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) recordInstance(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.instancesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

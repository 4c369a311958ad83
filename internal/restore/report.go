package restore

import (
	"fmt"
	"os"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Report records what a run did, so a partially restored instance can be finished by hand.
type Report struct {
	RunID       string           `yaml:"runID"`
	GeneratedAt time.Time        `yaml:"generatedAt"`
	Instances   []InstanceReport `yaml:"instances"`
}

// InstanceReport is the outcome for one instance.
type InstanceReport struct {
	InstanceID string         `yaml:"instanceID"`
	Name       string         `yaml:"name,omitempty"`
	Status     string         `yaml:"status"`
	Stopped    bool           `yaml:"stopped"`
	Started    bool           `yaml:"started"`
	Devices    []DeviceReport `yaml:"devices"`
	Failure    *FailureReport `yaml:"failure,omitempty"`
}

// DeviceReport tracks one device through the run.
type DeviceReport struct {
	Device         string `yaml:"device"`
	OriginalVolume string `yaml:"originalVolume"`
	Snapshot       string `yaml:"snapshot"`
	RestoredVolume string `yaml:"restoredVolume,omitempty"`
	Swapped        bool   `yaml:"swapped"`
	// OriginalDetached is set when the original volume is no longer attached to the device.
	OriginalDetached bool `yaml:"originalDetached"`
}

// FailureReport describes where a restore stopped.
type FailureReport struct {
	Stage    string `yaml:"stage"`
	Kind     string `yaml:"kind"`
	Device   string `yaml:"device,omitempty"`
	VolumeID string `yaml:"volumeID,omitempty"`
	Message  string `yaml:"message"`
}

// BuildReport summarizes run results.
func BuildReport(runID string, results []*Result) *Report {
	report := &Report{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Instances:   make([]InstanceReport, 0, len(results)),
	}
	for _, res := range results {
		if res == nil {
			continue
		}
		report.Instances = append(report.Instances, instanceReport(res))
	}
	return report
}

func instanceReport(res *Result) InstanceReport {
	ir := InstanceReport{
		InstanceID: res.Instance.InstanceID,
		Name:       res.Instance.Name,
		Stopped:    res.Stopped,
		Started:    res.Started,
	}

	switch {
	case res.Err != nil:
		ir.Status = "failed"
	case res.DryRun:
		ir.Status = "dry_run"
	default:
		ir.Status = "completed"
	}

	restored := lo.SliceToMap(res.Volumes, func(v MaterializedVolume) (string, string) {
		return v.Device(), v.VolumeID
	})
	swapped := lo.Keyify(res.SwappedDevices)

	var failedDetach string
	restoreErr := asError(res.Err)
	if res.Err != nil {
		ir.Failure = &FailureReport{
			Stage:    restoreErr.Stage.String(),
			Kind:     string(restoreErr.Kind),
			Device:   restoreErr.Device,
			VolumeID: restoreErr.VolumeID,
			Message:  res.Err.Error(),
		}
		// Attach errors name the restored volume; by then the original was detached.
		if restoreErr.Stage == StepSwapping && restoreErr.VolumeID != "" &&
			restoreErr.VolumeID == restored[restoreErr.Device] {
			failedDetach = restoreErr.Device
		}
	}

	if res.Plan != nil {
		for _, e := range res.Plan.Entries() {
			_, isSwapped := swapped[e.Device()]
			ir.Devices = append(ir.Devices, DeviceReport{
				Device:           e.Device(),
				OriginalVolume:   e.SourceVolumeID(),
				Snapshot:         e.SnapshotID(),
				RestoredVolume:   restored[e.Device()],
				Swapped:          isSwapped,
				OriginalDetached: isSwapped || e.Device() == failedDetach,
			})
		}
	}

	return ir
}

// WriteReport writes the report as YAML to path.
func WriteReport(path string, report *Report) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

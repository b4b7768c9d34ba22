package monitor

import (
	"fmt"
	"time"

	"github.com/t77yq/kioskmon/internal/model"
)

// consumableLabels are the display names used in consumable alert messages
var consumableLabels = map[model.Resource]string{
	model.ResourceFilament: "Filament",
	model.ResourcePaper:    "Paper",
	model.ResourceInk:      "Ink",
}

// Evaluator turns snapshots into threshold alerts
type Evaluator struct {
	now func() time.Time
}

// NewEvaluator creates an evaluator stamping alerts with the wall clock
func NewEvaluator() *Evaluator {
	return &Evaluator{now: time.Now}
}

// Evaluate checks a snapshot against thresholds. Alerts are returned in a
// fixed order: consumables, system metrics, then hardware. Absent or invalid
// readings never alert. thresholds is only read.
func (e *Evaluator) Evaluate(snapshot *model.Snapshot, thresholds model.Thresholds) []model.Alert {
	if snapshot == nil {
		return nil
	}

	at := e.now()
	limit := func(r model.Resource) float64 {
		if v, ok := thresholds[r]; ok {
			return v
		}
		return model.DefaultThresholds()[r]
	}

	var alerts []model.Alert
	emit := func(kind model.AlertKind, resource model.Resource, level model.Reading, message string) {
		alerts = append(alerts, model.Alert{
			Kind:      kind,
			Resource:  resource,
			Level:     level,
			Message:   message,
			Timestamp: at,
		})
	}

	for _, r := range []model.Resource{model.ResourceFilament, model.ResourcePaper, model.ResourceInk} {
		c := snapshot.Consumable(r)
		if c == nil || !breached(r, c.Level, limit(r)) {
			continue
		}
		emit(model.AlertKindResource, r, c.Level,
			fmt.Sprintf("%s level low: %s%%", consumableLabels[r], c.Level))
	}

	if sys := snapshot.System; sys != nil {
		if breached(model.ResourceMemory, sys.MemoryUsage, limit(model.ResourceMemory)) {
			emit(model.AlertKindSystem, model.ResourceMemory, sys.MemoryUsage,
				fmt.Sprintf("High memory usage: %s%%", sys.MemoryUsage))
		}
		if breached(model.ResourceCPU, sys.CPUUsage, limit(model.ResourceCPU)) {
			emit(model.AlertKindSystem, model.ResourceCPU, sys.CPUUsage,
				fmt.Sprintf("High CPU usage: %s%%", sys.CPUUsage))
		}
		if breached(model.ResourceDiskSpace, sys.DiskSpace, limit(model.ResourceDiskSpace)) {
			emit(model.AlertKindSystem, model.ResourceDiskSpace, sys.DiskSpace,
				fmt.Sprintf("Low disk space: %s%%", sys.DiskSpace))
		}
	}

	if hw := snapshot.Hardware; hw != nil {
		if breached(model.ResourceTemperature, hw.Temperature, limit(model.ResourceTemperature)) {
			emit(model.AlertKindSystem, model.ResourceTemperature, hw.Temperature,
				fmt.Sprintf("High temperature: %s°C", hw.Temperature))
		}
		for _, he := range hw.Errors {
			emit(model.AlertKindError, model.ResourceHardware, model.Reading{},
				fmt.Sprintf("Hardware error: %s - %s", he.Code, he.Message))
		}
	}

	return alerts
}

// breached applies the strict comparison for the resource's direction
func breached(r model.Resource, reading model.Reading, limit float64) bool {
	if !reading.Valid {
		return false
	}
	if r.Direction() == model.AlertAbove {
		return reading.Value > limit
	}
	return reading.Value < limit
}

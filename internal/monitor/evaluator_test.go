package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/kioskmon/internal/model"
)

func fixedEvaluator(at time.Time) *Evaluator {
	return &Evaluator{now: func() time.Time { return at }}
}

func TestEvaluator_Empty(t *testing.T) {
	e := NewEvaluator()
	assert.Empty(t, e.Evaluate(nil, model.DefaultThresholds()))
	assert.Empty(t, e.Evaluate(&model.Snapshot{}, model.DefaultThresholds()))
	assert.Empty(t, e.Evaluate(&model.Snapshot{
		Filament: &model.Consumable{},
		System:   &model.SystemMetrics{},
		Hardware: &model.Hardware{},
	}, model.DefaultThresholds()))
}

func TestEvaluator_NullReadings(t *testing.T) {
	snapshot, err := model.DecodeSnapshot([]byte(`{
		"filament": {"level": null},
		"paper": {"level": null},
		"ink": {"level": null},
		"system": {"memoryUsage": null, "cpuUsage": null, "diskSpace": null},
		"hardware": {"temperature": null, "errors": []}
	}`))
	require.NoError(t, err)

	assert.Empty(t, NewEvaluator().Evaluate(snapshot, model.DefaultThresholds()))
}

func TestEvaluator_Boundaries(t *testing.T) {
	thresholds := model.DefaultThresholds()

	tests := []struct {
		name     string
		snapshot *model.Snapshot
		alert    bool
	}{
		{"Filament below", &model.Snapshot{Filament: &model.Consumable{Level: model.Measured(14)}}, true},
		{"Filament at limit", &model.Snapshot{Filament: &model.Consumable{Level: model.Measured(15)}}, false},
		{"Paper below", &model.Snapshot{Paper: &model.Consumable{Level: model.Measured(9.5)}}, true},
		{"Paper at limit", &model.Snapshot{Paper: &model.Consumable{Level: model.Measured(10)}}, false},
		{"Ink at limit", &model.Snapshot{Ink: &model.Consumable{Level: model.Measured(15)}}, false},
		{"Memory above", &model.Snapshot{System: &model.SystemMetrics{MemoryUsage: model.Measured(91)}}, true},
		{"Memory at limit", &model.Snapshot{System: &model.SystemMetrics{MemoryUsage: model.Measured(90)}}, false},
		{"CPU above", &model.Snapshot{System: &model.SystemMetrics{CPUUsage: model.Measured(90.1)}}, true},
		{"CPU at limit", &model.Snapshot{System: &model.SystemMetrics{CPUUsage: model.Measured(90)}}, false},
		{"Disk below", &model.Snapshot{System: &model.SystemMetrics{DiskSpace: model.Measured(9)}}, true},
		{"Disk at limit", &model.Snapshot{System: &model.SystemMetrics{DiskSpace: model.Measured(10)}}, false},
		{"Temperature above", &model.Snapshot{Hardware: &model.Hardware{Temperature: model.Measured(61)}}, true},
		{"Temperature at limit", &model.Snapshot{Hardware: &model.Hardware{Temperature: model.Measured(60)}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := NewEvaluator().Evaluate(tt.snapshot, thresholds)
			if tt.alert {
				assert.Len(t, alerts, 1)
			} else {
				assert.Empty(t, alerts)
			}
		})
	}
}

func TestEvaluator_Messages(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := fixedEvaluator(at)

	snapshot := &model.Snapshot{
		Filament: &model.Consumable{Level: model.Measured(12)},
		Paper:    &model.Consumable{Level: model.Measured(5)},
		Ink:      &model.Consumable{Level: model.Measured(7.5)},
		System: &model.SystemMetrics{
			MemoryUsage: model.Measured(95),
			CPUUsage:    model.Measured(97),
			DiskSpace:   model.Measured(3),
		},
		Hardware: &model.Hardware{
			Temperature: model.Measured(72),
			Errors: []model.HardwareError{
				{Code: "E12", Message: "Paper jam"},
				{Code: "E12", Message: "Paper jam"},
			},
		},
	}

	alerts := e.Evaluate(snapshot, model.DefaultThresholds())
	require.Len(t, alerts, 9)

	want := []struct {
		kind     model.AlertKind
		resource model.Resource
		message  string
	}{
		{model.AlertKindResource, model.ResourceFilament, "Filament level low: 12%"},
		{model.AlertKindResource, model.ResourcePaper, "Paper level low: 5%"},
		{model.AlertKindResource, model.ResourceInk, "Ink level low: 7.5%"},
		{model.AlertKindSystem, model.ResourceMemory, "High memory usage: 95%"},
		{model.AlertKindSystem, model.ResourceCPU, "High CPU usage: 97%"},
		{model.AlertKindSystem, model.ResourceDiskSpace, "Low disk space: 3%"},
		{model.AlertKindSystem, model.ResourceTemperature, "High temperature: 72°C"},
		{model.AlertKindError, model.ResourceHardware, "Hardware error: E12 - Paper jam"},
		{model.AlertKindError, model.ResourceHardware, "Hardware error: E12 - Paper jam"},
	}
	for i, w := range want {
		assert.Equal(t, w.kind, alerts[i].Kind, "alert %d", i)
		assert.Equal(t, w.resource, alerts[i].Resource, "alert %d", i)
		assert.Equal(t, w.message, alerts[i].Message, "alert %d", i)
		assert.Equal(t, at, alerts[i].Timestamp)
	}
	assert.Equal(t, model.Measured(5), alerts[1].Level)
	assert.False(t, alerts[7].Level.Valid)
}

func TestEvaluator_Thresholds(t *testing.T) {
	snapshot := &model.Snapshot{Paper: &model.Consumable{Level: model.Measured(25)}}

	t.Run("Custom limit", func(t *testing.T) {
		thresholds := model.DefaultThresholds()
		thresholds[model.ResourcePaper] = 30
		alerts := NewEvaluator().Evaluate(snapshot, thresholds)
		require.Len(t, alerts, 1)
		assert.Equal(t, "Paper level low: 25%", alerts[0].Message)
	})

	t.Run("Missing key falls back to default", func(t *testing.T) {
		alerts := NewEvaluator().Evaluate(&model.Snapshot{Paper: &model.Consumable{Level: model.Measured(5)}}, model.Thresholds{})
		assert.Len(t, alerts, 1)
	})

	t.Run("Thresholds are not mutated", func(t *testing.T) {
		thresholds := model.DefaultThresholds()
		NewEvaluator().Evaluate(snapshot, thresholds)
		assert.Equal(t, model.DefaultThresholds(), thresholds)
	})
}

func TestEvaluator_DecodedStatus(t *testing.T) {
	snapshot, err := model.DecodeSnapshot([]byte(`{
		"filament": {"level": 80},
		"paper": {"level": 5},
		"ink": {"level": "unknown"},
		"system": {"memoryUsage": 40, "cpuUsage": 20, "diskSpace": 60},
		"hardware": {"temperature": 45, "errors": []}
	}`))
	require.NoError(t, err)

	alerts := NewEvaluator().Evaluate(snapshot, model.DefaultThresholds())
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertKindResource, alerts[0].Kind)
	assert.Equal(t, model.ResourcePaper, alerts[0].Resource)
	assert.Equal(t, "Paper level low: 5%", alerts[0].Message)
}

package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSnapshot(t *testing.T) {
	t.Run("Full document", func(t *testing.T) {
		data := []byte(`{
			"filament": {"level": 12, "type": "PLA", "color": "Blue"},
			"paper": {"level": 40, "size": "A4"},
			"ink": {"level": 7.5},
			"system": {"memoryUsage": 95, "cpuUsage": 10, "diskSpace": 50},
			"hardware": {"temperature": 41, "status": "ready", "errors": [{"code": "E12", "message": "jam"}]},
			"jobs": {"active": 1, "queued": 2, "completed": 125}
		}`)

		s, err := DecodeSnapshot(data)
		require.NoError(t, err)
		require.NotNil(t, s.Filament)
		assert.Equal(t, Measured(12), s.Filament.Level)
		assert.Equal(t, "PLA", s.Filament.Type)
		assert.Equal(t, Measured(7.5), s.Ink.Level)
		assert.Equal(t, Measured(95), s.System.MemoryUsage)
		assert.Equal(t, Measured(41), s.Hardware.Temperature)
		assert.Equal(t, []HardwareError{{Code: "E12", Message: "jam"}}, s.Hardware.Errors)
		assert.Equal(t, 125, s.Jobs.Completed)
	})

	t.Run("Absent sections stay nil", func(t *testing.T) {
		s, err := DecodeSnapshot([]byte(`{}`))
		require.NoError(t, err)
		assert.Nil(t, s.Filament)
		assert.Nil(t, s.System)
		assert.Nil(t, s.Hardware)
	})

	t.Run("Non-numeric readings are absent", func(t *testing.T) {
		s, err := DecodeSnapshot([]byte(`{
			"filament": {"level": "low"},
			"system": {"memoryUsage": null, "cpuUsage": true, "diskSpace": 30},
			"hardware": {"temperature": "hot", "errors": "none"}
		}`))
		require.NoError(t, err)
		assert.False(t, s.Filament.Level.Valid)
		assert.False(t, s.System.MemoryUsage.Valid)
		assert.False(t, s.System.CPUUsage.Valid)
		assert.Equal(t, Measured(30), s.System.DiskSpace)
		assert.False(t, s.Hardware.Temperature.Valid)
		assert.Empty(t, s.Hardware.Errors)
	})

	t.Run("Null readings are absent, not zero", func(t *testing.T) {
		s, err := DecodeSnapshot([]byte(`{"filament": {"level": null}, "system": {"diskSpace": null}}`))
		require.NoError(t, err)
		assert.Equal(t, Reading{}, s.Filament.Level)
		assert.Equal(t, Reading{}, s.System.DiskSpace)

		var r Reading
		require.NoError(t, r.UnmarshalJSON([]byte(" null ")))
		assert.False(t, r.Valid)
		require.NoError(t, r.UnmarshalJSON([]byte("0")))
		assert.Equal(t, Measured(0), r)
	})

	t.Run("Section of wrong type", func(t *testing.T) {
		s, err := DecodeSnapshot([]byte(`{"paper": "full", "jobs": "many", "ink": {"level": 3}}`))
		require.NoError(t, err)
		require.NotNil(t, s.Paper)
		assert.False(t, s.Paper.Level.Valid)
		assert.Nil(t, s.Jobs)
		assert.Equal(t, Measured(3), s.Ink.Level)
	})

	t.Run("Numeric error codes", func(t *testing.T) {
		s, err := DecodeSnapshot([]byte(`{"hardware": {"errors": [{"code": 42, "message": "door open"}, 7]}}`))
		require.NoError(t, err)
		assert.Equal(t, []HardwareError{{Code: "42", Message: "door open"}}, s.Hardware.Errors)
	})

	t.Run("Invalid document", func(t *testing.T) {
		_, err := DecodeSnapshot([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestReadingJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Reading `json:"a"`
		B Reading `json:"b"`
	}{A: Measured(5.5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 5.5, "b": null}`, string(data))

	assert.Equal(t, "5", Measured(5).String())
	assert.Equal(t, "5.25", Measured(5.25).String())
	assert.Nil(t, Reading{}.Float())
}

func TestThresholdDirections(t *testing.T) {
	tests := []struct {
		resource Resource
		want     Direction
	}{
		{ResourceFilament, AlertBelow},
		{ResourcePaper, AlertBelow},
		{ResourceInk, AlertBelow},
		{ResourceDiskSpace, AlertBelow},
		{ResourceMemory, AlertAbove},
		{ResourceCPU, AlertAbove},
		{ResourceTemperature, AlertAbove},
	}

	for _, tt := range tests {
		t.Run(string(tt.resource), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.resource.Direction())
			assert.True(t, tt.resource.IsThresholded())
		})
	}

	assert.False(t, ResourceHardware.IsThresholded())
	assert.Len(t, DefaultThresholds(), len(ThresholdResources))
}

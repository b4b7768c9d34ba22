package model

import "strings"

// Resource names a measured quantity. Threshold keys form a closed set.
type Resource string

const (
	ResourceFilament    Resource = "filament"
	ResourcePaper       Resource = "paper"
	ResourceInk         Resource = "ink"
	ResourceMemory      Resource = "memory"
	ResourceCPU         Resource = "cpu"
	ResourceDiskSpace   Resource = "diskSpace"
	ResourceTemperature Resource = "temperature"

	// Alert-only resources, never thresholded.
	ResourceHardware   Resource = "hardware"
	ResourceConnection Resource = "connection"
)

// ThresholdResources lists every threshold key in evaluation order.
var ThresholdResources = []Resource{
	ResourceFilament,
	ResourcePaper,
	ResourceInk,
	ResourceMemory,
	ResourceCPU,
	ResourceDiskSpace,
	ResourceTemperature,
}

// Direction tells whether a reading alerts below or above its threshold.
type Direction int

const (
	AlertBelow Direction = iota
	AlertAbove
)

// Direction returns the comparison side for a threshold key.
func (r Resource) Direction() Direction {
	switch r {
	case ResourceMemory, ResourceCPU, ResourceTemperature:
		return AlertAbove
	default:
		return AlertBelow
	}
}

// IsThresholded reports whether r is a known threshold key.
func (r Resource) IsThresholded() bool {
	for _, known := range ThresholdResources {
		if r == known {
			return true
		}
	}
	return false
}

// Thresholds maps threshold keys to numeric limits.
type Thresholds map[Resource]float64

// DefaultThresholds returns a fresh copy of the built-in limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ResourceFilament:    15,
		ResourcePaper:       10,
		ResourceInk:         15,
		ResourceMemory:      90,
		ResourceCPU:         90,
		ResourceDiskSpace:   10,
		ResourceTemperature: 60,
	}
}

// Clone returns an independent copy.
func (t Thresholds) Clone() Thresholds {
	out := make(Thresholds, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// ParseResource resolves a threshold key case-insensitively. Configuration
// loaders lower-case keys, so "diskspace" resolves to ResourceDiskSpace.
func ParseResource(key string) (Resource, bool) {
	for _, known := range ThresholdResources {
		if strings.EqualFold(string(known), key) {
			return known, true
		}
	}
	return Resource(key), false
}

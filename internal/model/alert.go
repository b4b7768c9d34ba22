package model

import "time"

// AlertKind classifies an alert
type AlertKind string

const (
	AlertKindResource AlertKind = "resource"
	AlertKindSystem   AlertKind = "system"
	AlertKindHardware AlertKind = "hardware"
	AlertKindError    AlertKind = "error"
)

// Alert is produced per evaluation cycle and never persisted
type Alert struct {
	Kind      AlertKind `json:"type"`
	Resource  Resource  `json:"resource"`
	Level     Reading   `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectionAlert is dispatched once per failed status fetch
func ConnectionAlert(at time.Time) Alert {
	return Alert{
		Kind:      AlertKindError,
		Resource:  ResourceConnection,
		Message:   "Failed to retrieve status",
		Timestamp: at,
	}
}

package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Reading is an optional numeric measurement. An invalid reading means
// "not measured" and is never evaluated.
type Reading struct {
	Value float64
	Valid bool
}

// Measured returns a valid reading holding v.
func Measured(v float64) Reading {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Reading{}
	}
	return Reading{Value: v, Valid: true}
}

// Float returns a pointer to the value, or nil when the reading is absent.
func (r Reading) Float() *float64 {
	if !r.Valid {
		return nil
	}
	v := r.Value
	return &v
}

// String formats the value with the shortest exact representation.
func (r Reading) String() string {
	if !r.Valid {
		return ""
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64)
}

// MarshalJSON encodes an absent reading as null.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// MarshalYAML encodes an absent reading as null.
func (r Reading) MarshalYAML() (any, error) {
	if !r.Valid {
		return nil, nil
	}
	return r.Value, nil
}

// UnmarshalJSON accepts JSON numbers only. Any other value (null, strings,
// objects) leaves the reading absent instead of failing the whole snapshot.
func (r *Reading) UnmarshalJSON(data []byte) error {
	*r = Reading{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	*r = Measured(v)
	return nil
}

// Consumable is a level reading for filament, paper or ink.
type Consumable struct {
	Level Reading `json:"level"`
	Type  string  `json:"type,omitempty"`
	Color string  `json:"color,omitempty"`
	Size  string  `json:"size,omitempty"`
}

// UnmarshalJSON tolerates a non-object value by leaving the section empty.
func (c *Consumable) UnmarshalJSON(data []byte) error {
	type plain Consumable
	var p plain
	if !isObject(data) {
		*c = Consumable{}
		return nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		*c = Consumable{}
		return nil
	}
	*c = Consumable(p)
	return nil
}

// SystemMetrics holds host usage percentages.
type SystemMetrics struct {
	MemoryUsage Reading `json:"memoryUsage"`
	CPUUsage    Reading `json:"cpuUsage"`
	DiskSpace   Reading `json:"diskSpace"`
}

// UnmarshalJSON tolerates a non-object value by leaving the section empty.
func (s *SystemMetrics) UnmarshalJSON(data []byte) error {
	type plain SystemMetrics
	var p plain
	if !isObject(data) {
		*s = SystemMetrics{}
		return nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		*s = SystemMetrics{}
		return nil
	}
	*s = SystemMetrics(p)
	return nil
}

// HardwareError is a device-reported fault.
type HardwareError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Hardware holds device temperature and the ordered list of active faults.
type Hardware struct {
	Temperature Reading         `json:"temperature"`
	Status      string          `json:"status,omitempty"`
	Errors      []HardwareError `json:"errors"`
}

// UnmarshalJSON decodes each field independently so that one malformed
// field does not discard the others.
func (h *Hardware) UnmarshalJSON(data []byte) error {
	*h = Hardware{}
	if !isObject(data) {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	if raw, ok := fields["temperature"]; ok {
		_ = h.Temperature.UnmarshalJSON(raw)
	}
	if raw, ok := fields["status"]; ok {
		_ = json.Unmarshal(raw, &h.Status)
	}
	if raw, ok := fields["errors"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil {
			for _, item := range items {
				var e struct {
					Code    json.RawMessage `json:"code"`
					Message json.RawMessage `json:"message"`
				}
				if err := json.Unmarshal(item, &e); err != nil {
					continue
				}
				h.Errors = append(h.Errors, HardwareError{
					Code:    scalarString(e.Code),
					Message: scalarString(e.Message),
				})
			}
		}
	}
	return nil
}

// Jobs are informational print-queue counters.
type Jobs struct {
	Active    int `json:"active"`
	Queued    int `json:"queued"`
	Completed int `json:"completed"`
}

// Snapshot is one poll cycle's set of readings. Every section is optional.
type Snapshot struct {
	Filament *Consumable    `json:"filament,omitempty"`
	Paper    *Consumable    `json:"paper,omitempty"`
	Ink      *Consumable    `json:"ink,omitempty"`
	System   *SystemMetrics `json:"system,omitempty"`
	Hardware *Hardware      `json:"hardware,omitempty"`
	Jobs     *Jobs          `json:"jobs,omitempty"`
}

// Consumable returns the consumable section for r, or nil.
func (s *Snapshot) Consumable(r Resource) *Consumable {
	if s == nil {
		return nil
	}
	switch r {
	case ResourceFilament:
		return s.Filament
	case ResourcePaper:
		return s.Paper
	case ResourceInk:
		return s.Ink
	}
	return nil
}

// DecodeSnapshot parses a status document. Only a syntactically invalid
// document is an error; malformed fields are treated as absent.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		// a section of the wrong JSON type (e.g. jobs as a string)
		s = Snapshot{}
		decodeSection(raw, "filament", &s.Filament)
		decodeSection(raw, "paper", &s.Paper)
		decodeSection(raw, "ink", &s.Ink)
		decodeSection(raw, "system", &s.System)
		decodeSection(raw, "hardware", &s.Hardware)
		decodeSection(raw, "jobs", &s.Jobs)
	}
	return &s, nil
}

func decodeSection[T any](raw map[string]json.RawMessage, key string, dst **T) {
	data, ok := raw[key]
	if !ok || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return
	}
	*dst = &v
}

func isObject(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '{'
}

func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return string(bytes.TrimSpace(raw))
}

package monitor

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/model"
)

// ThresholdRegistry holds the runtime alert limits
type ThresholdRegistry struct {
	logger *zap.Logger
	mu     sync.RWMutex
	limits model.Thresholds
}

// NewThresholdRegistry creates a registry seeded with the default limits
func NewThresholdRegistry(logger *zap.Logger) *ThresholdRegistry {
	return &ThresholdRegistry{
		logger: logger.Named("thresholds"),
		limits: model.DefaultThresholds(),
	}
}

// Get returns the limit for a resource
func (r *ThresholdRegistry) Get(resource model.Resource) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.limits[resource]
	return v, ok
}

// Set updates a single limit. It reports false for unknown resources and
// non-finite values and leaves every limit unchanged in that case.
func (r *ThresholdRegistry) Set(resource model.Resource, value float64) bool {
	return r.Validate(resource, value) == nil && r.set(resource, value)
}

// Validate explains why Set would reject the pair, or returns nil
func (r *ThresholdRegistry) Validate(resource model.Resource, value float64) error {
	if !resource.IsThresholded() {
		return ErrUnknownResource
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ErrInvalidThreshold
	}
	return nil
}

func (r *ThresholdRegistry) set(resource model.Resource, value float64) bool {
	r.mu.Lock()
	r.limits[resource] = value
	r.mu.Unlock()

	r.logger.Info("Threshold updated",
		zap.String("resource", string(resource)),
		zap.Float64("value", value))
	return true
}

// Apply sets every entry of limits and returns the keys that were rejected
func (r *ThresholdRegistry) Apply(limits map[string]float64) []string {
	var rejected []string
	for key, value := range limits {
		resource, _ := model.ParseResource(key)
		if !r.Set(resource, value) {
			rejected = append(rejected, key)
			r.logger.Warn("Ignoring threshold",
				zap.String("resource", key),
				zap.Float64("value", value))
		}
	}
	return rejected
}

// Thresholds returns a copy of the current limits
func (r *ThresholdRegistry) Thresholds() model.Thresholds {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limits.Clone()
}

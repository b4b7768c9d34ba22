package source

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/t77yq/kioskmon/internal/model"
)

// MockSource produces random demo data in the shape a kiosk reports
type MockSource struct {
	mu        sync.Mutex
	rng       *rand.Rand
	errorRate float64
}

// NewMockSource creates a mock source. A nil rng is seeded from the clock.
// errorRate is the chance of a hardware error per snapshot.
func NewMockSource(rng *rand.Rand, errorRate float64) *MockSource {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &MockSource{rng: rng, errorRate: errorRate}
}

func (s *MockSource) Name() string { return "mock" }

// Fetch returns a new random snapshot
func (s *MockSource) Fetch(ctx context.Context) (*model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// Snapshot generates one random snapshot
func (s *MockSource) Snapshot() *model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	pct := func() model.Reading { return model.Measured(float64(s.rng.Intn(100))) }

	snapshot := &model.Snapshot{
		Filament: &model.Consumable{Level: pct(), Type: "PLA", Color: "Blue"},
		Paper:    &model.Consumable{Level: pct(), Size: "A4"},
		Ink:      &model.Consumable{Level: pct(), Type: "Standard"},
		System: &model.SystemMetrics{
			MemoryUsage: pct(),
			CPUUsage:    pct(),
			DiskSpace:   pct(),
		},
		Hardware: &model.Hardware{
			Temperature: model.Measured(float64(35 + s.rng.Intn(30))),
			Status:      "ready",
			Errors:      []model.HardwareError{},
		},
		Jobs: &model.Jobs{
			Active:    s.rng.Intn(3),
			Queued:    s.rng.Intn(5),
			Completed: 125,
		},
	}

	if s.rng.Float64() < s.errorRate {
		snapshot.Hardware.Errors = append(snapshot.Hardware.Errors, model.HardwareError{
			Code:    fmt.Sprintf("E%d", s.rng.Intn(100)),
			Message: "Random hardware error for testing",
		})
	}
	return snapshot
}

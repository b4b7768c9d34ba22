package server

import (
	"context"
	"sync"

	"github.com/t77yq/kioskmon/internal/monitor"
)

// LatestUpdate caches the most recent poll update for the dashboard
type LatestUpdate struct {
	mu     sync.RWMutex
	update *monitor.Update
}

// OnUpdate stores the update
func (l *LatestUpdate) OnUpdate(_ context.Context, update monitor.Update) {
	l.mu.Lock()
	l.update = &update
	l.mu.Unlock()
}

// Get returns the cached update, if any
func (l *LatestUpdate) Get() (monitor.Update, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.update == nil {
		return monitor.Update{}, false
	}
	return *l.update, true
}

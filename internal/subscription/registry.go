package subscription

import (
	"sync"

	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/model"
)

// Registry keeps the in-memory list of push subscriptions
type Registry struct {
	logger *zap.Logger
	mu     sync.Mutex
	subs   []model.Subscription
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{logger: logger.Named("subscriptions")}
}

// Add appends a subscription. Duplicates are kept.
func (r *Registry) Add(sub model.Subscription) {
	r.mu.Lock()
	r.subs = append(r.subs, sub)
	count := len(r.subs)
	r.mu.Unlock()

	r.logger.Info("Subscription added",
		zap.String("endpoint", sub.Endpoint),
		zap.Int("count", count))
}

// Remove deletes the first subscription with the same endpoint and keys
func (r *Registry) Remove(sub model.Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.subs {
		if existing.Same(sub) {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a copy of the current subscriptions
func (r *Registry) List() []model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Subscription, len(r.subs))
	copy(out, r.subs)
	return out
}

// Len returns the number of subscriptions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

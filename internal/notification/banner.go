package notification

import (
	"context"
	"sync"

	"github.com/t77yq/kioskmon/internal/model"
)

const defaultBannerCapacity = 50

// BannerChannel keeps the most recent notifications for the in-app banner
type BannerChannel struct {
	mu       sync.RWMutex
	capacity int
	items    []model.Notification
}

// NewBannerChannel creates a banner channel holding up to capacity notifications
func NewBannerChannel(capacity int) *BannerChannel {
	if capacity <= 0 {
		capacity = defaultBannerCapacity
	}
	return &BannerChannel{capacity: capacity}
}

func (b *BannerChannel) Name() string { return "banner" }

// Send records the notification, evicting the oldest when full
func (b *BannerChannel) Send(_ context.Context, n model.Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == b.capacity {
		copy(b.items, b.items[1:])
		b.items = b.items[:len(b.items)-1]
	}
	b.items = append(b.items, n)
	return nil
}

// Recent returns the stored notifications, oldest first
func (b *BannerChannel) Recent() []model.Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.Notification, len(b.items))
	copy(out, b.items)
	return out
}

package notification

import (
	"context"

	"github.com/t77yq/kioskmon/internal/model"
)

// Channel delivers rendered notifications to one destination
type Channel interface {
	// Name identifies the channel in logs and reports
	Name() string

	// Send delivers a notification. Implementations must be safe for
	// concurrent use and must not modify n.
	Send(ctx context.Context, n model.Notification) error
}

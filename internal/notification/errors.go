package notification

import (
	"errors"
	"fmt"
)

// ErrEndpointGone is returned when a push service reports that a
// subscription is permanently invalid
var ErrEndpointGone = errors.New("push endpoint gone")

// DeliveryError describes a failed delivery attempt
type DeliveryError struct {
	Channel string
	Target  string
	Err     error
}

func (e *DeliveryError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("deliver via %s to %s: %v", e.Channel, e.Target, e.Err)
	}
	return fmt.Sprintf("deliver via %s: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

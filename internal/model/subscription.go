package model

import "encoding/json"

// SubscriptionKeys are the client public key and auth secret of a push subscription.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is a browser push subscription as posted by the client.
type Subscription struct {
	Endpoint       string           `json:"endpoint"`
	ExpirationTime json.RawMessage  `json:"expirationTime,omitempty"`
	Keys           SubscriptionKeys `json:"keys"`
}

// Same reports whether two subscriptions address the same endpoint with the same keys.
func (s Subscription) Same(other Subscription) bool {
	return s.Endpoint == other.Endpoint && s.Keys == other.Keys
}

package model

import "time"

// Notification is the rendered form of an alert handed to delivery channels.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Alert     Alert     `json:"alert"`
}

// PushPayload is the JSON document delivered to push subscribers.
type PushPayload struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// Payload returns the push payload of the notification.
func (n Notification) Payload() PushPayload {
	return PushPayload{
		Title:     n.Title,
		Body:      n.Body,
		URL:       n.URL,
		Timestamp: n.Timestamp,
	}
}

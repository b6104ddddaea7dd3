package model

import "time"

// PushSubscription is a browser Web Push endpoint registered for reminders.
type PushSubscription struct {
	ID         int64     `json:"id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh"`
	AuthKey    string    `json:"auth"`
	DeviceName string    `json:"device_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Package reminder fires notifications for occurrences whose reminder lead
// time has come due.
package reminder

import (
	"fmt"
	"time"

	"wallcal/internal/wallclock"
)

// NoReminder is the AlertOffsetMinutes value meaning "no reminder".
const NoReminder = -1

// Option is one choice of the reminder picker.
type Option struct {
	Label   string `json:"label"`
	Minutes int    `json:"value"`
}

// Options are the reminder lead times offered to users.
var Options = []Option{
	{"None", NoReminder},
	{"At start time", 0},
	{"5 minutes before", 5},
	{"10 minutes before", 10},
	{"15 minutes before", 15},
	{"30 minutes before", 30},
	{"1 hour before", 60},
	{"2 hours before", 120},
	{"1 day before", 1440},
	{"2 days before", 2880},
	{"1 week before", 10080},
}

// Notification is a reminder that came due.
type Notification struct {
	Key        string         `json:"key"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	InstanceID string         `json:"instanceId"`
	Start      wallclock.Time `json:"start"`
	FireAt     time.Time      `json:"fireAt"`
}

const notificationTitle = "Event reminder"

// Key identifies the reminder of one occurrence. A key fires at most once.
func Key(instanceID string) string {
	return "event-" + instanceID
}

// Message is the notification body for an event titled title, minutes
// before it starts.
func Message(title string, minutes int) string {
	switch minutes {
	case 0:
		return title + " starts now"
	case 1:
		return title + " starts in 1 minute"
	default:
		return fmt.Sprintf("%s starts in %d minutes", title, minutes)
	}
}

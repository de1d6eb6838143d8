// Package changefeed tells connected clients which records changed so they
// can refresh cached views.
package changefeed

import (
	"strings"
	"time"
)

// Actions carried in event types.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Event announces a committed write. Type is "<record>.<action>", e.g.
// "deal.updated" or "bill.approved".
type Event struct {
	Type string    `json:"type"`
	ID   uint      `json:"id"`
	At   time.Time `json:"at"`
}

func NewEvent(record, action string, id uint) Event {
	return Event{Type: record + "." + action, ID: id, At: time.Now().UTC()}
}

// Record returns the record part of the event type.
func (e Event) Record() string {
	record, _, _ := strings.Cut(e.Type, ".")
	return record
}

// Publisher accepts events after a write commits. Implementations must not
// block the caller.
type Publisher interface {
	Publish(Event)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

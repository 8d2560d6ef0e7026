package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventStatus gates whether new registrations are accepted.
type EventStatus string

const (
	EventStatusOpen   EventStatus = "OPEN"
	EventStatusClosed EventStatus = "CLOSED"
)

// Event is an admin-defined competition. Registration is permitted only while
// the event is OPEN and, when a deadline is set, up to and including the
// deadline day.
type Event struct {
	ID            string          `db:"id" json:"id"`
	Code          string          `db:"code" json:"code"`
	Name          string          `db:"name" json:"name"`
	Season        string          `db:"season" json:"season,omitempty"`
	City          string          `db:"city" json:"city,omitempty"`
	Deadline      *time.Time      `db:"deadline" json:"deadline,omitempty"`
	Status        EventStatus     `db:"status" json:"status"`
	FeePerStudent decimal.Decimal `db:"fee_per_student" json:"fee_per_student"`
	Notes         string          `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// AcceptsRegistrations reports whether new registrations may target the event
// on the given day.
func (e *Event) AcceptsRegistrations(today time.Time) bool {
	if e.Status != EventStatusOpen {
		return false
	}
	if e.Deadline == nil {
		return true
	}
	deadline := time.Date(e.Deadline.Year(), e.Deadline.Month(), e.Deadline.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return !deadline.Before(day)
}

// EventFilter captures list criteria for events.
type EventFilter struct {
	Status    EventStatus
	Season    string
	City      string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

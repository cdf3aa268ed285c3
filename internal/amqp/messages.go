package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names the trip store change carried by a TripEvent.
type EventType string

const (
	EventTripsIngested EventType = "trips.ingested"
	EventTripsCleared  EventType = "trips.cleared"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return t == EventTripsIngested || t == EventTripsCleared
}

// TripEvent announces that a user's trip collection changed. It carries
// only identifiers and counts; consumers reload the records from the store.
type TripEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	UserID      int64     `json:"user_id"`
	SourceFiles []string  `json:"source_files,omitempty"`
	Records     int       `json:"records"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewTripEvent creates an event with a fresh id.
func NewTripEvent(t EventType, userID int64, files []string, records int) *TripEvent {
	return &TripEvent{
		ID:          uuid.NewString(),
		Type:        t,
		UserID:      userID,
		SourceFiles: files,
		Records:     records,
		Timestamp:   time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TripEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TripEventFromJSON decodes and validates an event.
func TripEventFromJSON(data []byte) (*TripEvent, error) {
	var msg TripEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.UserID <= 0 {
		return nil, errors.New("event without user id")
	}
	return &msg, nil
}

// Package storage defines how bars are persisted between requests.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hipsterbar/internal/bar"
)

var (
	ErrNotFound            = errors.New("bar not found")
	ErrBarExists           = errors.New("bar code already taken")
	ErrConcurrencyConflict = errors.New("bar was modified concurrently")
)

// AggregateType tags bar streams in shared event tables.
const AggregateType = "bar"

// Event is one recorded change to a bar.
type Event struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	Version    int             `json:"version"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent encodes payload as the data of an event of the given type.
func NewEvent(eventType string, payload any, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	return Event{Type: eventType, Data: data, OccurredAt: at}, nil
}

// Repository stores bars under optimistic versioning. A bar created with
// Create is at version 1; every Save appends one event and bumps the version.
type Repository interface {
	// Migrate creates the backing schema if it does not exist.
	Migrate(ctx context.Context) error
	// Create stores a new bar. It fails with ErrBarExists when the code is
	// already in use.
	Create(ctx context.Context, b *bar.Bar, created Event) error
	// Load returns the bar with the given code and its current version.
	Load(ctx context.Context, code bar.Code) (*bar.Bar, int, error)
	// Save stores b if the bar is still at expectedVersion, otherwise it
	// fails with ErrConcurrencyConflict.
	Save(ctx context.Context, b *bar.Bar, expectedVersion int, ev Event) error
	// History returns every event recorded for the bar, oldest first.
	History(ctx context.Context, code bar.Code) ([]Event, error)
	Close() error
}

// EncodeState serialises the full state of a bar.
func EncodeState(b *bar.Bar) ([]byte, error) {
	data, err := json.Marshal(b.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to encode bar %s: %w", b.Code(), err)
	}
	return data, nil
}

// DecodeState rebuilds a bar from EncodeState output.
func DecodeState(data []byte) (*bar.Bar, error) {
	var st bar.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode bar state: %w", err)
	}
	b, err := bar.Restore(st)
	if err != nil {
		return nil, fmt.Errorf("failed to restore bar %s: %w", st.Code, err)
	}
	return b, nil
}

// Package postgres stores bars as event streams with snapshots in Postgres.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"hipsterbar/internal/bar"
	"hipsterbar/internal/eventstore"
	"hipsterbar/internal/storage"
)

//go:embed schema.sql
var schema string

// Store maps bar codes to aggregate streams in the event store.
type Store struct {
	db     *sql.DB
	events *eventstore.EventStore
	logger *slog.Logger
}

var _ storage.Repository = (*Store)(nil)

// Open connects to the database at dsn.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db, logger), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		db:     db,
		events: eventstore.NewEventStore(db),
		logger: logger.With("component", "storage.postgres"),
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.events.InitSchema(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create bar code table: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, b *bar.Bar, created storage.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bar_codes (code, bar_id) VALUES ($1, $2)`,
		b.Code().String(), b.ID(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return storage.ErrBarExists
		}
		return fmt.Errorf("failed to reserve bar code: %w", err)
	}

	if err := s.append(ctx, b, 0, created); err != nil {
		if _, cleanupErr := s.db.ExecContext(ctx, `DELETE FROM bar_codes WHERE code = $1`, b.Code().String()); cleanupErr != nil {
			s.logger.Error("failed to release bar code", "code", b.Code(), "error", cleanupErr)
		}
		return err
	}
	return nil
}

func (s *Store) Load(ctx context.Context, code bar.Code) (*bar.Bar, int, error) {
	id, err := s.lookup(ctx, code)
	if err != nil {
		return nil, 0, err
	}
	snap, err := s.events.LoadSnapshot(ctx, id)
	if errors.Is(err, eventstore.ErrAggregateNotFound) {
		return nil, 0, storage.ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	b, err := storage.DecodeState(snap.State)
	if err != nil {
		return nil, 0, err
	}
	return b, snap.Version, nil
}

func (s *Store) Save(ctx context.Context, b *bar.Bar, expectedVersion int, ev storage.Event) error {
	return s.append(ctx, b, expectedVersion, ev)
}

func (s *Store) History(ctx context.Context, code bar.Code) ([]storage.Event, error) {
	id, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	stored, err := s.events.LoadEvents(ctx, id, 0, 0)
	if err != nil {
		return nil, err
	}
	history := make([]storage.Event, len(stored))
	for i, e := range stored {
		history[i] = storage.Event{
			Type:       e.EventType,
			Data:       e.EventData,
			Version:    e.Version,
			OccurredAt: e.CreatedAt,
		}
	}
	return history, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) append(ctx context.Context, b *bar.Bar, expectedVersion int, ev storage.Event) error {
	state, err := storage.EncodeState(b)
	if err != nil {
		return err
	}
	err = s.events.AppendEvents(ctx, b.ID(), storage.AggregateType, expectedVersion, []eventstore.Event{{
		AggregateID:   b.ID(),
		AggregateType: storage.AggregateType,
		EventType:     ev.Type,
		EventData:     ev.Data,
		CreatedAt:     ev.OccurredAt,
	}}, state)
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return storage.ErrConcurrencyConflict
	}
	return err
}

func (s *Store) lookup(ctx context.Context, code bar.Code) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT bar_id FROM bar_codes WHERE code = $1`, code.String(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, storage.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up bar %s: %w", code, err)
	}
	return id, nil
}

// Package sqlite stores bar snapshots and their event log in SQLite via gorm.
// An empty path selects a private in-memory database, which is what tests
// and local development use.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"hipsterbar/internal/bar"
	"hipsterbar/internal/storage"
)

// BarRecord is the latest state of one bar.
type BarRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Code      string `gorm:"uniqueIndex;size:6;not null"`
	Version   int    `gorm:"not null"`
	State     []byte `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BarRecord) TableName() string { return "bars" }

// EventRecord is one entry of a bar's event log.
type EventRecord struct {
	ID         uint   `gorm:"primaryKey"`
	BarID      string `gorm:"size:36;not null;uniqueIndex:idx_bar_events_version"`
	Version    int    `gorm:"not null;uniqueIndex:idx_bar_events_version"`
	Type       string `gorm:"not null"`
	Data       []byte
	OccurredAt time.Time
}

func (EventRecord) TableName() string { return "bar_events" }

// Store implements storage.Repository on gorm.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ storage.Repository = (*Store)(nil)

// Open opens (or creates) the database at path. Uses a fresh in-memory
// database if path is empty.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	if path == "" {
		dsn = fmt.Sprintf("file:hipsterbar-%s?mode=memory&cache=shared", uuid.NewString())
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	// SQLite allows one writer; serialise through a single connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable tracing: %w", err)
	}
	return &Store{db: db, logger: logger.With("component", "storage.sqlite")}, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, model := range []any{&BarRecord{}, &EventRecord{}} {
		s.logger.Debug(fmt.Sprintf("creating table: %T", model))
		if err := s.db.WithContext(ctx).AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, b *bar.Bar, created storage.Event) error {
	state, err := storage.EncodeState(b)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := BarRecord{
			ID:      b.ID().String(),
			Code:    b.Code().String(),
			Version: 1,
			State:   state,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isDuplicate(err) {
				return storage.ErrBarExists
			}
			return fmt.Errorf("failed to insert bar: %w", err)
		}
		return appendEvent(tx, rec.ID, 1, created)
	})
}

func (s *Store) Load(ctx context.Context, code bar.Code) (*bar.Bar, int, error) {
	rec, err := s.find(s.db.WithContext(ctx), code)
	if err != nil {
		return nil, 0, err
	}
	b, err := storage.DecodeState(rec.State)
	if err != nil {
		return nil, 0, err
	}
	return b, rec.Version, nil
}

func (s *Store) Save(ctx context.Context, b *bar.Bar, expectedVersion int, ev storage.Event) error {
	state, err := storage.EncodeState(b)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&BarRecord{}).
			Where("id = ? AND version = ?", b.ID().String(), expectedVersion).
			Updates(map[string]any{
				"version":    expectedVersion + 1,
				"state":      state,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update bar: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return storage.ErrConcurrencyConflict
		}
		return appendEvent(tx, b.ID().String(), expectedVersion+1, ev)
	})
}

func (s *Store) History(ctx context.Context, code bar.Code) ([]storage.Event, error) {
	db := s.db.WithContext(ctx)
	rec, err := s.find(db, code)
	if err != nil {
		return nil, err
	}
	var rows []EventRecord
	if err := db.Where("bar_id = ?", rec.ID).Order("version ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load events of bar %s: %w", code, err)
	}
	history := make([]storage.Event, len(rows))
	for i, r := range rows {
		history[i] = storage.Event{Type: r.Type, Data: r.Data, Version: r.Version, OccurredAt: r.OccurredAt}
	}
	return history, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) find(db *gorm.DB, code bar.Code) (BarRecord, error) {
	var rec BarRecord
	err := db.Where("code = ?", code.String()).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return BarRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return BarRecord{}, fmt.Errorf("failed to load bar %s: %w", code, err)
	}
	return rec, nil
}

func appendEvent(tx *gorm.DB, barID string, version int, ev storage.Event) error {
	at := ev.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	row := EventRecord{BarID: barID, Version: version, Type: ev.Type, Data: ev.Data, OccurredAt: at}
	if err := tx.Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return storage.ErrConcurrencyConflict
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

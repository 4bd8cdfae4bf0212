// Package eventlog is an append-only, per-aggregate event history with
// optimistic concurrency control. Appends run on the caller's transaction so
// an event commits or rolls back together with the state change it records.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
)

var (
	ErrConcurrencyConflict = apperr.New(apperr.Conflict, "concurrency conflict: version mismatch")
	ErrInvalidVersion      = errors.New("invalid version number")
)

// Event is one recorded state change of an aggregate.
type Event struct {
	ID            int64                  `json:"id"`
	AggregateID   uuid.UUID              `json:"aggregate_id"`
	AggregateType string                 `json:"aggregate_type"`
	EventType     string                 `json:"event_type"`
	EventData     json.RawMessage        `json:"event_data"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Version       int                    `json:"version"`
	CreatedAt     time.Time              `json:"created_at"`
}

type eventRow struct {
	ID            int64     `db:"id"`
	AggregateID   uuid.UUID `db:"aggregate_id"`
	AggregateType string    `db:"aggregate_type"`
	EventType     string    `db:"event_type"`
	EventData     []byte    `db:"event_data"`
	Metadata      []byte    `db:"metadata"`
	Version       int       `db:"version"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r eventRow) event() Event {
	e := Event{
		ID:            r.ID,
		AggregateID:   r.AggregateID,
		AggregateType: r.AggregateType,
		EventType:     r.EventType,
		EventData:     json.RawMessage(r.EventData),
		Version:       r.Version,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &e.Metadata)
	}
	return e
}

// New builds an event of the given type with data marshalled as JSON.
func New(eventType string, data interface{}, metadata map[string]interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return Event{EventType: eventType, EventData: raw, Metadata: metadata}, nil
}

// Log appends and reads events.
type Log struct {
	tracer trace.Tracer
	now    func() time.Time
}

// NewLog returns a Log that stamps events with the wall clock.
func NewLog() *Log {
	return &Log{
		tracer: otel.Tracer("rentify/eventlog"),
		now:    time.Now,
	}
}

// WithClock replaces the timestamp source.
func (l *Log) WithClock(now func() time.Time) *Log {
	l.now = now
	return l
}

// Append writes events for an aggregate whose current version must equal
// expectedVersion. It returns the version of the last appended event.
func (l *Log) Append(ctx context.Context, q storage.Queryer, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events ...Event) (int, error) {
	ctx, span := l.tracer.Start(ctx, "eventlog.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if expectedVersion < 0 {
		return 0, ErrInvalidVersion
	}

	currentVersion, err := l.currentVersion(ctx, q, aggregateID)
	if err != nil {
		return 0, err
	}
	if currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return 0, ErrConcurrencyConflict
	}

	insert := q.Rebind(`
		INSERT INTO events (aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	version := expectedVersion
	for i, event := range events {
		version = expectedVersion + i + 1

		var metadataJSON []byte
		if event.Metadata != nil {
			if metadataJSON, err = json.Marshal(event.Metadata); err != nil {
				return 0, fmt.Errorf("marshal metadata: %w", err)
			}
		}

		_, err = q.ExecContext(ctx, insert,
			aggregateID,
			aggregateType,
			event.EventType,
			string(event.EventData),
			nullableJSON(metadataJSON),
			version,
			l.now().UTC(),
		)
		if err != nil {
			if storage.IsUniqueViolation(err) {
				return 0, ErrConcurrencyConflict
			}
			return 0, fmt.Errorf("insert event %d: %w", i, err)
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int("event.version", version),
			attribute.String("event.type", event.EventType),
		))
	}

	span.SetAttributes(attribute.Bool("append.success", true))
	return version, nil
}

// Load returns an aggregate's events in version order. A toVersion of zero
// means no upper bound.
func (l *Log) Load(ctx context.Context, q storage.Queryer, aggregateID uuid.UUID, fromVersion, toVersion int) ([]Event, error) {
	ctx, span := l.tracer.Start(ctx, "eventlog.load",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.Int("from.version", fromVersion),
			attribute.Int("to.version", toVersion),
		),
	)
	defer span.End()

	query := `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at
		FROM events
		WHERE aggregate_id = ?
		AND version >= ?
	`
	args := []interface{}{aggregateID, fromVersion}
	if toVersion > 0 {
		query += " AND version <= ?"
		args = append(args, toVersion)
	}
	query += " ORDER BY version ASC"

	var rows []eventRow
	if err := q.SelectContext(ctx, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.event())
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// CurrentVersion returns the latest version for an aggregate, zero if it has
// no events.
func (l *Log) CurrentVersion(ctx context.Context, q storage.Queryer, aggregateID uuid.UUID) (int, error) {
	ctx, span := l.tracer.Start(ctx, "eventlog.current_version",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID.String())),
	)
	defer span.End()

	version, err := l.currentVersion(ctx, q, aggregateID)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("current.version", version))
	return version, nil
}

func (l *Log) currentVersion(ctx context.Context, q storage.Queryer, aggregateID uuid.UUID) (int, error) {
	var version int
	err := q.GetContext(ctx, &version, q.Rebind(`
		SELECT COALESCE(MAX(version), 0)
		FROM events
		WHERE aggregate_id = ?
	`), aggregateID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("query current version: %w", err)
	}
	return version, nil
}

func nullableJSON(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}

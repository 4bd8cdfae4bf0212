package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/eventlog"
	"github.com/enggsatyamraj/rentify-backend/internal/property"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
)

// RoomsReservedEvent is recorded on the property stream for every reserve.
type RoomsReservedEvent struct {
	PropertyID     uuid.UUID `json:"property_id"`
	Rooms          int       `json:"rooms"`
	AvailableRooms int       `json:"available_rooms"`
}

// RoomsReleasedEvent is recorded on the property stream for every release.
type RoomsReleasedEvent struct {
	PropertyID     uuid.UUID `json:"property_id"`
	Rooms          int       `json:"rooms"`
	AvailableRooms int       `json:"available_rooms"`
}

// Ledger adjusts room inventory inside the caller's transaction. The
// property row is locked before it is read, and the write carries the
// version that was read.
type Ledger struct {
	properties property.Repository
	events     *eventlog.Log
	tracer     trace.Tracer
	now        func() time.Time
}

func NewLedger(events *eventlog.Log) *Ledger {
	return &Ledger{
		events: events,
		tracer: otel.Tracer("rentify/inventory"),
		now:    time.Now,
	}
}

// Reserve takes roomCount rooms of the property.
func (l *Ledger) Reserve(ctx context.Context, q storage.Queryer, propertyID uuid.UUID, roomCount int) (Availability, error) {
	ctx, span := l.tracer.Start(ctx, "inventory.reserve", trace.WithAttributes(
		attribute.String("property.id", propertyID.String()),
		attribute.Int("rooms", roomCount),
	))
	defer span.End()

	p, err := l.properties.FindByID(ctx, q, propertyID, true)
	if err != nil {
		return Availability{}, err
	}

	next, err := availabilityOf(p).Reserve(roomCount)
	if err != nil {
		span.SetAttributes(attribute.Bool("inventory.insufficient", true))
		return availabilityOf(p), err
	}

	event, err := eventlog.New("RoomsReserved", RoomsReservedEvent{
		PropertyID: propertyID, Rooms: roomCount, AvailableRooms: next.Available,
	}, nil)
	if err != nil {
		return Availability{}, err
	}
	if err := l.write(ctx, q, p, next, event); err != nil {
		return Availability{}, err
	}

	span.SetAttributes(attribute.Int("rooms.available", next.Available))
	return next, nil
}

// Release returns roomCount rooms to the property.
func (l *Ledger) Release(ctx context.Context, q storage.Queryer, propertyID uuid.UUID, roomCount int) (Availability, error) {
	ctx, span := l.tracer.Start(ctx, "inventory.release", trace.WithAttributes(
		attribute.String("property.id", propertyID.String()),
		attribute.Int("rooms", roomCount),
	))
	defer span.End()

	p, err := l.properties.FindByID(ctx, q, propertyID, true)
	if err != nil {
		return Availability{}, err
	}

	next := availabilityOf(p).Release(roomCount)
	event, err := eventlog.New("RoomsReleased", RoomsReleasedEvent{
		PropertyID: propertyID, Rooms: roomCount, AvailableRooms: next.Available,
	}, nil)
	if err != nil {
		return Availability{}, err
	}
	if err := l.write(ctx, q, p, next, event); err != nil {
		return Availability{}, err
	}

	span.SetAttributes(attribute.Int("rooms.available", next.Available))
	return next, nil
}

func (l *Ledger) write(ctx context.Context, q storage.Queryer, p *property.Property, next Availability, event eventlog.Event) error {
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE properties
		SET available_rooms = ?, is_rented = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`), next.Available, next.Rented, p.Version+1, l.now().UTC().Truncate(time.Microsecond), p.ID, p.Version)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.Conflict, "Property was modified concurrently")
	}

	_, err = l.events.Append(ctx, q, p.ID, property.AggregateType, p.Version, event)
	return err
}

func availabilityOf(p *property.Property) Availability {
	return Availability{Total: p.TotalRooms, Available: p.AvailableRooms, Rented: p.IsRented}
}

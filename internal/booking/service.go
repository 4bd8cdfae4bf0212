package booking

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/enggsatyamraj/rentify-backend/internal/document"
	"github.com/enggsatyamraj/rentify-backend/internal/eventlog"
	"github.com/enggsatyamraj/rentify-backend/internal/inventory"
	"github.com/enggsatyamraj/rentify-backend/internal/notification"
	"github.com/enggsatyamraj/rentify-backend/internal/property"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
	"github.com/enggsatyamraj/rentify-backend/internal/user"
)

// Service is the booking engine.
type Service interface {
	CreateBooking(ctx context.Context, actorID uuid.UUID, in CreateInput) (*Booking, error)
	UpdateBookingStatus(ctx context.Context, actorID, bookingID uuid.UUID, in StatusInput) (*Booking, error)
	UpdateMoveInDetails(ctx context.Context, actorID, bookingID uuid.UUID, in MoveInInput) (*Booking, error)
	UpdateContractDetails(ctx context.Context, actorID, bookingID uuid.UUID, in ContractInput) (*Booking, error)
	GetBookingByID(ctx context.Context, actorID, bookingID uuid.UUID) (*Booking, error)
	ListBookingsForTenant(ctx context.Context, actorID uuid.UUID, status *Status) ([]*Booking, error)
	ListBookingsForProperty(ctx context.Context, actorID, propertyID uuid.UUID, status *Status) ([]*Booking, error)
	BookingHistory(ctx context.Context, actorID, bookingID uuid.UUID) ([]eventlog.Event, error)
	// DueMoveIns lists confirmed bookings with a scheduled move-in in
	// [from, to).
	DueMoveIns(ctx context.Context, from, to time.Time) ([]*Booking, error)
}

// UserDirectory resolves accounts inside the engine's transaction.
type UserDirectory interface {
	FindByID(ctx context.Context, q storage.Queryer, id uuid.UUID) (*user.User, error)
}

// PropertyDirectory resolves listings, optionally locking the row.
type PropertyDirectory interface {
	FindByID(ctx context.Context, q storage.Queryer, id uuid.UUID, forUpdate bool) (*property.Property, error)
}

// Ledger moves room inventory on the caller's transaction.
type Ledger interface {
	Reserve(ctx context.Context, q storage.Queryer, propertyID uuid.UUID, roomCount int) (inventory.Availability, error)
	Release(ctx context.Context, q storage.Queryer, propertyID uuid.UUID, roomCount int) (inventory.Availability, error)
}

// Notifier accepts messages for best-effort delivery. It must not block.
type Notifier interface {
	Notify(ctx context.Context, msgs ...notification.Message)
}

// DocumentStore keeps uploaded contract documents.
type DocumentStore interface {
	Upload(ctx context.Context, folder, name string, r io.Reader) (document.Stored, error)
}

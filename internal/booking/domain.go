package booking

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

// Type distinguishes fixed-term leases from open-ended ones.
type Type string

const (
	TypeFixedTerm    Type = "fixed-term"
	TypeMonthToMonth Type = "month-to-month"
)

// MoveInStatus tracks the tenant's move-in.
type MoveInStatus string

const (
	MoveInScheduled MoveInStatus = "scheduled"
	MoveInCompleted MoveInStatus = "completed"
	MoveInCancelled MoveInStatus = "cancelled"
)

// transitions lists the statuses reachable from each status. Cancelled,
// completed and rejected are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusRejected},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

func (t Type) Valid() bool {
	return t == TypeFixedTerm || t == TypeMonthToMonth
}

func (m MoveInStatus) Valid() bool {
	return m == MoveInScheduled || m == MoveInCompleted || m == MoveInCancelled
}

// Booking is a tenant's request to rent rooms of a property.
type Booking struct {
	ID           uuid.UUID            `json:"id"`
	PropertyID   uuid.UUID            `json:"property_id"`
	TenantID     uuid.UUID            `json:"tenant_id"`
	OwnerID      uuid.UUID            `json:"owner_id"`
	StartDate    time.Time            `json:"start_date"`
	EndDate      *time.Time           `json:"end_date,omitempty"`
	BookingType  Type                 `json:"booking_type"`
	RoomCount    int                  `json:"room_count"`
	Status       Status               `json:"status"`
	MoveIn       MoveInDetails        `json:"move_in_details"`
	Cancellation *CancellationDetails `json:"cancellation_details,omitempty"`
	Contract     *ContractDetails     `json:"contract_details,omitempty"`
	Version      int                  `json:"version"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

type MoveInDetails struct {
	ScheduledDate time.Time    `json:"scheduled_date"`
	Status        MoveInStatus `json:"status"`
	Notes         string       `json:"notes,omitempty"`
	UpdatedBy     *uuid.UUID   `json:"updated_by,omitempty"`
}

// CancellationDetails is recorded when a booking is cancelled or rejected.
type CancellationDetails struct {
	CancelledBy uuid.UUID `json:"cancelled_by"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason"`
}

type ContractDetails struct {
	DocumentURL    string     `json:"document_url,omitempty"`
	SignedByTenant bool       `json:"signed_by_tenant"`
	SignedByOwner  bool       `json:"signed_by_owner"`
	SignedAt       *time.Time `json:"signed_at,omitempty"`
}

// FullySigned reports whether both parties have signed.
func (c *ContractDetails) FullySigned() bool {
	return c != nil && c.SignedByTenant && c.SignedByOwner
}

func (c *ContractDetails) hasDocument() bool {
	return c != nil && c.DocumentURL != ""
}

// CreateInput carries a booking request.
type CreateInput struct {
	PropertyID  uuid.UUID
	StartDate   time.Time
	EndDate     *time.Time
	BookingType Type
	RoomCount   int
}

// StatusInput requests a status transition. ScheduledDate only applies to
// confirmations.
type StatusInput struct {
	Status        Status
	Reason        string
	ScheduledDate *time.Time
}

// MoveInInput updates move-in details. Nil fields are left alone; a non-nil
// empty Notes clears the notes.
type MoveInInput struct {
	ScheduledDate *time.Time
	Status        *MoveInStatus
	Notes         *string
}

// Upload is a contract document supplied with a request.
type Upload struct {
	Filename string
	Body     io.Reader
}

// ContractInput updates contract details. A document is either uploaded
// or referenced by URL.
type ContractInput struct {
	Document       *Upload
	DocumentURL    *string
	SignedByTenant *bool
	SignedByOwner  *bool
}

// BookingCreatedEvent opens a booking stream.
type BookingCreatedEvent struct {
	ID          uuid.UUID  `json:"id"`
	PropertyID  uuid.UUID  `json:"property_id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	BookingType Type       `json:"booking_type"`
	RoomCount   int        `json:"room_count"`
}

type BookingStatusChangedEvent struct {
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	ActorID uuid.UUID `json:"actor_id"`
	Reason  string    `json:"reason,omitempty"`
}

type MoveInUpdatedEvent struct {
	ActorID       uuid.UUID    `json:"actor_id"`
	ScheduledDate time.Time    `json:"scheduled_date"`
	Status        MoveInStatus `json:"status"`
	Notes         string       `json:"notes,omitempty"`
}

type ContractUpdatedEvent struct {
	ActorID        uuid.UUID  `json:"actor_id"`
	DocumentURL    string     `json:"document_url,omitempty"`
	SignedByTenant bool       `json:"signed_by_tenant"`
	SignedByOwner  bool       `json:"signed_by_owner"`
	SignedAt       *time.Time `json:"signed_at,omitempty"`
}

package property

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Listing kinds.
const (
	TypeFullHouse  = "full-house"
	TypeSingleRoom = "single-room"
	TypeMultiRoom  = "multi-room"
	TypePG         = "pg"
)

// Billing periods for the base price.
const (
	BillDaily     = "daily"
	BillMonthly   = "monthly"
	BillQuarterly = "quarterly"
	BillYearly    = "yearly"
)

// Property is a rentable listing with a room inventory. AvailableRooms and
// IsRented are written only by the inventory ledger.
type Property struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	OwnerID         uuid.UUID       `json:"owner_id" db:"owner_id"`
	Title           string          `json:"title" db:"title"`
	Description     string          `json:"description" db:"description"`
	PropertyType    string          `json:"property_type" db:"property_type"`
	City            string          `json:"city" db:"city"`
	Address         string          `json:"address" db:"address"`
	BasePrice       decimal.Decimal `json:"base_price" db:"base_price"`
	SecurityDeposit decimal.Decimal `json:"security_deposit" db:"security_deposit"`
	BillType        string          `json:"bill_type" db:"bill_type"`
	TotalRooms      int             `json:"total_rooms" db:"total_rooms"`
	AvailableRooms  int             `json:"available_rooms" db:"available_rooms"`
	AvailableFrom   time.Time       `json:"available_from" db:"available_from"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	IsVerified      bool            `json:"is_verified" db:"is_verified"`
	IsRented        bool            `json:"is_rented" db:"is_rented"`
	FavoriteCount   int             `json:"favorite_count" db:"favorite_count"`
	Version         int             `json:"version" db:"version"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Bookable reports whether the listing accepts new bookings.
func (p *Property) Bookable() bool {
	return p.IsActive && p.IsVerified
}

// CreateInput is the data an owner supplies to list a property.
type CreateInput struct {
	Title           string
	Description     string
	PropertyType    string
	City            string
	Address         string
	BasePrice       decimal.Decimal
	SecurityDeposit decimal.Decimal
	BillType        string
	TotalRooms      int
	AvailableFrom   time.Time
}

// UpdateInput changes listing details. Nil fields are left alone; room
// counts cannot be changed here.
type UpdateInput struct {
	Title           *string
	Description     *string
	PropertyType    *string
	City            *string
	Address         *string
	BasePrice       *decimal.Decimal
	SecurityDeposit *decimal.Decimal
	BillType        *string
	AvailableFrom   *time.Time
}

// Filter narrows the public listing.
type Filter struct {
	City         string
	PropertyType string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	Page         int
	Limit        int
}

// AdminFilter narrows the moderation listing.
type AdminFilter struct {
	IsVerified *bool
	Page       int
	Limit      int
}

// PropertyListedEvent is recorded when an owner lists a property.
type PropertyListedEvent struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Title      string    `json:"title"`
	TotalRooms int       `json:"total_rooms"`
}

// PropertyUpdatedEvent is recorded when listing details change.
type PropertyUpdatedEvent struct {
	ID     uuid.UUID `json:"id"`
	Fields []string  `json:"fields"`
}

// PropertyDeactivatedEvent is recorded on the owner's soft delete.
type PropertyDeactivatedEvent struct {
	ID uuid.UUID `json:"id"`
}

// PropertyVerifiedEvent is recorded when an admin changes verification.
type PropertyVerifiedEvent struct {
	ID         uuid.UUID `json:"id"`
	IsVerified bool      `json:"is_verified"`
}

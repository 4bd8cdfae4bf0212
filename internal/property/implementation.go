package property

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/eventlog"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
)

// AggregateType names property streams in the event log. The inventory
// ledger appends to the same streams.
const AggregateType = "property"

// service implements the Service interface.
type service struct {
	db     *storage.DB
	events *eventlog.Log
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the property directory.
func NewService(db *storage.DB, events *eventlog.Log, logger *zap.Logger) Service {
	return &service{db: db, events: events, logger: logger, now: time.Now}
}

func (s *service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// CreateProperty lists a property owned by ownerID. New listings start with
// every room available and wait for admin verification.
func (s *service) CreateProperty(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*Property, error) {
	if in.TotalRooms < 1 {
		return nil, apperr.New(apperr.Invalid, "Total rooms must be at least 1")
	}
	if !in.BasePrice.IsPositive() {
		return nil, apperr.New(apperr.Invalid, "Base price must be positive")
	}
	if in.SecurityDeposit.IsNegative() {
		return nil, apperr.New(apperr.Invalid, "Security deposit cannot be negative")
	}
	billType := in.BillType
	if billType == "" {
		billType = BillMonthly
	}

	now := s.timestamp()
	p := &Property{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		Title:           in.Title,
		Description:     in.Description,
		PropertyType:    in.PropertyType,
		City:            in.City,
		Address:         in.Address,
		BasePrice:       in.BasePrice,
		SecurityDeposit: in.SecurityDeposit,
		BillType:        billType,
		TotalRooms:      in.TotalRooms,
		AvailableRooms:  in.TotalRooms,
		AvailableFrom:   in.AvailableFrom.UTC(),
		IsActive:        true,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	event, err := eventlog.New("PropertyListed", PropertyListedEvent{
		ID: p.ID, OwnerID: ownerID, Title: p.Title, TotalRooms: p.TotalRooms,
	}, nil)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := insert(ctx, tx, p); err != nil {
			return err
		}
		_, err := s.events.Append(ctx, tx, p.ID, AggregateType, 0, event)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("property listed",
		zap.String("property_id", p.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.Int("total_rooms", p.TotalRooms),
	)
	return p, nil
}

// GetProperty retrieves a property by id.
func (s *service) GetProperty(ctx context.Context, id uuid.UUID) (*Property, error) {
	return s.repo.FindByID(ctx, s.db, id, false)
}

// ListProperties returns active listings matching f, newest first.
func (s *service) ListProperties(ctx context.Context, f Filter) ([]*Property, int, error) {
	w := &whereClause{}
	w.add("is_active = ?", true)
	if f.City != "" {
		w.add("LOWER(city) LIKE ?", "%"+strings.ToLower(f.City)+"%")
	}
	if f.PropertyType != "" {
		w.add("property_type = ?", f.PropertyType)
	}
	if f.MinPrice != nil {
		w.add(priceColumn(s.db)+" >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		w.add(priceColumn(s.db)+" <= ?", *f.MaxPrice)
	}
	return page(ctx, s.db, w, f.Page, f.Limit)
}

// ListOwnerProperties returns every listing of an owner, active or not.
func (s *service) ListOwnerProperties(ctx context.Context, ownerID uuid.UUID) ([]*Property, error) {
	w := &whereClause{}
	w.add("owner_id = ?", ownerID)
	props, _, err := page(ctx, s.db, w, 1, 0)
	return props, err
}

// UpdateProperty changes listing details. Only the owner may do so.
func (s *service) UpdateProperty(ctx context.Context, actorID, id uuid.UUID, in UpdateInput) (*Property, error) {
	var p *Property
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		p, err = s.repo.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if p.OwnerID != actorID {
			return apperr.New(apperr.Forbidden, "You don't have permission to update this property")
		}

		fields := applyUpdate(p, in)
		if len(fields) == 0 {
			return apperr.New(apperr.NoOp, "No fields to update")
		}
		if !p.BasePrice.IsPositive() {
			return apperr.New(apperr.Invalid, "Base price must be positive")
		}
		if p.SecurityDeposit.IsNegative() {
			return apperr.New(apperr.Invalid, "Security deposit cannot be negative")
		}

		return s.save(ctx, tx, p, "PropertyUpdated", PropertyUpdatedEvent{ID: p.ID, Fields: fields})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeactivateProperty soft-deletes a listing. Existing bookings are kept.
func (s *service) DeactivateProperty(ctx context.Context, actorID, id uuid.UUID) error {
	return s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		p, err := s.repo.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if p.OwnerID != actorID {
			return apperr.New(apperr.Forbidden, "You don't have permission to delete this property")
		}
		if !p.IsActive {
			return nil
		}
		p.IsActive = false
		return s.save(ctx, tx, p, "PropertyDeactivated", PropertyDeactivatedEvent{ID: p.ID})
	})
}

// ToggleFavorite adds the listing to the user's favourites, or removes it if
// already there. It returns the listing with its updated count and whether
// it is now a favourite.
func (s *service) ToggleFavorite(ctx context.Context, userID, id uuid.UUID) (*Property, bool, error) {
	var (
		p     *Property
		added bool
	)
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		if p, err = s.repo.FindByID(ctx, tx, id, true); err != nil {
			return err
		}
		if added, err = toggleFavorite(ctx, tx, userID, id, s.timestamp()); err != nil {
			return err
		}
		if added {
			p.FavoriteCount++
		} else {
			p.FavoriteCount--
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	s.logger.Debug("favorite toggled", zap.String("property_id", id.String()), zap.Bool("added", added))
	return p, added, nil
}

// ListFavorites returns the user's favourite listings, newest first.
func (s *service) ListFavorites(ctx context.Context, userID uuid.UUID) ([]*Property, error) {
	return favorites(ctx, s.db, userID)
}

// ListAllProperties is the moderation view over active listings.
func (s *service) ListAllProperties(ctx context.Context, f AdminFilter) ([]*Property, int, error) {
	w := &whereClause{}
	w.add("is_active = ?", true)
	if f.IsVerified != nil {
		w.add("is_verified = ?", *f.IsVerified)
	}
	return page(ctx, s.db, w, f.Page, f.Limit)
}

// SetVerified changes a listing's verification. Unverified listings cannot
// be booked.
func (s *service) SetVerified(ctx context.Context, id uuid.UUID, verified bool) (*Property, error) {
	var p *Property
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		p, err = s.repo.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if p.IsVerified == verified {
			return nil
		}
		p.IsVerified = verified
		return s.save(ctx, tx, p, "PropertyVerified", PropertyVerifiedEvent{ID: p.ID, IsVerified: verified})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("property verification changed",
		zap.String("property_id", id.String()),
		zap.Bool("is_verified", verified),
	)
	return p, nil
}

// save bumps the version, writes the row and records the event.
func (s *service) save(ctx context.Context, tx *sqlx.Tx, p *Property, eventType string, data interface{}) error {
	event, err := eventlog.New(eventType, data, nil)
	if err != nil {
		return err
	}

	expected := p.Version
	p.Version++
	p.UpdatedAt = s.timestamp()
	if err := update(ctx, tx, p, expected); err != nil {
		return err
	}
	_, err = s.events.Append(ctx, tx, p.ID, AggregateType, expected, event)
	return err
}

func applyUpdate(p *Property, in UpdateInput) []string {
	var fields []string
	setString := func(name string, dst *string, v *string) {
		if v != nil && *v != *dst {
			*dst = *v
			fields = append(fields, name)
		}
	}
	setString("title", &p.Title, in.Title)
	setString("description", &p.Description, in.Description)
	setString("property_type", &p.PropertyType, in.PropertyType)
	setString("city", &p.City, in.City)
	setString("address", &p.Address, in.Address)
	setString("bill_type", &p.BillType, in.BillType)

	if in.BasePrice != nil && !in.BasePrice.Equal(p.BasePrice) {
		p.BasePrice = *in.BasePrice
		fields = append(fields, "base_price")
	}
	if in.SecurityDeposit != nil && !in.SecurityDeposit.Equal(p.SecurityDeposit) {
		p.SecurityDeposit = *in.SecurityDeposit
		fields = append(fields, "security_deposit")
	}
	if in.AvailableFrom != nil && !in.AvailableFrom.Equal(p.AvailableFrom) {
		p.AvailableFrom = in.AvailableFrom.UTC()
		fields = append(fields, "available_from")
	}
	return fields
}

package booking

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/eventlog"
	"github.com/enggsatyamraj/rentify-backend/internal/notification"
	"github.com/enggsatyamraj/rentify-backend/internal/property"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
	"github.com/enggsatyamraj/rentify-backend/internal/user"
)

// AggregateType names booking streams in the event log.
const AggregateType = "booking"

const contractFolder = "rentify/contracts"

// Deps are the collaborators of the engine.
type Deps struct {
	Users      UserDirectory
	Properties PropertyDirectory
	Ledger     Ledger
	Events     *eventlog.Log
	Documents  DocumentStore
	Notifier   Notifier
	// FrontendURL prefixes the links placed in notifications.
	FrontendURL string
	// Meter records the booking counters. Nil uses the global provider.
	Meter metric.MeterProvider
}

// engine implements the Service interface.
type engine struct {
	db          *storage.DB
	repo        Repository
	users       UserDirectory
	properties  PropertyDirectory
	ledger      Ledger
	events      *eventlog.Log
	documents   DocumentStore
	notifier    Notifier
	frontendURL string
	logger      *zap.Logger
	tracer      trace.Tracer
	created     metric.Int64Counter
	refused     metric.Int64Counter
	now         func() time.Time
}

// NewService creates the booking engine.
func NewService(db *storage.DB, deps Deps, logger *zap.Logger) Service {
	provider := deps.Meter
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("rentify/booking")
	created, _ := meter.Int64Counter("bookings.created", metric.WithDescription("Bookings created"))
	refused, _ := meter.Int64Counter("bookings.refused", metric.WithDescription("Booking operations refused by a business rule"))

	return &engine{
		db:          db,
		users:       deps.Users,
		properties:  deps.Properties,
		ledger:      deps.Ledger,
		events:      deps.Events,
		documents:   deps.Documents,
		notifier:    deps.Notifier,
		frontendURL: strings.TrimSuffix(deps.FrontendURL, "/"),
		logger:      logger,
		tracer:      otel.Tracer("rentify/booking"),
		created:     created,
		refused:     refused,
		now:         time.Now,
	}
}

func (e *engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

// party describes how the actor relates to a booking.
type party struct {
	actor  *user.User
	tenant bool
	owner  bool
	admin  bool
}

func (p party) any() bool { return p.tenant || p.owner || p.admin }

func (e *engine) partyOf(ctx context.Context, q storage.Queryer, b *Booking, actorID uuid.UUID) (party, error) {
	actor, err := e.users.FindByID(ctx, q, actorID)
	if err != nil {
		return party{}, err
	}
	return party{
		actor:  actor,
		tenant: b.TenantID == actorID,
		owner:  b.OwnerID == actorID,
		admin:  actor.IsAdmin,
	}, nil
}

// CreateBooking places a pending booking and reserves its rooms in one
// transaction. Both parties are notified after commit.
func (e *engine) CreateBooking(ctx context.Context, actorID uuid.UUID, in CreateInput) (*Booking, error) {
	ctx, span := e.tracer.Start(ctx, "booking.create", trace.WithAttributes(
		attribute.String("property.id", in.PropertyID.String()),
		attribute.Int("rooms", in.RoomCount),
	))
	defer span.End()

	if in.RoomCount == 0 {
		in.RoomCount = 1
	}
	if err := validateCreate(in); err != nil {
		return nil, e.fail(ctx, span, "create", err)
	}

	start := in.StartDate.UTC()
	var end *time.Time
	if in.EndDate != nil {
		v := in.EndDate.UTC()
		end = &v
	}

	var (
		b      *Booking
		outbox []notification.Message
	)
	err := e.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		tenant, err := e.users.FindByID(ctx, tx, actorID)
		if err != nil {
			return err
		}
		p, err := e.properties.FindByID(ctx, tx, in.PropertyID, true)
		if err != nil {
			return err
		}
		if err := eligible(p, start, in.RoomCount); err != nil {
			return err
		}

		active, err := activeForProperty(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if booked := bookedRooms(active, start, end); booked+in.RoomCount > p.TotalRooms {
			return apperr.New(apperr.CapacityExceeded,
				"Not enough rooms available for the requested dates. Only %d rooms available.", max(p.TotalRooms-booked, 0))
		}

		owner, err := e.users.FindByID(ctx, tx, p.OwnerID)
		if err != nil {
			return err
		}

		now := e.timestamp()
		b = &Booking{
			ID:          uuid.New(),
			PropertyID:  p.ID,
			TenantID:    tenant.ID,
			OwnerID:     p.OwnerID,
			StartDate:   start,
			EndDate:     end,
			BookingType: in.BookingType,
			RoomCount:   in.RoomCount,
			Status:      StatusPending,
			MoveIn:      MoveInDetails{ScheduledDate: start, Status: MoveInScheduled},
			Version:     1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		event, err := eventlog.New("BookingCreated", BookingCreatedEvent{
			ID: b.ID, PropertyID: b.PropertyID, TenantID: b.TenantID, OwnerID: b.OwnerID,
			StartDate: b.StartDate, EndDate: b.EndDate, BookingType: b.BookingType, RoomCount: b.RoomCount,
		}, map[string]interface{}{"actor_id": actorID.String()})
		if err != nil {
			return err
		}

		if err := insert(ctx, tx, b); err != nil {
			return err
		}
		if _, err := e.events.Append(ctx, tx, b.ID, AggregateType, 0, event); err != nil {
			return err
		}
		if _, err := e.ledger.Reserve(ctx, tx, p.ID, b.RoomCount); err != nil {
			return err
		}

		outbox = e.createdMessages(b, p, tenant, owner)
		return nil
	})
	if err != nil {
		return nil, e.fail(ctx, span, "create", err)
	}

	e.notifier.Notify(ctx, outbox...)
	e.created.Add(ctx, 1)
	span.SetAttributes(attribute.String("booking.id", b.ID.String()))
	e.logger.Info("booking created",
		zap.String("booking_id", b.ID.String()),
		zap.String("property_id", b.PropertyID.String()),
		zap.String("tenant_id", b.TenantID.String()),
		zap.Int("room_count", b.RoomCount),
	)
	return b, nil
}

func validateCreate(in CreateInput) error {
	if in.PropertyID == uuid.Nil {
		return apperr.New(apperr.Invalid, "Property ID is required")
	}
	if in.StartDate.IsZero() {
		return apperr.New(apperr.Invalid, "Start date is required")
	}
	if !in.BookingType.Valid() {
		return apperr.New(apperr.Invalid, "Booking type must be fixed-term or month-to-month")
	}
	if in.RoomCount < 1 {
		return apperr.New(apperr.Invalid, "Room count must be at least 1")
	}
	if in.EndDate != nil && in.EndDate.Before(in.StartDate) {
		return apperr.New(apperr.Invalid, "End date must be after start date")
	}
	return nil
}

// eligible applies the listing checks that precede the overlap scan.
func eligible(p *property.Property, start time.Time, rooms int) error {
	if !p.Bookable() {
		return apperr.New(apperr.PropertyUnavailable, "Property is not available for booking")
	}
	if p.AvailableRooms < rooms {
		return apperr.New(apperr.InsufficientInventory,
			"Only %d rooms available, cannot book %d rooms", p.AvailableRooms, rooms)
	}
	if start.Before(p.AvailableFrom) {
		return apperr.New(apperr.BeforeAvailability,
			"Property is only available from %s", p.AvailableFrom.Format(time.DateOnly))
	}
	return nil
}

// UpdateBookingStatus moves a booking through its lifecycle. Cancelling or
// rejecting returns the rooms to the property in the same transaction.
func (e *engine) UpdateBookingStatus(ctx context.Context, actorID, bookingID uuid.UUID, in StatusInput) (*Booking, error) {
	ctx, span := e.tracer.Start(ctx, "booking.update_status", trace.WithAttributes(
		attribute.String("booking.id", bookingID.String()),
		attribute.String("status", string(in.Status)),
	))
	defer span.End()

	if !in.Status.Valid() {
		return nil, e.fail(ctx, span, "update_status", apperr.New(apperr.Invalid, "Invalid booking status %q", in.Status))
	}

	var (
		b      *Booking
		from   Status
		outbox []notification.Message
	)
	err := e.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		b, err = e.repo.FindByID(ctx, tx, bookingID, true)
		if err != nil {
			return err
		}
		who, err := e.partyOf(ctx, tx, b, actorID)
		if err != nil {
			return err
		}
		if !who.any() {
			return apperr.New(apperr.Forbidden, "You don't have permission to update this booking")
		}
		if !CanTransition(b.Status, in.Status) {
			return apperr.New(apperr.InvalidTransition, "Cannot change booking status from %s to %s", b.Status, in.Status)
		}
		if (in.Status == StatusConfirmed || in.Status == StatusRejected) && !who.owner && !who.admin {
			verb := "confirm"
			if in.Status == StatusRejected {
				verb = "reject"
			}
			return apperr.New(apperr.Forbidden, "Only property owner can %s bookings", verb)
		}

		from = b.Status
		b.Status = in.Status
		reason := in.Reason
		switch in.Status {
		case StatusCancelled, StatusRejected:
			if reason == "" {
				reason = "No reason provided"
			}
			b.Cancellation = &CancellationDetails{CancelledBy: actorID, CancelledAt: e.timestamp(), Reason: reason}
			if _, err := e.ledger.Release(ctx, tx, b.PropertyID, b.RoomCount); err != nil {
				return err
			}
		case StatusConfirmed:
			if in.ScheduledDate != nil {
				b.MoveIn.ScheduledDate = in.ScheduledDate.UTC()
			}
		}

		if err := e.save(ctx, tx, b, "BookingStatusChanged", BookingStatusChangedEvent{
			From: from, To: b.Status, ActorID: actorID, Reason: in.Reason,
		}); err != nil {
			return err
		}

		outbox, err = e.statusMessages(ctx, tx, b, who, reason)
		return err
	})
	if err != nil {
		return nil, e.fail(ctx, span, "update_status", err)
	}

	e.notifier.Notify(ctx, outbox...)
	e.logger.Info("booking status changed",
		zap.String("booking_id", b.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(b.Status)),
		zap.String("actor_id", actorID.String()),
	)
	return b, nil
}

// UpdateMoveInDetails edits the move-in of a confirmed booking. Completing
// the move-in completes the booking as a second write.
func (e *engine) UpdateMoveInDetails(ctx context.Context, actorID, bookingID uuid.UUID, in MoveInInput) (*Booking, error) {
	ctx, span := e.tracer.Start(ctx, "booking.update_move_in", trace.WithAttributes(
		attribute.String("booking.id", bookingID.String()),
	))
	defer span.End()

	if in.Status != nil && !in.Status.Valid() {
		return nil, e.fail(ctx, span, "update_move_in", apperr.New(apperr.Invalid, "Invalid move-in status %q", *in.Status))
	}

	var b *Booking
	err := e.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		b, err = e.repo.FindByID(ctx, tx, bookingID, true)
		if err != nil {
			return err
		}
		if b.Status != StatusConfirmed {
			return apperr.New(apperr.InvalidState, "Can only update move-in details for confirmed bookings")
		}
		who, err := e.partyOf(ctx, tx, b, actorID)
		if err != nil {
			return err
		}
		if !who.any() {
			return apperr.New(apperr.Forbidden, "You don't have permission to update this booking")
		}
		if in.ScheduledDate == nil && in.Status == nil && in.Notes == nil {
			return apperr.New(apperr.NoOp, "No move-in updates provided")
		}

		if in.ScheduledDate != nil {
			b.MoveIn.ScheduledDate = in.ScheduledDate.UTC()
		}
		if in.Status != nil {
			b.MoveIn.Status = *in.Status
		}
		if in.Notes != nil {
			b.MoveIn.Notes = *in.Notes
		}
		b.MoveIn.UpdatedBy = &actorID

		if err := e.save(ctx, tx, b, "MoveInUpdated", MoveInUpdatedEvent{
			ActorID: actorID, ScheduledDate: b.MoveIn.ScheduledDate, Status: b.MoveIn.Status, Notes: b.MoveIn.Notes,
		}); err != nil {
			return err
		}

		if b.MoveIn.Status != MoveInCompleted {
			return nil
		}
		b.Status = StatusCompleted
		return e.save(ctx, tx, b, "BookingStatusChanged", BookingStatusChangedEvent{
			From: StatusConfirmed, To: StatusCompleted, ActorID: actorID, Reason: "Move-in completed",
		})
	})
	if err != nil {
		return nil, e.fail(ctx, span, "update_move_in", err)
	}

	e.logger.Info("move-in details updated",
		zap.String("booking_id", b.ID.String()),
		zap.String("move_in_status", string(b.MoveIn.Status)),
		zap.String("status", string(b.Status)),
	)
	return b, nil
}

// UpdateContractDetails attaches a contract document or records a party's
// signature on a confirmed booking.
func (e *engine) UpdateContractDetails(ctx context.Context, actorID, bookingID uuid.UUID, in ContractInput) (*Booking, error) {
	ctx, span := e.tracer.Start(ctx, "booking.update_contract", trace.WithAttributes(
		attribute.String("booking.id", bookingID.String()),
	))
	defer span.End()

	documentURL := ""
	if in.DocumentURL != nil {
		documentURL = strings.TrimSpace(*in.DocumentURL)
	}

	// Uploads are checked against the current row first so a refused
	// request never leaves a file behind.
	if in.Document != nil {
		b, err := e.repo.FindByID(ctx, e.db, bookingID, false)
		if err != nil {
			return nil, e.fail(ctx, span, "update_contract", err)
		}
		who, err := e.partyOf(ctx, e.db, b, actorID)
		if err != nil {
			return nil, e.fail(ctx, span, "update_contract", err)
		}
		if err := checkContract(b, who, in, true); err != nil {
			return nil, e.fail(ctx, span, "update_contract", err)
		}

		name := fmt.Sprintf("contract-%s-%d%s", b.ID, e.now().UnixMilli(), strings.ToLower(filepath.Ext(in.Document.Filename)))
		stored, err := e.documents.Upload(ctx, contractFolder, name, in.Document.Body)
		if err != nil {
			e.logger.Error("contract document upload failed", zap.String("booking_id", b.ID.String()), zap.Error(err))
			return nil, e.fail(ctx, span, "update_contract", apperr.Wrap(apperr.Invalid, err, "Failed to upload contract document"))
		}
		documentURL = stored.URL
	}

	var (
		b      *Booking
		outbox []notification.Message
	)
	err := e.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		b, err = e.repo.FindByID(ctx, tx, bookingID, true)
		if err != nil {
			return err
		}
		who, err := e.partyOf(ctx, tx, b, actorID)
		if err != nil {
			return err
		}
		if err := checkContract(b, who, in, documentURL != ""); err != nil {
			return err
		}

		wasSigned := b.Contract.FullySigned()
		if b.Contract == nil {
			b.Contract = &ContractDetails{}
		}
		c := b.Contract
		if documentURL != "" {
			c.DocumentURL = documentURL
		}
		if in.SignedByTenant != nil && *in.SignedByTenant {
			c.SignedByTenant = true
		}
		if in.SignedByOwner != nil && *in.SignedByOwner {
			c.SignedByOwner = true
		}
		signedNow := !wasSigned && c.FullySigned()
		if signedNow {
			at := e.timestamp()
			c.SignedAt = &at
		}

		if err := e.save(ctx, tx, b, "ContractUpdated", ContractUpdatedEvent{
			ActorID: actorID, DocumentURL: c.DocumentURL,
			SignedByTenant: c.SignedByTenant, SignedByOwner: c.SignedByOwner, SignedAt: c.SignedAt,
		}); err != nil {
			return err
		}

		outbox, err = e.contractMessages(ctx, tx, b, documentURL != "", signedNow)
		return err
	})
	if err != nil {
		return nil, e.fail(ctx, span, "update_contract", err)
	}

	e.notifier.Notify(ctx, outbox...)
	e.logger.Info("contract details updated",
		zap.String("booking_id", b.ID.String()),
		zap.Bool("signed_by_tenant", b.Contract.SignedByTenant),
		zap.Bool("signed_by_owner", b.Contract.SignedByOwner),
	)
	return b, nil
}

// checkContract applies the contract rules in order. hasNewDocument is true
// when this request supplies a document.
func checkContract(b *Booking, who party, in ContractInput, hasNewDocument bool) error {
	if b.Status != StatusConfirmed {
		return apperr.New(apperr.InvalidState, "Contracts can only be added to confirmed bookings")
	}
	if !who.any() {
		return apperr.New(apperr.Forbidden, "You don't have permission to update this booking")
	}

	signTenant := in.SignedByTenant != nil && *in.SignedByTenant
	signOwner := in.SignedByOwner != nil && *in.SignedByOwner
	if !hasNewDocument && !signTenant && !signOwner {
		return apperr.New(apperr.NoOp, "No contract updates provided")
	}
	if hasNewDocument && !who.owner && !who.admin {
		return apperr.New(apperr.Forbidden, "Only property owner can upload contract documents")
	}
	if signTenant && !who.tenant {
		return apperr.New(apperr.Forbidden, "Only the tenant can sign as tenant")
	}
	if signOwner && !who.owner {
		return apperr.New(apperr.Forbidden, "Only the property owner can sign as owner")
	}
	if (signTenant || signOwner) && !hasNewDocument && !b.Contract.hasDocument() {
		return apperr.New(apperr.MissingDocument, "Cannot sign contract: No contract document has been uploaded yet")
	}
	return nil
}

// GetBookingByID returns a booking to its tenant, its owner or an admin.
func (e *engine) GetBookingByID(ctx context.Context, actorID, bookingID uuid.UUID) (*Booking, error) {
	b, err := e.repo.FindByID(ctx, e.db, bookingID, false)
	if err != nil {
		return nil, err
	}
	who, err := e.partyOf(ctx, e.db, b, actorID)
	if err != nil {
		return nil, err
	}
	if !who.any() {
		return nil, apperr.New(apperr.Forbidden, "You don't have permission to view this booking")
	}
	return b, nil
}

// ListBookingsForTenant returns the actor's own bookings, newest first.
func (e *engine) ListBookingsForTenant(ctx context.Context, actorID uuid.UUID, status *Status) ([]*Booking, error) {
	if status != nil && !status.Valid() {
		return nil, apperr.New(apperr.Invalid, "Invalid booking status %q", *status)
	}
	return list(ctx, e.db, "tenant_id", actorID, status)
}

// ListBookingsForProperty returns a property's bookings to its owner or an
// admin, newest first.
func (e *engine) ListBookingsForProperty(ctx context.Context, actorID, propertyID uuid.UUID, status *Status) ([]*Booking, error) {
	if status != nil && !status.Valid() {
		return nil, apperr.New(apperr.Invalid, "Invalid booking status %q", *status)
	}
	p, err := e.properties.FindByID(ctx, e.db, propertyID, false)
	if err != nil {
		return nil, err
	}
	actor, err := e.users.FindByID(ctx, e.db, actorID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actorID && !actor.IsAdmin {
		return nil, apperr.New(apperr.Forbidden, "You don't have permission to view these bookings")
	}
	return list(ctx, e.db, "property_id", propertyID, status)
}

// BookingHistory returns the events recorded for a booking, oldest first.
func (e *engine) BookingHistory(ctx context.Context, actorID, bookingID uuid.UUID) ([]eventlog.Event, error) {
	if _, err := e.GetBookingByID(ctx, actorID, bookingID); err != nil {
		return nil, err
	}
	return e.events.Load(ctx, e.db, bookingID, 0, 0)
}

func (e *engine) DueMoveIns(ctx context.Context, from, to time.Time) ([]*Booking, error) {
	return scheduledMoveIns(ctx, e.db, from, to)
}

// save bumps the version, writes the row and records the event.
func (e *engine) save(ctx context.Context, tx *sqlx.Tx, b *Booking, eventType string, data interface{}) error {
	event, err := eventlog.New(eventType, data, nil)
	if err != nil {
		return err
	}

	expected := b.Version
	b.Version++
	b.UpdatedAt = e.timestamp()
	if err := update(ctx, tx, b, expected); err != nil {
		return err
	}
	_, err = e.events.Append(ctx, tx, b.ID, AggregateType, expected, event)
	return err
}

// fail records a refused or failed operation on the span and counters and
// returns err unchanged.
func (e *engine) fail(ctx context.Context, span trace.Span, op string, err error) error {
	kind := apperr.KindOf(err)
	span.SetAttributes(attribute.String("error.kind", kind.String()))
	if kind == apperr.Internal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	e.refused.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("kind", kind.String()),
	))
	return err
}

package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
)

const bookingColumns = `id, property_id, tenant_id, owner_id, start_date, end_date, booking_type,
	room_count, status, move_in_scheduled_date, move_in_status, move_in_notes, move_in_updated_by,
	cancelled_by, cancelled_at, cancellation_reason, contract_document_url,
	contract_signed_by_tenant, contract_signed_by_owner, contract_signed_at,
	version, created_at, updated_at`

// bookingRow is the flat table shape of a Booking.
type bookingRow struct {
	ID                     uuid.UUID      `db:"id"`
	PropertyID             uuid.UUID      `db:"property_id"`
	TenantID               uuid.UUID      `db:"tenant_id"`
	OwnerID                uuid.UUID      `db:"owner_id"`
	StartDate              time.Time      `db:"start_date"`
	EndDate                sql.NullTime   `db:"end_date"`
	BookingType            string         `db:"booking_type"`
	RoomCount              int            `db:"room_count"`
	Status                 string         `db:"status"`
	MoveInScheduledDate    time.Time      `db:"move_in_scheduled_date"`
	MoveInStatus           string         `db:"move_in_status"`
	MoveInNotes            string         `db:"move_in_notes"`
	MoveInUpdatedBy        uuid.NullUUID  `db:"move_in_updated_by"`
	CancelledBy            uuid.NullUUID  `db:"cancelled_by"`
	CancelledAt            sql.NullTime   `db:"cancelled_at"`
	CancellationReason     sql.NullString `db:"cancellation_reason"`
	ContractDocumentURL    sql.NullString `db:"contract_document_url"`
	ContractSignedByTenant bool           `db:"contract_signed_by_tenant"`
	ContractSignedByOwner  bool           `db:"contract_signed_by_owner"`
	ContractSignedAt       sql.NullTime   `db:"contract_signed_at"`
	Version                int            `db:"version"`
	CreatedAt              time.Time      `db:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at"`
}

func (r *bookingRow) booking() *Booking {
	b := &Booking{
		ID:          r.ID,
		PropertyID:  r.PropertyID,
		TenantID:    r.TenantID,
		OwnerID:     r.OwnerID,
		StartDate:   r.StartDate.UTC(),
		EndDate:     timePtr(r.EndDate),
		BookingType: Type(r.BookingType),
		RoomCount:   r.RoomCount,
		Status:      Status(r.Status),
		MoveIn: MoveInDetails{
			ScheduledDate: r.MoveInScheduledDate.UTC(),
			Status:        MoveInStatus(r.MoveInStatus),
			Notes:         r.MoveInNotes,
			UpdatedBy:     uuidPtr(r.MoveInUpdatedBy),
		},
		Version:   r.Version,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.CancelledBy.Valid {
		b.Cancellation = &CancellationDetails{
			CancelledBy: r.CancelledBy.UUID,
			CancelledAt: r.CancelledAt.Time.UTC(),
			Reason:      r.CancellationReason.String,
		}
	}
	if r.ContractDocumentURL.Valid || r.ContractSignedByTenant || r.ContractSignedByOwner {
		b.Contract = &ContractDetails{
			DocumentURL:    r.ContractDocumentURL.String,
			SignedByTenant: r.ContractSignedByTenant,
			SignedByOwner:  r.ContractSignedByOwner,
			SignedAt:       timePtr(r.ContractSignedAt),
		}
	}
	return b
}

func rowOf(b *Booking) *bookingRow {
	r := &bookingRow{
		ID:                  b.ID,
		PropertyID:          b.PropertyID,
		TenantID:            b.TenantID,
		OwnerID:             b.OwnerID,
		StartDate:           b.StartDate,
		EndDate:             nullTime(b.EndDate),
		BookingType:         string(b.BookingType),
		RoomCount:           b.RoomCount,
		Status:              string(b.Status),
		MoveInScheduledDate: b.MoveIn.ScheduledDate,
		MoveInStatus:        string(b.MoveIn.Status),
		MoveInNotes:         b.MoveIn.Notes,
		MoveInUpdatedBy:     nullUUID(b.MoveIn.UpdatedBy),
		Version:             b.Version,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
	if c := b.Cancellation; c != nil {
		r.CancelledBy = uuid.NullUUID{UUID: c.CancelledBy, Valid: true}
		r.CancelledAt = sql.NullTime{Time: c.CancelledAt, Valid: true}
		r.CancellationReason = sql.NullString{String: c.Reason, Valid: true}
	}
	if c := b.Contract; c != nil {
		r.ContractDocumentURL = sql.NullString{String: c.DocumentURL, Valid: c.DocumentURL != ""}
		r.ContractSignedByTenant = c.SignedByTenant
		r.ContractSignedByOwner = c.SignedByOwner
		r.ContractSignedAt = nullTime(c.SignedAt)
	}
	return r
}

// Repository reads and writes booking rows on any Queryer.
type Repository struct{}

// FindByID returns the booking or NotFound. With forUpdate set the row is
// locked until the surrounding transaction ends.
func (Repository) FindByID(ctx context.Context, q storage.Queryer, id uuid.UUID, forUpdate bool) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	if forUpdate {
		query += storage.ForUpdate(q)
	}

	var r bookingRow
	err := q.GetContext(ctx, &r, q.Rebind(query), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "Booking not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}
	return r.booking(), nil
}

func insert(ctx context.Context, q storage.Queryer, b *Booking) error {
	r := rowOf(b)
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		r.ID, r.PropertyID, r.TenantID, r.OwnerID, r.StartDate, r.EndDate, r.BookingType,
		r.RoomCount, r.Status, r.MoveInScheduledDate, r.MoveInStatus, r.MoveInNotes, r.MoveInUpdatedBy,
		r.CancelledBy, r.CancelledAt, r.CancellationReason, r.ContractDocumentURL,
		r.ContractSignedByTenant, r.ContractSignedByOwner, r.ContractSignedAt,
		r.Version, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// update writes every mutable column, guarded by the version that was read.
func update(ctx context.Context, q storage.Queryer, b *Booking, expectedVersion int) error {
	r := rowOf(b)
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE bookings
		SET status = ?, move_in_scheduled_date = ?, move_in_status = ?, move_in_notes = ?,
			move_in_updated_by = ?, cancelled_by = ?, cancelled_at = ?, cancellation_reason = ?,
			contract_document_url = ?, contract_signed_by_tenant = ?, contract_signed_by_owner = ?,
			contract_signed_at = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`),
		r.Status, r.MoveInScheduledDate, r.MoveInStatus, r.MoveInNotes,
		r.MoveInUpdatedBy, r.CancelledBy, r.CancelledAt, r.CancellationReason,
		r.ContractDocumentURL, r.ContractSignedByTenant, r.ContractSignedByOwner,
		r.ContractSignedAt, r.Version, r.UpdatedAt,
		r.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.Conflict, "Booking was modified concurrently")
	}
	return nil
}

// list returns bookings matching column = value, optionally narrowed to one
// status, newest first.
func list(ctx context.Context, q storage.Queryer, column string, value uuid.UUID, status *Status) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + column + ` = ?`
	args := []interface{}{value}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`
	return selectBookings(ctx, q, query, args...)
}

// activeForProperty returns the pending and confirmed bookings of a property.
func activeForProperty(ctx context.Context, q storage.Queryer, propertyID uuid.UUID) ([]*Booking, error) {
	return selectBookings(ctx, q, `SELECT `+bookingColumns+` FROM bookings
		WHERE property_id = ? AND status IN (?, ?)`,
		propertyID, string(StatusPending), string(StatusConfirmed))
}

// scheduledMoveIns returns confirmed bookings whose move-in is still
// scheduled within [from, to). Postgres filters the range in SQL; SQLite
// compares timestamps as text, so there the range is applied after the scan.
func scheduledMoveIns(ctx context.Context, q storage.Queryer, from, to time.Time) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = ? AND move_in_status = ?`
	args := []interface{}{string(StatusConfirmed), string(MoveInScheduled)}
	inSQL := q.DriverName() == storage.DriverPostgres
	if inSQL {
		query += ` AND move_in_scheduled_date >= ? AND move_in_scheduled_date < ? ORDER BY move_in_scheduled_date`
		args = append(args, from.UTC(), to.UTC())
	}

	all, err := selectBookings(ctx, q, query, args...)
	if err != nil || inSQL {
		return all, err
	}
	return inWindow(all, from, to), nil
}

func inWindow(all []*Booking, from, to time.Time) []*Booking {
	due := all[:0]
	for _, b := range all {
		if !b.MoveIn.ScheduledDate.Before(from) && b.MoveIn.ScheduledDate.Before(to) {
			due = append(due, b)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].MoveIn.ScheduledDate.Before(due[j].MoveIn.ScheduledDate)
	})
	return due
}

func selectBookings(ctx context.Context, q storage.Queryer, query string, args ...interface{}) ([]*Booking, error) {
	var rows []bookingRow
	if err := q.SelectContext(ctx, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	out := make([]*Booking, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].booking())
	}
	return out, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func uuidPtr(u uuid.NullUUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	v := u.UUID
	return &v
}

func nullUUID(u *uuid.UUID) uuid.NullUUID {
	if u == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *u, Valid: true}
}

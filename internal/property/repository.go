package property

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
)

const propertyColumns = `id, owner_id, title, description, property_type, city, address,
	base_price, security_deposit, bill_type, total_rooms, available_rooms, available_from,
	is_active, is_verified, is_rented, favorite_count, version, created_at, updated_at`

// Repository reads and writes property rows on any Queryer.
type Repository struct{}

// FindByID returns the property or NotFound. With forUpdate set the row is
// locked until the surrounding transaction ends.
func (Repository) FindByID(ctx context.Context, q storage.Queryer, id uuid.UUID, forUpdate bool) (*Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE id = ?`
	if forUpdate {
		query += storage.ForUpdate(q)
	}

	var p Property
	err := q.GetContext(ctx, &p, q.Rebind(query), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "Property not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get property %s: %w", id, err)
	}
	return normalize(&p), nil
}

func insert(ctx context.Context, q storage.Queryer, p *Property) error {
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO properties (`+propertyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		p.ID, p.OwnerID, p.Title, p.Description, p.PropertyType, p.City, p.Address,
		p.BasePrice, p.SecurityDeposit, p.BillType, p.TotalRooms, p.AvailableRooms, p.AvailableFrom,
		p.IsActive, p.IsVerified, p.IsRented, p.FavoriteCount, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert property: %w", err)
	}
	return nil
}

// update writes listing details and status flags. Inventory columns are
// owned by the ledger and never touched here.
func update(ctx context.Context, q storage.Queryer, p *Property, expectedVersion int) error {
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE properties
		SET title = ?, description = ?, property_type = ?, city = ?, address = ?,
			base_price = ?, security_deposit = ?, bill_type = ?, available_from = ?,
			is_active = ?, is_verified = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`),
		p.Title, p.Description, p.PropertyType, p.City, p.Address,
		p.BasePrice, p.SecurityDeposit, p.BillType, p.AvailableFrom,
		p.IsActive, p.IsVerified, p.Version, p.UpdatedAt,
		p.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update property: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.Conflict, "Property was modified concurrently")
	}
	return nil
}

// toggleFavorite adds or removes the (user, property) pair and keeps the
// property's counter in step. It reports whether the pair now exists.
func toggleFavorite(ctx context.Context, q storage.Queryer, userID, propertyID uuid.UUID, at time.Time) (bool, error) {
	var n int
	if err := q.GetContext(ctx, &n, q.Rebind(`SELECT COUNT(*) FROM favorites WHERE user_id = ? AND property_id = ?`), userID, propertyID); err != nil {
		return false, fmt.Errorf("get favorite: %w", err)
	}

	delta := 1
	if n > 0 {
		delta = -1
		if _, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM favorites WHERE user_id = ? AND property_id = ?`), userID, propertyID); err != nil {
			return false, fmt.Errorf("delete favorite: %w", err)
		}
	} else {
		_, err := q.ExecContext(ctx, q.Rebind(`INSERT INTO favorites (user_id, property_id, created_at) VALUES (?, ?, ?)`), userID, propertyID, at)
		if storage.IsUniqueViolation(err) {
			return false, apperr.New(apperr.Conflict, "Favorite was modified concurrently")
		}
		if err != nil {
			return false, fmt.Errorf("insert favorite: %w", err)
		}
	}

	if _, err := q.ExecContext(ctx, q.Rebind(`UPDATE properties SET favorite_count = favorite_count + ? WHERE id = ?`), delta, propertyID); err != nil {
		return false, fmt.Errorf("update favorite count: %w", err)
	}
	return delta > 0, nil
}

func favorites(ctx context.Context, q storage.Queryer, userID uuid.UUID) ([]*Property, error) {
	var rows []Property
	err := q.SelectContext(ctx, &rows, q.Rebind(`
		SELECT `+propertyColumns+` FROM properties
		WHERE id IN (SELECT property_id FROM favorites WHERE user_id = ?)
		ORDER BY created_at DESC
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	out := make([]*Property, 0, len(rows))
	for i := range rows {
		out = append(out, normalize(&rows[i]))
	}
	return out, nil
}

type whereClause struct {
	conds []string
	args  []interface{}
}

func (w *whereClause) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// page runs a filtered, newest-first listing and its total count.
func page(ctx context.Context, q storage.Queryer, w *whereClause, pageNo, limit int) ([]*Property, int, error) {
	var total int
	if err := q.GetContext(ctx, &total, q.Rebind(`SELECT COUNT(*) FROM properties`+w.String()), w.args...); err != nil {
		return nil, 0, fmt.Errorf("count properties: %w", err)
	}

	query := `SELECT ` + propertyColumns + ` FROM properties` + w.String() + ` ORDER BY created_at DESC`
	args := w.args
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(append([]interface{}{}, w.args...), limit, (pageNo-1)*limit)
	}

	var rows []Property
	if err := q.SelectContext(ctx, &rows, q.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list properties: %w", err)
	}

	out := make([]*Property, 0, len(rows))
	for i := range rows {
		out = append(out, normalize(&rows[i]))
	}
	return out, total, nil
}

// priceColumn compares numerically on both dialects; SQLite stores
// decimals as text.
func priceColumn(q storage.Queryer) string {
	if q.DriverName() == storage.DriverSQLite {
		return "CAST(base_price AS REAL)"
	}
	return "base_price"
}

func normalize(p *Property) *Property {
	p.AvailableFrom = p.AvailableFrom.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p
}

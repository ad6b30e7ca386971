package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/kataster/internal/model"
)

const propertyColumns = `p.id, p.title, p.description, p.type, p.size, p.address, p.area, p.city,
	p.lat, p.lng, p.owner_id, p.price, p.status, p.verification_status, p.created_at, p.updated_at,
	COALESCE(u.username, '')`

const propertyFrom = ` FROM properties p LEFT JOIN users u ON u.id = p.owner_id`

func scanProperty(row interface{ Scan(...any) error }) (*model.Property, error) {
	p := &model.Property{}
	var lat, lng sql.NullFloat64
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Type, &p.Size,
		&p.Location.Address, &p.Location.Area, &p.Location.City, &lat, &lng,
		&p.OwnerID, &p.Price, &p.Status, &p.VerificationStatus, &p.CreatedAt, &p.UpdatedAt,
		&p.OwnerName); err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		p.Location.Coordinates = &model.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	return p, nil
}

// CreateProperty inserts a property. Status and verification status are taken
// from p as given.
func CreateProperty(ctx context.Context, db DBTX, p *model.Property) error {
	var lat, lng sql.NullFloat64
	if c := p.Location.Coordinates; c != nil {
		lat = sql.NullFloat64{Float64: c.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: c.Lng, Valid: true}
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO properties (id, title, description, type, size, address, area, city, lat, lng,
		                         owner_id, price, status, verification_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, p.Type, p.Size, p.Location.Address, p.Location.Area, p.Location.City,
		lat, lng, p.OwnerID, p.Price, p.Status, p.VerificationStatus, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating property: %w", err)
	}
	return nil
}

// GetProperty returns a property by ID without its documents.
func GetProperty(ctx context.Context, db DBTX, id string) (*model.Property, error) {
	p, err := scanProperty(db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+propertyFrom+` WHERE p.id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting property: %w", err)
	}
	return p, nil
}

// PropertyFilter narrows ListProperties. Zero values match everything.
type PropertyFilter struct {
	OwnerID            int64
	Status             string
	VerificationStatus string
	City               string
}

// ListProperties returns properties matching the filter, newest first.
func ListProperties(ctx context.Context, db DBTX, f PropertyFilter) ([]model.Property, error) {
	query := `SELECT ` + propertyColumns + propertyFrom + ` WHERE 1=1`
	var args []any

	if f.OwnerID > 0 {
		query += ` AND p.owner_id = ?`
		args = append(args, f.OwnerID)
	}
	if f.Status != "" {
		query += ` AND p.status = ?`
		args = append(args, f.Status)
	}
	if f.VerificationStatus != "" {
		query += ` AND p.verification_status = ?`
		args = append(args, f.VerificationStatus)
	}
	if f.City != "" {
		query += ` AND p.city = ?`
		args = append(args, f.City)
	}

	query += ` ORDER BY p.created_at DESC, p.rowid DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing properties: %w", err)
	}
	defer rows.Close()

	var props []model.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		props = append(props, *p)
	}
	return props, rows.Err()
}

// UpdatePropertyDetails writes the descriptive fields of p. Owner and both
// status fields are left untouched.
func UpdatePropertyDetails(ctx context.Context, db DBTX, p *model.Property, now time.Time) error {
	var lat, lng sql.NullFloat64
	if c := p.Location.Coordinates; c != nil {
		lat = sql.NullFloat64{Float64: c.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: c.Lng, Valid: true}
	}

	_, err := db.ExecContext(ctx,
		`UPDATE properties
		 SET title = ?, description = ?, size = ?, address = ?, area = ?, city = ?, lat = ?, lng = ?,
		     price = ?, updated_at = ?
		 WHERE id = ?`,
		p.Title, p.Description, p.Size, p.Location.Address, p.Location.Area, p.Location.City, lat, lng,
		p.Price, now, p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating property: %w", err)
	}
	return nil
}

// SetPropertyStatus moves the property to status if its current status is one
// of from. It reports whether a row changed.
func SetPropertyStatus(ctx context.Context, db DBTX, id, status string, from []string, now time.Time) (bool, error) {
	args := []any{status, now, id}
	for _, s := range from {
		args = append(args, s)
	}

	res, err := db.ExecContext(ctx,
		`UPDATE properties SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (`+placeholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("setting property status: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

// TransferPropertyOwnership hands the property from fromOwner to toOwner and
// sets its status, provided the seller still owns it.
func TransferPropertyOwnership(ctx context.Context, db DBTX, id string, fromOwner, toOwner int64, status string, now time.Time) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE properties SET owner_id = ?, status = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		toOwner, status, now, id, fromOwner,
	)
	if err != nil {
		return false, fmt.Errorf("transferring property ownership: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

// SetPropertyVerificationStatus writes the verification status.
func SetPropertyVerificationStatus(ctx context.Context, db DBTX, id, status string, now time.Time) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE properties SET verification_status = ?, updated_at = ? WHERE id = ?`,
		status, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("setting property verification status: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

// PropertyStats summarises the registry.
type PropertyStats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	Verified   int            `json:"verified"`
	Unverified int            `json:"unverified"`
	Pending    int            `json:"pending_verification"`
}

// GetPropertyStats counts properties by status and verification status,
// optionally restricted to one owner.
func GetPropertyStats(ctx context.Context, db DBTX, ownerID int64) (*PropertyStats, error) {
	query := `SELECT status, verification_status, COUNT(*) FROM properties`
	var args []any
	if ownerID > 0 {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` GROUP BY status, verification_status`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting properties: %w", err)
	}
	defer rows.Close()

	stats := &PropertyStats{ByStatus: map[string]int{}}
	for rows.Next() {
		var status, vstatus string
		var n int
		if err := rows.Scan(&status, &vstatus, &n); err != nil {
			return nil, fmt.Errorf("scanning property counts: %w", err)
		}
		stats.Total += n
		stats.ByStatus[status] += n
		switch vstatus {
		case model.VerificationStatusVerified:
			stats.Verified += n
		case model.VerificationStatusPending:
			stats.Pending += n
		default:
			stats.Unverified += n
		}
	}
	return stats, rows.Err()
}

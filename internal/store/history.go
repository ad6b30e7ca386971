package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/kataster/internal/model"
)

// historyTables maps a parent kind to its history table and key column.
var historyTables = map[string]struct{ table, key string }{
	model.ParentProperty:     {"property_history", "property_id"},
	model.ParentVerification: {"verification_history", "verification_id"},
}

// HistoryRecord is an entry to append. RefID links the entry to the record
// that caused it (a transfer or verification id).
type HistoryRecord struct {
	Action      string
	PerformedBy int64
	RefID       string
	Details     map[string]any
	At          time.Time
}

func appendHistory(ctx context.Context, db DBTX, kind, parentID string, rec HistoryRecord) error {
	t, ok := historyTables[kind]
	if !ok {
		return fmt.Errorf("no history table for %q", kind)
	}

	details, err := encodeDetails(rec.Details)
	if err != nil {
		return err
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO `+t.table+` (`+t.key+`, action, performed_by, ref_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		parentID, rec.Action, rec.PerformedBy, nullString(rec.RefID), details, rec.At,
	)
	if err != nil {
		return fmt.Errorf("appending %s history: %w", kind, err)
	}
	return nil
}

func listHistory(ctx context.Context, db DBTX, kind, parentID string, limit, offset int) ([]model.HistoryEntry, error) {
	t, ok := historyTables[kind]
	if !ok {
		return nil, fmt.Errorf("no history table for %q", kind)
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, action, performed_by, details, created_at
		 FROM `+t.table+` WHERE `+t.key+` = ?
		 ORDER BY id LIMIT ? OFFSET ?`,
		parentID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s history: %w", kind, err)
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.PerformedBy, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		if e.Details, err = decodeDetails(details); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AppendPropertyHistory appends an entry to a property's audit trail.
func AppendPropertyHistory(ctx context.Context, db DBTX, propertyID string, rec HistoryRecord) error {
	return appendHistory(ctx, db, model.ParentProperty, propertyID, rec)
}

// ListPropertyHistory returns a page of a property's audit trail, oldest
// first. A non-positive limit returns everything from offset on.
func ListPropertyHistory(ctx context.Context, db DBTX, propertyID string, limit, offset int) ([]model.HistoryEntry, error) {
	return listHistory(ctx, db, model.ParentProperty, propertyID, limit, offset)
}

// CountPropertyHistory returns the length of a property's audit trail.
func CountPropertyHistory(ctx context.Context, db DBTX, propertyID string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM property_history WHERE property_id = ?`, propertyID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting property history: %w", err)
	}
	return n, nil
}

// HasTransferCompletion reports whether the ownership change for transferID
// was already recorded.
func HasTransferCompletion(ctx context.Context, db DBTX, transferID string) (bool, error) {
	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM property_history WHERE action = ? AND ref_id = ?)`,
		model.ActionTransferCompleted, transferID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking transfer completion: %w", err)
	}
	return exists, nil
}

// AppendVerificationHistory appends an entry to a verification's audit trail.
func AppendVerificationHistory(ctx context.Context, db DBTX, verificationID string, rec HistoryRecord) error {
	return appendHistory(ctx, db, model.ParentVerification, verificationID, rec)
}

// ListVerificationHistory returns a verification's full audit trail.
func ListVerificationHistory(ctx context.Context, db DBTX, verificationID string) ([]model.HistoryEntry, error) {
	return listHistory(ctx, db, model.ParentVerification, verificationID, 0, 0)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/kataster/internal/model"
)

const transferColumns = `id, property_id, from_owner_id, to_owner_id, to_name, to_identification, to_contact,
	status, transfer_reason, agreement_date, transfer_amount,
	payment_method, payment_transaction_id, payment_amount, payment_paid_at, payment_confirmed_at,
	transfer_date, rejection_reason, created_at, updated_at`

func scanTransfer(row interface{ Scan(...any) error }) (*model.Transfer, error) {
	t := &model.Transfer{}
	var method, txID, reason sql.NullString
	pd := model.PaymentDetails{}
	if err := row.Scan(&t.ID, &t.PropertyID, &t.FromOwnerID, &t.ToOwnerID,
		&t.ToOwnerDetails.Name, &t.ToOwnerDetails.Identification, &t.ToOwnerDetails.Contact,
		&t.Status, &t.TransferReason, &t.AgreementDate, &t.TransferAmount,
		&method, &txID, &pd.Amount, &pd.PaidAt, &pd.ConfirmedAt,
		&t.TransferDate, &reason, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	pd.Method = method.String
	pd.TransactionID = txID.String
	if pd.Method != "" || pd.TransactionID != "" || pd.Amount != nil || pd.PaidAt != nil || pd.ConfirmedAt != nil {
		t.PaymentDetails = &pd
	}
	t.RejectionReason = reason.String
	return t, nil
}

// CreateTransfer inserts a new transfer row. A second open transfer for the
// same property fails with ErrDuplicate.
func CreateTransfer(ctx context.Context, db DBTX, t *model.Transfer) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO transfers (id, property_id, from_owner_id, to_owner_id, to_name, to_identification,
		                        to_contact, status, transfer_reason, agreement_date, transfer_amount,
		                        created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PropertyID, t.FromOwnerID, t.ToOwnerID,
		t.ToOwnerDetails.Name, t.ToOwnerDetails.Identification, t.ToOwnerDetails.Contact,
		t.Status, t.TransferReason, t.AgreementDate, t.TransferAmount, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return wrapWriteErr(err, "creating transfer")
	}
	return nil
}

// GetTransfer returns a transfer with its approvals and documents.
func GetTransfer(ctx context.Context, db DBTX, id string) (*model.Transfer, error) {
	t, err := scanTransfer(db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}

	if err := loadTransferRelations(ctx, db, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetActiveTransfer returns the pending or processing transfer for a
// property, if any.
func GetActiveTransfer(ctx context.Context, db DBTX, propertyID string) (*model.Transfer, error) {
	var id string
	err := db.QueryRowContext(ctx,
		`SELECT id FROM transfers WHERE property_id = ? AND status IN (?, ?)`,
		propertyID, model.TransferStatusPending, model.TransferStatusProcessing,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting active transfer: %w", err)
	}
	return GetTransfer(ctx, db, id)
}

// TransferFilter narrows ListTransfers. Zero values match everything.
type TransferFilter struct {
	// UserID matches transfers where the user is seller or recipient.
	UserID     int64
	PropertyID string
	Status     string
}

// ListTransfers returns transfers matching the filter, newest first.
func ListTransfers(ctx context.Context, db DBTX, f TransferFilter) ([]model.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE 1=1`
	var args []any

	if f.UserID > 0 {
		query += ` AND (from_owner_id = ? OR to_owner_id = ?)`
		args = append(args, f.UserID, f.UserID)
	}
	if f.PropertyID != "" {
		query += ` AND property_id = ?`
		args = append(args, f.PropertyID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}

	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	transfers, err := scanTransfers(rows)
	if err != nil {
		return nil, err
	}

	// Relations are loaded after the cursor is closed; the pool has a single
	// connection.
	for i := range transfers {
		if err := loadTransferRelations(ctx, db, &transfers[i]); err != nil {
			return nil, err
		}
	}
	return transfers, nil
}

func scanTransfers(rows *sql.Rows) ([]model.Transfer, error) {
	defer rows.Close()

	var transfers []model.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

func loadTransferRelations(ctx context.Context, db DBTX, t *model.Transfer) error {
	approvals, err := ListApprovals(ctx, db, t.ID)
	if err != nil {
		return err
	}
	t.Approvals = approvals

	docs, err := ListDocuments(ctx, db, model.ParentTransfer, t.ID)
	if err != nil {
		return err
	}
	t.Documents = docs
	return nil
}

// TransferChange is a conditional update of a transfer. Nil and empty fields
// keep their stored values; payment fields are merged one by one.
type TransferChange struct {
	// From lists the statuses the transfer must currently be in.
	From            []string
	Status          string
	Amount          *float64
	Payment         *model.PaymentDetails
	TransferDate    *time.Time
	RejectionReason string
	Now             time.Time
}

// ChangeTransfer applies c if the transfer's status is one of c.From. It
// reports whether the row changed; false means the transfer is missing or a
// concurrent writer moved it first.
func ChangeTransfer(ctx context.Context, db DBTX, id string, c TransferChange) (bool, error) {
	var pay model.PaymentDetails
	if c.Payment != nil {
		pay = *c.Payment
	}

	args := []any{
		c.Status, c.Amount,
		nullString(pay.Method), nullString(pay.TransactionID), pay.Amount, pay.PaidAt, pay.ConfirmedAt,
		c.TransferDate, nullString(c.RejectionReason), c.Now, id,
	}
	for _, s := range c.From {
		args = append(args, s)
	}

	res, err := db.ExecContext(ctx,
		`UPDATE transfers SET
		     status                 = ?,
		     transfer_amount        = COALESCE(?, transfer_amount),
		     payment_method         = COALESCE(?, payment_method),
		     payment_transaction_id = COALESCE(?, payment_transaction_id),
		     payment_amount         = COALESCE(?, payment_amount),
		     payment_paid_at        = COALESCE(?, payment_paid_at),
		     payment_confirmed_at   = COALESCE(?, payment_confirmed_at),
		     transfer_date          = COALESCE(?, transfer_date),
		     rejection_reason       = COALESCE(?, rejection_reason),
		     updated_at             = ?
		 WHERE id = ? AND status IN (`+placeholders(len(c.From))+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("changing transfer: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

// TouchTransfer bumps updated_at on a non-terminal transfer.
func TouchTransfer(ctx context.Context, db DBTX, id string, now time.Time) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE transfers SET updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		now, id, model.TransferStatusPending, model.TransferStatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("touching transfer: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

// CountTransfersByStatus counts transfers per status, optionally restricted to
// those a user takes part in.
func CountTransfersByStatus(ctx context.Context, db DBTX, userID int64) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM transfers`
	var args []any
	if userID > 0 {
		query += ` WHERE from_owner_id = ? OR to_owner_id = ?`
		args = append(args, userID, userID)
	}
	query += ` GROUP BY status`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting transfers: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning transfer counts: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

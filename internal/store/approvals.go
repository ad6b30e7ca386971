package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/kataster/internal/model"
)

// SetApproval records (or replaces) a role's approval of a transfer.
func SetApproval(ctx context.Context, db DBTX, transferID, role string, approvedBy int64, signatureURL string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO transfer_approvals (transfer_id, role, approved, signature_url, approved_by, approved_at)
		 VALUES (?, ?, 1, ?, ?, ?)
		 ON CONFLICT (transfer_id, role) DO UPDATE SET
		     approved      = 1,
		     signature_url = COALESCE(excluded.signature_url, transfer_approvals.signature_url),
		     approved_by   = excluded.approved_by,
		     approved_at   = excluded.approved_at`,
		transferID, role, nullString(signatureURL), approvedBy, at,
	)
	if err != nil {
		return fmt.Errorf("recording %s approval: %w", role, err)
	}
	return nil
}

// ListApprovals returns a transfer's approvals keyed by role.
func ListApprovals(ctx context.Context, db DBTX, transferID string) (map[string]model.Approval, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT role, approved, signature_url, approved_by, approved_at
		 FROM transfer_approvals WHERE transfer_id = ?`,
		transferID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing approvals: %w", err)
	}
	defer rows.Close()

	approvals := map[string]model.Approval{}
	for rows.Next() {
		var role string
		var a model.Approval
		var sig sql.NullString
		if err := rows.Scan(&role, &a.Approved, &sig, &a.ApprovedBy, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning approval: %w", err)
		}
		a.SignatureURL = sig.String
		approvals[role] = a
	}
	return approvals, rows.Err()
}

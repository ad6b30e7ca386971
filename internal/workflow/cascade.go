package workflow

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/erazemk/kataster/internal/apperr"
	"github.com/erazemk/kataster/internal/model"
	"github.com/erazemk/kataster/internal/store"
)

// Cascade triggers.
const (
	viaApproval     = "approval"
	viaPayment      = "payment"
	viaVerification = "verification"
)

// completeTransfer moves t to completed (from one of the given statuses) and
// applies the ownership cascade in the same transaction. It returns
// InvalidState if a concurrent writer moved the transfer first.
func (tr *Transfers) completeTransfer(ctx context.Context, tx *sql.Tx, t *model.Transfer, from []string, payment *model.PaymentDetails, performedBy int64, via string, at time.Time) error {
	ok, err := store.ChangeTransfer(ctx, tx, t.ID, store.TransferChange{
		From:         from,
		Status:       model.TransferStatusCompleted,
		Payment:      payment,
		TransferDate: &at,
		Now:          at,
	})
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InvalidState("transfer %s changed concurrently", t.ID)
	}

	if err := tr.applyOwnershipCascade(ctx, tx, t, performedBy, via, at); err != nil {
		tr.metrics.Cascade(via, "failed")
		return err
	}
	tr.metrics.Cascade(via, "applied")
	return nil
}

// applyOwnershipCascade hands the property to the recipient and records the
// change in the property history. It runs at most once per transfer.
func (tr *Transfers) applyOwnershipCascade(ctx context.Context, tx *sql.Tx, t *model.Transfer, performedBy int64, via string, at time.Time) error {
	done, err := store.HasTransferCompletion(ctx, tx, t.ID)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	ok, err := store.TransferPropertyOwnership(ctx, tx, t.PropertyID, t.FromOwnerID, t.ToOwnerID,
		model.PropertyStatusRegistered, at)
	if err != nil {
		return inconsistent(t, via, err)
	}
	if !ok {
		return inconsistent(t, via, errors.New("property missing or no longer owned by the seller"))
	}

	err = store.AppendPropertyHistory(ctx, tx, t.PropertyID, store.HistoryRecord{
		Action:      model.ActionTransferCompleted,
		PerformedBy: performedBy,
		RefID:       t.ID,
		Details: map[string]any{
			"transfer_id": t.ID,
			"from_owner":  t.FromOwnerID,
			"to_owner":    t.ToOwnerID,
			"via":         via,
		},
		At: at,
	})
	if err != nil {
		return inconsistent(t, via, err)
	}
	return nil
}

func inconsistent(t *model.Transfer, via string, cause error) error {
	slog.Error("ownership cascade failed",
		"transfer", t.ID, "property", t.PropertyID,
		"from_owner", t.FromOwnerID, "to_owner", t.ToOwnerID,
		"via", via, "error", cause)
	return apperr.Inconsistent(cause, "transfer %s could not be applied to property %s", t.ID, t.PropertyID)
}

// applyVerificationCascade sets the property's verification status from the
// decided verification and records it in the property history.
func (vs *Verifications) applyVerificationCascade(ctx context.Context, tx *sql.Tx, v *model.Verification, performedBy int64, at time.Time) error {
	status := model.VerificationStatusUnverified
	if v.Status == model.VerificationVerified {
		status = model.VerificationStatusVerified
	}

	ok, err := store.SetPropertyVerificationStatus(ctx, tx, v.PropertyID, status, at)
	if err == nil && !ok {
		err = errors.New("property missing")
	}
	if err == nil {
		err = store.AppendPropertyHistory(ctx, tx, v.PropertyID, store.HistoryRecord{
			Action:      model.ActionVerificationCompleted,
			PerformedBy: performedBy,
			RefID:       v.ID,
			Details: map[string]any{
				"verification_id": v.ID,
				"status":          v.Status,
				"ls_number":       v.LSNumber,
			},
			At: at,
		})
	}
	if err != nil {
		vs.metrics.Cascade(viaVerification, "failed")
		slog.Error("verification cascade failed",
			"verification", v.ID, "property", v.PropertyID, "status", v.Status, "error", err)
		return apperr.Inconsistent(err, "verification %s could not be applied to property %s", v.ID, v.PropertyID)
	}
	vs.metrics.Cascade(viaVerification, "applied")
	return nil
}

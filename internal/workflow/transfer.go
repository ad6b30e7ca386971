package workflow

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/kataster/internal/apperr"
	"github.com/erazemk/kataster/internal/db"
	"github.com/erazemk/kataster/internal/docstore"
	"github.com/erazemk/kataster/internal/metrics"
	"github.com/erazemk/kataster/internal/model"
	"github.com/erazemk/kataster/internal/store"
)

const entityTransfer = "transfer"

// Transfers runs the ownership transfer workflow.
type Transfers struct {
	deps
	required []string
}

// NewTransfers creates the transfer workflow. required lists the approval
// roles that complete a transfer.
func NewTransfers(database *sql.DB, docs docstore.Store, m *metrics.Metrics, required []string) *Transfers {
	return &Transfers{
		deps:     deps{db: database, docs: docs, metrics: m},
		required: required,
	}
}

// InitiateInput describes a new transfer.
type InitiateInput struct {
	PropertyID     string
	ToOwnerID      int64
	ToOwnerDetails model.RecipientDetails
	TransferReason string
	AgreementDate  time.Time
	TransferAmount *float64
}

func (in InitiateInput) validate() error {
	d := in.ToOwnerDetails
	switch {
	case in.PropertyID == "":
		return apperr.Validation("property id is required")
	case in.ToOwnerID <= 0:
		return apperr.Validation("recipient is required")
	case strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Identification) == "" || strings.TrimSpace(d.Contact) == "":
		return apperr.Validation("recipient name, identification and contact are required")
	case strings.TrimSpace(in.TransferReason) == "":
		return apperr.Validation("transfer reason is required")
	case in.AgreementDate.IsZero():
		return apperr.Validation("agreement date is required")
	case in.TransferAmount != nil && *in.TransferAmount < 0:
		return apperr.Validation("transfer amount must not be negative")
	}
	return nil
}

func classifyTransferDocument(f docstore.File) string {
	if docstore.IsPDF(f) {
		return model.DocTypeTransferDeed
	}
	return model.DocTypeSupportingDocument
}

func classifyPaymentDocument(f docstore.File) string {
	if docstore.IsPDF(f) {
		return model.DocTypePaymentProof
	}
	return model.DocTypeSupportingDocument
}

// Initiate opens a transfer of a property the caller owns. The seller's
// approval is recorded immediately and the property moves to
// pending_transfer.
func (tr *Transfers) Initiate(ctx context.Context, caller model.Caller, in InitiateInput, files []docstore.File) (*model.Transfer, error) {
	defer tr.metrics.ObserveOperation("transfer_initiate", time.Now())

	if err := in.validate(); err != nil {
		return nil, err
	}
	// Reject obviously invalid requests before uploading.
	if err := tr.checkInitiate(ctx, tr.db, caller, in); err != nil {
		return nil, err
	}

	docs := docstore.UploadBatch(ctx, tr.docs, files, docstore.FolderTransferDocuments, classifyTransferDocument)

	at := now()
	t := &model.Transfer{
		ID:             uuid.NewString(),
		PropertyID:     in.PropertyID,
		FromOwnerID:    caller.ID,
		ToOwnerID:      in.ToOwnerID,
		ToOwnerDetails: in.ToOwnerDetails,
		Status:         model.TransferStatusPending,
		TransferReason: in.TransferReason,
		AgreementDate:  in.AgreementDate.UTC(),
		TransferAmount: in.TransferAmount,
		CreatedAt:      at,
		UpdatedAt:      at,
	}

	err := db.WithTx(ctx, tr.db, func(tx *sql.Tx) error {
		if err := tr.checkInitiate(ctx, tx, caller, in); err != nil {
			return err
		}

		if err := store.CreateTransfer(ctx, tx, t); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Conflict("property already has an active transfer")
			}
			return err
		}
		if err := store.SetApproval(ctx, tx, t.ID, model.ApprovalSeller, caller.ID, "", at); err != nil {
			return err
		}
		if err := store.AddDocuments(ctx, tx, model.ParentTransfer, t.ID, docs); err != nil {
			return err
		}

		ok, err := store.SetPropertyStatus(ctx, tx, t.PropertyID, model.PropertyStatusPendingTransfer,
			[]string{model.PropertyStatusAvailable, model.PropertyStatusPendingTransfer}, at)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("property is no longer available for transfer")
		}

		return store.AppendPropertyHistory(ctx, tx, t.PropertyID, store.HistoryRecord{
			Action:      model.ActionTransferInitiated,
			PerformedBy: caller.ID,
			RefID:       t.ID,
			Details:     map[string]any{"transfer_id": t.ID, "to_owner": t.ToOwnerID},
			At:          at,
		})
	})
	if err != nil {
		tr.discard(ctx, docs)
		return nil, err
	}

	tr.metrics.Transition(entityTransfer, model.TransferStatusPending)
	slog.Info("transfer initiated", "transfer", t.ID, "property", t.PropertyID,
		"from_owner", t.FromOwnerID, "to_owner", t.ToOwnerID, "documents", len(docs))
	return store.GetTransfer(ctx, tr.db, t.ID)
}

func (tr *Transfers) checkInitiate(ctx context.Context, q store.DBTX, caller model.Caller, in InitiateInput) error {
	p, err := propertyOrFail(ctx, q, in.PropertyID)
	if err != nil {
		return err
	}
	if p.OwnerID != caller.ID {
		return apperr.Forbidden("only the property owner can initiate a transfer")
	}
	if in.ToOwnerID == p.OwnerID {
		return apperr.Validation("cannot transfer a property to its current owner")
	}

	active, err := store.GetActiveTransfer(ctx, q, p.ID)
	if err != nil {
		return err
	}
	if active != nil {
		return apperr.Conflict("property already has an active transfer")
	}
	if !p.Transferable() {
		return apperr.InvalidState("property with status %s cannot be transferred", p.Status)
	}

	recipient, err := store.GetActiveUser(ctx, q, in.ToOwnerID)
	if err != nil {
		return err
	}
	if recipient == nil {
		return apperr.Validation("recipient is not a registered user")
	}
	return nil
}

// loadTransfer loads a transfer, failing with NotFound if it is missing.
func loadTransfer(ctx context.Context, q store.DBTX, id string) (*model.Transfer, error) {
	t, err := store.GetTransfer(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.NotFound("transfer not found")
	}
	return t, nil
}

// checkApprove loads t and checks the caller may approve it in role.
func checkApprove(ctx context.Context, q store.DBTX, caller model.Caller, id string, role ApprovalRole) (*model.Transfer, error) {
	t, err := loadTransfer(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if t.Terminal() {
		return nil, apperr.InvalidState("transfer is already %s", t.Status)
	}
	if err := role.Authorize(caller, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Approve records the caller's approval in the given role. When all required
// roles have approved the transfer completes and the property changes hands.
func (tr *Transfers) Approve(ctx context.Context, caller model.Caller, id, roleName string, signature *docstore.File) (*model.Transfer, error) {
	defer tr.metrics.ObserveOperation("transfer_approve", time.Now())

	role, err := ParseApprovalRole(roleName)
	if err != nil {
		return nil, err
	}
	if _, err := checkApprove(ctx, tr.db, caller, id, role); err != nil {
		return nil, err
	}

	sig, hasSig := tr.uploadSignature(ctx, signature)

	at := now()
	completed := false
	err = db.WithTx(ctx, tr.db, func(tx *sql.Tx) error {
		t, err := checkApprove(ctx, tx, caller, id, role)
		if err != nil {
			return err
		}

		if err := store.SetApproval(ctx, tx, t.ID, role.String(), caller.ID, sig.URL, at); err != nil {
			return err
		}
		if ok, err := store.TouchTransfer(ctx, tx, t.ID, at); err != nil {
			return err
		} else if !ok {
			return apperr.InvalidState("transfer changed concurrently")
		}

		if t.Approvals, err = store.ListApprovals(ctx, tx, t.ID); err != nil {
			return err
		}
		if !t.Approved(tr.required) {
			return nil
		}

		completed = true
		return tr.completeTransfer(ctx, tx, t,
			[]string{model.TransferStatusPending, model.TransferStatusProcessing},
			nil, caller.ID, viaApproval, at)
	})
	if err != nil {
		if hasSig {
			docstore.DeleteBestEffort(ctx, tr.docs, sig.PublicID)
		}
		return nil, err
	}

	slog.Info("transfer approved", "transfer", id, "role", role.String(), "user", caller.ID, "signed", hasSig)
	if completed {
		tr.metrics.Transition(entityTransfer, model.TransferStatusCompleted)
		slog.Info("transfer completed", "transfer", id, "via", viaApproval)
	}
	return store.GetTransfer(ctx, tr.db, id)
}

// UpdateInput carries payment information for a pending transfer.
type UpdateInput struct {
	TransferAmount *float64
	Payment        *model.PaymentDetails
}

func validatePayment(p *model.PaymentDetails) error {
	if p == nil {
		return nil
	}
	if p.Method != "" && !model.ValidPaymentMethod(p.Method) {
		return apperr.Validation("invalid payment method %q", p.Method)
	}
	if p.Amount != nil && *p.Amount < 0 {
		return apperr.Validation("payment amount must not be negative")
	}
	return nil
}

func checkEditable(ctx context.Context, q store.DBTX, caller model.Caller, id string, statuses ...string) (*model.Transfer, error) {
	t, err := loadTransfer(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if !canEdit(caller, t) {
		return nil, apperr.Forbidden("only the parties to the transfer can change it")
	}
	for _, s := range statuses {
		if t.Status == s {
			return t, nil
		}
	}
	return nil, apperr.InvalidState("transfer is %s", t.Status)
}

// Update records payment information on a pending transfer and moves it to
// processing.
func (tr *Transfers) Update(ctx context.Context, caller model.Caller, id string, in UpdateInput, files []docstore.File) (*model.Transfer, error) {
	defer tr.metrics.ObserveOperation("transfer_update", time.Now())

	if in.TransferAmount != nil && *in.TransferAmount < 0 {
		return nil, apperr.Validation("transfer amount must not be negative")
	}
	if err := validatePayment(in.Payment); err != nil {
		return nil, err
	}
	if _, err := checkEditable(ctx, tr.db, caller, id, model.TransferStatusPending); err != nil {
		return nil, err
	}

	docs := docstore.UploadBatch(ctx, tr.docs, files, docstore.FolderTransferDocuments, classifyPaymentDocument)

	at := now()
	err := db.WithTx(ctx, tr.db, func(tx *sql.Tx) error {
		if _, err := checkEditable(ctx, tx, caller, id, model.TransferStatusPending); err != nil {
			return err
		}

		ok, err := store.ChangeTransfer(ctx, tx, id, store.TransferChange{
			From:    []string{model.TransferStatusPending},
			Status:  model.TransferStatusProcessing,
			Amount:  in.TransferAmount,
			Payment: in.Payment,
			Now:     at,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("transfer changed concurrently")
		}
		return store.AddDocuments(ctx, tx, model.ParentTransfer, id, docs)
	})
	if err != nil {
		tr.discard(ctx, docs)
		return nil, err
	}

	tr.metrics.Transition(entityTransfer, model.TransferStatusProcessing)
	slog.Info("transfer processing", "transfer", id, "user", caller.ID, "documents", len(docs))
	return store.GetTransfer(ctx, tr.db, id)
}

// CompleteInput confirms payment for a processing transfer.
type CompleteInput struct {
	Payment *model.PaymentDetails
}

// Complete confirms payment on a processing transfer, completes it and hands
// the property to the recipient. Completing an already completed transfer
// returns it unchanged.
func (tr *Transfers) Complete(ctx context.Context, caller model.Caller, id string, in CompleteInput, files []docstore.File) (*model.Transfer, error) {
	defer tr.metrics.ObserveOperation("transfer_complete", time.Now())

	if err := validatePayment(in.Payment); err != nil {
		return nil, err
	}

	t, err := loadTransfer(ctx, tr.db, id)
	if err != nil {
		return nil, err
	}
	if !canEdit(caller, t) && !caller.CanVerify() {
		return nil, apperr.Forbidden("only the parties to the transfer can complete it")
	}
	if t.Status == model.TransferStatusCompleted {
		return t, nil
	}
	if t.Status != model.TransferStatusProcessing {
		return nil, apperr.InvalidState("transfer is %s, payment can only be confirmed while processing", t.Status)
	}

	method := ""
	if t.PaymentDetails != nil {
		method = t.PaymentDetails.Method
	}
	if in.Payment != nil && in.Payment.Method != "" {
		method = in.Payment.Method
	}
	if method == "" {
		return nil, apperr.Validation("payment method is required to complete a transfer")
	}

	docs := docstore.UploadBatch(ctx, tr.docs, files, docstore.FolderPaymentProofs,
		func(docstore.File) string { return model.DocTypePaymentProof })

	at := now()
	payment := &model.PaymentDetails{}
	if in.Payment != nil {
		*payment = *in.Payment
	}
	payment.ConfirmedAt = &at

	alreadyDone := false
	err = db.WithTx(ctx, tr.db, func(tx *sql.Tx) error {
		t, err := loadTransfer(ctx, tx, id)
		if err != nil {
			return err
		}
		switch t.Status {
		case model.TransferStatusCompleted:
			alreadyDone = true
			return nil
		case model.TransferStatusProcessing:
		default:
			return apperr.InvalidState("transfer is %s, payment can only be confirmed while processing", t.Status)
		}

		if err := store.AddDocuments(ctx, tx, model.ParentTransfer, id, docs); err != nil {
			return err
		}
		return tr.completeTransfer(ctx, tx, t, []string{model.TransferStatusProcessing},
			payment, caller.ID, viaPayment, at)
	})
	if err != nil || alreadyDone {
		tr.discard(ctx, docs)
	}
	if err != nil {
		return nil, err
	}

	if !alreadyDone {
		tr.metrics.Transition(entityTransfer, model.TransferStatusCompleted)
		slog.Info("transfer completed", "transfer", id, "via", viaPayment, "user", caller.ID)
	}
	return store.GetTransfer(ctx, tr.db, id)
}

// Reject closes a pending or processing transfer and makes the property
// available again.
func (tr *Transfers) Reject(ctx context.Context, caller model.Caller, id, reason string) (*model.Transfer, error) {
	defer tr.metrics.ObserveOperation("transfer_reject", time.Now())

	at := now()
	err := db.WithTx(ctx, tr.db, func(tx *sql.Tx) error {
		t, err := loadTransfer(ctx, tx, id)
		if err != nil {
			return err
		}
		if !t.IsParticipant(caller.ID) && !caller.CanVerify() {
			return apperr.Forbidden("only the parties to the transfer or a verifier can reject it")
		}
		if t.Terminal() {
			return apperr.InvalidState("transfer is already %s", t.Status)
		}

		ok, err := store.ChangeTransfer(ctx, tx, id, store.TransferChange{
			From:            []string{model.TransferStatusPending, model.TransferStatusProcessing},
			Status:          model.TransferStatusRejected,
			RejectionReason: reason,
			Now:             at,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("transfer changed concurrently")
		}

		released, err := store.SetPropertyStatus(ctx, tx, t.PropertyID, model.PropertyStatusAvailable,
			[]string{model.PropertyStatusPendingTransfer}, at)
		if err != nil {
			return err
		}
		if !released {
			slog.Warn("property was not pending transfer when its transfer was rejected",
				"transfer", id, "property", t.PropertyID)
		}

		return store.AppendPropertyHistory(ctx, tx, t.PropertyID, store.HistoryRecord{
			Action:      model.ActionTransferRejected,
			PerformedBy: caller.ID,
			RefID:       t.ID,
			Details:     map[string]any{"transfer_id": t.ID, "reason": reason},
			At:          at,
		})
	})
	if err != nil {
		return nil, err
	}

	tr.metrics.Transition(entityTransfer, model.TransferStatusRejected)
	slog.Info("transfer rejected", "transfer", id, "user", caller.ID)
	return store.GetTransfer(ctx, tr.db, id)
}

// Get returns a transfer visible to the caller.
func (tr *Transfers) Get(ctx context.Context, caller model.Caller, id string) (*model.Transfer, error) {
	t, err := loadTransfer(ctx, tr.db, id)
	if err != nil {
		return nil, err
	}
	if !canView(caller, t) {
		return nil, apperr.Forbidden("not a party to this transfer")
	}
	return t, nil
}

// List returns transfers visible to the caller, optionally filtered by status
// and property. Verifiers and admins see every transfer.
func (tr *Transfers) List(ctx context.Context, caller model.Caller, f store.TransferFilter) ([]model.Transfer, error) {
	if !caller.CanVerify() {
		f.UserID = caller.ID
	}
	ts, err := store.ListTransfers(ctx, tr.db, f)
	if err != nil {
		return nil, err
	}
	if ts == nil {
		ts = []model.Transfer{}
	}
	return ts, nil
}

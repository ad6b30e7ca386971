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

const entityVerification = "verification"

// Verifications runs the property verification workflow.
type Verifications struct {
	deps
	initialStatus string
}

// NewVerifications creates the verification workflow. initialStatus is
// model.VerificationPending or model.VerificationVerified.
func NewVerifications(database *sql.DB, docs docstore.Store, m *metrics.Metrics, initialStatus string) *Verifications {
	if initialStatus == "" {
		initialStatus = model.VerificationPending
	}
	return &Verifications{
		deps:          deps{db: database, docs: docs, metrics: m},
		initialStatus: initialStatus,
	}
}

// SubmitInput describes a verification request.
type SubmitInput struct {
	PropertyID   string
	VerifierID   int64
	LSNumber     string
	PageNumber   string
	VolumeNumber string
	LawyerID     string
	Comments     string
}

func (in SubmitInput) validate() error {
	switch {
	case in.PropertyID == "":
		return apperr.Validation("property id is required")
	case in.VerifierID <= 0:
		return apperr.Validation("verifier is required")
	case !model.ValidLSNumber(in.LSNumber):
		return apperr.Validation("LS number must look like LS1234/2024")
	case strings.TrimSpace(in.PageNumber) == "" || strings.TrimSpace(in.VolumeNumber) == "":
		return apperr.Validation("page and volume numbers are required")
	case len(in.Comments) > model.MaxCommentsLength:
		return apperr.Validation("comments must be at most %d characters", model.MaxCommentsLength)
	}
	return nil
}

func classifyVerificationDocument(f docstore.File) string {
	if model.ValidDocType(model.ParentVerification, f.Type) {
		return f.Type
	}
	return model.DocTypeOther
}

// Submit files a property for verification by the named verifier. The
// property's verification status becomes pending, or verified straight away
// when verifications are auto-approved.
func (vs *Verifications) Submit(ctx context.Context, caller model.Caller, in SubmitInput, files []docstore.File) (*model.Verification, error) {
	defer vs.metrics.ObserveOperation("verification_submit", time.Now())

	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := checkSubmit(ctx, vs.db, caller, in); err != nil {
		return nil, err
	}

	docs := docstore.UploadBatch(ctx, vs.docs, files, docstore.FolderVerificationDocuments, classifyVerificationDocument)

	at := now()
	v := &model.Verification{
		ID:           uuid.NewString(),
		PropertyID:   in.PropertyID,
		VerifierID:   in.VerifierID,
		SubmittedBy:  caller.ID,
		Status:       model.VerificationPending,
		LSNumber:     in.LSNumber,
		PageNumber:   in.PageNumber,
		VolumeNumber: in.VolumeNumber,
		LawyerID:     in.LawyerID,
		Comments:     in.Comments,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	autoVerify := vs.initialStatus == model.VerificationVerified
	if autoVerify {
		v.Status = model.VerificationVerified
		v.VerificationDate = &at
		passed := model.Check{Status: true, VerifiedAt: &at}
		v.Checks = model.Checks{SurveyValid: passed, TitleValid: passed, TaxClearance: passed}
	}

	err := db.WithTx(ctx, vs.db, func(tx *sql.Tx) error {
		if err := checkSubmit(ctx, tx, caller, in); err != nil {
			return err
		}

		if err := store.CreateVerification(ctx, tx, v); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Conflict("verification conflicts with an existing one")
			}
			return err
		}
		if err := store.AddDocuments(ctx, tx, model.ParentVerification, v.ID, docs); err != nil {
			return err
		}
		if err := store.AppendVerificationHistory(ctx, tx, v.ID, store.HistoryRecord{
			Action:      model.ActionCreated,
			PerformedBy: caller.ID,
			Details:     map[string]any{"status": v.Status},
			At:          at,
		}); err != nil {
			return err
		}

		if _, err := store.SetPropertyVerificationStatus(ctx, tx, v.PropertyID, model.VerificationStatusPending, at); err != nil {
			return err
		}
		if err := store.AppendPropertyHistory(ctx, tx, v.PropertyID, store.HistoryRecord{
			Action:      model.ActionVerificationSubmitted,
			PerformedBy: caller.ID,
			RefID:       v.ID,
			Details:     map[string]any{"verification_id": v.ID, "verifier": v.VerifierID, "ls_number": v.LSNumber},
			At:          at,
		}); err != nil {
			return err
		}

		if autoVerify {
			return vs.applyVerificationCascade(ctx, tx, v, caller.ID, at)
		}
		return nil
	})
	if err != nil {
		vs.discard(ctx, docs)
		return nil, err
	}

	vs.metrics.Transition(entityVerification, v.Status)
	slog.Info("verification submitted", "verification", v.ID, "property", v.PropertyID,
		"verifier", v.VerifierID, "status", v.Status, "documents", len(docs))
	return store.GetVerification(ctx, vs.db, v.ID)
}

func checkSubmit(ctx context.Context, q store.DBTX, caller model.Caller, in SubmitInput) error {
	p, err := propertyOrFail(ctx, q, in.PropertyID)
	if err != nil {
		return err
	}
	if p.OwnerID != caller.ID && !caller.IsAdmin() {
		return apperr.Forbidden("only the property owner can request verification")
	}

	verifier, err := store.GetActiveUser(ctx, q, in.VerifierID)
	if err != nil {
		return err
	}
	if verifier == nil {
		return apperr.NotFound("verifier not found")
	}
	if !model.RoleAtLeast(verifier.Role, model.RoleVerifier) {
		return apperr.Validation("user %s cannot verify properties", verifier.Username)
	}
	if verifier.ID == p.OwnerID {
		return apperr.Validation("the property owner cannot verify their own property")
	}

	pending, err := store.HasPendingVerification(ctx, q, p.ID)
	if err != nil {
		return err
	}
	if pending {
		return apperr.Conflict("property already has a pending verification")
	}

	taken, err := store.LSNumberExists(ctx, q, in.LSNumber)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflict("LS number %s is already registered", in.LSNumber)
	}
	return nil
}

// CheckUpdate sets one verification sub-check.
type CheckUpdate struct {
	Status bool
	Notes  string
}

// DecisionInput is a verifier's decision.
type DecisionInput struct {
	// Status is approved, verified or rejected.
	Status       string
	Comments     string
	SurveyValid  *CheckUpdate
	TitleValid   *CheckUpdate
	TaxClearance *CheckUpdate
}

// decisionStatus maps a requested decision onto a verification status.
func decisionStatus(s string) (string, error) {
	switch s {
	case "approved", model.VerificationVerified:
		return model.VerificationVerified, nil
	case model.VerificationRejected:
		return model.VerificationRejected, nil
	}
	return "", apperr.Validation("status must be approved or rejected")
}

// checkDecide loads v and checks the caller may decide it. done is true when
// v already carries the requested terminal status.
func checkDecide(ctx context.Context, q store.DBTX, caller model.Caller, id, status string) (v *model.Verification, done bool, err error) {
	v, err = store.GetVerification(ctx, q, id)
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, apperr.NotFound("verification not found")
	}
	if v.VerifierID != caller.ID && !caller.IsAdmin() {
		return nil, false, apperr.Forbidden("only the assigned verifier can decide this verification")
	}
	if v.Terminal() {
		if v.Status == status {
			return v, true, nil
		}
		return nil, false, apperr.InvalidState("verification is already %s", v.Status)
	}
	return v, false, nil
}

func applyCheck(c *model.Check, u *CheckUpdate, at time.Time) {
	if u == nil {
		return
	}
	c.Status = u.Status
	c.Notes = u.Notes
	c.VerifiedAt = nil
	if u.Status {
		c.VerifiedAt = &at
	}
}

// Approve records the verifier's decision and cascades it to the property.
// Repeating the decision a verification already carries is a no-op.
func (vs *Verifications) Approve(ctx context.Context, caller model.Caller, id string, in DecisionInput, signature *docstore.File) (*model.Verification, error) {
	defer vs.metrics.ObserveOperation("verification_approve", time.Now())

	status, err := decisionStatus(in.Status)
	if err != nil {
		return nil, err
	}
	if len(in.Comments) > model.MaxCommentsLength {
		return nil, apperr.Validation("comments must be at most %d characters", model.MaxCommentsLength)
	}

	v, done, err := checkDecide(ctx, vs.db, caller, id, status)
	if err != nil {
		return nil, err
	}
	if done {
		return v, nil
	}

	sig, hasSig := vs.uploadSignature(ctx, signature)

	at := now()
	err = db.WithTx(ctx, vs.db, func(tx *sql.Tx) error {
		cur, already, err := checkDecide(ctx, tx, caller, id, status)
		if err != nil {
			return err
		}
		if already {
			done = true
			return nil
		}
		v = cur

		prev := v.Status
		v.Status = status
		if in.Comments != "" {
			v.Comments = in.Comments
		}
		applyCheck(&v.Checks.SurveyValid, in.SurveyValid, at)
		applyCheck(&v.Checks.TitleValid, in.TitleValid, at)
		applyCheck(&v.Checks.TaxClearance, in.TaxClearance, at)
		if hasSig {
			v.Signature = &model.Signature{URL: sig.URL, Timestamp: at}
		}
		v.VerificationDate = &at
		v.UpdatedAt = at

		ok, err := store.DecideVerification(ctx, tx, v)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("verification changed concurrently")
		}

		action := model.ActionApproved
		if status == model.VerificationRejected {
			action = model.ActionRejected
		}
		if err := store.AppendVerificationHistory(ctx, tx, v.ID, store.HistoryRecord{
			Action:      action,
			PerformedBy: caller.ID,
			Details:     map[string]any{"from": prev, "to": status, "comments": in.Comments},
			At:          at,
		}); err != nil {
			return err
		}

		return vs.applyVerificationCascade(ctx, tx, v, caller.ID, at)
	})
	if err != nil || done {
		if hasSig {
			docstore.DeleteBestEffort(ctx, vs.docs, sig.PublicID)
		}
	}
	if err != nil {
		return nil, err
	}

	if !done {
		vs.metrics.Transition(entityVerification, status)
		slog.Info("verification decided", "verification", id, "status", status, "user", caller.ID)
	}
	return store.GetVerification(ctx, vs.db, id)
}

// Status is the verification state of a property as reported by CheckStatus.
type Status struct {
	PropertyID         string              `json:"property_id"`
	VerificationStatus string              `json:"verification_status"`
	Verification       *model.Verification `json:"verification"`
}

// CheckStatus returns the property's verification status and its most
// recent verification.
func (vs *Verifications) CheckStatus(ctx context.Context, caller model.Caller, propertyID string) (*Status, error) {
	p, err := propertyOrFail(ctx, vs.db, propertyID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != caller.ID && !caller.CanVerify() {
		return nil, apperr.Forbidden("only the property owner can view its verification")
	}

	v, err := store.LatestVerification(ctx, vs.db, propertyID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apperr.NotFound("no verification found for this property")
	}
	return &Status{PropertyID: p.ID, VerificationStatus: p.VerificationStatus, Verification: v}, nil
}

// Get returns a verification visible to the caller.
func (vs *Verifications) Get(ctx context.Context, caller model.Caller, id string) (*model.Verification, error) {
	v, err := store.GetVerification(ctx, vs.db, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apperr.NotFound("verification not found")
	}
	if v.SubmittedBy != caller.ID && v.VerifierID != caller.ID && !caller.IsAdmin() {
		return nil, apperr.Forbidden("not allowed to view this verification")
	}
	return v, nil
}

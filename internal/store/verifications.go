package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/kataster/internal/model"
)

const verificationColumns = `id, property_id, verifier_id, submitted_by, status, ls_number, page_number,
	volume_number, lawyer_id, comments, signature_url, signature_at,
	survey_valid, survey_notes, survey_verified_at,
	title_valid, title_notes, title_verified_at,
	tax_clearance, tax_notes, tax_verified_at,
	verification_date, created_at, updated_at`

func scanVerification(row interface{ Scan(...any) error }) (*model.Verification, error) {
	v := &model.Verification{}
	var lawyer, comments, sigURL, surveyNotes, titleNotes, taxNotes sql.NullString
	var sigAt *time.Time
	if err := row.Scan(&v.ID, &v.PropertyID, &v.VerifierID, &v.SubmittedBy, &v.Status, &v.LSNumber,
		&v.PageNumber, &v.VolumeNumber, &lawyer, &comments, &sigURL, &sigAt,
		&v.Checks.SurveyValid.Status, &surveyNotes, &v.Checks.SurveyValid.VerifiedAt,
		&v.Checks.TitleValid.Status, &titleNotes, &v.Checks.TitleValid.VerifiedAt,
		&v.Checks.TaxClearance.Status, &taxNotes, &v.Checks.TaxClearance.VerifiedAt,
		&v.VerificationDate, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.LawyerID = lawyer.String
	v.Comments = comments.String
	v.Checks.SurveyValid.Notes = surveyNotes.String
	v.Checks.TitleValid.Notes = titleNotes.String
	v.Checks.TaxClearance.Notes = taxNotes.String
	if sigURL.Valid && sigAt != nil {
		v.Signature = &model.Signature{URL: sigURL.String, Timestamp: *sigAt}
	}
	return v, nil
}

// CreateVerification inserts a verification. A reused LS number or a second
// pending verification for the property fails with ErrDuplicate.
func CreateVerification(ctx context.Context, db DBTX, v *model.Verification) error {
	c := v.Checks
	_, err := db.ExecContext(ctx,
		`INSERT INTO verifications (id, property_id, verifier_id, submitted_by, status, ls_number,
		                            page_number, volume_number, lawyer_id, comments,
		                            survey_valid, survey_verified_at, title_valid, title_verified_at,
		                            tax_clearance, tax_verified_at, verification_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.PropertyID, v.VerifierID, v.SubmittedBy, v.Status, v.LSNumber,
		v.PageNumber, v.VolumeNumber, nullString(v.LawyerID), nullString(v.Comments),
		c.SurveyValid.Status, c.SurveyValid.VerifiedAt, c.TitleValid.Status, c.TitleValid.VerifiedAt,
		c.TaxClearance.Status, c.TaxClearance.VerifiedAt, v.VerificationDate, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return wrapWriteErr(err, "creating verification")
	}
	return nil
}

// GetVerification returns a verification with its documents and history.
func GetVerification(ctx context.Context, db DBTX, id string) (*model.Verification, error) {
	v, err := scanVerification(db.QueryRowContext(ctx,
		`SELECT `+verificationColumns+` FROM verifications WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting verification: %w", err)
	}

	if v.Documents, err = ListDocuments(ctx, db, model.ParentVerification, v.ID); err != nil {
		return nil, err
	}
	if v.History, err = ListVerificationHistory(ctx, db, v.ID); err != nil {
		return nil, err
	}
	return v, nil
}

// LatestVerification returns the most recently created verification for a
// property.
func LatestVerification(ctx context.Context, db DBTX, propertyID string) (*model.Verification, error) {
	var id string
	err := db.QueryRowContext(ctx,
		`SELECT id FROM verifications WHERE property_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		propertyID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest verification: %w", err)
	}
	return GetVerification(ctx, db, id)
}

// LSNumberExists reports whether any verification already uses lsNumber.
func LSNumberExists(ctx context.Context, db DBTX, lsNumber string) (bool, error) {
	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM verifications WHERE ls_number = ?)`, lsNumber,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking ls number: %w", err)
	}
	return exists, nil
}

// HasPendingVerification reports whether the property has a verification
// awaiting a decision.
func HasPendingVerification(ctx context.Context, db DBTX, propertyID string) (bool, error) {
	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM verifications WHERE property_id = ? AND status = ?)`,
		propertyID, model.VerificationPending,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking pending verification: %w", err)
	}
	return exists, nil
}

// DecideVerification writes the verifier's decision if the verification is
// still pending. It reports whether the row changed.
func DecideVerification(ctx context.Context, db DBTX, v *model.Verification) (bool, error) {
	c := v.Checks
	var sigURL sql.NullString
	var sigAt *time.Time
	if v.Signature != nil {
		sigURL = nullString(v.Signature.URL)
		sigAt = &v.Signature.Timestamp
	}

	res, err := db.ExecContext(ctx,
		`UPDATE verifications SET
		     status = ?, comments = ?,
		     signature_url = COALESCE(?, signature_url), signature_at = COALESCE(?, signature_at),
		     survey_valid = ?, survey_notes = ?, survey_verified_at = ?,
		     title_valid = ?, title_notes = ?, title_verified_at = ?,
		     tax_clearance = ?, tax_notes = ?, tax_verified_at = ?,
		     verification_date = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		v.Status, nullString(v.Comments), sigURL, sigAt,
		c.SurveyValid.Status, nullString(c.SurveyValid.Notes), c.SurveyValid.VerifiedAt,
		c.TitleValid.Status, nullString(c.TitleValid.Notes), c.TitleValid.VerifiedAt,
		c.TaxClearance.Status, nullString(c.TaxClearance.Notes), c.TaxClearance.VerifiedAt,
		v.VerificationDate, v.UpdatedAt, v.ID, model.VerificationPending,
	)
	if err != nil {
		return false, fmt.Errorf("deciding verification: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

// CountVerificationsByStatus counts verifications per status, optionally for
// one assigned verifier.
func CountVerificationsByStatus(ctx context.Context, db DBTX, verifierID int64) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM verifications`
	var args []any
	if verifierID > 0 {
		query += ` WHERE verifier_id = ?`
		args = append(args, verifierID)
	}
	query += ` GROUP BY status`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting verifications: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning verification counts: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

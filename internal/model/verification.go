package model

import (
	"regexp"
	"time"
)

// Verification is a verifier's review of a property's legal documents.
type Verification struct {
	ID               string         `json:"id"`
	PropertyID       string         `json:"property_id"`
	VerifierID       int64          `json:"verifier_id"`
	SubmittedBy      int64          `json:"submitted_by"`
	Status           string         `json:"status"`
	LSNumber         string         `json:"ls_number"`
	PageNumber       string         `json:"page_number"`
	VolumeNumber     string         `json:"volume_number"`
	LawyerID         string         `json:"lawyer_id,omitempty"`
	Comments         string         `json:"comments,omitempty"`
	Signature        *Signature     `json:"signature,omitempty"`
	Checks           Checks         `json:"checks"`
	Documents        []Document     `json:"documents"`
	History          []HistoryEntry `json:"history,omitempty"`
	VerificationDate *time.Time     `json:"verification_date,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Signature is the verifier's signed attestation.
type Signature struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// Check is a single sub-check of a verification.
type Check struct {
	Status     bool       `json:"status"`
	Notes      string     `json:"notes,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// Checks groups the three independent verification sub-checks.
type Checks struct {
	SurveyValid  Check `json:"survey_valid"`
	TitleValid   Check `json:"title_valid"`
	TaxClearance Check `json:"tax_clearance"`
}

// Complete reports whether all three checks passed.
func (c Checks) Complete() bool {
	return c.SurveyValid.Status && c.TitleValid.Status && c.TaxClearance.Status
}

// Verification record statuses.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
	VerificationRejected = "rejected"
)

// MaxCommentsLength bounds verification comments.
const MaxCommentsLength = 1000

var lsNumberPattern = regexp.MustCompile(`^LS\d{4}/\d{4}$`)

// ValidLSNumber reports whether s is a well-formed land survey number.
func ValidLSNumber(s string) bool {
	return lsNumberPattern.MatchString(s)
}

// Terminal reports whether the verification has been decided.
func (v *Verification) Terminal() bool {
	return v.Status == VerificationVerified || v.Status == VerificationRejected
}

package model

import "time"

// HistoryEntry is one row of an append-only audit trail.
type HistoryEntry struct {
	ID          int64          `json:"id"`
	Action      string         `json:"action"`
	PerformedBy int64          `json:"performed_by"`
	Timestamp   time.Time      `json:"timestamp"`
	Details     map[string]any `json:"details,omitempty"`
}

// Property history actions.
const (
	ActionCreated               = "created"
	ActionUpdated               = "updated"
	ActionDocumentsAdded        = "documents_added"
	ActionDocumentRemoved       = "document_removed"
	ActionTransferInitiated     = "transfer_initiated"
	ActionTransferRejected      = "transfer_rejected"
	ActionTransferCompleted     = "transfer_completed"
	ActionVerificationSubmitted = "verification_submitted"
	ActionVerificationCompleted = "verification_completed"
)

// Verification history actions. ActionCreated is shared.
const (
	ActionApproved = "approved"
	ActionRejected = "rejected"
)

package model

import (
	"slices"
	"time"
)

// Transfer moves ownership of a property from its current owner to a
// registered recipient once the required parties have approved.
type Transfer struct {
	ID              string              `json:"id"`
	PropertyID      string              `json:"property_id"`
	FromOwnerID     int64               `json:"from_owner_id"`
	ToOwnerID       int64               `json:"to_owner_id"`
	ToOwnerDetails  RecipientDetails    `json:"to_owner_details"`
	Status          string              `json:"status"`
	Approvals       map[string]Approval `json:"approvals"`
	Documents       []Document          `json:"documents"`
	TransferReason  string              `json:"transfer_reason"`
	AgreementDate   time.Time           `json:"agreement_date"`
	TransferAmount  *float64            `json:"transfer_amount,omitempty"`
	PaymentDetails  *PaymentDetails     `json:"payment_details,omitempty"`
	TransferDate    *time.Time          `json:"transfer_date,omitempty"`
	RejectionReason string              `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// RecipientDetails describes the receiving party as stated on the agreement.
type RecipientDetails struct {
	Name           string `json:"name"`
	Identification string `json:"identification"`
	Contact        string `json:"contact"`
}

// Approval is one party's sign-off on a transfer.
type Approval struct {
	Approved     bool      `json:"approved"`
	SignatureURL string    `json:"signature,omitempty"`
	ApprovedBy   int64     `json:"approved_by"`
	Timestamp    time.Time `json:"timestamp"`
}

// PaymentDetails records how the transfer amount was paid.
type PaymentDetails struct {
	Method        string     `json:"method,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	Amount        *float64   `json:"amount,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
}

// Transfer statuses.
const (
	TransferStatusPending    = "pending"
	TransferStatusProcessing = "processing"
	TransferStatusCompleted  = "completed"
	TransferStatusRejected   = "rejected"
)

// Approval roles.
const (
	ApprovalSeller   = "seller"
	ApprovalBuyer    = "buyer"
	ApprovalVerifier = "verifier"
)

// Payment methods.
const (
	PaymentBankTransfer = "bank_transfer"
	PaymentMobileMoney  = "mobile_money"
	PaymentCash         = "cash"
)

// DefaultRequiredApprovals is the set of roles that must approve before a
// transfer completes through the approval path.
var DefaultRequiredApprovals = []string{ApprovalSeller, ApprovalBuyer, ApprovalVerifier}

// ValidPaymentMethod reports whether m is a known payment method.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentBankTransfer, PaymentMobileMoney, PaymentCash:
		return true
	}
	return false
}

// Terminal reports whether the transfer can no longer change.
func (t *Transfer) Terminal() bool {
	return t.Status == TransferStatusCompleted || t.Status == TransferStatusRejected
}

// Approved reports whether every role in required has approved.
func (t *Transfer) Approved(required []string) bool {
	if len(required) == 0 {
		return false
	}
	for _, role := range required {
		if !t.Approvals[role].Approved {
			return false
		}
	}
	return true
}

// IsParticipant reports whether userID is the seller or the recipient.
func (t *Transfer) IsParticipant(userID int64) bool {
	return userID == t.FromOwnerID || userID == t.ToOwnerID
}

// ApprovedRoles returns the roles that have approved, sorted.
func (t *Transfer) ApprovedRoles() []string {
	var roles []string
	for role, a := range t.Approvals {
		if a.Approved {
			roles = append(roles, role)
		}
	}
	slices.Sort(roles)
	return roles
}

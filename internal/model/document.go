package model

import "time"

// Document is a reference to a file held by the document store.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	URL        string    `json:"url"`
	PublicID   string    `json:"public_id"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Document owners.
const (
	ParentProperty     = "property"
	ParentTransfer     = "transfer"
	ParentVerification = "verification"
)

// Property document types.
const (
	DocTypeDeed     = "deed"
	DocTypeSurvey   = "survey"
	DocTypeTax      = "tax"
	DocTypeIdentity = "identity"
	DocTypeOther    = "other"
)

// Transfer document types.
const (
	DocTypeTransferDeed       = "transfer_deed"
	DocTypeSupportingDocument = "supporting_document"
	DocTypePaymentProof       = "payment_proof"
)

// DocTypeLegal is the verification-only document type; survey, tax and other
// are shared with properties.
const DocTypeLegal = "legal"

// ValidDocType reports whether docType is allowed for documents attached to
// the given parent kind.
func ValidDocType(parent, docType string) bool {
	switch parent {
	case ParentProperty:
		switch docType {
		case DocTypeDeed, DocTypeSurvey, DocTypeTax, DocTypeIdentity, DocTypeOther:
			return true
		}
	case ParentTransfer:
		switch docType {
		case DocTypeTransferDeed, DocTypeSupportingDocument, DocTypePaymentProof:
			return true
		}
	case ParentVerification:
		switch docType {
		case DocTypeSurvey, DocTypeLegal, DocTypeTax, DocTypeOther:
			return true
		}
	}
	return false
}

package model

import "time"

// Property is a registered land or real-estate record with a single owner.
type Property struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Type               string     `json:"type"`
	Size               float64    `json:"size"`
	Location           Location   `json:"location"`
	OwnerID            int64      `json:"owner_id"`
	Price              float64    `json:"price"`
	Status             string     `json:"status"`
	VerificationStatus string     `json:"verification_status"`
	Documents          []Document `json:"documents"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	OwnerName string `json:"owner_name,omitempty"`
}

// Location describes where a property is.
type Location struct {
	Address     string       `json:"address"`
	Area        string       `json:"area"`
	City        string       `json:"city"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Property types.
const (
	PropertyTypeResidential  = "residential"
	PropertyTypeCommercial   = "commercial"
	PropertyTypeAgricultural = "agricultural"
	PropertyTypeIndustrial   = "industrial"
)

// Property statuses. Only the transfer workflow moves a property between them.
const (
	PropertyStatusAvailable       = "available"
	PropertyStatusPendingTransfer = "pending_transfer"
	PropertyStatusTransferred     = "transferred"
	PropertyStatusRegistered      = "registered"
)

// Property verification statuses. Only the verification workflow writes them.
const (
	VerificationStatusUnverified = "unverified"
	VerificationStatusPending    = "pending"
	VerificationStatusVerified   = "verified"
)

// ValidPropertyType reports whether t is a known property type.
func ValidPropertyType(t string) bool {
	switch t {
	case PropertyTypeResidential, PropertyTypeCommercial, PropertyTypeAgricultural, PropertyTypeIndustrial:
		return true
	}
	return false
}

// Transferable reports whether a new transfer may be opened for the property.
func (p *Property) Transferable() bool {
	return p.Status == PropertyStatusAvailable || p.Status == PropertyStatusPendingTransfer
}

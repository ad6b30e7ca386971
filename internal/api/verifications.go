package api

import (
	"net/http"

	"github.com/erazemk/kataster/internal/workflow"
)

// VerificationsHandler handles property verification endpoints.
type VerificationsHandler struct {
	Verifications *workflow.Verifications
}

type submitVerificationRequest struct {
	PropertyID   string `json:"property_id" validate:"required"`
	VerifierID   int64  `json:"verifier_id" validate:"required,gt=0"`
	LSNumber     string `json:"ls_number" validate:"required,lsnumber"`
	PageNumber   string `json:"page_number" validate:"required"`
	VolumeNumber string `json:"volume_number" validate:"required"`
	LawyerID     string `json:"lawyer_id"`
	Comments     string `json:"comments" validate:"max=1000"`
}

type checkRequest struct {
	Status bool   `json:"status"`
	Notes  string `json:"notes" validate:"max=1000"`
}

func (c *checkRequest) update() *workflow.CheckUpdate {
	if c == nil {
		return nil
	}
	return &workflow.CheckUpdate{Status: c.Status, Notes: c.Notes}
}

type decisionRequest struct {
	Status       string        `json:"status" validate:"required,oneof=approved verified rejected"`
	Comments     string        `json:"comments" validate:"max=1000"`
	SurveyValid  *checkRequest `json:"survey_valid"`
	TitleValid   *checkRequest `json:"title_valid"`
	TaxClearance *checkRequest `json:"tax_clearance"`
}

// Submit handles POST /api/verifications.
func (h *VerificationsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitVerificationRequest
	up, err := bind(r, &req)
	defer up.Close()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := h.Verifications.Submit(r.Context(), callerFrom(r), workflow.SubmitInput{
		PropertyID:   req.PropertyID,
		VerifierID:   req.VerifierID,
		LSNumber:     req.LSNumber,
		PageNumber:   req.PageNumber,
		VolumeNumber: req.VolumeNumber,
		LawyerID:     req.LawyerID,
		Comments:     req.Comments,
	}, up.Documents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, v)
}

// Get handles GET /api/verifications/{id}.
func (h *VerificationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.Verifications.Get(r.Context(), callerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, v)
}

// Approve handles PUT /api/verifications/{id}/approve. The verifier may
// attach a "signature" image.
func (h *VerificationsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	up, err := bind(r, &req)
	defer up.Close()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := h.Verifications.Approve(r.Context(), callerFrom(r), r.PathValue("id"), workflow.DecisionInput{
		Status:       req.Status,
		Comments:     req.Comments,
		SurveyValid:  req.SurveyValid.update(),
		TitleValid:   req.TitleValid.update(),
		TaxClearance: req.TaxClearance.update(),
	}, up.Signature)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, v)
}

// Status handles GET /api/verifications/property/{propertyID}.
func (h *VerificationsHandler) Status(w http.ResponseWriter, r *http.Request) {
	s, err := h.Verifications.CheckStatus(r.Context(), callerFrom(r), r.PathValue("propertyID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, s)
}

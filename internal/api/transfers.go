package api

import (
	"net/http"
	"time"

	"github.com/erazemk/kataster/internal/model"
	"github.com/erazemk/kataster/internal/store"
	"github.com/erazemk/kataster/internal/workflow"
)

// TransfersHandler handles transfer endpoints.
type TransfersHandler struct {
	Transfers *workflow.Transfers
}

type initiateTransferRequest struct {
	PropertyID     string                 `json:"property_id" validate:"required"`
	ToOwnerID      int64                  `json:"to_owner_id" validate:"required,gt=0"`
	ToOwnerDetails model.RecipientDetails `json:"to_owner_details"`
	TransferReason string                 `json:"transfer_reason" validate:"required,max=1000"`
	AgreementDate  time.Time              `json:"agreement_date"`
	TransferAmount *float64               `json:"transfer_amount" validate:"omitempty,gte=0"`
}

type paymentRequest struct {
	Method        string     `json:"method" validate:"omitempty,paymentmethod"`
	TransactionID string     `json:"transaction_id"`
	Amount        *float64   `json:"amount" validate:"omitempty,gte=0"`
	PaidAt        *time.Time `json:"paid_at"`
}

func (p *paymentRequest) details() *model.PaymentDetails {
	if p == nil {
		return nil
	}
	return &model.PaymentDetails{
		Method:        p.Method,
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		PaidAt:        p.PaidAt,
	}
}

type approveTransferRequest struct {
	Role string `json:"role" validate:"required"`
}

type updateTransferRequest struct {
	TransferAmount *float64        `json:"transfer_amount" validate:"omitempty,gte=0"`
	PaymentDetails *paymentRequest `json:"payment_details"`
}

type completeTransferRequest struct {
	PaymentDetails *paymentRequest `json:"payment_details"`
}

type rejectTransferRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// Initiate handles POST /api/transfers.
func (h *TransfersHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateTransferRequest
	up, err := bind(r, &req)
	defer up.Close()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.Transfers.Initiate(r.Context(), callerFrom(r), workflow.InitiateInput{
		PropertyID:     req.PropertyID,
		ToOwnerID:      req.ToOwnerID,
		ToOwnerDetails: req.ToOwnerDetails,
		TransferReason: req.TransferReason,
		AgreementDate:  req.AgreementDate,
		TransferAmount: req.TransferAmount,
	}, up.Documents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, t)
}

// List handles GET /api/transfers with optional status and property_id
// filters.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ts, err := h.Transfers.List(r.Context(), callerFrom(r), store.TransferFilter{
		PropertyID: q.Get("property_id"),
		Status:     q.Get("status"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, ts)
}

// Get handles GET /api/transfers/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.Transfers.Get(r.Context(), callerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

// Approve handles PUT /api/transfers/{id}/approve. A signature image may be
// attached as the "signature" file.
func (h *TransfersHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveTransferRequest
	up, err := bind(r, &req)
	defer up.Close()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.Transfers.Approve(r.Context(), callerFrom(r), r.PathValue("id"), req.Role, up.Signature)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

// Update handles PUT /api/transfers/{id}.
func (h *TransfersHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateTransferRequest
	up, err := bind(r, &req)
	defer up.Close()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.Transfers.Update(r.Context(), callerFrom(r), r.PathValue("id"), workflow.UpdateInput{
		TransferAmount: req.TransferAmount,
		Payment:        req.PaymentDetails.details(),
	}, up.Documents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

// Complete handles POST /api/transfers/{id}/complete.
func (h *TransfersHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeTransferRequest
	up, err := bind(r, &req)
	defer up.Close()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.Transfers.Complete(r.Context(), callerFrom(r), r.PathValue("id"), workflow.CompleteInput{
		Payment: req.PaymentDetails.details(),
	}, up.Documents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

// Reject handles POST /api/transfers/{id}/reject.
func (h *TransfersHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectTransferRequest
	up, err := bind(r, &req)
	up.Close()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.Transfers.Reject(r.Context(), callerFrom(r), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

// AddDocuments handles POST /api/transfers/{id}/documents.
func (h *TransfersHandler) AddDocuments(w http.ResponseWriter, r *http.Request) {
	var req struct{}
	up, err := bind(r, &req)
	defer up.Close()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.Transfers.AddDocuments(r.Context(), callerFrom(r), r.PathValue("id"), up.Documents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

// RemoveDocument handles DELETE /api/transfers/{id}/documents/{docID}.
func (h *TransfersHandler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	t, err := h.Transfers.RemoveDocument(r.Context(), callerFrom(r), r.PathValue("id"), r.PathValue("docID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

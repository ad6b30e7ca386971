package api

import (
	"net/http"
	"strconv"

	"github.com/erazemk/kataster/internal/model"
	"github.com/erazemk/kataster/internal/registry"
	"github.com/erazemk/kataster/internal/store"
)

// defaultHistoryLimit is the page size when the client does not pass one.
const defaultHistoryLimit = 50

// PropertiesHandler handles property registry endpoints.
type PropertiesHandler struct {
	Registry *registry.Registry
}

type propertyRequest struct {
	Title       string         `json:"title" validate:"required,max=100"`
	Description string         `json:"description" validate:"max=1000"`
	Type        string         `json:"type" validate:"required,oneof=residential commercial agricultural industrial"`
	Size        float64        `json:"size" validate:"gt=0"`
	Location    model.Location `json:"location"`
	Price       float64        `json:"price" validate:"gte=0"`
}

type updatePropertyRequest struct {
	Title       *string         `json:"title" validate:"omitempty,max=100"`
	Description *string         `json:"description" validate:"omitempty,max=1000"`
	Size        *float64        `json:"size" validate:"omitempty,gt=0"`
	Price       *float64        `json:"price" validate:"omitempty,gte=0"`
	Location    *model.Location `json:"location"`
}

type historyResponse struct {
	History []model.HistoryEntry `json:"history"`
	Total   int                  `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

// Create handles POST /api/properties.
func (h *PropertiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req propertyRequest
	up, err := bind(r, &req)
	defer up.Close()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.Registry.Register(r.Context(), callerFrom(r), registry.PropertyInput{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Size:        req.Size,
		Location:    req.Location,
		Price:       req.Price,
	}, up.Documents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, p)
}

// List handles GET /api/properties. Users see their own properties; verifiers
// and admins see all of them. Optional filters: status, verification_status,
// city.
func (h *PropertiesHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	q := r.URL.Query()
	f := store.PropertyFilter{
		Status:             q.Get("status"),
		VerificationStatus: q.Get("verification_status"),
		City:               q.Get("city"),
	}
	if !caller.CanVerify() {
		f.OwnerID = caller.ID
	}

	props, err := h.Registry.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, props)
}

// Get handles GET /api/properties/{id}.
func (h *PropertiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// Update handles PUT /api/properties/{id}.
func (h *PropertiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updatePropertyRequest
	up, err := bind(r, &req)
	up.Close()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.Registry.Update(r.Context(), callerFrom(r), r.PathValue("id"), registry.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Size:        req.Size,
		Price:       req.Price,
		Location:    req.Location,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// History handles GET /api/properties/{id}/history?limit=&offset=.
func (h *PropertiesHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}

	entries, total, err := h.Registry.History(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, historyResponse{History: entries, Total: total, Limit: limit, Offset: offset})
}

// AddDocuments handles POST /api/properties/{id}/documents.
func (h *PropertiesHandler) AddDocuments(w http.ResponseWriter, r *http.Request) {
	var req struct{}
	up, err := bind(r, &req)
	defer up.Close()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.Registry.AddDocuments(r.Context(), callerFrom(r), r.PathValue("id"), up.Documents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// RemoveDocument handles DELETE /api/properties/{id}/documents/{docID}.
func (h *PropertiesHandler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	p, err := h.Registry.RemoveDocument(r.Context(), callerFrom(r), r.PathValue("id"), r.PathValue("docID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// Stats handles GET /api/stats.
func (h *PropertiesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Registry.Stats(r.Context(), callerFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}

// pageParams reads limit and offset query parameters. It writes a 400 and
// returns false on malformed values.
func pageParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = defaultHistoryLimit
	q := r.URL.Query()
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return 0, 0, false
		}
		limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			jsonError(w, http.StatusBadRequest, "invalid offset")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

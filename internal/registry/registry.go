// Package registry owns property records: registration, descriptive edits,
// documents and the property audit trail. Status fields are changed only by
// the workflow package.
package registry

import (
	"context"
	"database/sql"
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

// Field limits.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 1000
)

// Registry manages property records.
type Registry struct {
	db      *sql.DB
	docs    docstore.Store
	metrics *metrics.Metrics
}

// New creates a Registry.
func New(database *sql.DB, docs docstore.Store, m *metrics.Metrics) *Registry {
	return &Registry{db: database, docs: docs, metrics: m}
}

// PropertyInput carries the descriptive fields of a property.
type PropertyInput struct {
	Title       string
	Description string
	Type        string
	Size        float64
	Location    model.Location
	Price       float64
}

func (in PropertyInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return apperr.Validation("title is required")
	case len(in.Title) > MaxTitleLength:
		return apperr.Validation("title must be at most %d characters", MaxTitleLength)
	case len(in.Description) > MaxDescriptionLength:
		return apperr.Validation("description must be at most %d characters", MaxDescriptionLength)
	case !model.ValidPropertyType(in.Type):
		return apperr.Validation("invalid property type %q", in.Type)
	case in.Size <= 0:
		return apperr.Validation("size must be positive")
	case in.Price < 0:
		return apperr.Validation("price must not be negative")
	case in.Location.Address == "" || in.Location.Area == "" || in.Location.City == "":
		return apperr.Validation("address, area and city are required")
	}
	return nil
}

// classifyPropertyDocument keeps the client's type when it is a valid
// property document type.
func classifyPropertyDocument(f docstore.File) string {
	if model.ValidDocType(model.ParentProperty, f.Type) {
		return f.Type
	}
	return model.DocTypeOther
}

// Register creates a property owned by the caller. It starts available and
// unverified.
func (r *Registry) Register(ctx context.Context, caller model.Caller, in PropertyInput, files []docstore.File) (*model.Property, error) {
	defer r.metrics.ObserveOperation("property_register", time.Now())

	if err := in.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &model.Property{
		ID:                 uuid.NewString(),
		Title:              in.Title,
		Description:        in.Description,
		Type:               in.Type,
		Size:               in.Size,
		Location:           in.Location,
		OwnerID:            caller.ID,
		Price:              in.Price,
		Status:             model.PropertyStatusAvailable,
		VerificationStatus: model.VerificationStatusUnverified,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	docs := docstore.UploadBatch(ctx, r.docs, files, docstore.FolderPropertyDocuments, classifyPropertyDocument)

	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := store.CreateProperty(ctx, tx, p); err != nil {
			return err
		}
		if err := store.AddDocuments(ctx, tx, model.ParentProperty, p.ID, docs); err != nil {
			return err
		}
		return store.AppendPropertyHistory(ctx, tx, p.ID, store.HistoryRecord{
			Action:      model.ActionCreated,
			PerformedBy: caller.ID,
			Details:     map[string]any{"title": p.Title, "documents": len(docs)},
			At:          now,
		})
	})
	if err != nil {
		discard(ctx, r.docs, docs)
		return nil, err
	}

	slog.Info("property registered", "property", p.ID, "owner", caller.ID, "documents", len(docs))
	return r.Get(ctx, p.ID)
}

// Get returns a property with its documents.
func (r *Registry) Get(ctx context.Context, id string) (*model.Property, error) {
	return getProperty(ctx, r.db, id)
}

func getProperty(ctx context.Context, q store.DBTX, id string) (*model.Property, error) {
	p, err := store.GetProperty(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("property not found")
	}
	if p.Documents, err = store.ListDocuments(ctx, q, model.ParentProperty, id); err != nil {
		return nil, err
	}
	return p, nil
}

// ownedProperty loads a property and checks the caller owns it.
func ownedProperty(ctx context.Context, q store.DBTX, caller model.Caller, id string) (*model.Property, error) {
	p, err := getProperty(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != caller.ID {
		return nil, apperr.Forbidden("only the property owner can modify this property")
	}
	return p, nil
}

// UpdateInput holds optional descriptive changes; nil fields are unchanged.
type UpdateInput struct {
	Title       *string
	Description *string
	Size        *float64
	Price       *float64
	Location    *model.Location
}

// Update edits descriptive fields of a property the caller owns and records
// which fields changed.
func (r *Registry) Update(ctx context.Context, caller model.Caller, id string, in UpdateInput) (*model.Property, error) {
	defer r.metrics.ObserveOperation("property_update", time.Now())

	now := time.Now().UTC()
	var changed []string

	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		p, err := ownedProperty(ctx, tx, caller, id)
		if err != nil {
			return err
		}

		if in.Title != nil && *in.Title != p.Title {
			p.Title = *in.Title
			changed = append(changed, "title")
		}
		if in.Description != nil && *in.Description != p.Description {
			p.Description = *in.Description
			changed = append(changed, "description")
		}
		if in.Size != nil && *in.Size != p.Size {
			p.Size = *in.Size
			changed = append(changed, "size")
		}
		if in.Price != nil && *in.Price != p.Price {
			p.Price = *in.Price
			changed = append(changed, "price")
		}
		if in.Location != nil && !sameLocation(*in.Location, p.Location) {
			p.Location = *in.Location
			changed = append(changed, "location")
		}
		if len(changed) == 0 {
			return nil
		}

		if err := (PropertyInput{
			Title: p.Title, Description: p.Description, Type: p.Type,
			Size: p.Size, Location: p.Location, Price: p.Price,
		}).validate(); err != nil {
			return err
		}

		if err := store.UpdatePropertyDetails(ctx, tx, p, now); err != nil {
			return err
		}
		return store.AppendPropertyHistory(ctx, tx, p.ID, store.HistoryRecord{
			Action:      model.ActionUpdated,
			PerformedBy: caller.ID,
			Details:     map[string]any{"fields": changed},
			At:          now,
		})
	})
	if err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		slog.Info("property updated", "property", id, "user", caller.ID, "fields", strings.Join(changed, ","))
	}
	return r.Get(ctx, id)
}

func sameLocation(a, b model.Location) bool {
	if a.Address != b.Address || a.Area != b.Area || a.City != b.City {
		return false
	}
	if (a.Coordinates == nil) != (b.Coordinates == nil) {
		return false
	}
	return a.Coordinates == nil || *a.Coordinates == *b.Coordinates
}

// AddDocuments uploads files and attaches them to a property the caller owns.
// Files that fail to upload are skipped.
func (r *Registry) AddDocuments(ctx context.Context, caller model.Caller, id string, files []docstore.File) (*model.Property, error) {
	// Check ownership before uploading anything.
	if _, err := ownedProperty(ctx, r.db, caller, id); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperr.Validation("no documents provided")
	}

	docs := docstore.UploadBatch(ctx, r.docs, files, docstore.FolderPropertyDocuments, classifyPropertyDocument)
	if len(docs) == 0 {
		return r.Get(ctx, id)
	}

	now := time.Now().UTC()
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := ownedProperty(ctx, tx, caller, id); err != nil {
			return err
		}
		if err := store.AddDocuments(ctx, tx, model.ParentProperty, id, docs); err != nil {
			return err
		}
		return store.AppendPropertyHistory(ctx, tx, id, store.HistoryRecord{
			Action:      model.ActionDocumentsAdded,
			PerformedBy: caller.ID,
			Details:     map[string]any{"documents": documentIDs(docs)},
			At:          now,
		})
	})
	if err != nil {
		discard(ctx, r.docs, docs)
		return nil, err
	}

	return r.Get(ctx, id)
}

// RemoveDocument detaches a document from a property the caller owns and then
// deletes the remote copy. A failed remote delete is logged only.
func (r *Registry) RemoveDocument(ctx context.Context, caller model.Caller, id, docID string) (*model.Property, error) {
	var doc *model.Document
	now := time.Now().UTC()

	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := ownedProperty(ctx, tx, caller, id); err != nil {
			return err
		}

		var err error
		doc, err = store.GetDocument(ctx, tx, model.ParentProperty, id, docID)
		if err != nil {
			return err
		}
		if doc == nil {
			return apperr.NotFound("document not found")
		}

		if _, err := store.RemoveDocument(ctx, tx, model.ParentProperty, id, docID); err != nil {
			return err
		}
		return store.AppendPropertyHistory(ctx, tx, id, store.HistoryRecord{
			Action:      model.ActionDocumentRemoved,
			PerformedBy: caller.ID,
			Details:     map[string]any{"document": doc.ID, "name": doc.Name},
			At:          now,
		})
	})
	if err != nil {
		return nil, err
	}

	docstore.DeleteBestEffort(ctx, r.docs, doc.PublicID)
	return r.Get(ctx, id)
}

// History returns a page of the property's audit trail and its total length.
func (r *Registry) History(ctx context.Context, id string, limit, offset int) ([]model.HistoryEntry, int, error) {
	if limit < 0 || offset < 0 {
		return nil, 0, apperr.Validation("limit and offset must not be negative")
	}
	if _, err := getProperty(ctx, r.db, id); err != nil {
		return nil, 0, err
	}

	total, err := store.CountPropertyHistory(ctx, r.db, id)
	if err != nil {
		return nil, 0, err
	}
	entries, err := store.ListPropertyHistory(ctx, r.db, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	return entries, total, nil
}

// List returns properties matching the filter.
func (r *Registry) List(ctx context.Context, f store.PropertyFilter) ([]model.Property, error) {
	props, err := store.ListProperties(ctx, r.db, f)
	if err != nil {
		return nil, err
	}
	if props == nil {
		props = []model.Property{}
	}
	return props, nil
}

// ListOwned returns the caller's properties.
func (r *Registry) ListOwned(ctx context.Context, caller model.Caller) ([]model.Property, error) {
	return r.List(ctx, store.PropertyFilter{OwnerID: caller.ID})
}

// Stats summarises properties, transfers and verifications. Admins and
// verifiers see the whole registry; other users see their own records.
type Stats struct {
	Properties    *store.PropertyStats `json:"properties"`
	Transfers     map[string]int       `json:"transfers"`
	Verifications map[string]int       `json:"verifications"`
}

// Stats returns dashboard counts for the caller.
func (r *Registry) Stats(ctx context.Context, caller model.Caller) (*Stats, error) {
	var scope int64
	if !caller.CanVerify() {
		scope = caller.ID
	}

	props, err := store.GetPropertyStats(ctx, r.db, scope)
	if err != nil {
		return nil, err
	}
	transfers, err := store.CountTransfersByStatus(ctx, r.db, scope)
	if err != nil {
		return nil, err
	}

	var verifierScope int64
	if caller.Role == model.RoleVerifier {
		verifierScope = caller.ID
	}
	verifications := map[string]int{}
	if caller.CanVerify() {
		if verifications, err = store.CountVerificationsByStatus(ctx, r.db, verifierScope); err != nil {
			return nil, err
		}
	}

	return &Stats{Properties: props, Transfers: transfers, Verifications: verifications}, nil
}

func documentIDs(docs []model.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

// discard removes uploads whose records were never saved.
func discard(ctx context.Context, s docstore.Store, docs []model.Document) {
	for _, d := range docs {
		docstore.DeleteBestEffort(ctx, s, d.PublicID)
	}
}

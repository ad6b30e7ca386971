// Package docstore uploads document files to a remote object store and
// returns references the registry keeps alongside its records.
package docstore

import (
	"context"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/kataster/internal/model"
)

// Folders used for uploads.
const (
	FolderPropertyDocuments     = "property-documents"
	FolderTransferDocuments     = "transfer-documents"
	FolderVerificationDocuments = "verification-documents"
	FolderSignatures            = "signatures"
	FolderPaymentProofs         = "payment-proofs"
)

// File is an upload candidate.
type File struct {
	Name        string
	ContentType string
	// Type is the document type requested by the client, if any.
	Type string
	Body io.Reader
}

// Ref identifies an uploaded file.
type Ref struct {
	URL      string
	PublicID string
}

// Store is a remote document store.
type Store interface {
	Upload(ctx context.Context, f File, folder string) (Ref, error)
	// Delete removes a file. Callers treat failures as non-fatal.
	Delete(ctx context.Context, publicID string) error
}

// Classifier picks the document type for an uploaded file.
type Classifier func(f File) string

// IsPDF reports whether the file looks like a PDF by name or content type.
func IsPDF(f File) bool {
	return f.ContentType == "application/pdf" || strings.EqualFold(path.Ext(f.Name), ".pdf")
}

// UploadBatch uploads files one by one. Files that fail to upload are logged
// and left out of the result; the batch itself never fails.
func UploadBatch(ctx context.Context, s Store, files []File, folder string, classify Classifier) []model.Document {
	docs := make([]model.Document, 0, len(files))
	for _, f := range files {
		ref, err := s.Upload(ctx, f, folder)
		if err != nil {
			slog.Warn("document upload failed, skipping", "file", f.Name, "folder", folder, "error", err)
			continue
		}
		docs = append(docs, model.Document{
			ID:         uuid.NewString(),
			Name:       f.Name,
			Type:       classify(f),
			URL:        ref.URL,
			PublicID:   ref.PublicID,
			UploadedAt: time.Now().UTC(),
		})
	}
	return docs
}

// DeleteBestEffort removes a file and logs, but does not return, any failure.
func DeleteBestEffort(ctx context.Context, s Store, publicID string) {
	if err := s.Delete(ctx, publicID); err != nil {
		slog.Error("failed to delete remote document", "public_id", publicID, "error", err)
	}
}

// objectName builds a unique object name that keeps the original extension.
func objectName(name string) (base, ext string) {
	ext = strings.ToLower(path.Ext(name))
	return uuid.NewString(), ext
}

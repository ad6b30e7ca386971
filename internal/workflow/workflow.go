// Package workflow implements the transfer and verification state machines
// and the cascades they apply to properties.
//
// Every state change runs in a single database transaction together with its
// cascade, guarded by compare-and-set updates on the current status, so a
// concurrent writer either sees the whole change or none of it.
package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/kataster/internal/apperr"
	"github.com/erazemk/kataster/internal/docstore"
	"github.com/erazemk/kataster/internal/metrics"
	"github.com/erazemk/kataster/internal/model"
	"github.com/erazemk/kataster/internal/store"
)

// Config holds the workflow policy knobs.
type Config struct {
	// RequiredApprovals lists the approval roles that complete a transfer.
	RequiredApprovals []string
	// InitialVerificationStatus is the status new verifications start in:
	// pending (reviewed by a verifier) or verified (auto-approved).
	InitialVerificationStatus string
}

// DefaultConfig requires seller, buyer and verifier approval and leaves new
// verifications pending.
func DefaultConfig() Config {
	return Config{
		RequiredApprovals:         append([]string(nil), model.DefaultRequiredApprovals...),
		InitialVerificationStatus: model.VerificationPending,
	}
}

// Validate checks the configuration. The recipient must always consent, so
// the buyer role is mandatory.
func (c Config) Validate() error {
	if len(c.RequiredApprovals) == 0 {
		return errors.New("at least one required approval role is needed")
	}
	buyer := false
	for _, role := range c.RequiredApprovals {
		switch role {
		case model.ApprovalBuyer:
			buyer = true
		case model.ApprovalSeller, model.ApprovalVerifier:
		default:
			return fmt.Errorf("unknown approval role %q", role)
		}
	}
	if !buyer {
		return fmt.Errorf("required approvals must include %q", model.ApprovalBuyer)
	}
	switch c.InitialVerificationStatus {
	case model.VerificationPending, model.VerificationVerified:
	default:
		return fmt.Errorf("initial verification status must be %q or %q, got %q",
			model.VerificationPending, model.VerificationVerified, c.InitialVerificationStatus)
	}
	return nil
}

// deps is shared by Transfers and Verifications.
type deps struct {
	db      *sql.DB
	docs    docstore.Store
	metrics *metrics.Metrics
}

// discard deletes uploads whose records were never committed.
func (d deps) discard(ctx context.Context, docs []model.Document) {
	for _, doc := range docs {
		docstore.DeleteBestEffort(ctx, d.docs, doc.PublicID)
	}
}

// uploadSignature normalises and uploads a signature file. A failed upload is
// logged and the approval proceeds without a signature.
func (d deps) uploadSignature(ctx context.Context, f *docstore.File) (docstore.Ref, bool) {
	if f == nil {
		return docstore.Ref{}, false
	}

	norm, err := docstore.NormalizeSignature(*f)
	if err != nil {
		slog.Warn("signature rejected", "file", f.Name, "error", err)
		return docstore.Ref{}, false
	}

	ref, err := d.docs.Upload(ctx, norm, docstore.FolderSignatures)
	if err != nil {
		slog.Warn("signature upload failed", "file", f.Name, "error", err)
		return docstore.Ref{}, false
	}
	return ref, true
}

func now() time.Time {
	return time.Now().UTC()
}

// propertyOrFail loads a property inside tx and fails with NotFound if it is
// missing.
func propertyOrFail(ctx context.Context, q store.DBTX, id string) (*model.Property, error) {
	p, err := store.GetProperty(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("property not found")
	}
	return p, nil
}

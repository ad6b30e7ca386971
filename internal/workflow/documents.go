package workflow

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/erazemk/kataster/internal/apperr"
	"github.com/erazemk/kataster/internal/db"
	"github.com/erazemk/kataster/internal/docstore"
	"github.com/erazemk/kataster/internal/model"
	"github.com/erazemk/kataster/internal/store"
)

var openStatuses = []string{model.TransferStatusPending, model.TransferStatusProcessing}

// AddDocuments attaches files to an open transfer. Files that fail to upload
// are skipped.
func (tr *Transfers) AddDocuments(ctx context.Context, caller model.Caller, id string, files []docstore.File) (*model.Transfer, error) {
	if len(files) == 0 {
		return nil, apperr.Validation("no documents provided")
	}
	if _, err := checkEditable(ctx, tr.db, caller, id, openStatuses...); err != nil {
		return nil, err
	}

	docs := docstore.UploadBatch(ctx, tr.docs, files, docstore.FolderTransferDocuments, classifyTransferDocument)
	if len(docs) == 0 {
		return store.GetTransfer(ctx, tr.db, id)
	}

	at := now()
	err := db.WithTx(ctx, tr.db, func(tx *sql.Tx) error {
		if _, err := checkEditable(ctx, tx, caller, id, openStatuses...); err != nil {
			return err
		}
		if err := store.AddDocuments(ctx, tx, model.ParentTransfer, id, docs); err != nil {
			return err
		}
		_, err := store.TouchTransfer(ctx, tx, id, at)
		return err
	})
	if err != nil {
		tr.discard(ctx, docs)
		return nil, err
	}

	slog.Info("transfer documents added", "transfer", id, "user", caller.ID, "documents", len(docs))
	return store.GetTransfer(ctx, tr.db, id)
}

// RemoveDocument detaches a document from an open transfer and deletes the
// remote copy. A failed remote delete does not fail the removal.
func (tr *Transfers) RemoveDocument(ctx context.Context, caller model.Caller, id, docID string) (*model.Transfer, error) {
	var doc *model.Document

	at := now()
	err := db.WithTx(ctx, tr.db, func(tx *sql.Tx) error {
		if _, err := checkEditable(ctx, tx, caller, id, openStatuses...); err != nil {
			return err
		}

		var err error
		if doc, err = store.GetDocument(ctx, tx, model.ParentTransfer, id, docID); err != nil {
			return err
		}
		if doc == nil {
			return apperr.NotFound("document not found")
		}
		if _, err := store.RemoveDocument(ctx, tx, model.ParentTransfer, id, docID); err != nil {
			return err
		}
		_, err = store.TouchTransfer(ctx, tx, id, at)
		return err
	})
	if err != nil {
		return nil, err
	}

	docstore.DeleteBestEffort(ctx, tr.docs, doc.PublicID)
	slog.Info("transfer document removed", "transfer", id, "document", docID, "user", caller.ID)
	return store.GetTransfer(ctx, tr.db, id)
}

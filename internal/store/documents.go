package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/kataster/internal/model"
)

// AddDocuments appends document references to a parent record.
func AddDocuments(ctx context.Context, db DBTX, parentKind, parentID string, docs []model.Document) error {
	for _, d := range docs {
		_, err := db.ExecContext(ctx,
			`INSERT INTO documents (id, parent_kind, parent_id, name, type, url, public_id, uploaded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, parentKind, parentID, d.Name, d.Type, d.URL, d.PublicID, d.UploadedAt,
		)
		if err != nil {
			return fmt.Errorf("adding %s document: %w", parentKind, err)
		}
	}
	return nil
}

// ListDocuments returns a parent's documents in upload order.
func ListDocuments(ctx context.Context, db DBTX, parentKind, parentID string) ([]model.Document, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, type, url, public_id, uploaded_at
		 FROM documents WHERE parent_kind = ? AND parent_id = ?
		 ORDER BY rowid`,
		parentKind, parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s documents: %w", parentKind, err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.Name, &d.Type, &d.URL, &d.PublicID, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetDocument returns one document of a parent, or nil if it does not belong
// to that parent.
func GetDocument(ctx context.Context, db DBTX, parentKind, parentID, docID string) (*model.Document, error) {
	d := &model.Document{}
	err := db.QueryRowContext(ctx,
		`SELECT id, name, type, url, public_id, uploaded_at
		 FROM documents WHERE id = ? AND parent_kind = ? AND parent_id = ?`,
		docID, parentKind, parentID,
	).Scan(&d.ID, &d.Name, &d.Type, &d.URL, &d.PublicID, &d.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return d, nil
}

// RemoveDocument deletes a document reference from its parent.
func RemoveDocument(ctx context.Context, db DBTX, parentKind, parentID, docID string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM documents WHERE id = ? AND parent_kind = ? AND parent_id = ?`,
		docID, parentKind, parentID,
	)
	if err != nil {
		return false, fmt.Errorf("removing document: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

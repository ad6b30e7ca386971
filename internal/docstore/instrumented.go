package docstore

import (
	"context"

	"github.com/erazemk/kataster/internal/metrics"
)

// Instrumented counts calls to the wrapped store.
type Instrumented struct {
	Store   Store
	Metrics *metrics.Metrics
}

// Upload stores f through the wrapped store and counts the outcome.
func (s *Instrumented) Upload(ctx context.Context, f File, folder string) (Ref, error) {
	ref, err := s.Store.Upload(ctx, f, folder)
	s.Metrics.DocumentOp("upload", err)
	return ref, err
}

// Delete removes publicID through the wrapped store and counts the outcome.
func (s *Instrumented) Delete(ctx context.Context, publicID string) error {
	err := s.Store.Delete(ctx, publicID)
	s.Metrics.DocumentOp("delete", err)
	return err
}

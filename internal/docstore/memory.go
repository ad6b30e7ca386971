package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
)

// ErrInjected is returned by Memory when a configured failure triggers.
var ErrInjected = errors.New("injected failure")

// Memory keeps documents in process memory. Used for development and tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte

	// FailUpload, when set, makes uploads of matching file names fail.
	FailUpload func(name string) bool
	// FailDelete makes every delete fail.
	FailDelete bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: map[string][]byte{}}
}

func (m *Memory) Upload(ctx context.Context, f File, folder string) (Ref, error) {
	if m.FailUpload != nil && m.FailUpload(f.Name) {
		return Ref{}, fmt.Errorf("uploading %s: %w", f.Name, ErrInjected)
	}

	data, err := io.ReadAll(f.Body)
	if err != nil {
		return Ref{}, fmt.Errorf("reading %s: %w", f.Name, err)
	}

	base, ext := objectName(f.Name)
	id := path.Join(folder, base+ext)

	m.mu.Lock()
	m.objects[id] = data
	m.mu.Unlock()

	return Ref{URL: "memory://" + id, PublicID: id}, nil
}

func (m *Memory) Delete(ctx context.Context, publicID string) error {
	if m.FailDelete {
		return fmt.Errorf("deleting %s: %w", publicID, ErrInjected)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[publicID]; !ok {
		return fmt.Errorf("object %s not found", publicID)
	}
	delete(m.objects, publicID)
	return nil
}

// Get returns a stored object's bytes.
func (m *Memory) Get(publicID string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[publicID]
	return data, ok
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

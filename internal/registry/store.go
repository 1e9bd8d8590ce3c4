package registry

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	ncerr "gateslam/internal/errors"
)

// Store loads and replaces the whole registry document.
type Store interface {
	Load(ctx context.Context) (Document, error)
	// Save overwrites the stored document.  summary describes the
	// change for backends that keep history.
	Save(ctx context.Context, doc Document, summary string) error
}

// FileStore keeps the document in a local JSON file.  A missing file is
// an empty document.
type FileStore struct {
	Path string
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context) (Document, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Document{}, nil
	}
	if err != nil {
		return nil, &ncerr.RegistryError{Op: "load", Doc: s.Path, Err: err}
	}
	return Parse(s.Path, data)
}

// Save implements Store.  The file is replaced atomically through a
// temporary file in the same directory.
func (s *FileStore) Save(_ context.Context, doc Document, _ string) error {
	data, err := doc.Marshal()
	if err != nil {
		return &ncerr.RegistryError{Op: "save", Doc: s.Path, Err: err}
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &ncerr.RegistryError{Op: "save", Doc: s.Path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return &ncerr.RegistryError{Op: "save", Doc: s.Path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &ncerr.RegistryError{Op: "save", Doc: s.Path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &ncerr.RegistryError{Op: "save", Doc: s.Path, Err: err}
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		os.Remove(tmpName)
		return &ncerr.RegistryError{Op: "save", Doc: s.Path, Err: err}
	}
	return nil
}

// MemoryStore holds the document in process memory.  It backs
// --registry none, and tests.
type MemoryStore struct {
	mu        sync.Mutex
	doc       Document
	summaries []string
}

// NewMemoryStore returns a store seeded with doc.
func NewMemoryStore(doc Document) *MemoryStore {
	return &MemoryStore{doc: clone(doc)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.doc), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, doc Document, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = clone(doc)
	s.summaries = append(s.summaries, summary)
	return nil
}

// Summaries returns the summaries passed to Save, oldest first.
func (s *MemoryStore) Summaries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.summaries...)
}

func clone(doc Document) Document {
	out := make(Document, len(doc))
	copy(out, doc)
	return out
}

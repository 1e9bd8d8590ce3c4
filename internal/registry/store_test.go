package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ncerr "gateslam/internal/errors"
)

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	s := &FileStore{Path: filepath.Join(t.TempDir(), "IPData.json")}

	doc, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "IPData.json")
	s := &FileStore{Path: path}
	ctx := context.Background()

	doc, change := Reconcile(nil, "203.0.113.7", t1)
	require.NoError(t, s.Save(ctx, doc, change.Summary()))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be renamed away")
}

func TestFileStore_ParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "IPData.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"ip":`), 0o644))

	_, err := (&FileStore{Path: path}).Load(context.Background())
	assert.ErrorIs(t, err, ncerr.ErrRegistryParse)
}

func TestFileStore_SaveFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// The parent "directory" is a regular file, so nothing can be created.
	s := &FileStore{Path: filepath.Join(blocker, "IPData.json")}
	err := s.Save(context.Background(), Document{}, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ncerr.ErrRegistryWrite)
}

func TestMemoryStore(t *testing.T) {
	seed := Document{{IP: "192.0.2.1", Kind: KindConfirmedEgress, LastSighting: 1, Sightings: 1}}
	s := NewMemoryStore(seed)
	ctx := context.Background()

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	doc[0].Sightings = 99
	again, _ := s.Load(ctx)
	assert.Equal(t, uint32(1), again[0].Sightings, "Load returns a copy")

	doc, change := Reconcile(doc, "192.0.2.2", t1)
	require.NoError(t, s.Save(ctx, doc, change.Summary()))
	assert.Equal(t, []string{"Create listing for 192.0.2.2 - novel sighting"}, s.Summaries())
}

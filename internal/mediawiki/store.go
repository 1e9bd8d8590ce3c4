package mediawiki

import (
	"context"

	ncerr "gateslam/internal/errors"
	"gateslam/internal/registry"
)

// Store keeps the registry document as the text of one wiki page.
// A page that does not exist yet is an empty document.
type Store struct {
	Client *Client
	Title  string
}

// NewStore returns a registry store backed by page title.
func NewStore(client *Client, title string) *Store {
	return &Store{Client: client, Title: title}
}

// Load implements registry.Store.
func (s *Store) Load(ctx context.Context) (registry.Document, error) {
	content, exists, err := s.Client.PageContent(ctx, s.Title)
	if err != nil {
		return nil, &ncerr.RegistryError{Op: "load", Doc: s.Title, Err: err}
	}
	if !exists {
		return registry.Document{}, nil
	}
	return registry.Parse(s.Title, []byte(content))
}

// Save implements registry.Store.
func (s *Store) Save(ctx context.Context, doc registry.Document, summary string) error {
	data, err := doc.Marshal()
	if err != nil {
		return &ncerr.RegistryError{Op: "save", Doc: s.Title, Err: err}
	}
	if err := s.Client.Edit(ctx, s.Title, string(data), summary); err != nil {
		return &ncerr.RegistryError{Op: "save", Doc: s.Title, Err: err}
	}
	return nil
}

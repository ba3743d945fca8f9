package repository

import "context"

// DocumentStore persists whole JSON documents by name. Ledgers read a document
// fully at startup and write it back fully on every mutation.
type DocumentStore interface {
	// Load decodes the named document into v. found is false when the document does not exist yet.
	Load(ctx context.Context, name string, v any) (found bool, err error)
	Save(ctx context.Context, name string, v any) error
}

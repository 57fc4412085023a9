// Package remote abstracts the cloud document store holding the authoritative
// city and location data. The sync layer only ever sees the narrow Store and
// Writer interfaces; the concrete transport lives in the adapters below.
package remote

import "context"

// Store is the read side of the remote document store.
type Store interface {
	// FetchCollection returns every document in a top-level collection.
	FetchCollection(ctx context.Context, name string) ([]Document, error)
	// FetchSubcollection returns every document in a sub-collection scoped
	// to one parent document.
	FetchSubcollection(ctx context.Context, parentCollection, parentID, child string) ([]Document, error)
}

// Writer is the write side. User-authored records (cities, locations,
// reviews) go straight to the remote store; the local cache never has write
// authority over them.
type Writer interface {
	// CreateDocument writes a document with a caller-chosen id into a
	// top-level collection.
	CreateDocument(ctx context.Context, collection, id string, fields map[string]Value) error
	// CreateSubdocument writes a document into a sub-collection of parentID.
	CreateSubdocument(ctx context.Context, parentCollection, parentID, child, id string, fields map[string]Value) error
}

// Client combines both sides; the production adapters implement it.
type Client interface {
	Store
	Writer
}

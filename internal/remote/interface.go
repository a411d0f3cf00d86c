// Package remote provides the adapter contract to the network-accessible
// canonical document store, and an HTTP implementation of it.
//
// Every operation may fail because connectivity is absent. The adapter
// degrades to ErrUnavailable instead of raising unrecoverable errors or
// hanging: all calls are bounded by a timeout, shorter when the caller has
// already marked the adapter degraded. Callers must treat ErrUnavailable as
// "temporarily unavailable", never as data loss.
package remote

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors. Callers match with errors.Is.
var (
	// ErrUnavailable means the remote store could not be reached or
	// answered with a transient failure. The operation may be retried by
	// a later reconciliation pass.
	ErrUnavailable = errors.New("remote store unavailable")
	// ErrNotFound means the remote store answered and the document does
	// not exist.
	ErrNotFound = errors.New("remote document not found")
)

// ProductDoc is the wire shape of a product in the document store. The
// server assigns RemoteID on create and stamps CreatedAt/UpdatedAt on every
// write; those timestamps are the reconciler's conflict-resolution
// authority.
type ProductDoc struct {
	RemoteID    string    `json:"id,omitempty"`
	UID         string    `json:"uid,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Quantity    int64     `json:"quantity"`
	Category    string    `json:"category"`
	ScanCode    string    `json:"scan_code,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// MovementDoc is the wire shape of a stock movement. ProductRemoteID refers
// to the product's remote identifier, not its local one.
type MovementDoc struct {
	RemoteID        string    `json:"id,omitempty"`
	ProductRemoteID string    `json:"product_id"`
	ProductName     string    `json:"product_name,omitempty"`
	Direction       string    `json:"direction"`
	Quantity        int64     `json:"quantity"`
	Note            string    `json:"note,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

// Fields is a partial document update: only the named fields change.
type Fields map[string]any

// ChangeEvent is a best-effort notification that a remote document changed.
// Its absence never degrades the engine; it only accelerates sync-down.
type ChangeEvent struct {
	// Kind is the document collection, e.g. "products".
	Kind string `json:"kind"`
	// RemoteID identifies the changed document, empty for bulk changes.
	RemoteID string `json:"id,omitempty"`
}

// Adapter is the contract to the canonical document store.
type Adapter interface {
	// CreateProduct stores a new document and returns its server-assigned
	// identifier.
	CreateProduct(ctx context.Context, doc ProductDoc) (string, error)

	// FetchProducts returns every product document.
	FetchProducts(ctx context.Context) ([]ProductDoc, error)

	// FetchProduct returns one document, or ErrNotFound.
	FetchProduct(ctx context.Context, remoteID string) (*ProductDoc, error)

	// UpdateProduct applies a partial update. The server restamps
	// the document's update time.
	UpdateProduct(ctx context.Context, remoteID string, fields Fields) error

	// DeleteProduct removes a document. Deleting an absent document is
	// not an error.
	DeleteProduct(ctx context.Context, remoteID string) error

	// FindProductsByField queries documents by exact field match.
	// At least "category" and "scan_code" are supported.
	FindProductsByField(ctx context.Context, field, value string) ([]ProductDoc, error)

	// CreateMovement stores a movement document and returns its
	// server-assigned identifier.
	CreateMovement(ctx context.Context, doc MovementDoc) (string, error)

	// Ping reports whether the remote store is reachable. Used by the
	// connectivity monitor as its probe.
	Ping(ctx context.Context) error
}

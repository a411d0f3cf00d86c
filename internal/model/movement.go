package model

import (
	"fmt"
	"time"
)

// Direction of a stock movement.
type Direction string

const (
	// DirectionIn adds stock to the referenced product.
	DirectionIn Direction = "in"
	// DirectionOut removes stock from the referenced product.
	DirectionOut Direction = "out"
)

// Valid reports whether the direction is one of the two known values.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Movement is an append-only stock change record. Movements are never
// edited after the fact; corrections are recorded as new movements.
//
// RemoteID is empty until the movement has been pushed to the remote
// store. An empty RemoteID on a movement whose product is linked marks it
// for the best-effort retry that runs after reconnect.
type Movement struct {
	ID        int64     `json:"id"`
	RemoteID  string    `json:"remote_id,omitempty"`
	ProductID int64     `json:"product_id" validate:"required"`
	Direction Direction `json:"direction"`
	Quantity  int64     `json:"quantity" validate:"gt=0"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks field constraints. Stock sufficiency is checked by the
// ledger inside the recording transaction, not here.
func (m *Movement) Validate() error {
	if !m.Direction.Valid() {
		return fmt.Errorf("invalid movement: direction must be %q or %q (got %q)",
			DirectionIn, DirectionOut, m.Direction)
	}
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid movement: %w", err)
	}
	return nil
}

// Category groups products for filtering and display.
type Category struct {
	ID    int64  `json:"id"`
	Name  string `json:"name" validate:"required"`
	Color string `json:"color,omitempty"`
}

// DefaultCategories are seeded on first initialization of the local store.
var DefaultCategories = []Category{
	{Name: "Electronics", Color: "#3b82f6"},
	{Name: "Food", Color: "#10b981"},
	{Name: "Clothing", Color: "#8b5cf6"},
	{Name: "Tools", Color: "#f59e0b"},
	{Name: "Cleaning", Color: "#06b6d4"},
	{Name: "Other", Color: "#6b7280"},
}

// Stats is the derived read-only view computed from local data only, so it
// stays available offline.
type Stats struct {
	TotalProducts  int   `json:"total_products"`
	TotalStock     int64 `json:"total_stock"`
	LowStock       int   `json:"low_stock"`
	TodayMovements int   `json:"today_movements"`
}

// PendingOp is a durable outbox entry: a mutation of an already-linked
// product performed while the remote store was unavailable. Sync-up drains
// the outbox before uploading unlinked records.
type PendingOp struct {
	ID         int64     `json:"id"`
	ProductUID string    `json:"product_uid"`
	RemoteID   string    `json:"remote_id"`
	Op         OpKind    `json:"op"`
	QueuedAt   time.Time `json:"queued_at"`
}

// OpKind is the kind of deferred remote mutation.
type OpKind string

const (
	// OpUpdate mirrors a local edit to the remote record.
	OpUpdate OpKind = "update"
	// OpDelete removes the remote record.
	OpDelete OpKind = "delete"
)

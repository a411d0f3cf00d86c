package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryAdapter is an in-process Adapter backed by a map. It exists for
// tests and for running the engine without a remote store configured; it
// can simulate connectivity loss so offline behavior is exercisable
// without a network.
type MemoryAdapter struct {
	mu     sync.Mutex
	online bool
	nextID int
	docs   map[string]ProductDoc
	moves  map[string]MovementDoc
	clock  time.Time
}

// NewMemoryAdapter returns an empty, online adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		online: true,
		docs:   make(map[string]ProductDoc),
		moves:  make(map[string]MovementDoc),
		clock:  time.Now().UTC(),
	}
}

// SetOnline toggles simulated connectivity. While offline every operation
// returns ErrUnavailable.
func (a *MemoryAdapter) SetOnline(online bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.online = online
}

// stamp returns a server timestamp, strictly monotonic per adapter.
func (a *MemoryAdapter) stamp() time.Time {
	now := time.Now().UTC()
	if !now.After(a.clock) {
		now = a.clock.Add(time.Microsecond)
	}
	a.clock = now
	return now
}

func (a *MemoryAdapter) checkOnline() error {
	if !a.online {
		return fmt.Errorf("%w: simulated offline", ErrUnavailable)
	}
	return nil
}

// CreateProduct implements Adapter.
func (a *MemoryAdapter) CreateProduct(ctx context.Context, doc ProductDoc) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkOnline(); err != nil {
		return "", err
	}
	a.nextID++
	doc.RemoteID = fmt.Sprintf("doc-%04d", a.nextID)
	now := a.stamp()
	doc.CreatedAt, doc.UpdatedAt = now, now
	a.docs[doc.RemoteID] = doc
	return doc.RemoteID, nil
}

// FetchProducts implements Adapter.
func (a *MemoryAdapter) FetchProducts(ctx context.Context) ([]ProductDoc, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkOnline(); err != nil {
		return nil, err
	}
	docs := make([]ProductDoc, 0, len(a.docs))
	for _, doc := range a.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].RemoteID < docs[j].RemoteID })
	return docs, nil
}

// FetchProduct implements Adapter.
func (a *MemoryAdapter) FetchProduct(ctx context.Context, remoteID string) (*ProductDoc, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkOnline(); err != nil {
		return nil, err
	}
	doc, ok := a.docs[remoteID]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

// UpdateProduct implements Adapter.
func (a *MemoryAdapter) UpdateProduct(ctx context.Context, remoteID string, fields Fields) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkOnline(); err != nil {
		return err
	}
	doc, ok := a.docs[remoteID]
	if !ok {
		return ErrNotFound
	}
	raw := map[string]any{
		"id": doc.RemoteID, "uid": doc.UID, "name": doc.Name,
		"description": doc.Description, "price": doc.Price,
		"quantity": doc.Quantity, "category": doc.Category,
		"scan_code": doc.ScanCode, "created_at": doc.CreatedAt,
	}
	for k, v := range fields {
		raw[k] = v
	}
	merged, err := decodeProductDoc(raw)
	if err != nil {
		return err
	}
	merged.UpdatedAt = a.stamp()
	a.docs[remoteID] = merged
	return nil
}

// DeleteProduct implements Adapter. Idempotent.
func (a *MemoryAdapter) DeleteProduct(ctx context.Context, remoteID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkOnline(); err != nil {
		return err
	}
	delete(a.docs, remoteID)
	return nil
}

// FindProductsByField implements Adapter for the category and scan_code
// fields.
func (a *MemoryAdapter) FindProductsByField(ctx context.Context, field, value string) ([]ProductDoc, error) {
	docs, err := a.FetchProducts(ctx)
	if err != nil {
		return nil, err
	}
	var matched []ProductDoc
	for _, doc := range docs {
		switch field {
		case "category":
			if doc.Category == value {
				matched = append(matched, doc)
			}
		case "scan_code":
			if doc.ScanCode == value {
				matched = append(matched, doc)
			}
		default:
			return nil, fmt.Errorf("unsupported query field %q", field)
		}
	}
	return matched, nil
}

// CreateMovement implements Adapter.
func (a *MemoryAdapter) CreateMovement(ctx context.Context, doc MovementDoc) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkOnline(); err != nil {
		return "", err
	}
	a.nextID++
	doc.RemoteID = fmt.Sprintf("mov-%04d", a.nextID)
	doc.CreatedAt = a.stamp()
	a.moves[doc.RemoteID] = doc
	return doc.RemoteID, nil
}

// Ping implements Adapter.
func (a *MemoryAdapter) Ping(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.checkOnline()
}

// MovementCount reports stored movements (used in tests).
func (a *MemoryAdapter) MovementCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.moves)
}

// Product returns a stored document by id (used in tests).
func (a *MemoryAdapter) Product(remoteID string) (ProductDoc, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	doc, ok := a.docs[remoteID]
	return doc, ok
}

// Seed inserts a document directly, bypassing the online check (used in
// tests to model records created by another device).
func (a *MemoryAdapter) Seed(doc ProductDoc) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if doc.RemoteID == "" {
		a.nextID++
		doc.RemoteID = fmt.Sprintf("doc-%04d", a.nextID)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = a.stamp()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	a.docs[doc.RemoteID] = doc
	return doc.RemoteID
}

var _ Adapter = (*MemoryAdapter)(nil)

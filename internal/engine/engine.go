// Package engine exposes the hybrid operations the application is built on.
//
// Every operation follows the same contract: the local store is the source
// of truth and is written first, synchronously; the remote store is
// mirrored best effort afterwards. Remote failures are absorbed inside the
// engine, either by leaving the record unlinked (a failed create) or by
// queueing the mutation in the durable outbox (a failed update or delete of
// a linked record). Only validation and local-store errors cross the
// engine's boundary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/safeproducts/stockd/internal/ledger"
	"github.com/safeproducts/stockd/internal/model"
	"github.com/safeproducts/stockd/internal/reconciler"
	"github.com/safeproducts/stockd/internal/remote"
	"github.com/safeproducts/stockd/internal/store"
)

// DefaultLowStockThreshold marks products considered "running low" in Stats.
const DefaultLowStockThreshold = 10

// Config holds engine tunables.
type Config struct {
	LowStockThreshold int64
}

// Engine is the hybrid façade over the local store and the remote adapter.
type Engine struct {
	store      *store.Store
	adapter    remote.Adapter
	reconciler *reconciler.Reconciler
	ledger     *ledger.Ledger
	logger     *zap.Logger
	lowStock   atomic.Int64

	// online reports current connectivity for Status; wired by the daemon
	// to the monitor, defaults to "unknown, assume reachable".
	online func() bool
}

// New assembles an Engine over an open store and a remote adapter.
func New(st *store.Store, adapter remote.Adapter, logger *zap.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LowStockThreshold <= 0 {
		cfg.LowStockThreshold = DefaultLowStockThreshold
	}
	e := &Engine{
		store:      st,
		adapter:    adapter,
		reconciler: reconciler.New(st, adapter, logger),
		ledger:     ledger.New(st, adapter, logger),
		logger:     logger,
	}
	e.lowStock.Store(cfg.LowStockThreshold)
	return e
}

// SetLowStockThreshold changes the threshold Stats counts against.
// Called when the configuration is reloaded; values below one are ignored.
func (e *Engine) SetLowStockThreshold(threshold int64) {
	if threshold > 0 {
		e.lowStock.Store(threshold)
	}
}

// SetOnlineFunc wires a connectivity probe into Status reporting.
func (e *Engine) SetOnlineFunc(f func() bool) {
	e.online = f
}

// AddProduct stores a new product locally, then mirrors it to the remote
// store. When the mirror fails the product stays unlinked and the next
// sync-up uploads it; the caller sees success either way.
func (e *Engine) AddProduct(ctx context.Context, p *model.Product) error {
	if _, err := e.store.AddProduct(ctx, p); err != nil {
		return err
	}

	remoteID, err := e.adapter.CreateProduct(ctx, productDoc(p))
	if err != nil {
		e.logger.Info("product saved locally, upload deferred",
			zap.String("name", p.Name), zap.Error(err))
		return nil
	}

	// Link without disturbing the modification time.
	t := p.UpdatedAt
	updated, err := e.store.UpdateProduct(ctx, p.ID, model.ProductPatch{
		RemoteID:  &remoteID,
		UpdatedAt: &t,
	})
	if err != nil {
		return fmt.Errorf("failed to persist remote id: %w", err)
	}
	*p = *updated
	return nil
}

// UpdateProduct merges a patch locally, then mirrors the change. A failed
// mirror of a linked record is queued in the outbox for the next sync-up.
func (e *Engine) UpdateProduct(ctx context.Context, id int64, patch model.ProductPatch) (*model.Product, error) {
	updated, err := e.store.UpdateProduct(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if !updated.Linked() {
		return updated, nil
	}

	if err := e.adapter.UpdateProduct(ctx, updated.RemoteID, patchFields(patch)); err != nil {
		e.logger.Info("update saved locally, remote mirror queued",
			zap.Int64("id", id), zap.Error(err))
		if qErr := e.store.EnqueuePending(ctx, model.PendingOp{
			ProductUID: updated.UID,
			RemoteID:   updated.RemoteID,
			Op:         model.OpUpdate,
		}); qErr != nil {
			return nil, qErr
		}
	}
	return updated, nil
}

// DeleteProduct removes a product locally, then mirrors the delete. The
// product's movement history is retained. A failed mirror of a linked
// record is queued in the outbox.
func (e *Engine) DeleteProduct(ctx context.Context, id int64) error {
	p, err := e.store.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	if !p.Linked() {
		return nil
	}

	if err := e.adapter.DeleteProduct(ctx, p.RemoteID); err != nil {
		e.logger.Info("delete saved locally, remote mirror queued",
			zap.Int64("id", id), zap.Error(err))
		return e.store.EnqueuePending(ctx, model.PendingOp{
			ProductUID: p.UID,
			RemoteID:   p.RemoteID,
			Op:         model.OpDelete,
		})
	}
	return nil
}

// GetProduct reads a product from the local store.
func (e *Engine) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return e.store.GetProduct(ctx, id)
}

// GetProductByScanCode resolves a scanned label locally, falling back to a
// remote scan-code query when the code is unknown here. A remote hit is
// pulled into the local store so the next scan resolves offline.
func (e *Engine) GetProductByScanCode(ctx context.Context, code string) (*model.Product, error) {
	p, err := e.store.GetProductByScanCode(ctx, code)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	docs, rErr := e.adapter.FindProductsByField(ctx, "scan_code", code)
	if rErr != nil || len(docs) == 0 {
		return nil, err
	}
	doc := docs[0]
	created := &model.Product{
		UID:         doc.UID,
		RemoteID:    doc.RemoteID,
		Name:        doc.Name,
		Description: doc.Description,
		Price:       doc.Price,
		Quantity:    doc.Quantity,
		Category:    doc.Category,
		ScanCode:    doc.ScanCode,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if _, aErr := e.store.AddProduct(ctx, created); aErr != nil {
		if errors.Is(aErr, store.ErrDuplicate) {
			return e.store.GetProductByScanCode(ctx, code)
		}
		return nil, aErr
	}
	return created, nil
}

// ListProducts lists local products matching the filter.
func (e *Engine) ListProducts(ctx context.Context, filter store.ProductFilter) ([]*model.Product, error) {
	return e.store.ListProducts(ctx, filter)
}

// SearchProducts matches name, description, or scan code.
func (e *Engine) SearchProducts(ctx context.Context, query string) ([]*model.Product, error) {
	return e.store.ListProducts(ctx, store.ProductFilter{Search: query})
}

// ListCategories returns the category reference data.
func (e *Engine) ListCategories(ctx context.Context) ([]*model.Category, error) {
	return e.store.ListCategories(ctx)
}

// RecordMovement appends a stock movement through the ledger.
func (e *Engine) RecordMovement(ctx context.Context, m *model.Movement) (int64, error) {
	return e.ledger.Record(ctx, m)
}

// ListMovements returns the full movement history, newest first.
func (e *Engine) ListMovements(ctx context.Context) ([]*model.Movement, error) {
	return e.store.ListMovements(ctx)
}

// ListProductMovements returns one product's movement history.
func (e *Engine) ListProductMovements(ctx context.Context, productID int64) ([]*model.Movement, error) {
	return e.store.ListProductMovements(ctx, productID)
}

// Stats computes the local dashboard numbers.
func (e *Engine) Stats(ctx context.Context) (*model.Stats, error) {
	return e.store.Stats(ctx, e.lowStock.Load())
}

// SyncUp pushes local state to the remote store.
func (e *Engine) SyncUp(ctx context.Context) (reconciler.Summary, error) {
	return e.reconciler.SyncUp(ctx)
}

// SyncDown pulls remote state into the local store.
func (e *Engine) SyncDown(ctx context.Context) (reconciler.Summary, error) {
	return e.reconciler.SyncDown(ctx)
}

// SyncFull runs the full reconciliation sequence in the reconnect order:
// sync-up, sync-down, then retry of unpushed movements.
func (e *Engine) SyncFull(ctx context.Context) (up, down reconciler.Summary, err error) {
	if up, err = e.reconciler.SyncUp(ctx); err != nil {
		return up, down, err
	}
	if down, err = e.reconciler.SyncDown(ctx); err != nil {
		return up, down, err
	}
	if _, err = e.ledger.RetryUnpushed(ctx); err != nil {
		return up, down, err
	}
	return up, down, nil
}

// Status summarizes sync health: connectivity, reconciler state, and the
// amount of local state still awaiting upload.
type Status struct {
	Online            bool   `json:"online"`
	State             string `json:"state"`
	PendingOutbox     int    `json:"pending_outbox"`
	UnlinkedProducts  int    `json:"unlinked_products"`
	UnpushedMovements int    `json:"unpushed_movements"`
}

// Status reports the engine's sync status.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		Online: true,
		State:  e.reconciler.State().String(),
	}
	if e.online != nil {
		st.Online = e.online()
	} else if err := e.adapter.Ping(ctx); err != nil {
		st.Online = false
	}

	var err error
	if st.PendingOutbox, err = e.store.CountPending(ctx); err != nil {
		return nil, err
	}
	unlinked, err := e.store.ListProducts(ctx, store.ProductFilter{UnlinkedOnly: true})
	if err != nil {
		return nil, err
	}
	st.UnlinkedProducts = len(unlinked)
	unpushed, err := e.store.ListUnpushedMovements(ctx)
	if err != nil {
		return nil, err
	}
	st.UnpushedMovements = len(unpushed)
	return st, nil
}

// SyncTarget adapts the engine to the connectivity monitor's reconnect
// sequence without the monitor knowing the engine type.
type SyncTarget struct {
	engine *Engine
}

// Target returns the reconnect surface for the connectivity monitor.
func (e *Engine) Target() SyncTarget {
	return SyncTarget{engine: e}
}

// SyncUp implements the monitor's reconnect step.
func (t SyncTarget) SyncUp(ctx context.Context) error {
	_, err := t.engine.SyncUp(ctx)
	return err
}

// SyncDown implements the monitor's reconnect step.
func (t SyncTarget) SyncDown(ctx context.Context) error {
	_, err := t.engine.SyncDown(ctx)
	return err
}

// RetryUnpushed implements the monitor's reconnect step.
func (t SyncTarget) RetryUnpushed(ctx context.Context) error {
	_, err := t.engine.ledger.RetryUnpushed(ctx)
	return err
}

// productDoc converts a local record to its wire shape.
func productDoc(p *model.Product) remote.ProductDoc {
	return remote.ProductDoc{
		UID:         p.UID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Quantity:    p.Quantity,
		Category:    p.Category,
		ScanCode:    p.ScanCode,
	}
}

// patchFields converts the applied parts of a patch to a partial remote
// update.
func patchFields(patch model.ProductPatch) remote.Fields {
	fields := remote.Fields{}
	if patch.Name != nil {
		fields["name"] = *patch.Name
	}
	if patch.Description != nil {
		fields["description"] = *patch.Description
	}
	if patch.Price != nil {
		fields["price"] = *patch.Price
	}
	if patch.Quantity != nil {
		fields["quantity"] = *patch.Quantity
	}
	if patch.Category != nil {
		fields["category"] = *patch.Category
	}
	if patch.ScanCode != nil {
		fields["scan_code"] = *patch.ScanCode
	}
	return fields
}

// Package reconciler performs bidirectional synchronization between the
// local store and the remote document store.
//
// Two directional passes exist, both idempotent and safe to re-run:
//
//   - sync-down pulls remote state into the local store, linking records by
//     remote identifier, client UID, or natural key, applying remote values
//     under last-write-wins, then cleaning up natural-key duplicates.
//   - sync-up drains the durable outbox and then uploads every local record
//     that has no remote identifier, persisting the returned identifier.
//
// Both directions are skipped outright when the remote store is
// unavailable; callers treat the absence of sync as a normal state, not an
// error. Passes are serialized through an explicit state machine: a request
// arriving while a pass is in flight is collapsed into a single queued
// re-run instead of being dropped, so a legitimately needed resync is never
// lost.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/safeproducts/stockd/internal/model"
	"github.com/safeproducts/stockd/internal/remote"
	"github.com/safeproducts/stockd/internal/store"
)

// State of the reconciler's serialization machine.
type State int

const (
	// Idle means no pass is in flight.
	Idle State = iota
	// SyncingDown means a remote-to-local pass is running.
	SyncingDown
	// SyncingUp means a local-to-remote pass is running.
	SyncingUp
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SyncingDown:
		return "syncing-down"
	case SyncingUp:
		return "syncing-up"
	default:
		return "unknown"
	}
}

// Summary reports what one pass did.
type Summary struct {
	// Skipped is true when the pass did not run: the remote was
	// unavailable, or another pass was in flight and this request was
	// collapsed into its queued re-run.
	Skipped bool

	Created int // records created (locally for down, remotely for up)
	Updated int // records overwritten under last-write-wins
	Linked  int // records linked to an existing counterpart
	Removed int // duplicate records deleted by cleanup
	Drained int // outbox entries applied remotely
}

// Reconciler coordinates the two directional passes.
type Reconciler struct {
	store  *store.Store
	remote remote.Adapter
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	pendingDown bool
	pendingUp   bool
}

// New creates a Reconciler. The store must be open; the adapter may be
// unreachable, in which case every pass is a no-op until it recovers.
func New(st *store.Store, adapter remote.Adapter, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: st, remote: adapter, logger: logger}
}

// State returns the current serialization state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// acquire transitions Idle -> target. If a pass is already in flight it
// marks the direction pending and reports false: the caller's request has
// been collapsed into a queued re-run.
func (r *Reconciler) acquire(target State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Idle {
		switch target {
		case SyncingDown:
			r.pendingDown = true
		case SyncingUp:
			r.pendingUp = true
		}
		return false
	}
	r.state = target
	return true
}

// release returns to Idle and reports whether a re-run of the same
// direction was queued while the pass ran.
func (r *Reconciler) release(target State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Idle
	var rerun bool
	switch target {
	case SyncingDown:
		rerun, r.pendingDown = r.pendingDown, false
	case SyncingUp:
		rerun, r.pendingUp = r.pendingUp, false
	}
	return rerun
}

// SyncDown runs the remote-to-local pass followed by duplicate cleanup.
func (r *Reconciler) SyncDown(ctx context.Context) (Summary, error) {
	if !r.acquire(SyncingDown) {
		r.logger.Debug("sync-down collapsed into in-flight pass")
		return Summary{Skipped: true}, nil
	}

	for {
		summary, err := r.syncDownPass(ctx)
		rerun := r.release(SyncingDown)
		if err != nil || !rerun || ctx.Err() != nil {
			return summary, err
		}
		if !r.acquire(SyncingDown) {
			return summary, nil
		}
		r.logger.Debug("running queued sync-down re-run")
	}
}

// SyncUp runs the local-to-remote pass: outbox first, then uploads.
func (r *Reconciler) SyncUp(ctx context.Context) (Summary, error) {
	if !r.acquire(SyncingUp) {
		r.logger.Debug("sync-up collapsed into in-flight pass")
		return Summary{Skipped: true}, nil
	}

	for {
		summary, err := r.syncUpPass(ctx)
		rerun := r.release(SyncingUp)
		if err != nil || !rerun || ctx.Err() != nil {
			return summary, err
		}
		if !r.acquire(SyncingUp) {
			return summary, nil
		}
		r.logger.Debug("running queued sync-up re-run")
	}
}

func (r *Reconciler) syncDownPass(ctx context.Context) (Summary, error) {
	var (
		docs   []remote.ProductDoc
		locals []*model.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = r.remote.FetchProducts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		locals, err = r.store.ListProducts(gctx, store.ProductFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, remote.ErrUnavailable) {
			r.logger.Debug("sync-down skipped, remote unavailable", zap.Error(err))
			return Summary{Skipped: true}, nil
		}
		return Summary{}, fmt.Errorf("sync-down failed: %w", err)
	}

	byRemoteID := make(map[string]*model.Product)
	byUID := make(map[string]*model.Product)
	unlinkedByKey := make(map[string]*model.Product)
	for _, p := range locals {
		byUID[p.UID] = p
		if p.Linked() {
			byRemoteID[p.RemoteID] = p
		} else {
			unlinkedByKey[p.NaturalKey()] = p
		}
	}

	var summary Summary
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := r.applyRemote(ctx, doc, byRemoteID, byUID, unlinkedByKey, &summary); err != nil {
			return summary, err
		}
	}

	removed, err := r.cleanupDuplicates(ctx)
	if err != nil {
		return summary, err
	}
	summary.Removed = removed

	r.logger.Info("sync-down complete",
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("linked", summary.Linked),
		zap.Int("removed", summary.Removed))
	return summary, nil
}

// applyRemote reconciles one remote document against the local store.
func (r *Reconciler) applyRemote(ctx context.Context, doc remote.ProductDoc,
	byRemoteID, byUID, unlinkedByKey map[string]*model.Product, summary *Summary) error {

	// Find the local counterpart: identifier link first, then the
	// client-generated UID, then the natural-key heuristic among
	// unlinked records.
	local := byRemoteID[doc.RemoteID]
	if local == nil && doc.UID != "" {
		if candidate := byUID[doc.UID]; candidate != nil && !candidate.Linked() {
			local = candidate
		}
	}
	if local == nil {
		key := model.NaturalKey(doc.Name, doc.Category, doc.Price)
		local = unlinkedByKey[key]
	}

	if local == nil {
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
		// SetDefaults generates a scan code when absent upstream.
		if _, err := r.store.AddProduct(ctx, created); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				// Another writer raced us; the re-run will link it.
				r.logger.Warn("skipping remote record, local duplicate",
					zap.String("remote_id", doc.RemoteID), zap.Error(err))
				return nil
			}
			return fmt.Errorf("failed to create local record for %s: %w", doc.RemoteID, err)
		}
		byRemoteID[doc.RemoteID] = created
		byUID[created.UID] = created
		summary.Created++
		return nil
	}

	patch := model.ProductPatch{}
	changed := false

	if !local.Linked() {
		remoteID := doc.RemoteID
		patch.RemoteID = &remoteID
		changed = true
		summary.Linked++
		delete(unlinkedByKey, local.NaturalKey())
		byRemoteID[doc.RemoteID] = local
	}

	// Last-write-wins: apply remote values only if strictly newer. The
	// server-assigned timestamp is the tiebreak authority.
	if doc.UpdatedAt.After(local.UpdatedAt) {
		patch.Name = &doc.Name
		patch.Description = &doc.Description
		patch.Price = &doc.Price
		patch.Quantity = &doc.Quantity
		patch.Category = &doc.Category
		if doc.ScanCode != "" {
			patch.ScanCode = &doc.ScanCode
		}
		patch.UpdatedAt = &doc.UpdatedAt
		changed = true
		summary.Updated++
	} else if changed {
		// Linking alone must not disturb the local modification time,
		// or the next comparison would flip.
		t := local.UpdatedAt
		patch.UpdatedAt = &t
	}

	if !changed {
		return nil
	}
	updated, err := r.store.UpdateProduct(ctx, local.ID, patch)
	if err != nil {
		return fmt.Errorf("failed to apply remote record %s: %w", doc.RemoteID, err)
	}
	*local = *updated
	return nil
}

// cleanupDuplicates resolves groups of local records sharing a natural key:
// the linked member wins, otherwise the most recently modified; the rest
// are deleted. Two members linked to different remote documents are
// distinct products and both survive.
func (r *Reconciler) cleanupDuplicates(ctx context.Context) (int, error) {
	locals, err := r.store.ListProducts(ctx, store.ProductFilter{})
	if err != nil {
		return 0, fmt.Errorf("duplicate cleanup failed: %w", err)
	}

	groups := make(map[string][]*model.Product)
	for _, p := range locals {
		key := p.NaturalKey()
		groups[key] = append(groups[key], p)
	}

	removed := 0
	for key, group := range groups {
		if len(group) < 2 {
			continue
		}

		keeper := group[0]
		for _, p := range group[1:] {
			if betterKeeper(p, keeper) {
				keeper = p
			}
		}

		for _, p := range group {
			if p.ID == keeper.ID {
				continue
			}
			if p.Linked() && p.RemoteID != keeper.RemoteID {
				continue
			}
			if err := r.store.DeleteProduct(ctx, p.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return removed, fmt.Errorf("failed to remove duplicate %d: %w", p.ID, err)
			}
			r.logger.Warn("removed duplicate record",
				zap.String("natural_key", key),
				zap.Int64("kept", keeper.ID),
				zap.Int64("removed", p.ID))
			removed++
		}
	}
	return removed, nil
}

// betterKeeper reports whether a should be kept over b: linked beats
// unlinked, then the more recently modified record wins.
func betterKeeper(a, b *model.Product) bool {
	if a.Linked() != b.Linked() {
		return a.Linked()
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

func (r *Reconciler) syncUpPass(ctx context.Context) (Summary, error) {
	var summary Summary

	skipped, err := r.drainOutbox(ctx, &summary)
	if err != nil {
		return summary, err
	}
	if skipped {
		return Summary{Skipped: true}, nil
	}

	unlinked, err := r.store.ListProducts(ctx, store.ProductFilter{UnlinkedOnly: true})
	if err != nil {
		return summary, fmt.Errorf("sync-up failed: %w", err)
	}

	for _, p := range unlinked {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		remoteID, err := r.remote.CreateProduct(ctx, remote.ProductDoc{
			UID:         p.UID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Quantity:    p.Quantity,
			Category:    p.Category,
			ScanCode:    p.ScanCode,
		})
		if err != nil {
			if errors.Is(err, remote.ErrUnavailable) {
				r.logger.Debug("sync-up interrupted, remote unavailable", zap.Error(err))
				return summary, nil
			}
			// A rejection of one record must not strand the rest.
			r.logger.Warn("failed to upload record",
				zap.Int64("id", p.ID), zap.Error(err))
			continue
		}

		// Persist the link without touching the modification time: the
		// upload is a mirror, not an edit.
		t := p.UpdatedAt
		if _, err := r.store.UpdateProduct(ctx, p.ID, model.ProductPatch{
			RemoteID:  &remoteID,
			UpdatedAt: &t,
		}); err != nil {
			return summary, fmt.Errorf("failed to persist remote id for %d: %w", p.ID, err)
		}
		summary.Created++
		r.logger.Info("uploaded record",
			zap.Int64("id", p.ID), zap.String("remote_id", remoteID))
	}

	if summary.Created > 0 || summary.Drained > 0 {
		r.logger.Info("sync-up complete",
			zap.Int("uploaded", summary.Created),
			zap.Int("drained", summary.Drained))
	}
	return summary, nil
}

// drainOutbox replays deferred mutations of linked records. Returns
// skipped=true when the remote is unavailable before any progress; entries
// already applied stay deleted, the rest wait for the next pass.
func (r *Reconciler) drainOutbox(ctx context.Context, summary *Summary) (bool, error) {
	ops, err := r.store.ListPending(ctx)
	if err != nil {
		return false, fmt.Errorf("sync-up failed: %w", err)
	}

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		var applyErr error
		switch op.Op {
		case model.OpDelete:
			applyErr = r.remote.DeleteProduct(ctx, op.RemoteID)
		case model.OpUpdate:
			local, err := r.store.GetProductByUID(ctx, op.ProductUID)
			if errors.Is(err, store.ErrNotFound) {
				// The record was deleted after the update was queued;
				// the entry is stale.
				break
			}
			if err != nil {
				return false, fmt.Errorf("sync-up failed: %w", err)
			}
			applyErr = r.remote.UpdateProduct(ctx, op.RemoteID, remote.Fields{
				"name":        local.Name,
				"description": local.Description,
				"price":       local.Price,
				"quantity":    local.Quantity,
				"category":    local.Category,
				"scan_code":   local.ScanCode,
			})
		}

		if applyErr != nil {
			if errors.Is(applyErr, remote.ErrUnavailable) {
				r.logger.Debug("outbox drain interrupted, remote unavailable",
					zap.Error(applyErr))
				return summary.Drained == 0, nil
			}
			if errors.Is(applyErr, remote.ErrNotFound) {
				// The remote counterpart is gone; sync-down will
				// re-create it if it should exist. Drop the entry.
				r.logger.Warn("outbox target missing remotely",
					zap.String("remote_id", op.RemoteID))
			} else {
				return false, fmt.Errorf("failed to drain outbox entry %d: %w", op.ID, applyErr)
			}
		}

		if err := r.store.DeletePending(ctx, op.ID); err != nil {
			return false, err
		}
		summary.Drained++
	}
	return false, nil
}

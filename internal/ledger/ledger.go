// Package ledger records stock movements. A movement is two facts that
// must never diverge: an append-only history row and the owning product's
// quantity. Both live in the local store and commit in one transaction;
// mirroring to the remote store is best effort and never blocks or fails a
// recording.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/safeproducts/stockd/internal/model"
	"github.com/safeproducts/stockd/internal/remote"
	"github.com/safeproducts/stockd/internal/store"
)

// Ledger appends movements locally and mirrors them remotely when it can.
type Ledger struct {
	store   *store.Store
	adapter remote.Adapter
	logger  *zap.Logger
}

// New creates a Ledger. A nil logger is replaced with a no-op one.
func New(st *store.Store, adapter remote.Adapter, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: st, adapter: adapter, logger: logger}
}

// Record appends a movement and adjusts the product's quantity atomically
// in the local store, then mirrors both to the remote store if the product
// is linked. A failed mirror leaves the movement unpushed; the reconnect
// sequence retries it.
//
// Returns store.ErrNotFound for an unknown product and
// store.ErrInsufficientStock when an 'out' movement would overdraw.
func (l *Ledger) Record(ctx context.Context, m *model.Movement) (int64, error) {
	id, err := l.store.RecordMovement(ctx, m)
	if err != nil {
		return 0, err
	}

	product, err := l.store.GetProduct(ctx, m.ProductID)
	if err != nil {
		// The movement committed; reading it back should not fail, and a
		// missing product here only means the mirror is skipped.
		l.logger.Warn("movement recorded but product re-read failed",
			zap.Int64("movement_id", id), zap.Error(err))
		return id, nil
	}
	if !product.Linked() {
		return id, nil
	}

	if err := l.push(ctx, product, m); err != nil {
		l.logger.Info("movement kept local, remote push deferred",
			zap.Int64("movement_id", id),
			zap.String("product", product.Name),
			zap.Error(err))
	}
	return id, nil
}

// RetryUnpushed mirrors movements recorded while the remote store was
// unreachable. Returns the number pushed. Stops at the first
// unavailability, leaving the rest for the next attempt.
func (l *Ledger) RetryUnpushed(ctx context.Context) (int, error) {
	movements, err := l.store.ListUnpushedMovements(ctx)
	if err != nil {
		return 0, err
	}

	pushed := 0
	for _, m := range movements {
		product, err := l.store.GetProduct(ctx, m.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return pushed, err
		}
		if err := l.push(ctx, product, m); err != nil {
			if errors.Is(err, remote.ErrUnavailable) {
				return pushed, nil
			}
			l.logger.Warn("skipping unpushable movement",
				zap.Int64("movement_id", m.ID), zap.Error(err))
			continue
		}
		pushed++
	}
	if pushed > 0 {
		l.logger.Info("retried offline movements", zap.Int("pushed", pushed))
	}
	return pushed, nil
}

// push mirrors one movement and the product's current quantity, then marks
// the movement as pushed.
func (l *Ledger) push(ctx context.Context, product *model.Product, m *model.Movement) error {
	remoteID, err := l.adapter.CreateMovement(ctx, remote.MovementDoc{
		ProductRemoteID: product.RemoteID,
		ProductName:     product.Name,
		Direction:       string(m.Direction),
		Quantity:        m.Quantity,
		Note:            m.Note,
		CreatedAt:       m.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("mirror movement: %w", err)
	}

	if err := l.adapter.UpdateProduct(ctx, product.RemoteID, remote.Fields{
		"quantity": product.Quantity,
	}); err != nil {
		// The movement doc exists remotely but the quantity does not
		// reflect it yet; the next sync-up pass converges it.
		l.logger.Warn("movement mirrored but quantity update failed",
			zap.String("remote_id", product.RemoteID), zap.Error(err))
	}

	if err := l.store.MarkMovementPushed(ctx, m.ID, remoteID); err != nil {
		return fmt.Errorf("mark movement pushed: %w", err)
	}
	m.RemoteID = remoteID
	return nil
}

package store

import (
	"context"
	"fmt"

	"github.com/safeproducts/stockd/internal/model"
)

// EnqueuePending records a deferred remote mutation for a linked product.
// Repeated updates for the same record collapse into one entry; a delete
// supersedes any queued update.
func (s *Store) EnqueuePending(ctx context.Context, op model.PendingOp) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin outbox enqueue: %w", err)
	}
	defer tx.Rollback()

	if op.Op == model.OpDelete {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM pending_ops WHERE product_uid = ? AND op = 'update'`,
			op.ProductUID); err != nil {
			return fmt.Errorf("failed to supersede queued update: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pending_ops (product_uid, remote_id, op, queued_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (product_uid, op) DO UPDATE SET queued_at = excluded.queued_at`,
		op.ProductUID, op.RemoteID, string(op.Op), formatTime(nowUTC()),
	); err != nil {
		return fmt.Errorf("failed to enqueue pending op: %w", err)
	}
	return tx.Commit()
}

// ListPending returns outbox entries, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]*model.PendingOp, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, product_uid, remote_id, op, queued_at
		FROM pending_ops ORDER BY queued_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending ops: %w", err)
	}
	defer rows.Close()

	var ops []*model.PendingOp
	for rows.Next() {
		var op model.PendingOp
		var kind, queuedAt string
		if err := rows.Scan(&op.ID, &op.ProductUID, &op.RemoteID, &kind, &queuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending op: %w", err)
		}
		op.Op = model.OpKind(kind)
		op.QueuedAt = parseTime(queuedAt)
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending ops: %w", err)
	}
	return ops, nil
}

// DeletePending removes a drained outbox entry. Idempotent.
func (s *Store) DeletePending(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM pending_ops WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pending op %d: %w", id, err)
	}
	return nil
}

// CountPending returns the number of queued outbox entries.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_ops`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending ops: %w", err)
	}
	return n, nil
}

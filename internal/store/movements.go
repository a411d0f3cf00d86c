package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safeproducts/stockd/internal/model"
)

const movementColumns = `id, remote_id, product_id, direction, quantity, note, created_at`

// RecordMovement appends a movement and adjusts the owning product's
// quantity in one transaction. The quantity check and update are part of
// the same atomic unit: a concurrent movement against the same product can
// never observe or produce a negative interim value.
//
// Returns ErrNotFound if the product does not exist and
// ErrInsufficientStock if an 'out' movement would drive quantity below zero.
func (s *Store) RecordMovement(ctx context.Context, m *model.Movement) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = nowUTC()
	}
	if err := m.Validate(); err != nil {
		return 0, err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin movement: %w", err)
	}
	defer tx.Rollback()

	var quantity int64
	err = tx.QueryRowContext(ctx,
		`SELECT quantity FROM products WHERE id = ?`, m.ProductID).Scan(&quantity)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read product %d: %w", m.ProductID, err)
	}

	switch m.Direction {
	case model.DirectionIn:
		quantity += m.Quantity
	case model.DirectionOut:
		quantity -= m.Quantity
		if quantity < 0 {
			return 0, fmt.Errorf("%w: product %d has %d, movement needs %d",
				ErrInsufficientStock, m.ProductID, quantity+m.Quantity, m.Quantity)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO movements (remote_id, product_id, direction, quantity, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		nullString(m.RemoteID), m.ProductID, string(m.Direction), m.Quantity,
		m.Note, formatTime(m.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append movement: %w", mapConstraint(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get movement id: %w", err)
	}

	// The CHECK (quantity >= 0) constraint backs the in-transaction check.
	if _, err := tx.ExecContext(ctx,
		`UPDATE products SET quantity = ?, updated_at = ? WHERE id = ?`,
		quantity, formatTime(nowUTC()), m.ProductID,
	); err != nil {
		return 0, fmt.Errorf("failed to adjust quantity: %w", mapConstraint(err))
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit movement: %w", err)
	}
	m.ID = id
	return id, nil
}

// ListMovements returns all movements, newest first.
func (s *Store) ListMovements(ctx context.Context) ([]*model.Movement, error) {
	return s.listMovementsWhere(ctx, "", nil)
}

// ListProductMovements returns movements for one product, newest first.
func (s *Store) ListProductMovements(ctx context.Context, productID int64) ([]*model.Movement, error) {
	return s.listMovementsWhere(ctx, "WHERE product_id = ?", []any{productID})
}

// ListUnpushedMovements returns movements without a remote id whose product
// is linked. These are the movements recorded while offline that the
// reconnect sequence retries.
func (s *Store) ListUnpushedMovements(ctx context.Context) ([]*model.Movement, error) {
	return s.listMovementsWhere(ctx, `
		WHERE movements.remote_id IS NULL
		  AND product_id IN (SELECT id FROM products WHERE remote_id IS NOT NULL)`, nil)
}

// MarkMovementPushed records the remote identifier assigned to a movement.
func (s *Store) MarkMovementPushed(ctx context.Context, id int64, remoteID string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE movements SET remote_id = ? WHERE id = ?`, nullString(remoteID), id)
	if err != nil {
		return fmt.Errorf("failed to mark movement %d pushed: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountMovementsSince counts movements created at or after t.
func (s *Store) CountMovementsSince(ctx context.Context, since string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM movements WHERE created_at >= ?`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count movements: %w", err)
	}
	return n, nil
}

func (s *Store) listMovementsWhere(ctx context.Context, where string, args []any) ([]*model.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements ` + where +
		` ORDER BY created_at DESC, id DESC`
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	defer rows.Close()

	var movements []*model.Movement
	for rows.Next() {
		var m model.Movement
		var remoteID sql.NullString
		var direction, createdAt string
		if err := rows.Scan(&m.ID, &remoteID, &m.ProductID, &direction,
			&m.Quantity, &m.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		m.RemoteID = remoteID.String
		m.Direction = model.Direction(direction)
		m.CreatedAt = parseTime(createdAt)
		movements = append(movements, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating movements: %w", err)
	}
	return movements, nil
}

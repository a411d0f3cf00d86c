package store

import (
	"context"
	"fmt"
	"time"

	"github.com/safeproducts/stockd/internal/model"
)

// Stats computes the dashboard view from local data only, so it stays
// available offline: product count, summed stock, products below the
// low-stock threshold, and movements recorded on the current calendar day.
func (s *Store) Stats(ctx context.Context, lowStockThreshold int64) (*model.Stats, error) {
	var stats model.Stats

	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(quantity), 0),
		       COALESCE(SUM(quantity < ?), 0)
		FROM products`, lowStockThreshold,
	).Scan(&stats.TotalProducts, &stats.TotalStock, &stats.LowStock)
	if err != nil {
		return nil, fmt.Errorf("failed to compute product stats: %w", err)
	}

	// "Today" is the user's calendar day, so the boundary is local
	// midnight, not UTC midnight.
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	stats.TodayMovements, err = s.CountMovementsSince(ctx, formatTime(midnight))
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

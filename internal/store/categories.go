package store

import (
	"context"
	"fmt"

	"github.com/safeproducts/stockd/internal/model"
)

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]*model.Category, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, color FROM categories ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, nil
}

// AddCategory inserts a category, ignoring duplicates by name. Categories
// are read-mostly; duplicate seeding is a normal no-op, not an error.
func (s *Store) AddCategory(ctx context.Context, c *model.Category) error {
	res, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO categories (name, color) VALUES (?, ?)`,
		c.Name, c.Color)
	if err != nil {
		return fmt.Errorf("failed to add category %q: %w", c.Name, err)
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		c.ID = id
	}
	return nil
}

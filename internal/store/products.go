package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safeproducts/stockd/internal/model"
)

const productColumns = `id, uid, remote_id, name, description, price, quantity,
	category, scan_code, created_at, updated_at`

// AddProduct inserts a new product and returns its store-assigned ID.
// UID, scan code and timestamps are filled if absent. Fails with
// ErrDuplicate when the scan code or UID collides with an existing record.
func (s *Store) AddProduct(ctx context.Context, p *model.Product) (int64, error) {
	p.SetDefaults()
	if err := p.Validate(); err != nil {
		return 0, err
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO products (uid, remote_id, name, description, price,
			quantity, category, scan_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UID, nullString(p.RemoteID), p.Name, p.Description, p.Price,
		p.Quantity, p.Category, p.ScanCode,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add product: %w", mapConstraint(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get product id: %w", err)
	}
	p.ID = id
	return id, nil
}

// GetProduct returns a product by local ID, or ErrNotFound.
func (s *Store) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return s.getProductWhere(ctx, "id = ?", id)
}

// GetProductByUID returns a product by its client-generated UID.
func (s *Store) GetProductByUID(ctx context.Context, uid string) (*model.Product, error) {
	return s.getProductWhere(ctx, "uid = ?", uid)
}

// GetProductByScanCode looks a product up through the unique scan-code index.
func (s *Store) GetProductByScanCode(ctx context.Context, code string) (*model.Product, error) {
	return s.getProductWhere(ctx, "scan_code = ?", code)
}

// GetProductByRemoteID looks a product up through the sparse remote-id index.
func (s *Store) GetProductByRemoteID(ctx context.Context, remoteID string) (*model.Product, error) {
	return s.getProductWhere(ctx, "remote_id = ?", remoteID)
}

func (s *Store) getProductWhere(ctx context.Context, where string, arg any) (*model.Product, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE `+where, arg)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// ProductFilter narrows ListProducts results. Zero value lists everything.
type ProductFilter struct {
	// Category filters by exact category name.
	Category string
	// Search matches name, description, or scan code, case-insensitively.
	Search string
	// UnlinkedOnly restricts to records pending upload (no remote id).
	UnlinkedOnly bool
}

// ListProducts returns products matching the filter, ordered by name.
func (s *Store) ListProducts(ctx context.Context, filter ProductFilter) ([]*model.Product, error) {
	var conditions []string
	var args []any

	if filter.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions,
			"(lower(name) LIKE ? OR lower(description) LIKE ? OR scan_code LIKE ?)")
		args = append(args, like, like, "%"+filter.Search+"%")
	}
	if filter.UnlinkedOnly {
		conditions = append(conditions, "remote_id IS NULL")
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name COLLATE NOCASE ASC, id ASC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// UpdateProduct merges the patch into the stored record (only set fields
// change) and stamps a new UpdatedAt unless the patch carries one.
// Returns the updated record, or ErrNotFound.
func (s *Store) UpdateProduct(ctx context.Context, id int64, patch model.ProductPatch) (*model.Product, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read product for update: %w", err)
	}

	applyPatch(p, patch)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products SET remote_id = ?, name = ?, description = ?,
			price = ?, quantity = ?, category = ?, scan_code = ?,
			updated_at = ?
		WHERE id = ?`,
		nullString(p.RemoteID), p.Name, p.Description, p.Price, p.Quantity,
		p.Category, p.ScanCode, formatTime(p.UpdatedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update product %d: %w", id, mapConstraint(err))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return p, nil
}

// DeleteProduct removes a product. Referencing movements are retained; the
// ledger is append-only history. Returns ErrNotFound if no row was deleted.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete product %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountProducts returns the number of stored products.
func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

func applyPatch(p *model.Product, patch model.ProductPatch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Quantity != nil {
		p.Quantity = *patch.Quantity
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.ScanCode != nil {
		p.ScanCode = *patch.ScanCode
	}
	if patch.RemoteID != nil {
		p.RemoteID = *patch.RemoteID
	}
	if patch.UpdatedAt != nil {
		p.UpdatedAt = patch.UpdatedAt.UTC()
	} else {
		p.UpdatedAt = nowUTC()
	}
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*model.Product, error) {
	var p model.Product
	var remoteID sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.UID, &remoteID, &p.Name, &p.Description,
		&p.Price, &p.Quantity, &p.Category, &p.ScanCode, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.RemoteID = remoteID.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func scanProducts(rows *sql.Rows) ([]*model.Product, error) {
	var products []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

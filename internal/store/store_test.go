package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/safeproducts/stockd/internal/model"
)

// openTestStore creates a store on a throwaway database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSeedsDefaultCategories(t *testing.T) {
	s := openTestStore(t)

	categories, err := s.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(categories) != len(model.DefaultCategories) {
		t.Fatalf("got %d categories, want %d", len(categories), len(model.DefaultCategories))
	}
}

func TestReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	p := &model.Product{Name: "Widget", Category: "Tools", Quantity: 3}
	if _, err := s.AddProduct(ctx, p); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening must re-run migrations harmlessly and keep existing data.
	s, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s.Close()

	got, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct after reopen: %v", err)
	}
	if got.Name != "Widget" || got.Quantity != 3 {
		t.Errorf("data lost across reopen: %+v", got)
	}

	categories, err := s.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(categories) != len(model.DefaultCategories) {
		t.Errorf("category seed duplicated: got %d", len(categories))
	}
}

func TestAddCategoryIgnoresDuplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddCategory(ctx, &model.Category{Name: "Tools", Color: "#fff"}); err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	categories, err := s.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(categories) != len(model.DefaultCategories) {
		t.Errorf("duplicate category inserted: got %d", len(categories))
	}
}

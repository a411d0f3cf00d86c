package store

import (
	"context"
	"errors"
	"testing"

	"github.com/safeproducts/stockd/internal/model"
)

func TestMovementAdjustsQuantity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &model.Product{Name: "Widget", Category: "Tools", Quantity: 10}
	if _, err := s.AddProduct(ctx, p); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}

	if _, err := s.RecordMovement(ctx, &model.Movement{
		ProductID: p.ID, Direction: model.DirectionOut, Quantity: 3, Note: "sold",
	}); err != nil {
		t.Fatalf("out movement: %v", err)
	}
	got, _ := s.GetProduct(ctx, p.ID)
	if got.Quantity != 7 {
		t.Fatalf("quantity after out: got %d, want 7", got.Quantity)
	}

	if _, err := s.RecordMovement(ctx, &model.Movement{
		ProductID: p.ID, Direction: model.DirectionIn, Quantity: 5,
	}); err != nil {
		t.Fatalf("in movement: %v", err)
	}
	got, _ = s.GetProduct(ctx, p.ID)
	if got.Quantity != 12 {
		t.Fatalf("quantity after in: got %d, want 12", got.Quantity)
	}
}

func TestOverdraftRejectedAtomically(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &model.Product{Name: "Widget", Category: "Tools", Quantity: 10}
	if _, err := s.AddProduct(ctx, p); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	if _, err := s.RecordMovement(ctx, &model.Movement{
		ProductID: p.ID, Direction: model.DirectionOut, Quantity: 3,
	}); err != nil {
		t.Fatalf("out movement: %v", err)
	}

	// Overdraw: rejected with no partial effect on either table.
	_, err := s.RecordMovement(ctx, &model.Movement{
		ProductID: p.ID, Direction: model.DirectionOut, Quantity: 100,
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("got %v, want ErrInsufficientStock", err)
	}

	got, _ := s.GetProduct(ctx, p.ID)
	if got.Quantity != 7 {
		t.Errorf("quantity disturbed by rejected movement: got %d, want 7", got.Quantity)
	}
	movements, err := s.ListProductMovements(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListProductMovements: %v", err)
	}
	if len(movements) != 1 {
		t.Errorf("rejected movement was recorded: %d entries", len(movements))
	}
}

func TestMovementUnknownProduct(t *testing.T) {
	s := openTestStore(t)

	_, err := s.RecordMovement(context.Background(), &model.Movement{
		ProductID: 42, Direction: model.DirectionIn, Quantity: 1,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestListMovementsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &model.Product{Name: "Widget", Category: "Tools", Quantity: 0}
	if _, err := s.AddProduct(ctx, p); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.RecordMovement(ctx, &model.Movement{
			ProductID: p.ID, Direction: model.DirectionIn, Quantity: int64(i + 1),
		}); err != nil {
			t.Fatalf("RecordMovement: %v", err)
		}
	}

	movements, err := s.ListMovements(ctx)
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	if len(movements) != 3 {
		t.Fatalf("got %d movements, want 3", len(movements))
	}
	if movements[0].Quantity != 3 || movements[2].Quantity != 1 {
		t.Errorf("not newest first: %d, %d, %d",
			movements[0].Quantity, movements[1].Quantity, movements[2].Quantity)
	}
}

func TestUnpushedMovementTracking(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	linked := &model.Product{Name: "Linked", Category: "Other", Quantity: 10, RemoteID: "doc-1"}
	unlinked := &model.Product{Name: "Unlinked", Category: "Other", Quantity: 10}
	for _, p := range []*model.Product{linked, unlinked} {
		if _, err := s.AddProduct(ctx, p); err != nil {
			t.Fatalf("AddProduct: %v", err)
		}
	}

	mLinked := &model.Movement{ProductID: linked.ID, Direction: model.DirectionOut, Quantity: 1}
	mUnlinked := &model.Movement{ProductID: unlinked.ID, Direction: model.DirectionOut, Quantity: 1}
	for _, m := range []*model.Movement{mLinked, mUnlinked} {
		if _, err := s.RecordMovement(ctx, m); err != nil {
			t.Fatalf("RecordMovement: %v", err)
		}
	}

	// Only movements of linked products are retryable: an unlinked
	// product's movements travel with it when it is first uploaded.
	unpushed, err := s.ListUnpushedMovements(ctx)
	if err != nil {
		t.Fatalf("ListUnpushedMovements: %v", err)
	}
	if len(unpushed) != 1 || unpushed[0].ID != mLinked.ID {
		t.Fatalf("unexpected unpushed set: %+v", unpushed)
	}

	if err := s.MarkMovementPushed(ctx, mLinked.ID, "mov-7"); err != nil {
		t.Fatalf("MarkMovementPushed: %v", err)
	}
	unpushed, err = s.ListUnpushedMovements(ctx)
	if err != nil {
		t.Fatalf("ListUnpushedMovements: %v", err)
	}
	if len(unpushed) != 0 {
		t.Errorf("pushed movement still listed: %+v", unpushed)
	}
}

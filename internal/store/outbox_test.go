package store

import (
	"context"
	"testing"
	"time"

	"github.com/safeproducts/stockd/internal/model"
)

func TestEnqueuePendingCollapsesUpdates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.EnqueuePending(ctx, model.PendingOp{
			ProductUID: "uid-1", RemoteID: "doc-1", Op: model.OpUpdate,
		}); err != nil {
			t.Fatalf("EnqueuePending: %v", err)
		}
	}

	ops, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("repeated updates should collapse: got %d entries", len(ops))
	}
	if ops[0].Op != model.OpUpdate || ops[0].ProductUID != "uid-1" {
		t.Errorf("unexpected entry: %+v", ops[0])
	}
}

func TestDeleteSupersedesQueuedUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnqueuePending(ctx, model.PendingOp{
		ProductUID: "uid-1", RemoteID: "doc-1", Op: model.OpUpdate,
	}); err != nil {
		t.Fatalf("enqueue update: %v", err)
	}
	if err := s.EnqueuePending(ctx, model.PendingOp{
		ProductUID: "uid-1", RemoteID: "doc-1", Op: model.OpDelete,
	}); err != nil {
		t.Fatalf("enqueue delete: %v", err)
	}

	ops, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(ops) != 1 || ops[0].Op != model.OpDelete {
		t.Fatalf("delete should supersede the queued update: %+v", ops)
	}
}

func TestDeletePendingIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnqueuePending(ctx, model.PendingOp{
		ProductUID: "uid-1", RemoteID: "doc-1", Op: model.OpUpdate,
	}); err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}
	ops, _ := s.ListPending(ctx)
	if len(ops) != 1 {
		t.Fatalf("setup failed: %d entries", len(ops))
	}

	if err := s.DeletePending(ctx, ops[0].ID); err != nil {
		t.Fatalf("DeletePending: %v", err)
	}
	if err := s.DeletePending(ctx, ops[0].ID); err != nil {
		t.Errorf("second DeletePending: %v", err)
	}

	n, err := s.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	if n != 0 {
		t.Errorf("outbox not drained: %d left", n)
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	products := []*model.Product{
		{Name: "Plenty", Category: "Other", Quantity: 50},
		{Name: "Low", Category: "Other", Quantity: 2},
		{Name: "Empty", Category: "Other", Quantity: 0},
	}
	for _, p := range products {
		if _, err := s.AddProduct(ctx, p); err != nil {
			t.Fatalf("AddProduct: %v", err)
		}
	}
	if _, err := s.RecordMovement(ctx, &model.Movement{
		ProductID: products[0].ID, Direction: model.DirectionOut, Quantity: 5,
	}); err != nil {
		t.Fatalf("RecordMovement: %v", err)
	}

	stats, err := s.Stats(ctx, 10)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalProducts != 3 {
		t.Errorf("TotalProducts: got %d, want 3", stats.TotalProducts)
	}
	if stats.TotalStock != 47 {
		t.Errorf("TotalStock: got %d, want 47", stats.TotalStock)
	}
	if stats.LowStock != 2 {
		t.Errorf("LowStock: got %d, want 2", stats.LowStock)
	}
	if stats.TodayMovements != 1 {
		t.Errorf("TodayMovements: got %d, want 1", stats.TodayMovements)
	}
}

func TestStatsTodayIsLocalCalendarDay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &model.Product{Name: "Widget", Category: "Tools", Quantity: 100}
	if _, err := s.AddProduct(ctx, p); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}

	now := time.Now()
	localMidnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := &model.Movement{
		ProductID: p.ID, Direction: model.DirectionOut, Quantity: 1,
		CreatedAt: localMidnight.Add(-time.Minute),
	}
	today := &model.Movement{
		ProductID: p.ID, Direction: model.DirectionOut, Quantity: 1,
		CreatedAt: localMidnight.Add(time.Minute),
	}
	for _, m := range []*model.Movement{yesterday, today} {
		if _, err := s.RecordMovement(ctx, m); err != nil {
			t.Fatalf("RecordMovement: %v", err)
		}
	}

	stats, err := s.Stats(ctx, 10)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TodayMovements != 1 {
		t.Errorf("a movement before local midnight counted as today: got %d, want 1",
			stats.TodayMovements)
	}
}

package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/safeproducts/stockd/internal/model"
	"github.com/safeproducts/stockd/internal/remote"
	"github.com/safeproducts/stockd/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store, *remote.MemoryAdapter) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	mem := remote.NewMemoryAdapter()
	return New(st, mem, nil, Config{}), st, mem
}

func TestAddProductMirrorsWhenOnline(t *testing.T) {
	e, _, mem := newTestEngine(t)
	ctx := context.Background()

	p := &model.Product{Name: "Widget", Category: "Tools", Price: 5, Quantity: 10}
	if err := e.AddProduct(ctx, p); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	if !p.Linked() {
		t.Fatal("product should be linked after an online add")
	}
	doc, ok := mem.Product(p.RemoteID)
	if !ok || doc.Name != "Widget" || doc.UID != p.UID {
		t.Errorf("remote doc mismatch: %+v", doc)
	}
}

func TestOfflineLifecycleConverges(t *testing.T) {
	e, st, mem := newTestEngine(t)
	ctx := context.Background()
	mem.SetOnline(false)

	// Everything below happens with no connectivity, and none of it fails.
	p := &model.Product{Name: "Widget", Category: "Tools", Price: 5, Quantity: 10}
	if err := e.AddProduct(ctx, p); err != nil {
		t.Fatalf("AddProduct offline: %v", err)
	}
	if p.Linked() {
		t.Fatal("offline add should stay unlinked")
	}
	if _, err := e.RecordMovement(ctx, &model.Movement{
		ProductID: p.ID, Direction: model.DirectionOut, Quantity: 3,
	}); err != nil {
		t.Fatalf("RecordMovement offline: %v", err)
	}
	got, _ := e.GetProduct(ctx, p.ID)
	if got.Quantity != 7 {
		t.Fatalf("offline quantity %d, want 7", got.Quantity)
	}

	// Reconnect and reconcile.
	mem.SetOnline(true)
	if _, _, err := e.SyncFull(ctx); err != nil {
		t.Fatalf("SyncFull: %v", err)
	}

	got, _ = e.GetProduct(ctx, p.ID)
	if !got.Linked() {
		t.Fatal("product not uploaded after reconnect")
	}
	doc, _ := mem.Product(got.RemoteID)
	if doc.Quantity != 7 {
		t.Errorf("remote quantity %d, want 7", doc.Quantity)
	}
	unpushed, _ := st.ListUnpushedMovements(ctx)
	if len(unpushed) != 0 {
		t.Errorf("%d movements still unpushed after reconcile", len(unpushed))
	}
}

func TestUpdateQueuedWhenOffline(t *testing.T) {
	e, st, mem := newTestEngine(t)
	ctx := context.Background()

	p := &model.Product{Name: "Widget", Category: "Tools", Price: 5}
	if err := e.AddProduct(ctx, p); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}

	mem.SetOnline(false)
	price := 6.50
	if _, err := e.UpdateProduct(ctx, p.ID, model.ProductPatch{Price: &price}); err != nil {
		t.Fatalf("UpdateProduct offline: %v", err)
	}
	if n, _ := st.CountPending(ctx); n != 1 {
		t.Fatalf("expected 1 queued mutation, got %d", n)
	}

	mem.SetOnline(true)
	if _, err := e.SyncUp(ctx); err != nil {
		t.Fatalf("SyncUp: %v", err)
	}
	doc, _ := mem.Product(p.RemoteID)
	if doc.Price != 6.50 {
		t.Errorf("queued update not applied: price=%v", doc.Price)
	}
	if n, _ := st.CountPending(ctx); n != 0 {
		t.Errorf("outbox not drained: %d left", n)
	}
}

func TestDeleteQueuedWhenOffline(t *testing.T) {
	e, st, mem := newTestEngine(t)
	ctx := context.Background()

	p := &model.Product{Name: "Widget", Category: "Tools"}
	if err := e.AddProduct(ctx, p); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	remoteID := p.RemoteID

	mem.SetOnline(false)
	if err := e.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProduct offline: %v", err)
	}
	if _, err := e.GetProduct(ctx, p.ID); err == nil {
		t.Fatal("product should be gone locally")
	}

	mem.SetOnline(true)
	if _, err := e.SyncUp(ctx); err != nil {
		t.Fatalf("SyncUp: %v", err)
	}
	if _, ok := mem.Product(remoteID); ok {
		t.Error("remote doc should be deleted after the outbox drains")
	}
	if n, _ := st.CountPending(ctx); n != 0 {
		t.Errorf("outbox not drained: %d left", n)
	}
}

func TestScanCodeRemoteFallback(t *testing.T) {
	e, _, mem := newTestEngine(t)
	ctx := context.Background()

	remoteID := mem.Seed(remote.ProductDoc{
		Name: "Scanner Special", Category: "Electronics",
		Price: 20, Quantity: 2, ScanCode: "SP-1-REMOTE99",
	})

	p, err := e.GetProductByScanCode(ctx, "SP-1-REMOTE99")
	if err != nil {
		t.Fatalf("GetProductByScanCode: %v", err)
	}
	if p.RemoteID != remoteID || p.Name != "Scanner Special" {
		t.Errorf("remote fallback mismatch: %+v", p)
	}

	// The record was pulled in, so the next scan resolves offline.
	mem.SetOnline(false)
	again, err := e.GetProductByScanCode(ctx, "SP-1-REMOTE99")
	if err != nil {
		t.Fatalf("second lookup should be local: %v", err)
	}
	if again.ID != p.ID {
		t.Errorf("lookup returned a different record: %d vs %d", again.ID, p.ID)
	}
}

func TestStatusReportsPendingWork(t *testing.T) {
	e, st, mem := newTestEngine(t)
	ctx := context.Background()
	mem.SetOnline(false)

	p := &model.Product{Name: "Widget", Category: "Tools", Quantity: 5}
	if err := e.AddProduct(ctx, p); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	if err := st.EnqueuePending(ctx, model.PendingOp{
		ProductUID: "uid-x", RemoteID: "doc-x", Op: model.OpDelete,
	}); err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}

	status, err := e.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Online {
		t.Error("status should report offline")
	}
	if status.UnlinkedProducts != 1 {
		t.Errorf("UnlinkedProducts %d, want 1", status.UnlinkedProducts)
	}
	if status.PendingOutbox != 1 {
		t.Errorf("PendingOutbox %d, want 1", status.PendingOutbox)
	}
	if status.State != "idle" {
		t.Errorf("State %q, want idle", status.State)
	}
}

func TestSetLowStockThresholdAppliesToStats(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	if err := e.AddProduct(ctx, &model.Product{Name: "Widget", Category: "Tools", Quantity: 5}); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}

	stats, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.LowStock != 1 {
		t.Fatalf("LowStock with default threshold: got %d, want 1", stats.LowStock)
	}

	e.SetLowStockThreshold(3)
	stats, err = e.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats after reload: %v", err)
	}
	if stats.LowStock != 0 {
		t.Errorf("LowStock with threshold 3: got %d, want 0", stats.LowStock)
	}

	// Nonsense values keep the current threshold.
	e.SetLowStockThreshold(0)
	stats, _ = e.Stats(ctx)
	if stats.LowStock != 0 {
		t.Errorf("zero threshold should be ignored: got %d", stats.LowStock)
	}
}

func TestSearchProducts(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	for _, name := range []string{"Blue Widget", "Red Widget", "Soap"} {
		if err := e.AddProduct(ctx, &model.Product{Name: name, Category: "Other"}); err != nil {
			t.Fatalf("AddProduct: %v", err)
		}
	}
	found, err := e.SearchProducts(ctx, "widget")
	if err != nil {
		t.Fatalf("SearchProducts: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("got %d results, want 2", len(found))
	}
}

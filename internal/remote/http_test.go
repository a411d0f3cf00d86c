package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateProduct(t *testing.T) {
	var gotDoc map[string]any
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/products" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("X-API-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotDoc)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "doc-42"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithAPIKey("secret"))
	id, err := c.CreateProduct(context.Background(), ProductDoc{
		UID: "uid-1", Name: "Widget", Category: "Tools", Price: 5, Quantity: 3,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if id != "doc-42" {
		t.Errorf("id %q, want doc-42", id)
	}
	if gotKey != "secret" {
		t.Errorf("api key header %q", gotKey)
	}
	if gotDoc["name"] != "Widget" || gotDoc["uid"] != "uid-1" {
		t.Errorf("request body mismatch: %v", gotDoc)
	}
}

func TestFetchProductsToleratesSchemalessTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Numbers as strings, prices as integers: the store is schemaless
		// and other writers are not strict about types.
		_, _ = w.Write([]byte(`[
			{"id": "doc-1", "name": "A", "category": "Tools", "price": "9.99", "quantity": "4",
			 "updated_at": "2026-01-02T03:04:05Z"},
			{"id": "doc-2", "name": "B", "category": "Food", "price": 3, "quantity": 7}
		]`))
	}))
	defer srv.Close()

	docs, err := NewClient(srv.URL).FetchProducts(context.Background())
	if err != nil {
		t.Fatalf("FetchProducts: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].Price != 9.99 || docs[0].Quantity != 4 {
		t.Errorf("string numbers not coerced: %+v", docs[0])
	}
	if docs[0].UpdatedAt.IsZero() {
		t.Error("timestamp not decoded")
	}
	if docs[1].Price != 3 {
		t.Errorf("integer price not coerced: %+v", docs[1])
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"server error", http.StatusInternalServerError, ErrUnavailable},
		{"rate limited", http.StatusTooManyRequests, ErrUnavailable},
		{"bad gateway", http.StatusBadGateway, ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).FetchProduct(context.Background(), "doc-1")
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRejectionIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "price must be positive", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).CreateProduct(context.Background(), ProductDoc{Name: "X"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNotFound) {
		t.Errorf("a 4xx rejection must be distinguishable from transience: %v", err)
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	err := NewClient(srv.URL).Ping(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
}

func TestDeleteToleratesMissingDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).DeleteProduct(context.Background(), "doc-1"); err != nil {
		t.Errorf("deleting an absent document should succeed: %v", err)
	}
}

func TestDegradedTimeoutShortensRequests(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.URL)
	c.SetDegraded(true)

	start := time.Now()
	err := c.Ping(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
	if elapsed > DegradedTimeout+2*time.Second {
		t.Errorf("degraded request took %v, should be bounded near %v", elapsed, DegradedTimeout)
	}
}

func TestFindProductsByField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("field"); got != "scan_code" {
			t.Errorf("field query %q", got)
		}
		if got := r.URL.Query().Get("value"); got != "SP-1-ABC" {
			t.Errorf("value query %q", got)
		}
		_, _ = w.Write([]byte(`[{"id": "doc-9", "name": "X", "category": "Other", "price": 1, "quantity": 0}]`))
	}))
	defer srv.Close()

	docs, err := NewClient(srv.URL).FindProductsByField(context.Background(), "scan_code", "SP-1-ABC")
	if err != nil {
		t.Fatalf("FindProductsByField: %v", err)
	}
	if len(docs) != 1 || docs[0].RemoteID != "doc-9" {
		t.Errorf("unexpected result: %+v", docs)
	}
}

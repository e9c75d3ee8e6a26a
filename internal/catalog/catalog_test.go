package catalog

import (
	"context"
	"errors"
	"testing"

	"nexuspos/backend/internal/cache"
	"nexuspos/backend/internal/domain"
	"nexuspos/backend/internal/store"
	"nexuspos/backend/internal/store/memory"
)

const owner = "owner-1"

func newTestCatalog(t *testing.T) (*Store, *memory.Store, *cache.MemoryStore) {
	t.Helper()
	remote := memory.New()
	local := cache.NewMemoryStore()
	s := New(remote, local, nil)
	if err := s.Load(context.Background(), owner, true); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s, remote, local
}

func coffeeRequest() domain.ProductCreateRequest {
	return domain.ProductCreateRequest{Name: "Artisan Coffee", SKU: " food-001 ", CostCents: 200, PriceCents: 450, Stock: 5, Category: "food"}
}

func TestAddProductIsRemoteFirst(t *testing.T) {
	ctx := context.Background()
	s, remote, local := newTestCatalog(t)

	product, err := s.AddProduct(ctx, coffeeRequest())
	if err != nil {
		t.Fatalf("add product: %v", err)
	}
	if product.SKU != "FOOD-001" {
		t.Fatalf("expected normalized sku, got %q", product.SKU)
	}

	remoteProducts, _ := remote.ListProducts(ctx, owner)
	if len(remoteProducts) != 1 {
		t.Fatalf("expected product stored remotely")
	}
	var cached []domain.Product
	if ok, _ := cache.GetJSON(ctx, local, cache.OwnerKey(cache.KeyProducts, owner), &cached); !ok || len(cached) != 1 {
		t.Fatalf("expected product mirrored to cache, got %+v", cached)
	}

	if _, err := s.AddProduct(ctx, coffeeRequest()); !domain.IsValidation(err) {
		t.Fatalf("expected duplicate sku validation error, got %v", err)
	}
}

func TestAddProductRemoteFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s, remote, local := newTestCatalog(t)
	remote.FailWith(errors.New("503 upstream"))

	_, err := s.AddProduct(ctx, coffeeRequest())
	if !domain.IsRemote(err) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if len(s.Products()) != 0 {
		t.Fatalf("expected no local product after remote failure")
	}
	var cached []domain.Product
	_, _ = cache.GetJSON(ctx, local, cache.OwnerKey(cache.KeyProducts, owner), &cached)
	if len(cached) != 0 {
		t.Fatalf("expected cache untouched, got %+v", cached)
	}
}

func TestAddProductValidation(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestCatalog(t)

	cases := []domain.ProductCreateRequest{
		{Name: "", SKU: "A", PriceCents: 100},
		{Name: "A", SKU: "", PriceCents: 100},
		{Name: "A", SKU: "A", PriceCents: 0},
		{Name: "A", SKU: "A", PriceCents: 100, Stock: -1},
		{Name: "A", SKU: "A", PriceCents: 100, Category: "weapons"},
	}
	for _, req := range cases {
		if _, err := s.AddProduct(ctx, req); !domain.IsValidation(err) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}

	noOwner := New(memory.New(), cache.NewMemoryStore(), nil)
	if _, err := noOwner.AddProduct(ctx, coffeeRequest()); !errors.Is(err, domain.ErrNoIdentity) {
		t.Fatalf("expected no identity error, got %v", err)
	}
}

func TestUpdateAndDeleteProduct(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestCatalog(t)
	product, _ := s.AddProduct(ctx, coffeeRequest())

	price := int64(500)
	updated, err := s.UpdateProduct(ctx, product.ID, domain.ProductUpdateRequest{PriceCents: &price})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.PriceCents != 500 || updated.Name != product.Name {
		t.Fatalf("unexpected update result %+v", updated)
	}

	if _, err := s.UpdateProduct(ctx, "missing", domain.ProductUpdateRequest{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := s.DeleteProduct(ctx, product.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.Product(product.ID); ok {
		t.Fatalf("expected product removed")
	}
}

func TestLoadFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	s, remote, local := newTestCatalog(t)
	_, _ = s.AddProduct(ctx, coffeeRequest())
	_, _ = s.AddService(ctx, domain.ServiceCreateRequest{Name: "Gift Wrapping"})

	remote.FailWith(errors.New("network down"))
	reloaded := New(remote, local, nil)
	if err := reloaded.Load(ctx, owner, true); err != nil {
		t.Fatalf("load with failing remote: %v", err)
	}
	if len(reloaded.Products()) != 1 || len(reloaded.Services()) != 1 {
		t.Fatalf("expected cached catalog, got %d products %d services", len(reloaded.Products()), len(reloaded.Services()))
	}

	offline := New(remote, local, nil)
	if err := offline.Load(ctx, owner, false); err != nil {
		t.Fatalf("offline load: %v", err)
	}
	if len(offline.Products()) != 1 {
		t.Fatalf("expected offline load to read cache")
	}

	if err := offline.Load(ctx, "", true); err != nil {
		t.Fatalf("anonymous load: %v", err)
	}
	if len(offline.Products()) != 0 || offline.Owner() != "" {
		t.Fatalf("expected empty catalog without identity")
	}
}

func TestLoadOnlineOverwritesCache(t *testing.T) {
	ctx := context.Background()
	remote := memory.New()
	local := cache.NewMemoryStore()
	_ = cache.SetJSON(ctx, local, cache.OwnerKey(cache.KeyProducts, owner), []domain.Product{{ID: "stale"}})
	_, _ = remote.CreateProduct(ctx, owner, domain.Product{ID: "fresh", Name: "Cap", SKU: "CLTH-005", PriceCents: 2000, Category: domain.CategoryClothing})

	s := New(remote, local, nil)
	if err := s.Load(ctx, owner, true); err != nil {
		t.Fatalf("load: %v", err)
	}
	var cached []domain.Product
	_, _ = cache.GetJSON(ctx, local, cache.OwnerKey(cache.KeyProducts, owner), &cached)
	if len(cached) != 1 || cached[0].ID != "fresh" {
		t.Fatalf("expected cache overwritten with remote copy, got %+v", cached)
	}
}

func TestSearchAndFilter(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestCatalog(t)
	_, _ = s.AddProduct(ctx, coffeeRequest())
	_, _ = s.AddProduct(ctx, domain.ProductCreateRequest{Name: "Cotton T-Shirt", SKU: "CLTH-001", PriceCents: 2500, Stock: 10, Category: "clothing"})
	_, _ = s.AddService(ctx, domain.ServiceCreateRequest{Name: "Screen Repair"})

	if got := s.Search("coffee"); len(got) != 1 || got[0].SKU != "FOOD-001" {
		t.Fatalf("expected name match, got %+v", got)
	}
	if got := s.Search("clth"); len(got) != 1 || got[0].Name != "Cotton T-Shirt" {
		t.Fatalf("expected sku match, got %+v", got)
	}
	if got := s.Search(""); len(got) != 2 {
		t.Fatalf("expected empty query to match all, got %d", len(got))
	}
	if got := s.FilterByCategory("all"); len(got) != 2 {
		t.Fatalf("expected all products, got %d", len(got))
	}
	if got := s.FilterByCategory("clothing"); len(got) != 1 {
		t.Fatalf("expected one clothing product, got %d", len(got))
	}
	if got := s.SearchServices("REPAIR"); len(got) != 1 {
		t.Fatalf("expected case-insensitive service match, got %d", len(got))
	}
}

func TestApplySaleFloorsStockAtZero(t *testing.T) {
	ctx := context.Background()
	s, remote, local := newTestCatalog(t)
	product, _ := s.AddProduct(ctx, coffeeRequest())

	lines := []domain.LineItem{domain.NewProductLine(product, 3)}
	if err := s.ApplySale(ctx, lines); err != nil {
		t.Fatalf("apply sale: %v", err)
	}
	if got, _ := s.Product(product.ID); got.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", got.Stock)
	}

	lines[0].Quantity = 10
	_ = s.ApplySale(ctx, lines)
	if got, _ := s.Product(product.ID); got.Stock != 0 {
		t.Fatalf("expected stock floored at 0, got %d", got.Stock)
	}

	var cached []domain.Product
	_, _ = cache.GetJSON(ctx, local, cache.OwnerKey(cache.KeyProducts, owner), &cached)
	if len(cached) != 1 || cached[0].Stock != 0 {
		t.Fatalf("expected cached stock 0, got %+v", cached)
	}
	remoteProducts, _ := remote.ListProducts(ctx, owner)
	if remoteProducts[0].Stock != 5 {
		t.Fatalf("expected remote stock untouched, got %d", remoteProducts[0].Stock)
	}
}

type queuedSales []domain.SyncQueueEntry

func (q queuedSales) Pending(context.Context) ([]domain.SyncQueueEntry, error) {
	return q, nil
}

func TestLoadKeepsStockTakenByQueuedSales(t *testing.T) {
	ctx := context.Background()
	remote := memory.New()
	mug := domain.Product{ID: "p-mug", Name: "Mug", SKU: "HOME-001", PriceCents: 1000, Stock: 10, Category: domain.CategoryOther}
	if _, err := remote.CreateProduct(ctx, owner, mug); err != nil {
		t.Fatalf("create product: %v", err)
	}

	recorded := domain.Transaction{ID: "TRX-000001-AAAAAAAA", Type: domain.TxTypeProduct, Items: []domain.LineItem{domain.NewProductLine(mug, 2)}}
	if _, err := remote.InsertTransaction(ctx, owner, recorded); err != nil {
		t.Fatalf("insert recorded sale: %v", err)
	}
	unsent := domain.Transaction{ID: "TRX-000002-BBBBBBBB", Type: domain.TxTypeProduct, Items: []domain.LineItem{domain.NewProductLine(mug, 3)}}
	otherOwner := domain.Transaction{ID: "TRX-000003-CCCCCCCC", Type: domain.TxTypeProduct, Items: []domain.LineItem{domain.NewProductLine(mug, 4)}}

	s := New(remote, cache.NewMemoryStore(), nil)
	s.UseOutbox(queuedSales{
		{ID: "q1", Kind: domain.SyncKindTransaction, Payload: recorded, OwnerID: owner},
		{ID: "q2", Kind: domain.SyncKindTransaction, Payload: unsent, OwnerID: owner},
		{ID: "q3", Kind: domain.SyncKindTransaction, Payload: otherOwner, OwnerID: "owner-2"},
	})
	if err := s.Load(ctx, owner, true); err != nil {
		t.Fatalf("load: %v", err)
	}

	got, ok := s.Product(mug.ID)
	if !ok {
		t.Fatalf("expected product loaded")
	}
	if got.Stock != 5 {
		t.Fatalf("expected 10 - 2 recorded - 3 queued = 5, got %d", got.Stock)
	}
}

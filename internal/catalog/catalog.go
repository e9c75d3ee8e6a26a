// Package catalog keeps the product and service master data for the signed-in
// owner. Writes go to the remote store first; reads are served from memory,
// which is mirrored to the local cache.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"nexuspos/backend/internal/cache"
	"nexuspos/backend/internal/domain"
	"nexuspos/backend/internal/logging"
	"nexuspos/backend/internal/store"
	"nexuspos/backend/internal/xid"
)

type Remote interface {
	ListProducts(ctx context.Context, ownerID string) ([]domain.Product, error)
	CreateProduct(ctx context.Context, ownerID string, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, ownerID string, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, ownerID string, productID string) error

	ListServices(ctx context.Context, ownerID string) ([]domain.Service, error)
	CreateService(ctx context.Context, ownerID string, service domain.Service) (*domain.Service, error)
	UpdateService(ctx context.Context, ownerID string, service domain.Service) (*domain.Service, error)
	DeleteService(ctx context.Context, ownerID string, serviceID string) error

	ListTransactions(ctx context.Context, ownerID string, txType domain.TransactionType) ([]domain.Transaction, error)
}

// Outbox lists sales still waiting for remote confirmation.
type Outbox interface {
	Pending(ctx context.Context) ([]domain.SyncQueueEntry, error)
}

type Store struct {
	mu       sync.RWMutex
	remote   Remote
	cache    cache.Store
	logger   *zap.Logger
	outbox   Outbox
	ownerID  string
	products []domain.Product
	services []domain.Service
}

func New(remote Remote, local cache.Store, logger *zap.Logger) *Store {
	return &Store{
		remote: remote,
		cache:  local,
		logger: logging.Named(logger, "catalog"),
	}
}

// UseOutbox makes online loads keep the stock taken by queued sales that the
// remote store has not recorded yet.
func (s *Store) UseOutbox(outbox Outbox) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = outbox
}

// Load replaces the in-memory catalog for ownerID. Online loads overwrite the
// cache with the remote copy; a failing remote or an offline till reads the
// cache instead. An empty ownerID clears the catalog.
func (s *Store) Load(ctx context.Context, ownerID string, online bool) error {
	if ownerID == "" {
		s.mu.Lock()
		s.ownerID, s.products, s.services = "", nil, nil
		s.mu.Unlock()
		return nil
	}

	if online {
		products, services, err := s.fetchRemote(ctx, ownerID)
		if err == nil {
			s.deductPending(ctx, ownerID, products)
			s.mu.Lock()
			s.ownerID, s.products, s.services = ownerID, products, services
			s.mu.Unlock()
			s.mirrorProducts(ctx, ownerID, products)
			s.mirrorServices(ctx, ownerID, services)
			return nil
		}
		s.logger.Warn("remote catalog load failed, using cache", zap.String("owner_id", ownerID), zap.Error(err))
	}

	var (
		products []domain.Product
		services []domain.Service
	)
	if _, err := cache.GetJSON(ctx, s.cache, cache.OwnerKey(cache.KeyProducts, ownerID), &products); err != nil {
		return fmt.Errorf("read cached products: %w", err)
	}
	if _, err := cache.GetJSON(ctx, s.cache, cache.OwnerKey(cache.KeyServices, ownerID), &services); err != nil {
		return fmt.Errorf("read cached services: %w", err)
	}

	s.mu.Lock()
	s.ownerID, s.products, s.services = ownerID, products, services
	s.mu.Unlock()
	return nil
}

func (s *Store) fetchRemote(ctx context.Context, ownerID string) ([]domain.Product, []domain.Service, error) {
	products, err := s.remote.ListProducts(ctx, ownerID)
	if err != nil {
		return nil, nil, domain.Remote("list products", err)
	}
	services, err := s.remote.ListServices(ctx, ownerID)
	if err != nil {
		return nil, nil, domain.Remote("list services", err)
	}
	return products, services, nil
}

// deductPending lowers stock in products by the quantities of the owner's
// queued product sales that the remote store does not hold yet.
func (s *Store) deductPending(ctx context.Context, ownerID string, products []domain.Product) {
	s.mu.RLock()
	outbox := s.outbox
	s.mu.RUnlock()
	if outbox == nil || len(products) == 0 {
		return
	}
	entries, err := outbox.Pending(ctx)
	if err != nil {
		s.logger.Warn("read pending sales failed", zap.String("owner_id", ownerID), zap.Error(err))
		return
	}

	var queued []domain.Transaction
	for _, entry := range entries {
		if entry.OwnerID == ownerID && entry.Payload.Type == domain.TxTypeProduct {
			queued = append(queued, entry.Payload)
		}
	}
	if len(queued) == 0 {
		return
	}
	stored, err := s.remote.ListTransactions(ctx, ownerID, domain.TxTypeProduct)
	if err != nil {
		s.logger.Warn("list remote sales failed, stock may not include queued sales", zap.String("owner_id", ownerID), zap.Error(err))
		return
	}
	recorded := make(map[string]struct{}, len(stored))
	for _, tx := range stored {
		recorded[tx.ID] = struct{}{}
	}

	taken := make(map[string]int)
	for _, tx := range queued {
		if _, ok := recorded[tx.ID]; ok {
			continue
		}
		recorded[tx.ID] = struct{}{}
		for _, line := range tx.Items {
			if line.Kind == domain.LineKindProduct && line.Product != nil {
				taken[line.Product.ID] += line.Quantity
			}
		}
	}
	for i := range products {
		if qty, ok := taken[products[i].ID]; ok {
			products[i].Stock = max(0, products[i].Stock-qty)
		}
	}
}

func (s *Store) Owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownerID
}

func (s *Store) AddProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	product := domain.Product{
		ID:         xid.New("prod"),
		Name:       strings.TrimSpace(req.Name),
		SKU:        normalizeSKU(req.SKU),
		CostCents:  req.CostCents,
		PriceCents: req.PriceCents,
		Stock:      req.Stock,
		Category:   normalizeCategory(req.Category),
		ImageURL:   strings.TrimSpace(req.ImageURL),
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}

	ownerID, err := s.requireOwner()
	if err != nil {
		return domain.Product{}, err
	}
	if s.skuTaken(product.SKU, "") {
		return domain.Product{}, domain.Invalid("sku", "already exists")
	}

	created, err := s.remote.CreateProduct(ctx, ownerID, product)
	if err != nil {
		return domain.Product{}, mapRemote("create product", err)
	}

	s.mu.Lock()
	s.products = append(s.products, *created)
	snapshot := append([]domain.Product(nil), s.products...)
	s.mu.Unlock()

	s.mirrorProducts(ctx, ownerID, snapshot)
	return *created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	ownerID, err := s.requireOwner()
	if err != nil {
		return domain.Product{}, err
	}
	current, ok := s.Product(id)
	if !ok {
		return domain.Product{}, store.ErrNotFound
	}

	if req.Name != nil {
		current.Name = strings.TrimSpace(*req.Name)
	}
	if req.SKU != nil {
		current.SKU = normalizeSKU(*req.SKU)
	}
	if req.CostCents != nil {
		current.CostCents = *req.CostCents
	}
	if req.PriceCents != nil {
		current.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		current.Stock = *req.Stock
	}
	if req.Category != nil {
		current.Category = normalizeCategory(*req.Category)
	}
	if req.ImageURL != nil {
		current.ImageURL = strings.TrimSpace(*req.ImageURL)
	}
	if err := validateProduct(current); err != nil {
		return domain.Product{}, err
	}
	if s.skuTaken(current.SKU, current.ID) {
		return domain.Product{}, domain.Invalid("sku", "already exists")
	}

	updated, err := s.remote.UpdateProduct(ctx, ownerID, current)
	if err != nil {
		return domain.Product{}, mapRemote("update product", err)
	}

	s.mu.Lock()
	for i := range s.products {
		if s.products[i].ID == updated.ID {
			s.products[i] = *updated
			break
		}
	}
	snapshot := append([]domain.Product(nil), s.products...)
	s.mu.Unlock()

	s.mirrorProducts(ctx, ownerID, snapshot)
	return *updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	ownerID, err := s.requireOwner()
	if err != nil {
		return err
	}
	if _, ok := s.Product(id); !ok {
		return store.ErrNotFound
	}
	if err := s.remote.DeleteProduct(ctx, ownerID, id); err != nil {
		return mapRemote("delete product", err)
	}

	s.mu.Lock()
	kept := s.products[:0]
	for _, p := range s.products {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	s.products = kept
	snapshot := append([]domain.Product(nil), s.products...)
	s.mu.Unlock()

	s.mirrorProducts(ctx, ownerID, snapshot)
	return nil
}

func (s *Store) AddService(ctx context.Context, req domain.ServiceCreateRequest) (domain.Service, error) {
	service := domain.Service{
		ID:          xid.New("svc"),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
	}
	if service.Name == "" {
		return domain.Service{}, domain.Invalid("name", "required")
	}
	ownerID, err := s.requireOwner()
	if err != nil {
		return domain.Service{}, err
	}

	created, err := s.remote.CreateService(ctx, ownerID, service)
	if err != nil {
		return domain.Service{}, mapRemote("create service", err)
	}

	s.mu.Lock()
	s.services = append(s.services, *created)
	snapshot := append([]domain.Service(nil), s.services...)
	s.mu.Unlock()

	s.mirrorServices(ctx, ownerID, snapshot)
	return *created, nil
}

func (s *Store) UpdateService(ctx context.Context, id string, req domain.ServiceUpdateRequest) (domain.Service, error) {
	ownerID, err := s.requireOwner()
	if err != nil {
		return domain.Service{}, err
	}
	current, ok := s.Service(id)
	if !ok {
		return domain.Service{}, store.ErrNotFound
	}
	if req.Name != nil {
		current.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		current.Description = strings.TrimSpace(*req.Description)
	}
	if current.Name == "" {
		return domain.Service{}, domain.Invalid("name", "required")
	}

	updated, err := s.remote.UpdateService(ctx, ownerID, current)
	if err != nil {
		return domain.Service{}, mapRemote("update service", err)
	}

	s.mu.Lock()
	for i := range s.services {
		if s.services[i].ID == updated.ID {
			s.services[i] = *updated
			break
		}
	}
	snapshot := append([]domain.Service(nil), s.services...)
	s.mu.Unlock()

	s.mirrorServices(ctx, ownerID, snapshot)
	return *updated, nil
}

func (s *Store) DeleteService(ctx context.Context, id string) error {
	ownerID, err := s.requireOwner()
	if err != nil {
		return err
	}
	if _, ok := s.Service(id); !ok {
		return store.ErrNotFound
	}
	if err := s.remote.DeleteService(ctx, ownerID, id); err != nil {
		return mapRemote("delete service", err)
	}

	s.mu.Lock()
	kept := s.services[:0]
	for _, svc := range s.services {
		if svc.ID != id {
			kept = append(kept, svc)
		}
	}
	s.services = kept
	snapshot := append([]domain.Service(nil), s.services...)
	s.mu.Unlock()

	s.mirrorServices(ctx, ownerID, snapshot)
	return nil
}

func (s *Store) Products() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Product(nil), s.products...)
}

func (s *Store) Services() []domain.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Service(nil), s.services...)
}

func (s *Store) Product(id string) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Product{}, false
}

func (s *Store) Service(id string) (domain.Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, svc := range s.services {
		if svc.ID == id {
			return svc, true
		}
	}
	return domain.Service{}, false
}

// Search matches products whose name or SKU contains query, ignoring case.
func (s *Store) Search(query string) []domain.Product {
	q := strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if q == "" || strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.SKU), q) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) SearchServices(query string) []domain.Service {
	q := strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Service, 0, len(s.services))
	for _, svc := range s.services {
		if q == "" || strings.Contains(strings.ToLower(svc.Name), q) {
			out = append(out, svc)
		}
	}
	return out
}

// FilterByCategory returns products in category; "all" or empty returns
// everything.
func (s *Store) FilterByCategory(category string) []domain.Product {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" || category == "all" {
		return s.Products()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// ApplySale decrements local stock for each product line, never below zero.
// The remote store deducts its own copy when it records the sale.
func (s *Store) ApplySale(ctx context.Context, lines []domain.LineItem) error {
	s.mu.Lock()
	ownerID := s.ownerID
	for _, line := range lines {
		if line.Kind != domain.LineKindProduct || line.Product == nil {
			continue
		}
		for i := range s.products {
			if s.products[i].ID != line.Product.ID {
				continue
			}
			s.products[i].Stock = max(0, s.products[i].Stock-line.Quantity)
			break
		}
	}
	snapshot := append([]domain.Product(nil), s.products...)
	s.mu.Unlock()

	if ownerID == "" {
		return nil
	}
	return cache.SetJSON(ctx, s.cache, cache.OwnerKey(cache.KeyProducts, ownerID), snapshot)
}

func (s *Store) requireOwner() (string, error) {
	ownerID := s.Owner()
	if ownerID == "" {
		return "", domain.ErrNoIdentity
	}
	return ownerID, nil
}

func (s *Store) skuTaken(sku string, exceptID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.SKU == sku && p.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Store) mirrorProducts(ctx context.Context, ownerID string, products []domain.Product) {
	if products == nil {
		products = []domain.Product{}
	}
	if err := cache.SetJSON(ctx, s.cache, cache.OwnerKey(cache.KeyProducts, ownerID), products); err != nil {
		s.logger.Warn("cache products failed", zap.Error(err))
	}
}

func (s *Store) mirrorServices(ctx context.Context, ownerID string, services []domain.Service) {
	if services == nil {
		services = []domain.Service{}
	}
	if err := cache.SetJSON(ctx, s.cache, cache.OwnerKey(cache.KeyServices, ownerID), services); err != nil {
		s.logger.Warn("cache services failed", zap.Error(err))
	}
}

func validateProduct(p domain.Product) error {
	switch {
	case p.Name == "":
		return domain.Invalid("name", "required")
	case p.SKU == "":
		return domain.Invalid("sku", "required")
	case p.PriceCents < 1:
		return domain.Invalid("price_cents", "must be greater than zero")
	case p.CostCents < 0:
		return domain.Invalid("cost_cents", "must not be negative")
	case p.Stock < 0:
		return domain.Invalid("stock", "must not be negative")
	case !domain.IsValidCategory(p.Category):
		return domain.Invalid("category", "unknown category")
	}
	return nil
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

func normalizeCategory(category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return domain.CategoryOther
	}
	return category
}

func mapRemote(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	case errors.Is(err, store.ErrConflict):
		return domain.Invalid("sku", "already exists")
	case errors.Is(err, store.ErrInvalid):
		return domain.Invalid("", "rejected by remote store")
	default:
		return domain.Remote(op, err)
	}
}

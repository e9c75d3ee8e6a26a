package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"nexuspos/backend/internal/domain"
	"nexuspos/backend/internal/store"
	"nexuspos/backend/internal/xid"
)

const DemoEmail = "demo@nexuspos.local"

type Store struct {
	mu           sync.RWMutex
	products     map[string]map[string]domain.Product
	services     map[string]map[string]domain.Service
	transactions map[string][]domain.Transaction
	txIndex      map[string]int
	usersByEmail map[string]domain.User
	failWith     error
}

func New() *Store {
	return &Store{
		products:     make(map[string]map[string]domain.Product),
		services:     make(map[string]map[string]domain.Service),
		transactions: make(map[string][]domain.Transaction),
		txIndex:      make(map[string]int),
		usersByEmail: make(map[string]domain.User),
	}
}

// NewSeeded returns a store with a demo account owning a starter catalog.
// The demo password comes from SEED_DEMO_PASSWORD.
func NewSeeded(logger *zap.Logger) (*Store, error) {
	s := New()
	if logger == nil {
		logger = zap.NewNop()
	}

	password := os.Getenv("SEED_DEMO_PASSWORD")
	if password == "" {
		password = "demo123"
		logger.Warn("using default demo credentials, set SEED_DEMO_PASSWORD to override", zap.String("email", DemoEmail))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}

	demo := domain.User{
		ID:           xid.New("user"),
		Email:        DemoEmail,
		FullName:     "Demo Cashier",
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	s.usersByEmail[demo.Email] = demo

	for _, p := range seedProducts() {
		p.ID = xid.New("prod")
		s.ownerProducts(demo.ID)[p.ID] = p
	}
	for _, svc := range []domain.Service{
		{Name: "Phone Screen Repair", Description: "Labour only, parts billed separately"},
		{Name: "Gift Wrapping"},
		{Name: "Alterations", Description: "Hemming and fitting"},
	} {
		svc.ID = xid.New("svc")
		s.ownerServices(demo.ID)[svc.ID] = svc
	}
	return s, nil
}

func seedProducts() []domain.Product {
	return []domain.Product{
		{Name: `MacBook Pro 14"`, SKU: "ELEC-001", CostCents: 150000, PriceCents: 199900, Stock: 15, Category: domain.CategoryElectronics},
		{Name: "iPhone 15 Pro", SKU: "ELEC-002", CostCents: 80000, PriceCents: 99900, Stock: 25, Category: domain.CategoryElectronics},
		{Name: "Sony WH-1000XM5", SKU: "ELEC-003", CostCents: 25000, PriceCents: 34800, Stock: 40, Category: domain.CategoryElectronics},
		{Name: "iPad Air 5", SKU: "ELEC-004", CostCents: 50000, PriceCents: 59900, Stock: 20, Category: domain.CategoryElectronics},
		{Name: "Cotton T-Shirt", SKU: "CLTH-001", CostCents: 1000, PriceCents: 2500, Stock: 100, Category: domain.CategoryClothing},
		{Name: "Slim Fit Jeans", SKU: "CLTH-002", CostCents: 1500, PriceCents: 6500, Stock: 50, Category: domain.CategoryClothing},
		{Name: "Running Sneakers", SKU: "CLTH-004", CostCents: 4000, PriceCents: 12000, Stock: 45, Category: domain.CategoryClothing},
		{Name: "Artisan Coffee", SKU: "FOOD-001", CostCents: 200, PriceCents: 450, Stock: 200, Category: domain.CategoryFood},
		{Name: "Club Sandwich", SKU: "FOOD-002", CostCents: 500, PriceCents: 1200, Stock: 50, Category: domain.CategoryFood},
		{Name: "Protein Bar", SKU: "FOOD-005", CostCents: 150, PriceCents: 300, Stock: 150, Category: domain.CategoryFood},
	}
}

// FailWith makes every call return err until it is called again with nil.
// Dev servers and tests use it to simulate an unreachable remote.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *Store) ListProducts(_ context.Context, ownerID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	products := make([]domain.Product, 0, len(s.products[ownerID]))
	for _, p := range s.products[ownerID] {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, ownerID string, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	if product.ID == "" || product.Name == "" || product.SKU == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalid
	}
	owned := s.ownerProducts(ownerID)
	if _, exists := owned[product.ID]; exists {
		return nil, store.ErrConflict
	}
	for _, existing := range owned {
		if existing.SKU == product.SKU {
			return nil, store.ErrConflict
		}
	}
	owned[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, ownerID string, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	owned := s.ownerProducts(ownerID)
	if _, exists := owned[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	for id, existing := range owned {
		if id != product.ID && existing.SKU == product.SKU {
			return nil, store.ErrConflict
		}
	}
	owned[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, ownerID string, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	owned := s.ownerProducts(ownerID)
	if _, exists := owned[productID]; !exists {
		return store.ErrNotFound
	}
	delete(owned, productID)
	return nil
}

func (s *Store) ListServices(_ context.Context, ownerID string) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	services := make([]domain.Service, 0, len(s.services[ownerID]))
	for _, svc := range s.services[ownerID] {
		services = append(services, svc)
	}
	slices.SortFunc(services, func(a, b domain.Service) int {
		return strings.Compare(a.Name, b.Name)
	})
	return services, nil
}

func (s *Store) CreateService(_ context.Context, ownerID string, service domain.Service) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	if service.ID == "" || service.Name == "" {
		return nil, store.ErrInvalid
	}
	owned := s.ownerServices(ownerID)
	if _, exists := owned[service.ID]; exists {
		return nil, store.ErrConflict
	}
	owned[service.ID] = service
	created := service
	return &created, nil
}

func (s *Store) UpdateService(_ context.Context, ownerID string, service domain.Service) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	owned := s.ownerServices(ownerID)
	if _, exists := owned[service.ID]; !exists {
		return nil, store.ErrNotFound
	}
	owned[service.ID] = service
	updated := service
	return &updated, nil
}

func (s *Store) DeleteService(_ context.Context, ownerID string, serviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	owned := s.ownerServices(ownerID)
	if _, exists := owned[serviceID]; !exists {
		return store.ErrNotFound
	}
	delete(owned, serviceID)
	return nil
}

func (s *Store) InsertTransaction(_ context.Context, ownerID string, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	if tx.ID == "" || len(tx.Items) == 0 {
		return nil, store.ErrInvalid
	}
	key := txKey(ownerID, tx.ID)
	if idx, exists := s.txIndex[key]; exists {
		existing := s.transactions[ownerID][idx].Clone()
		if !existing.SameSale(tx) {
			return nil, store.ErrConflict
		}
		return &existing, nil
	}

	stored := tx.Clone()
	stored.OwnerID = ownerID
	s.transactions[ownerID] = append(s.transactions[ownerID], stored)
	s.txIndex[key] = len(s.transactions[ownerID]) - 1
	s.deductStock(ownerID, stored)

	created := stored.Clone()
	return &created, nil
}

// ListTransactions returns the owner's sales of the given type, newest first.
func (s *Store) ListTransactions(_ context.Context, ownerID string, txType domain.TransactionType) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	out := make([]domain.Transaction, 0, len(s.transactions[ownerID]))
	for _, tx := range s.transactions[ownerID] {
		if tx.Type != txType {
			continue
		}
		out = append(out, tx.Clone())
	}
	slices.SortStableFunc(out, func(a, b domain.Transaction) int {
		return b.Date.Compare(a.Date)
	})
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalid
	}
	if _, exists := s.usersByEmail[email]; exists {
		return nil, store.ErrConflict
	}
	user.Email = email
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByEmail[email] = user
	created := user
	return &created, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	user, exists := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failWith
}

func (s *Store) ownerProducts(ownerID string) map[string]domain.Product {
	owned, ok := s.products[ownerID]
	if !ok {
		owned = make(map[string]domain.Product)
		s.products[ownerID] = owned
	}
	return owned
}

func (s *Store) ownerServices(ownerID string) map[string]domain.Service {
	owned, ok := s.services[ownerID]
	if !ok {
		owned = make(map[string]domain.Service)
		s.services[ownerID] = owned
	}
	return owned
}

// deductStock lowers remote stock for the product lines of a newly stored
// sale, never below zero. Products deleted since the sale are skipped.
func (s *Store) deductStock(ownerID string, tx domain.Transaction) {
	if tx.Type != domain.TxTypeProduct {
		return
	}
	owned := s.ownerProducts(ownerID)
	for _, line := range tx.Items {
		if line.Kind != domain.LineKindProduct || line.Product == nil {
			continue
		}
		p, ok := owned[line.Product.ID]
		if !ok {
			continue
		}
		p.Stock = max(0, p.Stock-line.Quantity)
		owned[p.ID] = p
	}
}

func txKey(ownerID string, id string) string {
	return ownerID + "|" + id
}

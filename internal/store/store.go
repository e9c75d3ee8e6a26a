package store

import (
	"context"
	"errors"

	"nexuspos/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid record")
)

// Repository is the remote store. Every catalog and ledger record is scoped
// to the owning user.
type Repository interface {
	ListProducts(ctx context.Context, ownerID string) ([]domain.Product, error)
	CreateProduct(ctx context.Context, ownerID string, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, ownerID string, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, ownerID string, productID string) error

	ListServices(ctx context.Context, ownerID string) ([]domain.Service, error)
	CreateService(ctx context.Context, ownerID string, service domain.Service) (*domain.Service, error)
	UpdateService(ctx context.Context, ownerID string, service domain.Service) (*domain.Service, error)
	DeleteService(ctx context.Context, ownerID string, serviceID string) error

	// InsertTransaction is idempotent on (owner, id): replaying a stored sale
	// returns the existing record. A different sale under a stored id fails
	// with ErrConflict.
	InsertTransaction(ctx context.Context, ownerID string, tx domain.Transaction) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, ownerID string, txType domain.TransactionType) ([]domain.Transaction, error)

	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)

	Ping(ctx context.Context) error
}

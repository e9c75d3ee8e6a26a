// Package ledger is the till's local history of settled sales.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"nexuspos/backend/internal/cache"
	"nexuspos/backend/internal/domain"
	"nexuspos/backend/internal/logging"
)

type Remote interface {
	ListTransactions(ctx context.Context, ownerID string, txType domain.TransactionType) ([]domain.Transaction, error)
}

// Outbox lists sales still waiting for remote confirmation.
type Outbox interface {
	Pending(ctx context.Context) ([]domain.SyncQueueEntry, error)
}

// Ledger keeps product and service sales in newest-first order and mirrors
// each list to the cache.
type Ledger struct {
	mu       sync.RWMutex
	remote   Remote
	cache    cache.Store
	logger   *zap.Logger
	outbox   Outbox
	ownerID  string
	products []domain.Transaction
	services []domain.Transaction
}

func New(remote Remote, local cache.Store, logger *zap.Logger) *Ledger {
	return &Ledger{
		remote: remote,
		cache:  local,
		logger: logging.Named(logger, "ledger"),
	}
}

// UseOutbox makes Load keep queued sales that the remote store has not
// confirmed yet.
func (l *Ledger) UseOutbox(outbox Outbox) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outbox = outbox
}

// Load follows the same rules as the catalog: remote when online, cache
// otherwise or when the remote fails. Sales still queued for the owner are
// merged in either way.
func (l *Ledger) Load(ctx context.Context, ownerID string, online bool) error {
	if ownerID == "" {
		l.mu.Lock()
		l.ownerID, l.products, l.services = "", nil, nil
		l.mu.Unlock()
		return nil
	}

	if online {
		products, services, err := l.fetchRemote(ctx, ownerID)
		if err == nil {
			products, services = l.withPending(ctx, ownerID, products, services)
			l.mu.Lock()
			l.ownerID, l.products, l.services = ownerID, products, services
			l.mu.Unlock()
			l.mirror(ctx, ownerID, domain.TxTypeProduct, products)
			l.mirror(ctx, ownerID, domain.TxTypeService, services)
			return nil
		}
		l.logger.Warn("remote ledger load failed, using cache", zap.String("owner_id", ownerID), zap.Error(err))
	}

	var products, services []domain.Transaction
	if _, err := cache.GetJSON(ctx, l.cache, keyFor(ownerID, domain.TxTypeProduct), &products); err != nil {
		return fmt.Errorf("read cached transactions: %w", err)
	}
	if _, err := cache.GetJSON(ctx, l.cache, keyFor(ownerID, domain.TxTypeService), &services); err != nil {
		return fmt.Errorf("read cached service transactions: %w", err)
	}
	products, services = l.withPending(ctx, ownerID, products, services)

	l.mu.Lock()
	l.ownerID, l.products, l.services = ownerID, products, services
	l.mu.Unlock()
	return nil
}

func (l *Ledger) fetchRemote(ctx context.Context, ownerID string) ([]domain.Transaction, []domain.Transaction, error) {
	products, err := l.remote.ListTransactions(ctx, ownerID, domain.TxTypeProduct)
	if err != nil {
		return nil, nil, domain.Remote("list transactions", err)
	}
	services, err := l.remote.ListTransactions(ctx, ownerID, domain.TxTypeService)
	if err != nil {
		return nil, nil, domain.Remote("list service transactions", err)
	}
	return products, services, nil
}

// withPending adds the owner's queued sales missing from the given lists and
// restores newest-first order.
func (l *Ledger) withPending(ctx context.Context, ownerID string, products, services []domain.Transaction) ([]domain.Transaction, []domain.Transaction) {
	l.mu.RLock()
	outbox := l.outbox
	l.mu.RUnlock()
	if outbox == nil {
		return products, services
	}
	entries, err := outbox.Pending(ctx)
	if err != nil {
		l.logger.Warn("read pending sales failed", zap.String("owner_id", ownerID), zap.Error(err))
		return products, services
	}

	known := make(map[string]struct{}, len(products)+len(services))
	for _, tx := range products {
		known[tx.ID] = struct{}{}
	}
	for _, tx := range services {
		known[tx.ID] = struct{}{}
	}
	added := false
	for _, entry := range entries {
		tx := entry.Payload
		if entry.OwnerID != ownerID || tx.ID == "" {
			continue
		}
		if _, ok := known[tx.ID]; ok {
			continue
		}
		known[tx.ID] = struct{}{}
		added = true
		if tx.Type == domain.TxTypeService {
			services = append(services, tx.Clone())
		} else {
			products = append(products, tx.Clone())
		}
	}
	if added {
		newestFirst := func(a, b domain.Transaction) int { return b.Date.Compare(a.Date) }
		slices.SortStableFunc(products, newestFirst)
		slices.SortStableFunc(services, newestFirst)
	}
	return products, services
}

// Append prepends tx to its history and mirrors the list to the cache.
func (l *Ledger) Append(ctx context.Context, tx domain.Transaction) error {
	tx = tx.Clone()

	l.mu.Lock()
	var snapshot []domain.Transaction
	if tx.Type == domain.TxTypeService {
		l.services = append([]domain.Transaction{tx}, l.services...)
		snapshot = domain.CloneTransactions(l.services)
	} else {
		l.products = append([]domain.Transaction{tx}, l.products...)
		snapshot = domain.CloneTransactions(l.products)
	}
	l.mu.Unlock()

	ownerID := tx.OwnerID
	if ownerID == "" {
		return nil
	}
	if err := cache.SetJSON(ctx, l.cache, keyFor(ownerID, tx.Type), snapshot); err != nil {
		return fmt.Errorf("mirror %s history: %w", tx.Type, err)
	}
	return nil
}

func (l *Ledger) Transactions() []domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.CloneTransactions(l.products)
}

func (l *Ledger) ServiceTransactions() []domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.CloneTransactions(l.services)
}

func (l *Ledger) mirror(ctx context.Context, ownerID string, txType domain.TransactionType, txs []domain.Transaction) {
	if txs == nil {
		txs = []domain.Transaction{}
	}
	if err := cache.SetJSON(ctx, l.cache, keyFor(ownerID, txType), txs); err != nil {
		l.logger.Warn("cache history failed", zap.String("type", string(txType)), zap.Error(err))
	}
}

func keyFor(ownerID string, txType domain.TransactionType) string {
	if txType == domain.TxTypeService {
		return cache.OwnerKey(cache.KeyServiceTransactions, ownerID)
	}
	return cache.OwnerKey(cache.KeyTransactions, ownerID)
}

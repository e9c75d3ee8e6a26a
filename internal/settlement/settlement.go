// Package settlement turns the cart into an immutable Transaction and applies
// its side effects.
package settlement

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"nexuspos/backend/internal/domain"
	"nexuspos/backend/internal/events"
	"nexuspos/backend/internal/logging"
	"nexuspos/backend/internal/pricing"
	"nexuspos/backend/internal/xid"
)

// Cart runs settle against a consistent snapshot and clears itself only when
// settle succeeds.
type Cart interface {
	Checkout(settle func(lines []domain.LineItem) error) error
}

type Remote interface {
	InsertTransaction(ctx context.Context, ownerID string, tx domain.Transaction) (*domain.Transaction, error)
}

type Ledger interface {
	Append(ctx context.Context, tx domain.Transaction) error
}

type Queue interface {
	Enqueue(ctx context.Context, entry domain.SyncQueueEntry) error
}

type Stock interface {
	ApplySale(ctx context.Context, lines []domain.LineItem) error
}

type OnlineChecker interface {
	Online() bool
}

type Deps struct {
	Calculator pricing.Calculator
	IDs        *xid.Sequence
	Remote     Remote
	Ledger     Ledger
	Queue      Queue
	Stock      Stock
	Online     OnlineChecker
	Events     events.Publisher
	Logger     *zap.Logger
	Now        func() time.Time
}

type Engine struct {
	mu     sync.Mutex
	calc   pricing.Calculator
	ids    *xid.Sequence
	remote Remote
	ledger Ledger
	queue  Queue
	stock  Stock
	online OnlineChecker
	events events.Publisher
	logger *zap.Logger
	now    func() time.Time
}

func New(deps Deps) *Engine {
	e := &Engine{
		calc:   deps.Calculator,
		ids:    deps.IDs,
		remote: deps.Remote,
		ledger: deps.Ledger,
		queue:  deps.Queue,
		stock:  deps.Stock,
		online: deps.Online,
		events: deps.Events,
		logger: logging.Named(deps.Logger, "settlement"),
		now:    deps.Now,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.ids == nil {
		e.ids = xid.NewSequence(e.now)
	}
	if e.events == nil {
		e.events = events.Noop{}
	}
	return e
}

// Quote previews the totals for lines without settling them.
func (e *Engine) Quote(lines []domain.LineItem) domain.Quote {
	return e.calc.Quote(lines)
}

// Settle validates the cart and payment, then records the sale. Nothing is
// changed when validation fails. Once the Transaction exists every later
// step is best-effort: the sale is always returned, remote failures are
// logged and the sync queue carries the sale to the remote store later.
func (e *Engine) Settle(ctx context.Context, cart Cart, method domain.PaymentMethod, amountPaidCents int64, ownerID string) (domain.Transaction, error) {
	if ownerID == "" {
		return domain.Transaction{}, domain.ErrNoIdentity
	}

	var tx domain.Transaction
	err := cart.Checkout(func(lines []domain.LineItem) error {
		settled, err := e.record(ctx, lines, method, amountPaidCents, ownerID)
		tx = settled
		return err
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	log := e.logger.With(zap.String("transaction_id", tx.ID), zap.String("owner_id", ownerID))
	if err := e.events.PublishSale(ctx, tx); err != nil {
		log.Warn("publish sale event failed", zap.Error(err))
	}

	log.Info("sale settled",
		zap.String("type", string(tx.Type)),
		zap.Int64("total_cents", tx.TotalCents),
		zap.String("payment_method", string(method)),
	)
	return tx.Clone(), nil
}

// record validates lines and payment, builds the Transaction and applies the
// persistence side effects. The cart is cleared by the caller on success.
func (e *Engine) record(ctx context.Context, lines []domain.LineItem, method domain.PaymentMethod, amountPaidCents int64, ownerID string) (domain.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	txType, err := saleType(lines)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !method.Valid() {
		return domain.Transaction{}, domain.Invalid("payment_method", "unknown payment method")
	}
	if amountPaidCents < 0 {
		return domain.Transaction{}, domain.Invalid("amount_paid_cents", "must not be negative")
	}

	quote := e.calc.Quote(lines)
	change := int64(0)
	if method == domain.PaymentCash {
		if amountPaidCents < quote.TotalCents {
			return domain.Transaction{}, domain.ErrInsufficientPayment
		}
		change = pricing.Change(amountPaidCents, quote.TotalCents)
	} else {
		amountPaidCents = quote.TotalCents
	}

	prefix := xid.PrefixProductSale
	if txType == domain.TxTypeService {
		prefix = xid.PrefixServiceSale
	}
	tx := domain.Transaction{
		ID:              e.ids.Next(prefix),
		Type:            txType,
		OwnerID:         ownerID,
		Items:           lines,
		SubtotalCents:   quote.SubtotalCents,
		TaxRatePercent:  quote.TaxRatePercent,
		TaxCents:        quote.TaxCents,
		TotalCents:      quote.TotalCents,
		PaymentMethod:   method,
		AmountPaidCents: amountPaidCents,
		ChangeCents:     change,
		Date:            e.now().UTC(),
	}
	log := e.logger.With(zap.String("transaction_id", tx.ID), zap.String("owner_id", ownerID))

	if e.online != nil && e.online.Online() && e.remote != nil {
		if _, err := e.remote.InsertTransaction(ctx, ownerID, tx); err != nil {
			log.Warn("remote insert failed, sale stays queued", zap.Error(domain.Remote("insert transaction", err)))
		}
	}

	if err := e.ledger.Append(ctx, tx); err != nil {
		log.Warn("ledger append failed", zap.Error(err))
	}

	entry := domain.SyncQueueEntry{
		Kind:       domain.SyncKindFor(txType),
		Payload:    tx,
		OwnerID:    ownerID,
		EnqueuedAt: tx.Date,
	}
	if err := e.queue.Enqueue(ctx, entry); err != nil {
		log.Error("enqueue sale failed", zap.Error(err))
	}

	if txType == domain.TxTypeProduct && e.stock != nil {
		if err := e.stock.ApplySale(ctx, lines); err != nil {
			log.Warn("stock decrement failed", zap.Error(err))
		}
	}
	return tx, nil
}

func saleType(lines []domain.LineItem) (domain.TransactionType, error) {
	if len(lines) == 0 {
		return "", domain.ErrEmptyCart
	}
	kind := lines[0].Kind
	for _, line := range lines[1:] {
		if line.Kind != kind {
			return "", domain.ErrMixedCart
		}
	}
	if kind == domain.LineKindService {
		return domain.TxTypeService, nil
	}
	return domain.TxTypeProduct, nil
}

// Package service holds the till's application state and exposes the
// operations the HTTP layer serves.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexuspos/backend/internal/cache"
	"nexuspos/backend/internal/cart"
	"nexuspos/backend/internal/catalog"
	"nexuspos/backend/internal/connectivity"
	"nexuspos/backend/internal/domain"
	"nexuspos/backend/internal/events"
	"nexuspos/backend/internal/identity"
	"nexuspos/backend/internal/ledger"
	"nexuspos/backend/internal/logging"
	"nexuspos/backend/internal/pricing"
	"nexuspos/backend/internal/report"
	"nexuspos/backend/internal/settlement"
	"nexuspos/backend/internal/store"
	"nexuspos/backend/internal/syncqueue"
	"nexuspos/backend/internal/xid"
)

type Options struct {
	Repo            store.Repository
	Cache           cache.Store
	Events          events.Publisher
	AuthSecret      string
	SessionTTL      time.Duration
	TaxRatePercent  float64
	Location        *time.Location
	InitiallyOnline bool
	Logger          *zap.Logger
	Now             func() time.Time
}

type Service struct {
	repo     store.Repository
	identity *identity.Provider
	catalog  *catalog.Store
	ledger   *ledger.Ledger
	cart     *cart.Cart
	queue    *syncqueue.Queue
	monitor  *connectivity.Monitor
	engine   *settlement.Engine
	calc     pricing.Calculator
	events   events.Publisher
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

func New(opts Options) (*Service, error) {
	if opts.Repo == nil {
		return nil, errors.New("service: repository is required")
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryStore()
	}
	if opts.Events == nil {
		opts.Events = events.Noop{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := logging.Named(opts.Logger, "service")

	s := &Service{
		repo:    opts.Repo,
		cart:    cart.New(),
		calc:    pricing.New(opts.TaxRatePercent),
		events:  opts.Events,
		loc:     opts.Location,
		logger:  logger,
		now:     opts.Now,
		monitor: connectivity.New(opts.Repo, opts.InitiallyOnline, opts.Logger),
	}
	s.identity = identity.New(opts.AuthSecret, opts.SessionTTL, opts.Repo, opts.Cache, opts.Logger)
	s.catalog = catalog.New(opts.Repo, opts.Cache, opts.Logger)
	s.ledger = ledger.New(opts.Repo, opts.Cache, opts.Logger)
	s.queue = syncqueue.New(opts.Cache, opts.Repo, s.monitor, opts.Logger)
	s.ledger.UseOutbox(s.queue)
	s.catalog.UseOutbox(s.queue)
	s.engine = settlement.New(settlement.Deps{
		Calculator: s.calc,
		IDs:        xid.NewSequence(opts.Now),
		Remote:     opts.Repo,
		Ledger:     s.ledger,
		Queue:      s.queue,
		Stock:      s.catalog,
		Online:     s.monitor,
		Events:     opts.Events,
		Logger:     opts.Logger,
		Now:        opts.Now,
	})

	if err := s.monitor.OnOnline(s.handleOnline); err != nil {
		return nil, fmt.Errorf("subscribe online handler: %w", err)
	}
	if err := s.monitor.OnOffline(func() { s.logger.Warn("remote store unreachable, working offline") }); err != nil {
		return nil, fmt.Errorf("subscribe offline handler: %w", err)
	}
	return s, nil
}

// Restore picks up a persisted session and loads that owner's catalog and
// history. It is a no-op when nobody is signed in.
func (s *Service) Restore(ctx context.Context) error {
	user, ok := s.identity.CurrentUser(ctx)
	if !ok {
		return nil
	}
	return s.loadOwner(ctx, user.ID)
}

func (s *Service) Monitor() *connectivity.Monitor {
	return s.monitor
}

func (s *Service) Queue() *syncqueue.Queue {
	return s.queue
}

func (s *Service) Close() error {
	return s.events.Close()
}

func (s *Service) handleOnline() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if n, err := s.queue.Flush(ctx); err != nil {
		s.logger.Warn("flush on reconnect stopped", zap.Int("processed", n), zap.Error(err))
	}
	user, ok := s.identity.CurrentUser(ctx)
	if !ok {
		return
	}
	if err := s.loadOwner(ctx, user.ID); err != nil {
		s.logger.Warn("reload on reconnect failed", zap.String("owner_id", user.ID), zap.Error(err))
	}
}

func (s *Service) loadOwner(ctx context.Context, ownerID string) error {
	online := s.monitor.Online()
	if err := s.catalog.Load(ctx, ownerID, online); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if err := s.ledger.Load(ctx, ownerID, online); err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	return nil
}

// owner resolves the signed-in user, reloading owner-scoped state when the
// persisted session changed underneath us.
func (s *Service) owner(ctx context.Context) (string, error) {
	user, ok := s.identity.CurrentUser(ctx)
	if !ok {
		return "", domain.ErrNoIdentity
	}
	if s.catalog.Owner() != user.ID {
		s.cart.Clear()
		if err := s.loadOwner(ctx, user.ID); err != nil {
			return "", err
		}
	}
	return user.ID, nil
}

func (s *Service) SignUp(ctx context.Context, req domain.SignUpRequest) (domain.SessionResponse, error) {
	resp, err := s.identity.SignUp(ctx, req)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	s.cart.Clear()
	if err := s.loadOwner(ctx, resp.User.ID); err != nil {
		s.logger.Warn("load new owner failed", zap.String("owner_id", resp.User.ID), zap.Error(err))
	}
	return resp, nil
}

func (s *Service) SignIn(ctx context.Context, req domain.SignInRequest) (domain.SessionResponse, error) {
	resp, err := s.identity.SignIn(ctx, req)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	s.cart.Clear()
	if err := s.loadOwner(ctx, resp.User.ID); err != nil {
		s.logger.Warn("load owner failed", zap.String("owner_id", resp.User.ID), zap.Error(err))
	}
	return resp, nil
}

// SignOut drops the session and the owner-scoped state. Queued sales stay in
// the outbox.
func (s *Service) SignOut(ctx context.Context) error {
	if err := s.identity.SignOut(ctx); err != nil {
		return err
	}
	s.cart.Clear()
	if err := s.catalog.Load(ctx, "", false); err != nil {
		return err
	}
	return s.ledger.Load(ctx, "", false)
}

// Authenticate resolves the user behind a bearer token of the active session.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.User, error) {
	return s.identity.Authenticate(ctx, token)
}

func (s *Service) CurrentUser(ctx context.Context) (domain.User, error) {
	user, ok := s.identity.CurrentUser(ctx)
	if !ok {
		return domain.User{}, domain.ErrNoIdentity
	}
	return user, nil
}

// ListProducts filters by category first, then by a name or SKU query.
func (s *Service) ListProducts(ctx context.Context, query string, category string) ([]domain.Product, error) {
	if _, err := s.owner(ctx); err != nil {
		return nil, err
	}
	products := s.catalog.FilterByCategory(category)
	query = strings.TrimSpace(query)
	if query == "" {
		return products, nil
	}
	matches := s.catalog.Search(query)
	keep := make(map[string]bool, len(matches))
	for _, p := range matches {
		keep[p.ID] = true
	}
	out := make([]domain.Product, 0, len(matches))
	for _, p := range products {
		if keep[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := s.owner(ctx); err != nil {
		return domain.Product{}, err
	}
	return s.catalog.AddProduct(ctx, req)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := s.owner(ctx); err != nil {
		return domain.Product{}, err
	}
	return s.catalog.UpdateProduct(ctx, id, req)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.owner(ctx); err != nil {
		return err
	}
	return s.catalog.DeleteProduct(ctx, id)
}

func (s *Service) ListServices(ctx context.Context, query string) ([]domain.Service, error) {
	if _, err := s.owner(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return s.catalog.Services(), nil
	}
	return s.catalog.SearchServices(query), nil
}

func (s *Service) CreateService(ctx context.Context, req domain.ServiceCreateRequest) (domain.Service, error) {
	if _, err := s.owner(ctx); err != nil {
		return domain.Service{}, err
	}
	return s.catalog.AddService(ctx, req)
}

func (s *Service) UpdateService(ctx context.Context, id string, req domain.ServiceUpdateRequest) (domain.Service, error) {
	if _, err := s.owner(ctx); err != nil {
		return domain.Service{}, err
	}
	return s.catalog.UpdateService(ctx, id, req)
}

func (s *Service) DeleteService(ctx context.Context, id string) error {
	if _, err := s.owner(ctx); err != nil {
		return err
	}
	return s.catalog.DeleteService(ctx, id)
}

func (s *Service) Cart(ctx context.Context) (domain.CartView, error) {
	if _, err := s.owner(ctx); err != nil {
		return domain.CartView{}, err
	}
	return s.cartView(), nil
}

func (s *Service) cartView() domain.CartView {
	lines := s.cart.Lines()
	return domain.CartView{Lines: lines, Quote: s.engine.Quote(lines)}
}

func (s *Service) AddProductToCart(ctx context.Context, req domain.CartAddProductRequest) (domain.CartView, error) {
	if _, err := s.owner(ctx); err != nil {
		return domain.CartView{}, err
	}
	product, ok := s.catalog.Product(req.ProductID)
	if !ok {
		return domain.CartView{}, fmt.Errorf("product %s: %w", req.ProductID, store.ErrNotFound)
	}
	if err := s.cart.AddProduct(product); err != nil {
		return domain.CartView{}, err
	}
	return s.cartView(), nil
}

func (s *Service) AddServiceToCart(ctx context.Context, req domain.CartAddServiceRequest) (domain.CartView, error) {
	if _, err := s.owner(ctx); err != nil {
		return domain.CartView{}, err
	}
	svc, ok := s.catalog.Service(req.ServiceID)
	if !ok {
		return domain.CartView{}, fmt.Errorf("service %s: %w", req.ServiceID, store.ErrNotFound)
	}
	if err := s.cart.AddService(svc, req.AmountCents); err != nil {
		return domain.CartView{}, err
	}
	return s.cartView(), nil
}

// UpdateCartLine applies the fields present in req to the line for id.
// Quantity and price fields only apply to product lines, the amount only to
// service lines.
func (s *Service) UpdateCartLine(ctx context.Context, id string, req domain.CartLineUpdateRequest) (domain.CartView, error) {
	if _, err := s.owner(ctx); err != nil {
		return domain.CartView{}, err
	}
	line, ok := s.cart.Line(id)
	if !ok {
		return domain.CartView{}, domain.ErrLineNotFound
	}

	if line.Kind == domain.LineKindService {
		if req.Quantity != nil || req.CustomPriceCents != nil || req.ClearCustomPrice {
			return domain.CartView{}, domain.Invalid("line", "service lines only accept amount_cents")
		}
		if req.AmountCents == nil {
			return domain.CartView{}, domain.Invalid("amount_cents", "required")
		}
		if err := s.cart.UpdateServiceAmount(id, *req.AmountCents); err != nil {
			return domain.CartView{}, err
		}
		return s.cartView(), nil
	}

	if req.AmountCents != nil {
		return domain.CartView{}, domain.Invalid("amount_cents", "only applies to service lines")
	}
	switch {
	case req.ClearCustomPrice:
		if err := s.cart.UpdateCustomPrice(id, nil); err != nil {
			return domain.CartView{}, err
		}
	case req.CustomPriceCents != nil:
		if err := s.cart.UpdateCustomPrice(id, req.CustomPriceCents); err != nil {
			return domain.CartView{}, err
		}
	}
	if req.Quantity != nil {
		if err := s.cart.UpdateQuantity(id, *req.Quantity); err != nil {
			return domain.CartView{}, err
		}
	}
	return s.cartView(), nil
}

func (s *Service) RemoveCartLine(ctx context.Context, id string) (domain.CartView, error) {
	if _, err := s.owner(ctx); err != nil {
		return domain.CartView{}, err
	}
	if _, ok := s.cart.Line(id); !ok {
		return domain.CartView{}, domain.ErrLineNotFound
	}
	s.cart.Remove(id)
	return s.cartView(), nil
}

func (s *Service) ClearCart(ctx context.Context) (domain.CartView, error) {
	if _, err := s.owner(ctx); err != nil {
		return domain.CartView{}, err
	}
	s.cart.Clear()
	return s.cartView(), nil
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Transaction, error) {
	ownerID, err := s.owner(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	return s.engine.Settle(ctx, s.cart, req.PaymentMethod, req.AmountPaidCents, ownerID)
}

// Transactions lists settled sales newest first. An empty txType returns both
// kinds merged.
func (s *Service) Transactions(ctx context.Context, txType string) ([]domain.Transaction, error) {
	if _, err := s.owner(ctx); err != nil {
		return nil, err
	}
	switch domain.TransactionType(strings.ToLower(strings.TrimSpace(txType))) {
	case domain.TxTypeProduct:
		return s.ledger.Transactions(), nil
	case domain.TxTypeService:
		return s.ledger.ServiceTransactions(), nil
	case "", "all":
		all := append(s.ledger.Transactions(), s.ledger.ServiceTransactions()...)
		sort.SliceStable(all, func(i, j int) bool { return all[i].Date.After(all[j].Date) })
		return all, nil
	default:
		return nil, domain.Invalid("type", "must be product, service or all")
	}
}

// Report aggregates the owner's history over the window for kind. Custom
// reports take explicit from/to bounds.
func (s *Service) Report(ctx context.Context, kind domain.ReportKind, from string, to string) (domain.ReportSummary, error) {
	if _, err := s.owner(ctx); err != nil {
		return domain.ReportSummary{}, err
	}
	var (
		start, end time.Time
		err        error
	)
	if kind == domain.ReportCustom {
		start, end, err = report.ParseCustomRange(from, to, s.loc)
	} else {
		start, end, err = report.Range(kind, s.now(), s.loc)
	}
	if err != nil {
		return domain.ReportSummary{}, err
	}
	summary := report.Aggregate(s.ledger.Transactions(), s.ledger.ServiceTransactions(), start, end)
	summary.Kind = kind
	return summary, nil
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) SyncStatus(ctx context.Context) (domain.SyncStatus, error) {
	entries, err := s.queue.Pending(ctx)
	if err != nil {
		return domain.SyncStatus{}, err
	}
	return domain.SyncStatus{Online: s.monitor.Online(), Pending: len(entries), Entries: entries}, nil
}

// FlushSync replays the outbox now. A replay failure is reported in the
// result rather than as an error; the failed entry stays queued.
func (s *Service) FlushSync(ctx context.Context) (domain.FlushResult, error) {
	processed, flushErr := s.queue.Flush(ctx)
	remaining, err := s.queue.Len(ctx)
	if err != nil {
		return domain.FlushResult{}, err
	}
	result := domain.FlushResult{Processed: processed, Remaining: remaining}
	if flushErr != nil {
		var syncErr *domain.SyncError
		if !errors.As(flushErr, &syncErr) {
			return domain.FlushResult{}, flushErr
		}
		result.Error = syncErr.Error()
	}
	return result, nil
}

type ConnectivityStatus struct {
	Online bool `json:"online"`
}

// Connectivity probes the remote store and reports the resulting state.
func (s *Service) Connectivity(ctx context.Context) ConnectivityStatus {
	return ConnectivityStatus{Online: s.monitor.Probe(ctx)}
}

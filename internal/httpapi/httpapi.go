package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexuspos/backend/internal/domain"
	"nexuspos/backend/internal/identity"
	"nexuspos/backend/internal/logging"
	"nexuspos/backend/internal/report"
	"nexuspos/backend/internal/service"
	"nexuspos/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	allowedOrigin string
	signInLimiter *attemptLimiter
	logger        *zap.Logger
}

func New(svc *service.Service, allowedOrigin string, logger *zap.Logger) *API {
	return &API{
		service:       svc,
		allowedOrigin: allowedOrigin,
		signInLimiter: newAttemptLimiter(5, time.Minute),
		logger:        logging.Named(logger, "http"),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/signup", a.handleSignUp)
	mux.HandleFunc("/api/v1/auth/signin", a.handleSignIn)
	mux.HandleFunc("/api/v1/auth/signout", a.requireAuth(a.handleSignOut))
	mux.HandleFunc("/api/v1/auth/me", a.requireAuth(a.handleMe))

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts))
	mux.HandleFunc("/api/v1/products/{id}", a.requireAuth(a.handleProductActions))
	mux.HandleFunc("/api/v1/services", a.requireAuth(a.handleServices))
	mux.HandleFunc("/api/v1/services/{id}", a.requireAuth(a.handleServiceActions))

	mux.HandleFunc("/api/v1/cart", a.requireAuth(a.handleCart))
	mux.HandleFunc("/api/v1/cart/products", a.requireAuth(a.handleCartProducts))
	mux.HandleFunc("/api/v1/cart/services", a.requireAuth(a.handleCartServices))
	mux.HandleFunc("/api/v1/cart/lines/{id}", a.requireAuth(a.handleCartLine))
	mux.HandleFunc("/api/v1/checkout", a.requireAuth(a.handleCheckout))

	mux.HandleFunc("/api/v1/transactions", a.requireAuth(a.handleTransactions))
	mux.HandleFunc("/api/v1/reports/{kind}", a.requireAuth(a.handleReport))

	mux.HandleFunc("/api/v1/sync", a.requireAuth(a.handleSync))
	mux.HandleFunc("/api/v1/sync/flush", a.requireAuth(a.handleSyncFlush))
	mux.HandleFunc("/api/v1/connectivity", a.requireAuth(a.handleConnectivity))

	return a.withMiddleware(mux)
}

// requireAuth accepts only requests carrying the active session's token as
// a bearer credential.
func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		if _, err := a.service.Authenticate(r.Context(), token); err != nil {
			if errors.Is(err, domain.ErrNoIdentity) {
				writeError(w, http.StatusUnauthorized, errors.New("invalid or expired token"))
				return
			}
			a.fail(w, err)
			return
		}
		next(w, r)
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"online": a.service.Monitor().Online(),
		"at":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.SignUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.SignUp(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	key := clientKey(r)
	if !a.signInLimiter.Allow(key) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many sign-in attempts"))
		return
	}

	var req domain.SignInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.SignIn(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.signInLimiter.Reset(key)
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.service.SignOut(r.Context()); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	user, err := a.service.CurrentUser(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		products, err := a.service.ListProducts(r.Context(), q.Get("q"), q.Get("category"))
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	switch r.Method {
	case http.MethodPatch:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodDelete:
		if err := a.service.DeleteProduct(r.Context(), id); err != nil {
			a.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleServices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		services, err := a.service.ListServices(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"services": services})
	case http.MethodPost:
		var req domain.ServiceCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		svc, err := a.service.CreateService(r.Context(), req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"service": svc})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleServiceActions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	switch r.Method {
	case http.MethodPatch:
		var req domain.ServiceUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		svc, err := a.service.UpdateService(r.Context(), id, req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"service": svc})
	case http.MethodDelete:
		if err := a.service.DeleteService(r.Context(), id); err != nil {
			a.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	var (
		view domain.CartView
		err  error
	)
	switch r.Method {
	case http.MethodGet:
		view, err = a.service.Cart(r.Context())
	case http.MethodDelete:
		view, err = a.service.ClearCart(r.Context())
	default:
		writeMethodNotAllowed(w)
		return
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": view})
}

func (a *API) handleCartProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.CartAddProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.AddProductToCart(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": view})
}

func (a *API) handleCartServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.CartAddServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.AddServiceToCart(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": view})
}

func (a *API) handleCartLine(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	var (
		view domain.CartView
		err  error
	)
	switch r.Method {
	case http.MethodPatch:
		var req domain.CartLineUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err = a.service.UpdateCartLine(r.Context(), id, req)
	case http.MethodDelete:
		view, err = a.service.RemoveCartLine(r.Context(), id)
	default:
		writeMethodNotAllowed(w)
		return
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": view})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tx, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	txs, err := a.service.Transactions(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	kind := domain.ReportKind(strings.ToLower(r.PathValue("kind")))
	switch kind {
	case domain.ReportDaily, domain.ReportWeekly, domain.ReportYearly, domain.ReportCustom:
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown report %q", kind))
		return
	}

	q := r.URL.Query()
	format := strings.ToLower(strings.TrimSpace(q.Get("format")))
	summary, err := a.service.Report(r.Context(), kind, q.Get("from"), q.Get("to"))
	if err != nil {
		a.fail(w, err)
		return
	}

	loc := a.service.Location()
	name := report.Filename(kind, time.Now().In(loc))
	var (
		buf         bytes.Buffer
		contentType string
	)
	switch format {
	case "", "json":
		writeJSON(w, http.StatusOK, summary)
		return
	case "csv":
		contentType = "text/csv; charset=utf-8"
		name += ".csv"
		err = report.WriteCSV(&buf, summary)
	case "xlsx":
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		name += ".xlsx"
		err = report.WriteXLSX(&buf, summary)
	case "html":
		layout := report.DefaultLayout
		layout.TimeLocation = loc
		contentType = "text/html; charset=utf-8"
		err = report.RenderHTML(&buf, summary, layout)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported format %q", format))
		return
	}
	if err != nil {
		a.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if format != "html" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	status, err := a.service.SyncStatus(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleSyncFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	result, err := a.service.FlushSync(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.service.Connectivity(r.Context()))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if hasBody(r) && !isJSON(r.Header.Get("Content-Type")) {
			writeError(w, http.StatusUnsupportedMediaType, errors.New("content type must be application/json"))
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(startedAt)),
		)
	})
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNoIdentity), errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case domain.IsRemote(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		a.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, err)
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPatch, http.MethodPut:
		return r.ContentLength != 0
	}
	return false
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the message of 500s; 502s name the failing remote
// operation only.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	switch {
	case status == http.StatusBadGateway:
		msg = "remote store unavailable"
		var rerr *domain.RemoteError
		if errors.As(err, &rerr) {
			msg = fmt.Sprintf("remote store unavailable: %s", rerr.Op)
		}
	case status >= 500:
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

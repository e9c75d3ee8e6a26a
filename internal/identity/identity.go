// Package identity signs the till operator in and out. The active session is
// a signed token kept in the local cache, so it survives restarts and can be
// checked without reaching the remote store.
package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/mail"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"nexuspos/backend/internal/cache"
	"nexuspos/backend/internal/domain"
	"nexuspos/backend/internal/logging"
	"nexuspos/backend/internal/store"
	"nexuspos/backend/internal/xid"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const minPasswordLength = 6

type UserStore interface {
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

type Provider struct {
	secret []byte
	ttl    time.Duration
	users  UserStore
	cache  cache.Store
	logger *zap.Logger
	now    func() time.Time
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

type persistedSession struct {
	Token string `json:"token"`
}

func New(secret string, ttl time.Duration, users UserStore, local cache.Store, logger *zap.Logger) *Provider {
	if secret == "" {
		secret = "dev-change-me"
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Provider{
		secret: []byte(secret),
		ttl:    ttl,
		users:  users,
		cache:  local,
		logger: logging.Named(logger, "identity"),
		now:    time.Now,
	}
}

func (p *Provider) SignUp(ctx context.Context, req domain.SignUpRequest) (domain.SessionResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	if len(req.Password) < minPasswordLength {
		return domain.SessionResponse{}, domain.Invalid("password", "must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.SessionResponse{}, err
	}

	user, err := p.users.CreateUser(ctx, domain.User{
		ID:           xid.New("user"),
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		PasswordHash: string(hash),
		CreatedAt:    p.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.SessionResponse{}, domain.Invalid("email", "already registered")
		}
		return domain.SessionResponse{}, domain.Remote("sign up", err)
	}

	p.logger.Info("user signed up", zap.String("user_id", user.ID))
	return p.startSession(ctx, *user)
}

func (p *Provider) SignIn(ctx context.Context, req domain.SignInRequest) (domain.SessionResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return domain.SessionResponse{}, ErrInvalidCredentials
	}

	user, err := p.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SessionResponse{}, ErrInvalidCredentials
		}
		return domain.SessionResponse{}, domain.Remote("sign in", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return domain.SessionResponse{}, ErrInvalidCredentials
	}
	return p.startSession(ctx, *user)
}

func (p *Provider) SignOut(ctx context.Context) error {
	return p.cache.Delete(ctx, cache.KeySession)
}

// CurrentUser returns the operator of the persisted session. A missing,
// invalid or expired token means nobody is signed in.
func (p *Provider) CurrentUser(ctx context.Context) (domain.User, bool) {
	var session persistedSession
	ok, err := cache.GetJSON(ctx, p.cache, cache.KeySession, &session)
	if err != nil {
		p.logger.Warn("read session failed", zap.Error(err))
		return domain.User{}, false
	}
	if !ok || session.Token == "" {
		return domain.User{}, false
	}

	user, err := p.parse(session.Token)
	if err != nil {
		p.logger.Debug("session rejected", zap.Error(err))
		return domain.User{}, false
	}
	return user, true
}

// Authenticate checks a bearer token presented with a request. Only the
// token of the active session is accepted, so signing out or signing in
// again revokes earlier tokens.
func (p *Provider) Authenticate(ctx context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, domain.ErrNoIdentity
	}
	var session persistedSession
	ok, err := cache.GetJSON(ctx, p.cache, cache.KeySession, &session)
	if err != nil {
		return domain.User{}, err
	}
	if !ok || subtle.ConstantTimeCompare([]byte(session.Token), []byte(token)) != 1 {
		return domain.User{}, domain.ErrNoIdentity
	}
	user, err := p.parse(token)
	if err != nil {
		p.logger.Debug("bearer token rejected", zap.Error(err))
		return domain.User{}, domain.ErrNoIdentity
	}
	return user, nil
}

func (p *Provider) startSession(ctx context.Context, user domain.User) (domain.SessionResponse, error) {
	expiresAt := p.now().UTC().Add(p.ttl)
	token, err := p.sign(user, expiresAt)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	if err := cache.SetJSON(ctx, p.cache, cache.KeySession, persistedSession{Token: token}); err != nil {
		return domain.SessionResponse{}, err
	}

	user.PasswordHash = ""
	return domain.SessionResponse{
		User:        user,
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (p *Provider) sign(user domain.User, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        xid.New(""),
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(p.now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "nexuspos",
		},
		Email:    user.Email,
		FullName: user.FullName,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

func (p *Provider) parse(tokenStr string) (domain.User, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(p.now))
	if err != nil || !token.Valid {
		return domain.User{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.User{}, errors.New("invalid token subject")
	}
	return domain.User{ID: sub, Email: claims.Email, FullName: claims.FullName}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", domain.Invalid("email", "required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", domain.Invalid("email", "invalid address")
	}
	return email, nil
}

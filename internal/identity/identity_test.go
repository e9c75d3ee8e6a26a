package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"nexuspos/backend/internal/cache"
	"nexuspos/backend/internal/domain"
	"nexuspos/backend/internal/store/memory"
)

func newTestProvider() (*Provider, *memory.Store, *cache.MemoryStore) {
	users := memory.New()
	local := cache.NewMemoryStore()
	return New("test-secret-test-secret-test-secret", time.Hour, users, local, nil), users, local
}

func TestSignUpStartsSession(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestProvider()

	resp, err := p.SignUp(ctx, domain.SignUpRequest{Email: " Owner@Shop.test ", Password: "secret1", FullName: "Shop Owner"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if resp.User.Email != "owner@shop.test" || resp.User.PasswordHash != "" {
		t.Fatalf("unexpected session user %+v", resp.User)
	}

	current, ok := p.CurrentUser(ctx)
	if !ok || current.ID != resp.User.ID || current.FullName != "Shop Owner" {
		t.Fatalf("expected current user from persisted session, got %+v ok=%v", current, ok)
	}

	if _, err := p.SignUp(ctx, domain.SignUpRequest{Email: "owner@shop.test", Password: "secret2"}); !domain.IsValidation(err) {
		t.Fatalf("expected duplicate email validation error, got %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestProvider()

	if _, err := p.SignUp(ctx, domain.SignUpRequest{Email: "not-an-email", Password: "secret1"}); !domain.IsValidation(err) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	if _, err := p.SignUp(ctx, domain.SignUpRequest{Email: "a@b.test", Password: "123"}); !domain.IsValidation(err) {
		t.Fatalf("expected short password rejection, got %v", err)
	}
}

func TestSignInAndSignOut(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestProvider()
	if _, err := p.SignUp(ctx, domain.SignUpRequest{Email: "cashier@shop.test", Password: "secret1"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, ok := p.CurrentUser(ctx); ok {
		t.Fatalf("expected no identity after sign out")
	}

	if _, err := p.SignIn(ctx, domain.SignInRequest{Email: "cashier@shop.test", Password: "wrong-pass"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := p.SignIn(ctx, domain.SignInRequest{Email: "nobody@shop.test", Password: "secret1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
	if _, err := p.SignIn(ctx, domain.SignInRequest{Email: "CASHIER@shop.test", Password: "secret1"}); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if _, ok := p.CurrentUser(ctx); !ok {
		t.Fatalf("expected identity after sign in")
	}
}

func TestExpiredSessionIsRejected(t *testing.T) {
	ctx := context.Background()
	p, _, local := newTestProvider()
	start := time.Now()
	p.now = func() time.Time { return start }

	if _, err := p.SignUp(ctx, domain.SignUpRequest{Email: "late@shop.test", Password: "secret1"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	p.now = func() time.Time { return start.Add(2 * time.Hour) }
	if _, ok := p.CurrentUser(ctx); ok {
		t.Fatalf("expected expired session to be rejected")
	}

	other := New("another-secret-another-secret-1234", time.Hour, memory.New(), local, nil)
	if _, ok := other.CurrentUser(ctx); ok {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestSignInRemoteFailure(t *testing.T) {
	ctx := context.Background()
	p, users, _ := newTestProvider()
	users.FailWith(errors.New("timeout"))

	if _, err := p.SignIn(ctx, domain.SignInRequest{Email: "a@b.test", Password: "secret1"}); !domain.IsRemote(err) {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestAuthenticateAcceptsOnlyActiveSessionToken(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestProvider()

	first, err := p.SignUp(ctx, domain.SignUpRequest{Email: "till@shop.test", Password: "secret1"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if first.AccessToken == "" {
		t.Fatalf("expected an access token")
	}
	user, err := p.Authenticate(ctx, first.AccessToken)
	if err != nil || user.ID != first.User.ID {
		t.Fatalf("expected active token to authenticate, got %+v err=%v", user, err)
	}

	second, err := p.SignIn(ctx, domain.SignInRequest{Email: "till@shop.test", Password: "secret1"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if second.AccessToken == first.AccessToken {
		t.Fatalf("expected every session to get its own token")
	}
	if _, err := p.Authenticate(ctx, first.AccessToken); !errors.Is(err, domain.ErrNoIdentity) {
		t.Fatalf("expected replaced token to be rejected, got %v", err)
	}
	if _, err := p.Authenticate(ctx, ""); !errors.Is(err, domain.ErrNoIdentity) {
		t.Fatalf("expected empty token to be rejected, got %v", err)
	}

	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := p.Authenticate(ctx, second.AccessToken); !errors.Is(err, domain.ErrNoIdentity) {
		t.Fatalf("expected token to be revoked by sign out, got %v", err)
	}
}

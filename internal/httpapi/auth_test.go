package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"messbook/backend/internal/domain"
	"messbook/backend/internal/store"
	"messbook/backend/internal/xid"
)

type userStoreStub struct {
	mu    sync.Mutex
	users map[string]domain.UserAccount
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if _, exists := s.users[user.Email]; exists {
		return nil, store.ErrDuplicateName
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	user.CreatedAt = time.Now()
	s.users[user.Email] = user
	return &user, nil
}

func (s *userStoreStub) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func TestRegisterValidation(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, "", &userStoreStub{})
	ctx := context.Background()

	cases := []domain.RegisterRequest{
		{Name: "", Email: "a@b.c", Password: "secret123"},
		{Name: "A", Email: "not-an-email", Password: "secret123"},
		{Name: "A", Email: "a@b.c", Password: "short"},
	}
	for _, req := range cases {
		if _, err := auth.Register(ctx, req); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, "", &userStoreStub{})
	ctx := context.Background()

	req := domain.RegisterRequest{Name: "A", Email: "a@b.c", Password: "secret123"}
	if _, err := auth.Register(ctx, req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := auth.Register(ctx, req); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error on duplicate email, got %v", err)
	}
}

func TestAdminCodeElevatesRole(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, "let-me-in-42", &userStoreStub{})
	ctx := context.Background()

	plain, err := auth.Register(ctx, domain.RegisterRequest{
		Name: "Plain", Email: "plain@b.c", Password: "secret123", AdminCode: "wrong",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if plain.User.Role != domain.RoleUser {
		t.Fatalf("wrong code must not elevate, got role %q", plain.User.Role)
	}

	elevated, err := auth.Register(ctx, domain.RegisterRequest{
		Name: "Chief", Email: "chief@b.c", Password: "secret123", AdminCode: "let-me-in-42",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if elevated.User.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", elevated.User.Role)
	}
}

func TestNoAdminCodeConfiguredNeverElevates(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, "", &userStoreStub{})

	resp, err := auth.Register(context.Background(), domain.RegisterRequest{
		Name: "Sneaky", Email: "sneak@b.c", Password: "secret123", AdminCode: "",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if resp.User.Role != domain.RoleUser {
		t.Fatalf("empty configured code must never elevate, got %q", resp.User.Role)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	users := &userStoreStub{}
	auth := NewAuthManager("test-secret", time.Hour, "let-me-in-42", users)
	ctx := context.Background()

	resp, err := auth.Register(ctx, domain.RegisterRequest{
		Name: "Chief", Email: "chief@b.c", Password: "secret123", AdminCode: "let-me-in-42",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Name != "Chief" || actor.Role != domain.RoleAdmin || actor.UserID == "" {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	logged, err := auth.Login(ctx, domain.LoginRequest{Email: "chief@b.c", Password: "secret123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if logged.AccessToken == "" || logged.ExpiresAt == "" {
		t.Fatalf("incomplete login response: %+v", logged)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	users := &userStoreStub{}
	issuer := NewAuthManager("secret-one", time.Hour, "", users)
	verifier := NewAuthManager("secret-two", time.Hour, "", users)

	resp, err := issuer.Register(context.Background(), domain.RegisterRequest{
		Name: "A", Email: "a@b.c", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsUnsignedAlgorithm(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, "", &userStoreStub{})

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.RegisteredClaims{Subject: "user-x"})
	raw, err := token.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	if _, err := auth.ParseToken(raw); err == nil {
		t.Fatalf("expected alg=none token to be rejected")
	}
}

func TestLoginWrongPasswordIsGeneric(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, "", &userStoreStub{})
	ctx := context.Background()

	if _, err := auth.Register(ctx, domain.RegisterRequest{Name: "A", Email: "a@b.c", Password: "secret123"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, wrongPass := auth.Login(ctx, domain.LoginRequest{Email: "a@b.c", Password: "nope12"})
	_, unknownUser := auth.Login(ctx, domain.LoginRequest{Email: "ghost@b.c", Password: "nope12"})
	if wrongPass == nil || unknownUser == nil {
		t.Fatalf("expected both logins to fail")
	}
	if wrongPass.Error() != unknownUser.Error() {
		t.Fatalf("login errors must not reveal which part failed: %q vs %q", wrongPass, unknownUser)
	}
}

func TestAttemptLimiter(t *testing.T) {
	limiter := newAttemptLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("attempt %d should be allowed", i)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("fourth attempt within the window should be blocked")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatalf("other clients must not be affected")
	}
}

package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"messbook/backend/internal/domain"
	"messbook/backend/internal/store"
)

// AuthManager is the identity collaborator: it turns credentials into signed
// tokens and tokens back into a verified domain.Actor. The core components
// never see anything but the Actor.
type AuthManager struct {
	secret          []byte
	tokenTTL        time.Duration
	adminSignupCode string
	users           UserStore
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Name string `json:"name"`
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, adminSignupCode string, users UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	return &AuthManager{
		secret:          []byte(secret),
		tokenTTL:        tokenTTL,
		adminSignupCode: strings.TrimSpace(adminSignupCode),
		users:           users,
	}
}

// Register creates an account. A matching admin signup code elevates the new
// account to the admin role; otherwise it is a plain user.
func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (domain.LoginResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || !strings.Contains(req.Email, "@") {
		return domain.LoginResponse{}, fmt.Errorf("%w: name and a valid email are required", store.ErrValidation)
	}
	if len(req.Password) < 6 {
		return domain.LoginResponse{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrValidation)
	}

	role := domain.RoleUser
	if a.adminSignupCode != "" && subtle.ConstantTimeCompare([]byte(req.AdminCode), []byte(a.adminSignupCode)) == 1 {
		role = domain.RoleAdmin
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := a.users.CreateUser(ctx, domain.UserAccount{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			return domain.LoginResponse{}, fmt.Errorf("%w: email already registered", store.ErrValidation)
		}
		return domain.LoginResponse{}, err
	}

	return a.issueToken(*user)
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := a.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, errors.New("invalid credentials")
		}
		return domain.LoginResponse{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	return a.issueToken(*user)
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &accessClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{UserID: sub, Name: claims.Name, Role: claims.Role}, nil
}

func (a *AuthManager) issueToken(user domain.UserAccount) (domain.LoginResponse, error) {
	expiresAt := time.Now().Add(a.tokenTTL)
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "messbook",
		},
		Name: user.Name,
		Role: user.Role,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		User: domain.UserProfile{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
			Role:  user.Role,
		},
		ExpiresAt: expiresAt.Format(time.RFC3339),
	}, nil
}

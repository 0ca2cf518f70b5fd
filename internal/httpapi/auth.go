package httpapi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"pdvlite/backend/internal/domain"
)

const (
	tokenIssuer = "pdvlite"

	// accountStoreTimeout bounds the user-store calls the AuthManager makes
	// outside a request context (startup bootstrap, pre-login refresh).
	accountStoreTimeout = 3 * time.Second
)

// UserStore is the slice of the repository the AuthManager needs: durable
// operator accounts plus the ability to persist password upgrades.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager issues and validates operator access tokens and guards the
// manager PIN that releases high-value drawer withdrawals. Accounts live in
// the user store; an in-memory cache fronts it for credential checks.
type AuthManager struct {
	mu       sync.RWMutex
	secret   []byte
	tokenTTL time.Duration
	pinHash  string
	store    UserStore
	accounts map[string]operatorAccount
}

type operatorAccount struct {
	passwordHash string
	role         string
	active       bool
	createdAt    time.Time
}

// operatorClaims puts the register role next to the registered JWT claims so
// requireAuth can gate admin-only routes without a store lookup.
type operatorClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, managerPIN string, store UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	// The PIN is never held in clear. An empty PIN hashes the sentinel, which
	// no operator input can match, so the gate stays shut until configured.
	pin := strings.TrimSpace(managerPIN)
	if pin == "" {
		pin = "disabled"
	}
	pinHash := pin
	if hashed, err := hashSecret(pin); err == nil {
		pinHash = hashed
	}

	a := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		pinHash:  pinHash,
		store:    store,
		accounts: make(map[string]operatorAccount),
	}
	a.refreshAccounts()
	return a
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	// Refresh on every login so accounts created outside this process (or by
	// another instance) can sign in without a restart.
	a.refreshAccounts()

	username := strings.ToLower(strings.TrimSpace(req.Username))
	a.mu.RLock()
	account, ok := a.accounts[username]
	a.mu.RUnlock()

	if !ok || !passwordMatches(account.passwordHash, req.Password) {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if !account.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.issueToken(username, account.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Username:    username,
		Role:        account.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) issueToken(username string, role string, expiresAt time.Time) (string, error) {
	claims := operatorClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			Issuer:    tokenIssuer,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	claims := &operatorClaims{}
	token, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	if claims.Subject == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

// ValidateManagerPIN checks an operator-supplied PIN against the configured
// manager PIN hash.
func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	input := strings.TrimSpace(pin)
	if input == "" || !isBcryptHash(a.pinHash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.pinHash), []byte(input)) == nil
}

func (a *AuthManager) CreateCashier(req domain.CashierCreateRequest) (domain.CashierUser, error) {
	a.refreshAccounts()

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.CashierUser{}, fmt.Errorf("username must be at least 4 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.CashierUser{}, fmt.Errorf("username must not contain spaces")
	}
	if strings.TrimSpace(req.Password) == "" || len(req.Password) < 6 {
		return domain.CashierUser{}, fmt.Errorf("password must be at least 6 characters")
	}

	a.mu.RLock()
	_, exists := a.accounts[username]
	a.mu.RUnlock()
	if exists {
		return domain.CashierUser{}, fmt.Errorf("username already exists")
	}

	passwordHash, err := hashSecret(req.Password)
	if err != nil {
		return domain.CashierUser{}, fmt.Errorf("failed to hash password")
	}
	now := time.Now().UTC()

	if a.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), accountStoreTimeout)
		defer cancel()
		if err := a.store.CreateUser(ctx, domain.UserAccount{
			Username:  username,
			Password:  passwordHash,
			Role:      domain.RoleCashier,
			Active:    true,
			CreatedAt: now,
		}); err != nil {
			return domain.CashierUser{}, err
		}
	}

	a.mu.Lock()
	a.accounts[username] = operatorAccount{
		passwordHash: passwordHash,
		role:         domain.RoleCashier,
		active:       true,
		createdAt:    now,
	}
	a.mu.Unlock()

	return domain.CashierUser{
		Username:  username,
		Role:      domain.RoleCashier,
		Active:    true,
		CreatedAt: now,
	}, nil
}

func (a *AuthManager) ListCashiers() []domain.CashierUser {
	a.refreshAccounts()

	a.mu.RLock()
	result := make([]domain.CashierUser, 0, len(a.accounts))
	for username, account := range a.accounts {
		if account.role != domain.RoleCashier {
			continue
		}
		result = append(result, domain.CashierUser{
			Username:  username,
			Role:      account.role,
			Active:    account.active,
			CreatedAt: account.createdAt,
		})
	}
	a.mu.RUnlock()

	slices.SortFunc(result, func(x, y domain.CashierUser) int {
		return strings.Compare(x.Username, y.Username)
	})
	return result
}

// refreshAccounts pulls operator accounts from the user store into the cache,
// upgrading legacy plain-text passwords to bcrypt hashes in place. Store
// failures leave the existing cache untouched.
func (a *AuthManager) refreshAccounts() {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), accountStoreTimeout)
	defer cancel()

	users, err := a.store.ListUsers(ctx)
	if err != nil || len(users) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		passwordHash := user.Password
		if !isBcryptHash(passwordHash) {
			if hashed, err := hashSecret(passwordHash); err == nil {
				passwordHash = hashed
				_ = a.store.UpdateUserPassword(ctx, username, hashed)
			}
		}
		a.accounts[username] = operatorAccount{
			passwordHash: passwordHash,
			role:         user.Role,
			active:       user.Active,
			createdAt:    user.CreatedAt,
		}
	}
}

func passwordMatches(storedHash string, input string) bool {
	if storedHash == "" || strings.TrimSpace(input) == "" || !isBcryptHash(storedHash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(input)) == nil
}

func hashSecret(value string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(value), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func isBcryptHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

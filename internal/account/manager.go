package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailAlreadyInUse  = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Manager struct {
	logger     *slog.Logger
	store      docstore.Store
	tokens     *TokenManager
	limiter    *RateLimiter
	bcryptCost int
	now        func() time.Time
}

func NewManager(logger *slog.Logger, store docstore.Store, tokens *TokenManager, limiter *RateLimiter, bcryptCost int) Manager {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return Manager{logger: logger, store: store, tokens: tokens, limiter: limiter, bcryptCost: bcryptCost, now: time.Now}
}

type RegisterParam struct {
	Name     string
	Email    string
	Password string
}

// Session is what a successful signup or login hands back to the client.
type Session struct {
	User      model.User
	Token     string
	ExpiresAt time.Time
}

func (m *Manager) Register(ctx context.Context, param RegisterParam) (Session, error) {
	var session Session
	email := NormalizeEmail(param.Email)

	if err := m.limiter.CheckRegister(ctx, email); err != nil {
		return session, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(param.Password), m.bcryptCost)
	if err != nil {
		return session, fmt.Errorf("failed to hash password: %w", err)
	}

	user := model.NewUser(uuid.NewString(), strings.TrimSpace(param.Name), email, string(passwordHash), m.now().UTC())

	err = m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		_, taken, err := docstore.FirstAs[model.User](ctx, tx, docstore.From(model.CollectionUsers).Where("email", docstore.OpEqual, email))
		if err != nil {
			return fmt.Errorf("failed to check if user exists: %w", err)
		}
		if taken {
			return ErrEmailAlreadyInUse
		}
		return tx.Create(ctx, model.CollectionUsers, user.ID, user)
	})
	if err != nil {
		return session, err
	}

	m.logger.Info("User registered", "user_id", user.ID)
	return m.issue(user)
}

type LoginParam struct {
	Email    string
	Password string
}

func (m *Manager) Login(ctx context.Context, param LoginParam) (Session, error) {
	var session Session
	email := NormalizeEmail(param.Email)

	if err := m.limiter.CheckLogin(ctx, email); err != nil {
		return session, err
	}

	user, found, err := docstore.FirstAs[model.User](ctx, m.store, docstore.From(model.CollectionUsers).Where("email", docstore.OpEqual, email))
	if err != nil {
		return session, fmt.Errorf("failed to get user by email: %w", err)
	}
	if !found || !user.Active() {
		return session, ErrInvalidCredentials
	}

	// Check password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(param.Password)); err != nil {
		return session, ErrInvalidCredentials
	}

	if err := m.limiter.ResetAttempts(ctx, email, "login"); err != nil {
		m.logger.Warn("Failed to reset login attempts", "error", err)
	}

	return m.issue(user)
}

// Authenticate verifies a bearer token.
func (m *Manager) Authenticate(token string) (*Claims, error) {
	return m.tokens.Parse(token)
}

func (m *Manager) issue(user model.User) (Session, error) {
	token, expiresAt, err := m.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

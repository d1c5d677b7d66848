package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/dnacommunity/backend/internal/account"
	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*account.Manager, docstore.Store) {
	t.Helper()
	store := testutil.NewStore(t)
	m := account.NewManager(testutil.Logger(), store, account.NewTokenManager("test-jwt-secret", time.Hour), account.NewRateLimiter(nil), 4)
	return &m, store
}

func TestManager_Register(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t)

	session, err := m.Register(ctx, account.RegisterParam{Name: " Ada ", Email: " Ada@Example.COM ", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "ada@example.com", session.User.Email)
	assert.Equal(t, "Ada", session.User.Name)
	assert.NotEqual(t, "secret1", session.User.PasswordHash)

	stored, err := docstore.GetAs[model.User](ctx, store, model.CollectionUsers, session.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.EngagementXP)

	claims, err := m.Authenticate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.UID)

	_, err = m.Register(ctx, account.RegisterParam{Name: "Other", Email: "ADA@example.com", Password: "secret2"})
	assert.ErrorIs(t, err, account.ErrEmailAlreadyInUse)
}

func TestManager_Login(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t)

	registered, err := m.Register(ctx, account.RegisterParam{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	disabled := testutil.CreateUser(t, store, func(u *model.User) { u.State = model.UserStateDeleted })

	tests := []struct {
		name      string
		email     string
		password  string
		expectErr error
	}{
		{name: "success", email: "ADA@example.com", password: "secret1"},
		{name: "wrong_password", email: "ada@example.com", password: "nope", expectErr: account.ErrInvalidCredentials},
		{name: "unknown_email", email: "ghost@example.com", password: "secret1", expectErr: account.ErrInvalidCredentials},
		{name: "deleted_user", email: disabled.Email, password: "password", expectErr: account.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := m.Login(ctx, account.LoginParam{Email: tt.email, Password: tt.password})
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, registered.User.ID, session.User.ID)
			assert.NotEmpty(t, session.Token)
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ada@example.com", account.NormalizeEmail("  ADA@Example.com\n"))
}

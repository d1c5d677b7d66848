package seed_test

import (
	"context"
	"testing"
	"time"

	"github.com/dnacommunity/backend/internal/account"
	"github.com/dnacommunity/backend/internal/admin"
	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/notifications"
	"github.com/dnacommunity/backend/internal/reward"
	"github.com/dnacommunity/backend/internal/seed"
	"github.com/dnacommunity/backend/internal/testutil"
	"github.com/dnacommunity/backend/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeeder_Run(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	log := testutil.Logger()

	accounts := account.NewManager(log, store, account.NewTokenManager("seed-secret", time.Hour), account.NewRateLimiter(nil), 4)
	users := user.NewManager(log, store)
	admins := admin.NewManager(log, store)
	notifier := notifications.NewManager(log, store, nil)
	rewards := reward.NewManager(log, store, &notifier, nil)
	s := seed.NewSeeder(log, &accounts, &users, &admins, &rewards)

	result, err := s.Run(ctx, seed.DefaultAccounts, seed.DefaultRewards)
	require.NoError(t, err)
	assert.Equal(t, seed.Result{UsersCreated: 4, RewardsCreated: 3}, result)

	adminUser, ok, err := docstore.FirstAs[model.User](ctx, store, docstore.From(model.CollectionUsers).Where("email", docstore.OpEqual, "admin@example.com"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, adminUser.Admin())

	host, ok, err := docstore.FirstAs[model.User](ctx, store, docstore.From(model.CollectionUsers).Where("email", docstore.OpEqual, "host@example.com"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, host.CanCreateWorkshops())

	_, err = accounts.Login(ctx, account.LoginParam{Email: "jane@example.com", Password: seed.DefaultPassword})
	require.NoError(t, err)

	again, err := s.Run(ctx, seed.DefaultAccounts, seed.DefaultRewards)
	require.NoError(t, err)
	assert.Equal(t, seed.Result{UsersSkipped: 4}, again, "a second run changes nothing")

	catalog, err := rewards.All(ctx)
	require.NoError(t, err)
	assert.Len(t, catalog, 3)
}

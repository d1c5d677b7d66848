package social_test

import (
	"context"
	"testing"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/social"
	"github.com/dnacommunity/backend/internal/testutil"
	"github.com/dnacommunity/backend/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func xpOf(t *testing.T, store docstore.Reader, id string) int {
	t.Helper()
	u, err := docstore.GetAs[model.User](context.Background(), store, model.CollectionUsers, id)
	require.NoError(t, err)
	return u.EngagementXP
}

func TestManager_FollowUnfollow(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	clock := testutil.NewClock(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	m := social.NewManager(testutil.Logger(), store)
	m.SetClock(clock.Now)

	ada := testutil.CreateUser(t, store, testutil.WithName("Ada"))
	bob := testutil.CreateUser(t, store, testutil.WithName("Bob"), testutil.WithXP(5))

	edge, err := m.Follow(ctx, ada.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FollowID(ada.ID, bob.ID), edge.ID)
	assert.Equal(t, 5+social.FollowXP, xpOf(t, store, bob.ID))
	assert.Equal(t, 0, xpOf(t, store, ada.ID))

	tests := []struct {
		name        string
		follower    string
		following   string
		expectErr   error
		unfollowing bool
	}{
		{name: "self", follower: ada.ID, following: ada.ID, expectErr: social.ErrFollowSelf},
		{name: "twice", follower: ada.ID, following: bob.ID, expectErr: social.ErrAlreadyFollowing},
		{name: "unknown_target", follower: ada.ID, following: "ghost", expectErr: user.ErrUserNotFound},
		{name: "unknown_follower", follower: "ghost", following: bob.ID, expectErr: user.ErrUserNotFound},
		{name: "unfollow_without_edge", follower: bob.ID, following: ada.ID, expectErr: social.ErrNotFollowing, unfollowing: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.unfollowing {
				assert.ErrorIs(t, m.Unfollow(ctx, tt.follower, tt.following), tt.expectErr)
				return
			}
			_, err := m.Follow(ctx, tt.follower, tt.following)
			assert.ErrorIs(t, err, tt.expectErr)
		})
	}
	assert.Equal(t, 5+social.FollowXP, xpOf(t, store, bob.ID), "failed follows change nothing")

	followers, err := m.Followers(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, ada.ID, followers[0].UID)
	assert.Equal(t, "Ada", followers[0].Name)

	following, err := m.Following(ctx, ada.ID)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, bob.ID, following[0].UID)

	require.NoError(t, m.Unfollow(ctx, ada.ID, bob.ID))
	assert.Equal(t, 5, xpOf(t, store, bob.ID))

	followers, err = m.Followers(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, followers)
}

func TestManager_UnfollowClampsXP(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	m := social.NewManager(testutil.Logger(), store)

	ada := testutil.CreateUser(t, store)
	bob := testutil.CreateUser(t, store)
	_, err := m.Follow(ctx, ada.ID, bob.ID)
	require.NoError(t, err)

	u, err := docstore.GetAs[model.User](ctx, store, model.CollectionUsers, bob.ID)
	require.NoError(t, err)
	u.EngagementXP = 3
	require.NoError(t, store.Set(ctx, model.CollectionUsers, u.ID, u))

	require.NoError(t, m.Unfollow(ctx, ada.ID, bob.ID))
	assert.Equal(t, 0, xpOf(t, store, bob.ID), "xp never goes negative")
}

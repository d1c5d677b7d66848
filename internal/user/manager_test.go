package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/social"
	"github.com/dnacommunity/backend/internal/testutil"
	"github.com/dnacommunity/backend/internal/user"
	"github.com/dnacommunity/backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onboarded(u *model.User) { u.HasCompletedOnboarding = true }

func TestManager_Profiles(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	m := user.NewManager(testutil.Logger(), store)

	top := testutil.CreateUser(t, store, onboarded, testutil.WithXP(500), func(u *model.User) { u.Profile.Skills = []string{"SQL", "Python"} })
	mid := testutil.CreateUser(t, store, onboarded, testutil.WithXP(200), testutil.AsCreator())
	testutil.CreateUser(t, store, testutil.WithXP(900))
	testutil.CreateUser(t, store, onboarded, testutil.WithXP(1000), func(u *model.User) { u.State = model.UserStateDeleted })

	tests := []struct {
		name     string
		params   user.ListProfilesParams
		expected []string
	}{
		{name: "onboarded_active_by_xp", params: user.ListProfilesParams{}, expected: []string{top.ID, mid.ID}},
		{name: "role_filter", params: user.ListProfilesParams{Role: model.RoleWorkshopCreator}, expected: []string{mid.ID}},
		{name: "skill_filter_ignores_case", params: user.ListProfilesParams{Skills: []string{"sql"}}, expected: []string{top.ID}},
		{name: "second_page", params: user.ListProfilesParams{Page: 2, Limit: 1}, expected: []string{mid.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := m.ListProfiles(ctx, tt.params)
			require.NoError(t, err)
			ids := make([]string, 0, len(page.Profiles))
			for _, p := range page.Profiles {
				ids = append(ids, p.UID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}

	t.Run("profile_with_follow_state", func(t *testing.T) {
		follows := social.NewManager(testutil.Logger(), store)
		_, err := follows.Follow(ctx, mid.ID, top.ID)
		require.NoError(t, err)

		card, err := m.Profile(ctx, top.ID, mid.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, card.FollowersCount)
		assert.Equal(t, 0, card.FollowingCount)
		require.NotNil(t, card.IsFollowing)
		assert.True(t, *card.IsFollowing)

		anonymous, err := m.Profile(ctx, top.ID, "")
		require.NoError(t, err)
		assert.Nil(t, anonymous.IsFollowing)
	})
}

func TestManager_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	m := user.NewManager(testutil.Logger(), store)
	u := testutil.CreateUser(t, store, testutil.WithName("Ada"), func(u *model.User) { u.Profile.Bio = "keep me" })

	updated, err := m.UpdateProfile(ctx, u.ID, user.ProfileInput{
		Name:   util.Some("   "),
		Skills: util.Some([]string{"R"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.Name, "blank names are ignored")
	assert.Equal(t, []string{"R"}, updated.Profile.Skills)
	assert.Equal(t, "keep me", updated.Profile.Bio)

	_, err = m.UpdateProfile(ctx, "ghost", user.ProfileInput{})
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestManager_Onboarding(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	clock := testutil.NewClock(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC))
	m := user.NewManager(testutil.Logger(), store)
	m.SetClock(clock.Now)
	u := testutil.CreateUser(t, store, testutil.WithXP(40))

	status, err := m.OnboardingStatus(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, status.HasCompletedOnboarding)

	done, err := m.CompleteOnboarding(ctx, u.ID, user.ProfileInput{Role: util.Some("analyst"), Goals: util.Some([]string{"learn dbt"})})
	require.NoError(t, err)
	assert.True(t, done.HasCompletedOnboarding)
	require.NotNil(t, done.OnboardingCompletedAt)
	assert.True(t, clock.Now().Equal(*done.OnboardingCompletedAt))
	assert.Equal(t, 40, done.EngagementXP)

	clock.Advance(time.Hour)
	again, err := m.CompleteOnboarding(ctx, u.ID, user.ProfileInput{})
	require.NoError(t, err)
	assert.True(t, done.OnboardingCompletedAt.Equal(*again.OnboardingCompletedAt), "first completion time is kept")
}

func TestManager_Delete(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	m := user.NewManager(testutil.Logger(), store)
	u := testutil.CreateUser(t, store)

	require.NoError(t, m.Delete(ctx, u.ID))
	_, err := m.Get(ctx, u.ID)
	assert.ErrorIs(t, err, user.ErrUserNotFound)
	assert.ErrorIs(t, m.Delete(ctx, u.ID), user.ErrUserNotFound)
}

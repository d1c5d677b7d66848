package admin_test

import (
	"context"
	"testing"
	"time"

	"github.com/dnacommunity/backend/internal/admin"
	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/notifications"
	"github.com/dnacommunity/backend/internal/qa"
	"github.com/dnacommunity/backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)

func createdAt(at time.Time) testutil.UserOption {
	return func(u *model.User) { u.CreatedAt = at }
}

func setup(t *testing.T) (*admin.Manager, docstore.Store) {
	t.Helper()
	store := testutil.NewStore(t)
	m := admin.NewManager(testutil.Logger(), store)
	m.SetClock(func() time.Time { return now })
	return &m, store
}

func TestManager_Admins(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t)

	boss := testutil.CreateUser(t, store, testutil.AsAdmin())
	flagOnly := testutil.CreateUser(t, store, func(u *model.User) { u.IsAdmin = true })
	member := testutil.CreateUser(t, store)

	ok, err := m.IsAdmin(ctx, boss.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.IsAdmin(ctx, member.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = m.IsAdmin(ctx, "")
	assert.ErrorIs(t, err, admin.ErrUserNotFound)

	admins, err := m.Admins(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, a := range admins {
		ids = append(ids, a.UID)
	}
	assert.ElementsMatch(t, []string{boss.ID, flagOnly.ID}, ids, "each admin is listed once")

	t.Run("grant_and_revoke", func(t *testing.T) {
		granted, err := m.SetAdmin(ctx, boss.ID, member.ID, true)
		require.NoError(t, err)
		assert.True(t, granted.IsAdmin)
		assert.Equal(t, model.RoleAdmin, granted.Role)

		revoked, err := m.SetAdmin(ctx, boss.ID, member.ID, false)
		require.NoError(t, err)
		assert.False(t, revoked.Admin())
	})

	t.Run("self_revoke_rejected", func(t *testing.T) {
		_, err := m.SetAdmin(ctx, boss.ID, boss.ID, false)
		assert.ErrorIs(t, err, admin.ErrSelfRevoke)
	})

	t.Run("unknown_user", func(t *testing.T) {
		_, err := m.SetAdmin(ctx, boss.ID, "ghost", true)
		assert.ErrorIs(t, err, admin.ErrUserNotFound)
	})
}

func TestManager_Users(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t)

	oldest := testutil.CreateUser(t, store, testutil.WithName("Ada Lovelace"), createdAt(now.Add(-3*time.Hour)))
	middle := testutil.CreateUser(t, store, testutil.AsCreator(), createdAt(now.Add(-2*time.Hour)), func(u *model.User) { u.HasCompletedOnboarding = true })
	newest := testutil.CreateUser(t, store, testutil.WithName("Grace Hopper"), createdAt(now.Add(-time.Hour)))

	done := true
	tests := []struct {
		name     string
		filter   admin.UserFilter
		expected []string
		total    int
	}{
		{name: "newest_first", filter: admin.UserFilter{}, expected: []string{newest.ID, middle.ID, oldest.ID}, total: 3},
		{name: "paged", filter: admin.UserFilter{Page: 2, Limit: 2}, expected: []string{oldest.ID}, total: 3},
		{name: "role", filter: admin.UserFilter{Role: model.RoleWorkshopCreator}, expected: []string{middle.ID}, total: 1},
		{name: "onboarding", filter: admin.UserFilter{Onboarding: &done}, expected: []string{middle.ID}, total: 1},
		{name: "search_by_name", filter: admin.UserFilter{Search: "hopper"}, expected: []string{newest.ID}, total: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := m.Users(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(page.Users))
			for _, u := range page.Users {
				ids = append(ids, u.UID)
			}
			assert.Equal(t, tt.expected, ids)
			assert.Equal(t, tt.total, page.Pagination.Total)
		})
	}

	t.Run("detail", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, model.CollectionFollowers, model.FollowID(oldest.ID, middle.ID), model.Follow{
			ID: model.FollowID(oldest.ID, middle.ID), FollowerID: oldest.ID, FollowingID: middle.ID, CreatedAt: now,
		}))
		detail, err := m.User(ctx, middle.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, detail.Counts.FollowersCount)
		assert.Equal(t, 0, detail.Counts.FollowingCount)
		assert.Empty(t, detail.RecentClaims)

		_, err = m.User(ctx, "ghost")
		assert.ErrorIs(t, err, admin.ErrUserNotFound)
	})
}

func TestManager_Activity(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t)
	ada := testutil.CreateUser(t, store, testutil.WithName("Ada"))
	bob := testutil.CreateUser(t, store, testutil.WithName("Bob"))

	clock := testutil.NewClock(now.Add(-10 * 24 * time.Hour))
	notifier := notifications.NewManager(testutil.Logger(), store, nil)
	notifier.SetClock(clock.Now)

	old, err := notifier.Notify(ctx, notifications.NotifyParam{UserID: ada.ID, Type: model.NotificationWorkshopReminder})
	require.NoError(t, err)
	clock.Set(now.Add(-time.Hour))
	system, err := notifier.Notify(ctx, notifications.NotifyParam{UserID: ada.ID, Type: model.NotificationWorkshopReminder})
	require.NoError(t, err)
	clock.Set(now.Add(-30 * time.Minute))
	answer, err := notifier.Notify(ctx, notifications.NotifyParam{UserID: ada.ID, Type: model.NotificationAnswer, FromUserID: bob.ID, FromUserName: bob.Name})
	require.NoError(t, err)
	clock.Set(now.Add(-10 * time.Minute))
	_, err = notifier.Notify(ctx, notifications.NotifyParam{UserID: bob.ID, Type: model.NotificationMention, FromUserID: ada.ID, FromUserName: ada.Name})
	require.NoError(t, err)
	_, err = notifier.MarkRead(ctx, system.ID, ada.ID)
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		page, err := m.Activity(ctx, admin.ActivityFilter{UserID: ada.ID, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Pagination.Total)
		assert.Equal(t, 2, page.Pagination.TotalPages)
		require.Len(t, page.Activities, 2)
		assert.Equal(t, answer.ID, page.Activities[0].ID)
		require.NotNil(t, page.Activities[0].FromUserDetails)
		assert.Equal(t, "Bob", page.Activities[0].FromUserDetails.Name)
		assert.Nil(t, page.Activities[1].FromUserDetails, "system senders have no card")
		assert.Nil(t, page.Activities[0].UserDetails.Profile)

		read := false
		unread, err := m.Activity(ctx, admin.ActivityFilter{Type: string(model.NotificationWorkshopReminder), Read: &read})
		require.NoError(t, err)
		require.Len(t, unread.Activities, 1)
		assert.Equal(t, old.ID, unread.Activities[0].ID)
	})

	t.Run("detail", func(t *testing.T) {
		detail, err := m.Notification(ctx, answer.ID)
		require.NoError(t, err)
		require.NotNil(t, detail.UserDetails)
		assert.NotNil(t, detail.UserDetails.Profile)

		_, err = m.Notification(ctx, "missing")
		assert.ErrorIs(t, err, admin.ErrNotificationNotFound)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := m.ActivityStats(ctx, "7d")
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Stats.Total, "older notifications fall outside the period")
		assert.Equal(t, 1, stats.Stats.Read)
		assert.Equal(t, 2, stats.Stats.Unread)
		assert.Equal(t, 1, stats.Stats.SystemNotifications)
		assert.Equal(t, map[string]int{"workshop_reminder": 1, "answer": 1, "mention": 1}, stats.Stats.ByType)
		assert.Equal(t, map[string]int{"2025-08-20": 3}, stats.Stats.ByDay)
		assert.Equal(t, admin.UserActivity{UserID: ada.ID, Count: 2}, stats.Stats.MostActiveUsers[0])

		wide, err := m.ActivityStats(ctx, "30d")
		require.NoError(t, err)
		assert.Equal(t, 4, wide.Stats.Total)
	})
}

func TestManager_Questions(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t)
	asker := testutil.CreateUser(t, store, testutil.WithName("Asker"))
	helper := testutil.CreateUser(t, store)

	clock := testutil.NewClock(now.Add(-2 * time.Hour))
	notifier := notifications.NewManager(testutil.Logger(), store, nil)
	notifier.SetClock(clock.Now)
	forum := qa.NewManager(testutil.Logger(), store, &notifier)
	forum.SetClock(clock.Now)

	first, err := forum.CreateQuestion(ctx, qa.CreateQuestionParam{AuthorID: asker.ID, Title: "Joins", Content: "left or inner", Tags: []string{"sql"}})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := forum.CreateQuestion(ctx, qa.CreateQuestionParam{AuthorID: asker.ID, Title: "Plots", Content: "matplotlib", Tags: []string{"python", "sql"}})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	a, err := forum.CreateAnswer(ctx, qa.CreateAnswerParam{AuthorID: helper.ID, QuestionID: first.ID, Content: "inner"})
	require.NoError(t, err)
	require.NoError(t, forum.AcceptAnswer(ctx, asker.ID, first.ID, a.ID))

	t.Run("list", func(t *testing.T) {
		page, err := m.Questions(ctx, admin.QuestionFilter{})
		require.NoError(t, err)
		require.Len(t, page.Questions, 2)
		assert.Equal(t, second.ID, page.Questions[0].ID)
		require.NotNil(t, page.Questions[0].UserDetails)
		assert.Equal(t, "Asker", page.Questions[0].UserDetails.Name)

		resolved := true
		page, err = m.Questions(ctx, admin.QuestionFilter{Resolved: &resolved})
		require.NoError(t, err)
		require.Len(t, page.Questions, 1)
		assert.Equal(t, first.ID, page.Questions[0].ID)

		page, err = m.Questions(ctx, admin.QuestionFilter{Search: "matplotlib"})
		require.NoError(t, err)
		require.Len(t, page.Questions, 1)
		assert.Equal(t, second.ID, page.Questions[0].ID)
	})

	t.Run("detail", func(t *testing.T) {
		detail, err := m.Question(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, detail.Answers, 1)
		assert.Equal(t, a.ID, detail.Answers[0].ID)
		assert.NotNil(t, detail.Answers[0].UserDetails)
	})

	t.Run("stats", func(t *testing.T) {
		report, err := m.QuestionStats(ctx, "")
		require.NoError(t, err)
		s := report.Stats
		assert.Equal(t, 2, s.TotalQuestions)
		assert.Equal(t, 1, s.TotalAnswers)
		assert.Equal(t, 1, s.AnsweredQuestions)
		assert.Equal(t, 1, s.UnansweredQuestions)
		assert.Equal(t, map[string]int{"open": 1, "resolved": 1}, s.QuestionsByStatus)
		assert.InDelta(t, 0.5, s.AverageAnswersPerQuestion, 0.001)
		assert.Equal(t, []admin.TagCount{{Tag: "sql", Count: 2}, {Tag: "python", Count: 1}}, s.TopTags)
		assert.Equal(t, []admin.AskerActivity{{AuthorID: asker.ID, AuthorName: "Asker", QuestionCount: 2}}, s.MostActiveAskers)
	})

	t.Run("delete_cascades", func(t *testing.T) {
		result, err := m.DeleteQuestion(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "Joins", result.QuestionTitle)
		assert.Equal(t, 1, result.DeletedAnswers)
		assert.Equal(t, 1, result.DeletedNotifications, "the answer notification points at the question")

		exists, err := docstore.Exists(ctx, store, model.CollectionAnswers, a.ID)
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = m.DeleteQuestion(ctx, first.ID)
		assert.ErrorIs(t, err, admin.ErrQuestionNotFound)
	})
}

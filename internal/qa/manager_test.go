package qa_test

import (
	"context"
	"testing"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/notifications"
	"github.com/dnacommunity/backend/internal/qa"
	"github.com/dnacommunity/backend/internal/testutil"
	"github.com/dnacommunity/backend/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	manager *qa.Manager
	store   docstore.Store
	clock   *testutil.Clock
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := testutil.NewStore(t)
	clock := testutil.NewClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	notifier := notifications.NewManager(testutil.Logger(), store, nil)
	notifier.SetClock(clock.Now)
	m := qa.NewManager(testutil.Logger(), store, &notifier)
	m.SetClock(clock.Now)
	return fixture{manager: &m, store: store, clock: clock}
}

func (f fixture) xp(t *testing.T, id string) int {
	t.Helper()
	u, err := docstore.GetAs[model.User](context.Background(), f.store, model.CollectionUsers, id)
	require.NoError(t, err)
	return u.EngagementXP
}

func (f fixture) notifications(t *testing.T, userID string) []model.Notification {
	t.Helper()
	items, err := docstore.QueryAs[model.Notification](context.Background(), f.store,
		docstore.From(model.CollectionNotifications).Where("userId", docstore.OpEqual, userID))
	require.NoError(t, err)
	return items
}

func TestManager_CreateQuestion(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	author := testutil.CreateUser(t, f.store, testutil.WithName("Ada"))
	mentioned := testutil.CreateUser(t, f.store)

	q, err := f.manager.CreateQuestion(ctx, qa.CreateQuestionParam{
		AuthorID: author.ID,
		Title:    "  How do I pivot?  ",
		Content:  "In pandas",
		Tags:     []string{"Pandas", " pandas ", "python", ""},
		Mentions: []model.Mention{{UserID: mentioned.ID}, {UserID: mentioned.ID}, {UserID: author.ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, "How do I pivot?", q.Title)
	assert.Equal(t, []string{"pandas", "python"}, q.Tags)
	assert.Equal(t, "Ada", q.AuthorName)
	assert.Equal(t, qa.QuestionXP, f.xp(t, author.ID))

	notes := f.notifications(t, mentioned.ID)
	require.Len(t, notes, 1, "each user is mentioned once")
	assert.Equal(t, model.NotificationMention, notes[0].Type)
	assert.Equal(t, q.ID, notes[0].TargetID)
	assert.Empty(t, f.notifications(t, author.ID), "authors are never notified about themselves")

	tests := []struct {
		name      string
		param     qa.CreateQuestionParam
		expectErr error
	}{
		{name: "blank_title", param: qa.CreateQuestionParam{AuthorID: author.ID, Title: " ", Content: "x"}, expectErr: qa.ErrEmptyQuestion},
		{name: "blank_content", param: qa.CreateQuestionParam{AuthorID: author.ID, Title: "x"}, expectErr: qa.ErrEmptyQuestion},
		{name: "unknown_author", param: qa.CreateQuestionParam{AuthorID: "ghost", Title: "x", Content: "y"}, expectErr: user.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.CreateQuestion(ctx, tt.param)
			assert.ErrorIs(t, err, tt.expectErr)
		})
	}
}

func TestManager_ListQuestions(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	author := testutil.CreateUser(t, f.store)
	other := testutil.CreateUser(t, f.store)

	create := func(title string, tags ...string) model.Question {
		f.clock.Advance(time.Minute)
		q, err := f.manager.CreateQuestion(ctx, qa.CreateQuestionParam{AuthorID: author.ID, Title: title, Content: "body", Tags: tags})
		require.NoError(t, err)
		return q
	}
	sql := create("Window functions", "sql")
	py := create("List comprehensions", "python")
	viz := create("Charts", "viz", "python")

	_, err := f.manager.CreateAnswer(ctx, qa.CreateAnswerParam{AuthorID: other.ID, QuestionID: sql.ID, Content: "use OVER"})
	require.NoError(t, err)
	for range 2 {
		_, err := f.manager.GetQuestion(ctx, py.ID, other.ID)
		require.NoError(t, err)
	}

	resolved := false
	tests := []struct {
		name     string
		params   qa.ListQuestionsParams
		expected []string
	}{
		{name: "newest_first", params: qa.ListQuestionsParams{}, expected: []string{viz.ID, py.ID, sql.ID}},
		{name: "tag_filter", params: qa.ListQuestionsParams{Tags: []string{"PYTHON"}}, expected: []string{viz.ID, py.ID}},
		{name: "popular", params: qa.ListQuestionsParams{SortBy: "popular", Limit: 1}, expected: []string{py.ID}},
		{name: "unanswered", params: qa.ListQuestionsParams{SortBy: "unanswered"}, expected: []string{viz.ID, py.ID}},
		{name: "unresolved", params: qa.ListQuestionsParams{Resolved: &resolved, AuthorID: author.ID}, expected: []string{viz.ID, py.ID, sql.ID}},
		{name: "search", params: qa.ListQuestionsParams{Search: "window"}, expected: []string{sql.ID}},
		{name: "cursor", params: qa.ListQuestionsParams{StartAfter: viz.ID, Limit: 1}, expected: []string{py.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.manager.ListQuestions(ctx, tt.params)
			require.NoError(t, err)
			ids := make([]string, 0, len(page.Questions))
			for _, q := range page.Questions {
				ids = append(ids, q.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}

	page, err := f.manager.ListQuestions(ctx, qa.ListQuestionsParams{Limit: 2})
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	assert.Equal(t, py.ID, page.LastID)
}

func TestManager_GetQuestionCountsViews(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	author := testutil.CreateUser(t, f.store)
	viewer := testutil.CreateUser(t, f.store)
	q, err := f.manager.CreateQuestion(ctx, qa.CreateQuestionParam{AuthorID: author.ID, Title: "t", Content: "c"})
	require.NoError(t, err)

	got, err := f.manager.GetQuestion(ctx, q.ID, viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ViewsCount)

	got, err = f.manager.GetQuestion(ctx, q.ID, author.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ViewsCount, "authors do not count as viewers")

	got, err = f.manager.GetQuestion(ctx, q.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ViewsCount)

	_, err = f.manager.GetQuestion(ctx, "missing", viewer.ID)
	assert.ErrorIs(t, err, qa.ErrQuestionNotFound)
}

func TestManager_Answers(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	asker := testutil.CreateUser(t, f.store)
	first := testutil.CreateUser(t, f.store, testutil.WithName("First"))
	second := testutil.CreateUser(t, f.store, testutil.WithName("Second"))

	q, err := f.manager.CreateQuestion(ctx, qa.CreateQuestionParam{AuthorID: asker.ID, Title: "Joins?", Content: "help"})
	require.NoError(t, err)

	answer := func(u model.User) model.Answer {
		f.clock.Advance(time.Minute)
		a, err := f.manager.CreateAnswer(ctx, qa.CreateAnswerParam{AuthorID: u.ID, QuestionID: q.ID, Content: "try this"})
		require.NoError(t, err)
		return a
	}
	a1 := answer(first)
	a2 := answer(second)
	own := answer(asker)

	assert.Equal(t, qa.AnswerXP, f.xp(t, first.ID))
	notes := f.notifications(t, asker.ID)
	require.Len(t, notes, 2, "answering your own question does not notify")
	assert.Equal(t, model.NotificationAnswer, notes[0].Type)
	assert.Equal(t, q.ID, notes[0].TargetID)

	stored, err := f.manager.GetQuestion(ctx, q.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 3, stored.AnswersCount)

	t.Run("create_errors", func(t *testing.T) {
		_, err := f.manager.CreateAnswer(ctx, qa.CreateAnswerParam{AuthorID: first.ID, QuestionID: q.ID, Content: "  "})
		assert.ErrorIs(t, err, qa.ErrEmptyAnswer)
		_, err = f.manager.CreateAnswer(ctx, qa.CreateAnswerParam{AuthorID: first.ID, QuestionID: "missing", Content: "x"})
		assert.ErrorIs(t, err, qa.ErrQuestionNotFound)
	})

	t.Run("accept", func(t *testing.T) {
		assert.ErrorIs(t, f.manager.AcceptAnswer(ctx, first.ID, q.ID, a1.ID), qa.ErrNotQuestionAuthor)
		assert.ErrorIs(t, f.manager.AcceptAnswer(ctx, asker.ID, q.ID, "missing"), qa.ErrAnswerNotFound)

		require.NoError(t, f.manager.AcceptAnswer(ctx, asker.ID, q.ID, a2.ID))
		assert.Equal(t, qa.AnswerXP+qa.AcceptedAnswerXP, f.xp(t, second.ID))

		require.NoError(t, f.manager.AcceptAnswer(ctx, asker.ID, q.ID, a2.ID))
		assert.Equal(t, qa.AnswerXP+qa.AcceptedAnswerXP, f.xp(t, second.ID), "accepting twice awards once")

		answers, err := f.manager.ListAnswers(ctx, q.ID)
		require.NoError(t, err)
		require.Len(t, answers, 3)
		assert.Equal(t, []string{a2.ID, a1.ID, own.ID}, []string{answers[0].ID, answers[1].ID, answers[2].ID})

		require.NoError(t, f.manager.AcceptAnswer(ctx, asker.ID, q.ID, own.ID))
		assert.Equal(t, qa.QuestionXP+qa.AnswerXP, f.xp(t, asker.ID), "accepting your own answer earns nothing")

		answers, err = f.manager.ListAnswers(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, own.ID, answers[0].ID)
		assert.False(t, answers[1].IsAccepted)
		assert.False(t, answers[2].IsAccepted)

		resolved, err := f.manager.GetQuestion(ctx, q.ID, "")
		require.NoError(t, err)
		assert.True(t, resolved.IsResolved)
		assert.Equal(t, own.ID, resolved.AcceptedAnswerID)
	})

	t.Run("answer_from_other_question", func(t *testing.T) {
		other, err := f.manager.CreateQuestion(ctx, qa.CreateQuestionParam{AuthorID: asker.ID, Title: "Other", Content: "c"})
		require.NoError(t, err)
		assert.ErrorIs(t, f.manager.AcceptAnswer(ctx, asker.ID, other.ID, a1.ID), qa.ErrAnswerMismatch)
	})
}

func TestManager_ToggleReaction(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	author := testutil.CreateUser(t, f.store)
	reader := testutil.CreateUser(t, f.store)
	q, err := f.manager.CreateQuestion(ctx, qa.CreateQuestionParam{AuthorID: author.ID, Title: "t", Content: "c"})
	require.NoError(t, err)
	a, err := f.manager.CreateAnswer(ctx, qa.CreateAnswerParam{AuthorID: author.ID, QuestionID: q.ID, Content: "c"})
	require.NoError(t, err)

	react := func(target, targetType string, kind model.ReactionType) qa.ReactionResult {
		res, err := f.manager.ToggleReaction(ctx, qa.ReactionParam{UserID: reader.ID, TargetID: target, TargetType: targetType, ReactionType: kind})
		require.NoError(t, err)
		return res
	}

	res := react(q.ID, "question", model.ReactionLike)
	assert.True(t, res.Added)
	assert.Equal(t, 1, res.Counts[model.ReactionLike])
	assert.Equal(t, 1, res.Total)

	res = react(q.ID, "question", model.ReactionHelpful)
	assert.True(t, res.Added)
	assert.Equal(t, 0, res.Counts[model.ReactionLike], "a new type replaces the old one")
	assert.Equal(t, 1, res.Counts[model.ReactionHelpful])
	assert.Equal(t, 1, res.Total)

	res = react(q.ID, "question", model.ReactionHelpful)
	assert.False(t, res.Added)
	assert.Equal(t, 0, res.Total)

	res = react(a.ID, "answer", model.ReactionThanks)
	assert.True(t, res.Added)
	assert.Equal(t, 1, res.Counts[model.ReactionThanks])

	tests := []struct {
		name      string
		param     qa.ReactionParam
		expectErr error
	}{
		{name: "bad_type", param: qa.ReactionParam{UserID: reader.ID, TargetID: q.ID, TargetType: "question", ReactionType: "love"}, expectErr: qa.ErrInvalidReaction},
		{name: "bad_target", param: qa.ReactionParam{UserID: reader.ID, TargetID: q.ID, TargetType: "comment", ReactionType: model.ReactionLike}, expectErr: qa.ErrInvalidTargetType},
		{name: "missing_answer", param: qa.ReactionParam{UserID: reader.ID, TargetID: "missing", TargetType: "answer", ReactionType: model.ReactionLike}, expectErr: qa.ErrAnswerNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.ToggleReaction(ctx, tt.param)
			assert.ErrorIs(t, err, tt.expectErr)
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"sql", "dbt"}, qa.NormalizeTags([]string{" SQL", "dbt", "sql", ""}))
	assert.Equal(t, []string{}, qa.NormalizeTags(nil))
}

func TestMatchesSearch(t *testing.T) {
	tests := []struct {
		name     string
		term     string
		expected bool
	}{
		{name: "empty", term: "  ", expected: true},
		{name: "title", term: "PIVOT", expected: true},
		{name: "content", term: "pandas", expected: true},
		{name: "tag", term: "pyth", expected: true},
		{name: "none", term: "spark", expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, qa.MatchesSearch(tt.term, "How to pivot", "using pandas", []string{"python"}))
		})
	}
}

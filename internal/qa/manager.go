// Package qa is the question and answer forum.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/notifications"
	"github.com/dnacommunity/backend/internal/user"

	"github.com/google/uuid"
)

const (
	QuestionXP       = 15
	AnswerXP         = 10
	AcceptedAnswerXP = 25
)

var (
	ErrQuestionNotFound  = errors.New("question not found")
	ErrAnswerNotFound    = errors.New("answer not found")
	ErrNotQuestionAuthor = errors.New("only the question author can accept an answer")
	ErrAnswerMismatch    = errors.New("answer does not belong to this question")
	ErrInvalidTargetType = errors.New("target type must be question or answer")
	ErrInvalidReaction   = errors.New("invalid reaction type")
	ErrEmptyQuestion     = errors.New("title and content are required")
	ErrEmptyAnswer       = errors.New("content is required")
)

type Manager struct {
	logger   *slog.Logger
	store    docstore.Store
	notifier *notifications.Manager
	now      func() time.Time
}

func NewManager(logger *slog.Logger, store docstore.Store, notifier *notifications.Manager) Manager {
	return Manager{logger: logger, store: store, notifier: notifier, now: time.Now}
}

func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

type CreateQuestionParam struct {
	AuthorID string
	Title    string
	Content  string
	Tags     []string
	Mentions []model.Mention
}

func (m *Manager) CreateQuestion(ctx context.Context, param CreateQuestionParam) (model.Question, error) {
	var q model.Question
	if strings.TrimSpace(param.Title) == "" || strings.TrimSpace(param.Content) == "" {
		return q, ErrEmptyQuestion
	}

	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		now := m.now().UTC()
		author, err := user.AddXP(ctx, tx, param.AuthorID, QuestionXP, now)
		if err != nil {
			return err
		}
		q = model.Question{
			ID:           uuid.NewString(),
			AuthorID:     author.ID,
			AuthorName:   author.Name,
			AuthorAvatar: author.Profile.AvatarURL,
			Title:        strings.TrimSpace(param.Title),
			Content:      param.Content,
			Tags:         NormalizeTags(param.Tags),
			Mentions:     nonNil(param.Mentions),
			Reactions:    []model.Reaction{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return tx.Create(ctx, model.CollectionQuestions, q.ID, q)
	})
	if err != nil {
		return q, err
	}

	m.notifyMentions(ctx, q.Mentions, q.AuthorID, q.AuthorName, q.ID, "question")
	return q, nil
}

type ListQuestionsParams struct {
	Tags       []string
	Resolved   *bool
	AuthorID   string
	SortBy     string
	Search     string
	Limit      int
	StartAfter string
}

type QuestionPage struct {
	Questions []model.Question
	Limit     int
	HasMore   bool
	LastID    string
}

func (m *Manager) ListQuestions(ctx context.Context, params ListQuestionsParams) (QuestionPage, error) {
	page := QuestionPage{Limit: params.Limit}
	if page.Limit <= 0 {
		page.Limit = 20
	}

	q := docstore.From(model.CollectionQuestions)
	if tags := NormalizeTags(params.Tags); len(tags) > 0 {
		q = q.Where("tags", docstore.OpArrayContainsAny, tags)
	}
	if params.Resolved != nil {
		q = q.Where("isResolved", docstore.OpEqual, *params.Resolved)
	}
	if params.AuthorID != "" {
		q = q.Where("authorId", docstore.OpEqual, params.AuthorID)
	}
	switch params.SortBy {
	case "popular":
		q = q.OrderBy("viewsCount", docstore.Desc)
	case "unanswered":
		q = q.Where("answersCount", docstore.OpEqual, 0).OrderBy("createdAt", docstore.Desc)
	default:
		q = q.OrderBy("createdAt", docstore.Desc)
	}
	q = q.Limit(page.Limit).StartAfter(params.StartAfter)

	questions, err := docstore.QueryAs[model.Question](ctx, m.store, q)
	if err != nil {
		return page, fmt.Errorf("failed to list questions: %w", err)
	}

	page.HasMore = len(questions) == page.Limit
	if len(questions) > 0 {
		page.LastID = questions[len(questions)-1].ID
	}
	page.Questions = slices.DeleteFunc(questions, func(item model.Question) bool {
		return !MatchesSearch(params.Search, item.Title, item.Content, item.Tags)
	})
	return page, nil
}

// GetQuestion returns the question and counts a view when the viewer is not its author.
func (m *Manager) GetQuestion(ctx context.Context, questionID, viewerID string) (model.Question, error) {
	if viewerID == "" {
		return m.question(ctx, m.store, questionID)
	}

	var q model.Question
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var err error
		q, err = m.question(ctx, tx, questionID)
		if err != nil {
			return err
		}
		if viewerID == q.AuthorID {
			return nil
		}
		q.ViewsCount++
		return tx.Set(ctx, model.CollectionQuestions, q.ID, q)
	})
	return q, err
}

type CreateAnswerParam struct {
	AuthorID   string
	QuestionID string
	Content    string
	Mentions   []model.Mention
}

func (m *Manager) CreateAnswer(ctx context.Context, param CreateAnswerParam) (model.Answer, error) {
	var (
		a        model.Answer
		question model.Question
	)
	if strings.TrimSpace(param.Content) == "" {
		return a, ErrEmptyAnswer
	}

	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var err error
		question, err = m.question(ctx, tx, param.QuestionID)
		if err != nil {
			return err
		}
		now := m.now().UTC()
		author, err := user.AddXP(ctx, tx, param.AuthorID, AnswerXP, now)
		if err != nil {
			return err
		}

		a = model.Answer{
			ID:           uuid.NewString(),
			QuestionID:   question.ID,
			AuthorID:     author.ID,
			AuthorName:   author.Name,
			AuthorAvatar: author.Profile.AvatarURL,
			Content:      param.Content,
			Mentions:     nonNil(param.Mentions),
			Reactions:    []model.Reaction{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Create(ctx, model.CollectionAnswers, a.ID, a); err != nil {
			return err
		}

		question.AnswersCount++
		question.UpdatedAt = now
		return tx.Set(ctx, model.CollectionQuestions, question.ID, question)
	})
	if err != nil {
		return a, err
	}

	if question.AuthorID != a.AuthorID {
		m.notifier.NotifyBestEffort(ctx, notifications.NotifyParam{
			UserID:       question.AuthorID,
			Type:         model.NotificationAnswer,
			FromUserID:   a.AuthorID,
			FromUserName: a.AuthorName,
			TargetID:     question.ID,
			TargetType:   "question",
			Message:      fmt.Sprintf("%s answered your question: %q", a.AuthorName, question.Title),
			Metadata:     map[string]any{"answerId": a.ID},
		})
	}
	m.notifyMentions(ctx, a.Mentions, a.AuthorID, a.AuthorName, a.ID, "answer")
	return a, nil
}

// ListAnswers returns the accepted answer first, then the rest oldest first.
func (m *Manager) ListAnswers(ctx context.Context, questionID string) ([]model.Answer, error) {
	if _, err := m.question(ctx, m.store, questionID); err != nil {
		return nil, err
	}
	answers, err := docstore.QueryAs[model.Answer](ctx, m.store, docstore.From(model.CollectionAnswers).
		Where("questionId", docstore.OpEqual, questionID).
		OrderBy("createdAt", docstore.Asc))
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	slices.SortStableFunc(answers, func(a, b model.Answer) int {
		switch {
		case a.IsAccepted == b.IsAccepted:
			return 0
		case a.IsAccepted:
			return -1
		default:
			return 1
		}
	})
	return answers, nil
}

// AcceptAnswer marks answerID as the question's solution. Only the question
// author may do this; a previously accepted answer loses the mark.
func (m *Manager) AcceptAnswer(ctx context.Context, uid, questionID, answerID string) error {
	return m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		question, err := m.question(ctx, tx, questionID)
		if err != nil {
			return err
		}
		if question.AuthorID != uid {
			return ErrNotQuestionAuthor
		}
		answer, err := m.answer(ctx, tx, answerID)
		if err != nil {
			return err
		}
		if answer.QuestionID != question.ID {
			return ErrAnswerMismatch
		}
		if answer.IsAccepted {
			return nil
		}

		now := m.now().UTC()
		if question.AcceptedAnswerID != "" && question.AcceptedAnswerID != answer.ID {
			previous, err := m.answer(ctx, tx, question.AcceptedAnswerID)
			switch {
			case err == nil:
				previous.IsAccepted = false
				previous.UpdatedAt = now
				if err := tx.Set(ctx, model.CollectionAnswers, previous.ID, previous); err != nil {
					return err
				}
			case !errors.Is(err, ErrAnswerNotFound):
				return err
			}
		}

		answer.IsAccepted = true
		answer.UpdatedAt = now
		if err := tx.Set(ctx, model.CollectionAnswers, answer.ID, answer); err != nil {
			return err
		}

		question.AcceptedAnswerID = answer.ID
		question.IsResolved = true
		question.UpdatedAt = now
		if err := tx.Set(ctx, model.CollectionQuestions, question.ID, question); err != nil {
			return err
		}

		if answer.AuthorID != uid {
			if _, err := user.AddXP(ctx, tx, answer.AuthorID, AcceptedAnswerXP, now); err != nil && !errors.Is(err, user.ErrUserNotFound) {
				return err
			}
		}
		return nil
	})
}

type ReactionParam struct {
	UserID       string
	TargetID     string
	TargetType   string
	ReactionType model.ReactionType
}

type ReactionResult struct {
	Added  bool
	Counts map[model.ReactionType]int
	Total  int
}

// ToggleReaction keeps at most one reaction per user on a target. Repeating
// the same type removes it, another type replaces it.
func (m *Manager) ToggleReaction(ctx context.Context, param ReactionParam) (ReactionResult, error) {
	var result ReactionResult
	switch param.ReactionType {
	case model.ReactionLike, model.ReactionHelpful, model.ReactionInsightful, model.ReactionThanks:
	default:
		return result, ErrInvalidReaction
	}

	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		now := m.now().UTC()
		toggle := func(reactions []model.Reaction) []model.Reaction {
			idx := slices.IndexFunc(reactions, func(r model.Reaction) bool {
				return r.UserID == param.UserID && r.Type == param.ReactionType
			})
			if idx >= 0 {
				result.Added = false
				return slices.Delete(reactions, idx, idx+1)
			}
			result.Added = true
			reactions = slices.DeleteFunc(reactions, func(r model.Reaction) bool { return r.UserID == param.UserID })
			return append(reactions, model.Reaction{UserID: param.UserID, Type: param.ReactionType, CreatedAt: now})
		}

		var reactions []model.Reaction
		switch param.TargetType {
		case "question":
			q, err := m.question(ctx, tx, param.TargetID)
			if err != nil {
				return err
			}
			q.Reactions = toggle(q.Reactions)
			reactions = q.Reactions
			if err := tx.Set(ctx, model.CollectionQuestions, q.ID, q); err != nil {
				return err
			}
		case "answer":
			a, err := m.answer(ctx, tx, param.TargetID)
			if err != nil {
				return err
			}
			a.Reactions = toggle(a.Reactions)
			reactions = a.Reactions
			if err := tx.Set(ctx, model.CollectionAnswers, a.ID, a); err != nil {
				return err
			}
		default:
			return ErrInvalidTargetType
		}

		result.Counts = model.ReactionCounts(reactions)
		result.Total = len(reactions)
		return nil
	})
	return result, err
}

func (m *Manager) question(ctx context.Context, r docstore.Reader, id string) (model.Question, error) {
	q, err := docstore.GetAs[model.Question](ctx, r, model.CollectionQuestions, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return q, ErrQuestionNotFound
	}
	return q, err
}

func (m *Manager) answer(ctx context.Context, r docstore.Reader, id string) (model.Answer, error) {
	a, err := docstore.GetAs[model.Answer](ctx, r, model.CollectionAnswers, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return a, ErrAnswerNotFound
	}
	return a, err
}

func (m *Manager) notifyMentions(ctx context.Context, mentions []model.Mention, fromID, fromName, targetID, targetType string) {
	notified := make(map[string]bool, len(mentions))
	for _, mention := range mentions {
		if mention.UserID == "" || mention.UserID == fromID || notified[mention.UserID] {
			continue
		}
		notified[mention.UserID] = true
		m.notifier.NotifyBestEffort(ctx, notifications.NotifyParam{
			UserID:       mention.UserID,
			Type:         model.NotificationMention,
			FromUserID:   fromID,
			FromUserName: fromName,
			TargetID:     targetID,
			TargetType:   targetType,
			Message:      fmt.Sprintf("%s mentioned you in a %s", fromName, targetType),
		})
	}
}

// NormalizeTags lowercases, trims and deduplicates tags, keeping their order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// MatchesSearch reports whether term occurs in the title, content or one of the tags.
func MatchesSearch(term, title, content string, tags []string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(title), term) || strings.Contains(strings.ToLower(content), term) {
		return true
	}
	return slices.ContainsFunc(tags, func(tag string) bool {
		return strings.Contains(strings.ToLower(tag), term)
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

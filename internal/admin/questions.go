package admin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/qa"
)

type QuestionFilter struct {
	Page     int
	Limit    int
	Resolved *bool
	AuthorID string
	Search   string
}

type QuestionSummary struct {
	model.Question
	UserDetails *UserCard `json:"userDetails,omitempty"`
}

type QuestionPage struct {
	Questions  []QuestionSummary `json:"questions"`
	Pagination Pagination        `json:"pagination"`
}

// Questions pages through questions, newest first. Search applies to the
// loaded page.
func (m *Manager) Questions(ctx context.Context, filter QuestionFilter) (QuestionPage, error) {
	page, limit := pageAndLimit(filter.Page, filter.Limit, 20)
	q := docstore.From(model.CollectionQuestions)
	if filter.Resolved != nil {
		q = q.Where("isResolved", docstore.OpEqual, *filter.Resolved)
	}
	if filter.AuthorID != "" {
		q = q.Where("authorId", docstore.OpEqual, filter.AuthorID)
	}

	total, err := m.store.Count(ctx, q)
	if err != nil {
		return QuestionPage{}, fmt.Errorf("failed to count questions: %w", err)
	}
	items, err := docstore.QueryAs[model.Question](ctx, m.store, q.OrderBy("createdAt", docstore.Desc).Limit(limit).Offset((page-1)*limit))
	if err != nil {
		return QuestionPage{}, fmt.Errorf("failed to list questions: %w", err)
	}

	ids := make([]string, 0, len(items))
	for _, question := range items {
		ids = append(ids, question.AuthorID)
	}
	cards, err := m.cards(ctx, ids, false)
	if err != nil {
		return QuestionPage{}, fmt.Errorf("failed to load users: %w", err)
	}

	out := QuestionPage{Questions: make([]QuestionSummary, 0, len(items)), Pagination: paginate(page, limit, total)}
	for _, question := range items {
		if filter.Search != "" && !qa.MatchesSearch(filter.Search, question.Title, question.Content, question.Tags) {
			continue
		}
		out.Questions = append(out.Questions, QuestionSummary{Question: question, UserDetails: cardPtr(cards, question.AuthorID)})
	}
	return out, nil
}

type AnswerDetail struct {
	model.Answer
	UserDetails *UserCard `json:"userDetails,omitempty"`
}

type QuestionDetail struct {
	Question    model.Question `json:"question"`
	UserDetails *UserCard      `json:"userDetails,omitempty"`
	Answers     []AnswerDetail `json:"answers"`
}

func (m *Manager) Question(ctx context.Context, id string) (QuestionDetail, error) {
	question, err := m.question(ctx, m.store, id)
	if err != nil {
		return QuestionDetail{}, err
	}
	answers, err := docstore.QueryAs[model.Answer](ctx, m.store, docstore.From(model.CollectionAnswers).
		Where("questionId", docstore.OpEqual, id).
		OrderBy("createdAt", docstore.Desc))
	if err != nil {
		return QuestionDetail{}, fmt.Errorf("failed to list answers: %w", err)
	}

	ids := []string{question.AuthorID}
	for _, a := range answers {
		ids = append(ids, a.AuthorID)
	}
	cards, err := m.cards(ctx, ids, false)
	if err != nil {
		return QuestionDetail{}, fmt.Errorf("failed to load users: %w", err)
	}

	detail := QuestionDetail{
		Question:    question,
		UserDetails: cardPtr(cards, question.AuthorID),
		Answers:     make([]AnswerDetail, 0, len(answers)),
	}
	for _, a := range answers {
		detail.Answers = append(detail.Answers, AnswerDetail{Answer: a, UserDetails: cardPtr(cards, a.AuthorID)})
	}
	return detail, nil
}

type DeleteQuestionResult struct {
	QuestionID           string `json:"questionId"`
	QuestionTitle        string `json:"questionTitle"`
	DeletedAnswers       int    `json:"deletedAnswers"`
	DeletedNotifications int    `json:"deletedNotifications"`
}

// DeleteQuestion removes the question together with its answers and every
// notification pointing at it.
func (m *Manager) DeleteQuestion(ctx context.Context, id string) (DeleteQuestionResult, error) {
	var result DeleteQuestionResult
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		question, err := m.question(ctx, tx, id)
		if err != nil {
			return err
		}
		answers, err := tx.Query(ctx, docstore.From(model.CollectionAnswers).Where("questionId", docstore.OpEqual, id))
		if err != nil {
			return fmt.Errorf("failed to list answers: %w", err)
		}
		notes, err := tx.Query(ctx, docstore.From(model.CollectionNotifications).Where("targetId", docstore.OpEqual, id))
		if err != nil {
			return fmt.Errorf("failed to list notifications: %w", err)
		}

		if err := tx.Delete(ctx, model.CollectionQuestions, id); err != nil {
			return err
		}
		for _, a := range answers {
			if err := tx.Delete(ctx, model.CollectionAnswers, a.ID); err != nil {
				return err
			}
		}
		for _, n := range notes {
			if err := tx.Delete(ctx, model.CollectionNotifications, n.ID); err != nil {
				return err
			}
		}

		result = DeleteQuestionResult{
			QuestionID:           id,
			QuestionTitle:        question.Title,
			DeletedAnswers:       len(answers),
			DeletedNotifications: len(notes),
		}
		return nil
	})
	if err != nil {
		return DeleteQuestionResult{}, err
	}

	m.logger.Info("Question deleted", "question_id", id, "answers", result.DeletedAnswers, "notifications", result.DeletedNotifications)
	return result, nil
}

type AskerActivity struct {
	AuthorID      string `json:"authorId"`
	AuthorName    string `json:"authorName"`
	QuestionCount int    `json:"questionCount"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type QuestionStats struct {
	TotalQuestions            int             `json:"totalQuestions"`
	TotalAnswers              int             `json:"totalAnswers"`
	AnsweredQuestions         int             `json:"answeredQuestions"`
	UnansweredQuestions       int             `json:"unansweredQuestions"`
	QuestionsByStatus         map[string]int  `json:"questionsByStatus"`
	QuestionsByDay            map[string]int  `json:"questionsByDay"`
	AverageAnswersPerQuestion float64         `json:"averageAnswersPerQuestion"`
	TopTags                   []TagCount      `json:"topTags"`
	MostActiveAskers          []AskerActivity `json:"mostActiveAskers"`
}

type QuestionReport struct {
	Period    string        `json:"period"`
	DateRange DateRange     `json:"dateRange"`
	Stats     QuestionStats `json:"stats"`
}

// QuestionStats aggregates questions and answers created during the period.
// A question counts as answered when it got an answer within the period.
// Unknown periods count as 30d.
func (m *Manager) QuestionStats(ctx context.Context, period string) (QuestionReport, error) {
	end := m.now().UTC()
	start := end.Add(-Period(period, 30*24*time.Hour))

	questions, err := docstore.QueryAs[model.Question](ctx, m.store, docstore.From(model.CollectionQuestions).
		Where("createdAt", docstore.OpGreaterEqual, start))
	if err != nil {
		return QuestionReport{}, fmt.Errorf("failed to list questions: %w", err)
	}
	answers, err := docstore.QueryAs[model.Answer](ctx, m.store, docstore.From(model.CollectionAnswers).
		Where("createdAt", docstore.OpGreaterEqual, start))
	if err != nil {
		return QuestionReport{}, fmt.Errorf("failed to list answers: %w", err)
	}

	answered := make(map[string]bool, len(answers))
	for _, a := range answers {
		answered[a.QuestionID] = true
	}

	stats := QuestionStats{
		TotalQuestions:    len(questions),
		TotalAnswers:      len(answers),
		QuestionsByStatus: map[string]int{},
		QuestionsByDay:    map[string]int{},
	}
	tags := map[string]int{}
	askers := map[string]int{}
	names := map[string]string{}
	for _, q := range questions {
		if answered[q.ID] {
			stats.AnsweredQuestions++
		} else {
			stats.UnansweredQuestions++
		}
		status := "open"
		if q.IsResolved {
			status = "resolved"
		}
		stats.QuestionsByStatus[status]++
		stats.QuestionsByDay[q.CreatedAt.UTC().Format(time.DateOnly)]++
		for _, t := range q.Tags {
			tags[t]++
		}
		askers[q.AuthorID]++
		names[q.AuthorID] = q.AuthorName
	}
	if len(questions) > 0 {
		stats.AverageAnswersPerQuestion = math.Round(float64(len(answers))/float64(len(questions))*100) / 100
	}
	stats.TopTags = topN(tags, 10, func(tag string, c int) TagCount {
		return TagCount{Tag: tag, Count: c}
	})
	stats.MostActiveAskers = topN(askers, 10, func(id string, c int) AskerActivity {
		return AskerActivity{AuthorID: id, AuthorName: names[id], QuestionCount: c}
	})

	return QuestionReport{
		Period:    period,
		DateRange: DateRange{Start: start, End: end},
		Stats:     stats,
	}, nil
}

func (m *Manager) question(ctx context.Context, r docstore.Reader, id string) (model.Question, error) {
	q, err := docstore.GetAs[model.Question](ctx, r, model.CollectionQuestions, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return q, ErrQuestionNotFound
	}
	return q, err
}

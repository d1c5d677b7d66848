package api

import (
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/notifications"
	"github.com/dnacommunity/backend/internal/qa"

	"github.com/gofiber/fiber/v2"
)

type questionRequest struct {
	Title    string          `json:"title" validate:"required,max=300"`
	Content  string          `json:"content" validate:"required"`
	Tags     []string        `json:"tags" validate:"max=10"`
	Mentions []model.Mention `json:"mentions"`
}

func (h *Handler) CreateQuestion(c *fiber.Ctx) error {
	var req questionRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	question, err := h.QA.CreateQuestion(c.UserContext(), qa.CreateQuestionParam{
		AuthorID: c.Params("uid"),
		Title:    req.Title,
		Content:  req.Content,
		Tags:     req.Tags,
		Mentions: req.Mentions,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "question created successfully",
		"questionId": question.ID,
		"question":   question,
		"xpAwarded":  qa.QuestionXP,
	})
}

func (h *Handler) ListQuestions(c *fiber.Ctx) error {
	page, err := h.QA.ListQuestions(c.UserContext(), qa.ListQuestionsParams{
		Tags:       queryList(c, "tags"),
		Resolved:   queryBool(c, "resolved"),
		AuthorID:   c.Query("authorId"),
		SortBy:     c.Query("sortBy", "recent"),
		Search:     c.Query("search"),
		Limit:      c.QueryInt("limit", 20),
		StartAfter: c.Query("startAfter"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":    "questions retrieved",
		"questions":  page.Questions,
		"count":      len(page.Questions),
		"pagination": fiber.Map{
			"limit":   page.Limit,
			"hasMore": page.HasMore,
			"lastId":  page.LastID,
		},
		"filters": filters(c, "tags", "resolved", "authorId", "sortBy", "search"),
	})
}

func (h *Handler) GetQuestion(c *fiber.Ctx) error {
	question, err := h.QA.GetQuestion(c.UserContext(), c.Params("questionId"), c.Query("viewerId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":   "question retrieved",
		"question":  question,
		"reactions": model.ReactionCounts(question.Reactions),
	})
}

type answerRequest struct {
	QuestionID string          `json:"questionId" validate:"required"`
	Content    string          `json:"content" validate:"required"`
	Mentions   []model.Mention `json:"mentions"`
}

func (h *Handler) CreateAnswer(c *fiber.Ctx) error {
	var req answerRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	answer, err := h.QA.CreateAnswer(c.UserContext(), qa.CreateAnswerParam{
		AuthorID:   c.Params("uid"),
		QuestionID: req.QuestionID,
		Content:    req.Content,
		Mentions:   req.Mentions,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "answer created successfully",
		"answerId":  answer.ID,
		"answer":    answer,
		"xpAwarded": qa.AnswerXP,
	})
}

func (h *Handler) ListAnswers(c *fiber.Ctx) error {
	answers, err := h.QA.ListAnswers(c.UserContext(), c.Params("questionId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "answers retrieved", "answers": answers, "count": len(answers)})
}

type acceptRequest struct {
	QuestionID string `json:"questionId" validate:"required"`
	AnswerID   string `json:"answerId" validate:"required"`
}

func (h *Handler) AcceptAnswer(c *fiber.Ctx) error {
	var req acceptRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	if err := h.QA.AcceptAnswer(c.UserContext(), c.Params("uid"), req.QuestionID, req.AnswerID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "answer accepted successfully"})
}

type reactionRequest struct {
	TargetID     string             `json:"targetId" validate:"required"`
	TargetType   string             `json:"targetType" validate:"required,oneof=question answer"`
	ReactionType model.ReactionType `json:"reactionType" validate:"required,oneof=like helpful insightful thanks"`
}

func (h *Handler) ToggleReaction(c *fiber.Ctx) error {
	var req reactionRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	result, err := h.QA.ToggleReaction(c.UserContext(), qa.ReactionParam{
		UserID:       c.Params("uid"),
		TargetID:     req.TargetID,
		TargetType:   req.TargetType,
		ReactionType: req.ReactionType,
	})
	if err != nil {
		return err
	}
	message := "reaction removed"
	if result.Added {
		message = "reaction added"
	}
	return c.JSON(fiber.Map{
		"message":        message,
		"reactionCounts": result.Counts,
		"totalReactions": result.Total,
	})
}

func (h *Handler) ListNotifications(c *fiber.Ctx) error {
	items, err := h.Notifications.List(c.UserContext(), notifications.ListParams{
		UserID:     c.Params("uid"),
		Limit:      c.QueryInt("limit", 20),
		StartAfter: c.Query("startAfter"),
		UnreadOnly: c.QueryBool("unreadOnly", false),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "notifications retrieved", "notifications": items, "count": len(items)})
}

func (h *Handler) UnreadCount(c *fiber.Ctx) error {
	n, err := h.Notifications.UnreadCount(c.UserContext(), c.Params("uid"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "unread count retrieved", "unreadCount": n})
}

func (h *Handler) MarkNotificationRead(c *fiber.Ctx) error {
	n, err := h.Notifications.MarkRead(c.UserContext(), c.Params("notificationId"), UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":      "notification marked as read",
		"notification": n,
	})
}

func (h *Handler) MarkAllNotificationsRead(c *fiber.Ctx) error {
	updated, err := h.Notifications.MarkAllRead(c.UserContext(), c.Params("uid"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":      "all notifications marked as read",
		"updatedCount": updated,
	})
}

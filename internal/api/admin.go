package api

import (
	"github.com/dnacommunity/backend/internal/admin"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) CheckAdmin(c *fiber.Ctx) error {
	ok, err := h.Admin.IsAdmin(c.UserContext(), c.Params("uid"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "admin status retrieved", "isAdmin": ok})
}

func (h *Handler) Admins(c *fiber.Ctx) error {
	admins, err := h.Admin.Admins(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":     "admins retrieved",
		"admins":      admins,
		"totalAdmins": len(admins),
	})
}

type setAdminRequest struct {
	IsAdmin *bool `json:"isAdmin" validate:"required"`
}

func (h *Handler) SetAdmin(c *fiber.Ctx) error {
	var req setAdminRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	u, err := h.Admin.SetAdmin(c.UserContext(), UserID(c), c.Params("uid"), *req.IsAdmin)
	if err != nil {
		return err
	}

	message := "admin access revoked"
	if *req.IsAdmin {
		message = "admin access granted"
	}
	return c.JSON(fiber.Map{
		"message": message,
		"user":    u.Public(),
	})
}

func (h *Handler) AdminUsers(c *fiber.Ctx) error {
	page, err := h.Admin.Users(c.UserContext(), admin.UserFilter{
		Page:       c.QueryInt("page", 1),
		Limit:      c.QueryInt("limit", 20),
		Role:       c.Query("role"),
		Onboarding: queryBool(c, "onboardingCompleted"),
		Search:     c.Query("search"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":    "users retrieved",
		"users":      page.Users,
		"pagination": page.Pagination,
		"filters":    filters(c, "role", "onboardingCompleted", "search"),
	})
}

func (h *Handler) AdminUser(c *fiber.Ctx) error {
	detail, err := h.Admin.User(c.UserContext(), c.Params("uid"))
	if err != nil {
		return err
	}
	return c.JSON(struct {
		Message string `json:"message"`
		admin.UserDetail
	}{"user retrieved", detail})
}

func (h *Handler) Activity(c *fiber.Ctx) error {
	page, err := h.Admin.Activity(c.UserContext(), admin.ActivityFilter{
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 50),
		Type:   c.Query("type"),
		UserID: c.Query("userId"),
		Read:   queryBool(c, "read"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":    "activity retrieved",
		"activities": page.Activities,
		"pagination": page.Pagination,
		"filters":    filters(c, "type", "userId", "read"),
	})
}

func (h *Handler) ActivityStats(c *fiber.Ctx) error {
	stats, err := h.Admin.ActivityStats(c.UserContext(), c.Query("period", "7d"))
	if err != nil {
		return err
	}
	return c.JSON(struct {
		Message string `json:"message"`
		admin.ActivityStats
	}{"activity stats retrieved", stats})
}

func (h *Handler) NotificationDetail(c *fiber.Ctx) error {
	n, err := h.Admin.Notification(c.UserContext(), c.Params("notificationId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "notification retrieved", "notification": n})
}

func (h *Handler) AdminQuestions(c *fiber.Ctx) error {
	page, err := h.Admin.Questions(c.UserContext(), admin.QuestionFilter{
		Page:     c.QueryInt("page", 1),
		Limit:    c.QueryInt("limit", 20),
		Resolved: queryBool(c, "resolved"),
		AuthorID: c.Query("authorId"),
		Search:   c.Query("search"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":    "questions retrieved",
		"questions":  page.Questions,
		"pagination": page.Pagination,
		"filters":    filters(c, "resolved", "authorId", "search"),
	})
}

func (h *Handler) QuestionStats(c *fiber.Ctx) error {
	report, err := h.Admin.QuestionStats(c.UserContext(), c.Query("period", "30d"))
	if err != nil {
		return err
	}
	return c.JSON(struct {
		Message string `json:"message"`
		admin.QuestionReport
	}{"question stats retrieved", report})
}

func (h *Handler) AdminQuestion(c *fiber.Ctx) error {
	detail, err := h.Admin.Question(c.UserContext(), c.Params("questionId"))
	if err != nil {
		return err
	}
	return c.JSON(struct {
		Message string `json:"message"`
		admin.QuestionDetail
	}{"question retrieved", detail})
}

func (h *Handler) DeleteQuestion(c *fiber.Ctx) error {
	result, err := h.Admin.DeleteQuestion(c.UserContext(), c.Params("questionId"))
	if err != nil {
		return err
	}
	h.Logger.InfoContext(c.UserContext(), "Question deleted by admin",
		"question_id", result.QuestionID,
		"admin_id", UserID(c),
		"answers", result.DeletedAnswers,
	)
	return c.JSON(fiber.Map{
		"message": "question deleted successfully",
		"result":  result,
	})
}

package api

import (
	"errors"
	"fmt"

	"github.com/dnacommunity/backend/internal/certificate"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/workshop"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) CreateWorkshop(c *fiber.Ctx) error {
	var in workshop.CreateInput
	if err := h.bind(c, &in); err != nil {
		return err
	}
	w, err := h.Workshops.Create(c.UserContext(), c.Params("uid"), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "workshop created successfully",
		"workshopId": w.ID,
		"workshop":   w,
		"xpAwarded":  workshop.CreateXP,
	})
}

func (h *Handler) GetWorkshop(c *fiber.Ctx) error {
	details, err := h.Workshops.Get(c.UserContext(), c.Params("workshopId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":        "workshop retrieved",
		"id":             details.Workshop.ID,
		"workshop":       details.Workshop,
		"canEnroll":      details.CanEnroll,
		"remainingSpots": details.RemainingSpots,
	})
}

func (h *Handler) AvailableWorkshops(c *fiber.Ctx) error {
	page, err := h.Workshops.Available(c.UserContext(), workshop.AvailableParams{
		ViewerID:   c.Params("uid"),
		Category:   c.Query("category"),
		Difficulty: c.Query("difficulty"),
		Search:     c.Query("search"),
		Limit:      c.QueryInt("limit", 20),
		StartAfter: c.Query("startAfter"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":    "workshops retrieved",
		"workshops":  page.Workshops,
		"count":      len(page.Workshops),
		"pagination": fiber.Map{
			"limit":   page.Limit,
			"hasMore": page.HasMore,
			"lastId":  page.LastID,
		},
		"filters": filters(c, "category", "difficulty", "search"),
	})
}

func (h *Handler) CreatedWorkshops(c *fiber.Ctx) error {
	workshops, err := h.Workshops.Created(c.UserContext(), c.Params("uid"), model.WorkshopStatus(c.Query("status")), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":   "workshops retrieved",
		"workshops": workshops,
		"count":     len(workshops),
		"filters":   filters(c, "status"),
	})
}

func (h *Handler) UpdateWorkshop(c *fiber.Ctx) error {
	var in workshop.UpdateInput
	if err := h.bind(c, &in); err != nil {
		return err
	}
	w, err := h.Workshops.Update(c.UserContext(), c.Params("workshopId"), c.Params("uid"), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":  "workshop updated successfully",
		"workshop": w,
	})
}

func (h *Handler) PublishWorkshop(c *fiber.Ctx) error {
	w, err := h.Workshops.Publish(c.UserContext(), c.Params("workshopId"), c.Params("uid"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":  "workshop published successfully",
		"workshop": w,
	})
}

type cancelWorkshopRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (h *Handler) CancelWorkshop(c *fiber.Ctx) error {
	var req cancelWorkshopRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	result, err := h.Workshops.Cancel(c.UserContext(), c.Params("workshopId"), c.Params("uid"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":             "workshop cancelled successfully",
		"workshop":            result.Workshop,
		"affectedEnrollments": result.Affected,
		"notifiedUsers":       result.NotifiedUsers,
	})
}

func (h *Handler) WorkshopStats(c *fiber.Ctx) error {
	stats, err := h.Workshops.Stats(c.UserContext(), c.Params("uid"))
	if err != nil {
		return err
	}
	return c.JSON(struct {
		Message string `json:"message"`
		workshop.Stats
	}{"workshop stats retrieved", stats})
}

func (h *Handler) Enroll(c *fiber.Ctx) error {
	result, err := h.Workshops.Enroll(c.UserContext(), c.Params("workshopId"), c.Params("uid"))
	if err != nil {
		return err
	}

	message := "enrolled in workshop successfully"
	if result.Enrollment.Status == model.EnrollmentWaitlisted {
		message = "workshop is full, you were added to the waitlist"
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":      message,
		"enrollmentId": result.Enrollment.ID,
		"enrollment":   result.Enrollment,
		"status":       result.Enrollment.Status,
		"xpAwarded":    result.XPAwarded,
		"reEnrollment": result.ReEnrollment,
	})
}

func (h *Handler) CancelEnrollment(c *fiber.Ctx) error {
	result, err := h.Workshops.CancelEnrollment(c.UserContext(), c.Params("workshopId"), c.Params("uid"))
	if err != nil {
		return err
	}
	body := fiber.Map{
		"message":    "enrollment cancelled successfully",
		"enrollment": result.Enrollment,
	}
	if result.Promoted != nil {
		body["promotedUserId"] = result.Promoted.UserID
	}
	return c.JSON(body)
}

type completeRequest struct {
	Feedback *workshop.FeedbackInput `json:"feedback"`
}

func (h *Handler) CompleteWorkshop(c *fiber.Ctx) error {
	var req completeRequest
	if _, err := h.bindOptional(c, &req); err != nil {
		return err
	}
	result, err := h.Workshops.Complete(c.UserContext(), c.Params("workshopId"), c.Params("uid"), req.Feedback)
	if err != nil {
		return err
	}

	body := fiber.Map{
		"message":    "workshop completed successfully",
		"enrollment": result.Enrollment,
		"xpAwarded":  result.XPAwarded,
	}
	if result.Certificate != nil {
		body["certificate"] = result.Certificate
	}
	if result.Enrollment.Feedback != nil {
		body["feedback"] = result.Enrollment.Feedback
	}
	return c.JSON(body)
}

func (h *Handler) Enrollments(c *fiber.Ctx) error {
	views, err := h.Workshops.Enrollments(c.UserContext(), c.Params("uid"), model.EnrollmentStatus(c.Query("status")), c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":     "enrollments retrieved",
		"enrollments": views,
		"count":       len(views),
		"filters":     filters(c, "status"),
	})
}

func (h *Handler) Participants(c *fiber.Ctx) error {
	result, err := h.Workshops.Participants(c.UserContext(), c.Params("workshopId"), c.Params("uid"), model.EnrollmentStatus(c.Query("status")))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":      "participants retrieved",
		"participants": result.Participants,
		"summary":      result.Summary,
	})
}

func (h *Handler) UserCertificates(c *fiber.Ctx) error {
	certs, err := h.Certificates.ForUser(c.UserContext(), c.Params("uid"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "certificates retrieved", "certificates": certs, "count": len(certs)})
}

func (h *Handler) GetCertificate(c *fiber.Ctx) error {
	cert, err := h.Certificates.Get(c.UserContext(), c.Params("certificateId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "certificate retrieved", "certificate": cert})
}

func (h *Handler) VerifyCertificate(c *fiber.Ctx) error {
	cert, err := h.Certificates.Verify(c.UserContext(), c.Params("verificationCode"))
	if errors.Is(err, certificate.ErrCertificateNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"valid": false,
			"error": "certificate not found or invalid verification code",
		})
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":     "certificate is valid",
		"valid":       true,
		"certificate": cert,
	})
}

func (h *Handler) DownloadCertificate(c *fiber.Ctx) error {
	url, err := h.Certificates.DownloadURL(c.UserContext(), c.Params("certificateId"), c.Query("uid"))
	if err != nil {
		return err
	}
	return c.Redirect(url, fiber.StatusFound)
}

type regenerateRequest struct {
	UID string `json:"uid"`
}

func (h *Handler) RegenerateCertificate(c *fiber.Ctx) error {
	var req regenerateRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	requester := UserID(c)
	if req.UID != "" && req.UID != requester {
		return ErrForbidden
	}
	cert, err := h.Certificates.Regenerate(c.UserContext(), c.Params("certificateId"), requester)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":     "certificate regenerated successfully",
		"certificate": cert,
	})
}

func (h *Handler) CertificateAnalytics(c *fiber.Ctx) error {
	analytics, err := h.Certificates.Analytics(c.UserContext(), c.Params("uid"))
	if err != nil {
		return err
	}
	return c.JSON(struct {
		Message string `json:"message"`
		certificate.Analytics
	}{"certificate analytics retrieved", analytics})
}

func (h *Handler) BulkRegenerateCertificates(c *fiber.Ctx) error {
	result, err := h.Certificates.BulkRegenerate(c.UserContext(), c.Params("workshopId"), c.Params("uid"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("regenerated %d of %d certificates", result.Successful, result.Total),
		"results": result,
	})
}

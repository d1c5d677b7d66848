package api

import (
	"errors"
	"log/slog"

	"github.com/dnacommunity/backend/internal/account"
	"github.com/dnacommunity/backend/internal/admin"
	"github.com/dnacommunity/backend/internal/certificate"
	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/notifications"
	"github.com/dnacommunity/backend/internal/qa"
	"github.com/dnacommunity/backend/internal/reward"
	"github.com/dnacommunity/backend/internal/social"
	"github.com/dnacommunity/backend/internal/user"
	"github.com/dnacommunity/backend/internal/validator"
	"github.com/dnacommunity/backend/internal/workshop"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrMissingToken      = errors.New("missing or malformed bearer token")
	ErrForbidden         = errors.New("you are not allowed to access this resource")
	ErrAdminRequired     = errors.New("admin privileges required")
	ErrInvalidBody       = errors.New("invalid request body")
	ErrMissingParameters = errors.New("required parameters are missing")
)

// errorStatus maps every sentinel a handler can surface onto its HTTP status.
// The sentinel's own message is what the client sees.
var errorStatus = []struct {
	err    error
	status int
}{
	// Not found.
	{user.ErrUserNotFound, fiber.StatusNotFound},
	{admin.ErrUserNotFound, fiber.StatusNotFound},
	{admin.ErrNotificationNotFound, fiber.StatusNotFound},
	{admin.ErrQuestionNotFound, fiber.StatusNotFound},
	{workshop.ErrWorkshopNotFound, fiber.StatusNotFound},
	{workshop.ErrEnrollmentNotFound, fiber.StatusNotFound},
	{reward.ErrRewardNotFound, fiber.StatusNotFound},
	{reward.ErrClaimNotFound, fiber.StatusNotFound},
	{certificate.ErrCertificateNotFound, fiber.StatusNotFound},
	{certificate.ErrWorkshopNotFound, fiber.StatusNotFound},
	{certificate.ErrNoURL, fiber.StatusNotFound},
	{qa.ErrQuestionNotFound, fiber.StatusNotFound},
	{qa.ErrAnswerNotFound, fiber.StatusNotFound},
	{notifications.ErrNotificationNotFound, fiber.StatusNotFound},
	{docstore.ErrNotFound, fiber.StatusNotFound},

	// Unauthenticated.
	{ErrMissingToken, fiber.StatusUnauthorized},
	{account.ErrInvalidToken, fiber.StatusUnauthorized},
	{account.ErrInvalidCredentials, fiber.StatusUnauthorized},

	// Forbidden.
	{ErrForbidden, fiber.StatusForbidden},
	{ErrAdminRequired, fiber.StatusForbidden},
	{workshop.ErrCreatorRoleRequired, fiber.StatusForbidden},
	{workshop.ErrNotCreator, fiber.StatusForbidden},
	{certificate.ErrAccessDenied, fiber.StatusForbidden},
	{certificate.ErrNotCreator, fiber.StatusForbidden},
	{qa.ErrNotQuestionAuthor, fiber.StatusForbidden},
	{notifications.ErrNotOwner, fiber.StatusForbidden},

	// Rate limited.
	{account.ErrTooManyAttempts, fiber.StatusTooManyRequests},

	// Concurrent writers kept winning.
	{docstore.ErrConflict, fiber.StatusConflict},

	// Validation and state conflicts.
	{ErrInvalidBody, fiber.StatusBadRequest},
	{ErrMissingParameters, fiber.StatusBadRequest},
	{account.ErrEmailAlreadyInUse, fiber.StatusBadRequest},
	{social.ErrFollowSelf, fiber.StatusBadRequest},
	{social.ErrAlreadyFollowing, fiber.StatusBadRequest},
	{social.ErrNotFollowing, fiber.StatusBadRequest},
	{qa.ErrAnswerMismatch, fiber.StatusBadRequest},
	{qa.ErrInvalidTargetType, fiber.StatusBadRequest},
	{qa.ErrInvalidReaction, fiber.StatusBadRequest},
	{qa.ErrEmptyQuestion, fiber.StatusBadRequest},
	{qa.ErrEmptyAnswer, fiber.StatusBadRequest},
	{workshop.ErrNotEditable, fiber.StatusBadRequest},
	{workshop.ErrNotDraft, fiber.StatusBadRequest},
	{workshop.ErrAlreadyClosed, fiber.StatusBadRequest},
	{workshop.ErrDateNotInFuture, fiber.StatusBadRequest},
	{workshop.ErrCapacityBelowSeats, fiber.StatusBadRequest},
	{workshop.ErrInvalidUpdate, fiber.StatusBadRequest},
	{workshop.ErrNotPublished, fiber.StatusBadRequest},
	{workshop.ErrEnrollmentClosed, fiber.StatusBadRequest},
	{workshop.ErrAlreadyEnrolled, fiber.StatusBadRequest},
	{workshop.ErrAlreadyWaitlisted, fiber.StatusBadRequest},
	{workshop.ErrAlreadyCompleted, fiber.StatusBadRequest},
	{workshop.ErrAlreadyAttended, fiber.StatusBadRequest},
	{workshop.ErrWorkshopFull, fiber.StatusBadRequest},
	{workshop.ErrAlreadyCancelled, fiber.StatusBadRequest},
	{workshop.ErrCannotCancelCompleted, fiber.StatusBadRequest},
	{workshop.ErrNotCancellable, fiber.StatusBadRequest},
	{workshop.ErrNotParticipated, fiber.StatusBadRequest},
	{workshop.ErrInvalidRating, fiber.StatusBadRequest},
	{reward.ErrRewardUnavailable, fiber.StatusBadRequest},
	{reward.ErrOutOfStock, fiber.StatusBadRequest},
	{reward.ErrInvalidCost, fiber.StatusBadRequest},
	{reward.ErrInvalidRewardType, fiber.StatusBadRequest},
	{reward.ErrInvalidClaimStatus, fiber.StatusBadRequest},
	{reward.ErrInvalidClaimTransition, fiber.StatusBadRequest},
	{admin.ErrSelfRevoke, fiber.StatusBadRequest},
	{docstore.ErrAlreadyExists, fiber.StatusBadRequest},
}

// classify returns the status and the client-facing sentinel for err.
func classify(err error) (int, error, bool) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.err, true
		}
	}
	return 0, nil, false
}

// ErrorHandler turns handler errors into JSON bodies. Anything it does not
// recognise is logged and reported as a generic 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var insufficient *reward.InsufficientTokensError
		if errors.As(err, &insufficient) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":     "insufficient tokens",
				"required":  insufficient.Required,
				"available": insufficient.Available,
			})
		}

		if fields := validator.FieldErrors(err); fields != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "validation failed",
				"fields": fields,
			})
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		if status, public, ok := classify(err); ok {
			return c.Status(status).JSON(fiber.Map{"error": public.Error()})
		}

		logger.ErrorContext(c.UserContext(), "Unhandled request error",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
}

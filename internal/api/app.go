// Package api serves the community REST API over Fiber.
package api

import (
	"log/slog"
	"strings"
	"time"

	"github.com/dnacommunity/backend/internal/account"
	"github.com/dnacommunity/backend/internal/admin"
	"github.com/dnacommunity/backend/internal/certificate"
	"github.com/dnacommunity/backend/internal/config"
	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/monitoring"
	"github.com/dnacommunity/backend/internal/notifications"
	"github.com/dnacommunity/backend/internal/qa"
	"github.com/dnacommunity/backend/internal/reward"
	"github.com/dnacommunity/backend/internal/social"
	"github.com/dnacommunity/backend/internal/telemetry"
	"github.com/dnacommunity/backend/internal/user"
	"github.com/dnacommunity/backend/internal/validator"
	"github.com/dnacommunity/backend/internal/workshop"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

// Dependencies is everything the handlers need. Redis, Metrics and
// LimiterStorage are optional.
type Dependencies struct {
	Logger         *slog.Logger
	Store          docstore.Store
	Redis          *redis.Client
	Metrics        *monitoring.Metrics
	Validator      *validator.Validator
	LimiterStorage fiber.Storage
	// FilesDir is served under /files when certificates are stored on local disk.
	FilesDir string

	Accounts      *account.Manager
	Users         *user.Manager
	Social        *social.Manager
	QA            *qa.Manager
	Notifications *notifications.Manager
	Workshops     *workshop.Manager
	Rewards       *reward.Manager
	Certificates  *certificate.Manager
	Admin         *admin.Manager
}

type Handler struct {
	Dependencies
	tokenTTL time.Duration
}

// New builds the Fiber app with middleware and every route mounted.
func New(cfg *config.Config, deps Dependencies) *fiber.App {
	h := &Handler{Dependencies: deps, tokenTTL: cfg.Auth.TokenTTL}

	app := fiber.New(fiber.Config{
		AppName:      "DNA Community API",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: ErrorHandler(deps.Logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(SecurityHeaders())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORSOrigins(), ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))
	if cfg.Telemetry.Enabled {
		app.Use(telemetry.FiberMiddleware(cfg.Telemetry.ServiceName))
	}
	if deps.Metrics != nil {
		app.Use(deps.Metrics.Middleware())
		app.Get("/metrics", deps.Metrics.Handler())
	}
	app.Use(RequestLogger(deps.Logger))

	app.Get("/health", h.Health)
	if deps.FilesDir != "" {
		app.Static("/files", deps.FilesDir)
	}

	api := app.Group("/api")
	if cfg.Server.RateLimit > 0 {
		api.Use(limiter.New(limiter.Config{
			Max:        cfg.Server.RateLimit,
			Expiration: time.Minute,
			Storage:    deps.LimiterStorage,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "too many requests, please slow down",
				})
			},
		}))
	}

	h.mount(api)
	return app
}

func (h *Handler) mount(api fiber.Router) {
	auth := Authenticated(h.Accounts)
	self := SameUser("uid", h.Admin)
	adminOnly := AdminOnly(h.Admin)

	api.Post("/auth/signup", h.Signup)
	api.Post("/auth/login", h.Login)

	users := api.Group("/users", auth)
	users.Post("/follow", h.Follow)
	users.Post("/unfollow", h.Unfollow)
	users.Get("/profiles", h.ListProfiles)
	users.Get("/:uid", h.GetUser)
	users.Delete("/:uid", self, h.DeleteUser)
	users.Get("/:uid/followers", h.Followers)
	users.Get("/:uid/following", h.Following)
	users.Get("/:uid/profile", h.GetProfile)
	users.Put("/:uid/profile", self, h.UpdateProfile)
	users.Get("/:uid/onboarding/status", self, h.OnboardingStatus)
	users.Post("/:uid/onboarding/complete", self, h.CompleteOnboarding)

	questions := api.Group("/qa", auth)
	questions.Get("/questions", h.ListQuestions)
	questions.Get("/questions/:questionId", h.GetQuestion)
	questions.Get("/questions/:questionId/answers", h.ListAnswers)
	questions.Post("/:uid/questions", self, h.CreateQuestion)
	questions.Post("/:uid/answers", self, h.CreateAnswer)
	questions.Post("/:uid/answers/accept", self, h.AcceptAnswer)
	questions.Post("/:uid/reactions", self, h.ToggleReaction)

	// Verification is public so third parties can check a certificate.
	api.Get("/workshops/certificate/verify/:verificationCode", h.VerifyCertificate)

	workshops := api.Group("/workshops", auth)
	workshops.Get("/workshop/:workshopId", h.GetWorkshop)
	workshops.Get("/certificate/:certificateId", h.GetCertificate)
	workshops.Get("/certificate/:certificateId/download", h.DownloadCertificate)
	workshops.Put("/certificate/:certificateId/regenerate", h.RegenerateCertificate)
	workshops.Post("/:uid", self, h.CreateWorkshop)
	workshops.Get("/:uid/available", self, h.AvailableWorkshops)
	workshops.Get("/:uid/created", self, h.CreatedWorkshops)
	workshops.Get("/:uid/stats", self, h.WorkshopStats)
	workshops.Get("/:uid/enrollments", self, h.Enrollments)
	workshops.Get("/:uid/certificates", self, h.UserCertificates)
	workshops.Get("/:uid/certificate-analytics", self, h.CertificateAnalytics)
	workshops.Put("/:workshopId/:uid", self, h.UpdateWorkshop)
	workshops.Put("/:workshopId/:uid/publish", self, h.PublishWorkshop)
	workshops.Put("/:workshopId/:uid/cancel", self, h.CancelWorkshop)
	workshops.Post("/:workshopId/:uid/enroll", self, h.Enroll)
	workshops.Delete("/:workshopId/:uid/enroll", self, h.CancelEnrollment)
	workshops.Put("/:workshopId/:uid/complete", self, h.CompleteWorkshop)
	workshops.Get("/:workshopId/:uid/participants", self, h.Participants)
	workshops.Put("/:workshopId/:uid/certificates/regenerate", self, h.BulkRegenerateCertificates)

	rewards := api.Group("/rewards", auth)
	rewards.Get("/available", h.AvailableRewards)
	rewards.Get("/user/:uid/status", self, h.RewardStatus)
	rewards.Post("/user/:uid/redeem", self, h.Redeem)
	rewards.Get("/user/:uid/history", self, h.RewardHistory)
	rewards.Get("/admin/all", adminOnly, h.AllRewards)
	rewards.Post("/admin/create", adminOnly, h.CreateReward)
	rewards.Put("/admin/update/:rewardId", adminOnly, h.UpdateReward)
	rewards.Get("/admin/claims", adminOnly, h.Claims)
	rewards.Put("/admin/claims/:claimId/status", adminOnly, h.UpdateClaimStatus)

	notes := api.Group("/notifications", auth)
	notes.Get("/:uid", self, h.ListNotifications)
	notes.Get("/:uid/unread-count", self, h.UnreadCount)
	notes.Put("/:notificationId/read", h.MarkNotificationRead)
	notes.Put("/:uid/mark-all-read", self, h.MarkAllNotificationsRead)

	// Anyone may ask about their own admin status; everything else needs an admin.
	api.Get("/admin/check/:uid", auth, self, h.CheckAdmin)

	adm := api.Group("/admin", auth, adminOnly)
	adm.Get("/admins", h.Admins)
	adm.Put("/set/:uid", h.SetAdmin)
	adm.Get("/users", h.AdminUsers)
	adm.Get("/users/:uid", h.AdminUser)
	adm.Get("/rewards", h.AllRewards)
	adm.Post("/rewards", h.CreateReward)
	adm.Put("/rewards/:rewardId", h.UpdateReward)
	adm.Delete("/rewards/:rewardId", h.DeactivateReward)
	adm.Get("/activity", h.Activity)
	adm.Get("/activity/stats", h.ActivityStats)
	adm.Get("/activity/notifications/:notificationId", h.NotificationDetail)
	adm.Get("/questions", h.AdminQuestions)
	adm.Get("/questions/stats", h.QuestionStats)
	adm.Get("/questions/:questionId", h.AdminQuestion)
	adm.Delete("/questions/:questionId", h.DeleteQuestion)
}

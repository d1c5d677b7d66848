package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dnacommunity/backend/internal/account"
	"github.com/dnacommunity/backend/internal/admin"
	"github.com/dnacommunity/backend/internal/api"
	"github.com/dnacommunity/backend/internal/certificate"
	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/docstore/memory"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/notifications"
	"github.com/dnacommunity/backend/internal/qa"
	"github.com/dnacommunity/backend/internal/reward"
	"github.com/dnacommunity/backend/internal/social"
	"github.com/dnacommunity/backend/internal/testutil"
	"github.com/dnacommunity/backend/internal/user"
	"github.com/dnacommunity/backend/internal/validator"
	"github.com/dnacommunity/backend/internal/workshop"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app    *fiber.App
	store  *memory.Store
	tokens *account.TokenManager
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	cfg := testutil.TestConfig()
	log := testutil.Logger()
	store := testutil.NewStore(t)

	tokens := account.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	accounts := account.NewManager(log, store, tokens, account.NewRateLimiter(nil), cfg.Auth.BcryptCost)
	users := user.NewManager(log, store)
	follows := social.NewManager(log, store)
	notifier := notifications.NewManager(log, store, nil)
	questions := qa.NewManager(log, store, &notifier)
	certs := certificate.NewManager(log, store, certificate.NewPlaceholderRenderer(), nil)
	workshops := workshop.NewManager(log, store, &notifier, &certs, nil, workshop.Policy{})
	rewards := reward.NewManager(log, store, &notifier, nil)
	admins := admin.NewManager(log, store)

	app := api.New(cfg, api.Dependencies{
		Logger:        log,
		Store:         store,
		Validator:     validator.New(),
		Accounts:      &accounts,
		Users:         &users,
		Social:        &follows,
		QA:            &questions,
		Notifications: &notifier,
		Workshops:     &workshops,
		Rewards:       &rewards,
		Certificates:  &certs,
		Admin:         &admins,
	})
	return testEnv{app: app, store: store, tokens: tokens}
}

func (e testEnv) token(t *testing.T, u model.User) string {
	t.Helper()
	token, _, err := e.tokens.Issue(u.ID, u.Email)
	require.NoError(t, err)
	return token
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := testutil.Request(t, env.app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	var body map[string]any
	testutil.ParseJSONResponse(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "service healthy", body["message"])
}

func TestAuthRoutes(t *testing.T) {
	env := newTestEnv(t)
	email := testutil.UniqueEmail("signup")

	resp := testutil.Request(t, env.app, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Ada", "email": email, "password": testutil.ValidPassword(),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var signup struct {
		Token     string           `json:"token"`
		User      model.PublicUser `json:"user"`
		ExpiresIn int              `json:"expiresIn"`
	}
	testutil.ParseJSONResponse(t, resp, &signup)
	assert.NotEmpty(t, signup.Token)
	assert.Equal(t, email, signup.User.Email)
	assert.Equal(t, 24*60*60, signup.ExpiresIn)

	tests := []struct {
		name   string
		route  string
		body   map[string]string
		status int
		errMsg string
	}{
		{name: "duplicate_email", route: "/api/auth/signup", body: map[string]string{"name": "Ada", "email": email, "password": "secret1"}, status: http.StatusBadRequest, errMsg: account.ErrEmailAlreadyInUse.Error()},
		{name: "invalid_signup", route: "/api/auth/signup", body: map[string]string{"name": "Ada", "email": "nope", "password": "123"}, status: http.StatusBadRequest, errMsg: "validation failed"},
		{name: "wrong_password", route: "/api/auth/login", body: map[string]string{"email": email, "password": "wrong-pass"}, status: http.StatusUnauthorized, errMsg: account.ErrInvalidCredentials.Error()},
		{name: "login", route: "/api/auth/login", body: map[string]string{"email": email, "password": testutil.ValidPassword()}, status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testutil.Request(t, env.app, http.MethodPost, tt.route, "", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body map[string]any
			testutil.ParseJSONResponse(t, resp, &body)
			if tt.errMsg != "" {
				assert.Equal(t, tt.errMsg, body["error"])
			} else {
				assert.NotEmpty(t, body["token"])
			}
		})
	}
}

func TestAccessControl(t *testing.T) {
	env := newTestEnv(t)
	ada := testutil.CreateUser(t, env.store)
	bob := testutil.CreateUser(t, env.store)
	boss := testutil.CreateUser(t, env.store, testutil.AsAdmin())

	tests := []struct {
		name   string
		method string
		url    string
		token  string
		status int
	}{
		{name: "missing_token", method: http.MethodGet, url: "/api/users/" + ada.ID, status: http.StatusUnauthorized},
		{name: "garbage_token", method: http.MethodGet, url: "/api/users/" + ada.ID, token: "garbage", status: http.StatusUnauthorized},
		{name: "read_other_user", method: http.MethodGet, url: "/api/users/" + ada.ID, token: env.token(t, bob), status: http.StatusOK},
		{name: "other_users_notifications", method: http.MethodGet, url: "/api/notifications/" + ada.ID, token: env.token(t, bob), status: http.StatusForbidden},
		{name: "admin_reads_anyones_notifications", method: http.MethodGet, url: "/api/notifications/" + ada.ID, token: env.token(t, boss), status: http.StatusOK},
		{name: "member_on_admin_route", method: http.MethodGet, url: "/api/admin/users", token: env.token(t, ada), status: http.StatusForbidden},
		{name: "admin_on_admin_route", method: http.MethodGet, url: "/api/admin/users", token: env.token(t, boss), status: http.StatusOK},
		{name: "own_admin_check", method: http.MethodGet, url: "/api/admin/check/" + ada.ID, token: env.token(t, ada), status: http.StatusOK},
		{name: "unknown_user", method: http.MethodGet, url: "/api/users/ghost", token: env.token(t, ada), status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testutil.Request(t, env.app, tt.method, tt.url, tt.token, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestFollowRoutes(t *testing.T) {
	env := newTestEnv(t)
	ada := testutil.CreateUser(t, env.store)
	bob := testutil.CreateUser(t, env.store)

	resp := testutil.Request(t, env.app, http.MethodPost, "/api/users/follow", env.token(t, ada), map[string]string{
		"followerId": bob.ID, "followingId": ada.ID,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "members follow on their own behalf only")

	resp = testutil.Request(t, env.app, http.MethodPost, "/api/users/follow", env.token(t, ada), map[string]string{
		"followerId": ada.ID, "followingId": bob.ID,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = testutil.Request(t, env.app, http.MethodGet, "/api/users/"+bob.ID+"/followers", env.token(t, ada), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var followers struct {
		Count int `json:"count"`
	}
	testutil.ParseJSONResponse(t, resp, &followers)
	assert.Equal(t, 1, followers.Count)
}

func TestWorkshopRoutes(t *testing.T) {
	env := newTestEnv(t)
	host := testutil.CreateUser(t, env.store, testutil.AsCreator(), testutil.WithName("Host"))
	member := testutil.CreateUser(t, env.store, testutil.WithName("Member"))
	hostToken, memberToken := env.token(t, host), env.token(t, member)

	resp := testutil.Request(t, env.app, http.MethodPost, "/api/workshops/"+host.ID, hostToken, map[string]any{
		"title":         "Pandas basics",
		"description":   "DataFrames from scratch",
		"scheduledDate": time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"startTime":     "10:00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		WorkshopID string         `json:"workshopId"`
		Workshop   model.Workshop `json:"workshop"`
		XPAwarded  int            `json:"xpAwarded"`
	}
	testutil.ParseJSONResponse(t, resp, &created)
	assert.Equal(t, model.WorkshopStatusDraft, created.Workshop.Status)
	assert.Equal(t, workshop.CreateXP, created.XPAwarded)
	assert.NotEmpty(t, created.Workshop.MeetingLink)

	base := "/api/workshops/" + created.WorkshopID

	resp = testutil.Request(t, env.app, http.MethodPost, "/api/workshops/"+member.ID, memberToken, map[string]any{
		"title": "x", "description": "y", "scheduledDate": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "members cannot host")

	resp = testutil.Request(t, env.app, http.MethodPost, base+"/"+member.ID+"/enroll", memberToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "drafts are closed")

	resp = testutil.Request(t, env.app, http.MethodPut, base+"/"+host.ID+"/publish", hostToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = testutil.Request(t, env.app, http.MethodPost, base+"/"+member.ID+"/enroll", memberToken, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var enrolled struct {
		Status    model.EnrollmentStatus `json:"status"`
		XPAwarded int                    `json:"xpAwarded"`
	}
	testutil.ParseJSONResponse(t, resp, &enrolled)
	assert.Equal(t, model.EnrollmentEnrolled, enrolled.Status)
	assert.Equal(t, workshop.EnrollXP, enrolled.XPAwarded)

	resp = testutil.Request(t, env.app, http.MethodPost, base+"/"+member.ID+"/enroll", memberToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = testutil.Request(t, env.app, http.MethodPost, base+"/"+member.ID+"/enroll", hostToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "nobody enrolls someone else")

	resp = testutil.Request(t, env.app, http.MethodPut, base+"/"+member.ID+"/complete", memberToken, map[string]any{
		"feedback": map[string]any{"rating": 5, "comment": "great"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var completed struct {
		XPAwarded   int               `json:"xpAwarded"`
		Certificate model.Certificate `json:"certificate"`
	}
	testutil.ParseJSONResponse(t, resp, &completed)
	assert.Equal(t, workshop.CompleteXP, completed.XPAwarded)
	require.NotEmpty(t, completed.Certificate.VerificationCode)

	t.Run("public_verification", func(t *testing.T) {
		resp := testutil.Request(t, env.app, http.MethodGet, "/api/workshops/certificate/verify/"+completed.Certificate.VerificationCode, "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Message string `json:"message"`
			Valid   bool   `json:"valid"`
		}
		testutil.ParseJSONResponse(t, resp, &body)
		assert.True(t, body.Valid)
		assert.Equal(t, "certificate is valid", body.Message)

		resp = testutil.Request(t, env.app, http.MethodGet, "/api/workshops/certificate/verify/DNA-none-AAAAAAAA", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("download_redirects", func(t *testing.T) {
		resp := testutil.Request(t, env.app, http.MethodGet, "/api/workshops/certificate/"+completed.Certificate.ID+"/download?uid="+member.ID, memberToken, nil)
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, completed.Certificate.CertificateURL, resp.Header.Get("Location"))
	})

	t.Run("participants_for_host", func(t *testing.T) {
		resp := testutil.Request(t, env.app, http.MethodGet, base+"/"+host.ID+"/participants", hostToken, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("reads_carry_message", func(t *testing.T) {
		tests := []struct {
			name    string
			path    string
			token   string
			message string
		}{
			{name: "available", path: "/api/workshops/" + member.ID + "/available", token: memberToken, message: "workshops retrieved"},
			{name: "participants", path: base + "/" + host.ID + "/participants", token: hostToken, message: "participants retrieved"},
			{name: "enrollments", path: "/api/workshops/" + member.ID + "/enrollments", token: memberToken, message: "enrollments retrieved"},
			{name: "stats", path: "/api/workshops/" + member.ID + "/stats", token: memberToken, message: "workshop stats retrieved"},
			{name: "certificates", path: "/api/workshops/" + member.ID + "/certificates", token: memberToken, message: "certificates retrieved"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp := testutil.Request(t, env.app, http.MethodGet, tt.path, tt.token, nil)
				require.Equal(t, http.StatusOK, resp.StatusCode)
				var body map[string]any
				testutil.ParseJSONResponse(t, resp, &body)
				assert.Equal(t, tt.message, body["message"])
			})
		}
	})

	t.Run("bad_body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/workshops/"+host.ID, strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+hostToken)
		resp, err := env.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRewardRoutes(t *testing.T) {
	env := newTestEnv(t)
	u := testutil.CreateUser(t, env.store, testutil.WithXP(1000))
	boss := testutil.CreateUser(t, env.store, testutil.AsAdmin())
	r := testutil.CreateReward(t, env.store)
	token := env.token(t, u)

	resp := testutil.Request(t, env.app, http.MethodGet, "/api/rewards/user/"+u.ID+"/status", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status reward.Status
	testutil.ParseJSONResponse(t, resp, &status)
	assert.Equal(t, 10, status.CurrentLevel)
	assert.Equal(t, 1, status.AvailableTokens)
	assert.NotEmpty(t, status.Message)

	resp = testutil.Request(t, env.app, http.MethodPost, "/api/rewards/user/"+u.ID+"/redeem", token, map[string]any{"rewardId": r.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var redeemed struct {
		ClaimID         string `json:"claimId"`
		RemainingTokens int    `json:"remainingTokens"`
	}
	testutil.ParseJSONResponse(t, resp, &redeemed)
	assert.Equal(t, 0, redeemed.RemainingTokens)

	resp = testutil.Request(t, env.app, http.MethodPost, "/api/rewards/user/"+u.ID+"/redeem", token, map[string]any{"rewardId": r.ID})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var insufficient struct {
		Required  int `json:"required"`
		Available int `json:"available"`
	}
	testutil.ParseJSONResponse(t, resp, &insufficient)
	assert.Equal(t, 1, insufficient.Required)
	assert.Equal(t, 0, insufficient.Available)

	resp = testutil.Request(t, env.app, http.MethodPut, "/api/rewards/admin/claims/"+redeemed.ClaimID+"/status", token, map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = testutil.Request(t, env.app, http.MethodPut, "/api/rewards/admin/claims/"+redeemed.ClaimID+"/status", env.token(t, boss), map[string]any{"status": "cancelled"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	tok, err := docstore.QueryAs[model.Token](context.Background(), env.store, docstore.From(model.CollectionRewardTokens).Where("userId", docstore.OpEqual, u.ID))
	require.NoError(t, err)
	require.Len(t, tok, 1)
	assert.False(t, tok[0].IsUsed, "cancelling a claim refunds its tokens")
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler(testutil.Logger())})
	failures := map[string]error{
		"conflict":  fmt.Errorf("redeem: %w", docstore.ErrConflict),
		"not_found": fmt.Errorf("lookup: %w", user.ErrUserNotFound),
		"fiber":     fiber.NewError(http.StatusTeapot, "short and stout"),
		"unknown":   errors.New("database on fire"),
	}
	app.Get("/:case", func(c *fiber.Ctx) error { return failures[c.Params("case")] })

	tests := []struct {
		name   string
		status int
		errMsg string
	}{
		{name: "conflict", status: http.StatusConflict, errMsg: docstore.ErrConflict.Error()},
		{name: "not_found", status: http.StatusNotFound, errMsg: user.ErrUserNotFound.Error()},
		{name: "fiber", status: http.StatusTeapot, errMsg: "short and stout"},
		{name: "unknown", status: http.StatusInternalServerError, errMsg: "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testutil.Request(t, app, http.MethodGet, "/"+tt.name, "", nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body map[string]any
			testutil.ParseJSONResponse(t, resp, &body)
			assert.Equal(t, tt.errMsg, body["error"])
		})
	}
}

// Package testutil holds fixtures shared by the package tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dnacommunity/backend/internal/config"
	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/docstore/memory"
	"github.com/dnacommunity/backend/internal/logger"
	"github.com/dnacommunity/backend/internal/model"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestConfig returns a configuration for in-process tests: memory store,
// placeholder certificates and no rate limiting.
func TestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:        "localhost",
			Port:        "3001",
			Environment: config.EnvironmentTest,
			CORSOrigins: "http://localhost:3000",
			BodyLimit:   4 * 1024 * 1024,
		},
		Store: config.StoreConfig{Driver: config.StoreDriverMemory},
		Auth: config.AuthConfig{
			JWTSecret:  "test-jwt-secret",
			TokenTTL:   24 * time.Hour,
			BcryptCost: 4,
		},
		Storage: config.StorageConfig{
			Type:          "local",
			PublicBaseURL: "http://localhost:3001/files",
			Placeholder:   true,
		},
		Telemetry:  config.TelemetryConfig{ServiceName: "dnacommunity-test"},
		Enrollment: config.EnrollmentConfig{EnrollXP: 10, CompleteXP: 200},
		Reminders:  config.RemindersConfig{Schedule: "@every 15m", DayLead: 24 * time.Hour, HourLead: time.Hour},
	}
}

func Logger() *slog.Logger {
	return logger.Discard()
}

func NewStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	t.Cleanup(store.Close)
	return store
}

// Clock is a settable time source for managers' SetClock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now.UTC()
}

// PasswordHash is the bcrypt hash of "password".
const PasswordHash = "$2a$10$92IXUNpkjO0rOQ5byMi.Ye4oKoEa3Ro9llC/.og/at2.uheWG/igi"

type UserOption func(*model.User)

func WithName(name string) UserOption {
	return func(u *model.User) { u.Name = name }
}

func WithXP(xp int) UserOption {
	return func(u *model.User) { u.EngagementXP = xp }
}

func WithProfileRole(role string) UserOption {
	return func(u *model.User) { u.Profile.Role = role }
}

func AsAdmin() UserOption {
	return func(u *model.User) {
		u.IsAdmin = true
		u.Role = model.RoleAdmin
	}
}

func AsCreator() UserOption {
	return WithProfileRole(model.RoleWorkshopCreator)
}

// CreateUser stores an active user with a unique email.
func CreateUser(t *testing.T, store docstore.Writer, opts ...UserOption) model.User {
	t.Helper()
	id := uuid.NewString()
	u := model.NewUser(id, "Test User", UniqueEmail("user"), PasswordHash, time.Now().UTC())
	for _, opt := range opts {
		opt(&u)
	}
	require.NoError(t, store.Create(context.Background(), model.CollectionUsers, u.ID, u), "failed to create test user")
	return u
}

// CreateWorkshop stores a published workshop a week after now with ten seats.
func CreateWorkshop(t *testing.T, store docstore.Writer, creator model.User, now time.Time, mutate ...func(*model.Workshop)) model.Workshop {
	t.Helper()
	w := model.Workshop{
		ID:                      uuid.NewString(),
		Title:                   "Intro to SQL",
		Description:             "Joins, groups and windows",
		Category:                "data_analysis",
		Difficulty:              "beginner",
		Duration:                60,
		MaxParticipants:         10,
		Prerequisites:           []string{},
		LearningObjectives:      []string{},
		Tags:                    []string{"sql"},
		CreatorID:               creator.ID,
		CreatorName:             creator.Name,
		ScheduledDate:           now.Add(7 * 24 * time.Hour),
		StartTime:               "10:00",
		EndTime:                 "11:00",
		Timezone:                model.DefaultTimezone,
		MeetingType:             model.MeetingTypeGoogleMeet,
		Status:                  model.WorkshopStatusPublished,
		AutoGenerateCertificate: true,
		SendReminders:           true,
		AllowWaitlist:           true,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	for _, fn := range mutate {
		fn(&w)
	}
	require.NoError(t, store.Create(context.Background(), model.CollectionWorkshops, w.ID, w), "failed to create test workshop")
	return w
}

// CreateReward stores an active, unlimited reward costing one token.
func CreateReward(t *testing.T, store docstore.Writer, mutate ...func(*model.Reward)) model.Reward {
	t.Helper()
	now := time.Now().UTC()
	r := model.Reward{
		ID:          uuid.NewString(),
		Title:       "Sticker Pack",
		Description: "Community stickers",
		Type:        "physical",
		Cost:        1,
		Category:    "merchandise",
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, fn := range mutate {
		fn(&r)
	}
	require.NoError(t, store.Create(context.Background(), model.CollectionRewards, r.ID, r), "failed to create test reward")
	return r
}

func IntPtr(n int) *int { return &n }

// Request sends a JSON request to app. token may be empty.
func Request(t *testing.T, app *fiber.App, method, url, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// ParseJSONResponse decodes the response body into dest.
func ParseJSONResponse(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, dest), "body: %s", body)
}

var emailSeq atomic.Int64

// UniqueEmail generates a unique email for testing.
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s_%d_%d@test.example.com", prefix, time.Now().UnixNano(), emailSeq.Add(1))
}

// ValidPassword returns a password that meets strength requirements.
func ValidPassword() string {
	return "TestPassword123!"
}

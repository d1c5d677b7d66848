// Package admin backs the moderation dashboard: user and admin management,
// notification activity reports and question moderation.
package admin

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
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrSelfRevoke           = errors.New("admins cannot revoke their own admin status")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrQuestionNotFound     = errors.New("question not found")
)

type Manager struct {
	logger *slog.Logger
	store  docstore.Store
	now    func() time.Time
}

func NewManager(logger *slog.Logger, store docstore.Store) Manager {
	return Manager{logger: logger, store: store, now: time.Now}
}

func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNextPage"`
	HasPrev    bool `json:"hasPrevPage"`
}

func paginate(page, limit, total int) Pagination {
	p := Pagination{Page: page, Limit: limit, Total: total}
	p.TotalPages = (total + limit - 1) / limit
	p.HasNext = page < p.TotalPages
	p.HasPrev = page > 1
	return p
}

func pageAndLimit(page, limit, defaultLimit int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	return max(1, page), min(limit, 100)
}

// Period maps a dashboard period name onto its length. Unknown names use fallback.
func Period(name string, fallback time.Duration) time.Duration {
	switch name {
	case "7d":
		return 7 * 24 * time.Hour
	case "30d":
		return 30 * 24 * time.Hour
	case "90d":
		return 90 * 24 * time.Hour
	}
	return fallback
}

// IsAdmin reports whether the user may use the admin dashboard.
func (m *Manager) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := m.user(ctx, m.store, userID)
	if err != nil {
		return false, err
	}
	return u.Admin(), nil
}

// Admins lists everyone holding the admin flag or the admin role.
func (m *Manager) Admins(ctx context.Context) ([]model.PublicUser, error) {
	byRole, err := docstore.QueryAs[model.User](ctx, m.store, docstore.From(model.CollectionUsers).Where("role", docstore.OpEqual, model.RoleAdmin))
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	byFlag, err := docstore.QueryAs[model.User](ctx, m.store, docstore.From(model.CollectionUsers).Where("isAdmin", docstore.OpEqual, true))
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}

	seen := make(map[string]bool, len(byRole)+len(byFlag))
	admins := make([]model.PublicUser, 0, len(byRole)+len(byFlag))
	for _, u := range append(byRole, byFlag...) {
		if seen[u.ID] || !u.Active() {
			continue
		}
		seen[u.ID] = true
		admins = append(admins, u.Public())
	}
	return admins, nil
}

// SetAdmin grants or revokes admin rights. Admins cannot revoke themselves,
// so there is always someone left to manage the dashboard.
func (m *Manager) SetAdmin(ctx context.Context, actorID, userID string, isAdmin bool) (model.User, error) {
	if actorID == userID && !isAdmin {
		return model.User{}, ErrSelfRevoke
	}

	var result model.User
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		u, err := m.user(ctx, tx, userID)
		if err != nil {
			return err
		}
		u.IsAdmin = isAdmin
		u.Role = "user"
		if isAdmin {
			u.Role = model.RoleAdmin
		}
		u.UpdatedAt = m.now().UTC()
		result = u
		return tx.Set(ctx, model.CollectionUsers, u.ID, u)
	})
	if err == nil {
		m.logger.Info("Admin status changed", "actor_id", actorID, "user_id", userID, "is_admin", isAdmin)
	}
	return result, err
}

type UserFilter struct {
	Page       int
	Limit      int
	Role       string
	Onboarding *bool
	Search     string
}

type UserPage struct {
	Users      []model.PublicUser `json:"users"`
	Pagination Pagination         `json:"pagination"`
}

// Users pages through all users, newest first. Search matches name or email
// within the page.
func (m *Manager) Users(ctx context.Context, filter UserFilter) (UserPage, error) {
	page, limit := pageAndLimit(filter.Page, filter.Limit, 20)
	q := docstore.From(model.CollectionUsers)
	if filter.Role != "" {
		q = q.Where("profile.role", docstore.OpEqual, filter.Role)
	}
	if filter.Onboarding != nil {
		q = q.Where("hasCompletedOnboarding", docstore.OpEqual, *filter.Onboarding)
	}

	total, err := m.store.Count(ctx, q)
	if err != nil {
		return UserPage{}, fmt.Errorf("failed to count users: %w", err)
	}
	users, err := docstore.QueryAs[model.User](ctx, m.store, q.OrderBy("created_at", docstore.Desc).Limit(limit).Offset((page-1)*limit))
	if err != nil {
		return UserPage{}, fmt.Errorf("failed to list users: %w", err)
	}

	out := UserPage{Users: make([]model.PublicUser, 0, len(users)), Pagination: paginate(page, limit, total)}
	for _, u := range users {
		if contains(filter.Search, u.Name, u.Email) {
			out.Users = append(out.Users, u.Public())
		}
	}
	return out, nil
}

type UserCounts struct {
	FollowersCount    int `json:"followersCount"`
	FollowingCount    int `json:"followingCount"`
	WorkshopsEnrolled int `json:"workshopsEnrolled"`
}

type UserDetail struct {
	User         model.PublicUser `json:"user"`
	Counts       UserCounts       `json:"counts"`
	RecentClaims []model.Claim    `json:"recentClaims"`
}

func (m *Manager) User(ctx context.Context, userID string) (UserDetail, error) {
	u, err := m.user(ctx, m.store, userID)
	if err != nil {
		return UserDetail{}, err
	}

	detail := UserDetail{User: u.Public()}
	counts := []struct {
		dst *int
		q   docstore.Query
	}{
		{&detail.Counts.FollowersCount, docstore.From(model.CollectionFollowers).Where("followingId", docstore.OpEqual, userID)},
		{&detail.Counts.FollowingCount, docstore.From(model.CollectionFollowers).Where("followerId", docstore.OpEqual, userID)},
		{&detail.Counts.WorkshopsEnrolled, docstore.From(model.CollectionWorkshopEnrollments).Where("userId", docstore.OpEqual, userID)},
	}
	for _, c := range counts {
		if *c.dst, err = m.store.Count(ctx, c.q); err != nil {
			return detail, fmt.Errorf("failed to count user activity: %w", err)
		}
	}

	detail.RecentClaims, err = docstore.QueryAs[model.Claim](ctx, m.store, docstore.From(model.CollectionRewardClaims).
		Where("userId", docstore.OpEqual, userID).
		OrderBy("claimedAt", docstore.Desc).
		Limit(5))
	if err != nil {
		return detail, fmt.Errorf("failed to list claims: %w", err)
	}
	return detail, nil
}

func (m *Manager) user(ctx context.Context, r docstore.Reader, userID string) (model.User, error) {
	if userID == "" {
		return model.User{}, ErrUserNotFound
	}
	u, err := docstore.GetAs[model.User](ctx, r, model.CollectionUsers, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return u, ErrUserNotFound
	}
	return u, err
}

// UserCard is the short form of a user embedded in reports.
type UserCard struct {
	UID          string         `json:"uid"`
	Name         string         `json:"name"`
	Email        string         `json:"email"`
	EngagementXP int            `json:"engagement_xp"`
	Profile      *model.Profile `json:"profile,omitempty"`
}

// cards loads the given users once each. Missing users are left out.
func (m *Manager) cards(ctx context.Context, ids []string, withProfile bool) (map[string]UserCard, error) {
	out := make(map[string]UserCard, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok || id == "" || id == model.SystemUserID {
			continue
		}
		u, err := docstore.GetAs[model.User](ctx, m.store, model.CollectionUsers, id)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		card := UserCard{UID: u.ID, Name: u.Name, Email: u.Email, EngagementXP: u.EngagementXP}
		if withProfile {
			p := u.Profile
			card.Profile = &p
		}
		out[id] = card
	}
	return out, nil
}

func contains(term string, fields ...string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return slices.ContainsFunc(fields, func(f string) bool {
		return strings.Contains(strings.ToLower(f), term)
	})
}

func cardPtr(cards map[string]UserCard, id string) *UserCard {
	if c, ok := cards[id]; ok {
		return &c
	}
	return nil
}

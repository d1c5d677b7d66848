package user

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
	"github.com/dnacommunity/backend/internal/util"
)

var ErrUserNotFound = errors.New("user not found")

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

// Get returns an active user.
func (m *Manager) Get(ctx context.Context, userID string) (model.User, error) {
	return Get(ctx, m.store, userID)
}

// Get loads an active user through r, which may be a transaction.
func Get(ctx context.Context, r docstore.Reader, userID string) (model.User, error) {
	if userID == "" {
		return model.User{}, ErrUserNotFound
	}
	u, err := docstore.GetAs[model.User](ctx, r, model.CollectionUsers, userID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return u, ErrUserNotFound
		}
		return u, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	if !u.Active() {
		return u, ErrUserNotFound
	}
	return u, nil
}

// AddXP adjusts a user's XP inside tx and returns the updated user.
func AddXP(ctx context.Context, tx docstore.Tx, userID string, delta int, now time.Time) (model.User, error) {
	u, err := Get(ctx, tx, userID)
	if err != nil {
		return u, err
	}
	u.AddXP(delta, now.UTC())
	if err := tx.Set(ctx, model.CollectionUsers, u.ID, u); err != nil {
		return u, fmt.Errorf("failed to update xp for user %s: %w", userID, err)
	}
	return u, nil
}

// Summary is a profile card as other users see it.
type Summary struct {
	UID            string        `json:"uid"`
	Name           string        `json:"name"`
	Email          string        `json:"email,omitempty"`
	Profile        model.Profile `json:"profile"`
	EngagementXP   int           `json:"engagement_xp"`
	CreatedAt      time.Time     `json:"created_at"`
	FollowersCount int           `json:"followersCount"`
	FollowingCount int           `json:"followingCount"`
	IsFollowing    *bool         `json:"isFollowing,omitempty"`
}

type ListProfilesParams struct {
	Page   int
	Limit  int
	Role   string
	Skills []string
}

type ProfilePage struct {
	Profiles []Summary
	Page     int
	Limit    int
}

// ListProfiles pages through onboarded users by XP, highest first. Skills
// are matched after paging, case-insensitively.
func (m *Manager) ListProfiles(ctx context.Context, params ListProfilesParams) (ProfilePage, error) {
	page := ProfilePage{Page: max(1, params.Page), Limit: params.Limit}
	if page.Limit <= 0 {
		page.Limit = 20
	}

	q := docstore.From(model.CollectionUsers).
		Where("hasCompletedOnboarding", docstore.OpEqual, true).
		Where("state", docstore.OpEqual, string(model.UserStateActive))
	if params.Role != "" {
		q = q.Where("profile.role", docstore.OpEqual, params.Role)
	}
	q = q.OrderBy("engagement_xp", docstore.Desc).Limit(page.Limit).Offset((page.Page - 1) * page.Limit)

	users, err := docstore.QueryAs[model.User](ctx, m.store, q)
	if err != nil {
		return page, fmt.Errorf("failed to list profiles: %w", err)
	}

	page.Profiles = make([]Summary, 0, len(users))
	for _, u := range users {
		if len(params.Skills) > 0 && !slices.ContainsFunc(params.Skills, u.Profile.HasSkill) {
			continue
		}
		s, err := m.summary(ctx, u)
		if err != nil {
			return page, err
		}
		page.Profiles = append(page.Profiles, s)
	}
	return page, nil
}

// Profile returns the user's card. When viewerID is set the card says
// whether the viewer follows the user.
func (m *Manager) Profile(ctx context.Context, userID, viewerID string) (Summary, error) {
	u, err := m.Get(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	s, err := m.summary(ctx, u)
	if err != nil {
		return s, err
	}
	if viewerID != "" {
		following, err := docstore.Exists(ctx, m.store, model.CollectionFollowers, model.FollowID(viewerID, userID))
		if err != nil {
			return s, fmt.Errorf("failed to check follow edge: %w", err)
		}
		s.IsFollowing = &following
	}
	return s, nil
}

func (m *Manager) summary(ctx context.Context, u model.User) (Summary, error) {
	followers, err := m.store.Count(ctx, docstore.From(model.CollectionFollowers).Where("followingId", docstore.OpEqual, u.ID))
	if err != nil {
		return Summary{}, fmt.Errorf("failed to count followers: %w", err)
	}
	following, err := m.store.Count(ctx, docstore.From(model.CollectionFollowers).Where("followerId", docstore.OpEqual, u.ID))
	if err != nil {
		return Summary{}, fmt.Errorf("failed to count following: %w", err)
	}
	return Summary{
		UID:            u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Profile:        u.Profile,
		EngagementXP:   u.EngagementXP,
		CreatedAt:      u.CreatedAt,
		FollowersCount: followers,
		FollowingCount: following,
	}, nil
}

// ProfileInput carries the profile fields a user may change. Unset fields
// keep their stored value.
type ProfileInput struct {
	Name        util.Optional[string]            `json:"name"`
	Role        util.Optional[string]            `json:"role"`
	Experience  util.Optional[string]            `json:"experience"`
	Bio         util.Optional[string]            `json:"bio"`
	Location    util.Optional[string]            `json:"location"`
	Website     util.Optional[string]            `json:"website"`
	AvatarURL   util.Optional[string]            `json:"avatarUrl"`
	Languages   util.Optional[[]string]          `json:"languages"`
	Tools       util.Optional[[]string]          `json:"tools"`
	Skills      util.Optional[[]string]          `json:"skills"`
	Interests   util.Optional[[]string]          `json:"interests"`
	Goals       util.Optional[[]string]          `json:"goals"`
	SocialLinks util.Optional[map[string]string] `json:"socialLinks"`
}

func (in ProfileInput) apply(u *model.User, now time.Time) {
	if in.Name.IsSet && strings.TrimSpace(in.Name.Val) != "" {
		u.Name = strings.TrimSpace(in.Name.Val)
	}
	p := &u.Profile
	in.Role.ApplyTo(&p.Role)
	in.Experience.ApplyTo(&p.Experience)
	in.Bio.ApplyTo(&p.Bio)
	in.Location.ApplyTo(&p.Location)
	in.Website.ApplyTo(&p.Website)
	in.AvatarURL.ApplyTo(&p.AvatarURL)
	in.Languages.ApplyTo(&p.Languages)
	in.Tools.ApplyTo(&p.Tools)
	in.Skills.ApplyTo(&p.Skills)
	in.Interests.ApplyTo(&p.Interests)
	in.Goals.ApplyTo(&p.Goals)
	in.SocialLinks.ApplyTo(&p.SocialLinks)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	u.UpdatedAt = now
}

func (m *Manager) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (model.User, error) {
	return m.mutate(ctx, userID, func(u *model.User, now time.Time) {
		in.apply(u, now)
	})
}

type OnboardingStatus struct {
	HasCompletedOnboarding bool          `json:"hasCompletedOnboarding"`
	OnboardingCompletedAt  *time.Time    `json:"onboardingCompletedAt,omitempty"`
	Profile                model.Profile `json:"profile"`
}

func (m *Manager) OnboardingStatus(ctx context.Context, userID string) (OnboardingStatus, error) {
	u, err := m.Get(ctx, userID)
	if err != nil {
		return OnboardingStatus{}, err
	}
	return OnboardingStatus{
		HasCompletedOnboarding: u.HasCompletedOnboarding,
		OnboardingCompletedAt:  u.OnboardingCompletedAt,
		Profile:                u.Profile,
	}, nil
}

// CompleteOnboarding stores the onboarding answers. XP already earned is kept.
func (m *Manager) CompleteOnboarding(ctx context.Context, userID string, in ProfileInput) (model.User, error) {
	return m.mutate(ctx, userID, func(u *model.User, now time.Time) {
		in.apply(u, now)
		if !u.HasCompletedOnboarding {
			u.HasCompletedOnboarding = true
			u.OnboardingCompletedAt = &now
		}
	})
}

// Delete moves the user to the deleted lifecycle state. The document stays.
func (m *Manager) Delete(ctx context.Context, userID string) error {
	_, err := m.mutate(ctx, userID, func(u *model.User, now time.Time) {
		u.State = model.UserStateDeleted
		u.DeletedAt = &now
		u.UpdatedAt = now
	})
	if err == nil {
		m.logger.Info("User deleted", "user_id", userID)
	}
	return err
}

func (m *Manager) mutate(ctx context.Context, userID string, fn func(u *model.User, now time.Time)) (model.User, error) {
	var result model.User
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		u, err := Get(ctx, tx, userID)
		if err != nil {
			return err
		}
		fn(&u, m.now().UTC())
		if err := tx.Set(ctx, model.CollectionUsers, u.ID, u); err != nil {
			return fmt.Errorf("failed to update user %s: %w", userID, err)
		}
		result = u
		return nil
	})
	return result, err
}

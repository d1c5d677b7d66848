package model

import (
	"slices"
	"time"
)

type UserState string

const (
	UserStateActive  UserState = "active"
	UserStateDeleted UserState = "deleted"
)

const (
	RoleAdmin           = "admin"
	RoleWorkshopCreator = "workshop_creator"
)

type User struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Email                  string     `json:"email"`
	PasswordHash           string     `json:"passwordHash"`
	EngagementXP           int        `json:"engagement_xp"`
	HasCompletedOnboarding bool       `json:"hasCompletedOnboarding"`
	OnboardingCompletedAt  *time.Time `json:"onboardingCompletedAt,omitempty"`
	IsAdmin                bool       `json:"isAdmin"`
	Role                   string     `json:"role,omitempty"`
	State                  UserState  `json:"state"`
	DeletedAt              *time.Time `json:"deletedAt,omitempty"`
	Stats                  UserStats  `json:"stats"`
	Profile                Profile    `json:"profile"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

type UserStats struct {
	WorkshopsCreated   int `json:"workshopsCreated"`
	WorkshopsCompleted int `json:"workshopsCompleted"`
}

type Profile struct {
	Role        string            `json:"role,omitempty"`
	Experience  string            `json:"experience,omitempty"`
	Bio         string            `json:"bio"`
	Location    string            `json:"location"`
	Website     string            `json:"website"`
	AvatarURL   string            `json:"avatarUrl,omitempty"`
	Languages   []string          `json:"languages"`
	Tools       []string          `json:"tools"`
	Skills      []string          `json:"skills"`
	Interests   []string          `json:"interests"`
	Goals       []string          `json:"goals"`
	SocialLinks map[string]string `json:"socialLinks"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// NewUser returns an active user with an empty profile.
func NewUser(id, name, email, passwordHash string, now time.Time) User {
	return User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		State:        UserStateActive,
		Profile:      NewProfile(now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func NewProfile(now time.Time) Profile {
	return Profile{
		Languages:   []string{},
		Tools:       []string{},
		Skills:      []string{},
		Interests:   []string{},
		Goals:       []string{},
		SocialLinks: map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (u User) Active() bool {
	return u.State != UserStateDeleted
}

// Admin reports whether the user may use the admin surface.
func (u User) Admin() bool {
	return u.IsAdmin || u.Role == RoleAdmin
}

func (u User) CanCreateWorkshops() bool {
	return u.Profile.Role == RoleWorkshopCreator
}

// AddXP adjusts the XP counter, never going below zero.
func (u *User) AddXP(delta int, now time.Time) {
	u.EngagementXP = max(0, u.EngagementXP+delta)
	u.UpdatedAt = now
}

func (p Profile) HasSkill(skill string) bool {
	return slices.ContainsFunc(p.Skills, func(s string) bool {
		return equalFold(s, skill)
	})
}

// PublicUser is a user as clients see it: everything but the password hash.
type PublicUser struct {
	UID                    string     `json:"uid"`
	Name                   string     `json:"name"`
	Email                  string     `json:"email"`
	EngagementXP           int        `json:"engagement_xp"`
	HasCompletedOnboarding bool       `json:"hasCompletedOnboarding"`
	OnboardingCompletedAt  *time.Time `json:"onboardingCompletedAt,omitempty"`
	IsAdmin                bool       `json:"isAdmin"`
	Role                   string     `json:"role,omitempty"`
	State                  UserState  `json:"state"`
	Stats                  UserStats  `json:"stats"`
	Profile                Profile    `json:"profile"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		UID:                    u.ID,
		Name:                   u.Name,
		Email:                  u.Email,
		EngagementXP:           u.EngagementXP,
		HasCompletedOnboarding: u.HasCompletedOnboarding,
		OnboardingCompletedAt:  u.OnboardingCompletedAt,
		IsAdmin:                u.IsAdmin,
		Role:                   u.Role,
		State:                  u.State,
		Stats:                  u.Stats,
		Profile:                u.Profile,
		CreatedAt:              u.CreatedAt,
		UpdatedAt:              u.UpdatedAt,
	}
}

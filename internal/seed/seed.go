// Package seed fills an empty deployment with demo accounts and a small
// reward catalog.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dnacommunity/backend/internal/account"
	"github.com/dnacommunity/backend/internal/admin"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/reward"
	"github.com/dnacommunity/backend/internal/user"
	"github.com/dnacommunity/backend/internal/util"
)

const DefaultPassword = "password123"

type Account struct {
	Name    string
	Email   string
	Role    string
	IsAdmin bool
}

var DefaultAccounts = []Account{
	{Name: "Admin User", Email: "admin@example.com", IsAdmin: true},
	{Name: "Workshop Host", Email: "host@example.com", Role: model.RoleWorkshopCreator},
	{Name: "John Doe", Email: "john@example.com"},
	{Name: "Jane Smith", Email: "jane@example.com"},
}

func intPtr(n int) *int { return &n }

var DefaultRewards = []reward.RewardInput{
	{
		Title:       "DNA Community Sticker Pack",
		Description: "A set of community stickers shipped to your door.",
		Type:        "physical",
		Cost:        1,
		Category:    "merchandise",
		Stock:       intPtr(100),
	},
	{
		Title:       "Advanced SQL Course Voucher",
		Description: "Free access to a self-paced advanced SQL course.",
		Type:        "digital",
		Cost:        2,
		Category:    "learning",
	},
	{
		Title:       "1:1 Mentoring Session",
		Description: "Thirty minutes with a senior data practitioner.",
		Type:        "experience",
		Cost:        3,
		Category:    "exclusive_access",
		Stock:       intPtr(10),
	},
}

type Seeder struct {
	logger   *slog.Logger
	accounts *account.Manager
	users    *user.Manager
	admins   *admin.Manager
	rewards  *reward.Manager
}

func NewSeeder(logger *slog.Logger, accounts *account.Manager, users *user.Manager, admins *admin.Manager, rewards *reward.Manager) Seeder {
	return Seeder{logger: logger, accounts: accounts, users: users, admins: admins, rewards: rewards}
}

type Result struct {
	UsersCreated   int
	UsersSkipped   int
	RewardsCreated int
}

// Run creates the given accounts and rewards. Accounts whose email is taken
// are skipped and rewards are only added to an empty catalog, so running it
// twice changes nothing.
func (s *Seeder) Run(ctx context.Context, accounts []Account, rewards []reward.RewardInput) (Result, error) {
	var result Result

	for _, a := range accounts {
		session, err := s.accounts.Register(ctx, account.RegisterParam{
			Name:     a.Name,
			Email:    a.Email,
			Password: DefaultPassword,
		})
		if errors.Is(err, account.ErrEmailAlreadyInUse) {
			result.UsersSkipped++
			continue
		}
		if err != nil {
			return result, fmt.Errorf("failed to create user %s: %w", a.Email, err)
		}

		uid := session.User.ID
		if a.Role != "" {
			if _, err := s.users.UpdateProfile(ctx, uid, user.ProfileInput{Role: util.Some(a.Role)}); err != nil {
				return result, fmt.Errorf("failed to set role for %s: %w", a.Email, err)
			}
		}
		if a.IsAdmin {
			if _, err := s.admins.SetAdmin(ctx, model.SystemUserID, uid, true); err != nil {
				return result, fmt.Errorf("failed to grant admin to %s: %w", a.Email, err)
			}
		}
		s.logger.Info("Created user", "email", a.Email, "user_id", uid)
		result.UsersCreated++
	}

	existing, err := s.rewards.All(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list rewards: %w", err)
	}
	if len(existing) > 0 {
		s.logger.Info("Reward catalog not empty, skipping rewards", "count", len(existing))
		return result, nil
	}
	for _, in := range rewards {
		r, err := s.rewards.CreateReward(ctx, in)
		if err != nil {
			return result, fmt.Errorf("failed to create reward %q: %w", in.Title, err)
		}
		s.logger.Info("Created reward", "reward_id", r.ID, "title", r.Title)
		result.RewardsCreated++
	}

	return result, nil
}

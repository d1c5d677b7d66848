// Package reward turns XP into spendable tokens and lets users trade them
// for rewards. Minting is keyed by (user, milestone level) so it can run on
// every status check without minting twice.
package reward

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
	"github.com/dnacommunity/backend/internal/monitoring"
	"github.com/dnacommunity/backend/internal/notifications"
	"github.com/dnacommunity/backend/internal/user"
	"github.com/dnacommunity/backend/internal/util"

	"github.com/google/uuid"
)

var (
	ErrRewardNotFound         = errors.New("reward not found")
	ErrRewardUnavailable      = errors.New("reward is no longer available")
	ErrOutOfStock             = errors.New("reward is out of stock")
	ErrInvalidCost            = errors.New("reward cost must be at least 1")
	ErrInvalidRewardType      = errors.New("invalid reward type")
	ErrClaimNotFound          = errors.New("claim not found")
	ErrInvalidClaimStatus     = errors.New("invalid claim status")
	ErrInvalidClaimTransition = errors.New("claim status cannot change from its current state")
)

// InsufficientTokensError reports how many tokens a redemption needed.
type InsufficientTokensError struct {
	Required  int
	Available int
}

func (e *InsufficientTokensError) Error() string {
	return fmt.Sprintf("insufficient tokens: required %d, available %d", e.Required, e.Available)
}

type Manager struct {
	logger   *slog.Logger
	store    docstore.Store
	notifier *notifications.Manager
	metrics  *monitoring.Metrics
	now      func() time.Time
}

func NewManager(logger *slog.Logger, store docstore.Store, notifier *notifications.Manager, metrics *monitoring.Metrics) Manager {
	return Manager{logger: logger, store: store, notifier: notifier, metrics: metrics, now: time.Now}
}

func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

type Status struct {
	CurrentXP         int           `json:"currentXP"`
	CurrentLevel      int           `json:"currentLevel"`
	AvailableTokens   int           `json:"availableTokens"`
	TotalEarnedTokens int           `json:"totalEarnedTokens"`
	UnusedTokens      []model.Token `json:"unusedTokens"`
	UsedTokens        []model.Token `json:"usedTokens"`
	NewTokensEarned   int           `json:"newTokensEarned"`
	NextTokenLevel    int           `json:"nextTokenLevel"`
	XPToNextToken     int           `json:"xpToNextToken"`
	NotificationSent  bool          `json:"notificationSent"`
	Message           string        `json:"message,omitempty"`
}

// Status reports the user's token balance, minting every milestone token
// the user has reached but not yet received.
func (m *Manager) Status(ctx context.Context, userID string) (Status, error) {
	var status Status
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		status = Status{}
		u, err := user.Get(ctx, tx, userID)
		if err != nil {
			return err
		}

		tokens, err := tokensOf(ctx, tx, userID, false)
		if err != nil {
			return err
		}
		minted := make(map[int]bool, len(tokens))
		for _, t := range tokens {
			minted[t.Level] = true
		}

		xp := u.EngagementXP
		level := Level(xp)
		missing := MissingMilestones(level, minted)
		now := m.now().UTC()
		for _, l := range missing {
			t := model.Token{
				ID:           model.TokenID(userID, l),
				UserID:       userID,
				Level:        l,
				XPWhenEarned: xp,
				EarnedAt:     now,
			}
			if err := tx.Create(ctx, model.CollectionRewardTokens, t.ID, t); err != nil {
				return fmt.Errorf("failed to mint token for level %d: %w", l, err)
			}
			tokens = append(tokens, t)
		}

		for _, t := range tokens {
			if t.IsUsed {
				status.UsedTokens = append(status.UsedTokens, t)
			} else {
				status.UnusedTokens = append(status.UnusedTokens, t)
			}
		}
		status.CurrentXP = xp
		status.CurrentLevel = level
		status.AvailableTokens = len(status.UnusedTokens)
		status.TotalEarnedTokens = len(tokens)
		status.NewTokensEarned = len(missing)
		status.NextTokenLevel = NextTokenLevel(level)
		status.XPToNextToken = XPToNextToken(xp)

		if len(missing) == 0 {
			return nil
		}

		word := "tokens"
		if len(missing) == 1 {
			word = "token"
		}
		n := m.notifier.Build(notifications.NotifyParam{
			UserID:     userID,
			Type:       model.NotificationRewardTokenEarned,
			TargetID:   "reward_system",
			TargetType: "system",
			Message: fmt.Sprintf("Congratulations! You earned %d reward %s for reaching level %d. Use your tokens to redeem exclusive rewards.",
				len(missing), word, level),
			Metadata: map[string]any{
				"tokensEarned":         len(missing),
				"levelsAchieved":       missing,
				"currentLevel":         level,
				"currentXP":            xp,
				"totalAvailableTokens": status.AvailableTokens,
			},
		})
		if err := notifications.Put(ctx, tx, n); err != nil {
			return err
		}
		status.NotificationSent = true
		status.Message = fmt.Sprintf("You earned %d reward %s!", len(missing), word)
		return nil
	})
	if err != nil {
		return Status{}, err
	}

	if status.UnusedTokens == nil {
		status.UnusedTokens = []model.Token{}
	}
	if status.UsedTokens == nil {
		status.UsedTokens = []model.Token{}
	}
	if status.NewTokensEarned > 0 {
		m.metrics.RecordTokensMinted(status.NewTokensEarned)
		m.logger.Info("Minted reward tokens", "user_id", userID, "count", status.NewTokensEarned, "level", status.CurrentLevel)
	}
	return status, nil
}

type RedeemParam struct {
	UserID       string
	RewardID     string
	DeliveryInfo model.DeliveryInfo
}

type RedeemResult struct {
	Claim           model.Claim
	Reward          model.Reward
	TokensUsed      int
	RemainingTokens int
}

// Redeem spends reward.Cost of the user's oldest unused tokens on a pending
// claim. Stock, balance and claim are checked and written in one transaction,
// so concurrent redemptions can neither oversell nor overspend.
func (m *Manager) Redeem(ctx context.Context, param RedeemParam) (RedeemResult, error) {
	var result RedeemResult
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		result = RedeemResult{}
		u, err := user.Get(ctx, tx, param.UserID)
		if err != nil {
			return err
		}
		r, err := getReward(ctx, tx, param.RewardID)
		if err != nil {
			return err
		}
		now := m.now().UTC()
		if !r.IsActive || r.Expired(now) {
			return ErrRewardUnavailable
		}
		if r.Limited() && *r.Stock <= 0 {
			return ErrOutOfStock
		}

		unused, err := tokensOf(ctx, tx, u.ID, true)
		if err != nil {
			return err
		}
		if len(unused) < r.Cost {
			return &InsufficientTokensError{Required: r.Cost, Available: len(unused)}
		}

		claim := model.Claim{
			ID:               uuid.NewString(),
			UserID:           u.ID,
			RewardID:         r.ID,
			RewardTitle:      r.Title,
			TokensClaimed:    r.Cost,
			TokenIDs:         make([]string, 0, r.Cost),
			LevelWhenClaimed: Level(u.EngagementXP),
			XPWhenClaimed:    u.EngagementXP,
			ClaimedAt:        now,
			Status:           model.ClaimPending,
			DeliveryInfo:     param.DeliveryInfo,
			UpdatedAt:        now,
		}

		for _, t := range unused[:r.Cost] {
			t.IsUsed = true
			t.UsedAt = &now
			t.UsedForRewardID = r.ID
			t.UsedForClaimID = claim.ID
			if err := tx.Set(ctx, model.CollectionRewardTokens, t.ID, t); err != nil {
				return fmt.Errorf("failed to spend token %s: %w", t.ID, err)
			}
			claim.TokenIDs = append(claim.TokenIDs, t.ID)
		}

		if err := tx.Create(ctx, model.CollectionRewardClaims, claim.ID, claim); err != nil {
			return fmt.Errorf("failed to create claim: %w", err)
		}

		if r.Limited() {
			stock := *r.Stock - 1
			r.Stock = &stock
			r.UpdatedAt = now
			if err := tx.Set(ctx, model.CollectionRewards, r.ID, r); err != nil {
				return fmt.Errorf("failed to update reward stock: %w", err)
			}
		}

		result = RedeemResult{
			Claim:           claim,
			Reward:          r,
			TokensUsed:      r.Cost,
			RemainingTokens: len(unused) - r.Cost,
		}
		return nil
	})

	m.metrics.RecordRedemption(redemptionOutcome(err))
	if err != nil {
		return RedeemResult{}, err
	}
	m.logger.Info("Reward redeemed", "user_id", param.UserID, "reward_id", param.RewardID, "claim_id", result.Claim.ID)
	return result, nil
}

func redemptionOutcome(err error) string {
	var insufficient *InsufficientTokensError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &insufficient):
		return "insufficient_tokens"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrRewardUnavailable):
		return "unavailable"
	case errors.Is(err, ErrRewardNotFound), errors.Is(err, user.ErrUserNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// History pages through the user's claims, newest first.
func (m *Manager) History(ctx context.Context, userID string, page, limit int) ([]model.Claim, error) {
	page, limit = max(1, page), limitOrDefault(limit)
	claims, err := docstore.QueryAs[model.Claim](ctx, m.store, docstore.From(model.CollectionRewardClaims).
		Where("userId", docstore.OpEqual, userID).
		OrderBy("claimedAt", docstore.Desc).
		Limit(limit).
		Offset((page-1)*limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	return claims, nil
}

type AvailableParams struct {
	Category string
	Type     string
	MinCost  *int
	MaxCost  *int
}

// Available lists active, unexpired rewards, cheapest first.
func (m *Manager) Available(ctx context.Context, params AvailableParams) ([]model.Reward, error) {
	q := docstore.From(model.CollectionRewards).Where("isActive", docstore.OpEqual, true)
	if params.Category != "" {
		q = q.Where("category", docstore.OpEqual, params.Category)
	}
	if params.Type != "" {
		q = q.Where("type", docstore.OpEqual, params.Type)
	}
	rewards, err := docstore.QueryAs[model.Reward](ctx, m.store, q.OrderBy("cost", docstore.Asc))
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}

	now := m.now()
	return slices.DeleteFunc(rewards, func(r model.Reward) bool {
		return r.Expired(now) ||
			(params.MinCost != nil && r.Cost < *params.MinCost) ||
			(params.MaxCost != nil && r.Cost > *params.MaxCost)
	}), nil
}

// All lists every reward, active or not, newest first.
func (m *Manager) All(ctx context.Context) ([]model.Reward, error) {
	rewards, err := docstore.QueryAs[model.Reward](ctx, m.store, docstore.From(model.CollectionRewards).OrderBy("createdAt", docstore.Desc))
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	return rewards, nil
}

func (m *Manager) Get(ctx context.Context, rewardID string) (model.Reward, error) {
	return getReward(ctx, m.store, rewardID)
}

type RewardInput struct {
	Title       string              `json:"title" validate:"required,max=200"`
	Description string              `json:"description" validate:"required"`
	Type        string              `json:"type" validate:"required,oneof=digital physical experience discount"`
	Cost        int                 `json:"cost" validate:"required,min=1"`
	Category    string              `json:"category" validate:"required,oneof=learning merchandise certification exclusive_access other"`
	ImageURL    string              `json:"imageUrl"`
	IsActive    *bool               `json:"isActive"`
	Stock       *int                `json:"stock" validate:"omitempty,gte=0"`
	ExpiresAt   *time.Time          `json:"expiresAt"`
	Details     model.RewardDetails `json:"details"`
}

func (m *Manager) CreateReward(ctx context.Context, in RewardInput) (model.Reward, error) {
	if in.Cost < 1 {
		return model.Reward{}, ErrInvalidCost
	}
	now := m.now().UTC()
	r := model.Reward{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Type:        in.Type,
		Cost:        in.Cost,
		Category:    in.Category,
		ImageURL:    in.ImageURL,
		IsActive:    in.IsActive == nil || *in.IsActive,
		Stock:       in.Stock,
		ExpiresAt:   in.ExpiresAt,
		Details:     in.Details,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.Create(ctx, model.CollectionRewards, r.ID, r); err != nil {
		return r, fmt.Errorf("failed to create reward: %w", err)
	}
	m.logger.Info("Reward created", "reward_id", r.ID, "cost", r.Cost)
	return r, nil
}

// RewardPatch changes only the fields that are set. Setting Unlimited drops
// the stock limit.
type RewardPatch struct {
	Title       util.Optional[string]              `json:"title"`
	Description util.Optional[string]              `json:"description"`
	Type        util.Optional[string]              `json:"type"`
	Cost        util.Optional[int]                 `json:"cost"`
	Category    util.Optional[string]              `json:"category"`
	ImageURL    util.Optional[string]              `json:"imageUrl"`
	IsActive    util.Optional[bool]                `json:"isActive"`
	Stock       util.Optional[int]                 `json:"stock"`
	Unlimited   bool                               `json:"unlimited"`
	ExpiresAt   util.Optional[time.Time]           `json:"expiresAt"`
	Details     util.Optional[model.RewardDetails] `json:"details"`
}

func (m *Manager) UpdateReward(ctx context.Context, rewardID string, patch RewardPatch) (model.Reward, error) {
	if patch.Cost.IsSet && patch.Cost.Val < 1 {
		return model.Reward{}, ErrInvalidCost
	}
	if patch.Type.IsSet && !slices.Contains(model.RewardTypes, patch.Type.Val) {
		return model.Reward{}, ErrInvalidRewardType
	}
	return m.mutateReward(ctx, rewardID, func(r *model.Reward) {
		patch.Title.ApplyTo(&r.Title)
		patch.Description.ApplyTo(&r.Description)
		patch.Type.ApplyTo(&r.Type)
		patch.Cost.ApplyTo(&r.Cost)
		patch.Category.ApplyTo(&r.Category)
		patch.ImageURL.ApplyTo(&r.ImageURL)
		patch.IsActive.ApplyTo(&r.IsActive)
		patch.Details.ApplyTo(&r.Details)
		if patch.Stock.IsSet {
			stock := max(0, patch.Stock.Val)
			r.Stock = &stock
		}
		if patch.Unlimited {
			r.Stock = nil
		}
		if patch.ExpiresAt.IsSet {
			expires := patch.ExpiresAt.Val
			r.ExpiresAt = &expires
		}
	})
}

// Deactivate hides a reward from the catalogue without deleting its claims.
func (m *Manager) Deactivate(ctx context.Context, rewardID string) (model.Reward, error) {
	return m.mutateReward(ctx, rewardID, func(r *model.Reward) {
		r.IsActive = false
	})
}

func (m *Manager) mutateReward(ctx context.Context, rewardID string, fn func(r *model.Reward)) (model.Reward, error) {
	var result model.Reward
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		r, err := getReward(ctx, tx, rewardID)
		if err != nil {
			return err
		}
		fn(&r)
		r.UpdatedAt = m.now().UTC()
		result = r
		return tx.Set(ctx, model.CollectionRewards, r.ID, r)
	})
	return result, err
}

type ClaimFilter struct {
	Status model.ClaimStatus
	UserID string
	Page   int
	Limit  int
}

func (m *Manager) Claims(ctx context.Context, filter ClaimFilter) ([]model.Claim, error) {
	page, limit := max(1, filter.Page), limitOrDefault(filter.Limit)
	q := docstore.From(model.CollectionRewardClaims)
	if filter.Status != "" {
		q = q.Where("status", docstore.OpEqual, string(filter.Status))
	}
	if filter.UserID != "" {
		q = q.Where("userId", docstore.OpEqual, filter.UserID)
	}
	claims, err := docstore.QueryAs[model.Claim](ctx, m.store, q.OrderBy("claimedAt", docstore.Desc).Limit(limit).Offset((page-1)*limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	return claims, nil
}

// UpdateClaimStatus moves a claim along pending -> completed | cancelled.
// Cancelling a pending claim gives its tokens back and restores one unit of
// stock, all in the same transaction.
func (m *Manager) UpdateClaimStatus(ctx context.Context, claimID string, status model.ClaimStatus, adminNotes string) (model.Claim, error) {
	if !status.Valid() {
		return model.Claim{}, ErrInvalidClaimStatus
	}

	var result model.Claim
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		claim, err := docstore.GetAs[model.Claim](ctx, tx, model.CollectionRewardClaims, claimID)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return ErrClaimNotFound
			}
			return err
		}
		if claim.Status != status && claim.Status != model.ClaimPending {
			return ErrInvalidClaimTransition
		}

		now := m.now().UTC()
		if claim.Status == model.ClaimPending && status == model.ClaimCancelled {
			if err := refund(ctx, tx, claim, now); err != nil {
				return err
			}
		}

		claim.Status = status
		if adminNotes != "" {
			claim.AdminNotes = adminNotes
		}
		claim.UpdatedAt = now
		result = claim
		return tx.Set(ctx, model.CollectionRewardClaims, claim.ID, claim)
	})
	return result, err
}

func refund(ctx context.Context, tx docstore.Tx, claim model.Claim, now time.Time) error {
	for _, id := range claim.TokenIDs {
		t, err := docstore.GetAs[model.Token](ctx, tx, model.CollectionRewardTokens, id)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if t.UsedForClaimID != claim.ID {
			continue
		}
		t.IsUsed = false
		t.UsedAt = nil
		t.UsedForRewardID = ""
		t.UsedForClaimID = ""
		if err := tx.Set(ctx, model.CollectionRewardTokens, t.ID, t); err != nil {
			return fmt.Errorf("failed to refund token %s: %w", t.ID, err)
		}
	}

	r, err := getReward(ctx, tx, claim.RewardID)
	if errors.Is(err, ErrRewardNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if r.Limited() {
		stock := *r.Stock + 1
		r.Stock = &stock
		r.UpdatedAt = now
		return tx.Set(ctx, model.CollectionRewards, r.ID, r)
	}
	return nil
}

func getReward(ctx context.Context, r docstore.Reader, rewardID string) (model.Reward, error) {
	if rewardID == "" {
		return model.Reward{}, ErrRewardNotFound
	}
	rw, err := docstore.GetAs[model.Reward](ctx, r, model.CollectionRewards, rewardID)
	if errors.Is(err, docstore.ErrNotFound) {
		return rw, ErrRewardNotFound
	}
	return rw, err
}

// tokensOf lists the user's tokens, oldest first. unusedOnly narrows the
// list to spendable tokens.
func tokensOf(ctx context.Context, r docstore.Reader, userID string, unusedOnly bool) ([]model.Token, error) {
	q := docstore.From(model.CollectionRewardTokens).Where("userId", docstore.OpEqual, userID)
	if unusedOnly {
		q = q.Where("isUsed", docstore.OpEqual, false)
	}
	tokens, err := docstore.QueryAs[model.Token](ctx, r, q.OrderBy("earnedAt", docstore.Asc).OrderBy("level", docstore.Asc))
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return tokens, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 20
	}
	return min(limit, 100)
}

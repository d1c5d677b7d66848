package api

import (
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/reward"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) RewardStatus(c *fiber.Ctx) error {
	status, err := h.Rewards.Status(c.UserContext(), c.Params("uid"))
	if err != nil {
		return err
	}
	if status.Message == "" {
		status.Message = "reward status retrieved"
	}
	return c.JSON(status)
}

type redeemRequest struct {
	RewardID     string             `json:"rewardId" validate:"required"`
	DeliveryInfo model.DeliveryInfo `json:"deliveryInfo"`
}

func (h *Handler) Redeem(c *fiber.Ctx) error {
	var req redeemRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	result, err := h.Rewards.Redeem(c.UserContext(), reward.RedeemParam{
		UserID:       c.Params("uid"),
		RewardID:     req.RewardID,
		DeliveryInfo: req.DeliveryInfo,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":         "reward redeemed successfully",
		"claimId":         result.Claim.ID,
		"claim":           result.Claim,
		"reward":          result.Reward,
		"tokensUsed":      result.TokensUsed,
		"remainingTokens": result.RemainingTokens,
	})
}

func (h *Handler) RewardHistory(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	claims, err := h.Rewards.History(c.UserContext(), c.Params("uid"), page, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":    "reward history retrieved",
		"claims":     claims,
		"count":      len(claims),
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
		},
	})
}

func (h *Handler) AvailableRewards(c *fiber.Ctx) error {
	rewards, err := h.Rewards.Available(c.UserContext(), reward.AvailableParams{
		Category: c.Query("category"),
		Type:     c.Query("type"),
		MinCost:  queryIntPtr(c, "minCost"),
		MaxCost:  queryIntPtr(c, "maxCost"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "rewards retrieved",
		"rewards": rewards,
		"count":   len(rewards),
		"filters": filters(c, "category", "type", "minCost", "maxCost"),
	})
}

func (h *Handler) AllRewards(c *fiber.Ctx) error {
	rewards, err := h.Rewards.All(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "rewards retrieved", "rewards": rewards, "count": len(rewards)})
}

func (h *Handler) CreateReward(c *fiber.Ctx) error {
	var in reward.RewardInput
	if err := h.bind(c, &in); err != nil {
		return err
	}
	r, err := h.Rewards.CreateReward(c.UserContext(), in)
	if err != nil {
		return err
	}
	h.Logger.InfoContext(c.UserContext(), "Reward created", "reward_id", r.ID, "admin_id", UserID(c))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "reward created successfully",
		"rewardId": r.ID,
		"reward":   r,
	})
}

func (h *Handler) UpdateReward(c *fiber.Ctx) error {
	var patch reward.RewardPatch
	if err := h.bind(c, &patch); err != nil {
		return err
	}
	r, err := h.Rewards.UpdateReward(c.UserContext(), c.Params("rewardId"), patch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "reward updated successfully",
		"reward":  r,
	})
}

func (h *Handler) DeactivateReward(c *fiber.Ctx) error {
	r, err := h.Rewards.Deactivate(c.UserContext(), c.Params("rewardId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "reward deactivated successfully",
		"reward":  r,
	})
}

func (h *Handler) Claims(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	claims, err := h.Rewards.Claims(c.UserContext(), reward.ClaimFilter{
		Status: model.ClaimStatus(c.Query("status")),
		UserID: c.Query("userId"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":    "claims retrieved",
		"claims":     claims,
		"count":      len(claims),
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
		},
		"filters": filters(c, "status", "userId"),
	})
}

type claimStatusRequest struct {
	Status     model.ClaimStatus `json:"status" validate:"required,oneof=pending completed cancelled"`
	AdminNotes string            `json:"adminNotes" validate:"max=2000"`
}

func (h *Handler) UpdateClaimStatus(c *fiber.Ctx) error {
	var req claimStatusRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	claim, err := h.Rewards.UpdateClaimStatus(c.UserContext(), c.Params("claimId"), req.Status, req.AdminNotes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "claim status updated successfully",
		"claim":   claim,
	})
}

package model

import (
	"strconv"
	"time"
)

var (
	RewardTypes      = []string{"digital", "physical", "experience", "discount"}
	RewardCategories = []string{"learning", "merchandise", "certification", "exclusive_access", "other"}
)

type Reward struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Type        string        `json:"type"`
	Cost        int           `json:"cost"`
	Category    string        `json:"category"`
	ImageURL    string        `json:"imageUrl,omitempty"`
	IsActive    bool          `json:"isActive"`
	Stock       *int          `json:"stock,omitempty"`
	ExpiresAt   *time.Time    `json:"expiresAt,omitempty"`
	Details     RewardDetails `json:"details"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type RewardDetails struct {
	Instructions   string     `json:"instructions,omitempty"`
	RedemptionCode string     `json:"redemptionCode,omitempty"`
	DownloadLink   string     `json:"downloadLink,omitempty"`
	ContactInfo    string     `json:"contactInfo,omitempty"`
	ValidUntil     *time.Time `json:"validUntil,omitempty"`
}

// Limited reports whether redemptions draw down a stock counter.
func (r Reward) Limited() bool {
	return r.Stock != nil
}

func (r Reward) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

type Token struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Level           int        `json:"level"`
	XPWhenEarned    int        `json:"xpWhenEarned"`
	EarnedAt        time.Time  `json:"earnedAt"`
	IsUsed          bool       `json:"isUsed"`
	UsedAt          *time.Time `json:"usedAt,omitempty"`
	UsedForRewardID string     `json:"usedForRewardId,omitempty"`
	UsedForClaimID  string     `json:"usedForClaimId,omitempty"`
}

// TokenID keys a token by the milestone level that minted it.
func TokenID(userID string, level int) string {
	return userID + "_level_" + strconv.Itoa(level)
}

type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "pending"
	ClaimCompleted ClaimStatus = "completed"
	ClaimCancelled ClaimStatus = "cancelled"
)

func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimPending, ClaimCompleted, ClaimCancelled:
		return true
	}
	return false
}

type DeliveryInfo struct {
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

type Claim struct {
	ID               string       `json:"id"`
	UserID           string       `json:"userId"`
	RewardID         string       `json:"rewardId"`
	RewardTitle      string       `json:"rewardTitle"`
	TokensClaimed    int          `json:"tokensClaimed"`
	TokenIDs         []string     `json:"tokenIds"`
	LevelWhenClaimed int          `json:"levelWhenClaimed"`
	XPWhenClaimed    int          `json:"xpWhenClaimed"`
	ClaimedAt        time.Time    `json:"claimedAt"`
	Status           ClaimStatus  `json:"status"`
	DeliveryInfo     DeliveryInfo `json:"deliveryInfo"`
	AdminNotes       string       `json:"adminNotes,omitempty"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

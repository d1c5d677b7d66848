package model

import (
	"strings"
	"time"
)

type Follow struct {
	ID          string    `json:"id"`
	FollowerID  string    `json:"followerId"`
	FollowingID string    `json:"followingId"`
	CreatedAt   time.Time `json:"createdAt"`
}

func FollowID(followerID, followingID string) string {
	return followerID + "_" + followingID
}

type ReactionType string

const (
	ReactionLike       ReactionType = "like"
	ReactionHelpful    ReactionType = "helpful"
	ReactionInsightful ReactionType = "insightful"
	ReactionThanks     ReactionType = "thanks"
)

type Mention struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
}

type Reaction struct {
	UserID    string       `json:"userId"`
	Type      ReactionType `json:"type"`
	CreatedAt time.Time    `json:"createdAt"`
}

type Question struct {
	ID               string     `json:"id"`
	AuthorID         string     `json:"authorId"`
	AuthorName       string     `json:"authorName"`
	AuthorAvatar     string     `json:"authorAvatar,omitempty"`
	Title            string     `json:"title"`
	Content          string     `json:"content"`
	Tags             []string   `json:"tags"`
	Mentions         []Mention  `json:"mentions"`
	Reactions        []Reaction `json:"reactions"`
	AnswersCount     int        `json:"answersCount"`
	ViewsCount       int        `json:"viewsCount"`
	IsResolved       bool       `json:"isResolved"`
	AcceptedAnswerID string     `json:"acceptedAnswerId,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type Answer struct {
	ID           string     `json:"id"`
	QuestionID   string     `json:"questionId"`
	AuthorID     string     `json:"authorId"`
	AuthorName   string     `json:"authorName"`
	AuthorAvatar string     `json:"authorAvatar,omitempty"`
	Content      string     `json:"content"`
	Mentions     []Mention  `json:"mentions"`
	Reactions    []Reaction `json:"reactions"`
	IsAccepted   bool       `json:"isAccepted"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// ReactionCounts tallies reactions by type.
func ReactionCounts(reactions []Reaction) map[ReactionType]int {
	counts := map[ReactionType]int{
		ReactionLike:       0,
		ReactionHelpful:    0,
		ReactionInsightful: 0,
		ReactionThanks:     0,
	}
	for _, r := range reactions {
		counts[r.Type]++
	}
	return counts
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

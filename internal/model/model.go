// Package model holds the stored document types shared by the domain
// managers. JSON names match the document fields the clients already use.
package model

// Collections.
const (
	CollectionUsers               = "users"
	CollectionFollowers           = "followers"
	CollectionQuestions           = "questions"
	CollectionAnswers             = "answers"
	CollectionWorkshops           = "workshops"
	CollectionWorkshopEnrollments = "workshop_enrollments"
	CollectionWorkshopCerts       = "workshop_certificates"
	CollectionRewards             = "rewards"
	CollectionRewardTokens        = "user_reward_tokens"
	CollectionRewardClaims        = "user_reward_claims"
	CollectionNotifications       = "notifications"
)

// SystemUserID marks notifications that no user sent.
const (
	SystemUserID   = "system"
	SystemUserName = "DNA Community System"
)

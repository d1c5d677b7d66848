package model

import "time"

type NotificationType string

const (
	NotificationWorkshopEnrollment NotificationType = "workshop_enrollment"
	NotificationWorkshopReminder   NotificationType = "workshop_reminder"
	NotificationWorkshopStarting   NotificationType = "workshop_starting"
	NotificationWorkshopCompleted  NotificationType = "workshop_completed"
	NotificationWorkshopCancelled  NotificationType = "workshop_cancelled"
	NotificationRewardTokenEarned  NotificationType = "reward_token_earned"
	NotificationMention            NotificationType = "mention"
	NotificationAnswer             NotificationType = "answer"
)

type Notification struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	Type         NotificationType `json:"type"`
	FromUserID   string           `json:"fromUserId"`
	FromUserName string           `json:"fromUserName"`
	TargetID     string           `json:"targetId"`
	TargetType   string           `json:"targetType"`
	Message      string           `json:"message"`
	Read         bool             `json:"read"`
	ReadAt       *time.Time       `json:"readAt,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

func (n Notification) System() bool {
	return n.FromUserID == SystemUserID
}

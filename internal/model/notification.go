package model

import "time"

type NotificationType string

const (
	NotificationLikeReward NotificationType = "like_reward"
)

// Notification is what the engine hands to the notification sink.
type Notification struct {
	ID        string           `json:"id"`
	ToUser    string           `json:"toUser"`
	FromUser  string           `json:"fromUser"`
	Type      NotificationType `json:"type"`
	Amount    int64            `json:"amount"`
	CreatedAt time.Time        `json:"createdAt"`
}

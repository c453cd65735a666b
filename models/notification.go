package models

import "time"

type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

// Notification is one entry of the feed. A nil ReaderID is a broadcast.
type Notification struct {
	ID        string           `bson:"_id" db:"id" json:"id"`
	Title     string           `bson:"title" db:"title" json:"title"`
	Message   string           `bson:"message" db:"message" json:"message"`
	Type      NotificationType `bson:"type" db:"type" json:"type"`
	IsRead    bool             `bson:"isRead" db:"is_read" json:"isRead"`
	ReaderID  *string          `bson:"readerId,omitempty" db:"reader_id" json:"readerId"`
	CreatedAt time.Time        `bson:"createdAt" db:"created_at" json:"createdAt"`
}

package models

import "time"

// Notification types.
const (
	NotificationTypeAnnouncement = "announcement"
)

// Notification is a per-recipient record created by a broadcast. Records are
// independent of the entity that triggered them: deleting the trigger never
// removes or edits them. Only the recipient mutates Read.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Type        string    `json:"type"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
	RelatedID   *string   `json:"related_id,omitempty"`
	SenderID    *string   `json:"sender_id,omitempty"`
}

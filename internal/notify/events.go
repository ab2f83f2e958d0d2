package notify

import (
	"staffhub/internal/models"
)

// AnnouncementTitle heads every announcement notification.
const AnnouncementTitle = "🔔 New announcement"

// previewRunes is how much of an announcement title the notification quotes.
const previewRunes = 50

// AnnouncementEvent builds the broadcast for a newly created announcement.
// The title is expected to be sanitized already.
func AnnouncementEvent(a *models.Announcement) Event {
	related := a.Ref()
	sender := a.CreatedBy
	return Event{
		Title:     AnnouncementTitle,
		Message:   Preview(a.Title, previewRunes),
		Type:      models.NotificationTypeAnnouncement,
		RelatedID: &related,
		SenderID:  &sender,
		AsOf:      a.CreatedAt,
	}
}

// Preview cuts s to at most n runes, marking the cut with "...".
func Preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

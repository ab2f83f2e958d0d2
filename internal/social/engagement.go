package social

import (
	"context"
	"errors"

	"staffhub/internal/engagement"
	"staffhub/internal/models"
	"staffhub/internal/storage"
)

func (s *Service) ToggleLike(ctx context.Context, user *models.User, targetType models.TargetType, ref string) (*models.ToggleResult, error) {
	result, err := s.engagement.Toggle(ctx, user.ID, targetType, ref)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, engagement.ErrTargetNotFound):
		return nil, NewTargetNotFoundError(targetType, err)
	case errors.Is(err, engagement.ErrToggleContended):
		return nil, NewConflictError("like is being changed concurrently, try again", err)
	default:
		return nil, NewInternalError("failed to toggle like", err)
	}
}

// ListNotifications returns the user's latest notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, user *models.User) ([]*models.Notification, error) {
	list, err := s.store.ListNotifications(ctx, user.ID, notificationListLimit)
	if err != nil {
		return nil, NewInternalError("failed to list notifications", err)
	}
	return list, nil
}

// MarkNotificationRead only touches the user's own notifications.
func (s *Service) MarkNotificationRead(ctx context.Context, user *models.User, id string) error {
	if err := s.store.MarkNotificationRead(ctx, id, user.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError("notification not found")
		}
		return NewInternalError("failed to mark notification read", err)
	}
	return nil
}

func (s *Service) UnreadCount(ctx context.Context, user *models.User) (int, error) {
	n, err := s.store.CountUnread(ctx, user.ID)
	if err != nil {
		return 0, NewInternalError("failed to count notifications", err)
	}
	return n, nil
}

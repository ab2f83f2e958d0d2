package social

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"staffhub/internal/models"
	"staffhub/internal/notify"
	"staffhub/internal/storage"
)

func (s *Service) ListAnnouncements(ctx context.Context) ([]*models.Announcement, error) {
	list, err := s.store.ListAnnouncements(ctx, announcementListLimit)
	if err != nil {
		return nil, NewInternalError("failed to list announcements", err)
	}
	return list, nil
}

// CreateAnnouncement stores a sanitized announcement and broadcasts it. The
// broadcast starts only after the announcement is committed and never affects
// the response.
func (s *Service) CreateAnnouncement(ctx context.Context, user *models.User, req *models.CreateAnnouncementRequest) (*models.Announcement, error) {
	if !user.CanPublish() {
		return nil, NewForbiddenError("only publishers can create announcements")
	}
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid announcement", err)
	}

	title, err := s.cleanRequired("title", req.Title, s.limits.TitleMaxBytes)
	if err != nil {
		return nil, err
	}
	content, err := s.cleanRequired("content", req.Content, s.limits.BodyMaxBytes)
	if err != nil {
		return nil, err
	}

	a := &models.Announcement{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		IsUrgent:  req.IsUrgent,
		ImageURL:  s.sanitizer.SanitizeOptional(req.ImageURL),
		CreatedBy: user.ID,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateAnnouncement(ctx, a); err != nil {
		return nil, NewInternalError("failed to create announcement", err)
	}

	slog.Info("Announcement created", "announcement_id", a.Ref(), "user_id", user.ID, "urgent", a.IsUrgent)
	s.fanout.Broadcast(ctx, notify.AnnouncementEvent(a))
	return a, nil
}

// DeleteAnnouncement accepts either identifier. Notifications that point at
// the announcement are left in place.
func (s *Service) DeleteAnnouncement(ctx context.Context, user *models.User, ref string) error {
	if !user.CanPublish() {
		return NewForbiddenError("only publishers can delete announcements")
	}

	if err := s.store.DeleteAnnouncement(ctx, ref); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError("announcement not found")
		}
		return NewInternalError("failed to delete announcement", err)
	}

	slog.Info("Announcement deleted", "ref", ref, "user_id", user.ID)
	return nil
}

func (s *Service) ListPosts(ctx context.Context) ([]*models.Post, error) {
	list, err := s.store.ListPosts(ctx, 0)
	if err != nil {
		return nil, NewInternalError("failed to list posts", err)
	}
	return list, nil
}

// CreatePost needs text, an image, or both.
func (s *Service) CreatePost(ctx context.Context, user *models.User, req *models.CreatePostRequest) (*models.Post, error) {
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid post", err)
	}

	content, err := s.clean("content", req.Content, s.limits.BodyMaxBytes)
	if err != nil {
		return nil, err
	}
	image := s.sanitizer.SanitizeOptional(req.ImageURL)
	if content == "" && (image == nil || *image == "") {
		return nil, NewRequiredFieldError("content")
	}

	p := &models.Post{
		ID:        uuid.NewString(),
		AuthorID:  user.ID,
		Content:   content,
		ImageURL:  image,
		CreatedAt: s.now(),
	}
	if err := s.store.CreatePost(ctx, p); err != nil {
		return nil, NewInternalError("failed to create post", err)
	}
	return p, nil
}

// DeletePost is allowed for the author and for admins. Comments and likes go
// with the post.
func (s *Service) DeletePost(ctx context.Context, user *models.User, ref string) error {
	p, err := s.store.GetPost(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError("post not found")
		}
		return NewInternalError("failed to load post", err)
	}

	if p.AuthorID != user.ID && !user.IsAdmin {
		return NewForbiddenError("only the author or an admin can delete a post")
	}

	if err := s.store.DeletePost(ctx, ref); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError("post not found")
		}
		return NewInternalError("failed to delete post", err)
	}

	slog.Info("Post deleted", "post_id", p.Ref(), "user_id", user.ID)
	return nil
}

func (s *Service) ListComments(ctx context.Context, postRef string) ([]*models.Comment, error) {
	list, err := s.store.ListComments(ctx, postRef)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewNotFoundError("post not found")
		}
		return nil, NewInternalError("failed to list comments", err)
	}
	return list, nil
}

func (s *Service) CreateComment(ctx context.Context, user *models.User, postRef string, req *models.CreateCommentRequest) (*models.Comment, error) {
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid comment", err)
	}

	content, err := s.cleanRequired("content", req.Content, s.limits.CommentMaxBytes)
	if err != nil {
		return nil, err
	}

	c := &models.Comment{
		ID:        uuid.NewString(),
		PostID:    postRef,
		AuthorID:  user.ID,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateComment(ctx, c); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewNotFoundError("post not found")
		}
		return nil, NewInternalError("failed to create comment", err)
	}
	return c, nil
}

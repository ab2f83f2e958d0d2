package social

import (
	"context"

	"staffhub/internal/models"
)

// ServiceInterface defines the operations behind the HTTP API
type ServiceInterface interface {
	// Register creates an account and signs the new user in
	Register(ctx context.Context, req *models.RegisterRequest) (*models.AuthResponse, error)

	// Login checks the lockout guard before verifying credentials
	Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error)

	// Authenticate resolves a bearer token to its user
	Authenticate(ctx context.Context, token string) (*models.User, error)

	GetProfile(ctx context.Context, user *models.User) (*models.ProfileResponse, error)
	UpdateProfile(ctx context.Context, user *models.User, req *models.UpdateProfileRequest) (*models.ProfileResponse, error)
	ListProfiles(ctx context.Context) ([]*models.ProfileResponse, error)

	// UpdateMe changes the caller's own names, position or password
	UpdateMe(ctx context.Context, user *models.User, req *models.UpdateMeRequest) (*models.User, error)

	// Account administration; the acting user is checked for rights
	ListUsers(ctx context.Context, actor *models.User) ([]*models.User, error)
	SetAdminStatus(ctx context.Context, actor *models.User, userID string, req *models.AdminStatusRequest) (*models.AdminStatusResponse, error)
	AssignSpecialRole(ctx context.Context, actor *models.User, userID string, req *models.SpecialRoleRequest) (*models.User, error)
	DeleteUser(ctx context.Context, actor *models.User, userID string) error

	ListAnnouncements(ctx context.Context) ([]*models.Announcement, error)
	// CreateAnnouncement stores the announcement, then broadcasts it to every user
	CreateAnnouncement(ctx context.Context, user *models.User, req *models.CreateAnnouncementRequest) (*models.Announcement, error)
	DeleteAnnouncement(ctx context.Context, user *models.User, ref string) error

	ListPosts(ctx context.Context) ([]*models.Post, error)
	CreatePost(ctx context.Context, user *models.User, req *models.CreatePostRequest) (*models.Post, error)
	DeletePost(ctx context.Context, user *models.User, ref string) error

	ListComments(ctx context.Context, postRef string) ([]*models.Comment, error)
	CreateComment(ctx context.Context, user *models.User, postRef string, req *models.CreateCommentRequest) (*models.Comment, error)

	// ToggleLike flips the user's like on an announcement or post
	ToggleLike(ctx context.Context, user *models.User, targetType models.TargetType, ref string) (*models.ToggleResult, error)

	ListNotifications(ctx context.Context, user *models.User) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, user *models.User, id string) error
	UnreadCount(ctx context.Context, user *models.User) (int, error)

	// Ping checks the storage backend
	Ping(ctx context.Context) error
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)

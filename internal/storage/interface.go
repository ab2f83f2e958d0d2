package storage

import (
	"context"
	"time"

	"staffhub/internal/models"
)

// Storage defines persistence for accounts, content, engagement and
// notifications. It is an abstraction implemented by in-memory, JSON file,
// SQLite, PostgreSQL and MySQL backends.
//
// Lookups that miss return ErrNotFound. Engagement targets (announcements and
// posts) accept either identifier scheme wherever a ref is taken: the
// generated ID is tried first, then the store-native sequence.
type Storage interface {
	UserStore
	ContentStore
	EngagementStore
	NotificationStore

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources
	Close() error
}

// UserStore persists employee accounts.
type UserStore interface {
	// CreateUser stores a new user. ErrAlreadyExists if the email is taken.
	CreateUser(ctx context.Context, user *models.User) error

	GetUser(ctx context.Context, id string) (*models.User, error)

	// GetUserByEmail expects an already normalized email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	UpdateUserBio(ctx context.Context, id, bio string) error

	// UpdateUser applies the set fields of patch and returns the result.
	UpdateUser(ctx context.Context, id string, patch *models.UserPatch) (*models.User, error)

	// ListUsers returns accounts oldest first.
	ListUsers(ctx context.Context, limit int) ([]*models.User, error)

	// DeleteUser removes the account and frees its email. Authored content,
	// likes and notifications are kept.
	DeleteUser(ctx context.Context, id string) error

	// RecipientIDs returns the IDs of every user created at or before asOf.
	RecipientIDs(ctx context.Context, asOf time.Time) ([]string, error)
}

// ContentStore persists announcements, posts and comments.
type ContentStore interface {
	// CreateAnnouncement stores a and assigns its NativeID.
	CreateAnnouncement(ctx context.Context, a *models.Announcement) error
	GetAnnouncement(ctx context.Context, ref string) (*models.Announcement, error)
	// ListAnnouncements returns the newest announcements first.
	ListAnnouncements(ctx context.Context, limit int) ([]*models.Announcement, error)
	// DeleteAnnouncement removes the announcement and its likes.
	DeleteAnnouncement(ctx context.Context, ref string) error

	// CreatePost stores p and assigns its NativeID.
	CreatePost(ctx context.Context, p *models.Post) error
	GetPost(ctx context.Context, ref string) (*models.Post, error)
	ListPosts(ctx context.Context, limit int) ([]*models.Post, error)
	// DeletePost removes the post with its comments and likes.
	DeletePost(ctx context.Context, ref string) error

	// CreateComment resolves c.PostID, rewrites it to the canonical post
	// reference and increments the post's comment counter atomically.
	CreateComment(ctx context.Context, c *models.Comment) error
	// ListComments returns comments oldest first.
	ListComments(ctx context.Context, postRef string) ([]*models.Comment, error)
}

// EngagementStore owns like relations and the denormalized likes_count on
// their targets. Both are only ever written together.
type EngagementStore interface {
	// ResolveTarget looks a target up by ID, then by NativeID.
	// TODO: drop the NativeID fallback once legacy rows are backfilled with IDs.
	ResolveTarget(ctx context.Context, targetType models.TargetType, ref string) (*models.Target, error)

	// ToggleLike removes the relation if present, otherwise creates it, and
	// adjusts likes_count in the same atomic unit. A concurrent writer on the
	// same relation surfaces as ErrConflict.
	ToggleLike(ctx context.Context, actorID string, target *models.Target) (*models.ToggleResult, error)

	// CountLikes counts relations for a canonical target reference.
	CountLikes(ctx context.Context, targetType models.TargetType, targetID string) (int, error)
}

// NotificationStore persists per-recipient notification records.
type NotificationStore interface {
	// InsertNotifications bulk-inserts records, assigning missing IDs.
	InsertNotifications(ctx context.Context, notifications []*models.Notification) error
	// ListNotifications returns the newest records for a recipient first.
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]*models.Notification, error)
	// MarkNotificationRead is scoped to the recipient; other users' records
	// are reported as ErrNotFound.
	MarkNotificationRead(ctx context.Context, id, recipientID string) error
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (json, memory, sqlite, ...)
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// Pool settings for database backends
	MaxOpenConns    int           `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time,omitempty" yaml:"conn_max_idle_time,omitempty"`

	// Additional options for specific backends
	Options map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`
}

package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"staffhub/internal/models"
)

//go:embed schema/postgres.sql
var postgresSchema string

// PostgreSQL error codes mapped onto storage sentinels.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// pgQuerier is the subset of *pgxpool.Pool and pgx.Tx used here.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStorage implements the Storage interface using PostgreSQL via pgx.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a new PostgreSQL storage instance.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(min(config.MaxIdleConns, int(poolConfig.MaxConns)))
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}
	if config.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(context.Background(), postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// classifyPg maps PostgreSQL errors onto storage sentinels.
func classifyPg(err error, onUnique error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %v", onUnique, err)
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func pgNotFound(err error, what, ref string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, ref, ErrNotFound)
	}
	return notFound(err, what, ref)
}

func scanPgUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Position, &u.IsAdmin, &u.SpecialRole, &u.Bio, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (ps *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := ps.pool.Exec(ctx,
		"INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.Position, user.IsAdmin, user.SpecialRole, user.Bio, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", classifyPg(err, ErrAlreadyExists))
	}
	return nil
}

func (ps *PostgresStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanPgUser(ps.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		return nil, pgNotFound(err, "user", id)
	}
	return u, nil
}

func (ps *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanPgUser(ps.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email))
	if err != nil {
		return nil, pgNotFound(err, "user", email)
	}
	return u, nil
}

func (ps *PostgresStorage) UpdateUserBio(ctx context.Context, id, bio string) error {
	tag, err := ps.pool.Exec(ctx, "UPDATE users SET bio = $1 WHERE id = $2", bio, id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

func (ps *PostgresStorage) UpdateUser(ctx context.Context, id string, patch *models.UserPatch) (*models.User, error) {
	cols, args := userPatchColumns(patch, func(b bool) any { return b })
	if len(cols) == 0 {
		return ps.GetUser(ctx, id)
	}

	query := "UPDATE users SET " + setClause(cols, func(i int) string { return fmt.Sprintf("$%d", i) }) +
		fmt.Sprintf(" WHERE id = $%d RETURNING %s", len(cols)+1, userColumns)
	u, err := scanPgUser(ps.pool.QueryRow(ctx, query, append(args, id)...))
	if err != nil {
		return nil, pgNotFound(err, "user", id)
	}
	return u, nil
}

func (ps *PostgresStorage) ListUsers(ctx context.Context, limit int) ([]*models.User, error) {
	rows, err := ps.pool.Query(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at, id LIMIT $1", pgLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	result := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanPgUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (ps *PostgresStorage) DeleteUser(ctx context.Context, id string) error {
	tag, err := ps.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

func (ps *PostgresStorage) RecipientIDs(ctx context.Context, asOf time.Time) ([]string, error) {
	rows, err := ps.pool.Query(ctx, "SELECT id FROM users WHERE created_at <= $1 ORDER BY created_at", asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan recipients: %w", err)
	}
	return ids, nil
}

// resolveRow maps a ref of either scheme to (seq, id). ID first, then seq.
func (ps *PostgresStorage) resolveRow(ctx context.Context, q pgQuerier, table, ref string, forUpdate bool) (int64, *string, error) {
	lock := ""
	if forUpdate {
		lock = " FOR UPDATE"
	}

	var seq int64
	var id *string
	err := q.QueryRow(ctx, "SELECT seq, id FROM "+table+" WHERE id = $1"+lock, ref).Scan(&seq, &id)
	if err == nil {
		return seq, id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, err
	}

	if n, ok := seqFromRef(ref); ok {
		err = q.QueryRow(ctx, "SELECT seq, id FROM "+table+" WHERE seq = $1"+lock, n).Scan(&seq, &id)
		if err == nil {
			return seq, id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, err
		}
	}
	return 0, nil, ErrNotFound
}

func scanPgAnnouncement(row rowScanner) (*models.Announcement, error) {
	var a models.Announcement
	var seq int64
	var id *string
	if err := row.Scan(&seq, &id, &a.Title, &a.Content, &a.IsUrgent, &a.ImageURL,
		&a.CreatedBy, &a.CreatedAt, &a.LikesCount); err != nil {
		return nil, err
	}
	a.ID = derefString(id)
	a.NativeID = nativeIDFromSeq(seq)
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func (ps *PostgresStorage) CreateAnnouncement(ctx context.Context, a *models.Announcement) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var seq int64
	err := ps.pool.QueryRow(ctx,
		`INSERT INTO announcements (id, title, content, is_urgent, image_url, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING seq`,
		nullableID(a.ID), a.Title, a.Content, a.IsUrgent, a.ImageURL, a.CreatedBy, a.CreatedAt).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to create announcement: %w", classifyPg(err, ErrAlreadyExists))
	}
	a.NativeID = nativeIDFromSeq(seq)
	a.LikesCount = 0
	return nil
}

func (ps *PostgresStorage) GetAnnouncement(ctx context.Context, ref string) (*models.Announcement, error) {
	seq, _, err := ps.resolveRow(ctx, ps.pool, "announcements", ref, false)
	if err != nil {
		return nil, pgNotFound(err, "announcement", ref)
	}
	a, err := scanPgAnnouncement(ps.pool.QueryRow(ctx,
		"SELECT "+announcementColumns+" FROM announcements WHERE seq = $1", seq))
	if err != nil {
		return nil, pgNotFound(err, "announcement", ref)
	}
	return a, nil
}

func (ps *PostgresStorage) ListAnnouncements(ctx context.Context, limit int) ([]*models.Announcement, error) {
	rows, err := ps.pool.Query(ctx,
		"SELECT "+announcementColumns+" FROM announcements ORDER BY created_at DESC, seq DESC LIMIT $1", pgLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Announcement, 0)
	for rows.Next() {
		a, err := scanPgAnnouncement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan announcement: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (ps *PostgresStorage) DeleteAnnouncement(ctx context.Context, ref string) error {
	return ps.deleteTarget(ctx, models.TargetAnnouncement, ref, false)
}

func (ps *PostgresStorage) deleteTarget(ctx context.Context, targetType models.TargetType, ref string, withComments bool) error {
	table, err := tableFor(targetType)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, ps.pool, func(tx pgx.Tx) error {
		seq, id, err := ps.resolveRow(ctx, tx, table, ref, true)
		if err != nil {
			return pgNotFound(err, string(targetType), ref)
		}
		canonical := canonicalRefFor(id, seq)

		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE seq = $1", seq); err != nil {
			return fmt.Errorf("failed to delete %s: %w", targetType, err)
		}
		if _, err := tx.Exec(ctx,
			"DELETE FROM likes WHERE target_type = $1 AND target_id = $2", string(targetType), canonical); err != nil {
			return fmt.Errorf("failed to delete likes: %w", err)
		}
		if withComments {
			if _, err := tx.Exec(ctx, "DELETE FROM comments WHERE post_id = $1", canonical); err != nil {
				return fmt.Errorf("failed to delete comments: %w", err)
			}
		}
		return nil
	})
}

func scanPgPost(row rowScanner) (*models.Post, error) {
	var p models.Post
	var seq int64
	var id *string
	if err := row.Scan(&seq, &id, &p.AuthorID, &p.Content, &p.ImageURL,
		&p.CreatedAt, &p.LikesCount, &p.CommentsCount); err != nil {
		return nil, err
	}
	p.ID = derefString(id)
	p.NativeID = nativeIDFromSeq(seq)
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (ps *PostgresStorage) CreatePost(ctx context.Context, p *models.Post) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	var seq int64
	err := ps.pool.QueryRow(ctx,
		"INSERT INTO posts (id, author_id, content, image_url, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING seq",
		nullableID(p.ID), p.AuthorID, p.Content, p.ImageURL, p.CreatedAt).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", classifyPg(err, ErrAlreadyExists))
	}
	p.NativeID = nativeIDFromSeq(seq)
	p.LikesCount = 0
	p.CommentsCount = 0
	return nil
}

func (ps *PostgresStorage) GetPost(ctx context.Context, ref string) (*models.Post, error) {
	seq, _, err := ps.resolveRow(ctx, ps.pool, "posts", ref, false)
	if err != nil {
		return nil, pgNotFound(err, "post", ref)
	}
	p, err := scanPgPost(ps.pool.QueryRow(ctx, "SELECT "+postColumns+" FROM posts WHERE seq = $1", seq))
	if err != nil {
		return nil, pgNotFound(err, "post", ref)
	}
	return p, nil
}

func (ps *PostgresStorage) ListPosts(ctx context.Context, limit int) ([]*models.Post, error) {
	rows, err := ps.pool.Query(ctx,
		"SELECT "+postColumns+" FROM posts ORDER BY created_at DESC, seq DESC LIMIT $1", pgLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Post, 0)
	for rows.Next() {
		p, err := scanPgPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (ps *PostgresStorage) DeletePost(ctx context.Context, ref string) error {
	return ps.deleteTarget(ctx, models.TargetPost, ref, true)
}

func (ps *PostgresStorage) CreateComment(ctx context.Context, c *models.Comment) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	return pgx.BeginFunc(ctx, ps.pool, func(tx pgx.Tx) error {
		seq, id, err := ps.resolveRow(ctx, tx, "posts", c.PostID, true)
		if err != nil {
			return pgNotFound(err, "post", c.PostID)
		}
		c.PostID = canonicalRefFor(id, seq)

		if _, err := tx.Exec(ctx,
			"INSERT INTO comments (id, post_id, author_id, content, created_at) VALUES ($1, $2, $3, $4, $5)",
			c.ID, c.PostID, c.AuthorID, c.Content, c.CreatedAt); err != nil {
			return fmt.Errorf("failed to create comment: %w", classifyPg(err, ErrAlreadyExists))
		}
		if _, err := tx.Exec(ctx,
			"UPDATE posts SET comments_count = comments_count + 1 WHERE seq = $1", seq); err != nil {
			return fmt.Errorf("failed to update comment count: %w", err)
		}
		return nil
	})
}

func (ps *PostgresStorage) ListComments(ctx context.Context, postRef string) ([]*models.Comment, error) {
	seq, id, err := ps.resolveRow(ctx, ps.pool, "posts", postRef, false)
	if err != nil {
		return nil, pgNotFound(err, "post", postRef)
	}

	rows, err := ps.pool.Query(ctx,
		"SELECT id, post_id, author_id, content, created_at FROM comments WHERE post_id = $1 ORDER BY created_at",
		canonicalRefFor(id, seq))
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Comment, 0)
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		result = append(result, &c)
	}
	return result, rows.Err()
}

func (ps *PostgresStorage) ResolveTarget(ctx context.Context, targetType models.TargetType, ref string) (*models.Target, error) {
	table, err := tableFor(targetType)
	if err != nil {
		return nil, err
	}
	seq, id, err := ps.resolveRow(ctx, ps.pool, table, ref, false)
	if err != nil {
		return nil, pgNotFound(err, string(targetType), ref)
	}

	t := &models.Target{Type: targetType, ID: derefString(id), NativeID: nativeIDFromSeq(seq)}
	if err := ps.pool.QueryRow(ctx, "SELECT likes_count FROM "+table+" WHERE seq = $1", seq).Scan(&t.LikesCount); err != nil {
		return nil, pgNotFound(err, string(targetType), ref)
	}
	return t, nil
}

// ToggleLike locks the target row first, so concurrent toggles on the same
// target serialize in the database as well as in-process.
func (ps *PostgresStorage) ToggleLike(ctx context.Context, actorID string, target *models.Target) (*models.ToggleResult, error) {
	table, err := tableFor(target.Type)
	if err != nil {
		return nil, err
	}

	result := &models.ToggleResult{}
	err = pgx.BeginFunc(ctx, ps.pool, func(tx pgx.Tx) error {
		seq, id, err := ps.resolveRow(ctx, tx, table, target.Ref(), true)
		if err != nil {
			return pgNotFound(err, string(target.Type), target.Ref())
		}
		canonical := canonicalRefFor(id, seq)

		tag, err := tx.Exec(ctx,
			"DELETE FROM likes WHERE actor_id = $1 AND target_type = $2 AND target_id = $3",
			actorID, string(target.Type), canonical)
		if err != nil {
			return fmt.Errorf("failed to remove like: %w", err)
		}

		delta := -1
		if tag.RowsAffected() == 0 {
			if _, err := tx.Exec(ctx,
				"INSERT INTO likes (actor_id, target_type, target_id, created_at) VALUES ($1, $2, $3, $4)",
				actorID, string(target.Type), canonical, time.Now().UTC()); err != nil {
				return fmt.Errorf("failed to add like: %w", err)
			}
			result.Liked = true
			delta = 1
		}

		if err := tx.QueryRow(ctx,
			"UPDATE "+table+" SET likes_count = likes_count + $1 WHERE seq = $2 RETURNING likes_count",
			delta, seq).Scan(&result.LikesCount); err != nil {
			return fmt.Errorf("failed to update like count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, classifyPg(err, ErrConflict)
	}
	return result, nil
}

func (ps *PostgresStorage) CountLikes(ctx context.Context, targetType models.TargetType, targetID string) (int, error) {
	var n int
	err := ps.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM likes WHERE target_type = $1 AND target_id = $2", string(targetType), targetID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}
	return n, nil
}

// InsertNotifications streams the batch with COPY.
func (ps *PostgresStorage) InsertNotifications(ctx context.Context, notifications []*models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, len(notifications))
	for i, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		rows[i] = []any{n.ID, n.RecipientID, n.Title, n.Message, n.Type, n.Read, n.CreatedAt, n.RelatedID, n.SenderID}
	}

	_, err := ps.pool.CopyFrom(ctx,
		pgx.Identifier{"notifications"},
		[]string{"id", "recipient_id", "title", "message", "type", "read", "created_at", "related_id", "sender_id"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to insert notifications: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) ListNotifications(ctx context.Context, recipientID string, limit int) ([]*models.Notification, error) {
	rows, err := ps.pool.Query(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE recipient_id = $1 ORDER BY created_at DESC LIMIT $2",
		recipientID, pgLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.Type,
			&n.Read, &n.CreatedAt, &n.RelatedID, &n.SenderID); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.CreatedAt = n.CreatedAt.UTC()
		result = append(result, &n)
	}
	return result, rows.Err()
}

func (ps *PostgresStorage) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	tag, err := ps.pool.Exec(ctx,
		"UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2", id, recipientID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

func (ps *PostgresStorage) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := ps.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT read", recipientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

// pgLimit maps "no limit" onto NULL, which PostgreSQL treats as LIMIT ALL.
func pgLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

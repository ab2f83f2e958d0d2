package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"staffhub/internal/models"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

const (
	announcementColumns = "seq, id, title, content, is_urgent, image_url, created_by, created_at, likes_count"
	postColumns         = "seq, id, author_id, content, image_url, created_at, likes_count, comments_count"
	userColumns         = "id, email, password_hash, first_name, last_name, position, is_admin, special_role, bio, created_at"
	notificationColumns = "id, recipient_id, title, message, type, read, created_at, related_id, sender_id"
)

// SQLiteStorage implements Storage on a single SQLite file through the
// cgo-free modernc driver. The pool is pinned to one connection, so every
// transaction is serialized by the database itself.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance and applies the schema.
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	dsn := config.ConnectionString
	if !strings.Contains(dsn, "busy_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// classifySQLite maps driver errors onto storage sentinels.
func classifySQLite(err error, onUnique error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		if se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return fmt.Errorf("%w: %v", onUnique, err)
		}
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func scanSQLiteUser(row rowScanner) (*models.User, error) {
	var u models.User
	var isAdmin int
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Position, &isAdmin, &u.SpecialRole, &u.Bio, &createdAt); err != nil {
		return nil, err
	}
	u.IsAdmin = isAdmin != 0
	u.CreatedAt = fromUnixNano(createdAt)
	return &u, nil
}

func (s *SQLiteStorage) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.Position, boolToInt(user.IsAdmin), user.SpecialRole, user.Bio, toUnixNano(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", classifySQLite(err, ErrAlreadyExists))
	}
	return nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanSQLiteUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}

func (s *SQLiteStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanSQLiteUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
	if err != nil {
		return nil, notFound(err, "user", email)
	}
	return u, nil
}

func (s *SQLiteStorage) UpdateUserBio(ctx context.Context, id, bio string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET bio = ? WHERE id = ?", bio, id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) UpdateUser(ctx context.Context, id string, patch *models.UserPatch) (*models.User, error) {
	cols, args := userPatchColumns(patch, func(b bool) any { return boolToInt(b) })
	if len(cols) > 0 {
		query := "UPDATE users SET " + setClause(cols, func(int) string { return "?" }) + " WHERE id = ?"
		res, err := s.db.ExecContext(ctx, query, append(args, id)...)
		if err != nil {
			return nil, fmt.Errorf("failed to update user: %w", classifySQLite(err, ErrConflict))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
	}
	return s.GetUser(ctx, id)
}

func (s *SQLiteStorage) ListUsers(ctx context.Context, limit int) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at, id LIMIT ?", sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	result := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *SQLiteStorage) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", classifySQLite(err, ErrConflict))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) RecipientIDs(ctx context.Context, asOf time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM users WHERE created_at <= ? ORDER BY created_at", toUnixNano(asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// resolveRow maps a ref of either scheme to (seq, id). ID first, then seq.
func (s *SQLiteStorage) resolveRow(ctx context.Context, q sqlQuerier, table, ref string) (int64, *string, error) {
	var seq int64
	var id *string

	err := q.QueryRowContext(ctx, "SELECT seq, id FROM "+table+" WHERE id = ?", ref).Scan(&seq, &id)
	if err == nil {
		return seq, id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, nil, err
	}

	if n, ok := seqFromRef(ref); ok {
		err = q.QueryRowContext(ctx, "SELECT seq, id FROM "+table+" WHERE seq = ?", n).Scan(&seq, &id)
		if err == nil {
			return seq, id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, nil, err
		}
	}
	return 0, nil, ErrNotFound
}

func scanSQLiteAnnouncement(row rowScanner) (*models.Announcement, error) {
	var a models.Announcement
	var seq, createdAt int64
	var id *string
	var isUrgent int
	if err := row.Scan(&seq, &id, &a.Title, &a.Content, &isUrgent, &a.ImageURL,
		&a.CreatedBy, &createdAt, &a.LikesCount); err != nil {
		return nil, err
	}
	a.ID = derefString(id)
	a.NativeID = nativeIDFromSeq(seq)
	a.IsUrgent = isUrgent != 0
	a.CreatedAt = fromUnixNano(createdAt)
	return &a, nil
}

func (s *SQLiteStorage) CreateAnnouncement(ctx context.Context, a *models.Announcement) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO announcements (id, title, content, is_urgent, image_url, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullableID(a.ID), a.Title, a.Content, boolToInt(a.IsUrgent), a.ImageURL, a.CreatedBy, toUnixNano(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create announcement: %w", classifySQLite(err, ErrAlreadyExists))
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read announcement sequence: %w", err)
	}
	a.NativeID = nativeIDFromSeq(seq)
	a.LikesCount = 0
	return nil
}

func (s *SQLiteStorage) GetAnnouncement(ctx context.Context, ref string) (*models.Announcement, error) {
	seq, _, err := s.resolveRow(ctx, s.db, "announcements", ref)
	if err != nil {
		return nil, notFound(err, "announcement", ref)
	}
	a, err := scanSQLiteAnnouncement(s.db.QueryRowContext(ctx,
		"SELECT "+announcementColumns+" FROM announcements WHERE seq = ?", seq))
	if err != nil {
		return nil, notFound(err, "announcement", ref)
	}
	return a, nil
}

func (s *SQLiteStorage) ListAnnouncements(ctx context.Context, limit int) ([]*models.Announcement, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+announcementColumns+" FROM announcements ORDER BY created_at DESC, seq DESC LIMIT ?", sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Announcement, 0)
	for rows.Next() {
		a, err := scanSQLiteAnnouncement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan announcement: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *SQLiteStorage) DeleteAnnouncement(ctx context.Context, ref string) error {
	return s.deleteTarget(ctx, models.TargetAnnouncement, ref, false)
}

// deleteTarget removes an announcement or post with its likes, and for posts
// its comments, in one transaction. Notifications are never touched.
func (s *SQLiteStorage) deleteTarget(ctx context.Context, targetType models.TargetType, ref string, withComments bool) error {
	table, err := tableFor(targetType)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seq, id, err := s.resolveRow(ctx, tx, table, ref)
	if err != nil {
		return notFound(err, string(targetType), ref)
	}
	canonical := canonicalRefFor(id, seq)

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE seq = ?", seq); err != nil {
		return fmt.Errorf("failed to delete %s: %w", targetType, err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM likes WHERE target_type = ? AND target_id = ?", string(targetType), canonical); err != nil {
		return fmt.Errorf("failed to delete likes: %w", err)
	}
	if withComments {
		if _, err := tx.ExecContext(ctx, "DELETE FROM comments WHERE post_id = ?", canonical); err != nil {
			return fmt.Errorf("failed to delete comments: %w", err)
		}
	}
	return tx.Commit()
}

func scanSQLitePost(row rowScanner) (*models.Post, error) {
	var p models.Post
	var seq, createdAt int64
	var id *string
	if err := row.Scan(&seq, &id, &p.AuthorID, &p.Content, &p.ImageURL,
		&createdAt, &p.LikesCount, &p.CommentsCount); err != nil {
		return nil, err
	}
	p.ID = derefString(id)
	p.NativeID = nativeIDFromSeq(seq)
	p.CreatedAt = fromUnixNano(createdAt)
	return &p, nil
}

func (s *SQLiteStorage) CreatePost(ctx context.Context, p *models.Post) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO posts (id, author_id, content, image_url, created_at) VALUES (?, ?, ?, ?, ?)",
		nullableID(p.ID), p.AuthorID, p.Content, p.ImageURL, toUnixNano(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create post: %w", classifySQLite(err, ErrAlreadyExists))
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read post sequence: %w", err)
	}
	p.NativeID = nativeIDFromSeq(seq)
	p.LikesCount = 0
	p.CommentsCount = 0
	return nil
}

func (s *SQLiteStorage) GetPost(ctx context.Context, ref string) (*models.Post, error) {
	seq, _, err := s.resolveRow(ctx, s.db, "posts", ref)
	if err != nil {
		return nil, notFound(err, "post", ref)
	}
	p, err := scanSQLitePost(s.db.QueryRowContext(ctx, "SELECT "+postColumns+" FROM posts WHERE seq = ?", seq))
	if err != nil {
		return nil, notFound(err, "post", ref)
	}
	return p, nil
}

func (s *SQLiteStorage) ListPosts(ctx context.Context, limit int) ([]*models.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+postColumns+" FROM posts ORDER BY created_at DESC, seq DESC LIMIT ?", sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Post, 0)
	for rows.Next() {
		p, err := scanSQLitePost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *SQLiteStorage) DeletePost(ctx context.Context, ref string) error {
	return s.deleteTarget(ctx, models.TargetPost, ref, true)
}

func (s *SQLiteStorage) CreateComment(ctx context.Context, c *models.Comment) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seq, id, err := s.resolveRow(ctx, tx, "posts", c.PostID)
	if err != nil {
		return notFound(err, "post", c.PostID)
	}
	c.PostID = canonicalRefFor(id, seq)

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO comments (id, post_id, author_id, content, created_at) VALUES (?, ?, ?, ?, ?)",
		c.ID, c.PostID, c.AuthorID, c.Content, toUnixNano(c.CreatedAt)); err != nil {
		return fmt.Errorf("failed to create comment: %w", classifySQLite(err, ErrAlreadyExists))
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE posts SET comments_count = comments_count + 1 WHERE seq = ?", seq); err != nil {
		return fmt.Errorf("failed to update comment count: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStorage) ListComments(ctx context.Context, postRef string) ([]*models.Comment, error) {
	seq, id, err := s.resolveRow(ctx, s.db, "posts", postRef)
	if err != nil {
		return nil, notFound(err, "post", postRef)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, post_id, author_id, content, created_at FROM comments WHERE post_id = ? ORDER BY created_at",
		canonicalRefFor(id, seq))
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Comment, 0)
	for rows.Next() {
		var c models.Comment
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.CreatedAt = fromUnixNano(createdAt)
		result = append(result, &c)
	}
	return result, rows.Err()
}

func (s *SQLiteStorage) ResolveTarget(ctx context.Context, targetType models.TargetType, ref string) (*models.Target, error) {
	table, err := tableFor(targetType)
	if err != nil {
		return nil, err
	}
	seq, id, err := s.resolveRow(ctx, s.db, table, ref)
	if err != nil {
		return nil, notFound(err, string(targetType), ref)
	}

	t := &models.Target{Type: targetType, ID: derefString(id), NativeID: nativeIDFromSeq(seq)}
	if err := s.db.QueryRowContext(ctx, "SELECT likes_count FROM "+table+" WHERE seq = ?", seq).Scan(&t.LikesCount); err != nil {
		return nil, notFound(err, string(targetType), ref)
	}
	return t, nil
}

func (s *SQLiteStorage) ToggleLike(ctx context.Context, actorID string, target *models.Target) (*models.ToggleResult, error) {
	table, err := tableFor(target.Type)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", classifySQLite(err, ErrConflict))
	}
	defer tx.Rollback()

	seq, id, err := s.resolveRow(ctx, tx, table, target.Ref())
	if err != nil {
		return nil, notFound(err, string(target.Type), target.Ref())
	}
	canonical := canonicalRefFor(id, seq)

	res, err := tx.ExecContext(ctx,
		"DELETE FROM likes WHERE actor_id = ? AND target_type = ? AND target_id = ?",
		actorID, string(target.Type), canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to remove like: %w", classifySQLite(err, ErrConflict))
	}

	result := &models.ToggleResult{}
	delta := -1
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO likes (actor_id, target_type, target_id, created_at) VALUES (?, ?, ?, ?)",
			actorID, string(target.Type), canonical, toUnixNano(time.Now())); err != nil {
			return nil, fmt.Errorf("failed to add like: %w", classifySQLite(err, ErrConflict))
		}
		result.Liked = true
		delta = 1
	}

	if err := tx.QueryRowContext(ctx,
		"UPDATE "+table+" SET likes_count = likes_count + ? WHERE seq = ? RETURNING likes_count",
		delta, seq).Scan(&result.LikesCount); err != nil {
		return nil, fmt.Errorf("failed to update like count: %w", classifySQLite(err, ErrConflict))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit like toggle: %w", classifySQLite(err, ErrConflict))
	}
	return result, nil
}

func (s *SQLiteStorage) CountLikes(ctx context.Context, targetType models.TargetType, targetID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM likes WHERE target_type = ? AND target_id = ?", string(targetType), targetID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) InsertNotifications(ctx context.Context, notifications []*models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO notifications ("+notificationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare notification insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx, n.ID, n.RecipientID, n.Title, n.Message, n.Type,
			boolToInt(n.Read), toUnixNano(n.CreatedAt), n.RelatedID, n.SenderID); err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStorage) ListNotifications(ctx context.Context, recipientID string, limit int) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE recipient_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?",
		recipientID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		var read int
		var createdAt int64
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.Type,
			&read, &createdAt, &n.RelatedID, &n.SenderID); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Read = read != 0
		n.CreatedAt = fromUnixNano(createdAt)
		result = append(result, &n)
	}
	return result, rows.Err()
}

func (s *SQLiteStorage) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ? AND recipient_id = ?", id, recipientID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND read = 0", recipientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the storage connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// sqlLimit maps "no limit" onto -1, which SQLite and gorm both read as unbounded.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

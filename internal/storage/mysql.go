package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"staffhub/internal/models"
)

// MySQL server error numbers mapped onto storage sentinels.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

type userRow struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	FirstName    string    `gorm:"type:varchar(100);not null"`
	LastName     string    `gorm:"type:varchar(100);not null"`
	Position     string    `gorm:"type:varchar(100);not null;default:''"`
	IsAdmin      bool      `gorm:"not null;default:false"`
	SpecialRole  string    `gorm:"type:varchar(100);not null;default:''"`
	Bio          string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"type:datetime(6);index;not null"`
}

func (userRow) TableName() string { return "users" }

type announcementRow struct {
	Seq        int64     `gorm:"primaryKey;autoIncrement"`
	ID         *string   `gorm:"type:varchar(36);uniqueIndex"`
	Title      string    `gorm:"type:varchar(255);not null"`
	Content    string    `gorm:"type:text;not null"`
	IsUrgent   bool      `gorm:"not null;default:false"`
	ImageURL   *string   `gorm:"type:text"`
	CreatedBy  string    `gorm:"type:varchar(36);not null"`
	CreatedAt  time.Time `gorm:"type:datetime(6);not null"`
	LikesCount int       `gorm:"not null;default:0"`
}

func (announcementRow) TableName() string { return "announcements" }

type postRow struct {
	Seq           int64     `gorm:"primaryKey;autoIncrement"`
	ID            *string   `gorm:"type:varchar(36);uniqueIndex"`
	AuthorID      string    `gorm:"type:varchar(36);not null"`
	Content       string    `gorm:"type:text;not null"`
	ImageURL      *string   `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"type:datetime(6);not null"`
	LikesCount    int       `gorm:"not null;default:0"`
	CommentsCount int       `gorm:"not null;default:0"`
}

func (postRow) TableName() string { return "posts" }

type commentRow struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	PostID    string    `gorm:"type:varchar(36);index:idx_comments_post;not null"`
	AuthorID  string    `gorm:"type:varchar(36);not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"type:datetime(6);index:idx_comments_post;not null"`
}

func (commentRow) TableName() string { return "comments" }

type likeRow struct {
	ActorID    string    `gorm:"primaryKey;type:varchar(36)"`
	TargetType string    `gorm:"primaryKey;type:varchar(16);index:idx_likes_target"`
	TargetID   string    `gorm:"primaryKey;type:varchar(36);index:idx_likes_target"`
	CreatedAt  time.Time `gorm:"type:datetime(6);not null"`
}

func (likeRow) TableName() string { return "likes" }

type notificationRow struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	RecipientID string    `gorm:"type:varchar(36);index:idx_notifications_recipient;not null"`
	Title       string    `gorm:"type:varchar(255);not null"`
	Message     string    `gorm:"type:text;not null"`
	Type        string    `gorm:"type:varchar(32);not null"`
	Read        bool      `gorm:"column:read;not null;default:false"`
	CreatedAt   time.Time `gorm:"type:datetime(6);index:idx_notifications_recipient;not null"`
	RelatedID   *string   `gorm:"type:varchar(36)"`
	SenderID    *string   `gorm:"type:varchar(36)"`
}

func (notificationRow) TableName() string { return "notifications" }

// MySQLStorage implements the Storage interface on MySQL through gorm.
type MySQLStorage struct {
	db *gorm.DB
}

// NewMySQLStorage opens the database and migrates the schema.
func NewMySQLStorage(config Config) (*MySQLStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for MySQL storage")
	}

	dsn, err := normalizeMySQLDSN(config.ConnectionString)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	if err := db.AutoMigrate(&userRow{}, &announcementRow{}, &postRow{},
		&commentRow{}, &likeRow{}, &notificationRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &MySQLStorage{db: db}, nil
}

func newMySQLStorageFromDB(db *gorm.DB) *MySQLStorage {
	return &MySQLStorage{db: db}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	}
}

// normalizeMySQLDSN forces the driver settings the store depends on: parsed
// UTC timestamps, and matched-row counts so idempotent updates still report
// the row as found.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("failed to parse MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// classifyMySQL maps driver and gorm errors onto storage sentinels.
func classifyMySQL(err error, onUnique error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", onUnique, err)
	}
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return fmt.Errorf("%w: %v", onUnique, err)
		case mysqlDeadlock, mysqlLockWaitTimeout:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

func gormNotFound(err error, what, ref string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, ref, ErrNotFound)
	}
	return notFound(err, what, ref)
}

func (u *userRow) toModel() *models.User {
	return &models.User{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Position:     u.Position,
		IsAdmin:      u.IsAdmin,
		SpecialRole:  u.SpecialRole,
		Bio:          u.Bio,
		CreatedAt:    u.CreatedAt.UTC(),
	}
}

func (r *announcementRow) toModel() *models.Announcement {
	return &models.Announcement{
		ID:         derefString(r.ID),
		NativeID:   nativeIDFromSeq(r.Seq),
		Title:      r.Title,
		Content:    r.Content,
		IsUrgent:   r.IsUrgent,
		ImageURL:   r.ImageURL,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt.UTC(),
		LikesCount: r.LikesCount,
	}
}

func (r *postRow) toModel() *models.Post {
	return &models.Post{
		ID:            derefString(r.ID),
		NativeID:      nativeIDFromSeq(r.Seq),
		AuthorID:      r.AuthorID,
		Content:       r.Content,
		ImageURL:      r.ImageURL,
		CreatedAt:     r.CreatedAt.UTC(),
		LikesCount:    r.LikesCount,
		CommentsCount: r.CommentsCount,
	}
}

func (ms *MySQLStorage) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	row := &userRow{
		ID:           user.ID,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Position:     user.Position,
		IsAdmin:      user.IsAdmin,
		SpecialRole:  user.SpecialRole,
		Bio:          user.Bio,
		CreatedAt:    user.CreatedAt,
	}
	if err := ms.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", classifyMySQL(err, ErrAlreadyExists))
	}
	return nil
}

func (ms *MySQLStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	var row userRow
	if err := ms.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, gormNotFound(err, "user", id)
	}
	return row.toModel(), nil
}

func (ms *MySQLStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var row userRow
	if err := ms.db.WithContext(ctx).First(&row, "email = ?", email).Error; err != nil {
		return nil, gormNotFound(err, "user", email)
	}
	return row.toModel(), nil
}

func (ms *MySQLStorage) UpdateUserBio(ctx context.Context, id, bio string) error {
	result := ms.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).Update("bio", bio)
	if result.Error != nil {
		return fmt.Errorf("failed to update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateUser relies on clientFoundRows, so an update that changes nothing
// still counts its matched row.
func (ms *MySQLStorage) UpdateUser(ctx context.Context, id string, patch *models.UserPatch) (*models.User, error) {
	cols, args := userPatchColumns(patch, func(b bool) any { return b })
	if len(cols) > 0 {
		updates := make(map[string]any, len(cols))
		for i, col := range cols {
			updates[col] = args[i]
		}
		result := ms.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to update user: %w", classifyMySQL(result.Error, ErrConflict))
		}
		if result.RowsAffected == 0 {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
	}
	return ms.GetUser(ctx, id)
}

func (ms *MySQLStorage) ListUsers(ctx context.Context, limit int) ([]*models.User, error) {
	var rows []userRow
	err := ms.db.WithContext(ctx).
		Order("created_at, id").
		Limit(sqlLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	result := make([]*models.User, len(rows))
	for i := range rows {
		result[i] = rows[i].toModel()
	}
	return result, nil
}

func (ms *MySQLStorage) DeleteUser(ctx context.Context, id string) error {
	result := ms.db.WithContext(ctx).Where("id = ?", id).Delete(&userRow{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete user: %w", classifyMySQL(result.Error, ErrConflict))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

func (ms *MySQLStorage) RecipientIDs(ctx context.Context, asOf time.Time) ([]string, error) {
	var ids []string
	err := ms.db.WithContext(ctx).Model(&userRow{}).
		Where("created_at <= ?", asOf.UTC()).
		Order("created_at").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	return ids, nil
}

type rowRef struct {
	Seq int64
	ID  *string
}

// resolveRow maps a ref of either scheme to (seq, id). ID first, then seq.
func (ms *MySQLStorage) resolveRow(tx *gorm.DB, table, ref string, forUpdate bool) (int64, *string, error) {
	lookup := func(column string, value any) (*rowRef, error) {
		q := tx.Table(table).Select("seq", "id").Where(column+" = ?", value)
		if forUpdate {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var rows []rowRef
		if err := q.Limit(1).Find(&rows).Error; err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return &rows[0], nil
	}

	row, err := lookup("id", ref)
	if err != nil {
		return 0, nil, err
	}
	if row == nil {
		if n, ok := seqFromRef(ref); ok {
			if row, err = lookup("seq", n); err != nil {
				return 0, nil, err
			}
		}
	}
	if row == nil {
		return 0, nil, ErrNotFound
	}
	return row.Seq, row.ID, nil
}

func (ms *MySQLStorage) CreateAnnouncement(ctx context.Context, a *models.Announcement) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	row := &announcementRow{
		ID:        nullableID(a.ID),
		Title:     a.Title,
		Content:   a.Content,
		IsUrgent:  a.IsUrgent,
		ImageURL:  a.ImageURL,
		CreatedBy: a.CreatedBy,
		CreatedAt: a.CreatedAt.UTC(),
	}
	if err := ms.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create announcement: %w", classifyMySQL(err, ErrAlreadyExists))
	}
	a.NativeID = nativeIDFromSeq(row.Seq)
	a.LikesCount = 0
	return nil
}

func (ms *MySQLStorage) GetAnnouncement(ctx context.Context, ref string) (*models.Announcement, error) {
	db := ms.db.WithContext(ctx)
	seq, _, err := ms.resolveRow(db, "announcements", ref, false)
	if err != nil {
		return nil, gormNotFound(err, "announcement", ref)
	}
	var row announcementRow
	if err := db.First(&row, "seq = ?", seq).Error; err != nil {
		return nil, gormNotFound(err, "announcement", ref)
	}
	return row.toModel(), nil
}

func (ms *MySQLStorage) ListAnnouncements(ctx context.Context, limit int) ([]*models.Announcement, error) {
	var rows []announcementRow
	err := ms.db.WithContext(ctx).
		Order("created_at DESC, seq DESC").
		Limit(sqlLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}

	result := make([]*models.Announcement, len(rows))
	for i := range rows {
		result[i] = rows[i].toModel()
	}
	return result, nil
}

func (ms *MySQLStorage) DeleteAnnouncement(ctx context.Context, ref string) error {
	return ms.deleteTarget(ctx, models.TargetAnnouncement, ref, false)
}

func (ms *MySQLStorage) deleteTarget(ctx context.Context, targetType models.TargetType, ref string, withComments bool) error {
	table, err := tableFor(targetType)
	if err != nil {
		return err
	}

	return ms.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, id, err := ms.resolveRow(tx, table, ref, true)
		if err != nil {
			return gormNotFound(err, string(targetType), ref)
		}
		canonical := canonicalRefFor(id, seq)

		if err := tx.Exec("DELETE FROM "+table+" WHERE seq = ?", seq).Error; err != nil {
			return fmt.Errorf("failed to delete %s: %w", targetType, err)
		}
		if err := tx.Where("target_type = ? AND target_id = ?", string(targetType), canonical).
			Delete(&likeRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete likes: %w", err)
		}
		if withComments {
			if err := tx.Where("post_id = ?", canonical).Delete(&commentRow{}).Error; err != nil {
				return fmt.Errorf("failed to delete comments: %w", err)
			}
		}
		return nil
	})
}

func (ms *MySQLStorage) CreatePost(ctx context.Context, p *models.Post) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	row := &postRow{
		ID:        nullableID(p.ID),
		AuthorID:  p.AuthorID,
		Content:   p.Content,
		ImageURL:  p.ImageURL,
		CreatedAt: p.CreatedAt.UTC(),
	}
	if err := ms.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create post: %w", classifyMySQL(err, ErrAlreadyExists))
	}
	p.NativeID = nativeIDFromSeq(row.Seq)
	p.LikesCount = 0
	p.CommentsCount = 0
	return nil
}

func (ms *MySQLStorage) GetPost(ctx context.Context, ref string) (*models.Post, error) {
	db := ms.db.WithContext(ctx)
	seq, _, err := ms.resolveRow(db, "posts", ref, false)
	if err != nil {
		return nil, gormNotFound(err, "post", ref)
	}
	var row postRow
	if err := db.First(&row, "seq = ?", seq).Error; err != nil {
		return nil, gormNotFound(err, "post", ref)
	}
	return row.toModel(), nil
}

func (ms *MySQLStorage) ListPosts(ctx context.Context, limit int) ([]*models.Post, error) {
	var rows []postRow
	err := ms.db.WithContext(ctx).
		Order("created_at DESC, seq DESC").
		Limit(sqlLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	result := make([]*models.Post, len(rows))
	for i := range rows {
		result[i] = rows[i].toModel()
	}
	return result, nil
}

func (ms *MySQLStorage) DeletePost(ctx context.Context, ref string) error {
	return ms.deleteTarget(ctx, models.TargetPost, ref, true)
}

func (ms *MySQLStorage) CreateComment(ctx context.Context, c *models.Comment) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	return ms.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, id, err := ms.resolveRow(tx, "posts", c.PostID, true)
		if err != nil {
			return gormNotFound(err, "post", c.PostID)
		}
		c.PostID = canonicalRefFor(id, seq)

		row := &commentRow{
			ID:        c.ID,
			PostID:    c.PostID,
			AuthorID:  c.AuthorID,
			Content:   c.Content,
			CreatedAt: c.CreatedAt.UTC(),
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to create comment: %w", classifyMySQL(err, ErrAlreadyExists))
		}
		if err := tx.Model(&postRow{}).Where("seq = ?", seq).
			Update("comments_count", gorm.Expr("comments_count + ?", 1)).Error; err != nil {
			return fmt.Errorf("failed to update comment count: %w", err)
		}
		return nil
	})
}

func (ms *MySQLStorage) ListComments(ctx context.Context, postRef string) ([]*models.Comment, error) {
	db := ms.db.WithContext(ctx)
	seq, id, err := ms.resolveRow(db, "posts", postRef, false)
	if err != nil {
		return nil, gormNotFound(err, "post", postRef)
	}

	var rows []commentRow
	if err := db.Where("post_id = ?", canonicalRefFor(id, seq)).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	result := make([]*models.Comment, len(rows))
	for i, r := range rows {
		result[i] = &models.Comment{
			ID:        r.ID,
			PostID:    r.PostID,
			AuthorID:  r.AuthorID,
			Content:   r.Content,
			CreatedAt: r.CreatedAt.UTC(),
		}
	}
	return result, nil
}

func (ms *MySQLStorage) ResolveTarget(ctx context.Context, targetType models.TargetType, ref string) (*models.Target, error) {
	table, err := tableFor(targetType)
	if err != nil {
		return nil, err
	}
	db := ms.db.WithContext(ctx)
	seq, id, err := ms.resolveRow(db, table, ref, false)
	if err != nil {
		return nil, gormNotFound(err, string(targetType), ref)
	}

	var counts []int
	if err := db.Table(table).Where("seq = ?", seq).Pluck("likes_count", &counts).Error; err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", targetType, err)
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("%s %s: %w", targetType, ref, ErrNotFound)
	}
	return &models.Target{Type: targetType, ID: derefString(id), NativeID: nativeIDFromSeq(seq), LikesCount: counts[0]}, nil
}

// ToggleLike runs under SELECT ... FOR UPDATE on the target row.
func (ms *MySQLStorage) ToggleLike(ctx context.Context, actorID string, target *models.Target) (*models.ToggleResult, error) {
	table, err := tableFor(target.Type)
	if err != nil {
		return nil, err
	}

	result := &models.ToggleResult{}
	err = ms.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, id, err := ms.resolveRow(tx, table, target.Ref(), true)
		if err != nil {
			return gormNotFound(err, string(target.Type), target.Ref())
		}
		canonical := canonicalRefFor(id, seq)

		removed := tx.Where("actor_id = ? AND target_type = ? AND target_id = ?",
			actorID, string(target.Type), canonical).Delete(&likeRow{})
		if removed.Error != nil {
			return fmt.Errorf("failed to remove like: %w", removed.Error)
		}

		delta := -1
		if removed.RowsAffected == 0 {
			like := &likeRow{
				ActorID:    actorID,
				TargetType: string(target.Type),
				TargetID:   canonical,
				CreatedAt:  time.Now().UTC(),
			}
			if err := tx.Create(like).Error; err != nil {
				return fmt.Errorf("failed to add like: %w", err)
			}
			result.Liked = true
			delta = 1
		}

		updated := tx.Table(table).Where("seq = ?", seq).
			Update("likes_count", gorm.Expr("likes_count + ?", delta))
		if updated.Error != nil {
			return fmt.Errorf("failed to update like count: %w", updated.Error)
		}
		if updated.RowsAffected == 0 {
			return fmt.Errorf("%s %s: %w", target.Type, target.Ref(), ErrNotFound)
		}

		var counts []int
		if err := tx.Table(table).Where("seq = ?", seq).Pluck("likes_count", &counts).Error; err != nil {
			return fmt.Errorf("failed to read like count: %w", err)
		}
		if len(counts) > 0 {
			result.LikesCount = counts[0]
		}
		return nil
	})
	if err != nil {
		return nil, classifyMySQL(err, ErrConflict)
	}
	return result, nil
}

func (ms *MySQLStorage) CountLikes(ctx context.Context, targetType models.TargetType, targetID string) (int, error) {
	var n int64
	err := ms.db.WithContext(ctx).Model(&likeRow{}).
		Where("target_type = ? AND target_id = ?", string(targetType), targetID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}
	return int(n), nil
}

func (ms *MySQLStorage) InsertNotifications(ctx context.Context, notifications []*models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]notificationRow, len(notifications))
	for i, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		rows[i] = notificationRow{
			ID:          n.ID,
			RecipientID: n.RecipientID,
			Title:       n.Title,
			Message:     n.Message,
			Type:        n.Type,
			Read:        n.Read,
			CreatedAt:   n.CreatedAt.UTC(),
			RelatedID:   n.RelatedID,
			SenderID:    n.SenderID,
		}
	}

	if err := ms.db.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("failed to insert notifications: %w", err)
	}
	return nil
}

func (ms *MySQLStorage) ListNotifications(ctx context.Context, recipientID string, limit int) ([]*models.Notification, error) {
	var rows []notificationRow
	err := ms.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(sqlLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	result := make([]*models.Notification, len(rows))
	for i, r := range rows {
		result[i] = &models.Notification{
			ID:          r.ID,
			RecipientID: r.RecipientID,
			Title:       r.Title,
			Message:     r.Message,
			Type:        r.Type,
			Read:        r.Read,
			CreatedAt:   r.CreatedAt.UTC(),
			RelatedID:   r.RelatedID,
			SenderID:    r.SenderID,
		}
	}
	return result, nil
}

func (ms *MySQLStorage) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	result := ms.db.WithContext(ctx).Model(&notificationRow{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("read", true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

func (ms *MySQLStorage) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int64
	err := ms.db.WithContext(ctx).Model(&notificationRow{}).
		Where("recipient_id = ? AND `read` = ?", recipientID, false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return int(n), nil
}

func (ms *MySQLStorage) Ping(ctx context.Context) error {
	sqlDB, err := ms.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (ms *MySQLStorage) Close() error {
	sqlDB, err := ms.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

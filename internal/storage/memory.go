package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"staffhub/internal/models"
)

type likeKey struct {
	actor  string
	typ    models.TargetType
	target string
}

// MemoryStorage implements the Storage interface using in-memory data structures.
// This provider is ideal for development, testing, and scenarios where data
// persistence is not required. It provides fast access but data is lost on restart.
//
// A single RWMutex guards everything, so a toggle's relation change and
// counter change are always observed together.
type MemoryStorage struct {
	mu  sync.RWMutex
	seq int64

	users         map[string]*models.User // keyed by ID
	emails        map[string]string       // email -> ID
	announcements map[string]*models.Announcement
	posts         map[string]*models.Post // both keyed by NativeID
	ids           map[string]string       // generated ID -> NativeID, shared by both
	comments      []*models.Comment
	likes         map[likeKey]*models.LikeRelation
	notifications []*models.Notification
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return newMemoryStorage(), nil
}

func newMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:         make(map[string]*models.User),
		emails:        make(map[string]string),
		announcements: make(map[string]*models.Announcement),
		posts:         make(map[string]*models.Post),
		ids:           make(map[string]string),
		likes:         make(map[likeKey]*models.LikeRelation),
	}
}

func (m *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.emails[user.Email]; exists {
		return fmt.Errorf("user %s: %w", user.Email, ErrAlreadyExists)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	// Store a copy to prevent external modification
	userCopy := *user
	m.users[user.ID] = &userCopy
	m.emails[user.Email] = user.ID
	return nil
}

func (m *MemoryStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[id]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	userCopy := *user
	return &userCopy, nil
}

func (m *MemoryStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.emails[email]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	userCopy := *m.users[id]
	return &userCopy, nil
}

func (m *MemoryStorage) UpdateUserBio(ctx context.Context, id, bio string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[id]
	if !exists {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	user.Bio = bio
	return nil
}

func (m *MemoryStorage) UpdateUser(ctx context.Context, id string, patch *models.UserPatch) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[id]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	patch.Apply(user)
	userCopy := *user
	return &userCopy, nil
}

func (m *MemoryStorage) ListUsers(ctx context.Context, limit int) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		userCopy := *u
		users = append(users, &userCopy)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return truncate(users, limit), nil
}

func (m *MemoryStorage) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[id]
	if !exists {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	delete(m.emails, user.Email)
	delete(m.users, id)
	return nil
}

func (m *MemoryStorage) RecipientIDs(ctx context.Context, asOf time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		if !u.CreatedAt.After(asOf) {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids, nil
}

func (m *MemoryStorage) nextNativeID() string {
	m.seq++
	return strconv.FormatInt(m.seq, 10)
}

// nativeFor maps a ref of either scheme to a NativeID. Caller holds mu.
func (m *MemoryStorage) nativeFor(ref string) string {
	if nid, ok := m.ids[ref]; ok {
		return nid
	}
	return ref
}

func (m *MemoryStorage) CreateAnnouncement(ctx context.Context, a *models.Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID != "" {
		if _, taken := m.ids[a.ID]; taken {
			return fmt.Errorf("announcement %s: %w", a.ID, ErrAlreadyExists)
		}
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.NativeID = m.nextNativeID()
	a.LikesCount = 0

	aCopy := *a
	m.announcements[a.NativeID] = &aCopy
	if a.ID != "" {
		m.ids[a.ID] = a.NativeID
	}
	return nil
}

func (m *MemoryStorage) findAnnouncement(ref string) (*models.Announcement, bool) {
	a, ok := m.announcements[m.nativeFor(ref)]
	return a, ok
}

func (m *MemoryStorage) GetAnnouncement(ctx context.Context, ref string) (*models.Announcement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.findAnnouncement(ref)
	if !ok {
		return nil, fmt.Errorf("announcement %s: %w", ref, ErrNotFound)
	}
	aCopy := *a
	return &aCopy, nil
}

func (m *MemoryStorage) ListAnnouncements(ctx context.Context, limit int) ([]*models.Announcement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.Announcement, 0, len(m.announcements))
	for _, a := range m.announcements {
		aCopy := *a
		result = append(result, &aCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[j].CreatedAt, result[i].NativeID, result[j].NativeID)
	})
	return truncate(result, limit), nil
}

func (m *MemoryStorage) DeleteAnnouncement(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.findAnnouncement(ref)
	if !ok {
		return fmt.Errorf("announcement %s: %w", ref, ErrNotFound)
	}
	delete(m.announcements, a.NativeID)
	delete(m.ids, a.ID)
	m.dropLikes(models.TargetAnnouncement, a.Ref())
	return nil
}

func (m *MemoryStorage) CreatePost(ctx context.Context, p *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID != "" {
		if _, taken := m.ids[p.ID]; taken {
			return fmt.Errorf("post %s: %w", p.ID, ErrAlreadyExists)
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.NativeID = m.nextNativeID()
	p.LikesCount = 0
	p.CommentsCount = 0

	pCopy := *p
	m.posts[p.NativeID] = &pCopy
	if p.ID != "" {
		m.ids[p.ID] = p.NativeID
	}
	return nil
}

func (m *MemoryStorage) findPost(ref string) (*models.Post, bool) {
	p, ok := m.posts[m.nativeFor(ref)]
	return p, ok
}

func (m *MemoryStorage) GetPost(ctx context.Context, ref string) (*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.findPost(ref)
	if !ok {
		return nil, fmt.Errorf("post %s: %w", ref, ErrNotFound)
	}
	pCopy := *p
	return &pCopy, nil
}

func (m *MemoryStorage) ListPosts(ctx context.Context, limit int) ([]*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.Post, 0, len(m.posts))
	for _, p := range m.posts {
		pCopy := *p
		result = append(result, &pCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[j].CreatedAt, result[i].NativeID, result[j].NativeID)
	})
	return truncate(result, limit), nil
}

func (m *MemoryStorage) DeletePost(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.findPost(ref)
	if !ok {
		return fmt.Errorf("post %s: %w", ref, ErrNotFound)
	}
	canonical := p.Ref()
	delete(m.posts, p.NativeID)
	delete(m.ids, p.ID)

	kept := m.comments[:0]
	for _, c := range m.comments {
		if c.PostID != canonical {
			kept = append(kept, c)
		}
	}
	m.comments = kept
	m.dropLikes(models.TargetPost, canonical)
	return nil
}

func (m *MemoryStorage) CreateComment(ctx context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.findPost(c.PostID)
	if !ok {
		return fmt.Errorf("post %s: %w", c.PostID, ErrNotFound)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.PostID = p.Ref()

	cCopy := *c
	m.comments = append(m.comments, &cCopy)
	p.CommentsCount++
	return nil
}

func (m *MemoryStorage) ListComments(ctx context.Context, postRef string) ([]*models.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.findPost(postRef)
	if !ok {
		return nil, fmt.Errorf("post %s: %w", postRef, ErrNotFound)
	}
	canonical := p.Ref()

	result := make([]*models.Comment, 0)
	for _, c := range m.comments {
		if c.PostID == canonical {
			cCopy := *c
			result = append(result, &cCopy)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// target returns a pointer to the live likes_count of a target. Caller holds mu.
func (m *MemoryStorage) target(targetType models.TargetType, ref string) (*models.Target, *int, bool) {
	switch targetType {
	case models.TargetAnnouncement:
		if a, ok := m.findAnnouncement(ref); ok {
			return &models.Target{Type: targetType, ID: a.ID, NativeID: a.NativeID, LikesCount: a.LikesCount}, &a.LikesCount, true
		}
	case models.TargetPost:
		if p, ok := m.findPost(ref); ok {
			return &models.Target{Type: targetType, ID: p.ID, NativeID: p.NativeID, LikesCount: p.LikesCount}, &p.LikesCount, true
		}
	}
	return nil, nil, false
}

func (m *MemoryStorage) ResolveTarget(ctx context.Context, targetType models.TargetType, ref string) (*models.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, _, ok := m.target(targetType, ref)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", targetType, ref, ErrNotFound)
	}
	return t, nil
}

func (m *MemoryStorage) ToggleLike(ctx context.Context, actorID string, target *models.Target) (*models.ToggleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, counter, ok := m.target(target.Type, target.Ref())
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", target.Type, target.Ref(), ErrNotFound)
	}

	key := likeKey{actor: actorID, typ: target.Type, target: current.Ref()}
	if _, liked := m.likes[key]; liked {
		delete(m.likes, key)
		*counter--
		return &models.ToggleResult{Liked: false, LikesCount: *counter}, nil
	}

	m.likes[key] = &models.LikeRelation{
		ActorID:    actorID,
		TargetType: target.Type,
		TargetID:   current.Ref(),
		CreatedAt:  time.Now().UTC(),
	}
	*counter++
	return &models.ToggleResult{Liked: true, LikesCount: *counter}, nil
}

func (m *MemoryStorage) CountLikes(ctx context.Context, targetType models.TargetType, targetID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for k := range m.likes {
		if k.typ == targetType && k.target == targetID {
			n++
		}
	}
	return n, nil
}

// dropLikes removes every relation on a target. Caller holds mu.
func (m *MemoryStorage) dropLikes(targetType models.TargetType, ref string) {
	for k := range m.likes {
		if k.typ == targetType && k.target == ref {
			delete(m.likes, k)
		}
	}
}

func (m *MemoryStorage) InsertNotifications(ctx context.Context, notifications []*models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		nCopy := *n
		m.notifications = append(m.notifications, &nCopy)
	}
	return nil
}

func (m *MemoryStorage) ListNotifications(ctx context.Context, recipientID string, limit int) ([]*models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.Notification, 0)
	// Newest are appended last; walk backwards to keep insertion order as a tiebreak.
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if n.RecipientID == recipientID {
			nCopy := *n
			result = append(result, &nCopy)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return truncate(result, limit), nil
}

func (m *MemoryStorage) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.notifications {
		if n.ID == id && n.RecipientID == recipientID {
			n.Read = true
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, ErrNotFound)
}

func (m *MemoryStorage) CountUnread(ctx context.Context, recipientID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, n := range m.notifications {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for memory storage
func (m *MemoryStorage) Close() error {
	return nil
}

// newerFirst orders by creation time descending, then by sequence.
func newerFirst(ti, tj time.Time, ni, nj string) bool {
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	si, _ := strconv.ParseInt(ni, 10, 64)
	sj, _ := strconv.ParseInt(nj, 10, 64)
	return si > sj
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

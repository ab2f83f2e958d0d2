package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"staffhub/internal/models"
)

// JSONStorage persists the in-memory store to a single JSON file. Reads are
// served from memory; every successful write rewrites the file.
type JSONStorage struct {
	*MemoryStorage

	filePath string
	saveMu   sync.Mutex
}

// JSONData represents the structure of data stored in JSON format
type JSONData struct {
	Sequence      int64                  `json:"sequence"`
	Users         []*storedUser          `json:"users"`
	Announcements []*models.Announcement `json:"announcements"`
	Posts         []*models.Post         `json:"posts"`
	Comments      []*models.Comment      `json:"comments"`
	Likes         []*models.LikeRelation `json:"likes"`
	Notifications []*models.Notification `json:"notifications"`
	LastUpdated   time.Time              `json:"last_updated"`
}

// storedUser keeps the password hash, which the API model never serializes.
type storedUser struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

// NewJSONStorage creates a new JSON-based storage instance
func NewJSONStorage(config Config) (*JSONStorage, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("path is required for JSON storage")
	}

	storage := &JSONStorage{
		MemoryStorage: newMemoryStorage(),
		filePath:      config.Path,
	}

	// Initialize with empty data if file doesn't exist
	if err := storage.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}

	if err := storage.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load initial data: %w", err)
	}

	return storage, nil
}

// ensureFileExists creates the JSON file with empty data if it doesn't exist
func (j *JSONStorage) ensureFileExists() error {
	if _, err := os.Stat(j.filePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return j.writeFile(&JSONData{})
	}
	return nil
}

func (j *JSONStorage) loadData() error {
	fileData, err := os.ReadFile(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var data JSONData
	if err := json.Unmarshal(fileData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	j.restore(&data)
	return nil
}

// restore replaces the in-memory state with data.
func (j *JSONStorage) restore(data *JSONData) {
	fresh := newMemoryStorage()

	m := j.MemoryStorage
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq = data.Sequence
	m.users, m.emails = fresh.users, fresh.emails
	m.announcements, m.posts, m.ids = fresh.announcements, fresh.posts, fresh.ids
	m.likes = fresh.likes
	for _, su := range data.Users {
		u := su.User
		u.PasswordHash = su.PasswordHash
		m.users[u.ID] = &u
		m.emails[u.Email] = u.ID
	}
	for _, a := range data.Announcements {
		m.announcements[a.NativeID] = a
		if a.ID != "" {
			m.ids[a.ID] = a.NativeID
		}
	}
	for _, p := range data.Posts {
		m.posts[p.NativeID] = p
		if p.ID != "" {
			m.ids[p.ID] = p.NativeID
		}
	}
	m.comments = data.Comments
	for _, l := range data.Likes {
		m.likes[likeKey{actor: l.ActorID, typ: l.TargetType, target: l.TargetID}] = l
	}
	m.notifications = data.Notifications
}

// snapshot copies the current state.
func (j *JSONStorage) snapshot() *JSONData {
	m := j.MemoryStorage
	m.mu.RLock()
	defer m.mu.RUnlock()

	data := &JSONData{
		Sequence:      m.seq,
		Users:         make([]*storedUser, 0, len(m.users)),
		Announcements: make([]*models.Announcement, 0, len(m.announcements)),
		Posts:         make([]*models.Post, 0, len(m.posts)),
		Comments:      make([]*models.Comment, 0, len(m.comments)),
		Likes:         make([]*models.LikeRelation, 0, len(m.likes)),
		Notifications: make([]*models.Notification, 0, len(m.notifications)),
	}
	for _, u := range m.users {
		data.Users = append(data.Users, &storedUser{User: *u, PasswordHash: u.PasswordHash})
	}
	for _, a := range m.announcements {
		aCopy := *a
		data.Announcements = append(data.Announcements, &aCopy)
	}
	for _, p := range m.posts {
		pCopy := *p
		data.Posts = append(data.Posts, &pCopy)
	}
	for _, c := range m.comments {
		cCopy := *c
		data.Comments = append(data.Comments, &cCopy)
	}
	for _, l := range m.likes {
		lCopy := *l
		data.Likes = append(data.Likes, &lCopy)
	}
	for _, n := range m.notifications {
		nCopy := *n
		data.Notifications = append(data.Notifications, &nCopy)
	}
	return data
}

// save writes the current state. The temp-file rename keeps the previous
// file intact if the process dies mid-write.
func (j *JSONStorage) save() error {
	j.saveMu.Lock()
	defer j.saveMu.Unlock()
	return j.writeFile(j.snapshot())
}

// commit runs op and writes the result. When the write fails the state from
// before op is restored, so memory never runs ahead of the file.
func (j *JSONStorage) commit(op func() error) error {
	j.saveMu.Lock()
	defer j.saveMu.Unlock()

	prev := j.snapshot()
	if err := op(); err != nil {
		return err
	}
	if err := j.writeFile(j.snapshot()); err != nil {
		j.restore(prev)
		return err
	}
	return nil
}

func (j *JSONStorage) writeFile(data *JSONData) error {
	data.LastUpdated = time.Now().UTC()

	fileData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmp := j.filePath + ".tmp"
	if err := os.WriteFile(tmp, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, j.filePath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

func (j *JSONStorage) CreateUser(ctx context.Context, user *models.User) error {
	return j.commit(func() error {
		return j.MemoryStorage.CreateUser(ctx, user)
	})
}

func (j *JSONStorage) UpdateUserBio(ctx context.Context, id, bio string) error {
	return j.commit(func() error {
		return j.MemoryStorage.UpdateUserBio(ctx, id, bio)
	})
}

func (j *JSONStorage) UpdateUser(ctx context.Context, id string, patch *models.UserPatch) (*models.User, error) {
	var user *models.User
	err := j.commit(func() (err error) {
		user, err = j.MemoryStorage.UpdateUser(ctx, id, patch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (j *JSONStorage) DeleteUser(ctx context.Context, id string) error {
	return j.commit(func() error {
		return j.MemoryStorage.DeleteUser(ctx, id)
	})
}

func (j *JSONStorage) CreateAnnouncement(ctx context.Context, a *models.Announcement) error {
	return j.commit(func() error {
		return j.MemoryStorage.CreateAnnouncement(ctx, a)
	})
}

func (j *JSONStorage) DeleteAnnouncement(ctx context.Context, ref string) error {
	return j.commit(func() error {
		return j.MemoryStorage.DeleteAnnouncement(ctx, ref)
	})
}

func (j *JSONStorage) CreatePost(ctx context.Context, p *models.Post) error {
	return j.commit(func() error {
		return j.MemoryStorage.CreatePost(ctx, p)
	})
}

func (j *JSONStorage) DeletePost(ctx context.Context, ref string) error {
	return j.commit(func() error {
		return j.MemoryStorage.DeletePost(ctx, ref)
	})
}

func (j *JSONStorage) CreateComment(ctx context.Context, c *models.Comment) error {
	return j.commit(func() error {
		return j.MemoryStorage.CreateComment(ctx, c)
	})
}

func (j *JSONStorage) ToggleLike(ctx context.Context, actorID string, target *models.Target) (*models.ToggleResult, error) {
	var result *models.ToggleResult
	err := j.commit(func() (err error) {
		result, err = j.MemoryStorage.ToggleLike(ctx, actorID, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (j *JSONStorage) InsertNotifications(ctx context.Context, notifications []*models.Notification) error {
	return j.commit(func() error {
		return j.MemoryStorage.InsertNotifications(ctx, notifications)
	})
}

func (j *JSONStorage) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	return j.commit(func() error {
		return j.MemoryStorage.MarkNotificationRead(ctx, id, recipientID)
	})
}

// Close flushes the current state to disk.
func (j *JSONStorage) Close() error {
	return j.save()
}

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffhub/internal/models"
)

// testStorageContract runs the behaviour every backend must share.
func testStorageContract(t *testing.T, open func(t *testing.T) Storage) {
	ctx := context.Background()

	t.Run("Users", func(t *testing.T) {
		s := open(t)
		base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

		alice := &models.User{Email: "alice@example.com", PasswordHash: "hash-a", FirstName: "Alice", LastName: "Ng", CreatedAt: base}
		require.NoError(t, s.CreateUser(ctx, alice))
		assert.NotEmpty(t, alice.ID)

		dup := &models.User{Email: "alice@example.com", PasswordHash: "x", FirstName: "A", LastName: "B"}
		assert.ErrorIs(t, s.CreateUser(ctx, dup), ErrAlreadyExists)

		bob := &models.User{Email: "bob@example.com", PasswordHash: "hash-b", FirstName: "Bob", LastName: "Ray", CreatedAt: base.Add(30 * time.Minute)}
		require.NoError(t, s.CreateUser(ctx, bob))

		got, err := s.GetUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", got.Email)
		assert.Equal(t, "hash-a", got.PasswordHash)

		got, err = s.GetUserByEmail(ctx, "bob@example.com")
		require.NoError(t, err)
		assert.Equal(t, bob.ID, got.ID)

		_, err = s.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetUserByEmail(ctx, "missing@example.com")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.UpdateUserBio(ctx, alice.ID, "Runs the onboarding track"))
		got, err = s.GetUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "Runs the onboarding track", got.Bio)
		assert.ErrorIs(t, s.UpdateUserBio(ctx, "missing", "bio"), ErrNotFound)

		ids, err := s.RecipientIDs(ctx, base.Add(10*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, []string{alice.ID}, ids)

		ids, err = s.RecipientIDs(ctx, base.Add(time.Hour))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{alice.ID, bob.ID}, ids)
	})

	t.Run("AccountManagement", func(t *testing.T) {
		s := open(t)
		base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

		first := &models.User{Email: "first@example.com", PasswordHash: "hash-1", FirstName: "Fay", LastName: "Io", Position: models.PositionBarista, CreatedAt: base}
		require.NoError(t, s.CreateUser(ctx, first))
		second := &models.User{Email: "second@example.com", PasswordHash: "hash-2", FirstName: "Sol", LastName: "Ko", CreatedAt: base.Add(time.Minute)}
		require.NoError(t, s.CreateUser(ctx, second))

		users, err := s.ListUsers(ctx, 0)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, first.ID, users[0].ID)
		assert.Equal(t, second.ID, users[1].ID)

		users, err = s.ListUsers(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, users, 1)

		admin, role, position, hash := true, models.SpecialRoleTraining, models.PositionSupervisor, "hash-new"
		got, err := s.UpdateUser(ctx, first.ID, &models.UserPatch{
			IsAdmin:      &admin,
			SpecialRole:  &role,
			Position:     &position,
			PasswordHash: &hash,
		})
		require.NoError(t, err)
		assert.True(t, got.IsAdmin)
		assert.Equal(t, models.SpecialRoleTraining, got.SpecialRole)
		assert.Equal(t, models.PositionSupervisor, got.Position)
		assert.Equal(t, "hash-new", got.PasswordHash)
		assert.Equal(t, "Fay", got.FirstName, "unset fields are kept")

		// An update that changes nothing still finds the row.
		got, err = s.UpdateUser(ctx, first.ID, &models.UserPatch{IsAdmin: &admin})
		require.NoError(t, err)
		assert.True(t, got.IsAdmin)

		_, err = s.UpdateUser(ctx, "missing", &models.UserPatch{IsAdmin: &admin})
		assert.ErrorIs(t, err, ErrNotFound)

		n := &models.Notification{RecipientID: second.ID, Title: "Welcome", Message: "Hi", Type: models.NotificationTypeAnnouncement, CreatedAt: base}
		require.NoError(t, s.InsertNotifications(ctx, []*models.Notification{n}))

		require.NoError(t, s.DeleteUser(ctx, second.ID))
		assert.ErrorIs(t, s.DeleteUser(ctx, second.ID), ErrNotFound)
		_, err = s.GetUser(ctx, second.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetUserByEmail(ctx, "second@example.com")
		assert.ErrorIs(t, err, ErrNotFound)

		list, err := s.ListNotifications(ctx, second.ID, 10)
		require.NoError(t, err)
		assert.Len(t, list, 1, "notifications outlive their recipient's account")

		// The email is free again.
		again := &models.User{Email: "second@example.com", PasswordHash: "hash-3", FirstName: "Sol", LastName: "Ko"}
		assert.NoError(t, s.CreateUser(ctx, again))
	})

	t.Run("DualIdentifiers", func(t *testing.T) {
		s := open(t)

		modern := &models.Post{ID: uuid.NewString(), AuthorID: "u1", Content: "hello"}
		require.NoError(t, s.CreatePost(ctx, modern))
		require.NotEmpty(t, modern.NativeID)

		legacy := &models.Post{AuthorID: "u1", Content: "from before ids"}
		require.NoError(t, s.CreatePost(ctx, legacy))
		assert.Empty(t, legacy.ID)
		assert.Equal(t, legacy.NativeID, legacy.Ref())

		byID, err := s.GetPost(ctx, modern.ID)
		require.NoError(t, err)
		byNative, err := s.GetPost(ctx, modern.NativeID)
		require.NoError(t, err)
		assert.Equal(t, byID.NativeID, byNative.NativeID)
		assert.Equal(t, modern.ID, byNative.ID)

		got, err := s.GetPost(ctx, legacy.NativeID)
		require.NoError(t, err)
		assert.Equal(t, "from before ids", got.Content)

		_, err = s.GetPost(ctx, "no-such-post")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetPost(ctx, "999999")
		assert.ErrorIs(t, err, ErrNotFound)

		dup := &models.Post{ID: modern.ID, AuthorID: "u2", Content: "dup"}
		assert.ErrorIs(t, s.CreatePost(ctx, dup), ErrAlreadyExists)
	})

	t.Run("ToggleConvergesAcrossIdentifiers", func(t *testing.T) {
		s := open(t)

		a := &models.Announcement{ID: uuid.NewString(), Title: "Quarterly update", Content: "Numbers are up", CreatedBy: "u1"}
		require.NoError(t, s.CreateAnnouncement(ctx, a))

		byID, err := s.ResolveTarget(ctx, models.TargetAnnouncement, a.ID)
		require.NoError(t, err)
		res, err := s.ToggleLike(ctx, "actor-1", byID)
		require.NoError(t, err)
		assert.True(t, res.Liked)
		assert.Equal(t, 1, res.LikesCount)

		byNative, err := s.ResolveTarget(ctx, models.TargetAnnouncement, a.NativeID)
		require.NoError(t, err)
		assert.Equal(t, 1, byNative.LikesCount)
		res, err = s.ToggleLike(ctx, "actor-1", byNative)
		require.NoError(t, err)
		assert.False(t, res.Liked)
		assert.Equal(t, 0, res.LikesCount)

		n, err := s.CountLikes(ctx, models.TargetAnnouncement, a.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("ToggleLegacyTarget", func(t *testing.T) {
		s := open(t)

		p := &models.Post{AuthorID: "u1", Content: "legacy"}
		require.NoError(t, s.CreatePost(ctx, p))

		target, err := s.ResolveTarget(ctx, models.TargetPost, p.NativeID)
		require.NoError(t, err)
		res, err := s.ToggleLike(ctx, "actor-1", target)
		require.NoError(t, err)
		assert.True(t, res.Liked)

		n, err := s.CountLikes(ctx, models.TargetPost, p.NativeID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("ResolveTargetMisses", func(t *testing.T) {
		s := open(t)

		_, err := s.ResolveTarget(ctx, models.TargetPost, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.ResolveTarget(ctx, models.TargetType("video"), "1")
		assert.ErrorIs(t, err, ErrNotFound)

		// An announcement ref never resolves as a post.
		a := &models.Announcement{ID: uuid.NewString(), Title: "t", Content: "c", CreatedBy: "u1"}
		require.NoError(t, s.CreateAnnouncement(ctx, a))
		_, err = s.ResolveTarget(ctx, models.TargetPost, a.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ConcurrentTogglesKeepCountConsistent", func(t *testing.T) {
		s := open(t)

		p := &models.Post{ID: uuid.NewString(), AuthorID: "u1", Content: "popular"}
		require.NoError(t, s.CreatePost(ctx, p))
		target, err := s.ResolveTarget(ctx, models.TargetPost, p.ID)
		require.NoError(t, err)

		const actors = 16
		var wg sync.WaitGroup
		errs := make(chan error, actors*2)
		for i := 0; i < actors; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := s.ToggleLike(ctx, fmt.Sprintf("actor-%d", i), target); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.GetPost(ctx, p.ID)
		require.NoError(t, err)
		n, err := s.CountLikes(ctx, models.TargetPost, p.ID)
		require.NoError(t, err)
		assert.Equal(t, actors, got.LikesCount)
		assert.Equal(t, actors, n)
	})

	t.Run("Comments", func(t *testing.T) {
		s := open(t)

		p := &models.Post{ID: uuid.NewString(), AuthorID: "u1", Content: "discuss"}
		require.NoError(t, s.CreatePost(ctx, p))

		c := &models.Comment{PostID: p.NativeID, AuthorID: "u2", Content: "first"}
		require.NoError(t, s.CreateComment(ctx, c))
		assert.Equal(t, p.ID, c.PostID)
		assert.NotEmpty(t, c.ID)

		require.NoError(t, s.CreateComment(ctx, &models.Comment{PostID: p.ID, AuthorID: "u3", Content: "second", CreatedAt: time.Now().UTC().Add(time.Second)}))

		comments, err := s.ListComments(ctx, p.NativeID)
		require.NoError(t, err)
		require.Len(t, comments, 2)
		assert.Equal(t, "first", comments[0].Content)
		assert.Equal(t, "second", comments[1].Content)

		got, err := s.GetPost(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.CommentsCount)

		err = s.CreateComment(ctx, &models.Comment{PostID: "missing", AuthorID: "u2", Content: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListsNewestFirst", func(t *testing.T) {
		s := open(t)
		base := time.Now().UTC().Truncate(time.Millisecond)

		for i := 0; i < 3; i++ {
			a := &models.Announcement{ID: uuid.NewString(), Title: fmt.Sprintf("a%d", i), Content: "c", CreatedBy: "u1", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
			require.NoError(t, s.CreateAnnouncement(ctx, a))
			p := &models.Post{ID: uuid.NewString(), AuthorID: "u1", Content: fmt.Sprintf("p%d", i), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
			require.NoError(t, s.CreatePost(ctx, p))
		}

		announcements, err := s.ListAnnouncements(ctx, 2)
		require.NoError(t, err)
		require.Len(t, announcements, 2)
		assert.Equal(t, "a2", announcements[0].Title)
		assert.Equal(t, "a1", announcements[1].Title)

		posts, err := s.ListPosts(ctx, 0)
		require.NoError(t, err)
		require.Len(t, posts, 3)
		assert.Equal(t, "p2", posts[0].Content)
	})

	t.Run("DeleteCascadesButKeepsNotifications", func(t *testing.T) {
		s := open(t)

		p := &models.Post{ID: uuid.NewString(), AuthorID: "u1", Content: "short lived"}
		require.NoError(t, s.CreatePost(ctx, p))
		require.NoError(t, s.CreateComment(ctx, &models.Comment{PostID: p.ID, AuthorID: "u2", Content: "hi"}))
		target, err := s.ResolveTarget(ctx, models.TargetPost, p.ID)
		require.NoError(t, err)
		_, err = s.ToggleLike(ctx, "u2", target)
		require.NoError(t, err)

		a := &models.Announcement{ID: uuid.NewString(), Title: "Office closed", Content: "Friday", CreatedBy: "u1"}
		require.NoError(t, s.CreateAnnouncement(ctx, a))
		related := a.ID
		require.NoError(t, s.InsertNotifications(ctx, []*models.Notification{{
			RecipientID: "u2", Title: "New announcement", Message: "Office closed...",
			Type: models.NotificationTypeAnnouncement, RelatedID: &related,
		}}))

		require.NoError(t, s.DeletePost(ctx, p.NativeID))
		_, err = s.GetPost(ctx, p.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		n, err := s.CountLikes(ctx, models.TargetPost, p.ID)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, s.DeleteAnnouncement(ctx, a.ID))
		_, err = s.GetAnnouncement(ctx, a.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteAnnouncement(ctx, a.ID), ErrNotFound)

		notifications, err := s.ListNotifications(ctx, "u2", 0)
		require.NoError(t, err)
		require.Len(t, notifications, 1)
		require.NotNil(t, notifications[0].RelatedID)
		assert.Equal(t, a.ID, *notifications[0].RelatedID)
	})

	t.Run("Notifications", func(t *testing.T) {
		s := open(t)
		base := time.Now().UTC().Truncate(time.Millisecond)

		batch := make([]*models.Notification, 0, 4)
		for i := 0; i < 3; i++ {
			batch = append(batch, &models.Notification{
				RecipientID: "u1", Title: fmt.Sprintf("n%d", i), Message: "m",
				Type: models.NotificationTypeAnnouncement, CreatedAt: base.Add(time.Duration(i) * time.Second),
			})
		}
		batch = append(batch, &models.Notification{RecipientID: "u2", Title: "other", Message: "m", Type: models.NotificationTypeAnnouncement})
		require.NoError(t, s.InsertNotifications(ctx, batch))
		require.NoError(t, s.InsertNotifications(ctx, nil))
		for _, n := range batch {
			assert.NotEmpty(t, n.ID)
		}

		list, err := s.ListNotifications(ctx, "u1", 2)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "n2", list[0].Title)
		assert.Equal(t, "n1", list[1].Title)
		assert.False(t, list[0].Read)

		unread, err := s.CountUnread(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 3, unread)

		// Marking someone else's record is a miss.
		assert.ErrorIs(t, s.MarkNotificationRead(ctx, batch[0].ID, "u2"), ErrNotFound)
		require.NoError(t, s.MarkNotificationRead(ctx, batch[0].ID, "u1"))
		require.NoError(t, s.MarkNotificationRead(ctx, batch[0].ID, "u1"))

		unread, err = s.CountUnread(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 2, unread)

		unread, err = s.CountUnread(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, 1, unread)
	})

	t.Run("Ping", func(t *testing.T) {
		s := open(t)
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestMemoryStorage(t *testing.T) {
	testStorageContract(t, func(t *testing.T) Storage {
		s, err := NewMemoryStorage(Config{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestJSONStorage(t *testing.T) {
	testStorageContract(t, func(t *testing.T) Storage {
		s, err := NewJSONStorage(Config{Path: filepath.Join(t.TempDir(), "data", "staffhub.json")})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStorage(t *testing.T) {
	testStorageContract(t, func(t *testing.T) Storage {
		s, err := NewSQLiteStorage(Config{ConnectionString: filepath.Join(t.TempDir(), "staffhub.db")})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

// The server-backed suites need a disposable database; each run truncates it.
func TestPostgresStorage(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	testStorageContract(t, func(t *testing.T) Storage {
		s, err := NewPostgresStorage(Config{ConnectionString: dsn})
		require.NoError(t, err)
		_, err = s.pool.Exec(context.Background(),
			"TRUNCATE users, announcements, posts, comments, likes, notifications RESTART IDENTITY")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMySQLStorage(t *testing.T) {
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}

	testStorageContract(t, func(t *testing.T) Storage {
		s, err := NewMySQLStorage(Config{ConnectionString: dsn})
		require.NoError(t, err)
		for _, table := range []string{"users", "announcements", "posts", "comments", "likes", "notifications"} {
			require.NoError(t, s.db.Exec("TRUNCATE TABLE "+table).Error)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

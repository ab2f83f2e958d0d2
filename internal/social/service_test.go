package social

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"staffhub/internal/auth"
	"staffhub/internal/guard"
	"staffhub/internal/models"
	"staffhub/internal/notify"
	"staffhub/internal/storage"
)

// recordingBroadcaster captures events instead of delivering them.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []notify.Event
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, ev notify.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

type fixture struct {
	svc    *Service
	store  *storage.MemoryStorage
	events *recordingBroadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.NewMemoryStorage(storage.Config{})
	require.NoError(t, err)

	tokens, err := auth.NewIssuer(models.JWTConfig{Secret: "test-secret", Issuer: "staffhub", TTL: time.Hour})
	require.NoError(t, err)

	events := &recordingBroadcaster{}
	content := models.NewDefaultConfig().Security.Content
	content.TitleMaxBytes = 64
	content.CommentMaxBytes = 128

	svc := NewService(Dependencies{
		Store:   store,
		Guard:   guard.NewMemory(5, 300*time.Second),
		Tokens:  tokens,
		Fanout:  events,
		Hasher:  auth.NewHasher(bcrypt.MinCost),
		Content: content,
	})
	return &fixture{svc: svc, store: store, events: events}
}

func (f *fixture) user(t *testing.T, mutate func(*models.User)) *models.User {
	t.Helper()
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        models.NormalizeEmail(faker.Email()),
		PasswordHash: "unused",
		FirstName:    faker.FirstName(),
		LastName:     faker.LastName(),
		Position:     "barista",
		CreatedAt:    time.Now().UTC().Add(-time.Hour),
	}
	if mutate != nil {
		mutate(u)
	}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return u
}

func publisher(u *models.User) { u.Position = models.PositionTrainer }

func assertServiceError(t *testing.T, err error, status int, code string) *ServiceError {
	t.Helper()
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, status, se.StatusCode)
	assert.Equal(t, code, se.Code)
	return se
}

func register(t *testing.T, f *fixture, email, password string) *models.AuthResponse {
	t.Helper()
	resp, err := f.svc.Register(context.Background(), &models.RegisterRequest{
		Email:     email,
		Password:  password,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Position:  "Barista",
	})
	require.NoError(t, err)
	return resp
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	resp := register(t, f, "  Ada@Example.COM ", "s3cret-pass")
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, "ada@example.com", resp.User.Email)
	assert.Equal(t, "barista", resp.User.Position)

	stored, err := f.store.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", stored.PasswordHash)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := f.svc.Register(ctx, &models.RegisterRequest{
			Email: "ADA@example.com", Password: "another-pass", FirstName: "A", LastName: "L",
		})
		assertServiceError(t, err, http.StatusConflict, models.ErrorCodeConflict)
	})

	t.Run("invalid email", func(t *testing.T) {
		_, err := f.svc.Register(ctx, &models.RegisterRequest{
			Email: "not-an-email", Password: "long-enough", FirstName: "A", LastName: "L",
		})
		se := assertServiceError(t, err, http.StatusBadRequest, models.ErrorCodeValidation)
		assert.Equal(t, "email", se.Details["email"])
	})

	t.Run("name empty after sanitization", func(t *testing.T) {
		_, err := f.svc.Register(ctx, &models.RegisterRequest{
			Email: "x@example.com", Password: "long-enough", FirstName: "<script>alert(1)</script>", LastName: "L",
		})
		se := assertServiceError(t, err, http.StatusBadRequest, models.ErrorCodeValidation)
		assert.Equal(t, "required", se.Details["first_name"])
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	register(t, f, "grace@example.com", "correct-pass")

	resp, err := f.svc.Login(ctx, &models.LoginRequest{Email: " GRACE@example.com", Password: "correct-pass"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)

	_, err = f.svc.Login(ctx, &models.LoginRequest{Email: "grace@example.com", Password: "wrong"})
	assertServiceError(t, err, http.StatusUnauthorized, models.ErrorCodeUnauthorized)

	_, err = f.svc.Login(ctx, &models.LoginRequest{Email: "nobody@example.com", Password: "whatever"})
	assertServiceError(t, err, http.StatusUnauthorized, models.ErrorCodeUnauthorized)

	_, err = f.svc.Login(ctx, &models.LoginRequest{Email: "grace", Password: "x"})
	assertServiceError(t, err, http.StatusBadRequest, models.ErrorCodeValidation)
}

func TestLogin_SuccessClearsFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	register(t, f, "grace@example.com", "correct-pass")

	for i := 0; i < 4; i++ {
		_, err := f.svc.Login(ctx, &models.LoginRequest{Email: "grace@example.com", Password: "wrong"})
		require.Error(t, err)
	}
	_, err := f.svc.Login(ctx, &models.LoginRequest{Email: "grace@example.com", Password: "correct-pass"})
	require.NoError(t, err)

	// A fresh budget of four failures must not lock the account.
	for i := 0; i < 4; i++ {
		_, err := f.svc.Login(ctx, &models.LoginRequest{Email: "grace@example.com", Password: "wrong"})
		assertServiceError(t, err, http.StatusUnauthorized, models.ErrorCodeUnauthorized)
	}
	_, err = f.svc.Login(ctx, &models.LoginRequest{Email: "grace@example.com", Password: "correct-pass"})
	assert.NoError(t, err)
}

func TestLogin_LockoutRejectsCorrectPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	register(t, f, "grace@example.com", "correct-pass")

	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(ctx, &models.LoginRequest{Email: "grace@example.com", Password: "wrong"})
		assertServiceError(t, err, http.StatusUnauthorized, models.ErrorCodeUnauthorized)
	}

	_, err := f.svc.Login(ctx, &models.LoginRequest{Email: "Grace@Example.com", Password: "correct-pass"})
	se := assertServiceError(t, err, http.StatusTooManyRequests, models.ErrorCodeAccountLocked)
	assert.Positive(t, se.RetryAfter)
	assert.LessOrEqual(t, se.RetryAfter, 300*time.Second)

	resp := se.Response()
	require.NotNil(t, resp.RetryAfterSeconds)
	assert.Positive(t, *resp.RetryAfterSeconds)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	resp := register(t, f, "linus@example.com", "correct-pass")

	user, err := f.svc.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, user.ID)

	_, err = f.svc.Authenticate(ctx, "garbage")
	assertServiceError(t, err, http.StatusUnauthorized, models.ErrorCodeUnauthorized)

	ghost, _, err := f.svc.tokens.Issue(&models.User{ID: "deleted-user"})
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, ghost)
	assertServiceError(t, err, http.StatusUnauthorized, models.ErrorCodeUnauthorized)
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, nil)

	profile, err := f.svc.UpdateProfile(ctx, u, &models.UpdateProfileRequest{Bio: ` Loves "espresso" <b>`})
	require.NoError(t, err)
	assert.Equal(t, "Loves &quot;espresso&quot; &lt;b&gt;", profile.Bio)

	got, err := f.svc.GetProfile(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, profile, got)

	_, err = f.svc.UpdateProfile(ctx, u, &models.UpdateProfileRequest{Bio: strings.Repeat("x", 4*1024+1)})
	assertServiceError(t, err, http.StatusRequestEntityTooLarge, models.ErrorCodePayloadTooLarge)
}

func TestCreateAnnouncement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	author := f.user(t, publisher)

	a, err := f.svc.CreateAnnouncement(ctx, author, &models.CreateAnnouncementRequest{
		Title:   "Menu <script>alert(1)</script>update",
		Content: "New seasonal drinks from Monday",
	})
	require.NoError(t, err)
	assert.Equal(t, "Menu update", a.Title)
	assert.NotEmpty(t, a.NativeID)

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	assert.Equal(t, notify.AnnouncementTitle, ev.Title)
	assert.Equal(t, "Menu update", ev.Message)
	assert.Equal(t, a.ID, *ev.RelatedID)
	assert.Equal(t, author.ID, *ev.SenderID)
}

func TestCreateAnnouncement_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	author := f.user(t, publisher)
	admin := f.user(t, func(u *models.User) { u.IsAdmin = true })
	trainingDept := f.user(t, func(u *models.User) { u.SpecialRole = models.SpecialRoleTraining })
	barista := f.user(t, nil)

	tests := []struct {
		name   string
		user   *models.User
		req    *models.CreateAnnouncementRequest
		status int
		code   string
	}{
		{"not a publisher", barista, &models.CreateAnnouncementRequest{Title: "t", Content: "c"}, http.StatusForbidden, models.ErrorCodeForbidden},
		{"missing title", author, &models.CreateAnnouncementRequest{Content: "c"}, http.StatusBadRequest, models.ErrorCodeValidation},
		{"title empty after sanitization", admin, &models.CreateAnnouncementRequest{Title: "<script>x</script>", Content: "c"}, http.StatusBadRequest, models.ErrorCodeValidation},
		{"content is whitespace", trainingDept, &models.CreateAnnouncementRequest{Title: "t", Content: "   "}, http.StatusBadRequest, models.ErrorCodeValidation},
		{"title too large", author, &models.CreateAnnouncementRequest{Title: strings.Repeat("t", 65), Content: "c"}, http.StatusRequestEntityTooLarge, models.ErrorCodePayloadTooLarge},
		{"escaping pushes title over", author, &models.CreateAnnouncementRequest{Title: strings.Repeat("<", 20), Content: "c"}, http.StatusRequestEntityTooLarge, models.ErrorCodePayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAnnouncement(ctx, tt.user, tt.req)
			assertServiceError(t, err, tt.status, tt.code)
		})
	}

	assert.Empty(t, f.events.events, "rejected announcements are never broadcast")
	list, err := f.svc.ListAnnouncements(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAnnouncementBroadcastSurvivesDeletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	fanout := notify.New(f.store, models.NotificationConfig{BatchSize: 2, Workers: 2})
	f.svc.fanout = fanout

	author := f.user(t, publisher)
	readers := []*models.User{f.user(t, nil), f.user(t, nil), f.user(t, nil)}

	a, err := f.svc.CreateAnnouncement(ctx, author, &models.CreateAnnouncementRequest{Title: "Holiday hours", Content: "Closed on the 1st"})
	require.NoError(t, err)
	fanout.Wait()

	for _, u := range append(readers, author) {
		n, err := f.svc.UnreadCount(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	require.NoError(t, f.svc.DeleteAnnouncement(ctx, author, a.NativeID))

	list, err := f.svc.ListNotifications(ctx, readers[0])
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, *list[0].RelatedID)
	assert.False(t, list[0].Read)
}

func TestDeleteAnnouncement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	author := f.user(t, publisher)

	a, err := f.svc.CreateAnnouncement(ctx, author, &models.CreateAnnouncementRequest{Title: "t", Content: "c"})
	require.NoError(t, err)

	err = f.svc.DeleteAnnouncement(ctx, f.user(t, nil), a.ID)
	assertServiceError(t, err, http.StatusForbidden, models.ErrorCodeForbidden)

	require.NoError(t, f.svc.DeleteAnnouncement(ctx, author, a.ID))

	err = f.svc.DeleteAnnouncement(ctx, author, a.ID)
	assertServiceError(t, err, http.StatusNotFound, models.ErrorCodeNotFound)
}

func TestPosts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	author := f.user(t, nil)
	image := "https://cdn.example.com/latte.png"

	t.Run("image only", func(t *testing.T) {
		p, err := f.svc.CreatePost(ctx, author, &models.CreatePostRequest{ImageURL: &image})
		require.NoError(t, err)
		assert.Empty(t, p.Content)
		assert.Equal(t, image, *p.ImageURL)
	})

	t.Run("needs content or image", func(t *testing.T) {
		_, err := f.svc.CreatePost(ctx, author, &models.CreatePostRequest{Content: "<script></script>"})
		assertServiceError(t, err, http.StatusBadRequest, models.ErrorCodeValidation)
	})

	t.Run("content too large", func(t *testing.T) {
		_, err := f.svc.CreatePost(ctx, author, &models.CreatePostRequest{Content: strings.Repeat("p", 64*1024+1)})
		assertServiceError(t, err, http.StatusRequestEntityTooLarge, models.ErrorCodePayloadTooLarge)
	})

	t.Run("invalid image url", func(t *testing.T) {
		bad := "not a url"
		_, err := f.svc.CreatePost(ctx, author, &models.CreatePostRequest{ImageURL: &bad})
		assertServiceError(t, err, http.StatusBadRequest, models.ErrorCodeValidation)
	})

	list, err := f.svc.ListPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeletePost_Permissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	author := f.user(t, nil)
	other := f.user(t, nil)
	admin := f.user(t, func(u *models.User) { u.IsAdmin = true })

	first, err := f.svc.CreatePost(ctx, author, &models.CreatePostRequest{Content: "first"})
	require.NoError(t, err)
	second, err := f.svc.CreatePost(ctx, author, &models.CreatePostRequest{Content: "second"})
	require.NoError(t, err)

	err = f.svc.DeletePost(ctx, other, first.ID)
	assertServiceError(t, err, http.StatusForbidden, models.ErrorCodeForbidden)

	require.NoError(t, f.svc.DeletePost(ctx, author, first.NativeID))
	require.NoError(t, f.svc.DeletePost(ctx, admin, second.ID))

	err = f.svc.DeletePost(ctx, author, first.ID)
	assertServiceError(t, err, http.StatusNotFound, models.ErrorCodeNotFound)
}

func TestComments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	author := f.user(t, nil)
	commenter := f.user(t, nil)

	p, err := f.svc.CreatePost(ctx, author, &models.CreatePostRequest{Content: "Latte art thread"})
	require.NoError(t, err)

	c, err := f.svc.CreateComment(ctx, commenter, p.NativeID, &models.CreateCommentRequest{Content: "Nice <3"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, c.PostID, "comments are filed under the canonical post ref")
	assert.Equal(t, "Nice &lt;3", c.Content)

	_, err = f.svc.CreateComment(ctx, commenter, p.ID, &models.CreateCommentRequest{Content: "second"})
	require.NoError(t, err)

	list, err := f.svc.ListComments(ctx, p.NativeID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	got, err := f.store.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CommentsCount)

	_, err = f.svc.CreateComment(ctx, commenter, "missing", &models.CreateCommentRequest{Content: "x"})
	assertServiceError(t, err, http.StatusNotFound, models.ErrorCodeNotFound)

	_, err = f.svc.CreateComment(ctx, commenter, p.ID, &models.CreateCommentRequest{Content: "javascript:"})
	assertServiceError(t, err, http.StatusBadRequest, models.ErrorCodeValidation)

	_, err = f.svc.CreateComment(ctx, commenter, p.ID, &models.CreateCommentRequest{Content: strings.Repeat("c", 129)})
	assertServiceError(t, err, http.StatusRequestEntityTooLarge, models.ErrorCodePayloadTooLarge)

	_, err = f.svc.ListComments(ctx, "missing")
	assertServiceError(t, err, http.StatusNotFound, models.ErrorCodeNotFound)
}

func TestToggleLike(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	author := f.user(t, publisher)
	fan := f.user(t, nil)

	a, err := f.svc.CreateAnnouncement(ctx, author, &models.CreateAnnouncementRequest{Title: "t", Content: "c"})
	require.NoError(t, err)

	res, err := f.svc.ToggleLike(ctx, fan, models.TargetAnnouncement, a.NativeID)
	require.NoError(t, err)
	assert.Equal(t, &models.ToggleResult{Liked: true, LikesCount: 1}, res)

	res, err = f.svc.ToggleLike(ctx, fan, models.TargetAnnouncement, a.ID)
	require.NoError(t, err)
	assert.Equal(t, &models.ToggleResult{Liked: false, LikesCount: 0}, res)

	_, err = f.svc.ToggleLike(ctx, fan, models.TargetPost, a.ID)
	assertServiceError(t, err, http.StatusNotFound, models.ErrorCodeTargetNotFound)
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, nil)
	other := f.user(t, nil)

	require.NoError(t, f.store.InsertNotifications(ctx, []*models.Notification{
		{RecipientID: owner.ID, Title: "a", Type: models.NotificationTypeAnnouncement, CreatedAt: time.Now().UTC().Add(-time.Minute)},
		{RecipientID: owner.ID, Title: "b", Type: models.NotificationTypeAnnouncement, CreatedAt: time.Now().UTC()},
	}))

	list, err := f.svc.ListNotifications(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Title)

	err = f.svc.MarkNotificationRead(ctx, other, list[0].ID)
	assertServiceError(t, err, http.StatusNotFound, models.ErrorCodeNotFound)

	require.NoError(t, f.svc.MarkNotificationRead(ctx, owner, list[0].ID))

	n, err := f.svc.UnreadCount(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.UnreadCount(ctx, other)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAsServiceError(t *testing.T) {
	se := AsServiceError(NewNotFoundError("gone"))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)

	se = AsServiceError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.ErrorIs(t, se, assert.AnError)
}

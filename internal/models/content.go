package models

import "time"

// Announcement is a broadcast message from a publisher. NativeID is the
// store-assigned sequence identifier; ID is the generated UUID.
type Announcement struct {
	ID         string    `json:"id"`
	NativeID   string    `json:"native_id,omitempty"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	IsUrgent   bool      `json:"is_urgent"`
	ImageURL   *string   `json:"image_url,omitempty"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	LikesCount int       `json:"likes_count"`
}

// Ref returns the canonical reference for the announcement.
func (a *Announcement) Ref() string {
	return canonicalRef(a.ID, a.NativeID)
}

// Post is an entry in the social feed.
type Post struct {
	ID            string    `json:"id"`
	NativeID      string    `json:"native_id,omitempty"`
	AuthorID      string    `json:"author_id"`
	Content       string    `json:"content"`
	ImageURL      *string   `json:"image_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LikesCount    int       `json:"likes_count"`
	CommentsCount int       `json:"comments_count"`
}

// Ref returns the canonical reference for the post.
func (p *Post) Ref() string {
	return canonicalRef(p.ID, p.NativeID)
}

// Comment belongs to a post. PostID always holds the post's canonical
// reference, whichever identifier the client used.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

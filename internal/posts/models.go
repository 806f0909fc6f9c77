package posts

import (
	"errors"
	"time"
)

const (
	defaultAuthorName = "Usuario"
	maxHashtags       = 3
	maxPageSize       = 50
)

var (
	ErrNotFound       = errors.New("post not found")
	ErrCursorNotFound = errors.New("cursor post not found")
	ErrInvalidPost    = errors.New("title and content are required")
	ErrTooManyTags    = errors.New("at most 3 hashtags are allowed")
)

type Post struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	AuthorID     string    `json:"authorId"`
	AuthorName   string    `json:"authorName"`
	AuthorEmail  string    `json:"authorEmail,omitempty"`
	AuthorAvatar string    `json:"imageuser"`
	ImageURL     *string   `json:"imageUrl"`
	Hashtags     []string  `json:"hashtags"`
	CreatedAt    Timestamp `json:"createdAt"`
}

// Page is one step of a cursor-paginated listing, newest first.
type Page struct {
	Posts      []Post `json:"posts"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

type CreatePostInput struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	ImageURL string   `json:"imageUrl"`
	Hashtags []string `json:"hashtags"`
}

// ListOptions are the caller-facing listing arguments.
type ListOptions struct {
	Limit  int
	Cursor string
	Query  string
	Since  time.Time
}

// ListParams is what a repository receives: the cursor is already resolved to a post.
type ListParams struct {
	Limit   int
	After   *Post
	Hashtag string
	Since   time.Time
}

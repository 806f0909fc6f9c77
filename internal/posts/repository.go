package posts

import (
	"context"
	"sort"
)

// Repository is the document store holding posts and users' pinned post ids.
type Repository interface {
	ListPosts(ctx context.Context, p ListParams) ([]Post, error)
	GetPost(ctx context.Context, id string) (Post, error)
	GetPosts(ctx context.Context, ids []string) ([]Post, error)
	ListPostsByAuthor(ctx context.Context, authorID string) ([]Post, error)
	CreatePost(ctx context.Context, p Post) (Post, error)

	Pin(ctx context.Context, userID, postID string) error
	Unpin(ctx context.Context, userID, postID string) error
	IsPinned(ctx context.Context, userID, postID string) (bool, error)
	ListPinned(ctx context.Context, userID string) ([]string, error)
}

// Watcher is implemented by stores that can push change notifications for the newest
// limit posts. fn is called once per remote change until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, limit int, fn func()) error
}

// sortPosts orders newest first; ties fall back to descending id.
func sortPosts(posts []Post) []Post {
	sort.SliceStable(posts, func(i, j int) bool {
		return newerThan(posts[i], posts[j])
	})
	return posts
}

// newerThan reports whether a sorts before b in newest-first order.
func newerThan(a, b Post) bool {
	if a.CreatedAt.After(b.CreatedAt) {
		return true
	}
	if b.CreatedAt.After(a.CreatedAt) {
		return false
	}
	return a.ID > b.ID
}

package posts

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryRepository is a process-local store used for development and by tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	posts map[string]Post
	pins  map[string][]string
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		posts: map[string]Post{},
		pins:  map[string][]string{},
		now:   time.Now,
	}
}

// Put stores posts as given, keeping their timestamps.
func (r *MemoryRepository) Put(posts ...Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range posts {
		if p.Hashtags == nil {
			p.Hashtags = []string{}
		}
		r.posts[p.ID] = p
	}
}

func (r *MemoryRepository) ListPosts(_ context.Context, p ListParams) ([]Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Post{}
	for _, post := range r.posts {
		if p.Hashtag != "" && !slices.Contains(post.Hashtags, p.Hashtag) {
			continue
		}
		if !p.Since.IsZero() && (!post.CreatedAt.Known() || post.CreatedAt.Time.Before(p.Since)) {
			continue
		}
		if p.After != nil && !newerThan(*p.After, post) {
			continue
		}
		out = append(out, post)
	}
	sortPosts(out)
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) GetPost(_ context.Context, id string) (Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.posts[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepository) GetPosts(_ context.Context, ids []string) ([]Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Post{}
	for _, id := range ids {
		if p, ok := r.posts[id]; ok {
			out = append(out, p)
		}
	}
	return sortPosts(out), nil
}

func (r *MemoryRepository) ListPostsByAuthor(_ context.Context, authorID string) ([]Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Post{}
	for _, p := range r.posts {
		if p.AuthorID == authorID {
			out = append(out, p)
		}
	}
	return sortPosts(out), nil
}

func (r *MemoryRepository) CreatePost(_ context.Context, p Post) (Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Hashtags == nil {
		p.Hashtags = []string{}
	}
	p.CreatedAt = Timestamp{Kind: KindNative, Time: r.now().UTC()}
	r.posts[p.ID] = p
	return p, nil
}

func (r *MemoryRepository) Pin(_ context.Context, userID, postID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.pins[userID], postID) {
		r.pins[userID] = append(r.pins[userID], postID)
	}
	return nil
}

func (r *MemoryRepository) Unpin(_ context.Context, userID, postID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ids, ok := r.pins[userID]; ok {
		r.pins[userID] = slices.DeleteFunc(ids, func(id string) bool { return id == postID })
	}
	return nil
}

func (r *MemoryRepository) IsPinned(_ context.Context, userID, postID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.pins[userID], postID), nil
}

func (r *MemoryRepository) ListPinned(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.pins[userID]...), nil
}

package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/julianparra1/villavix/internal/posts"
)

// ErrStale is returned by LoadMore when the window was refreshed while the page was
// being fetched. The fetched page is dropped.
var ErrStale = errors.New("feed window refreshed during load")

// Lister is the listing side of posts.Service.
type Lister interface {
	ListPosts(ctx context.Context, opts posts.ListOptions) (posts.Page, error)
}

// Snapshot is what a client renders.
type Snapshot struct {
	Type       string       `json:"type"`
	Generation uint64       `json:"generation"`
	Posts      []posts.Post `json:"posts"`
	HasMore    bool         `json:"hasMore"`
}

// Window is one client's newest-first view: the live top page plus pages loaded on demand.
type Window struct {
	src  Lister
	size int

	refreshMu sync.Mutex

	mu         sync.Mutex
	posts      []posts.Post
	hasMore    bool
	generation uint64
	loading    bool
}

func NewWindow(src Lister, size int) *Window {
	return &Window{src: src, size: size, posts: []posts.Post{}}
}

// Refresh reloads the top page and replaces everything, including pages loaded so far.
func (w *Window) Refresh(ctx context.Context) (Snapshot, error) {
	w.refreshMu.Lock()
	defer w.refreshMu.Unlock()

	page, err := w.src.ListPosts(ctx, posts.ListOptions{Limit: w.size})
	if err != nil {
		return Snapshot{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.generation++
	w.posts = page.Posts
	w.hasMore = page.HasMore
	return w.snapshotLocked(), nil
}

// LoadMore appends the next page after the last post. It is a no-op while another load
// is running, when there is nothing more, or before the first refresh.
func (w *Window) LoadMore(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	if w.loading || !w.hasMore || len(w.posts) == 0 {
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return snap, nil
	}
	w.loading = true
	gen := w.generation
	cursor := w.posts[len(w.posts)-1].ID
	w.mu.Unlock()

	page, err := w.src.ListPosts(ctx, posts.ListOptions{Limit: w.size, Cursor: cursor})

	w.mu.Lock()
	defer w.mu.Unlock()
	w.loading = false
	if err != nil {
		return Snapshot{}, err
	}
	if w.generation != gen {
		return Snapshot{}, ErrStale
	}

	seen := make(map[string]struct{}, len(w.posts))
	for _, p := range w.posts {
		seen[p.ID] = struct{}{}
	}
	for _, p := range page.Posts {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		w.posts = append(w.posts, p)
	}
	w.hasMore = page.HasMore
	return w.snapshotLocked(), nil
}

func (w *Window) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Window) snapshotLocked() Snapshot {
	return Snapshot{
		Type:       "snapshot",
		Generation: w.generation,
		Posts:      append([]posts.Post{}, w.posts...),
		HasMore:    w.hasMore,
	}
}

package posts

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/julianparra1/villavix/internal/auth"
)

// Notifier is told about every successful write so live feeds can refresh.
type Notifier interface {
	Notify()
}

type Service struct {
	repo     Repository
	notifier Notifier
	pageSize int
}

func NewService(repo Repository, notifier Notifier, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = 5
	}
	return &Service{repo: repo, notifier: notifier, pageSize: pageSize}
}

func (s *Service) PageSize() int {
	return s.pageSize
}

// ListPosts returns one page, newest first. A query starting with '#' is matched against
// hashtags by the store; any other query is a case-insensitive filter over the fetched page.
func (s *Service) ListPosts(ctx context.Context, opts ListOptions) (Page, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	params := ListParams{Limit: limit + 1, Since: opts.Since}
	if opts.Cursor != "" {
		after, err := s.repo.GetPost(ctx, opts.Cursor)
		if errors.Is(err, ErrNotFound) {
			return Page{}, ErrCursorNotFound
		}
		if err != nil {
			return Page{}, err
		}
		params.After = &after
	}

	query := strings.TrimSpace(opts.Query)
	if strings.HasPrefix(query, "#") {
		params.Hashtag = query
		query = ""
	}

	fetched, err := s.repo.ListPosts(ctx, params)
	if err != nil {
		return Page{}, err
	}

	page := Page{Posts: []Post{}}
	if len(fetched) > limit {
		page.HasMore = true
		fetched = fetched[:limit]
	}
	if len(fetched) > 0 && page.HasMore {
		page.NextCursor = fetched[len(fetched)-1].ID
	}
	for _, p := range fetched {
		if query == "" || matches(p, query) {
			page.Posts = append(page.Posts, p)
		}
	}
	return page, nil
}

func (s *Service) GetPost(ctx context.Context, id string) (Post, error) {
	return s.repo.GetPost(ctx, id)
}

func (s *Service) ListPostsByAuthor(ctx context.Context, authorID string) ([]Post, error) {
	return s.repo.ListPostsByAuthor(ctx, authorID)
}

// CreatePost stamps authorship from the verified session; the store assigns createdAt.
func (s *Service) CreatePost(ctx context.Context, sess auth.Session, in CreatePostInput) (Post, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if title == "" || content == "" {
		return Post{}, ErrInvalidPost
	}
	hashtags, err := normalizeHashtags(in.Hashtags)
	if err != nil {
		return Post{}, err
	}

	p := Post{
		ID:           uuid.NewString(),
		Title:        title,
		Content:      content,
		AuthorID:     sess.UID,
		AuthorName:   sess.Name,
		AuthorEmail:  sess.Email,
		AuthorAvatar: sess.Avatar,
		Hashtags:     hashtags,
	}
	if p.AuthorName == "" {
		p.AuthorName = defaultAuthorName
	}
	if url := strings.TrimSpace(in.ImageURL); url != "" {
		p.ImageURL = &url
	}

	created, err := s.repo.CreatePost(ctx, p)
	if err != nil {
		return Post{}, err
	}
	if s.notifier != nil {
		s.notifier.Notify()
	}
	return created, nil
}

func (s *Service) Pin(ctx context.Context, userID, postID string) error {
	if _, err := s.repo.GetPost(ctx, postID); err != nil {
		return err
	}
	return s.repo.Pin(ctx, userID, postID)
}

func (s *Service) Unpin(ctx context.Context, userID, postID string) error {
	return s.repo.Unpin(ctx, userID, postID)
}

func (s *Service) IsPinned(ctx context.Context, userID, postID string) (bool, error) {
	return s.repo.IsPinned(ctx, userID, postID)
}

// ListPinned resolves the user's pinned ids, newest first. Deleted posts are skipped.
func (s *Service) ListPinned(ctx context.Context, userID string) ([]Post, error) {
	ids, err := s.repo.ListPinned(ctx, userID)
	if err != nil {
		return nil, err
	}
	posts, err := s.repo.GetPosts(ctx, ids)
	if err != nil {
		return nil, err
	}
	return sortPosts(posts), nil
}

func matches(p Post, query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(p.Content), q) {
		return true
	}
	for _, tag := range p.Hashtags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func normalizeHashtags(in []string) ([]string, error) {
	out := []string{}
	seen := map[string]bool{}
	for _, tag := range in {
		tag = strings.TrimSpace(tag)
		if tag == "" || tag == "#" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		if seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) > maxHashtags {
		return nil, ErrTooManyTags
	}
	return out, nil
}

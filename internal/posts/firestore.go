package posts

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	postsCollection = "posts"
	usersCollection = "users"
	pinnedField     = "pinnedPosts"
)

// FirestoreRepository reads and writes the "posts" and "users" collections.
type FirestoreRepository struct {
	client *firestore.Client
}

func NewFirestoreRepository(client *firestore.Client) *FirestoreRepository {
	return &FirestoreRepository{client: client}
}

func (r *FirestoreRepository) newest() firestore.Query {
	return r.client.Collection(postsCollection).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)
}

func (r *FirestoreRepository) ListPosts(ctx context.Context, p ListParams) ([]Post, error) {
	q := r.newest()
	if p.Hashtag != "" {
		q = q.Where("hashtags", "array-contains", p.Hashtag)
	}
	if !p.Since.IsZero() {
		q = q.Where("createdAt", ">=", p.Since)
	}
	if p.After != nil {
		if p.After.CreatedAt.Known() {
			q = q.StartAfter(p.After.CreatedAt.Time, p.After.ID)
		} else {
			snap, err := r.client.Collection(postsCollection).Doc(p.After.ID).Get(ctx)
			if err != nil {
				return nil, wrapNotFound(err, ErrCursorNotFound)
			}
			q = q.StartAfter(snap)
		}
	}
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	return collect(q.Documents(ctx))
}

func (r *FirestoreRepository) GetPost(ctx context.Context, id string) (Post, error) {
	snap, err := r.client.Collection(postsCollection).Doc(id).Get(ctx)
	if err != nil {
		return Post{}, wrapNotFound(err, ErrNotFound)
	}
	return postFromDocument(snap.Ref.ID, snap.Data()), nil
}

func (r *FirestoreRepository) GetPosts(ctx context.Context, ids []string) ([]Post, error) {
	if len(ids) == 0 {
		return []Post{}, nil
	}
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, r.client.Collection(postsCollection).Doc(id))
	}
	snaps, err := r.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to get posts: %w", err)
	}
	posts := make([]Post, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		posts = append(posts, postFromDocument(snap.Ref.ID, snap.Data()))
	}
	return sortPosts(posts), nil
}

func (r *FirestoreRepository) ListPostsByAuthor(ctx context.Context, authorID string) ([]Post, error) {
	// Equality plus ordering would need a composite index; sort in memory instead.
	q := r.client.Collection(postsCollection).Where("authorId", "==", authorID)
	posts, err := collect(q.Documents(ctx))
	if err != nil {
		return nil, err
	}
	return sortPosts(posts), nil
}

func (r *FirestoreRepository) CreatePost(ctx context.Context, p Post) (Post, error) {
	hashtags := p.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	ref := r.client.Collection(postsCollection).Doc(p.ID)
	_, err := ref.Set(ctx, map[string]any{
		"title":       p.Title,
		"content":     p.Content,
		"authorId":    p.AuthorID,
		"authorName":  p.AuthorName,
		"authorEmail": p.AuthorEmail,
		"imageuser":   p.AuthorAvatar,
		"imageUrl":    p.ImageURL,
		"hashtags":    hashtags,
		"createdAt":   firestore.ServerTimestamp,
	})
	if err != nil {
		return Post{}, fmt.Errorf("failed to write post: %w", err)
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		return Post{}, fmt.Errorf("failed to read back post: %w", err)
	}
	return postFromDocument(snap.Ref.ID, snap.Data()), nil
}

func (r *FirestoreRepository) Pin(ctx context.Context, userID, postID string) error {
	_, err := r.client.Collection(usersCollection).Doc(userID).Set(ctx, map[string]any{
		pinnedField: firestore.ArrayUnion(postID),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to pin: %w", err)
	}
	return nil
}

func (r *FirestoreRepository) Unpin(ctx context.Context, userID, postID string) error {
	_, err := r.client.Collection(usersCollection).Doc(userID).Update(ctx, []firestore.Update{
		{Path: pinnedField, Value: firestore.ArrayRemove(postID)},
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to unpin: %w", err)
	}
	return nil
}

func (r *FirestoreRepository) IsPinned(ctx context.Context, userID, postID string) (bool, error) {
	ids, err := r.ListPinned(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == postID {
			return true, nil
		}
	}
	return false, nil
}

func (r *FirestoreRepository) ListPinned(ctx context.Context, userID string) ([]string, error) {
	snap, err := r.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	return stringSlice(snap.Data()[pinnedField]), nil
}

// Watch listens to the newest limit posts and calls fn for every change after the initial state.
func (r *FirestoreRepository) Watch(ctx context.Context, limit int, fn func()) error {
	it := r.newest().Limit(limit).Snapshots(ctx)
	defer it.Stop()

	first := true
	for {
		_, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, iterator.Done) {
				return nil
			}
			return fmt.Errorf("posts listener: %w", err)
		}
		if first {
			first = false
			continue
		}
		fn()
	}
}

func collect(it *firestore.DocumentIterator) ([]Post, error) {
	defer it.Stop()
	posts := []Post{}
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return posts, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query posts: %w", err)
		}
		posts = append(posts, postFromDocument(snap.Ref.ID, snap.Data()))
	}
}

// postFromDocument maps a stored document onto a Post, tolerating absent fields.
func postFromDocument(id string, data map[string]any) Post {
	p := Post{
		ID:           id,
		Title:        stringField(data, "title"),
		Content:      stringField(data, "content"),
		AuthorID:     stringField(data, "authorId"),
		AuthorName:   stringField(data, "authorName"),
		AuthorEmail:  stringField(data, "authorEmail"),
		AuthorAvatar: stringField(data, "imageuser"),
		Hashtags:     stringSlice(data["hashtags"]),
		CreatedAt:    DecodeTimestamp(data["createdAt"]),
	}
	if p.AuthorName == "" {
		p.AuthorName = defaultAuthorName
	}
	if url := stringField(data, "imageUrl"); url != "" {
		p.ImageURL = &url
	}
	return p
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case *string:
		if v != nil {
			return *v
		}
	}
	return ""
}

func stringSlice(v any) []string {
	out := []string{}
	switch vs := v.(type) {
	case []string:
		out = append(out, vs...)
	case []any:
		for _, x := range vs {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func wrapNotFound(err, sentinel error) error {
	if status.Code(err) == codes.NotFound {
		return sentinel
	}
	return fmt.Errorf("firestore: %w", err)
}

package posts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/julianparra1/villavix/internal/db"
)

const postColumns = `id, title, content, author_id, author_name, author_email, author_avatar, image_url, hashtags, created_at`

const newestFirst = `ORDER BY created_at DESC NULLS LAST, id DESC`

// PostgresRepository keeps posts and pins in the relational schema created by db.Migrate.
type PostgresRepository struct {
	db db.Querier
}

func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

func (r *PostgresRepository) ListPosts(ctx context.Context, p ListParams) ([]Post, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if p.Hashtag != "" {
		where = append(where, arg(p.Hashtag)+" = ANY(hashtags)")
	}
	if !p.Since.IsZero() {
		where = append(where, "created_at >= "+arg(p.Since))
	}
	if p.After != nil {
		if p.After.CreatedAt.Known() {
			at := arg(p.After.CreatedAt.Time)
			id := arg(p.After.ID)
			where = append(where, "((created_at, id) < ("+at+", "+id+") OR created_at IS NULL)")
		} else {
			where = append(where, "(created_at IS NULL AND id < "+arg(p.After.ID)+")")
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + postColumns + " FROM posts")
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" " + newestFirst)
	if p.Limit > 0 {
		sb.WriteString(" LIMIT " + arg(p.Limit))
	}

	return r.query(ctx, sb.String(), args...)
}

func (r *PostgresRepository) GetPost(ctx context.Context, id string) (Post, error) {
	row := r.db.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	p, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("failed to get post: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) GetPosts(ctx context.Context, ids []string) ([]Post, error) {
	if len(ids) == 0 {
		return []Post{}, nil
	}
	return r.query(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ANY($1) `+newestFirst, ids)
}

func (r *PostgresRepository) ListPostsByAuthor(ctx context.Context, authorID string) ([]Post, error) {
	return r.query(ctx, `SELECT `+postColumns+` FROM posts WHERE author_id = $1 `+newestFirst, authorID)
}

func (r *PostgresRepository) CreatePost(ctx context.Context, p Post) (Post, error) {
	hashtags := p.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	var createdAt time.Time
	err := r.db.QueryRow(ctx, `
		INSERT INTO posts (id, title, content, author_id, author_name, author_email, author_avatar, image_url, hashtags)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`, p.ID, p.Title, p.Content, p.AuthorID, p.AuthorName, p.AuthorEmail, p.AuthorAvatar, p.ImageURL, hashtags).Scan(&createdAt)
	if err != nil {
		return Post{}, fmt.Errorf("failed to insert post: %w", err)
	}
	p.Hashtags = hashtags
	p.CreatedAt = DecodeTimestamp(createdAt)
	return p, nil
}

func (r *PostgresRepository) Pin(ctx context.Context, userID, postID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, pinned_posts) VALUES ($1, ARRAY[$2::text])
		ON CONFLICT (id) DO UPDATE SET pinned_posts = CASE
			WHEN $2 = ANY(users.pinned_posts) THEN users.pinned_posts
			ELSE array_append(users.pinned_posts, $2)
		END
	`, userID, postID)
	if err != nil {
		return fmt.Errorf("failed to pin: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Unpin(ctx context.Context, userID, postID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users SET pinned_posts = array_remove(pinned_posts, $2)
		WHERE id = $1
	`, userID, postID)
	if err != nil {
		return fmt.Errorf("failed to unpin: %w", err)
	}
	return nil
}

func (r *PostgresRepository) IsPinned(ctx context.Context, userID, postID string) (bool, error) {
	var pinned bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND $2 = ANY(pinned_posts))
	`, userID, postID).Scan(&pinned)
	if err != nil {
		return false, fmt.Errorf("failed to check pin: %w", err)
	}
	return pinned, nil
}

func (r *PostgresRepository) ListPinned(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.QueryRow(ctx, `SELECT pinned_posts FROM users WHERE id = $1`, userID).Scan(&ids)
	if errors.Is(err, pgx.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list pins: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...any) ([]Post, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read posts: %w", err)
	}
	return posts, nil
}

func scanPost(row pgx.Row) (Post, error) {
	var (
		p         Post
		createdAt *time.Time
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID, &p.AuthorName, &p.AuthorEmail, &p.AuthorAvatar, &p.ImageURL, &p.Hashtags, &createdAt); err != nil {
		return Post{}, err
	}
	if p.AuthorName == "" {
		p.AuthorName = defaultAuthorName
	}
	if p.Hashtags == nil {
		p.Hashtags = []string{}
	}
	p.CreatedAt = DecodeTimestamp(createdAt)
	return p, nil
}

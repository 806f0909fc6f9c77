package summary

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/julianparra1/villavix/internal/logging"
	"github.com/julianparra1/villavix/internal/posts"
)

// FallbackHTML is served whenever the model cannot produce a summary.
const FallbackHTML = "<p>No se pudo generar un resumen automático.</p>"

const postSeparator = "\n---\n"

const promptHeader = `Eres un asistente que resume publicaciones ciudadanas de un municipio.
Lee las siguientes publicaciones, separadas por "---", y escribe en español una síntesis breve
en forma de lista con viñetas que agrupe los temas principales y los problemas reportados.
No inventes información que no aparezca en las publicaciones.

Publicaciones:
`

// Source is the listing side of posts.Service.
type Source interface {
	ListPosts(ctx context.Context, opts posts.ListOptions) (posts.Page, error)
}

type Result struct {
	Posts       []posts.Post `json:"posts"`
	HasMore     bool         `json:"hasMore"`
	ContentHTML string       `json:"contentHtml"`
}

type Service struct {
	src      Source
	gen      Generator
	md       goldmark.Markdown
	policy   *bluemonday.Policy
	pageSize int
	window   time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewService builds the summarizer. gen may be nil, in which case every summary is the fallback.
func NewService(src Source, gen Generator, pageSize int, window time.Duration, logger *zap.Logger) *Service {
	return &Service{
		src:      src,
		gen:      gen,
		md:       goldmark.New(),
		policy:   bluemonday.UGCPolicy(),
		pageSize: pageSize,
		window:   window,
		now:      time.Now,
		log:      logging.OrNop(logger),
	}
}

// Summarize lists the first page matching query, keeps the recent posts and asks the
// model for one synthesis of them. Model failures degrade to FallbackHTML.
func (s *Service) Summarize(ctx context.Context, query string) (Result, error) {
	opts := posts.ListOptions{Limit: s.pageSize, Query: query}
	var cutoff time.Time
	if s.window > 0 {
		cutoff = s.now().Add(-s.window)
		opts.Since = cutoff
	}

	page, err := s.src.ListPosts(ctx, opts)
	if err != nil {
		return Result{}, err
	}

	recent := make([]posts.Post, 0, len(page.Posts))
	for _, p := range page.Posts {
		if !p.CreatedAt.Known() || p.CreatedAt.Time.Before(cutoff) {
			continue
		}
		recent = append(recent, p)
	}

	res := Result{Posts: recent, HasMore: page.HasMore}
	if len(recent) == 0 {
		return res, nil
	}

	res.ContentHTML = s.generate(ctx, buildPrompt(recent))
	return res, nil
}

func (s *Service) generate(ctx context.Context, prompt string) string {
	if s.gen == nil {
		return FallbackHTML
	}
	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		s.log.Warn("summary generation failed", zap.Error(err))
		return FallbackHTML
	}
	html, err := s.render(text)
	if err != nil {
		s.log.Warn("summary rendering failed", zap.Error(err))
		return FallbackHTML
	}
	return html
}

func (s *Service) render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return s.policy.Sanitize(buf.String()), nil
}

func buildPrompt(ps []posts.Post) string {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		parts = append(parts, p.Title+"\n"+p.Content)
	}
	return promptHeader + strings.Join(parts, postSeparator)
}

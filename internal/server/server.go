package server

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/julianparra1/villavix/internal/auth"
	"github.com/julianparra1/villavix/internal/config"
	"github.com/julianparra1/villavix/internal/db"
	"github.com/julianparra1/villavix/internal/feed"
	"github.com/julianparra1/villavix/internal/logging"
	"github.com/julianparra1/villavix/internal/posts"
	"github.com/julianparra1/villavix/internal/storage"
	"github.com/julianparra1/villavix/internal/summary"
)

// Deps are the external collaborators. Any of them may be nil; the affected
// features then degrade instead of failing at startup.
type Deps struct {
	DB        db.Querier
	Redis     *redis.Client
	Firestore *firestore.Client
	Objects   storage.ObjectStore
	Generator summary.Generator
	Logger    *zap.Logger
}

type Server struct {
	App   *fiber.App
	Cfg   config.Config
	Hub   *feed.Hub
	Repo  posts.Repository
	Posts *posts.Service
	Auth  *auth.Service
	log   *zap.Logger
}

func NewServer(cfg config.Config, deps Deps) *Server {
	log := logging.OrNop(deps.Logger)

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		BodyLimit:    bodyLimit(cfg.MaxUploadBytes),
	})
	app.Use(recover.New())
	app.Use(logger.New())

	hub := feed.NewHub(deps.Redis, log)
	repo := selectRepository(cfg, deps, log)

	s := &Server{
		App:   app,
		Cfg:   cfg,
		Hub:   hub,
		Repo:  repo,
		Posts: posts.NewService(repo, hub, cfg.FeedPageSize),
		Auth:  auth.NewService(cfg.JWTSecret, deps.DB, log),
		log:   log,
	}

	registerRoutes(s, deps)
	return s
}

// Background runs the change hub and, for stores that can push changes, the store listener.
// It returns when ctx is done.
func (s *Server) Background(ctx context.Context) {
	if w, ok := s.Repo.(posts.Watcher); ok {
		go s.Hub.Relay(ctx, w, s.Posts.PageSize())
	}
	if err := s.Hub.Run(ctx); err != nil {
		s.log.Error("change hub stopped", zap.Error(err))
	}
}

func registerRoutes(s *Server, deps Deps) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	cookie := s.Cfg.SessionCookie
	s.App.Use(auth.Gate(s.Auth, s.Cfg.ProtectedPrefixes, cookie))
	requireSession := auth.RequireSession(s.Auth, cookie)

	api := s.App.Group("/api")
	auth.RegisterRoutes(api.Group("/auth"), s.Auth, cookie)
	posts.RegisterRoutes(api, s.Posts, requireSession)
	feed.RegisterRoutes(api, s.Hub, s.Posts, s.Posts.PageSize())
	summary.RegisterRoutes(api, summary.NewService(s.Posts, deps.Generator, s.Cfg.SummaryPageSize, s.Cfg.SummaryWindow, s.log))
	storage.RegisterRoutes(api, storage.NewService(deps.Objects, deps.DB, s.Cfg.MaxUploadBytes, s.log), requireSession)

	posts.RegisterDashboard(s.App, s.Posts)
}

func selectRepository(cfg config.Config, deps Deps, log *zap.Logger) posts.Repository {
	switch {
	case cfg.StoreBackend == config.BackendFirestore && deps.Firestore != nil:
		return posts.NewFirestoreRepository(deps.Firestore)
	case cfg.StoreBackend == config.BackendPostgres && deps.DB != nil:
		return posts.NewPostgresRepository(deps.DB)
	}
	if cfg.StoreBackend != config.BackendMemory {
		logging.OrNop(log).Warn("post store unavailable, using in-memory posts", zap.String("backend", cfg.StoreBackend))
	}
	return posts.NewMemoryRepository()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func bodyLimit(maxUpload int64) int {
	const overhead = 1 << 20
	if limit := int(maxUpload) + overhead; limit > fiber.DefaultBodyLimit {
		return limit
	}
	return fiber.DefaultBodyLimit
}

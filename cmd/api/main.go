package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/julianparra1/villavix/internal/config"
	"github.com/julianparra1/villavix/internal/db"
	"github.com/julianparra1/villavix/internal/logging"
	"github.com/julianparra1/villavix/internal/server"
	"github.com/julianparra1/villavix/internal/storage"
	"github.com/julianparra1/villavix/internal/summary"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

// resources are the clients Run owns and closes on shutdown.
type resources struct {
	pg        *pgxpool.Pool
	rdb       *redis.Client
	fs        *firestore.Client
	objects   *storage.GCSStore
	generator summary.Generator
	log       *zap.Logger
}

type mainDeps struct {
	loadConfig       func() config.Config
	newLogger        func(level string) (*zap.Logger, error)
	connectPostgres  func(config.Config) (*pgxpool.Pool, error)
	connectRedis     func(config.Config) *redis.Client
	connectFirestore func(config.Config) (*firestore.Client, error)
	connectStorage   func(config.Config) (*storage.GCSStore, error)
	newGenerator     func(config.Config) (summary.Generator, error)
	notify           func(chan<- os.Signal, ...os.Signal)
	run              func(context.Context, config.Config, resources, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:       config.Load,
		newLogger:        logging.New,
		connectPostgres:  db.ConnectPostgres,
		connectRedis:     db.ConnectRedis,
		connectFirestore: db.ConnectFirestore,
		connectStorage:   connectStorage,
		newGenerator:     newGenerator,
		notify:           signal.Notify,
		run:              Run,
	}
}

var errNoBucket = errors.New("STORAGE_BUCKET is not set")

func connectStorage(cfg config.Config) (*storage.GCSStore, error) {
	if cfg.StorageBucket == "" {
		return nil, errNoBucket
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return storage.NewGCSStore(ctx, cfg.StorageBucket, db.ClientOptions(cfg)...)
}

func newGenerator(cfg config.Config) (summary.Generator, error) {
	g, err := summary.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()

	log, err := deps.newLogger(cfg.LogLevel)
	if err != nil {
		log = zap.NewNop()
	}
	defer func() { _ = log.Sync() }()

	res := resources{log: log}

	if cfg.StoreBackend != config.BackendMemory {
		res.pg, err = deps.connectPostgres(cfg)
		if err != nil {
			log.Warn("postgres connection failed", zap.Error(err))
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := db.Migrate(ctx, res.pg); err != nil {
				log.Error("schema migration failed", zap.Error(err))
			}
			cancel()
		}
	}

	res.rdb = deps.connectRedis(cfg)

	if cfg.StoreBackend == config.BackendFirestore {
		res.fs, err = deps.connectFirestore(cfg)
		if err != nil {
			log.Warn("firestore connection failed", zap.Error(err))
		}
	}

	res.objects, err = deps.connectStorage(cfg)
	if err != nil {
		log.Warn("object storage unavailable, uploads disabled", zap.Error(err))
	}

	res.generator, err = deps.newGenerator(cfg)
	if err != nil {
		log.Warn("summary model unavailable, summaries use the fallback text", zap.Error(err))
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, res, signals, nil); err != nil {
		log.Error("server exited with error", zap.Error(err))
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, res resources, signals <-chan os.Signal, listen ListenFunc) error {
	srv := server.NewServer(cfg, res.deps())

	if listen == nil {
		listen = defaultListen
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	bgDone := make(chan struct{})
	go func() {
		srv.Background(bgCtx)
		close(bgDone)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	var runErr error
	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	stopBackground()
	<-bgDone
	res.close()
	return runErr
}

func (r resources) deps() server.Deps {
	d := server.Deps{
		Redis:     r.rdb,
		Firestore: r.fs,
		Generator: r.generator,
		Logger:    r.log,
	}
	if r.pg != nil {
		d.DB = r.pg
	}
	if r.objects != nil {
		d.Objects = r.objects
	}
	return d
}

func (r resources) close() {
	if r.pg != nil {
		r.pg.Close()
	}
	if r.rdb != nil {
		_ = r.rdb.Close()
	}
	if r.fs != nil {
		_ = r.fs.Close()
	}
	if r.objects != nil {
		_ = r.objects.Close()
	}
}

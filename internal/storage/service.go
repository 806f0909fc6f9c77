package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/julianparra1/villavix/internal/db"
	"github.com/julianparra1/villavix/internal/logging"
)

const kindPostImage = "post_image"

var (
	ErrNoFile       = errors.New("no file provided")
	ErrFileTooLarge = errors.New("file too large")
	ErrNoStore      = errors.New("object storage is not configured")
)

// ObjectStore writes a public object and returns its URL.
type ObjectStore interface {
	Put(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

type Upload struct {
	UserID      string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Service struct {
	store    ObjectStore
	db       db.Querier
	log      *zap.Logger
	maxBytes int64
	now      func() time.Time
}

// NewService builds the upload service. db may be nil when uploads are not recorded.
func NewService(store ObjectStore, db db.Querier, maxBytes int64, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		db:       db,
		log:      logging.OrNop(logger),
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// UploadImage stores the image under posts/{uid}/{unixMillis}-{name} and returns its public URL.
func (s *Service) UploadImage(ctx context.Context, up Upload) (string, error) {
	if up.Body == nil || up.Size == 0 {
		return "", ErrNoFile
	}
	if s.maxBytes > 0 && up.Size > s.maxBytes {
		return "", ErrFileTooLarge
	}
	if s.store == nil {
		return "", ErrNoStore
	}

	objectPath := ObjectPath(up.UserID, up.FileName, s.now())
	url, err := s.store.Put(ctx, objectPath, up.ContentType, up.Body)
	if err != nil {
		return "", fmt.Errorf("failed to store object: %w", err)
	}

	if s.db != nil {
		if _, err := s.SaveObject(ctx, up.UserID, url, kindPostImage); err != nil {
			s.log.Warn("recording upload failed", zap.String("url", url), zap.Error(err))
		}
	}
	return url, nil
}

func (s *Service) SaveObject(ctx context.Context, userID, url, kind string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx, `
		INSERT INTO storage_objects (id, user_id, url, kind)
		VALUES ($1,$2,$3,$4)
	`, id, userID, url, kind)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ObjectPath keeps only the base name of the client's file name.
func ObjectPath(userID, fileName string, at time.Time) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "image"
	}
	return "posts/" + userID + "/" + strconv.FormatInt(at.UnixMilli(), 10) + "-" + name
}

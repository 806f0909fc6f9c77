package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Put(_ context.Context, path, contentType string, r io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = data
	m.types[path] = contentType
	return PublicURL("bucket", path), nil
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestObjectPath(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	cases := map[string]string{
		"foto.png":           "posts/u1/1700000000123-foto.png",
		"../../etc/passwd":   "posts/u1/1700000000123-passwd",
		`C:\fotos\calle.jpg`: "posts/u1/1700000000123-calle.jpg",
		"":                   "posts/u1/1700000000123-image",
	}
	for in, want := range cases {
		if got := ObjectPath("u1", in, at); got != want {
			t.Fatalf("ObjectPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUploadImageStoresAndRecords(t *testing.T) {
	mock := newMock(t)
	store := newMemStore()
	svc := NewService(store, mock, 5<<20, nil)
	svc.now = func() time.Time { return time.UnixMilli(42) }

	want := "https://storage.googleapis.com/bucket/posts/u1/42-bache.jpg"
	mock.ExpectExec(`INSERT INTO storage_objects`).
		WithArgs(pgxmock.AnyArg(), "u1", want, "post_image").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	url, err := svc.UploadImage(context.Background(), Upload{
		UserID:      "u1",
		FileName:    "bache.jpg",
		ContentType: "image/jpeg",
		Size:        4,
		Body:        bytes.NewReader([]byte("jpeg")),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != want {
		t.Fatalf("unexpected url %s", url)
	}
	if string(store.objects["posts/u1/42-bache.jpg"]) != "jpeg" || store.types["posts/u1/42-bache.jpg"] != "image/jpeg" {
		t.Fatalf("object not stored as expected")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUploadImageRejects(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, 10, nil)
	ctx := context.Background()

	if _, err := svc.UploadImage(ctx, Upload{UserID: "u1", FileName: "a.png"}); !errors.Is(err, ErrNoFile) {
		t.Fatalf("expected ErrNoFile, got %v", err)
	}
	_, err := svc.UploadImage(ctx, Upload{UserID: "u1", FileName: "a.png", Size: 11, Body: strings.NewReader(strings.Repeat("x", 11))})
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if len(store.objects) != 0 {
		t.Fatalf("rejected uploads must not be stored")
	}

	unconfigured := NewService(nil, nil, 10, nil)
	if _, err := unconfigured.UploadImage(ctx, Upload{Size: 1, Body: strings.NewReader("x")}); !errors.Is(err, ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestUploadImageRecordFailureKeepsURL(t *testing.T) {
	mock := newMock(t)
	svc := NewService(newMemStore(), mock, 0, nil)

	mock.ExpectExec(`INSERT INTO storage_objects`).
		WillReturnError(errors.New("db down"))

	url, err := svc.UploadImage(context.Background(), Upload{UserID: "u1", FileName: "a.png", Size: 1, Body: strings.NewReader("x")})
	if err != nil || url == "" {
		t.Fatalf("expected url despite record failure, got %q %v", url, err)
	}
}

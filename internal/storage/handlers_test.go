package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/julianparra1/villavix/internal/auth"
)

func uploadApp(svc *Service) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/api"), svc, func(c *fiber.Ctx) error {
		auth.SetSession(c, auth.Session{UID: "u1", Role: auth.RoleCitizen})
		return c.Next()
	})
	return app
}

func multipartRequest(t *testing.T, field, name string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = fw.Write(data)
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func errorBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	raw, _ := io.ReadAll(resp.Body)
	var body map[string]string
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return body["error"]
}

func TestUploadHandler(t *testing.T) {
	store := newMemStore()
	app := uploadApp(NewService(store, nil, 1024, nil))

	resp, err := app.Test(multipartRequest(t, "image", "luz.png", []byte("png-bytes")))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status: %v %d", err, resp.StatusCode)
	}
	var body map[string]string
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &body)
	if body["imageUrl"] == "" || len(store.objects) != 1 {
		t.Fatalf("expected stored image, got %s", raw)
	}
}

func TestUploadHandlerErrors(t *testing.T) {
	app := uploadApp(NewService(newMemStore(), nil, 4, nil))

	resp, _ := app.Test(multipartRequest(t, "", "", nil))
	if resp.StatusCode != http.StatusBadRequest || errorBody(t, resp) != "No file provided" {
		t.Fatalf("expected no file error, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(multipartRequest(t, "image", "big.png", []byte("too large")))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}

	failing := newMemStore()
	failing.err = errors.New("bucket unavailable")
	app = uploadApp(NewService(failing, nil, 1024, nil))
	resp, _ = app.Test(multipartRequest(t, "image", "a.png", []byte("x")))
	if resp.StatusCode != http.StatusInternalServerError || errorBody(t, resp) != "Failed to upload image" {
		t.Fatalf("expected upload failure, got %d", resp.StatusCode)
	}
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func gateApp(svc *Service) *fiber.App {
	app := fiber.New()
	app.Use(Gate(svc, []string{"/home"}, "sessionToken"))
	app.Get("/home/*", func(c *fiber.Ctx) error {
		sess, ok := SessionFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusInternalServerError)
		}
		return c.SendString(sess.UID)
	})
	app.Get("/public", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })
	return app
}

func TestRequireSession(t *testing.T) {
	svc := NewService("secret", nil, nil)
	app := fiber.New()
	app.Get("/private", RequireSession(svc, "sessionToken"), func(c *fiber.Ctx) error {
		if _, ok := SessionFrom(c); !ok {
			return fiber.NewError(fiber.StatusUnauthorized)
		}
		return c.SendStatus(http.StatusOK)
	})

	// missing token
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized")
	}

	token, _ := svc.signToken(identity{ID: "user-1"}, accessTokenTTL)

	// bearer header
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok with bearer")
	}

	// cookie
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: "sessionToken", Value: token})
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok with cookie")
	}

	// garbage
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for garbage token")
	}
}

func TestGateRedirectsWithoutCookie(t *testing.T) {
	app := gateApp(NewService("secret", nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/home/reportes", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/login?returnUrl=%2Fhome%2Freportes" {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestGateClearsRejectedCookie(t *testing.T) {
	svc := NewService("secret", nil, nil)
	app := gateApp(svc)

	citizen, _ := svc.signToken(identity{ID: "user-1", Role: "ciudadano"}, time.Minute)
	expired, _ := svc.signToken(identity{ID: "user-1", Role: "admin"}, -time.Minute)

	for _, token := range []string{citizen, expired, "garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/home/x", nil)
		req.AddCookie(&http.Cookie{Name: "sessionToken", Value: token})
		resp, _ := app.Test(req)
		if resp.StatusCode != http.StatusFound {
			t.Fatalf("expected redirect, got %d", resp.StatusCode)
		}
		if loc := resp.Header.Get("Location"); loc != "/login?returnUrl=%2Fhome%2Fx" {
			t.Fatalf("unexpected location %q", loc)
		}
		cookie := resp.Header.Get("Set-Cookie")
		if !strings.Contains(cookie, "sessionToken=") || !strings.Contains(strings.ToLower(cookie), "expires=") {
			t.Fatalf("expected cookie to be cleared, got %q", cookie)
		}
	}
}

func TestGateAllowsOfficials(t *testing.T) {
	svc := NewService("secret", nil, nil)
	app := gateApp(svc)

	token, _ := svc.signToken(identity{ID: "official-1", Role: "funcionario"}, time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/home/x", nil)
	req.AddCookie(&http.Cookie{Name: "sessionToken", Value: token})
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/public", nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unprotected path should pass through")
	}
}

func TestBearerFromHeader(t *testing.T) {
	if bearerFromHeader("Bearer abc") != "abc" {
		t.Fatalf("expected token")
	}
	if bearerFromHeader("bearer  abc ") != "abc" {
		t.Fatalf("expected case-insensitive scheme")
	}
	if bearerFromHeader("Basic abc") != "" || bearerFromHeader("") != "" {
		t.Fatalf("expected empty token")
	}
}

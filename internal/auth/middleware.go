package auth

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const sessionKey = "session"

// RequireSession resolves the caller from the session cookie or a bearer header and
// stores the Session in locals. Any authenticated role is accepted.
func RequireSession(svc *Service, cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := tokenFromRequest(c, cookieName)
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "no authenticated session")
		}
		sess, err := svc.Verify(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid session")
		}
		SetSession(c, sess)
		return c.Next()
	}
}

// SetSession stores a verified Session for downstream handlers.
func SetSession(c *fiber.Ctx, sess Session) {
	c.Locals(sessionKey, sess)
}

// SessionFrom returns the Session placed by RequireSession or Gate.
func SessionFrom(c *fiber.Ctx) (Session, bool) {
	sess, ok := c.Locals(sessionKey).(Session)
	return sess, ok
}

// Gate protects every path under one of prefixes. Unauthenticated callers are sent to
// /login with a returnUrl; a rejected token is also cleared from the browser.
func Gate(svc *Service, prefixes []string, cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if !isProtected(path, prefixes) {
			return c.Next()
		}

		token := c.Cookies(cookieName)
		if token == "" {
			return c.Redirect(loginURL(path), fiber.StatusFound)
		}

		sess, err := svc.Authorize(token, CapDashboard)
		if err != nil {
			c.ClearCookie(cookieName)
			return c.Redirect(loginURL(path), fiber.StatusFound)
		}
		SetSession(c, sess)
		return c.Next()
	}
}

func isProtected(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func loginURL(returnPath string) string {
	return "/login?" + url.Values{"returnUrl": {returnPath}}.Encode()
}

func tokenFromRequest(c *fiber.Ctx, cookieName string) string {
	if token := c.Cookies(cookieName); token != "" {
		return token
	}
	return bearerFromHeader(c.Get("Authorization"))
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

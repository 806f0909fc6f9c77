package auth

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"go.uber.org/zap"
)

const (
	loginAttempts = 5
	loginWindow   = time.Minute

	unavailableMessage = "Authentication service unavailable"
)

func RegisterRoutes(r fiber.Router, svc *Service, cookieName string) {
	r.Post("/register", func(c *fiber.Ctx) error {
		var req RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		user, tokens, err := svc.Register(c.Context(), req)
		switch {
		case errors.Is(err, ErrMissingFields):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, ErrEmailTaken):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case errors.Is(err, ErrUnavailable):
			return fiber.NewError(fiber.StatusServiceUnavailable, unavailableMessage)
		case err != nil:
			svc.log.Error("register failed", zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "registration failed")
		}
		setSessionCookie(c, cookieName, tokens)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user, "tokens": tokens})
	})

	r.Post("/login", limiter.New(limiter.Config{Max: loginAttempts, Expiration: loginWindow}), func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "email and password required")
		}
		user, tokens, err := svc.Login(c.Context(), req)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				return fiber.NewError(fiber.StatusUnauthorized, err.Error())
			}
			if errors.Is(err, ErrUnavailable) {
				return fiber.NewError(fiber.StatusServiceUnavailable, unavailableMessage)
			}
			svc.log.Error("login failed", zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "login failed")
		}
		setSessionCookie(c, cookieName, tokens)
		return c.JSON(fiber.Map{"user": user, "tokens": tokens})
	})

	r.Post("/refresh", func(c *fiber.Ctx) error {
		var req RefreshRequest
		if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
			return fiber.NewError(fiber.StatusBadRequest, "refresh_token required")
		}

		userID, err := svc.ValidateRefreshToken(c.Context(), req.RefreshToken)
		if errors.Is(err, ErrUnavailable) {
			return fiber.NewError(fiber.StatusServiceUnavailable, unavailableMessage)
		}
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		resp, err := svc.GenerateTokens(c.Context(), userID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		setSessionCookie(c, cookieName, resp)
		return c.JSON(resp)
	})

	r.Post("/logout", func(c *fiber.Ctx) error {
		var req RefreshRequest
		_ = c.BodyParser(&req)
		if req.RefreshToken != "" {
			if err := svc.Logout(c.Context(), req.RefreshToken); err != nil && !errors.Is(err, ErrUnavailable) {
				svc.log.Warn("revoking refresh token failed", zap.Error(err))
			}
		}
		c.ClearCookie(cookieName)
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/setClaims", func(c *fiber.Ctx) error {
		var body struct {
			UID string `json:"uid"`
		}
		if err := c.BodyParser(&body); err != nil || body.UID == "" {
			svc.log.Error("setting claims failed", zap.String("reason", "uid missing"))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		}
		role, err := svc.SetClaims(c.Context(), body.UID)
		if errors.Is(err, ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		if errors.Is(err, ErrUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": unavailableMessage})
		}
		if err != nil {
			svc.log.Error("setting claims failed", zap.String("uid", body.UID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		}
		return c.JSON(fiber.Map{"message": "Claims set successfully", "role": role})
	})

	r.Post("/verify", func(c *fiber.Ctx) error {
		var body struct {
			Token string `json:"token"`
		}
		_ = c.BodyParser(&body)
		if body.Token == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"valid": false, "error": "No token provided"})
		}

		sess, err := svc.Authorize(body.Token, CapDashboard)
		if errors.Is(err, ErrForbiddenRole) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"valid": false, "error": "Unauthorized role"})
		}
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"valid": false, "error": err.Error()})
		}
		return c.JSON(fiber.Map{"valid": true, "uid": sess.UID, "role": sess.Role})
	})
}

func setSessionCookie(c *fiber.Ctx, name string, tokens TokenResponse) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    tokens.AccessToken,
		Path:     "/",
		MaxAge:   int(tokens.ExpiresIn),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

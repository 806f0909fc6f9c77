package storage

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/julianparra1/villavix/internal/auth"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/uploads", authMiddleware, func(c *fiber.Ctx) error {
		sess, _ := auth.SessionFrom(c)

		fh, err := c.FormFile("image")
		if err != nil || fh.Size == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No file provided"})
		}
		if svc.maxBytes > 0 && fh.Size > svc.maxBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "File too large"})
		}

		f, err := fh.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No file provided"})
		}
		defer f.Close()

		url, err := svc.UploadImage(c.Context(), Upload{
			UserID:      sess.UID,
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
		switch {
		case errors.Is(err, ErrFileTooLarge):
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "File too large"})
		case err != nil:
			svc.log.Error("image upload failed", zap.String("uid", sess.UID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to upload image"})
		}
		return c.JSON(fiber.Map{"imageUrl": url})
	})
}

package posts

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/julianparra1/villavix/internal/auth"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/posts", func(c *fiber.Ctx) error {
		page, err := svc.ListPosts(c.Context(), ListOptions{
			Limit:  c.QueryInt("limit", 0),
			Cursor: c.Query("cursor"),
			Query:  c.Query("q"),
		})
		if err != nil {
			return postError(err)
		}
		return c.JSON(page)
	})

	r.Post("/posts", authMiddleware, func(c *fiber.Ctx) error {
		sess, _ := auth.SessionFrom(c)
		if !sess.Role.Can(auth.CapPost) {
			return fiber.NewError(fiber.StatusForbidden, "role cannot post")
		}
		var in CreatePostInput
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		post, err := svc.CreatePost(c.Context(), sess, in)
		if err != nil {
			return postError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(post)
	})

	r.Get("/posts/mine", authMiddleware, func(c *fiber.Ctx) error {
		sess, _ := auth.SessionFrom(c)
		posts, err := svc.ListPostsByAuthor(c.Context(), sess.UID)
		if err != nil {
			return postError(err)
		}
		return c.JSON(posts)
	})

	r.Get("/users/:id/posts", func(c *fiber.Ctx) error {
		posts, err := svc.ListPostsByAuthor(c.Context(), c.Params("id"))
		if err != nil {
			return postError(err)
		}
		return c.JSON(posts)
	})

	r.Get("/posts/:id/pin", authMiddleware, func(c *fiber.Ctx) error {
		sess, _ := auth.SessionFrom(c)
		pinned, err := svc.IsPinned(c.Context(), sess.UID, c.Params("id"))
		if err != nil {
			return postError(err)
		}
		return c.JSON(fiber.Map{"pinned": pinned})
	})

	r.Post("/posts/:id/pin", authMiddleware, func(c *fiber.Ctx) error {
		sess, _ := auth.SessionFrom(c)
		if !sess.Role.Can(auth.CapPin) {
			return fiber.NewError(fiber.StatusForbidden, "role cannot pin")
		}
		if err := svc.Pin(c.Context(), sess.UID, c.Params("id")); err != nil {
			return postError(err)
		}
		return c.JSON(fiber.Map{"pinned": true})
	})

	r.Delete("/posts/:id/pin", authMiddleware, func(c *fiber.Ctx) error {
		sess, _ := auth.SessionFrom(c)
		if err := svc.Unpin(c.Context(), sess.UID, c.Params("id")); err != nil {
			return postError(err)
		}
		return c.JSON(fiber.Map{"pinned": false})
	})

	r.Get("/pins", authMiddleware, func(c *fiber.Ctx) error {
		sess, _ := auth.SessionFrom(c)
		posts, err := svc.ListPinned(c.Context(), sess.UID)
		if err != nil {
			return postError(err)
		}
		return c.JSON(posts)
	})
}

// RegisterDashboard mounts the officials' home page. The route gate has already
// placed the session in locals.
func RegisterDashboard(r fiber.Router, svc *Service) {
	r.Get("/home", func(c *fiber.Ctx) error {
		sess, ok := auth.SessionFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "no authenticated session")
		}
		posts, err := svc.ListPostsByAuthor(c.Context(), sess.UID)
		if err != nil {
			return postError(err)
		}
		return c.JSON(fiber.Map{"session": sess, "posts": posts})
	})
}

func postError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrCursorNotFound), errors.Is(err, ErrInvalidPost), errors.Is(err, ErrTooManyTags):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

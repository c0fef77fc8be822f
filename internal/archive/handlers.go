package archive

import (
	"errors"

	"backend-stoperica/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/upload", authMiddleware, func(c *fiber.Ctx) error {
		var req session.Session
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		userID, _ := c.Locals("user_id").(string)
		rec, err := svc.Upsert(c.Context(), userID, req)
		if err != nil {
			return toFiberError(err)
		}
		log.Info().Str("session_id", rec.Session.ID).Str("username", rec.Session.Username).Msg("session archived")
		return c.JSON(rec)
	})

	r.Delete("/delete-session/:id", authMiddleware, func(c *fiber.Ctx) error {
		username := c.Get("Username")
		if username == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Username header required")
		}
		if err := svc.Delete(c.Context(), c.Params("id"), username); err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{"status": "deleted"})
	})

	r.Get("/sessions", func(c *fiber.Ctx) error {
		username := c.Query("username")
		if username == "" {
			return fiber.NewError(fiber.StatusBadRequest, "username required")
		}
		sessions, err := svc.ListByUsername(c.Context(), username)
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(sessions)
	})

	r.Get("/sessions/:id", func(c *fiber.Ctx) error {
		sess, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(sess)
	})
}

func toFiberError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

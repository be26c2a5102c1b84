package tracking

import (
	"errors"

	"github.com/AyushMusale/TripSense/internal/auth"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the route endpoints under the trips group.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler, limiter *RateLimiter) {
	r.Post("/:id/track", authMiddleware, limiter.Middleware(), func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var req RoutePoint
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		point, err := svc.AddPoint(c.UserContext(), userID, c.Params("id"), req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(point)
	})

	r.Get("/:id/route", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		points, err := svc.Points(c.UserContext(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"trip_id": c.Params("id"), "points": points})
	})

	r.Get("/:id/route/summary", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		summary, err := svc.Summary(c.UserContext(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(summary)
	})
}

func httpError(err error) error {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTripNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrTripNotActive):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

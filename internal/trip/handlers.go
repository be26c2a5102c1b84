package trip

import (
	"errors"
	"time"

	"github.com/AyushMusale/TripSense/internal/auth"
	"github.com/AyushMusale/TripSense/internal/shared/travel"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var req CreateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		trip, err := svc.Create(c.UserContext(), userID, req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(trip)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		filter, err := parseListFilter(c)
		if err != nil {
			return err
		}
		page, err := svc.List(c.UserContext(), userID, filter)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(page)
	})

	r.Get("/stats/summary", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		stats, err := svc.Stats(c.UserContext(), userID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(stats)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		trip, err := svc.Get(c.UserContext(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(trip)
	})

	r.Put("/:id", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var req UpdateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		trip, err := svc.Update(c.UserContext(), userID, c.Params("id"), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(trip)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		if err := svc.Delete(c.UserContext(), userID, c.Params("id")); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/:id/start", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		trip, err := svc.Start(c.UserContext(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(trip)
	})

	r.Post("/:id/end", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var req EndRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		trip, err := svc.End(c.UserContext(), userID, c.Params("id"), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(trip)
	})

	r.Post("/:id/anonymize", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		trip, err := svc.Anonymize(c.UserContext(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(trip)
	})

	r.Post("/:id/issues", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var req IssueRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		issue, err := svc.ReportIssue(c.UserContext(), userID, c.Params("id"), req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(issue)
	})

	r.Put("/:id/issues/:issueID/status", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body IssueStatusRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := svc.UpdateIssueStatus(c.UserContext(), userID, c.Params("id"), c.Params("issueID"), body.Status); err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"id": c.Params("issueID"), "status": body.Status})
	})
}

func parseListFilter(c *fiber.Ctx) (ListFilter, error) {
	f := ListFilter{Page: c.QueryInt("page", 1), Limit: c.QueryInt("limit", defaultPageSize)}
	if f.Page < 1 {
		return ListFilter{}, fiber.NewError(fiber.StatusBadRequest, "page must be a positive integer")
	}
	if f.Limit < 1 || f.Limit > maxPageSize {
		return ListFilter{}, fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 100")
	}
	if v := c.Query("mode"); v != "" {
		mode, err := travel.ParseMode(v)
		if err != nil {
			return ListFilter{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		f.Mode = mode
	}
	if v := c.Query("purpose"); v != "" {
		purpose, err := travel.ParsePurpose(v)
		if err != nil {
			return ListFilter{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		f.Purpose = purpose
	}
	var err error
	if f.From, err = ParseDateParam(c.Query("start_date")); err != nil {
		return ListFilter{}, fiber.NewError(fiber.StatusBadRequest, "start_date must be an ISO 8601 date")
	}
	if f.To, err = ParseDateParam(c.Query("end_date")); err != nil {
		return ListFilter{}, fiber.NewError(fiber.StatusBadRequest, "end_date must be an ISO 8601 date")
	}
	return f, nil
}

// ParseDateParam accepts RFC 3339 timestamps or plain dates. Empty input yields nil.
func ParseDateParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("invalid date")
}

func httpError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return fiber.NewError(fiber.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrIssueNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrTripActive), errors.Is(err, ErrTripNotActive), errors.Is(err, ErrTripCompleted):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrIssueTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

package analytics

import (
	"errors"
	"strconv"
	"time"

	"github.com/AyushMusale/TripSense/internal/auth"
	"github.com/AyushMusale/TripSense/internal/trip"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/generate", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var req GenerateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		snap, err := svc.Generate(c.UserContext(), userID, req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	})

	r.Get("/latest", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		period, err := periodParam(c, "")
		if err != nil {
			return err
		}
		snap, err := svc.Latest(c.UserContext(), userID, period)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(snap)
	})

	r.Get("/dashboard", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		period, err := periodParam(c, Monthly)
		if err != nil {
			return err
		}
		q := DashboardQuery{Period: period}
		if q.From, q.To, err = dateRange(c); err != nil {
			return err
		}
		d, err := svc.Dashboard(c.UserContext(), userID, q)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(d)
	})

	r.Get("/insights", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		report, err := svc.Insights(c.UserContext(), userID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(report)
	})

	r.Get("/carbon", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		from, to, err := dateRange(c)
		if err != nil {
			return err
		}
		var distance *float64
		if v := c.Query("distance"); v != "" {
			d, err := strconv.ParseFloat(v, 64)
			if err != nil || d < 0 {
				return fiber.NewError(fiber.StatusBadRequest, "distance must be a non-negative number of meters")
			}
			distance = &d
		}
		report, err := svc.CarbonInsights(c.UserContext(), userID, from, to, distance)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(report)
	})

	r.Get("/heatmap", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		from, to, err := dateRange(c)
		if err != nil {
			return err
		}
		cells, err := svc.Heatmap(c.UserContext(), userID, from, to, c.QueryInt("precision", defaultHeatPrecision))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"cells": cells})
	})

	r.Get("/heatmap/shared", authMiddleware, auth.RequireRole(auth.RoleAnalyst, auth.RoleAdmin), func(c *fiber.Ctx) error {
		from, to, err := dateRange(c)
		if err != nil {
			return err
		}
		cells, err := svc.SharedHeatmap(c.UserContext(), from, to, c.QueryInt("precision", defaultHeatPrecision))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"cells": cells})
	})
}

func periodParam(c *fiber.Ctx, fallback Period) (Period, error) {
	v := c.Query("period")
	if v == "" {
		return fallback, nil
	}
	p, err := ParsePeriod(v)
	if err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return p, nil
}

func dateRange(c *fiber.Ctx) (from, to *time.Time, err error) {
	if from, err = trip.ParseDateParam(c.Query("start_date")); err != nil {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "start_date must be an ISO 8601 date")
	}
	if to, err = trip.ParseDateParam(c.Query("end_date")); err != nil {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "end_date must be an ISO 8601 date")
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "end_date must not be before start_date")
	}
	return from, to, nil
}

func httpError(err error) error {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, ErrBadPrecision):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoData), errors.Is(err, ErrNoSnapshot):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

package auth

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/register", func(c *fiber.Ctx) error {
		var req SignupRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		session, err := svc.Signup(c.UserContext(), req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	r.Post("/login", func(c *fiber.Ctx) error {
		var creds Credentials
		if err := c.BodyParser(&creds); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		session, err := svc.Login(c.UserContext(), creds)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(session)
	})

	r.Post("/refresh", func(c *fiber.Ctx) error {
		var body refreshBody
		if err := c.BodyParser(&body); err != nil || body.RefreshToken == "" {
			return fiber.NewError(fiber.StatusBadRequest, "refresh_token required")
		}
		tokens, err := svc.Refresh(c.UserContext(), body.RefreshToken)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(tokens)
	})

	r.Get("/jwt/verify", func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		claims, err := svc.VerifyAccess(token)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"user_id": claims.UserID, "role": claims.Role})
	})

	r.Get("/me", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := UserID(c)
		if err != nil {
			return err
		}
		acct, err := svc.Me(c.UserContext(), userID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(acct)
	})
}

func httpError(err error) error {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAccountExists):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrAccountDisabled):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrAccountNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

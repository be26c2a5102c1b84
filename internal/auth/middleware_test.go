package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestJWTMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/private", JWTMiddleware("secret"), func(c *fiber.Ctx) error {
		userID, err := UserID(c)
		if err != nil {
			return err
		}
		return c.SendString(userID)
	})

	svc := NewService("secret", nil)
	stale := NewService("secret", nil)
	stale.now = func() time.Time { return time.Now().Add(-time.Hour) }

	access, _ := svc.sign(testUser, RoleTraveler, AccessToken)
	refresh, _ := svc.sign(testUser, RoleTraveler, RefreshToken)
	expired, _ := stale.sign(testUser, RoleTraveler, AccessToken)
	foreign, _ := NewService("other", nil).sign(testUser, RoleTraveler, AccessToken)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"valid", "Bearer " + access, http.StatusOK},
		{"refresh token", "Bearer " + refresh, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"foreign signature", "Bearer " + foreign, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, resp.StatusCode)
		}
	}
}

func TestQueryToken(t *testing.T) {
	app := fiber.New()
	app.Get("/live", QueryToken("token"), JWTMiddleware("secret"), func(c *fiber.Ctx) error {
		userID, err := UserID(c)
		if err != nil {
			return err
		}
		return c.SendString(userID)
	})

	access, _ := NewService("secret", nil).sign(testUser, RoleTraveler, AccessToken)
	refresh, _ := NewService("secret", nil).sign(testUser, RoleTraveler, RefreshToken)

	cases := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"query token", "/live?token=" + access, "", http.StatusOK},
		{"refresh in query", "/live?token=" + refresh, "", http.StatusUnauthorized},
		{"header wins", "/live?token=" + access, "Bearer " + refresh, http.StatusUnauthorized},
		{"none", "/live", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.target, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, resp.StatusCode)
		}
	}
}

func TestRequireRole(t *testing.T) {
	svc := NewService("secret", nil)
	app := fiber.New()
	app.Get("/planners", JWTMiddleware("secret"), RequireRole(RoleAnalyst, RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	for role, want := range map[Role]int{
		RoleTraveler: http.StatusForbidden,
		RoleAnalyst:  http.StatusNoContent,
		RoleAdmin:    http.StatusNoContent,
	} {
		token, _ := svc.sign(testUser, role, AccessToken)
		req := httptest.NewRequest(http.MethodGet, "/planners", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: %v", role, err)
		}
		if resp.StatusCode != want {
			t.Fatalf("%s: expected %d, got %d", role, want, resp.StatusCode)
		}
	}
}

func TestUserIDWithoutMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		_, err := UserID(c)
		return err
	})
	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", resp.StatusCode)
	}
}

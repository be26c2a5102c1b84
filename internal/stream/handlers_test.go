package stream

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	owner    = "user-a"
	stranger = "user-b"
)

// owners maps trip ids to the user that owns them.
type owners map[string]string

func (o owners) CanWatch(_ context.Context, userID, tripID string) (bool, error) {
	return o[tripID] == userID, nil
}

type brokenAccess struct{}

func (brokenAccess) CanWatch(context.Context, string, string) (bool, error) {
	return false, errAccess
}

var trips = owners{"trip-1": owner, "trip-2": owner, "trip-3": owner}

func as(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	}
}

// listen serves app on a random port and returns its websocket base URL.
func listen(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
		_ = ln.Close()
	})
	return "ws://" + ln.Addr().String()
}

func TestStreamHandlersUpgradeRequired(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil, zerolog.Nop()), as(owner), trips)

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/trip-1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("expected 426 for non-websocket request, got %d", resp.StatusCode)
	}
}

func TestStreamHandlersWebsocketBroadcast(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub, as(owner), trips)
	base := listen(t, app)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/trip-1", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.Subscribers("trip-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(context.Background(), "trip-1", []byte("hello"))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != "hello" {
		t.Fatalf("unexpected message")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("client")); err != nil {
		t.Fatalf("write error: %v", err)
	}

	conn.Close()
	hub.Broadcast(context.Background(), "trip-1", []byte("bye"))
	_ = conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
}

func TestStreamHandlersRefuseOtherUsersTrips(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub, as(stranger), trips)
	base := listen(t, app)

	conn, resp, err := websocket.DefaultDialer.Dial(base+"/stream/ws/trip-1", nil)
	if err == nil {
		conn.Close()
		t.Fatalf("user B was upgraded on user A's trip")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake, got %v", resp)
	}
	if n := hub.Subscribers("trip-1"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestStreamHandlersAccessError(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil, zerolog.Nop()), as(owner), brokenAccess{})

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/trip-1", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v %v", resp.StatusCode, err)
	}
}

func TestStreamHandlersWebsocketWriteError(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub, as(owner), trips)
	base := listen(t, app)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/trip-2", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	conn.Close()

	hub.Broadcast(context.Background(), "trip-2", []byte("ping"))
	time.Sleep(20 * time.Millisecond)
}

func TestStreamHandlersWebsocketCloseMessage(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub, as(owner), trips)
	base := listen(t, app)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/trip-3", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()

	hub.Broadcast(context.Background(), "trip-3", []byte("ping"))
	time.Sleep(20 * time.Millisecond)
}

func TestStreamHandlersRequireAuth(t *testing.T) {
	app := fiber.New()
	deny := func(c *fiber.Ctx) error { return fiber.ErrUnauthorized }
	RegisterRoutes(app.Group("/stream"), NewHub(nil, zerolog.Nop()), deny, trips)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/stream/ws/trip-1", nil))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %v %v", resp.StatusCode, err)
	}
}

func TestStreamHandlersAcceptQueryToken(t *testing.T) {
	app := fiber.New()
	bearer := func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) != "Bearer abc" {
			return fiber.ErrUnauthorized
		}
		c.Locals("user_id", owner)
		return c.Next()
	}
	RegisterRoutes(app.Group("/stream"), NewHub(nil, zerolog.Nop()), bearer, trips)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/stream/ws/trip-1?token=abc", nil))
	if err != nil || resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("query token should pass auth, got %v %v", resp.StatusCode, err)
	}
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/stream/ws/trip-1?token=nope", nil))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %v %v", resp.StatusCode, err)
	}
}

var errAccess = errors.New("access lookup failed")

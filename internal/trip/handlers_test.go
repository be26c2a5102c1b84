package trip

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func newTestApp(svc *Service) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/trips"), svc, func(c *fiber.Ctx) error {
		c.Locals("user_id", testUser)
		return c.Next()
	})
	return app
}

func TestTripHandlersCreateAndGet(t *testing.T) {
	mock := newMock(t)
	app := newTestApp(newTestService(mock))

	mock.ExpectQuery(`INSERT INTO trips`).
		WithArgs(insertArgs()...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(t0, t0))

	body, _ := json.Marshal(map[string]any{
		"start_location": map[string]any{"latitude": cityHall.Lat, "longitude": cityHall.Lng, "timestamp": t0.Format(time.RFC3339)},
		"start_time":     t0.Format(time.RFC3339),
		"mode":           "bus",
		"purpose":        "work",
		"distance_m":     4000,
	})
	req := httptest.NewRequest(http.MethodPost, "/trips/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %v %v", resp.StatusCode, err)
	}
	var created map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created["status"] != "planned" || created["distance_km"] != 4.0 || created["is_active"] != false {
		t.Fatalf("unexpected body %v", created)
	}

	mock.ExpectQuery(`SELECT id, trip_code`).
		WithArgs(testTrip, testUser).
		WillReturnRows(tripRows(storedTrip(StatusPlanned)))
	mock.ExpectQuery(`FROM trip_issues`).
		WithArgs(testTrip).
		WillReturnRows(pgxmock.NewRows([]string{"id", "trip_id", "type", "description", "location", "photos", "severity", "status", "reported_at", "updated_at"}))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/trips/"+testTrip, nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get status: %v %v", resp.StatusCode, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTripHandlersValidation(t *testing.T) {
	app := newTestApp(newTestService(newMock(t)))

	body, _ := json.Marshal(map[string]any{
		"start_location": map[string]float64{"latitude": 95, "longitude": 0},
		"start_time":     t0.Format(time.RFC3339),
		"mode":           "car",
		"purpose":        "work",
	})
	req := httptest.NewRequest(http.MethodPost, "/trips/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v %v", resp.StatusCode, err)
	}

	for _, q := range []string{"?limit=500", "?page=0", "?mode=rocket", "?start_date=yesterday"} {
		resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/trips/"+q, nil))
		if err != nil || resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %v %v", q, resp.StatusCode, err)
		}
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/trips/unknown", nil))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v %v", resp.StatusCode, err)
	}
}

func TestTripHandlersListAndStats(t *testing.T) {
	mock := newMock(t)
	app := newTestApp(newTestService(mock))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM trips WHERE user_id = \$1 AND purpose = \$2`).
		WithArgs(testUser, "work").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`LIMIT \$3 OFFSET \$4`).
		WithArgs(testUser, "work", 5, 0).
		WillReturnRows(tripRows(storedTrip(StatusPlanned)))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/trips/?purpose=work&limit=5", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: %v %v", resp.StatusCode, err)
	}
	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Trips) != 1 || page.Pagination.TotalPages != 1 {
		t.Fatalf("unexpected page %+v", page.Pagination)
	}

	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE`).
		WithArgs(testUser).
		WillReturnRows(pgxmock.NewRows([]string{"count", "distance", "duration", "carbon", "avg_distance", "avg_duration"}).
			AddRow(0, 0.0, 0, 0.0, 0.0, 0.0))
	mock.ExpectQuery(`GROUP BY mode`).
		WithArgs(testUser).
		WillReturnRows(pgxmock.NewRows([]string{"mode", "count", "distance", "duration"}))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/trips/stats/summary", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status: %v %v", resp.StatusCode, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTripHandlersLifecycleErrors(t *testing.T) {
	mock := newMock(t)
	app := newTestApp(newTestService(mock))

	mock.ExpectQuery(`SELECT id, trip_code`).
		WithArgs(testTrip, testUser).
		WillReturnRows(tripRows(storedTrip(StatusPlanned)))

	body, _ := json.Marshal(map[string]any{"end_location": map[string]any{"latitude": timesSquare.Lat, "longitude": timesSquare.Lng, "timestamp": t0.Format(time.RFC3339)}})
	req := httptest.NewRequest(http.MethodPost, "/trips/"+testTrip+"/end", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for ending a planned trip, got %v %v", resp.StatusCode, err)
	}

	mock.ExpectExec(`DELETE FROM trips`).
		WithArgs(testTrip, testUser).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/trips/"+testTrip, nil))
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status: %v %v", resp.StatusCode, err)
	}

	const issueID = "9a1f3e2d-1c4b-4d5e-8f70-6a5b4c3d2e1f"
	mock.ExpectQuery(`SELECT i.status`).
		WithArgs(issueID, testTrip, testUser).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("closed"))
	body, _ = json.Marshal(map[string]string{"status": "resolved"})
	req = httptest.NewRequest(http.MethodPut, "/trips/"+testTrip+"/issues/"+issueID+"/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %v %v", resp.StatusCode, err)
	}

	body, _ = json.Marshal(map[string]string{"status": "archived"})
	req = httptest.NewRequest(http.MethodPut, "/trips/"+testTrip+"/issues/"+issueID+"/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %v %v", resp.StatusCode, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestParseDateParam(t *testing.T) {
	if v, err := ParseDateParam(""); err != nil || v != nil {
		t.Fatalf("empty input should yield nil")
	}
	v, err := ParseDateParam("2024-03-04")
	if err != nil || !v.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v %v", v, err)
	}
	if _, err := ParseDateParam("2024-03-04T10:00:00Z"); err != nil {
		t.Fatalf("rfc3339: %v", err)
	}
	if _, err := ParseDateParam("03/04/2024"); err == nil {
		t.Fatalf("expected error")
	}
}

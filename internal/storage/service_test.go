package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pashagolub/pgxmock/v3"
)

const testUser = "5b0e5b3c-8f4e-4a43-9a57-2f6f3f0d8a11"

var t0 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func newTestService(mock pgxmock.PgxPoolIface) *Service {
	svc := NewService(mock, "https://files.example/")
	svc.now = func() time.Time { return t0 }
	return svc
}

func TestUpload(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectQuery(`INSERT INTO storage_objects`).
		WithArgs(pgxmock.AnyArg(), testUser, pgxmock.AnyArg(), "issue_photo").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(t0))

	obj, err := svc.Upload(context.Background(), testUser, UploadRequest{FileName: "../Crowded Platform.JPG", Kind: "issue_photo"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	want := "https://files.example/issue_photo/" + testUser + "/" + obj.ID + ".jpg"
	if obj.URL != want {
		t.Fatalf("expected %s, got %s", want, obj.URL)
	}
	if !obj.ExpiresAt.Equal(t0.Add(uploadTTL)) || !obj.CreatedAt.Equal(t0) {
		t.Fatalf("unexpected times %+v", obj)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUploadValidation(t *testing.T) {
	svc := newTestService(newMock(t))

	for _, req := range []UploadRequest{{Kind: "video"}, {}, {Kind: "avatar", FileName: strings.Repeat("a", 201)}} {
		_, err := svc.Upload(context.Background(), testUser, req)
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			t.Fatalf("%+v: expected validation error, got %v", req, err)
		}
	}
}

func TestUploadError(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	mock.ExpectQuery(`INSERT INTO storage_objects`).
		WithArgs(pgxmock.AnyArg(), testUser, pgxmock.AnyArg(), "avatar").
		WillReturnError(errSave)

	_, err := svc.Upload(context.Background(), testUser, UploadRequest{Kind: "avatar"})
	if !errors.Is(err, errSave) {
		t.Fatalf("expected wrapped save error, got %v", err)
	}
}

func TestExtension(t *testing.T) {
	cases := map[string]string{
		"photo.png":       ".png",
		"archive.tar.GZ":  ".gz",
		"noext":           "",
		"weird.p$g":       "",
		"long.extension1": "",
		"":                "",
	}
	for in, want := range cases {
		if got := extension(in); got != want {
			t.Fatalf("extension(%q) = %q, want %q", in, got, want)
		}
	}
}

var errSave = errors.New("save error")

// Package storage hands out object URLs for user uploads such as issue photos
// and avatars. Bytes go straight to the object store; only the URL is recorded here.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/AyushMusale/TripSense/internal/db"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const uploadTTL = 15 * time.Minute

var validate = validator.New()

type UploadRequest struct {
	FileName string `json:"file_name" validate:"max=200"`
	Kind     string `json:"kind" validate:"required,oneof=issue_photo avatar"`
}

type Object struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Kind      string    `json:"kind"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	db      db.Querier
	baseURL string
	now     func() time.Time
}

func NewService(db db.Querier, baseURL string) *Service {
	return &Service{
		db:      db,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Upload reserves an object key for userID and records its public URL.
func (s *Service) Upload(ctx context.Context, userID string, req UploadRequest) (Object, error) {
	if err := validate.Struct(req); err != nil {
		return Object{}, err
	}

	obj := Object{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		ExpiresAt: s.now().Add(uploadTTL),
	}
	u, err := url.JoinPath(s.baseURL, req.Kind, userID, obj.ID+extension(req.FileName))
	if err != nil {
		return Object{}, fmt.Errorf("build object url: %w", err)
	}
	obj.URL = u

	row := s.db.QueryRow(ctx, `
		INSERT INTO storage_objects (id, user_id, url, kind)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, obj.ID, userID, obj.URL, obj.Kind)
	if err := row.Scan(&obj.CreatedAt); err != nil {
		return Object{}, fmt.Errorf("save object: %w", err)
	}
	return obj, nil
}

// extension keeps a short alphanumeric suffix of the client file name, lower-cased.
func extension(name string) string {
	ext := strings.ToLower(path.Ext(path.Base(name)))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// Package auth owns TripSense accounts and the JWT pair issued to them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AyushMusale/TripSense/internal/db"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 30 * 24 * time.Hour

	uniqueViolation = "23505"
	accountColumns  = `id, email, username, password_hash, full_name, avatar_url, role, is_active, last_login_at, created_at, updated_at`
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("email or username already registered")
	ErrAccountDisabled    = errors.New("account is deactivated")
	ErrAccountNotFound    = errors.New("account not found")
	ErrTokenInvalid       = errors.New("token invalid")
)

var (
	signFn         = (*Service).sign
	hashPasswordFn = bcrypt.GenerateFromPassword
	parseClaimsFn  = jwt.ParseWithClaims
	validate       = validator.New()
)

type Service struct {
	secret []byte
	db     db.Querier
	now    func() time.Time
}

func NewService(secret string, db db.Querier) *Service {
	return &Service{
		secret: []byte(secret),
		db:     db,
		now:    time.Now,
	}
}

// Signup creates a traveler account and opens its first session.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (Session, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return Session{}, fmt.Errorf("invalid signup: %w", err)
	}
	hash, err := hashPasswordFn([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	acct := Account{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		AvatarURL:    req.AvatarURL,
		Role:         RoleTraveler,
		Active:       true,
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, username, password_hash, full_name, avatar_url, role)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at
	`, acct.ID, acct.Email, acct.Username, acct.PasswordHash, acct.FullName, acct.AvatarURL, acct.Role).
		Scan(&acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Session{}, ErrAccountExists
		}
		return Session{}, fmt.Errorf("insert account: %w", err)
	}
	return s.openSession(ctx, acct)
}

// Login checks credentials, stamps last_login_at and opens a session.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, creds Credentials) (Session, error) {
	creds.Email = normalizeEmail(creds.Email)
	if err := validate.Struct(creds); err != nil {
		return Session{}, fmt.Errorf("invalid login: %w", err)
	}
	acct, err := s.account(ctx, "email", creds.Email)
	if errors.Is(err, ErrAccountNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(creds.Password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if !acct.Active {
		return Session{}, ErrAccountDisabled
	}

	now := s.now()
	if _, err := s.db.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, acct.ID, now); err != nil {
		return Session{}, fmt.Errorf("stamp last login: %w", err)
	}
	acct.LastLoginAt = &now
	return s.openSession(ctx, acct)
}

// Me returns the account behind an access token.
func (s *Service) Me(ctx context.Context, userID string) (Account, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return Account{}, ErrAccountNotFound
	}
	return s.account(ctx, "id", userID)
}

// IssueTokens signs an access/refresh pair and records the refresh token.
func (s *Service) IssueTokens(ctx context.Context, userID string, role Role) (TokenPair, error) {
	access, err := signFn(s, userID, role, AccessToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := signFn(s, userID, role, RefreshToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), userID, refresh, s.now().Add(refreshTokenTTL))
	if err != nil {
		return TokenPair{}, fmt.Errorf("save refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair issued with the account's current role.
func (s *Service) Refresh(ctx context.Context, token string) (TokenPair, error) {
	claims, err := s.verify(token, RefreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	var (
		owner     string
		expiresAt time.Time
		role      Role
		active    bool
	)
	err = s.db.QueryRow(ctx, `
		SELECT t.user_id, t.expires_at, u.role, u.is_active
		FROM refresh_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token = $1 AND t.revoked_at IS NULL
	`, token).Scan(&owner, &expiresAt, &role, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return TokenPair{}, fmt.Errorf("%w: unknown or revoked", ErrTokenInvalid)
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("lookup refresh token: %w", err)
	}
	if owner != claims.UserID || s.now().After(expiresAt) {
		return TokenPair{}, ErrTokenInvalid
	}
	if !active {
		return TokenPair{}, ErrAccountDisabled
	}

	if _, err := s.db.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2 WHERE token = $1`, token, s.now()); err != nil {
		return TokenPair{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	return s.IssueTokens(ctx, owner, role)
}

// VerifyAccess returns the claims of a valid access token.
func (s *Service) VerifyAccess(token string) (*Claims, error) {
	return s.verify(token, AccessToken)
}

func (s *Service) openSession(ctx context.Context, acct Account) (Session, error) {
	tokens, err := s.IssueTokens(ctx, acct.ID, acct.Role)
	if err != nil {
		return Session{}, err
	}
	return Session{Account: acct, Tokens: tokens}, nil
}

func (s *Service) account(ctx context.Context, column, value string) (Account, error) {
	var a Account
	err := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE `+column+` = $1`, value).
		Scan(&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.FullName, &a.AvatarURL,
			&a.Role, &a.Active, &a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("load account: %w", err)
	}
	return a, nil
}

func (s *Service) sign(userID string, role Role, kind TokenKind) (string, error) {
	ttl := accessTokenTTL
	if kind == RefreshToken {
		ttl = refreshTokenTTL
	}
	now := s.now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) verify(token string, kind TokenKind) (*Claims, error) {
	return parseClaims(s.secret, token, kind)
}

// parseClaims is shared with the middleware, which only holds the secret.
func parseClaims(secret []byte, token string, kind TokenKind) (*Claims, error) {
	parsed, err := parseClaimsFn(token, &Claims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: %s token presented where %s expected", ErrTokenInvalid, claims.Kind, kind)
	}
	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

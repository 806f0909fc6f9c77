package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/julianparra1/villavix/internal/db"
	"github.com/julianparra1/villavix/internal/logging"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
	claimsTimeout   = 5 * time.Second
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingToken       = errors.New("no token provided")
	ErrForbiddenRole      = errors.New("unauthorized role")
	ErrMissingFields      = errors.New("email and password required")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUnavailable        = errors.New("user store unavailable")
)

const uniqueViolation = "23505"

type Service struct {
	secret []byte
	db     db.Querier
	log    *zap.Logger
	async  func(func())
}

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// identity is what a token is minted from.
type identity struct {
	ID    string
	Email string
	Name   string
	Avatar string
	Role   string
}

func NewService(secret string, db db.Querier, logger *zap.Logger) *Service {
	return &Service{
		secret: []byte(secret),
		db:     db,
		log:    logging.OrNop(logger),
		async:  func(f func()) { go f() },
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, TokenResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return User{}, TokenResponse{}, ErrMissingFields
	}
	if s.db == nil {
		return User{}, TokenResponse{}, ErrUnavailable
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, TokenResponse{}, err
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		Lastname:     req.Lastname,
		Gender:       req.Gender,
		Birthdate:    req.Birthdate,
		Age:          req.Age,
		AvatarURL:    strings.TrimSpace(req.AvatarURL),
		Role:         RoleCitizen,
		PasswordHash: string(hash),
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, name, lastname, gender, birthdate, age, avatar_url, role)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, user.ID, user.Email, user.PasswordHash, user.Name, user.Lastname, user.Gender, user.Birthdate, user.Age, user.AvatarURL, string(user.Role))
	if err := row.Scan(&user.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, TokenResponse{}, ErrEmailTaken
		}
		return User{}, TokenResponse{}, err
	}

	// The role claim is stamped after the first token is issued, as the identity provider does.
	tokens, err := s.issueTokens(ctx, identity{ID: user.ID, Email: user.Email, Name: user.Name, Avatar: user.AvatarURL})
	if err != nil {
		return User{}, TokenResponse{}, err
	}
	s.stampClaimsAsync(user.ID)
	return user, tokens, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (User, TokenResponse, error) {
	if s.db == nil {
		return User{}, TokenResponse{}, ErrUnavailable
	}
	row := s.db.QueryRow(ctx, `
		SELECT id, email, password_hash, name, lastname, gender, birthdate, age, avatar_url, COALESCE(role, ''), COALESCE(claims_role, ''), created_at
		FROM users WHERE email = $1
	`, strings.TrimSpace(req.Email))

	var user User
	var role, claimsRole string
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.Lastname, &user.Gender, &user.Birthdate, &user.Age, &user.AvatarURL, &role, &claimsRole, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, TokenResponse{}, ErrInvalidCredentials
		}
		return User{}, TokenResponse{}, err
	}
	user.Role = NormalizeRole(role)

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return User{}, TokenResponse{}, ErrInvalidCredentials
	}

	tokens, err := s.issueTokens(ctx, identity{ID: user.ID, Email: user.Email, Name: user.Name, Avatar: user.AvatarURL, Role: claimsRole})
	if err != nil {
		return User{}, TokenResponse{}, err
	}
	s.stampClaimsAsync(user.ID)
	return user, tokens, nil
}

// GenerateTokens mints a fresh pair from the stored identity, picking up any newly stamped role.
func (s *Service) GenerateTokens(ctx context.Context, userID string) (TokenResponse, error) {
	id, err := s.lookupIdentity(ctx, userID)
	if err != nil {
		return TokenResponse{}, err
	}
	return s.issueTokens(ctx, id)
}

// SetClaims copies the user's profile role into the identity record's custom claim.
func (s *Service) SetClaims(ctx context.Context, userID string) (Role, error) {
	if s.db == nil {
		return "", ErrUnavailable
	}
	var stored string
	err := s.db.QueryRow(ctx, `SELECT COALESCE(role, '') FROM users WHERE id = $1`, userID).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", err
	}

	role := NormalizeRole(stored)
	if _, err := s.db.Exec(ctx, `UPDATE users SET claims_role = $2 WHERE id = $1`, userID, string(role)); err != nil {
		return "", err
	}
	return role, nil
}

// Verify decodes a session token. An absent or unknown role claim becomes the citizen role.
func (s *Service) Verify(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrMissingToken
	}
	claims, err := s.parseToken(token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		UID:    claims.UserID,
		Email:  claims.Email,
		Name:   claims.Name,
		Role:   NormalizeRole(claims.Role),
		Avatar: claims.Picture,
	}, nil
}

// Authorize verifies the token and requires the capability.
func (s *Service) Authorize(token string, c Capability) (Session, error) {
	sess, err := s.Verify(token)
	if err != nil {
		return Session{}, err
	}
	if !sess.Role.Can(c) {
		return sess, ErrForbiddenRole
	}
	return sess, nil
}

func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}

	if s.db == nil {
		return "", ErrUnavailable
	}
	userID, expiresAt, err := s.lookupRefreshToken(ctx, token)
	if err != nil || userID != claims.UserID || time.Now().After(expiresAt) {
		return "", errors.New("refresh token invalid")
	}
	return claims.UserID, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if s.db == nil {
		return ErrUnavailable
	}
	_, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE token = $1 AND revoked_at IS NULL
	`, refreshToken)
	return err
}

func (s *Service) stampClaimsAsync(userID string) {
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), claimsTimeout)
		defer cancel()
		if _, err := s.SetClaims(ctx, userID); err != nil {
			s.log.Warn("setting role claim failed", zap.String("uid", userID), zap.Error(err))
		}
	})
}

func (s *Service) issueTokens(ctx context.Context, id identity) (TokenResponse, error) {
	access, err := s.signToken(id, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := s.signToken(id, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if err := s.saveRefreshToken(ctx, refresh, id.ID, refreshTokenTTL); err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) signToken(id identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:  id.ID,
		Email:   id.Email,
		Name:    id.Name,
		Role:    id.Role,
		Picture: id.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func (s *Service) lookupIdentity(ctx context.Context, userID string) (identity, error) {
	if s.db == nil {
		return identity{}, ErrUnavailable
	}
	id := identity{ID: userID}
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(email, ''), name, avatar_url, COALESCE(claims_role, '')
		FROM users WHERE id = $1
	`, userID).Scan(&id.Email, &id.Name, &id.Avatar, &id.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return identity{}, ErrUserNotFound
	}
	if err != nil {
		return identity{}, err
	}
	return id, nil
}

func (s *Service) saveRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), userID, token, time.Now().Add(ttl))
	return err
}

func (s *Service) lookupRefreshToken(ctx context.Context, token string) (string, time.Time, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, expires_at
		FROM refresh_tokens
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	var userID string
	var expiresAt time.Time
	if err := row.Scan(&userID, &expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return userID, expiresAt, nil
}

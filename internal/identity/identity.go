package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/repo/postgres"
	"github.com/diagnosis/campus-tickets/pkg/auth"
	"github.com/diagnosis/campus-tickets/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidSession covers malformed, expired and revoked credentials alike.
var ErrInvalidSession = errors.New("invalid session")

type Users interface {
	CreateWithProfile(ctx context.Context, u *postgres.User, p *domain.Profile) error
	FindByEmail(ctx context.Context, email string) (*postgres.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

type Revocations interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Store owns credentials and session issuance. Sessions are signed tokens
// whose jti can be revoked before expiry.
type Store struct {
	users   Users
	revoked Revocations
	secret  string
	ttl     time.Duration
	now     func() time.Time
}

func NewStore(users Users, revoked Revocations, secret string, ttl time.Duration) *Store {
	return &Store{users: users, revoked: revoked, secret: secret, ttl: ttl, now: time.Now}
}

func (s *Store) TTL() time.Duration { return s.ttl }

// VerifySession checks signature, expiry and revocation and returns the
// identity id.
func (s *Store) VerifySession(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidSession
	}
	claims, err := auth.Parse(token, s.secret)
	if err != nil {
		return "", ErrInvalidSession
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.SessionID())
	if err != nil {
		return "", fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return "", ErrInvalidSession
	}
	return claims.UserID(), nil
}

func (s *Store) CreateSession(ctx context.Context, userID string) (*Session, error) {
	token, claims, err := auth.NewSessionToken(userID, s.secret, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}
	logger.DebugContext(ctx, "Session created", "user_id", userID, "session_id", claims.SessionID())
	return &Session{Token: token, UserID: userID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// RevokeSession invalidates token for the rest of its lifetime. Invalid or
// expired tokens need no revocation.
func (s *Store) RevokeSession(ctx context.Context, token string) error {
	claims, err := auth.Parse(token, s.secret)
	if err != nil {
		return nil
	}
	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if err := s.revoked.Revoke(ctx, claims.SessionID(), remaining); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// Authenticate checks an email/password pair. Legacy bcrypt hashes are
// accepted once and replaced with argon2id.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*postgres.User, error) {
	invalid := domain.E(domain.KindNotAuthenticated, "invalid email or password", nil)

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, invalid
	}

	if isBcrypt(u.PasswordHash) {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			return nil, invalid
		}
		s.rehash(ctx, u, password)
		return u, nil
	}

	ok, err := argon2id.ComparePasswordAndHash(password, u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, invalid
	}
	return u, nil
}

func (s *Store) rehash(ctx context.Context, u *postgres.User, password string) {
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		logger.WarnContext(ctx, "Failed to rehash legacy password", "error", err, "user_id", u.ID)
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		logger.WarnContext(ctx, "Failed to store rehashed password", "error", err, "user_id", u.ID)
		return
	}
	u.PasswordHash = hash
}

// Register creates the identity and its profile. req must already be
// normalized and validated.
func (s *Store) Register(ctx context.Context, req *domain.SignupRequest) (*domain.Profile, error) {
	hash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	id := uuid.NewString()
	u := &postgres.User{ID: id, Email: req.Email, PasswordHash: hash}
	p := &domain.Profile{
		UserID:    id,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Degree:    req.Degree,
		Role:      req.Role,
		Phone:     req.Phone,
	}

	if err := s.users.CreateWithProfile(ctx, u, p); err != nil {
		if errors.Is(err, postgres.ErrEmailExists) {
			return nil, domain.E(domain.KindConflict, "email already registered", err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return p, nil
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

package service

import (
	"context"
	"fmt"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/identity"
	"github.com/diagnosis/campus-tickets/internal/repo/postgres"
	"github.com/diagnosis/campus-tickets/pkg/events"
	"github.com/diagnosis/campus-tickets/pkg/logger"
)

const (
	SignupEmailSubject = "Welcome to Campus Tickets"
	SignupEmailBody    = "Your account is ready. Your registration QR code is attached."
)

// Identity is the slice of identity.Store the account flows use.
type Identity interface {
	Register(ctx context.Context, req *domain.SignupRequest) (*domain.Profile, error)
	Authenticate(ctx context.Context, email, password string) (*postgres.User, error)
	CreateSession(ctx context.Context, userID string) (*identity.Session, error)
	RevokeSession(ctx context.Context, token string) error
}

type AccountService interface {
	// Signup registers the user and emails a QR of the signup details.
	// Issuing or mailing that QR never fails the signup.
	Signup(ctx context.Context, req *domain.SignupRequest) (*domain.Profile, error)
	// Login verifies credentials and opens a session. An identity without a
	// profile cannot log in.
	Login(ctx context.Context, req *domain.LoginRequest) (*identity.Session, *domain.Profile, error)
	Logout(ctx context.Context, token string) error
	Profile(ctx context.Context, userID string) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, userID string, patch *domain.ProfilePatch) (*domain.Profile, error)
	SetRole(ctx context.Context, userID string, role domain.Role) (*domain.Profile, error)
}

type accountService struct {
	identity   Identity
	profiles   postgres.ProfilesRepo
	issuer     Issuer
	dispatcher Dispatcher
	eventBus   events.Publisher
}

func NewAccountService(
	id Identity,
	profiles postgres.ProfilesRepo,
	issuer Issuer,
	dispatcher Dispatcher,
	eventBus events.Publisher,
) AccountService {
	return &accountService{
		identity:   id,
		profiles:   profiles,
		issuer:     issuer,
		dispatcher: dispatcher,
		eventBus:   eventBus,
	}
}

func (s *accountService) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.Profile, error) {
	req.Normalize()
	// Staff accounts are promoted by staff, never self-assigned.
	req.Role = domain.RoleStudent
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.identity.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithUserID(ctx, p.UserID)
	logger.InfoContext(ctx, "User registered", "email", p.Email, "role", p.Role)

	s.sendSignupQR(ctx, p)

	publish(ctx, s.eventBus, events.UserSignedUp, events.UserSignedUpEvent{
		UserID: p.UserID,
		Email:  p.Email,
		Role:   string(p.Role),
	})
	return p, nil
}

func (s *accountService) sendSignupQR(ctx context.Context, p *domain.Profile) {
	payload := domain.SignupPayload{
		UserID:    p.UserID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Degree:    p.Degree,
		Role:      p.Role,
	}
	url, err := s.issuer.Issue(ctx, payload, domain.SignupArtifactName(p.UserID))
	if err != nil {
		logger.WarnContext(ctx, "Signup QR not issued", "error", err)
		return
	}
	if err := s.dispatcher.Dispatch(ctx, p.Email, SignupEmailSubject, SignupEmailBody, url); err != nil {
		logger.WarnContext(ctx, "Signup QR not sent", "error", err)
	}
}

func (s *accountService) Login(ctx context.Context, req *domain.LoginRequest) (*identity.Session, *domain.Profile, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	u, err := s.identity.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.profiles.Get(ctx, u.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if p == nil {
		logger.WarnContext(ctx, "Login for identity without profile", "user_id", u.ID)
		return nil, nil, domain.E(domain.KindNotAuthenticated, "invalid email or password", nil)
	}

	sess, err := s.identity.CreateSession(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}
	return sess, p, nil
}

func (s *accountService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.identity.RevokeSession(ctx, token)
}

func (s *accountService) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if p == nil {
		return nil, domain.NotFound("profile not found")
	}
	return p, nil
}

func (s *accountService) UpdateProfile(ctx context.Context, userID string, patch *domain.ProfilePatch) (*domain.Profile, error) {
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := patch.Apply(p); err != nil {
		return nil, err
	}
	if err := s.profiles.UpdateDetails(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *accountService) SetRole(ctx context.Context, userID string, role domain.Role) (*domain.Profile, error) {
	if !domain.IsValidRole(role) {
		return nil, domain.Validation("invalid role")
	}
	if err := s.profiles.UpdateRole(ctx, userID, role); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Role changed", "target_user_id", userID, "role", role)
	return s.Profile(ctx, userID)
}

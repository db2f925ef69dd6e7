package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rahulmehra/kiranakart/pkg/config"
	"github.com/rahulmehra/kiranakart/pkg/db"
	"github.com/rahulmehra/kiranakart/pkg/db/models"
	"github.com/rahulmehra/kiranakart/pkg/enums"
	pkgerrors "github.com/rahulmehra/kiranakart/pkg/errors"
	"github.com/rahulmehra/kiranakart/pkg/logger"
	"github.com/rahulmehra/kiranakart/pkg/security"
	"github.com/rahulmehra/kiranakart/pkg/session"
	"github.com/rahulmehra/kiranakart/pkg/validate"
)

// userStore is the slice of the users repository auth needs.
type userStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Service handles account creation and the login/logout lifecycle.
type Service interface {
	Signup(ctx context.Context, input SignupInput) (*AuthResult, error)
	Login(ctx context.Context, input LoginInput) (*AuthResult, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	Authenticate(ctx context.Context, accessToken string) (*session.AccessTokenClaims, error)
}

type service struct {
	repo        userStore
	sessions    *session.Manager
	sessionCfg  config.SessionConfig
	passwordCfg config.PasswordConfig
	authCfg     config.AuthConfig
	logger      *logger.Logger
	now         func() time.Time
}

// SignupInput registers a new account. Role defaults to retailer.
type SignupInput struct {
	Name     string `validate:"required,max=120"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8,max=72"`
	Role     enums.UserRole
}

// LoginInput authenticates by email and password.
type LoginInput struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

// AuthResult is the signed token pair handed back after signup or login.
type AuthResult struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	SessionToken string       `json:"session_token"`
}

// NewService wires auth dependencies.
func NewService(
	repo userStore,
	sessions *session.Manager,
	sessionCfg config.SessionConfig,
	passwordCfg config.PasswordConfig,
	authCfg config.AuthConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users repository required")
	}
	if sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "session manager required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		repo:        repo,
		sessions:    sessions,
		sessionCfg:  sessionCfg,
		passwordCfg: passwordCfg,
		authCfg:     authCfg,
		logger:      logg,
		now:         time.Now,
	}, nil
}

func (s *service) Signup(ctx context.Context, input SignupInput) (*AuthResult, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = enums.UserRoleRetailer
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid user role")
	}

	hash, err := security.HashPassword(input.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user := &models.User{
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: hash,
		Role:         role,
		Prefs:        models.DefaultNotificationPrefs(),
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "an account with this email already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}

	result, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info(s.logger.WithUserID(ctx, user.ID.String()), "account created")
	return result, nil
}

func (s *service) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	user, err := s.lookup(ctx, input.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidCredentials()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if !user.IsActive {
		return nil, invalidCredentials()
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, invalidCredentials()
	}

	result, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info(s.logger.WithUserID(ctx, user.ID.String()), "login")
	return result, nil
}

// lookup resolves the login identifier. The reserved owner login is matched
// verbatim; every other email is matched lowercased.
func (s *service) lookup(ctx context.Context, email string) (*models.User, error) {
	trimmed := strings.TrimSpace(email)
	if s.authCfg.ReservedOwnerLogin != "" && trimmed == s.authCfg.ReservedOwnerLogin {
		return s.repo.GetByEmail(ctx, trimmed)
	}
	return s.repo.GetByEmail(ctx, strings.ToLower(trimmed))
}

func (s *service) openSession(ctx context.Context, user *models.User) (*AuthResult, error) {
	sessionToken, err := s.sessions.Begin(ctx, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "begin session")
	}

	accessToken, err := session.MintAccessToken(s.sessionCfg, s.now(), session.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}

	return &AuthResult{User: user, AccessToken: accessToken, SessionToken: sessionToken}, nil
}

func (s *service) Logout(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if err := s.sessions.End(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "end session")
	}
	return nil
}

func (s *service) Authenticate(ctx context.Context, accessToken string) (*session.AccessTokenClaims, error) {
	claims, err := session.ParseAccessToken(s.sessionCfg, accessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}

	active, err := s.sessions.HasSession(ctx, claims.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check session")
	}
	if !active {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired")
	}
	return claims, nil
}

func invalidCredentials() error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
}

// Package auth implements registration and login for the in-repo identity.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	dto "github.com/afp-labs/mailgrant/internal/http/dto/auth"
	httperrors "github.com/afp-labs/mailgrant/internal/http/errors"
	jwtx "github.com/afp-labs/mailgrant/internal/jwt"
	"github.com/afp-labs/mailgrant/internal/observability/logger"
	"github.com/afp-labs/mailgrant/internal/security/password"
	"github.com/afp-labs/mailgrant/internal/store/core"
	"github.com/afp-labs/mailgrant/internal/util"
)

const minPasswordLen = 8

// Service handles user registration and login.
type Service struct {
	users  core.UserRepository
	issuer *jwtx.Issuer
}

func NewService(users core.UserRepository, issuer *jwtx.Issuer) *Service {
	return &Service{users: users, issuer: issuer}
}

// Register creates a user with an argon2id password hash.
func (s *Service) Register(ctx context.Context, req dto.RegisterRequest) (*dto.RegisterResponse, *httperrors.AppError) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, httperrors.ErrMissingFields.WithDetail("a valid email is required")
	}
	if len(req.Password) < minPasswordLen {
		return nil, httperrors.ErrBadRequest.WithDetail("password must be at least 8 characters")
	}

	hash, err := password.Hash(password.Default, req.Password)
	if err != nil {
		return nil, httperrors.ErrInternalServerError.WithCause(err)
	}

	u := &core.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return nil, httperrors.ErrConflict.WithDetail("email is already registered")
		}
		return nil, httperrors.ErrInternalServerError.WithCause(err)
	}

	logger.From(ctx).Info("user registered",
		logger.UserID(u.ID),
		logger.Email(util.MaskEmail(email)),
	)
	return &dto.RegisterResponse{ID: u.ID, Email: u.Email, Success: true}, nil
}

// Login verifies the password and issues a session token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, *httperrors.AppError) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, httperrors.ErrMissingFields.WithDetail("email and password are required")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, httperrors.ErrInvalidCredentials
		}
		return nil, httperrors.ErrInternalServerError.WithCause(err)
	}

	if !password.Verify(req.Password, u.PasswordHash) {
		return nil, httperrors.ErrInvalidCredentials
	}

	token, _, err := s.issuer.IssueAccess(u.ID, u.Email)
	if err != nil {
		return nil, httperrors.ErrInternalServerError.WithCause(err)
	}

	return &dto.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.issuer.AccessTTL().Seconds()),
	}, nil
}

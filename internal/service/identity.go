package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rongwang/tally-server/internal/apperr"
	"github.com/rongwang/tally-server/internal/models"
	"github.com/rongwang/tally-server/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// SignUp registers a password identity
func (s *DefaultService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error) {
	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		Email:    req.Email,
		Name:     req.Name,
		ImageURL: req.ImageURL,
		Password: string(hashedPassword),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("user with this email already exists")
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info("user signed up", "user", user.ID)

	return &models.AuthResponse{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	}, nil
}

// Login verifies a password and issues a session token
func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthenticated("invalid email or password")
		}
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, apperr.Unauthenticated("invalid email or password")
	}

	token, _, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Token:     token,
		ExpiresIn: int(s.tokens.TTL().Seconds()),
	}, nil
}

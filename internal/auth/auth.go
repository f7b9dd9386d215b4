package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"papertrade/internal/models"
)

// Store is the user persistence the auth service needs.
type Store interface {
	CreateUser(ctx context.Context, email, username, passwordHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ProvisionUser(ctx context.Context, user *models.User) error
}

// Service handles registration, login and token verification.
type Service struct {
	store  Store
	secret []byte
}

// NewService creates a new auth service signing tokens with secret.
func NewService(store Store, secret string) *Service {
	return &Service{store: store, secret: []byte(secret)}
}

// ValidatePassword enforces the password policy: at least 8 characters with
// an uppercase letter, a lowercase letter and a digit.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return models.Validationf("password must be at least 8 characters long")
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	if !upper {
		return models.Validationf("password must contain at least one uppercase letter")
	}
	if !lower {
		return models.Validationf("password must contain at least one lowercase letter")
	}
	if !digit {
		return models.Validationf("password must contain at least one number")
	}
	return nil
}

// Register creates a new user with a hashed password and provisions the
// paired real/sandbox wallets and stats row.
func (s *Service) Register(ctx context.Context, email, username, password string) (*models.User, error) {
	if email == "" || username == "" {
		return nil, models.Validationf("email and username are required")
	}
	if len(username) < 3 || len(username) > 100 {
		return nil, models.Validationf("username must be between 3 and 100 characters")
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, models.Validationf("email or username already exists")
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return nil, models.Validationf("email or username already exists")
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, email, username, string(hashed))
	if err != nil {
		// A unique-constraint loss against a concurrent registration comes
		// back as a validation error; surface it as-is.
		if models.IsValidation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if err := s.store.ProvisionUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and generates a JWT
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"email":    user.Email,
		"username": user.Username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, user, nil
}

// GetUserFromToken extracts the user ID from a signed JWT.
func (s *Service) GetUserFromToken(tokenString string) (int, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return 0, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userID, ok := claims["user_id"].(float64)
		if !ok {
			return 0, fmt.Errorf("token missing user_id claim")
		}
		return int(userID), nil
	}
	return 0, fmt.Errorf("invalid token")
}

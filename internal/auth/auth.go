// Package auth registers users, verifies their passwords and issues signed access tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	minNameLength     = 2
	maxPasswordBytes  = 72
)

// Errors returned by the auth service.
var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidUserInput   = errors.New("invalid user input")
	ErrInvalidConfig      = errors.New("invalid auth config")
)

// User is a registered account.
type User struct {
	ID             int64
	Name           string
	Email          string
	PasswordHash   string
	CreatedUnixUTC int64
}

// UserStore persists users. CreateUser assigns the id and returns ErrUserExists
// when the email is taken; FindUserByEmail returns ErrUserNotFound.
type UserStore interface {
	CreateUser(ctx context.Context, user User) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
}

// Config holds token signing and hashing settings.
type Config struct {
	SigningKey []byte
	Issuer     string
	TokenTTL   time.Duration
	BcryptCost int
}

// Service implements registration, login and token verification.
type Service struct {
	store  UserStore
	config Config
	nowFn  func() time.Time
}

// NewService validates the configuration and wires a Service.
func NewService(store UserStore, config Config, now func() time.Time) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: user store is nil", ErrInvalidConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock is nil", ErrInvalidConfig)
	}
	if len(config.SigningKey) == 0 {
		return nil, fmt.Errorf("%w: signing key is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(config.Issuer) == "" {
		return nil, fmt.Errorf("%w: issuer is required", ErrInvalidConfig)
	}
	if config.TokenTTL <= 0 {
		return nil, fmt.Errorf("%w: token ttl must be positive", ErrInvalidConfig)
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.BcryptCost < bcrypt.MinCost || config.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: bcrypt cost %d out of range", ErrInvalidConfig, config.BcryptCost)
	}
	return &Service{store: store, config: config, nowFn: now}, nil
}

// Register creates a user with a bcrypt password hash.
func (service *Service) Register(ctx context.Context, name string, email string, password string) (User, error) {
	normalizedName := strings.TrimSpace(name)
	if len([]rune(normalizedName)) < minNameLength {
		return User{}, fmt.Errorf("%w: name must contain at least %d characters", ErrInvalidUserInput, minNameLength)
	}
	normalizedEmail, err := normalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordBytes {
		return User{}, fmt.Errorf("%w: password must contain %d to %d bytes", ErrInvalidUserInput, minPasswordLength, maxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), service.config.BcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	return service.store.CreateUser(ctx, User{
		Name:           normalizedName,
		Email:          normalizedEmail,
		PasswordHash:   string(hash),
		CreatedUnixUTC: service.nowFn().UTC().Unix(),
	})
}

// Login verifies credentials and returns a signed token for the user.
func (service *Service) Login(ctx context.Context, email string, password string) (string, User, error) {
	normalizedEmail, err := normalizeEmail(email)
	if err != nil {
		return "", User{}, err
	}
	user, err := service.store.FindUserByEmail(ctx, normalizedEmail)
	if err != nil {
		return "", User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", User{}, ErrInvalidCredentials
	}
	token, err := service.IssueToken(user.ID)
	if err != nil {
		return "", User{}, err
	}
	return token, user, nil
}

// IssueToken signs an HS256 token whose subject is the user id.
func (service *Service) IssueToken(userID int64) (string, error) {
	issuedAt := service.nowFn().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    service.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(service.config.TokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(service.config.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token and returns the user id carried in its subject.
func (service *Service) ParseToken(raw string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return service.config.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(service.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(service.nowFn),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: subject %q is not a user id", ErrInvalidToken, claims.Subject)
	}
	return userID, nil
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	address, err := mail.ParseAddress(trimmed)
	if err != nil || address.Address != trimmed {
		return "", fmt.Errorf("%w: invalid email", ErrInvalidUserInput)
	}
	return trimmed, nil
}

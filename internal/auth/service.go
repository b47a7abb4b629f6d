// Package auth provides driver identity: credential hashing, JWT issuance
// and verification, and the request middleware.
package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetops/dispatch/internal/domain"
)

// Identity is the verified caller extracted from a bearer token
type Identity struct {
	DriverID int64
	Admin    bool
}

// DriverStore supplies driver records for login and registration
type DriverStore interface {
	Create(d *domain.Driver) (int64, error)
	GetByID(id int64) (*domain.Driver, error)
	GetByEmail(email string) (*domain.Driver, error)
}

// Service issues and verifies HS256 tokens
type Service struct {
	drivers    DriverStore
	secret     []byte
	expireDays int
	log        zerolog.Logger
}

// NewService wires the identity service
func NewService(drivers DriverStore, secret string, expireDays int, log zerolog.Logger) *Service {
	return &Service{
		drivers:    drivers,
		secret:     []byte(secret),
		expireDays: expireDays,
		log:        log.With().Str("service", "auth").Logger(),
	}
}

// RegisterInput holds the fields a new driver signs up with
type RegisterInput struct {
	Email             string
	Password          string
	Name              string
	Phone             string
	VehicleType       string
	VehicleCapacityKg float64
}

// Register creates a driver with a bcrypt-hashed password and returns a token
func (s *Service) Register(in RegisterInput) (*domain.Driver, string, error) {
	if in.Email == "" || in.Password == "" || in.Name == "" {
		return nil, "", fmt.Errorf("email, password and name are required: %w", domain.ErrValidation)
	}
	if len(in.Password) < 8 {
		return nil, "", fmt.Errorf("password must be at least 8 characters: %w", domain.ErrValidation)
	}
	if existing, err := s.drivers.GetByEmail(in.Email); err == nil && existing != nil {
		return nil, "", fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	driver := &domain.Driver{
		Email:             in.Email,
		PasswordHash:      string(hash),
		Name:              in.Name,
		Phone:             in.Phone,
		VehicleType:       in.VehicleType,
		VehicleCapacityKg: in.VehicleCapacityKg,
		IsActive:          true,
	}
	id, err := s.drivers.Create(driver)
	if err != nil {
		return nil, "", err
	}
	driver.ID = id

	token, err := s.issue(driver)
	if err != nil {
		return nil, "", err
	}
	s.log.Info().Int64("driver_id", id).Msg("Driver registered")
	return driver, token, nil
}

// Login verifies credentials and returns a fresh token
func (s *Service) Login(email, password string) (*domain.Driver, string, error) {
	driver, err := s.drivers.GetByEmail(email)
	if err != nil {
		return nil, "", fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if !driver.IsActive {
		return nil, "", fmt.Errorf("account deactivated: %w", domain.ErrUnauthorized)
	}
	if bcrypt.CompareHashAndPassword([]byte(driver.PasswordHash), []byte(password)) != nil {
		return nil, "", fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}

	token, err := s.issue(driver)
	if err != nil {
		return nil, "", err
	}
	return driver, token, nil
}

// Verify parses and validates a bearer token, returning the caller identity
func (s *Service) Verify(token string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("invalid token: %w", domain.ErrUnauthorized)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("malformed token claims: %w", domain.ErrUnauthorized)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return Identity{}, fmt.Errorf("token missing subject: %w", domain.ErrUnauthorized)
	}
	driverID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("malformed token subject: %w", domain.ErrUnauthorized)
	}

	admin, _ := claims["adm"].(bool)
	return Identity{DriverID: driverID, Admin: admin}, nil
}

func (s *Service) issue(driver *domain.Driver) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(driver.ID, 10),
		"adm": driver.IsAdmin,
		"iat": now.Unix(),
		"exp": now.AddDate(0, 0, s.expireDays).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dan9191/cobranca-service/internal/config"
	"github.com/Dan9191/cobranca-service/internal/models"
	"github.com/Dan9191/cobranca-service/internal/repository"
	"github.com/Dan9191/cobranca-service/internal/schedule"
)

// Store is the persistence the service depends on
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateCharge(ctx context.Context, charge *models.Charge, installments []models.Installment) error
	GetCharge(ctx context.Context, id int64) (*models.Charge, error)
	ListCharges(ctx context.Context, ownerID int64) ([]models.Charge, error)
	ListChargeInstallments(ctx context.Context, chargeID int64) ([]models.Installment, error)
	ListInstallments(ctx context.Context, ownerID int64, paid *bool) ([]models.Installment, error)
	GetInstallment(ctx context.Context, id int64) (*models.Installment, error)
	AppendInstallment(ctx context.Context, inst *models.Installment) error
	MarkInstallmentPaid(ctx context.Context, id int64, paidOn time.Time) (bool, error)
	UpdateInstallment(ctx context.Context, inst *models.Installment) error
	DeleteInstallment(ctx context.Context, id int64) error
}

// Service handles business logic
type Service struct {
	repo    Store
	log     *logrus.Logger
	config  *config.Config
	policy  schedule.AmountPolicy
	spacing schedule.DueSpacing
	now     func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithClock replaces the wall clock used to decide "today"
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService initializes a new service
func NewService(repo Store, log *logrus.Logger, cfg *config.Config, opts ...Option) (*Service, error) {
	policy, err := schedule.ParseAmountPolicy(cfg.AmountPolicy)
	if err != nil {
		return nil, err
	}
	spacing, err := schedule.ParseDueSpacing(cfg.DueSpacing)
	if err != nil {
		return nil, err
	}

	s := &Service{
		repo:    repo,
		log:     log,
		config:  cfg,
		policy:  policy,
		spacing: spacing,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type userIDKey struct{}

// WithUserID returns a context carrying the authenticated user id
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the authenticated user id, if any
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok && id > 0
}

func currentUser(ctx context.Context) (int64, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return 0, ErrUnauthenticated
	}
	return id, nil
}

// today is the current calendar date in the configured time zone
func (s *Service) today() time.Time {
	return schedule.DateOnly(s.now().In(s.config.Location()))
}

// Register creates a new user with hashed password
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" {
		return nil, validationf("username is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, validationf("invalid email %q", email)
	}
	if len(password) < 8 {
		return nil, validationf("password must have at least 8 characters")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, storeErr(err)
	}

	s.log.WithField("user_id", user.ID).Infof("User registered: %s", user.Email)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.repo.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(user.ID, 10),
		IssuedAt:  jwt.NewNumericDate(s.now()),
		ExpiresAt: jwt.NewNumericDate(s.now().Add(s.config.TokenTTL)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.WithField("user_id", user.ID).Infof("User logged in: %s", user.Email)
	return tokenString, nil
}

// ParseToken validates a token issued by Login and returns its user id
func (s *Service) ParseToken(tokenString string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid subject", ErrUnauthenticated)
	}
	return id, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lms/internal/auth"
	apperrors "lms/internal/errors"
	"lms/internal/logging"
	"lms/internal/metrics"
	"lms/internal/model"
	"lms/internal/repository"
	"lms/internal/sanitize"
)

// bcrypt ignores input past 72 bytes.
const maxPasswordLen = 72

// AuthService handles authentication operations.
type AuthService interface {
	Signup(ctx context.Context, email, password, name, role string) (*model.User, error)
	Login(ctx context.Context, email, password string) (accessToken, refreshToken string, user *model.User, err error)
	Refresh(ctx context.Context, refreshToken string) (accessToken string, err error)
	ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error
}

// LoginThrottle configures failed login throttling. A nil Store or a
// non-positive MaxAttempts disables it.
type LoginThrottle struct {
	Store       auth.AttemptStoreInterface
	MaxAttempts int
}

type authService struct {
	users    repository.UserRepository
	tokens   *auth.TokenService
	throttle LoginThrottle
	metrics  *metrics.Metrics
}

// NewAuthService creates a new authentication service.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, throttle LoginThrottle, m *metrics.Metrics) AuthService {
	return &authService{
		users:    users,
		tokens:   tokens,
		throttle: throttle,
		metrics:  m,
	}
}

// audit writes one structured entry per authentication attempt.
func (s *authService) audit(ctx context.Context, op, email string, start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	level := slog.LevelInfo
	switch {
	case err == nil:
	case isClientError(err):
		outcome = metrics.OutcomeFailure
		level = slog.LevelWarn
	default:
		outcome = metrics.OutcomeError
		level = slog.LevelError
	}

	d := time.Since(start)
	s.metrics.ObserveAuth(op, outcome, d)

	attrs := []any{
		"operation", op,
		"outcome", outcome,
		"duration_ms", d.Milliseconds(),
	}
	if email != "" {
		attrs = append(attrs, "email", logging.RedactEmail(email))
	}
	if err != nil {
		attrs = append(attrs, "reason", err.Error())
	}
	logging.FromContext(ctx).Log(ctx, level, "auth attempt", attrs...)
}

func isClientError(err error) bool {
	for _, class := range []error{
		apperrors.ErrValidation,
		apperrors.ErrAuthentication,
		apperrors.ErrConflict,
		apperrors.ErrNotFound,
		apperrors.ErrRateLimited,
	} {
		if errors.Is(err, class) {
			return true
		}
	}
	return false
}

// Signup creates an account with a hashed password. Requested roles outside
// the signup allow-list become STUDENT.
func (s *authService) Signup(ctx context.Context, email, password, name, role string) (user *model.User, err error) {
	start := time.Now()
	email = auth.NormalizeEmail(email)
	defer func() { s.audit(ctx, "signup", email, start, err) }()

	name = sanitize.Text(name)
	if err := validateSignup(email, password, name); err != nil {
		return nil, err
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, apperrors.ErrEmailTaken
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check user existence: %w", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user = &model.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hashed,
		Role:         auth.SignupRole(role),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func validateSignup(email, password, name string) error {
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 || strings.Count(email, "@") != 1 {
		return apperrors.Validation("a valid email is required")
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	if name == "" {
		return apperrors.Validation("name is required")
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return apperrors.Validation("password is required")
	}
	if len(password) > maxPasswordLen {
		return apperrors.Validation(fmt.Sprintf("password must be at most %d bytes", maxPasswordLen))
	}
	return nil
}

// Login authenticates a user and returns access and refresh tokens. Unknown
// emails and wrong passwords produce the same error.
func (s *authService) Login(ctx context.Context, email, password string) (accessToken, refreshToken string, user *model.User, err error) {
	start := time.Now()
	email = auth.NormalizeEmail(email)
	defer func() { s.audit(ctx, "login", email, start, err) }()

	if s.throttled(ctx, email) {
		return "", "", nil, apperrors.ErrTooManyAttempts
	}

	user, err = s.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		auth.CompareDummy(password)
		s.recordFailure(ctx, email)
		return "", "", nil, apperrors.ErrInvalidCredentials
	case err != nil:
		return "", "", nil, fmt.Errorf("find user: %w", err)
	}

	if !auth.ComparePassword(user.PasswordHash, password) {
		s.recordFailure(ctx, email)
		return "", "", nil, apperrors.ErrInvalidCredentials
	}

	accessToken, err = s.tokens.CreateAccessToken(user.ID, user.Role)
	if err != nil {
		return "", "", nil, fmt.Errorf("generate access token: %w", err)
	}
	refreshToken, err = s.tokens.CreateRefreshToken(user.ID, user.Role)
	if err != nil {
		return "", "", nil, fmt.Errorf("generate refresh token: %w", err)
	}

	if s.throttle.Store != nil {
		s.throttle.Store.Reset(ctx, email)
	}
	return accessToken, refreshToken, user, nil
}

func (s *authService) throttled(ctx context.Context, email string) bool {
	if s.throttle.Store == nil || s.throttle.MaxAttempts <= 0 {
		return false
	}
	return s.throttle.Store.Failures(ctx, email) >= int64(s.throttle.MaxAttempts)
}

func (s *authService) recordFailure(ctx context.Context, email string) {
	if s.throttle.Store != nil {
		s.throttle.Store.RecordFailure(ctx, email)
	}
}

// Refresh issues a new access token from a refresh token. The role is taken
// from the refresh token, so a role change takes effect at the next login.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (accessToken string, err error) {
	start := time.Now()
	defer func() { s.audit(ctx, "refresh", "", start, err) }()

	v := s.tokens.VerifyRefreshToken(refreshToken)
	if !v.Valid {
		logging.FromContext(ctx).Debug("refresh token rejected", "reason", string(v.Reason))
		return "", v.Err()
	}

	accessToken, err = s.tokens.CreateAccessToken(v.Claims.UserID, v.Claims.Role)
	if err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return accessToken, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *authService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) (err error) {
	start := time.Now()
	var email string
	defer func() { s.audit(ctx, "change_password", email, start, err) }()

	if err := validatePassword(next); err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	email = user.Email

	if !auth.ComparePassword(user.PasswordHash, current) {
		return apperrors.ErrInvalidCredentials
	}

	hashed, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hashed); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

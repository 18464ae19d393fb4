package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"gorm.io/gorm"

	apperrors "lms/internal/errors"
	"lms/internal/logging"
	"lms/internal/metrics"
	"lms/internal/model"
	"lms/internal/repository"
)

var secretNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-/]{1,255}$`)

const maxEnvironmentLen = 64

// Cipher encrypts secret values at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) (string, error)
}

// SecretService stores configuration secrets encrypted per environment.
// Decrypted values are never cached or logged.
type SecretService interface {
	GetSecret(ctx context.Context, name, environment string) (string, error)
	SetSecret(ctx context.Context, name, value, environment string) error
	ListSecrets(ctx context.Context, environment string) ([]model.SecretMetadata, error)
	DeleteSecret(ctx context.Context, name, environment string) error
}

type secretService struct {
	repo       repository.SecretRepository
	cipher     Cipher
	defaultEnv string
	metrics    *metrics.Metrics
}

// NewSecretService builds a SecretService. An empty environment argument on
// any operation means defaultEnv.
func NewSecretService(repo repository.SecretRepository, cipher Cipher, defaultEnv string, m *metrics.Metrics) SecretService {
	return &secretService{repo: repo, cipher: cipher, defaultEnv: defaultEnv, metrics: m}
}

func (s *secretService) env(environment string) string {
	if environment == "" {
		return s.defaultEnv
	}
	return environment
}

func (s *secretService) GetSecret(ctx context.Context, name, environment string) (string, error) {
	env := s.env(environment)
	log := logging.FromContext(ctx).With("secret", name, "environment", env)

	record, err := s.repo.FindByNameAndEnvironment(ctx, name, env)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn("secret lookup missed")
		s.metrics.ObserveSecret("get", metrics.OutcomeFailure)
		return "", apperrors.ErrSecretNotFound
	}
	if err != nil {
		s.metrics.ObserveSecret("get", metrics.OutcomeError)
		return "", fmt.Errorf("find secret: %w", err)
	}

	value, err := s.cipher.Decrypt(record.Value)
	if err != nil {
		log.Error("secret decryption failed")
		s.metrics.ObserveSecret("get", metrics.OutcomeError)
		return "", err
	}

	log.Debug("secret read")
	s.metrics.ObserveSecret("get", metrics.OutcomeSuccess)
	return value, nil
}

func (s *secretService) SetSecret(ctx context.Context, name, value, environment string) error {
	env := s.env(environment)
	if err := validateSecretKey(name, env); err != nil {
		return err
	}
	if value == "" {
		return apperrors.Validation("secret value must not be empty")
	}

	encrypted, err := s.cipher.Encrypt(value)
	if err != nil {
		s.metrics.ObserveSecret("set", metrics.OutcomeError)
		return err
	}

	secret := &model.Secret{Name: name, Environment: env, Value: encrypted}
	if err := s.repo.Upsert(ctx, secret); err != nil {
		s.metrics.ObserveSecret("set", metrics.OutcomeError)
		return fmt.Errorf("upsert secret: %w", err)
	}

	logging.FromContext(ctx).Info("secret stored", "secret", name, "environment", env)
	s.metrics.ObserveSecret("set", metrics.OutcomeSuccess)
	return nil
}

func (s *secretService) ListSecrets(ctx context.Context, environment string) ([]model.SecretMetadata, error) {
	list, err := s.repo.ListMetadata(ctx, environment)
	if err != nil {
		s.metrics.ObserveSecret("list", metrics.OutcomeError)
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	s.metrics.ObserveSecret("list", metrics.OutcomeSuccess)
	if list == nil {
		list = []model.SecretMetadata{}
	}
	return list, nil
}

func (s *secretService) DeleteSecret(ctx context.Context, name, environment string) error {
	env := s.env(environment)
	if err := validateSecretKey(name, env); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, name, env); err != nil {
		s.metrics.ObserveSecret("delete", metrics.OutcomeError)
		return fmt.Errorf("delete secret: %w", err)
	}

	logging.FromContext(ctx).Info("secret deleted", "secret", name, "environment", env)
	s.metrics.ObserveSecret("delete", metrics.OutcomeSuccess)
	return nil
}

func validateSecretKey(name, environment string) error {
	if !secretNamePattern.MatchString(name) {
		return apperrors.Validation("secret name must be 1-255 characters of letters, digits, '_', '.', '-' or '/'")
	}
	if environment == "" || len(environment) > maxEnvironmentLen {
		return apperrors.Validation("environment must be 1-64 characters")
	}
	return nil
}

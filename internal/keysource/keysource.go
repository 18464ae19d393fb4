// Package keysource resolves the master key used to encrypt the secret
// store. The key is bootstrap material and never lives in the store itself.
package keysource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/zalando/go-keyring"

	"lms/internal/config"
	apperrors "lms/internal/errors"
)

const (
	// KeyringService is the OS keyring service name for the master key.
	KeyringService = "lms"
	// KeyringUser is the OS keyring account name for the master key.
	KeyringUser = "master-key"
)

// Source resolves the hex encoded master key.
type Source interface {
	MasterKey(ctx context.Context) (string, error)
	Name() string
}

// FromConfig selects the source named by cfg.MasterKeySource.
func FromConfig(ctx context.Context, cfg *config.Config) (Source, error) {
	switch cfg.MasterKeySource {
	case config.MasterKeySourceEnv:
		return EnvSource{Key: cfg.MasterKey}, nil
	case config.MasterKeySourceAWS:
		return NewAWSSource(ctx, cfg.AWSRegion, cfg.MasterKeyAWSSecretID)
	case config.MasterKeySourceKeyring:
		return KeyringSource{}, nil
	default:
		return nil, apperrors.Configuration(fmt.Sprintf("unknown master key source %q", cfg.MasterKeySource))
	}
}

// EnvSource returns a key already read from the environment.
type EnvSource struct {
	Key string
}

func (s EnvSource) Name() string { return "env" }

func (s EnvSource) MasterKey(context.Context) (string, error) {
	if s.Key == "" {
		return "", apperrors.Configuration("MASTER_KEY is not set")
	}
	return s.Key, nil
}

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSource reads the master key from AWS Secrets Manager.
type AWSSource struct {
	client   SecretsManagerAPI
	secretID string
}

// NewAWSSource builds a Secrets Manager client from the default credential
// chain for region.
func NewAWSSource(ctx context.Context, region, secretID string) (*AWSSource, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewAWSSourceWithClient(secretsmanager.NewFromConfig(cfg), secretID), nil
}

// NewAWSSourceWithClient uses an existing client.
func NewAWSSourceWithClient(client SecretsManagerAPI, secretID string) *AWSSource {
	return &AWSSource{client: client, secretID: secretID}
}

func (s *AWSSource) Name() string { return "aws" }

func (s *AWSSource) MasterKey(ctx context.Context) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return "", apperrors.Configuration(fmt.Sprintf("fetch master key %s from secrets manager: %v", s.secretID, err))
	}
	key := strings.TrimSpace(aws.ToString(out.SecretString))
	if key == "" {
		return "", apperrors.Configuration(fmt.Sprintf("secret %s has no string value", s.secretID))
	}
	return key, nil
}

// KeyringSource reads the master key from the OS keyring. Intended for
// developer machines.
type KeyringSource struct{}

func (KeyringSource) Name() string { return "keyring" }

func (KeyringSource) MasterKey(context.Context) (string, error) {
	key, err := keyring.Get(KeyringService, KeyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", apperrors.Configuration("no master key in OS keyring, run lmsctl keygen --keyring")
		}
		return "", apperrors.Configuration(fmt.Sprintf("read OS keyring: %v", err))
	}
	return key, nil
}

// StoreInKeyring saves key in the OS keyring for KeyringSource.
func StoreInKeyring(key string) error {
	if err := keyring.Set(KeyringService, KeyringUser, key); err != nil {
		return fmt.Errorf("write OS keyring: %w", err)
	}
	return nil
}

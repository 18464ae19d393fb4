package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lms/internal/errors"
)

func setRequired(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/lms")
	t.Setenv("MASTER_KEY", "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, MasterKeySourceEnv, cfg.MasterKeySource)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 5, cfg.MaxLoginAttempts)
	assert.Equal(t, "JWT_ACCESS_SECRET", cfg.AccessSecretName)
	assert.False(t, cfg.Production())
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("MAX_LOGIN_ATTEMPTS", "3")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Production())
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 3, cfg.MaxLoginAttempts)
	assert.Equal(t, 2, cfg.RedisDB)
}

func TestLoad_BadNumbers(t *testing.T) {
	setRequired(t)
	t.Setenv("REFRESH_TOKEN_TTL", "a week")

	_, err := Load()
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestLoad_FileIgnoresSensitiveFields(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "lms.yaml")
	content := "server_port: \"9090\"\nlogin_attempt_window: 30m\nmaster_key: deadbeef\nmysql_dsn: file-dsn\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 30*time.Minute, cfg.LoginAttemptWindow)
	assert.Equal(t, "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff", cfg.MasterKey)
	assert.Equal(t, "user:pass@tcp(localhost:3306)/lms", cfg.MySQLDSN)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestValidate_NamesMissingKeys(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("MASTER_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.Validate()
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
	assert.Contains(t, err.Error(), "APP_ENV")
	assert.Contains(t, err.Error(), "MYSQL_DSN")
	assert.Contains(t, err.Error(), "MASTER_KEY")
}

func TestValidate_MasterKeySources(t *testing.T) {
	cfg := Defaults()
	cfg.AppEnv = "staging"
	cfg.MySQLDSN = "dsn"

	cfg.MasterKeySource = MasterKeySourceAWS
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MASTER_KEY_AWS_SECRET_ID")

	cfg.MasterKeyAWSSecretID = "lms/master-key"
	assert.NoError(t, cfg.Validate())

	cfg.MasterKeySource = MasterKeySourceKeyring
	assert.NoError(t, cfg.Validate())

	cfg.MasterKeySource = "vault"
	assert.ErrorIs(t, cfg.Validate(), apperrors.ErrConfiguration)
}

func TestValidate_SecretNamesMustDiffer(t *testing.T) {
	cfg := Defaults()
	cfg.AppEnv = "staging"
	cfg.MySQLDSN = "dsn"
	cfg.MasterKey = "k"
	cfg.RefreshSecretName = cfg.AccessSecretName

	assert.ErrorIs(t, cfg.Validate(), apperrors.ErrConfiguration)
}

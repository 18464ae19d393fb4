package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "lms/internal/errors"
)

// Master key sources.
const (
	MasterKeySourceEnv     = "env"
	MasterKeySourceAWS     = "aws"
	MasterKeySourceKeyring = "keyring"
)

// Config holds application level configuration. Sensitive values are read
// from the environment only and never from the YAML file.
type Config struct {
	AppEnv     string `yaml:"-"`
	ServerPort string `yaml:"server_port"`
	MySQLDSN   string `yaml:"-"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	RedisPass  string `yaml:"-"`

	MasterKey            string `yaml:"-"`
	MasterKeySource      string `yaml:"master_key_source"`
	MasterKeyAWSSecretID string `yaml:"master_key_aws_secret_id"`
	AWSRegion            string `yaml:"aws_region"`

	CORSOrigin         string        `yaml:"cors_origin"`
	AccessSecretName   string        `yaml:"access_secret_name"`
	RefreshSecretName  string        `yaml:"refresh_secret_name"`
	AccessTokenTTL     time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `yaml:"refresh_token_ttl"`
	MaxLoginAttempts   int           `yaml:"max_login_attempts"`
	LoginAttemptWindow time.Duration `yaml:"login_attempt_window"`
	LogLevel           string        `yaml:"log_level"`
	SwaggerHost        string        `yaml:"swagger_host"`
}

// Defaults returns the configuration used before any file or environment
// overrides are applied.
func Defaults() *Config {
	return &Config{
		ServerPort:         "8080",
		RedisAddr:          "localhost:6379",
		MasterKeySource:    MasterKeySourceEnv,
		AWSRegion:          "us-east-1",
		CORSOrigin:         "http://localhost:3000",
		AccessSecretName:   "JWT_ACCESS_SECRET",
		RefreshSecretName:  "JWT_REFRESH_SECRET",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		MaxLoginAttempts:   5,
		LoginAttemptWindow: 15 * time.Minute,
		LogLevel:           "info",
	}
}

// Load builds Config from defaults, the optional CONFIG_FILE and the
// environment, in that order. It does not validate.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Configuration(fmt.Sprintf("read config file %s: %v", path, err))
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return apperrors.Configuration(fmt.Sprintf("parse config file %s: %v", path, err))
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.MySQLDSN = getEnv("MYSQL_DSN", c.MySQLDSN)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPass = getEnv("REDIS_PASSWORD", c.RedisPass)
	c.MasterKey = getEnv("MASTER_KEY", c.MasterKey)
	c.MasterKeySource = strings.ToLower(getEnv("MASTER_KEY_SOURCE", c.MasterKeySource))
	c.MasterKeyAWSSecretID = getEnv("MASTER_KEY_AWS_SECRET_ID", c.MasterKeyAWSSecretID)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.CORSOrigin = getEnv("CORS_ORIGIN", c.CORSOrigin)
	c.AccessSecretName = getEnv("ACCESS_SECRET_NAME", c.AccessSecretName)
	c.RefreshSecretName = getEnv("REFRESH_SECRET_NAME", c.RefreshSecretName)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.SwaggerHost = getEnv("SWAGGER_HOST", c.SwaggerHost)

	var err error
	if c.RedisDB, err = getEnvInt("REDIS_DB", c.RedisDB); err != nil {
		return err
	}
	if c.MaxLoginAttempts, err = getEnvInt("MAX_LOGIN_ATTEMPTS", c.MaxLoginAttempts); err != nil {
		return err
	}
	if c.AccessTokenTTL, err = getEnvDuration("ACCESS_TOKEN_TTL", c.AccessTokenTTL); err != nil {
		return err
	}
	if c.RefreshTokenTTL, err = getEnvDuration("REFRESH_TOKEN_TTL", c.RefreshTokenTTL); err != nil {
		return err
	}
	if c.LoginAttemptWindow, err = getEnvDuration("LOGIN_ATTEMPT_WINDOW", c.LoginAttemptWindow); err != nil {
		return err
	}
	return nil
}

// Validate reports every missing or invalid required setting in one
// configuration error.
func (c *Config) Validate() error {
	var missing []string
	if c.AppEnv == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	switch c.MasterKeySource {
	case MasterKeySourceEnv:
		if c.MasterKey == "" {
			missing = append(missing, "MASTER_KEY")
		}
	case MasterKeySourceAWS:
		if c.MasterKeyAWSSecretID == "" {
			missing = append(missing, "MASTER_KEY_AWS_SECRET_ID")
		}
	case MasterKeySourceKeyring:
	default:
		return apperrors.Configuration(fmt.Sprintf("unknown MASTER_KEY_SOURCE %q", c.MasterKeySource))
	}
	if len(missing) > 0 {
		return apperrors.Configuration("missing required configuration: " + strings.Join(missing, ", "))
	}

	if c.AccessSecretName == c.RefreshSecretName {
		return apperrors.Configuration("ACCESS_SECRET_NAME and REFRESH_SECRET_NAME must differ")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return apperrors.Configuration("token TTLs must be positive")
	}
	return nil
}

// Production reports whether the service runs in production.
func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.Configuration(fmt.Sprintf("%s must be an integer", key))
	}
	return parsed, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, apperrors.Configuration(fmt.Sprintf("%s must be a duration such as 15m", key))
	}
	return parsed, nil
}

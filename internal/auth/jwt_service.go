package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	apperrors "lms/internal/errors"
	"lms/internal/model"
	"lms/internal/secure"
)

const (
	// AccessTokenExpiry is the default lifetime of access tokens.
	AccessTokenExpiry = 15 * time.Minute
	// RefreshTokenExpiry is the default lifetime of refresh tokens.
	RefreshTokenExpiry = 7 * 24 * time.Hour

	// DefaultIssuer is set as iss on every token.
	DefaultIssuer = "lms"
)

// Non-zero trailing bits in a segment are rejected, so every character of a
// signature is significant.
func init() {
	jwt.DecodeStrict = true
}

// TokenKind distinguishes access from refresh tokens inside the payload.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Reason explains why a token failed verification.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonMalformed Reason = "malformed"
	ReasonExpired   Reason = "expired"
	ReasonSignature Reason = "signature"
	ReasonWrongKind Reason = "wrong_kind"
)

// Claims represents JWT claims. Role is the role at issuance.
type Claims struct {
	UserID uuid.UUID  `json:"userId"`
	Role   model.Role `json:"role"`
	Kind   TokenKind  `json:"kind"`
	jwt.RegisteredClaims
}

// Verification is the result of verifying a token.
type Verification struct {
	Valid  bool
	Claims *Claims
	Reason Reason
}

// Err returns nil for a valid token and ErrInvalidToken otherwise.
func (v Verification) Err() error {
	if v.Valid {
		return nil
	}
	return apperrors.ErrInvalidToken
}

// TokenConfig configures a TokenService. Zero TTLs use the defaults.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenService issues and verifies access and refresh tokens with HS256.
// Signing keys are kept in protected memory.
type TokenService struct {
	access     *secure.Key
	refresh    *secure.Key
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

// NewTokenService validates cfg and moves both secrets into protected
// memory. The secret slices in cfg are wiped.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, apperrors.Configuration("access and refresh signing secrets are required")
	}
	if subtle.ConstantTimeCompare(cfg.AccessSecret, cfg.RefreshSecret) == 1 {
		return nil, apperrors.Configuration("access and refresh signing secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = AccessTokenExpiry
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = RefreshTokenExpiry
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}

	access, err := secure.NewKey(cfg.AccessSecret)
	if err != nil {
		return nil, apperrors.Configuration("access signing secret is empty")
	}
	refresh, err := secure.NewKey(cfg.RefreshSecret)
	if err != nil {
		return nil, apperrors.Configuration("refresh signing secret is empty")
	}

	return &TokenService{
		access:     access,
		refresh:    refresh,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		now:        time.Now,
	}, nil
}

// SecretReader is the part of the secret store the token service needs.
type SecretReader interface {
	GetSecret(ctx context.Context, name, environment string) (string, error)
}

// SecretNames names the signing secrets in the secret store.
type SecretNames struct {
	Access  string
	Refresh string
}

// NewTokenServiceFromStore loads both signing secrets from the secret store
// of the current environment. A missing secret is a configuration error.
func NewTokenServiceFromStore(ctx context.Context, secrets SecretReader, names SecretNames, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	access, err := secrets.GetSecret(ctx, names.Access, "")
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", apperrors.ErrConfiguration, names.Access, err)
	}
	refresh, err := secrets.GetSecret(ctx, names.Refresh, "")
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", apperrors.ErrConfiguration, names.Refresh, err)
	}
	return NewTokenService(TokenConfig{
		AccessSecret:  []byte(access),
		RefreshSecret: []byte(refresh),
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
	})
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// CreateAccessToken signs a short-lived access token.
func (s *TokenService) CreateAccessToken(userID uuid.UUID, role model.Role) (string, error) {
	return s.sign(s.access, KindAccess, userID, role, s.accessTTL)
}

// CreateRefreshToken signs a long-lived refresh token with the refresh secret.
func (s *TokenService) CreateRefreshToken(userID uuid.UUID, role model.Role) (string, error) {
	return s.sign(s.refresh, KindRefresh, userID, role, s.refreshTTL)
}

// VerifyAccessToken checks signature, expiry and kind of an access token.
func (s *TokenService) VerifyAccessToken(raw string) Verification {
	return s.verify(s.access, KindAccess, raw)
}

// VerifyRefreshToken checks signature, expiry and kind of a refresh token.
func (s *TokenService) VerifyRefreshToken(raw string) Verification {
	return s.verify(s.refresh, KindRefresh, raw)
}

func (s *TokenService) sign(key *secure.Key, kind TokenKind, userID uuid.UUID, role model.Role, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	var signed string
	err := key.Use(func(secret []byte) error {
		var err error
		signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

func (s *TokenService) verify(key *secure.Key, kind TokenKind, raw string) Verification {
	if raw == "" {
		return Verification{Reason: ReasonMalformed}
	}

	var (
		token *jwt.Token
		perr  error
	)
	err := key.Use(func(secret []byte) error {
		token, perr = jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return secret, nil
		})
		return nil
	})
	if err != nil {
		return Verification{Reason: ReasonSignature}
	}
	if perr != nil {
		return Verification{Reason: reasonFor(perr)}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Verification{Reason: ReasonMalformed}
	}
	if claims.Kind != kind {
		return Verification{Reason: ReasonWrongKind}
	}
	if claims.UserID == uuid.Nil || !claims.Role.Valid() {
		return Verification{Reason: ReasonMalformed}
	}
	return Verification{Valid: true, Claims: claims}
}

func reasonFor(err error) Reason {
	var ve *jwt.ValidationError
	if !errors.As(err, &ve) {
		return ReasonMalformed
	}
	switch {
	case ve.Errors&jwt.ValidationErrorExpired != 0:
		return ReasonExpired
	case ve.Errors&(jwt.ValidationErrorSignatureInvalid|jwt.ValidationErrorUnverifiable) != 0:
		return ReasonSignature
	default:
		return ReasonMalformed
	}
}

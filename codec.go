package gourdiansession

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenCodec signs and verifies access and refresh tokens.
//
// Access and refresh tokens are signed with independent HS256 secrets. The codec is
// stateless and safe for concurrent use.
type TokenCodec struct {
	accessKey   []byte
	refreshKey  []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
	issuer      string
	clock       Clock
	signingAlgo jwt.SigningMethod
}

// NewTokenCodec creates a codec from the signing part of config.
func NewTokenCodec(config GourdianSessionConfig, clock Clock) (*TokenCodec, error) {
	accessKey, err := signingKey(config.AccessSecret, "access secret")
	if err != nil {
		return nil, err
	}
	refreshKey, err := signingKey(config.RefreshSecret, "refresh secret")
	if err != nil {
		return nil, err
	}
	if config.AccessTokenDuration <= 0 || config.RefreshTokenDuration <= 0 {
		return nil, fmt.Errorf("%w: token durations must be positive", ErrInvalidConfig)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &TokenCodec{
		accessKey:   accessKey,
		refreshKey:  refreshKey,
		accessTTL:   config.AccessTokenDuration,
		refreshTTL:  config.RefreshTokenDuration,
		issuer:      config.Issuer,
		clock:       clock,
		signingAlgo: jwt.SigningMethodHS256,
	}, nil
}

// SignAccess signs an access token carrying ciphertext, with jti set to sessionID.
// It returns the token and its expiration time.
func (c *TokenCodec) SignAccess(sessionID, ciphertext string) (string, time.Time, error) {
	if sessionID == "" {
		return "", time.Time{}, fmt.Errorf("session ID cannot be empty")
	}
	if ciphertext == "" {
		return "", time.Time{}, fmt.Errorf("ciphertext cannot be empty")
	}

	now := c.now()
	expiresAt := now.Add(c.accessTTL)
	claims := AccessTokenClaims{
		Data:      ciphertext,
		TokenType: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(c.signingAlgo, claims).SignedString(c.accessKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// SignRefresh signs a refresh token carrying payload in plaintext.
// It returns the token and its expiration time.
func (c *TokenCodec) SignRefresh(payload RefreshTokenPayload) (string, time.Time, error) {
	if payload.SessionID == "" {
		return "", time.Time{}, fmt.Errorf("session ID cannot be empty")
	}

	tokenID, err := uuid.NewRandom()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token ID: %w", err)
	}

	now := c.now()
	expiresAt := now.Add(c.refreshTTL)
	claims := RefreshTokenClaims{
		RefreshTokenPayload: payload,
		TokenType:           RefreshToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(c.signingAlgo, claims).SignedString(c.refreshKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyAccess verifies an access token against the access secret.
func (c *TokenCodec) VerifyAccess(tokenString string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	if err := c.Verify(tokenString, c.accessKey, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != AccessToken {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, AccessToken)
	}
	if claims.ID == "" || claims.Data == "" {
		return nil, fmt.Errorf("%w: missing session claims", ErrInvalidToken)
	}
	return claims, nil
}

// VerifyRefresh verifies a refresh token against the refresh secret.
func (c *TokenCodec) VerifyRefresh(tokenString string) (*RefreshTokenClaims, error) {
	claims := &RefreshTokenClaims{}
	if err := c.Verify(tokenString, c.refreshKey, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != RefreshToken {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, RefreshToken)
	}
	if claims.SessionID == "" || claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing session claims", ErrInvalidToken)
	}
	return claims, nil
}

// Verify checks signature, algorithm and expiry of tokenString with secret and decodes the
// claims into claims. Every failure wraps ErrInvalidToken.
func (c *TokenCodec) Verify(tokenString string, secret []byte, claims jwt.Claims) error {
	if tokenString == "" {
		return fmt.Errorf("%w: token cannot be empty", ErrInvalidToken)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.signingAlgo.Alg()}),
		jwt.WithTimeFunc(c.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != c.signingAlgo.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return fmt.Errorf("%w: invalid token claims", ErrInvalidToken)
	}
	return nil
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// now returns the clock time truncated to the precision of NumericDate.
func (c *TokenCodec) now() time.Time {
	return c.clock.Now().Truncate(jwt.TimePrecision)
}

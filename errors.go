package gourdiansession

import "errors"

var (
	// ErrInvalidConfig is returned when secrets or durations fail validation.
	// Hosts should treat it as fatal at startup.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidToken is returned by the codec for bad signatures, expired or malformed tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrPayloadDecryption is returned when an access-token payload cannot be decrypted or decoded.
	ErrPayloadDecryption = errors.New("payload decryption failed")

	// ErrInvalidSession is the only failure surfaced by VerifySession, UpdateSession and
	// RefreshSession. Expired, tampered, undecryptable, inactive and revoked sessions all map to it.
	ErrInvalidSession = errors.New("invalid session")

	// ErrResolverUnavailable is returned by resolvers that cannot serve team lookups.
	ErrResolverUnavailable = errors.New("team access resolver unavailable")

	// ErrRevocationDisabled is returned by RevokeSession when no RevocationStore is configured.
	ErrRevocationDisabled = errors.New("session revocation not configured")
)

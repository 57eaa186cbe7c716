// gourdiansession.go

package gourdiansession

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gourdian25/gourdiansession"

// GourdianSessionMaker defines the session entry points exposed to the host application.
type GourdianSessionMaker interface {
	// CreateSession issues an access and a refresh token for a freshly authenticated user
	CreateSession(ctx context.Context, input CreateSessionInput) (*SessionTokens, error)

	// VerifySession validates an access token and returns its decrypted payload
	VerifySession(ctx context.Context, accessToken string) (*SessionPayload, error)

	// UpdateSession merges changes into the session and issues a new access token
	UpdateSession(ctx context.Context, accessToken string, update SessionUpdate) (*AccessTokenResponse, error)

	// RefreshSession exchanges a refresh token for a new access token
	RefreshSession(ctx context.Context, refreshToken string) (*AccessTokenResponse, error)
}

// CreateSessionInput describes a verified upstream identity.
//
// Fields:
//   - User: identity snapshot (UserID is required)
//   - Groups: upstream group identifiers used to resolve team access
//   - Teams: team access already resolved by the caller; when nil, Groups are resolved
//   - DeviceInfo, IPAddress: optional diagnostics
type CreateSessionInput struct {
	User       UserIdentity
	Groups     []string
	Teams      []TeamAccess
	DeviceInfo string
	IPAddress  string
}

// SessionUpdate is a shallow patch applied by UpdateSession. Nil fields are left unchanged.
// The session id and last activity cannot be patched.
type SessionUpdate struct {
	User       *UserIdentity
	Teams      []TeamAccess
	DeviceInfo *string
	IPAddress  *string
}

// SessionManager implements GourdianSessionMaker. It holds no per-session state: every
// operation is a function of its input, the configured secrets and the clock, so it is
// safe for concurrent use.
type SessionManager struct {
	config      GourdianSessionConfig
	codec       *TokenCodec
	cipher      PayloadCipher
	teams       *TeamAccessCache
	resolver    TeamAccessResolver
	revocations RevocationStore
	clock       Clock
	logger      zerolog.Logger
	metrics     *Metrics
	tracer      trace.Tracer
}

var _ GourdianSessionMaker = (*SessionManager)(nil)

// Option configures a SessionManager.
type Option func(*SessionManager)

// WithClock sets the clock used for expiry, inactivity and lastActivity.
func WithClock(clock Clock) Option {
	return func(m *SessionManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *SessionManager) { m.logger = logger }
}

// WithMetrics records operation outcomes on metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *SessionManager) { m.metrics = metrics }
}

// WithTracer sets the OpenTelemetry tracer. The default is the global provider's tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *SessionManager) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}

// WithTeamAccessResolver sets the resolver placed behind the manager's own TeamAccessCache.
// Ignored when WithTeamAccessCache is also given.
func WithTeamAccessResolver(resolver TeamAccessResolver) Option {
	return func(m *SessionManager) { m.resolver = resolver }
}

// WithTeamAccessCache shares an existing cache, so hosts can Invalidate it when team data changes.
func WithTeamAccessCache(cache *TeamAccessCache) Option {
	return func(m *SessionManager) { m.teams = cache }
}

// WithRevocationStore enables the session denylist.
func WithRevocationStore(store RevocationStore) Option {
	return func(m *SessionManager) { m.revocations = store }
}

// WithPayloadCipher replaces the default XChaCha20-Poly1305 payload cipher.
func WithPayloadCipher(cipher PayloadCipher) Option {
	return func(m *SessionManager) { m.cipher = cipher }
}

// NewGourdianSessionManager validates config and builds a SessionManager.
//
// An invalid config returns an error wrapping ErrInvalidConfig; hosts should refuse to start.
// Without a resolver the manager behaves as if the team store were unreachable and every
// team list is reconstructed from group names.
func NewGourdianSessionManager(config GourdianSessionConfig, opts ...Option) (*SessionManager, error) {
	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	m := &SessionManager{
		config: config,
		clock:  SystemClock{},
		logger: zerolog.Nop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}

	codec, err := NewTokenCodec(config, m.clock)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	m.codec = codec

	if m.cipher == nil {
		c, err := NewPayloadCipher(config.EncryptionSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize payload cipher: %w", err)
		}
		m.cipher = c
	}

	if m.teams == nil {
		m.teams = NewTeamAccessCache(m.resolver,
			WithCacheTTL(config.TeamAccessCacheTTL),
			WithCacheClock(m.clock),
			WithCacheMetrics(m.metrics),
		)
	}

	return m, nil
}

// TeamAccessCache returns the cache used to resolve team access.
func (m *SessionManager) TeamAccessCache() *TeamAccessCache { return m.teams }

// Codec returns the token codec.
func (m *SessionManager) Codec() *TokenCodec { return m.codec }

// CreateSession starts a new session: a fresh session id, team access resolved from the
// input, lastActivity set to now, and a signed access/refresh token pair.
func (m *SessionManager) CreateSession(ctx context.Context, input CreateSessionInput) (*SessionTokens, error) {
	ctx, span := m.tracer.Start(ctx, "gourdiansession.CreateSession")
	defer span.End()

	tokens, err := m.createSession(ctx, input, span)
	if err != nil {
		m.metrics.sessionCreated(resultError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session failed")
		m.logger.Error().Err(err).Msg("session creation failed")
		return nil, err
	}
	m.metrics.sessionCreated(resultOK)
	return tokens, nil
}

func (m *SessionManager) createSession(ctx context.Context, input CreateSessionInput, span trace.Span) (*SessionTokens, error) {
	if input.User.UserID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}

	sessionID, err := newSessionID()
	if err != nil {
		return nil, err
	}

	teams := cloneTeams(input.Teams)
	path := pathNone
	if teams == nil {
		teams, path = m.resolveTeams(ctx, input.Groups, sessionID)
	}
	span.SetAttributes(attribute.String("team_access.path", path), attribute.Int("team_access.count", len(teams)))

	payload := &SessionPayload{
		User:         cloneIdentity(input.User),
		Teams:        teams,
		SessionID:    sessionID,
		LastActivity: m.clock.Now().UnixMilli(),
		DeviceInfo:   input.DeviceInfo,
		IPAddress:    input.IPAddress,
	}

	access, err := m.issueAccess(payload)
	if err != nil {
		return nil, err
	}

	// Refresh-time reconstruction needs the identifiers the resolver understands. Callers that
	// only pass resolved teams get the team names instead.
	groups := canonicalGroups(input.Groups)
	if len(groups) == 0 {
		groups = canonicalGroups(teamNames(teams))
	}

	refresh, refreshExpiresAt, err := m.codec.SignRefresh(RefreshTokenPayload{
		SessionID: sessionID,
		UserID:    input.User.UserID,
		UserContext: UserContext{
			FirstName:   input.User.FirstName,
			LastName:    input.User.LastName,
			FullName:    input.User.FullName,
			ExternalIDs: cloneIdentity(input.User).ExternalIDs,
			Email:       input.User.Email,
			Groups:      groups,
			DeviceInfo:  input.DeviceInfo,
		},
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("session", shortID(sessionID)).
		Int("teams", len(teams)).
		Str("team_access_path", path).
		Msg("session created")

	return &SessionTokens{
		AccessToken:      access.Token,
		RefreshToken:     refresh,
		SessionID:        sessionID,
		ExpiresAt:        access.ExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// VerifySession checks the access token signature and expiry, decrypts the payload and
// enforces the inactivity timeout. Any failure returns ErrInvalidSession.
func (m *SessionManager) VerifySession(ctx context.Context, accessToken string) (*SessionPayload, error) {
	ctx, span := m.tracer.Start(ctx, "gourdiansession.VerifySession")
	defer span.End()

	payload, result := m.verifyAccess(ctx, accessToken)
	m.metrics.verified(result)
	if result != resultOK {
		span.SetStatus(codes.Error, result)
		return nil, ErrInvalidSession
	}
	return payload, nil
}

// verifyAccess returns the payload of a valid access token, or nil and the rejection reason.
func (m *SessionManager) verifyAccess(ctx context.Context, accessToken string) (*SessionPayload, string) {
	claims, err := m.codec.VerifyAccess(accessToken)
	if err != nil {
		m.logger.Debug().Err(err).Msg("access token rejected")
		return nil, resultInvalid
	}

	payload, err := m.cipher.Decrypt(claims.Data)
	if err != nil {
		m.logger.Warn().Err(err).Str("session", shortID(claims.ID)).Msg("access token payload rejected")
		return nil, resultDecrypt
	}
	if payload.SessionID != claims.ID {
		m.logger.Warn().Str("session", shortID(claims.ID)).Msg("access token session mismatch")
		return nil, resultInvalid
	}

	idle := m.clock.Now().UnixMilli() - payload.LastActivity
	if idle > m.config.InactivityTimeout.Milliseconds() {
		m.logger.Debug().Str("session", shortID(payload.SessionID)).Int64("idle_ms", idle).Msg("session inactive")
		return nil, resultInactive
	}

	if m.isRevoked(ctx, payload.SessionID) {
		return nil, resultRevoked
	}
	return payload, resultOK
}

// UpdateSession verifies accessToken, applies update over its payload and issues a new
// access token for the same session with lastActivity set to now, or kept when the
// current value is later.
func (m *SessionManager) UpdateSession(ctx context.Context, accessToken string, update SessionUpdate) (*AccessTokenResponse, error) {
	ctx, span := m.tracer.Start(ctx, "gourdiansession.UpdateSession")
	defer span.End()

	current, result := m.verifyAccess(ctx, accessToken)
	if result != resultOK {
		m.metrics.updated(result)
		span.SetStatus(codes.Error, result)
		return nil, ErrInvalidSession
	}

	next := clonePayload(current)
	if update.User != nil {
		next.User = cloneIdentity(*update.User)
		// The user id is bound to the refresh token and cannot move to another user.
		next.User.UserID = current.User.UserID
	}
	if update.Teams != nil {
		next.Teams = cloneTeams(update.Teams)
	}
	if update.DeviceInfo != nil {
		next.DeviceInfo = *update.DeviceInfo
	}
	if update.IPAddress != nil {
		next.IPAddress = *update.IPAddress
	}
	// A payload stamped ahead of this clock keeps its stamp; lastActivity never decreases.
	next.LastActivity = max(m.clock.Now().UnixMilli(), current.LastActivity)

	resp, err := m.issueAccess(next)
	if err != nil {
		m.metrics.updated(resultError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "issue access token failed")
		m.logger.Error().Err(err).Str("session", shortID(current.SessionID)).Msg("session update failed")
		return nil, ErrInvalidSession
	}
	m.metrics.updated(resultOK)
	return resp, nil
}

// InspectRefreshToken verifies a refresh token and returns its claims.
func (m *SessionManager) InspectRefreshToken(ctx context.Context, refreshToken string) (*RefreshTokenClaims, error) {
	claims, err := m.codec.VerifyRefresh(refreshToken)
	if err != nil {
		m.logger.Debug().Err(err).Msg("refresh token rejected")
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// RevokeSession denylists the session of refreshToken for the rest of the refresh token's
// lifetime. Both the refresh token and every access token of the session stop verifying.
// It returns ErrRevocationDisabled when no RevocationStore is configured.
func (m *SessionManager) RevokeSession(ctx context.Context, refreshToken string) error {
	ctx, span := m.tracer.Start(ctx, "gourdiansession.RevokeSession")
	defer span.End()

	if m.revocations == nil {
		return ErrRevocationDisabled
	}
	claims, err := m.InspectRefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}

	ttl := claims.ExpiresAt.Time.Sub(m.clock.Now())
	if ttl <= 0 {
		return ErrInvalidSession
	}
	if err := m.revocations.RevokeSession(ctx, claims.SessionID, ttl); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "revoke failed")
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	m.metrics.revoked()
	m.logger.Info().Str("session", shortID(claims.SessionID)).Dur("ttl", ttl).Msg("session revoked")
	return nil
}

// isRevoked consults the denylist. Store errors count as revoked.
func (m *SessionManager) isRevoked(ctx context.Context, sessionID string) bool {
	if m.revocations == nil {
		return false
	}
	revoked, err := m.revocations.IsSessionRevoked(ctx, sessionID)
	if err != nil {
		m.logger.Error().Err(err).Str("session", shortID(sessionID)).Msg("revocation lookup failed")
		return true
	}
	return revoked
}

// issueAccess seals payload and signs it into an access token.
func (m *SessionManager) issueAccess(payload *SessionPayload) (*AccessTokenResponse, error) {
	ciphertext, err := m.cipher.Encrypt(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session payload: %w", err)
	}
	token, expiresAt, err := m.codec.SignAccess(payload.SessionID, ciphertext)
	if err != nil {
		return nil, err
	}
	return &AccessTokenResponse{
		Token:     token,
		SessionID: payload.SessionID,
		ExpiresAt: expiresAt,
		Payload:   payload,
	}, nil
}

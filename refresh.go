package gourdiansession

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RefreshSession exchanges a valid refresh token for a new access token of the same session.
//
// Team access is re-resolved from the groups carried by the refresh token. When the resolver
// fails after its retry budget, teams are reconstructed from group names with RoleUser only,
// so refresh keeps working while the team store is down. lastActivity is reset to now.
// The refresh token does not carry the previous lastActivity, so the new value is strictly
// greater than the old one only when at least a millisecond has passed since the last
// create, update or refresh.
func (m *SessionManager) RefreshSession(ctx context.Context, refreshToken string) (*AccessTokenResponse, error) {
	ctx, span := m.tracer.Start(ctx, "gourdiansession.RefreshSession")
	defer span.End()

	claims, err := m.codec.VerifyRefresh(refreshToken)
	if err != nil {
		m.metrics.refreshed(pathNone, resultInvalid)
		m.logger.Debug().Err(err).Msg("refresh token rejected")
		span.SetStatus(codes.Error, resultInvalid)
		return nil, ErrInvalidSession
	}
	if m.isRevoked(ctx, claims.SessionID) {
		m.metrics.refreshed(pathNone, resultRevoked)
		span.SetStatus(codes.Error, resultRevoked)
		return nil, ErrInvalidSession
	}

	uc := claims.UserContext
	teams, path := m.resolveTeams(ctx, uc.Groups, claims.SessionID)
	span.SetAttributes(attribute.String("team_access.path", path), attribute.Int("team_access.count", len(teams)))

	payload := &SessionPayload{
		User: cloneIdentity(UserIdentity{
			UserID:      claims.UserID,
			FirstName:   uc.FirstName,
			LastName:    uc.LastName,
			FullName:    uc.FullName,
			ExternalIDs: uc.ExternalIDs,
			Email:       uc.Email,
		}),
		Teams:        teams,
		SessionID:    claims.SessionID,
		LastActivity: m.clock.Now().UnixMilli(),
		DeviceInfo:   uc.DeviceInfo,
	}

	resp, err := m.issueAccess(payload)
	if err != nil {
		m.metrics.refreshed(path, resultError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "issue access token failed")
		m.logger.Error().Err(err).Str("session", shortID(claims.SessionID)).Msg("session refresh failed")
		return nil, ErrInvalidSession
	}

	m.metrics.refreshed(path, resultOK)
	m.logger.Debug().
		Str("session", shortID(claims.SessionID)).
		Str("team_access_path", path).
		Msg("session refreshed")
	return resp, nil
}

// resolveTeams resolves groups through the cache with a per-attempt timeout and the
// configured retries. On failure it returns the degraded reconstruction.
func (m *SessionManager) resolveTeams(ctx context.Context, groups []string, sessionID string) ([]TeamAccess, string) {
	delay := m.config.ResolverRetryDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(m.config.ResolverRetries), retry.NewConstant(delay))

	var teams []TeamAccess
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, m.config.ResolverTimeout)
		defer cancel()

		resolved, err := m.teams.Get(attemptCtx, groups)
		if err != nil {
			return retry.RetryableError(err)
		}
		teams = resolved
		return nil
	})
	if err != nil {
		m.metrics.degraded()
		m.logger.Warn().
			Err(err).
			Str("session", shortID(sessionID)).
			Int("groups", len(groups)).
			Msg("team access resolver unavailable, reconstructing teams from groups")
		return reconstructTeams(groups), pathDegraded
	}
	return teams, pathResolver
}

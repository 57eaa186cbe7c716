// docs.go

// Package gourdiansession provides stateless, encrypted user sessions carried in JWTs.
//
// A session is a pair of tokens. The access token is short-lived and carries the full
// session payload (identity, team memberships and roles, last activity) encrypted inside a
// signed JWT, so services can authorize a request without a session store. The refresh
// token is long-lived and carries just enough plaintext identity to rebuild the payload.
//
// # Overview
//
// The package provides:
//   - Session creation from a verified upstream identity and its group memberships
//   - Access token verification with an inactivity timeout on top of token expiry
//   - In-place session updates that keep the session id
//   - Refresh with team access re-resolved from the upstream groups
//   - A TTL cache in front of the team access resolver
//   - Degraded team reconstruction when the resolver is unavailable
//   - An optional revocation denylist (memory, Redis or SQL through GORM)
//
// # Token Structure
//
// Access tokens (HS256, access secret, 15 minutes by default):
//   - jti: session id
//   - data: base64url(version || nonce || XChaCha20-Poly1305(payload JSON))
//   - typ: "access"
//   - iat, exp, and iss when an issuer is configured
//
// Refresh tokens (HS256, refresh secret, 7 days by default):
//   - sessionId, userId, userContext (names, email, external ids, groups, device)
//   - typ: "refresh"
//   - jti, iat, exp, and iss when an issuer is configured
//
// The refresh token is signed but not encrypted. It never carries team roles.
//
// # Secrets
//
// Three independent secrets of at least 32 bytes are required. The access and refresh
// secrets are the HMAC keys, the encryption secret is HKDF-expanded into the AEAD key.
// Reusing one secret for two purposes is rejected at configuration time.
//
// # Usage Example
//
//	config, err := gourdiansession.LoadConfigFromEnv(ctx, ".env")
//	if err != nil {
//	    log.Fatal().Err(err).Msg("invalid session configuration")
//	}
//
//	manager, err := gourdiansession.NewGourdianSessionManager(config,
//	    gourdiansession.WithTeamAccessResolver(resolver),
//	    gourdiansession.WithLogger(logger),
//	    gourdiansession.WithMetrics(gourdiansession.NewMetrics(prometheus.DefaultRegisterer)),
//	)
//
//	tokens, err := manager.CreateSession(ctx, gourdiansession.CreateSessionInput{
//	    User:   gourdiansession.UserIdentity{UserID: "u1", Email: "user@example.com"},
//	    Groups: []string{"teamA-admins"},
//	})
//
//	payload, err := manager.VerifySession(ctx, tokens.AccessToken)
//	if payload.HasRole(teamID, gourdiansession.RoleAdmin) {
//	    // ...
//	}
//
//	refreshed, err := manager.RefreshSession(ctx, tokens.RefreshToken)
//
// # Degraded Mode
//
// When the resolver fails after its timeout and retry, refresh and create still succeed: each
// group becomes a team with a deterministic synthetic id and RoleUser. Admin is never
// granted in degraded mode. The event is logged at warn level and counted in
// gourdiansession_team_access_degraded_total.
//
// # Errors
//
// Verification failures of any kind (bad signature, expiry, decryption, inactivity,
// revocation) are reported as ErrInvalidSession. Reasons are logged and counted but never
// returned to callers.
package gourdiansession

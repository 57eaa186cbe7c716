package gourdiansession

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is a team-scoped role carried in the session payload.
type Role string

const (
	RoleAdmin Role = "admin" // Team administrator
	RoleUser  Role = "user"  // Regular team member
)

// TeamAccess is one team membership at the time the session was issued.
type TeamAccess struct {
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName"`
	Role     Role   `json:"role"`
}

// UserIdentity is the identity snapshot copied into a session at creation.
//
// Fields:
//   - UserID: stable user identifier (subject of the upstream identity)
//   - FirstName, LastName, FullName: display names
//   - ExternalIDs: stable identifiers issued by upstream systems, keyed by system
//   - Email: primary email address
type UserIdentity struct {
	UserID      string            `json:"userId"`
	FirstName   string            `json:"firstName"`
	LastName    string            `json:"lastName"`
	FullName    string            `json:"fullName"`
	ExternalIDs map[string]string `json:"externalIds,omitempty"`
	Email       string            `json:"email"`
}

// SessionPayload is the decrypted content of an access token.
//
// Fields:
//   - User: identity snapshot
//   - Teams: team memberships and roles at issue time
//   - SessionID: random identifier shared by every token of one login
//   - LastActivity: epoch milliseconds of the last create, update or refresh
//   - DeviceInfo, IPAddress: best-effort diagnostics
type SessionPayload struct {
	User         UserIdentity `json:"user"`
	Teams        []TeamAccess `json:"teams"`
	SessionID    string       `json:"sessionId"`
	LastActivity int64        `json:"lastActivity"`
	DeviceInfo   string       `json:"deviceInfo,omitempty"`
	IPAddress    string       `json:"ipAddress,omitempty"`
}

// LastActivityTime returns LastActivity as a time.Time.
func (p *SessionPayload) LastActivityTime() time.Time {
	return time.UnixMilli(p.LastActivity)
}

// HasRole reports whether the session holds role in the team with the given id.
func (p *SessionPayload) HasRole(teamID string, role Role) bool {
	for _, t := range p.Teams {
		if t.TeamID == teamID && t.Role == role {
			return true
		}
	}
	return false
}

// UserContext is the plaintext user snapshot carried by refresh tokens. Groups are the
// identifiers handed to the TeamAccessResolver when the access token is renewed.
type UserContext struct {
	FirstName   string            `json:"firstName"`
	LastName    string            `json:"lastName"`
	FullName    string            `json:"fullName"`
	ExternalIDs map[string]string `json:"externalIds,omitempty"`
	Email       string            `json:"email"`
	Groups      []string          `json:"groups"`
	DeviceInfo  string            `json:"deviceInfo,omitempty"`
}

// RefreshTokenPayload is the plaintext content of a refresh token.
type RefreshTokenPayload struct {
	SessionID   string      `json:"sessionId"`
	UserID      string      `json:"userId"`
	UserContext UserContext `json:"userContext"`
}

// AccessTokenClaims are the signed claims of an access token. The session payload travels
// encrypted in Data; the JWT ID equals the session id.
type AccessTokenClaims struct {
	Data      string    `json:"data"`
	TokenType TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshTokenClaims are the signed claims of a refresh token.
type RefreshTokenClaims struct {
	RefreshTokenPayload
	TokenType TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// AccessTokenResponse represents the response after issuing an access token.
//
// Fields:
//   - Token: signed access token
//   - SessionID: session identifier
//   - ExpiresAt: token expiration time
//   - Payload: the session state sealed into Token
type AccessTokenResponse struct {
	Token     string          `json:"tok"`
	SessionID string          `json:"sid"`
	ExpiresAt time.Time       `json:"exp"`
	Payload   *SessionPayload `json:"-"`
}

// SessionTokens is returned by CreateSession.
//
// Fields:
//   - AccessToken: signed access token carrying the encrypted payload
//   - RefreshToken: signed refresh token
//   - SessionID: session identifier
//   - ExpiresAt: access token expiration time
//   - RefreshExpiresAt: refresh token expiration time
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	SessionID        string    `json:"sessionId"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

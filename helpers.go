package gourdiansession

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// sessionIDBytes is the entropy of a session id (256 bits).
const sessionIDBytes = 32

// teamNamespace scopes the synthetic team ids produced by degraded reconstruction.
var teamNamespace = uuid.MustParse("6f1c3c8e-52a4-4c1b-9a57-0c1f6f0e8d21")

// newSessionID returns a random base64url session identifier.
func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// canonicalGroups returns the sorted, deduplicated, non-empty group identifiers.
func canonicalGroups(groups []string) []string {
	out := make([]string, 0, len(groups))
	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// groupKey encodes a canonical group set as a cache key. The unit separator cannot
// appear in a realistic group identifier, so distinct sets never collide.
func groupKey(canonical []string) string {
	return strings.Join(canonical, "\x1f")
}

// syntheticTeamID derives a stable placeholder team id from a group name.
func syntheticTeamID(group string) string {
	return uuid.NewSHA1(teamNamespace, []byte(group)).String()
}

// reconstructTeams rebuilds a team list from group names when the resolver is unavailable.
// Every reconstructed membership is RoleUser; admin can never be recovered this way.
func reconstructTeams(groups []string) []TeamAccess {
	canonical := canonicalGroups(groups)
	teams := make([]TeamAccess, 0, len(canonical))
	for _, g := range canonical {
		teams = append(teams, TeamAccess{
			TeamID:   syntheticTeamID(g),
			TeamName: g,
			Role:     RoleUser,
		})
	}
	return teams
}

// teamNames returns the names of the given teams in order.
func teamNames(teams []TeamAccess) []string {
	names := make([]string, 0, len(teams))
	for _, t := range teams {
		names = append(names, t.TeamName)
	}
	return names
}

func cloneTeams(teams []TeamAccess) []TeamAccess {
	if teams == nil {
		return nil
	}
	out := make([]TeamAccess, len(teams))
	copy(out, teams)
	return out
}

func cloneIdentity(u UserIdentity) UserIdentity {
	u.ExternalIDs = maps.Clone(u.ExternalIDs)
	return u
}

func clonePayload(p *SessionPayload) *SessionPayload {
	out := *p
	out.User = cloneIdentity(p.User)
	out.Teams = cloneTeams(p.Teams)
	return &out
}

// shortID returns a log-safe prefix of a session id.
func shortID(sessionID string) string {
	if len(sessionID) <= 8 {
		return sessionID
	}
	return sessionID[:8]
}

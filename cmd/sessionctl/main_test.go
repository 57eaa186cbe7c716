package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gourdian25/gourdiansession"
)

func setTestEnv(t *testing.T) {
	t.Setenv(gourdiansession.EnvPrefix+"ACCESS_SECRET", "cli-access-secret-0123456789abcdef")
	t.Setenv(gourdiansession.EnvPrefix+"REFRESH_SECRET", "cli-refresh-secret-0123456789abcdef")
	t.Setenv(gourdiansession.EnvPrefix+"ENCRYPTION_SECRET", "cli-encryption-secret-0123456789abcdef")
	t.Setenv(gourdiansession.EnvPrefix+"RESOLVER_RETRY_DELAY", "1ms")
}

func writeTeamsFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "teams.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"teamA-admins": [{"teamId": "t1", "teamName": "teamA", "role": "admin"}]
	}`), 0600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func issue(t *testing.T, extra ...string) gourdiansession.SessionTokens {
	t.Helper()
	args := append([]string{"issue", "--user-id", "u1", "--email", "user@example.com", "--group", "teamA-admins"}, extra...)
	out, err := run(t, args...)
	require.NoError(t, err)

	var tokens gourdiansession.SessionTokens
	require.NoError(t, json.Unmarshal([]byte(out), &tokens))
	require.NotEmpty(t, tokens.AccessToken)
	return tokens
}

func TestIssueVerifyRefresh(t *testing.T) {
	setTestEnv(t)
	teams := writeTeamsFile(t)

	tokens := issue(t, "--teams-file", teams)

	out, err := run(t, "verify", tokens.AccessToken)
	require.NoError(t, err)
	var payload gourdiansession.SessionPayload
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "user@example.com", payload.User.Email)
	assert.True(t, payload.HasRole("t1", gourdiansession.RoleAdmin))

	out, err = run(t, "--teams-file", teams, "refresh", tokens.RefreshToken)
	require.NoError(t, err)
	assert.Contains(t, out, tokens.SessionID)
	assert.Contains(t, out, `"role": "admin"`)

	out, err = run(t, "inspect", tokens.RefreshToken)
	require.NoError(t, err)
	assert.Contains(t, out, `"teamA-admins"`)
}

func TestIssueWithoutTeamsFile(t *testing.T) {
	setTestEnv(t)
	tokens := issue(t)

	out, err := run(t, "verify", tokens.AccessToken)
	require.NoError(t, err)
	assert.Contains(t, out, `"role": "user"`)
	assert.NotContains(t, out, `"role": "admin"`)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	setTestEnv(t)
	_, err := run(t, "verify", "garbage")
	assert.ErrorIs(t, err, gourdiansession.ErrInvalidSession)
}

func TestMissingConfig(t *testing.T) {
	t.Setenv(gourdiansession.EnvPrefix+"ACCESS_SECRET", "")
	t.Setenv(gourdiansession.EnvPrefix+"REFRESH_SECRET", "")
	t.Setenv(gourdiansession.EnvPrefix+"ENCRYPTION_SECRET", "")
	_, err := run(t, "verify", "token")
	assert.ErrorIs(t, err, gourdiansession.ErrInvalidConfig)
}

func TestRevoke(t *testing.T) {
	setTestEnv(t)

	t.Run("Requires redis", func(t *testing.T) {
		tokens := issue(t)
		_, err := run(t, "revoke", tokens.RefreshToken)
		assert.ErrorIs(t, err, gourdiansession.ErrRevocationDisabled)
	})

	t.Run("Revokes through redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		tokens := issue(t)

		out, err := run(t, "--redis-addr", mr.Addr(), "revoke", tokens.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, "revoked", strings.TrimSpace(out))

		_, err = run(t, "--redis-addr", mr.Addr(), "verify", tokens.AccessToken)
		assert.ErrorIs(t, err, gourdiansession.ErrInvalidSession)

		// Without the denylist the token is still self-contained and valid.
		_, err = run(t, "verify", tokens.AccessToken)
		assert.NoError(t, err)
	})
}

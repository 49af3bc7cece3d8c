package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"badgecerts/badgecerts-backend/internal/auth"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestTokensCommand(t *testing.T) {
	out := execute(t, "tokens")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 25)
	assert.True(t, strings.HasPrefix(lines[1], "[[recipient-fname]]"))
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "bg.svg")
	require.NoError(t, os.WriteFile(input, []byte(`<svg width="100" height="100"><text x="10" y="10">[[recipient-flname]]</text></svg>`), 0o644))
	output := filepath.Join(dir, "out.pdf")

	out := execute(t, "render", input, "-o", output, "--format", "a4", "--orientation", "l")

	assert.Contains(t, out, "Wrote 1 page(s)")
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestTokenCommand(t *testing.T) {
	out := execute(t, "token", "--user", "9", "--cap", "certificates:create", "--secret", "s3cret")

	actor, err := auth.NewMiddleware("s3cret", zap.NewNop()).ParseToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, int64(9), actor.UserID)
	assert.Equal(t, []auth.Capability{auth.CapCreate}, actor.Capabilities)
}

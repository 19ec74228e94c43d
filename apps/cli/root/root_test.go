package root

import (
	"bytes"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestCommandsAreWired(t *testing.T) {
	names := map[string]bool{}
	for _, c := range Root().Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["auth"])
	require.True(t, names["bootstrap"])
	require.True(t, names["tenant"])
}

func TestDevTokenPrintsCallbackURL(t *testing.T) {
	var out bytes.Buffer
	Root().SetOut(&out)
	Root().SetArgs([]string{"auth", "devtoken",
		"--client-id", "client",
		"--client-secret", "secret",
		"--store-hash", "abc123",
		"--email", "owner@example.com",
		"--callback-url", "http://localhost:3000/load",
	})
	t.Cleanup(func() {
		Root().SetArgs(nil)
		Root().SetOut(nil)
	})

	require.NoError(t, Execute())

	line := strings.TrimSpace(out.String())
	require.True(t, strings.HasPrefix(line, "http://localhost:3000/load?signed_payload_jwt="))

	raw := strings.TrimPrefix(line, "http://localhost:3000/load?signed_payload_jwt=")
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	require.Equal(t, "stores/abc123", claims["sub"])
}

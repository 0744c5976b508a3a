package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrub(t *testing.T) {
	t.Run("masks credential keys at any depth", func(t *testing.T) {
		got := Scrub(`{"Passkey":"p","nested":{"api_key":"k","keep":1},"arr":[{"X-Auth-Token":"t"}],"query":"SELECT 1"}`)
		assert.Contains(t, got, `"Passkey":"[redacted]"`)
		assert.Contains(t, got, `"api_key":"[redacted]"`)
		assert.Contains(t, got, `"X-Auth-Token":"[redacted]"`)
		assert.Contains(t, got, `"keep":1`)
		assert.Contains(t, got, `"query":"SELECT 1"`)
	})

	t.Run("shortens long strings", func(t *testing.T) {
		data := strings.Repeat("A", 4096)
		got := Scrub(`{"data":"` + data + `"}`)
		assert.Less(t, len(got), 700)
		assert.Contains(t, got, "(4096 bytes)")
	})

	t.Run("non JSON", func(t *testing.T) {
		require.Equal(t, "not json", Scrub(" not json "))
		require.Equal(t, "", Scrub("  "))
		assert.Contains(t, Scrub(strings.Repeat("x", 600)), "(600 bytes)")
	})
}

package setup

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/chatd/internal/testutil"
)

// clearKeyEnv isolates tests from keys set in the developer's environment
func clearKeyEnv(t *testing.T) {
	t.Helper()
	testutil.ClearEnv(t, "GEMINI_API_KEY", "GOOGLE_API_KEY", "NOVELAI_API_KEY")
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func writeAuthJSON(t *testing.T, dir, body string) {
	t.Helper()
	testutil.WriteFile(t, dir, "auth.json", body)
}

func TestDetectSetupStatus(t *testing.T) {
	t.Run("returns empty status for fresh directory", func(t *testing.T) {
		clearKeyEnv(t)
		dir := testutil.TempDir(t)

		status, err := DetectSetupStatus(dir)
		require.NoError(t, err)

		assert.False(t, status.HasGemini)
		assert.False(t, status.HasNovelAI)
		assert.False(t, status.IsComplete)
		assert.Empty(t, status.GeminiSource)
	})

	t.Run("detects keys from auth.json", func(t *testing.T) {
		clearKeyEnv(t)
		dir := testutil.TempDir(t)
		writeAuthJSON(t, dir, `{
			"version": 1,
			"providers": {
				"gemini": {"type": "api", "key": "AIza-test"},
				"novelai": {"type": "api", "key": "pst-test"}
			}
		}`)

		status, err := DetectSetupStatus(dir)
		require.NoError(t, err)

		assert.True(t, status.HasGemini)
		assert.Equal(t, "auth.json", status.GeminiSource)
		assert.True(t, status.HasNovelAI)
		assert.True(t, status.IsComplete)
	})

	t.Run("detects gemini key from environment", func(t *testing.T) {
		clearKeyEnv(t)
		testutil.SetEnv(t, "GOOGLE_API_KEY", "AIza-env")
		dir := testutil.TempDir(t)

		status, err := DetectSetupStatus(dir)
		require.NoError(t, err)

		assert.True(t, status.HasGemini)
		assert.Equal(t, "env", status.GeminiSource)
		assert.True(t, status.IsComplete)
	})

	t.Run("image key alone is not enough", func(t *testing.T) {
		clearKeyEnv(t)
		testutil.SetEnv(t, "NOVELAI_API_KEY", "pst-env")
		dir := testutil.TempDir(t)

		status, err := DetectSetupStatus(dir)
		require.NoError(t, err)

		assert.True(t, status.HasNovelAI)
		assert.False(t, status.IsComplete)
	})
}

func TestNeedsSetup(t *testing.T) {
	t.Run("returns true for fresh directory", func(t *testing.T) {
		clearKeyEnv(t)
		assert.True(t, NeedsSetup(testutil.TempDir(t)))
	})

	t.Run("returns false when gemini is configured", func(t *testing.T) {
		clearKeyEnv(t)
		dir := testutil.TempDir(t)
		writeAuthJSON(t, dir, `{"version": 1, "providers": {"gemini": {"type": "api", "key": "AIza-test"}}}`)

		assert.False(t, NeedsSetup(dir))
	})
}

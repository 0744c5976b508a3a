package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/chatd/internal/auth"
	"github.com/yolodolo42/chatd/internal/config"
	"github.com/yolodolo42/chatd/internal/llm"
	"github.com/yolodolo42/chatd/internal/logging"
	"github.com/yolodolo42/chatd/internal/store"
	"github.com/yolodolo42/chatd/internal/testutil"
	"github.com/yolodolo42/chatd/internal/tools"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.Config{Driver: store.DriverSQLite, DSN: ":memory:"}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestEnsureUser(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	first, err := ensureUser(ctx, st, defaultLocalUser)
	require.NoError(t, err)
	again, err := ensureUser(ctx, st, defaultLocalUser)
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	users, err := st.Users(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestOpenConversation(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	alice, err := ensureUser(ctx, st, "alice")
	require.NoError(t, err)
	bob, err := ensureUser(ctx, st, "bob")
	require.NoError(t, err)

	t.Run("new conversation", func(t *testing.T) {
		c, err := openConversation(ctx, st, alice, "", "Terminal")
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "Terminal", c.Title)
		assert.Equal(t, alice.ID, c.UserID)
	})

	t.Run("existing conversation", func(t *testing.T) {
		c, err := openConversation(ctx, st, alice, "", "first")
		require.NoError(t, err)

		loaded, err := openConversation(ctx, st, alice, c.ID, "ignored")
		require.NoError(t, err)
		assert.Equal(t, "first", loaded.Title)
	})

	t.Run("other user's conversation", func(t *testing.T) {
		c, err := openConversation(ctx, st, alice, "", "private")
		require.NoError(t, err)

		_, err = openConversation(ctx, st, bob, c.ID, "")
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("missing conversation", func(t *testing.T) {
		_, err := openConversation(ctx, st, alice, "nope", "")
		assert.ErrorContains(t, err, "not found")
	})
}

func TestBuildRegistry(t *testing.T) {
	t.Setenv("NOVELAI_API_KEY", "")
	st := openTestStore(t)
	manager, err := auth.NewManager(testutil.TempDir(t))
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Tools.Alert.Enabled = true
	cfg.Tools.JavaScript.Enabled = true
	cfg.Tools.JavaScript.Timeout = time.Second
	cfg.Tools.Query.Enabled = true
	cfg.Tools.Image.Enabled = true

	names := buildRegistry(cfg, st, manager, logging.Discard()).ToolSet().Names()
	assert.Contains(t, names, tools.NameAlert)
	assert.Contains(t, names, tools.NameJavaScript)
	assert.Contains(t, names, tools.NameChoice)
	assert.Contains(t, names, tools.NameQuery)
	assert.NotContains(t, names, tools.NameImage)

	require.NoError(t, manager.SetAPIKey(llm.ProviderNovelAI, "pst-test"))
	names = buildRegistry(cfg, st, manager, logging.Discard()).ToolSet().Names()
	assert.Contains(t, names, tools.NameImage)
}

package setup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yolodolo42/chatd/internal/auth"
	"github.com/yolodolo42/chatd/internal/llm"
)

const verifyTimeout = 15 * time.Second

// KeyVerifier checks an API key against the live service
type KeyVerifier func(ctx context.Context, key string) error

// VerifyGeminiKey sends a minimal request with key
func VerifyGeminiKey(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	provider, err := llm.NewGeminiProvider(ctx, key, "")
	if err != nil {
		return err
	}
	defer provider.Close()

	_, err = provider.Chat(ctx, &llm.ChatRequest{
		SystemPrompt: "You are a test assistant.",
		Contents: []llm.Content{
			{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("Say 'ok' and nothing else.")}},
		},
		ToolMode: llm.ToolModeNone,
	})
	if err != nil {
		return fmt.Errorf("API test failed: %w", err)
	}
	return nil
}

// saveKey stores key in auth.json under dataDir
func saveKey(dataDir string, id llm.ProviderID, key string) error {
	authManager, err := auth.NewManager(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create auth manager: %w", err)
	}
	if err := authManager.SetAPIKey(id, key); err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}
	return nil
}

// formatKeyError returns a user-friendly error message
func formatKeyError(err error) string {
	if err == nil {
		return "Invalid API key. Please try again."
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	switch {
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "no such host"),
		strings.Contains(lower, "timeout"),
		strings.Contains(lower, "deadline exceeded"):
		return "Connection failed. Check your internet and try again."
	case strings.Contains(lower, "api key not valid"),
		strings.Contains(lower, "api_key_invalid"),
		strings.Contains(errStr, "400"),
		strings.Contains(errStr, "401"),
		strings.Contains(errStr, "403"):
		return "Invalid key. Verify at aistudio.google.com"
	case strings.Contains(errStr, "429"), strings.Contains(lower, "quota"):
		return "Rate limited. Wait a moment and try again."
	}

	if len(errStr) > 60 {
		return errStr[:57] + "..."
	}
	return errStr
}

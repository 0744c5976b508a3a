// Package auth resolves provider API keys and authenticates HTTP callers by passkey.
package auth

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/spf13/viper"
	"github.com/yolodolo42/chatd/internal/llm"
)

var envSubstitution = regexp.MustCompile(`\{env:([^}]+)\}`)

// ErrInvalidKey is returned for keys that cannot belong to the provider
var ErrInvalidKey = errors.New("invalid API key")

// NovelAI persistent API tokens carry this prefix. Browser session tokens
// expire and are refused.
const novelAITokenPrefix = "pst-"

// ValidateAPIKey checks the shape of a key before it is stored
func ValidateAPIKey(providerID llm.ProviderID, key string) error {
	if !slices.Contains(llm.AllProviderIDs(), providerID) {
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidKey, providerID)
	}
	if key == "" {
		return fmt.Errorf("%w: empty key for %s", ErrInvalidKey, providerID)
	}
	if strings.ContainsFunc(key, unicode.IsSpace) {
		return fmt.Errorf("%w: key for %s contains whitespace", ErrInvalidKey, providerID)
	}
	if providerID == llm.ProviderNovelAI && !strings.HasPrefix(key, novelAITokenPrefix) {
		return fmt.Errorf("%w: NovelAI needs a persistent API token starting with %q", ErrInvalidKey, novelAITokenPrefix)
	}
	return nil
}

// Manager handles API keys for the upstream providers
type Manager struct {
	store *Store
}

// NewManager creates a new auth manager
func NewManager(dataDir string) (*Manager, error) {
	store, err := NewStore(dataDir)
	if err != nil {
		return nil, err
	}

	return &Manager{
		store: store,
	}, nil
}

// GetAPIKey returns the API key for a provider using priority resolution:
// 1. Environment variable
// 2. Config file (with env substitution)
// 3. Stored auth.json
func (m *Manager) GetAPIKey(providerID llm.ProviderID) (string, error) {
	for _, envVar := range llm.EnvVarsForProvider(providerID) {
		if key := os.Getenv(envVar); key != "" {
			return key, nil
		}
	}

	if key := configKey(providerID); key != "" {
		return key, nil
	}

	cred, err := m.store.GetCredential(providerID)
	if err == nil && cred.Key != "" {
		return cred.Key, nil
	}

	return "", fmt.Errorf("no API key found for provider: %s", providerID)
}

// SetAPIKey validates and stores an API key for a provider
func (m *Manager) SetAPIKey(providerID llm.ProviderID, key string) error {
	key = strings.TrimSpace(key)
	if err := ValidateAPIKey(providerID, key); err != nil {
		return err
	}
	return m.store.SetCredential(providerID, Credential{
		Type: CredentialTypeAPI,
		Key:  key,
	})
}

// RemoveCredential removes stored credentials for a provider
func (m *Manager) RemoveCredential(providerID llm.ProviderID) error {
	return m.store.RemoveCredential(providerID)
}

// HasCredential checks if a key for the provider is available from any source
func (m *Manager) HasCredential(providerID llm.ProviderID) bool {
	_, err := m.GetAPIKey(providerID)
	return err == nil
}

// Source reports where the provider's key would be read from: "env", "config",
// "auth.json" or "" when none is set
func (m *Manager) Source(providerID llm.ProviderID) string {
	for _, envVar := range llm.EnvVarsForProvider(providerID) {
		if os.Getenv(envVar) != "" {
			return "env"
		}
	}
	if configKey(providerID) != "" {
		return "config"
	}
	if cred, err := m.store.GetCredential(providerID); err == nil && cred.Key != "" {
		return authFileName
	}
	return ""
}

// Stored returns the credential kept in auth.json, if any
func (m *Manager) Stored(providerID llm.ProviderID) (Credential, bool) {
	cred, err := m.store.GetCredential(providerID)
	if err != nil || cred.Key == "" {
		return Credential{}, false
	}
	return cred, true
}

// ListConnected returns all providers with credentials
func (m *Manager) ListConnected() []llm.ProviderID {
	connected := make([]llm.ProviderID, 0)

	for _, id := range llm.AllProviderIDs() {
		if m.HasCredential(id) {
			connected = append(connected, id)
		}
	}

	return connected
}

func configKey(providerID llm.ProviderID) string {
	key := viper.GetString(fmt.Sprintf("providers.%s.api_key", providerID))
	if key == "" {
		return ""
	}
	return resolveEnvSubstitution(key)
}

// resolveEnvSubstitution replaces {env:VAR_NAME} with environment variable values
func resolveEnvSubstitution(value string) string {
	if !strings.Contains(value, "{env:") {
		return value
	}

	return envSubstitution.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[5 : len(match)-1]
		return os.Getenv(varName)
	})
}

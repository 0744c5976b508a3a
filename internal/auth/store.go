package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/yolodolo42/chatd/internal/llm"
)

const (
	authFileName = "auth.json"
	authVersion  = 1
	filePerms    = 0600 // Owner read/write only
)

// CredentialType represents the type of credential
type CredentialType string

const (
	CredentialTypeAPI CredentialType = "api"
)

// Credential represents stored credentials for a provider
type Credential struct {
	Type    CredentialType `json:"type"`
	Key     string         `json:"key,omitempty"`
	AddedAt time.Time      `json:"added_at,omitzero"`
}

// Masked shows enough of the key to tell keys apart in listings
func (c Credential) Masked() string {
	if len(c.Key) <= 12 {
		return "****"
	}
	return c.Key[:4] + "..." + c.Key[len(c.Key)-4:]
}

// AuthData is the structure of auth.json
type AuthData struct {
	Version   int                           `json:"version"`
	Providers map[llm.ProviderID]Credential `json:"providers"`
}

// Store manages credential storage
type Store struct {
	mu       sync.RWMutex
	filePath string
	data     *AuthData
}

// NewStore creates a new credential store
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store := &Store{
		filePath: filepath.Join(dataDir, authFileName),
		data: &AuthData{
			Version:   authVersion,
			Providers: make(map[llm.ProviderID]Credential),
		},
	}

	if err := store.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load auth data: %w", err)
	}

	return store, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var authData AuthData
	if err := json.Unmarshal(data, &authData); err != nil {
		return fmt.Errorf("failed to parse auth file: %w", err)
	}

	if authData.Version > authVersion {
		return fmt.Errorf("auth file version %d is newer than supported version %d", authData.Version, authVersion)
	}
	// Providers is never nil, even for a hand-edited file
	if authData.Providers == nil {
		authData.Providers = make(map[llm.ProviderID]Credential)
	}

	s.data = &authData
	return nil
}

// save writes the auth file to disk with secure permissions
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal auth data: %w", err)
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, filePerms); err != nil {
		return fmt.Errorf("failed to write auth file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save auth file: %w", err)
	}

	return nil
}

// GetCredential returns the credential for a provider
func (s *Store) GetCredential(providerID llm.ProviderID) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.data.Providers[providerID]
	if !ok {
		return Credential{}, fmt.Errorf("no credential found for provider: %s", providerID)
	}

	return cred, nil
}

// SetCredential stores a credential for a provider, stamping AddedAt when unset
func (s *Store) SetCredential(providerID llm.ProviderID, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred.AddedAt.IsZero() {
		cred.AddedAt = time.Now().UTC().Truncate(time.Second)
	}
	s.data.Providers[providerID] = cred
	return s.save()
}

// RemoveCredential removes credentials for a provider
func (s *Store) RemoveCredential(providerID llm.ProviderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data.Providers, providerID)
	return s.save()
}

// ListProviders returns all providers with stored credentials, sorted
func (s *Store) ListProviders() []llm.ProviderID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]llm.ProviderID, 0, len(s.data.Providers))
	for id := range s.data.Providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

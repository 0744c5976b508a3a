package setup

import (
	"github.com/yolodolo42/chatd/internal/auth"
	"github.com/yolodolo42/chatd/internal/llm"
)

// SetupStatus represents the current setup state
type SetupStatus struct {
	HasGemini    bool
	GeminiSource string // "env", "config" or "auth.json"
	HasNovelAI   bool
	IsComplete   bool
}

// DetectSetupStatus checks which provider keys are available
func DetectSetupStatus(dataDir string) (*SetupStatus, error) {
	status := &SetupStatus{}

	authManager, err := auth.NewManager(dataDir)
	if err != nil {
		return status, err
	}

	status.GeminiSource = authManager.Source(llm.ProviderGemini)
	status.HasGemini = status.GeminiSource != ""
	status.HasNovelAI = authManager.HasCredential(llm.ProviderNovelAI)

	// Image generation is optional
	status.IsComplete = status.HasGemini

	return status, nil
}

// NeedsSetup returns true if interactive setup should run
func NeedsSetup(dataDir string) bool {
	status, err := DetectSetupStatus(dataDir)
	if err != nil {
		return true
	}
	return !status.IsComplete
}

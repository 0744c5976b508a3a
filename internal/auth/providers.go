package auth

import (
	"strings"

	"github.com/yolodolo42/chatd/internal/llm"
)

// ProviderAuthInfo describes how to obtain a provider's key
type ProviderAuthInfo struct {
	Label       string
	Description string
}

// GetProviderAuthInfo returns the key hint for a provider
func GetProviderAuthInfo(providerID llm.ProviderID) ProviderAuthInfo {
	info, ok := providerAuthConfigs[providerID]
	if !ok {
		return ProviderAuthInfo{Label: "API Key", Description: "Enter your API key"}
	}
	return info
}

var providerAuthConfigs = map[llm.ProviderID]ProviderAuthInfo{
	llm.ProviderGemini: {
		Label:       "API Key",
		Description: "Get your API key from aistudio.google.com/apikey",
	},
	llm.ProviderNovelAI: {
		Label:       "Persistent API Token",
		Description: "Create a persistent token under Account settings on novelai.net",
	},
}

// GetEnvVarHint returns the environment variables read for a provider's API key
func GetEnvVarHint(providerID llm.ProviderID) string {
	return strings.Join(llm.EnvVarsForProvider(providerID), " or ")
}

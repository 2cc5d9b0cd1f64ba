package settings

import (
	"context"
	"maps"
	"strings"

	"context-capture/src/config"
	"context-capture/src/logutil"
)

const (
	ThemeSystem = "system"
	ThemeLight  = "light"
	ThemeDark   = "dark"
)

// Settings holds provider selection, credentials and UI preferences.
type Settings struct {
	OCRService string            `json:"ocrService"`
	LLMService string            `json:"llmService"`
	Theme      string            `json:"theme"`
	APIKeys    map[string]string `json:"apiKeys,omitempty"`
}

// Patch is a partial update. Nil fields are left alone; an empty API key
// value removes that key.
type Patch struct {
	OCRService *string           `json:"ocrService,omitempty"`
	LLMService *string           `json:"llmService,omitempty"`
	Theme      *string           `json:"theme,omitempty"`
	APIKeys    map[string]string `json:"apiKeys,omitempty"`
}

// Store persists Settings. Get always returns defaults merged with anything saved.
type Store interface {
	Get(ctx context.Context) (Settings, error)
	Save(ctx context.Context, p Patch) (Settings, error)
	Clear(ctx context.Context) error
}

// Defaults returns the built-in defaults overlaid with the environment configuration.
func Defaults(cfg *config.Config) Settings {
	s := Settings{
		OCRService: config.DefaultOCRService,
		LLMService: config.DefaultLLMService,
		Theme:      ThemeSystem,
		APIKeys:    map[string]string{},
	}
	if cfg == nil {
		return s
	}
	if cfg.OCRService != "" {
		s.OCRService = cfg.OCRService
	}
	if cfg.LLMService != "" {
		s.LLMService = cfg.LLMService
	}
	maps.Copy(s.APIKeys, cfg.APIKeys)
	return s
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.APIKeys = maps.Clone(s.APIKeys)
	if out.APIKeys == nil {
		out.APIKeys = map[string]string{}
	}
	return out
}

// Merge applies p on top of a copy of s.
func (s Settings) Merge(p Patch) Settings {
	out := s.Clone()
	if p.OCRService != nil {
		out.OCRService = strings.ToLower(strings.TrimSpace(*p.OCRService))
	}
	if p.LLMService != nil {
		out.LLMService = strings.ToLower(strings.TrimSpace(*p.LLMService))
	}
	if p.Theme != nil {
		out.Theme = *p.Theme
	}
	for provider, key := range p.APIKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			delete(out.APIKeys, provider)
			continue
		}
		// A masked key echoed back from GET_SETTINGS leaves the stored key alone.
		if IsRedacted(key) || key == logutil.RedactKey(out.APIKeys[provider]) {
			continue
		}
		out.APIKeys[provider] = key
	}
	return out
}

// IsRedacted reports whether key has the shape logutil.RedactKey produces.
func IsRedacted(key string) bool {
	if key == "********" {
		return true
	}
	return len(key) == 11 && key[4:7] == "..."
}

// Redacted masks every API key for display.
func (s Settings) Redacted() Settings {
	out := s.Clone()
	for provider, key := range out.APIKeys {
		out.APIKeys[provider] = logutil.RedactKey(key)
	}
	return out
}

// HasValidAPIKeys reports whether the active OCR and LLM providers have
// credentials. The local tesseract engine needs none.
func HasValidAPIKeys(s Settings) (ocrOK, llmOK bool) {
	ocrOK = s.OCRService == "tesseract" || s.APIKeys[s.OCRService] != ""
	llmOK = s.APIKeys[s.LLMService] != ""
	return ocrOK, llmOK
}

// ValidateAPIKey checks the shape of a key for a provider. It does not call the provider.
func ValidateAPIKey(provider, key string) bool {
	key = strings.TrimSpace(key)
	switch provider {
	case "openai":
		return strings.HasPrefix(key, "sk-") && len(key) > 20
	case "anthropic":
		return strings.HasPrefix(key, "sk-ant-") && len(key) > 20
	case "gemini", "googlevision":
		return len(key) > 20
	case "ocrspace":
		return len(key) > 10
	default:
		return len(key) > 0
	}
}

package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvPathEnvVar = "CONTEXT_CAPTURE_ENV"

	DefaultOCRService      = "ocrspace"
	DefaultLLMService      = "openai"
	DefaultHotkey          = "Ctrl+Alt+S"
	DefaultSettingsBackend = "file"
	SettingsBackendRedis   = "redis"
)

// Provider ids paired with the environment variable holding their API key.
// Each key may also be read from the file named by <VAR>_FILE.
var apiKeyEnvVars = map[string]string{
	"ocrspace":     "OCR_SPACE_API_KEY",
	"googlevision": "GOOGLE_VISION_API_KEY",
	"openai":       "OPENAI_API_KEY",
	"anthropic":    "ANTHROPIC_API_KEY",
	"gemini":       "GEMINI_API_KEY",
}

type LoadOptions struct {
	EnvPathOverride    string
	OCRServiceOverride string
	LLMServiceOverride string
}

type Config struct {
	OCRService string
	LLMService string
	APIKeys    map[string]string

	OpenAIModel    string
	AnthropicModel string
	GeminiModel    string

	Hotkey            string
	MinSelectionSize  int
	RequestTimeoutSec int
	OptimizeForOCR    bool
	ResultsTTLSec     int
	ErrorTTLSec       int

	SettingsBackend string
	SettingsPath    string
	RedisURL        string
	BridgeAddr      string
	// BridgeToken is the shared secret the bridge requires; the bridge stays
	// off without it.
	BridgeToken       string
	BridgeOrigin      string
	BridgeAllowRemote bool

	EnableFileLogging bool
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) explicit override path
	// 2) .env in the application (executable) directory
	// 3) the file named by CONTEXT_CAPTURE_ENV
	if envPath := resolveEnvPath(opts); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	cfg := &Config{
		OCRService: firstNonEmpty(opts.OCRServiceOverride, os.Getenv("OCR_SERVICE"), DefaultOCRService),
		LLMService: firstNonEmpty(opts.LLMServiceOverride, os.Getenv("LLM_SERVICE"), DefaultLLMService),
		APIKeys:    resolveAPIKeys(),

		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		AnthropicModel: os.Getenv("ANTHROPIC_MODEL"),
		GeminiModel:    os.Getenv("GEMINI_MODEL"),

		Hotkey:            getEnvWithDefault("HOTKEY", DefaultHotkey),
		MinSelectionSize:  getPositiveInt("MIN_SELECTION_SIZE", 50),
		RequestTimeoutSec: getPositiveInt("REQUEST_TIMEOUT_SEC", 30),
		OptimizeForOCR:    strings.ToLower(os.Getenv("OPTIMIZE_FOR_OCR")) == "true",
		ResultsTTLSec:     getPositiveInt("RESULTS_TTL_SEC", 30),
		ErrorTTLSec:       getPositiveInt("ERROR_TTL_SEC", 10),

		SettingsBackend: strings.ToLower(getEnvWithDefault("SETTINGS_BACKEND", DefaultSettingsBackend)),
		SettingsPath:    getEnvWithDefault("SETTINGS_PATH", defaultSettingsPath()),
		RedisURL:        getEnvWithDefault("REDIS_URL", "redis://127.0.0.1:6379/0"),
		BridgeAddr:      os.Getenv("BRIDGE_ADDR"),

		BridgeToken:       strings.TrimSpace(os.Getenv("BRIDGE_TOKEN")),
		BridgeOrigin:      strings.TrimSpace(os.Getenv("BRIDGE_ORIGIN")),
		BridgeAllowRemote: strings.ToLower(os.Getenv("BRIDGE_ALLOW_REMOTE")) == "true",

		EnableFileLogging: strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
	}

	return cfg, nil
}

// APIKey returns the configured key for a provider id, or "".
func (c *Config) APIKey(provider string) string {
	if c == nil || c.APIKeys == nil {
		return ""
	}
	return c.APIKeys[provider]
}

func resolveEnvPath(opts LoadOptions) string {
	if override := strings.TrimSpace(opts.EnvPathOverride); override != "" {
		if _, err := os.Stat(override); err == nil {
			return override
		}
	}

	if execPath, err := os.Executable(); err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func resolveAPIKeys() map[string]string {
	keys := make(map[string]string, len(apiKeyEnvVars))
	for provider, envVar := range apiKeyEnvVars {
		if key := resolveSecret(envVar); key != "" {
			keys[provider] = key
		}
	}
	return keys
}

// resolveSecret prefers the secret file named by <envVar>_FILE over the plain variable.
func resolveSecret(envVar string) string {
	if keyPath := strings.TrimSpace(os.Getenv(envVar + "_FILE")); keyPath != "" {
		if data, err := os.ReadFile(keyPath); err == nil {
			if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
				return fileKey
			}
		}
	}
	return strings.TrimSpace(os.Getenv(envVar))
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "context-capture-settings.json"
	}
	return filepath.Join(dir, "context-capture", "settings.json")
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getPositiveInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}

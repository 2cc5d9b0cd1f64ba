package runtimeinit

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"context-capture/src/clipboard"
	"context-capture/src/config"
	"context-capture/src/settings"
)

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(bool)
	// InitClipboard initializes the system clipboard; failure is logged and
	// the command-line fallback is used instead.
	InitClipboard bool
}

// Runtime is everything a process needs before wiring its contexts.
type Runtime struct {
	Config     *config.Config
	Store      settings.Store
	HTTPClient *http.Client
}

// LLMModels returns the per-provider model overrides from the environment.
func (r *Runtime) LLMModels() map[string]string {
	models := map[string]string{}
	for id, m := range map[string]string{
		"openai":    r.Config.OpenAIModel,
		"anthropic": r.Config.AnthropicModel,
		"gemini":    r.Config.GeminiModel,
	} {
		if m != "" {
			models[id] = m
		}
	}
	return models
}

func Bootstrap(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if opts.InitClipboard {
		if err := clipboard.Init(); err != nil {
			log.Printf("Clipboard: system clipboard unavailable, using command fallback: %v", err)
		}
	}

	return &Runtime{
		Config:     cfg,
		Store:      store,
		HTTPClient: &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSec) * time.Second},
	}, nil
}

// OpenStore selects the settings backend named by SETTINGS_BACKEND.
func OpenStore(ctx context.Context, cfg *config.Config) (settings.Store, error) {
	defaults := settings.Defaults(cfg)
	switch cfg.SettingsBackend {
	case config.SettingsBackendRedis:
		store, err := settings.OpenRedisStore(ctx, cfg.RedisURL, defaults)
		if err != nil {
			return nil, fmt.Errorf("failed to open settings store: %w", err)
		}
		log.Printf("Settings: using redis store")
		return store, nil
	case "memory":
		return settings.NewMemoryStore(defaults), nil
	case "", config.DefaultSettingsBackend:
		log.Printf("Settings: using file store %s", cfg.SettingsPath)
		return settings.NewFileStore(cfg.SettingsPath, defaults), nil
	default:
		return nil, fmt.Errorf("unknown SETTINGS_BACKEND %q", cfg.SettingsBackend)
	}
}

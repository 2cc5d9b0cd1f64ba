package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
)

// layer applies saved overrides on top of defaults. Every store keeps its
// overrides as a plain Settings document.
func layer(defaults Settings, saved *Settings) Settings {
	out := defaults.Clone()
	if saved == nil {
		return out
	}
	if saved.OCRService != "" {
		out.OCRService = saved.OCRService
	}
	if saved.LLMService != "" {
		out.LLMService = saved.LLMService
	}
	if saved.Theme != "" {
		out.Theme = saved.Theme
	}
	for k, v := range saved.APIKeys {
		out.APIKeys[k] = v
	}
	return out
}

func warnMalformedKeys(p Patch) {
	for provider, key := range p.APIKeys {
		if key != "" && !IsRedacted(key) && !ValidateAPIKey(provider, key) {
			log.Printf("Settings: API key for %s does not look valid; saving anyway", provider)
		}
	}
}

// MemoryStore keeps settings in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	defaults Settings
	saved    *Settings
}

func NewMemoryStore(defaults Settings) *MemoryStore {
	return &MemoryStore{defaults: defaults.Clone()}
}

func (m *MemoryStore) Get(context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return layer(m.defaults, m.saved), nil
}

func (m *MemoryStore) Save(_ context.Context, p Patch) (Settings, error) {
	warnMalformedKeys(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	var saved Settings
	if m.saved != nil {
		saved = *m.saved
	}
	next := saved.Merge(p)
	m.saved = &next
	return layer(m.defaults, m.saved), nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = nil
	return nil
}

// FileStore persists settings as JSON at path.
type FileStore struct {
	mu       sync.Mutex
	path     string
	defaults Settings
}

func NewFileStore(path string, defaults Settings) *FileStore {
	return &FileStore{path: path, defaults: defaults.Clone()}
}

func (f *FileStore) Get(context.Context) (Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileStore) load() (Settings, error) {
	saved, err := f.overrides()
	return layer(f.defaults, &saved), err
}

func (f *FileStore) overrides() (Settings, error) {
	var saved Settings
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return saved, nil
	}
	if err != nil {
		return saved, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := json.Unmarshal(data, &saved); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings %s: %w", f.path, err)
	}
	return saved, nil
}

func (f *FileStore) Save(_ context.Context, p Patch) (Settings, error) {
	warnMalformedKeys(p)
	f.mu.Lock()
	defer f.mu.Unlock()

	saved, err := f.overrides()
	if err != nil {
		// Leave a corrupt file in place for the user to repair.
		return Settings{}, err
	}
	next := saved.Merge(p)

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	return layer(f.defaults, &next), nil
}

func (f *FileStore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear settings: %w", err)
	}
	return nil
}

const RedisKey = "context-capture:settings"

// RedisStore keeps the settings document under a single Redis key so several
// machines can share one configuration.
type RedisStore struct {
	client   redis.Cmdable
	key      string
	defaults Settings
}

func NewRedisStore(client redis.Cmdable, defaults Settings) *RedisStore {
	return &RedisStore{client: client, key: RedisKey, defaults: defaults.Clone()}
}

// OpenRedisStore parses a redis:// URL and verifies the connection.
func OpenRedisStore(ctx context.Context, rawURL string, defaults Settings) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failure: %w", err)
	}
	return NewRedisStore(client, defaults), nil
}

func (r *RedisStore) Get(ctx context.Context) (Settings, error) {
	saved, err := r.overrides(ctx)
	return layer(r.defaults, &saved), err
}

func (r *RedisStore) overrides(ctx context.Context) (Settings, error) {
	var saved Settings
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return saved, nil
	}
	if err != nil {
		return saved, fmt.Errorf("redis get failure: %w", err)
	}
	if err := json.Unmarshal([]byte(val), &saved); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	return saved, nil
}

func (r *RedisStore) Save(ctx context.Context, p Patch) (Settings, error) {
	warnMalformedKeys(p)
	saved, err := r.overrides(ctx)
	if err != nil {
		return Settings{}, err
	}
	next := saved.Merge(p)
	data, err := json.Marshal(next)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	if err := r.client.Set(ctx, r.key, string(data), 0).Err(); err != nil {
		return Settings{}, fmt.Errorf("redis set failure: %w", err)
	}
	return layer(r.defaults, &next), nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del failure: %w", err)
	}
	return nil
}

package presets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"gopkg.in/yaml.v3"
)

// Store persists the whole preset collection as one document.
// LoadAll returns ErrNotStored when nothing has been saved yet.
type Store interface {
	LoadAll(ctx context.Context) ([]Preset, error)
	SaveAll(ctx context.Context, presets []Preset) error
}

// MemoryStore keeps presets in process memory
type MemoryStore struct {
	mu      sync.Mutex
	presets []Preset
	saved   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LoadAll(context.Context) ([]Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved {
		return nil, ErrNotStored
	}
	return clonePresets(s.presets), nil
}

func (s *MemoryStore) SaveAll(_ context.Context, presets []Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets = clonePresets(presets)
	s.saved = true
	return nil
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// FileStore keeps presets in a YAML file. Writes go to a temporary file
// in the same directory which is then renamed over the target.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) LoadAll(context.Context) ([]Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotStored
	}
	if err != nil {
		return nil, fmt.Errorf("read preset file: %w", err)
	}

	var doc presetFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse preset file %s: %w", s.path, err)
	}
	return doc.Presets, nil
}

func (s *FileStore) SaveAll(_ context.Context, presets []Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(presetFile{Presets: presets})
	if err != nil {
		return fmt.Errorf("marshal presets: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preset directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".presets-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp preset file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write preset file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close preset file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace preset file: %w", err)
	}
	return nil
}

// DefaultRedisKey holds the JSON preset collection
const DefaultRedisKey = "phonoglyph:presets"

// RedisStore keeps presets as a JSON array under a single key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to addr and verifies the connection with PING.
func NewRedisStore(ctx context.Context, addr, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return NewRedisStoreWithClient(client, key), nil
}

func NewRedisStoreWithClient(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) LoadAll(ctx context.Context) ([]Preset, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotStored
	}
	if err != nil {
		return nil, fmt.Errorf("get presets from redis: %w", err)
	}

	var presets []Preset
	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presets: %w", err)
	}
	return presets, nil
}

func (s *RedisStore) SaveAll(ctx context.Context, presets []Preset) error {
	data, err := json.Marshal(presets)
	if err != nil {
		return fmt.Errorf("failed to marshal presets: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store presets in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func clonePresets(in []Preset) []Preset {
	if in == nil {
		return nil
	}
	out := make([]Preset, len(in))
	for i, p := range in {
		out[i] = p.clone()
	}
	return out
}

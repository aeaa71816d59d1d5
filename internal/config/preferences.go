package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Preferences is the persisted user state
type Preferences struct {
	PlayerHost         string `yaml:"player_host,omitempty"`
	PlayerName         string `yaml:"player_name,omitempty"`
	OpenAIAPIKey       string `yaml:"openai_api_key,omitempty"`
	OpenAISystemPrompt string `yaml:"openai_system_prompt,omitempty"`
}

// Store reads and writes Preferences as YAML.
// The file may hold an API key, so it is written with 0600.
type Store struct {
	logger *zap.Logger
	path   string
	mu     sync.Mutex
}

// NewStore creates a preferences store backed by the configured path
func NewStore(logger *zap.Logger, cfg *AppConfig) *Store {
	return &Store{logger: logger, path: cfg.PreferencesPath}
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored preferences; a missing file yields empty preferences
func (s *Store) Load() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (Preferences, error) {
	var prefs Preferences
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return prefs, nil
	}
	if err != nil {
		return prefs, fmt.Errorf("read preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return prefs, fmt.Errorf("parse preferences: %w", err)
	}
	return prefs, nil
}

// Save replaces the stored preferences
func (s *Store) Save(prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(prefs)
}

func (s *Store) save(prefs Preferences) error {
	data, err := yaml.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preferences dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

// RememberPlayer stores the player host and name, keeping other keys.
// It is a no-op when the same player is already stored.
func (s *Store) RememberPlayer(host, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.load()
	if err != nil {
		return err
	}
	if prefs.PlayerHost == host && prefs.PlayerName == name {
		return nil
	}
	prefs.PlayerHost = host
	prefs.PlayerName = name

	if err := s.save(prefs); err != nil {
		return err
	}
	s.logger.Info("Player remembered",
		zap.String("host", host),
		zap.String("name", name),
		zap.String("path", s.path))
	return nil
}

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

// SettingsRepository is the minimal DB interface for settings persistence.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key string, value string) error
}

// SettingsStore manages persistent engine settings with encrypted secrets.
// Inspired by Gitea/Grafana settings architecture: config stored as JSON,
// secrets encrypted at rest, masked on read.
type SettingsStore struct {
	mu     sync.RWMutex
	logger *slog.Logger
	secret *SecretKey
	repo   SettingsRepository
	config *domain.EngineConfig
}

// NewSettingsStore creates a store that loads/saves settings from DB with
// AES-256-GCM encryption for the sink token.
func NewSettingsStore(logger *slog.Logger, repo SettingsRepository, secret *SecretKey) (*SettingsStore, error) {
	store := &SettingsStore{
		logger: logger,
		secret: secret,
		repo:   repo,
	}

	ctx := context.Background()
	cfg, err := store.loadFromDB(ctx)
	if err != nil {
		logger.Warn("no saved settings found, using defaults", "error", err)
		cfg = domain.DefaultConfig()
		if err := store.saveToDB(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	store.config = cfg
	return store, nil
}

// GetConfig returns the current config with decrypted secrets.
func (s *SettingsStore) GetConfig() *domain.EngineConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := *s.config
	return &cp
}

// GetMaskedConfig returns config safe for API response (secrets masked).
func (s *SettingsStore) GetMaskedConfig() *domain.EngineConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := *s.config
	cp.Sink.Token = MaskSecret(s.config.Sink.Token)
	return &cp
}

// UpdateConfig validates, encrypts the sink token, and persists.
// Smart merge: if the token is empty or masked, keeps the existing one.
func (s *SettingsStore) UpdateConfig(ctx context.Context, update *domain.EngineConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Merge: preserve existing secret if update sends empty/masked value
	if update.Sink.Token == "" || isMasked(update.Sink.Token) {
		update.Sink.Token = s.config.Sink.Token
	}

	if update.Monitor.OfflineTimeout <= 0 {
		return fmt.Errorf("monitor offline_timeout must be positive")
	}
	if update.Monitor.StaggerSpacing <= 0 {
		return fmt.Errorf("monitor stagger_spacing must be positive")
	}
	if update.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if wh := update.Limits.WorkingHours; wh.Enabled && wh.StartHour >= wh.EndHour {
		return fmt.Errorf("working hours start must precede end")
	}

	if err := s.saveToDB(ctx, update); err != nil {
		return err
	}

	s.config = update
	s.logger.Info("settings updated",
		"sink_configured", update.Sink.URL != "",
		"working_hours", update.Limits.WorkingHours.Enabled,
	)

	return nil
}

func (s *SettingsStore) loadFromDB(ctx context.Context) (*domain.EngineConfig, error) {
	raw, err := s.repo.GetSetting(ctx, "engine_config")
	if err != nil {
		return nil, err
	}

	var cfg domain.EngineConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if cfg.Sink.Token != "" {
		token, err := s.secret.Decrypt(cfg.Sink.Token)
		if err != nil {
			s.logger.Warn("failed to decrypt sink token", "error", err)
			cfg.Sink.Token = ""
		} else {
			cfg.Sink.Token = token
		}
	}

	return &cfg, nil
}

func (s *SettingsStore) saveToDB(ctx context.Context, cfg *domain.EngineConfig) error {
	stored := *cfg
	if cfg.Sink.Token != "" {
		enc, err := s.secret.Encrypt(cfg.Sink.Token)
		if err != nil {
			return fmt.Errorf("encrypt sink token: %w", err)
		}
		stored.Sink.Token = enc
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	return s.repo.SaveSetting(ctx, "engine_config", string(raw))
}

func isMasked(s string) bool {
	return len(s) >= 4 && s[:4] == "****"
}

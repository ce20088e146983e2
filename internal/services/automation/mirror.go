package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsbridge/control-service/internal/core/cache"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/pkg/encryption"
)

// Mirror keeps an encrypted copy of each session in the shared cache so a
// snapshot stays queryable after the owning process restarts.
type Mirror struct {
	cacheClient cache.Client
	encryptor   encryption.Encryptor
	ttl         time.Duration
}

// MirrorConfig holds the configuration for the session mirror.
type MirrorConfig struct {
	CacheClient cache.Client
	Encryptor   encryption.Encryptor
	TTL         time.Duration
}

// NewMirror creates a session mirror. TTL defaults to DefaultRetention.
func NewMirror(cfg *MirrorConfig) (*Mirror, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.CacheClient == nil {
		return nil, fmt.Errorf("cache client is required")
	}
	if cfg.Encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultRetention
	}

	return &Mirror{
		cacheClient: cfg.CacheClient,
		encryptor:   cfg.Encryptor,
		ttl:         ttl,
	}, nil
}

// MirrorKey is the cache key of a mirrored session.
func MirrorKey(sessionID string) string {
	return "automation:session:" + sessionID
}

// Save seals the session and writes it with the mirror TTL.
func (m *Mirror) Save(ctx context.Context, session *models.AutomationSession) error {
	plain, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	sealed, err := m.encryptor.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("failed to seal session: %w", err)
	}
	if err := m.cacheClient.Set(ctx, MirrorKey(session.ID), []byte(sealed), m.ttl); err != nil {
		return fmt.Errorf("failed to mirror session %s: %w", session.ID, err)
	}
	return nil
}

// Load returns the mirrored session, or nil if absent. Entries that no
// longer open, e.g. after a key rotation, are evicted and read as absent.
func (m *Mirror) Load(ctx context.Context, sessionID string) (*models.AutomationSession, error) {
	key := MirrorKey(sessionID)
	sealed, err := m.cacheClient.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read mirrored session %s: %w", sessionID, err)
	}
	if sealed == nil {
		return nil, nil
	}

	session, ok := m.open(sealed)
	if !ok {
		_, _ = m.cacheClient.Delete(ctx, key)
		return nil, nil
	}
	return session, nil
}

func (m *Mirror) open(sealed []byte) (*models.AutomationSession, bool) {
	plain, err := m.encryptor.Decrypt(string(sealed))
	if err != nil {
		return nil, false
	}
	var session models.AutomationSession
	if err := json.Unmarshal(plain, &session); err != nil {
		return nil, false
	}
	return &session, true
}

// Delete drops the mirrored copy. A missing entry is not an error.
func (m *Mirror) Delete(ctx context.Context, sessionID string) error {
	if _, err := m.cacheClient.Delete(ctx, MirrorKey(sessionID)); err != nil {
		return fmt.Errorf("failed to drop mirrored session %s: %w", sessionID, err)
	}
	return nil
}

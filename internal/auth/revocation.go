package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReasonForceLogout marks a revocation created by the "force logout" action.
const ReasonForceLogout = "force_logout"

// RevocationEntry forces rejection of otherwise-valid tokens for one email
// until it expires.
type RevocationEntry struct {
	Email     string    `json:"email"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RevocationStore holds the blacklist consulted on every token verification.
// Entries disappear once their expiry passes.
type RevocationStore interface {
	Put(ctx context.Context, entry RevocationEntry) error
	Get(ctx context.Context, email string) (RevocationEntry, bool, error)
}

// MemoryRevocations is a mutex-guarded in-process blacklist, used in tests and
// single-node deployments.
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]RevocationEntry
	now     func() time.Time
}

// NewMemoryRevocations constructs an empty in-memory blacklist.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		entries: make(map[string]RevocationEntry),
		now:     time.Now,
	}
}

func (m *MemoryRevocations) Put(ctx context.Context, entry RevocationEntry) error {
	email := strings.TrimSpace(strings.ToLower(entry.Email))
	if email == "" {
		return errors.New("email is required")
	}
	entry.Email = email
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[email] = entry
	return nil
}

func (m *MemoryRevocations) Get(ctx context.Context, email string) (RevocationEntry, bool, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[email]
	if !ok {
		return RevocationEntry{}, false, nil
	}
	if m.now().After(entry.ExpiresAt) {
		delete(m.entries, email)
		return RevocationEntry{}, false, nil
	}
	return entry, true, nil
}

// RedisRevocations keeps the blacklist in Redis; key TTLs implement the
// natural purge of expired entries.
type RedisRevocations struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRevocations connects a blacklist backed by the given Redis instance.
func NewRedisRevocations(addr, password string, db int) (*RedisRevocations, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisRevocations{client: client, now: time.Now}, nil
}

func revocationKey(email string) string {
	return "revoked:" + strings.TrimSpace(strings.ToLower(email))
}

func (r *RedisRevocations) Put(ctx context.Context, entry RevocationEntry) error {
	email := strings.TrimSpace(strings.ToLower(entry.Email))
	if email == "" {
		return errors.New("email is required")
	}
	entry.Email = email
	ttl := entry.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return errors.New("revocation already expired")
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, revocationKey(email), payload, ttl).Err()
}

func (r *RedisRevocations) Get(ctx context.Context, email string) (RevocationEntry, bool, error) {
	raw, err := r.client.Get(ctx, revocationKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return RevocationEntry{}, false, nil
	}
	if err != nil {
		return RevocationEntry{}, false, err
	}
	var entry RevocationEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return RevocationEntry{}, false, err
	}
	return entry, true, nil
}

// Close releases the underlying Redis client.
func (r *RedisRevocations) Close() error { return r.client.Close() }

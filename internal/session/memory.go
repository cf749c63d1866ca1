package session

import (
	"context"
	"sync"
	"time"
)

// MemoryTokens is an in-process TokenTier with per-entry expiry. Expired
// entries are dropped lazily on read, mirroring how cookie expiry behaves
// at the HTTP edge.
type MemoryTokens struct {
	mu      sync.Mutex
	entries map[string]tokenEntry
	now     func() time.Time
}

type tokenEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryTokens constructs an empty in-memory token tier.
func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{entries: make(map[string]tokenEntry), now: time.Now}
}

// SetClockForTests overrides the expiry clock.
func (m *MemoryTokens) SetClockForTests(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now != nil {
		m.now = now
	}
}

func (m *MemoryTokens) Token(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[name]
	if !ok {
		return "", false
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, name)
		return "", false
	}
	return entry.value, true
}

func (m *MemoryTokens) SetToken(name, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = tokenEntry{value: value, expiresAt: m.now().Add(ttl)}
}

func (m *MemoryTokens) DeleteToken(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
}

// MemoryValues is an in-process ValueTier. It backs tests and deployments
// running without Postgres.
type MemoryValues struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemoryValues constructs an empty in-memory value tier.
func NewMemoryValues() *MemoryValues {
	return &MemoryValues{entries: make(map[string][]byte)}
}

func (m *MemoryValues) Value(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, true, nil
}

func (m *MemoryValues) SetValue(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	m.entries[key] = stored
	return nil
}

func (m *MemoryValues) DeleteValue(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len reports the number of stored values; used by tests asserting
// idempotent clears.
func (m *MemoryValues) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

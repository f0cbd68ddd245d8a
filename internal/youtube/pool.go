package youtube

import (
	"log/slog"
	"strings"
	"sync"
)

// CredentialPool rotates through API keys. The cursor and exhausted set are
// shared by every caller of the owning Client.
type CredentialPool struct {
	mu        sync.Mutex
	keys      []string
	cursor    int
	exhausted map[int]bool
}

// NewCredentialPool builds a pool from keys, dropping blank entries.
func NewCredentialPool(keys []string) *CredentialPool {
	p := &CredentialPool{exhausted: make(map[int]bool)}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			p.keys = append(p.keys, k)
		}
	}
	return p
}

func (p *CredentialPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Current returns the first non-exhausted key at or after the cursor along
// with its index. When every key is exhausted the exhausted set is cleared
// and rotation starts over from the cursor. ok is false only for an empty pool.
func (p *CredentialPool) Current() (key string, index int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return "", 0, false
	}
	if len(p.exhausted) >= len(p.keys) {
		slog.Info("all YouTube API keys were exhausted, starting a new rotation")
		p.exhausted = make(map[int]bool)
	}
	for i := 0; i < len(p.keys); i++ {
		idx := (p.cursor + i) % len(p.keys)
		if !p.exhausted[idx] {
			p.cursor = idx
			return p.keys[idx], idx, true
		}
	}
	return "", 0, false
}

// MarkExhausted flags the key at index and moves the cursor to the next
// usable key. It reports whether any usable key remains.
func (p *CredentialPool) MarkExhausted(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.keys) {
		return len(p.exhausted) < len(p.keys)
	}
	p.exhausted[index] = true

	for i := 1; i <= len(p.keys); i++ {
		idx := (index + i) % len(p.keys)
		if !p.exhausted[idx] {
			p.cursor = idx
			return true
		}
	}
	return false
}

func (p *CredentialPool) AllExhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys) > 0 && len(p.exhausted) >= len(p.keys)
}

// Reset clears exhaustion and returns the cursor to the first key.
func (p *CredentialPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = 0
	p.exhausted = make(map[int]bool)
}

// PoolStats is a point-in-time view of the rotation state.
type PoolStats struct {
	Total     int `json:"total"`
	Exhausted int `json:"exhausted"`
	Current   int `json:"current_index"`
}

func (p *CredentialPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Total: len(p.keys), Exhausted: len(p.exhausted), Current: p.cursor}
}

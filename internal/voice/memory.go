package voice

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultMemoryPath is the working-directory-relative memory location used
// when the home directory cannot be determined; otherwise memoryPath in
// cmd/agent/main.go uses ~/.cua/memory.json.
const DefaultMemoryPath = ".cua/memory.json"

// Memory is the persisted list of short user fact strings, de-duplicated
// case-insensitively and appended in insertion order (spec.md §3). Shared,
// process-wide, internally synchronized; every Add flushes to disk.
type Memory struct {
	path string

	mu    sync.Mutex
	facts []string
	seen  map[string]bool
}

// NewMemory loads existing facts from path (if present) and returns a ready
// Memory store. A missing file is not an error — memory starts empty.
func NewMemory(path string) (*Memory, error) {
	m := &Memory{path: path, seen: make(map[string]bool)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("voice: read memory file %q: %w", path, err)
	}

	var facts []string
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("voice: parse memory file %q: %w", path, err)
	}
	for _, f := range facts {
		key := strings.ToLower(strings.TrimSpace(f))
		if key == "" || m.seen[key] {
			continue
		}
		m.seen[key] = true
		m.facts = append(m.facts, f)
	}
	return m, nil
}

// Add appends fact if it is not a case-insensitive duplicate of an existing
// fact, then flushes the store to disk. Returns whether the fact was newly
// added.
func (m *Memory) Add(fact string) (bool, error) {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return false, nil
	}
	key := strings.ToLower(fact)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	m.facts = append(m.facts, fact)

	if err := m.flushLocked(); err != nil {
		// Roll back so a failed flush doesn't leave memory inconsistent with disk.
		m.facts = m.facts[:len(m.facts)-1]
		delete(m.seen, key)
		return false, err
	}
	return true, nil
}

// Facts returns a copy of all persisted facts, in insertion order.
func (m *Memory) Facts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.facts))
	copy(out, m.facts)
	return out
}

// flushLocked writes the current fact list to m.path, ensuring the parent
// directory exists first (spec.md §6: "the parent directory must be
// ensured"). Must be called with m.mu held.
func (m *Memory) flushLocked() error {
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("voice: ensure memory dir %q: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(m.facts, "", "  ")
	if err != nil {
		return fmt.Errorf("voice: marshal memory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("voice: write memory file %q: %w", m.path, err)
	}
	return nil
}

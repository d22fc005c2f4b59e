package voice

import (
	"sync"
	"time"

	"github.com/vox-cua/agent/pkg/types"
)

// SessionContextCapacity is the maximum number of lines the rolling
// conversational log retains (spec.md §3: "≤ 10 lines").
const SessionContextCapacity = 10

// SessionContext is a bounded ring of recent "User: …" / "Agent: …" lines,
// oldest evicted first. Shared, process-wide, internally synchronized
// (spec.md §5). Grounded on the teacher's session.ContextManager, simplified
// from token-budget summarisation down to the spec's fixed-length deque —
// this system has no long-running multi-hour conversation to summarise, just
// the last handful of voice turns.
type SessionContext struct {
	mu      sync.Mutex
	entries []types.TranscriptEntry
}

// NewSessionContext returns an empty SessionContext.
func NewSessionContext() *SessionContext {
	return &SessionContext{entries: make([]types.TranscriptEntry, 0, SessionContextCapacity)}
}

// AddUser appends a "User: …" line, evicting the oldest entry if full.
func (c *SessionContext) AddUser(text string, ts time.Time) {
	c.add(types.TranscriptEntry{Speaker: "User", Text: text, Timestamp: ts})
}

// AddAgent appends an "Agent: …" line, evicting the oldest entry if full.
func (c *SessionContext) AddAgent(text string, ts time.Time) {
	c.add(types.TranscriptEntry{Speaker: "Agent", Text: text, Timestamp: ts})
}

func (c *SessionContext) add(e types.TranscriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	if len(c.entries) > SessionContextCapacity {
		c.entries = c.entries[len(c.entries)-SessionContextCapacity:]
	}
}

// Lines returns the current rolling log as "Speaker: text" strings, oldest
// first.
func (c *SessionContext) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Speaker + ": " + e.Text
	}
	return out
}

// Len reports the number of lines currently held.
func (c *SessionContext) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

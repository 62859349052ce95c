package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// contextSnapshot is one immutable link in a subject's context chain:
// the accumulated understanding after one session's Stage 2 completed.
// Prev indexes the previous link in the arena (-1 for the first).
type contextSnapshot struct {
	SessionID   string
	SessionDate time.Time
	Stage1      json.RawMessage
	Stage2      json.RawMessage
	Prev        int
}

// contextChain holds a subject's snapshots in an arena indexed by ref.
// The chain is append-only and snapshots are never mutated, so the
// structure stays flat in memory even though each Stage 2 call sees the
// full nested history of everything before it.
type contextChain struct {
	arena []contextSnapshot
}

func newContextChain() *contextChain {
	return &contextChain{}
}

// Extend appends a snapshot linked to prev and returns its ref.
func (c *contextChain) Extend(prev int, snapshot contextSnapshot) int {
	snapshot.Prev = prev
	c.arena = append(c.arena, snapshot)
	return len(c.arena) - 1
}

// Head returns the ref of the most recent snapshot, or -1 when empty.
func (c *contextChain) Head() int {
	return len(c.arena) - 1
}

// Render walks the chain from ref back to the first session and renders
// the accumulated context oldest-first for the next Stage 2 call.
// Returns "" for ref < 0, the degraded "no prior context" case.
func (c *contextChain) Render(ref int) string {
	if ref < 0 || ref >= len(c.arena) {
		return ""
	}
	refs := make([]int, 0, ref+1)
	for i := ref; i >= 0 && i < len(c.arena); i = c.arena[i].Prev {
		refs = append(refs, i)
	}

	var b strings.Builder
	b.WriteString("Accumulated context from prior sessions, oldest first:\n")
	for i := len(refs) - 1; i >= 0; i-- {
		snapshot := c.arena[refs[i]]
		fmt.Fprintf(&b, "\n--- Session %s (%s) ---\n", snapshot.SessionID, snapshot.SessionDate.Format("2006-01-02"))
		if len(snapshot.Stage1) > 0 {
			fmt.Fprintf(&b, "Per-session analysis: %s\n", snapshot.Stage1)
		}
		if len(snapshot.Stage2) > 0 {
			fmt.Fprintf(&b, "Synthesis: %s\n", snapshot.Stage2)
		}
	}
	return b.String()
}

// Len returns the number of snapshots in the arena.
func (c *contextChain) Len() int {
	return len(c.arena)
}

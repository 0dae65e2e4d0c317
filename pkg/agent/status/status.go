// Package status tracks live per-session agent progress for external
// pollers. It is a side-effect sink: nothing here may block or fail the
// agent loop.
package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle          State = "idle"
	StateThinking      State = "thinking"
	StateExecutingTool State = "executing_tool"
	StateGenerating    State = "generating_response"
	StateComplete      State = "complete"
	StateError         State = "error"
)

// CompletedTool is one finished tool call. The list is append-only.
type CompletedTool struct {
	Name      string    `json:"name"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionStatus is the current snapshot for one session.
type SessionStatus struct {
	SessionID       string          `json:"sessionId"`
	Status          State           `json:"status"`
	CurrentTool     string          `json:"currentTool,omitempty"`
	CurrentToolArgs map[string]any  `json:"currentToolArgs,omitempty"`
	ToolsCompleted  []CompletedTool `json:"toolsCompleted"`
	StatusMessage   string          `json:"statusMessage,omitempty"`
	Error           string          `json:"error,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type row struct {
	mu     sync.Mutex
	status SessionStatus
}

// Tracker holds session rows keyed by id. Rows lock independently so
// concurrent sessions never contend with each other.
type Tracker struct {
	mu   sync.RWMutex
	rows map[string]*row
	log  logr.Logger
	now  func() time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker(log logr.Logger) *Tracker {
	return &Tracker{
		rows: make(map[string]*row),
		log:  log,
		now:  time.Now,
	}
}

// StartSession creates or resets the session row. Reusing an id is an
// idempotent restart, even from complete or error.
func (t *Tracker) StartSession(id string) {
	t.update(id, func(s *SessionStatus) {
		*s = SessionStatus{
			SessionID:      id,
			Status:         StateThinking,
			ToolsCompleted: []CompletedTool{},
			StatusMessage:  "Analyzing your question...",
		}
	})
}

// StartTool transitions to executing_tool with a per-tool progress message.
func (t *Tracker) StartTool(id, name string, args map[string]any) {
	t.update(id, func(s *SessionStatus) {
		s.Status = StateExecutingTool
		s.CurrentTool = name
		s.CurrentToolArgs = args
		s.StatusMessage = toolMessage(name, args)
		s.Error = ""
	})
}

// CompleteTool appends to toolsCompleted and returns to thinking.
func (t *Tracker) CompleteTool(id, name string, success bool) {
	t.update(id, func(s *SessionStatus) {
		s.ToolsCompleted = append(s.ToolsCompleted, CompletedTool{
			Name:      name,
			Success:   success,
			Timestamp: t.now(),
		})
		s.Status = StateThinking
		s.CurrentTool = ""
		s.CurrentToolArgs = nil
		s.StatusMessage = "Analyzing your question..."
	})
}

// GeneratingResponse marks the final answer being produced.
func (t *Tracker) GeneratingResponse(id string) {
	t.update(id, func(s *SessionStatus) {
		s.Status = StateGenerating
		s.CurrentTool = ""
		s.CurrentToolArgs = nil
		s.StatusMessage = "Writing the answer..."
	})
}

// CompleteSession is the terminal success state.
func (t *Tracker) CompleteSession(id string) {
	t.update(id, func(s *SessionStatus) {
		s.Status = StateComplete
		s.CurrentTool = ""
		s.CurrentToolArgs = nil
		s.StatusMessage = ""
	})
}

// ErrorSession records a terminal failure with its message.
func (t *Tracker) ErrorSession(id, message string) {
	t.update(id, func(s *SessionStatus) {
		s.Status = StateError
		s.CurrentTool = ""
		s.CurrentToolArgs = nil
		s.StatusMessage = ""
		s.Error = message
	})
}

// Get returns a copy of the current snapshot.
func (t *Tracker) Get(id string) (SessionStatus, bool) {
	t.mu.RLock()
	r, ok := t.rows[id]
	t.mu.RUnlock()
	if !ok {
		return SessionStatus{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.status
	snap.ToolsCompleted = append([]CompletedTool(nil), r.status.ToolsCompleted...)
	return snap, true
}

// Sweep removes rows untouched for longer than the retention window and
// returns how many were removed. Run by a periodic sweeper, not the loop.
func (t *Tracker) Sweep(retention time.Duration) int {
	cutoff := t.now().Add(-retention)

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, r := range t.rows {
		r.mu.Lock()
		stale := r.status.UpdatedAt.Before(cutoff)
		r.mu.Unlock()
		if stale {
			delete(t.rows, id)
			removed++
		}
	}
	if removed > 0 {
		t.log.V(1).Info("swept stale sessions", "removed", removed)
	}
	return removed
}

func (t *Tracker) update(id string, apply func(*SessionStatus)) {
	t.mu.Lock()
	r, ok := t.rows[id]
	if !ok {
		r = &row{status: SessionStatus{SessionID: id, Status: StateIdle, ToolsCompleted: []CompletedTool{}}}
		t.rows[id] = r
	}
	t.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	apply(&r.status)
	r.status.UpdatedAt = t.now()
}

func toolMessage(name string, args map[string]any) string {
	switch name {
	case "geocode_address":
		if addr, ok := args["address"].(string); ok && addr != "" {
			return fmt.Sprintf("Looking up %s...", addr)
		}
		return "Looking up the address..."
	case "lookup_zoning":
		return "Checking the zoning map..."
	case "calculate_parking":
		if use, ok := args["useType"].(string); ok && use != "" {
			return fmt.Sprintf("Calculating parking requirements for %s use...", use)
		}
		return "Calculating parking requirements..."
	case "query_documents":
		return "Searching planning documents..."
	default:
		return fmt.Sprintf("Running %s...", name)
	}
}

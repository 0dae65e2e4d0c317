package status

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertInvariant(t *testing.T, s SessionStatus) {
	t.Helper()
	if s.Status == StateExecutingTool {
		assert.NotEmpty(t, s.CurrentTool, "executing_tool requires currentTool")
	} else {
		assert.Empty(t, s.CurrentTool, "currentTool must be cleared outside executing_tool")
		assert.Nil(t, s.CurrentToolArgs)
	}
}

func TestTracker_FullLifecycle(t *testing.T) {
	tr := NewTracker(logr.Discard())
	tr.StartSession("s1")

	s, ok := tr.Get("s1")
	require.True(t, ok)
	assert.Equal(t, StateThinking, s.Status)
	assert.Empty(t, s.ToolsCompleted)
	assertInvariant(t, s)

	tr.StartTool("s1", "geocode_address", map[string]any{"address": "809 N Broadway"})
	s, _ = tr.Get("s1")
	assert.Equal(t, StateExecutingTool, s.Status)
	assert.Equal(t, "geocode_address", s.CurrentTool)
	assert.Equal(t, "Looking up 809 N Broadway...", s.StatusMessage)
	assertInvariant(t, s)

	tr.CompleteTool("s1", "geocode_address", true)
	s, _ = tr.Get("s1")
	assert.Equal(t, StateThinking, s.Status)
	require.Len(t, s.ToolsCompleted, 1)
	assert.Equal(t, "geocode_address", s.ToolsCompleted[0].Name)
	assert.True(t, s.ToolsCompleted[0].Success)
	assertInvariant(t, s)

	tr.GeneratingResponse("s1")
	s, _ = tr.Get("s1")
	assert.Equal(t, StateGenerating, s.Status)
	assertInvariant(t, s)

	tr.CompleteSession("s1")
	s, _ = tr.Get("s1")
	assert.Equal(t, StateComplete, s.Status)
	assertInvariant(t, s)
}

func TestTracker_StartSessionIsIdempotentRestart(t *testing.T) {
	tr := NewTracker(logr.Discard())

	for _, terminal := range []func(){
		func() { tr.CompleteSession("s1") },
		func() { tr.ErrorSession("s1", "boom") },
	} {
		tr.StartSession("s1")
		tr.StartTool("s1", "lookup_zoning", nil)
		tr.CompleteTool("s1", "lookup_zoning", false)
		terminal()

		tr.StartSession("s1")
		s, ok := tr.Get("s1")
		require.True(t, ok)
		assert.Equal(t, StateThinking, s.Status)
		assert.Empty(t, s.ToolsCompleted, "restart must reset toolsCompleted")
		assert.Empty(t, s.Error)
		assertInvariant(t, s)
	}
}

func TestTracker_ErrorClearsToolState(t *testing.T) {
	tr := NewTracker(logr.Discard())
	tr.StartSession("s1")
	tr.StartTool("s1", "query_documents", map[string]any{"question": "q"})

	tr.ErrorSession("s1", "all candidate models exhausted")
	s, _ := tr.Get("s1")
	assert.Equal(t, StateError, s.Status)
	assert.Equal(t, "all candidate models exhausted", s.Error)
	assertInvariant(t, s)
}

func TestTracker_ToolMessages(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"geocode_address", map[string]any{"address": "500 W Oklahoma Ave"}, "Looking up 500 W Oklahoma Ave..."},
		{"geocode_address", nil, "Looking up the address..."},
		{"lookup_zoning", nil, "Checking the zoning map..."},
		{"calculate_parking", map[string]any{"useType": "restaurant"}, "Calculating parking requirements for restaurant use..."},
		{"query_documents", nil, "Searching planning documents..."},
		{"mystery_tool", nil, "Running mystery_tool..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toolMessage(tt.name, tt.args))
	}
}

func TestTracker_GetUnknownSession(t *testing.T) {
	tr := NewTracker(logr.Discard())
	_, ok := tr.Get("nope")
	assert.False(t, ok)
}

func TestTracker_SnapshotIsACopy(t *testing.T) {
	tr := NewTracker(logr.Discard())
	tr.StartSession("s1")
	tr.StartTool("s1", "lookup_zoning", nil)
	tr.CompleteTool("s1", "lookup_zoning", true)

	s, _ := tr.Get("s1")
	s.ToolsCompleted[0].Name = "tampered"

	again, _ := tr.Get("s1")
	assert.Equal(t, "lookup_zoning", again.ToolsCompleted[0].Name)
}

func TestTracker_Sweep(t *testing.T) {
	tr := NewTracker(logr.Discard())
	now := time.Now()
	tr.now = func() time.Time { return now }

	tr.StartSession("old")
	tr.CompleteSession("old")

	tr.now = func() time.Time { return now.Add(2 * time.Hour) }
	tr.StartSession("fresh")

	removed := tr.Sweep(time.Hour)
	assert.Equal(t, 1, removed)

	_, ok := tr.Get("old")
	assert.False(t, ok)
	_, ok = tr.Get("fresh")
	assert.True(t, ok)
}

func TestTracker_ConcurrentSessionsDoNotInterfere(t *testing.T) {
	tr := NewTracker(logr.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", n)
			tr.StartSession(id)
			for j := 0; j < 50; j++ {
				tr.StartTool(id, "lookup_zoning", nil)
				tr.CompleteTool(id, "lookup_zoning", true)
			}
			tr.CompleteSession(id)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		s, ok := tr.Get(fmt.Sprintf("s%d", i))
		require.True(t, ok)
		assert.Equal(t, StateComplete, s.Status)
		assert.Len(t, s.ToolsCompleted, 50)
		assertInvariant(t, s)
	}
}

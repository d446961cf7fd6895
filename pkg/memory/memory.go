// Package memory holds per-session conversation history and derived
// request context.
package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/tiktoken-go/tokenizer"

	"nbagent/pkg/logx"
	"nbagent/pkg/notebook"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid reports whether r is one of the defined roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ConversationTurn is one message in the dialogue. Immutable once
// appended.
type ConversationTurn struct {
	Role        Role
	Content     string
	Suggestions []notebook.Suggestion
	Timestamp   time.Time
	Metadata    map[string]any
}

// RelevantContext is the derived context handed to prompt construction
// for one query.
type RelevantContext struct {
	RecentTurns       []ConversationTurn
	Notebook          *notebook.Context
	RecentSuggestions []notebook.Suggestion
	RelevantVariables map[string]any
}

// Summary reports aggregate memory state.
type Summary struct {
	TotalTurns         int
	TotalSuggestions   int
	StepResults        int
	HasNotebookContext bool
}

type stepResult struct {
	result    any
	timestamp time.Time
}

// DefaultMaxHistory is the turn capacity used when none is configured.
const DefaultMaxHistory = 100

// recentTurnWindow bounds how many turns feed RelevantContext.
const recentTurnWindow = 10

// recentSuggestionWindow bounds how many suggestions feed RelevantContext.
const recentSuggestionWindow = 5

// Memory is a bounded FIFO of conversation turns plus suggestion
// history and step results. Turns beyond capacity evict the oldest; the
// step-result map is deliberately unbounded so execution provenance
// survives turn eviction.
type Memory struct {
	mu                sync.Mutex
	maxHistory        int
	turns             []ConversationTurn
	nbContext         *notebook.Context
	suggestionHistory []notebook.Suggestion
	stepResults       map[string]stepResult

	codec     tokenizer.Codec
	codecOnce sync.Once
	logger    *logx.Logger
}

// New creates a memory bounded to maxHistory turns. Non-positive values
// use DefaultMaxHistory.
func New(maxHistory int) *Memory {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Memory{
		maxHistory:  maxHistory,
		stepResults: make(map[string]stepResult),
		logger:      logx.NewLogger("memory"),
	}
}

// MaxHistory returns the configured turn capacity.
func (m *Memory) MaxHistory() int {
	return m.maxHistory
}

// AddTurn appends a turn, evicting the oldest when at capacity, and
// extends the suggestion history.
func (m *Memory) AddTurn(role Role, content string, suggestions []notebook.Suggestion, metadata map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	turn := ConversationTurn{
		Role:        role,
		Content:     content,
		Suggestions: suggestions,
		Timestamp:   time.Now(),
		Metadata:    metadata,
	}

	if len(m.turns) >= m.maxHistory {
		m.turns = m.turns[1:]
	}
	m.turns = append(m.turns, turn)
	m.suggestionHistory = append(m.suggestionHistory, suggestions...)
}

// RecentTurns returns the last n turns, most recent last.
func (m *Memory) RecentTurns(n int) []ConversationTurn {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > len(m.turns) {
		n = len(m.turns)
	}
	return append([]ConversationTurn(nil), m.turns[len(m.turns)-n:]...)
}

// Len returns the current number of stored turns.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// UpdateNotebookContext replaces the stored notebook snapshot.
func (m *Memory) UpdateNotebookContext(nbCtx *notebook.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nbContext = nbCtx
}

// NotebookContext returns the latest snapshot, or nil.
func (m *Memory) NotebookContext() *notebook.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nbContext
}

// RelevantContext assembles the context for one query: recent turns,
// the latest notebook snapshot, the last few suggestions, and a
// heuristic subset of notebook variables. A variable is relevant when
// its name appears in the query or looks like a dataframe.
func (m *Memory) RelevantContext(query string) RelevantContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := recentTurnWindow
	if n > len(m.turns) {
		n = len(m.turns)
	}

	rc := RelevantContext{
		RecentTurns: append([]ConversationTurn(nil), m.turns[len(m.turns)-n:]...),
		Notebook:    m.nbContext,
	}

	if len(m.suggestionHistory) > 0 {
		start := len(m.suggestionHistory) - recentSuggestionWindow
		if start < 0 {
			start = 0
		}
		rc.RecentSuggestions = append([]notebook.Suggestion(nil), m.suggestionHistory[start:]...)
	}

	if m.nbContext != nil && len(m.nbContext.Variables) > 0 {
		lowerQuery := strings.ToLower(query)
		relevant := make(map[string]any)
		for name, value := range m.nbContext.Variables {
			if strings.Contains(lowerQuery, strings.ToLower(name)) || strings.HasPrefix(name, "df") {
				relevant[name] = value
			}
		}
		rc.RelevantVariables = relevant
	}

	return rc
}

// StoreStepResult records a step outcome. Not subject to turn eviction.
func (m *Memory) StoreStepResult(stepID string, result any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepResults[stepID] = stepResult{result: result, timestamp: time.Now()}
}

// StepResult returns a previously stored step outcome.
func (m *Memory) StepResult(stepID string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sr, ok := m.stepResults[stepID]
	if !ok {
		return nil, false
	}
	return sr.result, true
}

// Clear empties turns, suggestion history and step results. The
// capacity setting and the notebook snapshot survive.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	m.suggestionHistory = nil
	m.stepResults = make(map[string]stepResult)
}

// Summarize reports aggregate memory state.
func (m *Memory) Summarize() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Summary{
		TotalTurns:         len(m.turns),
		TotalSuggestions:   len(m.suggestionHistory),
		StepResults:        len(m.stepResults),
		HasNotebookContext: m.nbContext != nil,
	}
}

// TokenCount estimates the token footprint of the stored turns using
// the GPT-4 BPE. When the codec cannot be built, a bytes/4 estimate is
// used instead.
func (m *Memory) TokenCount() int {
	m.ensureCodec()
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, turn := range m.turns {
		total += m.countTokens(turn.Content)
	}
	return total
}

// TurnsWithinBudget returns the longest suffix of turns whose combined
// token footprint fits budget, most recent last. Older turns are the
// first to go. A non-positive budget returns nil.
func (m *Memory) TurnsWithinBudget(budget int) []ConversationTurn {
	m.ensureCodec()
	m.mu.Lock()
	defer m.mu.Unlock()

	if budget <= 0 {
		return nil
	}

	total := 0
	start := len(m.turns)
	for i := len(m.turns) - 1; i >= 0; i-- {
		total += m.countTokens(m.turns[i].Content)
		if total > budget {
			break
		}
		start = i
	}
	if start == len(m.turns) {
		return nil
	}
	return append([]ConversationTurn(nil), m.turns[start:]...)
}

func (m *Memory) ensureCodec() {
	m.codecOnce.Do(func() {
		codec, err := tokenizer.ForModel(tokenizer.GPT4)
		if err != nil {
			m.logger.Warn("tokenizer unavailable, falling back to byte estimate: %v", err)
			return
		}
		m.codec = codec
	})
}

func (m *Memory) countTokens(s string) int {
	if m.codec != nil {
		if count, err := m.codec.Count(s); err == nil {
			return count
		}
	}
	return len(s) / 4
}

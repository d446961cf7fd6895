package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nbagent/pkg/agent"
	"nbagent/pkg/agent/llm"
	"nbagent/pkg/agent/llmerrors"
	"nbagent/pkg/config"
	"nbagent/pkg/notebook"
	"nbagent/pkg/planner"
)

func testConfig() config.AgentConfig {
	return config.AgentConfig{
		DefaultModel:    "mock/test-model",
		SafetyTier:      "balanced",
		RequireApproval: true,
		MaxHistory:      50,
		Temperature:     0.7,
		MaxTokens:       1024,
	}
}

func newTestOrchestrator(mock *agent.MockClient, streaming bool) (*Orchestrator, *notebook.SimRuntime) {
	registry := agent.NewRegistry()
	registry.RegisterClient("mock", mock, streaming)
	sim := notebook.NewSimRuntime()
	o := New("test-session", testConfig(), agent.NewStreamer(registry), sim)
	return o, sim
}

func TestProcessRequestEndToEnd(t *testing.T) {
	mock := agent.NewMockClient([]llm.CompletionResponse{
		{Content: "Here you go:\n```python\ndef compute_tax(income):\n    return income * 0.2\n```"},
	}, nil)
	o, _ := newTestOrchestrator(mock, false)

	resp, err := o.ProcessRequest(context.Background(), Request{
		Message: "create a function called compute_tax",
	})
	require.NoError(t, err)

	require.Len(t, resp.Plan, 1)
	assert.Equal(t, "Create function compute_tax", resp.Plan[0].Description)

	require.Len(t, resp.Suggestions, 1)
	suggestion := resp.Suggestions[0]
	assert.Equal(t, notebook.SuggestionNewCell, suggestion.Kind)
	assert.Equal(t, "def compute_tax(income):\n    return income * 0.2", suggestion.Code)
	assert.NoError(t, suggestion.Validate())

	assert.Equal(t,
		"I've created code to Create function compute_tax. Click 'Apply' to add it to your notebook.",
		resp.Message)
	assert.True(t, resp.RequiresApproval)

	require.NotNil(t, resp.Plan[0].Suggestion, "suggestion must be attached to its step")

	turns := o.Memory().RecentTurns(10)
	require.Len(t, turns, 2)
	assert.Equal(t, "create a function called compute_tax", turns[0].Content)
	assert.Equal(t, resp.Message, turns[1].Content)
}

func TestRequiresApprovalHonorsAutoExecute(t *testing.T) {
	mock := agent.NewMockClient([]llm.CompletionResponse{
		{Content: "```python\nx = 1\n```"},
	}, nil)
	o, _ := newTestOrchestrator(mock, false)

	resp, err := o.ProcessRequest(context.Background(), Request{
		Message:     "say hi",
		AutoExecute: true,
	})
	require.NoError(t, err)
	assert.False(t, resp.RequiresApproval)
	assert.True(t, resp.Suggestions[0].AutoExecute)
}

func TestGenerationFailureYieldsPlaceholderSuggestion(t *testing.T) {
	mock := agent.NewMockClient(nil, []error{errors.New("backend down")})
	o, _ := newTestOrchestrator(mock, false)

	resp, err := o.ProcessRequest(context.Background(), Request{Message: "do something"})
	require.NoError(t, err, "generation failures must not abort the request")

	require.Len(t, resp.Suggestions, 1)
	assert.Contains(t, resp.Suggestions[0].Code, "# Code generation failed: backend down")
}

func TestConfigurationErrorPropagates(t *testing.T) {
	mock := agent.NewMockClient(nil, nil)
	o, _ := newTestOrchestrator(mock, false)

	_, err := o.ProcessRequest(context.Background(), Request{
		Message: "do something",
		Model:   "bedrock/titan",
	})
	require.Error(t, err)
	assert.True(t, llmerrors.IsConfiguration(err))
}

func TestUnsafeCodeAnnotatedNotDiscarded(t *testing.T) {
	mock := agent.NewMockClient([]llm.CompletionResponse{
		{Content: "```python\nimport os\nos.system('ls')\n```"},
	}, nil)
	o, _ := newTestOrchestrator(mock, false)

	resp, err := o.ProcessRequest(context.Background(), Request{Message: "list files please"})
	require.NoError(t, err)

	require.Len(t, resp.Suggestions, 1)
	code := resp.Suggestions[0].Code
	assert.Contains(t, code, "# SAFETY: flagged as unsafe")
	assert.Contains(t, code, "os.system('ls')", "flagged code is surfaced, never dropped")
}

func TestNoCodeInResponseMeansNoSuggestion(t *testing.T) {
	mock := agent.NewMockClient([]llm.CompletionResponse{
		{Content: "I cannot help with that."},
	}, nil)
	o, _ := newTestOrchestrator(mock, false)

	resp, err := o.ProcessRequest(context.Background(), Request{Message: "do something"})
	require.NoError(t, err)
	assert.Empty(t, resp.Suggestions)
	assert.Equal(t,
		"I couldn't generate any code suggestions for your request. Could you provide more details?",
		resp.Message)
}

func TestExecutePlanContinuesPastMissingSuggestion(t *testing.T) {
	mock := agent.NewMockClient(nil, nil)
	o, _ := newTestOrchestrator(mock, false)

	plan := []*planner.ExecutionStep{
		{ID: "s1", Description: "first", Status: planner.StatusPending,
			Suggestion: &notebook.Suggestion{Kind: notebook.SuggestionNewCell, Code: "x = 1"}},
		{ID: "s2", Description: "second", Status: planner.StatusPending},
		{ID: "s3", Description: "third", Status: planner.StatusPending,
			Suggestion: &notebook.Suggestion{Kind: notebook.SuggestionNewCell, Code: "y = 2"}},
	}

	result := o.ExecutePlan(context.Background(), plan)

	assert.Equal(t, planner.StatusComplete, plan[0].Status)
	assert.Equal(t, planner.StatusError, plan[1].Status)
	assert.Equal(t, "No suggestion generated for step", plan[1].Error)
	assert.Equal(t, planner.StatusComplete, plan[2].Status)

	assert.Equal(t, 3, result.Summary.TotalSteps)
	assert.Equal(t, 2, result.Summary.Completed)
	assert.Equal(t, 1, result.Summary.Errors)

	stored, ok := o.Memory().StepResult("s1")
	require.True(t, ok, "step results are stored in memory")
	assert.True(t, stored.(ExecutionResult).Success)
}

func TestExecutePlanRecordsRuntimeFailure(t *testing.T) {
	mock := agent.NewMockClient(nil, nil)
	o, _ := newTestOrchestrator(mock, false)

	plan := []*planner.ExecutionStep{
		{ID: "s1", Description: "delete missing cell", Status: planner.StatusPending,
			Suggestion: &notebook.Suggestion{Kind: notebook.SuggestionDeleteCell, CellID: "ghost"}},
	}

	result := o.ExecutePlan(context.Background(), plan)

	assert.Equal(t, planner.StatusError, plan[0].Status)
	assert.NotEmpty(t, plan[0].Error)
	assert.Equal(t, 1, result.Summary.Errors)
}

func TestExecuteSuggestionAutoExecutes(t *testing.T) {
	mock := agent.NewMockClient(nil, nil)
	o, sim := newTestOrchestrator(mock, false)

	result := o.ExecuteSuggestion(context.Background(), notebook.Suggestion{
		Kind:        notebook.SuggestionNewCell,
		Code:        "x = 1",
		AutoExecute: true,
	})

	require.True(t, result.Success)
	assert.True(t, result.Executed)
	require.Contains(t, result.Outcomes, result.CellID)
	assert.True(t, result.Outcomes[result.CellID].Success)

	_, ok, err := sim.GetCellOutput(context.Background(), result.CellID)
	require.NoError(t, err)
	assert.True(t, ok, "auto-executed cell must have output")
}

func TestStreamResponseForwardsFragments(t *testing.T) {
	mock := agent.NewMockClient(nil, nil)
	mock.ScriptStream([]string{"def add(a, b):", "\n    return a + b"}, nil)
	o, _ := newTestOrchestrator(mock, true)

	ch, err := o.StreamResponse(context.Background(), Request{Message: "create a function called add"})
	require.NoError(t, err)

	var fragments []string
	for fragment := range ch {
		fragments = append(fragments, fragment)
	}
	require.Equal(t, []string{"def add(a, b):", "\n    return a + b"}, fragments)

	turns := o.Memory().RecentTurns(10)
	require.Len(t, turns, 2)
	assert.Equal(t, "def add(a, b):\n    return a + b", turns[1].Content)
}

func TestStreamResponseDegradesWithoutStreaming(t *testing.T) {
	mock := agent.NewMockClient([]llm.CompletionResponse{
		{Content: "```python\ndef add(a, b):\n    return a + b\n```"},
	}, nil)
	o, _ := newTestOrchestrator(mock, false)

	ch, err := o.StreamResponse(context.Background(), Request{Message: "create a function called add"})
	require.NoError(t, err)

	var fragments []string
	for fragment := range ch {
		fragments = append(fragments, fragment)
	}
	require.Len(t, fragments, 1, "degraded path emits the whole reply as one fragment")
	assert.Equal(t,
		"I've created code to Create function add. Click 'Apply' to add it to your notebook.",
		fragments[0])
}

func TestStreamResponseContainsMidStreamFailure(t *testing.T) {
	mock := agent.NewMockClient(nil, nil)
	mock.ScriptStream([]string{"partial"}, fmt.Errorf("connection reset"))
	o, _ := newTestOrchestrator(mock, true)

	ch, err := o.StreamResponse(context.Background(), Request{Message: "create a function called add"})
	require.NoError(t, err)

	var fragments []string
	for fragment := range ch {
		fragments = append(fragments, fragment)
	}
	require.Len(t, fragments, 2)
	assert.Equal(t, "partial", fragments[0])
	assert.Contains(t, fragments[1], "connection reset")
}

func TestAbandonedStreamReleasesSession(t *testing.T) {
	mock := agent.NewMockClient(nil, nil)
	mock.ScriptStream([]string{"def add(a, b):", "\n    return a + b", "\n", "# done"}, nil)
	o, _ := newTestOrchestrator(mock, true)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := o.StreamResponse(ctx, Request{Message: "create a function called add"})
	require.NoError(t, err)

	first, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "def add(a, b):", first)

	// Walk away from the stream without draining it.
	cancel()

	cleared := make(chan struct{})
	go func() {
		o.Clear()
		close(cleared)
	}()
	select {
	case <-cleared:
	case <-time.After(2 * time.Second):
		t.Fatal("session still locked after the stream was abandoned")
	}

	// The session keeps serving requests afterwards.
	resp, err := o.ProcessRequest(context.Background(), Request{Message: "do something"})
	require.NoError(t, err)
	require.NotNil(t, resp)
}

func TestPriorConversationReplayedToBackend(t *testing.T) {
	mock := agent.NewMockClient([]llm.CompletionResponse{
		{Content: "```python\nx = 1\n```"},
		{Content: "```python\ny = 2\n```"},
	}, nil)
	o, _ := newTestOrchestrator(mock, false)

	first, err := o.ProcessRequest(context.Background(), Request{Message: "define x"})
	require.NoError(t, err)

	_, err = o.ProcessRequest(context.Background(), Request{Message: "now define y"})
	require.NoError(t, err)

	reqs := mock.Requests()
	require.Len(t, reqs, 2)

	second := reqs[1].Messages
	require.Len(t, second, 4, "system, prior exchange, then the step prompt")
	assert.Equal(t, llm.RoleSystem, second[0].Role)
	assert.Equal(t, llm.RoleUser, second[1].Role)
	assert.Equal(t, "define x", second[1].Content)
	assert.Equal(t, llm.RoleAssistant, second[2].Role)
	assert.Equal(t, first.Message, second[2].Content)
	assert.Equal(t, llm.RoleUser, second[3].Role)
}

func TestClearIsIdempotent(t *testing.T) {
	mock := agent.NewMockClient([]llm.CompletionResponse{
		{Content: "```python\nx = 1\n```"},
	}, nil)
	o, _ := newTestOrchestrator(mock, false)

	_, err := o.ProcessRequest(context.Background(), Request{Message: "say hi"})
	require.NoError(t, err)
	require.NotZero(t, o.Memory().Len())

	o.Clear()
	assert.Zero(t, o.Memory().Len())
	assert.Empty(t, o.Planner().Plan())

	o.Clear()
	assert.Zero(t, o.Memory().Len())
}

func TestModifyRequestUsesActiveCell(t *testing.T) {
	mock := agent.NewMockClient([]llm.CompletionResponse{
		{Content: "```python\nx = 2\n```"},
	}, nil)
	o, _ := newTestOrchestrator(mock, false)

	nbCtx := &notebook.Context{
		ActiveCellID: "c1",
		CellCodes:    map[notebook.CellID]string{"c1": "x = 1"},
	}
	resp, err := o.ProcessRequest(context.Background(), Request{
		Message: "change x to 2",
		Context: nbCtx,
	})
	require.NoError(t, err)

	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, notebook.SuggestionModifyCell, resp.Suggestions[0].Kind)
	assert.Equal(t, notebook.CellID("c1"), resp.Suggestions[0].CellID)
	assert.Equal(t,
		"I've modified the code to Modify active cell. Click 'Apply' to update the cell.",
		resp.Message)
}

func TestModifyWithoutActiveCellFallsBackToNewCell(t *testing.T) {
	mock := agent.NewMockClient([]llm.CompletionResponse{
		{Content: "```python\nx = 2\n```"},
	}, nil)
	o, _ := newTestOrchestrator(mock, false)

	resp, err := o.ProcessRequest(context.Background(), Request{Message: "change x to 2"})
	require.NoError(t, err)

	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, notebook.SuggestionNewCell, resp.Suggestions[0].Kind)
	assert.NoError(t, resp.Suggestions[0].Validate())
}

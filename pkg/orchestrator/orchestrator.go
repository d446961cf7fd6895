// Package orchestrator composes the planner, safety checker, memory and
// generation backend into the end-to-end request flow. It owns the step
// state machine: plan steps are mutated only here.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"nbagent/pkg/agent"
	"nbagent/pkg/agent/llm"
	"nbagent/pkg/agent/llmerrors"
	"nbagent/pkg/config"
	"nbagent/pkg/logx"
	"nbagent/pkg/memory"
	"nbagent/pkg/metrics"
	"nbagent/pkg/notebook"
	"nbagent/pkg/planner"
	"nbagent/pkg/prompts"
	"nbagent/pkg/safety"
	"nbagent/pkg/transcript"
)

// noSuggestionError is the step error recorded when a plan is executed
// before a suggestion was attached to the step.
const noSuggestionError = "No suggestion generated for step"

// historyTokenBudget caps how much prior conversation is replayed to
// the backend alongside the step prompt.
const historyTokenBudget = 2048

// Request is one user request into the engine.
type Request struct {
	Message     string
	Context     *notebook.Context
	Model       string // optional override of the configured model key
	AutoExecute bool
}

// Response is the outcome of the respond path.
type Response struct {
	Message          string
	Suggestions      []notebook.Suggestion
	Plan             []*planner.ExecutionStep
	RequiresApproval bool
}

// ExecutionResult is the outcome of applying one suggestion.
type ExecutionResult struct {
	Success  bool
	CellID   notebook.CellID
	Executed bool
	Outcomes map[notebook.CellID]notebook.ExecOutcome
	Error    string
}

// PlanResult aggregates per-step outcomes of an execute-plan walk.
type PlanResult struct {
	Results []ExecutionResult
	Summary planner.PlanSummary
}

// Orchestrator drives one session. Requests into the same orchestrator
// are serialized; sessions are independent of each other.
type Orchestrator struct {
	mu sync.Mutex

	sessionID string
	cfg       config.AgentConfig
	streamer  *agent.Streamer
	checker   *safety.Checker
	mem       *memory.Memory
	tasks     *planner.TaskPlanner
	runtime   notebook.Runtime
	recorder  *metrics.Recorder
	store     *transcript.Store
	logger    *logx.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithTranscript attaches a transcript store. Recording is best-effort:
// a failed write is logged, never surfaced.
func WithTranscript(s *transcript.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// New creates an orchestrator for one session.
func New(sessionID string, cfg config.AgentConfig, streamer *agent.Streamer, runtime notebook.Runtime, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sessionID: sessionID,
		cfg:       cfg,
		streamer:  streamer,
		checker:   safety.NewChecker(safety.Tier(cfg.SafetyTier)),
		mem:       memory.New(cfg.MaxHistory),
		tasks:     planner.NewTaskPlanner(),
		runtime:   runtime,
		logger:    logx.NewLogger("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SessionID returns the owning session's id.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// Memory returns the session's conversation memory.
func (o *Orchestrator) Memory() *memory.Memory {
	return o.mem
}

// Planner returns the session's task planner.
func (o *Orchestrator) Planner() *planner.TaskPlanner {
	return o.tasks
}

// ProcessRequest runs the respond path: plan, generate, vet, reply.
// Generation failures degrade to placeholder suggestions; only a
// configuration error (unknown provider, missing credential) is
// returned to the caller.
func (o *Orchestrator) ProcessRequest(ctx context.Context, req Request) (*Response, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observeRequest("respond")
	return o.processLocked(ctx, req)
}

func (o *Orchestrator) processLocked(ctx context.Context, req Request) (*Response, error) {
	o.mem.AddTurn(memory.RoleUser, req.Message, nil, nil)
	o.recordTurn(memory.RoleUser, req.Message)

	if req.Context != nil {
		o.mem.UpdateNotebookContext(req.Context)
	}

	plan := o.tasks.CreatePlan(req.Message, req.Context)

	suggestions, err := o.generateSuggestions(ctx, req, plan)
	if err != nil {
		return nil, err
	}

	reply := o.composeReply(suggestions, plan)

	o.mem.AddTurn(memory.RoleAssistant, reply, suggestions, nil)
	o.recordTurn(memory.RoleAssistant, reply)

	return &Response{
		Message:          reply,
		Suggestions:      suggestions,
		Plan:             plan,
		RequiresApproval: o.cfg.RequireApproval && !req.AutoExecute,
	}, nil
}

// StreamResponse runs the stream path: the plan is built the same way,
// then the first step's prompt is streamed fragment by fragment. When
// the provider has no streaming implementation the whole path degrades
// to one respond-path call emitted as a single fragment.
func (o *Orchestrator) StreamResponse(ctx context.Context, req Request) (<-chan string, error) {
	o.mu.Lock()
	o.observeRequest("stream")

	modelKey := o.modelKey(req)
	canStream, err := o.streamer.CanStream(modelKey)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}

	if !canStream {
		defer o.mu.Unlock()
		o.logger.Debug("provider for %s cannot stream, degrading to respond path", modelKey)
		resp, err := o.processLocked(ctx, req)
		if err != nil {
			return nil, err
		}
		out := make(chan string, 1)
		out <- resp.Message
		close(out)
		return out, nil
	}

	o.mem.AddTurn(memory.RoleUser, req.Message, nil, nil)
	o.recordTurn(memory.RoleUser, req.Message)
	if req.Context != nil {
		o.mem.UpdateNotebookContext(req.Context)
	}

	plan := o.tasks.CreatePlan(req.Message, req.Context)
	prompt := o.buildStepPrompt(req, plan[0])

	llmReq := o.completionRequest(prompt)
	fragments, err := o.streamer.Stream(ctx, modelKey, llmReq)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer o.mu.Unlock()
		defer close(out)

		var full strings.Builder
		for fragment := range fragments {
			select {
			case out <- fragment:
				full.WriteString(fragment)
			case <-ctx.Done():
				// Caller stopped consuming. Record what was delivered
				// and release the session.
				o.logger.Debug("stream for session %s abandoned: %v", o.sessionID, ctx.Err())
				o.finishStream(full.String())
				return
			}
		}
		o.finishStream(full.String())
	}()
	return out, nil
}

// finishStream records the accumulated streamed reply as the assistant
// turn. An abandoned stream that delivered nothing records nothing.
func (o *Orchestrator) finishStream(reply string) {
	if reply == "" {
		return
	}
	o.mem.AddTurn(memory.RoleAssistant, reply, nil, nil)
	o.recordTurn(memory.RoleAssistant, reply)
}

// ExecuteSuggestion applies one suggestion through the notebook runtime
// and optionally executes the affected cell. Failures are reported in
// the result, never returned as an error.
func (o *Orchestrator) ExecuteSuggestion(ctx context.Context, s notebook.Suggestion) ExecutionResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.executeSuggestion(ctx, s)
}

// ExecutePlan walks the plan, applying each step's suggestion. Every
// step is attempted regardless of earlier failures; a step without a
// suggestion goes straight to error and the walk continues.
func (o *Orchestrator) ExecutePlan(ctx context.Context, plan []*planner.ExecutionStep) PlanResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observeRequest("execute_plan")

	var results []ExecutionResult
	for _, step := range plan {
		start := time.Now()
		if err := step.Transition(planner.StatusExecuting, nil, ""); err != nil {
			o.logger.Warn("skipping step %s: %v", step.ID, err)
			continue
		}

		if step.Suggestion == nil {
			_ = step.Transition(planner.StatusError, nil, noSuggestionError)
			o.finishStep(step, start)
			continue
		}

		result := o.executeSuggestion(ctx, *step.Suggestion)
		results = append(results, result)
		o.mem.StoreStepResult(step.ID, result)

		if result.Success {
			_ = step.Transition(planner.StatusComplete, result, "")
		} else {
			_ = step.Transition(planner.StatusError, nil, result.Error)
		}
		o.finishStep(step, start)
	}

	return PlanResult{Results: results, Summary: planner.Summarize(plan)}
}

func (o *Orchestrator) executeSuggestion(ctx context.Context, s notebook.Suggestion) ExecutionResult {
	cellID, err := notebook.ApplySuggestion(ctx, o.runtime, s)
	if err != nil {
		o.logger.Warn("failed to apply suggestion: %v", err)
		return ExecutionResult{Error: err.Error()}
	}

	if s.AutoExecute || s.Kind == notebook.SuggestionExecuteCell {
		outcomes, err := o.runtime.ExecuteCells(ctx, []notebook.CellID{cellID})
		if err != nil {
			return ExecutionResult{CellID: cellID, Error: err.Error()}
		}
		return ExecutionResult{Success: true, CellID: cellID, Executed: true, Outcomes: outcomes}
	}

	return ExecutionResult{Success: true, CellID: cellID}
}

// Clear resets memory and empties the current plan. Idempotent.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mem.Clear()
	o.tasks.ClearPlan()
	o.logger.Info("cleared session %s", o.sessionID)
}

func (o *Orchestrator) modelKey(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return o.cfg.DefaultModel
}

// completionRequest builds the backend request: the system prompt,
// prior conversation trimmed to a token budget, then the step prompt.
// The in-flight user message is dropped from the history because the
// prompt template already carries it.
func (o *Orchestrator) completionRequest(prompt string) llm.CompletionRequest {
	messages := []llm.CompletionMessage{
		llm.NewSystemMessage(prompts.SystemPrompt + o.checker.PromptAddition()),
	}

	history := o.mem.TurnsWithinBudget(historyTokenBudget)
	if n := len(history); n > 0 && history[n-1].Role == memory.RoleUser {
		history = history[:n-1]
	}
	// A budget cut can land mid-exchange; backends require the history
	// to open with a user turn.
	if len(history) > 0 && history[0].Role == memory.RoleAssistant {
		history = history[1:]
	}
	for _, turn := range history {
		switch turn.Role {
		case memory.RoleUser:
			messages = append(messages, llm.NewUserMessage(turn.Content))
		case memory.RoleAssistant:
			messages = append(messages, llm.NewAssistantMessage(turn.Content))
		}
	}
	messages = append(messages, llm.NewUserMessage(prompt))

	return llm.CompletionRequest{
		Messages:    messages,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	}
}

// generateSuggestions asks the backend for code per step, vets it, and
// wraps it into suggestions. A backend failure yields a placeholder
// suggestion so the step survives; only configuration errors abort.
func (o *Orchestrator) generateSuggestions(ctx context.Context, req Request, plan []*planner.ExecutionStep) ([]notebook.Suggestion, error) {
	modelKey := o.modelKey(req)

	var suggestions []notebook.Suggestion
	for _, step := range plan {
		prompt := o.buildStepPrompt(req, step)

		resp, err := o.streamer.Complete(ctx, modelKey, o.completionRequest(prompt))
		var code string
		switch {
		case err != nil && llmerrors.IsConfiguration(err):
			return nil, err
		case err != nil:
			o.logger.Warn("generation failed for step %s: %v", step.ID, err)
			o.observeGenerationFailure(modelKey)
			code = fmt.Sprintf("# Code generation failed: %v\n# Rephrase the request or try again.", err)
		default:
			extracted, ok := prompts.ExtractCode(resp.Content)
			if !ok {
				o.logger.Debug("no code in response for step %s", step.ID)
				continue
			}
			code = extracted
		}

		verdict := o.checker.Check(code)
		o.observeSafetyVerdict(verdict.IsSafe)

		suggestion := notebook.Suggestion{
			Kind:        o.suggestionKind(step.Description, req.Context),
			Code:        annotateWithWarnings(code, verdict),
			Position:    notebook.PositionAfter,
			Description: step.Description,
			AutoExecute: req.AutoExecute,
		}
		if req.Context != nil {
			suggestion.CellID = req.Context.ActiveCellID
		}

		suggestions = append(suggestions, suggestion)
		o.tasks.AttachSuggestion(step.ID, &suggestion)
	}
	return suggestions, nil
}

// buildStepPrompt picks the prompt template for a step: modification
// steps with an active cell get the modification template with the
// current code, everything else gets the generation template.
func (o *Orchestrator) buildStepPrompt(req Request, step *planner.ExecutionStep) string {
	if strings.Contains(strings.ToLower(step.Description), "modify") &&
		req.Context != nil && req.Context.ActiveCellID != "" {
		currentCode := req.Context.CellCodes[req.Context.ActiveCellID]
		return prompts.BuildModificationPrompt(req.Message, currentCode)
	}
	return prompts.BuildCodeGenerationPrompt(req.Message, req.Context)
}

// suggestionKind infers the edit kind from the step description. Kinds
// that require a target cell fall back to a new cell when the request
// carries no active cell, so the suggestion stays valid by construction.
func (o *Orchestrator) suggestionKind(description string, nbCtx *notebook.Context) notebook.SuggestionKind {
	lower := strings.ToLower(description)

	var kind notebook.SuggestionKind
	switch {
	case strings.Contains(lower, "modify") || strings.Contains(lower, "edit") || strings.Contains(lower, "change"):
		kind = notebook.SuggestionModifyCell
	case strings.Contains(lower, "delete") || strings.Contains(lower, "remove"):
		kind = notebook.SuggestionDeleteCell
	case strings.Contains(lower, "execute") || strings.Contains(lower, "run"):
		kind = notebook.SuggestionExecuteCell
	default:
		return notebook.SuggestionNewCell
	}

	if nbCtx == nil || nbCtx.ActiveCellID == "" {
		return notebook.SuggestionNewCell
	}
	return kind
}

// composeReply builds the user-facing reply, special-cased for zero,
// one, and many suggestions.
func (o *Orchestrator) composeReply(suggestions []notebook.Suggestion, plan []*planner.ExecutionStep) string {
	if len(suggestions) == 0 {
		return "I couldn't generate any code suggestions for your request. Could you provide more details?"
	}

	if len(suggestions) == 1 {
		switch suggestions[0].Kind {
		case notebook.SuggestionNewCell:
			return fmt.Sprintf("I've created code to %s. Click 'Apply' to add it to your notebook.", plan[0].Description)
		case notebook.SuggestionModifyCell:
			return fmt.Sprintf("I've modified the code to %s. Click 'Apply' to update the cell.", plan[0].Description)
		default:
			return fmt.Sprintf("I've prepared an action to %s.", plan[0].Description)
		}
	}

	limit := 3
	if len(plan) < limit {
		limit = len(plan)
	}
	descriptions := make([]string, 0, limit)
	for _, step := range plan[:limit] {
		descriptions = append(descriptions, step.Description)
	}
	joined := strings.Join(descriptions, ", ")
	if len(plan) > 3 {
		joined += fmt.Sprintf(" and %d more steps", len(plan)-3)
	}
	return fmt.Sprintf("I've created a plan with %d steps: %s. Review and apply the suggestions.", len(suggestions), joined)
}

// annotateWithWarnings prepends safety findings as comment lines so the
// flagged code is surfaced rather than discarded.
func annotateWithWarnings(code string, v safety.Verdict) string {
	if len(v.Warnings) == 0 {
		return code
	}

	var b strings.Builder
	if !v.IsSafe {
		b.WriteString("# SAFETY: flagged as unsafe, review before running\n")
	}
	for _, warning := range v.Warnings {
		b.WriteString("# SAFETY: " + warning + "\n")
	}
	b.WriteString(code)
	return b.String()
}

func (o *Orchestrator) finishStep(step *planner.ExecutionStep, start time.Time) {
	if o.recorder != nil {
		o.recorder.ObserveStepDuration(string(step.Status), time.Since(start))
	}
	o.recordStep(step)
}

func (o *Orchestrator) observeRequest(path string) {
	if o.recorder != nil {
		o.recorder.ObserveRequest(path)
	}
}

func (o *Orchestrator) observeGenerationFailure(modelKey string) {
	if o.recorder == nil {
		return
	}
	provider, _, err := config.ResolveModelKey(modelKey)
	if err != nil {
		provider = "unknown"
	}
	o.recorder.ObserveGenerationFailure(provider)
}

func (o *Orchestrator) observeSafetyVerdict(safe bool) {
	if o.recorder != nil {
		o.recorder.ObserveSafetyVerdict(string(o.checker.Tier()), safe)
	}
}

func (o *Orchestrator) recordTurn(role memory.Role, content string) {
	if o.store == nil {
		return
	}
	if err := o.store.RecordTurn(o.sessionID, string(role), content); err != nil {
		o.logger.Warn("transcript turn write failed: %v", err)
	}
}

func (o *Orchestrator) recordStep(step *planner.ExecutionStep) {
	if o.store == nil {
		return
	}
	if err := o.store.RecordStep(o.sessionID, step.ID, step.Description, string(step.Status), step.Error); err != nil {
		o.logger.Warn("transcript step write failed: %v", err)
	}
}

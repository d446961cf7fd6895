package planner

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"nbagent/pkg/logx"
	"nbagent/pkg/notebook"
)

// StepStatus is the lifecycle state of an execution step.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusExecuting StepStatus = "executing"
	StatusComplete  StepStatus = "complete"
	StatusError     StepStatus = "error"
	StatusCancelled StepStatus = "cancelled"
)

// IsValid reports whether s is one of the defined statuses.
func (s StepStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusExecuting, StatusComplete, StatusError, StatusCancelled:
		return true
	}
	return false
}

// canTransition encodes the only legal status advances:
// pending -> executing -> {complete, error, cancelled}. Reversal is not
// supported.
func canTransition(from, to StepStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusExecuting || to == StatusError || to == StatusCancelled
	case StatusExecuting:
		return to == StatusComplete || to == StatusError || to == StatusCancelled
	}
	return false
}

// ExecutionStep is one unit of planned work. Created by the planner,
// mutated only through UpdateStepStatus.
type ExecutionStep struct {
	ID          string
	Description string
	Status      StepStatus
	Suggestion  *notebook.Suggestion
	Result      any
	Error       string
}

// Transition advances the step's status, recording result and error
// when supplied. Illegal advances are rejected. This is the single
// mutation point for step state.
func (s *ExecutionStep) Transition(status StepStatus, result any, errMsg string) error {
	if !canTransition(s.Status, status) {
		return fmt.Errorf("illegal step transition %s -> %s", s.Status, status)
	}
	s.Status = status
	if result != nil {
		s.Result = result
	}
	if errMsg != "" {
		s.Error = errMsg
	}
	return nil
}

// PlanSummary reports aggregate plan progress.
type PlanSummary struct {
	TotalSteps int
	Completed  int
	Errors     int
	Progress   float64
}

// TaskPlanner creates and tracks one execution plan at a time.
type TaskPlanner struct {
	plan   []*ExecutionStep
	logger *logx.Logger
}

// NewTaskPlanner creates a planner with an empty plan.
func NewTaskPlanner() *TaskPlanner {
	return &TaskPlanner{logger: logx.NewLogger("planner")}
}

var functionNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)function (?:called |named )?(\w+)`),
	regexp.MustCompile(`(?i)(\w+) function`),
	regexp.MustCompile(`(?i)def (\w+)`),
}

// CreatePlan derives an execution plan from a user request. The current
// contract produces exactly one step per call; unmatched requests fall
// into the general branch, so planning never fails.
func (p *TaskPlanner) CreatePlan(request string, nbCtx *notebook.Context) []*ExecutionStep {
	intent := Classify(request)
	p.logger.Debug("classified request as %s", intent)

	var description string
	switch intent {
	case IntentCreateFunction:
		description = "Create new function"
		if name := extractFunctionName(request); name != "" {
			description = "Create function " + name
		}

	case IntentAnalyzeData:
		description = "Perform data analysis"
		if nbCtx != nil {
			// Sorted so the chosen variable is stable across runs.
			names := make([]string, 0, len(nbCtx.Variables))
			for name := range nbCtx.Variables {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				lower := strings.ToLower(name)
				if strings.Contains(lower, "df") || strings.Contains(lower, "data") {
					description = "Analyze " + name
					break
				}
			}
		}

	case IntentVisualize:
		description = "Create " + chartType(request)

	case IntentDebug:
		description = "Debug code"
		if nbCtx != nil && len(nbCtx.RecentErrors) > 0 {
			description = "Debug recent error"
		}

	case IntentModify:
		target := "code"
		if nbCtx != nil && nbCtx.ActiveCellID != "" {
			target = "active cell"
		}
		description = "Modify " + target

	default:
		description = request
		if len(request) > 50 {
			description = request[:50] + "..."
		}
	}

	p.plan = []*ExecutionStep{{
		ID:          uuid.NewString(),
		Description: description,
		Status:      StatusPending,
	}}
	return p.plan
}

func extractFunctionName(request string) string {
	for _, pattern := range functionNamePatterns {
		if match := pattern.FindStringSubmatch(request); match != nil {
			return match[1]
		}
	}
	return ""
}

func chartType(request string) string {
	lower := strings.ToLower(request)
	switch {
	case strings.Contains(lower, "bar"):
		return "bar chart"
	case strings.Contains(lower, "scatter"):
		return "scatter plot"
	case strings.Contains(lower, "line"):
		return "line chart"
	case strings.Contains(lower, "histogram"):
		return "histogram"
	default:
		return "plot"
	}
}

// Plan returns the current plan.
func (p *TaskPlanner) Plan() []*ExecutionStep {
	return p.plan
}

// ClearPlan discards the current plan.
func (p *TaskPlanner) ClearPlan() {
	p.plan = nil
}

// UpdateStepStatus advances a step's status, recording result and error
// when supplied. Unknown step ids are a no-op; an illegal transition is
// rejected with an error.
func (p *TaskPlanner) UpdateStepStatus(stepID string, status StepStatus, result any, errMsg string) error {
	for _, step := range p.plan {
		if step.ID == stepID {
			return step.Transition(status, result, errMsg)
		}
	}
	return nil
}

// AttachSuggestion binds a suggestion to a step. Unknown ids are a no-op.
func (p *TaskPlanner) AttachSuggestion(stepID string, s *notebook.Suggestion) {
	for _, step := range p.plan {
		if step.ID == stepID {
			step.Suggestion = s
			return
		}
	}
}

// NextPendingStep returns the first pending step, or nil when none remain.
func (p *TaskPlanner) NextPendingStep() *ExecutionStep {
	for _, step := range p.plan {
		if step.Status == StatusPending {
			return step
		}
	}
	return nil
}

// IsPlanComplete is true iff no step remains pending or executing.
func (p *TaskPlanner) IsPlanComplete() bool {
	for _, step := range p.plan {
		if step.Status == StatusPending || step.Status == StatusExecuting {
			return false
		}
	}
	return true
}

// Summary reports plan totals and progress. Progress is 0 for an empty
// plan.
func (p *TaskPlanner) Summary() PlanSummary {
	return Summarize(p.plan)
}

// Summarize reports totals and progress for any plan slice.
func Summarize(plan []*ExecutionStep) PlanSummary {
	summary := PlanSummary{TotalSteps: len(plan)}
	for _, step := range plan {
		switch step.Status {
		case StatusComplete:
			summary.Completed++
		case StatusError:
			summary.Errors++
		}
	}
	if summary.TotalSteps > 0 {
		summary.Progress = float64(summary.Completed) / float64(summary.TotalSteps)
	}
	return summary
}

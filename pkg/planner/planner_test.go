package planner

import (
	"strings"
	"testing"

	"nbagent/pkg/notebook"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		request string
		want    IntentCategory
	}{
		{"create a function called compute_tax", IntentCreateFunction},
		{"write a method to parse dates", IntentCreateFunction},
		{"analyze the sales data", IntentAnalyzeData},
		{"explore this dataset", IntentAnalyzeData},
		{"plot revenue over time", IntentVisualize},
		{"make a chart of users", IntentVisualize},
		{"debug this cell", IntentDebug},
		{"something is wrong here", IntentDebug},
		{"change the threshold to 5", IntentModify},
		{"edit the query", IntentModify},
		{"hello there", IntentGeneral},
		{"", IntentGeneral},
		// Priority: create_function is checked before debug.
		{"fix the function", IntentCreateFunction},
		// Priority: analyze is checked before visualize.
		{"analyze and plot the data", IntentAnalyzeData},
	}

	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			if got := Classify(tt.request); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.request, got, tt.want)
			}
		})
	}
}

func TestCreatePlanDescriptions(t *testing.T) {
	tests := []struct {
		name    string
		request string
		nbCtx   *notebook.Context
		want    string
	}{
		{
			name:    "function with name",
			request: "create a function called compute_tax",
			want:    "Create function compute_tax",
		},
		{
			name:    "function without name",
			request: "add a method to the class",
			want:    "Create new function",
		},
		{
			name:    "def pattern",
			request: "def normalize please",
			want:    "Create function normalize",
		},
		{
			name:    "analysis with dataframe variable",
			request: "analyze this",
			nbCtx:   &notebook.Context{Variables: map[string]any{"sales_df": nil}},
			want:    "Analyze sales_df",
		},
		{
			name:    "analysis without variables",
			request: "run an analysis",
			want:    "Perform data analysis",
		},
		{
			name:    "bar chart",
			request: "plot a bar of counts",
			want:    "Create bar chart",
		},
		{
			name:    "generic plot",
			request: "visualize the results",
			want:    "Create plot",
		},
		{
			name:    "debug with recent error",
			request: "fix this error",
			nbCtx:   &notebook.Context{RecentErrors: []notebook.ErrorRecord{{Message: "NameError"}}},
			want:    "Debug recent error",
		},
		{
			name:    "debug without errors",
			request: "debug it",
			want:    "Debug code",
		},
		{
			name:    "modify active cell",
			request: "update this",
			nbCtx:   &notebook.Context{ActiveCellID: "c1"},
			want:    "Modify active cell",
		},
		{
			name:    "modify without active cell",
			request: "update this",
			want:    "Modify code",
		},
		{
			name:    "general short request",
			request: "hello world",
			want:    "hello world",
		},
		{
			name:    "general long request truncated",
			request: strings.Repeat("a", 60),
			want:    strings.Repeat("a", 50) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewTaskPlanner()
			plan := p.CreatePlan(tt.request, tt.nbCtx)
			if len(plan) != 1 {
				t.Fatalf("expected single-step plan, got %d steps", len(plan))
			}
			if plan[0].Description != tt.want {
				t.Errorf("description = %q, want %q", plan[0].Description, tt.want)
			}
			if plan[0].Status != StatusPending {
				t.Errorf("new step status = %s, want pending", plan[0].Status)
			}
			if plan[0].ID == "" {
				t.Error("step id must not be empty")
			}
		})
	}
}

func TestUpdateStepStatus(t *testing.T) {
	p := NewTaskPlanner()
	plan := p.CreatePlan("hello", nil)
	step := plan[0]

	if err := p.UpdateStepStatus(step.ID, StatusExecuting, nil, ""); err != nil {
		t.Fatalf("pending -> executing failed: %v", err)
	}
	if err := p.UpdateStepStatus(step.ID, StatusComplete, "done", ""); err != nil {
		t.Fatalf("executing -> complete failed: %v", err)
	}
	if step.Result != "done" {
		t.Errorf("result = %v, want done", step.Result)
	}

	// Completed steps never move again.
	if err := p.UpdateStepStatus(step.ID, StatusExecuting, nil, ""); err == nil {
		t.Error("expected illegal transition complete -> executing to be rejected")
	}

	// Unknown ids are a no-op, not an error.
	if err := p.UpdateStepStatus("no-such-step", StatusComplete, nil, ""); err != nil {
		t.Errorf("unknown step id should be a no-op, got %v", err)
	}
}

func TestNextPendingAndCompletion(t *testing.T) {
	p := NewTaskPlanner()
	plan := p.CreatePlan("hello", nil)
	step := plan[0]

	if next := p.NextPendingStep(); next == nil || next.ID != step.ID {
		t.Fatal("expected the created step to be next pending")
	}
	if p.IsPlanComplete() {
		t.Error("plan with a pending step must not be complete")
	}

	_ = p.UpdateStepStatus(step.ID, StatusExecuting, nil, "")
	if p.IsPlanComplete() {
		t.Error("plan with an executing step must not be complete")
	}

	_ = p.UpdateStepStatus(step.ID, StatusError, nil, "boom")
	if !p.IsPlanComplete() {
		t.Error("plan with only terminal steps must be complete")
	}
	if next := p.NextPendingStep(); next != nil {
		t.Errorf("expected no pending step, got %v", next)
	}
}

func TestSummary(t *testing.T) {
	p := NewTaskPlanner()
	if got := p.Summary(); got.TotalSteps != 0 || got.Progress != 0 {
		t.Errorf("empty plan summary = %+v", got)
	}

	plan := p.CreatePlan("hello", nil)
	_ = p.UpdateStepStatus(plan[0].ID, StatusExecuting, nil, "")
	_ = p.UpdateStepStatus(plan[0].ID, StatusComplete, nil, "")

	got := p.Summary()
	if got.TotalSteps != 1 || got.Completed != 1 || got.Errors != 0 {
		t.Errorf("summary = %+v", got)
	}
	if got.Progress != 1.0 {
		t.Errorf("progress = %f, want 1.0", got.Progress)
	}
}

func TestAnalyzeVariableChoiceIsDeterministic(t *testing.T) {
	nbCtx := &notebook.Context{
		Variables: map[string]any{
			"sales_data": nil,
			"df_main":    nil,
			"raw_data":   nil,
		},
	}

	p := NewTaskPlanner()
	for i := 0; i < 20; i++ {
		plan := p.CreatePlan("analyze the dataset", nbCtx)
		if plan[0].Description != "Analyze df_main" {
			t.Fatalf("run %d: description = %q, want Analyze df_main", i, plan[0].Description)
		}
	}
}

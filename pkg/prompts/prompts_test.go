package prompts

import (
	"strings"
	"testing"

	"nbagent/pkg/agent/llm"
	"nbagent/pkg/memory"
	"nbagent/pkg/notebook"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		found    bool
	}{
		{
			name:     "python block preferred",
			response: "Here you go:\n```python\nx = 1\n```\nand also\n```\ny = 2\n```",
			want:     "x = 1",
			found:    true,
		},
		{
			name:     "generic block fallback",
			response: "Result:\n```\ny = 2\n```",
			want:     "y = 2",
			found:    true,
		},
		{
			name:     "bare code heuristic",
			response: "import pandas as pd\ndf = pd.DataFrame()",
			want:     "import pandas as pd\ndf = pd.DataFrame()",
			found:    true,
		},
		{
			name:     "def line counts as code",
			response: "def f(x):\n    return x * 2",
			want:     "def f(x):\n    return x * 2",
			found:    true,
		},
		{
			name:     "prose is not code",
			response: "I cannot help with that request.",
			found:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractCode(tt.response)
			if found != tt.found {
				t.Fatalf("found = %v, want %v", found, tt.found)
			}
			if got != tt.want {
				t.Errorf("code = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildCodeGenerationPrompt(t *testing.T) {
	nbCtx := &notebook.Context{
		Variables: map[string]any{"df_sales": nil},
		CellCodes: map[notebook.CellID]string{
			"c1": "import pandas as pd",
			"c2": strings.Repeat("x", 300),
		},
		ExecutionHistory: []notebook.CellID{"c1", "c2"},
	}

	prompt := BuildCodeGenerationPrompt("sum the sales", nbCtx)

	if !strings.Contains(prompt, "sum the sales") {
		t.Error("prompt must contain the request")
	}
	if !strings.Contains(prompt, "df_sales") {
		t.Error("prompt must list context variables")
	}
	if !strings.Contains(prompt, "import pandas as pd") {
		t.Error("prompt must include recent cell code")
	}
	if !strings.Contains(prompt, strings.Repeat("x", 200)+"...") {
		t.Error("long cell code must be truncated to 200 characters")
	}
	if strings.Contains(prompt, strings.Repeat("x", 201)) {
		t.Error("truncation must not leak extra characters")
	}
}

func TestBuildCodeGenerationPromptEmptyContext(t *testing.T) {
	prompt := BuildCodeGenerationPrompt("do something", nil)
	if !strings.Contains(prompt, "Active variables: None") {
		t.Error("empty context must report None for variables")
	}
	if !strings.Contains(prompt, "Recent cells: None") {
		t.Error("empty context must report None for recent cells")
	}
}

func TestFormatConversation(t *testing.T) {
	turns := []memory.ConversationTurn{
		{Role: memory.RoleUser, Content: "hi"},
		{Role: memory.RoleAssistant, Content: "hello"},
	}

	messages := FormatConversation(turns, "")
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(messages))
	}
	if messages[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %s, want system", messages[0].Role)
	}
	if messages[0].Content != SystemPrompt {
		t.Error("empty system prompt must default to SystemPrompt")
	}
	if messages[1].Role != llm.RoleUser || messages[2].Role != llm.RoleAssistant {
		t.Error("turn roles must carry through")
	}
}

func TestBuildModificationPrompt(t *testing.T) {
	prompt := BuildModificationPrompt("rename x to total", "x = 1")
	if !strings.Contains(prompt, "```python\nx = 1\n```") {
		t.Error("prompt must embed the current code in a fenced block")
	}
	if !strings.Contains(prompt, "rename x to total") {
		t.Error("prompt must contain the request")
	}
}

func TestBuildDebuggingPromptDefaultContext(t *testing.T) {
	prompt := BuildDebuggingPrompt("NameError: x", "print(x)", "")
	if !strings.Contains(prompt, "No additional context") {
		t.Error("empty context must be replaced with the default marker")
	}
}

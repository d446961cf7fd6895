// Package prompts holds the generation templates and response parsing
// for the notebook agent.
package prompts

import (
	"fmt"
	"regexp"
	"strings"

	"nbagent/pkg/agent/llm"
	"nbagent/pkg/memory"
	"nbagent/pkg/notebook"
)

// SystemPrompt is the base instruction prepended to every conversation.
const SystemPrompt = `You are an AI assistant integrated into a reactive Python notebook.
Your role is to help users write, execute, and debug Python code in their notebooks.

Key capabilities:
1. Generate Python code based on natural language requests
2. Modify existing cells based on user instructions
3. Analyze data and suggest visualizations
4. Debug errors and propose fixes
5. Explain code and provide documentation

Important context about the notebook:
- Cells automatically re-run when their dependencies change (reactive)
- Variables are shared across all cells
- The notebook is stored as a pure Python file

When generating code:
- Write clean, readable Python code
- Use appropriate variable names
- Add brief comments for complex logic
- Import necessary libraries at the cell level
- Consider the reactive nature of the notebook

When suggesting modifications:
- Preserve existing variable names when possible
- Maintain compatibility with dependent cells
- Explain the changes being made

Always be helpful, accurate, and concise in your responses.`

const maxPromptVariables = 10
const maxRecentCells = 3
const maxCellExcerpt = 200

// BuildCodeGenerationPrompt formats a generation request with a bounded
// view of the notebook: up to ten variable names and the last three
// executed cells, each truncated to 200 characters.
func BuildCodeGenerationPrompt(request string, nbCtx *notebook.Context) string {
	variables := "None"
	recentCells := "None"

	if nbCtx != nil {
		if len(nbCtx.Variables) > 0 {
			names := make([]string, 0, len(nbCtx.Variables))
			for name := range nbCtx.Variables {
				names = append(names, name)
				if len(names) == maxPromptVariables {
					break
				}
			}
			variables = strings.Join(names, ", ")
		}

		if len(nbCtx.CellCodes) > 0 && len(nbCtx.ExecutionHistory) > 0 {
			history := nbCtx.ExecutionHistory
			if len(history) > maxRecentCells {
				history = history[len(history)-maxRecentCells:]
			}
			var cells []string
			for _, id := range history {
				code, ok := nbCtx.CellCodes[id]
				if !ok {
					continue
				}
				if len(code) > maxCellExcerpt {
					code = code[:maxCellExcerpt] + "..."
				}
				cells = append(cells, code)
			}
			if len(cells) > 0 {
				recentCells = strings.Join(cells, "\n\n")
			}
		}
	}

	return fmt.Sprintf(`Generate Python code for the following request:
%s

Current notebook context:
- Active variables: %s
- Recent cells: %s

Requirements:
- Write complete, executable Python code
- Include necessary imports
- Use descriptive variable names
- Add comments for clarity
- Consider existing variables in scope`, request, variables, recentCells)
}

// BuildModificationPrompt formats a cell-modification request.
func BuildModificationPrompt(request, currentCode string) string {
	return fmt.Sprintf("Modify the following Python code based on the user's request:\n\n"+
		"Current code:\n```python\n%s\n```\n\n"+
		"User request: %s\n\n"+
		"Requirements:\n"+
		"- Preserve functionality unless explicitly asked to change\n"+
		"- Maintain variable names that other cells might depend on\n"+
		"- Explain what changes were made\n"+
		"- Keep the code style consistent", currentCode, request)
}

// BuildDebuggingPrompt formats a debugging request.
func BuildDebuggingPrompt(errorMessage, errorCode, context string) string {
	if context == "" {
		context = "No additional context"
	}
	return fmt.Sprintf("Debug the following error:\n\n"+
		"Error message:\n%s\n\n"+
		"Code that caused the error:\n```python\n%s\n```\n\n"+
		"Context: %s\n\n"+
		"Provide:\n"+
		"1. Explanation of what caused the error\n"+
		"2. Fixed code\n"+
		"3. Tips to avoid similar errors", errorMessage, errorCode, context)
}

// BuildAnalysisPrompt formats a data-analysis request.
func BuildAnalysisPrompt(request, dataInfo string) string {
	return fmt.Sprintf("Analyze the data and provide insights:\n\n"+
		"Available data: %s\n"+
		"User request: %s\n\n"+
		"Provide:\n"+
		"1. Summary statistics or key findings\n"+
		"2. Python code to perform the analysis\n"+
		"3. Suggestions for visualizations\n"+
		"4. Any data quality issues noticed", dataInfo, request)
}

// BuildVisualizationPrompt formats a visualization request.
func BuildVisualizationPrompt(request, dataInfo string) string {
	return fmt.Sprintf("Create a visualization based on the request:\n\n"+
		"Data available: %s\n"+
		"Request: %s\n\n"+
		"Generate Python code that:\n"+
		"1. Creates the requested visualization\n"+
		"2. Uses appropriate library (matplotlib, plotly, altair, etc.)\n"+
		"3. Includes proper labels and formatting\n"+
		"4. Handles edge cases in the data", dataInfo, request)
}

// FormatConversation converts stored turns into a completion message
// list with the system prompt first.
func FormatConversation(turns []memory.ConversationTurn, systemPrompt string) []llm.CompletionMessage {
	if systemPrompt == "" {
		systemPrompt = SystemPrompt
	}

	messages := make([]llm.CompletionMessage, 0, len(turns)+1)
	messages = append(messages, llm.NewSystemMessage(systemPrompt))
	for _, turn := range turns {
		messages = append(messages, llm.CompletionMessage{
			Role:    llm.CompletionRole(turn.Role),
			Content: turn.Content,
		})
	}
	return messages
}

var (
	pythonBlockRe  = regexp.MustCompile("(?s)```python\n(.*?)\n```")
	genericBlockRe = regexp.MustCompile("(?s)```\n(.*?)\n```")
)

var codeLinePrefixes = []string{
	"import ", "from ", "def ", "class ", "if ", "for ", "while ",
}

// ExtractCode pulls Python code out of a model response: a ```python
// block first, then a generic fenced block, then the whole response if
// it looks like bare code. Returns false when nothing code-like is
// found.
func ExtractCode(response string) (string, bool) {
	if match := pythonBlockRe.FindStringSubmatch(response); match != nil {
		return match[1], true
	}
	if match := genericBlockRe.FindStringSubmatch(response); match != nil {
		return match[1], true
	}

	trimmed := strings.TrimSpace(response)
	for _, line := range strings.Split(trimmed, "\n") {
		stripped := strings.TrimSpace(line)
		for _, prefix := range codeLinePrefixes {
			if strings.HasPrefix(stripped, prefix) {
				return trimmed, true
			}
		}
	}
	return "", false
}

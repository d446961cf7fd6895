// Package planner turns free-text requests into tracked execution plans.
package planner

import "strings"

// IntentCategory is the closed classification of a user request.
type IntentCategory string

const (
	IntentCreateFunction IntentCategory = "create_function"
	IntentAnalyzeData    IntentCategory = "analyze_data"
	IntentVisualize      IntentCategory = "visualize"
	IntentDebug          IntentCategory = "debug"
	IntentModify         IntentCategory = "modify"
	IntentGeneral        IntentCategory = "general"
)

// intentKeywords are checked in declaration order; the first category
// with any matching keyword wins. The ordering is part of the contract:
// "fix the function" is create_function, not debug.
var intentKeywords = []struct {
	category IntentCategory
	keywords []string
}{
	{IntentCreateFunction, []string{"function", "def", "method"}},
	{IntentAnalyzeData, []string{"analyze", "analysis", "explore"}},
	{IntentVisualize, []string{"plot", "visualize", "chart", "graph"}},
	{IntentDebug, []string{"debug", "error", "fix", "wrong"}},
	{IntentModify, []string{"modify", "change", "update", "edit"}},
}

// Classify maps a request to its intent category using case-insensitive
// substring matching. It never fails: unmatched text is IntentGeneral.
func Classify(request string) IntentCategory {
	lower := strings.ToLower(request)
	for _, entry := range intentKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(lower, keyword) {
				return entry.category
			}
		}
	}
	return IntentGeneral
}

package llm

import (
	_ "embed"
	"strings"
)

//go:embed prompts/interview_analysis.txt
var interviewAnalysisPrompt string

// AnalysisPrompt returns the system prompt for interview analysis.
func AnalysisPrompt() string {
	return strings.TrimSpace(interviewAnalysisPrompt)
}

package inference

import (
	"fmt"
	"strings"

	"github.com/mselser95/phantombet/pkg/types"
)

// SystemPrompt is the system message sent with every request.
const SystemPrompt = "You are a precise, objective fact-checker. Always respond with valid JSON."

// BuildPrompt renders the user message for one question.
func BuildPrompt(question string, outcomes []string, bundle *types.EvidenceBundle) string {
	var b strings.Builder

	b.WriteString("You are an objective fact-checker analyzing a prediction market question.\n\n")
	fmt.Fprintf(&b, "QUESTION: %s\n\n", question)
	fmt.Fprintf(&b, "POSSIBLE OUTCOMES: %s\n\n", strings.Join(outcomes, ", "))
	b.WriteString("DATA FROM MULTIPLE SOURCES:\n")
	if bundle != nil {
		b.WriteString(bundle.Context())
	}
	b.WriteString(`

TASK:
1. Analyze the provided data carefully
2. Determine which outcome is most accurate based on the evidence
3. Provide your confidence level (0-1)
4. Explain your reasoning

RESPOND IN THIS EXACT JSON FORMAT:
{
  "outcome": "the exact outcome from the list above",
  "confidence": 0.95,
  "reasoning": "brief explanation of why this outcome is correct"
}

IMPORTANT:
- Only choose from the provided outcomes
- Be objective and fact-based
- If data is insufficient or contradictory, set confidence below 0.7
- Your response must be valid JSON`)

	return b.String()
}

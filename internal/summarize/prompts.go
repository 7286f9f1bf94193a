package summarize

import (
	"fmt"
	"strings"
)

const summarySystemPrompt = `You summarize healthcare technology news for executives at hospitals, payers and health IT vendors.
Respond with exactly one JSON object and nothing else.`

// BuildSummaryPrompt creates the summarization prompt with its scoring rubric
func BuildSummaryPrompt(title, content string) string {
	var prompt strings.Builder

	prompt.WriteString("Summarize this article with CONCRETE FACTS and SPECIFIC DETAILS.\n\n")
	if title != "" {
		prompt.WriteString(fmt.Sprintf("**Title:** %s\n\n", title))
	}
	prompt.WriteString(fmt.Sprintf("**Content:**\n%s\n\n", content))

	prompt.WriteString("**Instructions:**\n")
	prompt.WriteString("1. summary: 2-3 sentences naming the organizations, numbers and dates involved\n")
	prompt.WriteString("2. takeaways: 3-5 short, specific takeaways, most important first\n")
	prompt.WriteString("3. tags: 3-8 lowercase topic tags (e.g. cybersecurity, ai, interoperability, leadership, workforce, revenue cycle)\n")
	prompt.WriteString("4. relevance_score: integer 1-10 for how much a healthcare IT decision-maker needs to know this\n\n")

	prompt.WriteString("**Relevance rubric:**\n")
	prompt.WriteString("- 9-10: market-moving deals, major breaches, regulation with deadlines\n")
	prompt.WriteString("- 6-8: notable deployments, vendor strategy shifts, useful benchmarks\n")
	prompt.WriteString("- 3-5: incremental product news, local announcements\n")
	prompt.WriteString("- 1-2: promotional or off-topic content\n\n")

	prompt.WriteString("**Output Format:**\n")
	prompt.WriteString(`{"summary":"","takeaways":[""],"tags":[""],"relevance_score":0}`)
	prompt.WriteString("\n")
	return prompt.String()
}

package chainserver

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// exportChain writes the complete chain to the notebook vault as
// reasoning-YYYY-MM-DD-<chainid8>.md.
func exportChain(s *Server, c *Chain) error {
	day := time.Now().UTC().Format("2006-01-02")
	id8 := c.ID
	if len(id8) > 8 {
		id8 = id8[:8]
	}
	name := fmt.Sprintf("reasoning-%s-%s.md", day, id8)

	frontmatter := map[string]any{
		"title":    fmt.Sprintf("Reasoning chain %s", id8),
		"chain_id": c.ID,
		"status":   c.Status,
		"created":  c.CreatedAt.Format(time.RFC3339),
	}
	if c.Goal != "" {
		frontmatter["goal"] = c.Goal
	}
	if len(c.Tags) > 0 {
		frontmatter["tags"] = c.Tags
	}

	var body strings.Builder
	body.WriteString("## Prompt\n\n")
	body.WriteString(c.Prompt)
	body.WriteString("\n\n## Reasoning Steps\n\n")
	for _, st := range c.Steps {
		fmt.Fprintf(&body, "### Step %d: %s\n\n", st.Number, st.StepType)
		body.WriteString(st.Thought)
		body.WriteString("\n\n")
		if st.Confidence != nil {
			fmt.Fprintf(&body, "*Confidence: %.2f*\n\n", *st.Confidence)
		}
		if len(st.Payload) > 0 {
			if b, err := json.MarshalIndent(st.Payload, "", "  "); err == nil {
				body.WriteString("```json\n")
				body.Write(b)
				body.WriteString("\n```\n\n")
			}
		}
	}
	body.WriteString("## Conclusion\n\n")
	body.WriteString(c.Conclusion)
	body.WriteString("\n")

	return s.vault.Write(name, body.String(), frontmatter)
}

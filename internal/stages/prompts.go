package stages

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Iron-Ham/planforge/internal/plan"
)

// Prompt layout contract: the directive is the first line; when task IDs are
// included they follow an IDS: marker one per line; the JSON-encoded project
// always comes last after a PROJECT: marker. The offline generator and any
// future backends key off exactly these markers.

func analysisPrompt(p plan.Project) string {
	var b strings.Builder
	b.WriteString("ANALYZE\n")
	b.WriteString("Assess the project below. Reply with a single JSON object with fields ")
	b.WriteString(`"summary", "risks", "phases" and "complexity".` + "\n")
	writeProject(&b, p)
	return b.String()
}

func breakdownPrompt(p plan.Project, analysis plan.Analysis) string {
	var b strings.Builder
	b.WriteString("BREAKDOWN\n")
	b.WriteString("Break the project below into tasks and subtasks. Reply with a single JSON ")
	b.WriteString(`object with fields "tasks" and "subtasks".` + "\n")
	if len(analysis.Phases) > 0 {
		fmt.Fprintf(&b, "Suggested phases: %s\n", strings.Join(analysis.Phases, ", "))
	}
	writeProject(&b, p)
	return b.String()
}

func prioritiesPrompt(p plan.Project, taskIDs []string) string {
	var b strings.Builder
	b.WriteString("PRIORITIZE\n")
	b.WriteString("Assign each task ID below a priority of critical, high, medium or low. ")
	b.WriteString("Reply with a single JSON object mapping ID to priority.\n")
	b.WriteString("IDS:\n")
	for _, id := range taskIDs {
		b.WriteString(id)
		b.WriteByte('\n')
	}
	writeProject(&b, p)
	return b.String()
}

func writeProject(b *strings.Builder, p plan.Project) {
	b.WriteString("PROJECT:\n")
	data, err := json.Marshal(p)
	if err != nil {
		// Project is a plain data struct; this cannot fail for valid input.
		data = []byte("{}")
	}
	b.Write(data)
}

package gen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Iron-Ham/planforge/internal/errors"
	"github.com/Iron-Ham/planforge/internal/plan"
)

// Offline is a deterministic Generator used when no model backend is
// configured. It recognizes the pipeline's three generation prompts by their
// leading directive and synthesizes a plausible JSON reply from the project
// embedded in the prompt. This keeps the full pipeline runnable (and
// demoable) with no network dependency; replies are deliberately mechanical.
type Offline struct{}

// NewOffline creates an offline generator.
func NewOffline() *Offline {
	return &Offline{}
}

// Generate synthesizes a reply for the recognized prompt kinds.
func (o *Offline) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.NewGenerationError("call cancelled", errors.ErrGenTimeout)
	}

	project, err := projectFromPrompt(prompt)
	if err != nil {
		return "", err
	}

	var reply any
	switch {
	case strings.HasPrefix(prompt, "ANALYZE"):
		reply = o.analysis(project)
	case strings.HasPrefix(prompt, "BREAKDOWN"):
		reply = o.breakdown(project)
	case strings.HasPrefix(prompt, "PRIORITIZE"):
		reply = o.priorities(promptTaskIDs(prompt))
	default:
		return "", errors.NewGenerationError(
			fmt.Sprintf("unrecognized prompt directive %q", firstLine(prompt)),
			errors.ErrGenModelNotFound)
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return "", errors.NewGenerationError("encode reply", err)
	}
	return Validate(string(data))
}

func (o *Offline) analysis(p plan.Project) plan.Analysis {
	complexity := "medium"
	if len(p.TechStack) > 4 || len(p.Team) > 6 {
		complexity = "high"
	}
	return plan.Analysis{
		Summary:    fmt.Sprintf("%s: %d-person team, stack %s", p.Name, len(p.Team), strings.Join(p.TechStack, "/")),
		Risks:      []string{"timeline pressure", "integration complexity"},
		Phases:     []string{"foundation", "core features", "hardening"},
		Complexity: complexity,
	}
}

func (o *Offline) breakdown(p plan.Project) plan.Breakdown {
	var tasks []plan.Task
	var subtasks []plan.Subtask

	phases := []struct {
		slug     string
		title    string
		hours    float64
		category string
	}{
		{"foundation", "Project foundation and scaffolding", 12, "architecture"},
		{"core", "Core feature implementation", 24, "backend"},
		{"interface", "User-facing surface", 16, "frontend"},
		{"hardening", "Testing and hardening", 12, "testing"},
	}

	for i, ph := range phases {
		id := fmt.Sprintf("t%d", i+1)
		tasks = append(tasks, plan.Task{
			ID:             id,
			Title:          ph.title,
			EstimatedHours: ph.hours,
			Category:       ph.category,
			Sprint:         i/2 + 1,
			RequiredSkills: requiredSkillsFor(ph.category, p.TechStack),
		})
		subtasks = append(subtasks, plan.Subtask{
			Task: plan.Task{
				ID:             fmt.Sprintf("%s-s1", id),
				Title:          fmt.Sprintf("Design notes for %s", ph.slug),
				EstimatedHours: ph.hours / 4,
				Category:       ph.category,
			},
			ParentTaskID: id,
		})
	}

	return plan.Breakdown{Tasks: tasks, Subtasks: subtasks}
}

func (o *Offline) priorities(ids []string) plan.PriorityMap {
	out := make(plan.PriorityMap, len(ids))
	ladder := []plan.Priority{plan.PriorityCritical, plan.PriorityHigh, plan.PriorityMedium, plan.PriorityLow}
	for i, id := range ids {
		step := ladder[len(ladder)-1]
		if i < len(ladder) {
			step = ladder[i]
		}
		out[id] = step
	}
	return out
}

func requiredSkillsFor(category string, techStack []string) []string {
	skills := []string{category}
	if len(techStack) > 0 {
		skills = append(skills, strings.ToLower(techStack[0]))
	}
	return skills
}

// projectFromPrompt extracts the JSON project block the prompt builder
// appends after the PROJECT: marker.
func projectFromPrompt(prompt string) (plan.Project, error) {
	_, after, found := strings.Cut(prompt, "PROJECT:")
	if !found {
		return plan.Project{}, errors.NewGenerationError("prompt missing PROJECT block", errors.ErrGenModelNotFound)
	}
	var p plan.Project
	if err := json.Unmarshal([]byte(strings.TrimSpace(after)), &p); err != nil {
		return plan.Project{}, errors.NewGenerationError("decode PROJECT block", err)
	}
	return p, nil
}

// promptTaskIDs extracts the task ID list the prompt builder appends after
// the IDS: marker, one per line.
func promptTaskIDs(prompt string) []string {
	_, after, found := strings.Cut(prompt, "IDS:")
	if !found {
		return nil
	}
	var ids []string
	for _, line := range strings.Split(after, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "PROJECT:") {
			break
		}
		if line != "" {
			ids = append(ids, line)
		}
	}
	return ids
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/waypoint/pkg/domain"
)

// Overlay carries execution outcomes to style on the graph.
type Overlay struct {
	Steps domain.StepResults
}

// GenerateMermaid produces a Mermaid flowchart of the plans' step DAGs.
// It applies semantic styling:
// - Root step (no dependencies): ([Stadium])
// - Conditional step: {{Hexagon}}
// - Default: [Rectangle]
// Optional steps are labelled and their incoming edges dotted. Several plans are
// drawn as one subgraph each.
func GenerateMermaid(plans []*domain.ExecutionPlan, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, p := range plans {
		indent := "    "
		if len(plans) > 1 {
			fmt.Fprintf(&sb, "    subgraph %s[\"%s\"]\n", sanitizeMermaidID(p.ID), escape(p.Name))
			indent = "        "
		}

		for _, step := range p.Steps {
			safeID := sanitizeMermaidID(step.ID)

			opener, closer := "[", "]"
			switch {
			case step.Condition != nil:
				opener, closer = "{{", "}}"
			case len(step.DependsOn) == 0:
				opener, closer = "([", "])"
			}

			label := step.ToolName
			if step.ID != step.ToolName {
				label = fmt.Sprintf("%s <br/> %s", step.ID, step.ToolName)
			}
			if step.Optional {
				label += " <br/> (optional)"
			}
			fmt.Fprintf(&sb, "%s%s%s\"%s\"%s\n", indent, safeID, opener, escape(label), closer)

			for _, dep := range step.DependsOn {
				arrow := "-->"
				if step.Optional {
					arrow = "-.->"
				}
				fmt.Fprintf(&sb, "%s%s %s %s\n", indent, sanitizeMermaidID(dep), arrow, safeID)
			}
		}

		if len(plans) > 1 {
			sb.WriteString("    end\n")
		}
	}

	if overlay != nil && len(overlay.Steps) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef ok fill:#dcfce7,stroke:#15803d,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#fee2e2,stroke:#b91c1c,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef skipped fill:#f3f4f6,stroke:#9ca3af,stroke-dasharray:4,color:#000;\n")

		for _, p := range plans {
			for _, step := range p.Steps {
				res, ok := overlay.Steps[step.ID]
				if !ok {
					continue
				}
				fmt.Fprintf(&sb, "    class %s %s;\n", sanitizeMermaidID(step.ID), outcomeClass(res))
			}
		}
	}

	return sb.String()
}

func outcomeClass(r domain.StepResult) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Success:
		return "ok"
	default:
		return "failed"
	}
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", "#", "_", " ", "_")
	return r.Replace(id)
}

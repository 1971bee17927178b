package tools

import (
	"context"
	"log"
	"sort"

	"github.com/tabsift/flow-plane/internal/flows"
)

// StepTypeTool marks steps that act through an automation tool;
// StepTypeBrowserContext marks everything else.
const (
	StepTypeTool           = "tool"
	StepTypeBrowserContext = "browser_context"
)

// Identifier picks the tool a step invokes out of the candidate list, or ""
// when the step only mentions a platform.
type Identifier interface {
	IdentifyTool(ctx context.Context, step string, options []Definition) (string, error)
}

// Analyzer annotates workflow steps with tool usage and drops workflows that
// never touch a tool.
type Analyzer struct {
	catalog    Catalog
	identifier Identifier
}

func NewAnalyzer(catalog Catalog, identifier Identifier) *Analyzer {
	return &Analyzer{catalog: catalog, identifier: identifier}
}

// Analyze tags every step as tool or browser_context and keeps only the
// workflows with at least one tool step. Identification failures downgrade
// the step to browser_context instead of aborting the batch.
func (a *Analyzer) Analyze(ctx context.Context, workflows []flows.Workflow) []flows.Workflow {
	var kept []flows.Workflow
	for _, workflow := range workflows {
		hasToolStep := false
		for i := range workflow.Steps {
			step := &workflow.Steps[i]
			toolName := a.identifyStep(ctx, step.Description)
			if toolName != "" {
				step.Type = StepTypeTool
				step.Tools = []string{toolName}
				hasToolStep = true
			} else {
				step.Type = StepTypeBrowserContext
			}
		}
		if hasToolStep {
			kept = append(kept, workflow)
		}
	}
	return kept
}

func (a *Analyzer) identifyStep(ctx context.Context, description string) string {
	options := a.catalog.DetectPlatforms(description)
	if len(options) == 0 {
		return ""
	}
	toolName, err := a.identifier.IdentifyTool(ctx, description, options)
	if err != nil {
		log.Printf("tool analysis error: %v", err)
		return ""
	}
	return toolName
}

// ToolSet collects the distinct tools a workflow's steps use, sorted.
// Two workflows with equal tool sets are considered duplicates at persist
// time.
func ToolSet(workflow flows.Workflow) []string {
	seen := map[string]struct{}{}
	for _, step := range workflow.Steps {
		for _, tool := range step.Tools {
			seen[tool] = struct{}{}
		}
	}
	set := make([]string, 0, len(seen))
	for tool := range seen {
		set = append(set, tool)
	}
	sort.Strings(set)
	return set
}

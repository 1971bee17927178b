// Package oracle turns the generic LLM provider into the concrete judgment
// calls the mining pipeline needs: viewport and activity summaries, workflow
// classification, and tool identification.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/tabsift/flow-plane/internal/flows"
	"github.com/tabsift/flow-plane/internal/llm"
	"github.com/tabsift/flow-plane/internal/sessions"
	"github.com/tabsift/flow-plane/internal/tools"
	"github.com/tabsift/flow-plane/internal/trace"
)

type Oracle struct {
	provider llm.Provider
}

func New(provider llm.Provider) *Oracle {
	return &Oracle{provider: provider}
}

const pageSeparator = "\n\n--- PAGE SEPARATOR ---\n\n"

// Summarize condenses the markdown snapshots of a session's pages into a
// short viewport digest.
func (o *Oracle) Summarize(ctx context.Context, markdowns []string) (string, error) {
	prompt := fmt.Sprintf(`Please create a concise viewport summary of the following web page content(s).
Focus on the main topics, key information, and overall purpose. Keep it under 150 words.

Content from %d page(s):
%s
`, len(markdowns), strings.Join(markdowns, pageSeparator))

	return o.provider.Generate(ctx, []llm.Message{{Role: "user", Content: prompt}})
}

// SummarizeActivity describes what the user was doing across a group of
// events, with the viewport digest as context.
func (o *Oracle) SummarizeActivity(ctx context.Context, events []trace.Event, viewport string) (string, error) {
	lines := make([]string, 0, len(events))
	for _, event := range events {
		lines = append(lines, fmt.Sprintf("- %s on %s at %s", event.Type, event.URL, event.Timestamp))
	}

	prompt := fmt.Sprintf(`Analyze this user browsing session and provide a concise activity summary (under 100 words).
Focus on what the user was doing, their intent, and the nature of their interaction.

Viewport Context: %s

User Events:
%s
`, viewport, strings.Join(lines, "\n"))

	return o.provider.Generate(ctx, []llm.Message{{Role: "user", Content: prompt}})
}

var classifyWorkflowTool = llm.Tool{
	Name:        "classify_workflow",
	Description: "Classify the browser sessions as workflow, noise, or unfinished",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"classification": map[string]any{
				"type":        "string",
				"enum":        []string{"workflow", "noise", "unfinished"},
				"description": "Whether this is a complete workflow, noise, or unfinished workflow",
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "Reasoning for this classification decision",
			},
			"workflow_summary": map[string]any{
				"type":        "string",
				"description": "If classification is 'workflow', provide a clear summary of what the workflow accomplishes. Leave empty for noise/unfinished.",
			},
			"workflow_steps": map[string]any{
				"type":        "array",
				"description": "If classification is 'workflow', break down into logical steps. Leave empty for noise/unfinished.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"description": map[string]any{
							"type":        "string",
							"description": "What happens in this step",
						},
					},
					"required": []string{"description"},
				},
			},
		},
		"required": []string{"classification", "reasoning"},
	},
}

// Classify judges a window of sessions as a complete workflow, noise, or an
// unfinished workflow. The model answers through a forced tool call so the
// verdict always arrives as structured JSON.
func (o *Oracle) Classify(ctx context.Context, window []sessions.TabSession) (flows.Verdict, *flows.Workflow, error) {
	descriptions := make([]string, 0, len(window))
	for i, session := range window {
		descriptions = append(descriptions, fmt.Sprintf(
			"Session %d: %s\n  Page content: %s\n  User activity: %s\n  Events: %d",
			i+1, session.URL, session.Viewport, session.ActivitySummary, session.EventCount))
	}

	prompt := fmt.Sprintf(`Analyze this sequence of browser sessions to determine if they constitute a complete workflow, are just noise/random browsing, or are part of an unfinished workflow.

BROWSER SESSIONS TO ANALYZE:
%s

WORKFLOW DEFINITION:
A workflow is a coherent sequence of browser activities that accomplish a SPECIFIC, ACTIONABLE goal. The user must be actively working toward something concrete, not just browsing or consuming content.

VALID WORKFLOW EXAMPLES:
- Research a person on LinkedIn, add their details to a spreadsheet, create or update a CRM contact
- Read support documentation, summarize findings, add to knowledge base
- Check email for meeting request, check calendar availability, respond with availability
- Compare product prices across sites, add item to cart, complete purchase
- Research job posting, update resume, submit application

CRITICAL WORKFLOW REQUIREMENTS:
1. COMPLETE WORKFLOW:
   - Must have 2+ DISTINCT, RELATED ACTIONS that build toward a clear goal
   - Shows intentional progression with PURPOSE (not random browsing)
   - Has a logical story: research, action, completion
   - User must be CREATING, UPDATING, SENDING, or COMPLETING something
   - NOT just reading, browsing, or consuming content
   - It CAN have some noise, just IGNORE it when describing the workflow

2. IGNORE NOISE IN WORKFLOWS:
   - Authentication pages, login flows, OAuth screens are irrelevant noise
   - Accidental clicks, brief visits, loading pages should be ignored
   - Focus only on the meaningful actions that advance the goal
   - If removing noise leaves <2 meaningful steps, it's not a workflow

3. NOISE/RANDOM (classify as "noise"):
   - Just browsing social media, news, entertainment
   - Only reading/consuming content without follow-up action
   - Single actions without clear continuation
   - General research without specific goal or outcome
   - Just "accessing" or "viewing" platforms without doing anything

4. UNFINISHED WORKFLOW:
   - Shows clear intentional progression toward a specific goal
   - Has meaningful actions building up to something
   - But missing the final completion step
   - Could become a complete workflow with more sessions

BE VERY STRICT: If the user is just browsing, reading, or "accessing" things without clear productive action, it is NOT a workflow.
Workflows must tell a story of purposeful work toward a specific outcome. It is possible that within a workflow there is intermittent noise, so if there is ANY logical buildup happening, classify as UNFINISHED.`,
		strings.Join(descriptions, "\n\n"))

	input, err := o.provider.GenerateStructured(ctx, []llm.Message{{Role: "user", Content: prompt}}, classifyWorkflowTool)
	if err != nil {
		return 0, nil, err
	}

	raw, ok := input["classification"].(string)
	if !ok {
		return 0, nil, fmt.Errorf("classification missing from %s result", classifyWorkflowTool.Name)
	}
	verdict, err := flows.ParseVerdict(raw)
	if err != nil {
		return 0, nil, err
	}
	if verdict != flows.VerdictWorkflow {
		return verdict, nil, nil
	}

	workflow := &flows.Workflow{}
	if summary, ok := input["workflow_summary"].(string); ok {
		workflow.Summary = summary
	}
	if rawSteps, ok := input["workflow_steps"].([]any); ok {
		for _, rawStep := range rawSteps {
			step, ok := rawStep.(map[string]any)
			if !ok {
				continue
			}
			description, _ := step["description"].(string)
			workflow.Steps = append(workflow.Steps, flows.WorkflowStep{Description: description})
		}
	}
	return flows.VerdictWorkflow, workflow, nil
}

var identifyToolTool = llm.Tool{
	Name:        "identify_tool",
	Description: "Identify if and which tool the workflow step uses",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"uses_tool": map[string]any{
				"type":        "boolean",
				"description": "Whether this step uses any of the available tools",
			},
			"tool_name": map[string]any{
				"type":        "string",
				"description": "The exact name of the tool used, or empty string if no tool",
			},
		},
		"required": []string{"uses_tool", "tool_name"},
	},
}

// IdentifyTool decides which of the candidate tools a workflow step actually
// invokes. Returns the tool name, or "" when the step only mentions a
// platform without acting through it.
func (o *Oracle) IdentifyTool(ctx context.Context, step string, options []tools.Definition) (string, error) {
	lines := make([]string, 0, len(options))
	for _, option := range options {
		lines = append(lines, fmt.Sprintf("- %s: %s", option.Name, option.Description))
	}

	prompt := fmt.Sprintf(`Analyze this workflow step to determine which specific tool it uses.

WORKFLOW STEP:
%s

AVAILABLE TOOLS:
%s

Determine if this step uses any of the available tools. Look for action words that match tool capabilities:
- Creating, updating, sending, posting: specific tool actions
- Just mentioning or viewing a platform: no tool needed

Be strict: only identify a tool if the step clearly performs an ACTION that requires the tool.`,
		step, strings.Join(lines, "\n"))

	input, err := o.provider.GenerateStructured(ctx, []llm.Message{{Role: "user", Content: prompt}}, identifyToolTool)
	if err != nil {
		return "", err
	}

	usesTool, _ := input["uses_tool"].(bool)
	toolName, _ := input["tool_name"].(string)
	if !usesTool || toolName == "" {
		return "", nil
	}
	return toolName, nil
}

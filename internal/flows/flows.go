package flows

import (
	"context"
	"fmt"

	"github.com/tabsift/flow-plane/internal/sessions"
)

// Verdict is the classification outcome for a window of tab sessions.
type Verdict int

const (
	// VerdictWorkflow marks a window as a complete workflow.
	VerdictWorkflow Verdict = iota
	// VerdictNoise marks a window as random browsing to discard.
	VerdictNoise
	// VerdictUnfinished marks a window as a workflow still missing its
	// completion; the window should grow.
	VerdictUnfinished
)

func (v Verdict) String() string {
	switch v {
	case VerdictWorkflow:
		return "workflow"
	case VerdictNoise:
		return "noise"
	case VerdictUnfinished:
		return "unfinished"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// ParseVerdict maps a wire classification string onto a Verdict.
func ParseVerdict(raw string) (Verdict, error) {
	switch raw {
	case "workflow":
		return VerdictWorkflow, nil
	case "noise":
		return VerdictNoise, nil
	case "unfinished":
		return VerdictUnfinished, nil
	default:
		return 0, fmt.Errorf("unknown classification: %q", raw)
	}
}

// WorkflowStep is one step of an accepted workflow. Type and Tools stay
// empty until tool analysis fills them in downstream.
type WorkflowStep struct {
	Description string   `json:"description"`
	Type        string   `json:"type,omitempty"`
	Tools       []string `json:"tools,omitempty"`
}

// Workflow is a goal-directed sequence of browsing steps accepted by the
// classification oracle.
type Workflow struct {
	Summary string         `json:"summary"`
	Steps   []WorkflowStep `json:"steps"`
}

// Classifier decides whether a window of sessions is a workflow, noise, or
// an unfinished workflow. The returned Workflow is non-nil iff the verdict
// is VerdictWorkflow.
type Classifier interface {
	Classify(ctx context.Context, window []sessions.TabSession) (Verdict, *Workflow, error)
}

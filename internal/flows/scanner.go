package flows

import (
	"context"
	"fmt"

	"github.com/tabsift/flow-plane/internal/sessions"
)

// Result carries the workflows accepted by one scan plus diagnostics.
// UndecidedTail counts the sessions in a trailing suffix the oracle never
// resolved; those sessions produce no workflow and are dropped, but callers
// can tell "nothing found" apart from "ran out of sessions mid-workflow".
type Result struct {
	Workflows     []Workflow `json:"workflows"`
	OracleCalls   int        `json:"oracle_calls"`
	UndecidedTail int        `json:"undecided_tail"`
}

// Scanner partitions an ordered session sequence into workflows by growing
// a window from a left boundary until the classifier returns a decisive
// verdict. The classifier is the single source of truth for workflow
// boundaries; in the worst case the scan issues n(n+1)/2 classifier calls.
type Scanner struct {
	classifier Classifier
}

func NewScanner(classifier Classifier) *Scanner {
	return &Scanner{classifier: classifier}
}

// Scan walks the session sequence with two cursors. A workflow or noise
// verdict advances the left cursor past the window; an unfinished verdict
// grows the window by one session. A suffix that stays unfinished through
// its last possible extension terminates the scan with no output for that
// suffix. Classifier errors are fatal: there is no safe default verdict,
// so the error propagates and the caller retries the whole batch.
func (s *Scanner) Scan(ctx context.Context, seq []sessions.TabSession) (Result, error) {
	result := Result{}
	left := 0

	for left < len(seq) {
		right := left + 1
		decided := false

		for right <= len(seq) {
			window := seq[left:right]
			result.OracleCalls++
			verdict, workflow, err := s.classifier.Classify(ctx, window)
			if err != nil {
				return result, fmt.Errorf("classify window [%d:%d): %w", left, right, err)
			}

			if verdict == VerdictWorkflow {
				if workflow != nil {
					result.Workflows = append(result.Workflows, *workflow)
				}
				left = right
				decided = true
				break
			}
			if verdict == VerdictNoise {
				left = right
				decided = true
				break
			}
			right++
		}

		if !decided {
			result.UndecidedTail = len(seq) - left
			break
		}
	}

	return result, nil
}

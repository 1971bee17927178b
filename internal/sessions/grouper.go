package sessions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tabsift/flow-plane/internal/trace"
)

// NoContentSentinel is emitted as the viewport digest for groups that never
// saw any page markdown; the content summarizer is not called in that case.
const NoContentSentinel = "No content available"

// TabSession is a summarized, contiguous group of events sharing a
// navigational context. Immutable once built; EventCount is always >= 1.
type TabSession struct {
	URL             string `json:"url"`
	Viewport        string `json:"viewport"`
	ActivitySummary string `json:"activity_summary"`
	EventCount      int    `json:"event_count"`
	TabID           *int64 `json:"tab_id,omitempty"`
}

type ContentSummarizer interface {
	Summarize(ctx context.Context, markdowns []string) (string, error)
}

type ActivitySummarizer interface {
	SummarizeActivity(ctx context.Context, events []trace.Event, viewport string) (string, error)
}

// Grouper partitions a time-ordered event sequence into tab sessions.
// Summarizer failures never abort a scan; they degrade into placeholder
// digests so every non-empty group still yields a session.
type Grouper struct {
	content  ContentSummarizer
	activity ActivitySummarizer
}

func NewGrouper(content ContentSummarizer, activity ActivitySummarizer) *Grouper {
	return &Grouper{content: content, activity: activity}
}

// Group runs the stateful scan over events. A page-load whose base URL
// differs from the open group's closes the group and opens a new one; a
// tab-switch always closes and opens with the base URL tracking reset; a
// tab-removal closes without opening; every other event is appended to the
// open group. The per-tab markdown table lives only for the duration of one
// call, so concurrent batches stay independent.
func (g *Grouper) Group(ctx context.Context, events []trace.Event) []TabSession {
	var sessions []TabSession
	var current []trace.Event
	var currentBaseURL *string
	tabMarkdowns := map[int64]string{}

	flush := func() {
		if len(current) == 0 {
			return
		}
		sessions = append(sessions, g.summarizeGroup(ctx, current, tabMarkdowns))
		current = nil
	}

	for _, event := range events {
		if event.Type == trace.TypePageLoad {
			if event.TabID != nil {
				if markdown := event.Markdown(); markdown != "" {
					tabMarkdowns[*event.TabID] = markdown
				}
			}
		}

		switch event.Type {
		case trace.TypePageLoad:
			eventBaseURL := trace.BaseURL(event.URL)
			if !trace.SameBaseURL(eventBaseURL, currentBaseURL) {
				flush()
				current = []trace.Event{event}
				currentBaseURL = eventBaseURL
			} else {
				current = append(current, event)
			}
		case trace.TypeTabSwitch:
			flush()
			current = []trace.Event{event}
			currentBaseURL = nil
		case trace.TypeTabRemoval:
			flush()
			currentBaseURL = nil
		default:
			current = append(current, event)
		}
	}
	flush()

	return sessions
}

func (g *Grouper) summarizeGroup(ctx context.Context, group []trace.Event, tabMarkdowns map[int64]string) TabSession {
	first := group[0]
	baseURL := trace.BaseURL(first.URL)
	tabID := first.TabID

	var markdowns []string
	for _, event := range group {
		if event.Type != trace.TypePageLoad {
			continue
		}
		if markdown := event.Markdown(); markdown != "" {
			markdowns = append(markdowns, markdown)
		}
	}
	// Groups that start with a tab-switch into an already-loaded page carry
	// no markdown of their own; fall back to the tab's last known content.
	if len(markdowns) == 0 && tabID != nil {
		if markdown, ok := tabMarkdowns[*tabID]; ok {
			markdowns = append(markdowns, markdown)
		}
	}

	viewport := g.summarizeContent(ctx, markdowns)
	activity := g.summarizeActivity(ctx, group, viewport)

	url := "Unknown"
	if baseURL != nil {
		url = *baseURL
	}
	return TabSession{
		URL:             url,
		Viewport:        viewport,
		ActivitySummary: activity,
		EventCount:      len(group),
		TabID:           tabID,
	}
}

func (g *Grouper) summarizeContent(ctx context.Context, markdowns []string) string {
	if len(markdowns) == 0 {
		return NoContentSentinel
	}
	summary, err := g.content.Summarize(ctx, markdowns)
	if err != nil {
		return fmt.Sprintf("Viewport summary of %d page(s) - Error: %v", len(markdowns), err)
	}
	return summary
}

func (g *Grouper) summarizeActivity(ctx context.Context, group []trace.Event, viewport string) string {
	summary, err := g.activity.SummarizeActivity(ctx, group, viewport)
	if err != nil {
		return fmt.Sprintf("Activity summary: %d events (%s) - Error: %v", len(group), eventTypeList(group), err)
	}
	return summary
}

func eventTypeList(group []trace.Event) string {
	seen := map[string]struct{}{}
	types := make([]string, 0, len(group))
	for _, event := range group {
		if _, ok := seen[event.Type]; ok {
			continue
		}
		seen[event.Type] = struct{}{}
		types = append(types, event.Type)
	}
	sort.Strings(types)
	return strings.Join(types, ", ")
}

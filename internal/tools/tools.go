// Package tools loads the automation tool catalog and annotates workflow
// steps with the tools they invoke.
package tools

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Definition is one automation tool as dumped by the integrations exporter.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalog maps a platform name to the tools available on it.
type Catalog map[string][]Definition

// Load reads every *.txt file in dir as JSON-lines tool dumps, keyed by the
// file name without extension. Malformed lines are skipped; a missing
// directory yields an empty catalog rather than an error so deployments
// without a tool dump still mine workflows.
func Load(dir string) (Catalog, error) {
	catalog := Catalog{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return catalog, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		platform := strings.TrimSuffix(entry.Name(), ".txt")
		definitions, err := loadDump(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		catalog[platform] = definitions
	}

	return catalog, nil
}

func loadDump(path string) ([]Definition, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var definitions []Definition
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var definition Definition
		if err := json.Unmarshal([]byte(line), &definition); err != nil {
			continue
		}
		definitions = append(definitions, definition)
	}
	return definitions, scanner.Err()
}

type platformKeyword struct {
	keyword  string
	platform string
}

// platformKeywords maps lowercase phrases in step descriptions to catalog
// platform names. Ordered so candidate lists are stable across runs.
var platformKeywords = []platformKeyword{
	{"slack", "slack"},
	{"jira", "jira"},
	{"linear", "linear"},
	{"notion", "notion"},
	{"hubspot", "hubspot"},
	{"google sheets", "google_sheets"},
	{"google docs", "google_docs"},
	{"google drive", "google_drive"},
	{"google calendar", "google_calendar"},
	{"gmail", "gmail"},
	{"github", "github"},
	{"discord", "discord"},
	{"reddit", "reddit"},
	{"microsoft outlook", "microsoft_outlook"},
	{"microsoft teams", "microsoft_teams"},
}

// DetectPlatforms returns the tools of every catalog platform a step
// description mentions by keyword.
func (c Catalog) DetectPlatforms(stepText string) []Definition {
	lowered := strings.ToLower(stepText)
	var options []Definition
	for _, entry := range platformKeywords {
		if !strings.Contains(lowered, entry.keyword) {
			continue
		}
		definitions, ok := c[entry.platform]
		if !ok {
			continue
		}
		options = append(options, definitions...)
	}
	return options
}

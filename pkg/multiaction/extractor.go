package multiaction

import (
	"regexp"
	"strings"
)

// Extractor derives the independent targets implied by a user message.
// It is a pluggable strategy so the heuristic can be swapped and
// tested apart from the guard's state machine.
type Extractor interface {
	ExtractTargets(text string) []string
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	listSplitter = regexp.MustCompile(`\s*,\s*|\s+and\s+`)
)

// HeuristicExtractor extracts targets from structural cues: email-like
// tokens first, otherwise the items of an "and"-joined enumeration.
type HeuristicExtractor struct{}

// NewHeuristicExtractor creates the default extractor
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

// ExtractTargets returns the ordered list of apparent targets
func (e *HeuristicExtractor) ExtractTargets(text string) []string {
	if emails := emailPattern.FindAllString(text, -1); len(emails) > 0 {
		return dedupe(emails)
	}

	if !strings.Contains(text, " and ") {
		return nil
	}

	// "x, y and z" style enumerations: take the trailing clause after
	// the last verb-ish prefix is too fragile to guess, so split the
	// whole message and keep short segments that look like names.
	parts := listSplitter.Split(text, -1)
	targets := []string{}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		words := strings.Fields(part)
		// A target-like segment is the last few words of each clause
		if len(words) > 3 {
			words = words[len(words)-1:]
		}
		targets = append(targets, strings.Join(words, " "))
	}

	if len(targets) < 2 {
		return nil
	}
	return dedupe(targets)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

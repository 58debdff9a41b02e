package types

import (
	"strings"
	"time"
)

// Evidence is one source's contribution to a settlement attempt.
type Evidence struct {
	Source     string    `json:"source"`
	Payload    string    `json:"payload"`
	Confidence float64   `json:"confidence"` // [0,1]
	CapturedAt time.Time `json:"capturedAt"`
	Fallback   bool      `json:"fallback,omitempty"`
}

// EvidenceBundle is the ordered evidence gathered for one question.
// It lives for a single settlement cycle.
type EvidenceBundle struct {
	Question string     `json:"question"`
	Entries  []Evidence `json:"entries"`
}

// RealSources counts entries that came from an actual source rather than the fallback.
func (b *EvidenceBundle) RealSources() int {
	n := 0
	for i := range b.Entries {
		if !b.Entries[i].Fallback && b.Entries[i].Confidence > 0 {
			n++
		}
	}
	return n
}

// Context renders the bundle as prompt text, one block per source.
func (b *EvidenceBundle) Context() string {
	blocks := make([]string, 0, len(b.Entries))
	for i := range b.Entries {
		blocks = append(blocks, "Source: "+b.Entries[i].Source+"\n"+b.Entries[i].Payload)
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// Verdict is the structured outcome judgment produced by one node.
// All fields are comparable so two verdicts can be checked with ==.
type Verdict struct {
	Outcome      string  `json:"outcome"`
	OutcomeIndex int     `json:"outcomeIndex"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

// IsFallback reports whether the verdict must not be used to settle.
func (v Verdict) IsFallback() bool {
	return v.Confidence <= 0
}

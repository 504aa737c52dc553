package movement

import (
	"regexp"
	"strings"
)

// ReferenceTypeWalkIn marks a walk-in transaction reference.
const ReferenceTypeWalkIn = "walk-in"

// Reference is structured data extracted from movement notes.
// Exactly one of (Type, ID) or Reason is set.
type Reference struct {
	Type   string `json:"type,omitempty"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Extractor recognizes one reference grammar inside free-form notes.
type Extractor interface {
	Extract(notes string) (Reference, bool)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(notes string) (Reference, bool)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(notes string) (Reference, bool) { return f(notes) }

var (
	walkInPattern = regexp.MustCompile(`\bWI-\d{8}-\d{4}\b`)
	reasonPattern = regexp.MustCompile(`\(Reason:\s*([^)]*?)\s*\)`)
)

// WalkInExtractor finds a WI-YYYYMMDD-NNNN transaction token anywhere in notes.
var WalkInExtractor Extractor = ExtractorFunc(func(notes string) (Reference, bool) {
	token := walkInPattern.FindString(notes)
	if token == "" {
		return Reference{}, false
	}
	return Reference{Type: ReferenceTypeWalkIn, ID: token}, true
})

// ReasonExtractor finds a "(Reason: <text>)" annotation. An empty reason is no match.
var ReasonExtractor Extractor = ExtractorFunc(func(notes string) (Reference, bool) {
	m := reasonPattern.FindStringSubmatch(notes)
	if m == nil {
		return Reference{}, false
	}
	reason := strings.TrimSpace(m[1])
	if reason == "" {
		return Reference{}, false
	}
	return Reference{Reason: reason}, true
})

// ReferenceParser tries its extractors in order and returns the first match.
type ReferenceParser struct {
	extractors []Extractor
}

// NewReferenceParser builds a parser over the given extractors.
func NewReferenceParser(extractors ...Extractor) *ReferenceParser {
	return &ReferenceParser{extractors: extractors}
}

// Parse returns the first extracted reference, or nil when nothing matches.
func (p *ReferenceParser) Parse(notes string) *Reference {
	if strings.TrimSpace(notes) == "" {
		return nil
	}
	for _, e := range p.extractors {
		if ref, ok := e.Extract(notes); ok {
			return &ref
		}
	}
	return nil
}

var defaultParser = NewReferenceParser(WalkInExtractor, ReasonExtractor)

// ExtractReference parses notes with the default grammars: transaction tokens take
// precedence over reason annotations.
func ExtractReference(notes string) *Reference {
	return defaultParser.Parse(notes)
}

// WalkInID returns the walk-in transaction token in notes, or "".
func WalkInID(notes string) string {
	if ref, ok := WalkInExtractor.Extract(notes); ok {
		return ref.ID
	}
	return ""
}

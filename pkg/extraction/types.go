// Package extraction turns raw evidence (notes, transcripts, imports) into
// graph writes: entities, identities, assertions and edges.
package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rolograph/rolograph/pkg/graph"
)

// ExtractedIdentity is one identifier the model found for a person.
type ExtractedIdentity struct {
	Namespace string `json:"namespace"`
	Value     string `json:"value"`
}

// ExtractedFact is one fact the model found about a person.
type ExtractedFact struct {
	Predicate  string  `json:"predicate"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ExtractedPerson is one person mentioned in the evidence. NameVariations
// holds alternate spellings of the same name the model saw in the text
// (diminutives, transliterations); they become extra name identities and help
// later runs find the person again.
type ExtractedPerson struct {
	Name           string              `json:"name"`
	NameVariations []string            `json:"name_variations,omitempty"`
	IsSelf         bool                `json:"is_self,omitempty"`
	Identities     []ExtractedIdentity `json:"identities,omitempty"`
	Facts          []ExtractedFact     `json:"facts,omitempty"`
}

// ExtractedEdge is one relationship between two mentioned persons, referenced
// by their names as they appear in Persons.
type ExtractedEdge struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Type    string `json:"type"`
	Context string `json:"context,omitempty"`
}

// ExtractionResult is the typed shape the model must produce.
type ExtractionResult struct {
	Persons []ExtractedPerson `json:"persons"`
	Edges   []ExtractedEdge   `json:"edges,omitempty"`
}

// ParseResult decodes and sanitizes raw model output. Model output is
// untrusted: unknown predicates and edge types are dropped, confidences are
// clamped to [0, 1], and persons without a usable name are discarded. The
// result is safe to feed into the pipeline as-is.
func ParseResult(raw string) (*ExtractionResult, error) {
	raw = stripCodeFence(raw)

	var result ExtractionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to decode extraction output: %w", err)
	}

	result.sanitize()
	return &result, nil
}

func (r *ExtractionResult) sanitize() {
	persons := r.Persons[:0]
	names := make(map[string]bool, len(r.Persons))
	for _, p := range r.Persons {
		p.Name = graph.NormalizeName(p.Name)
		if p.Name == "" {
			continue
		}
		key := strings.ToLower(p.Name)
		if names[key] {
			continue
		}
		names[key] = true

		facts := p.Facts[:0]
		for _, f := range p.Facts {
			f.Value = strings.TrimSpace(f.Value)
			if f.Value == "" || !graph.Predicate(f.Predicate).IsValid() {
				continue
			}
			if f.Confidence < 0 {
				f.Confidence = 0
			}
			if f.Confidence > 1 {
				f.Confidence = 1
			}
			facts = append(facts, f)
		}
		p.Facts = facts

		identities := p.Identities[:0]
		for _, ident := range p.Identities {
			if strings.TrimSpace(ident.Value) == "" {
				continue
			}
			identities = append(identities, ident)
		}
		p.Identities = identities

		variations := p.NameVariations[:0]
		seenVariations := map[string]bool{key: true}
		for _, v := range p.NameVariations {
			v = graph.NormalizeName(v)
			vkey := strings.ToLower(v)
			if v == "" || seenVariations[vkey] {
				continue
			}
			seenVariations[vkey] = true
			variations = append(variations, v)
		}
		p.NameVariations = variations

		persons = append(persons, p)
	}
	r.Persons = persons

	edges := r.Edges[:0]
	for _, e := range r.Edges {
		e.From = graph.NormalizeName(e.From)
		e.To = graph.NormalizeName(e.To)
		if e.From == "" || e.To == "" || strings.EqualFold(e.From, e.To) {
			continue
		}
		if !graph.EdgeType(e.Type).IsValid() {
			continue
		}
		edges = append(edges, e)
	}
	r.Edges = edges
}

// stripCodeFence removes a markdown code fence the model sometimes wraps
// around JSON output despite JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

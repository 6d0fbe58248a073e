// Package gaps finds what the owner does not yet know about their contacts
// and turns the most valuable missing pieces into a small stream of proactive
// questions, throttled so the stream never becomes a chore.
package gaps

import (
	"fmt"

	"github.com/rolograph/rolograph/pkg/graph"
)

// Dimension is one axis of the completeness rubric.
type Dimension string

const (
	DimensionContactContext    Dimension = "contact_context"
	DimensionRelationshipDepth Dimension = "relationship_depth"
	DimensionContactInfo       Dimension = "contact_info"
	DimensionCompetencies      Dimension = "competencies"
	DimensionWorkInfo          Dimension = "work_info"
	DimensionLocation          Dimension = "location"
)

// dimensionPriorities rank gaps by how much a missing answer hurts recall
// later. How you met someone and how well you know them decay fastest from
// memory, so they outrank stable facts like employer or city.
var dimensionPriorities = map[Dimension]float64{
	DimensionContactContext:    0.95,
	DimensionRelationshipDepth: 0.90,
	DimensionContactInfo:       0.75,
	DimensionCompetencies:      0.70,
	DimensionWorkInfo:          0.60,
	DimensionLocation:          0.40,
}

// Priority returns the base priority of a dimension.
func (d Dimension) Priority() float64 {
	return dimensionPriorities[d]
}

// AllDimensions lists the rubric axes in priority order.
func AllDimensions() []Dimension {
	return []Dimension{
		DimensionContactContext,
		DimensionRelationshipDepth,
		DimensionContactInfo,
		DimensionCompetencies,
		DimensionWorkInfo,
		DimensionLocation,
	}
}

// Profile is the knowledge snapshot of one entity the rubric evaluates.
type Profile struct {
	Predicates map[graph.Predicate]bool
	Identities []*graph.Identity
	EdgeCount  int64
}

// Covered reports whether the profile satisfies a dimension.
func (p *Profile) Covered(d Dimension) bool {
	switch d {
	case DimensionContactContext:
		return p.Predicates[graph.PredicateContactContext]
	case DimensionRelationshipDepth:
		return p.EdgeCount > 0 ||
			p.Predicates[graph.PredicateTrustedBy] ||
			p.Predicates[graph.PredicateIntroPath]
	case DimensionContactInfo:
		for _, ident := range p.Identities {
			switch ident.Namespace {
			case graph.NamespaceEmail, graph.NamespacePhone, graph.NamespaceTelegram, graph.NamespaceLinkedIn:
				return true
			}
		}
		return false
	case DimensionCompetencies:
		return p.Predicates[graph.PredicateStrongAt] || p.Predicates[graph.PredicateCanHelpWith]
	case DimensionWorkInfo:
		return p.Predicates[graph.PredicateWorksAt] || p.Predicates[graph.PredicateRoleIs]
	case DimensionLocation:
		return p.Predicates[graph.PredicateLocatedIn]
	default:
		return true
	}
}

// Completeness returns the covered fraction of the rubric and the missing
// dimensions in priority order.
func (p *Profile) Completeness() (float64, []Dimension) {
	var missing []Dimension
	covered := 0
	for _, d := range AllDimensions() {
		if p.Covered(d) {
			covered++
		} else {
			missing = append(missing, d)
		}
	}
	return float64(covered) / float64(len(dimensionPriorities)), missing
}

// questionTemplates hold the bilingual prompt per dimension. %s is the
// contact's display name.
var questionTemplates = map[Dimension][2]string{
	DimensionContactContext: {
		"How did you meet %s?",
		"Как вы познакомились с %s?",
	},
	DimensionRelationshipDepth: {
		"How well do you know %s? Who introduced you?",
		"Насколько хорошо вы знаете %s? Кто вас познакомил?",
	},
	DimensionContactInfo: {
		"How can you reach %s? (email, phone, Telegram, LinkedIn)",
		"Как можно связаться с %s? (почта, телефон, Telegram, LinkedIn)",
	},
	DimensionCompetencies: {
		"What is %s especially good at?",
		"В чём %s особенно силён?",
	},
	DimensionWorkInfo: {
		"Where does %s work, and in what role?",
		"Где работает %s и в какой роли?",
	},
	DimensionLocation: {
		"Where is %s based?",
		"Где находится %s?",
	},
}

// QuestionTexts renders the EN and RU question texts for a dimension.
func QuestionTexts(d Dimension, displayName string) (en, ru string) {
	tmpl, ok := questionTemplates[d]
	if !ok {
		return "", ""
	}
	return fmt.Sprintf(tmpl[0], displayName), fmt.Sprintf(tmpl[1], displayName)
}

// answerPredicates map a dimension to the predicate its answer is stored
// under: how-we-met stays contact_context, reachability answers describe an
// intro path, competency answers describe what the person can help with, and
// work answers are employment facts. Dimensions without a structured home
// (relationship depth, location) land as notes via the fallback.
var answerPredicates = map[Dimension]graph.Predicate{
	DimensionContactContext: graph.PredicateContactContext,
	DimensionContactInfo:    graph.PredicateIntroPath,
	DimensionCompetencies:   graph.PredicateCanHelpWith,
	DimensionWorkInfo:       graph.PredicateWorksAt,
}

// AnswerPredicate returns the predicate an answer for this dimension maps to.
func AnswerPredicate(d Dimension) graph.Predicate {
	if p, ok := answerPredicates[d]; ok {
		return p
	}
	return graph.PredicateNote
}

package gaps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolograph/rolograph/pkg/graph"
)

func TestCompletenessEmptyProfile(t *testing.T) {
	p := &Profile{Predicates: map[graph.Predicate]bool{}}
	completeness, missing := p.Completeness()

	assert.Equal(t, 0.0, completeness)
	require.Len(t, missing, 6)
	// Missing dimensions come back in priority order.
	assert.Equal(t, DimensionContactContext, missing[0])
	assert.Equal(t, DimensionLocation, missing[5])
}

func TestCompletenessPartialProfile(t *testing.T) {
	p := &Profile{
		Predicates: map[graph.Predicate]bool{
			graph.PredicateWorksAt:        true,
			graph.PredicateStrongAt:       true,
			graph.PredicateContactContext: true,
		},
		Identities: []*graph.Identity{
			{Namespace: graph.NamespaceEmail, Value: "a@example.com"},
		},
		EdgeCount: 0,
	}
	completeness, missing := p.Completeness()

	assert.InDelta(t, 4.0/6.0, completeness, 1e-9)
	assert.Equal(t, []Dimension{DimensionRelationshipDepth, DimensionLocation}, missing)
}

func TestRelationshipDepthCoveredByEdges(t *testing.T) {
	p := &Profile{Predicates: map[graph.Predicate]bool{}, EdgeCount: 2}
	assert.True(t, p.Covered(DimensionRelationshipDepth))

	p = &Profile{Predicates: map[graph.Predicate]bool{graph.PredicateIntroPath: true}}
	assert.True(t, p.Covered(DimensionRelationshipDepth))
}

func TestContactInfoIgnoresWeakNamespaces(t *testing.T) {
	p := &Profile{
		Predicates: map[graph.Predicate]bool{},
		Identities: []*graph.Identity{
			{Namespace: graph.NamespaceFreeformName, Value: "Anna Kovaleva"},
		},
	}
	assert.False(t, p.Covered(DimensionContactInfo))

	p.Identities = append(p.Identities, &graph.Identity{
		Namespace: graph.NamespacePhone, Value: "+14155550199",
	})
	assert.True(t, p.Covered(DimensionContactInfo))
}

func TestDimensionPriorityOrdering(t *testing.T) {
	dims := AllDimensions()
	for i := 1; i < len(dims); i++ {
		assert.Greater(t, dims[i-1].Priority(), dims[i].Priority(),
			"dimensions must be listed in strictly decreasing priority")
	}
}

func TestQuestionTextsBilingual(t *testing.T) {
	en, ru := QuestionTexts(DimensionContactContext, "Anna")
	assert.Equal(t, "How did you meet Anna?", en)
	assert.Equal(t, "Как вы познакомились с Anna?", ru)
}

func TestAnswerPredicateMapping(t *testing.T) {
	assert.Equal(t, graph.PredicateContactContext, AnswerPredicate(DimensionContactContext))
	assert.Equal(t, graph.PredicateIntroPath, AnswerPredicate(DimensionContactInfo))
	assert.Equal(t, graph.PredicateCanHelpWith, AnswerPredicate(DimensionCompetencies))
	assert.Equal(t, graph.PredicateWorksAt, AnswerPredicate(DimensionWorkInfo))

	// Everything else falls back to a note.
	assert.Equal(t, graph.PredicateNote, AnswerPredicate(DimensionRelationshipDepth))
	assert.Equal(t, graph.PredicateNote, AnswerPredicate(DimensionLocation))
	assert.Equal(t, graph.PredicateNote, AnswerPredicate(Dimension("unknown")))
}

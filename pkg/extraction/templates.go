package extraction

import (
	"fmt"

	"github.com/rolograph/rolograph/pkg/graph"
)

// sentenceTemplates render a (subject, predicate, value) triple as a natural
// sentence. Embeddings of full sentences cluster far better than embeddings
// of bare values, so every assertion is embedded through its template.
var sentenceTemplates = map[graph.Predicate]string{
	graph.PredicateWorksAt:        "%s works at %s",
	graph.PredicateRoleIs:         "%s's role is %s",
	graph.PredicateCanHelpWith:    "%s can help with %s",
	graph.PredicateStrongAt:       "%s is strong at %s",
	graph.PredicateInterestedIn:   "%s is interested in %s",
	graph.PredicateTrustedBy:      "%s is trusted by %s",
	graph.PredicateKnows:          "%s knows %s",
	graph.PredicateIntroPath:      "%s can be reached through %s",
	graph.PredicateLocatedIn:      "%s is located in %s",
	graph.PredicateWorkedOn:       "%s worked on %s",
	graph.PredicateSpeaksLanguage: "%s speaks %s",
	graph.PredicateBackground:     "%s has a background in %s",
	graph.PredicateContactContext: "%s was met through %s",
	graph.PredicateReputationNote: "about %s's reputation: %s",
	graph.PredicateNote:           "note about %s: %s",
	graph.PredicateSelfRole:       "%s's own role is %s",
	graph.PredicateSelfOffer:      "%s offers %s",
	graph.PredicateSelfSeek:       "%s is looking for %s",
}

// SentenceFor renders an assertion as embedding text.
func SentenceFor(name string, predicate graph.Predicate, value string) string {
	tmpl, ok := sentenceTemplates[predicate]
	if !ok {
		return fmt.Sprintf("%s: %s", name, value)
	}
	return fmt.Sprintf(tmpl, name, value)
}

package extraction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evidenceProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rolograph",
		Subsystem: "extraction",
		Name:      "evidence_total",
		Help:      "Evidence records processed by the extraction pipeline, by outcome",
	}, []string{"outcome"})

	entitiesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rolograph",
		Subsystem: "extraction",
		Name:      "entities_created_total",
		Help:      "Entities created from extracted mentions",
	})

	assertionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rolograph",
		Subsystem: "extraction",
		Name:      "assertions_created_total",
		Help:      "Assertions written by the extraction pipeline",
	})

	edgesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rolograph",
		Subsystem: "extraction",
		Name:      "edges_created_total",
		Help:      "Relationship edges written by the extraction pipeline",
	})
)

func recordResult(result *Result) {
	evidenceProcessed.WithLabelValues("done").Inc()
	entitiesCreated.Add(float64(result.EntitiesCreated))
	assertionsCreated.Add(float64(result.AssertionsCreated))
	edgesCreated.Add(float64(result.EdgesCreated))
}

package vectorindex

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// selectionsTotal counts index selections.
	// Labels: result (hit, loaded, bootstrapped, error)
	selectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trails",
			Subsystem: "vectorindex",
			Name:      "selections_total",
			Help:      "Total number of vector index selections by outcome",
		},
		[]string{"result"},
	)

	// searchesTotal counts similarity searches.
	// Labels: result (matched, empty, error)
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trails",
			Subsystem: "vectorindex",
			Name:      "searches_total",
			Help:      "Total number of similarity searches by outcome",
		},
		[]string{"result"},
	)
)

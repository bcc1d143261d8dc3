package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// linksTotal counts linking outcomes per origin/target pair.
// Labels: relationship, result (created, skipped, failed)
var linksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trails",
		Subsystem: "graph",
		Name:      "links_total",
		Help:      "Total number of node pairs processed by linking, by outcome",
	},
	[]string{"relationship", "result"},
)

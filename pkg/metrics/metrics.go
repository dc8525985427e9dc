package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoreMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manhua_store_mutations_total",
			Help: "Total number of persisted store mutations by operation.",
		},
		[]string{"op"},
	)

	StoreLookupMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manhua_store_lookup_misses_total",
			Help: "Total number of mutations that targeted a missing id and were ignored.",
		},
		[]string{"op"},
	)

	Generations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manhua_generations_total",
			Help: "Total number of image generation attempts by kind and status.",
		},
		[]string{"kind", "status"},
	)

	Restores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manhua_restores_total",
			Help: "Total number of restore attempts by outcome.",
		},
		[]string{"outcome"},
	)

	RemoteBackups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manhua_remote_backups_total",
			Help: "Total number of remote backup transfers by direction and status.",
		},
		[]string{"direction", "status"},
	)
)

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts pipeline work across every stream hashed with it.
type Metrics struct {
	StreamsHashed           prometheus.Counter
	ChunksHashed            prometheus.Counter
	MissedOptimisticHashing prometheus.Counter
}

// NewMetrics registers the pipeline counters with registerer. A nil
// registerer creates unregistered counters.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		StreamsHashed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmhash",
			Subsystem: "pipeline",
			Name:      "streams_hashed_total",
			Help:      "Number of streams hashed to a root reference.",
		}),
		ChunksHashed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmhash",
			Subsystem: "pipeline",
			Name:      "leaf_chunks_hashed_total",
			Help:      "Number of leaf chunks fed through the pipeline.",
		}),
		MissedOptimisticHashing: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmhash",
			Subsystem: "pipeline",
			Name:      "missed_optimistic_hashing_total",
			Help:      "Number of compaction key searches redone after the bucket state changed.",
		}),
	}
}

func (m *Metrics) observeStream(chunks, missed int64) {
	m.StreamsHashed.Inc()
	m.ChunksHashed.Add(float64(chunks))
	m.MissedOptimisticHashing.Add(float64(missed))
}

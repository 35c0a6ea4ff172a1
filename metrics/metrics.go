// Package metrics defines the Prometheus gauges/counters the pipeline
// exposes (spec §6's stats endpoint). Grounded on the third-party stack
// carried from the broader example pack (onflow-flow-go wires
// prometheus/client_golang throughout its consensus components); this
// package centralizes the vector registrations so every stage shares one
// registry instead of each hand-rolling its own.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	StageQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "swirlnode",
		Subsystem: "pipeline",
		Name:      "stage_queue_depth",
		Help:      "Number of items waiting in a stage's input queue.",
	}, []string{"stage"})

	StageDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swirlnode",
		Subsystem: "pipeline",
		Name:      "stage_drops_total",
		Help:      "Events dropped by a stage, labeled by reason.",
	}, []string{"stage", "reason"})

	StageProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swirlnode",
		Subsystem: "pipeline",
		Name:      "stage_processed_total",
		Help:      "Events successfully processed by a stage.",
	}, []string{"stage"})

	ConsensusRoundsEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swirlnode",
		Subsystem: "consensus",
		Name:      "rounds_emitted_total",
		Help:      "Consensus rounds emitted by the consensus engine.",
	})

	LatestDurableSequenceNumber = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "swirlnode",
		Subsystem: "pces",
		Name:      "latest_durable_sequence_number",
		Help:      "Highest PCES stream sequence number confirmed fsynced.",
	})

	NonAncientWindowMin = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "swirlnode",
		Subsystem: "window",
		Name:      "min_non_ancient",
		Help:      "Current minimum non-ancient generation or birth round.",
	})
)

// Register adds every collector in this package to reg. Called once during
// platform startup.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		StageQueueDepth,
		StageDrops,
		StageProcessed,
		ConsensusRoundsEmitted,
		LatestDurableSequenceNumber,
		NonAncientWindowMin,
	)
}

// Package metrics exposes Prometheus collectors for the versioning subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BitstreamsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preserv_bitstreams_created_total",
			Help: "Total number of bitstreams finalized in the asset store",
		},
	)

	BitstreamBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preserv_bitstream_bytes_written_total",
			Help: "Total bytes streamed through the digest sink",
		},
	)

	ManifestsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preserv_manifests_generated_total",
			Help: "Total number of manifests materialized, by kind",
		},
		[]string{"kind"},
	)

	ManifestGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preserv_manifest_generation_seconds",
			Help:    "Manifest generation duration in seconds, by kind",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	VersionPromotions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preserv_version_promotions_total",
			Help: "Total number of working versions promoted to the archive",
		},
	)

	VersionRestores = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preserv_version_restores_total",
			Help: "Total number of archived versions restored for editing",
		},
	)

	VersionsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preserv_versions_removed_total",
			Help: "Total number of version records removed",
		},
	)
)

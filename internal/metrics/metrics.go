// Package metrics implements Prometheus metrics.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Packet results recorded by PacketsTotal.
const (
	ResultDecoded = "decoded"
	ResultSkipped = "skipped"
	ResultEmpty   = "empty"
)

var (
	// PacketsTotal counts packets read from captures by decode result
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapsift_packets_total",
			Help: "Total number of packets read from capture files",
		},
		[]string{"result"},
	)

	// FlowsTotal counts distinct flow keys tracked by the reassembler
	FlowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapsift_flows_total",
			Help: "Total number of unidirectional flows reassembled",
		},
		[]string{"proto"},
	)

	// ArtifactsTotal counts artifacts written to disk by origin
	ArtifactsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapsift_artifacts_total",
			Help: "Total number of artifacts exported",
		},
		[]string{"source"},
	)

	// ExportFailuresTotal counts artifacts that could not be written
	ExportFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapsift_export_failures_total",
			Help: "Total number of artifact export failures",
		},
		[]string{"reason"},
	)

	// HTTP2ErrorsTotal counts HTTP/2 framing errors that ended a stream scan
	HTTP2ErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapsift_http2_errors_total",
			Help: "Total number of HTTP/2 framing errors",
		},
	)

	// ReassemblyPendingDatagrams tracks IPv4 datagrams awaiting more fragments
	ReassemblyPendingDatagrams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcapsift_reassembly_pending_datagrams",
			Help: "Number of IPv4 datagrams in the fragment reassembly queue",
		},
	)
)

// WriteTextfile dumps the default registry in text exposition format,
// suitable for the node_exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

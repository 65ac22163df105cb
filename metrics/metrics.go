// Package metrics exposes the runtime's Prometheus instrumentation: chain
// sync timings, transfer composition outcomes, and RPC request counts. The
// AssetClient leg is additionally instrumented via grpc-ecosystem's own
// prometheus interceptor, registered against the same registry by the
// caller wiring the daemon connection together.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// TransferOutcome labels a terminal state of the Transfer Composer.
type TransferOutcome string

const (
	TransferSuccess              TransferOutcome = "success"
	TransferInsufficientFunds    TransferOutcome = "insufficient_funds"
	TransferCannotAllocateChange TransferOutcome = "cannot_allocate_rgb_change"
	TransferRejectedPolicy       TransferOutcome = "rejected_policy"
	TransferDaemonError          TransferOutcome = "daemon_error"
)

// ReplyKind labels the high-level shape of an RPC reply, independent of the
// specific request type, so dashboards can track the error/success split
// without a metric per request kind.
type ReplyKind string

const (
	ReplySuccess ReplyKind = "success"
	ReplyFailure ReplyKind = "failure"
)

var (
	SyncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "citadel",
		Subsystem: "sync",
		Name:      "contract_sync_seconds",
		Help:      "Duration of SyncContract calls, by chain tag.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"chain"})

	SyncUtxosDiscovered = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "citadel",
		Subsystem: "sync",
		Name:      "utxos_discovered",
		Help:      "Number of UTXOs discovered per SyncContract call.",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
	})

	TransferOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "citadel",
		Subsystem: "transfer",
		Name:      "outcomes_total",
		Help:      "Transfer composition outcomes, by result.",
	}, []string{"outcome"})

	TransferComposeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "citadel",
		Subsystem: "transfer",
		Name:      "compose_seconds",
		Help:      "Duration of ComposeTransfer calls, from contract lookup through recording the operation; PSBT finalization is not included.",
		Buckets:   prometheus.DefBuckets,
	})

	RPCRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "citadel",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "RPC requests processed, by request type and reply kind.",
	}, []string{"request_type", "reply_kind"})
)

// Registry returns a fresh prometheus.Registry with every runtime collector
// registered. Callers embed the AssetClient's grpc-prometheus client metrics
// into the same registry via grpc_prometheus.Register/EnableClientHandling
// before serving it.
func Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		SyncDuration,
		SyncUtxosDiscovered,
		TransferOutcomes,
		TransferComposeDuration,
		RPCRequestsTotal,
	)
	return reg
}

// ObserveSync records a completed SyncContract call.
func ObserveSync(chain string, seconds float64, utxosDiscovered int) {
	SyncDuration.WithLabelValues(chain).Observe(seconds)
	SyncUtxosDiscovered.Observe(float64(utxosDiscovered))
}

// ObserveTransfer records a terminal transfer composition outcome.
func ObserveTransfer(outcome TransferOutcome, seconds float64) {
	TransferOutcomes.WithLabelValues(string(outcome)).Inc()
	TransferComposeDuration.Observe(seconds)
}

// ObserveRPC records one processed RPC request.
func ObserveRPC(requestType string, kind ReplyKind) {
	RPCRequestsTotal.WithLabelValues(requestType, string(kind)).Inc()
}

package metrics

import (
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var fastBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 1}

// --- Node Info ---

var NodeInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "dagcore_node_info",
	Help: "Node information (always 1)",
}, []string{"name", "version"})

var NodeStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "dagcore_node_start_time_seconds",
	Help: "Start timestamp",
})

// --- DAG store ---

var BlocksInserted = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "dagcore_blocks_inserted_total",
	Help: "Total number of blocks accepted by insert",
})

var BlocksRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "dagcore_blocks_rejected_total",
	Help: "Total number of blocks rejected by insert, by reason",
}, []string{"reason"})

var InsertDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "dagcore_insert_duration_seconds",
	Help:    "Time taken to complete a DAG insert",
	Buckets: fastBuckets,
})

var CheckpointRollovers = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "dagcore_checkpoint_rollovers_total",
	Help: "Total number of block metadata checkpoint rollovers",
})

var LatestMessageSquashes = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "dagcore_latest_message_squashes_total",
	Help: "Total number of latest-messages log squashes",
})

var DagBlockCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "dagcore_dag_block_count",
	Help: "Number of blocks currently held in the DAG index",
})

var DagMaxRank = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "dagcore_dag_max_rank",
	Help: "Highest block rank currently present in the DAG index",
})

// --- Genesis approval ceremony ---

var GenesisApprovals = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "dagcore_genesis_approvals_total",
	Help: "Total number of distinct signatures admitted by the genesis ceremony",
})

var GenesisDiscardedApprovals = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "dagcore_genesis_discarded_approvals_total",
	Help: "Total number of genesis approvals discarded, by reason",
}, []string{"reason"})

var GenesisApproved = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "dagcore_genesis_approved",
	Help: "1 once the genesis ceremony has produced an approved block, 0 until then",
})

var GenesisSignatureVerificationTime = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "dagcore_genesis_signature_verification_time_seconds",
	Help:    "Time to verify a single genesis approval signature",
	Buckets: fastBuckets,
})

func init() {
	prometheus.MustRegister(
		NodeInfo,
		NodeStartTime,
		BlocksInserted,
		BlocksRejected,
		InsertDuration,
		CheckpointRollovers,
		LatestMessageSquashes,
		DagBlockCount,
		DagMaxRank,
		GenesisApprovals,
		GenesisDiscardedApprovals,
		GenesisApproved,
		GenesisSignatureVerificationTime,
	)
}

// Serve starts the Prometheus metrics HTTP server on the given port.
func Serve(port int) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), nil); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()
}

// Package ssspmetrics exposes Prometheus counters and gauges over the
// communication core's hot path: rounds driven, words sent/received, and
// data dropped by the sentinel-compaction pass — global registrations, no
// per-vertex or per-destination label cardinality.
package ssspmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	roundsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ssspcomm_rounds_total",
		Help: "Total communication rounds driven, by driver (run_with_both/run_ptr/run_buffer).",
	}, []string{"driver"})

	wordsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ssspcomm_words_sent_total",
		Help: "Total uint32 words handed to AlltoallV across all rounds.",
	})

	wordsReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ssspcomm_words_received_total",
		Help: "Total uint32 words delivered to the buffer provider across all rounds.",
	})

	sentinelsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ssspcomm_sentinels_dropped_total",
		Help: "Total words reserved for a round but not sent: sentinel/duplicate entries removed by compaction plus estimate slack.",
	})

	roundSendWords = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ssspcomm_round_send_words",
		Help:    "Distribution of total words sent in a single round.",
		Buckets: prometheus.ExponentialBuckets(16, 4, 10),
	})

	capacityExceededTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ssspcomm_capacity_exceeded_total",
		Help: "Total rounds aborted because a destination's data could not fit the provider's capacity.",
	})
)

func init() {
	prometheus.MustRegister(roundsTotal, wordsSentTotal, wordsReceivedTotal,
		sentinelsDroppedTotal, roundSendWords, capacityExceededTotal)
}

// RecordRound records one completed round for the named driver and the
// total words it sent.
func RecordRound(driver string, sentWords int) {
	roundsTotal.WithLabelValues(driver).Inc()
	roundSendWords.Observe(float64(sentWords))
	wordsSentTotal.Add(float64(sentWords))
}

// RecordReceived adds to the total words delivered to the provider.
func RecordReceived(words int) {
	wordsReceivedTotal.Add(float64(words))
}

// RecordSentinelsDropped adds n words to the reserved-but-not-sent total;
// the drivers pass a round's reserved word count minus its compacted count.
func RecordSentinelsDropped(n int) {
	if n <= 0 {
		return
	}
	sentinelsDroppedTotal.Add(float64(n))
}

// RecordCapacityExceeded increments the capacity-abort counter.
func RecordCapacityExceeded() {
	capacityExceededTotal.Inc()
}

// ServeHTTP starts a dedicated /metrics endpoint on addr in a background
// goroutine — opt-in, for a standalone demo process that doesn't already
// expose Prometheus through some other server.
func ServeHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}

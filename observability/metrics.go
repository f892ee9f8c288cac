// Package observability wires this node's runtime counters into an
// external github.com/luxfi/metric multi-gatherer alongside a
// prometheus.Registerer, following the shape of the teacher's
// runtime.Metrics ("Matches api/metrics.MultiGatherer interface") and
// metrics.NewAverager(name, help, reg). It covers the handful of
// gauges/counters SPEC_FULL.md's checkpoint and state-sync components
// need (built/certified sequence, pending backlog, peer RTT) without
// inventing a parallel metrics stack.
package observability

import (
	"fmt"

	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Metrics is the subnamespace handle this package registers under an
// external metric.Gatherer, mirroring the teacher's runtime.Metrics
// interface (metric.Gatherer embedded, plus named sub-registration).
type Metrics interface {
	metric.Gatherer
	Register(name string, gatherer metric.Gatherer) error
}

// Collector owns the concrete prometheus collectors for one epoch's
// node process: checkpoint sequence gauges, pending-message counters,
// and peer RTT gauges, registered against both a prometheus.Registerer
// (for local scraping) and an external metric.Metrics multi-gatherer
// (for the host process's aggregate /metrics endpoint).
type Collector struct {
	builtSequence     *prometheus.GaugeVec // label: stream
	certifiedSequence *prometheus.GaugeVec // label: stream
	pendingBacklog    *prometheus.GaugeVec // label: stream
	peerRTTMs         *prometheus.GaugeVec // label: peer
	commitsProcessed   prometheus.Counter
	thresholdMisses    prometheus.Counter
	remoteForkDetected prometheus.Counter

	reg *prometheus.Registry
}

// New builds a Collector, registering every collector against a fresh
// local prometheus.Registry and (if external is non-nil) exposing that
// registry under subsystem within the host's shared metric.Metrics
// gatherer, the same way the teacher's runtime.Metrics.Register
// composes per-chain sub-registries.
func New(namespace string, external Metrics, subsystem string) (*Collector, error) {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		builtSequence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "checkpoint_built_sequence", Help: "Highest locally built checkpoint sequence.",
		}, []string{"stream"}),
		certifiedSequence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "checkpoint_certified_sequence", Help: "Highest certified checkpoint sequence.",
		}, []string{"stream"}),
		pendingBacklog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "checkpoint_pending_backlog", Help: "Pending checkpoint rows awaiting a build.",
		}, []string{"stream"}),
		peerRTTMs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "statesync_peer_rtt_ms", Help: "Smoothed RTT estimate per state-sync peer.",
		}, []string{"peer"}),
		commitsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "commits_processed_total", Help: "Consensus commits processed by the handler.",
		}),
		thresholdMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "mpc_threshold_not_reached_total", Help: "Advance calls that returned ErrThresholdNotReached.",
		}),
		remoteForkDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkpoint_remote_fork_detected_total", Help: "Checkpoint signatures over a digest that disagrees with the local build.",
		}),
	}

	collectors := []prometheus.Collector{
		c.builtSequence, c.certifiedSequence, c.pendingBacklog,
		c.peerRTTMs, c.commitsProcessed, c.thresholdMisses, c.remoteForkDetected,
	}
	for _, col := range collectors {
		if err := c.reg.Register(col); err != nil {
			return nil, fmt.Errorf("observability: registering collector: %w", err)
		}
	}

	if external != nil {
		if err := external.Register(subsystem, c.reg); err != nil {
			return nil, fmt.Errorf("observability: registering external subsystem %q: %w", subsystem, err)
		}
	}

	return c, nil
}

func (c *Collector) SetBuiltSequence(stream string, seq uint64) {
	c.builtSequence.WithLabelValues(stream).Set(float64(seq))
}

func (c *Collector) SetCertifiedSequence(stream string, seq uint64) {
	c.certifiedSequence.WithLabelValues(stream).Set(float64(seq))
}

func (c *Collector) SetPendingBacklog(stream string, n int) {
	c.pendingBacklog.WithLabelValues(stream).Set(float64(n))
}

func (c *Collector) SetPeerRTT(peer string, ms uint32) {
	c.peerRTTMs.WithLabelValues(peer).Set(float64(ms))
}

func (c *Collector) IncCommitsProcessed() {
	c.commitsProcessed.Inc()
}

func (c *Collector) IncThresholdMisses() {
	c.thresholdMisses.Inc()
}

// IncRemoteForkDetected counts one checkpoint signature whose digest
// disagrees with this node's own locally built checkpoint (spec.md
// §4.7 step 5 / §8 scenario 4's "remote-fork metric").
func (c *Collector) IncRemoteForkDetected() {
	c.remoteForkDetected.Inc()
}

// RemoteForkDetectedCount reports the current value of the remote-fork
// counter, for tests asserting that a split-brain digest mismatch was
// actually recorded rather than merely rejected.
func (c *Collector) RemoteForkDetectedCount() float64 {
	return testutil.ToFloat64(c.remoteForkDetected)
}

// Package statesync implements the state-sync engine of SPEC_FULL.md
// §4.8: track known peers, their advertised chain identifier and
// same-chain flag, and their watermarks; pull missing certified
// checkpoints with an RTT-biased peer selection window bounded by a
// configurable download concurrency; push newly certified checkpoints
// back out to same-chain peers; and reject any response that
// contradicts an operator-pinned digest. Run is the engine's single
// long-lived task per spec.md §5.
//
// Transport itself is out of scope (spec.md §1/§6); PeerClient is the
// narrow interface a real RPC client implements. Peer bookkeeping is
// grounded on the teacher's networking/tracker resource-accounting
// pattern (reference only, not imported); the download job's bounded
// fan-out is grounded on this module's own advance.Pool
// (errgroup-plus-semaphore), the idiomatic-Go shape of the teacher's
// RPC fan-out call sites.
package statesync

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/dwallet-consensus/checkpoint"
	"github.com/luxfi/dwallet-consensus/config"
	"github.com/luxfi/dwallet-consensus/errs"
	"github.com/luxfi/dwallet-consensus/observability"
)

// Watermarks is one peer's (or this node's) self-reported sync
// progress for a stream, per spec.md §4.8.
type Watermarks struct {
	HighestVerified uint64
	HighestSynced   uint64
	HighestExecuted uint64
	HighestPruned   uint64
}

// PeerClient is the narrow RPC surface a real state-sync transport
// implements; this package never constructs one itself. The method
// set mirrors spec.md §6's peer protocol quartet (GetChainIdentifier,
// GetCheckpointAvailability, GetCheckpointMessage, PushCheckpointMessage).
type PeerClient interface {
	// FetchCertified fetches a certified checkpoint at (stream, sequence).
	FetchCertified(ctx context.Context, stream checkpoint.Stream, sequence uint64) (checkpoint.Certified, error)
	// Watermarks fetches the peer's current watermarks for a stream
	// (GetCheckpointAvailability).
	Watermarks(ctx context.Context, stream checkpoint.Stream) (Watermarks, error)
	// ChainIdentifier fetches the peer's advertised chain identifier
	// (GetChainIdentifier).
	ChainIdentifier(ctx context.Context) (ids.ID, error)
	// PushCertified fire-and-forget hints a freshly certified
	// checkpoint to the peer (PushCheckpointMessage).
	PushCertified(ctx context.Context, stream checkpoint.Stream, cert checkpoint.Certified) error
}

// peerState is the engine's bookkeeping for one known peer: the
// spec.md §4.8 peer-table row (advertised chain identifier, same-chain
// flag, highest-synced sequence) plus RTT/failure bookkeeping.
type peerState struct {
	id         ids.NodeID
	client     PeerClient
	rttMs      uint32 // exponentially-smoothed RTT estimate, ms
	lastFailed bool

	chainID        ids.ID // advertised chain identifier, last refresh
	sameChain      bool   // chainID == the engine's own local chain identifier
	lastWatermarks Watermarks
}

// Engine owns the peer table and watermarks for one stream. Its
// public API is meant to be driven by a single owning task (spec.md
// §5): Run is that task. Internally, pull orchestration fans out a
// bounded set of concurrent peer RPCs (mu guards the shared peer table
// and local watermarks across that fan-out), but Engine is not meant
// to be driven by more than one external caller at a time.
type Engine struct {
	stream       checkpoint.Stream
	cfg          config.Config
	localChainID ids.ID

	mu    sync.Mutex
	peers map[ids.NodeID]*peerState
	local Watermarks

	metrics *observability.Collector // nil-safe: metrics are optional
	logger  log.Logger               // nil-safe: logging is optional
}

// New returns a statesync Engine for one checkpoint stream, advertising
// localChainID as this node's own chain identifier for same-chain
// comparisons against peers.
func New(stream checkpoint.Stream, cfg config.Config, localChainID ids.ID) *Engine {
	return &Engine{stream: stream, cfg: cfg, localChainID: localChainID, peers: make(map[ids.NodeID]*peerState)}
}

// WithMetrics attaches an observability.Collector the engine reports
// per-peer RTT gauges to. Passing nil disables metrics reporting.
func (e *Engine) WithMetrics(m *observability.Collector) *Engine {
	e.metrics = m
	return e
}

// WithLogger attaches a logger for Run's background failures. Passing
// nil disables logging.
func (e *Engine) WithLogger(l log.Logger) *Engine {
	e.logger = l
	return e
}

// AddPeer registers or replaces a peer's client handle. Its chain
// identifier and same-chain flag are unknown until the next
// RefreshPeerChainIdentifiers call.
func (e *Engine) AddPeer(id ids.NodeID, client PeerClient) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.peers[id] = &peerState{id: id, client: client, rttMs: uint32(e.cfg.StateSyncRPCTimeoutMs / 2)}
}

// RemovePeer drops a peer from the table, e.g. on repeated failure or
// committee rotation.
func (e *Engine) RemovePeer(id ids.NodeID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.peers, id)
}

// Local returns this node's current watermarks.
func (e *Engine) Local() Watermarks {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local
}

// selectionWindow is the number of fastest-RTT candidate peers
// windowed-random-picked from, per spec.md §4.8's explicit "window 2
// at the head of the RTT-sorted list" — the idiomatic-Go shape of the
// teacher's utils/sampler usage: bias toward low latency without
// always hammering the single fastest peer.
const selectionWindow = 2

// selectPeer picks a peer biased toward low RTT, skipping any peer
// that failed its most recent request, and returns false if no peer
// is available. Callers must hold e.mu.
func (e *Engine) selectPeer() (*peerState, bool) {
	candidates := make([]*peerState, 0, len(e.peers))
	for _, p := range e.peers {
		if !p.lastFailed {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].rttMs < candidates[j].rttMs })

	window := candidates
	if len(window) > selectionWindow {
		window = window[:selectionWindow]
	}
	return window[rand.Intn(len(window))], true
}

// updateRTT folds a fresh sample into the peer's smoothed estimate
// using an exponentially-weighted moving average (alpha = 1/8, a
// common low-overhead smoothing constant).
func updateRTT(p *peerState, sampleMs uint32) {
	p.rttMs = p.rttMs - p.rttMs/8 + sampleMs/8
}

// PullCertified fetches the certified checkpoint at sequence from the
// best available peer, rejecting the response if a pinned digest
// exists for this sequence and does not match (spec.md §4.8's
// "pinned-digest rejection"). On failure the peer is marked failed for
// this round and the next call will try a different peer. Safe to
// call concurrently (e.g. from SyncMissing's download job).
func (e *Engine) PullCertified(ctx context.Context, sequence uint64) (checkpoint.Certified, error) {
	e.mu.Lock()
	peer, ok := e.selectPeer()
	e.mu.Unlock()
	if !ok {
		return checkpoint.Certified{}, errs.ErrPeerUnavailable
	}

	start := time.Now()
	cert, err := peer.client.FetchCertified(ctx, e.stream, sequence)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		peer.lastFailed = true
		return checkpoint.Certified{}, err
	}
	peer.lastFailed = false
	updateRTT(peer, uint32(time.Since(start).Milliseconds()))
	if e.metrics != nil {
		e.metrics.SetPeerRTT(peer.id.String(), peer.rttMs)
	}

	if pinned, has := e.cfg.PinnedDigest(sequence); has && pinned != cert.Digest {
		return checkpoint.Certified{}, errs.ErrDigestMismatch
	}

	if cert.Built.Sequence > e.local.HighestSynced {
		e.local.HighestSynced = cert.Built.Sequence
	}
	return cert, nil
}

// RefreshPeerWatermarks polls every known peer's watermarks, updating
// their failed status on error and recording the result on the peer
// row for SyncMissing's gap detection. Peers that time out are not
// removed here — RemovePeer is a separate, policy-driven decision.
func (e *Engine) RefreshPeerWatermarks(ctx context.Context) map[ids.NodeID]Watermarks {
	e.mu.Lock()
	snapshot := make([]*peerState, 0, len(e.peers))
	for _, p := range e.peers {
		snapshot = append(snapshot, p)
	}
	e.mu.Unlock()

	out := make(map[ids.NodeID]Watermarks, len(snapshot))
	for _, p := range snapshot {
		wm, err := p.client.Watermarks(ctx, e.stream)
		e.mu.Lock()
		if err != nil {
			p.lastFailed = true
			e.mu.Unlock()
			continue
		}
		p.lastFailed = false
		p.lastWatermarks = wm
		e.mu.Unlock()
		out[p.id] = wm
	}
	return out
}

// RefreshPeerChainIdentifiers queries every known peer's advertised
// chain identifier and marks it same-chain when it matches this
// engine's own localChainID (spec.md §4.8's peer-table columns). Run
// calls this on startup and every poll tick; a transport wiring that
// learns of a new peer mid-epoch should call it again for that peer.
func (e *Engine) RefreshPeerChainIdentifiers(ctx context.Context) {
	e.mu.Lock()
	snapshot := make([]*peerState, 0, len(e.peers))
	for _, p := range e.peers {
		snapshot = append(snapshot, p)
	}
	e.mu.Unlock()

	for _, p := range snapshot {
		id, err := p.client.ChainIdentifier(ctx)
		e.mu.Lock()
		if err != nil {
			p.lastFailed = true
			e.mu.Unlock()
			continue
		}
		p.chainID = id
		p.sameChain = id == e.localChainID
		e.mu.Unlock()
	}
}

// SyncMissing implements spec.md §4.8's Pull paragraph: it refreshes
// every peer's watermarks, and if any peer's highest_synced exceeds
// this node's highest_verified, spawns a download job fetching every
// missing sequence through PullCertified's own RTT-biased, randomized
// peer selection, bounded by CheckpointHeaderDownloadConcurrency
// concurrent fetches. It returns the certified checkpoints fetched, in
// sequence order; the caller verifies each one and then advances
// MarkVerified/MarkExecuted — SyncMissing itself only ever advances
// HighestSynced (via PullCertified), never HighestVerified.
func (e *Engine) SyncMissing(ctx context.Context) ([]checkpoint.Certified, error) {
	e.RefreshPeerWatermarks(ctx)

	e.mu.Lock()
	from := e.local.HighestVerified + 1
	target := e.local.HighestVerified
	for _, p := range e.peers {
		if p.lastWatermarks.HighestSynced > target {
			target = p.lastWatermarks.HighestSynced
		}
	}
	concurrency := int(e.cfg.CheckpointHeaderDownloadConcurrency)
	e.mu.Unlock()

	if target < from {
		return nil, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]checkpoint.Certified, target-from+1)
	sem := make(chan struct{}, concurrency)
	g, gctx := errgroup.WithContext(ctx)
	for seq := from; seq <= target; seq++ {
		seq := seq
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			cert, err := e.PullCertified(gctx, seq)
			if err != nil {
				return err
			}
			results[seq-from] = cert
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Push broadcasts a certified checkpoint to every peer marked
// same-chain, fire-and-forget per spec.md §6's PushCheckpointMessage
// semantics: a peer's send error is recorded in the returned map but
// never aborts the broadcast to the rest. Call this after a local sync
// or after local consensus produces a new certified checkpoint
// (spec.md §4.8's "Push" paragraph).
func (e *Engine) Push(ctx context.Context, cert checkpoint.Certified) map[ids.NodeID]error {
	e.mu.Lock()
	targets := make([]*peerState, 0, len(e.peers))
	for _, p := range e.peers {
		if p.sameChain {
			targets = append(targets, p)
		}
	}
	e.mu.Unlock()

	failures := make(map[ids.NodeID]error)
	for _, p := range targets {
		if err := p.client.PushCertified(ctx, e.stream, cert); err != nil {
			failures[p.id] = err
		}
	}
	return failures
}

// MarkExecuted advances this node's execution watermark after a
// synced checkpoint has been locally applied.
func (e *Engine) MarkExecuted(sequence uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sequence > e.local.HighestExecuted {
		e.local.HighestExecuted = sequence
	}
}

// MarkVerified advances this node's verification watermark.
func (e *Engine) MarkVerified(sequence uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sequence > e.local.HighestVerified {
		e.local.HighestVerified = sequence
	}
}

// Run is the engine's single long-lived task (spec.md §5: "checkpoint
// builder, aggregator, and state-sync each own one long-lived task").
// On startup and on every pollInterval tick it refreshes peer chain
// identifiers, then pulls any missing certified checkpoints and
// invokes onCertified for each one fetched so the caller can verify it
// and advance MarkVerified/MarkExecuted. It blocks until ctx is
// canceled, the same ctx.Done()-gated event-loop shape the teacher
// uses for its per-chain consumer loops.
func (e *Engine) Run(ctx context.Context, pollInterval time.Duration, onCertified func(checkpoint.Certified)) error {
	e.runOnce(ctx, onCertified)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.runOnce(ctx, onCertified)
		}
	}
}

func (e *Engine) runOnce(ctx context.Context, onCertified func(checkpoint.Certified)) {
	e.RefreshPeerChainIdentifiers(ctx)
	certs, err := e.SyncMissing(ctx)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("state-sync pull failed", "stream", e.stream, "err", err)
		}
		return
	}
	for _, c := range certs {
		if onCertified != nil {
			onCertified(c)
		}
	}
}

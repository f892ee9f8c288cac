// Package aggregator implements the checkpoint aggregator of
// SPEC_FULL.md §4.7: collect per-authority signatures over each
// in-flight built checkpoint sequence, declare certification once
// quorum stake is reached, and persist the certified result exactly
// once (insertion is idempotent, matching spec.md §8's round-trip
// property).
package aggregator

import (
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/dwallet-consensus/checkpoint"
	"github.com/luxfi/dwallet-consensus/committee"
	"github.com/luxfi/dwallet-consensus/epoch/tables"
	"github.com/luxfi/dwallet-consensus/errs"
	"github.com/luxfi/dwallet-consensus/observability"
	"github.com/luxfi/dwallet-consensus/stakeagg"
)

// Aggregator owns one stream's in-flight sequence aggregators. Like
// stakeagg.Aggregator, it is single-task owned (spec.md §5).
type Aggregator struct {
	which     checkpoint.Stream
	committee *committee.Committee
	verifier  stakeagg.Verifier
	tables    *tables.Tables

	bySequence map[uint64]*stakeagg.Aggregator

	metrics *observability.Collector // nil-safe: metrics are optional
}

// New returns an Aggregator for one checkpoint stream.
func New(which checkpoint.Stream, c *committee.Committee, v stakeagg.Verifier, t *tables.Tables) *Aggregator {
	return &Aggregator{
		which:      which,
		committee:  c,
		verifier:   v,
		tables:     t,
		bySequence: make(map[uint64]*stakeagg.Aggregator),
	}
}

// WithMetrics attaches an observability.Collector the aggregator
// reports certified-sequence gauges to. Passing nil disables metrics
// reporting.
func (a *Aggregator) WithMetrics(m *observability.Collector) *Aggregator {
	a.metrics = m
	return a
}

func (a *Aggregator) aggregatorFor(sequence uint64) *stakeagg.Aggregator {
	agg, ok := a.bySequence[sequence]
	if !ok {
		agg = stakeagg.New(a.committee, a.verifier)
		a.bySequence[sequence] = agg
	}
	return agg
}

// InsertSignature records one authority's signature over the
// checkpoint built at sequence. When a local build exists at sequence,
// a signature whose digest does NOT match the local build's digest is a
// split-brain/remote-fork condition (spec.md §4.7 step 5): it is counted
// on the remote-fork metric and rejected with ErrDigestMismatch before
// stakeagg.Insert is called, so a forked quorum can never be persisted
// as if it were this node's own checkpoint. If this call reaches
// quorum, the certified checkpoint is persisted and returned.
func (a *Aggregator) InsertSignature(authority ids.NodeID, partyID uint16, sequence uint64, digest [32]byte, sig []byte) (*checkpoint.Certified, error) {
	built, ok, err := a.tables.BuiltCheckpoint(a.which, sequence)
	if err != nil {
		return nil, err
	}
	if ok && built.Digest() != digest {
		if a.metrics != nil {
			a.metrics.IncRemoteForkDetected()
		}
		return nil, fmt.Errorf("%w: sequence %d local=%x remote=%x", errs.ErrDigestMismatch, sequence, built.Digest(), digest)
	}

	agg := a.aggregatorFor(sequence)
	result := agg.Insert(authority, digest, sig)

	if result.Quorum == nil {
		return nil, nil
	}

	sigByParty := make(map[uint16][]byte, len(result.Quorum.Signatures))
	for nodeID, s := range result.Quorum.Signatures {
		if p, ok := a.committee.PartyID(nodeID); ok {
			sigByParty[p] = s
		}
	}
	cert := checkpoint.Certified{
		Built:       built,
		Digest:      result.Quorum.Digest,
		TotalWeight: result.Quorum.TotalWeight,
		Signatures:  sigByParty,
	}
	if err := a.InsertCertified(cert); err != nil {
		return nil, err
	}
	return &cert, nil
}

// InsertCertified persists a certified checkpoint, idempotently: a
// second insertion of the same (stream, sequence, digest) is a no-op
// rather than an error, matching spec.md §8's "insert_certified_checkpoint
// is idempotent" testable property.
func (a *Aggregator) InsertCertified(cert checkpoint.Certified) error {
	existing, ok, err := a.tables.CertifiedCheckpoint(a.which, cert.Built.Sequence)
	if err != nil {
		return err
	}
	if ok && existing.Built.Digest() == cert.Built.Digest() {
		return nil
	}

	batch := a.tables.NewBatch()
	batch.PutCertifiedCheckpoint(a.which, cert)
	if err := batch.Write(); err != nil {
		return err
	}
	delete(a.bySequence, cert.Built.Sequence)
	if a.metrics != nil {
		a.metrics.SetCertifiedSequence(a.which.String(), cert.Built.Sequence)
	}
	return nil
}

// Forget drops an in-flight sequence's aggregation state, e.g. after
// certification has already been persisted by another path.
func (a *Aggregator) Forget(sequence uint64) {
	delete(a.bySequence, sequence)
}

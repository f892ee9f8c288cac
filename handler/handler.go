// Package handler implements the per-commit consensus handler
// pipeline of SPEC_FULL.md §4.5: ordering check, verify-and-split,
// dedup, classify-and-route, a single atomic table write, then
// notify. It is the only component that ever writes to epoch/tables.
package handler

import (
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/dwallet-consensus/checkpoint"
	"github.com/luxfi/dwallet-consensus/codec"
	"github.com/luxfi/dwallet-consensus/committee"
	"github.com/luxfi/dwallet-consensus/config"
	"github.com/luxfi/dwallet-consensus/consensusinput"
	"github.com/luxfi/dwallet-consensus/epoch/tables"
	"github.com/luxfi/dwallet-consensus/errs"
	"github.com/luxfi/dwallet-consensus/observability"
	"github.com/luxfi/dwallet-consensus/outputverifier"
	"github.com/luxfi/dwallet-consensus/utils/set"
	"github.com/luxfi/dwallet-consensus/utils/wrappers"
)

// Notifier is the set of downstream wake-ups the handler fires after a
// commit's batch has landed, one per async consumer loop (spec.md §5's
// single-slot notify channels).
type Notifier interface {
	NotifyMPCRound(round uint64)
	NotifyDWalletCheckpointBuilder()
	NotifySystemCheckpointBuilder()
	NotifyAggregator(stream checkpoint.Stream, sequence uint64)
}

// Handler processes consensus commits one at a time; it is owned by a
// single goroutine (spec.md §5) and is not safe for concurrent Process
// calls.
type Handler struct {
	committee *committee.Committee
	tables    *tables.Tables
	cfg       config.Config
	verifier  *outputverifier.Verifier
	notifier  Notifier
	logger    log.Logger

	lastIndices    tables.ExecutionIndices
	haveLastIndices bool

	metrics *observability.Collector // nil-safe: metrics are optional
}

// WithMetrics attaches an observability.Collector the handler reports
// processed-commit counts to. Passing nil disables metrics reporting.
func (h *Handler) WithMetrics(m *observability.Collector) *Handler {
	h.metrics = m
	return h
}

// New returns a Handler scoped to one epoch's committee and tables.
func New(c *committee.Committee, t *tables.Tables, cfg config.Config, notifier Notifier, logger log.Logger) *Handler {
	return &Handler{
		committee: c,
		tables:    t,
		cfg:       cfg,
		verifier:  outputverifier.New(c),
		notifier:  notifier,
		logger:    logger,
	}
}

// Process runs one commit through the full pipeline. Returns nil for a
// stale/duplicate commit (ordering-invariant violation), which is a
// benign skip rather than an error.
func (h *Handler) Process(commit consensusinput.Commit) error {
	if h.haveLastIndices {
		if !h.lastIndices.Less(commit.Indices) {
			h.logger.Warn("dropping out-of-order or duplicate commit", "indices", commit.Indices)
			return nil
		}
	}

	valid, malformedAuthors := h.verifyAndSplit(commit.Transactions)

	seen := set.NewSet[consensusinput.TxKey](len(valid))
	batch := h.tables.NewBatch()

	stats, _, err := h.tables.Stats()
	if err != nil {
		return err
	}
	if stats.MessagesByParty == nil {
		stats.MessagesByParty = make(map[uint16]uint64)
	}

	for _, tx := range valid {
		key := tx.Key()
		if seen.Contains(key) {
			continue // in-commit duplicate
		}
		seen.Add(key)

		dedupKey := dedupKeyBytes(key)
		already, err := h.tables.IsProcessed(dedupKey)
		if err != nil {
			return err
		}
		if already {
			continue
		}
		batch.MarkProcessed(dedupKey)

		if party, ok := h.committee.PartyID(tx.Author); ok {
			stats.MessagesByParty[party]++
		}

		if err := h.route(batch, commit, tx); err != nil {
			return err
		}
	}

	for _, author := range malformedAuthors {
		h.logger.Warn("dropped malformed/author-mismatched transaction", "author", author)
	}

	stats.Indices = commit.Indices
	batch.PutStats(stats)

	if err := batch.Write(); err != nil {
		h.logger.Crit("storage error committing consensus batch", "err", err)
		panic(err)
	}

	h.lastIndices = stats.Indices
	h.haveLastIndices = true
	if h.metrics != nil {
		h.metrics.IncCommitsProcessed()
	}

	h.notifier.NotifyMPCRound(commit.Indices.LastCommittedRound)
	h.notifier.NotifyDWalletCheckpointBuilder()
	h.notifier.NotifySystemCheckpointBuilder()

	return nil
}

// verifyAndSplit drops any transaction whose consensus-attested Author
// is not a committee member, collecting the offending authors via
// utils/wrappers.Errs the way the teacher aggregates multi-cause
// validation failures. Kind-specific checks against a payload's own
// embedded author/party field (MPC message, MPC output) happen later
// in route/routeOutput, once the payload has actually been decoded.
func (h *Handler) verifyAndSplit(txs []consensusinput.Transaction) ([]consensusinput.Transaction, []ids.NodeID) {
	var errsw wrappers.Errs
	valid := make([]consensusinput.Transaction, 0, len(txs))
	var malformed []ids.NodeID

	for _, tx := range txs {
		if !h.committee.Has(tx.Author) {
			errsw.Add(fmt.Errorf("%w: author %s not in committee", errs.ErrMalformedPayload, tx.Author))
			malformed = append(malformed, tx.Author)
			continue
		}
		valid = append(valid, tx)
	}
	return valid, malformed
}

func dedupKeyBytes(k consensusinput.TxKey) []byte {
	out := make([]byte, 0, 20+32)
	out = append(out, k.Author[:]...)
	out = append(out, k.Payload[:]...)
	return out
}

func (h *Handler) route(batch *tables.Batch, commit consensusinput.Commit, tx consensusinput.Transaction) error {
	switch tx.Kind {
	case consensusinput.TxDWalletMPCMessage:
		var p MPCMessagePayload
		if err := codec.Unmarshal(tx.Payload, &p); err != nil {
			return nil // malformed payload: dropped, not fatal (§4.4 defensive decode applies again downstream)
		}
		party, ok := h.committee.PartyID(tx.Author)
		if !ok || p.Party != party {
			h.logger.Warn("dropped MPC message with author/party mismatch", "author", tx.Author, "claimedParty", p.Party)
			return nil
		}
		return batch.AppendMPCMessage(p.Round, p.Party, codec.Marshal(&p))

	case consensusinput.TxDWalletMPCOutput:
		return h.routeOutput(batch, commit, tx)

	case consensusinput.TxDWalletMPCMaliciousReport:
		var p MaliciousReportPayload
		if err := codec.Unmarshal(tx.Payload, &p); err != nil {
			return nil
		}
		party, _ := h.committee.PartyID(tx.Author)
		return batch.PutMaliciousReport(tables.MaliciousReport{Author: party, Session: p.Session, Reason: p.Reason})

	case consensusinput.TxDWalletMPCThresholdNotReached:
		var p ThresholdNotReachedPayload
		if err := codec.Unmarshal(tx.Payload, &p); err != nil {
			return nil
		}
		party, _ := h.committee.PartyID(tx.Author)
		return batch.PutThresholdReport(tables.ThresholdNotReachedReport{Author: party, Session: p.Session, Round: p.Round, BadVotes: p.BadVotes})

	case consensusinput.TxDWalletCheckpointSignature:
		return h.routeSignature(batch, checkpoint.StreamDWallet, tx)

	case consensusinput.TxSystemCheckpointSignature:
		return h.routeSignature(batch, checkpoint.StreamSystem, tx)

	case consensusinput.TxCapabilityNotificationV1:
		return h.routeCapability(batch, commit, tx)

	default:
		return fmt.Errorf("handler: unknown transaction kind %d", tx.Kind)
	}
}

func (h *Handler) routeOutput(batch *tables.Batch, commit consensusinput.Commit, tx consensusinput.Transaction) error {
	var p MPCOutputPayload
	if err := codec.Unmarshal(tx.Payload, &p); err != nil {
		return nil
	}
	party, ok := h.committee.PartyID(tx.Author)
	if !ok || p.Party != party {
		h.logger.Warn("dropped MPC output with author/party mismatch", "author", tx.Author, "claimedParty", p.Party)
		return nil
	}
	if err := batch.AppendMPCOutput(commit.Indices.LastCommittedRound, p.Party, codec.Marshal(&p)); err != nil {
		return err
	}

	kind := outputverifier.OutputCompleted
	if p.Rejected {
		kind = outputverifier.OutputSessionFailed
	}
	verdict, winning := h.verifier.Record(sessionIDOf(p.Session), tx.Author, outputverifier.Output{Kind: kind, Bytes: p.Output})
	if verdict != outputverifier.VerdictFirstQuorum {
		return nil
	}

	msg := checkpoint.Message{Kind: p.Kind, Author: p.Party, Rejected: p.Rejected, Payload: winning.Bytes}
	if err := batch.AppendPendingCheckpoint(checkpoint.StreamDWallet, commit.Indices.LastCommittedRound, commit.TimestampMs, []checkpoint.Message{msg}); err != nil {
		return err
	}
	h.notifier.NotifyDWalletCheckpointBuilder()
	return nil
}

func (h *Handler) routeSignature(batch *tables.Batch, stream checkpoint.Stream, tx consensusinput.Transaction) error {
	var p CheckpointSignaturePayload
	if err := codec.Unmarshal(tx.Payload, &p); err != nil {
		return nil
	}
	party, ok := h.committee.PartyID(tx.Author)
	if !ok {
		return nil
	}
	if err := batch.PutSignature(stream, tables.SignatureMessage{Sequence: p.Sequence, Index: uint32(party), Author: party, Signature: p.Signature}); err != nil {
		return err
	}
	h.notifier.NotifyAggregator(stream, p.Sequence)
	return nil
}

func (h *Handler) routeCapability(batch *tables.Batch, commit consensusinput.Commit, tx consensusinput.Transaction) error {
	var p CapabilityNotificationPayload
	if err := codec.Unmarshal(tx.Payload, &p); err != nil {
		return nil
	}
	party, ok := h.committee.PartyID(tx.Author)
	if !ok {
		return nil
	}

	existing, has, err := h.tables.Capability(party)
	if err != nil {
		return err
	}
	if has && existing.Generation >= p.Generation {
		return nil // stale capability notification, not monotonic
	}
	rec := tables.CapabilityRecord{Generation: p.Generation, SupportedVersions: p.SupportedVersions}
	batch.PutCapability(party, rec)

	return h.maybeAdvanceConfigVersion(batch, commit, party, rec)
}

// maybeAdvanceConfigVersion checks whether any advertised version now
// has quorum-plus-buffer stake support across the committee, and if
// so emits a SetNextConfigVersion system checkpoint message exactly
// once per version (spec.md §9 supplemented feature). recorded/latest
// is the capability just put into batch, which the tables do not yet
// hold.
func (h *Handler) maybeAdvanceConfigVersion(batch *tables.Batch, commit consensusinput.Commit, recorded uint16, latest tables.CapabilityRecord) error {
	threshold := h.committee.QuorumThreshold()
	bufferBps := h.cfg.EffectiveBufferStakeBps()

	for _, v := range latest.SupportedVersions {
		var supportWeight uint64
		for _, auth := range h.committee.Authorities() {
			party, _ := h.committee.PartyID(auth.ID)
			rec, has := latest, true
			if party != recorded {
				var err error
				rec, has, err = h.tables.Capability(party)
				if err != nil {
					return err
				}
			}
			if has && rec.Supports(v) {
				supportWeight += auth.Weight
			}
		}

		bufferedThreshold := threshold + bpsOfTotal(h.committee.TotalWeight(), bufferBps)
		if supportWeight < bufferedThreshold {
			continue
		}

		sent, err := h.tables.ConfigVersionSent(v)
		if err != nil {
			return err
		}
		if sent {
			continue
		}

		msg, err := checkpoint.NewSystemMessage(checkpoint.KindSetNextConfigVersion, versionPayload(v))
		if err != nil {
			return err
		}
		if err := batch.AppendPendingCheckpoint(checkpoint.StreamSystem, commit.Indices.LastCommittedRound, commit.TimestampMs, []checkpoint.Message{msg}); err != nil {
			return err
		}
		batch.MarkConfigVersionSent(v)
		h.notifier.NotifySystemCheckpointBuilder()
	}
	return nil
}

func bpsOfTotal(total uint64, bps uint16) uint64 {
	whole := total / 10_000
	rem := total % 10_000
	return whole*uint64(bps) + (rem*uint64(bps))/10_000
}

func versionPayload(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func sessionIDOf(b [32]byte) ids.ID {
	return ids.ID(b)
}

// Package builder implements the checkpoint builder of SPEC_FULL.md
// §4.6: drain the pending rows of one stream, in height order, into
// sequence-numbered Built checkpoints bounded by message count, byte
// size, and a minimum wall-clock interval.
package builder

import (
	"github.com/luxfi/log"

	"github.com/luxfi/dwallet-consensus/checkpoint"
	"github.com/luxfi/dwallet-consensus/codec"
	"github.com/luxfi/dwallet-consensus/config"
	"github.com/luxfi/dwallet-consensus/epoch"
	"github.com/luxfi/dwallet-consensus/epoch/tables"
	"github.com/luxfi/dwallet-consensus/observability"
)

// Builder owns one stream's sequence-numbering state for one epoch. It
// is driven by a single-goroutine poll loop (spec.md §5); callers must
// not invoke Build concurrently.
type Builder struct {
	stream epoch.Context
	which  checkpoint.Stream
	cfg    config.Config
	tables *tables.Tables
	logger log.Logger

	// startSequence seeds the stream's first-ever checkpoint when the
	// epoch table has never built one, implementing the cross-epoch
	// numbering rule of spec.md §4.6: epoch 1 starts at 0, epoch N
	// starts at the previous epoch's last built sequence + 1.
	startSequence uint64

	lastBuiltTimestampMs uint64

	metrics *observability.Collector // nil-safe: metrics are optional
}

// New builds a Builder for one checkpoint stream within ctx's epoch.
// startSequence is ignored once the epoch table already has a built
// checkpoint for this stream (i.e. on every poll after the first).
func New(ctx epoch.Context, which checkpoint.Stream, cfg config.Config, t *tables.Tables, startSequence uint64, logger log.Logger) *Builder {
	return &Builder{stream: ctx, which: which, cfg: cfg, tables: t, logger: logger, startSequence: startSequence}
}

// WithMetrics attaches an observability.Collector the builder reports
// built-sequence and pending-backlog gauges to. Passing nil disables
// metrics reporting.
func (b *Builder) WithMetrics(m *observability.Collector) *Builder {
	b.metrics = m
	return b
}

func (b *Builder) nextSequence() (uint64, error) {
	last, ok, err := b.tables.LastBuiltSequence(b.which)
	if err != nil {
		return 0, err
	}
	if !ok {
		return b.startSequence, nil
	}
	return last + 1, nil
}

// messageSize returns the accounting size of one checkpoint message:
// its canonical wire encoding, matching §4.6's "uses codec for
// message-size accounting" rule so the byte cap tracks what actually
// gets persisted.
func messageSize(m checkpoint.Message) int {
	return len(codec.Marshal(&m))
}

// Build drains as many sequence-numbered checkpoints as the currently
// pending rows allow, respecting MinDWalletCheckpointIntervalMs
// between consecutive builds, and returns every checkpoint it built
// this call (possibly none, if the interval floor hasn't elapsed or
// there is nothing pending).
func (b *Builder) Build(nowMs uint64) ([]checkpoint.Built, error) {
	if b.lastBuiltTimestampMs != 0 && nowMs < b.lastBuiltTimestampMs+b.cfg.MinDWalletCheckpointIntervalMs {
		return nil, nil
	}

	pending, err := b.tables.PendingCheckpoints(b.which)
	if err != nil {
		return nil, err
	}
	if b.metrics != nil {
		b.metrics.SetPendingBacklog(b.which.String(), len(pending))
	}
	if len(pending) == 0 {
		return nil, nil
	}

	var built []checkpoint.Built
	batch := b.tables.NewBatch()

	var chunk []checkpoint.Message
	var chunkBytes int
	consumedHeights := make([]uint64, 0, len(pending))

	nextSeq, err := b.nextSequence()
	if err != nil {
		return nil, err
	}

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		seq := nextSeq
		nextSeq++
		bc := checkpoint.Built{
			Epoch:       uint64(b.stream.Epoch),
			Sequence:    seq,
			Messages:    chunk,
			TimestampMs: nowMs,
		}
		batch.PutBuiltCheckpoint(b.which, bc)
		built = append(built, bc)
		b.lastBuiltTimestampMs = nowMs
		if b.metrics != nil {
			b.metrics.SetBuiltSequence(b.which.String(), seq)
		}
		chunk = nil
		chunkBytes = 0
		return nil
	}

	for _, row := range pending {
		for _, msg := range row.Messages {
			size := messageSize(msg)

			// An oversized single message gets its own chunk: splitting
			// checkpoints any finer would still leave it over budget.
			if uint32(size) > b.cfg.MaxDWalletCheckpointSizeBytes {
				if err := flush(); err != nil {
					return nil, err
				}
				b.logger.Warn("checkpoint message exceeds max checkpoint size, emitting as its own oversized chunk",
					"stream", b.which, "size", size, "max", b.cfg.MaxDWalletCheckpointSizeBytes)
				chunk = []checkpoint.Message{msg}
				if err := flush(); err != nil {
					return nil, err
				}
				continue
			}

			if len(chunk) >= int(b.cfg.MaxMessagesPerDWalletCheckpoint) || chunkBytes+size > int(b.cfg.MaxDWalletCheckpointSizeBytes) {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			chunk = append(chunk, msg)
			chunkBytes += size
		}
		consumedHeights = append(consumedHeights, row.Height)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	for _, h := range consumedHeights {
		if err := batch.DeletePendingCheckpoint(b.which, h); err != nil {
			return nil, err
		}
	}

	if err := batch.Write(); err != nil {
		return nil, err
	}
	return built, nil
}

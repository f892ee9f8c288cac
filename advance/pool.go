package advance

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/luxfi/dwallet-consensus/mpcsession"
)

// Request is one session's worth of work for the compute pool: the
// same arguments Engine.Advance takes, bundled so a batch of sessions
// can be dispatched together.
type Request struct {
	Session        *mpcsession.Session
	PartyID        uint16
	Access         mpcsession.AccessStructure
	RawMessages    map[uint16][]byte
	EncryptionKeys map[uint16][]byte
}

// Result pairs a Request's outcome with the error Engine.Advance
// returned for it, index-aligned with the input batch.
type Result struct {
	Outcome Outcome
	Err     error
}

// Pool bounds how many sessions Engine.Advance runs concurrently,
// separate from the single-goroutine consensus-handler loop (§5's
// concurrency model). It is the idiomatic-Go shape of a bounded worker
// pool: golang.org/x/sync/errgroup plus a semaphore channel, the way
// the teacher's RPC fan-out call sites parallelize independent work
// under a shared context.
type Pool struct {
	engine *Engine
	size   int
}

// NewPool returns a Pool that runs at most size sessions concurrently
// through engine. size must be >= 1.
func NewPool(engine *Engine, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{engine: engine, size: size}
}

// AdvanceAll runs Engine.Advance for every request concurrently,
// bounded by the pool's size, and returns one Result per request in
// the same order. A per-session error (including ErrThresholdNotReached)
// never aborts the other sessions in the batch — the group's context
// is only canceled by ctx itself, not by a sibling's failure.
func (p *Pool) AdvanceAll(ctx context.Context, requests []Request) ([]Result, error) {
	results := make([]Result, len(requests))
	sem := make(chan struct{}, p.size)

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			out, err := p.engine.Advance(req.Session, req.PartyID, req.Access, req.RawMessages, req.EncryptionKeys)
			results[i] = Result{Outcome: out, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Package errs centralizes the sentinel errors shared across the epoch
// tables, MPC advancement engine, consensus handler, checkpoint
// builder/aggregator and state-sync engine, following the same
// centralize-per-concern style as the teacher's config.Err* sentinels.
package errs

import "errors"

var (
	// ErrEpochEnded is returned by tables.Tables.WithAlive once the
	// epoch's tables have been closed; the other table reads and batch
	// writes do not check for it. Callers treat it as a benign, terminal,
	// quiescent signal rather than a failure.
	ErrEpochEnded = errors.New("epoch ended")

	// ErrMalformedPayload marks a transaction dropped during verify-and-split:
	// either it failed to deserialize or its advertised author did not match
	// the consensus-ordered author.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrThresholdNotReached means an MPC advance needs more input before it
	// can produce an outgoing message; the session round is unchanged.
	ErrThresholdNotReached = errors.New("threshold not reached")

	// ErrMPCProtocol marks a hard protocol failure distinct from
	// ErrThresholdNotReached; the session is reported SessionFailed.
	ErrMPCProtocol = errors.New("mpc protocol error")

	// ErrDuplicate marks an already-seen vote/output for the same
	// (session, authority) pair.
	ErrDuplicate = errors.New("duplicate")

	// ErrAlreadyCommitted marks an output for a session that already
	// reached first quorum on a (possibly different) digest.
	ErrAlreadyCommitted = errors.New("already committed")

	// ErrStorageError wraps underlying store failures. Encountered while
	// writing a consensus commit's batch, it is fatal: correctness over
	// availability.
	ErrStorageError = errors.New("storage error")

	// ErrPeerUnavailable and ErrTimeout are state-sync-only: the caller
	// rotates to the next peer rather than treating these as fatal.
	ErrPeerUnavailable = errors.New("peer unavailable")
	ErrTimeout         = errors.New("timeout")

	// ErrRepeatedSigner, ErrInvalidSignature, ErrNotInCommittee classify a
	// Failed InsertResult from the stake aggregator.
	ErrRepeatedSigner   = errors.New("repeated signer")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNotInCommittee   = errors.New("authority not in committee")

	// ErrInvalidPublicInput marks an MPC advance whose public input could
	// not be validated against the session's access structure.
	ErrInvalidPublicInput = errors.New("invalid public input")

	// ErrUnsupportedSystemMessage is returned by checkpoint.NewSystemMessage for
	// the system-checkpoint message variants the original source marks
	// todo!() — resolving Open Question 3 of SPEC_FULL.md §9 in favor of an
	// explicit unsupported error rather than a panic.
	ErrUnsupportedSystemMessage = errors.New("unsupported system checkpoint message")

	// ErrDigestMismatch is returned by state-sync when a peer's response
	// digest does not match an operator-pinned digest for that sequence.
	ErrDigestMismatch = errors.New("digest mismatch with pinned checkpoint")

	// ErrSequenceGap guards the builder/aggregator invariant that
	// checkpoint sequence numbers are dense.
	ErrSequenceGap = errors.New("checkpoint sequence gap")
)

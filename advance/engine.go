package advance

import (
	"github.com/luxfi/log"

	"github.com/luxfi/dwallet-consensus/errs"
	"github.com/luxfi/dwallet-consensus/mpcsession"
	"github.com/luxfi/dwallet-consensus/observability"
)

// Engine dispatches a session's buffered round messages to the
// protocol-kind-specific Advancer, after excluding malicious
// messages and checking the round has reached quorum weight. It
// holds no per-session state itself: every Advance call is a pure
// function of the Session passed in plus the engine's fixed
// configuration (root seed, chunk size, logger).
type Engine struct {
	rootSeed       []byte
	chunkSizeBytes uint32
	logger         log.Logger
	primitive      Primitive
	advancers      map[mpcsession.ProtocolKind]Advancer

	metrics *observability.Collector // nil-safe: metrics are optional
}

// WithMetrics attaches an observability.Collector the engine reports
// threshold-not-reached counts to. Passing nil disables metrics
// reporting.
func (e *Engine) WithMetrics(m *observability.Collector) *Engine {
	e.metrics = m
	return e
}

// NewEngine builds an Engine with the default placeholder Primitive
// wired to every protocol kind. rootSeed seeds every session's
// deterministic RNG (spec.md §4.4); chunkSizeBytes bounds oversized
// network-DKG/reconfiguration output slices.
func NewEngine(rootSeed []byte, chunkSizeBytes uint32, logger log.Logger) *Engine {
	e := &Engine{
		rootSeed:       rootSeed,
		chunkSizeBytes: chunkSizeBytes,
		logger:         logger,
		primitive:      defaultPrimitive{},
	}
	e.advancers = map[mpcsession.ProtocolKind]Advancer{
		mpcsession.ProtocolDKGRound1:                   dkgRound1{e.primitive},
		mpcsession.ProtocolDKGRound2:                    dkgRound2{e.primitive},
		mpcsession.ProtocolPresign:                      presignAdvancer{e.primitive},
		mpcsession.ProtocolSign:                         signAdvancer{e.primitive},
		mpcsession.ProtocolNetworkDKG:                   networkKeyProtocol{e.primitive, chunkSizeBytes},
		mpcsession.ProtocolReconfiguration:              networkKeyProtocol{e.primitive, chunkSizeBytes},
		mpcsession.ProtocolImportedKeyVerification:      importedKeyVerification{e.primitive},
		mpcsession.ProtocolEncryptedShareVerification:   verificationOnly{},
		mpcsession.ProtocolPartialSignatureVerification: verificationOnly{},
		mpcsession.ProtocolMakeSecretPublic:             verificationOnly{},
	}
	return e
}

// weightOf sums the access structure's weight for the given parties.
func weightOf(access mpcsession.AccessStructure, parties map[uint16][]byte) uint32 {
	var total uint32
	for party := range parties {
		total += access.Weights[party]
	}
	return total
}

// Advance runs one round for session, given the round's raw
// (possibly malformed or malicious) messages keyed by party id.
//
// Malformed envelopes are excluded and their senders reported
// malicious; this never fails the call outright (spec.md §4.4's
// defensive-deserialization contract). If the remaining weight is
// below access.Threshold, ErrThresholdNotReached is returned and the
// session is left completely unmodified — in particular
// session.CurrentAttempt is never bumped here, preserving the
// determinism invariant of spec.md §8 scenario 2.
func (e *Engine) Advance(session *mpcsession.Session, partyID uint16, access mpcsession.AccessStructure, rawMessages map[uint16][]byte, encryptionKeys map[uint16][]byte) (Outcome, error) {
	clean := make(map[uint16][]byte, len(rawMessages))
	var malicious []uint16
	for party, raw := range rawMessages {
		payload, err := decodeEnvelope(raw)
		if err != nil {
			malicious = append(malicious, party)
			continue
		}
		clean[party] = payload
	}

	if weightOf(access, clean) < access.Threshold {
		if e.metrics != nil {
			e.metrics.IncThresholdMisses()
		}
		return Outcome{Kind: OutcomeAdvance, MaliciousParties: malicious}, errs.ErrThresholdNotReached
	}

	advancer, ok := e.advancers[session.Protocol]
	if !ok {
		return Outcome{}, errs.ErrMPCProtocol
	}

	in := Input{
		Session:        session,
		PartyID:        partyID,
		Access:         access,
		Messages:       clean,
		EncryptionKeys: encryptionKeys,
		Logger:         e.logger,
		RNG:            NewRNG(e.rootSeed, session.ID, session.CurrentRound, session.CurrentAttempt),
	}

	out, err := advancer.Advance(in)
	if err != nil {
		return Outcome{}, err
	}
	out.MaliciousParties = append(out.MaliciousParties, malicious...)

	if out.Kind == OutcomeAdvance {
		session.AdvanceRound()
	} else {
		session.Finalized = true
	}
	return out, nil
}

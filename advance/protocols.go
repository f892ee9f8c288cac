package advance

import (
	"bytes"

	"github.com/luxfi/dwallet-consensus/errs"
)

// finalizeSingle builds a one-slice OutcomeFinalize Outcome, for every
// protocol kind except the chunked network-key ones.
func finalizeSingle(output, privateOutput []byte, rejected bool) Outcome {
	var keyID [32]byte
	return Outcome{
		Kind:          OutcomeFinalize,
		Slices:        []OutputSlice{{KeyID: keyID, Bytes: output, IsLast: true, Rejected: rejected}},
		PrivateOutput: privateOutput,
	}
}

// dkgRound1 finalizes in a single round: the first DKG round has no
// prior round's output to fold in, so Combine runs directly over the
// round's messages.
type dkgRound1 struct{ primitive Primitive }

func (d dkgRound1) Advance(in Input) (Outcome, error) {
	output, err := d.primitive.Combine(in.RNG, in.Messages)
	if err != nil {
		return Outcome{}, errs.ErrMPCProtocol
	}
	private, err := d.primitive.Share(in.RNG, in.Messages)
	if err != nil {
		return Outcome{}, errs.ErrMPCProtocol
	}
	return finalizeSingle(output, private, false), nil
}

// dkgRound2 verifies each party's encrypted share against that
// party's encryption key before combining. A verification failure is
// a hard protocol error (errs.ErrMPCProtocol), not a malicious-party
// exclusion: by round 2 the share's author already cleared envelope
// decoding and threshold checks, so a bad share indicates a protocol
// violation the caller must fail the session over.
type dkgRound2 struct{ primitive Primitive }

func (d dkgRound2) Advance(in Input) (Outcome, error) {
	for party, share := range in.Messages {
		key, ok := in.EncryptionKeys[party]
		if !ok || !verifyEncryptedShare(share, key) {
			return Outcome{}, errs.ErrMPCProtocol
		}
	}
	output, err := d.primitive.Combine(in.RNG, in.Messages)
	if err != nil {
		return Outcome{}, errs.ErrMPCProtocol
	}
	private, err := d.primitive.Share(in.RNG, in.Messages)
	if err != nil {
		return Outcome{}, errs.ErrMPCProtocol
	}
	return finalizeSingle(output, private, false), nil
}

// verifyEncryptedShare is a placeholder verification predicate
// standing in for the real encrypted-share proof check (spec.md §1
// Non-goal): it requires a non-empty share bound to a non-empty key,
// which is enough to exercise the hard-failure path in tests.
func verifyEncryptedShare(share, key []byte) bool {
	return len(share) > 0 && len(key) > 0
}

type presignAdvancer struct{ primitive Primitive }

func (p presignAdvancer) Advance(in Input) (Outcome, error) {
	output, err := p.primitive.Combine(in.RNG, in.Messages)
	if err != nil {
		return Outcome{}, errs.ErrMPCProtocol
	}
	private, err := p.primitive.Share(in.RNG, in.Messages)
	if err != nil {
		return Outcome{}, errs.ErrMPCProtocol
	}
	return finalizeSingle(output, private, false), nil
}

// signAdvancer requires the session to already carry a decryption
// share (set at session creation for Sign sessions, per
// mpcsession.Session's field doc); without one there is nothing to
// combine a partial signature against.
type signAdvancer struct{ primitive Primitive }

func (s signAdvancer) Advance(in Input) (Outcome, error) {
	if len(in.Session.DecryptionShare) == 0 {
		return Outcome{}, errs.ErrInvalidPublicInput
	}
	messages := make(map[uint16][]byte, len(in.Messages)+1)
	for k, v := range in.Messages {
		messages[k] = v
	}
	messages[in.PartyID] = append(append([]byte{}, in.Session.DecryptionShare...), messages[in.PartyID]...)

	output, err := s.primitive.Combine(in.RNG, messages)
	if err != nil {
		return Outcome{}, errs.ErrMPCProtocol
	}
	return finalizeSingle(output, nil, false), nil
}

// networkKeyProtocol backs both ProtocolNetworkDKG and
// ProtocolReconfiguration: both can produce an output large enough to
// need splitting across multiple checkpoint messages (spec.md §4.4).
type networkKeyProtocol struct {
	primitive      Primitive
	chunkSizeBytes uint32
}

func (n networkKeyProtocol) Advance(in Input) (Outcome, error) {
	output, err := n.primitive.Combine(in.RNG, in.Messages)
	if err != nil {
		return Outcome{}, errs.ErrMPCProtocol
	}
	private, err := n.primitive.Share(in.RNG, in.Messages)
	if err != nil {
		return Outcome{}, errs.ErrMPCProtocol
	}
	var keyID [32]byte
	copy(keyID[:], in.Session.ID[:])
	return Outcome{
		Kind:          OutcomeFinalize,
		Slices:        sliceOutput(keyID, output, n.chunkSizeBytes, nil, false),
		PrivateOutput: private,
	}, nil
}

// importedKeyVerification checks the imported key material's public
// input is consistent with the combined round output before
// finalizing; a mismatch rejects rather than hard-fails, since an
// operator importing a bad key is an expected input-validation case
// rather than a protocol violation.
type importedKeyVerification struct{ primitive Primitive }

func (iv importedKeyVerification) Advance(in Input) (Outcome, error) {
	output, err := iv.primitive.Combine(in.RNG, in.Messages)
	if err != nil {
		return Outcome{}, errs.ErrMPCProtocol
	}
	rejected := len(in.Session.PublicInput) > 0 && !bytes.Contains(output, in.Session.PublicInput[:minInt(len(in.Session.PublicInput), len(output))])
	return finalizeSingle(output, nil, rejected), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// verificationOnly backs the three kinds that finalize in a single
// round with empty public/private output (mpcsession.ProtocolKind.
// IsVerificationOnly): encrypted-share, partial-signature, and
// make-secret-public verification all report pass/fail without
// producing key material.
type verificationOnly struct{}

func (verificationOnly) Advance(in Input) (Outcome, error) {
	return finalizeSingle(nil, nil, false), nil
}

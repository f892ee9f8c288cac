package advance

import (
	"bytes"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/dwallet-consensus/errs"
	logtest "github.com/luxfi/dwallet-consensus/internal/logtest"
	"github.com/luxfi/dwallet-consensus/mpcsession"
)

func testAccess() mpcsession.AccessStructure {
	return mpcsession.AccessStructure{
		Threshold: 6,
		Weights:   map[uint16]uint32{1: 3, 2: 3, 3: 3, 4: 3},
	}
}

func envelope(payload string) []byte {
	return encodeEnvelope([]byte(payload))
}

// Scenario 2 (spec.md §8): a ThresholdNotReached outcome must not
// mutate the session, and once enough messages eventually arrive the
// resulting advance must be byte-identical to having received them
// all in a single delivery.
func TestThresholdNotReachedIsDeterministicAcrossRetries(t *testing.T) {
	engine := NewEngine([]byte("root-seed"), 4096, logtest.NewNoOpLogger())
	access := testAccess()

	sessionA := mpcsession.New(ids.GenerateTestID(), mpcsession.ProtocolPresign, mpcsession.SessionType{}, nil, nil)
	partial := map[uint16][]byte{1: envelope("m1")}
	out, err := engine.Advance(sessionA, 1, access, partial, nil)
	require.ErrorIs(t, err, errs.ErrThresholdNotReached)
	require.Equal(t, uint64(0), sessionA.CurrentRound)
	require.Equal(t, uint32(0), sessionA.CurrentAttempt)
	require.Empty(t, out.MaliciousParties)

	full := map[uint16][]byte{1: envelope("m1"), 2: envelope("m2"), 3: envelope("m3")}
	outA, err := engine.Advance(sessionA, 1, access, full, nil)
	require.NoError(t, err)

	sessionB := mpcsession.New(sessionA.ID, mpcsession.ProtocolPresign, mpcsession.SessionType{}, nil, nil)
	// sessionA has finalized; sessionB is a fresh session at round 0,
	// attempt 0 carrying the same ID.
	sessionB.ID = sessionA.ID
	outB, err := engine.Advance(sessionB, 1, access, full, nil)
	require.NoError(t, err)

	require.Equal(t, outA.Slices[0].Bytes, outB.Slices[0].Bytes)
	require.Equal(t, outA.PrivateOutput, outB.PrivateOutput)
}

// Scenario 3 (spec.md §8): an oversized network-DKG output is chunked
// into 5120/5120/2816-byte slices.
func TestNetworkDKGOutputIsChunked(t *testing.T) {
	var keyID [32]byte
	data := bytes.Repeat([]byte{0x42}, 13056)
	slices := sliceOutput(keyID, data, 5120, nil, false)

	require.Len(t, slices, 3)
	require.Len(t, slices[0].Bytes, 5120)
	require.False(t, slices[0].IsLast)
	require.Len(t, slices[1].Bytes, 5120)
	require.False(t, slices[1].IsLast)
	require.Len(t, slices[2].Bytes, 2816)
	require.True(t, slices[2].IsLast)
}

func TestMalformedMessageExcludesSenderAsMalicious(t *testing.T) {
	engine := NewEngine([]byte("root-seed"), 4096, logtest.NewNoOpLogger())
	access := testAccess()
	session := mpcsession.New(ids.GenerateTestID(), mpcsession.ProtocolPresign, mpcsession.SessionType{}, nil, nil)

	messages := map[uint16][]byte{
		1: envelope("m1"),
		2: envelope("m2"),
		3: envelope("m3"),
		4: []byte("no-envelope-tag"),
	}
	out, err := engine.Advance(session, 1, access, messages, nil)
	require.NoError(t, err)
	require.Equal(t, []uint16{4}, out.MaliciousParties)
}

func TestDKGRound1FinalizesAndAdvancesSession(t *testing.T) {
	engine := NewEngine([]byte("root-seed"), 4096, logtest.NewNoOpLogger())
	access := testAccess()
	session := mpcsession.New(ids.GenerateTestID(), mpcsession.ProtocolDKGRound1, mpcsession.SessionType{}, nil, nil)

	messages := map[uint16][]byte{1: envelope("m1"), 2: envelope("m2"), 3: envelope("m3")}
	out, err := engine.Advance(session, 1, access, messages, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeFinalize, out.Kind)
	require.True(t, session.Finalized)
	require.NotEmpty(t, out.Slices[0].Bytes)
	require.NotEmpty(t, out.PrivateOutput)
}

func TestDKGRound2HardFailsOnBadShare(t *testing.T) {
	engine := NewEngine([]byte("root-seed"), 4096, logtest.NewNoOpLogger())
	access := testAccess()
	session := mpcsession.New(ids.GenerateTestID(), mpcsession.ProtocolDKGRound2, mpcsession.SessionType{}, nil, nil)

	messages := map[uint16][]byte{1: envelope("m1"), 2: envelope("m2"), 3: envelope("m3")}
	_, err := engine.Advance(session, 1, access, messages, map[uint16][]byte{1: {}, 2: {0x1}, 3: {0x1}})
	require.ErrorIs(t, err, errs.ErrMPCProtocol)
}

func TestSignRequiresDecryptionShare(t *testing.T) {
	engine := NewEngine([]byte("root-seed"), 4096, logtest.NewNoOpLogger())
	access := testAccess()
	session := mpcsession.New(ids.GenerateTestID(), mpcsession.ProtocolSign, mpcsession.SessionType{}, nil, nil)

	messages := map[uint16][]byte{1: envelope("m1"), 2: envelope("m2"), 3: envelope("m3")}
	_, err := engine.Advance(session, 1, access, messages, nil)
	require.ErrorIs(t, err, errs.ErrInvalidPublicInput)

	session.DecryptionShare = []byte("share")
	out, err := engine.Advance(session, 1, access, messages, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeFinalize, out.Kind)
}

func TestVerificationOnlyFinalizesEmpty(t *testing.T) {
	engine := NewEngine([]byte("root-seed"), 4096, logtest.NewNoOpLogger())
	access := testAccess()
	for _, kind := range []mpcsession.ProtocolKind{
		mpcsession.ProtocolEncryptedShareVerification,
		mpcsession.ProtocolPartialSignatureVerification,
		mpcsession.ProtocolMakeSecretPublic,
	} {
		session := mpcsession.New(ids.GenerateTestID(), kind, mpcsession.SessionType{}, nil, nil)
		messages := map[uint16][]byte{1: envelope("m1"), 2: envelope("m2"), 3: envelope("m3")}
		out, err := engine.Advance(session, 1, access, messages, nil)
		require.NoError(t, err)
		require.Equal(t, OutcomeFinalize, out.Kind)
		require.Empty(t, out.Slices[0].Bytes)
	}
}

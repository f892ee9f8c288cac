package stakeagg_test

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/dwallet-consensus/committee"
	"github.com/luxfi/dwallet-consensus/errs"
	"github.com/luxfi/dwallet-consensus/stakeagg"
)

type acceptAllVerifier struct{}

func (acceptAllVerifier) Verify(ids.NodeID, [32]byte, []byte) bool { return true }

func TestCheckpointQuorumScenario(t *testing.T) {
	// Scenario 4 of spec.md §8: A,B,C,D weights 2,2,2,1, quorum 5.
	a, b, c, d := ids.GenerateTestNodeID(), ids.GenerateTestNodeID(), ids.GenerateTestNodeID(), ids.GenerateTestNodeID()
	auths := []committee.Authority{
		{ID: a, Weight: 2}, {ID: b, Weight: 2}, {ID: c, Weight: 2}, {ID: d, Weight: 1},
	}
	// total weight 7, quorum 5 => bps = 5/7 rounded down = 7142
	// (QuorumThreshold rounds up, and 7*7143/10000 = 5.0001 would give 6)
	com, err := committee.New(1, auths, 7142, 3572)
	require.NoError(t, err)
	require.Equal(t, uint64(5), com.QuorumThreshold())

	agg := stakeagg.New(com, acceptAllVerifier{})

	digestX := [32]byte{1}
	digestY := [32]byte{2}

	res := agg.Insert(a, digestX, []byte("sig"))
	require.Nil(t, res.Quorum)
	res = agg.Insert(b, digestX, []byte("sig"))
	require.Nil(t, res.Quorum)

	// C signs a different digest entirely (simulating a remote fork the
	// checkpoint aggregator would have filtered out before even calling
	// Insert; stakeagg itself just tracks it as separate weight).
	res = agg.Insert(c, digestY, []byte("sig"))
	require.Nil(t, res.Quorum)
	require.Equal(t, uint64(4), agg.WeightOn(digestX))
	require.Equal(t, uint64(2), agg.WeightOn(digestY))

	res = agg.Insert(d, digestX, []byte("sig"))
	require.NotNil(t, res.Quorum)
	require.Equal(t, digestX, res.Quorum.Digest)
	require.Equal(t, uint64(5), res.Quorum.TotalWeight)
	require.Len(t, res.Quorum.Signatures, 3)
}

func TestRepeatedSignerConflictDoesNotReplaceFirstVote(t *testing.T) {
	auths := []committee.Authority{
		{ID: ids.GenerateTestNodeID(), Weight: 1},
		{ID: ids.GenerateTestNodeID(), Weight: 1},
		{ID: ids.GenerateTestNodeID(), Weight: 1},
	}
	com, err := committee.New(1, auths, 6667, 3334)
	require.NoError(t, err)
	agg := stakeagg.New(com, acceptAllVerifier{})

	signer := auths[0].ID
	d1 := [32]byte{1}
	d2 := [32]byte{2}

	agg.Insert(signer, d1, []byte("sig"))
	res := agg.Insert(signer, d2, []byte("sig"))
	require.Nil(t, res.Quorum)
	require.Equal(t, 1, res.NotEnoughVotes.BadVotes)
	require.Equal(t, uint64(1), agg.WeightOn(d1))
	require.Equal(t, uint64(0), agg.WeightOn(d2))
}

func TestNotInCommitteeFails(t *testing.T) {
	auths := []committee.Authority{{ID: ids.GenerateTestNodeID(), Weight: 1}}
	com, err := committee.New(1, auths, 6667, 3334)
	require.NoError(t, err)
	agg := stakeagg.New(com, acceptAllVerifier{})

	stranger := ids.GenerateTestNodeID()
	res := agg.Insert(stranger, [32]byte{1}, []byte("sig"))
	require.ErrorIs(t, res.FailedKind, errs.ErrNotInCommittee)
}

package committee_test

import (
	"context"
	"testing"

	"github.com/luxfi/ids"
	"github.com/luxfi/validators"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/dwallet-consensus/committee"
)

type fakeValidatorState struct {
	byHeight map[uint64]map[ids.NodeID]*validators.GetValidatorOutput
	current  map[ids.NodeID]*validators.GetValidatorOutput
}

func (f *fakeValidatorState) GetValidatorSet(_ context.Context, height uint64, _ ids.ID) (map[ids.NodeID]*validators.GetValidatorOutput, error) {
	return f.byHeight[height], nil
}

func (f *fakeValidatorState) GetCurrentValidators(_ ids.ID) (map[ids.NodeID]*validators.GetValidatorOutput, error) {
	return f.current, nil
}

func TestFromValidatorsStateBuildsCommittee(t *testing.T) {
	a, b := ids.GenerateTestNodeID(), ids.GenerateTestNodeID()
	state := &fakeValidatorState{
		byHeight: map[uint64]map[ids.NodeID]*validators.GetValidatorOutput{
			100: {
				a: {NodeID: a, Weight: 7},
				b: {NodeID: b, Weight: 3},
			},
		},
	}

	c, err := committee.FromValidatorsState(context.Background(), state, 100, ids.Empty, 1, 6667, 3334)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	require.Equal(t, uint64(10), c.TotalWeight())
	require.Equal(t, uint64(7), c.Weight(a))
}

func TestFromCurrentValidatorsBuildsCommittee(t *testing.T) {
	a := ids.GenerateTestNodeID()
	state := &fakeValidatorState{
		current: map[ids.NodeID]*validators.GetValidatorOutput{
			a: {NodeID: a, Weight: 5},
		},
	}

	c, err := committee.FromCurrentValidators(state, ids.Empty, 1, 6667, 3334)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
}

func TestWithEncryptionKeysLayersOnTop(t *testing.T) {
	auths := testAuthorities(2)
	c, err := committee.New(1, auths, 6667, 3334)
	require.NoError(t, err)

	keys := map[ids.NodeID][]byte{auths[0].ID: []byte("key-a")}
	withKeys := c.WithEncryptionKeys(keys)

	key, ok := withKeys.EncryptionKey(auths[0].ID)
	require.True(t, ok)
	require.Equal(t, []byte("key-a"), key)

	_, ok = withKeys.EncryptionKey(auths[1].ID)
	require.False(t, ok)

	// The original committee is unaffected.
	_, ok = c.EncryptionKey(auths[0].ID)
	require.False(t, ok)
}

package committee

import (
	"context"
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/validators"
)

// FromValidatorsState builds a Committee by snapshotting an external
// github.com/luxfi/validators.State at (height, chainID), the same
// dependency the teacher's validator.Manager wraps rather than owning
// validator discovery itself. EncryptionKey material is layered on
// separately via WithEncryptionKeys, since State has no notion of
// dWallet-MPC encryption keys.
func FromValidatorsState(ctx context.Context, state validators.State, height uint64, chainID ids.ID, epochID uint64, quorumBps, validityBps uint16) (*Committee, error) {
	vdrs, err := state.GetValidatorSet(ctx, height, chainID)
	if err != nil {
		return nil, fmt.Errorf("committee: fetching validator set: %w", err)
	}
	return fromValidatorOutputs(vdrs, epochID, quorumBps, validityBps)
}

// FromCurrentValidators is FromValidatorsState's sibling for subnets
// that expose only the always-current view (no historical height
// lookup), mirroring the teacher's GetCurrentValidators call sites.
func FromCurrentValidators(state validators.State, subnetID ids.ID, epochID uint64, quorumBps, validityBps uint16) (*Committee, error) {
	vdrs, err := state.GetCurrentValidators(subnetID)
	if err != nil {
		return nil, fmt.Errorf("committee: fetching current validators: %w", err)
	}
	return fromValidatorOutputs(vdrs, epochID, quorumBps, validityBps)
}

func fromValidatorOutputs(vdrs map[ids.NodeID]*validators.GetValidatorOutput, epochID uint64, quorumBps, validityBps uint16) (*Committee, error) {
	authorities := make([]Authority, 0, len(vdrs))
	for nodeID, v := range vdrs {
		var pkBytes []byte
		if v.PublicKey != nil {
			pkBytes = v.PublicKey.Bytes()
		}
		authorities = append(authorities, Authority{
			ID:             nodeID,
			Weight:         v.Weight,
			PublicKeyBytes: pkBytes,
		})
	}
	return New(epochID, authorities, quorumBps, validityBps)
}

// WithEncryptionKeys returns a copy of c with each authority's
// dWallet-MPC encryption key filled in from keys, leaving any authority
// absent from keys with no encryption key (EncryptionKey will report
// false for it). Committee itself stays immutable once built; this is
// the one supported way to layer encryption-key material on top of a
// validators.State-derived committee.
func (c *Committee) WithEncryptionKeys(keys map[ids.NodeID][]byte) *Committee {
	out := &Committee{
		epochID:     c.epochID,
		authorities: make([]Authority, len(c.authorities)),
		byID:        c.byID,
		partyOf:     c.partyOf,
		authorityOf: c.authorityOf,
		totalWeight: c.totalWeight,
		quorumBps:   c.quorumBps,
		validityBps: c.validityBps,
	}
	copy(out.authorities, c.authorities)
	for i, a := range out.authorities {
		if key, ok := keys[a.ID]; ok {
			out.authorities[i].EncryptionKey = key
		}
	}
	return out
}

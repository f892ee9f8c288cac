// Package committee models the current epoch's authority set: identities,
// voting weight, encryption-key material, and the party-id bijection the
// MPC advancement engine dispatches on. It is grounded on the teacher's
// validators.manager (weight-keyed validator map, AddStaker/SubsetWeight)
// generalized from "subnet validator set" to "epoch committee", and
// wraps an external github.com/luxfi/validators.State snapshot rather
// than inventing its own validator-discovery mechanism.
package committee

import (
	"fmt"
	"sort"

	"github.com/luxfi/ids"

	safemath "github.com/luxfi/dwallet-consensus/utils/math"
)

// Authority is one committee member for the current epoch.
type Authority struct {
	ID             ids.NodeID
	Weight         uint64
	EncryptionKey  []byte // the authority's dWallet-MPC encryption-key material
	PublicKeyBytes []byte // BLS public key bytes, used by the stake aggregator
}

// Committee is the ordered, immutable authority set for one epoch, plus
// its derived quorum/validity thresholds and the stable party-id
// bijection the MPC layer uses.
type Committee struct {
	epochID     uint64
	authorities []Authority
	byID        map[ids.NodeID]int // index into authorities
	partyOf     map[ids.NodeID]uint16
	authorityOf []ids.NodeID // party id -> authority id, 0-indexed
	totalWeight uint64
	quorumBps   uint16
	validityBps uint16
}

// New builds a Committee from an authority list. Authorities are sorted
// by ID to give a deterministic, restart-stable party-id assignment.
func New(epochID uint64, authorities []Authority, quorumBps, validityBps uint16) (*Committee, error) {
	if len(authorities) == 0 {
		return nil, fmt.Errorf("committee: epoch %d has no authorities", epochID)
	}
	if quorumBps == 0 || quorumBps > 10_000 {
		return nil, fmt.Errorf("committee: invalid quorum bps %d", quorumBps)
	}
	if validityBps == 0 || validityBps > quorumBps {
		return nil, fmt.Errorf("committee: invalid validity bps %d (quorum %d)", validityBps, quorumBps)
	}

	sorted := make([]Authority, len(authorities))
	copy(sorted, authorities)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	c := &Committee{
		epochID:     epochID,
		authorities: sorted,
		byID:        make(map[ids.NodeID]int, len(sorted)),
		partyOf:     make(map[ids.NodeID]uint16, len(sorted)),
		authorityOf: make([]ids.NodeID, len(sorted)),
		quorumBps:   quorumBps,
		validityBps: validityBps,
	}

	var total uint64
	for i, a := range sorted {
		if a.Weight == 0 {
			return nil, fmt.Errorf("committee: authority %s has zero weight", a.ID)
		}
		if _, dup := c.byID[a.ID]; dup {
			return nil, fmt.Errorf("committee: duplicate authority %s", a.ID)
		}
		c.byID[a.ID] = i
		c.partyOf[a.ID] = uint16(i)
		c.authorityOf[i] = a.ID
		var err error
		total, err = safemath.Add64(total, a.Weight)
		if err != nil {
			return nil, fmt.Errorf("committee: total weight overflow: %w", err)
		}
	}
	c.totalWeight = total
	return c, nil
}

// EpochID returns the epoch this committee is scoped to.
func (c *Committee) EpochID() uint64 { return c.epochID }

// Len returns the number of authorities.
func (c *Committee) Len() int { return len(c.authorities) }

// Authorities returns the ordered authority list. Callers must not
// mutate the returned slice.
func (c *Committee) Authorities() []Authority { return c.authorities }

// Has reports whether nodeID is a current-epoch committee member.
func (c *Committee) Has(nodeID ids.NodeID) bool {
	_, ok := c.byID[nodeID]
	return ok
}

// Weight returns nodeID's voting weight, or 0 if it is not a member.
func (c *Committee) Weight(nodeID ids.NodeID) uint64 {
	i, ok := c.byID[nodeID]
	if !ok {
		return 0
	}
	return c.authorities[i].Weight
}

// TotalWeight returns the sum of all member weights.
func (c *Committee) TotalWeight() uint64 { return c.totalWeight }

// QuorumThreshold returns the absolute stake needed for certification.
func (c *Committee) QuorumThreshold() uint64 {
	return bpsOf(c.totalWeight, c.quorumBps)
}

// ValidityThreshold returns the absolute stake above which the
// Byzantine-minority assumption breaks.
func (c *Committee) ValidityThreshold() uint64 {
	return bpsOf(c.totalWeight, c.validityBps)
}

// bpsOf computes ceil(total * bps / 10000) without overflowing uint64
// for realistic committee weights; the multiply is split across the
// quotient and remainder of total/10000 to stay conservative.
func bpsOf(total uint64, bps uint16) uint64 {
	whole := total / 10_000
	rem := total % 10_000
	return whole*uint64(bps) + (rem*uint64(bps)+9_999)/10_000
}

// SubsetWeight sums the weight of the given node IDs, ignoring any that
// are not committee members (mirrors the teacher's
// validators.manager.SubsetWeight, generalized off subnet IDs).
func (c *Committee) SubsetWeight(nodeIDs []ids.NodeID) uint64 {
	var total uint64
	for _, id := range nodeIDs {
		total += c.Weight(id)
	}
	return total
}

// PartyID returns the small-integer party id bound to nodeID within this
// epoch, stable for the epoch's lifetime.
func (c *Committee) PartyID(nodeID ids.NodeID) (uint16, bool) {
	p, ok := c.partyOf[nodeID]
	return p, ok
}

// AuthorityByParty is the inverse of PartyID.
func (c *Committee) AuthorityByParty(partyID uint16) (ids.NodeID, bool) {
	if int(partyID) >= len(c.authorityOf) {
		return ids.NodeID{}, false
	}
	return c.authorityOf[partyID], true
}

// EncryptionKey returns the authority's dWallet-MPC encryption key
// material, used by DKG-second-round encrypted-share verification.
func (c *Committee) EncryptionKey(nodeID ids.NodeID) ([]byte, bool) {
	i, ok := c.byID[nodeID]
	if !ok {
		return nil, false
	}
	key := c.authorities[i].EncryptionKey
	return key, len(key) > 0
}

// Package config holds the tunables of the dWallet-MPC consensus commit
// processor, following the teacher's struct-of-tunables-plus-named-
// constructors idiom (see the upstream consensus.Parameters /
// DefaultParams / MainnetParams family this package replaces).
package config

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidMaxMessages      = errors.New("max messages per checkpoint must be >= 1")
	ErrInvalidMaxBytes         = errors.New("max checkpoint size bytes must be >= 1")
	ErrInvalidInterval         = errors.New("min checkpoint interval must be >= 0")
	ErrInvalidBufferStakeBps   = errors.New("buffer stake bps must be in [0, 10000)")
	ErrInvalidDownloadConc     = errors.New("checkpoint header download concurrency must be >= 1")
	ErrInvalidRPCTimeout       = errors.New("state sync rpc timeout must be >= 1ms")
	ErrInvalidQuorumThreshold  = errors.New("quorum threshold bps must be in (0, 10000]")
	ErrInvalidValidityThresh   = errors.New("validity threshold bps must be in (0, quorum threshold bps]")
	ErrInvalidNetworkDKGChunk  = errors.New("network dkg chunk size bytes must be >= 1")
	ErrInvalidMPCPoolSize      = errors.New("mpc compute pool size must be >= 1")
)

// PinnedCheckpoint anchors a state-sync peer response to a known-good
// digest at a given sequence. Note is operator tooling only (audit log
// text); it is never part of the checkpoint wire format.
type PinnedCheckpoint struct {
	Sequence uint64
	Digest   [32]byte
	Note     string
}

// Config is the full set of tunables named in SPEC_FULL.md §6.
type Config struct {
	// MaxMessagesPerDWalletCheckpoint bounds the message count of a single
	// built checkpoint chunk (rollover trigger).
	MaxMessagesPerDWalletCheckpoint uint32
	// MaxDWalletCheckpointSizeBytes bounds the encoded byte size of a
	// single built checkpoint chunk (rollover trigger).
	MaxDWalletCheckpointSizeBytes uint32
	// MinDWalletCheckpointIntervalMs is the minimum wall-clock gap between
	// two built checkpoints' timestamps.
	MinDWalletCheckpointIntervalMs uint64

	// BufferStakeForProtocolUpgradeBps is the stake margin, in basis
	// points above the quorum threshold, required before a new protocol
	// config version is considered to have quorum support.
	BufferStakeForProtocolUpgradeBps uint16
	// BufferStakeOverrideBps optionally overrides
	// BufferStakeForProtocolUpgradeBps for a single epoch (operator
	// emergency knob); nil means "no override".
	BufferStakeOverrideBps *uint16

	// CheckpointHeaderDownloadConcurrency bounds parallel state-sync
	// fetches per peer-catch-up job.
	CheckpointHeaderDownloadConcurrency uint16
	// StateSyncRPCTimeoutMs is the per-call deadline for state-sync RPCs.
	StateSyncRPCTimeoutMs uint32

	// PinnedCheckpoints anchors specific sequences to known-good digests.
	PinnedCheckpoints []PinnedCheckpoint

	// QuorumThresholdBps is the stake fraction (basis points) required for
	// certification / first-quorum declaration.
	QuorumThresholdBps uint16
	// ValidityThresholdBps is the stake fraction above which the
	// Byzantine-minority assumption breaks; must be <= QuorumThresholdBps.
	ValidityThresholdBps uint16

	// NetworkDKGChunkSizeBytes is the slice size used to chunk
	// oversized network-DKG / reconfiguration outputs (§4.4: 5 KiB).
	NetworkDKGChunkSizeBytes uint32

	// MPCComputePoolSize bounds the number of MPC sessions advanced
	// concurrently by the compute pool (§5), separate from the
	// single-goroutine consensus-handler loop.
	MPCComputePoolSize uint16
}

// DefaultConfig returns production-sane defaults, mirroring the
// teacher's DefaultParams().
func DefaultConfig() Config {
	return Config{
		MaxMessagesPerDWalletCheckpoint:     1000,
		MaxDWalletCheckpointSizeBytes:       4 * 1024 * 1024,
		MinDWalletCheckpointIntervalMs:      1000,
		BufferStakeForProtocolUpgradeBps:    1000,
		CheckpointHeaderDownloadConcurrency: 8,
		StateSyncRPCTimeoutMs:               10_000,
		QuorumThresholdBps:                  6667,
		ValidityThresholdBps:                3334,
		NetworkDKGChunkSizeBytes:            5 * 1024,
		MPCComputePoolSize:                  16,
	}
}

// TestConfig returns parameters suitable for small, fast unit/integration
// tests, mirroring the teacher's TestnetParams()/LocalParams() pattern.
func TestConfig() Config {
	c := DefaultConfig()
	c.MaxMessagesPerDWalletCheckpoint = 3
	c.MaxDWalletCheckpointSizeBytes = 4096
	c.MinDWalletCheckpointIntervalMs = 0
	c.NetworkDKGChunkSizeBytes = 5120
	return c
}

// EffectiveBufferStakeBps returns the override when set, else the default.
func (c Config) EffectiveBufferStakeBps() uint16 {
	if c.BufferStakeOverrideBps != nil {
		return *c.BufferStakeOverrideBps
	}
	return c.BufferStakeForProtocolUpgradeBps
}

// RPCTimeout returns StateSyncRPCTimeoutMs as a time.Duration.
func (c Config) RPCTimeout() time.Duration {
	return time.Duration(c.StateSyncRPCTimeoutMs) * time.Millisecond
}

// MinCheckpointInterval returns MinDWalletCheckpointIntervalMs as a
// time.Duration.
func (c Config) MinCheckpointInterval() time.Duration {
	return time.Duration(c.MinDWalletCheckpointIntervalMs) * time.Millisecond
}

// Validate checks every tunable's range, returning the first violation.
func (c Config) Validate() error {
	if c.MaxMessagesPerDWalletCheckpoint == 0 {
		return ErrInvalidMaxMessages
	}
	if c.MaxDWalletCheckpointSizeBytes == 0 {
		return ErrInvalidMaxBytes
	}
	if c.BufferStakeForProtocolUpgradeBps >= 10_000 {
		return ErrInvalidBufferStakeBps
	}
	if c.CheckpointHeaderDownloadConcurrency == 0 {
		return ErrInvalidDownloadConc
	}
	if c.StateSyncRPCTimeoutMs == 0 {
		return ErrInvalidRPCTimeout
	}
	if c.QuorumThresholdBps == 0 || c.QuorumThresholdBps > 10_000 {
		return ErrInvalidQuorumThreshold
	}
	if c.ValidityThresholdBps == 0 || c.ValidityThresholdBps > c.QuorumThresholdBps {
		return ErrInvalidValidityThresh
	}
	if c.NetworkDKGChunkSizeBytes == 0 {
		return ErrInvalidNetworkDKGChunk
	}
	if c.MPCComputePoolSize == 0 {
		return ErrInvalidMPCPoolSize
	}
	for _, p := range c.PinnedCheckpoints {
		if p.Digest == ([32]byte{}) {
			return fmt.Errorf("pinned checkpoint at sequence %d has zero digest", p.Sequence)
		}
	}
	return nil
}

// PinnedDigest returns the pinned digest for a sequence, if any.
func (c Config) PinnedDigest(seq uint64) ([32]byte, bool) {
	for _, p := range c.PinnedCheckpoints {
		if p.Sequence == seq {
			return p.Digest, true
		}
	}
	return [32]byte{}, false
}

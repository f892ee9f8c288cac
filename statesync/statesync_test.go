package statesync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/dwallet-consensus/checkpoint"
	"github.com/luxfi/dwallet-consensus/config"
	"github.com/luxfi/dwallet-consensus/errs"
	"github.com/luxfi/dwallet-consensus/statesync"
)

var localChainID = ids.ID{0x01}

type fakePeerClient struct {
	cert    checkpoint.Certified
	certs   map[uint64]checkpoint.Certified
	err     error
	watermk statesync.Watermarks
	wmErr   error
	chainID ids.ID
	chainErr error
	pushed  []checkpoint.Certified
	pushErr error
	calls   int
}

func (f *fakePeerClient) FetchCertified(ctx context.Context, stream checkpoint.Stream, sequence uint64) (checkpoint.Certified, error) {
	f.calls++
	if f.err != nil {
		return checkpoint.Certified{}, f.err
	}
	if f.certs != nil {
		return f.certs[sequence], nil
	}
	return f.cert, nil
}

func (f *fakePeerClient) Watermarks(ctx context.Context, stream checkpoint.Stream) (statesync.Watermarks, error) {
	if f.wmErr != nil {
		return statesync.Watermarks{}, f.wmErr
	}
	return f.watermk, nil
}

func (f *fakePeerClient) ChainIdentifier(ctx context.Context) (ids.ID, error) {
	if f.chainErr != nil {
		return ids.ID{}, f.chainErr
	}
	return f.chainID, nil
}

func (f *fakePeerClient) PushCertified(ctx context.Context, stream checkpoint.Stream, cert checkpoint.Certified) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushed = append(f.pushed, cert)
	return nil
}

func certAt(sequence uint64, digest [32]byte) checkpoint.Certified {
	return checkpoint.Certified{
		Built:      checkpoint.Built{Sequence: sequence},
		Digest:     digest,
		Signatures: map[uint16][]byte{0: []byte("sig")},
	}
}

func TestPullCertifiedAdvancesLocalWatermarkOnSuccess(t *testing.T) {
	engine := statesync.New(checkpoint.StreamDWallet, config.TestConfig(), localChainID)
	peer := &fakePeerClient{cert: certAt(7, [32]byte{1})}
	engine.AddPeer(ids.GenerateTestNodeID(), peer)

	cert, err := engine.PullCertified(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, uint64(7), cert.Built.Sequence)
	require.Equal(t, uint64(7), engine.Local().HighestSynced)
	require.Equal(t, 1, peer.calls)
}

func TestPullCertifiedRejectsPinnedDigestMismatch(t *testing.T) {
	cfg := config.TestConfig()
	cfg.PinnedCheckpoints = []config.PinnedCheckpoint{
		{Sequence: 7, Digest: [32]byte{0xAA}},
	}
	engine := statesync.New(checkpoint.StreamDWallet, cfg, localChainID)
	peer := &fakePeerClient{cert: certAt(7, [32]byte{0xBB})}
	engine.AddPeer(ids.GenerateTestNodeID(), peer)

	_, err := engine.PullCertified(context.Background(), 7)
	require.ErrorIs(t, err, errs.ErrDigestMismatch)
	// The mismatched response must not advance the local watermark.
	require.Equal(t, uint64(0), engine.Local().HighestSynced)
}

func TestPullCertifiedReturnsErrPeerUnavailableWithNoPeers(t *testing.T) {
	engine := statesync.New(checkpoint.StreamDWallet, config.TestConfig(), localChainID)
	_, err := engine.PullCertified(context.Background(), 1)
	require.ErrorIs(t, err, errs.ErrPeerUnavailable)
}

func TestPullCertifiedMarksFailedPeerAndFallsBackToAnother(t *testing.T) {
	engine := statesync.New(checkpoint.StreamDWallet, config.TestConfig(), localChainID)
	bad := &fakePeerClient{err: errors.New("boom")}
	good := &fakePeerClient{cert: certAt(3, [32]byte{2})}
	badID, goodID := ids.GenerateTestNodeID(), ids.GenerateTestNodeID()
	engine.AddPeer(badID, bad)
	engine.AddPeer(goodID, good)

	// Keep pulling until the bad peer has been tried and marked failed;
	// selection is randomized within the RTT window, so loop a bounded
	// number of times rather than assuming the first pick.
	var sawGood bool
	for i := 0; i < 20 && !sawGood; i++ {
		cert, err := engine.PullCertified(context.Background(), 3)
		if err == nil && cert.Built.Sequence == 3 {
			sawGood = true
		}
	}
	require.True(t, sawGood)
}

func TestMarkExecutedAndMarkVerifiedOnlyAdvanceForward(t *testing.T) {
	engine := statesync.New(checkpoint.StreamDWallet, config.TestConfig(), localChainID)
	engine.MarkExecuted(5)
	engine.MarkExecuted(3) // must not regress
	require.Equal(t, uint64(5), engine.Local().HighestExecuted)

	engine.MarkVerified(2)
	engine.MarkVerified(9)
	require.Equal(t, uint64(9), engine.Local().HighestVerified)
}

func TestRefreshPeerWatermarksCollectsReachablePeers(t *testing.T) {
	engine := statesync.New(checkpoint.StreamDWallet, config.TestConfig(), localChainID)
	reachable := &fakePeerClient{watermk: statesync.Watermarks{HighestSynced: 4}}
	unreachable := &fakePeerClient{wmErr: errors.New("timeout")}
	rID, uID := ids.GenerateTestNodeID(), ids.GenerateTestNodeID()
	engine.AddPeer(rID, reachable)
	engine.AddPeer(uID, unreachable)

	out := engine.RefreshPeerWatermarks(context.Background())
	require.Equal(t, uint64(4), out[rID].HighestSynced)
	require.NotContains(t, out, uID)
}

func TestRefreshPeerChainIdentifiersMarksSameChain(t *testing.T) {
	engine := statesync.New(checkpoint.StreamDWallet, config.TestConfig(), localChainID)
	same := &fakePeerClient{chainID: localChainID}
	other := &fakePeerClient{chainID: ids.ID{0x02}}
	sameID, otherID := ids.GenerateTestNodeID(), ids.GenerateTestNodeID()
	engine.AddPeer(sameID, same)
	engine.AddPeer(otherID, other)

	engine.RefreshPeerChainIdentifiers(context.Background())

	// Push is the observable surface for same-chain membership: only
	// the matching peer should ever receive a broadcast.
	failures := engine.Push(context.Background(), certAt(1, [32]byte{1}))
	require.Empty(t, failures)
	require.Len(t, same.pushed, 1)
	require.Empty(t, other.pushed)
}

func TestPushSkipsPeersNotMarkedSameChain(t *testing.T) {
	engine := statesync.New(checkpoint.StreamDWallet, config.TestConfig(), localChainID)
	peer := &fakePeerClient{chainID: ids.ID{0x02}}
	engine.AddPeer(ids.GenerateTestNodeID(), peer)

	// Never refreshed: sameChain defaults to false, so nothing is sent.
	engine.Push(context.Background(), certAt(1, [32]byte{1}))
	require.Empty(t, peer.pushed)
}

func TestSyncMissingFetchesGapUpToBestPeerWatermark(t *testing.T) {
	cfg := config.TestConfig()
	cfg.CheckpointHeaderDownloadConcurrency = 2
	engine := statesync.New(checkpoint.StreamDWallet, cfg, localChainID)

	peer := &fakePeerClient{
		watermk: statesync.Watermarks{HighestSynced: 3},
		certs: map[uint64]checkpoint.Certified{
			1: certAt(1, [32]byte{1}),
			2: certAt(2, [32]byte{2}),
			3: certAt(3, [32]byte{3}),
		},
	}
	engine.AddPeer(ids.GenerateTestNodeID(), peer)

	certs, err := engine.SyncMissing(context.Background())
	require.NoError(t, err)
	require.Len(t, certs, 3)
	got := map[uint64]bool{}
	for _, c := range certs {
		got[c.Built.Sequence] = true
	}
	require.True(t, got[1] && got[2] && got[3])
	require.Equal(t, uint64(3), engine.Local().HighestSynced)
}

func TestSyncMissingIsNoopWhenNoPeerExceedsLocalWatermark(t *testing.T) {
	engine := statesync.New(checkpoint.StreamDWallet, config.TestConfig(), localChainID)
	peer := &fakePeerClient{watermk: statesync.Watermarks{HighestSynced: 0}}
	engine.AddPeer(ids.GenerateTestNodeID(), peer)

	certs, err := engine.SyncMissing(context.Background())
	require.NoError(t, err)
	require.Empty(t, certs)
	require.Equal(t, 0, peer.calls)
}

func TestRunPullsMissingCheckpointsUntilCanceled(t *testing.T) {
	engine := statesync.New(checkpoint.StreamDWallet, config.TestConfig(), localChainID)
	peer := &fakePeerClient{
		chainID: localChainID,
		watermk: statesync.Watermarks{HighestSynced: 1},
		certs:   map[uint64]checkpoint.Certified{1: certAt(1, [32]byte{1})},
	}
	engine.AddPeer(ids.GenerateTestNodeID(), peer)

	ctx, cancel := context.WithCancel(context.Background())
	seen := make(chan checkpoint.Certified, 1)
	done := make(chan error, 1)
	go func() {
		done <- engine.Run(ctx, time.Millisecond, func(c checkpoint.Certified) {
			select {
			case seen <- c:
			default:
			}
		})
	}()

	select {
	case c := <-seen:
		require.Equal(t, uint64(1), c.Built.Sequence)
	case <-time.After(time.Second):
		t.Fatal("Run never delivered a certified checkpoint")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

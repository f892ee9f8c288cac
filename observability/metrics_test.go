package observability_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/dwallet-consensus/observability"
)

func TestCollectorRecordsGaugesWithoutExternalGatherer(t *testing.T) {
	c, err := observability.New("dwallet", nil, "epoch-1")
	require.NoError(t, err)

	c.SetBuiltSequence("dwallet", 5)
	c.SetCertifiedSequence("dwallet", 4)
	c.SetPendingBacklog("dwallet", 2)
	c.SetPeerRTT("node-1", 120)
	c.IncCommitsProcessed()
	c.IncThresholdMisses()
	c.IncRemoteForkDetected()
}

func TestNewUsesPrivateRegistryPerCollector(t *testing.T) {
	_, err := observability.New("dwallet", nil, "epoch-1")
	require.NoError(t, err)
	// A second Collector under the same namespace uses its own private
	// registry, so registering twice must not collide.
	_, err = observability.New("dwallet", nil, "epoch-1")
	require.NoError(t, err)
}

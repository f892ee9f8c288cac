package consensusinput_test

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/dwallet-consensus/codec"
	"github.com/luxfi/dwallet-consensus/consensusinput"
)

func TestTransactionRoundTripsThroughCodec(t *testing.T) {
	tx := consensusinput.Transaction{
		Kind:    consensusinput.TxDWalletCheckpointSignature,
		Author:  ids.GenerateTestNodeID(),
		Payload: []byte("some payload bytes"),
	}

	encoded := codec.Marshal(&tx)

	var decoded consensusinput.Transaction
	require.NoError(t, codec.Unmarshal(encoded, &decoded))
	require.Equal(t, tx, decoded)
}

func TestTransactionKeyIsStableAndAuthorScoped(t *testing.T) {
	author := ids.GenerateTestNodeID()
	tx1 := consensusinput.Transaction{Kind: consensusinput.TxDWalletMPCMessage, Author: author, Payload: []byte("a")}
	tx2 := consensusinput.Transaction{Kind: consensusinput.TxDWalletMPCMessage, Author: author, Payload: []byte("a")}
	tx3 := consensusinput.Transaction{Kind: consensusinput.TxDWalletMPCMessage, Author: author, Payload: []byte("b")}

	require.Equal(t, tx1.Key(), tx2.Key())
	require.NotEqual(t, tx1.Key(), tx3.Key())

	other := ids.GenerateTestNodeID()
	tx4 := consensusinput.Transaction{Kind: consensusinput.TxDWalletMPCMessage, Author: other, Payload: []byte("a")}
	require.NotEqual(t, tx1.Key(), tx4.Key())
}

func TestExecutionIndicesLessIsLexicographic(t *testing.T) {
	base := consensusinput.ExecutionIndices{LastCommittedRound: 5, SubDagIndex: 2, TransactionIndex: 1}

	require.True(t, base.Less(consensusinput.ExecutionIndices{LastCommittedRound: 6, SubDagIndex: 0, TransactionIndex: 0}))
	require.True(t, base.Less(consensusinput.ExecutionIndices{LastCommittedRound: 5, SubDagIndex: 3, TransactionIndex: 0}))
	require.True(t, base.Less(consensusinput.ExecutionIndices{LastCommittedRound: 5, SubDagIndex: 2, TransactionIndex: 2}))

	require.False(t, base.Less(base))
	require.False(t, base.Less(consensusinput.ExecutionIndices{LastCommittedRound: 4, SubDagIndex: 9, TransactionIndex: 9}))
}

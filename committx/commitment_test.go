package committx

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lnforge/channeld/keychain"
	"github.com/lnforge/channeld/lnwire"
)

func testKeyRing(t *testing.T) *keychain.CommitmentKeyRing {
	t.Helper()

	newBasepoints := func() *keychain.ChannelBasepoints {
		bp := &keychain.ChannelBasepoints{}
		for _, key := range []**btcec.PublicKey{
			&bp.FundingKey, &bp.RevocationBasePoint,
			&bp.PaymentBasePoint, &bp.DelayBasePoint,
			&bp.HtlcBasePoint,
		} {
			priv, err := btcec.NewPrivateKey()
			require.NoError(t, err)
			*key = priv.PubKey()
		}

		return bp
	}

	commitPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return keychain.DeriveCommitmentKeys(
		commitPriv.PubKey(), newBasepoints(), newBasepoints(), true,
	)
}

// TestStateNumHintRoundTrip encodes commitment numbers into the
// sequence/locktime fields and recovers them.
func TestStateNumHintRoundTrip(t *testing.T) {
	t.Parallel()

	const obscure uint64 = 0x2bb038521914

	for _, stateNum := range []uint64{0, 1, 1000, maxStateHint} {
		tx := wire.NewMsgTx(2)
		tx.AddTxIn(&wire.TxIn{})

		require.NoError(t, SetStateNumHint(tx, stateNum, obscure))
		require.Equal(t, stateNum, GetStateNumHint(tx, obscure))

		// The top bits marking the fields as "obscured commitment
		// number" must be present.
		require.NotZero(t, tx.TxIn[0].Sequence&0x80000000)
		require.NotZero(t, tx.LockTime&0x20000000)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{})
	require.Error(t, SetStateNumHint(tx, maxStateHint+1, obscure))
}

// TestCreateCommitTx builds a commitment with both balance outputs and two
// HTLCs, checking trimming, ordering and output discovery.
func TestCreateCommitTx(t *testing.T) {
	t.Parallel()

	keyRing := testKeyRing(t)
	fundingOut := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}

	htlcs := []Htlc{
		{
			Incoming:    true,
			ID:          0,
			Amount:      lnwire.NewMSatFromSatoshis(50_000),
			PaymentHash: [32]byte{0xaa},
			Expiry:      500_000,
		},
		{
			Incoming:    false,
			ID:          1,
			Amount:      lnwire.NewMSatFromSatoshis(40_000),
			PaymentHash: [32]byte{0xbb},
			Expiry:      500_010,
		},
	}

	commit, err := CreateCommitTx(
		fundingOut, keyRing, 144, 400_000, 500_000, 546, htlcs, 7,
		0x123456,
	)
	require.NoError(t, err)

	require.Len(t, commit.Tx.TxOut, 4)
	require.Len(t, commit.Htlcs, 2)
	require.NotEqual(t, -1, commit.ToLocalIndex)
	require.NotEqual(t, -1, commit.ToRemoteIndex)

	// Every HTLC record must point at an output carrying its value.
	for _, htlc := range commit.Htlcs {
		require.GreaterOrEqual(t, htlc.OutputIndex, 0)
		out := commit.Tx.TxOut[htlc.OutputIndex]
		require.EqualValues(
			t, htlc.Amount.ToSatoshis(), out.Value,
		)
	}

	// HTLC records are sorted by their final output position, matching
	// the order signatures travel in.
	require.Less(
		t, commit.Htlcs[0].OutputIndex, commit.Htlcs[1].OutputIndex,
	)

	require.Equal(t, uint64(7), GetStateNumHint(commit.Tx, 0x123456))

	// A dust to-local balance is trimmed.
	trimmed, err := CreateCommitTx(
		fundingOut, keyRing, 144, 100, 500_000, 546, nil, 0, 0,
	)
	require.NoError(t, err)
	require.Len(t, trimmed.Tx.TxOut, 1)
	require.Equal(t, -1, trimmed.ToLocalIndex)
}

// TestHtlcIsDust covers the second-level fee asymmetry of the dust test.
func TestHtlcIsDust(t *testing.T) {
	t.Parallel()

	// At 2500 sat/kw the timeout fee is 1657 sat and the success fee
	// 1757 sat. A 2200 sat HTLC against a 546 sat dust limit is dust
	// either way; 5000 sat is not.
	require.True(t, HtlcIsDust(
		false, lnwire.NewMSatFromSatoshis(2_200), 2500, 546,
	))
	require.True(t, HtlcIsDust(
		true, lnwire.NewMSatFromSatoshis(2_200), 2500, 546,
	))
	require.False(t, HtlcIsDust(
		false, lnwire.NewMSatFromSatoshis(5_000), 2500, 546,
	))

	// In the asymmetric band only the incoming direction is dust, since
	// its sweep rides the heavier success transaction.
	require.True(t, HtlcIsDust(
		true, lnwire.NewMSatFromSatoshis(2_250), 2500, 546,
	))
	require.False(t, HtlcIsDust(
		false, lnwire.NewMSatFromSatoshis(2_250), 2500, 546,
	))
}

// TestCooperativeCloseTx checks dust omission and the final input sequence
// of the cooperative close.
func TestCooperativeCloseTx(t *testing.T) {
	t.Parallel()

	fundingOut := wire.OutPoint{Hash: chainhash.Hash{2}, Index: 1}
	ourScript := []byte{0x00, 0x14, 0x01}
	theirScript := []byte{0x00, 0x14, 0x02}

	closeTx := CreateCooperativeCloseTx(
		fundingOut, 546, 400_000, 500_000, ourScript, theirScript,
	)
	require.Len(t, closeTx.TxOut, 2)
	require.EqualValues(
		t, wire.MaxTxInSequenceNum, closeTx.TxIn[0].Sequence,
	)

	// A dust balance produces a single-output close.
	closeTx = CreateCooperativeCloseTx(
		fundingOut, 546, 100, 500_000, ourScript, theirScript,
	)
	require.Len(t, closeTx.TxOut, 1)
	require.EqualValues(t, 500_000, closeTx.TxOut[0].Value)
}

// TestFundingScriptOrdering verifies that both parties derive the same
// funding script regardless of key order.
func TestFundingScriptOrdering(t *testing.T) {
	t.Parallel()

	privA, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	privB, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	aPub := privA.PubKey().SerializeCompressed()
	bPub := privB.PubKey().SerializeCompressed()

	script1, err := GenMultiSigScript(aPub, bPub)
	require.NoError(t, err)
	script2, err := GenMultiSigScript(bPub, aPub)
	require.NoError(t, err)

	require.Equal(t, script1, script2)
}

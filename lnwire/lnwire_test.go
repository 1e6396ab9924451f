package lnwire

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// TestChanIDFromOutPoint verifies the XOR derivation of channel ids and
// the outpoint membership check.
func TestChanIDFromOutPoint(t *testing.T) {
	t.Parallel()

	var txid chainhash.Hash
	txid[30] = 0xaa
	txid[31] = 0x0f

	op := wire.OutPoint{Hash: txid, Index: 3}
	cid := NewChanIDFromOutPoint(op)

	// Only the last two bytes may differ from the txid.
	require.Equal(t, txid[:30], cid[:30])
	require.Equal(t, byte(0xaa), cid[30])
	require.Equal(t, byte(0x0f^0x03), cid[31])

	require.True(t, cid.IsChanPoint(op))
	require.False(t, cid.IsChanPoint(wire.OutPoint{Hash: txid, Index: 4}))
}

// TestSigConversion round-trips signatures between the compact wire form
// and the DER form used for verification.
func TestSigConversion(t *testing.T) {
	t.Parallel()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	var digest [32]byte
	for i := range digest {
		digest[i] = byte(i)
	}

	ecdsaSig := ecdsa.Sign(priv, digest[:])

	wireSig, err := NewSigFromSignature(ecdsaSig)
	require.NoError(t, err)
	require.False(t, wireSig.IsZero())

	back, err := wireSig.ToSignature()
	require.NoError(t, err)
	require.True(t, back.Verify(digest[:], priv.PubKey()))

	// A zero signature is still recognizable as such.
	require.True(t, Sig{}.IsZero())
}

// TestFeatureVector exercises the feature bit helpers the channel machine
// relies on.
func TestFeatureVector(t *testing.T) {
	t.Parallel()

	fv := NewRawFeatureVector(StaticRemoteKeyOptional)
	require.True(t, fv.IsSet(StaticRemoteKeyOptional))
	require.False(t, fv.IsSet(StaticRemoteKeyRequired))

	// HasFeature accepts either member of the pair.
	require.True(t, fv.HasFeature(StaticRemoteKeyRequired))
	require.False(t, fv.HasFeature(DataLossProtectRequired))

	fv.Unset(StaticRemoteKeyOptional)
	require.False(t, fv.HasFeature(StaticRemoteKeyRequired))

	// A nil vector has nothing set and never panics.
	var nilVector *RawFeatureVector
	require.False(t, nilVector.IsSet(StaticRemoteKeyOptional))
	require.NotNil(t, nilVector.Clone())
}

// TestMilliSatoshi checks the unit conversions.
func TestMilliSatoshi(t *testing.T) {
	t.Parallel()

	msat := NewMSatFromSatoshis(1234)
	require.EqualValues(t, 1_234_000, msat)

	// Sub-satoshi amounts truncate.
	require.EqualValues(t, 1234, (msat + 999).ToSatoshis())
}

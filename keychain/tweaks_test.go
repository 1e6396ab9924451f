package keychain

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

// TestTweakKeyConsistency verifies that tweaking the public key matches
// tweaking the private key and deriving.
func TestTweakKeyConsistency(t *testing.T) {
	t.Parallel()

	basePriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	commitPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	commitPoint := commitPriv.PubKey()

	tweakedPub := TweakPubKey(basePriv.PubKey(), commitPoint)

	// privKey + tweak mod N must generate the same point.
	tweakBytes := SingleTweakBytes(commitPoint, basePriv.PubKey())
	var tweakScalar btcec.ModNScalar
	tweakScalar.SetByteSlice(tweakBytes)
	tweakedScalar := tweakScalar.Add(&basePriv.Key)
	tweakedPriv := btcec.PrivateKey{Key: *tweakedScalar}

	require.Equal(
		t, tweakedPub.SerializeCompressed(),
		tweakedPriv.PubKey().SerializeCompressed(),
	)
}

// TestRevocationKeyDerivation verifies the two-sided revocation key
// derivation: the public combination and the private combination must land
// on the same point.
func TestRevocationKeyDerivation(t *testing.T) {
	t.Parallel()

	revokeBasePriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	commitSecret, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	revocationPub := DeriveRevocationPubkey(
		revokeBasePriv.PubKey(), commitSecret.PubKey(),
	)
	revocationPriv := DeriveRevocationPrivKey(revokeBasePriv, commitSecret)

	require.Equal(
		t, revocationPub.SerializeCompressed(),
		revocationPriv.PubKey().SerializeCompressed(),
	)
}

// TestDeriveCommitmentKeys checks the static-remotekey switch of the
// commitment key ring.
func TestDeriveCommitmentKeys(t *testing.T) {
	t.Parallel()

	newBasepoints := func() *ChannelBasepoints {
		bp := &ChannelBasepoints{}
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

	localBase := newBasepoints()
	remoteBase := newBasepoints()
	commitPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	commitPoint := commitPriv.PubKey()

	tweakless := DeriveCommitmentKeys(
		commitPoint, localBase, remoteBase, true,
	)
	require.Equal(t, remoteBase.PaymentBasePoint, tweakless.ToRemoteKey)

	tweaked := DeriveCommitmentKeys(
		commitPoint, localBase, remoteBase, false,
	)
	require.NotEqual(t, remoteBase.PaymentBasePoint, tweaked.ToRemoteKey)
	require.Equal(
		t,
		TweakPubKey(remoteBase.PaymentBasePoint, commitPoint),
		tweaked.ToRemoteKey,
	)

	// Keys bound to the broadcaster are the same either way.
	require.Equal(t, tweakless.ToLocalKey, tweaked.ToLocalKey)
	require.Equal(t, tweakless.RevocationKey, tweaked.RevocationKey)
}

package keychain

import (
	"crypto/sha256"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// SingleTweakBytes computes the tweak scalar bound to one commitment:
//
//	SHA256(per_commitment_point || base_point)
//
// Mixing the per-commitment point into every script key makes each
// commitment's keys unique, so a chain observer cannot link two
// commitments of the same channel.
func SingleTweakBytes(commitPoint, basePoint *btcec.PublicKey) []byte {
	digest := sha256.Sum256(append(
		commitPoint.SerializeCompressed(),
		basePoint.SerializeCompressed()...,
	))

	return digest[:]
}

// pointFromCoords reassembles a public key from the affine coordinates the
// curve operations return. The inputs are sums and multiples of valid
// curve points, so reassembly cannot fail for any input this package
// produces.
func pointFromCoords(x, y *big.Int) *btcec.PublicKey {
	raw := make([]byte, 65)
	raw[0] = 0x04
	x.FillBytes(raw[1:33])
	y.FillBytes(raw[33:65])

	key, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil
	}

	return key
}

// TweakPubKey commits a base point to a specific commitment:
//
//	tweakPub := basePoint + SHA256(per_commitment_point || basePoint)*G
//
// The holder of the base secret recovers the matching private key by
// adding the same tweak to it mod N.
func TweakPubKey(basePoint, commitPoint *btcec.PublicKey) *btcec.PublicKey {
	return TweakPubKeyWithTweak(
		basePoint, SingleTweakBytes(commitPoint, basePoint),
	)
}

// TweakPubKeyWithTweak applies an already-computed tweak scalar to a public
// key: pubKey + tweak*G.
func TweakPubKeyWithTweak(pubKey *btcec.PublicKey,
	tweakBytes []byte) *btcec.PublicKey {

	curve := btcec.S256()
	tweakX, tweakY := curve.ScalarBaseMult(tweakBytes)
	sumX, sumY := curve.Add(pubKey.X(), pubKey.Y(), tweakX, tweakY)

	return pointFromCoords(sumX, sumY)
}

// DeriveRevocationPubkey combines our revocation basepoint with the
// counterparty's per-commitment point into the key that guards their
// commitment outputs:
//
//	revocationKey = revocationBase * SHA256(revocationBase || commitPoint) +
//	                commitPoint    * SHA256(commitPoint || revocationBase)
//
// Neither party can produce the matching private key alone: we hold only
// the basepoint secret, they hold only the per-commitment secret. Once the
// commitment is revoked and its secret revealed, both halves are ours and
// the key becomes spendable — which is the whole penalty mechanism.
func DeriveRevocationPubkey(revokeBase,
	commitPoint *btcec.PublicKey) *btcec.PublicKey {

	curve := btcec.S256()

	baseHalfX, baseHalfY := curve.ScalarMult(
		revokeBase.X(), revokeBase.Y(),
		SingleTweakBytes(revokeBase, commitPoint),
	)
	commitHalfX, commitHalfY := curve.ScalarMult(
		commitPoint.X(), commitPoint.Y(),
		SingleTweakBytes(commitPoint, revokeBase),
	)

	sumX, sumY := curve.Add(baseHalfX, baseHalfY, commitHalfX, commitHalfY)

	return pointFromCoords(sumX, sumY)
}

// DeriveRevocationPrivKey is the private counterpart of
// DeriveRevocationPubkey, computable only with both the revocation
// basepoint secret and the revealed per-commitment secret:
//
//	revocationPriv = revokeBasePriv * SHA256(revokeBasePub || commitPoint) +
//	                 commitSecret   * SHA256(commitPoint || revokeBasePub)
//	                 mod N
func DeriveRevocationPrivKey(revokeBasePriv,
	commitSecret *btcec.PrivateKey) *btcec.PrivateKey {

	baseHalf := new(big.Int).Mul(
		new(big.Int).SetBytes(revokeBasePriv.Serialize()),
		new(big.Int).SetBytes(SingleTweakBytes(
			revokeBasePriv.PubKey(), commitSecret.PubKey(),
		)),
	)
	commitHalf := new(big.Int).Mul(
		new(big.Int).SetBytes(commitSecret.Serialize()),
		new(big.Int).SetBytes(SingleTweakBytes(
			commitSecret.PubKey(), revokeBasePriv.PubKey(),
		)),
	)

	combined := new(big.Int).Add(baseHalf, commitHalf)
	combined.Mod(combined, btcec.S256().N)

	var raw [32]byte
	combined.FillBytes(raw[:])
	priv, _ := btcec.PrivKeyFromBytes(raw[:])

	return priv
}

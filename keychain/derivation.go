package keychain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

const (
	// BIP0043Purpose is the "purpose" value that we'll use for the key
	// derivation scheme. All keys are expected to be derived from this
	// purpose, then the particular coin type of the chain where the keys
	// are to be used. Slightly adhering to BIP0043 allows us to not
	// deviate too far from a widely used standard, and also fits into
	// existing implementations of the BIP's template.
	BIP0043Purpose = 1017
)

// KeyFamily represents a "family" of keys that will be used within various
// contracts created by the channel machine. These families are meant to be
// distinct branches within the HD key chain of the backing wallet. Usage of
// key families within the interface below are strict in order to promote
// integrability and the ability to restore all keys given a user master seed
// backup.
//
// The key derivation in this file follows the following hierarchy based on
// BIP43:
//
//   - m/1017'/coinType'/keyFamily'/0/index
type KeyFamily uint32

const (
	// KeyFamilyMultiSig are keys to be used within multi-sig scripts.
	KeyFamilyMultiSig KeyFamily = 0

	// KeyFamilyRevocationBase are keys that are used within channels to
	// create revocation basepoints that the remote party will use to
	// create revocation keys for us.
	KeyFamilyRevocationBase KeyFamily = 1

	// KeyFamilyHtlcBase are keys used within channels that will be
	// combined with per-state randomness to produce public keys that
	// will be used in HTLC scripts.
	KeyFamilyHtlcBase KeyFamily = 2

	// KeyFamilyPaymentBase are keys used within channels that will be
	// combined with per-state randomness to produce public keys that
	// will be used in scripts that pay directly to us without any
	// delay.
	KeyFamilyPaymentBase KeyFamily = 3

	// KeyFamilyDelayBase are keys used within channels that will be
	// combined with per-state randomness to produce public keys that
	// will be used in scripts that pay to us, but only after a delay.
	KeyFamilyDelayBase KeyFamily = 4

	// KeyFamilyRevocationRoot is a family of keys which will be used to
	// derive the root of a revocation tree for a particular channel.
	KeyFamilyRevocationRoot KeyFamily = 5

	// KeyFamilyNodeKey is a family of keys that will be used to derive
	// keys used to sign and encrypt all communication on the network
	// layer.
	KeyFamilyNodeKey KeyFamily = 6

	// KeyFamilyStaticBackup is the family of keys that will be used to
	// derive keys that we use to encrypt and decrypt our set of static
	// channel backups, including the peer-held variant.
	KeyFamilyStaticBackup KeyFamily = 7
)

// KeyLocator is a two-tuple that can be used to derive *any* key that has
// ever been used under the key derivation mechanisms described in this file.
type KeyLocator struct {
	// Family is the family of key being identified.
	Family KeyFamily

	// Index is the precise index of the key being identified.
	Index uint32
}

// IsEmpty returns true if a KeyLocator is "empty". This may be the case
// where we learn of a key from a remote party for a contract, but don't
// know the precise details of its derivation.
func (k KeyLocator) IsEmpty() bool {
	return k.Family == 0 && k.Index == 0
}

// String returns a human readable version of the KeyLocator.
func (k KeyLocator) String() string {
	return fmt.Sprintf("family=%v, index=%v", k.Family, k.Index)
}

// KeyDescriptor wraps a KeyLocator and also optionally includes a public
// key. Either the KeyLocator must be non-empty, or the public key pointer be
// non-nil. This will be used by the KeyRing interface to lookup arbitrary
// private keys, and also within the SignDescriptor struct to locate precise
// keys to sign with.
type KeyDescriptor struct {
	// KeyLocator is the internal KeyLocator of the descriptor.
	KeyLocator

	// PubKey is an optional public key that fully describes a target key.
	// If this is nil, the KeyLocator MUST NOT be empty.
	PubKey *btcec.PublicKey
}

// KeyRing is the primary interface that will be used to perform public key
// derivation for the keys the channel machine needs. The backing wallet is
// the sole holder of the corresponding private key material.
type KeyRing interface {
	// DeriveNextKey attempts to derive the *next* key within the key
	// family (account in BIP43) specified. This method should return the
	// next external child within this branch.
	DeriveNextKey(keyFam KeyFamily) (KeyDescriptor, error)

	// DeriveKey attempts to derive an arbitrary key specified by the
	// passed KeyLocator. This may be used in several recovery scenarios,
	// or when manually rotating something like our current default node
	// key.
	DeriveKey(keyLoc KeyLocator) (KeyDescriptor, error)
}

// CommitmentKeyRing holds the set of public keys that appear in the outputs
// of a single commitment transaction, derived from both parties' basepoints
// and the broadcaster's per-commitment point.
type CommitmentKeyRing struct {
	// CommitPoint is the per-commitment point the keys below were
	// derived for.
	CommitPoint *btcec.PublicKey

	// LocalCommitKeyTweak is the tweak used to derive the local public
	// key from the local payment base point.
	LocalCommitKeyTweak []byte

	// LocalHtlcKeyTweak is the tweak used to derive the local HTLC key
	// from the local HTLC base point.
	LocalHtlcKeyTweak []byte

	// LocalHtlcKey is the key used within the HTLC scripts that pays to
	// the owner of this key ring.
	LocalHtlcKey *btcec.PublicKey

	// RemoteHtlcKey is the key used within the HTLC scripts that pays to
	// the counterparty.
	RemoteHtlcKey *btcec.PublicKey

	// ToLocalKey is the delayed key paying to the broadcaster of the
	// commitment transaction.
	ToLocalKey *btcec.PublicKey

	// ToRemoteKey is the key paying directly to the non-broadcaster.
	ToRemoteKey *btcec.PublicKey

	// RevocationKey is the key that can spend the broadcaster's outputs
	// should a revoked commitment ever hit the chain.
	RevocationKey *btcec.PublicKey
}

// DeriveCommitmentKeys generates the key ring for a commitment held by the
// party owning localBase, given the per-commitment point of the broadcaster.
// If tweaklessCommit is true (static-remotekey channels), the to-remote key
// is the counterparty's raw payment basepoint rather than a tweaked key.
func DeriveCommitmentKeys(commitPoint *btcec.PublicKey, localBase,
	remoteBase *ChannelBasepoints, tweaklessCommit bool) *CommitmentKeyRing {

	keyRing := &CommitmentKeyRing{
		CommitPoint: commitPoint,

		LocalCommitKeyTweak: SingleTweakBytes(
			commitPoint, localBase.PaymentBasePoint,
		),
		LocalHtlcKeyTweak: SingleTweakBytes(
			commitPoint, localBase.HtlcBasePoint,
		),
		LocalHtlcKey: TweakPubKey(
			localBase.HtlcBasePoint, commitPoint,
		),
		RemoteHtlcKey: TweakPubKey(
			remoteBase.HtlcBasePoint, commitPoint,
		),
		ToLocalKey: TweakPubKey(
			localBase.DelayBasePoint, commitPoint,
		),
		RevocationKey: DeriveRevocationPubkey(
			remoteBase.RevocationBasePoint, commitPoint,
		),
	}

	if tweaklessCommit {
		keyRing.ToRemoteKey = remoteBase.PaymentBasePoint
	} else {
		keyRing.ToRemoteKey = TweakPubKey(
			remoteBase.PaymentBasePoint, commitPoint,
		)
	}

	return keyRing
}

// ChannelBasepoints carries the set of static basepoints one party commits
// to at channel opening.
type ChannelBasepoints struct {
	// FundingKey is the key used within the 2-of-2 multisig funding
	// output.
	FundingKey *btcec.PublicKey

	// RevocationBasePoint is combined with the counterparty's
	// per-commitment point to derive the revocation key for their
	// commitments.
	RevocationBasePoint *btcec.PublicKey

	// PaymentBasePoint is the base of the keys paying directly to this
	// party.
	PaymentBasePoint *btcec.PublicKey

	// DelayBasePoint is the base of the delayed pay-to-self keys.
	DelayBasePoint *btcec.PublicKey

	// HtlcBasePoint is the base of the HTLC script keys.
	HtlcBasePoint *btcec.PublicKey
}

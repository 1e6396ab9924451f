package keychain

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SignDescriptor houses the necessary information required to successfully
// sign a given segwit output. This struct is used by the Signer interface in
// order to gain access to sufficient information to generate a valid
// signature.
type SignDescriptor struct {
	// KeyDesc is a descriptor that precisely describes *which* key to use
	// for signing. This may provide the raw public key directly, or
	// require the Signer to re-derive the key according to the populated
	// derivation path.
	KeyDesc KeyDescriptor

	// SingleTweak is a scalar value that will be added to the private key
	// corresponding to the above public key to obtain the private key to
	// be used to sign this input. This value is typically derived via the
	// following computation:
	//
	//	derivedKey = privkey + sha256(perCommitmentPoint || pubKey) mod N
	//
	// NOTE: If this value is nil, then the input can be signed using only
	// the above public key. Either a SingleTweak should be set or a
	// DoubleTweak, not both.
	SingleTweak []byte

	// DoubleTweak is a private key that will be used in combination with
	// its corresponding per commitment point to derive the private key
	// that will be used to sign this input. This value is used as the
	// basis for revocation keys. If this value is set, then SingleTweak
	// MUST be nil.
	DoubleTweak *btcec.PrivateKey

	// WitnessScript is the full script required to properly redeem the
	// output.
	WitnessScript []byte

	// Output is the target output which should be signed. The PkScript
	// and Value fields within the output should be properly populated,
	// otherwise an invalid signature may be generated.
	Output *wire.TxOut

	// HashType is the target sighash type that should be used when
	// generating the final sighash, and signature.
	HashType txscript.SigHashType

	// SigHashes is the pre-computed sighash midstate to be used when
	// generating the final sighash for signing.
	SigHashes *txscript.TxSigHashes

	// InputIndex is the target input within the transaction that should
	// be signed.
	InputIndex int
}

// Signer represents an abstract object capable of generating raw signatures
// as well as full complete input scripts given a valid SignDescriptor and
// transaction. The private key material is never exposed to the channel
// machine; only the backing wallet (or an HSM in front of it) holds it.
type Signer interface {
	// SignOutputRaw generates a signature for the passed transaction
	// according to the data within the passed SignDescriptor.
	//
	// NOTE: The resulting signature should be void of a sighash byte.
	SignOutputRaw(tx *wire.MsgTx,
		signDesc *SignDescriptor) (*ecdsa.Signature, error)
}

// RevocationProducer is the contract the channel machine consumes to obtain
// its own per-commitment secrets and points. The secrets are derived from a
// per-channel revocation root held by the backing wallet; the machine never
// sees the root itself.
type RevocationProducer interface {
	// PerCommitmentSecret returns the per-commitment secret at the given
	// commitment index.
	PerCommitmentSecret(index uint64) ([32]byte, error)

	// PerCommitmentPoint returns the per-commitment point at the given
	// commitment index.
	PerCommitmentPoint(index uint64) (*btcec.PublicKey, error)
}

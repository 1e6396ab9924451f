package committx

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnforge/channeld/lnwire"
)

// SigHashForInput computes the segwit v0 sighash (SIGHASH_ALL) for the given
// input of tx, spending the passed output with the passed witness script.
func SigHashForInput(tx *wire.MsgTx, inputIndex int, witnessScript []byte,
	output *wire.TxOut) ([]byte, error) {

	fetcher := txscript.NewCannedPrevOutputFetcher(
		output.PkScript, output.Value,
	)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	return txscript.CalcWitnessSigHash(
		witnessScript, sigHashes, txscript.SigHashAll, tx,
		inputIndex, output.Value,
	)
}

// VerifySig checks the passed wire signature against the sighash of the
// given input under the given public key.
func VerifySig(tx *wire.MsgTx, inputIndex int, witnessScript []byte,
	output *wire.TxOut, pubKey *btcec.PublicKey, sig lnwire.Sig) error {

	digest, err := SigHashForInput(tx, inputIndex, witnessScript, output)
	if err != nil {
		return err
	}

	signature, err := sig.ToSignature()
	if err != nil {
		return err
	}

	if !signature.Verify(digest, pubKey) {
		return fmt.Errorf("signature verification failed for input "+
			"%v of %v", inputIndex, tx.TxHash())
	}

	return nil
}

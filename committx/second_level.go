package committx

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnforge/channeld/chainfee"
)

// SecondLevelTx is an unsigned HTLC-timeout or HTLC-success transaction
// along with the script of its single output.
type SecondLevelTx struct {
	// Tx is the unsigned transaction. Its witness must be completed with
	// both parties' HTLC signatures (and for HTLC-success, the payment
	// preimage).
	Tx *wire.MsgTx

	// OutputScript is the witness script of the delayed output.
	OutputScript []byte
}

// CreateHtlcTimeoutTx builds the transaction that transitions an offered
// (outgoing) HTLC to the delay-and-claim state once its absolute timeout
// has been reached. The transaction is timelocked to the HTLC's expiry and
// pays the HTLC value minus the timeout fee to a delayed pay-to-self
// output.
func CreateHtlcTimeoutTx(htlcOutput wire.OutPoint, htlcAmt btcutil.Amount,
	cltvExpiry, csvDelay uint32, feePerKw chainfee.SatPerKWeight,
	revocationKey, delayKey *btcec.PublicKey) (*SecondLevelTx, error) {

	timeoutTx := wire.NewMsgTx(2)
	timeoutTx.LockTime = cltvExpiry

	timeoutTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: htlcOutput,
		Sequence:         0,
	})

	witnessScript, err := SecondLevelHtlcScript(
		revocationKey, delayKey, csvDelay,
	)
	if err != nil {
		return nil, err
	}
	pkScript, err := WitnessScriptHash(witnessScript)
	if err != nil {
		return nil, err
	}

	timeoutTx.AddTxOut(&wire.TxOut{
		Value:    int64(htlcAmt - HtlcTimeoutFee(feePerKw)),
		PkScript: pkScript,
	})

	return &SecondLevelTx{
		Tx:           timeoutTx,
		OutputScript: witnessScript,
	}, nil
}

// CreateHtlcSuccessTx builds the transaction that transitions an accepted
// (incoming) HTLC to the delay-and-claim state once the payment preimage is
// known. Unlike the timeout transaction it carries no absolute timelock.
func CreateHtlcSuccessTx(htlcOutput wire.OutPoint, htlcAmt btcutil.Amount,
	csvDelay uint32, feePerKw chainfee.SatPerKWeight,
	revocationKey, delayKey *btcec.PublicKey) (*SecondLevelTx, error) {

	successTx := wire.NewMsgTx(2)

	successTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: htlcOutput,
		Sequence:         0,
	})

	witnessScript, err := SecondLevelHtlcScript(
		revocationKey, delayKey, csvDelay,
	)
	if err != nil {
		return nil, err
	}
	pkScript, err := WitnessScriptHash(witnessScript)
	if err != nil {
		return nil, err
	}

	successTx.AddTxOut(&wire.TxOut{
		Value:    int64(htlcAmt - HtlcSuccessFee(feePerKw)),
		PkScript: pkScript,
	})

	return &SecondLevelTx{
		Tx:           successTx,
		OutputScript: witnessScript,
	}, nil
}

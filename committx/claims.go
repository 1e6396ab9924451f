package committx

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnforge/channeld/chainfee"
)

// ClaimTx is an unsigned single-input sweep of one channel-related output to
// a script of our own, together with everything needed to sign it.
type ClaimTx struct {
	// Tx spends exactly one contested output to SweepScript.
	Tx *wire.MsgTx

	// WitnessScript is the script of the output being spent.
	WitnessScript []byte

	// SpentOutput is the output being spent, required for sighashing.
	SpentOutput *wire.TxOut
}

// CreateClaimTx builds a transaction sweeping the given output to
// sweepScript. The witness of the spending input is estimated at
// witnessSize weight units to price the sweep; if the output cannot pay for
// its own sweep at the given fee rate an error is returned. csvDelay is the
// sequence to set on the input (non-zero when spending a delayed output),
// and lockTime the absolute timelock (non-zero when sweeping an expired
// offered HTLC directly).
func CreateClaimTx(spentOutpoint wire.OutPoint, spentOutput *wire.TxOut,
	witnessScript []byte, witnessSize int64,
	feePerKw chainfee.SatPerKWeight, sweepScript []byte,
	csvDelay, lockTime uint32) (*ClaimTx, error) {

	fee := SweepFee(feePerKw, witnessSize)
	outputValue := btcutil.Amount(spentOutput.Value) - fee
	if outputValue <= 0 {
		return nil, fmt.Errorf("output %v (%v sat) cannot pay for "+
			"its own sweep at %v", spentOutpoint,
			spentOutput.Value, feePerKw)
	}

	sequence := uint32(wire.MaxTxInSequenceNum)
	if csvDelay != 0 {
		sequence = csvDelay
	}

	claimTx := wire.NewMsgTx(2)
	claimTx.LockTime = lockTime
	claimTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: spentOutpoint,
		Sequence:         sequence,
	})
	claimTx.AddTxOut(&wire.TxOut{
		PkScript: sweepScript,
		Value:    int64(outputValue),
	})

	return &ClaimTx{
		Tx:            claimTx,
		WitnessScript: witnessScript,
		SpentOutput:   spentOutput,
	}, nil
}

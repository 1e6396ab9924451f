package committx

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/txsort"
	"github.com/btcsuite/btcd/wire"
)

// CreateCooperativeCloseTx creates a transaction which if signed by both
// parties cooperatively closes an active channel. Both balances are the
// final settled balances; the proposed fee has already been subtracted from
// the funder's balance by the caller. Outputs below the dust limit are
// omitted rather than materialized.
func CreateCooperativeCloseTx(fundingOutpoint wire.OutPoint,
	dustLimit btcutil.Amount, ourBalance, theirBalance btcutil.Amount,
	ourDeliveryScript, theirDeliveryScript []byte) *wire.MsgTx {

	// The cooperative close pays directly to each side, so the
	// transaction has no timelocks and a final sequence.
	closeTx := wire.NewMsgTx(2)
	closeTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: fundingOutpoint,
		Sequence:         wire.MaxTxInSequenceNum,
	})

	if ourBalance >= dustLimit {
		closeTx.AddTxOut(&wire.TxOut{
			PkScript: ourDeliveryScript,
			Value:    int64(ourBalance),
		})
	}
	if theirBalance >= dustLimit {
		closeTx.AddTxOut(&wire.TxOut{
			PkScript: theirDeliveryScript,
			Value:    int64(theirBalance),
		})
	}

	txsort.InPlaceSort(closeTx)

	return closeTx
}

package committx

import (
	"github.com/btcsuite/btcd/btcutil"

	"github.com/lnforge/channeld/chainfee"
	"github.com/lnforge/channeld/lnwire"
)

const (
	// CommitWeight is the weight of a commitment transaction with the
	// base to-local and to-remote outputs but no HTLCs.
	CommitWeight int64 = 724

	// HTLCWeight is the marginal weight added to a commitment
	// transaction by one untrimmed HTLC output.
	HTLCWeight int64 = 172

	// HtlcTimeoutWeight is the weight of the HTLC timeout transaction
	// which will transition an outgoing HTLC to the delay-and-claim
	// state.
	HtlcTimeoutWeight int64 = 663

	// HtlcSuccessWeight is the weight of the HTLC success transaction
	// which will transition an incoming HTLC to the delay-and-claim
	// state.
	HtlcSuccessWeight int64 = 703

	// ToLocalPenaltyWitnessSize is an upper bound on the witness spending
	// a to-local or second-level output through the revocation path:
	// 1 element count, a ~73 byte signature, a one-byte true value and
	// the worst-case witness script.
	ToLocalPenaltyWitnessSize int64 = 1 + 1 + 73 + 1 + 1 + 83

	// P2WKHWitnessSize is the size of a witness spending a p2wkh output:
	// 1 element count, a ~73 byte signature and a 33 byte compressed
	// public key.
	P2WKHWitnessSize int64 = 1 + 1 + 73 + 1 + 33

	// AcceptedHtlcPenaltyWitnessSize is an upper bound on the witness
	// spending a received-HTLC output via the revocation path.
	AcceptedHtlcPenaltyWitnessSize int64 = 1 + 1 + 73 + 1 + 33 + 1 + 139

	// OfferedHtlcPenaltyWitnessSize is an upper bound on the witness
	// spending an offered-HTLC output via the revocation path.
	OfferedHtlcPenaltyWitnessSize int64 = 1 + 1 + 73 + 1 + 33 + 1 + 133
)

// HtlcTimeoutFee returns the fee in satoshis required for an HTLC timeout
// transaction at the given fee rate.
func HtlcTimeoutFee(feePerKw chainfee.SatPerKWeight) btcutil.Amount {
	return feePerKw.FeeForWeight(HtlcTimeoutWeight)
}

// HtlcSuccessFee returns the fee in satoshis required for an HTLC success
// transaction at the given fee rate.
func HtlcSuccessFee(feePerKw chainfee.SatPerKWeight) btcutil.Amount {
	return feePerKw.FeeForWeight(HtlcSuccessWeight)
}

// HtlcIsDust determines if an HTLC output is considered dust on a
// commitment held at the given fee rate and dust limit. An output is dust
// when its value, minus the fee of the second-level transaction required to
// sweep it, falls below the dust limit. Offered and received HTLCs differ
// because their second-level transactions have different weights.
func HtlcIsDust(incoming bool, amt lnwire.MilliSatoshi,
	feePerKw chainfee.SatPerKWeight, dustLimit btcutil.Amount) bool {

	var secondLevelFee btcutil.Amount
	if incoming {
		secondLevelFee = HtlcSuccessFee(feePerKw)
	} else {
		secondLevelFee = HtlcTimeoutFee(feePerKw)
	}

	return amt.ToSatoshis()-secondLevelFee < dustLimit
}

// CommitFee computes the commitment transaction fee at the given fee rate
// for a commitment carrying numUntrimmedHtlcs non-dust HTLC outputs.
func CommitFee(feePerKw chainfee.SatPerKWeight,
	numUntrimmedHtlcs int) btcutil.Amount {

	weight := CommitWeight + HTLCWeight*int64(numUntrimmedHtlcs)

	return feePerKw.FeeForWeight(weight)
}

// SweepFee estimates the fee of a single-input single-output sweep
// transaction whose input witness has the given estimated size.
func SweepFee(feePerKw chainfee.SatPerKWeight,
	witnessSize int64) btcutil.Amount {

	// A sweep transaction is one input, one p2wkh output. The non-witness
	// portion weighs 4x; the witness counts once.
	const baseSweepSize int64 = 4 + 1 + 41 + 1 + 31 + 4
	weight := baseSweepSize*4 + witnessSize

	return feePerKw.FeeForWeight(weight)
}

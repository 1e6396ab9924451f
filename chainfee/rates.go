// Package chainfee contains the fee rate units used by the channel machine
// and the contract it consumes to learn the chain's current fee climate.
package chainfee

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	// FeePerKwFloor is the lowest fee rate in sat/kw that we should use
	// for determining transaction fees. This is equivalent to the relay
	// floor of 1 sat/vbyte.
	FeePerKwFloor SatPerKWeight = 253

	// AbsoluteFeePerKwFloor is the lowest fee rate in sat/kw of a
	// transaction that we should ever _create_.
	AbsoluteFeePerKwFloor SatPerKWeight = 253
)

// SatPerKVByte represents a fee rate in sat/kvB.
type SatPerKVByte btcutil.Amount

// FeeForVSize calculates the fee resulting from this fee rate and the given
// vsize in vbytes.
func (s SatPerKVByte) FeeForVSize(vbytes int64) btcutil.Amount {
	return btcutil.Amount(s) * btcutil.Amount(vbytes) / 1000
}

// FeePerKWeight converts the current fee rate from sat/kvB to sat/kw.
func (s SatPerKVByte) FeePerKWeight() SatPerKWeight {
	return SatPerKWeight(s / 4)
}

// String returns a human-readable string of the fee rate.
func (s SatPerKVByte) String() string {
	return fmt.Sprintf("%v sat/kvB", int64(s))
}

// SatPerKWeight represents a fee rate in sat/kw. All fee negotiation within
// the channel protocol is expressed in this unit.
type SatPerKWeight btcutil.Amount

// FeeForWeight calculates the fee resulting from this fee rate and the given
// weight in weight units (wu).
func (s SatPerKWeight) FeeForWeight(wu int64) btcutil.Amount {
	// The resulting fee is rounded down, as specified in BOLT#03.
	return btcutil.Amount(s) * btcutil.Amount(wu) / 1000
}

// FeePerKVByte converts the current fee rate from sat/kw to sat/kvB.
func (s SatPerKWeight) FeePerKVByte() SatPerKVByte {
	return SatPerKVByte(s * 4)
}

// String returns a human-readable string of the fee rate.
func (s SatPerKWeight) String() string {
	return fmt.Sprintf("%v sat/kw", int64(s))
}

// Estimator provides the ability to estimate on-chain transaction fees for
// various confirmation targets. The estimator is an external collaborator;
// the channel machine only ever consumes rates handed to it through events
// and commands, but callers use this contract to source them.
type Estimator interface {
	// EstimateFeePerKW takes in a target for the number of blocks until
	// an initial confirmation and returns the estimated fee expressed in
	// sat/kw.
	EstimateFeePerKW(numBlocks uint32) (SatPerKWeight, error)

	// RelayFeePerKW returns the minimum fee rate required for
	// transactions to be relayed.
	RelayFeePerKW() SatPerKWeight
}

// Mismatch returns a measure of the distance between a reference fee rate
// and the currently observed one:
//
//	|2 * (ref - curr)| / (ref + curr)
//
// A mismatch of 0 means the rates agree; a mismatch of 2 means one of them
// is zero.
func Mismatch(ref, curr SatPerKWeight) float64 {
	if ref+curr == 0 {
		return 0
	}

	diff := 2 * (float64(ref) - float64(curr))
	if diff < 0 {
		diff = -diff
	}

	return diff / float64(ref+curr)
}

// IsMismatchTooHigh reports whether the reference fee rate diverges from the
// current rate by more than the given tolerated ratio.
func IsMismatchTooHigh(ref, curr SatPerKWeight, maxRatio float64) bool {
	return Mismatch(ref, curr) > maxRatio
}

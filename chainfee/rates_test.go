package chainfee

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFeeRateTypes checks the conversion between the two fee rate units
// and fee computation from weight.
func TestFeeRateTypes(t *testing.T) {
	t.Parallel()

	const feePerKw = SatPerKWeight(250)
	require.Equal(t, SatPerKVByte(1000), feePerKw.FeePerKVByte())
	require.Equal(t, feePerKw, SatPerKVByte(1000).FeePerKWeight())

	// 724 wu at 2500 sat/kw, rounded down.
	require.EqualValues(t, 1810, SatPerKWeight(2500).FeeForWeight(724))

	// 250 vbytes at 10 sat/vbyte.
	require.EqualValues(t, 2500, SatPerKVByte(10_000).FeeForVSize(250))
}

// TestMismatch exercises the fee divergence measure and its threshold
// helper.
func TestMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ref      SatPerKWeight
		curr     SatPerKWeight
		mismatch float64
	}{
		{name: "equal", ref: 500, curr: 500, mismatch: 0},
		{name: "both zero", ref: 0, curr: 0, mismatch: 0},
		{name: "double", ref: 1000, curr: 500, mismatch: 2.0 / 3},
		{name: "half", ref: 500, curr: 1000, mismatch: 2.0 / 3},
		{name: "one side zero", ref: 500, curr: 0, mismatch: 2},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			require.InDelta(
				t, test.mismatch,
				Mismatch(test.ref, test.curr), 1e-9,
			)
		})
	}

	require.True(t, IsMismatchTooHigh(1000, 100, 0.1))
	require.False(t, IsMismatchTooHigh(1000, 999, 0.1))

	// The measure is symmetric.
	require.Equal(t, Mismatch(750, 2500), Mismatch(2500, 750))
}

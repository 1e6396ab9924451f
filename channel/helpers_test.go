package channel

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/lnforge/channeld/lnwire"
)

// TestMinDepthForFunding checks the scaling of the confirmation
// requirement with channel size.
func TestMinDepthForFunding(t *testing.T) {
	t.Parallel()

	nodeParams := &NodeParams{MinDepthBlocks: 3}

	tests := []struct {
		name    string
		funding btcutil.Amount
		want    uint32
	}{
		{
			name:    "small channel",
			funding: 1_000_000,
			want:    3,
		},
		{
			name:    "at the cap",
			funding: MaxFundingAmount,
			want:    3,
		},
		{
			name:    "16 btc",
			funding: 16 * btcutil.SatoshiPerBitcoin,
			want:    40,
		},
		{
			name:    "100 btc",
			funding: 100 * btcutil.SatoshiPerBitcoin,
			want:    241,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, test.want, MinDepthForFunding(
				nodeParams, test.funding,
			))
		})
	}
}

func testOpenAccept() (*lnwire.OpenChannel, *lnwire.AcceptChannel) {
	open := &lnwire.OpenChannel{
		FundingAmount:    1_000_000,
		DustLimit:        546,
		ChannelReserve:   10_000,
		CsvDelay:         144,
		MaxAcceptedHTLCs: 30,
		FeePerKiloWeight: 2500,
	}
	accept := &lnwire.AcceptChannel{
		DustLimit:        546,
		ChannelReserve:   10_000,
		CsvDelay:         144,
		MaxAcceptedHTLCs: 30,
	}

	return open, accept
}

// TestValidateParamsFunder walks every rejection of accept_channel.
func TestValidateParamsFunder(t *testing.T) {
	t.Parallel()

	nodeParams := &NodeParams{
		ChainHash:                *chaincfg.MainNetParams.GenesisHash,
		MaxToLocalDelayBlocks:    2016,
		MaxReserveToFundingRatio: 0.05,
	}

	tests := []struct {
		name    string
		mutate  func(*lnwire.OpenChannel, *lnwire.AcceptChannel)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*lnwire.OpenChannel, *lnwire.AcceptChannel) {},
		},
		{
			name: "too many htlcs",
			mutate: func(_ *lnwire.OpenChannel,
				a *lnwire.AcceptChannel) {

				a.MaxAcceptedHTLCs = 500
			},
			wantErr: "InvalidMaxAcceptedHtlcs: 500 > 483",
		},
		{
			name: "dust below floor",
			mutate: func(_ *lnwire.OpenChannel,
				a *lnwire.AcceptChannel) {

				a.DustLimit = 100
			},
			wantErr: "DustLimitTooSmall",
		},
		{
			name: "dust above own reserve",
			mutate: func(_ *lnwire.OpenChannel,
				a *lnwire.AcceptChannel) {

				a.DustLimit = 20_000
			},
			wantErr: "DustLimitTooLarge",
		},
		{
			name: "our reserve below their dust",
			mutate: func(o *lnwire.OpenChannel,
				a *lnwire.AcceptChannel) {

				o.ChannelReserve = 600
				a.DustLimit = 700
			},
			wantErr: "DustLimitAboveOurChannelReserve",
		},
		{
			name: "their reserve below our dust",
			mutate: func(o *lnwire.OpenChannel,
				a *lnwire.AcceptChannel) {

				o.DustLimit = 700
				a.ChannelReserve = 650
				a.DustLimit = 650
			},
			wantErr: "ChannelReserveBelowOurDustLimit",
		},
		{
			name: "csv delay too high",
			mutate: func(_ *lnwire.OpenChannel,
				a *lnwire.AcceptChannel) {

				a.CsvDelay = 3000
			},
			wantErr: "ToSelfDelayTooHigh",
		},
		{
			name: "reserve too high",
			mutate: func(_ *lnwire.OpenChannel,
				a *lnwire.AcceptChannel) {

				a.ChannelReserve = 100_000
			},
			wantErr: "ChannelReserveTooHigh",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			open, accept := testOpenAccept()
			test.mutate(open, accept)

			err := validateParamsFunder(
				nodeParams, open, accept, VersionStandard,
			)
			if test.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), test.wantErr)
		})
	}
}

// TestValidateParamsFunderZeroReserve verifies that zero-reserve channels
// skip the reserve/dust cross checks.
func TestValidateParamsFunderZeroReserve(t *testing.T) {
	t.Parallel()

	nodeParams := &NodeParams{
		ChainHash:                *chaincfg.MainNetParams.GenesisHash,
		MaxToLocalDelayBlocks:    2016,
		MaxReserveToFundingRatio: 0.05,
	}

	open, accept := testOpenAccept()
	open.ChannelReserve = 0
	accept.ChannelReserve = 0
	accept.DustLimit = 546

	err := validateParamsFunder(
		nodeParams, open, accept,
		VersionStandard|VersionZeroReserve,
	)
	require.NoError(t, err)
}

// TestValidateParamsFundee covers the open_channel checks including the
// fee mismatch guard.
func TestValidateParamsFundee(t *testing.T) {
	t.Parallel()

	nodeParams := &NodeParams{
		ChainHash:                *chaincfg.MainNetParams.GenesisHash,
		MaxToLocalDelayBlocks:    2016,
		MaxReserveToFundingRatio: 0.05,
		MaxFeerateMismatchRatio:  1.5,
	}

	open, _ := testOpenAccept()
	require.NoError(t, validateParamsFundee(
		nodeParams, open, VersionStandard, 2500,
	))

	// A proposal wildly off our fee estimate is rejected.
	open, _ = testOpenAccept()
	open.FeePerKiloWeight = 100_000
	err := validateParamsFundee(nodeParams, open, VersionStandard, 500)
	require.ErrorContains(t, err, "FeerateTooDifferent")
}

// TestIsValidFinalScriptPubkey enumerates the whitelisted script forms.
func TestIsValidFinalScriptPubkey(t *testing.T) {
	t.Parallel()

	p2pkh := append([]byte{0x76, 0xa9, 0x14}, make([]byte, 20)...)
	p2pkh = append(p2pkh, 0x88, 0xac)
	require.True(t, IsValidFinalScriptPubkey(p2pkh))

	p2sh := append([]byte{0xa9, 0x14}, make([]byte, 20)...)
	p2sh = append(p2sh, 0x87)
	require.True(t, IsValidFinalScriptPubkey(p2sh))

	p2wpkh := append([]byte{0x00, 0x14}, make([]byte, 20)...)
	require.True(t, IsValidFinalScriptPubkey(p2wpkh))

	p2wsh := append([]byte{0x00, 0x20}, make([]byte, 32)...)
	require.True(t, IsValidFinalScriptPubkey(p2wsh))

	require.False(t, IsValidFinalScriptPubkey(nil))
	require.False(t, IsValidFinalScriptPubkey([]byte{0x51}))
	require.False(t, IsValidFinalScriptPubkey(p2wpkh[:21]))
}

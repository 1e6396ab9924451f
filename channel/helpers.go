package channel

import (
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/lnforge/channeld/chainfee"
	"github.com/lnforge/channeld/committx"
	"github.com/lnforge/channeld/lnwire"
)

// MinDepthForFunding scales the confirmation requirement with the funding
// amount. Up to the standard maximum funding the node's configured depth is
// used; above it, enough blocks are required that the cumulative block
// reward exceeds a multiple of the funding value.
func MinDepthForFunding(nodeParams *NodeParams,
	fundingAmount btcutil.Amount) uint32 {

	if fundingAmount <= MaxFundingAmount {
		return nodeParams.MinDepthBlocks
	}

	const (
		scalingFactor = 15
		blockReward   = 6.25
	)
	btc := fundingAmount.ToBTC()
	blocksToReachFunding := uint32(
		math.Ceil(scalingFactor*btc/blockReward),
	) + 1
	if blocksToReachFunding > nodeParams.MinDepthBlocks {
		return blocksToReachFunding
	}

	return nodeParams.MinDepthBlocks
}

// validateParamsFunder vets the accept_channel against our open_channel and
// node policy. Each violation maps to a distinct error kind.
func validateParamsFunder(nodeParams *NodeParams, open *lnwire.OpenChannel,
	accept *lnwire.AcceptChannel, version Version) error {

	if accept.MaxAcceptedHTLCs > MaxAcceptedHtlcs {
		return InvalidMaxAcceptedHtlcsError{
			MaxAcceptedHtlcs: accept.MaxAcceptedHTLCs,
		}
	}

	// Only enforce the dust limit floor on mainnet.
	if nodeParams.ChainHash == *chaincfg.MainNetParams.GenesisHash &&
		accept.DustLimit < MinDustLimit {

		return DustLimitTooSmallError{DustLimit: accept.DustLimit}
	}

	if !version.IsZeroReserve() {
		if accept.DustLimit > accept.ChannelReserve {
			return DustLimitTooLargeError{
				DustLimit:      accept.DustLimit,
				ChannelReserve: accept.ChannelReserve,
			}
		}

		// Our reserve requirement on them must clear their dust
		// limit, and vice versa, or outputs would silently vanish.
		if open.ChannelReserve < accept.DustLimit {
			return DustLimitAboveOurChannelReserveError{
				DustLimit:      accept.DustLimit,
				ChannelReserve: open.ChannelReserve,
			}
		}
		if accept.ChannelReserve < open.DustLimit {
			return ChannelReserveBelowOurDustLimitError{
				ChannelReserve: accept.ChannelReserve,
				DustLimit:      open.DustLimit,
			}
		}
	}

	maxDelay := MaxToSelfDelay
	if nodeParams.MaxToLocalDelayBlocks < maxDelay {
		maxDelay = nodeParams.MaxToLocalDelayBlocks
	}
	if accept.CsvDelay > maxDelay {
		return ToSelfDelayTooHighError{
			ToSelfDelay: accept.CsvDelay,
			Max:         maxDelay,
		}
	}

	reserveRatio := float64(accept.ChannelReserve) /
		float64(open.FundingAmount)
	if reserveRatio > nodeParams.MaxReserveToFundingRatio {
		return ChannelReserveTooHighError{
			ChannelReserve: accept.ChannelReserve,
			Ratio:          reserveRatio,
		}
	}

	return nil
}

// validateParamsFundee vets an incoming open_channel against node policy
// and the current fee climate.
func validateParamsFundee(nodeParams *NodeParams, open *lnwire.OpenChannel,
	version Version, currentFeerate chainfee.SatPerKWeight) error {

	if open.MaxAcceptedHTLCs > MaxAcceptedHtlcs {
		return InvalidMaxAcceptedHtlcsError{
			MaxAcceptedHtlcs: open.MaxAcceptedHTLCs,
		}
	}

	if nodeParams.ChainHash == *chaincfg.MainNetParams.GenesisHash &&
		open.DustLimit < MinDustLimit {

		return DustLimitTooSmallError{DustLimit: open.DustLimit}
	}

	if !version.IsZeroReserve() {
		if open.DustLimit > open.ChannelReserve {
			return DustLimitTooLargeError{
				DustLimit:      open.DustLimit,
				ChannelReserve: open.ChannelReserve,
			}
		}
	}

	maxDelay := MaxToSelfDelay
	if nodeParams.MaxToLocalDelayBlocks < maxDelay {
		maxDelay = nodeParams.MaxToLocalDelayBlocks
	}
	if open.CsvDelay > maxDelay {
		return ToSelfDelayTooHighError{
			ToSelfDelay: open.CsvDelay,
			Max:         maxDelay,
		}
	}

	reserveRatio := float64(open.ChannelReserve) /
		float64(open.FundingAmount)
	if reserveRatio > nodeParams.MaxReserveToFundingRatio {
		return ChannelReserveTooHighError{
			ChannelReserve: open.ChannelReserve,
			Ratio:          reserveRatio,
		}
	}

	openFeerate := chainfee.SatPerKWeight(open.FeePerKiloWeight)
	if chainfee.IsMismatchTooHigh(openFeerate, currentFeerate,
		nodeParams.MaxFeerateMismatchRatio) {

		return FeerateTooDifferentError{
			CommitFeerate: openFeerate,
			LocalFeerate:  currentFeerate,
		}
	}

	return nil
}

// firstCommitTxs is the pair of initial commitment transactions at index 0.
type firstCommitTxs struct {
	localSpec  CommitmentSpec
	localTx    *committx.CommitTx
	remoteSpec CommitmentSpec
	remoteTx   *committx.CommitTx
}

// makeFirstCommitTxs constructs both sides' commitment transactions at
// index 0. When we are the fundee, the funder must prove it can pay the
// commitment fee on top of its reserve.
func makeFirstCommitTxs(c *Commitments, fundingAmount btcutil.Amount,
	pushAmount lnwire.MilliSatoshi, initialFeerate chainfee.SatPerKWeight,
	localFirstPoint *btcec.PublicKey) (*firstCommitTxs, error) {

	funding := lnwire.NewMSatFromSatoshis(fundingAmount)

	var toLocal, toRemote lnwire.MilliSatoshi
	if c.LocalParams.IsFunder {
		toLocal = funding - pushAmount
		toRemote = pushAmount
	} else {
		toLocal = pushAmount
		toRemote = funding - pushAmount
	}

	localSpec := CommitmentSpec{
		FeePerKw: initialFeerate,
		ToLocal:  toLocal,
		ToRemote: toRemote,
	}
	remoteSpec := CommitmentSpec{
		FeePerKw: initialFeerate,
		ToLocal:  toRemote,
		ToRemote: toLocal,
	}

	if !c.LocalParams.IsFunder {
		// The funder pays the commitment fee: their balance must
		// cover fee plus reserve from the very first state.
		fee := remoteSpec.CommitFee(c.RemoteParams.DustLimit)
		missing := remoteSpec.ToLocal.ToSatoshis() -
			c.LocalParams.ChannelReserve - fee
		if missing < 0 {
			return nil, CannotAffordFeesError{
				MissingSatoshis: -missing,
				Reserve:         c.LocalParams.ChannelReserve,
				Fees:            fee,
			}
		}
	}

	localTx, err := c.buildLocalCommit(0, localSpec, localFirstPoint)
	if err != nil {
		return nil, err
	}
	remoteTx, err := c.buildRemoteCommit(
		0, remoteSpec, c.RemoteCommit.RemotePerCommitmentPoint,
	)
	if err != nil {
		return nil, err
	}

	return &firstCommitTxs{
		localSpec:  localSpec,
		localTx:    localTx,
		remoteSpec: remoteSpec,
		remoteTx:   remoteTx,
	}, nil
}

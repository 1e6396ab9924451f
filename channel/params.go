package channel

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lnforge/channeld/keychain"
	"github.com/lnforge/channeld/lnwire"
)

const (
	// MaxFundingAmount is the maximum channel capacity accepted without
	// scaling the confirmation requirement.
	MaxFundingAmount = btcutil.Amount(10 * btcutil.SatoshiPerBitcoin)

	// MaxAcceptedHtlcs is the protocol ceiling on the number of HTLCs
	// one side can offer on a single commitment.
	MaxAcceptedHtlcs uint16 = 483

	// MinDustLimit is the smallest dust limit we accept on mainnet.
	MinDustLimit = btcutil.Amount(546)

	// MaxNegotiationIterations bounds the number of closing_signed
	// exchanges before we accept the peer's fee unconditionally.
	MaxNegotiationIterations = 20

	// MinCltvExpiryDelta is the smallest expiry delta accepted on an
	// offered HTLC.
	MinCltvExpiryDelta uint32 = 18

	// MaxCltvExpiryDelta is the largest expiry delta accepted on an
	// offered HTLC, about one week of blocks.
	MaxCltvExpiryDelta uint32 = 7 * 144

	// MaxToSelfDelay is the largest to-self delay we'll ever accept,
	// about two weeks of blocks.
	MaxToSelfDelay uint16 = 2016

	// FundingTimeoutFundee is the number of blocks a fundee waits for
	// the funding transaction to confirm before forgetting the channel,
	// about five days.
	FundingTimeoutFundee uint32 = 5 * 144

	// AnnouncementsMinConf is the depth at which the funding transaction
	// is considered deeply buried.
	AnnouncementsMinConf uint32 = 6
)

// Version is the per-channel bit set fixing key derivation and policy knobs.
// It is negotiated at open time and immutable afterwards.
type Version uint32

const (
	// VersionZeroReserve is set on channels that waive the channel
	// reserve requirement entirely.
	VersionZeroReserve Version = 1 << 3

	// VersionStaticRemoteKey is set on channels whose to-remote outputs
	// pay to a static key instead of a per-commitment tweaked one.
	VersionStaticRemoteKey Version = 1 << 4

	// VersionPaysDirectlyToWallet is set on channels whose to-remote
	// outputs pay straight into the wallet of the counterparty, leaving
	// nothing to sweep after a remote close.
	VersionPaysDirectlyToWallet Version = 1 << 5

	// VersionStandard is the default channel version.
	VersionStandard Version = VersionStaticRemoteKey
)

// IsSet returns whether all bits of the mask are set in the version.
func (v Version) IsSet(mask Version) bool {
	return v&mask == mask
}

// HasStaticRemoteKey reports whether to-remote outputs use a static key.
func (v Version) HasStaticRemoteKey() bool {
	return v.IsSet(VersionStaticRemoteKey)
}

// IsZeroReserve reports whether the channel waives reserve requirements.
func (v Version) IsZeroReserve() bool {
	return v.IsSet(VersionZeroReserve)
}

// PaysDirectlyToWallet reports whether remote-close outputs need no sweep.
func (v Version) PaysDirectlyToWallet() bool {
	return v.IsSet(VersionPaysDirectlyToWallet)
}

// NodeParams is the node-wide configuration the machine consults. It is
// immutable for the lifetime of a channel.
type NodeParams struct {
	// ChainHash identifies the chain channels must be anchored to.
	ChainHash chainhash.Hash

	// MinDepthBlocks is the base confirmation requirement for funding
	// transactions.
	MinDepthBlocks uint32

	// MaxToLocalDelayBlocks is the largest to-self delay we accept the
	// remote imposing on our funds.
	MaxToLocalDelayBlocks uint16

	// MaxReserveToFundingRatio caps the channel reserve demanded by the
	// counterparty as a fraction of the funding amount.
	MaxReserveToFundingRatio float64

	// MaxFeerateMismatchRatio is the tolerated divergence between the
	// commitment fee rate and the rate we observe on chain.
	MaxFeerateMismatchRatio float64

	// DustLimit is the dust limit we announce for our commitments.
	DustLimit btcutil.Amount

	// MaxHtlcValueInFlight is the cap we announce on the summed value of
	// outstanding HTLCs offered to us.
	MaxHtlcValueInFlight lnwire.MilliSatoshi

	// HtlcMinimum is the smallest HTLC we accept.
	HtlcMinimum lnwire.MilliSatoshi

	// MaxAcceptedHtlcs is the cap we announce on the number of HTLCs
	// offered to us. Never above the protocol's 483.
	MaxAcceptedHtlcs uint16

	// ToRemoteDelayBlocks is the to-self delay we impose on the remote.
	ToRemoteDelayBlocks uint16

	// ReserveToFundingRatio is the channel reserve we demand, as a
	// fraction of the funding amount.
	ReserveToFundingRatio float64

	// Features is our feature vector, exchanged in init.
	Features *lnwire.RawFeatureVector
}

// LocalParams are our channel parameters, fixed at open time.
type LocalParams struct {
	// DustLimit below which our commitment outputs are trimmed.
	DustLimit btcutil.Amount

	// MaxHtlcValueInFlight caps the summed value of HTLCs the remote may
	// offer us.
	MaxHtlcValueInFlight lnwire.MilliSatoshi

	// ChannelReserve the remote must maintain on our side.
	ChannelReserve btcutil.Amount

	// HtlcMinimum is the smallest HTLC we accept.
	HtlcMinimum lnwire.MilliSatoshi

	// ToSelfDelay is the delay imposed on the remote's delayed outputs.
	ToSelfDelay uint16

	// MaxAcceptedHtlcs caps the number of HTLCs the remote may offer us.
	MaxAcceptedHtlcs uint16

	// IsFunder is true if we provided the funding transaction.
	IsFunder bool

	// DefaultFinalScriptPubKey is the script we pay out to on close.
	DefaultFinalScriptPubKey lnwire.DeliveryAddress

	// Features is our feature vector.
	Features *lnwire.RawFeatureVector

	// FundingKeyLoc locates our funding private key within the backing
	// wallet. Only ever populated for the local party.
	FundingKeyLoc keychain.KeyLocator

	// Basepoints are our static channel basepoints, including the
	// funding public key.
	Basepoints keychain.ChannelBasepoints
}

// RemoteParams are the counterparty's channel parameters, fixed at open
// time.
type RemoteParams struct {
	// DustLimit below which their commitment outputs are trimmed.
	DustLimit btcutil.Amount

	// MaxHtlcValueInFlight caps the summed value of HTLCs we may offer
	// them.
	MaxHtlcValueInFlight lnwire.MilliSatoshi

	// ChannelReserve we must maintain on their side.
	ChannelReserve btcutil.Amount

	// HtlcMinimum is the smallest HTLC they accept.
	HtlcMinimum lnwire.MilliSatoshi

	// ToSelfDelay is the delay imposed on our delayed outputs.
	ToSelfDelay uint16

	// MaxAcceptedHtlcs caps the number of HTLCs we may offer them.
	MaxAcceptedHtlcs uint16

	// Features is their feature vector as seen in init.
	Features *lnwire.RawFeatureVector

	// UpfrontShutdownScript is the final script they committed to at
	// open time, empty if they reserved the right to choose later.
	UpfrontShutdownScript lnwire.DeliveryAddress

	// Basepoints are their static channel basepoints, including the
	// funding public key.
	Basepoints keychain.ChannelBasepoints
}

// HtlcInfo is the durable record persisted for every HTLC output that is
// non-dust on a remote commitment we sign. It is what lets an external
// penalty process recognize HTLC outputs on a revoked commitment long after
// the in-memory state is gone.
type HtlcInfo struct {
	// ChannelID the HTLC belongs to.
	ChannelID lnwire.ChannelID

	// CommitmentNumber of the remote commitment carrying the output.
	CommitmentNumber uint64

	// PaymentHash of the HTLC.
	PaymentHash [32]byte

	// CltvExpiry of the HTLC.
	CltvExpiry uint32
}

// Origin records where an HTLC came from so that its settlement can be
// attributed upstream.
type Origin interface {
	originSealed()
}

// LocalOrigin marks an HTLC initiated by a local payment.
type LocalOrigin struct {
	// PaymentID is the local payment identifier.
	PaymentID [32]byte
}

func (LocalOrigin) originSealed() {}

// RelayedOrigin marks an HTLC relayed from another channel.
type RelayedOrigin struct {
	// OriginChannelID is the upstream channel.
	OriginChannelID lnwire.ChannelID

	// OriginHtlcID is the upstream HTLC id.
	OriginHtlcID uint64

	// AmountIn is the amount received upstream.
	AmountIn lnwire.MilliSatoshi

	// AmountOut is the amount forwarded downstream.
	AmountOut lnwire.MilliSatoshi
}

func (RelayedOrigin) originSealed() {}

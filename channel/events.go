package channel

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnforge/channeld/chainfee"
	"github.com/lnforge/channeld/lnwire"
)

// Event is an input fed to the machine. Every external happening — a peer
// message, a local command, a chain observation, a block, a transport
// change — arrives as exactly one Event.
type Event interface {
	eventSealed()
}

// InitFunder assigns the funder role to a fresh channel and kicks off the
// open_channel handshake.
type InitFunder struct {
	// TemporaryChannelID identifies the channel until the funding
	// outpoint is known.
	TemporaryChannelID [32]byte

	// FundingAmount is the capacity we will provide.
	FundingAmount btcutil.Amount

	// PushAmount is carved out of our balance and given to the remote
	// on the first commitment.
	PushAmount lnwire.MilliSatoshi

	// InitialFeeratePerKw is the fee rate of the first commitments.
	InitialFeeratePerKw chainfee.SatPerKWeight

	// FundingTxFeeratePerKw is the fee rate the wallet should use for
	// the funding transaction itself.
	FundingTxFeeratePerKw chainfee.SatPerKWeight

	// LocalParams are our parameters for this channel.
	LocalParams LocalParams

	// RemoteInit is the init message received from the peer.
	RemoteInit *lnwire.Init

	// ChannelFlags to announce in open_channel.
	ChannelFlags lnwire.FundingFlag

	// ChannelVersion fixes derivation and policy for this channel.
	ChannelVersion Version
}

func (InitFunder) eventSealed() {}

// InitFundee assigns the fundee role to a fresh channel and waits for the
// peer's open_channel.
type InitFundee struct {
	// TemporaryChannelID we expect the open_channel to carry.
	TemporaryChannelID [32]byte

	// LocalParams are our parameters for this channel.
	LocalParams LocalParams

	// RemoteInit is the init message received from the peer.
	RemoteInit *lnwire.Init

	// ChannelVersion fixes derivation and policy for this channel.
	ChannelVersion Version

	// CurrentFeeratePerKw is our current view of the chain fee rate,
	// used to sanity-check the funder's proposal.
	CurrentFeeratePerKw chainfee.SatPerKWeight
}

func (InitFundee) eventSealed() {}

// Restore re-installs a persisted channel at startup.
type Restore struct {
	// State is the persisted channel state.
	State StateWithCommitments
}

func (Restore) eventSealed() {}

// MessageReceived delivers a peer wire message.
type MessageReceived struct {
	// Msg is the received message.
	Msg lnwire.Message
}

func (MessageReceived) eventSealed() {}

// WatchReceived delivers a chain observation from the watcher.
type WatchReceived struct {
	// Event is the chain observation.
	Event WatchEvent
}

func (WatchReceived) eventSealed() {}

// ExecuteCommand delivers a local command.
type ExecuteCommand struct {
	// Cmd is the command to run.
	Cmd Command
}

func (ExecuteCommand) eventSealed() {}

// MakeFundingTxResponse is the wallet's answer to a MakeFundingTx action.
type MakeFundingTxResponse struct {
	// FundingTx is the complete, signed funding transaction.
	FundingTx *wire.MsgTx

	// FundingTxOutputIndex is the index of the channel output.
	FundingTxOutputIndex uint32

	// Fee paid by the funding transaction.
	Fee btcutil.Amount
}

func (MakeFundingTxResponse) eventSealed() {}

// NewBlock notifies the machine of a new chain tip, driving the coarse
// timeout loop.
type NewBlock struct {
	// Height of the new tip.
	Height uint32
}

func (NewBlock) eventSealed() {}

// Disconnected notifies the machine that the peer transport dropped.
type Disconnected struct{}

func (Disconnected) eventSealed() {}

// Connected notifies the machine that the peer transport is back up.
type Connected struct {
	// LocalInit is the init message we sent.
	LocalInit *lnwire.Init

	// RemoteInit is the init message the peer sent.
	RemoteInit *lnwire.Init
}

func (Connected) eventSealed() {}

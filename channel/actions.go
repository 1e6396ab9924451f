package channel

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnforge/channeld/chainfee"
	"github.com/lnforge/channeld/lnwire"
)

// Action is a side-effect request returned by the machine. The machine
// itself never performs I/O; the caller must execute the actions of a
// transition in order, and must not reorder a StoreState relative to the
// I/O actions that follow it.
type Action interface {
	actionSealed()
}

// SendMessage asks the caller to deliver a message to the peer.
type SendMessage struct {
	// Msg is the message to send.
	Msg lnwire.Message
}

func (SendMessage) actionSealed() {}

// SendWatch asks the caller to register a chain watch.
type SendWatch struct {
	// Watch is the watch to register.
	Watch Watch
}

func (SendWatch) actionSealed() {}

// SendToSelf asks the caller to feed a command back into this same channel
// after the current transition completes.
type SendToSelf struct {
	// Cmd is the command to re-enqueue.
	Cmd Command
}

func (SendToSelf) actionSealed() {}

// ProcessAdd hands a newly irrevocable incoming HTLC to the relay layer.
type ProcessAdd struct {
	// Add is the incoming HTLC.
	Add *lnwire.UpdateAddHTLC
}

func (ProcessAdd) actionSealed() {}

// ProcessFulfill reports the irrevocable settlement of an outgoing HTLC
// with its preimage.
type ProcessFulfill struct {
	// Fulfill is the settlement message.
	Fulfill *lnwire.UpdateFulfillHTLC

	// Origin attributes the settled HTLC upstream.
	Origin Origin
}

func (ProcessFulfill) actionSealed() {}

// ProcessFail reports the irrevocable failure of an outgoing HTLC.
type ProcessFail struct {
	// Fail is the failure message.
	Fail *lnwire.UpdateFailHTLC

	// Origin attributes the failed HTLC upstream.
	Origin Origin
}

func (ProcessFail) actionSealed() {}

// ProcessFailMalformed reports the irrevocable malformed-onion failure of
// an outgoing HTLC.
type ProcessFailMalformed struct {
	// Fail is the failure message.
	Fail *lnwire.UpdateFailMalformedHTLC

	// Origin attributes the failed HTLC upstream.
	Origin Origin
}

func (ProcessFailMalformed) actionSealed() {}

// ProcessLocalFailure surfaces a caught local error to the caller.
type ProcessLocalFailure struct {
	// Err is the error that was caught.
	Err error

	// Event is the event being processed when the error occurred.
	Event Event
}

func (ProcessLocalFailure) actionSealed() {}

// StoreState asks the caller to atomically persist the channel state before
// executing any action that follows.
type StoreState struct {
	// State is the state to persist.
	State StateWithCommitments
}

func (StoreState) actionSealed() {}

// StoreHtlcInfos asks the caller to durably record HTLC metadata before the
// commit_sig that follows leaves the process.
type StoreHtlcInfos struct {
	// Htlcs are the records to persist.
	Htlcs []HtlcInfo
}

func (StoreHtlcInfos) actionSealed() {}

// HandleCommandFailed reports that a command was rejected without changing
// state.
type HandleCommandFailed struct {
	// Cmd is the rejected command.
	Cmd Command

	// Err is why it was rejected.
	Err error
}

func (HandleCommandFailed) actionSealed() {}

// MakeFundingTx asks the wallet to construct and sign the funding
// transaction paying to the given script.
type MakeFundingTx struct {
	// PubkeyScript is the funding output script.
	PubkeyScript []byte

	// Amount is the funding output value.
	Amount btcutil.Amount

	// FeeratePerKw is the fee rate for the funding transaction.
	FeeratePerKw chainfee.SatPerKWeight
}

func (MakeFundingTx) actionSealed() {}

// PublishTx asks the caller to broadcast a transaction.
type PublishTx struct {
	// Tx is the transaction to broadcast.
	Tx *wire.MsgTx
}

func (PublishTx) actionSealed() {}

// ChannelIdAssigned reports the one-time upgrade from the temporary channel
// id to the permanent one derived from the funding outpoint.
type ChannelIdAssigned struct {
	// TemporaryChannelID is the id used before funding was known.
	TemporaryChannelID [32]byte

	// ChannelID is the permanent id.
	ChannelID lnwire.ChannelID
}

func (ChannelIdAssigned) actionSealed() {}

// ChannelIdSwitch reports that subsequent actions refer to the new id.
type ChannelIdSwitch struct {
	// OldChannelID is the id used until now.
	OldChannelID lnwire.ChannelID

	// NewChannelID is the id used from now on.
	NewChannelID lnwire.ChannelID
}

func (ChannelIdSwitch) actionSealed() {}

package channel

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnforge/channeld/lnwire"
)

// WatchTag identifies what a chain watch (or the event it produced) is
// about, so that a single confirmation/spend pipe can serve every stage of
// the channel lifecycle.
type WatchTag uint8

const (
	// BitcoinFundingDepthOk fires when the funding transaction reaches
	// the negotiated minimum depth.
	BitcoinFundingDepthOk WatchTag = iota

	// BitcoinFundingDeeplyBuried fires when the funding transaction
	// reaches announcement depth.
	BitcoinFundingDeeplyBuried

	// BitcoinFundingSpent fires when the funding output is spent.
	BitcoinFundingSpent

	// BitcoinFundingLost fires when the funding transaction is reorged
	// out beyond recovery.
	BitcoinFundingLost

	// BitcoinTxConfirmed fires when a specific transaction reaches the
	// requested depth.
	BitcoinTxConfirmed

	// BitcoinOutputSpent fires when a watched non-funding output is
	// spent, used to extract preimages and track claim confirmations.
	BitcoinOutputSpent
)

// String returns the tag name.
func (t WatchTag) String() string {
	switch t {
	case BitcoinFundingDepthOk:
		return "BITCOIN_FUNDING_DEPTHOK"
	case BitcoinFundingDeeplyBuried:
		return "BITCOIN_FUNDING_DEEPLYBURIED"
	case BitcoinFundingSpent:
		return "BITCOIN_FUNDING_SPENT"
	case BitcoinFundingLost:
		return "BITCOIN_FUNDING_LOST"
	case BitcoinTxConfirmed:
		return "BITCOIN_TX_CONFIRMED"
	case BitcoinOutputSpent:
		return "BITCOIN_OUTPUT_SPENT"
	default:
		return "<unknown>"
	}
}

// Watch is a request for the external chain watcher, emitted through the
// SendWatch action.
type Watch interface {
	watchSealed()
}

// WatchConfirmed requests an event once the given transaction reaches the
// given depth.
type WatchConfirmed struct {
	// ChannelID the watch belongs to.
	ChannelID lnwire.ChannelID

	// TxID of the transaction to watch.
	TxID chainhash.Hash

	// MinDepth is the confirmation count to wait for.
	MinDepth uint32

	// Tag identifies what the confirmation means to the machine.
	Tag WatchTag
}

func (WatchConfirmed) watchSealed() {}

// WatchSpent requests an event once the given output is spent.
type WatchSpent struct {
	// ChannelID the watch belongs to.
	ChannelID lnwire.ChannelID

	// TxID of the transaction holding the output.
	TxID chainhash.Hash

	// OutputIndex of the output to watch.
	OutputIndex uint32

	// Tag identifies what the spend means to the machine.
	Tag WatchTag
}

func (WatchSpent) watchSealed() {}

// WatchLost requests an event should the given transaction be reorged out
// beyond the given depth.
type WatchLost struct {
	// ChannelID the watch belongs to.
	ChannelID lnwire.ChannelID

	// TxID of the transaction to watch.
	TxID chainhash.Hash

	// MinDepth after which the transaction counts as lost.
	MinDepth uint32

	// Tag identifies what the loss means to the machine.
	Tag WatchTag
}

func (WatchLost) watchSealed() {}

// WatchEvent is a chain observation delivered to the machine through the
// WatchReceived event.
type WatchEvent interface {
	watchEventSealed()
}

// WatchEventConfirmed reports that a watched transaction reached its
// requested depth.
type WatchEventConfirmed struct {
	// Tag of the watch that fired.
	Tag WatchTag

	// Tx is the confirmed transaction.
	Tx *wire.MsgTx

	// BlockHeight the transaction confirmed at.
	BlockHeight uint32

	// TxIndex is the transaction's position within its block.
	TxIndex uint32
}

func (WatchEventConfirmed) watchEventSealed() {}

// WatchEventSpent reports that a watched output was spent by the carried
// transaction.
type WatchEventSpent struct {
	// Tag of the watch that fired.
	Tag WatchTag

	// Tx is the spending transaction.
	Tx *wire.MsgTx
}

func (WatchEventSpent) watchEventSealed() {}

// WatchEventLost reports that a watched transaction was reorged out.
type WatchEventLost struct {
	// Tag of the watch that fired.
	Tag WatchTag

	// TxID of the lost transaction.
	TxID chainhash.Hash
}

func (WatchEventLost) watchEventSealed() {}

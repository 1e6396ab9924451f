package lnwire

import (
	"github.com/btcsuite/btcd/btcutil"
)

// ClosingSigned is sent by both parties to a channel once the channel is
// clear of HTLCs, and is primarily concerned with negotiating fees for the
// close transaction. Each party provides a signature for a transaction with
// a fee that they believe is fair. The process terminates when both sides
// agree on the same fee, or when one side force closes the channel.
type ClosingSigned struct {
	// ChannelID serves to identify which channel is to be closed.
	ChannelID ChannelID

	// FeeSatoshis is the total fee in satoshis that the party to the
	// channel would like to propose for the close transaction.
	FeeSatoshis btcutil.Amount

	// Signature is for the proposed channel close transaction.
	Signature Sig

	// ChannelData is an optional opaque encrypted backup of the sender's
	// channel state, held by the peer on its behalf.
	ChannelData ChannelData
}

// A compile time check to ensure ClosingSigned implements the lnwire.Message
// interface.
var _ Message = (*ClosingSigned)(nil)

// A compile time check to ensure ClosingSigned can carry a channel backup.
var _ BackupCarrier = (*ClosingSigned)(nil)

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *ClosingSigned) MsgType() MessageType {
	return MsgClosingSigned
}

// TargetChanID returns the channel id of the link for which this message is
// intended.
//
// This is part of the lnwire.LinkUpdater interface.
func (c *ClosingSigned) TargetChanID() ChannelID {
	return c.ChannelID
}

// ChannelBackup returns the attached backup blob, which may be nil.
//
// This is part of the lnwire.BackupCarrier interface.
func (c *ClosingSigned) ChannelBackup() ChannelData {
	return c.ChannelData
}

// SetChannelBackup attaches a backup blob to the message.
//
// This is part of the lnwire.BackupCarrier interface.
func (c *ClosingSigned) SetChannelBackup(data ChannelData) {
	c.ChannelData = data
}

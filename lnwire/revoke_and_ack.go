package lnwire

import (
	"github.com/btcsuite/btcd/btcec/v2"
)

// RevokeAndAck is sent by either side once a CommitSig message has been
// received, and validated. This message serves to revoke the prior
// commitment transaction, which was the most up to date version until a
// CommitSig message referencing the specified ChannelID was received.
// Additionally, this message also piggyback's the next revocation point for
// the sending party, allowing the counterparty to create a new commitment
// transaction state.
type RevokeAndAck struct {
	// ChanID uniquely identifies to which currently active channel this
	// RevokeAndAck applies to.
	ChanID ChannelID

	// Revocation is the preimage to the revocation hash of the now prior
	// commitment transaction.
	Revocation [32]byte

	// NextRevocationKey is the next per-commitment point which should be
	// used for the sender's next commitment transaction.
	NextRevocationKey *btcec.PublicKey

	// ChannelData is an optional opaque encrypted backup of the sender's
	// channel state, held by the peer on its behalf.
	ChannelData ChannelData
}

// A compile time check to ensure RevokeAndAck implements the lnwire.Message
// interface.
var _ Message = (*RevokeAndAck)(nil)

// A compile time check to ensure RevokeAndAck can carry a channel backup.
var _ BackupCarrier = (*RevokeAndAck)(nil)

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *RevokeAndAck) MsgType() MessageType {
	return MsgRevokeAndAck
}

// TargetChanID returns the channel id of the link for which this message is
// intended.
//
// This is part of the lnwire.LinkUpdater interface.
func (c *RevokeAndAck) TargetChanID() ChannelID {
	return c.ChanID
}

// ChannelBackup returns the attached backup blob, which may be nil.
//
// This is part of the lnwire.BackupCarrier interface.
func (c *RevokeAndAck) ChannelBackup() ChannelData {
	return c.ChannelData
}

// SetChannelBackup attaches a backup blob to the message.
//
// This is part of the lnwire.BackupCarrier interface.
func (c *RevokeAndAck) SetChannelBackup(data ChannelData) {
	c.ChannelData = data
}

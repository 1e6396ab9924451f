package lnwire

// CommitSig is sent by either side to stage any pending HTLC's in the
// receiver's pending set into a new commitment state. Implicitly, the new
// commitment transaction constructed which has been signed by CommitSig
// includes all HTLC's in the remote node's pending set. A CommitSig message
// may be sent after a series of update messages in order to batch several
// changes with a single signature covering all implicitly accepted HTLC's.
type CommitSig struct {
	// ChanID uniquely identifies to which currently active channel this
	// CommitSig applies to.
	ChanID ChannelID

	// CommitSig is Alice's signature for Bob's new commitment
	// transaction. Alice is able to send this signature without
	// requesting any additional data due to the piggybacking of Bob's
	// next revocation hash in his prior RevokeAndAck message, as well as
	// the canonical ordering used for all inputs/outputs within
	// commitment transactions.
	CommitSig Sig

	// HtlcSigs is a signature for each relevant HTLC output within the
	// created commitment. The order of the signatures is expected to be
	// identical to the placement of the HTLC's within the BIP 69 sorted
	// commitment transaction. For each HTLC offered by the sender of this
	// message the signature covers the receiver's HTLC-success
	// transaction; for each HTLC the sender received it covers the
	// receiver's HTLC-timeout transaction.
	HtlcSigs []Sig

	// ChannelData is an optional opaque encrypted backup of the sender's
	// channel state, held by the peer on its behalf.
	ChannelData ChannelData
}

// A compile time check to ensure CommitSig implements the lnwire.Message
// interface.
var _ Message = (*CommitSig)(nil)

// A compile time check to ensure CommitSig can carry a channel backup.
var _ BackupCarrier = (*CommitSig)(nil)

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *CommitSig) MsgType() MessageType {
	return MsgCommitSig
}

// TargetChanID returns the channel id of the link for which this message is
// intended.
//
// This is part of the lnwire.LinkUpdater interface.
func (c *CommitSig) TargetChanID() ChannelID {
	return c.ChanID
}

// ChannelBackup returns the attached backup blob, which may be nil.
//
// This is part of the lnwire.BackupCarrier interface.
func (c *CommitSig) ChannelBackup() ChannelData {
	return c.ChannelData
}

// SetChannelBackup attaches a backup blob to the message.
//
// This is part of the lnwire.BackupCarrier interface.
func (c *CommitSig) SetChannelBackup(data ChannelData) {
	c.ChannelData = data
}

package lnwire

// FundingSigned is sent from Bob (the responder) to Alice (the initiator)
// after receiving the funding outpoint and Alice's signature for Bob's
// version of the commitment transaction. It completes the handshake: once
// Alice receives it she holds a fully signed commitment and may safely
// broadcast the funding transaction.
type FundingSigned struct {
	// ChanID is the permanent channel id derived from the funding
	// outpoint announced in funding_created.
	ChanID ChannelID

	// CommitSig is Bob's signature for Alice's version of the first
	// commitment transaction.
	CommitSig Sig

	// ChannelData is an optional opaque encrypted backup of the sender's
	// channel state, held by the peer on its behalf.
	ChannelData ChannelData
}

// A compile time check to ensure FundingSigned implements the
// lnwire.Message interface.
var _ Message = (*FundingSigned)(nil)

// A compile time check to ensure FundingSigned can carry a channel backup.
var _ BackupCarrier = (*FundingSigned)(nil)

// MsgType returns the MessageType code which uniquely identifies this message as
// a FundingSigned message on the wire.
//
// This is part of the lnwire.Message interface.
func (f *FundingSigned) MsgType() MessageType {
	return MsgFundingSigned
}

// TargetChanID returns the channel id of the link for which this message is
// intended.
//
// This is part of the lnwire.LinkUpdater interface.
func (f *FundingSigned) TargetChanID() ChannelID {
	return f.ChanID
}

// ChannelBackup returns the attached backup blob, which may be nil.
//
// This is part of the lnwire.BackupCarrier interface.
func (f *FundingSigned) ChannelBackup() ChannelData {
	return f.ChannelData
}

// SetChannelBackup attaches a backup blob to the message.
//
// This is part of the lnwire.BackupCarrier interface.
func (f *FundingSigned) SetChannelBackup(data ChannelData) {
	f.ChannelData = data
}

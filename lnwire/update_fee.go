package lnwire

// UpdateFee is sent by the channel funder in order to update the fee rate
// applied to both commitment transactions. Like any other channel update it
// only takes effect once it has been included in a signed and revoked
// commitment state.
type UpdateFee struct {
	// ChanID is the particular active channel that this UpdateFee is
	// bound to.
	ChanID ChannelID

	// FeePerKw is the fee-per-kilo-weight the sender proposes for both
	// commitment transactions.
	FeePerKw uint32
}

// A compile time check to ensure UpdateFee implements the lnwire.Message
// interface.
var _ Message = (*UpdateFee)(nil)

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFee) MsgType() MessageType {
	return MsgUpdateFee
}

// TargetChanID returns the channel id of the link for which this message is
// intended.
//
// This is part of the lnwire.LinkUpdater interface.
func (c *UpdateFee) TargetChanID() ChannelID {
	return c.ChanID
}

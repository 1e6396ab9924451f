package lnwire

// OpaqueReason is an encrypted error onion. Failure reasons are encrypted
// backwards hop by hop with the shared secrets negotiated during route
// construction, so only the origin of the payment can decrypt them.
type OpaqueReason []byte

// UpdateFailHTLC is sent by Alice to Bob in order to remove a previously
// added HTLC. Upon receipt of an UpdateFailHTLC the HTLC should be removed
// from the next commitment transaction, with the UpdateFailHTLC propagated
// backwards in the route to fully undo the HTLC.
type UpdateFailHTLC struct {
	// ChanID is the particular active channel that this UpdateFailHTLC is
	// bound to.
	ChanID ChannelID

	// ID references which HTLC on the remote node's commitment
	// transaction is being failed.
	ID uint64

	// Reason is an onion-encrypted blob that details why the HTLC was
	// cancelled.
	Reason OpaqueReason
}

// A compile time check to ensure UpdateFailHTLC implements the
// lnwire.Message interface.
var _ Message = (*UpdateFailHTLC)(nil)

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailHTLC) MsgType() MessageType {
	return MsgUpdateFailHTLC
}

// TargetChanID returns the channel id of the link for which this message is
// intended.
//
// This is part of the lnwire.LinkUpdater interface.
func (c *UpdateFailHTLC) TargetChanID() ChannelID {
	return c.ChanID
}

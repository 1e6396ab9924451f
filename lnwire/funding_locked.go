package lnwire

import (
	"github.com/btcsuite/btcd/btcec/v2"
)

// FundingLocked is sent by both parties once the funding transaction has
// reached the negotiated minimum depth. Both sides must send and receive it
// before the channel becomes operational.
type FundingLocked struct {
	// ChanID is the permanent channel id derived from the funding
	// outpoint.
	ChanID ChannelID

	// NextPerCommitmentPoint is the secp256k1 point that the sender will
	// use for its next (index 1) commitment transaction.
	NextPerCommitmentPoint *btcec.PublicKey
}

// A compile time check to ensure FundingLocked implements the
// lnwire.Message interface.
var _ Message = (*FundingLocked)(nil)

// MsgType returns the MessageType code which uniquely identifies this message as
// a FundingLocked message on the wire.
//
// This is part of the lnwire.Message interface.
func (f *FundingLocked) MsgType() MessageType {
	return MsgFundingLocked
}

// TargetChanID returns the channel id of the link for which this message is
// intended.
//
// This is part of the lnwire.LinkUpdater interface.
func (f *FundingLocked) TargetChanID() ChannelID {
	return f.ChanID
}

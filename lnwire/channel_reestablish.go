package lnwire

import (
	"github.com/btcsuite/btcd/btcec/v2"
)

// ChannelReestablish is sent during node reconnection for every channel
// established in order to synchronize the states on both sides.
type ChannelReestablish struct {
	// ChanID serves to identify to which channel this message belongs.
	ChanID ChannelID

	// NextLocalCommitmentNumber is the commitment number of the next
	// commitment signed message it expects to receive.
	NextLocalCommitmentNumber uint64

	// NextRemoteRevocationNumber is the commitment number of the next
	// revoke and ack message it expects to receive.
	NextRemoteRevocationNumber uint64

	// LastRemoteCommitSecret is the last per-commitment secret received
	// from the remote node. If NextRemoteRevocationNumber is zero this
	// field is all-zero. A peer claiming a revocation number ahead of
	// ours must prove it by revealing our secret at that number minus
	// one.
	LastRemoteCommitSecret [32]byte

	// LocalUnrevokedCommitPoint is the per-commitment point of the
	// sender's current, unrevoked commitment transaction.
	LocalUnrevokedCommitPoint *btcec.PublicKey

	// ChannelData echoes back the most recent encrypted channel backup
	// blob the sender holds for its peer, allowing a peer that lost state
	// to recover before continuing the handshake.
	ChannelData ChannelData
}

// A compile time check to ensure ChannelReestablish implements the
// lnwire.Message interface.
var _ Message = (*ChannelReestablish)(nil)

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (a *ChannelReestablish) MsgType() MessageType {
	return MsgChannelReestablish
}

// TargetChanID returns the channel id of the link for which this message is
// intended.
//
// This is part of the lnwire.LinkUpdater interface.
func (a *ChannelReestablish) TargetChanID() ChannelID {
	return a.ChanID
}

package lnwire

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// FundingCreated is sent from Alice (the initiator) to Bob (the responder),
// once Alice receives Bob's contributions as well as his channel
// constraints. Once bob receives this message, he'll gain access to an
// immediately broadcastable commitment transaction and will reply with a
// signature for Alice's version of the commitment transaction.
type FundingCreated struct {
	// PendingChannelID serves to uniquely identify the future channel
	// created by the initiated single funder workflow.
	PendingChannelID [32]byte

	// FundingTxID is the transaction ID of the funding transaction.
	FundingTxID chainhash.Hash

	// FundingOutputIndex is the index of the multi-sig output within the
	// funding transaction.
	FundingOutputIndex uint16

	// CommitSig is Alice's signature for Bob's version of the first
	// commitment transaction.
	CommitSig Sig
}

// A compile time check to ensure FundingCreated implements the
// lnwire.Message interface.
var _ Message = (*FundingCreated)(nil)

// MsgType returns the MessageType code which uniquely identifies this message as
// a FundingCreated message on the wire.
//
// This is part of the lnwire.Message interface.
func (f *FundingCreated) MsgType() MessageType {
	return MsgFundingCreated
}

package lnwire

// FailCode specifies the precise reason that an upstream HTLC was cancelled.
// UpdateFailMalformedHTLC carries one; UpdateFailHTLC carries only the
// encrypted failure onion.
type FailCode uint16

const (
	// FlagBadOnion error flag describes an unparsable, encrypted by
	// previous node.
	FlagBadOnion FailCode = 0x8000

	// CodeInvalidOnionVersion is returned if the onion version byte is
	// unknown.
	CodeInvalidOnionVersion = FlagBadOnion | 4

	// CodeInvalidOnionHmac is returned if the onion HMAC is incorrect.
	CodeInvalidOnionHmac = FlagBadOnion | 5

	// CodeInvalidOnionKey is returned if the ephemeral key in the onion
	// is unparsable.
	CodeInvalidOnionKey = FlagBadOnion | 6
)

// UpdateFailMalformedHTLC is sent by Alice to Bob when the onion blob of the
// HTLC could not be parsed at all. Since the failing node cannot produce a
// properly encrypted failure onion, it returns the SHA256 of the onion it
// received along with a failure code carrying the BadOnion flag, and the
// origin re-wraps the failure on its behalf.
type UpdateFailMalformedHTLC struct {
	// ChanID is the particular active channel that this
	// UpdateFailMalformedHTLC is bound to.
	ChanID ChannelID

	// ID references which HTLC on the remote node's commitment
	// transaction is being failed.
	ID uint64

	// ShaOnionBlob is the SHA256 of the onion blob of the HTLC that could
	// not be processed.
	ShaOnionBlob [32]byte

	// FailureCode is the failure code describing the nature of the onion
	// parsing failure. The BadOnion flag MUST be set.
	FailureCode FailCode
}

// A compile time check to ensure UpdateFailMalformedHTLC implements the
// lnwire.Message interface.
var _ Message = (*UpdateFailMalformedHTLC)(nil)

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailMalformedHTLC) MsgType() MessageType {
	return MsgUpdateFailMalformedHTLC
}

// TargetChanID returns the channel id of the link for which this message is
// intended.
//
// This is part of the lnwire.LinkUpdater interface.
func (c *UpdateFailMalformedHTLC) TargetChanID() ChannelID {
	return c.ChanID
}

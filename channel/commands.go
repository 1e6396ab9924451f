package channel

import (
	"github.com/lnforge/channeld/chainfee"
	"github.com/lnforge/channeld/lnwire"
)

// Command is a local instruction executed against the channel through the
// ExecuteCommand event.
type Command interface {
	cmdSealed()
}

// CmdAddHtlc offers a new HTLC to the remote party.
type CmdAddHtlc struct {
	// Amount of the HTLC.
	Amount lnwire.MilliSatoshi

	// PaymentHash conditioning settlement.
	PaymentHash [32]byte

	// Expiry is the absolute block height the HTLC times out at.
	Expiry uint32

	// OnionBlob is the routing packet forwarded with the HTLC.
	OnionBlob [lnwire.OnionPacketSize]byte

	// Origin attributes the HTLC upstream for settlement relay.
	Origin Origin

	// Commit requests an immediate CMD_SIGN after the add.
	Commit bool
}

func (CmdAddHtlc) cmdSealed() {}

// CmdFulfillHtlc settles an incoming HTLC with its preimage.
type CmdFulfillHtlc struct {
	// ID of the HTLC to settle.
	ID uint64

	// Preimage hashing to the HTLC's payment hash.
	Preimage [32]byte

	// Commit requests an immediate CMD_SIGN after the settlement.
	Commit bool
}

func (CmdFulfillHtlc) cmdSealed() {}

// CmdFailHtlc fails an incoming HTLC. The reason is expected to already be
// onion-encrypted by the relay layer that holds the shared secret.
type CmdFailHtlc struct {
	// ID of the HTLC to fail.
	ID uint64

	// Reason is the encrypted failure returned upstream.
	Reason lnwire.OpaqueReason

	// Commit requests an immediate CMD_SIGN after the settlement.
	Commit bool
}

func (CmdFailHtlc) cmdSealed() {}

// CmdFailMalformedHtlc fails an incoming HTLC whose onion could not be
// parsed.
type CmdFailMalformedHtlc struct {
	// ID of the HTLC to fail.
	ID uint64

	// ShaOnionBlob is the SHA256 of the onion received.
	ShaOnionBlob [32]byte

	// FailureCode must carry the BadOnion flag.
	FailureCode lnwire.FailCode

	// Commit requests an immediate CMD_SIGN after the settlement.
	Commit bool
}

func (CmdFailMalformedHtlc) cmdSealed() {}

// CmdSign signs all pending changes into a new remote commitment.
type CmdSign struct{}

func (CmdSign) cmdSealed() {}

// CmdUpdateFee updates the commitment fee rate. Only valid for the funder.
type CmdUpdateFee struct {
	// FeeratePerKw is the new commitment fee rate.
	FeeratePerKw chainfee.SatPerKWeight

	// Commit requests an immediate CMD_SIGN after the update.
	Commit bool
}

func (CmdUpdateFee) cmdSealed() {}

// CmdClose initiates a cooperative close.
type CmdClose struct {
	// ScriptPubKey overrides the default final script when non-nil.
	ScriptPubKey lnwire.DeliveryAddress
}

func (CmdClose) cmdSealed() {}

// CmdForceClose broadcasts our current commitment, abandoning cooperation.
type CmdForceClose struct{}

func (CmdForceClose) cmdSealed() {}

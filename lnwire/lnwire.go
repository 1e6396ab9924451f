package lnwire

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// MilliSatoshi are the native unit of the Lightning Network. A milli-satoshi
// is simply 1/1000th of a satoshi. There are 1000 milli-satoshis in a single
// satoshi.
type MilliSatoshi uint64

// NewMSatFromSatoshis creates a new MilliSatoshi instance from a target
// amount of satoshis.
func NewMSatFromSatoshis(sat btcutil.Amount) MilliSatoshi {
	return MilliSatoshi(uint64(sat) * 1000)
}

// ToSatoshis converts a target MilliSatoshi amount to satoshis. Satoshis are
// the native unit of the base chain, so any fractional amount is truncated.
func (m MilliSatoshi) ToSatoshis() btcutil.Amount {
	return btcutil.Amount(uint64(m) / 1000)
}

// String returns a human readable form of the amount.
func (m MilliSatoshi) String() string {
	return fmt.Sprintf("%v mSAT", uint64(m))
}

// Sig is a fixed-sized ECDSA signature in the compact 64-byte form that all
// channel messages use on the wire.
type Sig [64]byte

// DeliveryAddress is the script to pay out channel funds to on cooperative
// close, announced in shutdown (or up front in open/accept).
type DeliveryAddress []byte

// ChannelData is an opaque encrypted channel backup blob. A node that has
// opted into the backup feature attaches its latest blob to outgoing
// funding_signed, commit_sig, revoke_and_ack and closing_signed messages,
// and returns whatever it last saw from the peer in channel_reestablish.
type ChannelData []byte

// FundingFlag is the bitfield of the channel_flags field of open_channel.
type FundingFlag uint8

const (
	// FFAnnounceChannel signals that the sender wishes the channel to be
	// announced to the greater network.
	FFAnnounceChannel FundingFlag = 1 << 0
)

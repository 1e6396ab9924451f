package channel

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/lnforge/channeld/keychain"
	"github.com/lnforge/channeld/lnwire"
)

// HtlcInfoSource is the read contract onto the HTLC-info store populated by
// StoreHtlcInfos actions. The machine consults it to rebuild the HTLC
// scripts of a revoked remote commitment when deriving penalties.
type HtlcInfoSource interface {
	// ListHtlcInfos returns the records stored for the given remote
	// commitment number.
	ListHtlcInfos(channelID lnwire.ChannelID,
		commitmentNumber uint64) ([]HtlcInfo, error)
}

// Config carries the immutable collaborators and parameters of one channel
// machine. Every collaborator is side-effect-free from the machine's point
// of view.
type Config struct {
	// NodeParams is the node-wide configuration.
	NodeParams NodeParams

	// RemoteNodeID is the peer's node public key.
	RemoteNodeID *btcec.PublicKey

	// KeyRing derives our public keys.
	KeyRing keychain.KeyRing

	// Signer produces signatures with keys held by the backing wallet.
	Signer keychain.Signer

	// Revocations produces our per-commitment secrets and points for
	// this channel.
	Revocations keychain.RevocationProducer

	// HtlcInfos reads back the HTLC records persisted through
	// StoreHtlcInfos.
	HtlcInfos HtlcInfoSource

	// Clock stamps waiting-since times. Injected so replays are
	// deterministic under test.
	Clock clock.Clock
}

// Machine is the channel state machine. It holds only immutable
// configuration: all mutable state lives in the State values threaded
// through Process.
type Machine struct {
	cfg Config
}

// NewMachine creates a machine for one channel.
func NewMachine(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

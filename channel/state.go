package channel

import (
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnforge/channeld/chainfee"
	"github.com/lnforge/channeld/lnwire"
)

// State is one of the named states of the channel machine. States are
// values: a transition returns a fresh state and never mutates the one it
// received.
type State interface {
	stateSealed()

	// Name returns the state's name for logging.
	Name() string
}

// StateWithCommitments is implemented by every state that holds a funded
// (or about-to-be-funded) channel ledger. These are the states that are
// persisted and that survive reconnection.
type StateWithCommitments interface {
	State

	// Commits returns the channel ledger.
	Commits() *Commitments

	// ChanID returns the channel id.
	ChanID() lnwire.ChannelID
}

// WaitForInit is the initial state: no role has been assigned yet.
type WaitForInit struct{}

func (WaitForInit) stateSealed() {}

// Name returns the state name.
func (WaitForInit) Name() string { return "WaitForInit" }

// WaitForOpenChannel is the fundee awaiting the peer's open_channel.
type WaitForOpenChannel struct {
	// Init is the InitFundee event that created the channel.
	Init InitFundee
}

func (WaitForOpenChannel) stateSealed() {}

// Name returns the state name.
func (WaitForOpenChannel) Name() string { return "WaitForOpenChannel" }

// WaitForAcceptChannel is the funder awaiting the peer's accept_channel.
type WaitForAcceptChannel struct {
	// Init is the InitFunder event that created the channel.
	Init InitFunder

	// LastSent is the open_channel we sent.
	LastSent *lnwire.OpenChannel
}

func (WaitForAcceptChannel) stateSealed() {}

// Name returns the state name.
func (WaitForAcceptChannel) Name() string { return "WaitForAcceptChannel" }

// WaitForFundingInternal is the funder awaiting the wallet's funding
// transaction.
type WaitForFundingInternal struct {
	// TemporaryChannelID of the pending channel.
	TemporaryChannelID [32]byte

	// LocalParams are our parameters.
	LocalParams LocalParams

	// RemoteParams are the accepted peer parameters.
	RemoteParams RemoteParams

	// FundingAmount of the channel.
	FundingAmount btcutil.Amount

	// PushAmount granted to the peer on the first commitment.
	PushAmount lnwire.MilliSatoshi

	// InitialFeeratePerKw of the first commitments.
	InitialFeeratePerKw chainfee.SatPerKWeight

	// RemoteFirstPerCommitmentPoint for their first commitment.
	RemoteFirstPerCommitmentPoint *btcec.PublicKey

	// ChannelFlags announced in open_channel.
	ChannelFlags lnwire.FundingFlag

	// ChannelVersion of the channel.
	ChannelVersion Version

	// LastSent is the open_channel we sent.
	LastSent *lnwire.OpenChannel
}

func (WaitForFundingInternal) stateSealed() {}

// Name returns the state name.
func (WaitForFundingInternal) Name() string { return "WaitForFundingInternal" }

// WaitForFundingCreated is the fundee awaiting funding_created.
type WaitForFundingCreated struct {
	// TemporaryChannelID of the pending channel.
	TemporaryChannelID [32]byte

	// LocalParams are our parameters.
	LocalParams LocalParams

	// RemoteParams are the peer parameters from open_channel.
	RemoteParams RemoteParams

	// FundingAmount of the channel.
	FundingAmount btcutil.Amount

	// PushAmount granted to us on the first commitment.
	PushAmount lnwire.MilliSatoshi

	// InitialFeeratePerKw of the first commitments.
	InitialFeeratePerKw chainfee.SatPerKWeight

	// RemoteFirstPerCommitmentPoint for their first commitment.
	RemoteFirstPerCommitmentPoint *btcec.PublicKey

	// ChannelFlags announced in open_channel.
	ChannelFlags lnwire.FundingFlag

	// ChannelVersion of the channel.
	ChannelVersion Version

	// LastSent is the accept_channel we sent.
	LastSent *lnwire.AcceptChannel
}

func (WaitForFundingCreated) stateSealed() {}

// Name returns the state name.
func (WaitForFundingCreated) Name() string { return "WaitForFundingCreated" }

// WaitForFundingSigned is the funder awaiting funding_signed.
type WaitForFundingSigned struct {
	// ChannelID is the permanent id derived from the funding outpoint.
	ChannelID lnwire.ChannelID

	// LocalParams are our parameters.
	LocalParams LocalParams

	// RemoteParams are the peer parameters.
	RemoteParams RemoteParams

	// FundingTx is the funding transaction, not yet broadcast.
	FundingTx *wire.MsgTx

	// FundingTxFee paid by the funding transaction.
	FundingTxFee btcutil.Amount

	// LocalSpec is the spec of our first commitment.
	LocalSpec CommitmentSpec

	// LocalCommitTx is our unsigned first commitment transaction.
	LocalCommitTx *wire.MsgTx

	// RemoteCommit is their first commitment.
	RemoteCommit RemoteCommit

	// ChannelFlags announced in open_channel.
	ChannelFlags lnwire.FundingFlag

	// ChannelVersion of the channel.
	ChannelVersion Version

	// CommitInput is the funding output.
	CommitInput CommitInput

	// LastSent is the funding_created we sent.
	LastSent *lnwire.FundingCreated
}

func (WaitForFundingSigned) stateSealed() {}

// Name returns the state name.
func (WaitForFundingSigned) Name() string { return "WaitForFundingSigned" }

// WaitForFundingConfirmed awaits the funding transaction's minimum depth.
type WaitForFundingConfirmed struct {
	// Commitments is the channel ledger.
	Commitments Commitments

	// FundingTx is the funding transaction if we are the funder and
	// published it.
	FundingTx *wire.MsgTx

	// WaitingSince is when we started waiting, used by the funding
	// timeout.
	WaitingSince time.Time

	// WaitingSinceBlock is the chain height we started waiting at.
	WaitingSinceBlock uint32

	// DeferredFundingLocked is a funding_locked received before our own
	// confirmation, replayed once the funding confirms.
	DeferredFundingLocked *lnwire.FundingLocked

	// LastSent is the funding_signed or funding_created that completed
	// the handshake.
	LastSent lnwire.Message
}

func (WaitForFundingConfirmed) stateSealed() {}

// Name returns the state name.
func (WaitForFundingConfirmed) Name() string { return "WaitForFundingConfirmed" }

// Commits returns the channel ledger.
func (s WaitForFundingConfirmed) Commits() *Commitments { return &s.Commitments }

// ChanID returns the channel id.
func (s WaitForFundingConfirmed) ChanID() lnwire.ChannelID {
	return s.Commitments.ChannelID
}

// WaitForFundingLocked awaits the funding_locked exchange.
type WaitForFundingLocked struct {
	// Commitments is the channel ledger.
	Commitments Commitments

	// ShortChannelID is the confirmed location of the funding
	// transaction.
	ShortChannelID ShortChannelID

	// LastSent is the funding_locked we sent.
	LastSent *lnwire.FundingLocked
}

func (WaitForFundingLocked) stateSealed() {}

// Name returns the state name.
func (WaitForFundingLocked) Name() string { return "WaitForFundingLocked" }

// Commits returns the channel ledger.
func (s WaitForFundingLocked) Commits() *Commitments { return &s.Commitments }

// ChanID returns the channel id.
func (s WaitForFundingLocked) ChanID() lnwire.ChannelID {
	return s.Commitments.ChannelID
}

// ShortChannelID is the block/tx/output coordinate of a confirmed funding
// transaction.
type ShortChannelID struct {
	// BlockHeight the funding transaction confirmed at.
	BlockHeight uint32

	// TxIndex within the block.
	TxIndex uint32

	// OutputIndex of the funding output.
	OutputIndex uint16
}

// Normal is the operational state.
type Normal struct {
	// Commitments is the channel ledger.
	Commitments Commitments

	// ShortChannelID is the funding transaction's coordinate.
	ShortChannelID ShortChannelID

	// Buried is true once the funding transaction is deeply buried.
	Buried bool

	// LocalShutdown is our shutdown if we already sent one.
	LocalShutdown *lnwire.Shutdown

	// RemoteShutdown is their shutdown if they already sent one.
	RemoteShutdown *lnwire.Shutdown
}

func (Normal) stateSealed() {}

// Name returns the state name.
func (Normal) Name() string { return "Normal" }

// Commits returns the channel ledger.
func (s Normal) Commits() *Commitments { return &s.Commitments }

// ChanID returns the channel id.
func (s Normal) ChanID() lnwire.ChannelID { return s.Commitments.ChannelID }

// ShuttingDown settles remaining HTLCs after shutdown was exchanged.
type ShuttingDown struct {
	// Commitments is the channel ledger.
	Commitments Commitments

	// LocalShutdown is our shutdown.
	LocalShutdown *lnwire.Shutdown

	// RemoteShutdown is their shutdown.
	RemoteShutdown *lnwire.Shutdown
}

func (ShuttingDown) stateSealed() {}

// Name returns the state name.
func (ShuttingDown) Name() string { return "ShuttingDown" }

// Commits returns the channel ledger.
func (s ShuttingDown) Commits() *Commitments { return &s.Commitments }

// ChanID returns the channel id.
func (s ShuttingDown) ChanID() lnwire.ChannelID { return s.Commitments.ChannelID }

// ClosingTxProposed is one mutual-close offer we made.
type ClosingTxProposed struct {
	// UnsignedTx is the proposed close transaction.
	UnsignedTx *wire.MsgTx

	// LocalClosingSigned is the closing_signed we sent with it.
	LocalClosingSigned *lnwire.ClosingSigned
}

// Negotiating is the mutual-close fee negotiation.
type Negotiating struct {
	// Commitments is the channel ledger.
	Commitments Commitments

	// LocalShutdown is our shutdown.
	LocalShutdown *lnwire.Shutdown

	// RemoteShutdown is their shutdown.
	RemoteShutdown *lnwire.Shutdown

	// ClosingTxProposed is the history of our offers, most recent last.
	ClosingTxProposed []ClosingTxProposed

	// BestUnpublishedClosingTx is the most recent fully signed close
	// transaction, publishable if negotiation stalls.
	BestUnpublishedClosingTx *wire.MsgTx
}

func (Negotiating) stateSealed() {}

// Name returns the state name.
func (Negotiating) Name() string { return "Negotiating" }

// Commits returns the channel ledger.
func (s Negotiating) Commits() *Commitments { return &s.Commitments }

// ChanID returns the channel id.
func (s Negotiating) ChanID() lnwire.ChannelID { return s.Commitments.ChannelID }

// Closing means a funding-spending transaction has been identified and we
// are waiting for deep confirmation of the relevant claims.
type Closing struct {
	// Commitments is the channel ledger.
	Commitments Commitments

	// FundingTx is the funding transaction if we are the funder and
	// published it.
	FundingTx *wire.MsgTx

	// WaitingSince is when the close started.
	WaitingSince time.Time

	// MutualCloseProposed are the close transactions we offered during
	// negotiation.
	MutualCloseProposed []*wire.MsgTx

	// MutualClosePublished are the fully signed close transactions
	// published.
	MutualClosePublished []*wire.MsgTx

	// LocalCommitPublished describes our own published commitment.
	LocalCommitPublished *LocalCommitPublished

	// CurrentRemoteCommitPublished describes their published current
	// commitment.
	CurrentRemoteCommitPublished *RemoteCommitPublished

	// NextRemoteCommitPublished describes their published next
	// commitment.
	NextRemoteCommitPublished *RemoteCommitPublished

	// FutureRemoteCommitPublished describes a commitment newer than
	// anything we know, after proven data loss.
	FutureRemoteCommitPublished *RemoteCommitPublished

	// RevokedCommitPublished describes every revoked commitment they
	// published.
	RevokedCommitPublished []*RevokedCommitPublished
}

func (Closing) stateSealed() {}

// Name returns the state name.
func (Closing) Name() string { return "Closing" }

// Commits returns the channel ledger.
func (s Closing) Commits() *Commitments { return &s.Commitments }

// ChanID returns the channel id.
func (s Closing) ChanID() lnwire.ChannelID { return s.Commitments.ChannelID }

// Closed is terminal: every relevant spend is irrevocably confirmed.
type Closed struct {
	// Final is the closing state at the time the channel closed.
	Final Closing
}

func (Closed) stateSealed() {}

// Name returns the state name.
func (Closed) Name() string { return "Closed" }

// Commits returns the channel ledger.
func (s Closed) Commits() *Commitments { return &s.Final.Commitments }

// ChanID returns the channel id.
func (s Closed) ChanID() lnwire.ChannelID {
	return s.Final.Commitments.ChannelID
}

// Aborted is terminal: the channel was never funded and has no on-chain
// footprint.
type Aborted struct {
	// ChannelID is the id (possibly still temporary) of the dead
	// channel.
	ChannelID lnwire.ChannelID
}

func (Aborted) stateSealed() {}

// Name returns the state name.
func (Aborted) Name() string { return "Aborted" }

// Offline wraps a committed state while the peer transport is down.
type Offline struct {
	// Inner is the wrapped state.
	Inner StateWithCommitments
}

func (Offline) stateSealed() {}

// Name returns the state name.
func (Offline) Name() string { return "Offline" }

// Commits returns the channel ledger.
func (s Offline) Commits() *Commitments { return s.Inner.Commits() }

// ChanID returns the channel id.
func (s Offline) ChanID() lnwire.ChannelID { return s.Inner.ChanID() }

// Syncing wraps a committed state while channel_reestablish is being
// exchanged.
type Syncing struct {
	// Inner is the wrapped state.
	Inner StateWithCommitments

	// WaitForTheirReestablishMessage is true when we must hold our own
	// channel_reestablish until theirs arrives, because we may need to
	// recover state from the backup it carries.
	WaitForTheirReestablishMessage bool
}

func (Syncing) stateSealed() {}

// Name returns the state name.
func (Syncing) Name() string { return "Syncing" }

// Commits returns the channel ledger.
func (s Syncing) Commits() *Commitments { return s.Inner.Commits() }

// ChanID returns the channel id.
func (s Syncing) ChanID() lnwire.ChannelID { return s.Inner.ChanID() }

// WaitForRemotePublishFutureCommitment is entered after we proved to
// ourselves that we lost state: all we can do is wait for the remote to
// publish its current commitment and claim our main output.
type WaitForRemotePublishFutureCommitment struct {
	// Commitments is our stale ledger.
	Commitments Commitments

	// RemoteChannelReestablish is their reestablish proving our data
	// loss.
	RemoteChannelReestablish *lnwire.ChannelReestablish
}

func (WaitForRemotePublishFutureCommitment) stateSealed() {}

// Name returns the state name.
func (WaitForRemotePublishFutureCommitment) Name() string {
	return "WaitForRemotePublishFutureCommitment"
}

// Commits returns the channel ledger.
func (s WaitForRemotePublishFutureCommitment) Commits() *Commitments {
	return &s.Commitments
}

// ChanID returns the channel id.
func (s WaitForRemotePublishFutureCommitment) ChanID() lnwire.ChannelID {
	return s.Commitments.ChannelID
}

// ErrorInformationLeak is entered when the funding output was spent by a
// transaction we cannot attribute: our own state can no longer be trusted.
type ErrorInformationLeak struct {
	// Commitments is the untrusted ledger.
	Commitments Commitments
}

func (ErrorInformationLeak) stateSealed() {}

// Name returns the state name.
func (ErrorInformationLeak) Name() string { return "ErrorInformationLeak" }

// Commits returns the channel ledger.
func (s ErrorInformationLeak) Commits() *Commitments { return &s.Commitments }

// ChanID returns the channel id.
func (s ErrorInformationLeak) ChanID() lnwire.ChannelID {
	return s.Commitments.ChannelID
}

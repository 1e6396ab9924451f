package channel

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/lnforge/channeld/chainfee"
	"github.com/lnforge/channeld/lnwire"
)

var (
	// ErrCannotSignWithoutChanges is returned when a commit_sig is
	// received or requested while there is nothing new to sign.
	ErrCannotSignWithoutChanges = errors.New("cannot sign when there " +
		"are no changes")

	// ErrCannotSignBeforeRevocation is returned when a second commit_sig
	// would be sent before the previous one was revoked.
	ErrCannotSignBeforeRevocation = errors.New("cannot sign until next " +
		"revocation hash is received")

	// ErrInvalidCommitmentSignature is returned when the peer's
	// signature does not cover the commitment we constructed.
	ErrInvalidCommitmentSignature = errors.New("invalid commitment " +
		"signature")

	// ErrInvalidHtlcSignature is returned when one of the peer's HTLC
	// signatures is invalid.
	ErrInvalidHtlcSignature = errors.New("invalid htlc signature")

	// ErrInvalidHtlcSigCount describes a commit_sig whose number of HTLC
	// signatures differs from the number of untrimmed HTLC outputs.
	// ReceiveCommit does not return it: it reports that case as
	// HtlcSigCountMismatchError, which carries both counts.
	ErrInvalidHtlcSigCount = errors.New("wrong number of htlc signatures")

	// ErrInvalidRevocation is returned when the revealed per-commitment
	// secret does not match the point the remote previously committed
	// to.
	ErrInvalidRevocation = errors.New("invalid revocation")

	// ErrInvalidHtlcPreimage is returned when a fulfill carries a
	// preimage that does not hash to the HTLC's payment hash.
	ErrInvalidHtlcPreimage = errors.New("invalid htlc preimage")

	// ErrUnexpectedRevocation is returned when a revoke_and_ack arrives
	// while no commit_sig is outstanding.
	ErrUnexpectedRevocation = errors.New("received unexpected " +
		"revoke_and_ack")

	// ErrRevocationSync is returned when channel_reestablish numbers
	// cannot be reconciled with our view of the commitment chain.
	ErrRevocationSync = errors.New("revocation sync error")

	// ErrNonFunderCannotSendUpdateFee is returned when the fundee tries
	// to update the fee rate, or the funder receives an update_fee.
	ErrNonFunderCannotSendUpdateFee = errors.New("only the funder can " +
		"send update_fee")

	// ErrClosingAlreadyInProgress is returned when a close command is
	// issued on a channel already negotiating a close.
	ErrClosingAlreadyInProgress = errors.New("closing already in progress")

	// ErrCannotCloseWithUnsignedOutgoingHtlcs is returned when a close
	// command is issued while proposed outgoing HTLCs exist.
	ErrCannotCloseWithUnsignedOutgoingHtlcs = errors.New("cannot close " +
		"when there are unsigned outgoing htlcs")

	// ErrNoMoreHtlcsClosingInProgress is returned when a new HTLC is
	// offered after shutdown was initiated.
	ErrNoMoreHtlcsClosingInProgress = errors.New("cannot send new htlcs " +
		"while closing is in progress")

	// ErrInvalidFinalScript is returned when a shutdown script is not in
	// the whitelisted forms.
	ErrInvalidFinalScript = errors.New("invalid final script")

	// ErrFundingTxTimedOut is returned when the funding transaction of a
	// fundee channel failed to confirm in time.
	ErrFundingTxTimedOut = errors.New("funding tx timed out")

	// ErrFundingTxSpent is returned when the funding output is spent by
	// a transaction we cannot attribute to any known commitment.
	ErrFundingTxSpent = errors.New("funding tx spent by unknown " +
		"transaction")
)

// InvalidMaxAcceptedHtlcsError is returned when the peer announces a
// max_accepted_htlcs above the protocol ceiling.
type InvalidMaxAcceptedHtlcsError struct {
	MaxAcceptedHtlcs uint16
}

// Error returns the error string.
func (e InvalidMaxAcceptedHtlcsError) Error() string {
	return fmt.Sprintf("InvalidMaxAcceptedHtlcs: %v > %v",
		e.MaxAcceptedHtlcs, MaxAcceptedHtlcs)
}

// DustLimitTooSmallError is returned when the announced dust limit is below
// the network floor.
type DustLimitTooSmallError struct {
	DustLimit btcutil.Amount
}

// Error returns the error string.
func (e DustLimitTooSmallError) Error() string {
	return fmt.Sprintf("DustLimitTooSmall: %v < %v", e.DustLimit,
		MinDustLimit)
}

// DustLimitTooLargeError is returned when the announced dust limit exceeds
// the announced channel reserve.
type DustLimitTooLargeError struct {
	DustLimit      btcutil.Amount
	ChannelReserve btcutil.Amount
}

// Error returns the error string.
func (e DustLimitTooLargeError) Error() string {
	return fmt.Sprintf("DustLimitTooLarge: %v > reserve %v", e.DustLimit,
		e.ChannelReserve)
}

// ChannelReserveBelowOurDustLimitError is returned when the reserve the
// remote demands of us is below our own dust limit.
type ChannelReserveBelowOurDustLimitError struct {
	ChannelReserve btcutil.Amount
	DustLimit      btcutil.Amount
}

// Error returns the error string.
func (e ChannelReserveBelowOurDustLimitError) Error() string {
	return fmt.Sprintf("ChannelReserveBelowOurDustLimit: %v < %v",
		e.ChannelReserve, e.DustLimit)
}

// DustLimitAboveOurChannelReserveError is returned when the remote's dust
// limit exceeds the reserve we demand of them.
type DustLimitAboveOurChannelReserveError struct {
	DustLimit      btcutil.Amount
	ChannelReserve btcutil.Amount
}

// Error returns the error string.
func (e DustLimitAboveOurChannelReserveError) Error() string {
	return fmt.Sprintf("DustLimitAboveOurChannelReserve: %v > %v",
		e.DustLimit, e.ChannelReserve)
}

// ToSelfDelayTooHighError is returned when the remote demands a to-self
// delay above our policy cap.
type ToSelfDelayTooHighError struct {
	ToSelfDelay uint16
	Max         uint16
}

// Error returns the error string.
func (e ToSelfDelayTooHighError) Error() string {
	return fmt.Sprintf("ToSelfDelayTooHigh: %v > %v", e.ToSelfDelay,
		e.Max)
}

// ChannelReserveTooHighError is returned when the demanded reserve is too
// large a fraction of the funding amount.
type ChannelReserveTooHighError struct {
	ChannelReserve btcutil.Amount
	Ratio          float64
}

// Error returns the error string.
func (e ChannelReserveTooHighError) Error() string {
	return fmt.Sprintf("ChannelReserveTooHigh: %v (%.2f%% of funding)",
		e.ChannelReserve, e.Ratio*100)
}

// CannotAffordFeesError is returned when the funder's balance cannot cover
// the commitment fee plus the reserve.
type CannotAffordFeesError struct {
	MissingSatoshis btcutil.Amount
	Reserve         btcutil.Amount
	Fees            btcutil.Amount
}

// Error returns the error string.
func (e CannotAffordFeesError) Error() string {
	return fmt.Sprintf("CannotAffordFees: missing=%v reserve=%v fee=%v",
		e.MissingSatoshis, e.Reserve, e.Fees)
}

// ExpiryTooSmallError is returned when an offered HTLC expires too soon.
type ExpiryTooSmallError struct {
	Expiry      uint32
	BlockHeight uint32
}

// Error returns the error string.
func (e ExpiryTooSmallError) Error() string {
	return fmt.Sprintf("ExpiryTooSmall: expiry=%v height=%v", e.Expiry,
		e.BlockHeight)
}

// ExpiryTooBigError is returned when an offered HTLC expires too far in the
// future.
type ExpiryTooBigError struct {
	Expiry      uint32
	BlockHeight uint32
}

// Error returns the error string.
func (e ExpiryTooBigError) Error() string {
	return fmt.Sprintf("ExpiryTooBig: expiry=%v height=%v", e.Expiry,
		e.BlockHeight)
}

// HtlcValueTooSmallError is returned when an HTLC is below the counterparty
// minimum.
type HtlcValueTooSmallError struct {
	Amount  lnwire.MilliSatoshi
	Minimum lnwire.MilliSatoshi
}

// Error returns the error string.
func (e HtlcValueTooSmallError) Error() string {
	return fmt.Sprintf("HtlcValueTooSmall: %v < %v", e.Amount, e.Minimum)
}

// HtlcValueTooHighInFlightError is returned when the summed outstanding
// HTLC value would exceed the announced cap.
type HtlcValueTooHighInFlightError struct {
	InFlight lnwire.MilliSatoshi
	Maximum  lnwire.MilliSatoshi
}

// Error returns the error string.
func (e HtlcValueTooHighInFlightError) Error() string {
	return fmt.Sprintf("HtlcValueTooHighInFlight: %v > %v", e.InFlight,
		e.Maximum)
}

// TooManyAcceptedHtlcsError is returned when the number of outstanding
// HTLCs would exceed the announced cap.
type TooManyAcceptedHtlcsError struct {
	Maximum uint16
}

// Error returns the error string.
func (e TooManyAcceptedHtlcsError) Error() string {
	return fmt.Sprintf("TooManyAcceptedHtlcs: maximum=%v", e.Maximum)
}

// InsufficientFundsError is returned when the sender's balance cannot cover
// a new HTLC plus fees and reserve.
type InsufficientFundsError struct {
	Amount  lnwire.MilliSatoshi
	Missing btcutil.Amount
}

// Error returns the error string.
func (e InsufficientFundsError) Error() string {
	return fmt.Sprintf("InsufficientFunds: amount=%v missing=%v",
		e.Amount, e.Missing)
}

// FeerateTooDifferentError is returned when the commitment fee rate is too
// far from the locally observed chain fee rate.
type FeerateTooDifferentError struct {
	CommitFeerate chainfee.SatPerKWeight
	LocalFeerate  chainfee.SatPerKWeight
}

// Error returns the error string.
func (e FeerateTooDifferentError) Error() string {
	return fmt.Sprintf("FeerateTooDifferent: commit=%v local=%v",
		e.CommitFeerate, e.LocalFeerate)
}

// UnknownHtlcIDError is returned when a settlement references an HTLC id
// that is not in the relevant commitment.
type UnknownHtlcIDError struct {
	ID uint64
}

// Error returns the error string.
func (e UnknownHtlcIDError) Error() string {
	return fmt.Sprintf("UnknownHtlcId: %v", e.ID)
}

// HtlcSigCountMismatchError reports a commit_sig carrying the wrong number
// of HTLC signatures.
type HtlcSigCountMismatchError struct {
	Expected int
	Actual   int
}

// Error returns the error string.
func (e HtlcSigCountMismatchError) Error() string {
	return fmt.Sprintf("HtlcSigCountMismatch: expected %v, got %v",
		e.Expected, e.Actual)
}

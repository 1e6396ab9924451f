package channel

import (
	"bytes"
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/lnforge/channeld/chainfee"
	"github.com/lnforge/channeld/committx"
	"github.com/lnforge/channeld/keychain"
	"github.com/lnforge/channeld/lnwire"
	"github.com/lnforge/channeld/shachain"
)

// HtlcTxAndSigs is a second-level HTLC transaction of our own commitment
// along with both signatures required to publish it.
type HtlcTxAndSigs struct {
	// Htlc is the output the transaction spends.
	Htlc committx.HtlcOutput

	// Tx is the unsigned second-level transaction.
	Tx *wire.MsgTx

	// OutputScript is the witness script of the transaction's delayed
	// output.
	OutputScript []byte

	// LocalSig is our signature.
	LocalSig lnwire.Sig

	// RemoteSig is the counterparty's signature received in commit_sig.
	RemoteSig lnwire.Sig
}

// PublishableTxs is the set of transactions we can put on chain to enforce
// our current commitment.
type PublishableTxs struct {
	// CommitTx is our fully signed commitment transaction.
	CommitTx *wire.MsgTx

	// HtlcTxsAndSigs are the second-level transactions of every
	// untrimmed HTLC, in output order.
	HtlcTxsAndSigs []HtlcTxAndSigs
}

// LocalCommit is our current commitment.
type LocalCommit struct {
	// Index of the commitment, monotonically increasing.
	Index uint64

	// Spec describing the commitment.
	Spec CommitmentSpec

	// PublishableTxs enforce the commitment on chain.
	PublishableTxs PublishableTxs
}

// RemoteCommit is the counterparty's current (or in-flight next)
// commitment as far as we know it.
type RemoteCommit struct {
	// Index of the commitment, monotonically increasing.
	Index uint64

	// Spec describing the commitment, from the remote's point of view.
	Spec CommitmentSpec

	// Txid of the remote commitment transaction.
	Txid chainhash.Hash

	// RemotePerCommitmentPoint the commitment was derived from.
	RemotePerCommitmentPoint *btcec.PublicKey
}

// WaitingForRevocation records an outstanding commit_sig of ours that the
// remote has not yet revoked its prior commitment for.
type WaitingForRevocation struct {
	// NextRemoteCommit is the commitment our in-flight signature covers.
	NextRemoteCommit RemoteCommit

	// Sent is the exact commit_sig we sent, kept for retransmission.
	Sent *lnwire.CommitSig

	// SentAfterLocalCommitIndex is our local commitment index at the
	// time the signature was sent, used during reconnection to decide
	// whether a lost revocation must be replayed before or after the
	// commit_sig.
	SentAfterLocalCommitIndex uint64

	// ReSignAsap is set when a sign request arrived while this
	// signature was in flight; a new signature is produced as soon as
	// the revocation comes in.
	ReSignAsap bool
}

// RemoteNextCommitInfo is either an in-flight commitment signature awaiting
// revocation, or the remote's next per-commitment point when no signature
// is outstanding.
type RemoteNextCommitInfo = fn.Either[WaitingForRevocation, *btcec.PublicKey]

// LocalChanges tracks updates we originated through their lifecycle:
// proposed (sent, unsigned), signed (covered by our in-flight commit_sig),
// acked (in the remote commitment only, awaiting inclusion in ours).
type LocalChanges struct {
	Proposed []lnwire.Message
	Signed   []lnwire.Message
	Acked    []lnwire.Message
}

// All returns every update currently in flight in arrival order.
func (c *LocalChanges) All() []lnwire.Message {
	all := make([]lnwire.Message, 0,
		len(c.Proposed)+len(c.Signed)+len(c.Acked))
	all = append(all, c.Acked...)
	all = append(all, c.Signed...)
	all = append(all, c.Proposed...)

	return all
}

// RemoteChanges tracks updates the remote originated: proposed (received,
// unsigned), acked (in our commitment only, acknowledged by our
// revocation), signed (covered by our in-flight commit_sig on their next
// commitment).
type RemoteChanges struct {
	Proposed []lnwire.Message
	Acked    []lnwire.Message
	Signed   []lnwire.Message
}

// CommitInput is the funding output every commitment transaction spends.
type CommitInput struct {
	// OutPoint of the funding output.
	OutPoint wire.OutPoint

	// TxOut is the funding output itself.
	TxOut *wire.TxOut

	// WitnessScript is the 2-of-2 multisig script of the output.
	WitnessScript []byte
}

// Commitments is the per-channel ledger: both commitments, the changes in
// flight between them, and the revocation state.
type Commitments struct {
	// ChannelVersion fixes derivation and policy for this channel.
	ChannelVersion Version

	// LocalParams are our parameters.
	LocalParams LocalParams

	// RemoteParams are the counterparty's parameters.
	RemoteParams RemoteParams

	// ChannelFlags announced in open_channel.
	ChannelFlags lnwire.FundingFlag

	// LocalCommit is our current commitment.
	LocalCommit LocalCommit

	// RemoteCommit is their current commitment.
	RemoteCommit RemoteCommit

	// LocalChanges are updates we originated.
	LocalChanges LocalChanges

	// RemoteChanges are updates they originated.
	RemoteChanges RemoteChanges

	// LocalNextHtlcID is the id assigned to our next update_add_htlc.
	LocalNextHtlcID uint64

	// RemoteNextHtlcID is the id we expect on their next
	// update_add_htlc.
	RemoteNextHtlcID uint64

	// OriginChannels attributes our outgoing HTLCs upstream, keyed by
	// HTLC id.
	OriginChannels map[uint64]Origin

	// RemoteNextCommitInfo is Left while our commit_sig is in flight,
	// Right(nextPerCommitmentPoint) otherwise.
	RemoteNextCommitInfo RemoteNextCommitInfo

	// RemotePerCommitmentSecrets stores every revocation secret the
	// remote has revealed.
	RemotePerCommitmentSecrets *shachain.Store

	// CommitInput is the funding output.
	CommitInput CommitInput

	// RemoteChannelData is the opaque encrypted backup the peer most
	// recently asked us to hold for it.
	RemoteChannelData lnwire.ChannelData

	// ChannelID is the permanent channel id.
	ChannelID lnwire.ChannelID
}

// localHasChanges reports whether a new remote commitment would differ from
// the current one.
func (c *Commitments) localHasChanges() bool {
	return len(c.RemoteChanges.Acked) > 0 || len(c.LocalChanges.Proposed) > 0
}

// remoteHasChanges reports whether a new local commitment would differ from
// the current one.
func (c *Commitments) remoteHasChanges() bool {
	return len(c.LocalChanges.Acked) > 0 || len(c.RemoteChanges.Proposed) > 0
}

// LocalHasUnsignedOutgoingHtlcs reports whether we proposed an HTLC that no
// commitment covers yet.
func (c *Commitments) LocalHasUnsignedOutgoingHtlcs() bool {
	for _, msg := range c.LocalChanges.Proposed {
		if _, ok := msg.(*lnwire.UpdateAddHTLC); ok {
			return true
		}
	}

	return false
}

// RemoteHasUnsignedOutgoingHtlcs reports whether the remote proposed an
// HTLC that no commitment covers yet.
func (c *Commitments) RemoteHasUnsignedOutgoingHtlcs() bool {
	for _, msg := range c.RemoteChanges.Proposed {
		if _, ok := msg.(*lnwire.UpdateAddHTLC); ok {
			return true
		}
	}

	return false
}

// HasNoPendingHtlcs reports whether both current commitments and any
// in-flight next commitment are free of HTLCs.
func (c *Commitments) HasNoPendingHtlcs() bool {
	if len(c.LocalCommit.Spec.Htlcs) != 0 {
		return false
	}
	if len(c.RemoteCommit.Spec.Htlcs) != 0 {
		return false
	}

	pending := false
	c.RemoteNextCommitInfo.WhenLeft(func(w WaitingForRevocation) {
		pending = len(w.NextRemoteCommit.Spec.Htlcs) != 0
	})

	return !pending
}

// NothingAtStake reports whether losing this channel state would cost us
// nothing: no commitment was ever updated and we hold no balance.
func (c *Commitments) NothingAtStake() bool {
	return c.LocalCommit.Index == 0 &&
		c.LocalCommit.Spec.ToLocal == 0 &&
		c.RemoteCommit.Index == 0 &&
		c.RemoteCommit.Spec.ToRemote == 0 &&
		len(c.LocalCommit.Spec.Htlcs) == 0 &&
		len(c.RemoteCommit.Spec.Htlcs) == 0
}

// AboveReserve reports whether the remote's view of our balance clears the
// reserve they demand of us.
func (c *Commitments) AboveReserve() bool {
	remoteSpec := c.RemoteCommit.Spec
	c.RemoteNextCommitInfo.WhenLeft(func(w WaitingForRevocation) {
		remoteSpec = w.NextRemoteCommit.Spec
	})

	return remoteSpec.ToRemote.ToSatoshis() > c.RemoteParams.ChannelReserve
}

// IsZeroReserve reports whether the channel waives reserves.
func (c *Commitments) IsZeroReserve() bool {
	return c.ChannelVersion.IsZeroReserve()
}

// tweaklessCommit reports whether to-remote keys are static.
func (c *Commitments) tweaklessCommit() bool {
	return c.ChannelVersion.HasStaticRemoteKey()
}

// obscureFactor returns the commitment-number obscuring factor of the
// channel.
func (c *Commitments) obscureFactor() uint64 {
	funderBase := c.LocalParams.Basepoints.PaymentBasePoint
	fundeeBase := c.RemoteParams.Basepoints.PaymentBasePoint
	if !c.LocalParams.IsFunder {
		funderBase, fundeeBase = fundeeBase, funderBase
	}

	return committx.ObscureFactor(funderBase, fundeeBase)
}

// SendAdd admits a locally offered HTLC, assigning it the next local id.
// Validation follows the flow-control limits the remote announced.
func (c Commitments) SendAdd(cmd CmdAddHtlc,
	blockHeight uint32) (Commitments, *lnwire.UpdateAddHTLC, error) {

	if cmd.Expiry <= blockHeight+MinCltvExpiryDelta {
		return c, nil, ExpiryTooSmallError{
			Expiry:      cmd.Expiry,
			BlockHeight: blockHeight,
		}
	}
	if cmd.Expiry > blockHeight+MaxCltvExpiryDelta {
		return c, nil, ExpiryTooBigError{
			Expiry:      cmd.Expiry,
			BlockHeight: blockHeight,
		}
	}
	if cmd.Amount < c.RemoteParams.HtlcMinimum {
		return c, nil, HtlcValueTooSmallError{
			Amount:  cmd.Amount,
			Minimum: c.RemoteParams.HtlcMinimum,
		}
	}

	add := &lnwire.UpdateAddHTLC{
		ChanID:      c.ChannelID,
		ID:          c.LocalNextHtlcID,
		Amount:      cmd.Amount,
		PaymentHash: cmd.PaymentHash,
		Expiry:      cmd.Expiry,
		OnionBlob:   cmd.OnionBlob,
	}

	c1 := c
	c1.LocalNextHtlcID++
	c1.LocalChanges.Proposed = append(
		append([]lnwire.Message(nil), c.LocalChanges.Proposed...),
		add,
	)
	c1.OriginChannels = copyOrigins(c.OriginChannels)
	c1.OriginChannels[add.ID] = cmd.Origin

	// Project the remote commitment that would result and enforce the
	// remote's limits against it. Our offers appear as incoming there.
	spec, err := c1.RemoteCommit.Spec.Reduce(
		c1.RemoteChanges.Acked, c1.LocalChanges.Proposed,
	)
	if err != nil {
		return c, nil, err
	}

	inFlight := spec.TotalOffered(true)
	if inFlight > c.RemoteParams.MaxHtlcValueInFlight {
		return c, nil, HtlcValueTooHighInFlightError{
			InFlight: inFlight,
			Maximum:  c.RemoteParams.MaxHtlcValueInFlight,
		}
	}
	if len(spec.HtlcsByDirection(true)) > int(c.RemoteParams.MaxAcceptedHtlcs) {
		return c, nil, TooManyAcceptedHtlcsError{
			Maximum: c.RemoteParams.MaxAcceptedHtlcs,
		}
	}

	// The funder must be able to cover the commitment fee on top of the
	// reserve.
	var fees btcutil.Amount
	if c.LocalParams.IsFunder {
		fees = spec.CommitFee(c.RemoteParams.DustLimit)
	}
	missing := spec.ToRemote.ToSatoshis() -
		c.RemoteParams.ChannelReserve - fees
	if missing < 0 {
		return c, nil, InsufficientFundsError{
			Amount:  cmd.Amount,
			Missing: -missing,
		}
	}

	return c1, add, nil
}

// ReceiveAdd admits an HTLC offered by the remote, enforcing our announced
// limits.
func (c Commitments) ReceiveAdd(add *lnwire.UpdateAddHTLC) (Commitments, error) {
	if add.ID != c.RemoteNextHtlcID {
		return c, UnknownHtlcIDError{ID: add.ID}
	}
	if add.Amount < c.LocalParams.HtlcMinimum {
		return c, HtlcValueTooSmallError{
			Amount:  add.Amount,
			Minimum: c.LocalParams.HtlcMinimum,
		}
	}

	c1 := c
	c1.RemoteNextHtlcID++
	c1.RemoteChanges.Proposed = append(
		append([]lnwire.Message(nil), c.RemoteChanges.Proposed...),
		add,
	)

	// Project our next local commitment; their offers appear as
	// incoming HTLCs there.
	spec, err := c1.LocalCommit.Spec.Reduce(
		c1.LocalChanges.Acked, c1.RemoteChanges.Proposed,
	)
	if err != nil {
		return c, err
	}

	inFlight := spec.TotalOffered(true)
	if inFlight > c.LocalParams.MaxHtlcValueInFlight {
		return c, HtlcValueTooHighInFlightError{
			InFlight: inFlight,
			Maximum:  c.LocalParams.MaxHtlcValueInFlight,
		}
	}
	if len(spec.HtlcsByDirection(true)) > int(c.LocalParams.MaxAcceptedHtlcs) {
		return c, TooManyAcceptedHtlcsError{
			Maximum: c.LocalParams.MaxAcceptedHtlcs,
		}
	}

	var fees btcutil.Amount
	if !c.LocalParams.IsFunder {
		fees = spec.CommitFee(c.LocalParams.DustLimit)
	}
	missing := spec.ToRemote.ToSatoshis() -
		c.LocalParams.ChannelReserve - fees
	if missing < 0 {
		return c, InsufficientFundsError{
			Amount:  add.Amount,
			Missing: -missing,
		}
	}

	return c1, nil
}

// pendingSettlement reports whether a settlement for the HTLC with the
// given id is already among the given changes.
func pendingSettlement(changes []lnwire.Message, id uint64) bool {
	for _, msg := range changes {
		switch m := msg.(type) {
		case *lnwire.UpdateFulfillHTLC:
			if m.ID == id {
				return true
			}
		case *lnwire.UpdateFailHTLC:
			if m.ID == id {
				return true
			}
		case *lnwire.UpdateFailMalformedHTLC:
			if m.ID == id {
				return true
			}
		}
	}

	return false
}

// SendFulfill settles an incoming HTLC with its preimage.
func (c Commitments) SendFulfill(cmd CmdFulfillHtlc) (Commitments,
	*lnwire.UpdateFulfillHTLC, error) {

	htlc, ok := c.LocalCommit.Spec.findHtlc(true, cmd.ID)
	if !ok {
		return c, nil, UnknownHtlcIDError{ID: cmd.ID}
	}
	if pendingSettlement(c.LocalChanges.Proposed, cmd.ID) {
		return c, nil, UnknownHtlcIDError{ID: cmd.ID}
	}

	if sha256.Sum256(cmd.Preimage[:]) != htlc.Add.PaymentHash {
		return c, nil, ErrInvalidHtlcPreimage
	}

	fulfill := &lnwire.UpdateFulfillHTLC{
		ChanID:          c.ChannelID,
		ID:              cmd.ID,
		PaymentPreimage: cmd.Preimage,
	}

	c1 := c
	c1.LocalChanges.Proposed = append(
		append([]lnwire.Message(nil), c.LocalChanges.Proposed...),
		fulfill,
	)

	return c1, fulfill, nil
}

// ReceiveFulfill accepts the remote's settlement of one of our outgoing
// HTLCs and returns its origin for upstream relay.
func (c Commitments) ReceiveFulfill(msg *lnwire.UpdateFulfillHTLC) (
	Commitments, Origin, error) {

	htlc, ok := c.LocalCommit.Spec.findHtlc(false, msg.ID)
	if !ok {
		return c, nil, UnknownHtlcIDError{ID: msg.ID}
	}

	if sha256.Sum256(msg.PaymentPreimage[:]) != htlc.Add.PaymentHash {
		return c, nil, ErrInvalidHtlcPreimage
	}

	origin, ok := c.OriginChannels[msg.ID]
	if !ok {
		return c, nil, UnknownHtlcIDError{ID: msg.ID}
	}

	c1 := c
	c1.RemoteChanges.Proposed = append(
		append([]lnwire.Message(nil), c.RemoteChanges.Proposed...),
		msg,
	)

	return c1, origin, nil
}

// SendFail fails an incoming HTLC. The reason must already be encrypted by
// the layer holding the onion shared secret.
func (c Commitments) SendFail(cmd CmdFailHtlc) (Commitments,
	*lnwire.UpdateFailHTLC, error) {

	if _, ok := c.LocalCommit.Spec.findHtlc(true, cmd.ID); !ok {
		return c, nil, UnknownHtlcIDError{ID: cmd.ID}
	}
	if pendingSettlement(c.LocalChanges.Proposed, cmd.ID) {
		return c, nil, UnknownHtlcIDError{ID: cmd.ID}
	}

	fail := &lnwire.UpdateFailHTLC{
		ChanID: c.ChannelID,
		ID:     cmd.ID,
		Reason: cmd.Reason,
	}

	c1 := c
	c1.LocalChanges.Proposed = append(
		append([]lnwire.Message(nil), c.LocalChanges.Proposed...),
		fail,
	)

	return c1, fail, nil
}

// SendFailMalformed fails an incoming HTLC whose onion was unreadable.
func (c Commitments) SendFailMalformed(cmd CmdFailMalformedHtlc) (Commitments,
	*lnwire.UpdateFailMalformedHTLC, error) {

	if cmd.FailureCode&lnwire.FlagBadOnion == 0 {
		return c, nil, UnknownHtlcIDError{ID: cmd.ID}
	}
	if _, ok := c.LocalCommit.Spec.findHtlc(true, cmd.ID); !ok {
		return c, nil, UnknownHtlcIDError{ID: cmd.ID}
	}
	if pendingSettlement(c.LocalChanges.Proposed, cmd.ID) {
		return c, nil, UnknownHtlcIDError{ID: cmd.ID}
	}

	fail := &lnwire.UpdateFailMalformedHTLC{
		ChanID:       c.ChannelID,
		ID:           cmd.ID,
		ShaOnionBlob: cmd.ShaOnionBlob,
		FailureCode:  cmd.FailureCode,
	}

	c1 := c
	c1.LocalChanges.Proposed = append(
		append([]lnwire.Message(nil), c.LocalChanges.Proposed...),
		fail,
	)

	return c1, fail, nil
}

// ReceiveFail accepts the remote's failure of one of our outgoing HTLCs.
func (c Commitments) ReceiveFail(msg *lnwire.UpdateFailHTLC) (Commitments,
	Origin, error) {

	if _, ok := c.LocalCommit.Spec.findHtlc(false, msg.ID); !ok {
		return c, nil, UnknownHtlcIDError{ID: msg.ID}
	}

	origin, ok := c.OriginChannels[msg.ID]
	if !ok {
		return c, nil, UnknownHtlcIDError{ID: msg.ID}
	}

	c1 := c
	c1.RemoteChanges.Proposed = append(
		append([]lnwire.Message(nil), c.RemoteChanges.Proposed...),
		msg,
	)

	return c1, origin, nil
}

// ReceiveFailMalformed accepts the remote's malformed-onion failure of one
// of our outgoing HTLCs.
func (c Commitments) ReceiveFailMalformed(msg *lnwire.UpdateFailMalformedHTLC) (
	Commitments, Origin, error) {

	// A node must not signal that it itself couldn't parse an onion it
	// created; the BadOnion flag is mandatory.
	if msg.FailureCode&lnwire.FlagBadOnion == 0 {
		return c, nil, UnknownHtlcIDError{ID: msg.ID}
	}
	if _, ok := c.LocalCommit.Spec.findHtlc(false, msg.ID); !ok {
		return c, nil, UnknownHtlcIDError{ID: msg.ID}
	}

	origin, ok := c.OriginChannels[msg.ID]
	if !ok {
		return c, nil, UnknownHtlcIDError{ID: msg.ID}
	}

	c1 := c
	c1.RemoteChanges.Proposed = append(
		append([]lnwire.Message(nil), c.RemoteChanges.Proposed...),
		msg,
	)

	return c1, origin, nil
}

// SendFee updates the commitment fee rate. Only the funder pays commitment
// fees, so only the funder may send it.
func (c Commitments) SendFee(cmd CmdUpdateFee) (Commitments,
	*lnwire.UpdateFee, error) {

	if !c.LocalParams.IsFunder {
		return c, nil, ErrNonFunderCannotSendUpdateFee
	}

	update := &lnwire.UpdateFee{
		ChanID:   c.ChannelID,
		FeePerKw: uint32(cmd.FeeratePerKw),
	}

	// A fee update replaces any not-yet-signed fee update; only the
	// latest proposal matters.
	c1 := c
	proposed := make([]lnwire.Message, 0, len(c.LocalChanges.Proposed)+1)
	for _, msg := range c.LocalChanges.Proposed {
		if _, ok := msg.(*lnwire.UpdateFee); ok {
			continue
		}
		proposed = append(proposed, msg)
	}
	c1.LocalChanges.Proposed = append(proposed, update)

	// The funder must still afford the new fee on top of the reserve.
	spec, err := c1.RemoteCommit.Spec.Reduce(
		c1.RemoteChanges.Acked, c1.LocalChanges.Proposed,
	)
	if err != nil {
		return c, nil, err
	}
	missing := spec.ToRemote.ToSatoshis() - c.RemoteParams.ChannelReserve -
		spec.CommitFee(c.RemoteParams.DustLimit)
	if missing < 0 {
		return c, nil, CannotAffordFeesError{
			MissingSatoshis: -missing,
			Reserve:         c.RemoteParams.ChannelReserve,
			Fees:            spec.CommitFee(c.RemoteParams.DustLimit),
		}
	}

	return c1, update, nil
}

// ReceiveFee accepts a fee update from the remote funder, guarding against
// fee rates diverging from our own view of the chain.
func (c Commitments) ReceiveFee(msg *lnwire.UpdateFee,
	localFeerate chainfee.SatPerKWeight,
	maxMismatchRatio float64) (Commitments, error) {

	if c.LocalParams.IsFunder {
		// Only the funder pays fees; the fundee proposing a rate is a
		// protocol violation.
		return c, ErrNonFunderCannotSendUpdateFee
	}

	remoteFeerate := chainfee.SatPerKWeight(msg.FeePerKw)
	if remoteFeerate < chainfee.FeePerKwFloor {
		return c, FeerateTooDifferentError{
			CommitFeerate: remoteFeerate,
			LocalFeerate:  localFeerate,
		}
	}
	if chainfee.IsMismatchTooHigh(remoteFeerate, localFeerate,
		maxMismatchRatio) {

		return c, FeerateTooDifferentError{
			CommitFeerate: remoteFeerate,
			LocalFeerate:  localFeerate,
		}
	}

	c1 := c
	proposed := make([]lnwire.Message, 0, len(c.RemoteChanges.Proposed)+1)
	for _, m := range c.RemoteChanges.Proposed {
		if _, ok := m.(*lnwire.UpdateFee); ok {
			continue
		}
		proposed = append(proposed, m)
	}
	c1.RemoteChanges.Proposed = append(proposed, msg)

	return c1, nil
}

// remoteCommitKeys derives the key ring of a remote commitment at the given
// per-commitment point.
func (c *Commitments) remoteCommitKeys(
	remotePoint *btcec.PublicKey) *keychain.CommitmentKeyRing {

	return keychain.DeriveCommitmentKeys(
		remotePoint, &c.RemoteParams.Basepoints,
		&c.LocalParams.Basepoints, c.tweaklessCommit(),
	)
}

// localCommitKeys derives the key ring of a local commitment at the given
// per-commitment point.
func (c *Commitments) localCommitKeys(
	localPoint *btcec.PublicKey) *keychain.CommitmentKeyRing {

	return keychain.DeriveCommitmentKeys(
		localPoint, &c.LocalParams.Basepoints,
		&c.RemoteParams.Basepoints, c.tweaklessCommit(),
	)
}

// buildRemoteCommit constructs the remote commitment transaction for the
// given spec and per-commitment point.
func (c *Commitments) buildRemoteCommit(index uint64, spec CommitmentSpec,
	remotePoint *btcec.PublicKey) (*committx.CommitTx, error) {

	keyRing := c.remoteCommitKeys(remotePoint)

	toLocal := spec.ToLocal.ToSatoshis()
	toRemote := spec.ToRemote.ToSatoshis()
	fee := spec.CommitFee(c.RemoteParams.DustLimit)
	if c.LocalParams.IsFunder {
		toRemote -= fee
	} else {
		toLocal -= fee
	}

	return committx.CreateCommitTx(
		c.CommitInput.OutPoint, keyRing,
		uint32(c.LocalParams.ToSelfDelay), toLocal, toRemote,
		c.RemoteParams.DustLimit,
		spec.TrimmedHtlcs(c.RemoteParams.DustLimit), index,
		c.obscureFactor(),
	)
}

// buildLocalCommit constructs our commitment transaction for the given spec
// and per-commitment point.
func (c *Commitments) buildLocalCommit(index uint64, spec CommitmentSpec,
	localPoint *btcec.PublicKey) (*committx.CommitTx, error) {

	keyRing := c.localCommitKeys(localPoint)

	toLocal := spec.ToLocal.ToSatoshis()
	toRemote := spec.ToRemote.ToSatoshis()
	fee := spec.CommitFee(c.LocalParams.DustLimit)
	if c.LocalParams.IsFunder {
		toLocal -= fee
	} else {
		toRemote -= fee
	}

	return committx.CreateCommitTx(
		c.CommitInput.OutPoint, keyRing,
		uint32(c.RemoteParams.ToSelfDelay), toLocal, toRemote,
		c.LocalParams.DustLimit,
		spec.TrimmedHtlcs(c.LocalParams.DustLimit), index,
		c.obscureFactor(),
	)
}

// signCommitTx produces our funding signature for a commitment transaction.
func (c *Commitments) signCommitTx(signer keychain.Signer,
	tx *wire.MsgTx) (lnwire.Sig, error) {

	signDesc := &keychain.SignDescriptor{
		KeyDesc: keychain.KeyDescriptor{
			KeyLocator: c.LocalParams.FundingKeyLoc,
			PubKey:     c.LocalParams.Basepoints.FundingKey,
		},
		WitnessScript: c.CommitInput.WitnessScript,
		Output:        c.CommitInput.TxOut,
		HashType:      txscript.SigHashAll,
		InputIndex:    0,
	}

	rawSig, err := signer.SignOutputRaw(tx, signDesc)
	if err != nil {
		return lnwire.Sig{}, err
	}

	return lnwire.NewSigFromSignature(rawSig)
}

// signHtlcTx produces our signature for a second-level HTLC transaction
// spending the given commitment output.
func (c *Commitments) signHtlcTx(signer keychain.Signer, tx *wire.MsgTx,
	htlc committx.HtlcOutput,
	commitPoint *btcec.PublicKey) (lnwire.Sig, error) {

	tweak := keychain.SingleTweakBytes(
		commitPoint, c.LocalParams.Basepoints.HtlcBasePoint,
	)
	signDesc := &keychain.SignDescriptor{
		KeyDesc: keychain.KeyDescriptor{
			KeyLocator: keychain.KeyLocator{
				Family: keychain.KeyFamilyHtlcBase,
			},
			PubKey: c.LocalParams.Basepoints.HtlcBasePoint,
		},
		SingleTweak:   tweak,
		WitnessScript: htlc.WitnessScript,
		Output: &wire.TxOut{
			Value:    int64(htlc.Amount.ToSatoshis()),
			PkScript: htlc.PkScript,
		},
		HashType:   txscript.SigHashAll,
		InputIndex: 0,
	}

	rawSig, err := signer.SignOutputRaw(tx, signDesc)
	if err != nil {
		return lnwire.Sig{}, err
	}

	return lnwire.NewSigFromSignature(rawSig)
}

// buildHtlcTx constructs the second-level transaction of one untrimmed HTLC
// output from the commitment holder's perspective.
func buildHtlcTx(commitTxid chainhash.Hash, htlc committx.HtlcOutput,
	keyRing *keychain.CommitmentKeyRing, csvDelay uint32,
	feePerKw chainfee.SatPerKWeight) (*committx.SecondLevelTx, error) {

	outpoint := wire.OutPoint{
		Hash:  commitTxid,
		Index: uint32(htlc.OutputIndex),
	}

	if htlc.Incoming {
		return committx.CreateHtlcSuccessTx(
			outpoint, htlc.Amount.ToSatoshis(), csvDelay,
			feePerKw, keyRing.RevocationKey, keyRing.ToLocalKey,
		)
	}

	return committx.CreateHtlcTimeoutTx(
		outpoint, htlc.Amount.ToSatoshis(), htlc.Expiry, csvDelay,
		feePerKw, keyRing.RevocationKey, keyRing.ToLocalKey,
	)
}

// SendCommit signs all pending changes into the remote's next commitment,
// producing the commit_sig to send and the HTLC records that must be
// durably stored before it.
func (c Commitments) SendCommit(signer keychain.Signer) (Commitments,
	*lnwire.CommitSig, []HtlcInfo, error) {

	if !c.localHasChanges() {
		return c, nil, nil, ErrCannotSignWithoutChanges
	}

	var remoteNextPoint *btcec.PublicKey
	c.RemoteNextCommitInfo.WhenRight(func(p *btcec.PublicKey) {
		remoteNextPoint = p
	})
	if remoteNextPoint == nil {
		return c, nil, nil, ErrCannotSignBeforeRevocation
	}

	spec, err := c.RemoteCommit.Spec.Reduce(
		c.RemoteChanges.Acked, c.LocalChanges.Proposed,
	)
	if err != nil {
		return c, nil, nil, err
	}

	nextIndex := c.RemoteCommit.Index + 1
	built, err := c.buildRemoteCommit(nextIndex, spec, remoteNextPoint)
	if err != nil {
		return c, nil, nil, err
	}

	commitSig, err := c.signCommitTx(signer, built.Tx)
	if err != nil {
		return c, nil, nil, err
	}

	// Sign the second-level transaction of every untrimmed HTLC on
	// their commitment, in output order.
	keyRing := c.remoteCommitKeys(remoteNextPoint)
	htlcSigs := make([]lnwire.Sig, 0, len(built.Htlcs))
	htlcInfos := make([]HtlcInfo, 0, len(built.Htlcs))
	commitTxid := built.Tx.TxHash()
	for _, htlc := range built.Htlcs {
		htlcTx, err := buildHtlcTx(
			commitTxid, htlc, keyRing,
			uint32(c.LocalParams.ToSelfDelay), spec.FeePerKw,
		)
		if err != nil {
			return c, nil, nil, err
		}

		sig, err := c.signHtlcTx(
			signer, htlcTx.Tx, htlc, remoteNextPoint,
		)
		if err != nil {
			return c, nil, nil, err
		}
		htlcSigs = append(htlcSigs, sig)

		htlcInfos = append(htlcInfos, HtlcInfo{
			ChannelID:        c.ChannelID,
			CommitmentNumber: nextIndex,
			PaymentHash:      htlc.PaymentHash,
			CltvExpiry:       htlc.Expiry,
		})
	}

	sig := &lnwire.CommitSig{
		ChanID:    c.ChannelID,
		CommitSig: commitSig,
		HtlcSigs:  htlcSigs,
	}

	c1 := c
	c1.LocalChanges = LocalChanges{
		Proposed: nil,
		Signed: append(
			append([]lnwire.Message(nil), c.LocalChanges.Signed...),
			c.LocalChanges.Proposed...,
		),
		Acked: c.LocalChanges.Acked,
	}
	c1.RemoteChanges = RemoteChanges{
		Proposed: c.RemoteChanges.Proposed,
		Acked:    nil,
		Signed: append(
			append([]lnwire.Message(nil), c.RemoteChanges.Signed...),
			c.RemoteChanges.Acked...,
		),
	}
	c1.RemoteNextCommitInfo = fn.NewLeft[WaitingForRevocation, *btcec.PublicKey](
		WaitingForRevocation{
			NextRemoteCommit: RemoteCommit{
				Index:                    nextIndex,
				Spec:                     spec,
				Txid:                     commitTxid,
				RemotePerCommitmentPoint: remoteNextPoint,
			},
			Sent:                      sig,
			SentAfterLocalCommitIndex: c.LocalCommit.Index,
		},
	)

	return c1, sig, htlcInfos, nil
}

// ReceiveCommit validates a commit_sig against the local commitment it
// implies, stores the resulting publishable transactions, and produces the
// revoke_and_ack that revokes our previous commitment.
func (c Commitments) ReceiveCommit(msg *lnwire.CommitSig,
	signer keychain.Signer,
	producer keychain.RevocationProducer) (Commitments,
	*lnwire.RevokeAndAck, error) {

	if !c.remoteHasChanges() {
		return c, nil, ErrCannotSignWithoutChanges
	}

	spec, err := c.LocalCommit.Spec.Reduce(
		c.LocalChanges.Acked, c.RemoteChanges.Proposed,
	)
	if err != nil {
		return c, nil, err
	}

	nextIndex := c.LocalCommit.Index + 1
	localPoint, err := producer.PerCommitmentPoint(nextIndex)
	if err != nil {
		return c, nil, err
	}

	built, err := c.buildLocalCommit(nextIndex, spec, localPoint)
	if err != nil {
		return c, nil, err
	}

	// Their signature must cover the commitment we just derived.
	err = committx.VerifySig(
		built.Tx, 0, c.CommitInput.WitnessScript,
		c.CommitInput.TxOut, c.RemoteParams.Basepoints.FundingKey,
		msg.CommitSig,
	)
	if err != nil {
		return c, nil, ErrInvalidCommitmentSignature
	}

	if len(msg.HtlcSigs) != len(built.Htlcs) {
		return c, nil, HtlcSigCountMismatchError{
			Expected: len(built.Htlcs),
			Actual:   len(msg.HtlcSigs),
		}
	}

	// Validate their signature on each second-level transaction and
	// counter-sign it.
	keyRing := c.localCommitKeys(localPoint)
	commitTxid := built.Tx.TxHash()
	htlcTxsAndSigs := make([]HtlcTxAndSigs, 0, len(built.Htlcs))
	for i, htlc := range built.Htlcs {
		htlcTx, err := buildHtlcTx(
			commitTxid, htlc, keyRing,
			uint32(c.RemoteParams.ToSelfDelay), spec.FeePerKw,
		)
		if err != nil {
			return c, nil, err
		}

		spentOutput := &wire.TxOut{
			Value:    int64(htlc.Amount.ToSatoshis()),
			PkScript: htlc.PkScript,
		}
		err = committx.VerifySig(
			htlcTx.Tx, 0, htlc.WitnessScript, spentOutput,
			keyRing.RemoteHtlcKey, msg.HtlcSigs[i],
		)
		if err != nil {
			return c, nil, ErrInvalidHtlcSignature
		}

		localSig, err := c.signHtlcTx(
			signer, htlcTx.Tx, htlc, localPoint,
		)
		if err != nil {
			return c, nil, err
		}

		htlcTxsAndSigs = append(htlcTxsAndSigs, HtlcTxAndSigs{
			Htlc:         htlc,
			Tx:           htlcTx.Tx,
			OutputScript: htlcTx.OutputScript,
			LocalSig:     localSig,
			RemoteSig:    msg.HtlcSigs[i],
		})
	}

	// Complete the commitment transaction with both funding signatures
	// so it is publishable as-is.
	localCommitSig, err := c.signCommitTx(signer, built.Tx)
	if err != nil {
		return c, nil, err
	}
	signedCommitTx := built.Tx.Copy()
	signedCommitTx.TxIn[0].Witness = committx.SpendMultiSig(
		c.CommitInput.WitnessScript,
		c.LocalParams.Basepoints.FundingKey.SerializeCompressed(),
		append(sigToWire(localCommitSig), byte(txscript.SigHashAll)),
		c.RemoteParams.Basepoints.FundingKey.SerializeCompressed(),
		append(sigToWire(msg.CommitSig), byte(txscript.SigHashAll)),
	)

	// Revoke our previous commitment and commit to the point two ahead.
	prevSecret, err := producer.PerCommitmentSecret(c.LocalCommit.Index)
	if err != nil {
		return c, nil, err
	}
	nextNextPoint, err := producer.PerCommitmentPoint(nextIndex + 1)
	if err != nil {
		return c, nil, err
	}

	revocation := &lnwire.RevokeAndAck{
		ChanID:            c.ChannelID,
		Revocation:        prevSecret,
		NextRevocationKey: nextNextPoint,
	}

	c1 := c
	c1.LocalCommit = LocalCommit{
		Index: nextIndex,
		Spec:  spec,
		PublishableTxs: PublishableTxs{
			CommitTx:       signedCommitTx,
			HtlcTxsAndSigs: htlcTxsAndSigs,
		},
	}
	c1.RemoteChanges = RemoteChanges{
		Proposed: nil,
		Acked: append(
			append([]lnwire.Message(nil), c.RemoteChanges.Acked...),
			c.RemoteChanges.Proposed...,
		),
		Signed: c.RemoteChanges.Signed,
	}
	c1.LocalChanges = LocalChanges{
		Proposed: c.LocalChanges.Proposed,
		Signed:   c.LocalChanges.Signed,
		Acked:    nil,
	}

	return c1, revocation, nil
}

// ReceiveRevocation verifies the revealed per-commitment secret, advances
// the remote commitment, and returns the settlement actions for updates
// that just became irrevocable.
func (c Commitments) ReceiveRevocation(msg *lnwire.RevokeAndAck) (Commitments,
	[]Action, error) {

	var waiting *WaitingForRevocation
	c.RemoteNextCommitInfo.WhenLeft(func(w WaitingForRevocation) {
		waiting = &w
	})
	if waiting == nil {
		return c, nil, ErrUnexpectedRevocation
	}

	// The revealed secret must generate the point their revoked
	// commitment was derived from.
	_, revokedPoint := btcec.PrivKeyFromBytes(msg.Revocation[:])
	expected := c.RemoteCommit.RemotePerCommitmentPoint
	if !bytes.Equal(
		revokedPoint.SerializeCompressed(),
		expected.SerializeCompressed(),
	) {
		return c, nil, ErrInvalidRevocation
	}

	secrets := c.RemotePerCommitmentSecrets.Clone()
	if err := secrets.AddNextSecret(chainhash.Hash(msg.Revocation)); err != nil {
		return c, nil, ErrInvalidRevocation
	}

	// Updates the remote signed into its own new commitment are now
	// irrevocable: relay their consequences.
	var actions []Action
	origins := copyOrigins(c.OriginChannels)
	for _, change := range c.RemoteChanges.Signed {
		switch m := change.(type) {
		case *lnwire.UpdateAddHTLC:
			actions = append(actions, ProcessAdd{Add: m})

		case *lnwire.UpdateFulfillHTLC:
			if origin, ok := origins[m.ID]; ok {
				actions = append(actions, ProcessFulfill{
					Fulfill: m,
					Origin:  origin,
				})
				delete(origins, m.ID)
			}

		case *lnwire.UpdateFailHTLC:
			if origin, ok := origins[m.ID]; ok {
				actions = append(actions, ProcessFail{
					Fail:   m,
					Origin: origin,
				})
				delete(origins, m.ID)
			}

		case *lnwire.UpdateFailMalformedHTLC:
			if origin, ok := origins[m.ID]; ok {
				actions = append(actions, ProcessFailMalformed{
					Fail:   m,
					Origin: origin,
				})
				delete(origins, m.ID)
			}
		}
	}

	c1 := c
	c1.LocalChanges = LocalChanges{
		Proposed: c.LocalChanges.Proposed,
		Signed:   nil,
		Acked: append(
			append([]lnwire.Message(nil), c.LocalChanges.Acked...),
			c.LocalChanges.Signed...,
		),
	}
	c1.RemoteChanges = RemoteChanges{
		Proposed: c.RemoteChanges.Proposed,
		Acked:    c.RemoteChanges.Acked,
		Signed:   nil,
	}
	c1.RemoteCommit = waiting.NextRemoteCommit
	c1.RemoteNextCommitInfo = fn.NewRight[WaitingForRevocation](
		msg.NextRevocationKey,
	)
	c1.RemotePerCommitmentSecrets = secrets
	c1.OriginChannels = origins

	return c1, actions, nil
}

// newLeft wraps an in-flight signature into RemoteNextCommitInfo.
func newLeft(w WaitingForRevocation) RemoteNextCommitInfo {
	return fn.NewLeft[WaitingForRevocation, *btcec.PublicKey](w)
}

// copyOrigins shallow-copies the origin map.
func copyOrigins(in map[uint64]Origin) map[uint64]Origin {
	out := make(map[uint64]Origin, len(in))
	for id, origin := range in {
		out[id] = origin
	}

	return out
}

// sigToWire returns the DER encoding of a compact wire signature, as used
// within witnesses.
func sigToWire(sig lnwire.Sig) []byte {
	signature, err := sig.ToSignature()
	if err != nil {
		return nil
	}

	return signature.Serialize()
}

package channel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"

	"github.com/lnforge/channeld/chainfee"
	"github.com/lnforge/channeld/keychain"
	"github.com/lnforge/channeld/lnwire"
	"github.com/lnforge/channeld/shachain"
)

// btcAmount narrows a persisted uint64 back to a satoshi amount.
func btcAmount(v uint64) btcutil.Amount {
	return btcutil.Amount(v)
}

// keyFamily narrows a persisted uint32 back to a key family.
func keyFamily(v uint32) keychain.KeyFamily {
	return keychain.KeyFamily(v)
}

// The backup payload is a small TLV envelope around a versioned binary
// serialization of the channel state. The envelope leaves room to evolve
// the format without breaking old blobs held by peers.
const (
	backupVersion uint8 = 0

	backupVersionType tlv.Type = 0
	backupStateType   tlv.Type = 1
)

// State discriminators within a backup payload.
const (
	backupStateNormal uint8 = iota
	backupStateShuttingDown
	backupStateWaitFundingConfirmed
	backupStateWaitFundingLocked
)

var errUnknownBackupState = errors.New("unknown state in channel backup")

type codecWriter struct {
	buf *bytes.Buffer
}

func (w *codecWriter) u8(v uint8)   { w.buf.WriteByte(v) }
func (w *codecWriter) bool(v bool)  { w.u8(boolByte(v)) }
func (w *codecWriter) u16(v uint16) { _ = binary.Write(w.buf, binary.BigEndian, v) }
func (w *codecWriter) u32(v uint32) { _ = binary.Write(w.buf, binary.BigEndian, v) }
func (w *codecWriter) u64(v uint64) { _ = binary.Write(w.buf, binary.BigEndian, v) }

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

func (w *codecWriter) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf.Write(b)
}

func (w *codecWriter) hash(h [32]byte) {
	w.buf.Write(h[:])
}

func (w *codecWriter) pubKey(k *btcec.PublicKey) {
	if k == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.buf.Write(k.SerializeCompressed())
}

func (w *codecWriter) tx(tx *wire.MsgTx) error {
	if tx == nil {
		w.u8(0)
		return nil
	}
	w.u8(1)

	var txBuf bytes.Buffer
	if err := tx.Serialize(&txBuf); err != nil {
		return err
	}
	w.bytes(txBuf.Bytes())

	return nil
}

type codecReader struct {
	r *bytes.Reader
}

func (r *codecReader) u8() (uint8, error) {
	return r.r.ReadByte()
}

func (r *codecReader) bool() (bool, error) {
	b, err := r.u8()
	return b == 1, err
}

func (r *codecReader) u16() (uint16, error) {
	var v uint16
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

func (r *codecReader) u32() (uint32, error) {
	var v uint32
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

func (r *codecReader) u64() (uint64, error) {
	var v uint64
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

func (r *codecReader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if int(n) > r.r.Len() {
		return nil, fmt.Errorf("corrupt length prefix: %v", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, err
	}

	return b, nil
}

func (r *codecReader) hash() ([32]byte, error) {
	var h [32]byte
	_, err := io.ReadFull(r.r, h[:])
	return h, err
}

func (r *codecReader) pubKey() (*btcec.PublicKey, error) {
	present, err := r.u8()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}

	var raw [33]byte
	if _, err := io.ReadFull(r.r, raw[:]); err != nil {
		return nil, err
	}

	return btcec.ParsePubKey(raw[:])
}

func (r *codecReader) tx() (*wire.MsgTx, error) {
	present, err := r.u8()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}

	raw, err := r.bytes()
	if err != nil {
		return nil, err
	}
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	return tx, nil
}

// Update message discriminators within change lists.
const (
	updateTypeAdd uint8 = iota
	updateTypeFulfill
	updateTypeFail
	updateTypeFailMalformed
	updateTypeFee
)

func (w *codecWriter) updateMsg(msg lnwire.Message) error {
	switch m := msg.(type) {
	case *lnwire.UpdateAddHTLC:
		w.u8(updateTypeAdd)
		w.hash(m.ChanID)
		w.u64(m.ID)
		w.u64(uint64(m.Amount))
		w.hash(m.PaymentHash)
		w.u32(m.Expiry)
		w.buf.Write(m.OnionBlob[:])

	case *lnwire.UpdateFulfillHTLC:
		w.u8(updateTypeFulfill)
		w.hash(m.ChanID)
		w.u64(m.ID)
		w.hash(m.PaymentPreimage)

	case *lnwire.UpdateFailHTLC:
		w.u8(updateTypeFail)
		w.hash(m.ChanID)
		w.u64(m.ID)
		w.bytes(m.Reason)

	case *lnwire.UpdateFailMalformedHTLC:
		w.u8(updateTypeFailMalformed)
		w.hash(m.ChanID)
		w.u64(m.ID)
		w.hash(m.ShaOnionBlob)
		w.u16(uint16(m.FailureCode))

	case *lnwire.UpdateFee:
		w.u8(updateTypeFee)
		w.hash(m.ChanID)
		w.u32(m.FeePerKw)

	default:
		return fmt.Errorf("unencodable update %T", msg)
	}

	return nil
}

func (r *codecReader) updateMsg() (lnwire.Message, error) {
	kind, err := r.u8()
	if err != nil {
		return nil, err
	}

	switch kind {
	case updateTypeAdd:
		m := &lnwire.UpdateAddHTLC{}
		if m.ChanID, err = r.hash(); err != nil {
			return nil, err
		}
		if m.ID, err = r.u64(); err != nil {
			return nil, err
		}
		amt, err := r.u64()
		if err != nil {
			return nil, err
		}
		m.Amount = lnwire.MilliSatoshi(amt)
		if m.PaymentHash, err = r.hash(); err != nil {
			return nil, err
		}
		if m.Expiry, err = r.u32(); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r.r, m.OnionBlob[:]); err != nil {
			return nil, err
		}
		return m, nil

	case updateTypeFulfill:
		m := &lnwire.UpdateFulfillHTLC{}
		if m.ChanID, err = r.hash(); err != nil {
			return nil, err
		}
		if m.ID, err = r.u64(); err != nil {
			return nil, err
		}
		if m.PaymentPreimage, err = r.hash(); err != nil {
			return nil, err
		}
		return m, nil

	case updateTypeFail:
		m := &lnwire.UpdateFailHTLC{}
		if m.ChanID, err = r.hash(); err != nil {
			return nil, err
		}
		if m.ID, err = r.u64(); err != nil {
			return nil, err
		}
		reason, err := r.bytes()
		if err != nil {
			return nil, err
		}
		m.Reason = reason
		return m, nil

	case updateTypeFailMalformed:
		m := &lnwire.UpdateFailMalformedHTLC{}
		if m.ChanID, err = r.hash(); err != nil {
			return nil, err
		}
		if m.ID, err = r.u64(); err != nil {
			return nil, err
		}
		if m.ShaOnionBlob, err = r.hash(); err != nil {
			return nil, err
		}
		code, err := r.u16()
		if err != nil {
			return nil, err
		}
		m.FailureCode = lnwire.FailCode(code)
		return m, nil

	case updateTypeFee:
		m := &lnwire.UpdateFee{}
		if m.ChanID, err = r.hash(); err != nil {
			return nil, err
		}
		if m.FeePerKw, err = r.u32(); err != nil {
			return nil, err
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unknown update kind %v", kind)
	}
}

func (w *codecWriter) updateMsgs(msgs []lnwire.Message) error {
	w.u32(uint32(len(msgs)))
	for _, msg := range msgs {
		if err := w.updateMsg(msg); err != nil {
			return err
		}
	}

	return nil
}

func (r *codecReader) updateMsgs() ([]lnwire.Message, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	var msgs []lnwire.Message
	for i := uint32(0); i < n; i++ {
		msg, err := r.updateMsg()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	return msgs, nil
}

func (w *codecWriter) spec(s *CommitmentSpec) error {
	w.u32(uint32(s.FeePerKw))
	w.u64(uint64(s.ToLocal))
	w.u64(uint64(s.ToRemote))
	w.u32(uint32(len(s.Htlcs)))
	for _, htlc := range s.Htlcs {
		w.bool(htlc.Incoming)
		add := htlc.Add
		if err := w.updateMsg(&add); err != nil {
			return err
		}
	}

	return nil
}

func (r *codecReader) spec() (CommitmentSpec, error) {
	var s CommitmentSpec

	feerate, err := r.u32()
	if err != nil {
		return s, err
	}
	s.FeePerKw = chainfee.SatPerKWeight(feerate)

	toLocal, err := r.u64()
	if err != nil {
		return s, err
	}
	s.ToLocal = lnwire.MilliSatoshi(toLocal)

	toRemote, err := r.u64()
	if err != nil {
		return s, err
	}
	s.ToRemote = lnwire.MilliSatoshi(toRemote)

	n, err := r.u32()
	if err != nil {
		return s, err
	}
	for i := uint32(0); i < n; i++ {
		incoming, err := r.bool()
		if err != nil {
			return s, err
		}
		msg, err := r.updateMsg()
		if err != nil {
			return s, err
		}
		add, ok := msg.(*lnwire.UpdateAddHTLC)
		if !ok {
			return s, errors.New("non-add htlc in spec")
		}
		s.Htlcs = append(s.Htlcs, DirectedHtlc{
			Incoming: incoming,
			Add:      *add,
		})
	}

	return s, nil
}

func (w *codecWriter) commitments(c *Commitments) error {
	w.u32(uint32(c.ChannelVersion))
	w.u8(uint8(c.ChannelFlags))
	w.hash(c.ChannelID)

	// Local params.
	w.u64(uint64(c.LocalParams.DustLimit))
	w.u64(uint64(c.LocalParams.MaxHtlcValueInFlight))
	w.u64(uint64(c.LocalParams.ChannelReserve))
	w.u64(uint64(c.LocalParams.HtlcMinimum))
	w.u16(c.LocalParams.ToSelfDelay)
	w.u16(c.LocalParams.MaxAcceptedHtlcs)
	w.bool(c.LocalParams.IsFunder)
	w.bytes(c.LocalParams.DefaultFinalScriptPubKey)
	w.u32(uint32(c.LocalParams.FundingKeyLoc.Family))
	w.u32(c.LocalParams.FundingKeyLoc.Index)
	w.pubKey(c.LocalParams.Basepoints.FundingKey)
	w.pubKey(c.LocalParams.Basepoints.RevocationBasePoint)
	w.pubKey(c.LocalParams.Basepoints.PaymentBasePoint)
	w.pubKey(c.LocalParams.Basepoints.DelayBasePoint)
	w.pubKey(c.LocalParams.Basepoints.HtlcBasePoint)

	// Remote params.
	w.u64(uint64(c.RemoteParams.DustLimit))
	w.u64(uint64(c.RemoteParams.MaxHtlcValueInFlight))
	w.u64(uint64(c.RemoteParams.ChannelReserve))
	w.u64(uint64(c.RemoteParams.HtlcMinimum))
	w.u16(c.RemoteParams.ToSelfDelay)
	w.u16(c.RemoteParams.MaxAcceptedHtlcs)
	w.bytes(c.RemoteParams.UpfrontShutdownScript)
	w.pubKey(c.RemoteParams.Basepoints.FundingKey)
	w.pubKey(c.RemoteParams.Basepoints.RevocationBasePoint)
	w.pubKey(c.RemoteParams.Basepoints.PaymentBasePoint)
	w.pubKey(c.RemoteParams.Basepoints.DelayBasePoint)
	w.pubKey(c.RemoteParams.Basepoints.HtlcBasePoint)

	// Local commit.
	w.u64(c.LocalCommit.Index)
	if err := w.spec(&c.LocalCommit.Spec); err != nil {
		return err
	}
	if err := w.tx(c.LocalCommit.PublishableTxs.CommitTx); err != nil {
		return err
	}
	w.u32(uint32(len(c.LocalCommit.PublishableTxs.HtlcTxsAndSigs)))
	for _, htlcTx := range c.LocalCommit.PublishableTxs.HtlcTxsAndSigs {
		w.bool(htlcTx.Htlc.Incoming)
		w.u64(htlcTx.Htlc.ID)
		w.u64(uint64(htlcTx.Htlc.Amount))
		w.hash(htlcTx.Htlc.PaymentHash)
		w.u32(htlcTx.Htlc.Expiry)
		w.bytes(htlcTx.Htlc.WitnessScript)
		w.bytes(htlcTx.Htlc.PkScript)
		w.u32(uint32(htlcTx.Htlc.OutputIndex))
		if err := w.tx(htlcTx.Tx); err != nil {
			return err
		}
		w.bytes(htlcTx.OutputScript)
		w.buf.Write(htlcTx.LocalSig[:])
		w.buf.Write(htlcTx.RemoteSig[:])
	}

	// Remote commit.
	w.u64(c.RemoteCommit.Index)
	if err := w.spec(&c.RemoteCommit.Spec); err != nil {
		return err
	}
	w.hash(c.RemoteCommit.Txid)
	w.pubKey(c.RemoteCommit.RemotePerCommitmentPoint)

	// Changes.
	if err := w.updateMsgs(c.LocalChanges.Proposed); err != nil {
		return err
	}
	if err := w.updateMsgs(c.LocalChanges.Signed); err != nil {
		return err
	}
	if err := w.updateMsgs(c.LocalChanges.Acked); err != nil {
		return err
	}
	if err := w.updateMsgs(c.RemoteChanges.Proposed); err != nil {
		return err
	}
	if err := w.updateMsgs(c.RemoteChanges.Acked); err != nil {
		return err
	}
	if err := w.updateMsgs(c.RemoteChanges.Signed); err != nil {
		return err
	}

	w.u64(c.LocalNextHtlcID)
	w.u64(c.RemoteNextHtlcID)

	// Origins.
	w.u32(uint32(len(c.OriginChannels)))
	for id, origin := range c.OriginChannels {
		w.u64(id)
		switch o := origin.(type) {
		case LocalOrigin:
			w.u8(0)
			w.hash(o.PaymentID)
		case RelayedOrigin:
			w.u8(1)
			w.hash(o.OriginChannelID)
			w.u64(o.OriginHtlcID)
			w.u64(uint64(o.AmountIn))
			w.u64(uint64(o.AmountOut))
		default:
			return fmt.Errorf("unencodable origin %T", origin)
		}
	}

	// Remote next commit info.
	var encodeErr error
	c.RemoteNextCommitInfo.WhenLeft(func(waiting WaitingForRevocation) {
		w.u8(0)
		w.u64(waiting.NextRemoteCommit.Index)
		encodeErr = w.spec(&waiting.NextRemoteCommit.Spec)
		if encodeErr != nil {
			return
		}
		w.hash(waiting.NextRemoteCommit.Txid)
		w.pubKey(waiting.NextRemoteCommit.RemotePerCommitmentPoint)
		w.hash(waiting.Sent.ChanID)
		w.buf.Write(waiting.Sent.CommitSig[:])
		w.u32(uint32(len(waiting.Sent.HtlcSigs)))
		for _, sig := range waiting.Sent.HtlcSigs {
			w.buf.Write(sig[:])
		}
		w.u64(waiting.SentAfterLocalCommitIndex)
		w.bool(waiting.ReSignAsap)
	})
	c.RemoteNextCommitInfo.WhenRight(func(point *btcec.PublicKey) {
		w.u8(1)
		w.pubKey(point)
	})
	if encodeErr != nil {
		return encodeErr
	}

	// Revocation store.
	indexes, secrets, nextIndex := c.RemotePerCommitmentSecrets.Slots()
	w.u32(uint32(len(indexes)))
	for i := range indexes {
		w.u64(indexes[i])
		w.hash(secrets[i])
	}
	w.u64(nextIndex)

	// Commit input.
	w.hash(c.CommitInput.OutPoint.Hash)
	w.u32(c.CommitInput.OutPoint.Index)
	w.u64(uint64(c.CommitInput.TxOut.Value))
	w.bytes(c.CommitInput.TxOut.PkScript)
	w.bytes(c.CommitInput.WitnessScript)

	w.bytes(c.RemoteChannelData)

	return nil
}

func (r *codecReader) commitments() (*Commitments, error) {
	c := &Commitments{}

	version, err := r.u32()
	if err != nil {
		return nil, err
	}
	c.ChannelVersion = Version(version)

	flags, err := r.u8()
	if err != nil {
		return nil, err
	}
	c.ChannelFlags = lnwire.FundingFlag(flags)

	chanID, err := r.hash()
	if err != nil {
		return nil, err
	}
	c.ChannelID = chanID

	if err := r.localParams(&c.LocalParams); err != nil {
		return nil, err
	}
	if err := r.remoteParams(&c.RemoteParams); err != nil {
		return nil, err
	}

	// Local commit.
	if c.LocalCommit.Index, err = r.u64(); err != nil {
		return nil, err
	}
	if c.LocalCommit.Spec, err = r.spec(); err != nil {
		return nil, err
	}
	commitTx, err := r.tx()
	if err != nil {
		return nil, err
	}
	c.LocalCommit.PublishableTxs.CommitTx = commitTx
	numHtlcTxs, err := r.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < numHtlcTxs; i++ {
		htlcTx, err := r.htlcTxAndSigs()
		if err != nil {
			return nil, err
		}
		c.LocalCommit.PublishableTxs.HtlcTxsAndSigs = append(
			c.LocalCommit.PublishableTxs.HtlcTxsAndSigs, *htlcTx,
		)
	}

	// Remote commit.
	if c.RemoteCommit.Index, err = r.u64(); err != nil {
		return nil, err
	}
	if c.RemoteCommit.Spec, err = r.spec(); err != nil {
		return nil, err
	}
	txid, err := r.hash()
	if err != nil {
		return nil, err
	}
	c.RemoteCommit.Txid = txid
	if c.RemoteCommit.RemotePerCommitmentPoint, err = r.pubKey(); err != nil {
		return nil, err
	}

	// Changes.
	if c.LocalChanges.Proposed, err = r.updateMsgs(); err != nil {
		return nil, err
	}
	if c.LocalChanges.Signed, err = r.updateMsgs(); err != nil {
		return nil, err
	}
	if c.LocalChanges.Acked, err = r.updateMsgs(); err != nil {
		return nil, err
	}
	if c.RemoteChanges.Proposed, err = r.updateMsgs(); err != nil {
		return nil, err
	}
	if c.RemoteChanges.Acked, err = r.updateMsgs(); err != nil {
		return nil, err
	}
	if c.RemoteChanges.Signed, err = r.updateMsgs(); err != nil {
		return nil, err
	}

	if c.LocalNextHtlcID, err = r.u64(); err != nil {
		return nil, err
	}
	if c.RemoteNextHtlcID, err = r.u64(); err != nil {
		return nil, err
	}

	// Origins.
	numOrigins, err := r.u32()
	if err != nil {
		return nil, err
	}
	c.OriginChannels = make(map[uint64]Origin, numOrigins)
	for i := uint32(0); i < numOrigins; i++ {
		id, err := r.u64()
		if err != nil {
			return nil, err
		}
		kind, err := r.u8()
		if err != nil {
			return nil, err
		}
		switch kind {
		case 0:
			paymentID, err := r.hash()
			if err != nil {
				return nil, err
			}
			c.OriginChannels[id] = LocalOrigin{PaymentID: paymentID}
		case 1:
			var o RelayedOrigin
			chanID, err := r.hash()
			if err != nil {
				return nil, err
			}
			o.OriginChannelID = chanID
			if o.OriginHtlcID, err = r.u64(); err != nil {
				return nil, err
			}
			amtIn, err := r.u64()
			if err != nil {
				return nil, err
			}
			o.AmountIn = lnwire.MilliSatoshi(amtIn)
			amtOut, err := r.u64()
			if err != nil {
				return nil, err
			}
			o.AmountOut = lnwire.MilliSatoshi(amtOut)
			c.OriginChannels[id] = o
		default:
			return nil, fmt.Errorf("unknown origin kind %v", kind)
		}
	}

	// Remote next commit info.
	side, err := r.u8()
	if err != nil {
		return nil, err
	}
	switch side {
	case 0:
		var waiting WaitingForRevocation
		if waiting.NextRemoteCommit.Index, err = r.u64(); err != nil {
			return nil, err
		}
		if waiting.NextRemoteCommit.Spec, err = r.spec(); err != nil {
			return nil, err
		}
		nextTxid, err := r.hash()
		if err != nil {
			return nil, err
		}
		waiting.NextRemoteCommit.Txid = nextTxid
		point, err := r.pubKey()
		if err != nil {
			return nil, err
		}
		waiting.NextRemoteCommit.RemotePerCommitmentPoint = point

		sent := &lnwire.CommitSig{}
		if sent.ChanID, err = r.hash(); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r.r, sent.CommitSig[:]); err != nil {
			return nil, err
		}
		numSigs, err := r.u32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < numSigs; i++ {
			var sig lnwire.Sig
			if _, err := io.ReadFull(r.r, sig[:]); err != nil {
				return nil, err
			}
			sent.HtlcSigs = append(sent.HtlcSigs, sig)
		}
		waiting.Sent = sent
		if waiting.SentAfterLocalCommitIndex, err = r.u64(); err != nil {
			return nil, err
		}
		if waiting.ReSignAsap, err = r.bool(); err != nil {
			return nil, err
		}
		c.RemoteNextCommitInfo =
			fn.NewLeft[WaitingForRevocation, *btcec.PublicKey](waiting)

	case 1:
		point, err := r.pubKey()
		if err != nil {
			return nil, err
		}
		c.RemoteNextCommitInfo =
			fn.NewRight[WaitingForRevocation](point)

	default:
		return nil, fmt.Errorf("unknown commit info side %v", side)
	}

	// Revocation store.
	numSlots, err := r.u32()
	if err != nil {
		return nil, err
	}
	indexes := make([]uint64, 0, numSlots)
	secrets := make([]chainhash.Hash, 0, numSlots)
	for i := uint32(0); i < numSlots; i++ {
		index, err := r.u64()
		if err != nil {
			return nil, err
		}
		secret, err := r.hash()
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, index)
		secrets = append(secrets, chainhash.Hash(secret))
	}
	nextIndex, err := r.u64()
	if err != nil {
		return nil, err
	}
	store, err := shachain.NewStoreFromSlots(indexes, secrets, nextIndex)
	if err != nil {
		return nil, err
	}
	c.RemotePerCommitmentSecrets = store

	// Commit input.
	opHash, err := r.hash()
	if err != nil {
		return nil, err
	}
	opIndex, err := r.u32()
	if err != nil {
		return nil, err
	}
	value, err := r.u64()
	if err != nil {
		return nil, err
	}
	pkScript, err := r.bytes()
	if err != nil {
		return nil, err
	}
	witnessScript, err := r.bytes()
	if err != nil {
		return nil, err
	}
	c.CommitInput = CommitInput{
		OutPoint: wire.OutPoint{
			Hash:  chainhash.Hash(opHash),
			Index: opIndex,
		},
		TxOut: &wire.TxOut{
			Value:    int64(value),
			PkScript: pkScript,
		},
		WitnessScript: witnessScript,
	}

	if c.RemoteChannelData, err = r.bytes(); err != nil {
		return nil, err
	}

	return c, nil
}

func (r *codecReader) localParams(p *LocalParams) error {
	var err error
	dust, err := r.u64()
	if err != nil {
		return err
	}
	p.DustLimit = btcAmount(dust)
	maxInFlight, err := r.u64()
	if err != nil {
		return err
	}
	p.MaxHtlcValueInFlight = lnwire.MilliSatoshi(maxInFlight)
	reserve, err := r.u64()
	if err != nil {
		return err
	}
	p.ChannelReserve = btcAmount(reserve)
	htlcMin, err := r.u64()
	if err != nil {
		return err
	}
	p.HtlcMinimum = lnwire.MilliSatoshi(htlcMin)
	if p.ToSelfDelay, err = r.u16(); err != nil {
		return err
	}
	if p.MaxAcceptedHtlcs, err = r.u16(); err != nil {
		return err
	}
	if p.IsFunder, err = r.bool(); err != nil {
		return err
	}
	if p.DefaultFinalScriptPubKey, err = r.bytes(); err != nil {
		return err
	}
	family, err := r.u32()
	if err != nil {
		return err
	}
	p.FundingKeyLoc.Family = keyFamily(family)
	if p.FundingKeyLoc.Index, err = r.u32(); err != nil {
		return err
	}
	if p.Basepoints.FundingKey, err = r.pubKey(); err != nil {
		return err
	}
	if p.Basepoints.RevocationBasePoint, err = r.pubKey(); err != nil {
		return err
	}
	if p.Basepoints.PaymentBasePoint, err = r.pubKey(); err != nil {
		return err
	}
	if p.Basepoints.DelayBasePoint, err = r.pubKey(); err != nil {
		return err
	}
	if p.Basepoints.HtlcBasePoint, err = r.pubKey(); err != nil {
		return err
	}

	return nil
}

func (r *codecReader) remoteParams(p *RemoteParams) error {
	var err error
	dust, err := r.u64()
	if err != nil {
		return err
	}
	p.DustLimit = btcAmount(dust)
	maxInFlight, err := r.u64()
	if err != nil {
		return err
	}
	p.MaxHtlcValueInFlight = lnwire.MilliSatoshi(maxInFlight)
	reserve, err := r.u64()
	if err != nil {
		return err
	}
	p.ChannelReserve = btcAmount(reserve)
	htlcMin, err := r.u64()
	if err != nil {
		return err
	}
	p.HtlcMinimum = lnwire.MilliSatoshi(htlcMin)
	if p.ToSelfDelay, err = r.u16(); err != nil {
		return err
	}
	if p.MaxAcceptedHtlcs, err = r.u16(); err != nil {
		return err
	}
	if p.UpfrontShutdownScript, err = r.bytes(); err != nil {
		return err
	}
	if p.Basepoints.FundingKey, err = r.pubKey(); err != nil {
		return err
	}
	if p.Basepoints.RevocationBasePoint, err = r.pubKey(); err != nil {
		return err
	}
	if p.Basepoints.PaymentBasePoint, err = r.pubKey(); err != nil {
		return err
	}
	if p.Basepoints.DelayBasePoint, err = r.pubKey(); err != nil {
		return err
	}
	if p.Basepoints.HtlcBasePoint, err = r.pubKey(); err != nil {
		return err
	}

	return nil
}

func (r *codecReader) htlcTxAndSigs() (*HtlcTxAndSigs, error) {
	htlcTx := &HtlcTxAndSigs{}
	var err error
	if htlcTx.Htlc.Incoming, err = r.bool(); err != nil {
		return nil, err
	}
	if htlcTx.Htlc.ID, err = r.u64(); err != nil {
		return nil, err
	}
	amt, err := r.u64()
	if err != nil {
		return nil, err
	}
	htlcTx.Htlc.Amount = lnwire.MilliSatoshi(amt)
	if htlcTx.Htlc.PaymentHash, err = r.hash(); err != nil {
		return nil, err
	}
	if htlcTx.Htlc.Expiry, err = r.u32(); err != nil {
		return nil, err
	}
	if htlcTx.Htlc.WitnessScript, err = r.bytes(); err != nil {
		return nil, err
	}
	if htlcTx.Htlc.PkScript, err = r.bytes(); err != nil {
		return nil, err
	}
	outputIndex, err := r.u32()
	if err != nil {
		return nil, err
	}
	htlcTx.Htlc.OutputIndex = int(outputIndex)
	if htlcTx.Tx, err = r.tx(); err != nil {
		return nil, err
	}
	if htlcTx.OutputScript, err = r.bytes(); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r.r, htlcTx.LocalSig[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r.r, htlcTx.RemoteSig[:]); err != nil {
		return nil, err
	}

	return htlcTx, nil
}

// serializeStateForBackup encodes the states that participate in the
// peer-held backup scheme.
func serializeStateForBackup(s StateWithCommitments) ([]byte, error) {
	w := &codecWriter{buf: &bytes.Buffer{}}

	switch state := s.(type) {
	case Normal:
		w.u8(backupStateNormal)
		if err := w.commitments(&state.Commitments); err != nil {
			return nil, err
		}
		w.u32(state.ShortChannelID.BlockHeight)
		w.u32(state.ShortChannelID.TxIndex)
		w.u16(state.ShortChannelID.OutputIndex)
		w.bool(state.Buried)
		w.shutdownOpt(state.LocalShutdown)
		w.shutdownOpt(state.RemoteShutdown)

	case ShuttingDown:
		w.u8(backupStateShuttingDown)
		if err := w.commitments(&state.Commitments); err != nil {
			return nil, err
		}
		w.shutdownOpt(state.LocalShutdown)
		w.shutdownOpt(state.RemoteShutdown)

	case WaitForFundingConfirmed:
		w.u8(backupStateWaitFundingConfirmed)
		if err := w.commitments(&state.Commitments); err != nil {
			return nil, err
		}
		w.u32(state.WaitingSinceBlock)

	case WaitForFundingLocked:
		w.u8(backupStateWaitFundingLocked)
		if err := w.commitments(&state.Commitments); err != nil {
			return nil, err
		}
		w.u32(state.ShortChannelID.BlockHeight)
		w.u32(state.ShortChannelID.TxIndex)
		w.u16(state.ShortChannelID.OutputIndex)

	default:
		return nil, errUnknownBackupState
	}

	// Wrap the body in the TLV envelope.
	body := w.buf.Bytes()
	version := backupVersion

	var envelope bytes.Buffer
	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(backupVersionType, &version),
		tlv.MakePrimitiveRecord(backupStateType, &body),
	)
	if err != nil {
		return nil, err
	}
	if err := stream.Encode(&envelope); err != nil {
		return nil, err
	}

	return envelope.Bytes(), nil
}

// deserializeBackupState decodes a backup payload back into a channel
// state.
func deserializeBackupState(payload []byte) (StateWithCommitments, error) {
	var (
		version uint8
		body    []byte
	)
	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(backupVersionType, &version),
		tlv.MakePrimitiveRecord(backupStateType, &body),
	)
	if err != nil {
		return nil, err
	}
	if err := stream.Decode(bytes.NewReader(payload)); err != nil {
		return nil, err
	}
	if version != backupVersion {
		return nil, fmt.Errorf("unknown backup version %v", version)
	}

	r := &codecReader{r: bytes.NewReader(body)}
	kind, err := r.u8()
	if err != nil {
		return nil, err
	}

	switch kind {
	case backupStateNormal:
		commitments, err := r.commitments()
		if err != nil {
			return nil, err
		}
		state := Normal{Commitments: *commitments}
		if state.ShortChannelID.BlockHeight, err = r.u32(); err != nil {
			return nil, err
		}
		if state.ShortChannelID.TxIndex, err = r.u32(); err != nil {
			return nil, err
		}
		if state.ShortChannelID.OutputIndex, err = r.u16(); err != nil {
			return nil, err
		}
		if state.Buried, err = r.bool(); err != nil {
			return nil, err
		}
		if state.LocalShutdown, err = r.shutdownOpt(); err != nil {
			return nil, err
		}
		if state.RemoteShutdown, err = r.shutdownOpt(); err != nil {
			return nil, err
		}
		return state, nil

	case backupStateShuttingDown:
		commitments, err := r.commitments()
		if err != nil {
			return nil, err
		}
		state := ShuttingDown{Commitments: *commitments}
		if state.LocalShutdown, err = r.shutdownOpt(); err != nil {
			return nil, err
		}
		if state.RemoteShutdown, err = r.shutdownOpt(); err != nil {
			return nil, err
		}
		return state, nil

	case backupStateWaitFundingConfirmed:
		commitments, err := r.commitments()
		if err != nil {
			return nil, err
		}
		state := WaitForFundingConfirmed{Commitments: *commitments}
		if state.WaitingSinceBlock, err = r.u32(); err != nil {
			return nil, err
		}
		return state, nil

	case backupStateWaitFundingLocked:
		commitments, err := r.commitments()
		if err != nil {
			return nil, err
		}
		state := WaitForFundingLocked{Commitments: *commitments}
		if state.ShortChannelID.BlockHeight, err = r.u32(); err != nil {
			return nil, err
		}
		if state.ShortChannelID.TxIndex, err = r.u32(); err != nil {
			return nil, err
		}
		if state.ShortChannelID.OutputIndex, err = r.u16(); err != nil {
			return nil, err
		}
		return state, nil

	default:
		return nil, errUnknownBackupState
	}
}

func (w *codecWriter) shutdownOpt(s *lnwire.Shutdown) {
	if s == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.hash(s.ChannelID)
	w.bytes(s.Address)
}

func (r *codecReader) shutdownOpt() (*lnwire.Shutdown, error) {
	present, err := r.u8()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}

	s := &lnwire.Shutdown{}
	chanID, err := r.hash()
	if err != nil {
		return nil, err
	}
	s.ChannelID = chanID
	addr, err := r.bytes()
	if err != nil {
		return nil, err
	}
	s.Address = addr

	return s, nil
}

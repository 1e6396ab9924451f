package channel

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ClosingType names the way a channel ended up closing on chain.
type ClosingType uint8

const (
	// ClosingTypeMutual is a negotiated cooperative close.
	ClosingTypeMutual ClosingType = iota

	// ClosingTypeLocal is our own commitment broadcast.
	ClosingTypeLocal

	// ClosingTypeCurrentRemote is their current commitment broadcast.
	ClosingTypeCurrentRemote

	// ClosingTypeNextRemote is their signed-but-unrevoked next
	// commitment broadcast.
	ClosingTypeNextRemote

	// ClosingTypeRecovery is their commitment broadcast after we proved
	// we lost state.
	ClosingTypeRecovery

	// ClosingTypeRevoked is a revoked commitment broadcast, punished.
	ClosingTypeRevoked
)

// String returns the closing type name.
func (t ClosingType) String() string {
	switch t {
	case ClosingTypeMutual:
		return "mutual"
	case ClosingTypeLocal:
		return "local"
	case ClosingTypeCurrentRemote:
		return "current-remote"
	case ClosingTypeNextRemote:
		return "next-remote"
	case ClosingTypeRecovery:
		return "recovery"
	case ClosingTypeRevoked:
		return "revoked"
	default:
		return "<unknown>"
	}
}

// spentMap tracks which of the outpoints we care about have been
// irrevocably spent, and by which transaction.
type spentMap = map[wire.OutPoint]chainhash.Hash

// recordSpends notes every input of an irrevocably confirmed transaction in
// the spent map, restricted to outpoints the relevant predicate accepts.
func recordSpends(spent spentMap, tx *wire.MsgTx,
	relevant func(wire.OutPoint) bool) spentMap {

	out := make(spentMap, len(spent)+len(tx.TxIn))
	for op, txid := range spent {
		out[op] = txid
	}

	txid := tx.TxHash()
	for _, txIn := range tx.TxIn {
		if relevant(txIn.PreviousOutPoint) {
			out[txIn.PreviousOutPoint] = txid
		}
	}

	return out
}

// txConfirmed reports whether a specific transaction has been recorded as
// the irrevocable spender of its input.
func txConfirmed(spent spentMap, tx *wire.MsgTx) bool {
	if tx == nil {
		return true
	}
	txid := tx.TxHash()
	for _, txIn := range tx.TxIn {
		if spent[txIn.PreviousOutPoint] == txid {
			return true
		}
	}

	return false
}

// LocalCommitPublished describes our own commitment on chain together with
// the claims sweeping it back to us.
type LocalCommitPublished struct {
	// CommitTx is our published commitment.
	CommitTx *wire.MsgTx

	// ClaimMainDelayedOutputTx sweeps our to-local output after the
	// contest delay, nil if the output was trimmed.
	ClaimMainDelayedOutputTx *wire.MsgTx

	// HtlcSuccessTxs are the second-level claims of incoming HTLCs
	// whose preimage is known.
	HtlcSuccessTxs []*wire.MsgTx

	// HtlcTimeoutTxs are the second-level claims of outgoing HTLCs
	// after their timeout.
	HtlcTimeoutTxs []*wire.MsgTx

	// ClaimHtlcDelayedTxs sweep the delayed outputs of the second-level
	// transactions.
	ClaimHtlcDelayedTxs []*wire.MsgTx

	// IrrevocablySpent maps each deeply spent outpoint to its spender.
	IrrevocablySpent spentMap
}

// IsConfirmed reports whether the commitment itself confirmed.
func (l *LocalCommitPublished) IsConfirmed() bool {
	return txConfirmed(l.IrrevocablySpent, l.CommitTx)
}

// IsDone reports whether the commitment and every claim descending from it
// are irrevocably confirmed.
func (l *LocalCommitPublished) IsDone() bool {
	if !l.IsConfirmed() {
		return false
	}
	if !txConfirmed(l.IrrevocablySpent, l.ClaimMainDelayedOutputTx) {
		return false
	}
	for _, tx := range l.HtlcSuccessTxs {
		if !txConfirmed(l.IrrevocablySpent, tx) {
			return false
		}
	}
	for _, tx := range l.HtlcTimeoutTxs {
		if !txConfirmed(l.IrrevocablySpent, tx) {
			return false
		}
	}
	for _, tx := range l.ClaimHtlcDelayedTxs {
		if !txConfirmed(l.IrrevocablySpent, tx) {
			return false
		}
	}

	return true
}

// PublishableTxList returns every transaction worth broadcasting for this
// close.
func (l *LocalCommitPublished) PublishableTxList() []*wire.MsgTx {
	txs := []*wire.MsgTx{l.CommitTx}
	if l.ClaimMainDelayedOutputTx != nil {
		txs = append(txs, l.ClaimMainDelayedOutputTx)
	}
	txs = append(txs, l.HtlcSuccessTxs...)
	txs = append(txs, l.HtlcTimeoutTxs...)
	txs = append(txs, l.ClaimHtlcDelayedTxs...)

	return txs
}

// RemoteCommitPublished describes a remote commitment on chain together
// with the claims sweeping our share of it.
type RemoteCommitPublished struct {
	// CommitTx is the published remote commitment.
	CommitTx *wire.MsgTx

	// ClaimMainOutputTx sweeps our main output, nil when the output was
	// trimmed or pays directly to our wallet.
	ClaimMainOutputTx *wire.MsgTx

	// ClaimHtlcSuccessTxs claim incoming HTLCs with their preimage,
	// directly from the commitment.
	ClaimHtlcSuccessTxs []*wire.MsgTx

	// ClaimHtlcTimeoutTxs reclaim outgoing HTLCs after their timeout,
	// directly from the commitment.
	ClaimHtlcTimeoutTxs []*wire.MsgTx

	// IrrevocablySpent maps each deeply spent outpoint to its spender.
	IrrevocablySpent spentMap
}

// IsConfirmed reports whether the commitment itself confirmed.
func (r *RemoteCommitPublished) IsConfirmed() bool {
	return txConfirmed(r.IrrevocablySpent, r.CommitTx)
}

// IsDone reports whether the commitment and every claim descending from it
// are irrevocably confirmed.
func (r *RemoteCommitPublished) IsDone() bool {
	if !r.IsConfirmed() {
		return false
	}
	if !txConfirmed(r.IrrevocablySpent, r.ClaimMainOutputTx) {
		return false
	}
	for _, tx := range r.ClaimHtlcSuccessTxs {
		if !txConfirmed(r.IrrevocablySpent, tx) {
			return false
		}
	}
	for _, tx := range r.ClaimHtlcTimeoutTxs {
		if !txConfirmed(r.IrrevocablySpent, tx) {
			return false
		}
	}

	return true
}

// PublishableTxList returns every transaction worth broadcasting for this
// close. The commitment itself is theirs; we only publish our claims.
func (r *RemoteCommitPublished) PublishableTxList() []*wire.MsgTx {
	var txs []*wire.MsgTx
	if r.ClaimMainOutputTx != nil {
		txs = append(txs, r.ClaimMainOutputTx)
	}
	txs = append(txs, r.ClaimHtlcSuccessTxs...)
	txs = append(txs, r.ClaimHtlcTimeoutTxs...)

	return txs
}

// RevokedCommitPublished describes a revoked remote commitment on chain
// together with the penalties confiscating it.
type RevokedCommitPublished struct {
	// CommitTx is the published revoked commitment.
	CommitTx *wire.MsgTx

	// CommitmentNumber of the revoked commitment.
	CommitmentNumber uint64

	// RemotePerCommitmentSecret revealed for this commitment.
	RemotePerCommitmentSecret [32]byte

	// ClaimMainOutputTx sweeps our own main output.
	ClaimMainOutputTx *wire.MsgTx

	// MainPenaltyTx confiscates their delayed main output.
	MainPenaltyTx *wire.MsgTx

	// HtlcPenaltyTxs confiscate every HTLC output.
	HtlcPenaltyTxs []*wire.MsgTx

	// ClaimHtlcDelayedPenaltyTxs confiscate the outputs of any
	// second-level transactions they manage to confirm first.
	ClaimHtlcDelayedPenaltyTxs []*wire.MsgTx

	// IrrevocablySpent maps each deeply spent outpoint to its spender.
	IrrevocablySpent spentMap
}

// IsConfirmed reports whether the commitment itself confirmed.
func (r *RevokedCommitPublished) IsConfirmed() bool {
	return txConfirmed(r.IrrevocablySpent, r.CommitTx)
}

// IsDone reports whether every output of the revoked commitment has been
// irrevocably swept, by us or otherwise.
func (r *RevokedCommitPublished) IsDone() bool {
	if !r.IsConfirmed() {
		return false
	}

	// Every output of the revoked commitment must be spent by a deeply
	// confirmed transaction; whether the penalty won the race or the
	// remote's second-level transaction did, the dispute over that
	// output is over.
	commitTxid := r.CommitTx.TxHash()
	for i := range r.CommitTx.TxOut {
		op := wire.OutPoint{Hash: commitTxid, Index: uint32(i)}
		if _, ok := r.IrrevocablySpent[op]; !ok {
			return false
		}
	}
	for _, tx := range r.ClaimHtlcDelayedPenaltyTxs {
		if !txConfirmed(r.IrrevocablySpent, tx) {
			return false
		}
	}

	return true
}

// PublishableTxList returns every penalty and claim worth broadcasting.
func (r *RevokedCommitPublished) PublishableTxList() []*wire.MsgTx {
	var txs []*wire.MsgTx
	if r.ClaimMainOutputTx != nil {
		txs = append(txs, r.ClaimMainOutputTx)
	}
	if r.MainPenaltyTx != nil {
		txs = append(txs, r.MainPenaltyTx)
	}
	txs = append(txs, r.HtlcPenaltyTxs...)
	txs = append(txs, r.ClaimHtlcDelayedPenaltyTxs...)

	return txs
}

// IsClosed determines whether the channel is fully closed and by which
// closing type. additionalConfirmedTx is a just-confirmed transaction not
// yet folded into the descriptors, used to recognize mutual closes.
func (s *Closing) IsClosed(additionalConfirmedTx *wire.MsgTx) (ClosingType,
	bool) {

	if additionalConfirmedTx != nil {
		txid := additionalConfirmedTx.TxHash()
		for _, tx := range s.MutualClosePublished {
			if tx.TxHash() == txid {
				return ClosingTypeMutual, true
			}
		}
	}

	if s.LocalCommitPublished != nil && s.LocalCommitPublished.IsDone() {
		return ClosingTypeLocal, true
	}
	if s.CurrentRemoteCommitPublished != nil &&
		s.CurrentRemoteCommitPublished.IsDone() {

		return ClosingTypeCurrentRemote, true
	}
	if s.NextRemoteCommitPublished != nil &&
		s.NextRemoteCommitPublished.IsDone() {

		return ClosingTypeNextRemote, true
	}
	if s.FutureRemoteCommitPublished != nil &&
		s.FutureRemoteCommitPublished.IsDone() {

		return ClosingTypeRecovery, true
	}
	for _, revoked := range s.RevokedCommitPublished {
		if revoked.IsDone() {
			return ClosingTypeRevoked, true
		}
	}

	return 0, false
}

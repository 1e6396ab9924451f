package committx

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/txsort"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnforge/channeld/keychain"
	"github.com/lnforge/channeld/lnwire"
)

const (
	// StateHintSize is the total number of bytes used between the
	// sequence number and locktime of the commitment transaction to
	// encode the obscured commitment number.
	StateHintSize = 6

	// maxStateHint is the maximum commitment number we're able to encode
	// within the commitment transaction.
	maxStateHint uint64 = (1 << 48) - 1
)

// Htlc describes one HTLC output to be materialized on a commitment
// transaction. Incoming is from the point of view of the commitment holder.
type Htlc struct {
	// Incoming is true for HTLCs offered to the commitment holder.
	Incoming bool

	// ID is the update id of the HTLC within the channel.
	ID uint64

	// Amount is the HTLC value.
	Amount lnwire.MilliSatoshi

	// PaymentHash conditions the HTLC's settlement.
	PaymentHash [32]byte

	// Expiry is the absolute block height after which the HTLC times
	// out.
	Expiry uint32
}

// HtlcOutput is an HTLC that survived dust trimming, materialized as an
// output on a built commitment transaction.
type HtlcOutput struct {
	Htlc

	// WitnessScript is the full script of the output.
	WitnessScript []byte

	// PkScript is the p2wsh wrapping of WitnessScript.
	PkScript []byte

	// OutputIndex is the output's position after BIP-69 sorting.
	OutputIndex int
}

// CommitTx is a fully built, unsigned commitment transaction, together with
// the location and scripts of all its interesting outputs.
type CommitTx struct {
	// Tx is the BIP-69 sorted commitment transaction.
	Tx *wire.MsgTx

	// Htlcs holds the untrimmed HTLC outputs in ascending output-index
	// order, the same order HTLC signatures travel in commit_sig.
	Htlcs []HtlcOutput

	// ToLocalIndex is the index of the delayed pay-to-self output, or -1
	// if it was trimmed.
	ToLocalIndex int

	// ToLocalScript is the witness script of the to-local output.
	ToLocalScript []byte

	// ToRemoteIndex is the index of the pay-to-counterparty output, or
	// -1 if it was trimmed.
	ToRemoteIndex int
}

// ObscureFactor computes the 48-bit value every commitment number is XOR'd
// with before being encoded in the commitment transaction's sequence and
// locktime fields. The factor is fixed per channel:
//
//	SHA256(funder_payment_basepoint || fundee_payment_basepoint)[26:32]
func ObscureFactor(funderPaymentBase,
	fundeePaymentBase *btcec.PublicKey) uint64 {

	h := sha256.New()
	h.Write(funderPaymentBase.SerializeCompressed())
	h.Write(fundeePaymentBase.SerializeCompressed())
	digest := h.Sum(nil)

	var factor uint64
	for _, b := range digest[sha256.Size-StateHintSize:] {
		factor = factor<<8 | uint64(b)
	}

	return factor
}

// SetStateNumHint encodes the obscured commitment number into the sequence
// of the sole input and the locktime of the commitment transaction: the
// upper 24 bits go into the sequence, the lower 24 bits into the locktime.
func SetStateNumHint(commitTx *wire.MsgTx, stateNum uint64,
	obscureFactor uint64) error {

	if stateNum > maxStateHint {
		return fmt.Errorf("state number %v exceeds maximum", stateNum)
	}
	if len(commitTx.TxIn) != 1 {
		return fmt.Errorf("commitment transaction must have exactly "+
			"one input, has %v", len(commitTx.TxIn))
	}

	hint := stateNum ^ obscureFactor

	commitTx.TxIn[0].Sequence = uint32(0x80000000 | (hint >> 24))
	commitTx.LockTime = uint32(0x20000000 | (hint & 0xFFFFFF))

	return nil
}

// GetStateNumHint recovers the commitment number encoded within the passed
// commitment transaction.
func GetStateNumHint(commitTx *wire.MsgTx, obscureFactor uint64) uint64 {
	stateNumUpper := uint64(commitTx.TxIn[0].Sequence&0xFFFFFF) << 24
	stateNumLower := uint64(commitTx.LockTime & 0xFFFFFF)

	return (stateNumUpper | stateNumLower) ^ obscureFactor
}

// CreateCommitTx builds the commitment transaction for the party whose keys
// are on the "local" side of the passed key ring. toLocal and toRemote are
// the final output values with the commitment fee already subtracted from
// the funder's side; outputs below dustLimit are trimmed. The passed HTLCs
// must already have survived dust filtering.
func CreateCommitTx(fundingOutpoint wire.OutPoint,
	keyRing *keychain.CommitmentKeyRing, csvDelay uint32,
	toLocal, toRemote, dustLimit btcutil.Amount, htlcs []Htlc,
	commitNumber, obscureFactor uint64) (*CommitTx, error) {

	commitTx := wire.NewMsgTx(2)
	commitTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: fundingOutpoint,
	})

	toLocalScript, err := CommitScriptToSelf(
		csvDelay, keyRing.ToLocalKey, keyRing.RevocationKey,
	)
	if err != nil {
		return nil, err
	}
	toLocalPkScript, err := WitnessScriptHash(toLocalScript)
	if err != nil {
		return nil, err
	}

	if toLocal >= dustLimit {
		commitTx.AddTxOut(&wire.TxOut{
			PkScript: toLocalPkScript,
			Value:    int64(toLocal),
		})
	}

	var toRemotePkScript []byte
	if toRemote >= dustLimit {
		toRemotePkScript, err = CommitScriptUnencumbered(
			keyRing.ToRemoteKey,
		)
		if err != nil {
			return nil, err
		}
		commitTx.AddTxOut(&wire.TxOut{
			PkScript: toRemotePkScript,
			Value:    int64(toRemote),
		})
	}

	htlcOutputs := make([]HtlcOutput, 0, len(htlcs))
	for _, htlc := range htlcs {
		var witnessScript []byte
		if htlc.Incoming {
			witnessScript, err = ReceiverHTLCScript(
				htlc.Expiry, keyRing.RemoteHtlcKey,
				keyRing.LocalHtlcKey, keyRing.RevocationKey,
				htlc.PaymentHash[:],
			)
		} else {
			witnessScript, err = SenderHTLCScript(
				keyRing.LocalHtlcKey, keyRing.RemoteHtlcKey,
				keyRing.RevocationKey, htlc.PaymentHash[:],
			)
		}
		if err != nil {
			return nil, err
		}

		pkScript, err := WitnessScriptHash(witnessScript)
		if err != nil {
			return nil, err
		}

		commitTx.AddTxOut(&wire.TxOut{
			PkScript: pkScript,
			Value:    int64(htlc.Amount.ToSatoshis()),
		})

		htlcOutputs = append(htlcOutputs, HtlcOutput{
			Htlc:          htlc,
			WitnessScript: witnessScript,
			PkScript:      pkScript,
			OutputIndex:   -1,
		})
	}

	// Sort the outputs into the canonical BIP-69 ordering both sides
	// agree on, then encode the obscured commitment number.
	txsort.InPlaceSort(commitTx)

	err = SetStateNumHint(commitTx, commitNumber, obscureFactor)
	if err != nil {
		return nil, err
	}

	built := &CommitTx{
		Tx:            commitTx,
		ToLocalIndex:  -1,
		ToLocalScript: toLocalScript,
		ToRemoteIndex: -1,
	}

	// Locate the outputs post-sort. Identical (script, value) pairs are
	// assigned in first-come order, which matches the order signatures
	// are exchanged in.
	used := make([]bool, len(commitTx.TxOut))
	locate := func(pkScript []byte, value int64) int {
		for i, txOut := range commitTx.TxOut {
			if used[i] {
				continue
			}
			if txOut.Value == value &&
				bytes.Equal(txOut.PkScript, pkScript) {

				used[i] = true
				return i
			}
		}

		return -1
	}

	if toLocal >= dustLimit {
		built.ToLocalIndex = locate(toLocalPkScript, int64(toLocal))
	}
	if toRemote >= dustLimit {
		built.ToRemoteIndex = locate(toRemotePkScript, int64(toRemote))
	}
	for i := range htlcOutputs {
		htlcOutputs[i].OutputIndex = locate(
			htlcOutputs[i].PkScript,
			int64(htlcOutputs[i].Amount.ToSatoshis()),
		)
	}

	// Order the HTLC records by their final output index so that they
	// line up with the signature list in commit_sig.
	for i := 0; i < len(htlcOutputs); i++ {
		for j := i + 1; j < len(htlcOutputs); j++ {
			if htlcOutputs[j].OutputIndex <
				htlcOutputs[i].OutputIndex {

				htlcOutputs[i], htlcOutputs[j] =
					htlcOutputs[j], htlcOutputs[i]
			}
		}
	}
	built.Htlcs = htlcOutputs

	return built, nil
}

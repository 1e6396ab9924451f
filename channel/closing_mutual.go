package channel

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnforge/channeld/chainfee"
	"github.com/lnforge/channeld/committx"
	"github.com/lnforge/channeld/lnwire"
)

// closingWitnessSize is the worst-case witness weight of the single input
// of a cooperative close transaction: two signatures plus the 2-of-2
// witness script.
const closingWitnessSize int64 = 1 + 1 + 73 + 1 + 73 + 1 + 71

// IsValidFinalScriptPubkey reports whether a script announced in shutdown
// is one of the whitelisted forms: P2PKH, P2SH, P2WPKH or P2WSH.
func IsValidFinalScriptPubkey(script []byte) bool {
	switch {
	// P2PKH: OP_DUP OP_HASH160 <20> OP_EQUALVERIFY OP_CHECKSIG
	case len(script) == 25 &&
		script[0] == txscript.OP_DUP &&
		script[1] == txscript.OP_HASH160 &&
		script[2] == txscript.OP_DATA_20 &&
		script[23] == txscript.OP_EQUALVERIFY &&
		script[24] == txscript.OP_CHECKSIG:

		return true

	// P2SH: OP_HASH160 <20> OP_EQUAL
	case len(script) == 23 &&
		script[0] == txscript.OP_HASH160 &&
		script[1] == txscript.OP_DATA_20 &&
		script[22] == txscript.OP_EQUAL:

		return true

	// P2WPKH: OP_0 <20>
	case len(script) == 22 &&
		script[0] == txscript.OP_0 &&
		script[1] == txscript.OP_DATA_20:

		return true

	// P2WSH: OP_0 <32>
	case len(script) == 34 &&
		script[0] == txscript.OP_0 &&
		script[1] == txscript.OP_DATA_32:

		return true

	default:
		return false
	}
}

// makeClosingTx builds the cooperative close transaction for the given fee,
// paying each side's settled balance to its announced final script. The fee
// always comes out of the funder's output.
func (c *Commitments) makeClosingTx(localScript, remoteScript []byte,
	closingFee btcutil.Amount) (*wire.MsgTx, error) {

	if !IsValidFinalScriptPubkey(localScript) {
		return nil, ErrInvalidFinalScript
	}
	if !IsValidFinalScriptPubkey(remoteScript) {
		return nil, ErrInvalidFinalScript
	}

	toLocal := c.LocalCommit.Spec.ToLocal.ToSatoshis()
	toRemote := c.LocalCommit.Spec.ToRemote.ToSatoshis()
	if c.LocalParams.IsFunder {
		toLocal -= closingFee
	} else {
		toRemote -= closingFee
	}

	dustLimit := c.LocalParams.DustLimit
	if c.RemoteParams.DustLimit > dustLimit {
		dustLimit = c.RemoteParams.DustLimit
	}

	closingTx := committx.CreateCooperativeCloseTx(
		c.CommitInput.OutPoint, dustLimit, toLocal, toRemote,
		localScript, remoteScript,
	)

	return closingTx, nil
}

// firstClosingFee computes the fee of our opening mutual-close offer from
// the current fee rate and the weight of the closing transaction.
func (c *Commitments) firstClosingFee(localScript, remoteScript []byte,
	feerate chainfee.SatPerKWeight) (btcutil.Amount, error) {

	// Build a throwaway closing transaction to measure the non-witness
	// weight precisely.
	dummyTx, err := c.makeClosingTx(localScript, remoteScript, 0)
	if err != nil {
		return 0, err
	}

	weight := int64(dummyTx.SerializeSizeStripped())*4 +
		closingWitnessSize

	return feerate.FeeForWeight(weight), nil
}

// nextClosingFee converges the negotiation by averaging the last two
// offers, rounded down to an even satoshi value so both sides compute the
// same midpoint.
func nextClosingFee(localClosingFee,
	remoteClosingFee btcutil.Amount) btcutil.Amount {

	return (localClosingFee + remoteClosingFee) / 4 * 2
}

// signClosingTx produces our closing_signed message for the given fee and
// the matching unsigned transaction.
func (m *Machine) signClosingTx(c *Commitments, localScript,
	remoteScript []byte, closingFee btcutil.Amount) (*wire.MsgTx,
	*lnwire.ClosingSigned, error) {

	closingTx, err := c.makeClosingTx(localScript, remoteScript, closingFee)
	if err != nil {
		return nil, nil, err
	}

	sig, err := c.signCommitTx(m.cfg.Signer, closingTx)
	if err != nil {
		return nil, nil, err
	}

	return closingTx, &lnwire.ClosingSigned{
		ChannelID:   c.ChannelID,
		FeeSatoshis: closingFee,
		Signature:   sig,
	}, nil
}

// checkClosingSignature verifies the peer's closing_signed against the
// closing transaction implied by its fee, returning the fully signed,
// publishable transaction on success.
func (m *Machine) checkClosingSignature(c *Commitments, localScript,
	remoteScript []byte, remoteClosingFee btcutil.Amount,
	remoteSig lnwire.Sig) (*wire.MsgTx, error) {

	closingTx, err := c.makeClosingTx(
		localScript, remoteScript, remoteClosingFee,
	)
	if err != nil {
		return nil, err
	}

	err = committx.VerifySig(
		closingTx, 0, c.CommitInput.WitnessScript, c.CommitInput.TxOut,
		c.RemoteParams.Basepoints.FundingKey, remoteSig,
	)
	if err != nil {
		return nil, ErrInvalidCommitmentSignature
	}

	localSig, err := c.signCommitTx(m.cfg.Signer, closingTx)
	if err != nil {
		return nil, err
	}

	signedTx := closingTx.Copy()
	signedTx.TxIn[0].Witness = committx.SpendMultiSig(
		c.CommitInput.WitnessScript,
		c.LocalParams.Basepoints.FundingKey.SerializeCompressed(),
		append(sigToWire(localSig), byte(txscript.SigHashAll)),
		c.RemoteParams.Basepoints.FundingKey.SerializeCompressed(),
		append(sigToWire(remoteSig), byte(txscript.SigHashAll)),
	)

	return signedTx, nil
}

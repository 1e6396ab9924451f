package channel

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnforge/channeld/chainfee"
	"github.com/lnforge/channeld/committx"
	"github.com/lnforge/channeld/keychain"
)

// findOutput returns the index of the first output paying to pkScript, or
// -1.
func findOutput(tx *wire.MsgTx, pkScript []byte) int {
	for i, txOut := range tx.TxOut {
		if bytes.Equal(txOut.PkScript, pkScript) {
			return i
		}
	}

	return -1
}

// signClaim signs the single input of a claim transaction and returns the
// raw signature with the sighash flag appended, ready for a witness stack.
func (m *Machine) signClaim(claim *committx.ClaimTx,
	signDesc *keychain.SignDescriptor) ([]byte, error) {

	signDesc.WitnessScript = claim.WitnessScript
	signDesc.Output = claim.SpentOutput
	signDesc.HashType = txscript.SigHashAll
	signDesc.InputIndex = 0

	sig, err := m.cfg.Signer.SignOutputRaw(claim.Tx, signDesc)
	if err != nil {
		return nil, err
	}

	return append(sig.Serialize(), byte(txscript.SigHashAll)), nil
}

// claimDelayedOutput sweeps a to-local style output (commitment to-local or
// second-level delayed output) through its CSV branch.
func (m *Machine) claimDelayedOutput(c *Commitments, outpoint wire.OutPoint,
	output *wire.TxOut, witnessScript []byte, commitPoint *btcec.PublicKey,
	csvDelay uint32, feerate chainfee.SatPerKWeight) (*wire.MsgTx, error) {

	claim, err := committx.CreateClaimTx(
		outpoint, output, witnessScript,
		committx.ToLocalPenaltyWitnessSize, feerate,
		m.localFinalScript(c), csvDelay, 0,
	)
	if err != nil {
		return nil, err
	}

	sig, err := m.signClaim(claim, &keychain.SignDescriptor{
		KeyDesc: keychain.KeyDescriptor{
			PubKey: c.LocalParams.Basepoints.DelayBasePoint,
		},
		SingleTweak: keychain.SingleTweakBytes(
			commitPoint, c.LocalParams.Basepoints.DelayBasePoint,
		),
	})
	if err != nil {
		return nil, err
	}

	// Witness for the CSV branch: signature, an empty vector to select
	// OP_ELSE, then the script.
	claim.Tx.TxIn[0].Witness = wire.TxWitness{sig, nil, witnessScript}

	return claim.Tx, nil
}

// claimRemoteMainOutput sweeps our p2wkh main output on a remote
// commitment.
func (m *Machine) claimRemoteMainOutput(c *Commitments,
	commitTx *wire.MsgTx, commitPoint *btcec.PublicKey,
	feerate chainfee.SatPerKWeight) (*wire.MsgTx, error) {

	if c.ChannelVersion.PaysDirectlyToWallet() {
		return nil, nil
	}

	paymentBase := c.LocalParams.Basepoints.PaymentBasePoint
	ourKey := paymentBase
	var tweak []byte
	if !c.tweaklessCommit() {
		ourKey = keychain.TweakPubKey(paymentBase, commitPoint)
		tweak = keychain.SingleTweakBytes(commitPoint, paymentBase)
	}

	pkScript, err := committx.CommitScriptUnencumbered(ourKey)
	if err != nil {
		return nil, err
	}
	index := findOutput(commitTx, pkScript)
	if index < 0 {
		// Our output was trimmed; nothing to sweep.
		return nil, nil
	}

	outpoint := wire.OutPoint{
		Hash:  commitTx.TxHash(),
		Index: uint32(index),
	}
	claim, err := committx.CreateClaimTx(
		outpoint, commitTx.TxOut[index], pkScript,
		committx.P2WKHWitnessSize, feerate, m.localFinalScript(c), 0, 0,
	)
	if err != nil {
		return nil, err
	}

	sig, err := m.signClaim(claim, &keychain.SignDescriptor{
		KeyDesc: keychain.KeyDescriptor{
			PubKey: paymentBase,
		},
		SingleTweak: tweak,
	})
	if err != nil {
		return nil, err
	}

	claim.Tx.TxIn[0].Witness = wire.TxWitness{
		sig, ourKey.SerializeCompressed(),
	}

	return claim.Tx, nil
}

// localFinalScript returns the script claims pay out to.
func (m *Machine) localFinalScript(c *Commitments) []byte {
	return c.LocalParams.DefaultFinalScriptPubKey
}

// ClaimCurrentLocalCommitTxOutputs derives every claim for our own
// published commitment.
func (m *Machine) ClaimCurrentLocalCommitTxOutputs(
	c *Commitments) (*LocalCommitPublished, error) {

	commitTx := c.LocalCommit.PublishableTxs.CommitTx
	feerate := c.LocalCommit.Spec.FeePerKw

	localPoint, err := m.cfg.Revocations.PerCommitmentPoint(
		c.LocalCommit.Index,
	)
	if err != nil {
		return nil, err
	}
	keyRing := c.localCommitKeys(localPoint)

	lcp := &LocalCommitPublished{
		CommitTx:         commitTx,
		IrrevocablySpent: make(spentMap),
	}

	// Sweep our delayed main output if it materialized.
	toLocalScript, err := committx.CommitScriptToSelf(
		uint32(c.RemoteParams.ToSelfDelay), keyRing.ToLocalKey,
		keyRing.RevocationKey,
	)
	if err != nil {
		return nil, err
	}
	toLocalPkScript, err := committx.WitnessScriptHash(toLocalScript)
	if err != nil {
		return nil, err
	}
	if index := findOutput(commitTx, toLocalPkScript); index >= 0 {
		outpoint := wire.OutPoint{
			Hash:  commitTx.TxHash(),
			Index: uint32(index),
		}
		claimTx, err := m.claimDelayedOutput(
			c, outpoint, commitTx.TxOut[index], toLocalScript,
			localPoint, uint32(c.RemoteParams.ToSelfDelay), feerate,
		)
		if err != nil {
			return nil, err
		}
		lcp.ClaimMainDelayedOutputTx = claimTx
	}

	// Publish the pre-signed second-level transactions, then sweep their
	// delayed outputs.
	for _, htlcTx := range c.LocalCommit.PublishableTxs.HtlcTxsAndSigs {
		signed := htlcTx.Tx.Copy()

		// BOLT#3 second-level witness: an empty vector for
		// CHECKMULTISIG, the remote signature, ours, then the
		// preimage slot (empty for timeouts, filled by the relayer
		// for successes) and the script.
		var preimage []byte
		signed.TxIn[0].Witness = wire.TxWitness{
			nil,
			append(sigToWire(htlcTx.RemoteSig),
				byte(txscript.SigHashAll)),
			append(sigToWire(htlcTx.LocalSig),
				byte(txscript.SigHashAll)),
			preimage,
			htlcTx.Htlc.WitnessScript,
		}

		if htlcTx.Htlc.Incoming {
			lcp.HtlcSuccessTxs = append(lcp.HtlcSuccessTxs, signed)
		} else {
			lcp.HtlcTimeoutTxs = append(lcp.HtlcTimeoutTxs, signed)
		}

		delayedOutpoint := wire.OutPoint{
			Hash:  signed.TxHash(),
			Index: 0,
		}
		claimTx, err := m.claimDelayedOutput(
			c, delayedOutpoint, signed.TxOut[0],
			htlcTx.OutputScript, localPoint,
			uint32(c.RemoteParams.ToSelfDelay), feerate,
		)
		if err != nil {
			return nil, err
		}
		lcp.ClaimHtlcDelayedTxs = append(
			lcp.ClaimHtlcDelayedTxs, claimTx,
		)
	}

	return lcp, nil
}

// ClaimRemoteCommitTxOutputs derives every claim for a published remote
// commitment that we hold the spec of (their current or in-flight next
// commitment).
func (m *Machine) ClaimRemoteCommitTxOutputs(c *Commitments,
	remoteCommit *RemoteCommit,
	commitTx *wire.MsgTx) (*RemoteCommitPublished, error) {

	feerate := remoteCommit.Spec.FeePerKw
	commitPoint := remoteCommit.RemotePerCommitmentPoint
	keyRing := c.remoteCommitKeys(commitPoint)

	rcp := &RemoteCommitPublished{
		CommitTx:         commitTx,
		IrrevocablySpent: make(spentMap),
	}

	claimMain, err := m.claimRemoteMainOutput(
		c, commitTx, commitPoint, feerate,
	)
	if err != nil {
		return nil, err
	}
	rcp.ClaimMainOutputTx = claimMain

	// HTLC outputs are claimed straight off their commitment: with the
	// preimage for HTLCs they offered us, after the timeout for HTLCs we
	// offered them. The spec is theirs, so Incoming marks our offers.
	htlcTweak := keychain.SingleTweakBytes(
		commitPoint, c.LocalParams.Basepoints.HtlcBasePoint,
	)
	for _, htlc := range remoteCommit.Spec.Htlcs {
		var (
			witnessScript []byte
			err           error
		)
		if htlc.Incoming {
			witnessScript, err = committx.ReceiverHTLCScript(
				htlc.Add.Expiry, keyRing.RemoteHtlcKey,
				keyRing.LocalHtlcKey, keyRing.RevocationKey,
				htlc.Add.PaymentHash[:],
			)
		} else {
			witnessScript, err = committx.SenderHTLCScript(
				keyRing.LocalHtlcKey, keyRing.RemoteHtlcKey,
				keyRing.RevocationKey, htlc.Add.PaymentHash[:],
			)
		}
		if err != nil {
			return nil, err
		}

		pkScript, err := committx.WitnessScriptHash(witnessScript)
		if err != nil {
			return nil, err
		}
		index := findOutput(commitTx, pkScript)
		if index < 0 {
			// Trimmed on their commitment.
			continue
		}
		outpoint := wire.OutPoint{
			Hash:  commitTx.TxHash(),
			Index: uint32(index),
		}

		var lockTime uint32
		if htlc.Incoming {
			lockTime = htlc.Add.Expiry
		}
		claim, err := committx.CreateClaimTx(
			outpoint, commitTx.TxOut[index], witnessScript,
			committx.AcceptedHtlcPenaltyWitnessSize, feerate,
			m.localFinalScript(c), 0, lockTime,
		)
		if err != nil {
			return nil, err
		}

		sig, err := m.signClaim(claim, &keychain.SignDescriptor{
			KeyDesc: keychain.KeyDescriptor{
				PubKey: c.LocalParams.Basepoints.HtlcBasePoint,
			},
			SingleTweak: htlcTweak,
		})
		if err != nil {
			return nil, err
		}

		if htlc.Incoming {
			// Reclaim our offered HTLC through the timeout branch
			// of their received-HTLC script.
			claim.Tx.TxIn[0].Witness = wire.TxWitness{
				sig, nil, witnessScript,
			}
			rcp.ClaimHtlcTimeoutTxs = append(
				rcp.ClaimHtlcTimeoutTxs, claim.Tx,
			)
		} else {
			// Claim their offered HTLC with the preimage; the
			// relayer fills the preimage slot before broadcast.
			claim.Tx.TxIn[0].Witness = wire.TxWitness{
				sig, nil, witnessScript,
			}
			rcp.ClaimHtlcSuccessTxs = append(
				rcp.ClaimHtlcSuccessTxs, claim.Tx,
			)
		}
	}

	return rcp, nil
}

// ClaimRemoteCommitMainOutput sweeps only our main output of a remote
// commitment we have no spec for, the future-commitment recovery case.
func (m *Machine) ClaimRemoteCommitMainOutput(c *Commitments,
	theirPerCommitmentPoint *btcec.PublicKey, commitTx *wire.MsgTx,
	feerate chainfee.SatPerKWeight) (*RemoteCommitPublished, error) {

	claimMain, err := m.claimRemoteMainOutput(
		c, commitTx, theirPerCommitmentPoint, feerate,
	)
	if err != nil {
		return nil, err
	}

	return &RemoteCommitPublished{
		CommitTx:          commitTx,
		ClaimMainOutputTx: claimMain,
		IrrevocablySpent:  make(spentMap),
	}, nil
}

// ClaimRevokedRemoteCommitTxOutputs recognizes a revoked remote commitment
// by its obscured commitment number and derives the penalties confiscating
// every output. Returns nil when the transaction is not a revoked
// commitment of this channel.
func (m *Machine) ClaimRevokedRemoteCommitTxOutputs(c *Commitments,
	tx *wire.MsgTx) (*RevokedCommitPublished, error) {

	if len(tx.TxIn) != 1 ||
		tx.TxIn[0].PreviousOutPoint != c.CommitInput.OutPoint {

		return nil, nil
	}

	commitNumber := committx.GetStateNumHint(tx, c.obscureFactor())
	if commitNumber >= c.RemoteCommit.Index {
		return nil, nil
	}

	secret, err := c.RemotePerCommitmentSecrets.LookUp(commitNumber)
	if err != nil {
		// A commitment number we never received a revocation for is
		// not provably revoked.
		return nil, nil
	}

	secretKey, commitPoint := btcec.PrivKeyFromBytes(secret[:])
	keyRing := c.remoteCommitKeys(commitPoint)
	feerate := c.RemoteCommit.Spec.FeePerKw

	rvk := &RevokedCommitPublished{
		CommitTx:         tx,
		CommitmentNumber: commitNumber,
		IrrevocablySpent: make(spentMap),
	}
	copy(rvk.RemotePerCommitmentSecret[:], secret[:])

	// Our own main output is swept normally.
	claimMain, err := m.claimRemoteMainOutput(c, tx, commitPoint, feerate)
	if err != nil {
		return nil, err
	}
	rvk.ClaimMainOutputTx = claimMain

	revocationSignDesc := func() *keychain.SignDescriptor {
		return &keychain.SignDescriptor{
			KeyDesc: keychain.KeyDescriptor{
				PubKey: c.LocalParams.Basepoints.RevocationBasePoint,
			},
			DoubleTweak: secretKey,
		}
	}

	// Confiscate their delayed main output through the revocation
	// branch.
	toLocalScript, err := committx.CommitScriptToSelf(
		uint32(c.LocalParams.ToSelfDelay), keyRing.ToLocalKey,
		keyRing.RevocationKey,
	)
	if err != nil {
		return nil, err
	}
	toLocalPkScript, err := committx.WitnessScriptHash(toLocalScript)
	if err != nil {
		return nil, err
	}
	if index := findOutput(tx, toLocalPkScript); index >= 0 {
		outpoint := wire.OutPoint{
			Hash:  tx.TxHash(),
			Index: uint32(index),
		}
		claim, err := committx.CreateClaimTx(
			outpoint, tx.TxOut[index], toLocalScript,
			committx.ToLocalPenaltyWitnessSize, feerate,
			m.localFinalScript(c), 0, 0,
		)
		if err != nil {
			return nil, err
		}

		sig, err := m.signClaim(claim, revocationSignDesc())
		if err != nil {
			return nil, err
		}

		// A one-byte true selects the OP_IF revocation branch.
		claim.Tx.TxIn[0].Witness = wire.TxWitness{
			sig, []byte{1}, toLocalScript,
		}
		rvk.MainPenaltyTx = claim.Tx
	}

	// Confiscate every HTLC output. The scripts are rebuilt from the
	// HTLC records persisted when we signed this commitment.
	htlcInfos, err := m.cfg.HtlcInfos.ListHtlcInfos(
		c.ChannelID, commitNumber,
	)
	if err != nil {
		return nil, err
	}
	for _, info := range htlcInfos {
		scripts := make([][]byte, 0, 2)

		offered, err := committx.SenderHTLCScript(
			keyRing.LocalHtlcKey, keyRing.RemoteHtlcKey,
			keyRing.RevocationKey, info.PaymentHash[:],
		)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, offered)

		received, err := committx.ReceiverHTLCScript(
			info.CltvExpiry, keyRing.RemoteHtlcKey,
			keyRing.LocalHtlcKey, keyRing.RevocationKey,
			info.PaymentHash[:],
		)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, received)

		for _, witnessScript := range scripts {
			pkScript, err := committx.WitnessScriptHash(
				witnessScript,
			)
			if err != nil {
				return nil, err
			}
			index := findOutput(tx, pkScript)
			if index < 0 {
				continue
			}

			outpoint := wire.OutPoint{
				Hash:  tx.TxHash(),
				Index: uint32(index),
			}
			claim, err := committx.CreateClaimTx(
				outpoint, tx.TxOut[index], witnessScript,
				committx.AcceptedHtlcPenaltyWitnessSize,
				feerate, m.localFinalScript(c), 0, 0,
			)
			if err != nil {
				return nil, err
			}

			sig, err := m.signClaim(claim, revocationSignDesc())
			if err != nil {
				return nil, err
			}

			// The HTLC scripts check the raw revocation key with
			// OP_DUP OP_HASH160, so the key itself rides along.
			claim.Tx.TxIn[0].Witness = wire.TxWitness{
				sig,
				keyRing.RevocationKey.SerializeCompressed(),
				witnessScript,
			}
			rvk.HtlcPenaltyTxs = append(
				rvk.HtlcPenaltyTxs, claim.Tx,
			)
		}
	}

	return rvk, nil
}

// ClaimHtlcDelayedOutputPenalty punishes a second-level transaction the
// remote confirmed off a revoked commitment, confiscating its delayed
// output. Returns nil if the transaction doesn't spend the revoked
// commitment.
func (m *Machine) ClaimHtlcDelayedOutputPenalty(c *Commitments,
	rvk *RevokedCommitPublished, tx *wire.MsgTx) (*wire.MsgTx, error) {

	commitTxid := rvk.CommitTx.TxHash()
	spendsRevoked := false
	for _, txIn := range tx.TxIn {
		if txIn.PreviousOutPoint.Hash == commitTxid {
			spendsRevoked = true
		}
	}
	if !spendsRevoked || len(tx.TxOut) == 0 {
		return nil, nil
	}

	secretKey, commitPoint := btcec.PrivKeyFromBytes(
		rvk.RemotePerCommitmentSecret[:],
	)
	keyRing := c.remoteCommitKeys(commitPoint)

	witnessScript, err := committx.SecondLevelHtlcScript(
		keyRing.RevocationKey, keyRing.ToLocalKey,
		uint32(c.LocalParams.ToSelfDelay),
	)
	if err != nil {
		return nil, err
	}
	pkScript, err := committx.WitnessScriptHash(witnessScript)
	if err != nil {
		return nil, err
	}
	index := findOutput(tx, pkScript)
	if index < 0 {
		return nil, nil
	}

	outpoint := wire.OutPoint{Hash: tx.TxHash(), Index: uint32(index)}
	claim, err := committx.CreateClaimTx(
		outpoint, tx.TxOut[index], witnessScript,
		committx.ToLocalPenaltyWitnessSize,
		c.RemoteCommit.Spec.FeePerKw, m.localFinalScript(c), 0, 0,
	)
	if err != nil {
		return nil, err
	}

	sig, err := m.signClaim(claim, &keychain.SignDescriptor{
		KeyDesc: keychain.KeyDescriptor{
			PubKey: c.LocalParams.Basepoints.RevocationBasePoint,
		},
		DoubleTweak: secretKey,
	})
	if err != nil {
		return nil, err
	}

	claim.Tx.TxIn[0].Witness = wire.TxWitness{
		sig, []byte{1}, witnessScript,
	}

	return claim.Tx, nil
}

// spendLocalCurrent publishes our current commitment and enters Closing.
// It is the canonical response to unrecoverable protocol errors.
func (m *Machine) spendLocalCurrent(s StateWithCommitments) (State, []Action) {
	// If we're already closing, don't restart from scratch.
	if closing, ok := s.(Closing); ok {
		return closing, nil
	}

	c := s.Commits()
	lcp, err := m.ClaimCurrentLocalCommitTxOutputs(c)
	if err != nil {
		log.Errorf("ChannelPoint(%v): unable to derive local close "+
			"claims: %v", c.CommitInput.OutPoint, err)
		return s, nil
	}

	nextState := Closing{
		Commitments:          *c,
		WaitingSince:         m.cfg.Clock.Now(),
		LocalCommitPublished: lcp,
	}

	actions := []Action{StoreState{State: nextState}}
	for _, tx := range lcp.PublishableTxList() {
		actions = append(actions, PublishTx{Tx: tx})
	}
	actions = append(actions, m.watchClosingOutputs(c, lcp.CommitTx)...)

	return nextState, actions
}

// watchClosingOutputs registers confirmation and spend watches for a
// commitment and its outputs.
func (m *Machine) watchClosingOutputs(c *Commitments,
	commitTx *wire.MsgTx) []Action {

	actions := []Action{
		SendWatch{Watch: WatchConfirmed{
			ChannelID: c.ChannelID,
			TxID:      commitTx.TxHash(),
			MinDepth:  m.cfg.NodeParams.MinDepthBlocks,
			Tag:       BitcoinTxConfirmed,
		}},
	}
	commitTxid := commitTx.TxHash()
	for i := range commitTx.TxOut {
		actions = append(actions, SendWatch{Watch: WatchSpent{
			ChannelID:   c.ChannelID,
			TxID:        commitTxid,
			OutputIndex: uint32(i),
			Tag:         BitcoinOutputSpent,
		}})
	}

	return actions
}

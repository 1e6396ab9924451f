package channel

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/lnforge/channeld/lnwire"
)

// processNegotiating drives the mutual-close fee negotiation.
func (m *Machine) processNegotiating(s Negotiating, event Event) (State,
	[]Action, error) {

	switch e := event.(type) {
	case MessageReceived:
		switch msg := e.Msg.(type) {
		case *lnwire.ClosingSigned:
			return m.handleClosingSigned(s, msg)

		case *lnwire.Error:
			return m.handleRemoteError(s, msg)

		default:
			return m.unhandled(s, event)
		}

	case ExecuteCommand:
		switch cmd := e.Cmd.(type) {
		case CmdClose:
			return s, []Action{HandleCommandFailed{
				Cmd: cmd,
				Err: ErrClosingAlreadyInProgress,
			}}, nil

		case CmdForceClose:
			nextState, actions := m.spendLocalCurrent(s)
			return nextState, actions, nil

		default:
			return m.handleCommandInNonNormal(s, e)
		}

	case WatchReceived:
		if we, ok := e.Event.(WatchEventSpent); ok &&
			we.Tag == BitcoinFundingSpent {

			return m.handleFundingSpent(s, we.Tx)
		}
		return m.unhandled(s, event)

	case Disconnected:
		return Offline{Inner: s}, nil, nil

	default:
		return m.unhandled(s, event)
	}
}

func (m *Machine) handleClosingSigned(s Negotiating,
	msg *lnwire.ClosingSigned) (State, []Action, error) {

	c := s.Commitments

	// Their signature must match the closing transaction implied by the
	// fee they propose, or the negotiation is dead.
	signedTx, err := m.checkClosingSignature(
		&c, s.LocalShutdown.Address, s.RemoteShutdown.Address,
		msg.FeeSatoshis, msg.Signature,
	)
	if err != nil {
		return s, nil, err
	}

	if len(msg.ChannelData) > 0 {
		c.RemoteChannelData = msg.ChannelData
	}

	var lastLocalFee int64 = -1
	if len(s.ClosingTxProposed) > 0 {
		last := s.ClosingTxProposed[len(s.ClosingTxProposed)-1]
		lastLocalFee = int64(last.LocalClosingSigned.FeeSatoshis)
	}

	// Accept when the peer met our last offer, or when the negotiation
	// has dragged on too long to keep haggling.
	accept := int64(msg.FeeSatoshis) == lastLocalFee ||
		len(s.ClosingTxProposed) >= MaxNegotiationIterations

	if !accept && lastLocalFee >= 0 {
		next := nextClosingFee(
			btcAmount(uint64(lastLocalFee)), msg.FeeSatoshis,
		)

		// The midpoint landing on either side's offer means the
		// negotiation has converged.
		accept = int64(next) == int64(msg.FeeSatoshis) ||
			int64(next) == lastLocalFee

		if !accept {
			closingTx, closingSigned, err := m.signClosingTx(
				&c, s.LocalShutdown.Address,
				s.RemoteShutdown.Address, next,
			)
			if err != nil {
				return s, nil, err
			}

			s1 := s
			s1.Commitments = c
			s1.ClosingTxProposed = append(
				append([]ClosingTxProposed(nil),
					s.ClosingTxProposed...),
				ClosingTxProposed{
					UnsignedTx:         closingTx,
					LocalClosingSigned: closingSigned,
				},
			)
			s1.BestUnpublishedClosingTx = signedTx

			return s1, []Action{
				StoreState{State: s1},
				SendMessage{Msg: closingSigned},
			}, nil
		}
	}

	// As fundee with no opening offer we simply mirror the funder's
	// proposal back with our signature, then publish.
	var actions []Action
	if lastLocalFee < 0 || int64(msg.FeeSatoshis) != lastLocalFee {
		_, closingSigned, err := m.signClosingTx(
			&c, s.LocalShutdown.Address, s.RemoteShutdown.Address,
			msg.FeeSatoshis,
		)
		if err != nil {
			return s, nil, err
		}
		actions = append(actions, SendMessage{Msg: closingSigned})
	}

	nextState := Closing{
		Commitments:  c,
		WaitingSince: m.cfg.Clock.Now(),
		MutualCloseProposed: append(
			proposedTxs(s.ClosingTxProposed), signedTx,
		),
		MutualClosePublished: []*wire.MsgTx{signedTx},
	}

	actions = append([]Action{
		StoreState{State: nextState},
		PublishTx{Tx: signedTx},
		SendWatch{Watch: WatchConfirmed{
			ChannelID: c.ChannelID,
			TxID:      signedTx.TxHash(),
			MinDepth:  m.cfg.NodeParams.MinDepthBlocks,
			Tag:       BitcoinTxConfirmed,
		}},
	}, actions...)

	return nextState, actions, nil
}

// proposedTxs extracts the raw transactions from our offer history.
func proposedTxs(proposed []ClosingTxProposed) []*wire.MsgTx {
	txs := make([]*wire.MsgTx, 0, len(proposed))
	for _, p := range proposed {
		txs = append(txs, p.UnsignedTx)
	}

	return txs
}

// processClosing tracks confirmations of the close until everything
// relevant is deeply buried.
func (m *Machine) processClosing(s Closing, event Event) (State, []Action,
	error) {

	c := s.Commitments

	switch e := event.(type) {
	case WatchReceived:
		switch we := e.Event.(type) {
		case WatchEventSpent:
			switch we.Tag {
			case BitcoinFundingSpent:
				// Another commitment appeared on chain while
				// we were already closing (e.g. a revoked one
				// racing the mutual close).
				return m.handleFundingSpent(s, we.Tx)

			case BitcoinOutputSpent:
				return m.handleClosingOutputSpent(s, we.Tx)

			default:
				return m.unhandled(s, event)
			}

		case WatchEventConfirmed:
			if we.Tag != BitcoinTxConfirmed {
				return m.unhandled(s, event)
			}
			return m.handleClosingTxConfirmed(s, we.Tx)

		default:
			return m.unhandled(s, event)
		}

	case MessageReceived:
		switch msg := e.Msg.(type) {
		case *lnwire.Error:
			// Already on chain; the peer's opinion no longer
			// matters.
			log.Debugf("ChannelPoint(%v): ignoring error in "+
				"Closing: %v", c.CommitInput.OutPoint,
				msg.Error())
			return s, nil, nil

		default:
			return m.unhandled(s, event)
		}

	case ExecuteCommand:
		return s, []Action{HandleCommandFailed{
			Cmd: e.Cmd,
			Err: ErrClosingAlreadyInProgress,
		}}, nil

	case Disconnected:
		return Offline{Inner: s}, nil, nil

	case NewBlock:
		return s, nil, nil

	default:
		return m.unhandled(s, event)
	}
}

// handleClosingOutputSpent reacts to a spend of one of the commitment
// outputs: it registers the spender for deep confirmation and, on revoked
// closes, punishes remote second-level transactions.
func (m *Machine) handleClosingOutputSpent(s Closing,
	tx *wire.MsgTx) (State, []Action, error) {

	c := s.Commitments

	actions := []Action{SendWatch{Watch: WatchConfirmed{
		ChannelID: c.ChannelID,
		TxID:      tx.TxHash(),
		MinDepth:  m.cfg.NodeParams.MinDepthBlocks,
		Tag:       BitcoinTxConfirmed,
	}}}

	s1 := s
	changed := false
	for i, rvk := range s.RevokedCommitPublished {
		penalty, err := m.ClaimHtlcDelayedOutputPenalty(&c, rvk, tx)
		if err != nil {
			return s, nil, err
		}
		if penalty == nil {
			continue
		}

		updated := *rvk
		updated.ClaimHtlcDelayedPenaltyTxs = append(
			append([]*wire.MsgTx(nil),
				rvk.ClaimHtlcDelayedPenaltyTxs...),
			penalty,
		)

		revoked := append([]*RevokedCommitPublished(nil),
			s1.RevokedCommitPublished...)
		revoked[i] = &updated
		s1.RevokedCommitPublished = revoked
		changed = true

		actions = append(actions, PublishTx{Tx: penalty})
	}

	if changed {
		actions = append([]Action{StoreState{State: s1}}, actions...)
		return s1, actions, nil
	}

	return s, actions, nil
}

// handleClosingTxConfirmed folds a deep confirmation into every descriptor
// and checks whether the channel is done.
func (m *Machine) handleClosingTxConfirmed(s Closing,
	tx *wire.MsgTx) (State, []Action, error) {

	relevant := func(op wire.OutPoint) bool {
		return true
	}

	s1 := s
	if s1.LocalCommitPublished != nil {
		updated := *s1.LocalCommitPublished
		updated.IrrevocablySpent = recordSpends(
			updated.IrrevocablySpent, tx, relevant,
		)
		s1.LocalCommitPublished = &updated
	}
	if s1.CurrentRemoteCommitPublished != nil {
		updated := *s1.CurrentRemoteCommitPublished
		updated.IrrevocablySpent = recordSpends(
			updated.IrrevocablySpent, tx, relevant,
		)
		s1.CurrentRemoteCommitPublished = &updated
	}
	if s1.NextRemoteCommitPublished != nil {
		updated := *s1.NextRemoteCommitPublished
		updated.IrrevocablySpent = recordSpends(
			updated.IrrevocablySpent, tx, relevant,
		)
		s1.NextRemoteCommitPublished = &updated
	}
	if s1.FutureRemoteCommitPublished != nil {
		updated := *s1.FutureRemoteCommitPublished
		updated.IrrevocablySpent = recordSpends(
			updated.IrrevocablySpent, tx, relevant,
		)
		s1.FutureRemoteCommitPublished = &updated
	}
	if len(s1.RevokedCommitPublished) > 0 {
		revoked := make([]*RevokedCommitPublished, 0,
			len(s1.RevokedCommitPublished))
		for _, rvk := range s1.RevokedCommitPublished {
			updated := *rvk
			updated.IrrevocablySpent = recordSpends(
				updated.IrrevocablySpent, tx, relevant,
			)
			revoked = append(revoked, &updated)
		}
		s1.RevokedCommitPublished = revoked
	}

	if closingType, done := s1.IsClosed(tx); done {
		log.Infof("ChannelPoint(%v): closed (%v)",
			s1.Commitments.CommitInput.OutPoint, closingType)

		nextState := Closed{Final: s1}
		return nextState, []Action{StoreState{State: nextState}}, nil
	}

	return s1, []Action{StoreState{State: s1}}, nil
}

// processWaitForRemotePublish waits, after proven data loss, for the remote
// to put its current commitment on chain so we can recover our funds.
func (m *Machine) processWaitForRemotePublish(
	s WaitForRemotePublishFutureCommitment, event Event) (State, []Action,
	error) {

	c := s.Commitments

	switch e := event.(type) {
	case WatchReceived:
		we, ok := e.Event.(WatchEventSpent)
		if !ok || we.Tag != BitcoinFundingSpent {
			return m.unhandled(s, event)
		}

		rcp, err := m.ClaimRemoteCommitMainOutput(
			&c, s.RemoteChannelReestablish.LocalUnrevokedCommitPoint,
			we.Tx, c.LocalCommit.Spec.FeePerKw,
		)
		if err != nil {
			return s, nil, err
		}

		nextState := Closing{
			Commitments:                 c,
			WaitingSince:                m.cfg.Clock.Now(),
			FutureRemoteCommitPublished: rcp,
		}

		return nextState, m.closingActions(
			&c, nextState, rcp.PublishableTxList(), we.Tx,
		), nil

	case MessageReceived:
		if msg, ok := e.Msg.(*lnwire.Error); ok {
			log.Warnf("ChannelPoint(%v): peer error while "+
				"waiting for their commit: %v",
				c.CommitInput.OutPoint, msg.Error())
			return s, nil, nil
		}
		return m.unhandled(s, event)

	case Disconnected:
		return Offline{Inner: s}, nil, nil

	default:
		return m.unhandled(s, event)
	}
}

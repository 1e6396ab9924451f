package channel

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnforge/channeld/lnwire"
)

// processNormal is the operational state: HTLC traffic, signing, fee
// updates, and the entry into the shutdown flow.
func (m *Machine) processNormal(s Normal, event Event) (State, []Action,
	error) {

	switch e := event.(type) {
	case ExecuteCommand:
		return m.handleNormalCommand(s, e.Cmd)

	case MessageReceived:
		return m.handleNormalMessage(s, e.Msg)

	case WatchReceived:
		switch we := e.Event.(type) {
		case WatchEventSpent:
			if we.Tag == BitcoinFundingSpent {
				return m.handleFundingSpent(s, we.Tx)
			}
			return m.unhandled(s, event)

		case WatchEventConfirmed:
			if we.Tag == BitcoinFundingDeeplyBuried {
				s1 := s
				s1.Buried = true
				return s1, []Action{StoreState{State: s1}}, nil
			}
			return m.unhandled(s, event)

		default:
			return m.unhandled(s, event)
		}

	case NewBlock:
		// HTLC timeouts are enforced on chain; new blocks need no
		// bookkeeping here.
		return s, nil, nil

	case Disconnected:
		return Offline{Inner: s}, nil, nil

	default:
		return m.unhandled(s, event)
	}
}

func (m *Machine) handleNormalCommand(s Normal, cmd Command) (State, []Action,
	error) {

	c := s.Commitments

	switch cmd := cmd.(type) {
	case CmdAddHtlc:
		if s.LocalShutdown != nil || s.RemoteShutdown != nil {
			return s, []Action{HandleCommandFailed{
				Cmd: cmd,
				Err: ErrNoMoreHtlcsClosingInProgress,
			}}, nil
		}

		c1, add, err := c.SendAdd(cmd, m.currentBlockHeight(s))
		if err != nil {
			return s, []Action{HandleCommandFailed{
				Cmd: cmd,
				Err: err,
			}}, nil
		}

		s1 := s
		s1.Commitments = c1
		actions := []Action{SendMessage{Msg: add}}
		if cmd.Commit {
			actions = append(actions, SendToSelf{Cmd: CmdSign{}})
		}
		return s1, actions, nil

	case CmdFulfillHtlc:
		c1, fulfill, err := c.SendFulfill(cmd)
		if err != nil {
			return s, []Action{HandleCommandFailed{
				Cmd: cmd,
				Err: err,
			}}, nil
		}

		s1 := s
		s1.Commitments = c1
		actions := []Action{SendMessage{Msg: fulfill}}
		if cmd.Commit {
			actions = append(actions, SendToSelf{Cmd: CmdSign{}})
		}
		return s1, actions, nil

	case CmdFailHtlc:
		c1, fail, err := c.SendFail(cmd)
		if err != nil {
			return s, []Action{HandleCommandFailed{
				Cmd: cmd,
				Err: err,
			}}, nil
		}

		s1 := s
		s1.Commitments = c1
		actions := []Action{SendMessage{Msg: fail}}
		if cmd.Commit {
			actions = append(actions, SendToSelf{Cmd: CmdSign{}})
		}
		return s1, actions, nil

	case CmdFailMalformedHtlc:
		c1, fail, err := c.SendFailMalformed(cmd)
		if err != nil {
			return s, []Action{HandleCommandFailed{
				Cmd: cmd,
				Err: err,
			}}, nil
		}

		s1 := s
		s1.Commitments = c1
		actions := []Action{SendMessage{Msg: fail}}
		if cmd.Commit {
			actions = append(actions, SendToSelf{Cmd: CmdSign{}})
		}
		return s1, actions, nil

	case CmdUpdateFee:
		c1, update, err := c.SendFee(cmd)
		if err != nil {
			return s, []Action{HandleCommandFailed{
				Cmd: cmd,
				Err: err,
			}}, nil
		}

		s1 := s
		s1.Commitments = c1
		actions := []Action{SendMessage{Msg: update}}
		if cmd.Commit {
			actions = append(actions, SendToSelf{Cmd: CmdSign{}})
		}
		return s1, actions, nil

	case CmdSign:
		nextState, actions, err := m.handleSign(s.Commitments,
			func(c1 Commitments) State {
				s1 := s
				s1.Commitments = c1
				return s1
			})
		if err != nil {
			return s, []Action{HandleCommandFailed{
				Cmd: cmd,
				Err: err,
			}}, nil
		}
		return nextState, actions, nil

	case CmdClose:
		return m.handleClose(s, cmd)

	case CmdForceClose:
		nextState, actions := m.spendLocalCurrent(s)
		return nextState, actions, nil

	default:
		return m.unhandled(s, ExecuteCommand{Cmd: cmd})
	}
}

// handleSign signs pending changes into the remote's next commitment. The
// wrap function rebuilds the surrounding state around the updated ledger.
func (m *Machine) handleSign(c Commitments,
	wrap func(Commitments) State) (State, []Action, error) {

	// A sign request with a signature already in flight is remembered
	// and honored as soon as the revocation arrives.
	var waiting *WaitingForRevocation
	c.RemoteNextCommitInfo.WhenLeft(func(w WaitingForRevocation) {
		waiting = &w
	})
	if waiting != nil {
		waiting.ReSignAsap = true
		c1 := c
		c1.RemoteNextCommitInfo = newLeft(*waiting)
		return wrap(c1), nil, nil
	}

	c1, sig, htlcInfos, err := c.SendCommit(m.cfg.Signer)
	if err != nil {
		return nil, nil, err
	}

	nextState := wrap(c1)
	actions := []Action{}
	if len(htlcInfos) > 0 {
		actions = append(actions, StoreHtlcInfos{Htlcs: htlcInfos})
	}
	actions = append(actions,
		StoreState{State: nextState.(StateWithCommitments)},
		SendMessage{Msg: sig},
	)

	return nextState, actions, nil
}

func (m *Machine) handleNormalMessage(s Normal, msg lnwire.Message) (State,
	[]Action, error) {

	c := s.Commitments

	switch msg := msg.(type) {
	case *lnwire.UpdateAddHTLC:
		if s.LocalShutdown != nil || s.RemoteShutdown != nil {
			return s, nil, ErrNoMoreHtlcsClosingInProgress
		}
		c1, err := c.ReceiveAdd(msg)
		if err != nil {
			return s, nil, err
		}
		s1 := s
		s1.Commitments = c1
		return s1, nil, nil

	case *lnwire.UpdateFulfillHTLC:
		c1, _, err := c.ReceiveFulfill(msg)
		if err != nil {
			return s, nil, err
		}
		s1 := s
		s1.Commitments = c1
		return s1, nil, nil

	case *lnwire.UpdateFailHTLC:
		c1, _, err := c.ReceiveFail(msg)
		if err != nil {
			return s, nil, err
		}
		s1 := s
		s1.Commitments = c1
		return s1, nil, nil

	case *lnwire.UpdateFailMalformedHTLC:
		c1, _, err := c.ReceiveFailMalformed(msg)
		if err != nil {
			return s, nil, err
		}
		s1 := s
		s1.Commitments = c1
		return s1, nil, nil

	case *lnwire.UpdateFee:
		c1, err := c.ReceiveFee(
			msg, c.LocalCommit.Spec.FeePerKw,
			m.cfg.NodeParams.MaxFeerateMismatchRatio,
		)
		if err != nil {
			return s, nil, err
		}
		s1 := s
		s1.Commitments = c1
		return s1, nil, nil

	case *lnwire.CommitSig:
		return m.handleCommitSig(c, msg, func(c1 Commitments) State {
			s1 := s
			s1.Commitments = c1
			return s1
		})

	case *lnwire.RevokeAndAck:
		return m.handleRevocation(c, msg, func(c1 Commitments) State {
			s1 := s
			s1.Commitments = c1
			return s1
		})

	case *lnwire.Shutdown:
		return m.handleRemoteShutdown(s, msg)

	case *lnwire.Error:
		return m.handleRemoteError(s, msg)

	default:
		return m.unhandled(s, MessageReceived{Msg: msg})
	}
}

// handleCommitSig validates an incoming signature and answers with our
// revocation.
func (m *Machine) handleCommitSig(c Commitments, msg *lnwire.CommitSig,
	wrap func(Commitments) State) (State, []Action, error) {

	c1, revocation, err := c.ReceiveCommit(
		msg, m.cfg.Signer, m.cfg.Revocations,
	)
	if err != nil {
		return wrap(c), nil, err
	}

	// Remember the backup blob they attached; we hold it for them.
	if len(msg.ChannelData) > 0 {
		c1.RemoteChannelData = msg.ChannelData
	}

	nextState := wrap(c1)
	actions := []Action{
		StoreState{State: nextState.(StateWithCommitments)},
		SendMessage{Msg: revocation},
	}

	// Their signature may have covered changes of ours; reciprocate so
	// neither side is left waiting.
	if c1.localHasChanges() {
		canSign := true
		c1.RemoteNextCommitInfo.WhenLeft(
			func(WaitingForRevocation) { canSign = false },
		)
		if canSign {
			actions = append(actions, SendToSelf{Cmd: CmdSign{}})
		}
	}

	return nextState, actions, nil
}

// handleRevocation consumes their revocation and relays any settlements
// that just became final.
func (m *Machine) handleRevocation(c Commitments, msg *lnwire.RevokeAndAck,
	wrap func(Commitments) State) (State, []Action, error) {

	var reSignAsap bool
	c.RemoteNextCommitInfo.WhenLeft(func(w WaitingForRevocation) {
		reSignAsap = w.ReSignAsap
	})

	c1, forwards, err := c.ReceiveRevocation(msg)
	if err != nil {
		return wrap(c), nil, err
	}

	if len(msg.ChannelData) > 0 {
		c1.RemoteChannelData = msg.ChannelData
	}

	nextState := wrap(c1)
	actions := []Action{StoreState{
		State: nextState.(StateWithCommitments),
	}}
	actions = append(actions, forwards...)

	if reSignAsap && c1.localHasChanges() {
		actions = append(actions, SendToSelf{Cmd: CmdSign{}})
	}

	return nextState, actions, nil
}

// handleClose starts the cooperative close flow from our side.
func (m *Machine) handleClose(s Normal, cmd CmdClose) (State, []Action,
	error) {

	c := s.Commitments

	if s.LocalShutdown != nil {
		return s, []Action{HandleCommandFailed{
			Cmd: cmd,
			Err: ErrClosingAlreadyInProgress,
		}}, nil
	}
	if c.LocalHasUnsignedOutgoingHtlcs() {
		return s, []Action{HandleCommandFailed{
			Cmd: cmd,
			Err: ErrCannotCloseWithUnsignedOutgoingHtlcs,
		}}, nil
	}

	script := cmd.ScriptPubKey
	if script == nil {
		script = c.LocalParams.DefaultFinalScriptPubKey
	}
	if !IsValidFinalScriptPubkey(script) {
		return s, []Action{HandleCommandFailed{
			Cmd: cmd,
			Err: ErrInvalidFinalScript,
		}}, nil
	}

	localShutdown := lnwire.NewShutdown(c.ChannelID, script)

	// If the remote's final script is already known (their shutdown, or
	// the script they pinned at open time) and no HTLCs are pending, we
	// can go straight to fee negotiation.
	remoteScript := remoteFinalScript(&s)
	if remoteScript != nil && c.HasNoPendingHtlcs() {
		remoteShutdown := s.RemoteShutdown
		if remoteShutdown == nil {
			remoteShutdown = lnwire.NewShutdown(
				c.ChannelID, remoteScript,
			)
		}

		return m.enterNegotiating(
			c, localShutdown, remoteShutdown,
			[]Action{SendMessage{Msg: localShutdown}},
		)
	}

	s1 := s
	s1.LocalShutdown = localShutdown

	return s1, []Action{
		StoreState{State: s1},
		SendMessage{Msg: localShutdown},
	}, nil
}

// remoteFinalScript returns the remote's close script if it is already
// known.
func remoteFinalScript(s *Normal) lnwire.DeliveryAddress {
	if s.RemoteShutdown != nil {
		return s.RemoteShutdown.Address
	}
	if len(s.Commitments.RemoteParams.UpfrontShutdownScript) > 0 {
		return s.Commitments.RemoteParams.UpfrontShutdownScript
	}

	return nil
}

// enterNegotiating transitions into fee negotiation. The funder opens with
// its first offer; the fundee stays silent until the funder's
// closing_signed arrives.
func (m *Machine) enterNegotiating(c Commitments, localShutdown,
	remoteShutdown *lnwire.Shutdown, pre []Action) (State, []Action,
	error) {

	if !c.LocalParams.IsFunder {
		nextState := Negotiating{
			Commitments:    c,
			LocalShutdown:  localShutdown,
			RemoteShutdown: remoteShutdown,
		}
		actions := append([]Action{
			StoreState{State: nextState},
		}, pre...)
		return nextState, actions, nil
	}

	closingFee, err := m.firstClosingFeeFor(&c, localShutdown,
		remoteShutdown)
	if err != nil {
		return nil, nil, err
	}

	closingTx, closingSigned, err := m.signClosingTx(
		&c, localShutdown.Address, remoteShutdown.Address, closingFee,
	)
	if err != nil {
		return nil, nil, err
	}

	nextState := Negotiating{
		Commitments:    c,
		LocalShutdown:  localShutdown,
		RemoteShutdown: remoteShutdown,
		ClosingTxProposed: []ClosingTxProposed{{
			UnsignedTx:         closingTx,
			LocalClosingSigned: closingSigned,
		}},
	}

	actions := append([]Action{StoreState{State: nextState}}, pre...)
	actions = append(actions, SendMessage{Msg: closingSigned})

	return nextState, actions, nil
}

// firstClosingFeeFor prices our opening close offer off the current
// commitment fee rate.
func (m *Machine) firstClosingFeeFor(c *Commitments, localShutdown,
	remoteShutdown *lnwire.Shutdown) (btcutil.Amount, error) {

	return c.firstClosingFee(
		localShutdown.Address, remoteShutdown.Address,
		c.LocalCommit.Spec.FeePerKw,
	)
}

// handleRemoteShutdown reacts to the peer initiating (or answering) the
// shutdown handshake.
func (m *Machine) handleRemoteShutdown(s Normal,
	msg *lnwire.Shutdown) (State, []Action, error) {

	c := s.Commitments

	if !IsValidFinalScriptPubkey(msg.Address) {
		return s, nil, ErrInvalidFinalScript
	}

	// A peer with unsigned outgoing HTLCs must not initiate shutdown.
	if c.RemoteHasUnsignedOutgoingHtlcs() {
		return s, nil, ErrCannotCloseWithUnsignedOutgoingHtlcs
	}

	// Our own proposals that were never signed are dead now; they can't
	// be resolved once shutdown completes.
	localShutdown := s.LocalShutdown
	var pre []Action
	if localShutdown == nil {
		script := c.LocalParams.DefaultFinalScriptPubKey
		localShutdown = lnwire.NewShutdown(c.ChannelID, script)
		pre = append(pre, SendMessage{Msg: localShutdown})
	}

	if c.HasNoPendingHtlcs() {
		return m.enterNegotiating(c, localShutdown, msg, pre)
	}

	nextState := ShuttingDown{
		Commitments:    c,
		LocalShutdown:  localShutdown,
		RemoteShutdown: msg,
	}

	actions := append([]Action{StoreState{State: nextState}}, pre...)

	return nextState, actions, nil
}

// currentBlockHeight returns the best-effort chain height for expiry
// validation. The machine tracks it through the short channel id of the
// funding confirmation; callers feeding NewBlock keep it fresh through
// commands instead.
func (m *Machine) currentBlockHeight(s Normal) uint32 {
	return s.ShortChannelID.BlockHeight
}

// processShuttingDown keeps settling HTLCs after shutdown was exchanged,
// and falls into negotiation once the channel is clean.
func (m *Machine) processShuttingDown(s ShuttingDown, event Event) (State,
	[]Action, error) {

	c := s.Commitments

	switch e := event.(type) {
	case MessageReceived:
		switch msg := e.Msg.(type) {
		case *lnwire.UpdateFulfillHTLC:
			c1, _, err := c.ReceiveFulfill(msg)
			if err != nil {
				return s, nil, err
			}
			s1 := s
			s1.Commitments = c1
			return s1, nil, nil

		case *lnwire.UpdateFailHTLC:
			c1, _, err := c.ReceiveFail(msg)
			if err != nil {
				return s, nil, err
			}
			s1 := s
			s1.Commitments = c1
			return s1, nil, nil

		case *lnwire.UpdateFailMalformedHTLC:
			c1, _, err := c.ReceiveFailMalformed(msg)
			if err != nil {
				return s, nil, err
			}
			s1 := s
			s1.Commitments = c1
			return s1, nil, nil

		case *lnwire.UpdateFee:
			c1, err := c.ReceiveFee(
				msg, c.LocalCommit.Spec.FeePerKw,
				m.cfg.NodeParams.MaxFeerateMismatchRatio,
			)
			if err != nil {
				return s, nil, err
			}
			s1 := s
			s1.Commitments = c1
			return s1, nil, nil

		case *lnwire.UpdateAddHTLC:
			// New HTLCs are forbidden once shutdown is
			// exchanged.
			return s, nil, ErrNoMoreHtlcsClosingInProgress

		case *lnwire.CommitSig:
			return m.handleShutdownSettled(s, func() (State,
				[]Action, error) {

				return m.handleCommitSig(c, msg,
					func(c1 Commitments) State {
						s1 := s
						s1.Commitments = c1
						return s1
					})
			})

		case *lnwire.RevokeAndAck:
			return m.handleShutdownSettled(s, func() (State,
				[]Action, error) {

				return m.handleRevocation(c, msg,
					func(c1 Commitments) State {
						s1 := s
						s1.Commitments = c1
						return s1
					})
			})

		case *lnwire.Error:
			return m.handleRemoteError(s, msg)

		default:
			return m.unhandled(s, event)
		}

	case ExecuteCommand:
		switch cmd := e.Cmd.(type) {
		case CmdFulfillHtlc:
			c1, fulfill, err := c.SendFulfill(cmd)
			if err != nil {
				return s, []Action{HandleCommandFailed{
					Cmd: cmd,
					Err: err,
				}}, nil
			}
			s1 := s
			s1.Commitments = c1
			actions := []Action{SendMessage{Msg: fulfill}}
			if cmd.Commit {
				actions = append(actions, SendToSelf{
					Cmd: CmdSign{},
				})
			}
			return s1, actions, nil

		case CmdFailHtlc:
			c1, fail, err := c.SendFail(cmd)
			if err != nil {
				return s, []Action{HandleCommandFailed{
					Cmd: cmd,
					Err: err,
				}}, nil
			}
			s1 := s
			s1.Commitments = c1
			actions := []Action{SendMessage{Msg: fail}}
			if cmd.Commit {
				actions = append(actions, SendToSelf{
					Cmd: CmdSign{},
				})
			}
			return s1, actions, nil

		case CmdFailMalformedHtlc:
			c1, fail, err := c.SendFailMalformed(cmd)
			if err != nil {
				return s, []Action{HandleCommandFailed{
					Cmd: cmd,
					Err: err,
				}}, nil
			}
			s1 := s
			s1.Commitments = c1
			actions := []Action{SendMessage{Msg: fail}}
			if cmd.Commit {
				actions = append(actions, SendToSelf{
					Cmd: CmdSign{},
				})
			}
			return s1, actions, nil

		case CmdSign:
			nextState, actions, err := m.handleSign(c,
				func(c1 Commitments) State {
					s1 := s
					s1.Commitments = c1
					return s1
				})
			if err != nil {
				return s, []Action{HandleCommandFailed{
					Cmd: cmd,
					Err: err,
				}}, nil
			}
			return nextState, actions, nil

		case CmdClose:
			return s, []Action{HandleCommandFailed{
				Cmd: cmd,
				Err: ErrClosingAlreadyInProgress,
			}}, nil

		case CmdForceClose:
			nextState, actions := m.spendLocalCurrent(s)
			return nextState, actions, nil

		case CmdAddHtlc:
			return s, []Action{HandleCommandFailed{
				Cmd: cmd,
				Err: ErrNoMoreHtlcsClosingInProgress,
			}}, nil

		default:
			return m.unhandled(s, event)
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

// handleShutdownSettled runs a commitment-flow step and, if the channel is
// HTLC-free afterwards, rolls into fee negotiation.
func (m *Machine) handleShutdownSettled(s ShuttingDown,
	step func() (State, []Action, error)) (State, []Action, error) {

	nextState, actions, err := step()
	if err != nil {
		return nextState, actions, err
	}

	settled, ok := nextState.(ShuttingDown)
	if !ok || !settled.Commitments.HasNoPendingHtlcs() {
		return nextState, actions, nil
	}

	negotiating, negotiateActions, err := m.enterNegotiating(
		settled.Commitments, settled.LocalShutdown,
		settled.RemoteShutdown, nil,
	)
	if err != nil {
		return nextState, actions, err
	}

	return negotiating, append(actions, negotiateActions...), nil
}

// handleFundingSpent classifies a funding-output spend and enters Closing
// with the matching claim set.
func (m *Machine) handleFundingSpent(s StateWithCommitments,
	tx *wire.MsgTx) (State, []Action, error) {

	c := s.Commits()
	txid := tx.TxHash()

	// A mutual close we already published and recorded needs no new
	// reaction.
	if closing, ok := s.(Closing); ok {
		for _, mutualClose := range closing.MutualClosePublished {
			if mutualClose.TxHash() == txid {
				return closing, nil, nil
			}
		}
	}

	// Our own commitment confirming is the local close path.
	if txid == c.LocalCommit.PublishableTxs.CommitTx.TxHash() {
		nextState, actions := m.spendLocalCurrent(s)
		return nextState, actions, nil
	}

	// Their current commitment.
	if txid == c.RemoteCommit.Txid {
		rcp, err := m.ClaimRemoteCommitTxOutputs(
			c, &c.RemoteCommit, tx,
		)
		if err != nil {
			return s, nil, err
		}

		nextState := m.closingFrom(s)
		nextState.CurrentRemoteCommitPublished = rcp

		return nextState, m.closingActions(c, nextState, rcp.PublishableTxList(), tx), nil
	}

	// Their signed-but-unrevoked next commitment.
	var nextRemote *RemoteCommit
	c.RemoteNextCommitInfo.WhenLeft(func(w WaitingForRevocation) {
		nextRemote = &w.NextRemoteCommit
	})
	if nextRemote != nil && txid == nextRemote.Txid {
		rcp, err := m.ClaimRemoteCommitTxOutputs(c, nextRemote, tx)
		if err != nil {
			return s, nil, err
		}

		nextState := m.closingFrom(s)
		nextState.NextRemoteCommitPublished = rcp

		return nextState, m.closingActions(c, nextState, rcp.PublishableTxList(), tx), nil
	}

	// A mutual close transaction of ours.
	if negotiating, ok := s.(Negotiating); ok {
		for _, proposed := range negotiating.ClosingTxProposed {
			if proposed.UnsignedTx.TxHash() == txid {
				nextState := m.closingFrom(s)
				nextState.MutualClosePublished = append(
					nextState.MutualClosePublished, tx,
				)
				return nextState, m.closingActions(
					c, nextState, nil, tx,
				), nil
			}
		}
	}

	// A revoked commitment: punish it.
	rvk, err := m.ClaimRevokedRemoteCommitTxOutputs(c, tx)
	if err != nil {
		return s, nil, err
	}
	if rvk != nil {
		nextState := m.closingFrom(s)
		nextState.RevokedCommitPublished = append(
			nextState.RevokedCommitPublished, rvk,
		)
		return nextState, m.closingActions(
			c, nextState, rvk.PublishableTxList(), tx,
		), nil
	}

	// An unrecognizable spend of the funding output means our state can
	// no longer be trusted.
	log.Criticalf("ChannelPoint(%v): funding output spent by unknown "+
		"transaction %v", c.CommitInput.OutPoint, txid)

	nextState := ErrorInformationLeak{Commitments: *c}

	return nextState, []Action{
		StoreState{State: nextState},
		SendMessage{Msg: lnwire.NewError(
			c.ChannelID, ErrFundingTxSpent.Error(),
		)},
	}, nil
}

// closingFrom carries existing closing descriptors over when we were
// already in Closing, or starts a fresh one.
func (m *Machine) closingFrom(s StateWithCommitments) Closing {
	if closing, ok := s.(Closing); ok {
		return closing
	}

	closing := Closing{
		Commitments:  *s.Commits(),
		WaitingSince: m.cfg.Clock.Now(),
	}
	if confirmed, ok := s.(WaitForFundingConfirmed); ok {
		closing.FundingTx = confirmed.FundingTx
	}

	return closing
}

// closingActions is the standard action bundle on entering (or extending)
// Closing: persist first, then publish and watch.
func (m *Machine) closingActions(c *Commitments, nextState Closing,
	publishable []*wire.MsgTx, spendingTx *wire.MsgTx) []Action {

	actions := []Action{StoreState{State: nextState}}
	for _, tx := range publishable {
		actions = append(actions, PublishTx{Tx: tx})
	}
	actions = append(actions, m.watchClosingOutputs(c, spendingTx)...)

	return actions
}

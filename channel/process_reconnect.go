package channel

import (
	"github.com/lnforge/channeld/lnwire"
)

// processOffline holds a committed state while the transport is down.
// Chain keeps moving, so watch events and blocks are still processed
// against the inner state.
func (m *Machine) processOffline(s Offline, event Event) (State, []Action,
	error) {

	switch e := event.(type) {
	case Connected:
		waitForTheirs := e.LocalInit != nil &&
			e.LocalInit.Features.HasFeature(
				lnwire.ChannelBackupClient-1,
			)

		// A channel that already proved data loss only repeats its
		// plea for the remote to publish.
		if inner, ok := s.Inner.(WaitForRemotePublishFutureCommitment); ok {
			return Syncing{
					Inner:                          inner,
					WaitForTheirReestablishMessage: waitForTheirs,
				}, []Action{SendMessage{
					Msg: lnwire.NewError(
						inner.ChanID(),
						"please publish your local commitment",
					),
				}}, nil
		}

		nextState := Syncing{
			Inner:                          s.Inner,
			WaitForTheirReestablishMessage: waitForTheirs,
		}

		// Unless we must wait for their reestablish (to give a
		// possible backup recovery the chance to rewrite our state),
		// we speak first.
		if waitForTheirs {
			return nextState, nil, nil
		}

		reestablish, err := m.makeChannelReestablish(s.Inner.Commits())
		if err != nil {
			return s, nil, err
		}

		return nextState, []Action{SendMessage{Msg: reestablish}}, nil

	case WatchReceived, NewBlock:
		return m.delegateToInner(s.Inner, event, func(
			inner StateWithCommitments) State {

			return Offline{Inner: inner}
		})

	case ExecuteCommand:
		if _, ok := e.Cmd.(CmdForceClose); ok {
			nextState, actions := m.spendLocalCurrent(s.Inner)
			return nextState, actions, nil
		}
		return s, []Action{HandleCommandFailed{
			Cmd: e.Cmd,
			Err: ErrRevocationSync,
		}}, nil

	default:
		return m.unhandled(s, event)
	}
}

// delegateToInner runs an event against the wrapped state and re-wraps the
// result unless the transition left the cooperative protocol entirely.
func (m *Machine) delegateToInner(inner StateWithCommitments, event Event,
	wrap func(StateWithCommitments) State) (State, []Action, error) {

	nextInner, actions, err := m.processInternal(inner, event)
	if err != nil {
		return wrap(inner), actions, err
	}

	switch next := nextInner.(type) {
	case Closing, Closed, Aborted, ErrorInformationLeak:
		return nextInner, actions, nil

	case StateWithCommitments:
		return wrap(next), actions, nil

	default:
		return nextInner, actions, nil
	}
}

// processSyncing completes the reconnection handshake.
func (m *Machine) processSyncing(s Syncing, event Event) (State, []Action,
	error) {

	switch e := event.(type) {
	case MessageReceived:
		switch msg := e.Msg.(type) {
		case *lnwire.ChannelReestablish:
			return m.handleReestablish(s, msg)

		case *lnwire.Error:
			return m.handleRemoteError(s.Inner, msg)

		default:
			return m.unhandled(s, event)
		}

	case WatchReceived, NewBlock:
		return m.delegateToInner(s.Inner, event, func(
			inner StateWithCommitments) State {

			return Syncing{
				Inner: inner,
				WaitForTheirReestablishMessage: s.
					WaitForTheirReestablishMessage,
			}
		})

	case Disconnected:
		return Offline{Inner: s.Inner}, nil, nil

	default:
		return m.unhandled(s, event)
	}
}

// handleReestablish is the heart of reconnection: possibly recover from
// the peer-held backup, detect proven data loss, retransmit whatever was
// lost, and fall back into the underlying state.
func (m *Machine) handleReestablish(s Syncing,
	msg *lnwire.ChannelReestablish) (State, []Action, error) {

	inner := s.Inner
	var actions []Action

	// If the peer echoed back a backup that is strictly more recent
	// than what we hold, we lost state: adopt the recovered one before
	// doing anything else.
	if len(msg.ChannelData) > 0 {
		recovered, err := m.decryptStateBackup(msg.ChannelData)
		switch {
		case err != nil:
			log.Warnf("ChannelPoint(%v): invalid channel backup "+
				"in reestablish: %v",
				inner.Commits().CommitInput.OutPoint, err)

		case isMoreRecent(inner, recovered):
			log.Infof("ChannelPoint(%v): recovering from "+
				"peer-held backup (local commit %v -> %v)",
				inner.Commits().CommitInput.OutPoint,
				inner.Commits().LocalCommit.Index,
				recovered.Commits().LocalCommit.Index)
			inner = recovered
			actions = append(actions, StoreState{State: inner})
		}
	}

	// If we held our reestablish back waiting for theirs, send it now,
	// computed over the possibly recovered state.
	if s.WaitForTheirReestablishMessage {
		reestablish, err := m.makeChannelReestablish(inner.Commits())
		if err != nil {
			return s, actions, err
		}
		actions = append(actions, SendMessage{Msg: reestablish})
	}

	c := inner.Commits()

	// A peer ahead of our commitment chain must prove it with one of
	// our own secrets. Proven: all we can do is ask them to close.
	// Unproven: they are lying, and we fall back to our own commitment.
	if msg.NextRemoteRevocationNumber > c.LocalCommit.Index {
		if !m.provedWeAreOutdated(c, msg) {
			return s, actions, ErrRevocationSync
		}

		nextState := WaitForRemotePublishFutureCommitment{
			Commitments:              *c,
			RemoteChannelReestablish: msg,
		}

		actions = append(actions,
			StoreState{State: nextState},
			SendMessage{Msg: lnwire.NewError(
				c.ChannelID,
				"please publish your local commitment",
			)},
		)

		return nextState, actions, nil
	}

	c1, syncActions, err := m.handleSync(*c, msg)
	if err != nil {
		return s, actions, err
	}

	// Rebuild the inner state around the reconciled ledger, replaying
	// whatever handshake message the inner state was waiting on.
	switch inner := inner.(type) {
	case WaitForFundingConfirmed:
		inner.Commitments = c1
		return inner, actions, nil

	case WaitForFundingLocked:
		inner.Commitments = c1
		actions = append(actions, SendMessage{Msg: inner.LastSent})
		return inner, append(actions, syncActions...), nil

	case Normal:
		inner.Commitments = c1
		if inner.LocalShutdown != nil {
			actions = append(actions, SendMessage{
				Msg: inner.LocalShutdown,
			})
		}
		return inner, append(actions, syncActions...), nil

	case ShuttingDown:
		inner.Commitments = c1
		actions = append(actions, SendMessage{
			Msg: inner.LocalShutdown,
		})
		return inner, append(actions, syncActions...), nil

	case Negotiating:
		inner.Commitments = c1
		actions = append(actions, SendMessage{
			Msg: inner.LocalShutdown,
		})

		// The funder restarts negotiation from its last offer.
		if c1.LocalParams.IsFunder &&
			len(inner.ClosingTxProposed) > 0 {

			last := inner.ClosingTxProposed[len(
				inner.ClosingTxProposed)-1]
			actions = append(actions, SendMessage{
				Msg: last.LocalClosingSigned,
			})
		}
		return inner, actions, nil

	case Closing:
		// Nothing to say to the peer; the chain decides from here.
		return inner, actions, nil

	default:
		return inner, append(actions, syncActions...), nil
	}
}

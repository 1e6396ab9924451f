package channel

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"

	"github.com/lnforge/channeld/lnwire"
)

// Process feeds one event through the machine, returning the next state and
// the ordered side effects the caller must execute. It is total: any
// failure raised by a transition is converted into the canonical
// local-error outcome, and unhandled (state, event) pairs leave the state
// untouched.
func (m *Machine) Process(state State, event Event) (nextState State,
	actions []Action) {

	// The transition functions report failures as values; a panic can
	// only mean a defect, and even then the channel must land in a safe
	// state rather than take the process down.
	defer func() {
		if r := recover(); r != nil {
			nextState, actions = m.handleLocalError(
				state, event, fmt.Errorf("panic: %v", r),
			)
		}
	}()

	nextState, actions, err := m.processInternal(state, event)
	if err != nil {
		nextState, actions = m.handleLocalError(state, event, err)
	}

	return nextState, m.maybeAttachBackups(nextState, actions)
}

// processInternal dispatches on the current state. Errors returned here are
// local failures; protocol rejections that don't endanger the channel are
// reported through HandleCommandFailed actions instead.
func (m *Machine) processInternal(state State, event Event) (State, []Action,
	error) {

	switch s := state.(type) {
	case WaitForInit:
		return m.processWaitForInit(s, event)
	case WaitForOpenChannel:
		return m.processWaitForOpenChannel(s, event)
	case WaitForAcceptChannel:
		return m.processWaitForAcceptChannel(s, event)
	case WaitForFundingInternal:
		return m.processWaitForFundingInternal(s, event)
	case WaitForFundingCreated:
		return m.processWaitForFundingCreated(s, event)
	case WaitForFundingSigned:
		return m.processWaitForFundingSigned(s, event)
	case WaitForFundingConfirmed:
		return m.processWaitForFundingConfirmed(s, event)
	case WaitForFundingLocked:
		return m.processWaitForFundingLocked(s, event)
	case Normal:
		return m.processNormal(s, event)
	case ShuttingDown:
		return m.processShuttingDown(s, event)
	case Negotiating:
		return m.processNegotiating(s, event)
	case Closing:
		return m.processClosing(s, event)
	case Closed:
		return m.unhandled(s, event)
	case Aborted:
		return m.unhandled(s, event)
	case Offline:
		return m.processOffline(s, event)
	case Syncing:
		return m.processSyncing(s, event)
	case WaitForRemotePublishFutureCommitment:
		return m.processWaitForRemotePublish(s, event)
	case ErrorInformationLeak:
		return m.unhandled(s, event)
	default:
		return m.unhandled(state, event)
	}
}

// unhandled logs and ignores an event the current state has no rule for.
func (m *Machine) unhandled(state State, event Event) (State, []Action, error) {
	log.Warnf("unhandled event %T in state %v", event, state.Name())
	log.Tracef("unhandled event detail: %v", func() string {
		return spew.Sdump(event)
	}())

	return state, nil, nil
}

// handleLocalError maps a caught local failure onto the pre-event state:
// with no commitments, or with nothing at stake, the channel is abandoned
// with an error message; otherwise we go to chain with our current
// commitment, again sending an error message.
func (m *Machine) handleLocalError(state State, event Event,
	err error) (State, []Action) {

	log.Errorf("local error in state %v while processing %T: %v",
		state.Name(), event, err)

	failure := ProcessLocalFailure{Err: err, Event: event}

	committed, ok := state.(StateWithCommitments)
	if !ok {
		chanID := lnwire.ChannelID{}
		switch s := state.(type) {
		case WaitForOpenChannel:
			chanID = s.Init.TemporaryChannelID
		case WaitForAcceptChannel:
			chanID = s.Init.TemporaryChannelID
		case WaitForFundingInternal:
			chanID = s.TemporaryChannelID
		case WaitForFundingCreated:
			chanID = s.TemporaryChannelID
		case WaitForFundingSigned:
			chanID = s.ChannelID
		}

		return Aborted{ChannelID: chanID}, []Action{
			failure,
			SendMessage{Msg: lnwire.NewError(
				chanID, err.Error(),
			)},
		}
	}

	errMsg := lnwire.NewError(committed.ChanID(), err.Error())

	if committed.Commits().NothingAtStake() {
		return Aborted{ChannelID: committed.ChanID()}, []Action{
			failure,
			SendMessage{Msg: errMsg},
		}
	}

	nextState, actions := m.spendLocalCurrent(committed)

	return nextState, append(
		[]Action{failure, SendMessage{Msg: errMsg}}, actions...,
	)
}

// handleRemoteError reacts to a peer error message: not recoverable, so we
// go to chain unless there is nothing to protect.
func (m *Machine) handleRemoteError(s StateWithCommitments,
	msg *lnwire.Error) (State, []Action, error) {

	log.Warnf("ChannelPoint(%v): peer sent error: %v",
		s.Commits().CommitInput.OutPoint, msg.Error())

	if s.Commits().NothingAtStake() {
		return Aborted{ChannelID: s.ChanID()}, nil, nil
	}

	nextState, actions := m.spendLocalCurrent(s)

	return nextState, actions, nil
}

// maybeAttachBackups enriches outgoing backup-carrier messages with an
// encrypted snapshot of the post-transition state when the channel has
// opted into peer-held backups.
func (m *Machine) maybeAttachBackups(state State, actions []Action) []Action {
	committed, ok := state.(StateWithCommitments)
	if !ok {
		return actions
	}
	if !m.backupFeatureEnabled(committed.Commits()) {
		return actions
	}

	hasCarrier := false
	for _, action := range actions {
		if send, ok := action.(SendMessage); ok {
			if _, ok := send.Msg.(lnwire.BackupCarrier); ok {
				hasCarrier = true
				break
			}
		}
	}
	if !hasCarrier {
		return actions
	}

	backup, err := m.encryptStateBackup(committed)
	if err != nil {
		// The backup is best effort: losing it never blocks the
		// channel.
		log.Errorf("ChannelPoint(%v): unable to build channel "+
			"backup: %v",
			committed.Commits().CommitInput.OutPoint, err)
		return actions
	}

	out := make([]Action, len(actions))
	for i, action := range actions {
		if send, ok := action.(SendMessage); ok {
			if carrier, ok := send.Msg.(lnwire.BackupCarrier); ok {
				carrier.SetChannelBackup(backup)
				out[i] = SendMessage{Msg: carrier}
				continue
			}
		}
		out[i] = action
	}

	return out
}

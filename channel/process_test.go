package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnforge/channeld/lnwire"
)

// TestProcessTotality feeds every event kind into states that have no rule
// for them and checks the machine neither panics nor changes state.
func TestProcessTotality(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	events := []Event{
		MessageReceived{Msg: &lnwire.FundingLocked{}},
		MessageReceived{Msg: &lnwire.OpenChannel{}},
		MakeFundingTxResponse{},
		WatchReceived{Event: WatchEventConfirmed{
			Tag: BitcoinFundingDepthOk,
		}},
	}

	states := []State{
		alice.state,
		Closed{Final: Closing{}},
		Aborted{},
		WaitForInit{},
	}

	for _, state := range states {
		for _, event := range events {
			nextState, _ := alice.machine.Process(state, event)
			require.Equal(
				t, state.Name(), nextState.Name(),
				"state %v changed on %T", state.Name(), event,
			)
		}
	}
}

// TestLocalErrorNothingAtStake aborts a channel whose failure costs
// nothing: a protocol error before any balance movement yields Aborted
// plus an error message.
func TestLocalErrorNothingAtStake(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)

	var tempChanID [32]byte
	alice.process(InitFunder{
		TemporaryChannelID:    tempChanID,
		FundingAmount:         testFundingAmount,
		InitialFeeratePerKw:   2500,
		FundingTxFeeratePerKw: 2500,
		LocalParams:           alice.localParams(true),
		ChannelVersion:        VersionStandard,
	})

	// A malformed accept (nil keys) trips signature/commitment
	// construction; pre-funding that must end in Aborted.
	require.NotPanics(t, func() {
		alice.process(MessageReceived{Msg: &lnwire.AcceptChannel{
			PendingChannelID: tempChanID,
			DustLimit:        546,
			ChannelReserve:   10_000,
			CsvDelay:         144,
			MaxAcceptedHTLCs: 30,
		}})
	})

	require.IsType(t, Aborted{}, alice.state)
}

// TestRemoteErrorForceCloses goes to chain on a peer error once there is
// something at stake.
func TestRemoteErrorForceCloses(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	chanID := alice.state.(Normal).Commitments.ChannelID
	alice.process(MessageReceived{
		Msg: lnwire.NewError(chanID, "remote says no"),
	})

	require.IsType(t, Closing{}, alice.state)
	closing := alice.state.(Closing)
	require.NotNil(t, closing.LocalCommitPublished)
	require.NotEmpty(t, alice.published)
}

// TestStoreStateOrdering asserts the crash-safety ordering invariant: in
// every transition that both persists and broadcasts, the StoreState comes
// before any PublishTx or SendWatch.
func TestStoreStateOrdering(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	actions := alice.process(ExecuteCommand{Cmd: CmdForceClose{}})

	storeIndex, publishIndex, watchIndex := -1, -1, -1
	for i, action := range actions {
		switch action.(type) {
		case StoreState:
			if storeIndex == -1 {
				storeIndex = i
			}
		case PublishTx:
			if publishIndex == -1 {
				publishIndex = i
			}
		case SendWatch:
			if watchIndex == -1 {
				watchIndex = i
			}
		}
	}

	require.NotEqual(t, -1, storeIndex)
	require.NotEqual(t, -1, publishIndex)
	require.NotEqual(t, -1, watchIndex)
	require.Less(t, storeIndex, publishIndex)
	require.Less(t, storeIndex, watchIndex)
}

// TestStoreHtlcInfosPrecedesCommitSig asserts the durability ordering of
// HTLC records relative to the signature that commits to them.
func TestStoreHtlcInfosPrecedesCommitSig(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	var paymentHash [32]byte
	paymentHash[2] = 3
	alice.process(ExecuteCommand{Cmd: CmdAddHtlc{
		Amount:      lnwire.NewMSatFromSatoshis(100_000),
		PaymentHash: paymentHash,
		Expiry:      400_040,
		Origin:      LocalOrigin{},
	}})

	actions := alice.process(ExecuteCommand{Cmd: CmdSign{}})

	htlcInfosIndex, commitSigIndex := -1, -1
	for i, action := range actions {
		switch a := action.(type) {
		case StoreHtlcInfos:
			htlcInfosIndex = i
		case SendMessage:
			if _, ok := a.Msg.(*lnwire.CommitSig); ok {
				commitSigIndex = i
			}
		}
	}

	require.NotEqual(t, -1, htlcInfosIndex)
	require.NotEqual(t, -1, commitSigIndex)
	require.Less(t, htlcInfosIndex, commitSigIndex)
}

// TestCommandsFailedInClosing rejects channel commands once the close is
// on chain, without state changes.
func TestCommandsFailedInClosing(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	alice.process(ExecuteCommand{Cmd: CmdForceClose{}})
	require.IsType(t, Closing{}, alice.state)

	alice.process(ExecuteCommand{Cmd: CmdClose{}})
	require.IsType(t, Closing{}, alice.state)
	require.NotEmpty(t, alice.failures)
	require.ErrorIs(
		t, alice.failures[len(alice.failures)-1].Err,
		ErrClosingAlreadyInProgress,
	)
}

// TestRestoreClosingRepublishes re-installs a persisted Closing channel:
// every publishable transaction is re-broadcast and re-watched.
func TestRestoreClosingRepublishes(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	// Only the closing transactions count; the funding transaction
	// alice published during the open is not part of Closing.
	publishedAtOpen := len(alice.published)
	alice.process(ExecuteCommand{Cmd: CmdForceClose{}})
	closing := alice.state.(Closing)
	publishedBefore := len(alice.published) - publishedAtOpen

	// A fresh machine restores the persisted state.
	restored := newTestPeer(1)
	restored.process(Restore{State: closing})

	require.IsType(t, Offline{}, restored.state)
	require.Len(t, restored.published, publishedBefore)
	require.NotEmpty(t, restored.watches)
}

package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnforge/channeld/lnwire"
)

// reconnect wraps both peers in Offline and brings them back up, leaving
// the reestablish messages each side produced in its outbox.
func reconnect(alice, bob *testPeer) {
	alice.process(Disconnected{})
	bob.process(Disconnected{})

	emptyInit := lnwire.NewInitMessage(
		lnwire.NewRawFeatureVector(), lnwire.NewRawFeatureVector(),
	)
	connected := Connected{LocalInit: emptyInit, RemoteInit: emptyInit}
	alice.process(connected)
	bob.process(connected)
}

// TestDisconnectReconnectQuiescent checks the plain reconnection of a
// quiescent channel: both sides emit a reestablish with the expected
// commitment numbers and fall back into Normal with nothing to retransmit.
func TestDisconnectReconnectQuiescent(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	reconnect(alice, bob)

	require.IsType(t, Syncing{}, alice.state)
	require.IsType(t, Syncing{}, bob.state)

	aliceSent := alice.drainMessages()
	require.Len(t, aliceSent, 1)
	aliceReestablish, ok := aliceSent[0].(*lnwire.ChannelReestablish)
	require.True(t, ok)
	require.EqualValues(t, 1, aliceReestablish.NextLocalCommitmentNumber)
	require.EqualValues(t, 0, aliceReestablish.NextRemoteRevocationNumber)
	require.NotNil(t, aliceReestablish.LocalUnrevokedCommitPoint)

	bobSent := bob.drainMessages()
	require.Len(t, bobSent, 1)
	bobReestablish := bobSent[0].(*lnwire.ChannelReestablish)

	alice.process(MessageReceived{Msg: bobReestablish})
	bob.process(MessageReceived{Msg: aliceReestablish})

	require.IsType(t, Normal{}, alice.state)
	require.IsType(t, Normal{}, bob.state)
	require.Empty(t, alice.drainMessages())
	require.Empty(t, bob.drainMessages())
}

// TestReconnectAfterLostRevocation replays the lost-revocation recovery:
// bob's revoke_and_ack (and reciprocal commit_sig) never reach alice, so on
// reconnection bob must retransmit the revocation.
func TestReconnectAfterLostRevocation(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	// Alice offers and signs; bob processes both but his answers are
	// dropped on the floor.
	_, err := addTestHtlcNoDelivery(alice, bob)
	require.NoError(t, err)
	bob.drainMessages()

	reconnect(alice, bob)

	aliceReestablish := alice.drainMessages()[0].(*lnwire.ChannelReestablish)
	bobReestablish := bob.drainMessages()[0].(*lnwire.ChannelReestablish)

	// Bob already revoked commitment 0, alice never saw it.
	require.EqualValues(t, 2, bobReestablish.NextLocalCommitmentNumber)
	require.EqualValues(t, 0, aliceReestablish.NextRemoteRevocationNumber)

	// On alice's reestablish bob detects the lost revocation and
	// retransmits it.
	bob.process(MessageReceived{Msg: aliceReestablish})
	require.IsType(t, Normal{}, bob.state)

	bobSent := bob.drainMessages()
	require.NotEmpty(t, bobSent)
	revocation, ok := bobSent[0].(*lnwire.RevokeAndAck)
	require.True(t, ok)

	// Alice syncs too, then consumes the replayed revocation.
	alice.process(MessageReceived{Msg: bobReestablish})
	require.IsType(t, Normal{}, alice.state)

	alice.process(MessageReceived{Msg: revocation})
	aliceCommits := alice.state.(Normal).Commitments
	require.EqualValues(t, 1, aliceCommits.RemoteCommit.Index)
}

// TestReconnectRetransmitsCommitSig covers the opposite loss: alice's
// commit_sig never reached bob, so alice must replay the signed updates
// and the identical signature.
func TestReconnectRetransmitsCommitSig(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	// Alice signs but nothing reaches bob.
	_, err := addTestHtlcNoDelivery(alice, nil)
	require.NoError(t, err)
	originalSent := alice.drainMessages()
	require.Len(t, originalSent, 2)
	originalSig := originalSent[1].(*lnwire.CommitSig)

	reconnect(alice, bob)

	aliceReestablish := alice.drainMessages()[0].(*lnwire.ChannelReestablish)
	bobReestablish := bob.drainMessages()[0].(*lnwire.ChannelReestablish)

	// Bob never saw the signature: his next expected commitment is
	// still 1.
	require.EqualValues(t, 1, bobReestablish.NextLocalCommitmentNumber)

	alice.process(MessageReceived{Msg: bobReestablish})
	require.IsType(t, Normal{}, alice.state)

	// Alice replays the add and the very same commit_sig.
	aliceSent := alice.drainMessages()
	require.Len(t, aliceSent, 2)
	replayedAdd, ok := aliceSent[0].(*lnwire.UpdateAddHTLC)
	require.True(t, ok)
	require.EqualValues(t, 0, replayedAdd.ID)

	replayedSig, ok := aliceSent[1].(*lnwire.CommitSig)
	require.True(t, ok)
	require.Equal(t, originalSig.CommitSig, replayedSig.CommitSig)

	// Bob can process the replay normally.
	bob.process(MessageReceived{Msg: aliceReestablish})
	bob.process(MessageReceived{Msg: replayedAdd})
	bob.process(MessageReceived{Msg: replayedSig})

	require.EqualValues(
		t, 1, bob.state.(Normal).Commitments.LocalCommit.Index,
	)
}

// TestSyncUnsignedProposalsDiscarded verifies that changes that were never
// signed are rolled back across a reconnection, including the HTLC id
// counter.
func TestSyncUnsignedProposalsDiscarded(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	// An add without commit stays in proposed.
	var paymentHash [32]byte
	paymentHash[1] = 7
	alice.process(ExecuteCommand{Cmd: CmdAddHtlc{
		Amount:      lnwire.NewMSatFromSatoshis(50_000),
		PaymentHash: paymentHash,
		Expiry:      400_040,
		Origin:      LocalOrigin{},
	}})
	alice.drainMessages()

	require.EqualValues(
		t, 1, alice.state.(Normal).Commitments.LocalNextHtlcID,
	)

	reconnect(alice, bob)
	aliceReestablish := alice.drainMessages()[0].(*lnwire.ChannelReestablish)
	bobReestablish := bob.drainMessages()[0].(*lnwire.ChannelReestablish)
	alice.process(MessageReceived{Msg: bobReestablish})
	bob.process(MessageReceived{Msg: aliceReestablish})

	aliceCommits := alice.state.(Normal).Commitments
	require.EqualValues(t, 0, aliceCommits.LocalNextHtlcID)
	require.Empty(t, aliceCommits.LocalChanges.Proposed)
}

// TestSyncProvenDataLoss puts alice on a stale state: bob's reestablish
// claims a higher revocation number and proves it with alice's own secret,
// sending alice into WaitForRemotePublishFutureCommitment.
func TestSyncProvenDataLoss(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	// Capture alice's state before an update cycle, then run one.
	staleAlice := alice.state
	_, err := addTestHtlc(alice, bob, lnwire.NewMSatFromSatoshis(50_000))
	require.NoError(t, err)

	// Rewind alice to the stale state, as if she restored an old
	// backup.
	alice.state = staleAlice

	reconnect(alice, bob)
	alice.drainMessages()
	bobReestablish := bob.drainMessages()[0].(*lnwire.ChannelReestablish)

	// Bob is ahead and his reestablish carries alice's secret for
	// commitment 0 as proof.
	require.Greater(t, bobReestablish.NextRemoteRevocationNumber,
		uint64(0))

	alice.process(MessageReceived{Msg: bobReestablish})

	require.IsType(
		t, WaitForRemotePublishFutureCommitment{}, alice.state,
	)

	// Alice asks the peer to publish via an error message.
	sent := alice.drainMessages()
	require.NotEmpty(t, sent)
	_, ok := sent[len(sent)-1].(*lnwire.Error)
	require.True(t, ok)
}

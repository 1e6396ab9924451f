package channel

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/lnforge/channeld/lnwire"
)

// TestMutualCloseConvergence runs the whole cooperative close: CMD_CLOSE on
// the funder produces shutdown plus a first closing_signed (the peers
// pinned their scripts up front), and the exchange converges on a
// published close transaction on both sides.
func TestMutualCloseConvergence(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	actions := alice.process(ExecuteCommand{Cmd: CmdClose{}})

	// StoreState precedes both outbound messages.
	require.IsType(t, StoreState{}, actions[0])
	require.IsType(t, Negotiating{}, alice.state)

	sent := alice.drainMessages()
	require.Len(t, sent, 2)
	shutdown, ok := sent[0].(*lnwire.Shutdown)
	require.True(t, ok)
	firstOffer, ok := sent[1].(*lnwire.ClosingSigned)
	require.True(t, ok)
	require.NotZero(t, firstOffer.FeeSatoshis)

	// Bob answers the shutdown handshake and then mirrors the funder's
	// offer.
	bob.process(MessageReceived{Msg: shutdown})
	bob.process(MessageReceived{Msg: firstOffer})
	deliverAll(alice, bob)

	require.IsType(t, Closing{}, alice.state)
	require.IsType(t, Closing{}, bob.state)

	// Both published the same fully signed transaction, with a witness
	// on its input.
	require.NotEmpty(t, alice.published)
	require.NotEmpty(t, bob.published)
	aliceClose := alice.published[len(alice.published)-1]
	bobClose := bob.published[len(bob.published)-1]
	require.Equal(t, aliceClose.TxHash(), bobClose.TxHash())
	require.NotEmpty(t, aliceClose.TxIn[0].Witness)

	// The close spends the funding output.
	aliceClosing := alice.state.(Closing)
	require.Equal(
		t,
		aliceClosing.Commitments.CommitInput.OutPoint,
		aliceClose.TxIn[0].PreviousOutPoint,
	)

	// Deep confirmation of the mutual close finishes the channel.
	alice.process(WatchReceived{Event: WatchEventConfirmed{
		Tag:         BitcoinTxConfirmed,
		Tx:          aliceClose,
		BlockHeight: 400_100,
	}})
	require.IsType(t, Closed{}, alice.state)
}

// TestCloseRejections covers the command-level close failures.
func TestCloseRejections(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	// An unsigned outgoing HTLC blocks the close.
	var paymentHash [32]byte
	paymentHash[3] = 9
	alice.process(ExecuteCommand{Cmd: CmdAddHtlc{
		Amount:      lnwire.NewMSatFromSatoshis(50_000),
		PaymentHash: paymentHash,
		Expiry:      400_040,
		Origin:      LocalOrigin{},
	}})
	alice.drainMessages()

	alice.process(ExecuteCommand{Cmd: CmdClose{}})
	require.NotEmpty(t, alice.failures)
	require.ErrorIs(
		t, alice.failures[len(alice.failures)-1].Err,
		ErrCannotCloseWithUnsignedOutgoingHtlcs,
	)
	require.IsType(t, Normal{}, alice.state)

	// A bogus final script is refused.
	bob.process(ExecuteCommand{Cmd: CmdClose{
		ScriptPubKey: []byte{0x51},
	}})
	require.NotEmpty(t, bob.failures)
	require.ErrorIs(
		t, bob.failures[len(bob.failures)-1].Err,
		ErrInvalidFinalScript,
	)
}

// TestNextClosingFee checks the midpoint rule both sides use to converge.
func TestNextClosingFee(t *testing.T) {
	t.Parallel()

	require.Equal(
		t, btcutil.Amount(1500), nextClosingFee(1000, 2000),
	)

	// Midpoints always land on an even satoshi value so both sides
	// agree regardless of who computes.
	require.Equal(
		t, btcutil.Amount(1250), nextClosingFee(1000, 1501),
	)
	require.Equal(t, nextClosingFee(1000, 2000), nextClosingFee(2000, 1000))
}

// TestNegotiationTerminates is the termination property: from any pair of
// positive starting offers, alternating the midpoint rule reaches
// agreement within the negotiation iteration bound.
func TestNegotiationTerminates(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		localFee := btcutil.Amount(rapid.Int64Range(300, 100_000).
			Draw(rt, "local"))
		remoteFee := btcutil.Amount(rapid.Int64Range(300, 100_000).
			Draw(rt, "remote"))

		rounds := 0
		for localFee != remoteFee {
			rounds++
			require.LessOrEqual(
				rt, rounds, MaxNegotiationIterations,
			)

			next := nextClosingFee(localFee, remoteFee)
			if next == localFee || next == remoteFee {
				// Converged: one side accepts the other's
				// offer outright.
				break
			}

			// Sides alternate improving their offer.
			if rounds%2 == 1 {
				localFee = next
			} else {
				remoteFee = next
			}
		}
	})
}

// TestForceClose publishes our commitment and derives the delayed main
// claim.
func TestForceClose(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	// As funder, alice already published the funding transaction.
	publishedAtOpen := len(alice.published)
	actions := alice.process(ExecuteCommand{Cmd: CmdForceClose{}})

	require.IsType(t, Closing{}, alice.state)
	closing := alice.state.(Closing)
	require.NotNil(t, closing.LocalCommitPublished)
	require.NotNil(
		t, closing.LocalCommitPublished.ClaimMainDelayedOutputTx,
	)

	// StoreState leads, then the commitment and its claim are
	// published.
	require.IsType(t, StoreState{}, actions[0])
	require.Len(t, alice.published, publishedAtOpen+2)
	require.Equal(
		t,
		closing.Commitments.LocalCommit.PublishableTxs.CommitTx.
			TxHash(),
		alice.published[publishedAtOpen].TxHash(),
	)

	// The delayed claim spends the commitment with the agreed CSV
	// delay.
	claim := closing.LocalCommitPublished.ClaimMainDelayedOutputTx
	require.Equal(
		t, alice.published[publishedAtOpen].TxHash(),
		claim.TxIn[0].PreviousOutPoint.Hash,
	)
	require.EqualValues(t, 144, claim.TxIn[0].Sequence)
	require.NotEmpty(t, claim.TxIn[0].Witness)
}

// TestRemoteCloseDetection reacts to the counterparty's commitment
// appearing on chain.
func TestRemoteCloseDetection(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	bobCommit := bob.state.(Normal).Commitments.LocalCommit.
		PublishableTxs.CommitTx

	alice.process(WatchReceived{Event: WatchEventSpent{
		Tag: BitcoinFundingSpent,
		Tx:  bobCommit,
	}})

	require.IsType(t, Closing{}, alice.state)
	closing := alice.state.(Closing)
	require.NotNil(t, closing.CurrentRemoteCommitPublished)
	require.Equal(
		t, bobCommit.TxHash(),
		closing.CurrentRemoteCommitPublished.CommitTx.TxHash(),
	)

	// With a static remote key, our main output pays into the wallet
	// but still needs the sweep transaction to consolidate.
	require.NotNil(
		t, closing.CurrentRemoteCommitPublished.ClaimMainOutputTx,
	)
}

// TestRevokedCloseDetection punishes a revoked commitment: the commitment
// carrying the HTLC is revoked by the fulfill cycle, and broadcasting it
// yields a penalty for the HTLC output, rebuilt from the persisted HTLC
// records.
func TestRevokedCloseDetection(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	preimage, err := addTestHtlc(
		alice, bob, lnwire.NewMSatFromSatoshis(50_000),
	)
	require.NoError(t, err)

	// Bob's commitment at index 1 carries the HTLC output.
	revokedCommit := bob.state.(Normal).Commitments.LocalCommit.
		PublishableTxs.CommitTx

	// The fulfill cycle revokes it.
	bob.process(ExecuteCommand{Cmd: CmdFulfillHtlc{
		ID:       0,
		Preimage: preimage,
		Commit:   true,
	}})
	deliverAll(alice, bob)

	require.EqualValues(
		t, 2, alice.state.(Normal).Commitments.RemoteCommit.Index,
	)

	// Bob cheats with the revoked commitment.
	alice.process(WatchReceived{Event: WatchEventSpent{
		Tag: BitcoinFundingSpent,
		Tx:  revokedCommit,
	}})

	require.IsType(t, Closing{}, alice.state)
	closing := alice.state.(Closing)
	require.Len(t, closing.RevokedCommitPublished, 1)

	rvk := closing.RevokedCommitPublished[0]
	require.EqualValues(t, 1, rvk.CommitmentNumber)

	// Our own main output is swept, and the HTLC output is confiscated
	// through the revocation branch: the witness carries the raw
	// revocation key for the OP_DUP OP_HASH160 check.
	require.NotNil(t, rvk.ClaimMainOutputTx)
	require.Len(t, rvk.HtlcPenaltyTxs, 1)

	witness := rvk.HtlcPenaltyTxs[0].TxIn[0].Witness
	require.Len(t, witness, 3)
	require.Len(t, witness[1], 33)

	// Bob's own balance was zero throughout, so there is no delayed
	// main output to punish.
	require.Nil(t, rvk.MainPenaltyTx)

	// The penalties were broadcast.
	require.NotEmpty(t, alice.published)
}

// TestUnknownFundingSpendLeaksError treats an unattributable funding spend
// as unrecoverable.
func TestUnknownFundingSpendLeaksError(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	// A random transaction spending the funding output that is no
	// commitment we have ever seen.
	c := alice.state.(Normal).Commitments
	bogus := testFundingTx(c.CommitInput.TxOut)
	bogus.TxIn[0].PreviousOutPoint = c.CommitInput.OutPoint

	alice.process(WatchReceived{Event: WatchEventSpent{
		Tag: BitcoinFundingSpent,
		Tx:  bogus,
	}})

	require.IsType(t, ErrorInformationLeak{}, alice.state)
}

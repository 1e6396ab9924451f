package channel

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnforge/channeld/lnwire"
)

// TestCommitRevokeRoundTrip is the full add -> sign -> revoke exchange:
// alice offers an HTLC with commit=true, which produces the add, the
// commit_sig (preceded by the HTLC records and state store), and on bob's
// revocation advances alice's remote commitment to index 1.
func TestCommitRevokeRoundTrip(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	var preimage [32]byte
	preimage[0] = 0x99
	paymentHash := sha256.Sum256(preimage[:])

	htlcAmount := lnwire.NewMSatFromSatoshis(100_000)
	actions := alice.process(ExecuteCommand{Cmd: CmdAddHtlc{
		Amount:      htlcAmount,
		PaymentHash: paymentHash,
		Expiry:      400_040,
		Origin:      LocalOrigin{PaymentID: paymentHash},
		Commit:      true,
	}})

	// The add itself, then the self-directed sign (executed inline by
	// the harness).
	require.IsType(t, SendMessage{}, actions[0])
	add := actions[0].(SendMessage).Msg.(*lnwire.UpdateAddHTLC)
	require.EqualValues(t, 0, add.ID)
	require.Equal(t, htlcAmount, add.Amount)
	require.IsType(t, SendToSelf{}, actions[1])

	// The sign pass must have stored the HTLC records before sending
	// the signature.
	sent := alice.drainMessages()
	require.Len(t, sent, 2)
	sig, ok := sent[1].(*lnwire.CommitSig)
	require.True(t, ok)
	require.Len(t, sig.HtlcSigs, 1)

	infos, err := alice.htlcStore.ListHtlcInfos(
		alice.state.(Normal).Commitments.ChannelID, 1,
	)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, paymentHash, infos[0].PaymentHash)
	require.EqualValues(t, 400_040, infos[0].CltvExpiry)

	// Alice now has a signature in flight.
	aliceCommits := alice.state.(Normal).Commitments
	require.True(t, aliceCommits.RemoteNextCommitInfo.IsLeft())

	// Bob validates the signature and answers with his revocation.
	bob.process(MessageReceived{Msg: add})
	bob.process(MessageReceived{Msg: sig})

	// Bob answers with his revocation and immediately reciprocates with
	// a signature covering the add for alice's commitment.
	bobSent := bob.drainMessages()
	require.Len(t, bobSent, 2)
	revocation, ok := bobSent[0].(*lnwire.RevokeAndAck)
	require.True(t, ok)
	_, ok = bobSent[1].(*lnwire.CommitSig)
	require.True(t, ok)

	bobCommits := bob.state.(Normal).Commitments
	require.EqualValues(t, 1, bobCommits.LocalCommit.Index)
	require.Len(t, bobCommits.LocalCommit.Spec.Htlcs, 1)

	// Alice's remote commitment advances on the revocation.
	alice.process(MessageReceived{Msg: revocation})

	aliceCommits = alice.state.(Normal).Commitments
	require.EqualValues(t, 1, aliceCommits.RemoteCommit.Index)
	require.True(t, aliceCommits.RemoteNextCommitInfo.IsRight())
	require.EqualValues(
		t, 1, aliceCommits.RemotePerCommitmentSecrets.NumInserted(),
	)
}

// TestFulfillRelaysOnRevocation completes the round trip: bob fulfills the
// incoming HTLC and alice learns about it irrevocably once bob's new
// commitment is revoked, through a ProcessFulfill action.
func TestFulfillRelaysOnRevocation(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	preimage, err := addTestHtlc(alice, bob, 100_000)
	require.NoError(t, err)

	// Bob settles and signs; the exchange runs to quiescence.
	bob.process(ExecuteCommand{Cmd: CmdFulfillHtlc{
		ID:       0,
		Preimage: preimage,
		Commit:   true,
	}})

	var sawFulfill bool
	bobOut := bob.drainMessages()
	for len(bobOut) > 0 {
		for _, msg := range bobOut {
			actions := alice.process(MessageReceived{Msg: msg})
			for _, action := range actions {
				if fulfill, ok := action.(ProcessFulfill); ok {
					sawFulfill = true
					require.Equal(
						t, preimage,
						fulfill.Fulfill.PaymentPreimage,
					)
					require.IsType(
						t, LocalOrigin{},
						fulfill.Origin,
					)
				}
			}
		}
		for _, msg := range alice.drainMessages() {
			bob.process(MessageReceived{Msg: msg})
		}
		bobOut = bob.drainMessages()
	}

	require.True(t, sawFulfill)

	// The HTLC is gone from both ledgers and the money moved.
	aliceCommits := alice.state.(Normal).Commitments
	require.Empty(t, aliceCommits.LocalCommit.Spec.Htlcs)
	require.Equal(
		t,
		lnwire.NewMSatFromSatoshis(testFundingAmount)-100_000,
		aliceCommits.LocalCommit.Spec.ToLocal,
	)
}

// TestSendAddValidation exercises each admission bound of a locally
// offered HTLC.
func TestSendAddValidation(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	c := alice.state.(Normal).Commitments
	const height = 400_000

	base := CmdAddHtlc{
		Amount: 100_000,
		Expiry: height + 40,
		Origin: LocalOrigin{},
	}

	tests := []struct {
		name    string
		mutate  func(*CmdAddHtlc)
		wantErr error
	}{
		{
			name: "expiry too small",
			mutate: func(cmd *CmdAddHtlc) {
				cmd.Expiry = height + 10
			},
			wantErr: ExpiryTooSmallError{},
		},
		{
			name: "expiry too big",
			mutate: func(cmd *CmdAddHtlc) {
				cmd.Expiry = height + MaxCltvExpiryDelta + 1
			},
			wantErr: ExpiryTooBigError{},
		},
		{
			name: "amount below minimum",
			mutate: func(cmd *CmdAddHtlc) {
				cmd.Amount = 10
			},
			wantErr: HtlcValueTooSmallError{},
		},
		{
			name: "insufficient funds",
			mutate: func(cmd *CmdAddHtlc) {
				cmd.Amount = lnwire.NewMSatFromSatoshis(
					testFundingAmount,
				)
			},
			wantErr: InsufficientFundsError{},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			cmd := base
			test.mutate(&cmd)

			_, _, err := c.SendAdd(cmd, height)
			require.Error(t, err)
			require.IsType(t, test.wantErr, err)
		})
	}

	// The base command itself is admissible and assigns id 0.
	c1, add, err := c.SendAdd(base, height)
	require.NoError(t, err)
	require.EqualValues(t, 0, add.ID)
	require.EqualValues(t, 1, c1.LocalNextHtlcID)
}

// TestSendAddInFlightLimits fills the channel up to the counterparty's
// value-in-flight and count caps.
func TestSendAddInFlightLimits(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	c := alice.state.(Normal).Commitments
	const height = 400_000

	// The remote caps the summed value at 900k sat.
	big := CmdAddHtlc{
		Amount: lnwire.NewMSatFromSatoshis(500_000),
		Expiry: height + 40,
		Origin: LocalOrigin{},
	}
	c1, _, err := c.SendAdd(big, height)
	require.NoError(t, err)

	_, _, err = c1.SendAdd(big, height)
	require.IsType(t, HtlcValueTooHighInFlightError{}, err)

	// The remote caps the HTLC count at 30.
	small := CmdAddHtlc{
		Amount: 2_000_000,
		Expiry: height + 40,
		Origin: LocalOrigin{},
	}
	c2 := c
	for i := 0; i < 30; i++ {
		c2, _, err = c2.SendAdd(small, height)
		require.NoError(t, err, "htlc %d", i)
	}
	_, _, err = c2.SendAdd(small, height)
	require.IsType(t, TooManyAcceptedHtlcsError{}, err)
}

// TestSignWithoutChanges rejects a sign command on a quiescent channel.
func TestSignWithoutChanges(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	alice.process(ExecuteCommand{Cmd: CmdSign{}})

	require.NotEmpty(t, alice.failures)
	require.ErrorIs(
		t, alice.failures[len(alice.failures)-1].Err,
		ErrCannotSignWithoutChanges,
	)
}

// TestReceiveFulfillWrongPreimage rejects a settlement whose preimage does
// not match the payment hash, which escalates to a force close.
func TestReceiveFulfillWrongPreimage(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	_, err := addTestHtlc(alice, bob, 100_000)
	require.NoError(t, err)

	c := alice.state.(Normal).Commitments
	var wrong [32]byte
	wrong[5] = 0xde

	_, _, err = c.ReceiveFulfill(&lnwire.UpdateFulfillHTLC{
		ChanID:          c.ChannelID,
		ID:              0,
		PaymentPreimage: wrong,
	})
	require.ErrorIs(t, err, ErrInvalidHtlcPreimage)
}

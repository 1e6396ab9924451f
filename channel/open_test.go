package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnforge/channeld/lnwire"
)

// TestInitFunderSendsOpenChannel is the funder's first step: InitFunder
// yields WaitForAcceptChannel and a single open_channel message.
func TestInitFunderSendsOpenChannel(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)

	var tempChanID [32]byte
	tempChanID[0] = 42

	actions := alice.process(InitFunder{
		TemporaryChannelID:    tempChanID,
		FundingAmount:         1_000_000,
		PushAmount:            0,
		InitialFeeratePerKw:   2500,
		FundingTxFeeratePerKw: 2500,
		LocalParams:           alice.localParams(true),
		RemoteInit: lnwire.NewInitMessage(
			lnwire.NewRawFeatureVector(),
			lnwire.NewRawFeatureVector(),
		),
		ChannelVersion: VersionStandard,
	})

	require.IsType(t, WaitForAcceptChannel{}, alice.state)
	require.Len(t, actions, 1)

	send, ok := actions[0].(SendMessage)
	require.True(t, ok)

	open, ok := send.Msg.(*lnwire.OpenChannel)
	require.True(t, ok)
	require.Equal(t, tempChanID, open.PendingChannelID)
	require.EqualValues(t, 1_000_000, open.FundingAmount)
	require.EqualValues(t, 0, open.PushAmount)
	require.EqualValues(t, 2500, open.FeePerKiloWeight)
	require.NotNil(t, open.FirstCommitmentPoint)
}

// TestAcceptChannelValidationRejects mirrors the validation scenario: an
// accept_channel with 500 max HTLCs aborts the channel with a specific
// error message.
func TestAcceptChannelValidationRejects(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)

	var tempChanID [32]byte
	tempChanID[0] = 42

	alice.process(InitFunder{
		TemporaryChannelID:    tempChanID,
		FundingAmount:         1_000_000,
		InitialFeeratePerKw:   2500,
		FundingTxFeeratePerKw: 2500,
		LocalParams:           alice.localParams(true),
		ChannelVersion:        VersionStandard,
	})
	alice.drainMessages()

	bobParams := bob.localParams(false)
	accept := &lnwire.AcceptChannel{
		PendingChannelID: tempChanID,
		DustLimit:        546,
		ChannelReserve:   10_000,
		CsvDelay:         144,
		MaxAcceptedHTLCs: 500,
		FundingKey:       bobParams.Basepoints.FundingKey,
		RevocationPoint:  bobParams.Basepoints.RevocationBasePoint,
		PaymentPoint:     bobParams.Basepoints.PaymentBasePoint,
		DelayedPaymentPoint: bobParams.Basepoints.
			DelayBasePoint,
		HtlcPoint: bobParams.Basepoints.HtlcBasePoint,
	}

	alice.process(MessageReceived{Msg: accept})

	require.IsType(t, Aborted{}, alice.state)

	sent := alice.drainMessages()
	require.Len(t, sent, 1)

	errMsg, ok := sent[0].(*lnwire.Error)
	require.True(t, ok)
	require.Equal(t, lnwire.ChannelID(tempChanID), errMsg.ChanID)
	require.Contains(
		t, string(errMsg.Data), "InvalidMaxAcceptedHtlcs: 500 > 483",
	)
}

// TestOpenChannelHappyPath drives both peers through the full funding
// handshake into Normal.
func TestOpenChannelHappyPath(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)

	require.NoError(t, openTestChannel(alice, bob))

	aliceNormal := alice.state.(Normal)
	bobNormal := bob.state.(Normal)

	// Both ledgers start at index 0 with mirrored balances.
	require.EqualValues(t, 0, aliceNormal.Commitments.LocalCommit.Index)
	require.EqualValues(t, 0, bobNormal.Commitments.LocalCommit.Index)
	require.Equal(
		t, lnwire.NewMSatFromSatoshis(testFundingAmount),
		aliceNormal.Commitments.LocalCommit.Spec.ToLocal,
	)
	require.EqualValues(
		t, 0, bobNormal.Commitments.LocalCommit.Spec.ToLocal,
	)

	// The permanent channel id matches on both sides.
	require.Equal(
		t, aliceNormal.Commitments.ChannelID,
		bobNormal.Commitments.ChannelID,
	)

	// Both sides hold a publishable first commitment.
	require.NotNil(
		t,
		aliceNormal.Commitments.LocalCommit.PublishableTxs.CommitTx,
	)
	require.NotNil(
		t, bobNormal.Commitments.LocalCommit.PublishableTxs.CommitTx,
	)

	// The funder broadcast the funding transaction.
	require.NotEmpty(t, alice.published)
}

// TestFundeeFundingTimeout aborts a fundee channel whose funding never
// confirms.
func TestFundeeFundingTimeout(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)

	var tempChanID [32]byte
	tempChanID[0] = 42

	alice.process(InitFunder{
		TemporaryChannelID:    tempChanID,
		FundingAmount:         testFundingAmount,
		InitialFeeratePerKw:   2500,
		FundingTxFeeratePerKw: 2500,
		LocalParams:           alice.localParams(true),
		ChannelVersion:        VersionStandard,
	})
	bob.process(InitFundee{
		TemporaryChannelID:  tempChanID,
		LocalParams:         bob.localParams(false),
		ChannelVersion:      VersionStandard,
		CurrentFeeratePerKw: 2500,
	})
	deliverAll(alice, bob)

	_, fundingOutput, err := fundingScriptFor(alice, bob)
	require.NoError(t, err)

	fundingTx := testFundingTx(fundingOutput)
	alice.process(MakeFundingTxResponse{
		FundingTx:            fundingTx,
		FundingTxOutputIndex: 0,
		Fee:                  1000,
	})
	deliverAll(alice, bob)

	require.IsType(t, WaitForFundingConfirmed{}, bob.state)

	// The first block pins the waiting height; five days later the
	// fundee gives up without touching the chain.
	bob.process(NewBlock{Height: 400_000})
	bob.process(NewBlock{Height: 400_000 + FundingTimeoutFundee + 1})

	require.IsType(t, Aborted{}, bob.state)
	require.Empty(t, bob.published)

	sent := bob.drainMessages()
	require.NotEmpty(t, sent)
	_, ok := sent[len(sent)-1].(*lnwire.Error)
	require.True(t, ok)
}

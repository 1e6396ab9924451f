package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnforge/channeld/lnwire"
)

// backupPeers builds a connected channel for the backup tests. The
// peer-held backup feature stays off, as on any other test channel.
func backupPeers(t *testing.T) (*testPeer, *testPeer) {
	t.Helper()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	return alice, bob
}

// TestBackupRoundTrip encrypts a channel state and recovers it bit for
// bit.
func TestBackupRoundTrip(t *testing.T) {
	t.Parallel()

	alice, _ := backupPeers(t)
	state := alice.state.(Normal)

	blob, err := alice.machine.encryptStateBackup(state)
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	recovered, err := alice.machine.decryptStateBackup(blob)
	require.NoError(t, err)

	recoveredNormal, ok := recovered.(Normal)
	require.True(t, ok)
	require.Equal(t, state.Commitments.ChannelID,
		recoveredNormal.Commitments.ChannelID)
	require.Equal(t, state.Commitments.LocalCommit.Index,
		recoveredNormal.Commitments.LocalCommit.Index)
	require.Equal(
		t, state.Commitments.LocalCommit.Spec.ToLocal,
		recoveredNormal.Commitments.LocalCommit.Spec.ToLocal,
	)
	require.Equal(
		t,
		state.Commitments.LocalCommit.PublishableTxs.CommitTx.TxHash(),
		recoveredNormal.Commitments.LocalCommit.PublishableTxs.
			CommitTx.TxHash(),
	)
	require.Equal(
		t,
		state.Commitments.CommitInput.OutPoint,
		recoveredNormal.Commitments.CommitInput.OutPoint,
	)

	// Two encryptions of the same state differ thanks to the random
	// nonce.
	blob2, err := alice.machine.encryptStateBackup(state)
	require.NoError(t, err)
	require.NotEqual(t, blob, blob2)
}

// TestBackupTamperRejected refuses a blob whose ciphertext was modified,
// and a blob encrypted under someone else's key.
func TestBackupTamperRejected(t *testing.T) {
	t.Parallel()

	alice, bob := backupPeers(t)
	state := alice.state.(Normal)

	blob, err := alice.machine.encryptStateBackup(state)
	require.NoError(t, err)

	tampered := append(lnwire.ChannelData(nil), blob...)
	tampered[len(tampered)-1] ^= 0x01
	_, err = alice.machine.decryptStateBackup(tampered)
	require.Error(t, err)

	// Bob's key cannot open alice's backup.
	_, err = bob.machine.decryptStateBackup(blob)
	require.Error(t, err)

	// Truncated blobs are rejected outright.
	_, err = alice.machine.decryptStateBackup(blob[:10])
	require.Error(t, err)
}

// TestBackupRecency compares states by commitment indexes under a matching
// channel id.
func TestBackupRecency(t *testing.T) {
	t.Parallel()

	alice, bob := backupPeers(t)

	before := alice.state.(Normal)

	_, err := addTestHtlc(alice, bob, lnwire.NewMSatFromSatoshis(50_000))
	require.NoError(t, err)

	after := alice.state.(Normal)

	require.True(t, isMoreRecent(before, after))
	require.False(t, isMoreRecent(after, before))
	require.False(t, isMoreRecent(after, after))

	// A state for a different channel is never "more recent".
	other := after
	other.Commitments.ChannelID[0] ^= 0xff
	require.False(t, isMoreRecent(before, other))
}

// TestBackupAttachedToCarriers verifies the post-processing pass: with the
// backup feature on, outgoing commit_sig messages carry the encrypted
// state.
func TestBackupAttachedToCarriers(t *testing.T) {
	t.Parallel()

	alice := newTestPeer(1)
	bob := newTestPeer(2)
	require.NoError(t, openTestChannel(alice, bob))

	// Flip the feature on in the channel's own params.
	normal := alice.state.(Normal)
	normal.Commitments.LocalParams.Features = lnwire.NewRawFeatureVector(
		lnwire.ChannelBackupClient,
	)
	alice.state = normal

	_, err := addTestHtlcNoDelivery(alice, nil)
	require.NoError(t, err)

	sent := alice.drainMessages()
	require.Len(t, sent, 2)

	sig, ok := sent[1].(*lnwire.CommitSig)
	require.True(t, ok)
	require.NotEmpty(t, sig.ChannelData)

	// The attached blob decrypts to the post-transition state.
	recovered, err := alice.machine.decryptStateBackup(sig.ChannelData)
	require.NoError(t, err)
	require.Equal(
		t, alice.state.(Normal).Commitments.LocalCommit.Index,
		recovered.Commits().LocalCommit.Index,
	)

	// The add itself is no backup carrier and stays untouched.
	add, ok := sent[0].(*lnwire.UpdateAddHTLC)
	require.True(t, ok)
	require.NotNil(t, add)
}

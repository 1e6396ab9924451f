package channel

import (
	"github.com/lnforge/channeld/lnwire"
)

// makeChannelReestablish builds our side of the reconnection handshake,
// echoing back the peer's most recent backup blob.
func (m *Machine) makeChannelReestablish(
	c *Commitments) (*lnwire.ChannelReestablish, error) {

	reestablish := &lnwire.ChannelReestablish{
		ChanID:                     c.ChannelID,
		NextLocalCommitmentNumber:  c.LocalCommit.Index + 1,
		NextRemoteRevocationNumber: c.RemoteCommit.Index,
		ChannelData:                c.RemoteChannelData,
	}

	currentPoint, err := m.cfg.Revocations.PerCommitmentPoint(
		c.LocalCommit.Index,
	)
	if err != nil {
		return nil, err
	}
	reestablish.LocalUnrevokedCommitPoint = currentPoint

	// The last secret they revealed to us revoked their previous
	// commitment. Before any revocation the field stays zero.
	if c.RemoteCommit.Index > 0 {
		secret, err := c.RemotePerCommitmentSecrets.LookUp(
			c.RemoteCommit.Index - 1,
		)
		if err != nil {
			return nil, err
		}
		copy(reestablish.LastRemoteCommitSecret[:], secret[:])
	}

	return reestablish, nil
}

// rollbackUnsignedProposals drops both sides' unsigned changes, as they
// did not survive the disconnection, and rewinds the HTLC id counters
// accordingly.
func rollbackUnsignedProposals(c Commitments) Commitments {
	c1 := c

	var localAdds uint64
	for _, msg := range c.LocalChanges.Proposed {
		if _, ok := msg.(*lnwire.UpdateAddHTLC); ok {
			localAdds++
		}
	}
	c1.LocalChanges.Proposed = nil
	c1.LocalNextHtlcID -= localAdds

	var remoteAdds uint64
	for _, msg := range c.RemoteChanges.Proposed {
		if _, ok := msg.(*lnwire.UpdateAddHTLC); ok {
			remoteAdds++
		}
	}
	c1.RemoteChanges.Proposed = nil
	c1.RemoteNextHtlcID -= remoteAdds

	return c1
}

// handleSync reconciles our commitment chain with the peer's view carried
// in its channel_reestablish, returning the updated ledger and the
// retransmissions owed. A non-nil error means the views are irreconcilable.
func (m *Machine) handleSync(c Commitments,
	msg *lnwire.ChannelReestablish) (Commitments, []Action, error) {

	var actions []Action
	c1 := rollbackUnsignedProposals(c)

	// First settle whether our last revocation reached them.
	var resendRevocation *lnwire.RevokeAndAck
	switch {
	case msg.NextRemoteRevocationNumber == c1.LocalCommit.Index:
		// They hold our latest revocation.

	case c1.LocalCommit.Index > 0 &&
		msg.NextRemoteRevocationNumber == c1.LocalCommit.Index-1:

		// Our last revoke_and_ack was lost in transit; rebuild it.
		secret, err := m.cfg.Revocations.PerCommitmentSecret(
			c1.LocalCommit.Index - 1,
		)
		if err != nil {
			return c, nil, err
		}
		nextPoint, err := m.cfg.Revocations.PerCommitmentPoint(
			c1.LocalCommit.Index + 1,
		)
		if err != nil {
			return c, nil, err
		}
		resendRevocation = &lnwire.RevokeAndAck{
			ChanID:            c1.ChannelID,
			Revocation:        secret,
			NextRevocationKey: nextPoint,
		}

	default:
		log.Errorf("ChannelPoint(%v): peer expects revocation #%v, "+
			"local commit is at #%v",
			c1.CommitInput.OutPoint,
			msg.NextRemoteRevocationNumber, c1.LocalCommit.Index)
		return c, nil, ErrRevocationSync
	}

	// Then settle whether our outstanding commit_sig (if any) reached
	// them.
	var waiting *WaitingForRevocation
	c1.RemoteNextCommitInfo.WhenLeft(func(w WaitingForRevocation) {
		waiting = &w
	})

	switch {
	case waiting != nil &&
		msg.NextLocalCommitmentNumber ==
			waiting.NextRemoteCommit.Index+1:

		// They received our commit_sig and will revoke; nothing to
		// retransmit but the revocation handled above.
		if resendRevocation != nil {
			actions = append(actions, SendMessage{
				Msg: resendRevocation,
			})
		}

	case waiting != nil &&
		msg.NextLocalCommitmentNumber ==
			waiting.NextRemoteCommit.Index:

		// They never saw our commit_sig. Replay the signed changes
		// and the identical signature, ordered against the lost
		// revocation the way they were originally sent.
		var retransmit []Action
		for _, change := range c1.LocalChanges.Signed {
			retransmit = append(retransmit, SendMessage{Msg: change})
		}
		retransmit = append(retransmit, SendMessage{Msg: waiting.Sent})

		revocationFirst :=
			waiting.SentAfterLocalCommitIndex == c1.LocalCommit.Index
		if resendRevocation != nil && revocationFirst {
			actions = append(actions, SendMessage{
				Msg: resendRevocation,
			})
			actions = append(actions, retransmit...)
		} else {
			actions = append(actions, retransmit...)
			if resendRevocation != nil {
				actions = append(actions, SendMessage{
					Msg: resendRevocation,
				})
			}
		}

	case waiting != nil:
		log.Errorf("ChannelPoint(%v): peer expects commitment #%v, "+
			"in-flight remote commit is #%v",
			c1.CommitInput.OutPoint, msg.NextLocalCommitmentNumber,
			waiting.NextRemoteCommit.Index)
		return c, nil, ErrRevocationSync

	case msg.NextLocalCommitmentNumber == c1.RemoteCommit.Index+1:
		// No signature outstanding and they agree on the next
		// commitment number.
		if resendRevocation != nil {
			actions = append(actions, SendMessage{
				Msg: resendRevocation,
			})
		}

	default:
		log.Errorf("ChannelPoint(%v): peer expects commitment #%v, "+
			"remote commit is at #%v", c1.CommitInput.OutPoint,
			msg.NextLocalCommitmentNumber, c1.RemoteCommit.Index)
		return c, nil, ErrRevocationSync
	}

	// If reconciliation left us with signable changes, request a fresh
	// signature once the handshake completes.
	if c1.localHasChanges() {
		actions = append(actions, SendToSelf{Cmd: CmdSign{}})
	}

	return c1, actions, nil
}

// provedWeAreOutdated checks the data-loss proof of a channel_reestablish:
// a peer claiming a revocation number ahead of our commitment chain must
// reveal the per-commitment secret we would have given it at that point.
func (m *Machine) provedWeAreOutdated(c *Commitments,
	msg *lnwire.ChannelReestablish) bool {

	if msg.NextRemoteRevocationNumber <= c.LocalCommit.Index {
		return false
	}

	ourSecret, err := m.cfg.Revocations.PerCommitmentSecret(
		msg.NextRemoteRevocationNumber - 1,
	)
	if err != nil {
		return false
	}

	return ourSecret == msg.LastRemoteCommitSecret
}

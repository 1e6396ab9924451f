package lnwire

// MessageType is the unique 2 byte big-endian integer that precedes each
// message on the wire and identifies its kind.
type MessageType uint16

const (
	MsgInit                    MessageType = 16
	MsgError                   MessageType = 17
	MsgOpenChannel             MessageType = 32
	MsgAcceptChannel           MessageType = 33
	MsgFundingCreated          MessageType = 34
	MsgFundingSigned           MessageType = 35
	MsgFundingLocked           MessageType = 36
	MsgShutdown                MessageType = 38
	MsgClosingSigned           MessageType = 39
	MsgUpdateAddHTLC           MessageType = 128
	MsgUpdateFulfillHTLC       MessageType = 130
	MsgUpdateFailHTLC          MessageType = 131
	MsgCommitSig               MessageType = 132
	MsgRevokeAndAck            MessageType = 133
	MsgUpdateFee               MessageType = 134
	MsgUpdateFailMalformedHTLC MessageType = 135
	MsgChannelReestablish      MessageType = 136
)

// String returns the protocol name of the message type.
func (t MessageType) String() string {
	switch t {
	case MsgInit:
		return "init"
	case MsgError:
		return "error"
	case MsgOpenChannel:
		return "open_channel"
	case MsgAcceptChannel:
		return "accept_channel"
	case MsgFundingCreated:
		return "funding_created"
	case MsgFundingSigned:
		return "funding_signed"
	case MsgFundingLocked:
		return "funding_locked"
	case MsgShutdown:
		return "shutdown"
	case MsgClosingSigned:
		return "closing_signed"
	case MsgUpdateAddHTLC:
		return "update_add_htlc"
	case MsgUpdateFulfillHTLC:
		return "update_fulfill_htlc"
	case MsgUpdateFailHTLC:
		return "update_fail_htlc"
	case MsgCommitSig:
		return "commit_sig"
	case MsgRevokeAndAck:
		return "revoke_and_ack"
	case MsgUpdateFee:
		return "update_fee"
	case MsgUpdateFailMalformedHTLC:
		return "update_fail_malformed_htlc"
	case MsgChannelReestablish:
		return "channel_reestablish"
	default:
		return "<unknown>"
	}
}

// Message is implemented by every peer message the channel machine sends or
// receives. The wire codec itself (framing, TLV streams) lives with the
// transport; within this module messages are plain carriers.
type Message interface {
	// MsgType returns the integer identifying this message on the wire.
	MsgType() MessageType
}

// LinkUpdater is implemented by every message that is scoped to an active
// channel and therefore carries its channel id.
type LinkUpdater interface {
	Message

	// TargetChanID returns the channel id this message is bound to.
	TargetChanID() ChannelID
}

// BackupCarrier is implemented by the messages that may piggy-back an
// opaque encrypted channel backup for the peer to hold on our behalf.
type BackupCarrier interface {
	Message

	// ChannelBackup returns the attached backup blob, which may be nil.
	ChannelBackup() ChannelData

	// SetChannelBackup attaches a backup blob to the message.
	SetChannelBackup(ChannelData)
}

package lnwire

// FeatureBit represents a feature that can be enabled in either a local or
// global feature vector at a specific bit position. Feature bits follow the
// "it's OK to be odd" rule, where features at even bit positions must be
// known to a peer receiving them, while odd bits do not.
type FeatureBit uint16

const (
	// DataLossProtectRequired is a feature bit that indicates that a peer
	// *must* enable the data-loss-protect extension of the reconnection
	// protocol: channel_reestablish carries the last per-commitment
	// secret received and the current per-commitment point.
	DataLossProtectRequired FeatureBit = 0

	// DataLossProtectOptional is the optional counterpart of
	// DataLossProtectRequired.
	DataLossProtectOptional FeatureBit = 1

	// StaticRemoteKeyRequired is a feature bit signalling that the
	// to-remote output of commitment transactions pays directly to a
	// static key of the counterparty.
	StaticRemoteKeyRequired FeatureBit = 12

	// StaticRemoteKeyOptional is the optional counterpart of
	// StaticRemoteKeyRequired.
	StaticRemoteKeyOptional FeatureBit = 13

	// ChannelBackupClient is a feature bit signalling that the sender
	// wants its peer to hold an encrypted channel backup on its behalf,
	// attached to a subset of channel messages and echoed back inside
	// channel_reestablish.
	ChannelBackupClient FeatureBit = 141

	// ChannelBackupProvider is a feature bit signalling that the sender
	// is willing to hold such backups for its peers.
	ChannelBackupProvider FeatureBit = 143
)

// RawFeatureVector stores a set of feature bits.
type RawFeatureVector struct {
	features map[FeatureBit]struct{}
}

// NewRawFeatureVector creates a feature vector with the provided set of
// feature bits enabled.
func NewRawFeatureVector(bits ...FeatureBit) *RawFeatureVector {
	fv := &RawFeatureVector{
		features: make(map[FeatureBit]struct{}),
	}
	for _, bit := range bits {
		fv.Set(bit)
	}

	return fv
}

// Clone makes a copy of a feature vector.
func (fv *RawFeatureVector) Clone() *RawFeatureVector {
	newFeatures := NewRawFeatureVector()
	if fv == nil {
		return newFeatures
	}
	for bit := range fv.features {
		newFeatures.Set(bit)
	}

	return newFeatures
}

// IsSet returns whether a particular feature bit is enabled in the vector.
// A nil vector has no bits set.
func (fv *RawFeatureVector) IsSet(feature FeatureBit) bool {
	if fv == nil {
		return false
	}
	_, ok := fv.features[feature]

	return ok
}

// Set marks a feature as enabled in the vector.
func (fv *RawFeatureVector) Set(feature FeatureBit) {
	fv.features[feature] = struct{}{}
}

// Unset marks a feature as disabled in the vector.
func (fv *RawFeatureVector) Unset(feature FeatureBit) {
	delete(fv.features, feature)
}

// HasFeature reports whether either the required or the optional bit of the
// given feature pair is set. The argument is expected to be the even
// (required) member of the pair.
func (fv *RawFeatureVector) HasFeature(required FeatureBit) bool {
	return fv.IsSet(required) || fv.IsSet(required^1)
}

// Init is the first message revealed by one peer to another once a
// connection is established. It carries the feature vectors of the sender.
type Init struct {
	// GlobalFeatures is the legacy global feature vector.
	GlobalFeatures *RawFeatureVector

	// Features is the feature vector of the sender.
	Features *RawFeatureVector
}

// NewInitMessage creates an Init message from the given feature vectors.
func NewInitMessage(global, local *RawFeatureVector) *Init {
	return &Init{
		GlobalFeatures: global,
		Features:       local,
	}
}

// A compile time check to ensure Init implements the lnwire.Message
// interface.
var _ Message = (*Init)(nil)

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (msg *Init) MsgType() MessageType {
	return MsgInit
}

package channel

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/lnforge/channeld/chainfee"
	"github.com/lnforge/channeld/committx"
	"github.com/lnforge/channeld/keychain"
	"github.com/lnforge/channeld/lnwire"
	"github.com/lnforge/channeld/shachain"
)

// testSigner signs with an in-memory key store, applying the same tweaks a
// real wallet would.
type testSigner struct {
	keys map[string]*btcec.PrivateKey
}

func newTestSigner(keys ...*btcec.PrivateKey) *testSigner {
	signer := &testSigner{keys: make(map[string]*btcec.PrivateKey)}
	for _, key := range keys {
		signer.addKey(key)
	}

	return signer
}

func (s *testSigner) addKey(key *btcec.PrivateKey) {
	s.keys[string(key.PubKey().SerializeCompressed())] = key
}

// SignOutputRaw implements keychain.Signer.
func (s *testSigner) SignOutputRaw(tx *wire.MsgTx,
	signDesc *keychain.SignDescriptor) (*ecdsa.Signature, error) {

	basePriv, ok := s.keys[string(
		signDesc.KeyDesc.PubKey.SerializeCompressed(),
	)]
	if !ok {
		return nil, fmt.Errorf("unknown key %x",
			signDesc.KeyDesc.PubKey.SerializeCompressed())
	}

	priv := basePriv
	switch {
	case signDesc.DoubleTweak != nil:
		priv = keychain.DeriveRevocationPrivKey(
			basePriv, signDesc.DoubleTweak,
		)

	case len(signDesc.SingleTweak) > 0:
		var tweak btcec.ModNScalar
		tweak.SetByteSlice(signDesc.SingleTweak)
		tweaked := tweak.Add(&basePriv.Key)
		priv = &btcec.PrivateKey{Key: *tweaked}
	}

	fetcher := txscript.NewCannedPrevOutputFetcher(
		signDesc.Output.PkScript, signDesc.Output.Value,
	)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	digest, err := txscript.CalcWitnessSigHash(
		signDesc.WitnessScript, sigHashes, signDesc.HashType, tx,
		signDesc.InputIndex, signDesc.Output.Value,
	)
	if err != nil {
		return nil, err
	}

	return ecdsa.Sign(priv, digest), nil
}

// testRevocations derives per-commitment secrets from a shachain producer.
type testRevocations struct {
	producer *shachain.Producer
}

func newTestRevocations(seed byte) *testRevocations {
	var root chainhash.Hash
	for i := range root {
		root[i] = seed
	}

	return &testRevocations{producer: shachain.NewProducer(root)}
}

// PerCommitmentSecret implements keychain.RevocationProducer.
func (r *testRevocations) PerCommitmentSecret(index uint64) ([32]byte, error) {
	secret, err := r.producer.AtIndex(index)
	if err != nil {
		return [32]byte{}, err
	}

	return *secret, nil
}

// PerCommitmentPoint implements keychain.RevocationProducer.
func (r *testRevocations) PerCommitmentPoint(
	index uint64) (*btcec.PublicKey, error) {

	secret, err := r.producer.AtIndex(index)
	if err != nil {
		return nil, err
	}
	_, pub := btcec.PrivKeyFromBytes(secret[:])

	return pub, nil
}

// testKeyRing hands out one static key per family.
type testKeyRing struct {
	keys map[keychain.KeyFamily]*btcec.PrivateKey
}

// DeriveNextKey implements keychain.KeyRing.
func (k *testKeyRing) DeriveNextKey(
	fam keychain.KeyFamily) (keychain.KeyDescriptor, error) {

	return k.DeriveKey(keychain.KeyLocator{Family: fam})
}

// DeriveKey implements keychain.KeyRing.
func (k *testKeyRing) DeriveKey(
	loc keychain.KeyLocator) (keychain.KeyDescriptor, error) {

	key, ok := k.keys[loc.Family]
	if !ok {
		return keychain.KeyDescriptor{}, fmt.Errorf(
			"no key for family %v", loc.Family,
		)
	}

	return keychain.KeyDescriptor{
		KeyLocator: loc,
		PubKey:     key.PubKey(),
	}, nil
}

// testHtlcStore is the in-memory counterpart of the HTLC-info database,
// fed by executed StoreHtlcInfos actions.
type testHtlcStore struct {
	infos map[string][]HtlcInfo
}

func newTestHtlcStore() *testHtlcStore {
	return &testHtlcStore{infos: make(map[string][]HtlcInfo)}
}

func (s *testHtlcStore) add(infos []HtlcInfo) {
	for _, info := range infos {
		key := fmt.Sprintf("%v:%v", info.ChannelID, info.CommitmentNumber)
		s.infos[key] = append(s.infos[key], info)
	}
}

// ListHtlcInfos implements HtlcInfoSource.
func (s *testHtlcStore) ListHtlcInfos(channelID lnwire.ChannelID,
	commitmentNumber uint64) ([]HtlcInfo, error) {

	key := fmt.Sprintf("%v:%v", channelID, commitmentNumber)

	return s.infos[key], nil
}

// testPeer bundles one side of a test channel.
type testPeer struct {
	machine   *Machine
	state     State
	htlcStore *testHtlcStore

	// Collected side effects of every executed transition; only sent
	// is cleared, by drainMessages.
	sent      []lnwire.Message
	published []*wire.MsgTx
	watches   []Watch
	stored    []StateWithCommitments
	failures  []HandleCommandFailed
}

// newTestPeer assembles a machine whose five basepoint families are all
// derived from a deterministic seed.
func newTestPeer(seed byte) *testPeer {
	keyRing := &testKeyRing{
		keys: make(map[keychain.KeyFamily]*btcec.PrivateKey),
	}
	signer := newTestSigner()
	families := []keychain.KeyFamily{
		keychain.KeyFamilyMultiSig,
		keychain.KeyFamilyRevocationBase,
		keychain.KeyFamilyHtlcBase,
		keychain.KeyFamilyPaymentBase,
		keychain.KeyFamilyDelayBase,
		keychain.KeyFamilyNodeKey,
		keychain.KeyFamilyStaticBackup,
	}
	for i, fam := range families {
		raw := sha256.Sum256([]byte{seed, byte(i)})
		priv, _ := btcec.PrivKeyFromBytes(raw[:])
		keyRing.keys[fam] = priv
		signer.addKey(priv)
	}

	revocations := newTestRevocations(seed)

	// Commitment-level keys are tweaked from the basepoints with
	// per-commitment points; they are not registered, as the signer
	// applies tweaks to the base keys itself.

	htlcStore := newTestHtlcStore()
	cfg := Config{
		NodeParams: NodeParams{
			ChainHash:                *chaincfg.RegressionNetParams.GenesisHash,
			MinDepthBlocks:           3,
			MaxToLocalDelayBlocks:    2016,
			MaxReserveToFundingRatio: 0.05,
			MaxFeerateMismatchRatio:  1.5,
			DustLimit:                546,
			MaxHtlcValueInFlight:     lnwire.NewMSatFromSatoshis(1_000_000),
			HtlcMinimum:              1,
			MaxAcceptedHtlcs:         30,
			ToRemoteDelayBlocks:      144,
			ReserveToFundingRatio:    0.01,
			Features:                 lnwire.NewRawFeatureVector(),
		},
		RemoteNodeID: keyRing.keys[keychain.KeyFamilyNodeKey].PubKey(),
		KeyRing:      keyRing,
		Signer:       signer,
		Revocations:  revocations,
		HtlcInfos:    htlcStore,
		Clock: clock.NewTestClock(
			time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
		),
	}

	return &testPeer{
		machine:   NewMachine(cfg),
		state:     WaitForInit{},
		htlcStore: htlcStore,
	}
}

// localParams builds the channel parameters one peer announces.
func (p *testPeer) localParams(isFunder bool) LocalParams {
	keys := p.machine.cfg.KeyRing.(*testKeyRing).keys

	finalScript := make([]byte, 22)
	finalScript[0] = txscript.OP_0
	finalScript[1] = txscript.OP_DATA_20
	copy(finalScript[2:], btcutil.Hash160(
		keys[keychain.KeyFamilyPaymentBase].PubKey().
			SerializeCompressed(),
	))

	return LocalParams{
		DustLimit:                546,
		MaxHtlcValueInFlight:     lnwire.NewMSatFromSatoshis(900_000),
		ChannelReserve:           10_000,
		HtlcMinimum:              1000,
		ToSelfDelay:              144,
		MaxAcceptedHtlcs:         30,
		IsFunder:                 isFunder,
		DefaultFinalScriptPubKey: finalScript,
		Features:                 lnwire.NewRawFeatureVector(),
		FundingKeyLoc: keychain.KeyLocator{
			Family: keychain.KeyFamilyMultiSig,
		},
		Basepoints: keychain.ChannelBasepoints{
			FundingKey: keys[keychain.KeyFamilyMultiSig].PubKey(),
			RevocationBasePoint: keys[keychain.KeyFamilyRevocationBase].
				PubKey(),
			PaymentBasePoint: keys[keychain.KeyFamilyPaymentBase].
				PubKey(),
			DelayBasePoint: keys[keychain.KeyFamilyDelayBase].
				PubKey(),
			HtlcBasePoint: keys[keychain.KeyFamilyHtlcBase].
				PubKey(),
		},
	}
}

// process feeds an event and records the resulting side effects.
func (p *testPeer) process(event Event) []Action {
	nextState, actions := p.machine.Process(p.state, event)
	p.state = nextState

	for _, action := range actions {
		switch a := action.(type) {
		case SendMessage:
			p.sent = append(p.sent, a.Msg)
		case PublishTx:
			p.published = append(p.published, a.Tx)
		case SendWatch:
			p.watches = append(p.watches, a.Watch)
		case StoreState:
			p.stored = append(p.stored, a.State)
		case StoreHtlcInfos:
			p.htlcStore.add(a.Htlcs)
		case HandleCommandFailed:
			p.failures = append(p.failures, a)
		case SendToSelf:
			// Self-directed commands run immediately in tests.
			p.process(ExecuteCommand{Cmd: a.Cmd})
		}
	}

	return actions
}

// drainMessages returns and clears the outbox.
func (p *testPeer) drainMessages() []lnwire.Message {
	sent := p.sent
	p.sent = nil

	return sent
}

// deliverAll feeds every outbound message of the counterparty into this
// peer, repeating until both outboxes are empty.
func deliverAll(a, b *testPeer) {
	for {
		aOut := a.drainMessages()
		bOut := b.drainMessages()
		if len(aOut) == 0 && len(bOut) == 0 {
			return
		}
		for _, msg := range aOut {
			b.process(MessageReceived{Msg: msg})
		}
		for _, msg := range bOut {
			a.process(MessageReceived{Msg: msg})
		}
	}
}

// testFundingAmount is the capacity of the standard test channel.
const testFundingAmount = btcutil.Amount(1_000_000)

// openTestChannel drives two fresh peers through the complete funding
// handshake, ending with both sides in Normal.
func openTestChannel(alice, bob *testPeer) error {
	var tempChanID [32]byte
	tempChanID[0] = 42

	aliceInit := lnwire.NewInitMessage(
		lnwire.NewRawFeatureVector(), lnwire.NewRawFeatureVector(),
	)

	alice.process(InitFunder{
		TemporaryChannelID:    tempChanID,
		FundingAmount:         testFundingAmount,
		PushAmount:            0,
		InitialFeeratePerKw:   testFeerate,
		FundingTxFeeratePerKw: testFeerate,
		LocalParams:           alice.localParams(true),
		RemoteInit:            aliceInit,
		ChannelVersion:        VersionStandard,
	})
	bob.process(InitFundee{
		TemporaryChannelID:  tempChanID,
		LocalParams:         bob.localParams(false),
		RemoteInit:          aliceInit,
		ChannelVersion:      VersionStandard,
		CurrentFeeratePerKw: testFeerate,
	})

	// open_channel / accept_channel.
	deliverAll(alice, bob)

	// Alice's wallet answers with the funding transaction.
	if _, ok := alice.state.(WaitForFundingInternal); !ok {
		return fmt.Errorf("alice in %v, want WaitForFundingInternal",
			alice.state.Name())
	}

	_, fundingOutput, err := fundingScriptFor(alice, bob)
	if err != nil {
		return err
	}
	fundingTx := testFundingTx(fundingOutput)

	alice.process(MakeFundingTxResponse{
		FundingTx:            fundingTx,
		FundingTxOutputIndex: 0,
		Fee:                  1000,
	})

	// funding_created / funding_signed.
	deliverAll(alice, bob)

	// Funding confirms for both.
	confirm := WatchReceived{Event: WatchEventConfirmed{
		Tag:         BitcoinFundingDepthOk,
		Tx:          fundingTx,
		BlockHeight: 400_000,
		TxIndex:     7,
	}}
	alice.process(confirm)
	bob.process(confirm)

	// funding_locked exchange.
	deliverAll(alice, bob)

	if _, ok := alice.state.(Normal); !ok {
		return fmt.Errorf("alice in %v, want Normal",
			alice.state.Name())
	}
	if _, ok := bob.state.(Normal); !ok {
		return fmt.Errorf("bob in %v, want Normal", bob.state.Name())
	}

	return nil
}

// testFundingTx wraps the funding output into a minimal transaction.
func testFundingTx(fundingOutput *wire.TxOut) *wire.MsgTx {
	fundingTx := wire.NewMsgTx(2)
	fundingTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
	})
	fundingTx.AddTxOut(fundingOutput)

	return fundingTx
}

// fundingScriptFor derives the funding script the two test peers share.
func fundingScriptFor(alice, bob *testPeer) ([]byte, *wire.TxOut, error) {
	aliceKeys := alice.machine.cfg.KeyRing.(*testKeyRing).keys
	bobKeys := bob.machine.cfg.KeyRing.(*testKeyRing).keys

	return committx.GenFundingPkScript(
		aliceKeys[keychain.KeyFamilyMultiSig].PubKey().
			SerializeCompressed(),
		bobKeys[keychain.KeyFamilyMultiSig].PubKey().
			SerializeCompressed(),
		int64(testFundingAmount),
	)
}

// addTestHtlc runs a full add+sign round for an HTLC from sender to
// receiver and returns the payment preimage.
func addTestHtlc(sender, receiver *testPeer,
	amount lnwire.MilliSatoshi) ([32]byte, error) {

	var preimage [32]byte
	preimage[0] = 0x99
	paymentHash := sha256.Sum256(preimage[:])

	sender.process(ExecuteCommand{Cmd: CmdAddHtlc{
		Amount:      amount,
		PaymentHash: paymentHash,
		Expiry:      400_100,
		Origin:      LocalOrigin{PaymentID: paymentHash},
		Commit:      true,
	}})
	deliverAll(sender, receiver)

	return preimage, nil
}

// addTestHtlcNoDelivery has the sender offer and sign an HTLC without the
// exchange ever completing: when receiver is non-nil it sees the add and
// the signature, but its answers are not delivered back.
func addTestHtlcNoDelivery(sender, receiver *testPeer) ([32]byte, error) {
	var preimage [32]byte
	preimage[0] = 0x99
	paymentHash := sha256.Sum256(preimage[:])

	sender.process(ExecuteCommand{Cmd: CmdAddHtlc{
		Amount:      lnwire.NewMSatFromSatoshis(100_000),
		PaymentHash: paymentHash,
		Expiry:      400_040,
		Origin:      LocalOrigin{PaymentID: paymentHash},
		Commit:      true,
	}})

	if receiver != nil {
		for _, msg := range sender.drainMessages() {
			receiver.process(MessageReceived{Msg: msg})
		}
	}

	return preimage, nil
}

// testFeerate is the fee rate the harness opens channels at.
const testFeerate = chainfee.SatPerKWeight(2500)

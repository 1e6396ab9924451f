package channel

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/lnforge/channeld/chainfee"
	"github.com/lnforge/channeld/committx"
	"github.com/lnforge/channeld/keychain"
	"github.com/lnforge/channeld/lnwire"
	"github.com/lnforge/channeld/shachain"
)

// processWaitForInit assigns a role to a fresh channel or restores a
// persisted one.
func (m *Machine) processWaitForInit(s WaitForInit, event Event) (State,
	[]Action, error) {

	switch e := event.(type) {
	case InitFunder:
		firstPoint, err := m.cfg.Revocations.PerCommitmentPoint(0)
		if err != nil {
			return s, nil, err
		}

		basepoints := e.LocalParams.Basepoints
		open := &lnwire.OpenChannel{
			ChainHash:             m.cfg.NodeParams.ChainHash,
			PendingChannelID:      e.TemporaryChannelID,
			FundingAmount:         e.FundingAmount,
			PushAmount:            e.PushAmount,
			DustLimit:             e.LocalParams.DustLimit,
			MaxValueInFlight:      e.LocalParams.MaxHtlcValueInFlight,
			ChannelReserve:        e.LocalParams.ChannelReserve,
			HtlcMinimum:           e.LocalParams.HtlcMinimum,
			FeePerKiloWeight:      uint32(e.InitialFeeratePerKw),
			CsvDelay:              e.LocalParams.ToSelfDelay,
			MaxAcceptedHTLCs:      e.LocalParams.MaxAcceptedHtlcs,
			FundingKey:            basepoints.FundingKey,
			RevocationPoint:       basepoints.RevocationBasePoint,
			PaymentPoint:          basepoints.PaymentBasePoint,
			DelayedPaymentPoint:   basepoints.DelayBasePoint,
			HtlcPoint:             basepoints.HtlcBasePoint,
			FirstCommitmentPoint:  firstPoint,
			ChannelFlags:          e.ChannelFlags,
			UpfrontShutdownScript: e.LocalParams.DefaultFinalScriptPubKey,
			ChannelVersionBits:    uint32(e.ChannelVersion),
		}

		nextState := WaitForAcceptChannel{Init: e, LastSent: open}

		return nextState, []Action{SendMessage{Msg: open}}, nil

	case InitFundee:
		return WaitForOpenChannel{Init: e}, nil, nil

	case Restore:
		return m.restore(e.State)

	default:
		return m.unhandled(s, event)
	}
}

// restore re-installs a persisted channel: watches come back, publishable
// closing transactions are re-broadcast, and the channel starts out
// offline.
func (m *Machine) restore(state StateWithCommitments) (State, []Action,
	error) {

	c := state.Commits()
	actions := []Action{
		SendWatch{Watch: WatchSpent{
			ChannelID:   c.ChannelID,
			TxID:        c.CommitInput.OutPoint.Hash,
			OutputIndex: c.CommitInput.OutPoint.Index,
			Tag:         BitcoinFundingSpent,
		}},
	}

	switch s := state.(type) {
	case WaitForFundingConfirmed:
		actions = append(actions, SendWatch{Watch: WatchConfirmed{
			ChannelID: c.ChannelID,
			TxID:      c.CommitInput.OutPoint.Hash,
			MinDepth:  m.cfg.NodeParams.MinDepthBlocks,
			Tag:       BitcoinFundingDepthOk,
		}})

		// If we funded the channel, make sure the funding
		// transaction actually reaches the chain.
		if c.LocalParams.IsFunder && s.FundingTx != nil {
			actions = append(actions, PublishTx{Tx: s.FundingTx})
		}

		return Offline{Inner: s}, actions, nil

	case Closing:
		for _, tx := range s.MutualClosePublished {
			actions = append(actions,
				PublishTx{Tx: tx},
				SendWatch{Watch: WatchConfirmed{
					ChannelID: c.ChannelID,
					TxID:      tx.TxHash(),
					MinDepth:  m.cfg.NodeParams.MinDepthBlocks,
					Tag:       BitcoinTxConfirmed,
				}},
			)
		}
		republish := func(txs []*wire.MsgTx) {
			for _, tx := range txs {
				actions = append(actions,
					PublishTx{Tx: tx},
					SendWatch{Watch: WatchConfirmed{
						ChannelID: c.ChannelID,
						TxID:      tx.TxHash(),
						MinDepth:  m.cfg.NodeParams.MinDepthBlocks,
						Tag:       BitcoinTxConfirmed,
					}},
				)
			}
		}
		if s.LocalCommitPublished != nil {
			republish(s.LocalCommitPublished.PublishableTxList())
		}
		if s.CurrentRemoteCommitPublished != nil {
			republish(s.CurrentRemoteCommitPublished.PublishableTxList())
		}
		if s.NextRemoteCommitPublished != nil {
			republish(s.NextRemoteCommitPublished.PublishableTxList())
		}
		if s.FutureRemoteCommitPublished != nil {
			republish(s.FutureRemoteCommitPublished.PublishableTxList())
		}
		for _, revoked := range s.RevokedCommitPublished {
			republish(revoked.PublishableTxList())
		}

		return Offline{Inner: s}, actions, nil

	default:
		return Offline{Inner: state}, actions, nil
	}
}

// processWaitForOpenChannel is the fundee waiting for open_channel.
func (m *Machine) processWaitForOpenChannel(s WaitForOpenChannel,
	event Event) (State, []Action, error) {

	switch e := event.(type) {
	case MessageReceived:
		switch msg := e.Msg.(type) {
		case *lnwire.OpenChannel:
			return m.handleOpenChannel(s, msg)

		case *lnwire.Error:
			return Aborted{
				ChannelID: s.Init.TemporaryChannelID,
			}, nil, nil

		default:
			return m.unhandled(s, event)
		}

	case Disconnected:
		return Aborted{ChannelID: s.Init.TemporaryChannelID}, nil, nil

	case ExecuteCommand:
		if _, ok := e.Cmd.(CmdClose); ok {
			return Aborted{
				ChannelID: s.Init.TemporaryChannelID,
			}, nil, nil
		}
		return m.unhandled(s, event)

	default:
		return m.unhandled(s, event)
	}
}

func (m *Machine) handleOpenChannel(s WaitForOpenChannel,
	open *lnwire.OpenChannel) (State, []Action, error) {

	version := Version(open.ChannelVersionBits)
	if version == 0 {
		version = s.Init.ChannelVersion
	}

	err := validateParamsFundee(
		&m.cfg.NodeParams, open, version, s.Init.CurrentFeeratePerKw,
	)
	if err != nil {
		return Aborted{ChannelID: open.PendingChannelID}, []Action{
			SendMessage{Msg: lnwire.NewError(
				open.PendingChannelID, err.Error(),
			)},
		}, nil
	}

	firstPoint, err := m.cfg.Revocations.PerCommitmentPoint(0)
	if err != nil {
		return s, nil, err
	}

	localParams := s.Init.LocalParams
	basepoints := localParams.Basepoints
	minDepth := MinDepthForFunding(&m.cfg.NodeParams, open.FundingAmount)
	accept := &lnwire.AcceptChannel{
		PendingChannelID:      open.PendingChannelID,
		DustLimit:             localParams.DustLimit,
		MaxValueInFlight:      localParams.MaxHtlcValueInFlight,
		ChannelReserve:        localParams.ChannelReserve,
		HtlcMinimum:           localParams.HtlcMinimum,
		MinAcceptDepth:        minDepth,
		CsvDelay:              localParams.ToSelfDelay,
		MaxAcceptedHTLCs:      localParams.MaxAcceptedHtlcs,
		FundingKey:            basepoints.FundingKey,
		RevocationPoint:       basepoints.RevocationBasePoint,
		PaymentPoint:          basepoints.PaymentBasePoint,
		DelayedPaymentPoint:   basepoints.DelayBasePoint,
		HtlcPoint:             basepoints.HtlcBasePoint,
		FirstCommitmentPoint:  firstPoint,
		UpfrontShutdownScript: localParams.DefaultFinalScriptPubKey,
	}

	remoteParams := remoteParamsFromOpen(open)

	nextState := WaitForFundingCreated{
		TemporaryChannelID:            open.PendingChannelID,
		LocalParams:                   localParams,
		RemoteParams:                  remoteParams,
		FundingAmount:                 open.FundingAmount,
		PushAmount:                    open.PushAmount,
		InitialFeeratePerKw:           chainfee.SatPerKWeight(open.FeePerKiloWeight),
		RemoteFirstPerCommitmentPoint: open.FirstCommitmentPoint,
		ChannelFlags:                  open.ChannelFlags,
		ChannelVersion:                version,
		LastSent:                      accept,
	}

	return nextState, []Action{SendMessage{Msg: accept}}, nil
}

// remoteParamsFromOpen lifts the peer's open_channel into RemoteParams.
func remoteParamsFromOpen(open *lnwire.OpenChannel) RemoteParams {
	return RemoteParams{
		DustLimit:             open.DustLimit,
		MaxHtlcValueInFlight:  open.MaxValueInFlight,
		ChannelReserve:        open.ChannelReserve,
		HtlcMinimum:           open.HtlcMinimum,
		ToSelfDelay:           open.CsvDelay,
		MaxAcceptedHtlcs:      open.MaxAcceptedHTLCs,
		UpfrontShutdownScript: open.UpfrontShutdownScript,
		Basepoints: basepointsFrom(
			open.FundingKey, open.RevocationPoint,
			open.PaymentPoint, open.DelayedPaymentPoint,
			open.HtlcPoint,
		),
	}
}

func basepointsFrom(funding, revocation, payment, delayed,
	htlc *btcec.PublicKey) keychain.ChannelBasepoints {

	return keychain.ChannelBasepoints{
		FundingKey:          funding,
		RevocationBasePoint: revocation,
		PaymentBasePoint:    payment,
		DelayBasePoint:      delayed,
		HtlcBasePoint:       htlc,
	}
}

// processWaitForAcceptChannel is the funder waiting for accept_channel.
func (m *Machine) processWaitForAcceptChannel(s WaitForAcceptChannel,
	event Event) (State, []Action, error) {

	switch e := event.(type) {
	case MessageReceived:
		switch msg := e.Msg.(type) {
		case *lnwire.AcceptChannel:
			return m.handleAcceptChannel(s, msg)

		case *lnwire.Error:
			return Aborted{
				ChannelID: s.Init.TemporaryChannelID,
			}, nil, nil

		default:
			return m.unhandled(s, event)
		}

	case Disconnected:
		return Aborted{ChannelID: s.Init.TemporaryChannelID}, nil, nil

	case ExecuteCommand:
		if _, ok := e.Cmd.(CmdClose); ok {
			return Aborted{
				ChannelID: s.Init.TemporaryChannelID,
			}, nil, nil
		}
		return m.unhandled(s, event)

	default:
		return m.unhandled(s, event)
	}
}

func (m *Machine) handleAcceptChannel(s WaitForAcceptChannel,
	accept *lnwire.AcceptChannel) (State, []Action, error) {

	err := validateParamsFunder(
		&m.cfg.NodeParams, s.LastSent, accept, s.Init.ChannelVersion,
	)
	if err != nil {
		return Aborted{ChannelID: s.Init.TemporaryChannelID}, []Action{
			SendMessage{Msg: lnwire.NewError(
				s.Init.TemporaryChannelID, err.Error(),
			)},
		}, nil
	}

	remoteParams := RemoteParams{
		DustLimit:             accept.DustLimit,
		MaxHtlcValueInFlight:  accept.MaxValueInFlight,
		ChannelReserve:        accept.ChannelReserve,
		HtlcMinimum:           accept.HtlcMinimum,
		ToSelfDelay:           accept.CsvDelay,
		MaxAcceptedHtlcs:      accept.MaxAcceptedHTLCs,
		UpfrontShutdownScript: accept.UpfrontShutdownScript,
		Basepoints: basepointsFrom(
			accept.FundingKey, accept.RevocationPoint,
			accept.PaymentPoint, accept.DelayedPaymentPoint,
			accept.HtlcPoint,
		),
	}

	_, fundingOutput, err := committx.GenFundingPkScript(
		s.Init.LocalParams.Basepoints.FundingKey.SerializeCompressed(),
		accept.FundingKey.SerializeCompressed(),
		int64(s.Init.FundingAmount),
	)
	if err != nil {
		return s, nil, err
	}

	nextState := WaitForFundingInternal{
		TemporaryChannelID:            s.Init.TemporaryChannelID,
		LocalParams:                   s.Init.LocalParams,
		RemoteParams:                  remoteParams,
		FundingAmount:                 s.Init.FundingAmount,
		PushAmount:                    s.Init.PushAmount,
		InitialFeeratePerKw:           s.Init.InitialFeeratePerKw,
		RemoteFirstPerCommitmentPoint: accept.FirstCommitmentPoint,
		ChannelFlags:                  s.Init.ChannelFlags,
		ChannelVersion:                s.Init.ChannelVersion,
		LastSent:                      s.LastSent,
	}

	return nextState, []Action{MakeFundingTx{
		PubkeyScript: fundingOutput.PkScript,
		Amount:       s.Init.FundingAmount,
		FeeratePerKw: s.Init.FundingTxFeeratePerKw,
	}}, nil
}

// processWaitForFundingInternal is the funder waiting for its wallet to
// build the funding transaction.
func (m *Machine) processWaitForFundingInternal(s WaitForFundingInternal,
	event Event) (State, []Action, error) {

	switch e := event.(type) {
	case MakeFundingTxResponse:
		return m.handleFundingTxBuilt(s, e)

	case MessageReceived:
		if _, ok := e.Msg.(*lnwire.Error); ok {
			return Aborted{
				ChannelID: s.TemporaryChannelID,
			}, nil, nil
		}
		return m.unhandled(s, event)

	case Disconnected:
		return Aborted{ChannelID: s.TemporaryChannelID}, nil, nil

	default:
		return m.unhandled(s, event)
	}
}

func (m *Machine) handleFundingTxBuilt(s WaitForFundingInternal,
	e MakeFundingTxResponse) (State, []Action, error) {

	fundingTxid := e.FundingTx.TxHash()
	fundingOutpoint := wire.OutPoint{
		Hash:  fundingTxid,
		Index: e.FundingTxOutputIndex,
	}

	commitInput, err := makeCommitInput(
		fundingOutpoint,
		s.LocalParams.Basepoints.FundingKey,
		s.RemoteParams.Basepoints.FundingKey,
		int64(s.FundingAmount),
	)
	if err != nil {
		return s, nil, err
	}

	// A provisional ledger carries everything first-commitment
	// construction needs.
	provisional := &Commitments{
		ChannelVersion: s.ChannelVersion,
		LocalParams:    s.LocalParams,
		RemoteParams:   s.RemoteParams,
		RemoteCommit: RemoteCommit{
			RemotePerCommitmentPoint: s.RemoteFirstPerCommitmentPoint,
		},
		CommitInput: commitInput,
	}

	localFirstPoint, err := m.cfg.Revocations.PerCommitmentPoint(0)
	if err != nil {
		return s, nil, err
	}

	first, err := makeFirstCommitTxs(
		provisional, s.FundingAmount, s.PushAmount,
		s.InitialFeeratePerKw, localFirstPoint,
	)
	if err != nil {
		return s, nil, err
	}

	remoteSig, err := provisional.signCommitTx(
		m.cfg.Signer, first.remoteTx.Tx,
	)
	if err != nil {
		return s, nil, err
	}

	fundingCreated := &lnwire.FundingCreated{
		PendingChannelID:   s.TemporaryChannelID,
		FundingTxID:        fundingTxid,
		FundingOutputIndex: uint16(e.FundingTxOutputIndex),
		CommitSig:          remoteSig,
	}

	channelID := lnwire.NewChanIDFromOutPoint(fundingOutpoint)

	nextState := WaitForFundingSigned{
		ChannelID:    channelID,
		LocalParams:  s.LocalParams,
		RemoteParams: s.RemoteParams,
		FundingTx:    e.FundingTx,
		FundingTxFee: e.Fee,
		LocalSpec:    first.localSpec,
		LocalCommitTx: first.localTx.Tx,
		RemoteCommit: RemoteCommit{
			Index:                    0,
			Spec:                     first.remoteSpec,
			Txid:                     first.remoteTx.Tx.TxHash(),
			RemotePerCommitmentPoint: s.RemoteFirstPerCommitmentPoint,
		},
		ChannelFlags:   s.ChannelFlags,
		ChannelVersion: s.ChannelVersion,
		CommitInput:    commitInput,
		LastSent:       fundingCreated,
	}

	actions := []Action{
		ChannelIdAssigned{
			TemporaryChannelID: s.TemporaryChannelID,
			ChannelID:          channelID,
		},
		ChannelIdSwitch{
			OldChannelID: s.TemporaryChannelID,
			NewChannelID: channelID,
		},
		SendMessage{Msg: fundingCreated},
	}

	return nextState, actions, nil
}

// makeCommitInput assembles the funding outpoint, output and multisig
// script.
func makeCommitInput(outpoint wire.OutPoint, localFundingKey,
	remoteFundingKey *btcec.PublicKey, amount int64) (CommitInput, error) {

	witnessScript, fundingOutput, err := committx.GenFundingPkScript(
		localFundingKey.SerializeCompressed(),
		remoteFundingKey.SerializeCompressed(), amount,
	)
	if err != nil {
		return CommitInput{}, err
	}

	return CommitInput{
		OutPoint:      outpoint,
		TxOut:         fundingOutput,
		WitnessScript: witnessScript,
	}, nil
}

// processWaitForFundingCreated is the fundee waiting for funding_created.
func (m *Machine) processWaitForFundingCreated(s WaitForFundingCreated,
	event Event) (State, []Action, error) {

	switch e := event.(type) {
	case MessageReceived:
		switch msg := e.Msg.(type) {
		case *lnwire.FundingCreated:
			return m.handleFundingCreated(s, msg)

		case *lnwire.Error:
			return Aborted{
				ChannelID: s.TemporaryChannelID,
			}, nil, nil

		default:
			return m.unhandled(s, event)
		}

	case Disconnected:
		return Aborted{ChannelID: s.TemporaryChannelID}, nil, nil

	default:
		return m.unhandled(s, event)
	}
}

func (m *Machine) handleFundingCreated(s WaitForFundingCreated,
	msg *lnwire.FundingCreated) (State, []Action, error) {

	fundingOutpoint := wire.OutPoint{
		Hash:  msg.FundingTxID,
		Index: uint32(msg.FundingOutputIndex),
	}

	commitInput, err := makeCommitInput(
		fundingOutpoint,
		s.LocalParams.Basepoints.FundingKey,
		s.RemoteParams.Basepoints.FundingKey,
		int64(s.FundingAmount),
	)
	if err != nil {
		return s, nil, err
	}

	provisional := &Commitments{
		ChannelVersion: s.ChannelVersion,
		LocalParams:    s.LocalParams,
		RemoteParams:   s.RemoteParams,
		RemoteCommit: RemoteCommit{
			RemotePerCommitmentPoint: s.RemoteFirstPerCommitmentPoint,
		},
		CommitInput: commitInput,
	}

	localFirstPoint, err := m.cfg.Revocations.PerCommitmentPoint(0)
	if err != nil {
		return s, nil, err
	}

	first, err := makeFirstCommitTxs(
		provisional, s.FundingAmount, s.PushAmount,
		s.InitialFeeratePerKw, localFirstPoint,
	)
	if err != nil {
		return s, nil, err
	}

	// Their signature must cover our first commitment.
	err = committx.VerifySig(
		first.localTx.Tx, 0, commitInput.WitnessScript,
		commitInput.TxOut, s.RemoteParams.Basepoints.FundingKey,
		msg.CommitSig,
	)
	if err != nil {
		return s, nil, ErrInvalidCommitmentSignature
	}

	localSig, err := provisional.signCommitTx(m.cfg.Signer, first.localTx.Tx)
	if err != nil {
		return s, nil, err
	}
	signedLocalCommit := first.localTx.Tx.Copy()
	signedLocalCommit.TxIn[0].Witness = committx.SpendMultiSig(
		commitInput.WitnessScript,
		s.LocalParams.Basepoints.FundingKey.SerializeCompressed(),
		append(sigToWire(localSig), byte(sigHashAll)),
		s.RemoteParams.Basepoints.FundingKey.SerializeCompressed(),
		append(sigToWire(msg.CommitSig), byte(sigHashAll)),
	)

	remoteSig, err := provisional.signCommitTx(
		m.cfg.Signer, first.remoteTx.Tx,
	)
	if err != nil {
		return s, nil, err
	}

	channelID := lnwire.NewChanIDFromOutPoint(fundingOutpoint)
	fundingSigned := &lnwire.FundingSigned{
		ChanID:    channelID,
		CommitSig: remoteSig,
	}

	commitments := Commitments{
		ChannelVersion: s.ChannelVersion,
		LocalParams:    s.LocalParams,
		RemoteParams:   s.RemoteParams,
		ChannelFlags:   s.ChannelFlags,
		LocalCommit: LocalCommit{
			Index: 0,
			Spec:  first.localSpec,
			PublishableTxs: PublishableTxs{
				CommitTx: signedLocalCommit,
			},
		},
		RemoteCommit: RemoteCommit{
			Index:                    0,
			Spec:                     first.remoteSpec,
			Txid:                     first.remoteTx.Tx.TxHash(),
			RemotePerCommitmentPoint: s.RemoteFirstPerCommitmentPoint,
		},
		OriginChannels:       make(map[uint64]Origin),
		RemoteNextCommitInfo: placeholderNextCommitInfo(),
		RemotePerCommitmentSecrets: newSecretStore(),
		CommitInput:                commitInput,
		ChannelID:                  channelID,
	}

	nextState := WaitForFundingConfirmed{
		Commitments:  commitments,
		WaitingSince: m.cfg.Clock.Now(),
		LastSent:     fundingSigned,
	}

	actions := []Action{
		ChannelIdAssigned{
			TemporaryChannelID: s.TemporaryChannelID,
			ChannelID:          channelID,
		},
		ChannelIdSwitch{
			OldChannelID: s.TemporaryChannelID,
			NewChannelID: channelID,
		},
		StoreState{State: nextState},
		SendWatch{Watch: WatchSpent{
			ChannelID:   channelID,
			TxID:        fundingOutpoint.Hash,
			OutputIndex: fundingOutpoint.Index,
			Tag:         BitcoinFundingSpent,
		}},
		SendWatch{Watch: WatchConfirmed{
			ChannelID: channelID,
			TxID:      fundingOutpoint.Hash,
			MinDepth: MinDepthForFunding(
				&m.cfg.NodeParams, s.FundingAmount,
			),
			Tag: BitcoinFundingDepthOk,
		}},
		SendWatch{Watch: WatchLost{
			ChannelID: channelID,
			TxID:      fundingOutpoint.Hash,
			MinDepth:  m.cfg.NodeParams.MinDepthBlocks,
			Tag:       BitcoinFundingLost,
		}},
		SendMessage{Msg: fundingSigned},
	}

	return nextState, actions, nil
}

// processWaitForFundingSigned is the funder waiting for funding_signed.
func (m *Machine) processWaitForFundingSigned(s WaitForFundingSigned,
	event Event) (State, []Action, error) {

	switch e := event.(type) {
	case MessageReceived:
		switch msg := e.Msg.(type) {
		case *lnwire.FundingSigned:
			return m.handleFundingSigned(s, msg)

		case *lnwire.Error:
			return Aborted{ChannelID: s.ChannelID}, nil, nil

		default:
			return m.unhandled(s, event)
		}

	case Disconnected:
		// The funding transaction was never broadcast; the channel
		// can be abandoned safely.
		return Aborted{ChannelID: s.ChannelID}, nil, nil

	default:
		return m.unhandled(s, event)
	}
}

func (m *Machine) handleFundingSigned(s WaitForFundingSigned,
	msg *lnwire.FundingSigned) (State, []Action, error) {

	provisional := &Commitments{
		ChannelVersion: s.ChannelVersion,
		LocalParams:    s.LocalParams,
		RemoteParams:   s.RemoteParams,
		CommitInput:    s.CommitInput,
	}

	err := committx.VerifySig(
		s.LocalCommitTx, 0, s.CommitInput.WitnessScript,
		s.CommitInput.TxOut, s.RemoteParams.Basepoints.FundingKey,
		msg.CommitSig,
	)
	if err != nil {
		return s, nil, ErrInvalidCommitmentSignature
	}

	localSig, err := provisional.signCommitTx(m.cfg.Signer, s.LocalCommitTx)
	if err != nil {
		return s, nil, err
	}
	signedLocalCommit := s.LocalCommitTx.Copy()
	signedLocalCommit.TxIn[0].Witness = committx.SpendMultiSig(
		s.CommitInput.WitnessScript,
		s.LocalParams.Basepoints.FundingKey.SerializeCompressed(),
		append(sigToWire(localSig), byte(sigHashAll)),
		s.RemoteParams.Basepoints.FundingKey.SerializeCompressed(),
		append(sigToWire(msg.CommitSig), byte(sigHashAll)),
	)

	commitments := Commitments{
		ChannelVersion: s.ChannelVersion,
		LocalParams:    s.LocalParams,
		RemoteParams:   s.RemoteParams,
		ChannelFlags:   s.ChannelFlags,
		LocalCommit: LocalCommit{
			Index: 0,
			Spec:  s.LocalSpec,
			PublishableTxs: PublishableTxs{
				CommitTx: signedLocalCommit,
			},
		},
		RemoteCommit:         s.RemoteCommit,
		OriginChannels:       make(map[uint64]Origin),
		RemoteNextCommitInfo: placeholderNextCommitInfo(),
		RemotePerCommitmentSecrets: newSecretStore(),
		CommitInput:                s.CommitInput,
		RemoteChannelData:          msg.ChannelData,
		ChannelID:                  s.ChannelID,
	}

	nextState := WaitForFundingConfirmed{
		Commitments:  commitments,
		FundingTx:    s.FundingTx,
		WaitingSince: m.cfg.Clock.Now(),
		LastSent:     s.LastSent,
	}

	actions := []Action{
		StoreState{State: nextState},
		SendWatch{Watch: WatchSpent{
			ChannelID:   s.ChannelID,
			TxID:        s.CommitInput.OutPoint.Hash,
			OutputIndex: s.CommitInput.OutPoint.Index,
			Tag:         BitcoinFundingSpent,
		}},
		SendWatch{Watch: WatchConfirmed{
			ChannelID: s.ChannelID,
			TxID:      s.CommitInput.OutPoint.Hash,
			MinDepth: MinDepthForFunding(
				&m.cfg.NodeParams,
				btcAmount(uint64(s.CommitInput.TxOut.Value)),
			),
			Tag: BitcoinFundingDepthOk,
		}},
		SendWatch{Watch: WatchLost{
			ChannelID: s.ChannelID,
			TxID:      s.CommitInput.OutPoint.Hash,
			MinDepth:  m.cfg.NodeParams.MinDepthBlocks,
			Tag:       BitcoinFundingLost,
		}},
		PublishTx{Tx: s.FundingTx},
	}

	return nextState, actions, nil
}

// processWaitForFundingConfirmed waits for the funding transaction to reach
// its minimum depth.
func (m *Machine) processWaitForFundingConfirmed(s WaitForFundingConfirmed,
	event Event) (State, []Action, error) {

	c := &s.Commitments

	switch e := event.(type) {
	case WatchReceived:
		switch we := e.Event.(type) {
		case WatchEventConfirmed:
			if we.Tag != BitcoinFundingDepthOk {
				return m.unhandled(s, event)
			}
			return m.handleFundingConfirmed(s, we)

		case WatchEventSpent:
			if we.Tag != BitcoinFundingSpent {
				return m.unhandled(s, event)
			}
			return m.handleFundingSpent(s, we.Tx)

		case WatchEventLost:
			return s, nil, ErrFundingTxSpent

		default:
			return m.unhandled(s, event)
		}

	case MessageReceived:
		switch msg := e.Msg.(type) {
		case *lnwire.FundingLocked:
			// Too early for us; replay it once our own
			// confirmation arrives.
			s1 := s
			s1.DeferredFundingLocked = msg
			return s1, []Action{StoreState{State: s1}}, nil

		case *lnwire.Error:
			return m.handleRemoteError(s, msg)

		default:
			return m.unhandled(s, event)
		}

	case NewBlock:
		if !c.LocalParams.IsFunder && s.WaitingSinceBlock > 0 &&
			e.Height > s.WaitingSinceBlock+FundingTimeoutFundee {

			// As fundee we have no on-chain exposure; give up
			// without touching the chain.
			return Aborted{ChannelID: c.ChannelID}, []Action{
				SendMessage{Msg: lnwire.NewError(
					c.ChannelID,
					ErrFundingTxTimedOut.Error(),
				)},
			}, nil
		}
		if s.WaitingSinceBlock == 0 {
			s1 := s
			s1.WaitingSinceBlock = e.Height
			return s1, nil, nil
		}
		return s, nil, nil

	case ExecuteCommand:
		if _, ok := e.Cmd.(CmdForceClose); ok {
			nextState, actions := m.spendLocalCurrent(s)
			return nextState, actions, nil
		}
		return m.handleCommandInNonNormal(s, e)

	case Disconnected:
		return Offline{Inner: s}, nil, nil

	default:
		return m.unhandled(s, event)
	}
}

func (m *Machine) handleFundingConfirmed(s WaitForFundingConfirmed,
	we WatchEventConfirmed) (State, []Action, error) {

	c := &s.Commitments

	if we.Tx.TxHash() != c.CommitInput.OutPoint.Hash {
		log.Warnf("ChannelPoint(%v): confirmation for unknown tx %v",
			c.CommitInput.OutPoint, we.Tx.TxHash())
		return s, nil, nil
	}

	nextPoint, err := m.cfg.Revocations.PerCommitmentPoint(1)
	if err != nil {
		return s, nil, err
	}

	fundingLocked := &lnwire.FundingLocked{
		ChanID:                 c.ChannelID,
		NextPerCommitmentPoint: nextPoint,
	}

	nextState := WaitForFundingLocked{
		Commitments: s.Commitments,
		ShortChannelID: ShortChannelID{
			BlockHeight: we.BlockHeight,
			TxIndex:     we.TxIndex,
			OutputIndex: uint16(c.CommitInput.OutPoint.Index),
		},
		LastSent: fundingLocked,
	}

	actions := []Action{
		StoreState{State: nextState},
		SendMessage{Msg: fundingLocked},
	}

	// A funding_locked that raced ahead of our confirmation is replayed
	// now.
	if s.DeferredFundingLocked != nil {
		replayedState, replayedActions, err := m.processInternal(
			nextState,
			MessageReceived{Msg: s.DeferredFundingLocked},
		)
		if err != nil {
			return nextState, actions, err
		}
		return replayedState, append(actions, replayedActions...), nil
	}

	return nextState, actions, nil
}

// processWaitForFundingLocked waits for the funding_locked exchange to
// complete.
func (m *Machine) processWaitForFundingLocked(s WaitForFundingLocked,
	event Event) (State, []Action, error) {

	switch e := event.(type) {
	case MessageReceived:
		switch msg := e.Msg.(type) {
		case *lnwire.FundingLocked:
			c1 := s.Commitments
			c1.RemoteNextCommitInfo =
				fn.NewRight[WaitingForRevocation](
					msg.NextPerCommitmentPoint,
				)

			nextState := Normal{
				Commitments:    c1,
				ShortChannelID: s.ShortChannelID,
			}

			return nextState, []Action{
				StoreState{State: nextState},
				SendWatch{Watch: WatchConfirmed{
					ChannelID: c1.ChannelID,
					TxID:      c1.CommitInput.OutPoint.Hash,
					MinDepth:  AnnouncementsMinConf,
					Tag:       BitcoinFundingDeeplyBuried,
				}},
			}, nil

		case *lnwire.Error:
			return m.handleRemoteError(s, msg)

		default:
			return m.unhandled(s, event)
		}

	case WatchReceived:
		if we, ok := e.Event.(WatchEventSpent); ok &&
			we.Tag == BitcoinFundingSpent {

			return m.handleFundingSpent(s, we.Tx)
		}
		return m.unhandled(s, event)

	case ExecuteCommand:
		if _, ok := e.Cmd.(CmdForceClose); ok {
			nextState, actions := m.spendLocalCurrent(s)
			return nextState, actions, nil
		}
		return m.handleCommandInNonNormal(s, e)

	case Disconnected:
		return Offline{Inner: s}, nil, nil

	default:
		return m.unhandled(s, event)
	}
}

// handleCommandInNonNormal rejects channel-update commands issued outside
// the operational state.
func (m *Machine) handleCommandInNonNormal(s State,
	e ExecuteCommand) (State, []Action, error) {

	return s, []Action{HandleCommandFailed{
		Cmd: e.Cmd,
		Err: ErrNoMoreHtlcsClosingInProgress,
	}}, nil
}

// placeholderNextCommitInfo seeds remoteNextCommitInfo before the remote's
// funding_locked supplies its real next point. The placeholder is a fresh
// random point whose secret is never used; signing is impossible until it
// is replaced, which is exactly the intent.
func placeholderNextCommitInfo() RemoteNextCommitInfo {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		// Entropy failure; an unusable placeholder is still safe.
		return fn.NewRight[WaitingForRevocation](
			(*btcec.PublicKey)(nil),
		)
	}

	return fn.NewRight[WaitingForRevocation](key.PubKey())
}

// newSecretStore allocates the remote revocation store of a new channel.
func newSecretStore() *shachain.Store {
	return shachain.NewStore()
}

const sigHashAll = byte(txscript.SigHashAll)

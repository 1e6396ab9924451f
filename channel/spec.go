package channel

import (
	"github.com/btcsuite/btcd/btcutil"

	"github.com/lnforge/channeld/chainfee"
	"github.com/lnforge/channeld/committx"
	"github.com/lnforge/channeld/lnwire"
)

// DirectedHtlc is an HTLC within a commitment spec, qualified by direction.
// Incoming is from the point of view of the spec's owner: an incoming HTLC
// was offered by the remote party.
type DirectedHtlc struct {
	// Incoming is true when the remote party offered the HTLC.
	Incoming bool

	// Add is the original update that introduced the HTLC.
	Add lnwire.UpdateAddHTLC
}

// CommitmentSpec describes one commitment state: both balances, the fee
// rate, and the set of pending HTLCs. A commitment transaction is a pure
// function of its spec plus the channel's static parameters.
type CommitmentSpec struct {
	// Htlcs is the set of HTLCs pending at this commitment.
	Htlcs []DirectedHtlc

	// FeePerKw is the fee rate of this commitment.
	FeePerKw chainfee.SatPerKWeight

	// ToLocal is the spec owner's balance before fees.
	ToLocal lnwire.MilliSatoshi

	// ToRemote is the counterparty's balance before fees.
	ToRemote lnwire.MilliSatoshi
}

// findHtlc locates a pending HTLC by direction and id.
func (s *CommitmentSpec) findHtlc(incoming bool,
	id uint64) (DirectedHtlc, bool) {

	for _, htlc := range s.Htlcs {
		if htlc.Incoming == incoming && htlc.Add.ID == id {
			return htlc, true
		}
	}

	return DirectedHtlc{}, false
}

// HtlcsByDirection returns the pending HTLCs offered by one side.
func (s *CommitmentSpec) HtlcsByDirection(incoming bool) []DirectedHtlc {
	var out []DirectedHtlc
	for _, htlc := range s.Htlcs {
		if htlc.Incoming == incoming {
			out = append(out, htlc)
		}
	}

	return out
}

// TotalOffered sums the value of the HTLCs offered by one side.
func (s *CommitmentSpec) TotalOffered(incoming bool) lnwire.MilliSatoshi {
	var total lnwire.MilliSatoshi
	for _, htlc := range s.Htlcs {
		if htlc.Incoming == incoming {
			total += htlc.Add.Amount
		}
	}

	return total
}

// addHtlc introduces a new HTLC into the spec, deducting its value from the
// offering side's balance.
func (s *CommitmentSpec) addHtlc(incoming bool,
	add *lnwire.UpdateAddHTLC) error {

	if incoming {
		if s.ToRemote < add.Amount {
			return InsufficientFundsError{Amount: add.Amount}
		}
		s.ToRemote -= add.Amount
	} else {
		if s.ToLocal < add.Amount {
			return InsufficientFundsError{Amount: add.Amount}
		}
		s.ToLocal -= add.Amount
	}
	s.Htlcs = append(s.Htlcs, DirectedHtlc{Incoming: incoming, Add: *add})

	return nil
}

// settleHtlc removes a pending HTLC, crediting its value to the owner side
// on fulfill and back to the offering side on failure.
func (s *CommitmentSpec) settleHtlc(incoming, fulfilled bool,
	id uint64) error {

	for i, htlc := range s.Htlcs {
		if htlc.Incoming != incoming || htlc.Add.ID != id {
			continue
		}

		switch {
		case incoming && fulfilled:
			s.ToLocal += htlc.Add.Amount
		case incoming && !fulfilled:
			s.ToRemote += htlc.Add.Amount
		case !incoming && fulfilled:
			s.ToRemote += htlc.Add.Amount
		default:
			s.ToLocal += htlc.Add.Amount
		}

		s.Htlcs = append(s.Htlcs[:i], s.Htlcs[i+1:]...)

		return nil
	}

	return UnknownHtlcIDError{ID: id}
}

// Reduce applies both sides' pending changes to the spec, producing the
// spec of the next commitment. Adds are applied before settlements so a
// settlement within the same batch always finds its HTLC. localChanges are
// updates the spec owner sent, remoteChanges updates it received.
func (s CommitmentSpec) Reduce(localChanges,
	remoteChanges []lnwire.Message) (CommitmentSpec, error) {

	next := CommitmentSpec{
		Htlcs:    append([]DirectedHtlc(nil), s.Htlcs...),
		FeePerKw: s.FeePerKw,
		ToLocal:  s.ToLocal,
		ToRemote: s.ToRemote,
	}

	for _, msg := range localChanges {
		if add, ok := msg.(*lnwire.UpdateAddHTLC); ok {
			if err := next.addHtlc(false, add); err != nil {
				return next, err
			}
		}
	}
	for _, msg := range remoteChanges {
		if add, ok := msg.(*lnwire.UpdateAddHTLC); ok {
			if err := next.addHtlc(true, add); err != nil {
				return next, err
			}
		}
	}

	for _, msg := range localChanges {
		var err error
		switch m := msg.(type) {
		case *lnwire.UpdateFulfillHTLC:
			// We settle HTLCs the remote offered us.
			err = next.settleHtlc(true, true, m.ID)
		case *lnwire.UpdateFailHTLC:
			err = next.settleHtlc(true, false, m.ID)
		case *lnwire.UpdateFailMalformedHTLC:
			err = next.settleHtlc(true, false, m.ID)
		case *lnwire.UpdateFee:
			next.FeePerKw = chainfee.SatPerKWeight(m.FeePerKw)
		}
		if err != nil {
			return next, err
		}
	}
	for _, msg := range remoteChanges {
		var err error
		switch m := msg.(type) {
		case *lnwire.UpdateFulfillHTLC:
			// The remote settles HTLCs we offered.
			err = next.settleHtlc(false, true, m.ID)
		case *lnwire.UpdateFailHTLC:
			err = next.settleHtlc(false, false, m.ID)
		case *lnwire.UpdateFailMalformedHTLC:
			err = next.settleHtlc(false, false, m.ID)
		case *lnwire.UpdateFee:
			next.FeePerKw = chainfee.SatPerKWeight(m.FeePerKw)
		}
		if err != nil {
			return next, err
		}
	}

	return next, nil
}

// TrimmedHtlcs returns the HTLCs that survive dust filtering at the given
// dust limit, converted to builder inputs.
func (s *CommitmentSpec) TrimmedHtlcs(
	dustLimit btcutil.Amount) []committx.Htlc {

	var htlcs []committx.Htlc
	for _, htlc := range s.Htlcs {
		dust := committx.HtlcIsDust(
			htlc.Incoming, htlc.Add.Amount, s.FeePerKw, dustLimit,
		)
		if dust {
			continue
		}

		htlcs = append(htlcs, committx.Htlc{
			Incoming:    htlc.Incoming,
			ID:          htlc.Add.ID,
			Amount:      htlc.Add.Amount,
			PaymentHash: htlc.Add.PaymentHash,
			Expiry:      htlc.Add.Expiry,
		})
	}

	return htlcs
}

// CommitFee returns the commitment fee of this spec at the given dust
// limit.
func (s *CommitmentSpec) CommitFee(dustLimit btcutil.Amount) btcutil.Amount {
	return committx.CommitFee(s.FeePerKw, len(s.TrimmedHtlcs(dustLimit)))
}

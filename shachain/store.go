package shachain

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// slot is a stored secret together with the chain index it was revealed at.
// Each slot can re-derive every already-revealed secret within its subtree.
type slot struct {
	index  uint64
	secret chainhash.Hash
}

// Store holds the per-commitment secrets revealed by the remote party. Only
// O(log n) secrets are retained: a freshly revealed secret replaces every
// stored secret it can derive. Secrets MUST be added in the order the remote
// produces them (commitment number 0, 1, 2, ...), and each insertion is
// verified to be consistent with what was revealed before, so a peer cannot
// slip us a chain that doesn't link up.
type Store struct {
	// used is the number of currently occupied slots.
	used uint8

	// slots maps a trailing-zero count to the most recent secret
	// revealed at an index with that many trailing zeros.
	slots [maxHeight + 1]slot

	// nextIndex is the chain index the next inserted secret must carry.
	nextIndex uint64
}

// NewStore creates an empty receiver store.
func NewStore() *Store {
	return &Store{nextIndex: rootIndex}
}

// NewStoreFromSlots reassembles a store from its persisted slots and next
// insertion index. The slots must be exactly those returned by Slots.
func NewStoreFromSlots(indexes []uint64, secrets []chainhash.Hash,
	nextIndex uint64) (*Store, error) {

	if len(indexes) != len(secrets) || len(indexes) > int(maxHeight)+1 {
		return nil, fmt.Errorf("malformed store snapshot: %v indexes, "+
			"%v secrets", len(indexes), len(secrets))
	}

	store := &Store{
		used:      uint8(len(indexes)),
		nextIndex: nextIndex,
	}
	for i := range indexes {
		store.slots[i] = slot{
			index:  indexes[i],
			secret: secrets[i],
		}
	}

	return store, nil
}

// Slots returns the occupied slots and next insertion index for persistence.
func (s *Store) Slots() (indexes []uint64, secrets []chainhash.Hash,
	nextIndex uint64) {

	for i := uint8(0); i < s.used; i++ {
		indexes = append(indexes, s.slots[i].index)
		secrets = append(secrets, s.slots[i].secret)
	}

	return indexes, secrets, s.nextIndex
}

// NumInserted returns the number of secrets added so far, which equals the
// commitment number of the next expected secret.
func (s *Store) NumInserted() uint64 {
	return rootIndex - s.nextIndex
}

// AddNextSecret appends the next revealed secret to the store. The secret is
// checked against each retained slot it claims to be able to derive; an
// inconsistent secret is rejected and the store is left unchanged.
func (s *Store) AddNextSecret(secret chainhash.Hash) error {
	newSlot := slot{
		index:  s.nextIndex,
		secret: secret,
	}

	bucket := trailingZeros(newSlot.index)
	for i := uint8(0); i < bucket; i++ {
		derived, err := deriveSecret(
			newSlot.secret, newSlot.index, s.slots[i].index,
		)
		if err != nil {
			return err
		}

		if derived != s.slots[i].secret {
			return fmt.Errorf("secret at index %v is not "+
				"derivable from the new secret", s.slots[i].index)
		}
	}

	s.slots[bucket] = newSlot
	if bucket+1 > s.used {
		s.used = bucket + 1
	}
	s.nextIndex--

	return nil
}

// LookUp re-derives the secret revealed for commitment number n. It fails if
// that secret has not been revealed yet.
func (s *Store) LookUp(n uint64) (*chainhash.Hash, error) {
	target := rootIndex - n

	for i := uint8(0); i < s.used; i++ {
		derived, err := deriveSecret(
			s.slots[i].secret, s.slots[i].index, target,
		)
		if err != nil {
			continue
		}

		return &derived, nil
	}

	return nil, fmt.Errorf("no secret revealed for commitment %v", n)
}

// Clone returns an independent copy of the store.
func (s *Store) Clone() *Store {
	dup := *s

	return &dup
}

// Package shachain implements the compact per-commitment secret chain used
// to revoke prior channel states. A producer derives up to 2^48 secrets from
// a single 32-byte root; a receiver stores the secrets revealed to it in
// O(log n) space and can re-derive any previously revealed secret on demand.
package shachain

import (
	"crypto/sha256"
	"fmt"
	"math/bits"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// maxHeight is the number of bits of a chain index, and therefore the
	// maximum number of useful buckets in a receiver store.
	maxHeight uint8 = 48

	// rootIndex is the chain index of the first secret, the one for
	// commitment number 0. Secrets are produced at decreasing indexes
	// from it, so the secret for commitment number n lives at index
	// rootIndex - n. The root itself sits at index 0.
	rootIndex uint64 = (1 << maxHeight) - 1
)

// deriveSecret walks from the secret at fromIndex down to the secret at
// toIndex by flipping the differing index bits from high to low, hashing
// after each flip. Derivation is only defined when fromIndex is an ancestor
// of toIndex: every bit set in fromIndex must also be set in toIndex, and
// the two may only differ within fromIndex's run of trailing zeros.
func deriveSecret(from chainhash.Hash, fromIndex, toIndex uint64) (
	chainhash.Hash, error) {

	zeros := trailingZeros(fromIndex)
	mask := ^uint64(0) << zeros

	if toIndex&mask != fromIndex {
		return chainhash.Hash{}, fmt.Errorf("index %v is not "+
			"derivable from index %v", toIndex, fromIndex)
	}

	buf := from
	for bit := int(zeros) - 1; bit >= 0; bit-- {
		if (toIndex>>uint(bit))&1 == 0 {
			continue
		}

		buf[bit/8] ^= 1 << (uint8(bit) % 8)
		buf = sha256.Sum256(buf[:])
	}

	return buf, nil
}

// trailingZeros returns the number of trailing zero bits of an index, capped
// at the chain height.
func trailingZeros(v uint64) uint8 {
	zeros := uint8(bits.TrailingZeros64(v))
	if zeros > maxHeight {
		zeros = maxHeight
	}

	return zeros
}

// Producer derives the full chain of per-commitment secrets from a single
// root. The root is expected to come from the wallet's revocation-root key
// family and never leaves the producer.
type Producer struct {
	root chainhash.Hash
}

// NewProducer creates a producer for the chain anchored at the given root.
func NewProducer(root chainhash.Hash) *Producer {
	return &Producer{root: root}
}

// AtIndex returns the per-commitment secret for commitment number n. Secrets
// are handed out in increasing n, which corresponds to decreasing chain
// indexes.
func (p *Producer) AtIndex(n uint64) (*chainhash.Hash, error) {
	if n > rootIndex {
		return nil, fmt.Errorf("commitment number %v exceeds chain "+
			"capacity", n)
	}

	// The root is the ancestor of every index: it sits at index zero,
	// whose 48-bit run of trailing zeros spans the whole chain.
	secret, err := deriveSecret(p.root, 0, rootIndex-n)
	if err != nil {
		return nil, err
	}

	return &secret, nil
}

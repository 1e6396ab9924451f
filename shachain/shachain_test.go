package shachain

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func hashFromHex(t *testing.T, s string) chainhash.Hash {
	t.Helper()

	raw, err := hex.DecodeString(s)
	require.NoError(t, err)

	var h chainhash.Hash
	copy(h[:], raw)

	return h
}

func repeatedByte(b byte) chainhash.Hash {
	var h chainhash.Hash
	for i := range h {
		h[i] = b
	}

	return h
}

// TestProducerVectors checks the producer against the generate_from_seed
// test vectors of the specification.
func TestProducerVectors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		seed   chainhash.Hash
		index  uint64
		output string
	}{
		{
			name:   "0 final node",
			seed:   repeatedByte(0x00),
			index:  0xFFFFFFFFFFFF,
			output: "02a40c85b6f28da08dfdbe0926c53fab2de6d28c10301f8f7c4073d5e42e3148",
		},
		{
			name:   "FF final node",
			seed:   repeatedByte(0xFF),
			index:  0xFFFFFFFFFFFF,
			output: "7cc854b54e3e0dcdb010d7a3fee464a9687be6e8db3be6854c475621e007a5dc",
		},
		{
			name:   "FF alternate bits 1",
			seed:   repeatedByte(0xFF),
			index:  0xAAAAAAAAAAA,
			output: "56f4008fb007ca9acf0e15b054d5c9fd12ee06cea347914ddbaed70d1c13a528",
		},
		{
			name:   "FF alternate bits 2",
			seed:   repeatedByte(0xFF),
			index:  0x555555555555,
			output: "9015daaeb06dba4ccc05b91b2f73bd54405f2be9f217fbacd3c5ac2e62327d31",
		},
		{
			name:   "01 last nontrivial node",
			seed:   repeatedByte(0x01),
			index:  1,
			output: "915c75942a26bb3a433a8ce2cb0427c29ec6c1775cfc78328b57f6ba7bfeaa9c",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			producer := NewProducer(test.seed)

			// The producer counts commitment numbers upward while
			// chain indexes count down from the root.
			secret, err := producer.AtIndex(rootIndex - test.index)
			require.NoError(t, err)
			require.Equal(
				t, hashFromHex(t, test.output), *secret,
			)
		})
	}
}

// TestStoreCorrectSequence inserts a full run of correctly derived secrets
// and verifies every one of them can be recovered afterwards.
func TestStoreCorrectSequence(t *testing.T) {
	t.Parallel()

	secrets := []string{
		"7cc854b54e3e0dcdb010d7a3fee464a9687be6e8db3be6854c475621e007a5dc",
		"c7518c8ae4660ed02894df8976fa1a3659c1a8b4b5bec0c4b872abeba4cb8964",
		"2273e227a5b7449b6e70f1fb4652864038b1cbf9cd7c043a7d6456b7fc275ad8",
		"27cddaa5624534cb6cb9d7da077cf2b22ab21e9b506fd4998a51d54502e99116",
		"c65716add7aa98ba7acb236352d665cab17345fe45b55fb879ff80e6bd0c41dd",
		"969660042a28f32d9be17344e09374b379962d03db1574df5a8a5a47e19ce3f2",
		"a5a64476122ca0925fb344bdc1854c1c0a59fc614298e50a33e331980a220f32",
		"05cde6323d949933f7f7b78776bcc1ea6d9b31447732e3802e1f7ac44b650e17",
	}

	store := NewStore()
	for i, secretHex := range secrets {
		err := store.AddNextSecret(hashFromHex(t, secretHex))
		require.NoError(t, err, "insert %d", i)
	}

	for i, secretHex := range secrets {
		recovered, err := store.LookUp(uint64(i))
		require.NoError(t, err, "lookup %d", i)
		require.Equal(t, hashFromHex(t, secretHex), *recovered)
	}

	require.EqualValues(t, len(secrets), store.NumInserted())
}

// TestStoreRejectsBogusSecret verifies that a secret inconsistent with the
// chain revealed so far is refused.
func TestStoreRejectsBogusSecret(t *testing.T) {
	t.Parallel()

	store := NewStore()
	require.NoError(t, store.AddNextSecret(hashFromHex(t,
		"7cc854b54e3e0dcdb010d7a3fee464a9687be6e8db3be6854c475621e007a5dc",
	)))

	// The second secret must be able to derive the first; all-zeroes
	// cannot.
	err := store.AddNextSecret(chainhash.Hash{})
	require.Error(t, err)

	// The store must be unchanged after the failed insert.
	require.EqualValues(t, 1, store.NumInserted())
}

// TestProducerStoreRoundTrip feeds producer output straight into a store
// and confirms lookups and snapshot restore round-trip, for arbitrary
// seeds and chain lengths.
func TestProducerStoreRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		var seed chainhash.Hash
		copy(seed[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(
			rt, "seed",
		))

		producer := NewProducer(seed)
		store := NewStore()

		n := rapid.IntRange(1, 50).Draw(rt, "n")
		for i := 0; i < n; i++ {
			secret, err := producer.AtIndex(uint64(i))
			require.NoError(rt, err)
			require.NoError(rt, store.AddNextSecret(*secret))
		}

		// Persist and reload the compact representation.
		indexes, secrets, nextIndex := store.Slots()
		reloaded, err := NewStoreFromSlots(indexes, secrets, nextIndex)
		require.NoError(rt, err)

		k := rapid.IntRange(0, n-1).Draw(rt, "k")
		want, err := producer.AtIndex(uint64(k))
		require.NoError(rt, err)

		got, err := reloaded.LookUp(uint64(k))
		require.NoError(rt, err)
		require.Equal(rt, *want, *got)
	})
}

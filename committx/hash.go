package committx

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160"
)

// sha256Of returns the SHA256 digest of the input.
func sha256Of(b []byte) []byte {
	h := sha256.Sum256(b)

	return h[:]
}

// ripemd160Of returns the RIPEMD160 digest of the input. HTLC scripts hash
// payment hashes once more with RIPEMD160 to shave 12 bytes per output.
func ripemd160Of(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)

	return h.Sum(nil)
}

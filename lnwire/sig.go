package lnwire

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// errSigTooShort is returned when a signature is below the minimum length.
var errSigTooShort = errors.New("malformed signature: too short")

// NewSigFromRawSignature returns a Sig from the fixed-size 64-byte
// concatenation of R and S.
func NewSigFromRawSignature(raw []byte) (Sig, error) {
	var sig Sig
	if len(raw) != len(sig) {
		return sig, fmt.Errorf("signature must be %v bytes, got %v",
			len(sig), len(raw))
	}
	copy(sig[:], raw)

	return sig, nil
}

// NewSigFromSignature converts a DER-encodable ECDSA signature to the
// fixed-size wire representation, which is the 32-byte big-endian R value
// followed by the 32-byte big-endian S value.
func NewSigFromSignature(e *ecdsa.Signature) (Sig, error) {
	var sig Sig
	if e == nil {
		return sig, errors.New("cannot decode empty signature")
	}

	der := e.Serialize()

	// A DER signature is 0x30 <len> 0x02 <rlen> <r> 0x02 <slen> <s>. The
	// encoded integers are minimal: they may be shorter than 32 bytes, or
	// 33 bytes with a leading zero when the top bit is set.
	if len(der) < 8 {
		return sig, errSigTooShort
	}

	rLen := int(der[3])
	if len(der) < 6+rLen {
		return sig, errSigTooShort
	}
	r := der[4 : 4+rLen]

	sLen := int(der[5+rLen])
	if len(der) < 6+rLen+sLen {
		return sig, errSigTooShort
	}
	s := der[6+rLen : 6+rLen+sLen]

	copyPadded := func(dst []byte, src []byte) error {
		// Strip the padding byte used to mark a positive integer.
		if len(src) > 0 && src[0] == 0x00 {
			src = src[1:]
		}
		if len(src) > 32 {
			return fmt.Errorf("integer too large: %v bytes",
				len(src))
		}
		copy(dst[32-len(src):], src)

		return nil
	}

	if err := copyPadded(sig[0:32], r); err != nil {
		return sig, err
	}
	if err := copyPadded(sig[32:64], s); err != nil {
		return sig, err
	}

	return sig, nil
}

// ToSignature converts the fixed-size wire representation back into a
// signature that can be verified against a public key.
func (s Sig) ToSignature() (*ecdsa.Signature, error) {
	der := sigToDER(s)

	return ecdsa.ParseDERSignature(der)
}

// IsZero returns true if the signature is all zero, the value used as a
// placeholder before a real signature is available.
func (s Sig) IsZero() bool {
	return s == Sig{}
}

// sigToDER re-encodes the compact 64-byte R || S form as a minimal DER
// signature.
func sigToDER(sig Sig) []byte {
	canonical := func(v []byte) []byte {
		// Trim leading zeroes, then re-add one if the top bit is set
		// so the integer stays positive.
		for len(v) > 1 && v[0] == 0x00 && v[1]&0x80 == 0 {
			v = v[1:]
		}
		for len(v) > 0 && v[0] == 0x00 {
			v = v[1:]
		}
		if len(v) == 0 {
			v = []byte{0x00}
		}
		if v[0]&0x80 != 0 {
			v = append([]byte{0x00}, v...)
		}

		return v
	}

	r := canonical(append([]byte(nil), sig[0:32]...))
	s := canonical(append([]byte(nil), sig[32:64]...))

	der := make([]byte, 0, 6+len(r)+len(s))
	der = append(der, 0x30, byte(4+len(r)+len(s)))
	der = append(der, 0x02, byte(len(r)))
	der = append(der, r...)
	der = append(der, 0x02, byte(len(s)))
	der = append(der, s...)

	return der
}

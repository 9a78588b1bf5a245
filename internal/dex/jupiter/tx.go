package jupiter

import (
	"crypto/ed25519"
	"fmt"
)

// signTransaction signs a serialized Solana transaction in place. The
// wire format (legacy and versioned alike) is a compact-u16 signature
// count, the signature array, then the message bytes; the fee payer's
// signature is slot zero. Jupiter returns the array zero-filled, so we
// sign the message and overwrite slot zero.
func signTransaction(raw []byte, key ed25519.PrivateKey) ([]byte, error) {
	numSigs, offset, err := decodeCompactU16(raw)
	if err != nil {
		return nil, fmt.Errorf("read signature count: %w", err)
	}
	if numSigs == 0 {
		return nil, fmt.Errorf("transaction requires no signatures")
	}

	msgStart := offset + numSigs*ed25519.SignatureSize
	if msgStart >= len(raw) {
		return nil, fmt.Errorf("transaction truncated: %d bytes, message starts at %d", len(raw), msgStart)
	}

	sig := ed25519.Sign(key, raw[msgStart:])

	signed := make([]byte, len(raw))
	copy(signed, raw)
	copy(signed[offset:offset+ed25519.SignatureSize], sig)
	return signed, nil
}

// decodeCompactU16 reads Solana's compact-u16 length prefix, returning
// the value and the number of bytes consumed.
func decodeCompactU16(b []byte) (int, int, error) {
	var value, shift uint
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("unexpected end of input")
		}
		elem := uint(b[i])
		value |= (elem & 0x7f) << shift
		if elem&0x80 == 0 {
			return int(value), i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("compact-u16 overflow")
}

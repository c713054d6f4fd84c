package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const sessionHashSize = 32

// ErrInvalidSessionHash is returned when a presented hash is not the
// hex encoding of a sessionHashSize-byte secret.
var ErrInvalidSessionHash = errors.New("invalid session hash")

// NewSessionHash returns a fresh rotating session secret, hex-encoded for
// embedding in refresh tokens, and the digest to persist.
func NewSessionHash() (string, [32]byte, error) {
	var secret [sessionHashSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", [32]byte{}, err
	}
	return hex.EncodeToString(secret[:]), sha256.Sum256(secret[:]), nil
}

// DigestSessionHash decodes a presented hash and returns its digest.
func DigestSessionHash(hash string) ([32]byte, error) {
	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) != sessionHashSize {
		return [32]byte{}, ErrInvalidSessionHash
	}
	return sha256.Sum256(raw), nil
}

// NewOTP returns a uniformly random numeric code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

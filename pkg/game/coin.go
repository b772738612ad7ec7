package game

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// RandomSource yields uniformly distributed 32-bit values.
type RandomSource interface {
	Uint32() (uint32, error)
}

// CryptoSource reads from the operating system's CSPRNG.
type CryptoSource struct{}

func (CryptoSource) Uint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// CoinFlip draws one value from src and returns the starting slot:
// values below 2^31 pick slot 0, the rest pick slot 1.
func CoinFlip(src RandomSource) (int, error) {
	v, err := src.Uint32()
	if err != nil {
		return 0, err
	}
	if v < 1<<31 {
		return 0, nil
	}
	return 1, nil
}

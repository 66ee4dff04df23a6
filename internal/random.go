package internal

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strings"

	"github.com/oklog/ulid/v2"
)

// BackupCodeAlphabet is the character set of recovery codes.
const BackupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// backupCodeByteLimit is the largest multiple of len(BackupCodeAlphabet)
// that fits in a byte. Bytes at or above it are discarded so every
// character is equally likely.
const backupCodeByteLimit = 256 - 256%len(BackupCodeAlphabet)

var (
	errInvalidDigits = errors.New("invalid numeric code digits")
	errInvalidLength = errors.New("invalid backup code length")
)

// NewNumericCode returns a code uniformly distributed over
// [10^(digits-1), 10^digits - 1], so it never has a leading zero.
// For six digits that is [100000, 999999].
func NewNumericCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errInvalidDigits
	}
	lo := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits-1)), nil)
	span := new(big.Int).Mul(lo, big.NewInt(9))

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	return n.Add(n, lo).String(), nil
}

// NewBackupCode draws length characters from BackupCodeAlphabet using
// bytes read from src, resampling any byte that would bias the alphabet.
// A nil src uses crypto/rand.
func NewBackupCode(length int, src io.Reader) (string, error) {
	if length <= 0 {
		return "", errInvalidLength
	}
	if src == nil {
		src = rand.Reader
	}

	var b strings.Builder
	b.Grow(length)
	buf := make([]byte, length)
	for b.Len() < length {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}
		for _, v := range buf {
			if int(v) >= backupCodeByteLimit {
				continue
			}
			b.WriteByte(BackupCodeAlphabet[int(v)%len(BackupCodeAlphabet)])
			if b.Len() == length {
				break
			}
		}
	}
	return b.String(), nil
}

// NewRecordID returns a lexicographically time-ordered identifier.
func NewRecordID() string {
	return ulid.Make().String()
}

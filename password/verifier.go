package password

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownUser is returned by a HashSource that has no hash for a user.
var ErrUnknownUser = errors.New("unknown user")

// HashSource looks up the stored PHC hash of a user's account password.
type HashSource interface {
	PasswordHash(ctx context.Context, userID string) (string, error)
}

// HashSourceFunc adapts a function to HashSource.
type HashSourceFunc func(ctx context.Context, userID string) (string, error)

func (f HashSourceFunc) PasswordHash(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

// Verifier checks account passwords against stored argon2id hashes. It
// satisfies goMFA.PasswordVerifier.
type Verifier struct {
	hasher *Argon2
	source HashSource
}

// NewVerifier returns a Verifier reading hashes from source.
func NewVerifier(hasher *Argon2, source HashSource) *Verifier {
	return &Verifier{hasher: hasher, source: source}
}

// VerifyPassword reports whether password is the user's account password.
// An unknown user or a malformed stored hash is a mismatch, not an error;
// lookup failures are returned.
func (v *Verifier) VerifyPassword(ctx context.Context, userID, password string) (bool, error) {
	if v == nil || v.hasher == nil || v.source == nil {
		return false, errors.New("password verifier not configured")
	}
	if password == "" {
		return false, nil
	}

	encoded, err := v.source.PasswordHash(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return false, nil
		}
		return false, fmt.Errorf("load password hash: %w", err)
	}

	ok, err := v.hasher.Verify(password, encoded)
	if err != nil {
		if errors.Is(err, ErrMalformedHash) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

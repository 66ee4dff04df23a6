package goMFA

import (
	"context"

	"github.com/google/uuid"
)

// RandomFingerprint issues a new random id for every trusted device. It
// ignores the request, so a device is recognised only through the token
// returned at trust time.
type RandomFingerprint struct{}

func (RandomFingerprint) Fingerprint(context.Context) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

package timeauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/drand/tlock"
	"github.com/stretchr/testify/assert"
)

func TestTlockError(t *testing.T) {
	dialErr := &url.Error{
		Op:  "Get",
		URL: "https://api.drand.sh/public/11",
		Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
	}

	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{name: "signature fetch dial failure", err: fmt.Errorf("signature: %w", dialErr), unavailable: true},
		{name: "round not published", err: tlock.ErrTooEarly, unavailable: true},
		{name: "deadline", err: fmt.Errorf("signature: %w", context.DeadlineExceeded), unavailable: true},
		{name: "cancelled", err: context.Canceled, unavailable: true},
		{name: "bad ciphertext", err: errors.New("age: no identity matched any of the recipients")},
		{name: "bad header", err: fmt.Errorf("parse: %w", errors.New("malformed stanza"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tlockError("failed to tlock decrypt", tt.err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(err, ErrUnavailable))
			assert.Equal(t, tt.unavailable, IsRetryable(err))
		})
	}
}

func TestRealTimelockBox_UnreachableBeaconIsUnavailable(t *testing.T) {
	box := &RealTimelockBox{BaseURL: "http://127.0.0.1:1", ChainHash: QuicknetChainHash}

	_, err := box.Decrypt("aGVsbG8=")
	assert.ErrorIs(t, err, ErrUnavailable)
}

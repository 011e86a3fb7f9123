package seal

import (
	"context"
	"fmt"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timevault/internal/timeauth"
)

type stubChecker struct {
	available bool
	err       error
	calls     int
}

func (s *stubChecker) IsAvailable(ctx context.Context, round uint64) (bool, error) {
	s.calls++
	return s.available, s.err
}

func plainEnvelope(content string) Envelope {
	return Envelope{
		TargetRound:   11,
		IntegrityTag:  IntegrityTag([]byte(content)),
		Payload:       content,
		PayloadLength: len(content),
	}
}

func TestEvaluate_NotYetAvailable(t *testing.T) {
	e := NewEvaluator(&stubChecker{available: false})

	d, err := e.Evaluate(context.Background(), plainEnvelope("hello"))
	require.NoError(t, err)
	assert.False(t, d.Available)
	assert.Nil(t, d.Content)
}

func TestEvaluate_Available(t *testing.T) {
	e := NewEvaluator(&stubChecker{available: true})

	d, err := e.Evaluate(context.Background(), plainEnvelope("hello"))
	require.NoError(t, err)
	assert.True(t, d.Available)
	assert.Equal(t, []byte("hello"), d.Content)
}

func TestEvaluate_InvalidRound(t *testing.T) {
	checker := &stubChecker{available: true}
	e := NewEvaluator(checker)
	env := plainEnvelope("hello")
	env.TargetRound = 0

	_, err := e.Evaluate(context.Background(), env)
	assert.ErrorIs(t, err, timeauth.ErrInvalidInput)
	assert.Zero(t, checker.calls)
}

func TestEvaluate_FailsClosedOnUnavailable(t *testing.T) {
	e := NewEvaluator(&stubChecker{err: fmt.Errorf("%w: connection reset", timeauth.ErrUnavailable)})

	d, err := e.Evaluate(context.Background(), plainEnvelope("hello"))
	assert.ErrorIs(t, err, timeauth.ErrUnavailable)
	assert.False(t, d.Available)
	assert.Nil(t, d.Content)
}

func TestEvaluate_IntegrityMismatch(t *testing.T) {
	e := NewEvaluator(&stubChecker{available: true})
	env := plainEnvelope("hello")
	env.Payload = "hellO"

	d, err := e.Evaluate(context.Background(), env)
	assert.ErrorIs(t, err, ErrIntegrityMismatch)
	assert.False(t, d.Available)
	assert.Nil(t, d.Content, "tampered content must never be revealed")
}

func TestEvaluate_UnknownScheme(t *testing.T) {
	checker := &stubChecker{available: true}
	e := NewEvaluator(checker)
	env := plainEnvelope("hello")
	env.Scheme = SchemeTlock

	_, err := e.Evaluate(context.Background(), env)
	assert.ErrorIs(t, err, ErrUnknownScheme)
	assert.Zero(t, checker.calls)
}

func TestEvaluate_TlockCodec(t *testing.T) {
	codec := TlockCodec{Box: fakeBox{}}
	payload, err := codec.Seal([]byte("secret"), 11)
	require.NoError(t, err)
	env := Envelope{
		TargetRound:   11,
		IntegrityTag:  IntegrityTag([]byte("secret")),
		Payload:       payload,
		PayloadLength: 6,
		Scheme:        SchemeTlock,
	}

	t.Run("opens", func(t *testing.T) {
		e := NewEvaluator(&stubChecker{available: true}, codec)
		d, err := e.Evaluate(context.Background(), env)
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), d.Content)
	})

	t.Run("decrypt failure is integrity", func(t *testing.T) {
		e := NewEvaluator(&stubChecker{available: true}, TlockCodec{Box: fakeBox{decryptErr: fmt.Errorf("bad ciphertext")}})
		_, err := e.Evaluate(context.Background(), env)
		assert.ErrorIs(t, err, ErrIntegrityMismatch)
	})

	t.Run("decrypt transport failure stays unavailable", func(t *testing.T) {
		e := NewEvaluator(&stubChecker{available: true}, TlockCodec{Box: fakeBox{decryptErr: fmt.Errorf("%w: dial", timeauth.ErrUnavailable)}})
		_, err := e.Evaluate(context.Background(), env)
		assert.ErrorIs(t, err, timeauth.ErrUnavailable)
		assert.NotErrorIs(t, err, ErrIntegrityMismatch)
	})
}

func TestEvaluate_CountsOutcomes(t *testing.T) {
	locked := evaluationsTotal.WithLabelValues("locked")
	available := evaluationsTotal.WithLabelValues("available")
	failed := evaluationsTotal.WithLabelValues("error")
	lockedBefore, availableBefore, failedBefore := promtest.ToFloat64(locked), promtest.ToFloat64(available), promtest.ToFloat64(failed)
	ctx := context.Background()

	_, err := NewEvaluator(&stubChecker{available: false}).Evaluate(ctx, plainEnvelope("hello"))
	require.NoError(t, err)
	_, err = NewEvaluator(&stubChecker{available: true}).Evaluate(ctx, plainEnvelope("hello"))
	require.NoError(t, err)
	_, err = NewEvaluator(&stubChecker{err: timeauth.ErrUnavailable}).Evaluate(ctx, plainEnvelope("hello"))
	require.Error(t, err)

	assert.Equal(t, lockedBefore+1, promtest.ToFloat64(locked))
	assert.Equal(t, availableBefore+1, promtest.ToFloat64(available))
	assert.Equal(t, failedBefore+1, promtest.ToFloat64(failed))
}

package seal

import (
	"context"
	"errors"
	"fmt"

	"timevault/internal/timeauth"
)

// Checker reports whether a beacon round has been produced.
type Checker interface {
	IsAvailable(ctx context.Context, round uint64) (bool, error)
}

// Decision is the outcome of evaluating an envelope.
// Content is set only when Available is true.
type Decision struct {
	Available bool
	Content   []byte
}

// Evaluator decides whether an envelope may be opened and reveals it.
// It never mutates stored state; the caller applies the decision.
type Evaluator struct {
	checker Checker
	codecs  map[string]PayloadCodec
}

// NewEvaluator creates an evaluator. PlainCodec and Base64Codec are always
// registered; extra codecs are keyed by their scheme.
func NewEvaluator(checker Checker, codecs ...PayloadCodec) *Evaluator {
	e := &Evaluator{
		checker: checker,
		codecs:  map[string]PayloadCodec{
			SchemePlain:  PlainCodec{},
			SchemeBase64: Base64Codec{},
		},
	}
	for _, c := range codecs {
		e.codecs[c.Scheme()] = c
	}
	return e
}

// Evaluate checks the target round and, once it exists, opens and verifies the payload.
//
// A round that is not produced yet is not an error: it yields Available=false.
// Transport failures propagate as timeauth.ErrUnavailable. A payload that cannot
// be opened or fails verification yields ErrIntegrityMismatch and no content.
func (e *Evaluator) Evaluate(ctx context.Context, env Envelope) (Decision, error) {
	if env.TargetRound < 1 {
		return Decision{}, fmt.Errorf("%w: envelope target round must be >= 1", timeauth.ErrInvalidInput)
	}

	codec, ok := e.codecs[env.SchemeName()]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownScheme, env.SchemeName())
	}

	available, err := e.checker.IsAvailable(ctx, env.TargetRound)
	if err != nil {
		evaluationsTotal.WithLabelValues("error").Inc()
		return Decision{}, err
	}
	if !available {
		evaluationsTotal.WithLabelValues("locked").Inc()
		return Decision{}, nil
	}

	content, err := codec.Open(env.Payload)
	if err != nil {
		evaluationsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, timeauth.ErrUnavailable) {
			return Decision{}, err
		}
		return Decision{}, fmt.Errorf("%w: failed to open payload: %w", ErrIntegrityMismatch, err)
	}

	if err := env.Verify(content); err != nil {
		evaluationsTotal.WithLabelValues("error").Inc()
		return Decision{}, err
	}

	evaluationsTotal.WithLabelValues("available").Inc()
	return Decision{Available: true, Content: content}, nil
}

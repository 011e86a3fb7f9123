package seal

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrityTag(t *testing.T) {
	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", IntegrityTag([]byte("hello")))
	assert.Len(t, IntegrityTag(nil), 64)
}

func TestEnvelopeVerify(t *testing.T) {
	env := Envelope{
		TargetRound:   11,
		IntegrityTag:  IntegrityTag([]byte("hello")),
		Payload:       "hello",
		PayloadLength: 5,
	}

	require.NoError(t, env.Verify([]byte("hello")))

	err := env.Verify([]byte("hellO"))
	assert.ErrorIs(t, err, ErrIntegrityMismatch)

	err = env.Verify([]byte("hello!"))
	assert.ErrorIs(t, err, ErrIntegrityMismatch, "length mismatch must fail verification")
}

func TestEnvelopeJSON(t *testing.T) {
	env := Envelope{
		TargetRound:   11,
		IntegrityTag:  IntegrityTag([]byte("hi")),
		Payload:       "hi",
		PayloadLength: 2,
	}

	data, err := MarshalEnvelope(env)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "scheme", "plain envelopes omit the scheme")
	assert.Contains(t, string(data), `"target_round":11`)

	t.Run("unknown fields ignored", func(t *testing.T) {
		raw := `{"target_round":11,"integrity_tag":"` + env.IntegrityTag + `","payload":"hi","payload_length":2,"future_field":{"x":1}}`
		got, err := UnmarshalEnvelope([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, env, got)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := UnmarshalEnvelope([]byte("{"))
		assert.Error(t, err)
	})
}

func TestSchemeName(t *testing.T) {
	assert.Equal(t, SchemePlain, Envelope{}.SchemeName())
	assert.Equal(t, SchemeTlock, Envelope{Scheme: SchemeTlock}.SchemeName())
}

// fakeBox reverses the plaintext and prefixes the round, standing in for tlock.
type fakeBox struct {
	decryptErr error
}

func (fakeBox) Encrypt(data []byte, round uint64) (string, error) {
	b := []byte(string(data))
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return "sealed:" + string(b), nil
}

func (f fakeBox) Decrypt(payload string) ([]byte, error) {
	if f.decryptErr != nil {
		return nil, f.decryptErr
	}
	s, ok := strings.CutPrefix(payload, "sealed:")
	if !ok {
		return nil, errors.New("not a sealed payload")
	}
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b, nil
}

func TestTlockCodec(t *testing.T) {
	codec := TlockCodec{Box: fakeBox{}}
	assert.Equal(t, SchemeTlock, codec.Scheme())

	payload, err := codec.Seal([]byte("secret"), 11)
	require.NoError(t, err)
	assert.NotEqual(t, "secret", payload)

	out, err := codec.Open(payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), out)
}

func TestBase64Codec(t *testing.T) {
	content := []byte{0x89, 'P', 'N', 'G', 0xff, 0xfe}
	codec := Base64Codec{}
	assert.Equal(t, SchemeBase64, codec.Scheme())

	payload, err := codec.Seal(content, 11)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(payload))

	out, err := codec.Open(payload)
	require.NoError(t, err)
	assert.Equal(t, content, out)

	_, err = codec.Open("not base64!")
	assert.Error(t, err)
}

func TestEnvelope_BinaryPayloadSurvivesJSON(t *testing.T) {
	content := []byte{0x89, 'P', 'N', 'G', 0xff, 0xfe}
	payload, err := Base64Codec{}.Seal(content, 11)
	require.NoError(t, err)
	env := Envelope{
		TargetRound:   11,
		IntegrityTag:  IntegrityTag(content),
		Payload:       payload,
		PayloadLength: len(content),
		Scheme:        SchemeBase64,
	}

	data, err := MarshalEnvelope(env)
	require.NoError(t, err)
	got, err := UnmarshalEnvelope(data)
	require.NoError(t, err)
	require.Equal(t, env, got)

	out, err := Base64Codec{}.Open(got.Payload)
	require.NoError(t, err)
	assert.NoError(t, got.Verify(out))
}

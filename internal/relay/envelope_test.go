// ABOUTME: Tests for envelope parsing and field access.
// ABOUTME: Covers the op requirement and copy-on-write forwarding.

package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	t.Run("valid frame", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"op":"heartbeat","userId":"u1"}`))
		require.NoError(t, err)
		assert.Equal(t, "heartbeat", env.Op())
		assert.Equal(t, "u1", env.StringField(FieldUserID))
	})

	t.Run("missing op", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`{"userId":"u1"}`))
		assert.ErrorIs(t, err, ErrNoOp)
	})

	t.Run("non-string op", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`{"op":42}`))
		assert.ErrorIs(t, err, ErrNoOp)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`["op","heartbeat"]`))
		assert.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`{`))
		assert.Error(t, err)
	})
}

func TestEnvelopeFields(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{
		"op": "updateGuild",
		"isJoined": true,
		"skipUsers": ["u1", 7, "u2"],
		"user": {"userId": "u3"},
		"custom": "passes through"
	}`))
	require.NoError(t, err)

	assert.True(t, env.BoolField(FieldIsJoined))
	assert.False(t, env.BoolField("missing"))
	assert.Equal(t, []string{"u1", "u2"}, env.StringSlice(FieldSkipUsers))
	assert.Nil(t, env.StringSlice("missing"))
	assert.Equal(t, "u3", env.ObjectField(FieldUser).StringField(FieldUserID))
	assert.Nil(t, env.ObjectField("missing"))
	assert.Equal(t, "passes through", env.StringField("custom"))
}

func TestEnvelopeWith(t *testing.T) {
	env := Envelope{FieldOp: "custom", "payload": "x"}
	stamped := env.With(FieldUserID, "u1")

	assert.Equal(t, "u1", stamped.StringField(FieldUserID))
	assert.Equal(t, "x", stamped.StringField("payload"))

	// The original must not see the stamp.
	_, present := env[FieldUserID]
	assert.False(t, present)
}

// ABOUTME: Operation envelope type for all relay traffic, plus parsing helpers.
// ABOUTME: Every frame is a JSON object identified by its "op" field.

package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Operation codes carried in the "op" field of every envelope. These are
// part of the wire contract with deployed agents and the dashboard frontend.
const (
	OpHeartbeat         = "heartbeat"
	OpUpdateSelectedBot = "updateSelectedBot"
	OpGetMutualGuilds   = "getMutualGuilds"
	OpBotNotFound       = "botNotFound"
	OpErrorMsg          = "errorMsg"
	OpInitUser          = "initUser"
	OpInitPlayer        = "initPlayer"
	OpInitBot           = "initBot"
	OpCloseConnection   = "closeConnection"
	OpPlayerClose       = "playerClose"
	OpUpdateGuild       = "updateGuild"
	OpCreatePlayer      = "createPlayer"
)

// Reserved envelope field names used by the relay's routing rules. All other
// fields pass through untouched.
const (
	FieldOp        = "op"
	FieldUserID    = "userId"
	FieldSessionID = "sessionId"
	FieldSkipUsers = "skipUsers"
	FieldBotID     = "botId"
	FieldGuilds    = "guilds"
	FieldIsJoined  = "isJoined"
	FieldMemberIDs = "memberIds"
	FieldUser      = "user"
)

// ErrNoOp indicates a frame without the required "op" field.
var ErrNoOp = errors.New("envelope has no op field")

// Envelope is one unit of relay traffic: a JSON object with a required
// string "op" field. The relay inspects a handful of reserved fields and
// forwards everything else verbatim.
type Envelope map[string]any

// ParseEnvelope decodes a raw frame into an Envelope. It fails when the
// frame is not a JSON object or carries no op.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if env.Op() == "" {
		return nil, ErrNoOp
	}
	return env, nil
}

// Op returns the envelope's operation code, or "" when absent.
func (e Envelope) Op() string {
	return e.StringField(FieldOp)
}

// StringField returns the named field as a string, or "" when the field is
// absent or not a string.
func (e Envelope) StringField(key string) string {
	s, _ := e[key].(string)
	return s
}

// BoolField returns the named field as a bool, false when absent.
func (e Envelope) BoolField(key string) bool {
	b, _ := e[key].(bool)
	return b
}

// StringSlice returns the named field as a slice of strings. JSON arrays
// decode as []any, so non-string elements are skipped.
func (e Envelope) StringSlice(key string) []string {
	raw, ok := e[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ObjectField returns a nested JSON object as an Envelope, or nil.
func (e Envelope) ObjectField(key string) Envelope {
	obj, _ := e[key].(map[string]any)
	return Envelope(obj)
}

// Clone returns a shallow copy of the envelope.
func (e Envelope) Clone() Envelope {
	out := make(Envelope, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// With returns a shallow copy of the envelope with one field set. The
// receiver is never mutated; forwarded frames must not alias the frame a
// sibling member already holds.
func (e Envelope) With(key string, value any) Envelope {
	out := e.Clone()
	out[key] = value
	return out
}

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberrealm/worldserver/pkg/core"
)

func TestEncode_NewWorld(t *testing.T) {
	data, err := Encode(SmsgNewWorld, NewWorldPayload{
		Map:         2,
		Position:    core.Vector3{X: 1, Y: 2, Z: 3},
		Orientation: 0.5,
	})
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, SmsgNewWorld, env.Type)

	var p NewWorldPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, core.MapID(2), p.Map)
	assert.Equal(t, float32(3), p.Position.Z)
}

func TestEncode_NilPayload(t *testing.T) {
	data, err := Encode(SmsgPong, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(data))
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)

	_, err = Decode([]byte(`{"payload":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing type")
}

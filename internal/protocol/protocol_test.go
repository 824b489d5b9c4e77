package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	b, err := Encode(EventPlayerMoved, Player{ID: "p1", UserName: "alice", Location: DefaultLocation()})
	require.NoError(t, err)

	msg, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, EventPlayerMoved, msg.Type)

	var p Player
	require.NoError(t, msg.Into(&p))
	assert.Equal(t, "alice", p.UserName)
	assert.Equal(t, Front, p.Location.Rotation)
}

func TestDecode_MissingType(t *testing.T) {
	_, err := Decode([]byte(`{"payload":{}}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestMessage_IntoEmpty(t *testing.T) {
	err := Message{Type: EventTownClosing}.Into(&struct{}{})
	assert.Error(t, err)
}

func TestCommand_FlatWireFormat(t *testing.T) {
	cmd, err := NewCommand("c1", "shop", AdoptPet{PetType: "dog"})
	require.NoError(t, err)

	b, err := json.Marshal(cmd)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(b, &flat))
	assert.Equal(t, "c1", flat["commandID"])
	assert.Equal(t, "shop", flat["interactableID"])
	assert.Equal(t, "AdoptPet", flat["type"])
	assert.Equal(t, "dog", flat["petType"])

	var back Command
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, CmdAdoptPet, back.Type)
	var adopt AdoptPet
	require.NoError(t, back.Decode(&adopt))
	assert.Equal(t, "dog", adopt.PetType)
}

func TestCommand_GameMoveRoundTrip(t *testing.T) {
	cmd, err := NewCommand("c2", "ttt", GameMove{GameID: "g1", Move: json.RawMessage(`{"row":1,"col":2}`)})
	require.NoError(t, err)
	b, err := json.Marshal(cmd)
	require.NoError(t, err)

	var back Command
	require.NoError(t, json.Unmarshal(b, &back))
	var mv GameMove
	require.NoError(t, back.Decode(&mv))
	assert.Equal(t, "g1", mv.GameID)
	assert.JSONEq(t, `{"row":1,"col":2}`, string(mv.Move))
}

func TestDirection_Valid(t *testing.T) {
	assert.True(t, Left.Valid())
	assert.False(t, Direction("up").Valid())
}

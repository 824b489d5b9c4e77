package protocol

import (
	"encoding/json"
	"fmt"
)

// CommandType names an interactable command.
type CommandType string

// Command types.
const (
	CmdJoinGame          CommandType = "JoinGame"
	CmdStartGame         CommandType = "StartGame"
	CmdGameMove          CommandType = "GameMove"
	CmdLeaveGame         CommandType = "LeaveGame"
	CmdAdoptPet          CommandType = "AdoptPet"
	CmdEquipPet          CommandType = "EquipPet"
	CmdUnequipPet        CommandType = "UnequipPet"
	CmdViewingAreaUpdate CommandType = "ViewingAreaUpdate"
)

// CommandPayload is implemented by every typed command body.
type CommandPayload interface {
	CommandType() CommandType
}

// JoinGame joins the area's current game, creating one if needed.
type JoinGame struct{}

// StartGame marks the sender ready in a game that requires it.
type StartGame struct {
	GameID string `json:"gameID"`
}

// GameMove applies a variant-specific move.
type GameMove struct {
	GameID string          `json:"gameID"`
	Move   json.RawMessage `json:"move"`
}

// LeaveGame leaves a game, forfeiting it if in progress.
type LeaveGame struct {
	GameID string `json:"gameID"`
}

// AdoptPet buys a pet from a pet shop.
type AdoptPet struct {
	PetType string `json:"petType"`
}

// EquipPet makes one of the sender's pets follow them.
type EquipPet struct {
	PetType string `json:"petType"`
}

// UnequipPet stops a pet from following the sender.
type UnequipPet struct {
	PetType string `json:"petType"`
}

// ViewingAreaUpdate replaces a viewing area's playback state.
type ViewingAreaUpdate struct {
	Update ViewingState `json:"update"`
}

func (JoinGame) CommandType() CommandType          { return CmdJoinGame }
func (StartGame) CommandType() CommandType         { return CmdStartGame }
func (GameMove) CommandType() CommandType          { return CmdGameMove }
func (LeaveGame) CommandType() CommandType         { return CmdLeaveGame }
func (AdoptPet) CommandType() CommandType          { return CmdAdoptPet }
func (EquipPet) CommandType() CommandType          { return CmdEquipPet }
func (UnequipPet) CommandType() CommandType        { return CmdUnequipPet }
func (ViewingAreaUpdate) CommandType() CommandType { return CmdViewingAreaUpdate }

// JoinGameResult is the payload returned by JoinGame.
type JoinGameResult struct {
	GameID string `json:"gameID"`
}

// Command is an interactable command. On the wire the typed payload fields sit
// alongside commandID, interactableID and type in one flat object.
type Command struct {
	CommandID      string      `json:"commandID"`
	InteractableID string      `json:"interactableID"`
	Type           CommandType `json:"type"`

	raw json.RawMessage
}

// NewCommand builds a Command carrying payload.
//
// Postcondition: Returns a Command whose Decode yields payload, or a marshalling error.
func NewCommand(commandID, interactableID string, payload CommandPayload) (Command, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Command{}, fmt.Errorf("encoding %s: %w", payload.CommandType(), err)
	}
	return Command{
		CommandID:      commandID,
		InteractableID: interactableID,
		Type:           payload.CommandType(),
		raw:            raw,
	}, nil
}

// Decode unmarshals the typed payload fields into v.
func (c Command) Decode(v any) error {
	if len(c.raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.raw, v); err != nil {
		return fmt.Errorf("decoding %s: %w", c.Type, err)
	}
	return nil
}

// MarshalJSON flattens the payload fields into the envelope.
func (c Command) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(c.raw) > 0 {
		if err := json.Unmarshal(c.raw, &fields); err != nil {
			return nil, fmt.Errorf("command payload must be an object: %w", err)
		}
	}
	for k, v := range map[string]string{
		"commandID":      c.CommandID,
		"interactableID": c.InteractableID,
		"type":           string(c.Type),
	} {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[k] = b
	}
	return json.Marshal(fields)
}

// UnmarshalJSON reads the envelope fields and keeps the whole object for Decode.
func (c *Command) UnmarshalJSON(data []byte) error {
	var env struct {
		CommandID      string      `json:"commandID"`
		InteractableID string      `json:"interactableID"`
		Type           CommandType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	c.CommandID = env.CommandID
	c.InteractableID = env.InteractableID
	c.Type = env.Type
	c.raw = append(json.RawMessage(nil), data...)
	return nil
}

// CommandResponse answers exactly one Command. Error and Payload are mutually exclusive.
type CommandResponse struct {
	CommandID      string          `json:"commandID"`
	InteractableID string          `json:"interactableID"`
	Error          string          `json:"error,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

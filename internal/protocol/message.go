// Package protocol defines the JSON frames exchanged over a town's duplex channel.
//
// Every frame is a Message: an event name plus its JSON payload.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client to server event names.
const (
	EventJoin                = "join"
	EventChatMessage         = "chatMessage"
	EventPlayerMovement      = "playerMovement"
	EventPetMovement         = "petMovement"
	EventInteractableCommand = "interactableCommand"
	EventInteractableUpdate  = "interactableUpdate"
	EventEmoteCreation       = "emoteCreation"
	EventEmoteDestruction    = "emoteDestruction"
)

// Server to client event names. chatMessage and interactableUpdate are shared with
// the client direction.
const (
	EventInitialize           = "initialize"
	EventPlayerJoined         = "playerJoined"
	EventPlayerDisconnect     = "playerDisconnect"
	EventPlayerMoved          = "playerMoved"
	EventPetMoved             = "petMoved"
	EventPetEquipped          = "petEquipped"
	EventPetUnequipped        = "petUnequipped"
	EventEmoteCreated         = "emoteCreated"
	EventEmoteDestroyed       = "emoteDestroyed"
	EventCommandResponse      = "commandResponse"
	EventInsufficientCurrency = "insufficientCurrency"
	EventCurrencyChanged      = "currencyChanged"
	EventAllTimeCurrency      = "allTimeCurrencyChanged"
	EventCurrentCurrency      = "currentCurrencyChanged"
	EventTownSettingsUpdated  = "townSettingsUpdated"
	EventTownClosing          = "townClosing"
	EventError                = "error"
)

// Message is one frame on the wire.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals payload into a framed Message.
//
// Postcondition: Returns the JSON bytes of the frame or a marshalling error.
func Encode(eventType string, payload any) ([]byte, error) {
	msg := Message{Type: eventType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", eventType, err)
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}

// MustEncode is Encode for payload types that cannot fail to marshal.
func MustEncode(eventType string, payload any) []byte {
	b, err := Encode(eventType, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses a frame.
//
// Postcondition: Returns a Message with a non-empty Type, or an error.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decoding frame: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("decoding frame: missing type")
	}
	return msg, nil
}

// Into unmarshals the payload into v.
func (m Message) Into(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: %w", m.Type, err)
	}
	return nil
}

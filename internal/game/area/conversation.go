package area

import (
	"encoding/json"

	"github.com/cory-johannsen/covey/internal/game/session"
	"github.com/cory-johannsen/covey/internal/protocol"
)

// Conversation is an area with a discussion topic. The topic is cleared when
// the last occupant leaves unless it was fixed by the map.
type Conversation struct {
	topic     string
	permanent bool
}

// NewConversation creates a conversation area variant. A non-empty fixedTopic
// is never cleared.
func NewConversation(fixedTopic string) *Conversation {
	return &Conversation{topic: fixedTopic, permanent: fixedTopic != ""}
}

func (c *Conversation) Type() string { return "ConversationArea" }

// Topic returns the current topic, empty when inactive.
func (c *Conversation) Topic() string { return c.topic }

// Handlers is empty: conversation areas accept no commands.
func (c *Conversation) Handlers() map[protocol.CommandType]Handler { return nil }

func (c *Conversation) State() any { return protocol.ConversationState{Topic: c.topic} }

// Update sets the topic of an inactive conversation.
func (c *Conversation) Update(_ *Area, _ *session.Player, raw json.RawMessage) error {
	var st protocol.ConversationState
	if err := json.Unmarshal(raw, &st); err != nil || st.Topic == "" {
		return InvalidParameters("a conversation update requires a topic")
	}
	return c.Start(st.Topic)
}

// Start sets the topic of an inactive conversation.
func (c *Conversation) Start(topic string) error {
	if topic == "" {
		return InvalidParameters("topic must not be empty")
	}
	if c.topic != "" {
		return NotApplicable("conversation already has a topic")
	}
	c.topic = topic
	return nil
}

func (c *Conversation) Leave(*Area, *session.Player) {}

func (c *Conversation) Reset() {
	if !c.permanent {
		c.topic = ""
	}
}

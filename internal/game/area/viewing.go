package area

import (
	"encoding/json"

	"github.com/cory-johannsen/covey/internal/game/session"
	"github.com/cory-johannsen/covey/internal/protocol"
)

// Viewing is an area where occupants watch a shared video.
type Viewing struct {
	state    protocol.ViewingState
	handlers map[protocol.CommandType]Handler
}

// NewViewing creates a viewing area variant.
func NewViewing() *Viewing {
	v := &Viewing{}
	v.handlers = map[protocol.CommandType]Handler{
		protocol.CmdViewingAreaUpdate: v.viewingAreaUpdate,
	}
	return v
}

func (v *Viewing) Type() string { return "ViewingArea" }

func (v *Viewing) Handlers() map[protocol.CommandType]Handler { return v.handlers }

func (v *Viewing) State() any { return v.state }

// Playback returns the current playback state.
func (v *Viewing) Playback() protocol.ViewingState { return v.state }

func (v *Viewing) viewingAreaUpdate(a *Area, _ *session.Player, cmd protocol.Command) (Reply, error) {
	var req protocol.ViewingAreaUpdate
	if err := decode(cmd, &req); err != nil {
		return Reply{}, err
	}
	if err := v.set(req.Update); err != nil {
		return Reply{}, err
	}
	a.Changed()
	return Reply{}, nil
}

func (v *Viewing) Update(_ *Area, _ *session.Player, raw json.RawMessage) error {
	var st protocol.ViewingState
	if err := json.Unmarshal(raw, &st); err != nil {
		return InvalidParameters("malformed viewing update")
	}
	return v.set(st)
}

func (v *Viewing) set(st protocol.ViewingState) error {
	if st.ElapsedTimeSec < 0 {
		return InvalidParameters("elapsedTimeSec must not be negative")
	}
	v.state = st
	return nil
}

func (v *Viewing) Leave(*Area, *session.Player) {}

func (v *Viewing) Reset() { v.state = protocol.ViewingState{} }

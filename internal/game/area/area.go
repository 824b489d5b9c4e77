// Package area implements interactable areas: fixed rectangular zones that track
// their occupants and accept variant-specific commands, and the registry that
// resolves which area contains a point.
package area

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/covey/internal/events"
	"github.com/cory-johannsen/covey/internal/game/games"
	"github.com/cory-johannsen/covey/internal/game/session"
	"github.com/cory-johannsen/covey/internal/geom"
	"github.com/cory-johannsen/covey/internal/protocol"
)

// Occupancy reports a player entering or leaving an area.
type Occupancy struct {
	Area    *Area
	Player  *session.Player
	Entered bool
}

// GameOver reports a game reaching OVER inside a game area.
type GameOver struct {
	AreaID string
	GameID string
	Kind   games.Kind
	// Winner is the winning player ID, empty for a tie.
	Winner string
	Result games.Result
}

// Notice is a frame addressed to a single player.
type Notice struct {
	PlayerID string
	Event    string
	Payload  any
}

// Signals are the typed topics areas publish on. Publishing is synchronous, so
// subscribers run on the town event loop.
type Signals struct {
	AreaUpdated   *events.Topic[*Area]
	PlayerMoved   *events.Topic[*session.Player]
	Occupancy     *events.Topic[Occupancy]
	GameOver      *events.Topic[GameOver]
	Notices       *events.Topic[Notice]
	PetEquipped   *events.Topic[protocol.EquippedPet]
	PetUnequipped *events.Topic[protocol.PetUnequipped]
}

// NewSignals creates a Signals with empty topics.
func NewSignals() *Signals {
	return &Signals{
		AreaUpdated:   events.NewTopic[*Area](),
		PlayerMoved:   events.NewTopic[*session.Player](),
		Occupancy:     events.NewTopic[Occupancy](),
		GameOver:      events.NewTopic[GameOver](),
		Notices:       events.NewTopic[Notice](),
		PetEquipped:   events.NewTopic[protocol.EquippedPet](),
		PetUnequipped: events.NewTopic[protocol.PetUnequipped](),
	}
}

// Completion applies the result of deferred work. It runs on the town event
// loop and returns the command response payload.
type Completion func() (any, error)

// Deferred is command work that must leave the event loop, such as a store call.
type Deferred struct {
	// Key serializes deferred work: tasks with equal keys run one at a time in
	// submission order.
	Key string
	// Run executes off the event loop. It must not touch area or player state.
	Run func(ctx context.Context) (Completion, error)
}

// Reply is a handled command's outcome: either an immediate payload or deferred work.
type Reply struct {
	Payload  any
	Deferred *Deferred
}

// Handler executes one command type for a variant.
type Handler func(a *Area, p *session.Player, cmd protocol.Command) (Reply, error)

// Variant carries the behavior that differs between area kinds.
type Variant interface {
	// Type is the wire type tag, e.g. "ConversationArea".
	Type() string
	// Handlers is the variant's command table.
	Handlers() map[protocol.CommandType]Handler
	// State returns the variant fields included in snapshots, or nil.
	State() any
	// Update applies a client interactableUpdate.
	Update(a *Area, p *session.Player, raw json.RawMessage) error
	// Leave runs after p is removed from the area's occupants.
	Leave(a *Area, p *session.Player)
	// Reset runs when the last occupant leaves.
	Reset()
}

// Area is one interactable zone. It is owned by a single town event loop and is
// not safe for concurrent use.
type Area struct {
	id        string
	box       geom.Box
	variant   Variant
	signals   *Signals
	occupants map[string]*session.Player
	order     []string
}

// New creates an area.
//
// Precondition: signals must be non-nil.
// Postcondition: Returns an empty area, or an error wrapping geom.ErrMalformedBox.
func New(id string, box geom.Box, v Variant, signals *Signals) (*Area, error) {
	if err := box.Validate(); err != nil {
		return nil, fmt.Errorf("area %q: %w", id, err)
	}
	return &Area{
		id:        id,
		box:       box,
		variant:   v,
		signals:   signals,
		occupants: make(map[string]*session.Player),
	}, nil
}

// ID returns the stable area identifier.
func (a *Area) ID() string { return a.id }

// Box returns the bounding box.
func (a *Area) Box() geom.Box { return a.box }

// Variant returns the variant behavior.
func (a *Area) Variant() Variant { return a.variant }

// Contains reports whether loc lies in the area, edges included.
func (a *Area) Contains(loc protocol.Location) bool {
	return a.box.Contains(loc.Point())
}

// Overlaps reports whether a and o share any point.
func (a *Area) Overlaps(o *Area) bool { return a.box.Overlaps(o.box) }

// Occupants returns occupant IDs in arrival order.
func (a *Area) Occupants() []string {
	return append([]string(nil), a.order...)
}

// HasOccupant reports whether playerID is an occupant.
func (a *Area) HasOccupant(playerID string) bool {
	_, ok := a.occupants[playerID]
	return ok
}

// Add makes p an occupant and points p's location at this area. Adding an
// existing occupant only re-broadcasts.
//
// Postcondition: p.Location.InteractableID == a.ID(); area and player updates are published.
func (a *Area) Add(p *session.Player) {
	_, existing := a.occupants[p.ID]
	if !existing {
		a.occupants[p.ID] = p
		a.order = append(a.order, p.ID)
	}
	p.Location.InteractableID = a.id
	if !existing {
		a.signals.Occupancy.Publish(Occupancy{Area: a, Player: p, Entered: true})
	}
	a.signals.PlayerMoved.Publish(p)
	a.Changed()
}

// Remove drops p from the occupants and clears p's area. When the area becomes
// empty the variant resets its content.
//
// Postcondition: p is not an occupant; p.Location.InteractableID is empty.
func (a *Area) Remove(p *session.Player) {
	_, existing := a.occupants[p.ID]
	if existing {
		delete(a.occupants, p.ID)
		for i, id := range a.order {
			if id == p.ID {
				a.order = append(a.order[:i], a.order[i+1:]...)
				break
			}
		}
		a.variant.Leave(a, p)
	}
	p.Location.InteractableID = ""
	if len(a.occupants) == 0 {
		a.variant.Reset()
	}
	if existing {
		a.signals.Occupancy.Publish(Occupancy{Area: a, Player: p, Entered: false})
	}
	a.signals.PlayerMoved.Publish(p)
	a.Changed()
}

// HandleCommand dispatches cmd through the variant's handler table.
//
// Postcondition: Returns an ErrInvalidParameters failure for command types the variant does not define.
func (a *Area) HandleCommand(cmd protocol.Command, p *session.Player) (Reply, error) {
	h, ok := a.variant.Handlers()[cmd.Type]
	if !ok {
		return Reply{}, InvalidParameters("%s does not accept %s commands", a.variant.Type(), cmd.Type)
	}
	return h(a, p, cmd)
}

// ApplyUpdate forwards a client interactableUpdate to the variant.
func (a *Area) ApplyUpdate(p *session.Player, raw json.RawMessage) error {
	if err := a.variant.Update(a, p, raw); err != nil {
		return err
	}
	a.Changed()
	return nil
}

// Changed publishes the area's current state.
func (a *Area) Changed() {
	a.signals.AreaUpdated.Publish(a)
}

// Signals returns the topics the area publishes on.
func (a *Area) Signals() *Signals { return a.signals }

// Snapshot serializes the area for broadcasts and join snapshots.
func (a *Area) Snapshot() protocol.Area {
	snap := protocol.Area{
		ID:        a.id,
		Type:      a.variant.Type(),
		Occupants: a.Occupants(),
	}
	if snap.Occupants == nil {
		snap.Occupants = []string{}
	}
	if st := a.variant.State(); st != nil {
		if raw, err := json.Marshal(st); err == nil {
			snap.State = raw
		}
	}
	return snap
}

func decode(cmd protocol.Command, v any) error {
	if err := cmd.Decode(v); err != nil {
		return InvalidParameters("malformed %s command", cmd.Type)
	}
	return nil
}

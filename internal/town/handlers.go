package town

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/covey/internal/economy"
	"github.com/cory-johannsen/covey/internal/game/area"
	"github.com/cory-johannsen/covey/internal/game/session"
	"github.com/cory-johannsen/covey/internal/protocol"
)

// chatFrame is the client chatMessage payload.
type chatFrame struct {
	Body           string `json:"body"`
	InteractableID string `json:"interactableID,omitempty"`
}

// subscribe wires area signals to broadcasts. Topics publish synchronously,
// so every handler below runs on the event loop.
func (t *Town) subscribe() {
	s := t.signals
	t.subs.Add(s.AreaUpdated.Subscribe(func(a *area.Area) {
		t.broadcast(protocol.EventInteractableUpdate, a.Snapshot())
	}))
	t.subs.Add(s.PlayerMoved.Subscribe(func(p *session.Player) {
		if t.moving {
			return
		}
		t.broadcast(protocol.EventPlayerMoved, p.Snapshot())
	}))
	t.subs.Add(s.Occupancy.Subscribe(t.onOccupancy))
	t.subs.Add(s.GameOver.Subscribe(t.onGameOver))
	t.subs.Add(s.Notices.Subscribe(func(n area.Notice) {
		t.send(n.PlayerID, n.Event, n.Payload)
		if n.Event == protocol.EventCurrencyChanged {
			t.publishLeaderboards()
		}
	}))
	t.subs.Add(s.PetEquipped.Subscribe(func(pet protocol.EquippedPet) {
		owner, ok := t.players.GetPlayer(pet.PlayerID)
		if !ok {
			return
		}
		pet.Location = owner.Location
		t.pets[owner.ID] = pet
		t.broadcast(protocol.EventPetEquipped, pet)
	}))
	t.subs.Add(s.PetUnequipped.Subscribe(func(ev protocol.PetUnequipped) {
		if pet, ok := t.pets[ev.PlayerID]; ok && pet.Type == ev.Type {
			delete(t.pets, ev.PlayerID)
		}
		t.broadcast(protocol.EventPetUnequipped, ev)
	}))
}

func (t *Town) dispatch(p *session.Player, msg protocol.Message) {
	switch msg.Type {
	case protocol.EventChatMessage:
		var f chatFrame
		if err := msg.Into(&f); err != nil || f.Body == "" {
			t.sendError(p.ID, "malformed chat message")
			return
		}
		t.postChat(p.ID, f.Body, f.InteractableID)
	case protocol.EventPlayerMovement:
		var loc protocol.Location
		if err := msg.Into(&loc); err != nil || !loc.Rotation.Valid() {
			t.sendError(p.ID, "malformed player movement")
			return
		}
		t.move(p, loc)
	case protocol.EventPetMovement:
		var pm protocol.PetMovement
		if err := msg.Into(&pm); err != nil {
			t.sendError(p.ID, "malformed pet movement")
			return
		}
		t.movePet(p, pm)
	case protocol.EventInteractableCommand:
		var cmd protocol.Command
		if err := msg.Into(&cmd); err != nil || cmd.CommandID == "" {
			t.sendError(p.ID, "malformed interactable command")
			return
		}
		t.command(p, cmd)
	case protocol.EventInteractableUpdate:
		var upd protocol.Area
		if err := msg.Into(&upd); err != nil {
			t.sendError(p.ID, "malformed interactable update")
			return
		}
		t.update(p, upd)
	case protocol.EventEmoteCreation:
		var ec protocol.EmoteCreation
		if err := msg.Into(&ec); err != nil || ec.Emote == "" {
			t.sendError(p.ID, "malformed emote")
			return
		}
		t.createEmote(p, ec)
	case protocol.EventEmoteDestruction:
		t.destroyEmote(p.ID, "")
	default:
		t.sendError(p.ID, "unsupported event %q", msg.Type)
	}
}

// move applies a location update. The player leaves its area only when the
// area no longer contains the new point, so occupancy changes are emitted on
// real transitions only.
//
// Postcondition: at most one area lists p as an occupant; exactly one
// playerMoved frame is broadcast.
func (t *Town) move(p *session.Player, loc protocol.Location) {
	prev, hadArea := t.registry.Get(p.Location.InteractableID)
	loc.InteractableID = p.Location.InteractableID
	p.Location = loc

	t.moving = true
	if !hadArea || !prev.Contains(loc) {
		if hadArea {
			prev.Remove(p)
		}
		if next := t.registry.Find(loc.Point()); next != nil {
			next.Add(p)
		}
	}
	t.moving = false

	t.broadcast(protocol.EventPlayerMoved, p.Snapshot())
}

func (t *Town) movePet(p *session.Player, pm protocol.PetMovement) {
	pet, ok := t.pets[p.ID]
	if !ok || pet.Type != pm.Type || (pm.PlayerID != "" && pm.PlayerID != p.ID) {
		t.sendError(p.ID, "no equipped %s to move", pm.Type)
		return
	}
	pet.Location = pm.Location
	t.pets[p.ID] = pet
	t.broadcast(protocol.EventPetMoved, pet)
}

// postChat appends a chat line to the ring and broadcasts it.
func (t *Town) postChat(author, body, interactableID string) {
	m := protocol.ChatMessage{
		ID:             uuid.NewString(),
		Author:         author,
		Body:           body,
		InteractableID: interactableID,
		Sent:           time.Now().UTC(),
	}
	t.chat = append(t.chat, m)
	if over := len(t.chat) - t.opts.ChatCapacity; over > 0 {
		t.chat = append(t.chat[:0:0], t.chat[over:]...)
	}
	t.broadcast(protocol.EventChatMessage, m)
}

func (t *Town) command(p *session.Player, cmd protocol.Command) {
	a, ok := t.registry.Get(cmd.InteractableID)
	if !ok {
		t.respond(p, cmd, nil, area.InvalidParameters("no such interactable %s", cmd.InteractableID))
		return
	}
	reply, err := a.HandleCommand(cmd, p)
	if err != nil {
		t.respond(p, cmd, nil, err)
		return
	}
	if reply.Deferred == nil {
		t.respond(p, cmd, reply.Payload, nil)
		return
	}
	playerID := p.ID
	t.submit(reply.Deferred.Key, t.opts.StoreTimeout, reply.Deferred.Run, func(complete area.Completion, err error) {
		var payload any
		if err == nil && complete != nil {
			payload, err = complete()
		}
		// The player may have left while the store call was in flight.
		if p, ok := t.players.GetPlayer(playerID); ok {
			t.respond(p, cmd, payload, err)
		} else if err != nil {
			t.clientError(err, cmd)
		}
	})
}

// update applies a client interactableUpdate. Only occupants may update an area.
func (t *Town) update(p *session.Player, upd protocol.Area) {
	a, ok := t.registry.Get(upd.ID)
	if !ok {
		t.sendError(p.ID, "no such interactable %s", upd.ID)
		return
	}
	if !a.HasOccupant(p.ID) {
		t.sendError(p.ID, "%s: not an occupant", upd.ID)
		return
	}
	if err := a.ApplyUpdate(p, upd.State); err != nil {
		msg, ok := area.ClientMessage(err)
		if !ok {
			t.logger.Error("applying interactable update", zap.String("area", upd.ID), zap.Error(err))
			msg = "internal error"
		}
		t.sendError(p.ID, "%s", msg)
	}
}

func (t *Town) createEmote(p *session.Player, ec protocol.EmoteCreation) {
	t.destroyEmote(p.ID, "")
	e := protocol.Emote{ID: uuid.NewString(), PlayerID: p.ID, Emote: ec.Emote, Location: ec.Location}
	playerID, emoteID := p.ID, e.ID
	timer := time.AfterFunc(t.opts.EmoteDuration, func() {
		_ = t.post(func() { t.destroyEmote(playerID, emoteID) })
	})
	t.emotes[p.ID] = &emoteEntry{emote: e, timer: timer}
	t.broadcast(protocol.EventEmoteCreated, e)
}

// destroyEmote removes playerID's emote. A non-empty emoteID only matches that
// emote, so a stale expiry cannot remove its replacement.
func (t *Town) destroyEmote(playerID, emoteID string) {
	e, ok := t.emotes[playerID]
	if !ok || (emoteID != "" && e.emote.ID != emoteID) {
		return
	}
	e.timer.Stop()
	delete(t.emotes, playerID)
	t.broadcast(protocol.EventEmoteDestroyed, e.emote)
}

func (t *Town) onOccupancy(o area.Occupancy) {
	if t.hooks == nil {
		return
	}
	var (
		msg string
		ok  bool
	)
	if o.Entered {
		msg, ok = t.hooks.AreaEnter(t.opts.ID, o.Area.ID(), o.Player.UserName)
	} else {
		msg, ok = t.hooks.AreaLeave(t.opts.ID, o.Area.ID(), o.Player.UserName)
	}
	if ok && msg != "" {
		t.postChat(townAuthor, msg, o.Area.ID())
	}
}

// onGameOver starts the award for a won game. The pending mark keeps a second
// delivery for the same game from issuing a second write while the first is
// in flight; the store ledger makes the award itself idempotent.
func (t *Town) onGameOver(ev area.GameOver) {
	if ev.Winner == "" {
		return
	}
	if _, busy := t.pending[ev.GameID]; busy {
		return
	}
	amount := t.awards.Reward(t.opts.ID, ev.Kind)
	if amount <= 0 {
		return
	}
	t.pending[ev.GameID] = struct{}{}
	gameID, winner := ev.GameID, ev.Winner
	t.submit("award:"+gameID, 0, func(ctx context.Context) (area.Completion, error) {
		out, err := t.awards.Award(ctx, gameID, winner, amount)
		if err != nil {
			return nil, err
		}
		return func() (any, error) { return out, nil }, nil
	}, func(complete area.Completion, err error) {
		if err != nil {
			delete(t.pending, gameID)
			t.logger.Error("game award failed", zap.String("game", gameID), zap.String("player", winner), zap.Error(err))
			return
		}
		res, _ := complete()
		if out := res.(economy.Outcome); out.Awarded {
			t.send(winner, protocol.EventCurrencyChanged, protocol.CurrencyChanged{PlayerID: winner, Balance: out.Balance})
			t.publishLeaderboards()
		}
	})
}

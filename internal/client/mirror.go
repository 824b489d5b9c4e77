package client

import (
	"slices"
	"sync"

	"github.com/cory-johannsen/covey/internal/events"
	"github.com/cory-johannsen/covey/internal/protocol"
)

// mirror is the client's copy of the town, seeded from initialize and kept
// current by applying every broadcast frame in arrival order.
type mirror struct {
	mu       sync.RWMutex
	snap     protocol.Initialize
	order    []string
	players  map[string]protocol.Player
	areas    map[string]protocol.Area
	areaIDs  []string
	pets     map[string]protocol.EquippedPet
	emotes   map[string]protocol.Emote
	balance  int64
	balanced bool
	allTime  protocol.Leaderboard
	current  protocol.Leaderboard

	playersChanged  *events.Topic[[]protocol.Player]
	playerMoved     *events.Topic[protocol.Player]
	areaChanged     *events.Topic[protocol.Area]
	petsChanged     *events.Topic[[]protocol.EquippedPet]
	emotesChanged   *events.Topic[[]protocol.Emote]
	balanceChanged  *events.Topic[int64]
	settingsChanged *events.Topic[protocol.TownSettings]
	allTimeChanged  *events.Topic[protocol.Leaderboard]
	currentChanged  *events.Topic[protocol.Leaderboard]
}

func newMirror() *mirror {
	return &mirror{
		players:         make(map[string]protocol.Player),
		areas:           make(map[string]protocol.Area),
		pets:            make(map[string]protocol.EquippedPet),
		emotes:          make(map[string]protocol.Emote),
		playersChanged:  events.NewTopic[[]protocol.Player](),
		playerMoved:     events.NewTopic[protocol.Player](),
		areaChanged:     events.NewTopic[protocol.Area](),
		petsChanged:     events.NewTopic[[]protocol.EquippedPet](),
		emotesChanged:   events.NewTopic[[]protocol.Emote](),
		balanceChanged:  events.NewTopic[int64](),
		settingsChanged: events.NewTopic[protocol.TownSettings](),
		allTimeChanged:  events.NewTopic[protocol.Leaderboard](),
		currentChanged:  events.NewTopic[protocol.Leaderboard](),
	}
}

// seed replaces the mirrored state with an initialize snapshot.
func (m *mirror) seed(init protocol.Initialize) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = init
	m.order = m.order[:0]
	clear(m.players)
	for _, p := range init.Players {
		m.addPlayerLocked(p)
	}
	m.areaIDs = m.areaIDs[:0]
	clear(m.areas)
	for _, a := range init.Areas {
		m.areaIDs = append(m.areaIDs, a.ID)
		m.areas[a.ID] = a
	}
	clear(m.pets)
	for _, p := range init.Pets {
		m.pets[p.PlayerID] = p
	}
	clear(m.emotes)
	for _, e := range init.Emotes {
		m.emotes[e.PlayerID] = e
	}
}

func (m *mirror) addPlayerLocked(p protocol.Player) {
	if _, ok := m.players[p.ID]; !ok {
		m.order = append(m.order, p.ID)
	}
	m.players[p.ID] = p
}

// apply folds one server frame into the mirror and notifies subscribers.
// Frames that carry no town state are ignored. A payload that fails to
// decode leaves the mirror untouched.
func (m *mirror) apply(selfID string, msg protocol.Message) error {
	switch msg.Type {
	case protocol.EventPlayerJoined:
		var p protocol.Player
		if err := msg.Into(&p); err != nil {
			return err
		}
		m.mu.Lock()
		m.addPlayerLocked(p)
		players := m.playersLocked()
		m.mu.Unlock()
		m.playersChanged.Publish(players)

	case protocol.EventPlayerDisconnect:
		var p protocol.Player
		if err := msg.Into(&p); err != nil {
			return err
		}
		m.mu.Lock()
		delete(m.players, p.ID)
		m.order = slices.DeleteFunc(m.order, func(id string) bool { return id == p.ID })
		_, hadPet := m.pets[p.ID]
		delete(m.pets, p.ID)
		_, hadEmote := m.emotes[p.ID]
		delete(m.emotes, p.ID)
		players, pets, emotes := m.playersLocked(), m.petsLocked(), m.emotesLocked()
		m.mu.Unlock()
		m.playersChanged.Publish(players)
		if hadPet {
			m.petsChanged.Publish(pets)
		}
		if hadEmote {
			m.emotesChanged.Publish(emotes)
		}

	case protocol.EventPlayerMoved:
		var p protocol.Player
		if err := msg.Into(&p); err != nil {
			return err
		}
		m.mu.Lock()
		m.addPlayerLocked(p)
		m.mu.Unlock()
		m.playerMoved.Publish(p)

	case protocol.EventInteractableUpdate:
		var a protocol.Area
		if err := msg.Into(&a); err != nil {
			return err
		}
		m.mu.Lock()
		if _, ok := m.areas[a.ID]; !ok {
			m.areaIDs = append(m.areaIDs, a.ID)
		}
		m.areas[a.ID] = a
		m.mu.Unlock()
		m.areaChanged.Publish(a)

	case protocol.EventPetEquipped, protocol.EventPetMoved:
		var pet protocol.EquippedPet
		if err := msg.Into(&pet); err != nil {
			return err
		}
		m.mu.Lock()
		m.pets[pet.PlayerID] = pet
		pets := m.petsLocked()
		m.mu.Unlock()
		m.petsChanged.Publish(pets)

	case protocol.EventPetUnequipped:
		var ev protocol.PetUnequipped
		if err := msg.Into(&ev); err != nil {
			return err
		}
		m.mu.Lock()
		if pet, ok := m.pets[ev.PlayerID]; ok && pet.Type == ev.Type {
			delete(m.pets, ev.PlayerID)
		}
		pets := m.petsLocked()
		m.mu.Unlock()
		m.petsChanged.Publish(pets)

	case protocol.EventEmoteCreated:
		var e protocol.Emote
		if err := msg.Into(&e); err != nil {
			return err
		}
		m.mu.Lock()
		m.emotes[e.PlayerID] = e
		emotes := m.emotesLocked()
		m.mu.Unlock()
		m.emotesChanged.Publish(emotes)

	case protocol.EventEmoteDestroyed:
		var e protocol.Emote
		if err := msg.Into(&e); err != nil {
			return err
		}
		m.mu.Lock()
		// A destroy for a replaced emote must not remove its successor.
		if cur, ok := m.emotes[e.PlayerID]; ok && cur.ID == e.ID {
			delete(m.emotes, e.PlayerID)
		}
		emotes := m.emotesLocked()
		m.mu.Unlock()
		m.emotesChanged.Publish(emotes)

	case protocol.EventCurrencyChanged:
		var ev protocol.CurrencyChanged
		if err := msg.Into(&ev); err != nil {
			return err
		}
		if ev.PlayerID != selfID {
			return nil
		}
		m.setBalance(ev.Balance)

	case protocol.EventTownSettingsUpdated:
		var s protocol.TownSettings
		if err := msg.Into(&s); err != nil {
			return err
		}
		m.mu.Lock()
		m.snap.FriendlyName = s.FriendlyName
		m.snap.IsPubliclyListed = s.IsPubliclyListed
		m.mu.Unlock()
		m.settingsChanged.Publish(s)

	case protocol.EventAllTimeCurrency, protocol.EventCurrentCurrency:
		var b protocol.Leaderboard
		if err := msg.Into(&b); err != nil {
			return err
		}
		m.mu.Lock()
		if msg.Type == protocol.EventAllTimeCurrency {
			m.allTime = b
		} else {
			m.current = b
		}
		m.mu.Unlock()
		if msg.Type == protocol.EventAllTimeCurrency {
			m.allTimeChanged.Publish(b)
		} else {
			m.currentChanged.Publish(b)
		}
		for _, r := range b.Rows {
			if r.PlayerID == selfID {
				m.setBalance(r.Currency)
			}
		}
	}
	return nil
}

func (m *mirror) setBalance(v int64) {
	m.mu.Lock()
	changed := !m.balanced || m.balance != v
	m.balance, m.balanced = v, true
	m.mu.Unlock()
	if changed {
		m.balanceChanged.Publish(v)
	}
}

func (m *mirror) playersLocked() []protocol.Player {
	out := make([]protocol.Player, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.players[id])
	}
	return out
}

func (m *mirror) areasLocked() []protocol.Area {
	out := make([]protocol.Area, 0, len(m.areaIDs))
	for _, id := range m.areaIDs {
		out = append(out, m.areas[id])
	}
	return out
}

// petsLocked and emotesLocked list entries in player join order.
func (m *mirror) petsLocked() []protocol.EquippedPet {
	out := make([]protocol.EquippedPet, 0, len(m.pets))
	for _, id := range m.order {
		if p, ok := m.pets[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (m *mirror) emotesLocked() []protocol.Emote {
	out := make([]protocol.Emote, 0, len(m.emotes))
	for _, id := range m.order {
		if e, ok := m.emotes[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (m *mirror) snapshot() protocol.Initialize {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := m.snap
	snap.Players = m.playersLocked()
	snap.Areas = m.areasLocked()
	snap.Pets = m.petsLocked()
	snap.Emotes = m.emotesLocked()
	return snap
}

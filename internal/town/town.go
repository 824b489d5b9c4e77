// Package town implements the session hub of one town and the manager that
// hosts many towns.
//
// A Town owns its players, pets, emotes, chat and interactable areas. All of
// that state is mutated on a single event loop goroutine; public methods post
// closures into the loop's inbox. Store calls run off the loop and re-enter
// it as new events.
package town

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/covey/internal/economy"
	"github.com/cory-johannsen/covey/internal/events"
	"github.com/cory-johannsen/covey/internal/game/area"
	"github.com/cory-johannsen/covey/internal/game/session"
	"github.com/cory-johannsen/covey/internal/game/world"
	"github.com/cory-johannsen/covey/internal/protocol"
	"github.com/cory-johannsen/covey/internal/storage"
)

// Town errors.
var (
	ErrTownFull      = errors.New("town is at capacity")
	ErrTownClosed    = errors.New("town is closed")
	ErrUnknownPlayer = errors.New("unknown player")
	ErrUnknownArea   = errors.New("unknown interactable")
)

// townAuthor is the chat author of script announcements.
const townAuthor = "town"

// Hooks are optional scripted reactions to occupancy changes.
type Hooks interface {
	AreaEnter(townID, areaID, userName string) (string, bool)
	AreaLeave(townID, areaID, userName string) (string, bool)
}

// Options configures one town.
type Options struct {
	ID               string
	FriendlyName     string
	IsPubliclyListed bool
	Map              *world.TownMap
	Capacity         int
	ChatCapacity     int
	EmoteDuration    time.Duration
	StartingBalance  int64
	InboxSize        int
	SendBuffer       int
	// LeaderboardSize is the number of all-time leaderboard rows.
	LeaderboardSize int
	// BroadcastLeaderboards pushes both leaderboards to every player after a
	// join, a leave or a balance change.
	BroadcastLeaderboards bool
	// StoreTimeout bounds each store call. Awards are bounded by their retry policy instead.
	StoreTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Capacity <= 0 {
		o.Capacity = 50
	}
	if o.ChatCapacity <= 0 {
		o.ChatCapacity = 200
	}
	if o.EmoteDuration <= 0 {
		o.EmoteDuration = 2 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 256
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.LeaderboardSize <= 0 {
		o.LeaderboardSize = 10
	}
}

// Deps are the collaborators shared by every town of a server.
type Deps struct {
	Store  storage.Store
	Awards *economy.Policy
	// Hooks may be nil.
	Hooks  Hooks
	Logger *zap.Logger
	// NewGameID mints game IDs. Nil uses random UUIDs.
	NewGameID func() string
	// Scripts, when set, loads ScriptDir/towns/<map name> into each town
	// created on that map. Such a town no longer sees the global hooks.
	Scripts     ScriptLoader
	ScriptDir   string
	ScriptLimit int
}

type emoteEntry struct {
	emote protocol.Emote
	timer *time.Timer
}

type task struct {
	timeout time.Duration
	run     func(ctx context.Context) (area.Completion, error)
	done    func(area.Completion, error)
}

// Town is one session hub.
type Town struct {
	opts   Options
	store  storage.Store
	awards *economy.Policy
	hooks  Hooks
	logger *zap.Logger

	settingsMu sync.RWMutex
	settings   protocol.TownSettings

	players  *session.Manager
	registry *area.Registry
	signals  *area.Signals
	subs     events.Group

	// Loop-owned state.
	pets    map[string]protocol.EquippedPet
	emotes  map[string]*emoteEntry
	chat    []protocol.ChatMessage
	pending map[string]struct{}
	tasks   map[string][]task
	slow    []string
	moving  bool
	closed  bool

	inbox     chan func()
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New builds a town from opts.Map and starts its event loop.
//
// Precondition: deps.Store, deps.Awards and deps.Logger must be non-nil; opts.Map must be non-nil.
// Postcondition: Returns a running Town, or an error wrapping world.ErrMapIntegrity
// when the map is invalid. No goroutine is left running on error.
func New(ctx context.Context, opts Options, deps Deps) (*Town, error) {
	opts.applyDefaults()
	signals := area.NewSignals()
	registry, err := area.Build(ctx, opts.Map, area.Deps{
		Pets:    deps.Store,
		Catalog: deps.Store,
		Signals: signals,
		NewID:   deps.NewGameID,
	})
	if err != nil {
		return nil, fmt.Errorf("building town %q: %w", opts.FriendlyName, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	t := &Town{
		opts:     opts,
		store:    deps.Store,
		awards:   deps.Awards,
		hooks:    deps.Hooks,
		logger:   deps.Logger.With(zap.String("town", opts.ID)),
		settings: protocol.TownSettings{FriendlyName: opts.FriendlyName, IsPubliclyListed: opts.IsPubliclyListed},
		players:  session.NewManager(),
		registry: registry,
		signals:  signals,
		pets:     make(map[string]protocol.EquippedPet),
		emotes:   make(map[string]*emoteEntry),
		pending:  make(map[string]struct{}),
		tasks:    make(map[string][]task),
		inbox:    make(chan func(), opts.InboxSize),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		ctx:      loopCtx,
		cancel:   cancel,
	}
	t.subscribe()
	go t.run()
	t.logger.Info("town started",
		zap.String("map", opts.Map.Name),
		zap.Int("areas", registry.Len()),
	)
	return t, nil
}

// ID returns the town ID.
func (t *Town) ID() string { return t.opts.ID }

// Capacity returns the maximum number of players.
func (t *Town) Capacity() int { return t.opts.Capacity }

// Occupancy returns the number of connected players.
func (t *Town) Occupancy() int { return t.players.PlayerCount() }

// Settings returns the current public settings.
func (t *Town) Settings() protocol.TownSettings {
	t.settingsMu.RLock()
	defer t.settingsMu.RUnlock()
	return t.settings
}

// Player returns a connected player. The player's fields are owned by the
// event loop; callers may read only ID, UserName, SessionToken and Outbox.
func (t *Town) Player(id string) (*session.Player, bool) {
	return t.players.GetPlayer(id)
}

// PlayerBySessionToken returns the player holding token.
func (t *Town) PlayerBySessionToken(token string) (*session.Player, bool) {
	return t.players.GetPlayerBySessionToken(token)
}

func (t *Town) run() {
	defer close(t.stopped)
	for {
		select {
		case ev := <-t.inbox:
			ev()
			t.reapSlow()
		case <-t.quit:
			return
		}
	}
}

// post queues ev on the event loop.
func (t *Town) post(ev func()) error {
	select {
	case <-t.quit:
		return ErrTownClosed
	default:
	}
	select {
	case t.inbox <- ev:
		return nil
	case <-t.quit:
		return ErrTownClosed
	}
}

// call runs fn on the event loop and waits for it.
func (t *Town) call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	if err := t.post(func() { done <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.quit:
		select {
		case err := <-done:
			return err
		default:
			return ErrTownClosed
		}
	}
}

// Join admits a new player named userName. The initialize frame is queued on
// the new player's outbox before any other frame.
//
// Precondition: userName must be non-empty.
// Postcondition: Returns the player and its initialization snapshot, or
// ErrTownFull or ErrTownClosed.
func (t *Town) Join(ctx context.Context, userName string) (*session.Player, protocol.Initialize, error) {
	var (
		p    *session.Player
		init protocol.Initialize
	)
	err := t.call(ctx, func() error {
		if t.closed {
			return ErrTownClosed
		}
		if t.players.PlayerCount() >= t.opts.Capacity {
			return ErrTownFull
		}
		p = session.NewPlayer(userName, t.opts.SendBuffer)
		if err := t.players.AddPlayer(p); err != nil {
			return err
		}
		init = t.initialize(p)
		t.send(p.ID, protocol.EventInitialize, init)
		t.broadcastExcept(p.ID, protocol.EventPlayerJoined, p.Snapshot())

		playerID, balance := p.ID, t.opts.StartingBalance
		t.submit(playerID, t.opts.StoreTimeout, func(ctx context.Context) (area.Completion, error) {
			return nil, t.store.CreateAccount(ctx, playerID, balance)
		}, func(_ area.Completion, err error) {
			if err != nil {
				// The session stays up; the player learns that its balance is unavailable.
				t.logger.Error("creating currency account", zap.String("player", playerID), zap.Error(err))
				t.sendError(playerID, "internal error")
				return
			}
			t.publishLeaderboards()
		})
		t.logger.Info("player joined", zap.String("player", p.ID), zap.String("user", userName))
		return nil
	})
	if err != nil {
		return nil, protocol.Initialize{}, err
	}
	return p, init, nil
}

// Leave disconnects playerID. Leaving twice is a no-op.
func (t *Town) Leave(playerID string) {
	_ = t.post(func() { t.disconnect(playerID) })
}

// Handle queues one client frame from playerID. Frames from one caller are
// processed in the order Handle is called.
func (t *Town) Handle(playerID string, msg protocol.Message) error {
	return t.post(func() {
		p, ok := t.players.GetPlayer(playerID)
		if !ok {
			return
		}
		t.dispatch(p, msg)
	})
}

// UpdateSettings replaces the public settings and broadcasts them.
func (t *Town) UpdateSettings(ctx context.Context, s protocol.TownSettings) error {
	return t.call(ctx, func() error {
		t.settingsMu.Lock()
		t.settings = s
		t.settingsMu.Unlock()
		t.broadcast(protocol.EventTownSettingsUpdated, s)
		return nil
	})
}

// ChatHistory returns retained chat messages, oldest first. A non-empty
// interactableID keeps only messages sent in that area.
func (t *Town) ChatHistory(ctx context.Context, interactableID string) ([]protocol.ChatMessage, error) {
	var out []protocol.ChatMessage
	err := t.call(ctx, func() error {
		out = make([]protocol.ChatMessage, 0, len(t.chat))
		for _, m := range t.chat {
			if interactableID == "" || m.InteractableID == interactableID {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}

// StartConversation sets the topic of an inactive conversation area.
//
// Postcondition: Returns ErrUnknownArea, an area.ErrNotApplicable failure when
// the area is not an inactive conversation, or nil.
func (t *Town) StartConversation(ctx context.Context, areaID, topic string) error {
	return t.call(ctx, func() error {
		a, ok := t.registry.Get(areaID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownArea, areaID)
		}
		conv, ok := a.Variant().(*area.Conversation)
		if !ok {
			return area.NotApplicable("%s is not a conversation area", areaID)
		}
		if err := conv.Start(topic); err != nil {
			return err
		}
		a.Changed()
		return nil
	})
}

// Snapshot returns the town state as a newly joined player would see it.
func (t *Town) Snapshot(ctx context.Context) (protocol.Initialize, error) {
	var snap protocol.Initialize
	err := t.call(ctx, func() error {
		snap = t.initialize(nil)
		return nil
	})
	return snap, err
}

// Close broadcasts townClosing, disconnects every player and stops the loop.
// In-flight store work is cancelled. Close is idempotent.
func (t *Town) Close() {
	t.closeOnce.Do(func() {
		_ = t.call(context.Background(), func() error {
			t.closed = true
			t.broadcast(protocol.EventTownClosing, nil)
			for _, e := range t.emotes {
				e.timer.Stop()
			}
			t.players.CloseAll()
			return nil
		})
		close(t.quit)
		t.cancel()
		<-t.stopped
		t.subs.Dispose()
		t.wg.Wait()
		t.logger.Info("town closed")
	})
}

func (t *Town) initialize(p *session.Player) protocol.Initialize {
	s := t.Settings()
	init := protocol.Initialize{
		TownID:           t.opts.ID,
		FriendlyName:     s.FriendlyName,
		IsPubliclyListed: s.IsPubliclyListed,
		Players:          []protocol.Player{},
		Pets:             []protocol.EquippedPet{},
		Emotes:           []protocol.Emote{},
		Areas:            []protocol.Area{},
	}
	if p != nil {
		init.UserID = p.ID
		init.SessionToken = p.SessionToken
	}
	for _, pl := range t.players.Players() {
		init.Players = append(init.Players, pl.Snapshot())
		if pet, ok := t.pets[pl.ID]; ok {
			init.Pets = append(init.Pets, pet)
		}
		if e, ok := t.emotes[pl.ID]; ok {
			init.Emotes = append(init.Emotes, e.emote)
		}
	}
	for _, a := range t.registry.Areas() {
		init.Areas = append(init.Areas, a.Snapshot())
	}
	return init
}

// disconnect runs the leave flow on the loop.
func (t *Town) disconnect(playerID string) {
	p, ok := t.players.GetPlayer(playerID)
	if !ok {
		return
	}
	if a, ok := t.registry.Get(p.Location.InteractableID); ok {
		t.moving = true
		a.Remove(p)
		t.moving = false
	}
	delete(t.pets, playerID)
	if e, ok := t.emotes[playerID]; ok {
		e.timer.Stop()
		delete(t.emotes, playerID)
	}
	if _, err := t.players.RemovePlayer(playerID); err != nil {
		return
	}
	t.broadcast(protocol.EventPlayerDisconnect, p.Snapshot())
	t.publishLeaderboards()
	t.logger.Info("player left", zap.String("player", playerID))
}

// reapSlow disconnects players whose outbound buffer overflowed.
func (t *Town) reapSlow() {
	for len(t.slow) > 0 {
		id := t.slow[0]
		t.slow = t.slow[1:]
		if p, ok := t.players.GetPlayer(id); ok {
			t.logger.Warn("disconnecting slow player", zap.String("player", id))
			p.Outbox.CloseWith(session.ErrSlowConsumer)
			t.disconnect(id)
		}
	}
}

func (t *Town) encode(event string, payload any) ([]byte, bool) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		t.logger.Error("encoding frame", zap.String("event", event), zap.Error(err))
		return nil, false
	}
	return data, true
}

// push queues data for p. The first overflow schedules p for disconnection
// once the current event has been handled.
func (t *Town) push(p *session.Player, data []byte) {
	err := p.Outbox.Push(data)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSlowConsumer):
		if !slices.Contains(t.slow, p.ID) {
			t.slow = append(t.slow, p.ID)
		}
	default:
		t.logger.Debug("dropping frame for closed session", zap.String("player", p.ID), zap.Error(err))
	}
}

func (t *Town) send(playerID, event string, payload any) {
	p, ok := t.players.GetPlayer(playerID)
	if !ok {
		return
	}
	if data, ok := t.encode(event, payload); ok {
		t.push(p, data)
	}
}

func (t *Town) broadcast(event string, payload any) {
	t.broadcastExcept("", event, payload)
}

func (t *Town) broadcastExcept(exceptID, event string, payload any) {
	data, ok := t.encode(event, payload)
	if !ok {
		return
	}
	for _, p := range t.players.Players() {
		if p.ID != exceptID {
			t.push(p, data)
		}
	}
}

func (t *Town) sendError(playerID, format string, args ...any) {
	t.send(playerID, protocol.EventError, protocol.ErrorEvent{Message: fmt.Sprintf(format, args...)})
}

// submit queues deferred work under key. Work with the same key runs one at a
// time in submission order; done runs on the loop.
func (t *Town) submit(key string, timeout time.Duration, run func(context.Context) (area.Completion, error), done func(area.Completion, error)) {
	tk := task{timeout: timeout, run: run, done: done}
	t.tasks[key] = append(t.tasks[key], tk)
	if len(t.tasks[key]) == 1 {
		t.start(key, tk)
	}
}

func (t *Town) start(key string, tk task) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := t.ctx, context.CancelFunc(func() {})
		if tk.timeout > 0 {
			ctx, cancel = context.WithTimeout(t.ctx, tk.timeout)
		}
		complete, err := tk.run(ctx)
		cancel()
		_ = t.post(func() { t.finish(key, tk, complete, err) })
	}()
}

func (t *Town) finish(key string, tk task, complete area.Completion, err error) {
	tk.done(complete, err)
	queue := t.tasks[key][1:]
	if len(queue) == 0 {
		delete(t.tasks, key)
		return
	}
	t.tasks[key] = queue
	t.start(key, queue[0])
}

// respond sends the single response to cmd.
func (t *Town) respond(p *session.Player, cmd protocol.Command, payload any, err error) {
	resp := protocol.CommandResponse{CommandID: cmd.CommandID, InteractableID: cmd.InteractableID}
	if err != nil {
		resp.Error = t.clientError(err, cmd)
	} else if payload != nil {
		raw, merr := json.Marshal(payload)
		if merr != nil {
			resp.Error = t.clientError(merr, cmd)
		} else {
			resp.Payload = raw
		}
	}
	t.send(p.ID, protocol.EventCommandResponse, resp)
}

// clientError tags validation failures with their message and hides
// everything else behind "internal error".
func (t *Town) clientError(err error, cmd protocol.Command) string {
	if msg, ok := area.ClientMessage(err); ok {
		return msg
	}
	t.logger.Error("command failed",
		zap.String("command_id", cmd.CommandID),
		zap.String("area", cmd.InteractableID),
		zap.String("type", string(cmd.Type)),
		zap.Error(err),
	)
	return "internal error"
}

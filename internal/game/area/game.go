package area

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/cory-johannsen/covey/internal/game/games"
	"github.com/cory-johannsen/covey/internal/game/session"
	"github.com/cory-johannsen/covey/internal/protocol"
)

// GameState is the snapshot of a game area.
type GameState struct {
	Kind    games.Kind     `json:"gameKind"`
	Game    any            `json:"game,omitempty"`
	GameID  string         `json:"gameID,omitempty"`
	History []games.Result `json:"history"`
}

// Game hosts one game instance at a time and keeps the results of finished ones.
type Game struct {
	kind     games.Kind
	game     games.Instance
	history  []games.Result
	settled  string
	newID    func() string
	handlers map[protocol.CommandType]Handler
}

// NewGame creates a game area variant for kind.
func NewGame(kind games.Kind) *Game {
	g := &Game{kind: kind, newID: uuid.NewString}
	g.handlers = map[protocol.CommandType]Handler{
		protocol.CmdJoinGame:  g.joinGame,
		protocol.CmdStartGame: g.startGame,
		protocol.CmdGameMove:  g.gameMove,
		protocol.CmdLeaveGame: g.leaveGame,
	}
	return g
}

func (g *Game) Type() string {
	if g.kind == games.KindConnectFour {
		return "ConnectFourArea"
	}
	return "TicTacToeArea"
}

// Kind returns the game kind hosted by the area.
func (g *Game) Kind() games.Kind { return g.kind }

// Current returns the current game instance, or nil.
func (g *Game) Current() games.Instance { return g.game }

// History returns the results of finished games, oldest first.
func (g *Game) History() []games.Result { return append([]games.Result(nil), g.history...) }

func (g *Game) Handlers() map[protocol.CommandType]Handler { return g.handlers }

func (g *Game) State() any {
	st := GameState{Kind: g.kind, History: g.History()}
	if st.History == nil {
		st.History = []games.Result{}
	}
	if g.game != nil {
		st.Game = g.game.Snapshot()
		st.GameID = g.game.ID()
	}
	return st
}

func (g *Game) Update(*Area, *session.Player, json.RawMessage) error {
	return NotApplicable("game areas are updated through commands")
}

// Leave forfeits or abandons the departing player's seat.
func (g *Game) Leave(a *Area, p *session.Player) {
	if g.game == nil || g.game.Status() == games.StatusOver {
		return
	}
	for _, id := range g.game.Players() {
		if id == p.ID {
			_ = g.game.Leave(p.ID)
			g.settle(a)
			return
		}
	}
}

func (g *Game) Reset() {}

func (g *Game) joinGame(a *Area, p *session.Player, _ protocol.Command) (Reply, error) {
	if g.game == nil || g.game.Status() == games.StatusOver {
		inst, err := games.New(g.kind, g.newID(), g.game)
		if err != nil {
			return Reply{}, err
		}
		g.game = inst
	}
	if err := g.game.Join(p.ID); err != nil {
		return Reply{}, ruleError(err)
	}
	a.Changed()
	return Reply{Payload: protocol.JoinGameResult{GameID: g.game.ID()}}, nil
}

func (g *Game) startGame(a *Area, p *session.Player, cmd protocol.Command) (Reply, error) {
	var req protocol.StartGame
	if err := decode(cmd, &req); err != nil {
		return Reply{}, err
	}
	if err := g.check(req.GameID); err != nil {
		return Reply{}, err
	}
	if err := g.game.Start(p.ID); err != nil {
		return Reply{}, ruleError(err)
	}
	a.Changed()
	return Reply{}, nil
}

func (g *Game) gameMove(a *Area, p *session.Player, cmd protocol.Command) (Reply, error) {
	var req protocol.GameMove
	if err := decode(cmd, &req); err != nil {
		return Reply{}, err
	}
	if err := g.check(req.GameID); err != nil {
		return Reply{}, err
	}
	if err := g.game.ApplyMove(p.ID, req.Move); err != nil {
		return Reply{}, ruleError(err)
	}
	g.settle(a)
	a.Changed()
	return Reply{}, nil
}

func (g *Game) leaveGame(a *Area, p *session.Player, cmd protocol.Command) (Reply, error) {
	var req protocol.LeaveGame
	if err := decode(cmd, &req); err != nil {
		return Reply{}, err
	}
	if err := g.check(req.GameID); err != nil {
		return Reply{}, err
	}
	if err := g.game.Leave(p.ID); err != nil {
		return Reply{}, ruleError(err)
	}
	g.settle(a)
	a.Changed()
	return Reply{}, nil
}

func (g *Game) check(gameID string) error {
	if g.game == nil {
		return InvalidParameters("no game in progress")
	}
	if gameID != g.game.ID() {
		return InvalidParameters("game ID mismatch")
	}
	return nil
}

// settle records a newly finished game and publishes GameOver exactly once per game.
func (g *Game) settle(a *Area) {
	if g.game == nil || g.game.Status() != games.StatusOver || g.settled == g.game.ID() {
		return
	}
	g.settled = g.game.ID()
	res := g.game.Result()
	if res == nil {
		return
	}
	g.history = append(g.history, *res)
	a.signals.GameOver.Publish(GameOver{
		AreaID: a.id,
		GameID: g.game.ID(),
		Kind:   g.kind,
		Winner: g.game.Winner(),
		Result: *res,
	})
}

func ruleError(err error) error {
	if errors.Is(err, games.ErrRule) {
		return InvalidParameters("%s", strings.TrimPrefix(err.Error(), games.ErrRule.Error()+": "))
	}
	return err
}

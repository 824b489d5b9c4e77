// Package games implements the turn-based game instances hosted by game areas.
// Instances are append-only: every accepted move is recorded, and OVER is terminal.
package games

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the lifecycle phase of a game instance.
type Status string

// Game statuses.
const (
	StatusWaitingForPlayers Status = "WAITING_FOR_PLAYERS"
	StatusWaitingToStart    Status = "WAITING_TO_START"
	StatusInProgress        Status = "IN_PROGRESS"
	StatusOver              Status = "OVER"
)

// Kind identifies a game variant. It also selects the reward amount.
type Kind string

// Supported game kinds.
const (
	KindTicTacToe   Kind = "tictactoe"
	KindConnectFour Kind = "connectfour"
)

// ParseKind maps a map-definition or config value onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "tictactoe", "TicTacToe", "TicTacToeArea":
		return KindTicTacToe, nil
	case "connectfour", "ConnectFour", "ConnectFourArea":
		return KindConnectFour, nil
	default:
		return "", fmt.Errorf("unknown game kind %q", s)
	}
}

// Rule violations. Every error returned by an Instance wraps ErrRule.
var (
	ErrRule              = errors.New("game rule violation")
	ErrGameFull          = fmt.Errorf("%w: game is full", ErrRule)
	ErrAlreadyInGame     = fmt.Errorf("%w: player is already in this game", ErrRule)
	ErrNotInGame         = fmt.Errorf("%w: player is not in this game", ErrRule)
	ErrNotInProgress     = fmt.Errorf("%w: game is not in progress", ErrRule)
	ErrNotWaitingToStart = fmt.Errorf("%w: game is not waiting to start", ErrRule)
	ErrNotYourTurn       = fmt.Errorf("%w: not this player's turn", ErrRule)
	ErrPositionOccupied  = fmt.Errorf("%w: board position is not empty", ErrRule)
	ErrInvalidMove       = fmt.Errorf("%w: invalid move", ErrRule)
	ErrStartNotSupported = fmt.Errorf("%w: this game starts automatically", ErrRule)
	ErrMalformedMove     = fmt.Errorf("%w: malformed move", ErrRule)
)

// Result is the recorded outcome of a finished game, scored per player ID.
type Result struct {
	GameID string         `json:"gameID"`
	Scores map[string]int `json:"scores"`
}

// Instance is one game played inside a game area.
type Instance interface {
	ID() string
	Kind() Kind
	Status() Status
	// Winner returns the winning player ID, or "" for none or a tie.
	Winner() string
	Players() []string
	Join(playerID string) error
	Leave(playerID string) error
	Start(playerID string) error
	ApplyMove(playerID string, move json.RawMessage) error
	// Snapshot returns the serializable game state.
	Snapshot() any
	// Result returns the outcome once the game is OVER, or nil.
	Result() *Result
}

// New creates a fresh instance of kind. prior is the previous game in the same
// area, used by ConnectFour to alternate the first player; it may be nil.
//
// Postcondition: Returns an instance in StatusWaitingForPlayers, or an error for an unknown kind.
func New(kind Kind, id string, prior Instance) (Instance, error) {
	switch kind {
	case KindTicTacToe:
		return NewTicTacToe(id), nil
	case KindConnectFour:
		p, _ := prior.(*ConnectFour)
		return NewConnectFour(id, p), nil
	default:
		return nil, fmt.Errorf("unknown game kind %q", kind)
	}
}

// base holds the bookkeeping shared by every game variant.
type base struct {
	id     string
	status Status
	winner string
	result *Result
}

func (b *base) ID() string      { return b.id }
func (b *base) Status() Status  { return b.status }
func (b *base) Winner() string  { return b.winner }
func (b *base) Result() *Result { return b.result }

// finish moves the game to OVER and records scores for both seats.
func (b *base) finish(winner string, seats ...string) {
	b.status = StatusOver
	b.winner = winner
	scores := make(map[string]int, len(seats))
	for _, s := range seats {
		if s == "" {
			continue
		}
		if s == winner {
			scores[s] = 1
		} else {
			scores[s] = 0
		}
	}
	b.result = &Result{GameID: b.id, Scores: scores}
}

func decodeMove(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return ErrMalformedMove
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMove, err)
	}
	return nil
}

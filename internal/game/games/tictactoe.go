package games

import "encoding/json"

// TicTacToeMove places a piece on the 3x3 board.
type TicTacToeMove struct {
	GamePiece string `json:"gamePiece"`
	Row       int    `json:"row"`
	Col       int    `json:"col"`
}

// TicTacToeState is the serializable state of a TicTacToe game.
type TicTacToeState struct {
	Status Status          `json:"status"`
	Moves  []TicTacToeMove `json:"moves"`
	X      string          `json:"x,omitempty"`
	O      string          `json:"o,omitempty"`
	Winner string          `json:"winner,omitempty"`
}

// TicTacToe is a two-player game: the first joiner plays X and moves first.
type TicTacToe struct {
	base
	x, o  string
	moves []TicTacToeMove
	board [3][3]string
}

// NewTicTacToe creates an empty game.
func NewTicTacToe(id string) *TicTacToe {
	return &TicTacToe{base: base{id: id, status: StatusWaitingForPlayers}}
}

func (g *TicTacToe) Kind() Kind { return KindTicTacToe }

func (g *TicTacToe) Players() []string {
	var out []string
	for _, p := range []string{g.x, g.o} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (g *TicTacToe) Join(playerID string) error {
	if g.status == StatusOver {
		return ErrNotInProgress
	}
	if playerID == g.x || playerID == g.o {
		return ErrAlreadyInGame
	}
	switch {
	case g.x == "":
		g.x = playerID
	case g.o == "":
		g.o = playerID
	default:
		return ErrGameFull
	}
	if g.x != "" && g.o != "" {
		g.status = StatusInProgress
	}
	return nil
}

// Leave forfeits an in-progress game to the remaining player.
func (g *TicTacToe) Leave(playerID string) error {
	if playerID != g.x && playerID != g.o {
		return ErrNotInGame
	}
	switch g.status {
	case StatusInProgress:
		winner := g.o
		if playerID == g.o {
			winner = g.x
		}
		g.finish(winner, g.x, g.o)
	case StatusOver:
	default:
		if playerID == g.x {
			g.x = ""
		} else {
			g.o = ""
		}
		g.status = StatusWaitingForPlayers
	}
	return nil
}

func (g *TicTacToe) Start(string) error { return ErrStartNotSupported }

func (g *TicTacToe) ApplyMove(playerID string, raw json.RawMessage) error {
	var m TicTacToeMove
	if err := decodeMove(raw, &m); err != nil {
		return err
	}
	if g.status != StatusInProgress {
		return ErrNotInProgress
	}
	var piece string
	switch playerID {
	case g.x:
		piece = "X"
	case g.o:
		piece = "O"
	default:
		return ErrNotInGame
	}
	if m.GamePiece != "" && m.GamePiece != piece {
		return ErrInvalidMove
	}
	expected := "X"
	if len(g.moves)%2 == 1 {
		expected = "O"
	}
	if piece != expected {
		return ErrNotYourTurn
	}
	if m.Row < 0 || m.Row > 2 || m.Col < 0 || m.Col > 2 {
		return ErrInvalidMove
	}
	if g.board[m.Row][m.Col] != "" {
		return ErrPositionOccupied
	}
	m.GamePiece = piece
	g.board[m.Row][m.Col] = piece
	g.moves = append(g.moves, m)

	if g.lineComplete(piece) {
		g.finish(playerID, g.x, g.o)
	} else if len(g.moves) == 9 {
		g.finish("", g.x, g.o)
	}
	return nil
}

func (g *TicTacToe) lineComplete(p string) bool {
	b := g.board
	for i := 0; i < 3; i++ {
		if b[i][0] == p && b[i][1] == p && b[i][2] == p {
			return true
		}
		if b[0][i] == p && b[1][i] == p && b[2][i] == p {
			return true
		}
	}
	return (b[0][0] == p && b[1][1] == p && b[2][2] == p) ||
		(b[0][2] == p && b[1][1] == p && b[2][0] == p)
}

func (g *TicTacToe) Snapshot() any {
	moves := make([]TicTacToeMove, len(g.moves))
	copy(moves, g.moves)
	return TicTacToeState{Status: g.status, Moves: moves, X: g.x, O: g.o, Winner: g.winner}
}

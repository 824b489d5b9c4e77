package games

import "encoding/json"

// Board dimensions. Row 0 is the top of the board.
const (
	ConnectFourRows = 6
	ConnectFourCols = 7
)

// ConnectFour colors.
const (
	Red    = "Red"
	Yellow = "Yellow"
)

// ConnectFourMove drops a piece into a column. Row must be the landing row.
type ConnectFourMove struct {
	GamePiece string `json:"gamePiece"`
	Col       int    `json:"col"`
	Row       int    `json:"row"`
}

// ConnectFourState is the serializable state of a ConnectFour game.
type ConnectFourState struct {
	Status      Status            `json:"status"`
	Moves       []ConnectFourMove `json:"moves"`
	Red         string            `json:"red,omitempty"`
	Yellow      string            `json:"yellow,omitempty"`
	RedReady    bool              `json:"redReady"`
	YellowReady bool              `json:"yellowReady"`
	FirstPlayer string            `json:"firstPlayer"`
	Winner      string            `json:"winner,omitempty"`
}

// ConnectFour requires both seated players to start before play begins.
type ConnectFour struct {
	base
	red, yellow           string
	redReady, yellowReady bool
	firstPlayer           string
	moves                 []ConnectFourMove
	board                 [ConnectFourRows][ConnectFourCols]string
}

// NewConnectFour creates an empty game. The first player alternates relative to prior.
func NewConnectFour(id string, prior *ConnectFour) *ConnectFour {
	first := Red
	if prior != nil && prior.firstPlayer == Red {
		first = Yellow
	}
	return &ConnectFour{
		base:        base{id: id, status: StatusWaitingForPlayers},
		firstPlayer: first,
	}
}

func (g *ConnectFour) Kind() Kind { return KindConnectFour }

func (g *ConnectFour) Players() []string {
	var out []string
	for _, p := range []string{g.red, g.yellow} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (g *ConnectFour) Join(playerID string) error {
	if g.status == StatusOver || g.status == StatusInProgress {
		if playerID == g.red || playerID == g.yellow {
			return ErrAlreadyInGame
		}
		return ErrGameFull
	}
	if playerID == g.red || playerID == g.yellow {
		return ErrAlreadyInGame
	}
	switch {
	case g.red == "":
		g.red = playerID
	case g.yellow == "":
		g.yellow = playerID
	default:
		return ErrGameFull
	}
	if g.red != "" && g.yellow != "" {
		g.status = StatusWaitingToStart
	}
	return nil
}

// Start marks playerID ready; the game begins once both seats are ready.
func (g *ConnectFour) Start(playerID string) error {
	if g.status != StatusWaitingToStart {
		return ErrNotWaitingToStart
	}
	switch playerID {
	case g.red:
		g.redReady = true
	case g.yellow:
		g.yellowReady = true
	default:
		return ErrNotInGame
	}
	if g.redReady && g.yellowReady {
		g.status = StatusInProgress
	}
	return nil
}

func (g *ConnectFour) Leave(playerID string) error {
	if playerID != g.red && playerID != g.yellow {
		return ErrNotInGame
	}
	switch g.status {
	case StatusInProgress:
		winner := g.yellow
		if playerID == g.yellow {
			winner = g.red
		}
		g.finish(winner, g.red, g.yellow)
	case StatusOver:
	default:
		if playerID == g.red {
			g.red = ""
		} else {
			g.yellow = ""
		}
		g.redReady, g.yellowReady = false, false
		g.status = StatusWaitingForPlayers
	}
	return nil
}

func (g *ConnectFour) ApplyMove(playerID string, raw json.RawMessage) error {
	var m ConnectFourMove
	if err := decodeMove(raw, &m); err != nil {
		return err
	}
	if g.status != StatusInProgress {
		return ErrNotInProgress
	}
	var color string
	switch playerID {
	case g.red:
		color = Red
	case g.yellow:
		color = Yellow
	default:
		return ErrNotInGame
	}
	if m.GamePiece != "" && m.GamePiece != color {
		return ErrInvalidMove
	}
	expected := g.firstPlayer
	if len(g.moves)%2 == 1 {
		expected = other(g.firstPlayer)
	}
	if color != expected {
		return ErrNotYourTurn
	}
	if m.Col < 0 || m.Col >= ConnectFourCols {
		return ErrInvalidMove
	}
	landing := -1
	for r := ConnectFourRows - 1; r >= 0; r-- {
		if g.board[r][m.Col] == "" {
			landing = r
			break
		}
	}
	if landing < 0 {
		return ErrPositionOccupied
	}
	if m.Row != landing {
		return ErrInvalidMove
	}
	m.GamePiece = color
	g.board[m.Row][m.Col] = color
	g.moves = append(g.moves, m)

	if g.connects(m.Row, m.Col, color) {
		g.finish(playerID, g.red, g.yellow)
	} else if len(g.moves) == ConnectFourRows*ConnectFourCols {
		g.finish("", g.red, g.yellow)
	}
	return nil
}

// connects reports whether the piece at (row, col) completes four in a line.
func (g *ConnectFour) connects(row, col int, color string) bool {
	dirs := [][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}
	for _, d := range dirs {
		n := 1 + g.run(row, col, d[0], d[1], color) + g.run(row, col, -d[0], -d[1], color)
		if n >= 4 {
			return true
		}
	}
	return false
}

func (g *ConnectFour) run(row, col, dr, dc int, color string) int {
	n := 0
	for r, c := row+dr, col+dc; r >= 0 && r < ConnectFourRows && c >= 0 && c < ConnectFourCols; r, c = r+dr, c+dc {
		if g.board[r][c] != color {
			break
		}
		n++
	}
	return n
}

func other(color string) string {
	if color == Red {
		return Yellow
	}
	return Red
}

func (g *ConnectFour) Snapshot() any {
	moves := make([]ConnectFourMove, len(g.moves))
	copy(moves, g.moves)
	return ConnectFourState{
		Status:      g.status,
		Moves:       moves,
		Red:         g.red,
		Yellow:      g.yellow,
		RedReady:    g.redReady,
		YellowReady: g.yellowReady,
		FirstPlayer: g.firstPlayer,
		Winner:      g.winner,
	}
}

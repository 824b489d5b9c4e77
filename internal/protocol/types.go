package protocol

import (
	"encoding/json"
	"time"

	"github.com/cory-johannsen/covey/internal/geom"
)

// Direction is the way a player sprite faces.
type Direction string

// Facing directions.
const (
	Front Direction = "front"
	Back  Direction = "back"
	Left  Direction = "left"
	Right Direction = "right"
)

// Valid reports whether d is one of the four facings.
func (d Direction) Valid() bool {
	switch d {
	case Front, Back, Left, Right:
		return true
	}
	return false
}

// Location is a player's position and pose.
type Location struct {
	X              float64   `json:"x"`
	Y              float64   `json:"y"`
	Rotation       Direction `json:"rotation"`
	Moving         bool      `json:"moving"`
	InteractableID string    `json:"interactableID,omitempty"`
}

// Point returns the map coordinate of l.
func (l Location) Point() geom.Point { return geom.Point{X: l.X, Y: l.Y} }

// DefaultLocation is where a newly joined player appears.
func DefaultLocation() Location {
	return Location{Rotation: Front}
}

// Player is the public view of a connected player.
type Player struct {
	ID       string   `json:"id"`
	UserName string   `json:"userName"`
	Location Location `json:"location"`
}

// EquippedPet is a pet following its owner around the map.
type EquippedPet struct {
	Type     string   `json:"type"`
	PlayerID string   `json:"playerID"`
	Location Location `json:"location"`
	SpriteID string   `json:"spriteID,omitempty"`
}

// Emote is a transient reaction displayed above a player.
type Emote struct {
	ID       string   `json:"id"`
	PlayerID string   `json:"playerID"`
	Emote    string   `json:"emote"`
	Location Location `json:"location"`
}

// Area is the broadcast form of an interactable area. State holds the
// variant-specific fields.
type Area struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Occupants []string        `json:"occupants"`
	State     json.RawMessage `json:"state,omitempty"`
}

// ChatMessage is one chat line. InteractableID scopes it to an area; empty is town-wide.
type ChatMessage struct {
	ID             string    `json:"id"`
	Author         string    `json:"author"`
	Body           string    `json:"body"`
	InteractableID string    `json:"interactableID,omitempty"`
	Sent           time.Time `json:"dateCreated"`
}

// JoinRequest is the first frame a client sends.
type JoinRequest struct {
	TownID   string `json:"townID"`
	UserName string `json:"userName"`
}

// Initialize is the snapshot sent to a client once it has joined.
type Initialize struct {
	UserID           string        `json:"userID"`
	SessionToken     string        `json:"sessionToken"`
	TownID           string        `json:"townID"`
	FriendlyName     string        `json:"friendlyName"`
	IsPubliclyListed bool          `json:"isPubliclyListed"`
	Players          []Player      `json:"currentPlayers"`
	Pets             []EquippedPet `json:"currentPets"`
	Emotes           []Emote       `json:"currentEmotes"`
	Areas            []Area        `json:"interactables"`
}

// PetMovement moves the sender's equipped pet.
type PetMovement struct {
	Type     string   `json:"type"`
	PlayerID string   `json:"playerID"`
	Location Location `json:"location"`
}

// EmoteCreation is sent by a client to display an emote.
type EmoteCreation struct {
	Emote    string   `json:"emote"`
	Location Location `json:"location"`
}

// PetUnequipped announces that a player's pet stopped following them.
type PetUnequipped struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerID"`
}

// InsufficientCurrency is sent privately when a purchase cannot be afforded.
type InsufficientCurrency struct {
	PlayerID string `json:"playerID"`
	PetType  string `json:"petType"`
	Price    int64  `json:"price"`
	Balance  int64  `json:"balance"`
}

// CurrencyChanged is sent privately after a player's balance changes.
type CurrencyChanged struct {
	PlayerID string `json:"playerID"`
	Balance  int64  `json:"balance"`
}

// LeaderboardRow is one player's standing. UserName is empty for a player
// who is no longer connected.
type LeaderboardRow struct {
	PlayerID string `json:"playerID"`
	UserName string `json:"username,omitempty"`
	Currency int64  `json:"currency"`
}

// Leaderboard lists balances, highest first. PlayerIDs repeats the row order.
type Leaderboard struct {
	PlayerIDs []string         `json:"currencyPlayerIDs"`
	Rows      []LeaderboardRow `json:"currencyDetails"`
}

// NewLeaderboard builds a Leaderboard from rows already in rank order.
func NewLeaderboard(rows []LeaderboardRow) Leaderboard {
	b := Leaderboard{PlayerIDs: make([]string, 0, len(rows)), Rows: make([]LeaderboardRow, 0, len(rows))}
	for _, r := range rows {
		b.PlayerIDs = append(b.PlayerIDs, r.PlayerID)
		b.Rows = append(b.Rows, r)
	}
	return b
}

// Leaderboards pairs the all-time board with the board of connected players.
type Leaderboards struct {
	AllTime Leaderboard `json:"allTime"`
	Current Leaderboard `json:"current"`
}

// TownSettings are the mutable public settings of a town.
type TownSettings struct {
	FriendlyName     string `json:"friendlyName"`
	IsPubliclyListed bool   `json:"isPubliclyListed"`
}

// ErrorEvent reports a rejected frame to its sender.
type ErrorEvent struct {
	Message string `json:"message"`
}

// ViewingState is the playback state of a viewing area.
type ViewingState struct {
	Video          string  `json:"video,omitempty"`
	IsPlaying      bool    `json:"isPlaying"`
	ElapsedTimeSec float64 `json:"elapsedTimeSec"`
}

// ConversationState is the state of a conversation area.
type ConversationState struct {
	Topic string `json:"topic,omitempty"`
}

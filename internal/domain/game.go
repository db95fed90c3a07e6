package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// GameMode selects the legal move range of a game.
type GameMode uint8

const (
	ModeQuickDraw GameMode = 0
	ModeStrategic GameMode = 1
)

func (m GameMode) String() string {
	switch m {
	case ModeQuickDraw:
		return "quick_draw"
	case ModeStrategic:
		return "strategic"
	default:
		return "unknown"
	}
}

func (m GameMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *GameMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "quick_draw":
		*m = ModeQuickDraw
	case "strategic":
		*m = ModeStrategic
	default:
		return fmt.Errorf("unknown game mode %q", b)
	}
	return nil
}

// GameStatus mirrors the contract's status enum. StatusCancelled never comes
// from getGame; it is set locally after a GameCancelled log.
type GameStatus uint8

const (
	StatusWaiting   GameStatus = 0
	StatusActive    GameStatus = 1
	StatusFinished  GameStatus = 2
	StatusCancelled GameStatus = 3
)

func (s GameStatus) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusActive:
		return "active"
	case StatusFinished:
		return "finished"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s GameStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *GameStatus) UnmarshalText(b []byte) error {
	for _, st := range []GameStatus{StatusWaiting, StatusActive, StatusFinished, StatusCancelled} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown game status %q", b)
}

// Terminal reports whether no further transitions are possible.
func (s GameStatus) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// CanAdvanceTo reports whether next is reachable from s. Statuses never move
// backwards; Cancelled is only reachable from Waiting.
func (s GameStatus) CanAdvanceTo(next GameStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusWaiting:
		return next == StatusActive || next == StatusCancelled || next == StatusFinished
	case StatusActive:
		return next == StatusFinished
	default:
		return false
	}
}

const (
	// TurnWindow is the contract-enforced time per move.
	TurnWindow = 90 * time.Second

	// MaxTimeouts is how many timeouts a player may accrue before the game
	// can be resolved by force.
	MaxTimeouts = 2

	// InactivityLimit after which anyone may force-finish an Active game.
	InactivityLimit = time.Hour

	// MaxPlayers per game.
	MaxPlayers = 2
)

// Game is the local mirror of a contract game. Amounts stay in wei.
type Game struct {
	ID              uint64           `json:"game_id"`
	Mode            GameMode         `json:"mode"`
	Status          GameStatus       `json:"status"`
	CurrentNumber   uint64           `json:"current_number"`
	CurrentPlayer   common.Address   `json:"current_player"`
	Players         []common.Address `json:"players"`
	EntryFee        *big.Int         `json:"entry_fee"`
	PrizePool       *big.Int         `json:"prize_pool"`
	Winner          common.Address   `json:"winner"`
	NumberGenerated bool             `json:"number_generated"`
	CreatedAt       time.Time        `json:"created_at"`
	LastMoveAt      time.Time        `json:"last_move_at"`
}

// Clone returns a deep copy so cached snapshots are never mutated in place.
func (g Game) Clone() Game {
	c := g
	if g.Players != nil {
		c.Players = append([]common.Address(nil), g.Players...)
	}
	if g.EntryFee != nil {
		c.EntryFee = new(big.Int).Set(g.EntryFee)
	}
	if g.PrizePool != nil {
		c.PrizePool = new(big.Int).Set(g.PrizePool)
	}
	return c
}

// HasPlayer reports whether addr participates in the game.
func (g Game) HasPlayer(addr common.Address) bool {
	if addr == (common.Address{}) {
		return false
	}
	for _, p := range g.Players {
		if p == addr {
			return true
		}
	}
	return false
}

// Creator is Players[0] by construction.
func (g Game) Creator() common.Address {
	if len(g.Players) == 0 {
		return common.Address{}
	}
	return g.Players[0]
}

// Opponent returns the participant that is not addr. ok is false when the
// game does not have exactly two distinct players or addr is not one of them.
func (g Game) Opponent(addr common.Address) (common.Address, bool) {
	if len(g.Players) != MaxPlayers || g.Players[0] == g.Players[1] {
		return common.Address{}, false
	}
	switch addr {
	case g.Players[0]:
		return g.Players[1], true
	case g.Players[1]:
		return g.Players[0], true
	default:
		return common.Address{}, false
	}
}

// InactiveFor reports whether an Active game has seen no move for longer than
// InactivityLimit, which makes it force-finishable by anyone.
func (g Game) InactiveFor(now time.Time) bool {
	if g.Status != StatusActive || g.LastMoveAt.IsZero() {
		return false
	}
	return now.Sub(g.LastMoveAt) > InactivityLimit
}

// PlayerView is the viewer-scoped turn state. Only meaningful for
// participants of an Active game.
type PlayerView struct {
	YourTurn         bool           `json:"your_turn"`
	TimeLeft         uint64         `json:"time_left"`
	YourTimeouts     uint8          `json:"your_timeouts"`
	OpponentTimeouts uint8          `json:"opponent_timeouts"`
	GameStuck        bool           `json:"game_stuck"`
	StuckPlayer      common.Address `json:"stuck_player"`
}

// EligibleForForcedResolution is true once either side hit MaxTimeouts.
func (v PlayerView) EligibleForForcedResolution() bool {
	return v.YourTimeouts >= MaxTimeouts || v.OpponentTimeouts >= MaxTimeouts
}

// UserGames is the result of a "which games am I in" lookup.
type UserGames struct {
	GameIDs []uint64 `json:"game_ids"`
	Total   uint64   `json:"total"`
	Source  string   `json:"source"`
}

const (
	SourceIndexed = "indexed"
	SourceScan    = "scan"
)

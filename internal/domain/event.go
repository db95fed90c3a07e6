package domain

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a contract log.
type EventKind string

const (
	EventGameCreated     EventKind = "GameCreated"
	EventPlayerJoined    EventKind = "PlayerJoined"
	EventMoveMade        EventKind = "MoveMade"
	EventGameFinished    EventKind = "GameFinished"
	EventNumberGenerated EventKind = "NumberGenerated"
	EventTimeoutHandled  EventKind = "TimeoutHandled"
	EventGameCancelled   EventKind = "GameCancelled"
)

// AllEventKinds in the order the contract declares them.
var AllEventKinds = []EventKind{
	EventGameCreated,
	EventPlayerJoined,
	EventMoveMade,
	EventGameFinished,
	EventNumberGenerated,
	EventTimeoutHandled,
	EventGameCancelled,
}

// Event is a decoded contract log. Only the fields relevant to Kind are set.
type Event struct {
	Kind   EventKind `json:"type"`
	GameID uint64    `json:"game_id"`

	Player       common.Address `json:"player,omitempty"`
	Subtraction  uint64         `json:"subtraction,omitempty"`
	NewNumber    uint64         `json:"new_number,omitempty"`
	Winner       common.Address `json:"winner,omitempty"`
	Prize        *big.Int       `json:"prize,omitempty"`
	Number       uint64         `json:"number,omitempty"`
	TimeoutCount uint8          `json:"timeout_count,omitempty"`
	Mode         GameMode       `json:"mode"`
	EntryFee     *big.Int       `json:"entry_fee,omitempty"`

	BlockNumber uint64      `json:"block_number"`
	TxHash      common.Hash `json:"transaction_hash"`
	LogIndex    uint        `json:"log_index"`
}

// Key identifies one log emission. Redelivered logs share the same key.
func (e Event) Key() string {
	return e.TxHash.Hex() + ":" + strconv.FormatUint(uint64(e.LogIndex), 10)
}

// Terminal reports whether the event ends the game.
func (e Event) Terminal() bool {
	return e.Kind == EventGameFinished || e.Kind == EventGameCancelled
}

// Involves reports whether addr is the actor of the event.
func (e Event) Involves(addr common.Address) bool {
	if addr == (common.Address{}) {
		return false
	}
	return e.Player == addr || e.Winner == addr
}

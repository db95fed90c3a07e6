package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMove  = errors.New("invalid move")
	ErrGameNotLive  = errors.New("game is not active")
	ErrNumberNotSet = errors.New("starting number not generated yet")
)

// MoveRange is an inclusive range of legal subtractions.
type MoveRange struct {
	Min uint64 `json:"min"`
	Max uint64 `json:"max"`
}

func (r MoveRange) Contains(sub uint64) bool {
	return sub >= r.Min && sub <= r.Max
}

// LegalMoves returns the subtraction range allowed for mode at currentNumber.
//
// QuickDraw only ever allows 1. Strategic allows [max(1, ceil(n/10)), floor(3n/10)],
// and collapses to [1,1] when that range is empty (small n).
func LegalMoves(mode GameMode, currentNumber uint64) MoveRange {
	if mode != ModeStrategic {
		return MoveRange{Min: 1, Max: 1}
	}

	lo := (currentNumber + 9) / 10
	if lo < 1 {
		lo = 1
	}
	hi := currentNumber * 3 / 10

	if hi < lo {
		return MoveRange{Min: 1, Max: 1}
	}
	return MoveRange{Min: lo, Max: hi}
}

// ValidateMove is the local fast-fail check done before a makeMove
// transaction is submitted. The contract re-validates authoritatively.
func ValidateMove(g Game, sub uint64) error {
	if g.Status != StatusActive {
		return ErrGameNotLive
	}
	if !g.NumberGenerated {
		return ErrNumberNotSet
	}
	r := LegalMoves(g.Mode, g.CurrentNumber)
	if !r.Contains(sub) {
		return fmt.Errorf("%w: %d not in [%d,%d] for %s at %d", ErrInvalidMove, sub, r.Min, r.Max, g.Mode, g.CurrentNumber)
	}
	return nil
}

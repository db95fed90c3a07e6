package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLegalMoves(t *testing.T) {
	cases := []struct {
		name string
		mode GameMode
		n    uint64
		want MoveRange
	}{
		{"quickdraw large", ModeQuickDraw, 1000, MoveRange{1, 1}},
		{"quickdraw one", ModeQuickDraw, 1, MoveRange{1, 1}},
		{"strategic 100", ModeStrategic, 100, MoveRange{10, 30}},
		{"strategic 15 rounds min up", ModeStrategic, 15, MoveRange{2, 4}},
		{"strategic 5", ModeStrategic, 5, MoveRange{1, 1}},
		{"strategic 1 collapses", ModeStrategic, 1, MoveRange{1, 1}},
		{"strategic 0 collapses", ModeStrategic, 0, MoveRange{1, 1}},
		{"strategic 7", ModeStrategic, 7, MoveRange{1, 2}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, LegalMoves(tc.mode, tc.n))
		})
	}
}

func TestStrategicCollapseFires(t *testing.T) {
	// n=1: ceil(0.1)=1, floor(0.3)=0, so the raw range is inverted.
	if hi := uint64(1) * 3 / 10; hi >= 1 {
		t.Fatalf("expected raw upper bound below lower bound, got %d", hi)
	}
	assert.Equal(t, MoveRange{Min: 1, Max: 1}, LegalMoves(ModeStrategic, 1))
}

func TestValidateMoveQuickDrawOnlyAcceptsOne(t *testing.T) {
	g := Game{Mode: ModeQuickDraw, Status: StatusActive, NumberGenerated: true}
	for _, n := range []uint64{1, 2, 42, 500} {
		g.CurrentNumber = n
		for _, sub := range []uint64{0, 1, 2, 3, 10} {
			err := ValidateMove(g, sub)
			if sub == 1 {
				assert.NoError(t, err, "n=%d sub=%d", n, sub)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidMove), "n=%d sub=%d", n, sub)
			}
		}
	}
}

func TestValidateMoveRequiresActiveGame(t *testing.T) {
	g := Game{Mode: ModeStrategic, Status: StatusWaiting, CurrentNumber: 100}
	assert.ErrorIs(t, ValidateMove(g, 10), ErrGameNotLive)

	g.Status = StatusActive
	assert.ErrorIs(t, ValidateMove(g, 10), ErrNumberNotSet)

	g.NumberGenerated = true
	assert.NoError(t, ValidateMove(g, 10))
	assert.ErrorIs(t, ValidateMove(g, 31), ErrInvalidMove)
	assert.ErrorIs(t, ValidateMove(g, 9), ErrInvalidMove)
}

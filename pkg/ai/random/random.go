package random

import (
	"golang.org/x/exp/rand"

	"github.com/montplusa/rlchess/pkg/ai/policy"
	"github.com/montplusa/rlchess/pkg/game"
)

// RandomAI is the no-op baseline: noise values and argmax selection.
type RandomAI struct {
	rng *rand.Rand
}

// New returns a RandomAI whose noise is drawn from a source seeded with seed.
func New(seed uint64) *RandomAI {
	return &RandomAI{rng: rand.New(rand.NewSource(seed))}
}

// Predict ignores the board and returns one of -1, -0.8, ..., 0.8.
func (r *RandomAI) Predict(game.LayerBoard) (float64, error) {
	return float64(r.rng.Intn(10)-5) / 5, nil
}

// SelectMove returns the move with the largest value, whatever the side to move.
func (r *RandomAI) SelectMove(moves []game.Move, values []float64) (game.Move, error) {
	if err := policy.Check(moves, values); err != nil {
		return nil, err
	}
	return moves[policy.Argmax(values)], nil
}

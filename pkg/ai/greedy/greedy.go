package greedy

import (
	"golang.org/x/exp/rand"

	"github.com/montplusa/rlchess/pkg/ai/policy"
	"github.com/montplusa/rlchess/pkg/game"
)

const (
	pawnValue  = 1
	rookValue  = 5
	minorValue = 3
	queenValue = 9

	// maxMaterial normalises the material balance
	maxMaterial = 40

	noiseStdDev = 1e-3
)

// GreedyAI scores positions by material balance and picks the best successor.
type GreedyAI struct {
	color game.Color
	rng   *rand.Rand
}

// New returns a GreedyAI playing color. color must be game.White or game.Black.
func New(color game.Color, seed uint64) *GreedyAI {
	return &GreedyAI{color: color, rng: rand.New(rand.NewSource(seed))}
}

func (g *GreedyAI) Color() game.Color {
	return g.color
}

// Material returns the weighted piece balance of board divided by 40, seen from g's side.
func (g *GreedyAI) Material(board game.LayerBoard) float64 {
	material := pawnValue*board.PlaneSum(game.PawnPlane) +
		rookValue*board.PlaneSum(game.RookPlane) +
		minorValue*(board.PlaneSum(game.KnightPlane)+board.PlaneSum(game.BishopPlane)) +
		queenValue*board.PlaneSum(game.QueenPlane)
	return float64(g.color) * material / maxMaterial
}

// EvaluateBoard returns Material plus, when noise is set, a small Gaussian
// perturbation that breaks ties between equal-material successors.
func (g *GreedyAI) EvaluateBoard(board game.LayerBoard, noise bool) float64 {
	var perturbation float64
	if noise {
		perturbation = g.rng.NormFloat64() * noiseStdDev
	}
	return g.Material(board) + perturbation
}

// Predict evaluates board with tie-breaking noise.
func (g *GreedyAI) Predict(board game.LayerBoard) (float64, error) {
	return g.EvaluateBoard(board, true), nil
}

// SelectMove orients values to g's side and returns the argmax.
func (g *GreedyAI) SelectMove(moves []game.Move, values []float64) (game.Move, error) {
	if err := policy.Check(moves, values); err != nil {
		return nil, err
	}
	return moves[policy.Argmax(policy.Orient(values, g.color))], nil
}

// Package policy turns successor values into move choices.
package policy

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/montplusa/rlchess/pkg/game"
)

// Orient returns color*values, so that larger means better for color.
func Orient(values []float64, color game.Color) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	floats.Scale(float64(color), out)
	return out
}

// Argmax returns the index of the largest value. Ties go to the lowest index.
func Argmax(values []float64) int {
	return floats.MaxIdx(values)
}

// Softmax returns exp(v_i/T) / sum_j exp(v_j/T). The largest scaled value
// is subtracted before exponentiating and the result is renormalised, so
// it sums to one for any finite input and ignores a constant shift.
func Softmax(values []float64, temperature float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v / temperature
	}
	top := floats.Max(out)
	for i, v := range out {
		out[i] = math.Exp(v - top)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// Sample draws an index from the distribution probs using src.
func Sample(probs []float64, src rand.Source) int {
	return int(distuv.NewCategorical(probs, src).Rand())
}

// Check validates a SelectMove call.
func Check(moves []game.Move, values []float64) error {
	if len(moves) == 0 {
		return game.ErrNoMoves
	}
	if len(moves) != len(values) {
		return game.ErrLengthMismatch
	}
	return nil
}

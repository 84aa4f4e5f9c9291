package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"github.com/montplusa/rlchess/pkg/game"
)

func TestSoftmax(t *testing.T) {
	inputs := [][]float64{
		{0.1, -0.2, 0.05},
		{0, 0, 0, 0},
		{700, 701, 702},
		{-1e3, 0, 1e3},
		{42},
		{1e11, 1e11},
		{1e15, 1e15, 1e15},
		{1e17, 1e17},
		{-1e17, 0, 1e17},
	}

	t.Run("sums to one", func(t *testing.T) {
		for _, in := range inputs {
			p := Softmax(in, 1)
			require.InDelta(t, 1.0, floats.Sum(p), 1e-6, "input %v", in)
			for _, v := range p {
				require.GreaterOrEqual(t, v, 0.0)
			}
		}
	})

	t.Run("invariant to a constant shift", func(t *testing.T) {
		for _, in := range inputs {
			shifted := make([]float64, len(in))
			for i, v := range in {
				shifted[i] = v + 123.5
			}
			require.InDeltaSlice(t, Softmax(in, 1), Softmax(shifted, 1), 1e-9)
		}
	})

	t.Run("matches the definition", func(t *testing.T) {
		p := Softmax([]float64{0, 1}, 1)
		e := 2.718281828459045
		require.InDelta(t, 1/(1+e), p[0], 1e-12)
		require.InDelta(t, e/(1+e), p[1], 1e-12)
	})

	t.Run("equal large values share the mass", func(t *testing.T) {
		require.InDeltaSlice(t, []float64{0.5, 0.5}, Softmax([]float64{1e17, 1e17}, 1), 1e-12)
		require.InDeltaSlice(t, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, Softmax([]float64{1e15, 1e15, 1e15}, 1), 1e-12)
	})

	t.Run("lower temperature sharpens", func(t *testing.T) {
		in := []float64{0.1, 0.3, 0.2}
		require.Greater(t, Softmax(in, 0.1)[1], Softmax(in, 1)[1])
	})
}

func TestArgmax(t *testing.T) {
	require.Equal(t, 0, Argmax([]float64{0.1, -0.2, 0.05}))
	require.Equal(t, 1, Argmax([]float64{1, 3, 3}), "ties go to the first index")
}

func TestOrient(t *testing.T) {
	values := []float64{0.1, -0.2, 0.05, 0.7, -0.9}

	t.Run("black flips the ranking", func(t *testing.T) {
		require.Equal(t, floats.MinIdx(values), Argmax(Orient(values, game.Black)))
	})

	t.Run("white keeps the ranking", func(t *testing.T) {
		require.Equal(t, floats.MaxIdx(values), Argmax(Orient(values, game.White)))
	})

	t.Run("input untouched", func(t *testing.T) {
		Orient(values, game.Black)
		require.Equal(t, 0.1, values[0])
	})
}

func TestSample(t *testing.T) {
	src := rand.NewSource(7)

	t.Run("certain outcome", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			require.Equal(t, 2, Sample([]float64{0, 0, 1}, src))
		}
	})

	t.Run("follows the distribution", func(t *testing.T) {
		counts := make([]int, 2)
		for i := 0; i < 4000; i++ {
			counts[Sample([]float64{0.25, 0.75}, src)]++
		}
		require.InDelta(t, 3000, counts[1], 200)
	})
}

func TestCheck(t *testing.T) {
	require.ErrorIs(t, Check(nil, nil), game.ErrNoMoves)
	require.ErrorIs(t, Check([]game.Move{"a", "b"}, []float64{1}), game.ErrLengthMismatch)
	require.NoError(t, Check([]game.Move{"a"}, []float64{1}))
}

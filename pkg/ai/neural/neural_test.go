package neural

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/montplusa/rlchess/pkg/game"
	"github.com/montplusa/rlchess/pkg/nn"
)

// linearNet values a board as scale*pawns + bias. Each fitting epoch moves
// the bias by one.
type linearNet struct {
	scale, bias float64
	fits        []int
	sampled     []bool
	predictErr  error
}

func (l *linearNet) Predict(boards []game.LayerBoard, sampling bool) ([]float64, error) {
	if l.predictErr != nil {
		return nil, l.predictErr
	}
	if err := nn.CheckBoards(boards); err != nil {
		return nil, err
	}
	l.sampled = append(l.sampled, sampling)
	values := make([]float64, len(boards))
	for i := range boards {
		values[i] = l.scale*boards[i].PlaneSum(game.PawnPlane) + l.bias
	}
	return values, nil
}

func (l *linearNet) Fit(boards []game.LayerBoard, targets []float64, epochs int) error {
	if err := nn.CheckTargets(boards, targets); err != nil {
		return err
	}
	l.fits = append(l.fits, epochs)
	l.bias += float64(epochs)
	return nil
}

func (l *linearNet) Clone() (nn.Network, error) {
	return &linearNet{scale: l.scale, bias: l.bias}, nil
}

func pawns(n int) game.LayerBoard {
	var b game.LayerBoard
	for i := 0; i < n; i++ {
		b[game.PawnPlane][1][i] = 1
	}
	return b
}

func newTestAgent(t *testing.T, net nn.Network, mutate func(*Config)) *Agent {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Seed = 5
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(net, cfg)
	require.NoError(t, err)
	return a
}

func TestNew(t *testing.T) {
	_, err := New(&linearNet{}, Config{Color: 0, Temperature: 1})
	require.ErrorIs(t, err, ErrInvalidColor)

	_, err = New(&linearNet{}, Config{Color: game.Black, Temperature: 0})
	require.ErrorIs(t, err, ErrTemperature)

	_, err = New(nil, DefaultConfig())
	require.Error(t, err)

	a := newTestAgent(t, &linearNet{}, func(c *Config) { c.Color = game.Black; c.Name = "b" })
	require.Equal(t, game.Black, a.Color())
	require.Equal(t, "neural (b)", a.Name())
	require.Nil(t, a.Frozen())
}

func TestPredict(t *testing.T) {
	net := &linearNet{scale: 0.5, bias: 0.1}
	a := newTestAgent(t, net, func(c *Config) { c.Sampling = false })

	v, err := a.Predict(pawns(3))
	require.NoError(t, err)
	require.InDelta(t, 1.6, v, 1e-12)
	require.Equal(t, []bool{false}, net.sampled)

	values, err := a.PredictBatch([]game.LayerBoard{pawns(0), pawns(2)})
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{0.1, 1.1}, values, 1e-12)

	net.predictErr = errors.New("broken")
	_, err = a.Predict(pawns(1))
	require.ErrorIs(t, err, net.predictErr)
}

func TestFixModel(t *testing.T) {
	net := &linearNet{scale: 1, bias: 0.25}
	a := newTestAgent(t, net, nil)

	require.NoError(t, a.FixModel())
	frozen := a.Frozen().(*linearNet)
	require.NotSame(t, net, frozen)
	require.Equal(t, 0.25, frozen.bias)

	net.bias = 3
	require.Equal(t, 0.25, frozen.bias)

	require.NoError(t, a.FixModel())
	require.Equal(t, 3.0, a.Frozen().(*linearNet).bias)
}

func TestTDUpdate(t *testing.T) {
	states := []game.LayerBoard{pawns(1), pawns(2)}
	successors := []game.LayerBoard{pawns(2), pawns(4)}
	rewards := []float64{0.5, -1}

	t.Run("requires a fixed model", func(t *testing.T) {
		a := newTestAgent(t, &linearNet{}, nil)
		_, err := a.TDUpdate(states, rewards, successors, []bool{true, true}, game.DefaultGamma)
		require.ErrorIs(t, err, ErrNotFixed)
	})

	t.Run("terminal transitions target the reward", func(t *testing.T) {
		net := &linearNet{scale: 1}
		a := newTestAgent(t, net, nil)
		require.NoError(t, a.FixModel())

		u, err := a.TDUpdate(states, rewards, successors, []bool{false, false}, game.DefaultGamma)
		require.NoError(t, err)
		require.Equal(t, rewards, u.Targets)
		require.InDeltaSlice(t, []float64{-0.5, -3}, u.Errors, 1e-12)
	})

	t.Run("bootstraps from the frozen network", func(t *testing.T) {
		net := &linearNet{scale: 1}
		a := newTestAgent(t, net, nil)
		require.NoError(t, a.FixModel())
		// the live network moves on, the frozen copy does not
		net.bias = 10

		u, err := a.TDUpdate(states, []float64{0, 0}, successors, []bool{true, true}, game.DefaultGamma)
		require.NoError(t, err)
		require.InDeltaSlice(t, []float64{0.9 * 2, 0.9 * 4}, u.Targets, 1e-12)
		require.InDeltaSlice(t, []float64{1.8 - 11, 3.6 - 12}, u.Errors, 1e-12)

		require.Equal(t, []int{1}, net.fits)
		require.Equal(t, 11.0, net.bias)
		frozen := a.Frozen().(*linearNet)
		require.Empty(t, frozen.fits)
		require.Equal(t, 0.0, frozen.bias)
	})

	t.Run("mixed flags", func(t *testing.T) {
		a := newTestAgent(t, &linearNet{scale: 1}, nil)
		require.NoError(t, a.FixModel())

		u, err := a.TDUpdate(states, rewards, successors, []bool{true, false}, 0.5)
		require.NoError(t, err)
		require.InDeltaSlice(t, []float64{0.5 + 0.5*2, -1}, u.Targets, 1e-12)
	})

	t.Run("length mismatch", func(t *testing.T) {
		a := newTestAgent(t, &linearNet{}, nil)
		require.NoError(t, a.FixModel())

		_, err := a.TDUpdate(states, rewards, successors[:1], []bool{true, true}, game.DefaultGamma)
		require.ErrorIs(t, err, nn.ErrShape)
		_, err = a.TDUpdate(states, rewards[:1], successors, []bool{true, true}, game.DefaultGamma)
		require.Error(t, err)
	})
}

func TestMCUpdate(t *testing.T) {
	net := &linearNet{scale: 1, bias: 0.5}
	a := newTestAgent(t, net, nil)
	states := []game.LayerBoard{pawns(0), pawns(3)}
	returns := []float64{1, -1}

	u, err := a.MCUpdate(states, returns)
	require.NoError(t, err)
	require.Equal(t, returns, u.Targets)
	require.InDeltaSlice(t, []float64{0.5, -4.5}, u.Errors, 1e-12)
	require.Equal(t, []int{0}, net.fits)
	require.Equal(t, 0.5, net.bias)

	_, err = a.MCUpdate(states, returns[:1])
	require.ErrorIs(t, err, nn.ErrShape)
}

func TestSelectMove(t *testing.T) {
	moves := []game.Move{"a", "b", "c"}
	values := []float64{-50, 0, 50}

	t.Run("white prefers high values", func(t *testing.T) {
		a := newTestAgent(t, &linearNet{}, nil)
		for i := 0; i < 20; i++ {
			m, err := a.SelectMove(moves, values)
			require.NoError(t, err)
			require.Equal(t, "c", m)
		}
	})

	t.Run("black prefers low values", func(t *testing.T) {
		a := newTestAgent(t, &linearNet{}, func(c *Config) { c.Color = game.Black })
		for i := 0; i < 20; i++ {
			m, err := a.SelectMove(moves, values)
			require.NoError(t, err)
			require.Equal(t, "a", m)
		}
	})

	t.Run("high temperature explores", func(t *testing.T) {
		a := newTestAgent(t, &linearNet{}, nil)
		require.NoError(t, a.SetTemperature(1e6))
		seen := map[game.Move]bool{}
		for i := 0; i < 200; i++ {
			m, err := a.SelectMove(moves, values)
			require.NoError(t, err)
			seen[m] = true
		}
		require.Len(t, seen, 3)
	})

	t.Run("rejects a non-positive temperature", func(t *testing.T) {
		a := newTestAgent(t, &linearNet{}, nil)
		for _, temp := range []float64{0, -1, math.NaN(), math.Inf(1)} {
			require.ErrorIs(t, a.SetTemperature(temp), ErrTemperature)
		}
		m, err := a.SelectMove([]game.Move{"a", "b", "c"}, []float64{0.1, -0.2, 0.05})
		require.NoError(t, err)
		require.Contains(t, []game.Move{"a", "b", "c"}, m)
	})

	t.Run("non-finite values", func(t *testing.T) {
		a := newTestAgent(t, &linearNet{}, nil)
		for _, bad := range [][]float64{
			{0.1, math.NaN(), 0.05},
			{math.Inf(1), 0, 0},
			{math.Inf(1), math.Inf(1), 0},
		} {
			_, err := a.SelectMove(moves, bad)
			require.ErrorIs(t, err, ErrNotFinite, "values %v", bad)
		}
	})

	t.Run("tiny temperature picks the best move", func(t *testing.T) {
		a := newTestAgent(t, &linearNet{}, nil)
		require.NoError(t, a.SetTemperature(1e-300))
		m, err := a.SelectMove(moves, []float64{0.1, -0.2, 0.05})
		require.NoError(t, err)
		require.Equal(t, "a", m)
	})

	t.Run("invalid input", func(t *testing.T) {
		a := newTestAgent(t, &linearNet{}, nil)
		_, err := a.SelectMove(nil, nil)
		require.ErrorIs(t, err, game.ErrNoMoves)
		_, err = a.SelectMove(moves, values[:2])
		require.ErrorIs(t, err, game.ErrLengthMismatch)
	})
}

func TestTDTargets(t *testing.T) {
	targets, err := TDTargets([]float64{1, 2}, []float64{10, 10}, []bool{true, false}, 0.9)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{10, 2}, targets, 1e-12)

	_, err = TDTargets([]float64{1}, []float64{1, 2}, []bool{true}, 0.9)
	require.Error(t, err)

	require.Equal(t, []float64{1, -2}, TDErrors([]float64{1, 0}, []float64{0, 2}))
}

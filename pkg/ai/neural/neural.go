// Package neural implements the network agent: value predictions from a live
// network, TD targets bootstrapped from a frozen copy of it, and softmax
// move sampling for exploration during self-play.
package neural

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"github.com/montplusa/rlchess/pkg/ai/policy"
	"github.com/montplusa/rlchess/pkg/game"
	"github.com/montplusa/rlchess/pkg/nn"
)

var (
	ErrInvalidColor = errors.New("neural: color must be white (+1) or black (-1)")
	ErrNotFixed     = errors.New("neural: frozen network not initialised, call FixModel first")
	ErrTemperature  = errors.New("neural: temperature must be positive and finite")
	ErrNotFinite    = errors.New("neural: move probabilities are not finite")
)

// Config holds the agent settings. Network hyperparameters live in the
// network's own configuration.
type Config struct {
	Name        string
	Color       game.Color
	Temperature float64 // softmax temperature of SelectMove
	Sampling    bool    // keep dropout on when predicting
	Seed        uint64
}

func DefaultConfig() Config {
	return Config{
		Name:        "default",
		Color:       game.White,
		Temperature: 1.0,
		Sampling:    true,
	}
}

// Agent is a value-function agent backed by a live network and, once
// FixModel has been called, a frozen copy used for bootstrapping.
type Agent struct {
	config Config
	live   nn.Network
	frozen nn.Network
	rng    *rand.Rand
}

// New creates an agent training live.
func New(live nn.Network, config Config) (*Agent, error) {
	if live == nil {
		return nil, errors.New("neural: nil network")
	}
	if !config.Color.Valid() {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidColor, config.Color)
	}
	if err := checkTemperature(config.Temperature); err != nil {
		return nil, err
	}
	return &Agent{
		config: config,
		live:   live,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}, nil
}

func (a *Agent) Name() string {
	return fmt.Sprintf("neural (%s)", a.config.Name)
}

func (a *Agent) Color() game.Color {
	return a.config.Color
}

// SetTemperature sets the softmax temperature used by SelectMove.
func (a *Agent) SetTemperature(temp float64) error {
	if err := checkTemperature(temp); err != nil {
		return err
	}
	a.config.Temperature = temp
	return nil
}

func checkTemperature(temp float64) error {
	if !(temp > 0) || math.IsInf(temp, 1) {
		return fmt.Errorf("%w: got %v", ErrTemperature, temp)
	}
	return nil
}

// Live returns the trainable network.
func (a *Agent) Live() nn.Network {
	return a.live
}

// Frozen returns the bootstrap network, nil before the first FixModel.
func (a *Agent) Frozen() nn.Network {
	return a.frozen
}

// FixModel replaces the frozen network with a deep copy of the live one.
func (a *Agent) FixModel() error {
	frozen, err := a.live.Clone()
	if err != nil {
		return fmt.Errorf("neural: copy live network: %w", err)
	}
	if c, ok := a.frozen.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Str("agent", a.Name()).Msg("closing previous frozen network")
		}
	}
	a.frozen = frozen
	log.Debug().Str("agent", a.Name()).Msg("fixed model")
	return nil
}

// Predict returns the live network's value of board.
func (a *Agent) Predict(board game.LayerBoard) (float64, error) {
	values, err := a.PredictBatch([]game.LayerBoard{board})
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// PredictBatch returns the live network's values of boards.
func (a *Agent) PredictBatch(boards []game.LayerBoard) ([]float64, error) {
	values, err := a.live.Predict(boards, a.config.Sampling)
	if err != nil {
		return nil, fmt.Errorf("neural: predict: %w", err)
	}
	return values, nil
}

// SelectMove samples a move from the softmax of the successor values seen
// from the agent's side.
func (a *Agent) SelectMove(moves []game.Move, values []float64) (game.Move, error) {
	if err := policy.Check(moves, values); err != nil {
		return nil, err
	}
	probs := policy.Softmax(policy.Orient(values, a.config.Color), a.config.Temperature)
	if floats.HasNaN(probs) {
		return nil, fmt.Errorf("%w: values %v at temperature %v", ErrNotFinite, values, a.config.Temperature)
	}
	return moves[policy.Sample(probs, a.rng)], nil
}

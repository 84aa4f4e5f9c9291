package game

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Env is the environment an agent probes. Step applies a move, Pop takes back
// the last applied move and InitLayerBoard recomputes the tensor encoding.
type Env interface {
	Step(move Move) (episodeEnded bool, reward float64, err error)
	Pop() error
	InitLayerBoard()
	LayerBoard() LayerBoard
}

// Evaluate returns reward + gamma*V(successor) for move without committing it:
// the environment is restored to its prior state on every exit path once the
// move was applied. Calls against the same env must not overlap.
func Evaluate(agent Agent, move Move, env Env, gamma float64) (value float64, err error) {
	err = stepAndUndo(env, move, func(reward float64) error {
		successor, err := agent.Predict(env.LayerBoard())
		if err != nil {
			return fmt.Errorf("predict successor: %w", err)
		}
		value = reward + gamma*successor
		return nil
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// stepAndUndo applies move, runs probe on the resulting position and takes
// the move back, even when probe fails or panics.
func stepAndUndo(env Env, move Move, probe func(reward float64) error) (err error) {
	_, reward, err := env.Step(move)
	if err != nil {
		return fmt.Errorf("step: %w", err)
	}
	defer func() {
		if perr := env.Pop(); perr != nil {
			err = errors.Join(err, fmt.Errorf("undo move: %w", perr))
			return
		}
		env.InitLayerBoard()
	}()
	return probe(reward)
}

// ChooseMove evaluates every move with a one-ply lookahead and lets the agent
// select among them. It returns the chosen move and the successor values.
func ChooseMove(agent Agent, env Env, moves []Move, gamma float64) (Move, []float64, error) {
	if len(moves) == 0 {
		return nil, nil, ErrNoMoves
	}

	values := make([]float64, len(moves))
	for i, m := range moves {
		v, err := Evaluate(agent, m, env, gamma)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluate move %d: %w", i, err)
		}
		log.Debug().Int("move", i).Interface("token", m).Float64("value", v).Msg("evaluated move")
		values[i] = v
	}

	chosen, err := agent.SelectMove(moves, values)
	if err != nil {
		return nil, nil, fmt.Errorf("select move: %w", err)
	}

	ev := log.Debug().Interface("move", chosen)
	if c, ok := agent.(Colored); ok {
		ev = ev.Stringer("color", c.Color())
	}
	ev.Msg("selected move")

	return chosen, values, nil
}

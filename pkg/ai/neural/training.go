package neural

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/montplusa/rlchess/pkg/game"
	"github.com/montplusa/rlchess/pkg/nn"
)

// monteCarloEpochs is the number of fitting passes MCUpdate makes. It is
// zero: MCUpdate only measures errors against full returns. Callers that
// want to fit returns call Live().Fit with a positive epoch count.
const monteCarloEpochs = 0

// Update is the outcome of a learning update.
type Update struct {
	Targets []float64
	Errors  []float64 // target minus the live estimate before the fit
}

// TDUpdate fits the live network for one epoch towards
// reward + active*gamma*frozen(successor) and returns the targets with the
// errors of the pre-fit live estimates.
func (a *Agent) TDUpdate(states []game.LayerBoard, rewards []float64, successors []game.LayerBoard, active []bool, gamma float64) (Update, error) {
	if a.frozen == nil {
		return Update{}, ErrNotFixed
	}
	if len(successors) != len(states) {
		return Update{}, fmt.Errorf("neural: %d states, %d successors: %w", len(states), len(successors), nn.ErrShape)
	}

	// frozen and live are independent parameter sets
	var successorValues, estimates []float64
	var g errgroup.Group
	g.Go(func() (err error) {
		successorValues, err = a.frozen.Predict(successors, a.config.Sampling)
		if err != nil {
			err = fmt.Errorf("neural: predict successors: %w", err)
		}
		return err
	})
	g.Go(func() (err error) {
		estimates, err = a.live.Predict(states, a.config.Sampling)
		if err != nil {
			err = fmt.Errorf("neural: predict states: %w", err)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return Update{}, err
	}

	targets, err := TDTargets(rewards, successorValues, active, gamma)
	if err != nil {
		return Update{}, err
	}
	if err := a.live.Fit(states, targets, 1); err != nil {
		return Update{}, fmt.Errorf("neural: fit: %w", err)
	}

	u := Update{Targets: targets, Errors: TDErrors(targets, estimates)}
	log.Debug().Str("agent", a.Name()).Int("batch", len(states)).Float64("mse", meanSquare(u.Errors)).Msg("td update")
	return u, nil
}

// MCUpdate returns the errors of the live network against full-episode
// returns. The live network is not changed.
func (a *Agent) MCUpdate(states []game.LayerBoard, returns []float64) (Update, error) {
	if err := a.live.Fit(states, returns, monteCarloEpochs); err != nil {
		return Update{}, fmt.Errorf("neural: fit: %w", err)
	}
	estimates, err := a.PredictBatch(states)
	if err != nil {
		return Update{}, err
	}

	u := Update{Targets: append([]float64(nil), returns...), Errors: TDErrors(returns, estimates)}
	log.Debug().Str("agent", a.Name()).Int("batch", len(states)).Float64("mse", meanSquare(u.Errors)).Msg("mc update")
	return u, nil
}

// Package nn defines the position evaluator contract shared by the network
// implementations in its subpackages.
package nn

import (
	"github.com/pkg/errors"

	"github.com/montplusa/rlchess/pkg/game"
)

var (
	ErrEmptyBatch = errors.New("nn: empty batch")
	ErrShape      = errors.New("nn: boards and targets differ in length")
	ErrReadOnly   = errors.New("nn: network cannot be trained")
)

// Network maps positions to scalar value estimates.
type Network interface {
	// Predict runs a forward pass over boards. With sampling set, stochastic
	// layers such as dropout stay active, so repeated calls may differ.
	Predict(boards []game.LayerBoard, sampling bool) ([]float64, error)

	// Fit reduces the squared error against targets for the given number of
	// passes over the data. Zero epochs leaves the parameters untouched.
	Fit(boards []game.LayerBoard, targets []float64, epochs int) error

	// Clone returns an independent deep copy of the network parameters.
	Clone() (Network, error)
}

// CheckBoards validates a Predict batch.
func CheckBoards(boards []game.LayerBoard) error {
	if len(boards) == 0 {
		return ErrEmptyBatch
	}
	return nil
}

// CheckTargets validates a Fit batch.
func CheckTargets(boards []game.LayerBoard, targets []float64) error {
	if err := CheckBoards(boards); err != nil {
		return err
	}
	if len(targets) != len(boards) {
		return errors.Wrapf(ErrShape, "%d boards, %d targets", len(boards), len(targets))
	}
	return nil
}

// Package mlp is a dense value network over the flattened position tensor,
// built on go-deep. It has no dropout, so sampling predictions are
// deterministic.
package mlp

import (
	"io"

	"github.com/patrikeh/go-deep"
	"github.com/patrikeh/go-deep/training"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/montplusa/rlchess/pkg/game"
	"github.com/montplusa/rlchess/pkg/nn"
)

// Config defines the network architecture
type Config struct {
	Name         string
	HiddenLayers []int
	LearningRate float64
	BatchSize    int
	Weights      [][][]float64 // optional pre-trained weights
}

func DefaultConfig() Config {
	return Config{
		Name:         "default",
		HiddenLayers: []int{128, 64, 32},
		LearningRate: 0.003,
		BatchSize:    32,
	}
}

func (c Config) validate() error {
	if len(c.HiddenLayers) == 0 {
		return errors.New("mlp: at least one hidden layer is required")
	}
	if c.LearningRate <= 0 || c.BatchSize <= 0 {
		return errors.New("mlp: learning rate and batch size must be positive")
	}
	return nil
}

// Network implements nn.Network with a go-deep regression network.
type Network struct {
	network *deep.Neural
	config  Config
	solver  *adam
	trainer *training.BatchTrainer
}

// adam keeps go-deep's Adam moments and step count across Fit calls. The
// batch trainer initialises its solver and restarts counting epochs at one
// on every Train.
type adam struct {
	training.Solver
	size   int
	epochs int
}

func (a *adam) Init(size int) {
	if a.size == size {
		return
	}
	a.size = size
	a.Solver.Init(size)
}

func (a *adam) Update(value, gradient float64, iteration, idx int) float64 {
	return a.Solver.Update(value, gradient, a.epochs+iteration, idx)
}

func newNetwork(network *deep.Neural, config Config) *Network {
	solver := &adam{Solver: training.NewAdam(config.LearningRate, 0.9, 0.999, 1e-8)}
	return &Network{
		network: network,
		config:  config,
		solver:  solver,
		trainer: training.NewBatchTrainer(solver, 0, config.BatchSize, 1),
	}
}

var _ nn.Network = (*Network)(nil)

// New creates a new network with optional pre-trained weights
func New(config Config) (*Network, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	layers := append(append([]int{}, config.HiddenLayers...), 1) // single value output
	network := deep.NewNeural(&deep.Config{
		Inputs:     game.BoardSize,
		Layout:     layers,
		Activation: deep.ActivationSigmoid,
		Mode:       deep.ModeRegression, // linear output neuron
		Weight:     deep.NewNormal(0.1, 0.0),
		Loss:       deep.LossMeanSquared,
		Bias:       true,
	})

	if config.Weights != nil {
		network.ApplyWeights(config.Weights)
	}

	return newNetwork(network, config), nil
}

func (m *Network) Name() string {
	return "mlp (" + m.config.Name + ")"
}

// Predict evaluates each board. sampling has no effect.
func (m *Network) Predict(boards []game.LayerBoard, sampling bool) ([]float64, error) {
	if err := nn.CheckBoards(boards); err != nil {
		return nil, err
	}
	values := make([]float64, len(boards))
	features := make([]float64, 0, game.BoardSize)
	for i := range boards {
		features = boards[i].Flatten(features[:0])
		values[i] = m.network.Predict(features)[0]
	}
	return values, nil
}

// Fit trains with Adam in minibatches for the given number of epochs.
func (m *Network) Fit(boards []game.LayerBoard, targets []float64, epochs int) error {
	if err := nn.CheckTargets(boards, targets); err != nil {
		return err
	}
	if epochs == 0 {
		return nil
	}

	examples := make(training.Examples, len(boards))
	for i := range boards {
		examples[i] = training.Example{
			Input:    boards[i].Flatten(nil),
			Response: []float64{targets[i]},
		}
	}

	m.trainer.Train(m.network, examples, nil, epochs)
	m.solver.epochs += epochs

	log.Debug().Str("network", m.Name()).Int("samples", len(examples)).Int("epochs", epochs).Msg("mlp fit done")
	return nil
}

// Clone rebuilds the network from a dump of its weights with fresh
// optimiser state.
func (m *Network) Clone() (nn.Network, error) {
	config := m.config
	config.Weights = m.network.Weights()
	return New(config)
}

// Save writes the network as go-deep JSON.
func (m *Network) Save(w io.Writer) error {
	data, err := m.network.Marshal()
	if err != nil {
		return errors.Wrap(err, "mlp: marshal")
	}
	_, err = w.Write(data)
	return errors.Wrap(err, "mlp: write")
}

// Load reads a network written by Save. Only the name and training
// hyperparameters are taken from config.
func Load(r io.Reader, config Config) (*Network, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "mlp: read")
	}
	network, err := deep.Unmarshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "mlp: unmarshal")
	}
	if network.Config.Inputs != game.BoardSize {
		return nil, errors.Errorf("mlp: network expects %d inputs, positions have %d", network.Config.Inputs, game.BoardSize)
	}
	config.HiddenLayers = network.Config.Layout[:len(network.Config.Layout)-1]
	config.Weights = nil
	if err := config.validate(); err != nil {
		return nil, err
	}
	return newNetwork(network, config), nil
}

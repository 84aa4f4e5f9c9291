// Package convnet is the convolutional position evaluator. File, rank,
// quarter-board and large-window extractors run in parallel on the raw
// position next to a stack of 3x3 convolutions; their flattened maps feed a
// sigmoid dense stack ending in a single linear value neuron.
package convnet

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/montplusa/rlchess/pkg/game"
	"github.com/montplusa/rlchess/pkg/nn"
)

// Network is a gorgonia implementation of nn.Network.
// It is not safe for concurrent use.
type Network struct {
	cfg      Config
	params   []*param
	solver   G.Solver
	rng      *rand.Rand
	sessions map[sessionKey]*session
	clock    uint64 // session use counter
}

var _ nn.Network = (*Network)(nil)

// New creates a network with freshly initialised weights.
func New(cfg Config) (*Network, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	return newNetwork(cfg, newParams(cfg, rng), rng), nil
}

func newNetwork(cfg Config, params []*param, rng *rand.Rand) *Network {
	return &Network{
		cfg:      cfg,
		params:   params,
		solver:   G.NewAdamSolver(G.WithLearnRate(cfg.LearningRate)),
		rng:      rng,
		sessions: make(map[sessionKey]*session),
	}
}

func (n *Network) Config() Config {
	return n.cfg
}

// NumParams returns the number of learnable scalars.
func (n *Network) NumParams() int {
	var total int
	for _, p := range n.params {
		total += p.value.Size()
	}
	return total
}

// Predict evaluates a batch of positions.
func (n *Network) Predict(boards []game.LayerBoard, sampling bool) ([]float64, error) {
	if err := nn.CheckBoards(boards); err != nil {
		return nil, err
	}
	m := inferMode
	if sampling {
		m = sampleMode
	}
	s, err := n.session(len(boards), m)
	if err != nil {
		return nil, err
	}
	if err := s.bind(n.params, boardTensor(boards), nil); err != nil {
		return nil, err
	}
	defer s.vm.Reset()
	if err := s.vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "convnet: forward")
	}
	return s.output(), nil
}

// Fit trains on shuffled minibatches of Config.BatchSize for the given number of epochs.
func (n *Network) Fit(boards []game.LayerBoard, targets []float64, epochs int) error {
	if err := nn.CheckTargets(boards, targets); err != nil {
		return err
	}
	order := make([]int, len(boards))
	for i := range order {
		order[i] = i
	}
	for epoch := 1; epoch <= epochs; epoch++ {
		n.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		var total float64
		for start := 0; start < len(order); start += n.cfg.BatchSize {
			idx := order[start:min(start+n.cfg.BatchSize, len(order))]
			loss, err := n.step(boards, targets, idx)
			if err != nil {
				return errors.Wrapf(err, "convnet: epoch %d", epoch)
			}
			total += loss * float64(len(idx))
		}
		log.Debug().Int("epoch", epoch).Int("samples", len(order)).Float64("loss", total/float64(len(order))).Msg("convnet epoch done")
	}
	return nil
}

// step runs one Adam update on the samples at idx and returns their loss.
func (n *Network) step(boards []game.LayerBoard, targets []float64, idx []int) (float64, error) {
	batch := make([]game.LayerBoard, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		batch[i] = boards[j]
		ys[i] = targets[j]
	}
	s, err := n.session(len(idx), trainMode)
	if err != nil {
		return 0, err
	}
	y := tensor.New(tensor.WithShape(len(idx), 1), tensor.WithBacking(ys))
	if err := s.bind(n.params, boardTensor(batch), y); err != nil {
		return 0, err
	}
	defer s.vm.Reset()
	if err := s.vm.RunAll(); err != nil {
		return 0, errors.Wrap(err, "forward/backward")
	}
	loss := s.loss()
	if err := n.solver.Step(G.NodesToValueGrads(s.learnables)); err != nil {
		return 0, errors.Wrap(err, "adam step")
	}
	// The solver updates node values; keep the shared parameters in sync in
	// case the machine bound copies.
	for i, p := range n.params {
		if v, ok := s.learnables[i].Value().(*tensor.Dense); ok && v != p.value {
			copy(p.value.Float64s(), v.Float64s())
		}
	}
	return loss, nil
}

// Clone returns a network with a deep copy of the parameters and fresh
// optimiser state.
func (n *Network) Clone() (nn.Network, error) {
	return newNetwork(n.cfg, cloneParams(n.params), rand.New(rand.NewSource(n.cfg.Seed))), nil
}

// Close releases the compiled graphs.
func (n *Network) Close() error {
	var err error
	for key, s := range n.sessions {
		if cerr := s.vm.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "convnet: close")
		}
		delete(n.sessions, key)
	}
	return err
}

func boardTensor(boards []game.LayerBoard) *tensor.Dense {
	return tensor.New(
		tensor.WithShape(len(boards), game.Planes, game.Ranks, game.Files),
		tensor.WithBacking(game.FlattenBatch(boards)),
	)
}

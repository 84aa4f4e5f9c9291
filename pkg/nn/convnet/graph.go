package convnet

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/montplusa/rlchess/pkg/game"
)

type mode int

const (
	inferMode  mode = iota // deterministic forward pass
	sampleMode             // hidden dropout kept on
	trainMode              // every dropout on, loss and gradients
)

func (m mode) String() string {
	switch m {
	case inferMode:
		return "infer"
	case sampleMode:
		return "sample"
	default:
		return "train"
	}
}

// maxSessions bounds the compiled graphs a Network keeps. The least recently
// used one is closed to make room.
const maxSessions = 8

type sessionKey struct {
	batch int
	mode  mode
}

// session is a compiled graph for one batch size and mode.
type session struct {
	g          *G.ExprGraph
	x          *G.Node
	y          *G.Node
	out        *G.Node
	cost       *G.Node
	learnables G.Nodes // same order as Network.params
	vm         G.VM
	lastUsed   uint64
}

func (n *Network) session(batch int, m mode) (*session, error) {
	n.clock++
	key := sessionKey{batch: batch, mode: m}
	if s, ok := n.sessions[key]; ok {
		s.lastUsed = n.clock
		return s, nil
	}
	if len(n.sessions) >= maxSessions {
		if err := n.evict(); err != nil {
			return nil, err
		}
	}
	s, err := n.build(batch, m)
	if err != nil {
		return nil, errors.Wrapf(err, "convnet: build %s graph for batch %d", m, batch)
	}
	s.lastUsed = n.clock
	n.sessions[key] = s
	log.Debug().Int("batch", batch).Stringer("mode", m).Int("nodes", len(s.g.AllNodes())).Msg("compiled network graph")
	return s, nil
}

// evict closes the least recently used session.
func (n *Network) evict() error {
	var oldest sessionKey
	found := false
	for key, s := range n.sessions {
		if !found || s.lastUsed < n.sessions[oldest].lastUsed {
			oldest, found = key, true
		}
	}
	if !found {
		return nil
	}
	s := n.sessions[oldest]
	delete(n.sessions, oldest)
	log.Debug().Int("batch", oldest.batch).Stringer("mode", oldest.mode).Msg("evicted network graph")
	return errors.Wrap(s.vm.Close(), "convnet: close evicted graph")
}

func (n *Network) build(batch int, m mode) (*session, error) {
	g := G.NewGraph()
	s := &session{g: g}
	s.x = G.NewTensor(g, tensor.Float64, 4,
		G.WithShape(batch, game.Planes, game.Ranks, game.Files), G.WithName("state"))

	nodes := make(map[string]*G.Node, len(n.params))
	for _, p := range n.params {
		node := G.NewTensor(g, tensor.Float64, p.value.Dims(),
			G.WithShape(p.value.Shape().Clone()...), G.WithName(p.name), G.WithValue(p.value))
		nodes[p.name] = node
		s.learnables = append(s.learnables, node)
	}

	maps := map[string]*G.Node{"": s.x}
	var flats G.Nodes
	for _, spec := range n.cfg.convs() {
		c, err := G.Conv2d(maps[spec.from], nodes[spec.name+"/w"],
			tensor.Shape{spec.kernel[0], spec.kernel[1]},
			[]int{0, 0}, []int{spec.stride, spec.stride}, []int{1, 1})
		if err != nil {
			return nil, errors.Wrapf(err, "%s", spec.name)
		}
		if c, err = G.BroadcastAdd(c, nodes[spec.name+"/b"], nil, []byte{0, 2, 3}); err != nil {
			return nil, errors.Wrapf(err, "%s bias", spec.name)
		}
		if c, err = G.LeakyRelu(c, n.cfg.LeakAlpha); err != nil {
			return nil, errors.Wrapf(err, "%s activation", spec.name)
		}
		maps[spec.name] = c
		if !spec.keep {
			continue
		}
		flat, err := G.Reshape(c, tensor.Shape{batch, c.Shape().TotalSize() / batch})
		if err != nil {
			return nil, errors.Wrapf(err, "%s flatten", spec.name)
		}
		flats = append(flats, flat)
	}

	h, err := G.Concat(1, flats...)
	if err != nil {
		return nil, errors.Wrap(err, "concat features")
	}
	if m == trainMode && n.cfg.InputDropout > 0 {
		if h, err = G.Dropout(h, n.cfg.InputDropout); err != nil {
			return nil, errors.Wrap(err, "input dropout")
		}
	}
	for i := range n.cfg.Hidden {
		name := denseName(i)
		if h, err = dense(h, nodes[name+"/w"], nodes[name+"/b"]); err != nil {
			return nil, errors.Wrap(err, name)
		}
		if h, err = G.Sigmoid(h); err != nil {
			return nil, errors.Wrapf(err, "%s activation", name)
		}
		if i > 0 && m != inferMode && n.cfg.HiddenDropout > 0 {
			if h, err = G.Dropout(h, n.cfg.HiddenDropout); err != nil {
				return nil, errors.Wrapf(err, "%s dropout", name)
			}
		}
	}
	if s.out, err = dense(h, nodes["value/w"], nodes["value/b"]); err != nil {
		return nil, errors.Wrap(err, "value head")
	}

	if m != trainMode {
		s.vm = G.NewTapeMachine(g)
		return s, nil
	}

	s.y = G.NewMatrix(g, tensor.Float64, G.WithShape(batch, 1), G.WithName("target"))
	diff, err := G.Sub(s.out, s.y)
	if err != nil {
		return nil, errors.Wrap(err, "loss")
	}
	sq, err := G.Square(diff)
	if err != nil {
		return nil, errors.Wrap(err, "loss")
	}
	if s.cost, err = G.Mean(sq); err != nil {
		return nil, errors.Wrap(err, "loss")
	}
	if _, err = G.Grad(s.cost, s.learnables...); err != nil {
		return nil, errors.Wrap(err, "gradients")
	}
	s.vm = G.NewTapeMachine(g, G.BindDualValues(s.learnables...))
	return s, nil
}

// dense computes x·w + b with b broadcast over the batch.
func dense(x, w, b *G.Node) (*G.Node, error) {
	xw, err := G.Mul(x, w)
	if err != nil {
		return nil, err
	}
	return G.BroadcastAdd(xw, b, nil, []byte{0})
}

// bind points the parameter nodes at the network's current values and sets
// the input (and target) tensors.
func (s *session) bind(params []*param, x, y *tensor.Dense) error {
	for i, p := range params {
		if err := G.Let(s.learnables[i], p.value); err != nil {
			return errors.Wrapf(err, "bind %s", p.name)
		}
	}
	if err := G.Let(s.x, x); err != nil {
		return errors.Wrap(err, "bind state")
	}
	if y != nil {
		if err := G.Let(s.y, y); err != nil {
			return errors.Wrap(err, "bind target")
		}
	}
	return nil
}

// output copies the value head of the last run.
func (s *session) output() []float64 {
	return append([]float64(nil), s.out.Value().Data().([]float64)...)
}

// loss returns the mean squared error of the last training run.
func (s *session) loss() float64 {
	switch v := s.cost.Value().Data().(type) {
	case float64:
		return v
	case []float64:
		return v[0]
	}
	return 0
}

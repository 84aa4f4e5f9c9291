package convnet

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"
)

// param is one learnable tensor. Sessions bind these values to their graph
// nodes, so every compiled graph of a Network sees the same parameters.
type param struct {
	name  string
	value *tensor.Dense
}

func denseName(i int) string {
	return fmt.Sprintf("dense%d", i+1)
}

// newParams allocates the parameters of cfg with Glorot-uniform weights and
// zero biases.
func newParams(cfg Config, rng *rand.Rand) []*param {
	var params []*param
	add := func(name string, fanIn, fanOut int, shape ...int) {
		t := tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(shape...))
		if fanIn > 0 {
			limit := math.Sqrt(6 / float64(fanIn+fanOut))
			data := t.Float64s()
			for i := range data {
				data[i] = (2*rng.Float64() - 1) * limit
			}
		}
		params = append(params, &param{name: name, value: t})
	}

	shapes := cfg.shapes()
	for _, spec := range cfg.convs() {
		in := shapes[spec.from].channels
		area := spec.kernel[0] * spec.kernel[1]
		add(spec.name+"/w", in*area, spec.filters*area, spec.filters, in, spec.kernel[0], spec.kernel[1])
		add(spec.name+"/b", 0, 0, 1, spec.filters, 1, 1)
	}

	width := cfg.FeatureWidth()
	for i, h := range cfg.Hidden {
		add(denseName(i)+"/w", width, h, width, h)
		add(denseName(i)+"/b", 0, 0, 1, h)
		width = h
	}
	add("value/w", width, 1, width, 1)
	add("value/b", 0, 0, 1, 1)
	return params
}

func cloneParams(params []*param) []*param {
	out := make([]*param, len(params))
	for i, p := range params {
		out[i] = &param{name: p.name, value: p.value.Clone().(*tensor.Dense)}
	}
	return out
}

type snapshot struct {
	Config Config        `json:"config"`
	Params []paramRecord `json:"params"`
}

type paramRecord struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Save writes the configuration and parameters of n as JSON.
func (n *Network) Save(w io.Writer) error {
	snap := snapshot{Config: n.cfg}
	for _, p := range n.params {
		snap.Params = append(snap.Params, paramRecord{
			Name:  p.name,
			Shape: []int(p.value.Shape().Clone()),
			Data:  append([]float64(nil), p.value.Float64s()...),
		})
	}
	return errors.Wrap(json.NewEncoder(w).Encode(snap), "convnet: encode")
}

// Load reads a network written by Save.
func Load(r io.Reader) (*Network, error) {
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, errors.Wrap(err, "convnet: decode")
	}
	n, err := New(snap.Config)
	if err != nil {
		return nil, err
	}
	if len(snap.Params) != len(n.params) {
		return nil, errors.Errorf("convnet: snapshot has %d parameters, architecture needs %d", len(snap.Params), len(n.params))
	}
	for i, rec := range snap.Params {
		p := n.params[i]
		if rec.Name != p.name || !tensor.Shape(rec.Shape).Eq(p.value.Shape()) || len(rec.Data) != p.value.Size() {
			return nil, errors.Errorf("convnet: parameter %q %v does not match %q %v", rec.Name, rec.Shape, p.name, p.value.Shape())
		}
		copy(p.value.Float64s(), rec.Data)
	}
	return n, nil
}

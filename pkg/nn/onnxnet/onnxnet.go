// Package onnxnet runs a pretrained value network exported to ONNX, such as
// a converted model of the convolutional evaluator. It can only predict.
package onnxnet

import (
	"github.com/owulveryck/onnx-go"
	"github.com/owulveryck/onnx-go/backend/x/gorgonnx"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/montplusa/rlchess/pkg/game"
	"github.com/montplusa/rlchess/pkg/nn"
)

// Network evaluates positions one at a time through the gorgonnx backend.
type Network struct {
	data    []byte
	model   *onnx.Model
	backend *gorgonnx.Graph
}

var _ nn.Network = (*Network)(nil)

// New decodes an ONNX model taking a (1, 8, 8, 8) float32 position.
func New(data []byte) (*Network, error) {
	backend := gorgonnx.NewGraph()
	model := onnx.NewModel(backend)
	if err := model.UnmarshalBinary(data); err != nil {
		return nil, errors.Wrap(err, "onnxnet: decode model")
	}
	return &Network{data: data, model: model, backend: backend}, nil
}

// Predict runs the model on every board. The exported graph fixes dropout
// off, so sampling is ignored.
func (o *Network) Predict(boards []game.LayerBoard, sampling bool) ([]float64, error) {
	if err := nn.CheckBoards(boards); err != nil {
		return nil, err
	}
	values := make([]float64, len(boards))
	for i := range boards {
		v, err := o.predictOne(&boards[i])
		if err != nil {
			return nil, errors.Wrapf(err, "onnxnet: board %d", i)
		}
		values[i] = v
	}
	return values, nil
}

func (o *Network) predictOne(board *game.LayerBoard) (float64, error) {
	input := make([]float32, 0, game.BoardSize)
	for _, v := range board.Flatten(make([]float64, 0, game.BoardSize)) {
		input = append(input, float32(v))
	}
	t := tensor.New(
		tensor.WithShape(1, game.Planes, game.Ranks, game.Files),
		tensor.WithBacking(input),
	)
	if err := o.model.SetInput(0, t); err != nil {
		return 0, errors.Wrap(err, "set input")
	}
	if err := o.backend.Run(); err != nil {
		return 0, errors.Wrap(err, "run")
	}
	outputs, err := o.model.GetOutputTensors()
	if err != nil {
		return 0, errors.Wrap(err, "get outputs")
	}
	if len(outputs) == 0 {
		return 0, errors.New("model has no outputs")
	}
	return scalar(outputs[0])
}

// scalar extracts the single value of a (), (1) or (1, 1) shaped output.
func scalar(t tensor.Tensor) (float64, error) {
	if t.Shape().TotalSize() != 1 {
		return 0, errors.Errorf("output shape %v is not a scalar", t.Shape())
	}
	var v interface{}
	switch data := t.Data().(type) {
	case []float32:
		v = data[0]
	case []float64:
		v = data[0]
	default:
		v = data
	}
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, errors.Errorf("unsupported output type %T", x)
	}
}

// Fit fails with nn.ErrReadOnly unless epochs is zero.
func (o *Network) Fit(boards []game.LayerBoard, targets []float64, epochs int) error {
	if err := nn.CheckTargets(boards, targets); err != nil {
		return err
	}
	if epochs == 0 {
		return nil
	}
	return nn.ErrReadOnly
}

// Clone decodes the model again into an independent graph.
func (o *Network) Clone() (nn.Network, error) {
	return New(o.data)
}

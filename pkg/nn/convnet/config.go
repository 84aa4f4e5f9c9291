package convnet

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/montplusa/rlchess/pkg/game"
)

// Config defines the network architecture and its training hyperparameters.
type Config struct {
	FileFilters    int   `json:"file_filters"`    // 8x1 kernel, one full file
	RankFilters    int   `json:"rank_filters"`    // 1x8 kernel, one full rank
	QuarterFilters int   `json:"quarter_filters"` // 4x4 kernel, stride 4
	LargeFilters   int   `json:"large_filters"`   // 6x6 kernel
	BoardFilters   []int `json:"board_filters"`   // stacked 3x3 kernels
	Hidden         []int `json:"hidden"`          // sigmoid dense layers

	InputDropout  float64 `json:"input_dropout"`  // on the feature vector, training only
	HiddenDropout float64 `json:"hidden_dropout"` // after every hidden layer but the first
	LeakAlpha     float64 `json:"leak_alpha"`

	LearningRate float64 `json:"learning_rate"`
	BatchSize    int     `json:"batch_size"`
	Seed         uint64  `json:"seed"`
}

func DefaultConfig() Config {
	return Config{
		FileFilters:    3,
		RankFilters:    3,
		QuarterFilters: 3,
		LargeFilters:   8,
		BoardFilters:   []int{16, 20, 24},
		Hidden:         []int{128, 64, 32},
		InputDropout:   0.1,
		HiddenDropout:  0.1,
		LeakAlpha:      0.1,
		LearningRate:   0.003,
		BatchSize:      32,
	}
}

func (c Config) validate() error {
	for _, f := range []int{c.FileFilters, c.RankFilters, c.QuarterFilters, c.LargeFilters} {
		if f <= 0 {
			return errors.New("convnet: extractor filter counts must be positive")
		}
	}
	if len(c.BoardFilters) == 0 {
		return errors.New("convnet: board stack needs at least one layer")
	}
	// 3x3 valid convolutions shrink the board by 2 each
	if len(c.BoardFilters) > (game.Ranks-1)/2 {
		return errors.Errorf("convnet: board stack of %d layers does not fit an %dx%d board", len(c.BoardFilters), game.Ranks, game.Files)
	}
	if len(c.Hidden) == 0 {
		return errors.New("convnet: at least one hidden layer is required")
	}
	for _, h := range append(append([]int{}, c.BoardFilters...), c.Hidden...) {
		if h <= 0 {
			return errors.New("convnet: layer widths must be positive")
		}
	}
	if c.InputDropout < 0 || c.InputDropout >= 1 || c.HiddenDropout < 0 || c.HiddenDropout >= 1 {
		return errors.New("convnet: dropout rates must be in [0, 1)")
	}
	if c.LearningRate <= 0 {
		return errors.New("convnet: learning rate must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("convnet: batch size must be positive")
	}
	return nil
}

// convSpec describes one convolution. from names the layer it reads, the
// empty string being the input position.
type convSpec struct {
	name    string
	from    string
	filters int
	kernel  [2]int // height (ranks), width (files)
	stride  int
	keep    bool // flattened into the feature vector
}

// convs lists the convolutions in evaluation order: four extractors on the
// raw input, then the board stack of which the first and last stage are kept.
func (c Config) convs() []convSpec {
	specs := []convSpec{
		{name: "fileconv", filters: c.FileFilters, kernel: [2]int{game.Ranks, 1}, stride: 1, keep: true},
		{name: "rankconv", filters: c.RankFilters, kernel: [2]int{1, game.Files}, stride: 1, keep: true},
		{name: "quarterconv", filters: c.QuarterFilters, kernel: [2]int{4, 4}, stride: 4, keep: true},
		{name: "largeconv", filters: c.LargeFilters, kernel: [2]int{6, 6}, stride: 1, keep: true},
	}
	from := ""
	last := len(c.BoardFilters) - 1
	for i, f := range c.BoardFilters {
		name := fmt.Sprintf("board%d", i+1)
		specs = append(specs, convSpec{
			name:    name,
			from:    from,
			filters: f,
			kernel:  [2]int{3, 3},
			stride:  1,
			keep:    i == 0 || i == last,
		})
		from = name
	}
	return specs
}

// mapShape is a feature map shape without the batch axis.
type mapShape struct {
	channels, height, width int
}

func (s mapShape) size() int { return s.channels * s.height * s.width }

// shapes returns the output shape of every convolution, by name.
func (c Config) shapes() map[string]mapShape {
	out := map[string]mapShape{"": {game.Planes, game.Ranks, game.Files}}
	for _, spec := range c.convs() {
		in := out[spec.from]
		out[spec.name] = mapShape{
			channels: spec.filters,
			height:   (in.height-spec.kernel[0])/spec.stride + 1,
			width:    (in.width-spec.kernel[1])/spec.stride + 1,
		}
	}
	return out
}

// FeatureWidth is the length of the concatenated feature vector.
func (c Config) FeatureWidth() int {
	shapes := c.shapes()
	var width int
	for _, spec := range c.convs() {
		if spec.keep {
			width += shapes[spec.name].size()
		}
	}
	return width
}

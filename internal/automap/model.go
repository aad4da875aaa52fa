// Package automap implements the AUTOMAP reconstruction network: two dense
// tanh layers that learn the domain transform from k-space to image space,
// followed by a convolutional refinement stack.
package automap

import (
	"fmt"
	"strconv"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
)

// Config sets the image geometry and the width of the convolutional stack.
type Config struct {
	Height, Width int

	// Filters in the two hidden convolutions. Defaults to 64.
	Filters int

	// Kernel is the size of the two hidden convolutions. Defaults to 5.
	Kernel int

	// OutputKernel is the size of the final single-filter convolution.
	// Defaults to 7.
	OutputKernel int
}

// DefaultConfig returns the standard AUTOMAP configuration for h×w images.
func DefaultConfig(h, w int) Config {
	return Config{Height: h, Width: w, Filters: 64, Kernel: 5, OutputKernel: 7}
}

func (c Config) withDefaults() Config {
	if c.Filters <= 0 {
		c.Filters = 64
	}
	if c.Kernel <= 0 {
		c.Kernel = 5
	}
	if c.OutputKernel <= 0 {
		c.OutputKernel = 7
	}
	return c
}

// Metadata keys written by Config.Metadata.
const (
	MetaHeight       = "height"
	MetaWidth        = "width"
	MetaFilters      = "filters"
	MetaKernel       = "kernel"
	MetaOutputKernel = "output_kernel"
)

// Metadata encodes c as string metadata for a saved model.
func (c Config) Metadata() map[string]string {
	c = c.withDefaults()
	return map[string]string{
		MetaHeight:       strconv.Itoa(c.Height),
		MetaWidth:        strconv.Itoa(c.Width),
		MetaFilters:      strconv.Itoa(c.Filters),
		MetaKernel:       strconv.Itoa(c.Kernel),
		MetaOutputKernel: strconv.Itoa(c.OutputKernel),
	}
}

// ConfigFromMetadata is the inverse of Config.Metadata. Height and width
// are required; missing layer sizes fall back to the defaults.
func ConfigFromMetadata(meta map[string]string) (Config, error) {
	var c Config
	for key, dst := range map[string]*int{
		MetaHeight:       &c.Height,
		MetaWidth:        &c.Width,
		MetaFilters:      &c.Filters,
		MetaKernel:       &c.Kernel,
		MetaOutputKernel: &c.OutputKernel,
	} {
		v, ok := meta[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errors.Wrapf(err, "metadata %s=%q", key, v)
		}
		*dst = n
	}
	if c.Height <= 0 || c.Width <= 0 {
		return Config{}, errors.Errorf("metadata has no image size (height=%q width=%q)", meta[MetaHeight], meta[MetaWidth])
	}
	return c.withDefaults(), nil
}

// Model is the AUTOMAP network.
//
// Architecture:
//
//	Input:   [N, H, W, 2]  real and imaginary k-space
//	Flatten  [N, 2HW]
//	FC1:     2HW -> HW, tanh, no bias
//	FC2:     HW -> HW, tanh, no bias
//	Reshape  [N, 1, H, W]
//	Conv1:   1 -> 64, 5x5 same, ReLU
//	Conv2:   64 -> 64, 5x5 same, ReLU
//	Conv3:   64 -> 1, 7x7 same, ReLU
//	Reshape  [N, H, W]
type Model[B tensor.Backend] struct {
	cfg Config

	fc1   *Dense[B]
	tanh1 *nn.Tanh[B]
	fc2   *Dense[B]
	tanh2 *nn.Tanh[B]
	conv1 *nn.Conv2D[B]
	relu1 *nn.ReLU[B]
	conv2 *nn.Conv2D[B]
	relu2 *nn.ReLU[B]
	conv3 *nn.Conv2D[B]
	relu3 *nn.ReLU[B]
}

// New builds a freshly initialized network on backend. Dense and
// convolution weights use Xavier initialization, biases start at zero.
func New[B tensor.Backend](cfg Config, backend B) *Model[B] {
	cfg = cfg.withDefaults()
	px := cfg.Height * cfg.Width
	k, ko := cfg.Kernel, cfg.OutputKernel
	return &Model[B]{
		cfg:   cfg,
		fc1:   NewDense(2*px, px, backend),
		tanh1: nn.NewTanh[B](),
		fc2:   NewDense(px, px, backend),
		tanh2: nn.NewTanh[B](),
		conv1: nn.NewConv2D(1, cfg.Filters, k, k, 1, k/2, true, backend),
		relu1: nn.NewReLU[B](),
		conv2: nn.NewConv2D(cfg.Filters, cfg.Filters, k, k, 1, k/2, true, backend),
		relu2: nn.NewReLU[B](),
		conv3: nn.NewConv2D(cfg.Filters, 1, ko, ko, 1, ko/2, true, backend),
		relu3: nn.NewReLU[B](),
	}
}

// Config returns the configuration the model was built with.
func (m *Model[B]) Config() Config { return m.cfg }

// Forward maps a [N, H, W, 2] k-space batch to [N, H, W] images.
func (m *Model[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	h, w := m.cfg.Height, m.cfg.Width
	if len(shape) != 4 || shape[1] != h || shape[2] != w || shape[3] != 2 {
		panic(fmt.Sprintf("automap: expected input [N, %d, %d, 2], got %v", h, w, shape))
	}
	n := shape[0]

	x := input.Reshape(n, 2*h*w)
	x = m.tanh1.Forward(m.fc1.Forward(x))
	x = m.tanh2.Forward(m.fc2.Forward(x))

	x = x.Reshape(n, 1, h, w)
	x = m.relu1.Forward(m.conv1.Forward(x))
	x = m.relu2.Forward(m.conv2.Forward(x))
	x = m.relu3.Forward(m.conv3.Forward(x))

	return x.Reshape(n, h, w)
}

type namedParameter[B tensor.Backend] struct {
	name  string
	param *nn.Parameter[B]
}

// named lists the parameters in a fixed order with their checkpoint keys.
func (m *Model[B]) named() []namedParameter[B] {
	out := []namedParameter[B]{
		{"fc1.weight", m.fc1.Weight()},
		{"fc2.weight", m.fc2.Weight()},
	}
	for _, c := range []struct {
		prefix string
		conv   *nn.Conv2D[B]
	}{{"conv1", m.conv1}, {"conv2", m.conv2}, {"conv3", m.conv3}} {
		params := c.conv.Parameters()
		out = append(out, namedParameter[B]{c.prefix + ".weight", params[0]})
		out = append(out, namedParameter[B]{c.prefix + ".bias", params[1]})
	}
	return out
}

// Parameters returns all trainable parameters in a stable order.
func (m *Model[B]) Parameters() []*nn.Parameter[B] {
	named := m.named()
	params := make([]*nn.Parameter[B], len(named))
	for i, np := range named {
		params[i] = np.param
	}
	return params
}

// ParameterNames returns the checkpoint key of each parameter, matching the
// order of Parameters.
func (m *Model[B]) ParameterNames() []string {
	named := m.named()
	names := make([]string, len(named))
	for i, np := range named {
		names[i] = np.name
	}
	return names
}

// NumParameters counts scalar weights.
func (m *Model[B]) NumParameters() int {
	var total int
	for _, p := range m.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}

// StateDict returns the parameter tensors keyed by name. The tensors are
// shared with the model, not copied.
func (m *Model[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for _, np := range m.named() {
		state[np.name] = np.param.Tensor().Raw()
	}
	return state
}

// LoadStateDict copies values into the existing parameter tensors, so
// references held by an optimizer stay valid.
func (m *Model[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for _, np := range m.named() {
		src, ok := state[np.name]
		if !ok {
			return errors.Errorf("automap: missing parameter %q", np.name)
		}
		dst := np.param.Tensor().Raw()
		if !src.Shape().Equal(dst.Shape()) {
			return errors.Errorf("automap: parameter %q has shape %v, want %v", np.name, src.Shape(), dst.Shape())
		}
		if src.DType() != dst.DType() {
			return errors.Errorf("automap: parameter %q has dtype %s, want %s", np.name, src.DType(), dst.DType())
		}
		copy(dst.Data()[:dst.ByteSize()], src.Data()[:src.ByteSize()])
	}
	return nil
}

func (m *Model[B]) String() string {
	px := m.cfg.Height * m.cfg.Width
	return fmt.Sprintf(`AUTOMAP(
  %s
  Tanh()
  %s
  Tanh()
  Reshape(1, %d, %d)
  %s
  ReLU()
  %s
  ReLU()
  %s
  ReLU()
)  # %d parameters, image %dx%d (%d pixels)`,
		m.fc1, m.fc2, m.cfg.Height, m.cfg.Width,
		m.conv1, m.conv2, m.conv3,
		m.NumParameters(), m.cfg.Height, m.cfg.Width, px)
}

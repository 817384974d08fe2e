// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nn

import (
	"fmt"
	"math"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// Identity passes the signal through unchanged.
type Identity struct{}

// Forward returns x unchanged.
func (Identity) Forward(x *tensor.Signal) (*tensor.Signal, error) { return x, nil }

// ELU is the exponential linear unit with alpha 1.
type ELU struct{}

// Forward applies ELU elementwise on a copy.
func (ELU) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	out := x.Clone()
	data := out.Data()
	for i, v := range data {
		if v < 0 {
			data[i] = float32(math.Exp(float64(v)) - 1)
		}
	}
	return out, nil
}

// Tanh squashes the signal into [-1, 1].
type Tanh struct{}

// Forward applies tanh elementwise on a copy.
func (Tanh) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	out := x.Clone()
	data := out.Data()
	for i, v := range data {
		data[i] = float32(math.Tanh(float64(v)))
	}
	return out, nil
}

// SiLU is x * sigmoid(x), used by the discriminator stacks.
type SiLU struct{}

// Forward applies SiLU elementwise on a copy.
func (SiLU) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	out := x.Clone()
	data := out.Data()
	for i, v := range data {
		data[i] = v / float32(1+math.Exp(float64(-v)))
	}
	return out, nil
}

// SnakeBeta is the periodic snake activation with per-channel learned
// frequency and magnitude: x + sin^2(alpha*x) / beta, with alpha and beta
// stored in log scale.
type SnakeBeta struct {
	Channels int
	LogAlpha []float32
	LogBeta  []float32
}

// NewSnakeBeta creates a snake activation with alpha = beta = 1.
func NewSnakeBeta(channels int) *SnakeBeta {
	return &SnakeBeta{
		Channels: channels,
		LogAlpha: make([]float32, channels),
		LogBeta:  make([]float32, channels),
	}
}

// Forward applies the activation per channel.
func (s *SnakeBeta) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	if x.Channels() != s.Channels {
		return nil, fmt.Errorf("nn: snake expects %d channels, got %d", s.Channels, x.Channels())
	}
	out := tensor.New(x.Batch(), x.Channels(), x.Len())
	for c := 0; c < s.Channels; c++ {
		alpha := math.Exp(float64(s.LogAlpha[c]))
		invBeta := 1 / (math.Exp(float64(s.LogBeta[c])) + 1e-9)
		for b := 0; b < x.Batch(); b++ {
			src := x.Row(b, c)
			dst := out.Row(b, c)
			for t, v := range src {
				sn := math.Sin(alpha * float64(v))
				dst[t] = v + float32(sn*sn*invBeta)
			}
		}
	}
	return out, nil
}

// Activation names accepted by the codec configs.
const (
	ActivationELU   = "elu"
	ActivationSnake = "snake"
	ActivationNone  = "none"
)

// NewActivation builds the named activation for a stack with the given
// channel count. Unknown names fail at construction.
func NewActivation(name string, channels int) (Layer, error) {
	switch name {
	case ActivationELU, "":
		return ELU{}, nil
	case ActivationSnake:
		return NewSnakeBeta(channels), nil
	case ActivationNone:
		return Identity{}, nil
	default:
		return nil, fmt.Errorf("nn: unknown activation %q", name)
	}
}

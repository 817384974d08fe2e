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
	"math/rand"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// Linear maps the channel axis pointwise per time step, equivalent to a
// kernel-size-1 convolution.
type Linear struct {
	InFeatures  int
	OutFeatures int
	Weight      []float32 // [out][in]
	Bias        []float32
}

// NewLinear allocates a linear map with zeroed parameters.
func NewLinear(in, out int) *Linear {
	return &Linear{
		InFeatures:  in,
		OutFeatures: out,
		Weight:      make([]float32, out*in),
		Bias:        make([]float32, out),
	}
}

// InitRandom fills the weights with uniform values scaled by fan-in.
func (l *Linear) InitRandom(rng *rand.Rand) {
	bound := 1 / math.Sqrt(float64(l.InFeatures))
	for i := range l.Weight {
		l.Weight[i] = float32((rng.Float64()*2 - 1) * bound)
	}
	for i := range l.Bias {
		l.Bias[i] = float32((rng.Float64()*2 - 1) * bound)
	}
}

// Forward applies the map at every time step.
func (l *Linear) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	if x.Channels() != l.InFeatures {
		return nil, fmt.Errorf("nn: linear expects %d features, got %d", l.InFeatures, x.Channels())
	}
	out := tensor.New(x.Batch(), l.OutFeatures, x.Len())
	for b := 0; b < x.Batch(); b++ {
		for o := 0; o < l.OutFeatures; o++ {
			w := l.Weight[o*l.InFeatures : (o+1)*l.InFeatures]
			dst := out.Row(b, o)
			for t := range dst {
				dst[t] = l.Bias[o]
			}
			for ic, wv := range w {
				if wv == 0 {
					continue
				}
				src := x.Row(b, ic)
				for t, xv := range src {
					dst[t] += wv * xv
				}
			}
		}
	}
	return out, nil
}

// LayerNorm normalizes across the channel axis at every time step.
type LayerNorm struct {
	Features int
	Gamma    []float32
	Beta     []float32
	Eps      float32
}

// NewLayerNorm creates a layer norm with unit gamma and zero beta.
func NewLayerNorm(features int) *LayerNorm {
	ln := &LayerNorm{
		Features: features,
		Gamma:    make([]float32, features),
		Beta:     make([]float32, features),
		Eps:      1e-5,
	}
	for i := range ln.Gamma {
		ln.Gamma[i] = 1
	}
	return ln
}

// Forward normalizes each (batch, time) column over channels.
func (l *LayerNorm) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	if x.Channels() != l.Features {
		return nil, fmt.Errorf("nn: layer_norm expects %d features, got %d", l.Features, x.Channels())
	}
	out := tensor.New(x.Batch(), x.Channels(), x.Len())
	n := float64(l.Features)
	for b := 0; b < x.Batch(); b++ {
		for t := 0; t < x.Len(); t++ {
			var mean float64
			for c := 0; c < l.Features; c++ {
				mean += float64(x.At(b, c, t))
			}
			mean /= n
			var variance float64
			for c := 0; c < l.Features; c++ {
				d := float64(x.At(b, c, t)) - mean
				variance += d * d
			}
			variance /= n
			inv := 1 / math.Sqrt(variance+float64(l.Eps))
			for c := 0; c < l.Features; c++ {
				norm := (float64(x.At(b, c, t)) - mean) * inv
				out.Set(b, c, t, float32(norm)*l.Gamma[c]+l.Beta[c])
			}
		}
	}
	return out, nil
}

// Softmax normalizes a score row in place.
func Softmax(row []float32) {
	maxV := row[0]
	for _, v := range row[1:] {
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for i, v := range row {
		e := math.Exp(float64(v - maxV))
		row[i] = float32(e)
		sum += e
	}
	inv := float32(1 / sum)
	for i := range row {
		row[i] *= inv
	}
}

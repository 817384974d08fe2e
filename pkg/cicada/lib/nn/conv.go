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

// Package nn provides the neural building blocks the codec stacks are
// assembled from: 1-D convolutions with optional weight normalization,
// transposed convolutions, pooling, pointwise linear maps, and the
// activation functions the audio models use. Kernels are plain float32
// loops; inference runs on CPU and all parallelism is within a call.
package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// PaddingMode selects how samples outside the signal are synthesized.
type PaddingMode string

const (
	// PadZeros pads with silence.
	PadZeros PaddingMode = "zeros"
	// PadReflect mirrors the signal around its edges, which reduces edge
	// artifacts at a higher memory cost during training.
	PadReflect PaddingMode = "reflect"
)

// Layer is a single transform over a signal.
type Layer interface {
	Forward(x *tensor.Signal) (*tensor.Signal, error)
}

// Conv1d is a dilated, strided 1-D convolution. PadLeft/PadRight are
// expressed separately so causal stacks can pad the past only. While Gain
// is non-nil the layer is weight-normalized: the effective kernel for
// output channel o is Gain[o] * Weight[o] / |Weight[o]|.
type Conv1d struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Dilation    int
	PadLeft     int
	PadRight    int
	Mode        PaddingMode

	Weight []float32 // [out][in][kernel]
	Gain   []float32 // [out], nil once weight norm is removed
	Bias   []float32 // [out], nil for bias-free layers
}

// Conv1dConfig holds the construction parameters for Conv1d.
type Conv1dConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Dilation    int
	PadLeft     int
	PadRight    int
	Mode        PaddingMode
	WeightNorm  bool
	NoBias      bool
}

// NewConv1d allocates a convolution with zeroed parameters. Weights are
// populated either by a checkpoint or by InitRandom.
func NewConv1d(cfg Conv1dConfig) *Conv1d {
	if cfg.Stride == 0 {
		cfg.Stride = 1
	}
	if cfg.Dilation == 0 {
		cfg.Dilation = 1
	}
	if cfg.Mode == "" {
		cfg.Mode = PadZeros
	}
	c := &Conv1d{
		InChannels:  cfg.InChannels,
		OutChannels: cfg.OutChannels,
		KernelSize:  cfg.KernelSize,
		Stride:      cfg.Stride,
		Dilation:    cfg.Dilation,
		PadLeft:     cfg.PadLeft,
		PadRight:    cfg.PadRight,
		Mode:        cfg.Mode,
		Weight:      make([]float32, cfg.OutChannels*cfg.InChannels*cfg.KernelSize),
	}
	if cfg.WeightNorm {
		c.Gain = make([]float32, cfg.OutChannels)
		for i := range c.Gain {
			c.Gain[i] = 1
		}
	}
	if !cfg.NoBias {
		c.Bias = make([]float32, cfg.OutChannels)
	}
	return c
}

// InitRandom fills the kernel with uniform values scaled by fan-in.
func (c *Conv1d) InitRandom(rng *rand.Rand) {
	bound := 1 / math.Sqrt(float64(c.InChannels*c.KernelSize))
	for i := range c.Weight {
		c.Weight[i] = float32((rng.Float64()*2 - 1) * bound)
	}
	if c.Bias != nil {
		for i := range c.Bias {
			c.Bias[i] = float32((rng.Float64()*2 - 1) * bound)
		}
	}
}

// OutLen returns the output length for an input of length n.
func (c *Conv1d) OutLen(n int) int {
	return (n+c.PadLeft+c.PadRight-c.Dilation*(c.KernelSize-1)-1)/c.Stride + 1
}

// effectiveWeight returns the kernel slice for output channel o with weight
// normalization applied.
func (c *Conv1d) effectiveWeight(o int, buf []float32) []float32 {
	plane := c.InChannels * c.KernelSize
	w := c.Weight[o*plane : (o+1)*plane]
	if c.Gain == nil {
		return w
	}
	var norm float64
	for _, v := range w {
		norm += float64(v) * float64(v)
	}
	scale := float32(float64(c.Gain[o]) / math.Sqrt(norm+1e-12))
	for i, v := range w {
		buf[i] = v * scale
	}
	return buf
}

// sampleAt reads x[b][ic] at a virtual position that may fall in the
// padded region.
func sampleAt(row []float32, pos int, mode PaddingMode) float32 {
	n := len(row)
	if pos >= 0 && pos < n {
		return row[pos]
	}
	if mode == PadReflect && n > 1 {
		for pos < 0 || pos >= n {
			if pos < 0 {
				pos = -pos
			}
			if pos >= n {
				pos = 2*n - 2 - pos
			}
		}
		return row[pos]
	}
	return 0
}

// Forward applies the convolution.
func (c *Conv1d) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	if x.Channels() != c.InChannels {
		return nil, fmt.Errorf("nn: conv1d expects %d input channels, got %d", c.InChannels, x.Channels())
	}
	outLen := c.OutLen(x.Len())
	if outLen <= 0 {
		return nil, fmt.Errorf("nn: conv1d input length %d too short for kernel %d (dilation %d)",
			x.Len(), c.KernelSize, c.Dilation)
	}
	out := tensor.New(x.Batch(), c.OutChannels, outLen)
	wbuf := make([]float32, c.InChannels*c.KernelSize)

	for o := 0; o < c.OutChannels; o++ {
		w := c.effectiveWeight(o, wbuf)
		var bias float32
		if c.Bias != nil {
			bias = c.Bias[o]
		}
		for b := 0; b < x.Batch(); b++ {
			dst := out.Row(b, o)
			for ot := 0; ot < outLen; ot++ {
				base := ot*c.Stride - c.PadLeft
				acc := bias
				for ic := 0; ic < c.InChannels; ic++ {
					row := x.Row(b, ic)
					wrow := w[ic*c.KernelSize : (ic+1)*c.KernelSize]
					for k, wv := range wrow {
						acc += wv * sampleAt(row, base+k*c.Dilation, c.Mode)
					}
				}
				dst[ot] = acc
			}
		}
	}
	return out, nil
}

// RemoveWeightNorm folds the gain into the kernel for inference.
func (c *Conv1d) RemoveWeightNorm() {
	if c.Gain == nil {
		return
	}
	plane := c.InChannels * c.KernelSize
	for o := 0; o < c.OutChannels; o++ {
		w := c.Weight[o*plane : (o+1)*plane]
		var norm float64
		for _, v := range w {
			norm += float64(v) * float64(v)
		}
		scale := float32(float64(c.Gain[o]) / math.Sqrt(norm+1e-12))
		for i := range w {
			w[i] *= scale
		}
	}
	c.Gain = nil
}

// ConvTranspose1d is a strided 1-D transposed convolution used for
// upsampling in the decoder. Weight layout is [in][out][kernel]; the gain,
// when present, is per input channel.
type ConvTranspose1d struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	PadLeft     int
	PadRight    int

	Weight []float32 // [in][out][kernel]
	Gain   []float32 // [in], nil once weight norm is removed
	Bias   []float32
}

// ConvTranspose1dConfig holds the construction parameters for
// ConvTranspose1d.
type ConvTranspose1dConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	PadLeft     int
	PadRight    int
	WeightNorm  bool
	NoBias      bool
}

// NewConvTranspose1d allocates a transposed convolution with zeroed
// parameters.
func NewConvTranspose1d(cfg ConvTranspose1dConfig) *ConvTranspose1d {
	if cfg.Stride == 0 {
		cfg.Stride = 1
	}
	c := &ConvTranspose1d{
		InChannels:  cfg.InChannels,
		OutChannels: cfg.OutChannels,
		KernelSize:  cfg.KernelSize,
		Stride:      cfg.Stride,
		PadLeft:     cfg.PadLeft,
		PadRight:    cfg.PadRight,
		Weight:      make([]float32, cfg.InChannels*cfg.OutChannels*cfg.KernelSize),
	}
	if cfg.WeightNorm {
		c.Gain = make([]float32, cfg.InChannels)
		for i := range c.Gain {
			c.Gain[i] = 1
		}
	}
	if !cfg.NoBias {
		c.Bias = make([]float32, cfg.OutChannels)
	}
	return c
}

// InitRandom fills the kernel with uniform values scaled by fan-in.
func (c *ConvTranspose1d) InitRandom(rng *rand.Rand) {
	bound := 1 / math.Sqrt(float64(c.InChannels*c.KernelSize))
	for i := range c.Weight {
		c.Weight[i] = float32((rng.Float64()*2 - 1) * bound)
	}
	if c.Bias != nil {
		for i := range c.Bias {
			c.Bias[i] = float32((rng.Float64()*2 - 1) * bound)
		}
	}
}

// OutLen returns the output length for an input of length n.
func (c *ConvTranspose1d) OutLen(n int) int {
	return (n-1)*c.Stride + c.KernelSize - c.PadLeft - c.PadRight
}

// Forward applies the transposed convolution.
func (c *ConvTranspose1d) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	if x.Channels() != c.InChannels {
		return nil, fmt.Errorf("nn: conv_transpose1d expects %d input channels, got %d", c.InChannels, x.Channels())
	}
	outLen := c.OutLen(x.Len())
	if outLen <= 0 {
		return nil, fmt.Errorf("nn: conv_transpose1d input length %d too short", x.Len())
	}
	out := tensor.New(x.Batch(), c.OutChannels, outLen)

	plane := c.OutChannels * c.KernelSize
	wbuf := make([]float32, plane)
	for b := 0; b < x.Batch(); b++ {
		if c.Bias != nil {
			for o := 0; o < c.OutChannels; o++ {
				dst := out.Row(b, o)
				for t := range dst {
					dst[t] = c.Bias[o]
				}
			}
		}
		for ic := 0; ic < c.InChannels; ic++ {
			w := c.Weight[ic*plane : (ic+1)*plane]
			if c.Gain != nil {
				var norm float64
				for _, v := range w {
					norm += float64(v) * float64(v)
				}
				scale := float32(float64(c.Gain[ic]) / math.Sqrt(norm+1e-12))
				for i, v := range w {
					wbuf[i] = v * scale
				}
				w = wbuf
			}
			row := x.Row(b, ic)
			for o := 0; o < c.OutChannels; o++ {
				dst := out.Row(b, o)
				wrow := w[o*c.KernelSize : (o+1)*c.KernelSize]
				for it, xv := range row {
					base := it*c.Stride - c.PadLeft
					for k, wv := range wrow {
						pos := base + k
						if pos >= 0 && pos < outLen {
							dst[pos] += wv * xv
						}
					}
				}
			}
		}
	}
	return out, nil
}

// RemoveWeightNorm folds the gain into the kernel for inference.
func (c *ConvTranspose1d) RemoveWeightNorm() {
	if c.Gain == nil {
		return
	}
	plane := c.OutChannels * c.KernelSize
	for ic := 0; ic < c.InChannels; ic++ {
		w := c.Weight[ic*plane : (ic+1)*plane]
		var norm float64
		for _, v := range w {
			norm += float64(v) * float64(v)
		}
		scale := float32(float64(c.Gain[ic]) / math.Sqrt(norm+1e-12))
		for i := range w {
			w[i] *= scale
		}
	}
	c.Gain = nil
}

// NearestUpsample repeats every frame Scale times along the time axis.
type NearestUpsample struct {
	Scale int
}

// Forward applies nearest-neighbor upsampling.
func (u *NearestUpsample) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	if u.Scale <= 0 {
		return nil, fmt.Errorf("nn: upsample scale must be positive, got %d", u.Scale)
	}
	out := tensor.New(x.Batch(), x.Channels(), x.Len()*u.Scale)
	for b := 0; b < x.Batch(); b++ {
		for c := 0; c < x.Channels(); c++ {
			src := x.Row(b, c)
			dst := out.Row(b, c)
			for t, v := range src {
				for r := 0; r < u.Scale; r++ {
					dst[t*u.Scale+r] = v
				}
			}
		}
	}
	return out, nil
}

// AvgPool1d averages KernelSize samples with the given stride, zero-padding
// both edges by Pad.
type AvgPool1d struct {
	KernelSize int
	Stride     int
	Pad        int
}

// Forward applies average pooling.
func (p *AvgPool1d) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	outLen := (x.Len()+2*p.Pad-p.KernelSize)/p.Stride + 1
	if outLen <= 0 {
		return nil, fmt.Errorf("nn: avg_pool1d input length %d too short for kernel %d", x.Len(), p.KernelSize)
	}
	out := tensor.New(x.Batch(), x.Channels(), outLen)
	inv := 1 / float32(p.KernelSize)
	for b := 0; b < x.Batch(); b++ {
		for c := 0; c < x.Channels(); c++ {
			src := x.Row(b, c)
			dst := out.Row(b, c)
			for ot := 0; ot < outLen; ot++ {
				base := ot*p.Stride - p.Pad
				var acc float32
				for k := 0; k < p.KernelSize; k++ {
					pos := base + k
					if pos >= 0 && pos < len(src) {
						acc += src[pos]
					}
				}
				dst[ot] = acc * inv
			}
		}
	}
	return out, nil
}

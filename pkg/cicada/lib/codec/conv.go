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

package codec

import (
	"fmt"
	"math/rand"

	"github.com/antflydb/cicada/pkg/cicada/lib/nn"
	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// residualUnit is a dilated residual block: activation, dilated kernel-7
// convolution, activation, kernel-1 convolution, plus the skip connection.
// Causal units pad the past only, so the time axis is preserved either way.
type residualUnit struct {
	act1  nn.Layer
	conv1 *nn.Conv1d
	act2  nn.Layer
	conv2 *nn.Conv1d
}

func newResidualUnit(channels, dilation int, activation string, causal bool, mode nn.PaddingMode) (*residualUnit, error) {
	const kernel = 7
	act1, err := nn.NewActivation(activation, channels)
	if err != nil {
		return nil, err
	}
	act2, err := nn.NewActivation(activation, channels)
	if err != nil {
		return nil, err
	}

	full := dilation * (kernel - 1)
	padLeft, padRight := full/2, full/2
	if causal {
		padLeft, padRight = full, 0
	}

	return &residualUnit{
		act1: act1,
		conv1: nn.NewConv1d(nn.Conv1dConfig{
			InChannels: channels, OutChannels: channels,
			KernelSize: kernel, Dilation: dilation,
			PadLeft: padLeft, PadRight: padRight,
			Mode: mode, WeightNorm: true,
		}),
		act2: act2,
		conv2: nn.NewConv1d(nn.Conv1dConfig{
			InChannels: channels, OutChannels: channels,
			KernelSize: 1, WeightNorm: true,
		}),
	}, nil
}

func (u *residualUnit) forward(x *tensor.Signal) (*tensor.Signal, error) {
	h, err := u.act1.Forward(x)
	if err != nil {
		return nil, err
	}
	if h, err = u.conv1.Forward(h); err != nil {
		return nil, err
	}
	if h, err = u.act2.Forward(h); err != nil {
		return nil, err
	}
	if h, err = u.conv2.Forward(h); err != nil {
		return nil, err
	}
	// Skip connection
	data, res := h.Data(), x.Data()
	for i := range data {
		data[i] += res[i]
	}
	return h, nil
}

func (u *residualUnit) params() map[string][]float32 {
	p := map[string][]float32{}
	mergeParams(p, "conv1", u.conv1.Params())
	mergeParams(p, "conv2", u.conv2.Params())
	if s, ok := u.act1.(*nn.SnakeBeta); ok {
		mergeParams(p, "act1", s.Params())
	}
	if s, ok := u.act2.(*nn.SnakeBeta); ok {
		mergeParams(p, "act2", s.Params())
	}
	return p
}

func (u *residualUnit) initRandom(rng *rand.Rand) {
	u.conv1.InitRandom(rng)
	u.conv2.InitRandom(rng)
}

func (u *residualUnit) removeWeightNorm() {
	u.conv1.RemoveWeightNorm()
	u.conv2.RemoveWeightNorm()
}

// encoderBlock is three residual units at dilations 1, 3, 9 followed by a
// strided downsampling convolution.
type encoderBlock struct {
	units [3]*residualUnit
	act   nn.Layer
	down  *nn.Conv1d
}

var residualDilations = [3]int{1, 3, 9}

func newEncoderBlock(inChannels, outChannels, stride int, activation string, causal bool, mode nn.PaddingMode) (*encoderBlock, error) {
	b := &encoderBlock{}
	for i, d := range residualDilations {
		u, err := newResidualUnit(inChannels, d, activation, causal, mode)
		if err != nil {
			return nil, err
		}
		b.units[i] = u
	}
	act, err := nn.NewActivation(activation, inChannels)
	if err != nil {
		return nil, err
	}
	b.act = act

	kernel := 2 * stride
	padLeft, padRight := (stride+1)/2, (stride+1)/2
	if causal {
		padLeft, padRight = kernel-stride, 0
	}
	b.down = nn.NewConv1d(nn.Conv1dConfig{
		InChannels: inChannels, OutChannels: outChannels,
		KernelSize: kernel, Stride: stride,
		PadLeft: padLeft, PadRight: padRight,
		Mode: mode, WeightNorm: true,
	})
	return b, nil
}

func (b *encoderBlock) forward(x *tensor.Signal) (*tensor.Signal, error) {
	var err error
	for _, u := range b.units {
		if x, err = u.forward(x); err != nil {
			return nil, err
		}
	}
	if x, err = b.act.Forward(x); err != nil {
		return nil, err
	}
	return b.down.Forward(x)
}

// decoderBlock is the mirror of encoderBlock: an upsampling stage followed
// by three residual units. The upsampling stage is either a strided
// transposed convolution or nearest-neighbor repetition plus a smoothing
// convolution.
type decoderBlock struct {
	act       nn.Layer
	upt       *nn.ConvTranspose1d
	upNearest *nn.NearestUpsample
	upConv    *nn.Conv1d
	units     [3]*residualUnit
}

func newDecoderBlock(inChannels, outChannels, stride int, activation string, nearestUpsample, causal bool, mode nn.PaddingMode) (*decoderBlock, error) {
	if nearestUpsample && causal {
		return nil, fmt.Errorf("codec: nearest upsampling is not supported in causal mode")
	}

	b := &decoderBlock{}
	act, err := nn.NewActivation(activation, inChannels)
	if err != nil {
		return nil, err
	}
	b.act = act

	kernel := 2 * stride
	if nearestUpsample {
		b.upNearest = &nn.NearestUpsample{Scale: stride}
		b.upConv = nn.NewConv1d(nn.Conv1dConfig{
			InChannels: inChannels, OutChannels: outChannels,
			KernelSize: kernel,
			PadLeft:    (kernel - 1) / 2, PadRight: kernel - 1 - (kernel-1)/2,
			WeightNorm: true, NoBias: true,
		})
	} else {
		padLeft, padRight := (stride+1)/2, (stride+1)/2
		if causal {
			padLeft, padRight = 0, kernel-stride
		}
		b.upt = nn.NewConvTranspose1d(nn.ConvTranspose1dConfig{
			InChannels: inChannels, OutChannels: outChannels,
			KernelSize: kernel, Stride: stride,
			PadLeft: padLeft, PadRight: padRight,
			WeightNorm: true,
		})
	}

	for i, d := range residualDilations {
		u, err := newResidualUnit(outChannels, d, activation, causal, mode)
		if err != nil {
			return nil, err
		}
		b.units[i] = u
	}
	return b, nil
}

func (b *decoderBlock) forward(x *tensor.Signal) (*tensor.Signal, error) {
	x, err := b.act.Forward(x)
	if err != nil {
		return nil, err
	}
	if b.upt != nil {
		x, err = b.upt.Forward(x)
	} else {
		if x, err = b.upNearest.Forward(x); err != nil {
			return nil, err
		}
		x, err = b.upConv.Forward(x)
	}
	if err != nil {
		return nil, err
	}
	for _, u := range b.units {
		if x, err = u.forward(x); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// ConvEncoderConfig parameterizes the convolutional encoder.
type ConvEncoderConfig struct {
	InChannels  int    // audio channels, default 2
	Channels    int    // base width, default 128
	LatentDim   int    // default 32
	CMults      []int  // per-block channel multipliers, default [1, 2, 4, 8]
	Strides     []int  // per-block downsampling strides, default [2, 4, 8, 8]
	Activation  string // "elu" (default) or "snake"
	Causal      bool
	PaddingMode nn.PaddingMode
}

func (c *ConvEncoderConfig) applyDefaults() {
	if c.InChannels == 0 {
		c.InChannels = 2
	}
	if c.Channels == 0 {
		c.Channels = 128
	}
	if c.LatentDim == 0 {
		c.LatentDim = 32
	}
	if len(c.CMults) == 0 {
		c.CMults = []int{1, 2, 4, 8}
	}
	if len(c.Strides) == 0 {
		c.Strides = []int{2, 4, 8, 8}
	}
}

// ConvEncoder is the residual-stack encoder: an input convolution, one
// strided block per entry in Strides, and a projection to the latent
// dimension. Its downsampling ratio is the product of the strides.
type ConvEncoder struct {
	inChannels int
	latentDim  int
	ratio      int

	first  *nn.Conv1d
	blocks []*encoderBlock
	act    nn.Layer
	final  *nn.Conv1d
}

// NewConvEncoder assembles the encoder from its configuration.
func NewConvEncoder(cfg ConvEncoderConfig) (*ConvEncoder, error) {
	cfg.applyDefaults()
	if len(cfg.CMults) != len(cfg.Strides) {
		return nil, fmt.Errorf("codec: c_mults (%d entries) and strides (%d entries) must have the same length",
			len(cfg.CMults), len(cfg.Strides))
	}

	mults := append([]int{1}, cfg.CMults...)

	e := &ConvEncoder{inChannels: cfg.InChannels, latentDim: cfg.LatentDim, ratio: 1}

	firstPadLeft, firstPadRight := 3, 3
	if cfg.Causal {
		firstPadLeft, firstPadRight = 6, 0
	}
	e.first = nn.NewConv1d(nn.Conv1dConfig{
		InChannels: cfg.InChannels, OutChannels: mults[0] * cfg.Channels,
		KernelSize: 7, PadLeft: firstPadLeft, PadRight: firstPadRight,
		Mode: cfg.PaddingMode, WeightNorm: true,
	})

	for i, stride := range cfg.Strides {
		block, err := newEncoderBlock(mults[i]*cfg.Channels, mults[i+1]*cfg.Channels, stride,
			cfg.Activation, cfg.Causal, cfg.PaddingMode)
		if err != nil {
			return nil, err
		}
		e.blocks = append(e.blocks, block)
		e.ratio *= stride
	}

	act, err := nn.NewActivation(cfg.Activation, mults[len(mults)-1]*cfg.Channels)
	if err != nil {
		return nil, err
	}
	e.act = act

	finalPadLeft, finalPadRight := 1, 1
	if cfg.Causal {
		finalPadLeft, finalPadRight = 2, 0
	}
	e.final = nn.NewConv1d(nn.Conv1dConfig{
		InChannels: mults[len(mults)-1] * cfg.Channels, OutChannels: cfg.LatentDim,
		KernelSize: 3, PadLeft: finalPadLeft, PadRight: finalPadRight,
		Mode: cfg.PaddingMode, WeightNorm: true,
	})

	return e, nil
}

// Forward encodes audio [B, C, T] into latents [B, D, T/R].
func (e *ConvEncoder) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	x, err := e.first.Forward(x)
	if err != nil {
		return nil, err
	}
	for _, block := range e.blocks {
		if x, err = block.forward(x); err != nil {
			return nil, err
		}
	}
	if x, err = e.act.Forward(x); err != nil {
		return nil, err
	}
	return e.final.Forward(x)
}

// Ratio returns the number of samples per latent frame.
func (e *ConvEncoder) Ratio() int { return e.ratio }

// LatentDim returns the latent channel count.
func (e *ConvEncoder) LatentDim() int { return e.latentDim }

// AudioChannels returns the audio channel count.
func (e *ConvEncoder) AudioChannels() int { return e.inChannels }

// InitRandom fills every convolution with random weights.
func (e *ConvEncoder) InitRandom(rng *rand.Rand) {
	e.first.InitRandom(rng)
	for _, b := range e.blocks {
		for _, u := range b.units {
			u.initRandom(rng)
		}
		b.down.InitRandom(rng)
	}
	e.final.InitRandom(rng)
}

// RemoveWeightNorm folds weight normalization for inference.
func (e *ConvEncoder) RemoveWeightNorm() {
	e.first.RemoveWeightNorm()
	for _, b := range e.blocks {
		for _, u := range b.units {
			u.removeWeightNorm()
		}
		b.down.RemoveWeightNorm()
	}
	e.final.RemoveWeightNorm()
}

// Parameters returns the flat parameter map.
func (e *ConvEncoder) Parameters() map[string][]float32 {
	p := map[string][]float32{}
	mergeParams(p, "first", e.first.Params())
	for i, b := range e.blocks {
		for j, u := range b.units {
			mergeParams(p, fmt.Sprintf("blocks.%d.res.%d", i, j), u.params())
		}
		mergeParams(p, fmt.Sprintf("blocks.%d.down", i), b.down.Params())
		if s, ok := b.act.(*nn.SnakeBeta); ok {
			mergeParams(p, fmt.Sprintf("blocks.%d.act", i), s.Params())
		}
	}
	mergeParams(p, "final", e.final.Params())
	if s, ok := e.act.(*nn.SnakeBeta); ok {
		mergeParams(p, "act", s.Params())
	}
	return p
}

// ConvDecoderConfig parameterizes the convolutional decoder.
type ConvDecoderConfig struct {
	OutChannels     int
	Channels        int
	LatentDim       int
	CMults          []int
	Strides         []int
	Activation      string
	NearestUpsample bool
	FinalTanh       bool
	Causal          bool
	PaddingMode     nn.PaddingMode
}

func (c *ConvDecoderConfig) applyDefaults() {
	if c.OutChannels == 0 {
		c.OutChannels = 2
	}
	if c.Channels == 0 {
		c.Channels = 128
	}
	if c.LatentDim == 0 {
		c.LatentDim = 32
	}
	if len(c.CMults) == 0 {
		c.CMults = []int{1, 2, 4, 8}
	}
	if len(c.Strides) == 0 {
		c.Strides = []int{2, 4, 8, 8}
	}
}

// ConvDecoder is the mirror of ConvEncoder, upsampling latents back to
// audio. Its upsampling ratio is the product of the strides.
type ConvDecoder struct {
	outChannels int
	latentDim   int
	ratio       int

	first  *nn.Conv1d
	blocks []*decoderBlock
	act    nn.Layer
	final  *nn.Conv1d
	tanh   bool
}

// NewConvDecoder assembles the decoder from its configuration. Nearest
// upsampling combined with causal mode is rejected here, before any
// forward call.
func NewConvDecoder(cfg ConvDecoderConfig) (*ConvDecoder, error) {
	cfg.applyDefaults()
	if len(cfg.CMults) != len(cfg.Strides) {
		return nil, fmt.Errorf("codec: c_mults (%d entries) and strides (%d entries) must have the same length",
			len(cfg.CMults), len(cfg.Strides))
	}

	mults := append([]int{1}, cfg.CMults...)

	d := &ConvDecoder{outChannels: cfg.OutChannels, latentDim: cfg.LatentDim, ratio: 1, tanh: cfg.FinalTanh}

	firstPadLeft, firstPadRight := 3, 3
	if cfg.Causal {
		firstPadLeft, firstPadRight = 6, 0
	}
	d.first = nn.NewConv1d(nn.Conv1dConfig{
		InChannels: cfg.LatentDim, OutChannels: mults[len(mults)-1] * cfg.Channels,
		KernelSize: 7, PadLeft: firstPadLeft, PadRight: firstPadRight,
		Mode: cfg.PaddingMode, WeightNorm: true,
	})

	for i := len(cfg.Strides) - 1; i >= 0; i-- {
		block, err := newDecoderBlock(mults[i+1]*cfg.Channels, mults[i]*cfg.Channels, cfg.Strides[i],
			cfg.Activation, cfg.NearestUpsample, cfg.Causal, cfg.PaddingMode)
		if err != nil {
			return nil, err
		}
		d.blocks = append(d.blocks, block)
		d.ratio *= cfg.Strides[i]
	}

	act, err := nn.NewActivation(cfg.Activation, mults[0]*cfg.Channels)
	if err != nil {
		return nil, err
	}
	d.act = act

	finalPadLeft, finalPadRight := 3, 3
	if cfg.Causal {
		finalPadLeft, finalPadRight = 6, 0
	}
	d.final = nn.NewConv1d(nn.Conv1dConfig{
		InChannels: mults[0] * cfg.Channels, OutChannels: cfg.OutChannels,
		KernelSize: 7, PadLeft: finalPadLeft, PadRight: finalPadRight,
		Mode: cfg.PaddingMode, WeightNorm: true, NoBias: true,
	})

	return d, nil
}

// Forward decodes latents [B, D, T] into audio [B, C, T*R].
func (d *ConvDecoder) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	x, err := d.first.Forward(x)
	if err != nil {
		return nil, err
	}
	for _, block := range d.blocks {
		if x, err = block.forward(x); err != nil {
			return nil, err
		}
	}
	if x, err = d.act.Forward(x); err != nil {
		return nil, err
	}
	if x, err = d.final.Forward(x); err != nil {
		return nil, err
	}
	if d.tanh {
		return nn.Tanh{}.Forward(x)
	}
	return x, nil
}

// Ratio returns the number of samples per latent frame.
func (d *ConvDecoder) Ratio() int { return d.ratio }

// LatentDim returns the latent channel count.
func (d *ConvDecoder) LatentDim() int { return d.latentDim }

// AudioChannels returns the audio channel count.
func (d *ConvDecoder) AudioChannels() int { return d.outChannels }

// InitRandom fills every convolution with random weights.
func (d *ConvDecoder) InitRandom(rng *rand.Rand) {
	d.first.InitRandom(rng)
	for _, b := range d.blocks {
		if b.upt != nil {
			b.upt.InitRandom(rng)
		} else {
			b.upConv.InitRandom(rng)
		}
		for _, u := range b.units {
			u.initRandom(rng)
		}
	}
	d.final.InitRandom(rng)
}

// RemoveWeightNorm folds weight normalization for inference.
func (d *ConvDecoder) RemoveWeightNorm() {
	d.first.RemoveWeightNorm()
	for _, b := range d.blocks {
		if b.upt != nil {
			b.upt.RemoveWeightNorm()
		} else {
			b.upConv.RemoveWeightNorm()
		}
		for _, u := range b.units {
			u.removeWeightNorm()
		}
	}
	d.final.RemoveWeightNorm()
}

// Parameters returns the flat parameter map.
func (d *ConvDecoder) Parameters() map[string][]float32 {
	p := map[string][]float32{}
	mergeParams(p, "first", d.first.Params())
	for i, b := range d.blocks {
		if b.upt != nil {
			mergeParams(p, fmt.Sprintf("blocks.%d.up", i), b.upt.Params())
		} else {
			mergeParams(p, fmt.Sprintf("blocks.%d.up", i), b.upConv.Params())
		}
		for j, u := range b.units {
			mergeParams(p, fmt.Sprintf("blocks.%d.res.%d", i, j), u.params())
		}
		if s, ok := b.act.(*nn.SnakeBeta); ok {
			mergeParams(p, fmt.Sprintf("blocks.%d.act", i), s.Params())
		}
	}
	mergeParams(p, "final", d.final.Params())
	if s, ok := d.act.(*nn.SnakeBeta); ok {
		mergeParams(p, "act", s.Params())
	}
	return p
}

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

// Package cicada assembles audio autoencoders: a codec pair wrapped with an
// optional bottleneck and pretransform, plus the chunked streaming paths
// that let fixed-window codecs process audio of arbitrary length.
package cicada

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/antflydb/cicada/pkg/cicada/lib/bottleneck"
	"github.com/antflydb/cicada/pkg/cicada/lib/codec"
	"github.com/antflydb/cicada/pkg/cicada/lib/config"
	"github.com/antflydb/cicada/pkg/cicada/lib/pretransform"
	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
	"github.com/antflydb/cicada/pkg/cicada/lib/weights"
)

// AudioAutoencoder pairs an encoder and decoder with an optional bottleneck
// and pretransform. The encoder may be nil for decode-only models.
type AudioAutoencoder struct {
	Encoder      codec.Encoder
	Decoder      codec.Decoder
	Bottleneck   bottleneck.Bottleneck
	Pretransform pretransform.Pretransform

	SampleRate        int
	LatentDim         int
	DownsamplingRatio int
	InChannels        int
	OutChannels       int
	SoftClip          bool

	log *zap.Logger
}

// FromConfig builds the autoencoder a model config describes. The declared
// downsampling ratio is checked against what the codecs report.
func FromConfig(f *config.File, log *zap.Logger) (*AudioAutoencoder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &f.Model

	enc, err := config.BuildEncoder(m.Encoder, m, log)
	if err != nil {
		return nil, fmt.Errorf("building encoder: %w", err)
	}
	dec, err := config.BuildDecoder(m.Decoder, m, log)
	if err != nil {
		return nil, fmt.Errorf("building decoder: %w", err)
	}
	bn, err := config.BuildBottleneck(m.Bottleneck, m, log)
	if err != nil {
		return nil, fmt.Errorf("building bottleneck: %w", err)
	}
	pt, err := config.BuildPretransform(m.Pretransform, log)
	if err != nil {
		return nil, fmt.Errorf("building pretransform: %w", err)
	}

	if enc != nil && enc.Ratio() != m.DownsamplingRatio {
		return nil, fmt.Errorf("encoder ratio %d does not match declared downsampling_ratio %d",
			enc.Ratio(), m.DownsamplingRatio)
	}
	if dec.Ratio() != m.DownsamplingRatio {
		return nil, fmt.Errorf("decoder ratio %d does not match declared downsampling_ratio %d",
			dec.Ratio(), m.DownsamplingRatio)
	}

	return &AudioAutoencoder{
		Encoder:           enc,
		Decoder:           dec,
		Bottleneck:        bn,
		Pretransform:      pt,
		SampleRate:        f.SampleRate,
		LatentDim:         m.LatentDim,
		DownsamplingRatio: m.DownsamplingRatio,
		InChannels:        m.AudioInChannels(),
		OutChannels:       m.AudioOutChannels(),
		SoftClip:          m.SoftClip,
		log:               log,
	}, nil
}

// LoadWeights applies a checkpoint to the codec modules. Encoder parameters
// live under "encoder.", decoder parameters under "decoder.", bottleneck
// parameters under "bottleneck.". Weight normalization is folded afterwards
// for inference.
func (a *AudioAutoencoder) LoadWeights(sd weights.StateDict) error {
	if a.Encoder != nil {
		p, ok := a.Encoder.(codec.Parameterized)
		if !ok {
			return fmt.Errorf("encoder does not accept checkpoint weights")
		}
		if err := weights.Apply(sd.StripPrefix("encoder"), p.Parameters(), a.log); err != nil {
			return fmt.Errorf("applying encoder weights: %w", err)
		}
	}
	dp, ok := a.Decoder.(codec.Parameterized)
	if !ok {
		return fmt.Errorf("decoder does not accept checkpoint weights")
	}
	if err := weights.Apply(sd.StripPrefix("decoder"), dp.Parameters(), a.log); err != nil {
		return fmt.Errorf("applying decoder weights: %w", err)
	}
	if q, ok := a.Bottleneck.(*bottleneck.VQ); ok {
		if err := weights.Apply(sd.StripPrefix("bottleneck"), q.Params(), a.log); err != nil {
			return fmt.Errorf("applying bottleneck weights: %w", err)
		}
	}
	a.RemoveWeightNorm()
	return nil
}

// RemoveWeightNorm folds weight normalization in both codecs.
func (a *AudioAutoencoder) RemoveWeightNorm() {
	if wn, ok := a.Encoder.(codec.WeightNormalized); ok {
		wn.RemoveWeightNorm()
	}
	if wn, ok := a.Decoder.(codec.WeightNormalized); ok {
		wn.RemoveWeightNorm()
	}
}

// Ratio is the overall samples-per-latent of the assembled model, the codec
// ratio compounded with the pretransform's.
func (a *AudioAutoencoder) Ratio() int {
	r := a.DownsamplingRatio
	if a.Pretransform != nil {
		r *= a.Pretransform.Ratio()
	}
	return r
}

// processOptions collects the per-call knobs of Encode and Decode.
type processOptions struct {
	iterateBatch bool
}

// ProcessOption adjusts one Encode or Decode call.
type ProcessOption func(*processOptions)

// WithIterateBatch processes batch items one at a time, trading throughput
// for peak memory.
func WithIterateBatch() ProcessOption {
	return func(o *processOptions) { o.iterateBatch = true }
}

// Encode maps audio [B, C, T] to latents [B, D, T/R], running the
// pretransform, encoder, and bottleneck in order.
func (a *AudioAutoencoder) Encode(x *tensor.Signal, opts ...ProcessOption) (*tensor.Signal, error) {
	if a.Encoder == nil {
		return nil, fmt.Errorf("model has no encoder")
	}
	var o processOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.iterateBatch && x.Batch() > 1 {
		parts := make([]*tensor.Signal, x.Batch())
		for b := 0; b < x.Batch(); b++ {
			z, err := a.encodeOne(x.BatchSlice(b, b+1))
			if err != nil {
				return nil, err
			}
			parts[b] = z
		}
		return tensor.StackBatch(parts)
	}
	return a.encodeOne(x)
}

func (a *AudioAutoencoder) encodeOne(x *tensor.Signal) (*tensor.Signal, error) {
	var err error
	if a.Pretransform != nil {
		if x, err = a.Pretransform.Encode(x); err != nil {
			return nil, fmt.Errorf("pretransform encode: %w", err)
		}
	}
	z, err := a.Encoder.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("encoder forward: %w", err)
	}
	if a.Bottleneck != nil {
		if z, err = a.Bottleneck.Encode(z); err != nil {
			return nil, fmt.Errorf("bottleneck encode: %w", err)
		}
	}
	return z, nil
}

// Decode maps latents [B, D, T] to audio [B, C, T*R], running the
// bottleneck, decoder, and pretransform inverses in order.
func (a *AudioAutoencoder) Decode(z *tensor.Signal, opts ...ProcessOption) (*tensor.Signal, error) {
	var o processOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.iterateBatch && z.Batch() > 1 {
		parts := make([]*tensor.Signal, z.Batch())
		for b := 0; b < z.Batch(); b++ {
			y, err := a.decodeOne(z.BatchSlice(b, b+1))
			if err != nil {
				return nil, err
			}
			parts[b] = y
		}
		return tensor.StackBatch(parts)
	}
	return a.decodeOne(z)
}

func (a *AudioAutoencoder) decodeOne(z *tensor.Signal) (*tensor.Signal, error) {
	var err error
	if a.Bottleneck != nil {
		if z, err = a.Bottleneck.Decode(z); err != nil {
			return nil, fmt.Errorf("bottleneck decode: %w", err)
		}
	}
	y, err := a.Decoder.Forward(z)
	if err != nil {
		return nil, fmt.Errorf("decoder forward: %w", err)
	}
	if a.Pretransform != nil {
		if y, err = a.Pretransform.Decode(y); err != nil {
			return nil, fmt.Errorf("pretransform decode: %w", err)
		}
	}
	if a.SoftClip {
		softClip(y)
	}
	return y, nil
}

// DecodeTokens embeds discrete tokens through the bottleneck's codebook and
// decodes the resulting latents.
func (a *AudioAutoencoder) DecodeTokens(tokens [][]int, opts ...ProcessOption) (*tensor.Signal, error) {
	d, ok := a.Bottleneck.(bottleneck.Discrete)
	if !ok {
		return nil, fmt.Errorf("model's bottleneck is not discrete, cannot decode tokens")
	}
	z, err := d.DecodeTokens(tokens)
	if err != nil {
		return nil, fmt.Errorf("embedding tokens: %w", err)
	}
	return a.Decode(z, opts...)
}

// softClip squashes the signal through tanh in place.
func softClip(x *tensor.Signal) {
	data := x.Data()
	for i, v := range data {
		data[i] = float32(math.Tanh(float64(v)))
	}
}

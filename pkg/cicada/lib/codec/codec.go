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

// Package codec defines the encoder/decoder capability pair the autoencoder
// is built around, and its interchangeable implementations: convolutional
// residual stacks, an attention variant, and an ONNX-wrapped external
// codec. Every implementation commits to a fixed, introspectable temporal
// ratio and latent dimensionality.
package codec

import (
	"math/rand"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// Encoder maps a batch of audio [B, C, T] to latents [B, D, T/R], where R
// is the encoder's fixed downsampling ratio. Deterministic given weights.
type Encoder interface {
	Forward(audio *tensor.Signal) (*tensor.Signal, error)

	// Ratio is the number of audio samples represented by one latent frame.
	Ratio() int
	// LatentDim is the latent channel count D.
	LatentDim() int
	// AudioChannels is the audio channel count C.
	AudioChannels() int
}

// Decoder maps latents [B, D, T] back to audio [B, C, T*R], the inverse of
// the matching Encoder.
type Decoder interface {
	Forward(latents *tensor.Signal) (*tensor.Signal, error)

	Ratio() int
	LatentDim() int
	AudioChannels() int
}

// Initializer is implemented by codecs whose parameters can be filled with
// random values when no checkpoint is loaded.
type Initializer interface {
	InitRandom(rng *rand.Rand)
}

// WeightNormalized is implemented by codecs that carry weight-normalized
// parameters which can be folded for inference.
type WeightNormalized interface {
	RemoveWeightNorm()
}

// Parameterized exposes a flat name -> storage view of every learnable
// parameter, used by checkpoint loading. The returned slices alias the
// module's storage, so copying into them applies the weights.
type Parameterized interface {
	Parameters() map[string][]float32
}

// mergeParams copies src entries into dst under prefix.
func mergeParams(dst map[string][]float32, prefix string, src map[string][]float32) {
	for name, p := range src {
		dst[prefix+"."+name] = p
	}
}

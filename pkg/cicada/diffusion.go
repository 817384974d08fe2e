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

package cicada

import (
	"fmt"
	"math/rand"

	"github.com/antflydb/cicada/pkg/cicada/lib/codec"
	"github.com/antflydb/cicada/pkg/cicada/lib/nn"
	"github.com/antflydb/cicada/pkg/cicada/lib/pretransform"
	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// Sampler runs a diffusion sampling loop: given initial noise and a
// conditioning signal of the same length, it returns the denoised signal.
// The sampler owns its network and schedule.
type Sampler interface {
	Sample(noise, cond *tensor.Signal) (*tensor.Signal, error)
}

// DiffusionAutoencoder decodes latents by conditioning a diffusion sampler
// on them instead of running a deterministic decoder. Latents are
// upsampled to audio length by nearest-neighbor repetition before
// conditioning.
type DiffusionAutoencoder struct {
	Encoder      codec.Encoder
	Sampler      Sampler
	Pretransform pretransform.Pretransform

	AudioChannels int
	Ratio         int

	Rng *rand.Rand
}

// NewDiffusionAutoencoder validates the assembly.
func NewDiffusionAutoencoder(enc codec.Encoder, sampler Sampler, pt pretransform.Pretransform, audioChannels int) (*DiffusionAutoencoder, error) {
	if enc == nil {
		return nil, fmt.Errorf("diffusion autoencoder requires an encoder")
	}
	if sampler == nil {
		return nil, fmt.Errorf("diffusion autoencoder requires a sampler")
	}
	if audioChannels <= 0 {
		return nil, fmt.Errorf("invalid audio channel count %d", audioChannels)
	}
	ratio := enc.Ratio()
	if pt != nil {
		ratio *= pt.Ratio()
	}
	return &DiffusionAutoencoder{
		Encoder:       enc,
		Sampler:       sampler,
		Pretransform:  pt,
		AudioChannels: audioChannels,
		Ratio:         ratio,
	}, nil
}

// Encode maps audio to latents through the pretransform and encoder.
func (d *DiffusionAutoencoder) Encode(x *tensor.Signal) (*tensor.Signal, error) {
	var err error
	if d.Pretransform != nil {
		if x, err = d.Pretransform.Encode(x); err != nil {
			return nil, fmt.Errorf("pretransform encode: %w", err)
		}
	}
	return d.Encoder.Forward(x)
}

// Decode samples audio conditioned on the latents. The conditioning signal
// is the latents nearest-upsampled to the output length; the sampling loop
// starts from Gaussian noise.
func (d *DiffusionAutoencoder) Decode(z *tensor.Signal) (*tensor.Signal, error) {
	up := &nn.NearestUpsample{Scale: d.Ratio}
	cond, err := up.Forward(z)
	if err != nil {
		return nil, fmt.Errorf("upsampling latents: %w", err)
	}

	noise := tensor.New(z.Batch(), d.AudioChannels, cond.Len())
	rng := d.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	data := noise.Data()
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}

	y, err := d.Sampler.Sample(noise, cond)
	if err != nil {
		return nil, fmt.Errorf("diffusion sampling: %w", err)
	}
	if d.Pretransform != nil {
		if y, err = d.Pretransform.Decode(y); err != nil {
			return nil, fmt.Errorf("pretransform decode: %w", err)
		}
	}
	return y, nil
}

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

// Package bottleneck constrains the latent space between encoder and
// decoder. A bottleneck sits after the encoder and before the decoder;
// continuous variants reshape the distribution of latents, discrete
// variants additionally map latents to and from integer token grids.
package bottleneck

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// Bottleneck transforms latents on the way into and out of storage. Encode
// may change the channel count (the VAE halves it); Decode accepts what
// Encode produces.
type Bottleneck interface {
	Encode(z *tensor.Signal) (*tensor.Signal, error)
	Decode(z *tensor.Signal) (*tensor.Signal, error)

	// IsDiscrete reports whether the bottleneck quantizes to tokens.
	IsDiscrete() bool
}

// Discrete is implemented by bottlenecks with a token representation.
type Discrete interface {
	Bottleneck

	// EncodeTokens quantizes latents [B, D, T] to indices [B][T].
	EncodeTokens(z *tensor.Signal) ([][]int, error)
	// DecodeTokens embeds indices [B][T] back to latents [B, D, T].
	DecodeTokens(tokens [][]int) (*tensor.Signal, error)
}

// VAE is the variational bottleneck. The encoder emits 2*D channels,
// interpreted as mean and log-variance halves; Encode returns a D-channel
// latent. With Sample set and a source present it draws from the posterior,
// otherwise it returns the mean, which is the deterministic inference path.
type VAE struct {
	Sample bool
	Rng    *rand.Rand
}

// Encode splits mean and log-variance and reduces to D channels.
func (v *VAE) Encode(z *tensor.Signal) (*tensor.Signal, error) {
	if z.Channels()%2 != 0 {
		return nil, fmt.Errorf("bottleneck: vae expects an even channel count, got %d", z.Channels())
	}
	half := z.Channels() / 2
	out := tensor.New(z.Batch(), half, z.Len())
	for b := 0; b < z.Batch(); b++ {
		for c := 0; c < half; c++ {
			mean := z.Row(b, c)
			dst := out.Row(b, c)
			if v.Sample && v.Rng != nil {
				logvar := z.Row(b, c+half)
				for t, m := range mean {
					// Clamp log-variance to keep the scale finite.
					lv := float64(logvar[t])
					if lv > 30 {
						lv = 30
					} else if lv < -30 {
						lv = -30
					}
					std := math.Exp(0.5 * lv)
					dst[t] = m + float32(std*v.Rng.NormFloat64())
				}
			} else {
				copy(dst, mean)
			}
		}
	}
	return out, nil
}

// Decode passes latents through unchanged.
func (v *VAE) Decode(z *tensor.Signal) (*tensor.Signal, error) { return z, nil }

// IsDiscrete reports false.
func (v *VAE) IsDiscrete() bool { return false }

// Tanh squashes latents into [-1, 1] on encode and passes them through on
// decode.
type Tanh struct{}

// Encode applies tanh elementwise.
func (Tanh) Encode(z *tensor.Signal) (*tensor.Signal, error) {
	out := z.Clone()
	data := out.Data()
	for i, v := range data {
		data[i] = float32(math.Tanh(float64(v)))
	}
	return out, nil
}

// Decode passes latents through unchanged.
func (Tanh) Decode(z *tensor.Signal) (*tensor.Signal, error) { return z, nil }

// IsDiscrete reports false.
func (Tanh) IsDiscrete() bool { return false }

// VQ is a vector-quantizing bottleneck with a single codebook. Encode snaps
// every latent frame to its nearest code by Euclidean distance; the token
// form is the code index per frame.
type VQ struct {
	Dim      int
	NumCodes int
	Codebook []float32 // [code][dim]
}

// NewVQ allocates a quantizer with a zeroed codebook, populated by a
// checkpoint or InitRandom.
func NewVQ(dim, numCodes int) (*VQ, error) {
	if dim <= 0 || numCodes <= 0 {
		return nil, fmt.Errorf("bottleneck: vq requires positive dim and code count, got (%d, %d)", dim, numCodes)
	}
	return &VQ{
		Dim:      dim,
		NumCodes: numCodes,
		Codebook: make([]float32, numCodes*dim),
	}, nil
}

// InitRandom fills the codebook with small uniform values.
func (q *VQ) InitRandom(rng *rand.Rand) {
	bound := 1 / math.Sqrt(float64(q.Dim))
	for i := range q.Codebook {
		q.Codebook[i] = float32((rng.Float64()*2 - 1) * bound)
	}
}

// Params exposes the codebook for checkpoint loading.
func (q *VQ) Params() map[string][]float32 {
	return map[string][]float32{"codebook": q.Codebook}
}

// nearest returns the index of the closest code to the frame vector.
func (q *VQ) nearest(frame []float32) int {
	best, bestDist := 0, math.MaxFloat64
	for code := 0; code < q.NumCodes; code++ {
		cb := q.Codebook[code*q.Dim : (code+1)*q.Dim]
		var dist float64
		for i, v := range frame {
			d := float64(v - cb[i])
			dist += d * d
		}
		if dist < bestDist {
			best, bestDist = code, dist
		}
	}
	return best
}

// EncodeTokens quantizes latents to code indices.
func (q *VQ) EncodeTokens(z *tensor.Signal) ([][]int, error) {
	if z.Channels() != q.Dim {
		return nil, fmt.Errorf("bottleneck: vq expects %d channels, got %d", q.Dim, z.Channels())
	}
	tokens := make([][]int, z.Batch())
	frame := make([]float32, q.Dim)
	for b := 0; b < z.Batch(); b++ {
		tokens[b] = make([]int, z.Len())
		for t := 0; t < z.Len(); t++ {
			for c := 0; c < q.Dim; c++ {
				frame[c] = z.At(b, c, t)
			}
			tokens[b][t] = q.nearest(frame)
		}
	}
	return tokens, nil
}

// DecodeTokens embeds code indices back into latent space.
func (q *VQ) DecodeTokens(tokens [][]int) (*tensor.Signal, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("bottleneck: vq got an empty token batch")
	}
	n := len(tokens[0])
	out := tensor.New(len(tokens), q.Dim, n)
	for b, row := range tokens {
		if len(row) != n {
			return nil, fmt.Errorf("bottleneck: ragged token batch (%d vs %d frames)", len(row), n)
		}
		for t, code := range row {
			if code < 0 || code >= q.NumCodes {
				return nil, fmt.Errorf("bottleneck: token %d out of range [0, %d)", code, q.NumCodes)
			}
			cb := q.Codebook[code*q.Dim : (code+1)*q.Dim]
			for c, v := range cb {
				out.Set(b, c, t, v)
			}
		}
	}
	return out, nil
}

// Encode snaps latents to their nearest codes.
func (q *VQ) Encode(z *tensor.Signal) (*tensor.Signal, error) {
	tokens, err := q.EncodeTokens(z)
	if err != nil {
		return nil, err
	}
	return q.DecodeTokens(tokens)
}

// Decode passes quantized latents through unchanged.
func (q *VQ) Decode(z *tensor.Signal) (*tensor.Signal, error) { return z, nil }

// IsDiscrete reports true.
func (q *VQ) IsDiscrete() bool { return true }

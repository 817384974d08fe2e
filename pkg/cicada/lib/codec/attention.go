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
	"math"
	"math/rand"

	"github.com/antflydb/cicada/pkg/cicada/lib/nn"
	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// attnBlock is one pre-norm transformer block over patch frames: layer norm,
// multi-head self-attention, residual add, layer norm, two-layer feed
// forward, residual add.
type attnBlock struct {
	heads int

	norm1 *nn.LayerNorm
	qProj *nn.Linear
	kProj *nn.Linear
	vProj *nn.Linear
	oProj *nn.Linear

	norm2 *nn.LayerNorm
	ff1   *nn.Linear
	ff2   *nn.Linear
}

func newAttnBlock(dim, heads, ffMult int) (*attnBlock, error) {
	if dim%heads != 0 {
		return nil, fmt.Errorf("codec: embed dim %d not divisible by %d heads", dim, heads)
	}
	return &attnBlock{
		heads: heads,
		norm1: nn.NewLayerNorm(dim),
		qProj: nn.NewLinear(dim, dim),
		kProj: nn.NewLinear(dim, dim),
		vProj: nn.NewLinear(dim, dim),
		oProj: nn.NewLinear(dim, dim),
		norm2: nn.NewLayerNorm(dim),
		ff1:   nn.NewLinear(dim, dim*ffMult),
		ff2:   nn.NewLinear(dim*ffMult, dim),
	}, nil
}

func (b *attnBlock) forward(x *tensor.Signal) (*tensor.Signal, error) {
	h, err := b.norm1.Forward(x)
	if err != nil {
		return nil, err
	}
	q, err := b.qProj.Forward(h)
	if err != nil {
		return nil, err
	}
	k, err := b.kProj.Forward(h)
	if err != nil {
		return nil, err
	}
	v, err := b.vProj.Forward(h)
	if err != nil {
		return nil, err
	}

	dim := x.Channels()
	headDim := dim / b.heads
	scale := float32(1 / math.Sqrt(float64(headDim)))
	n := x.Len()

	attn := tensor.New(x.Batch(), dim, n)
	scores := make([]float32, n)
	for bi := 0; bi < x.Batch(); bi++ {
		for hd := 0; hd < b.heads; hd++ {
			c0 := hd * headDim
			for ti := 0; ti < n; ti++ {
				for tj := 0; tj < n; tj++ {
					var dot float32
					for c := c0; c < c0+headDim; c++ {
						dot += q.At(bi, c, ti) * k.At(bi, c, tj)
					}
					scores[tj] = dot * scale
				}
				nn.Softmax(scores)
				for c := c0; c < c0+headDim; c++ {
					var acc float32
					row := v.Row(bi, c)
					for tj, s := range scores {
						acc += s * row[tj]
					}
					attn.Set(bi, c, ti, acc)
				}
			}
		}
	}

	o, err := b.oProj.Forward(attn)
	if err != nil {
		return nil, err
	}
	res := o.Data()
	for i, xv := range x.Data() {
		res[i] += xv
	}

	h, err = b.norm2.Forward(o)
	if err != nil {
		return nil, err
	}
	if h, err = b.ff1.Forward(h); err != nil {
		return nil, err
	}
	if h, err = (nn.SiLU{}).Forward(h); err != nil {
		return nil, err
	}
	if h, err = b.ff2.Forward(h); err != nil {
		return nil, err
	}
	out := h.Data()
	for i, v := range o.Data() {
		out[i] += v
	}
	return h, nil
}

func (b *attnBlock) params() map[string][]float32 {
	p := map[string][]float32{}
	mergeParams(p, "norm1", b.norm1.Params())
	mergeParams(p, "q", b.qProj.Params())
	mergeParams(p, "k", b.kProj.Params())
	mergeParams(p, "v", b.vProj.Params())
	mergeParams(p, "o", b.oProj.Params())
	mergeParams(p, "norm2", b.norm2.Params())
	mergeParams(p, "ff1", b.ff1.Params())
	mergeParams(p, "ff2", b.ff2.Params())
	return p
}

func (b *attnBlock) initRandom(rng *rand.Rand) {
	for _, l := range []*nn.Linear{b.qProj, b.kProj, b.vProj, b.oProj, b.ff1, b.ff2} {
		l.InitRandom(rng)
	}
}

// AttentionCodecConfig parameterizes the transformer encoder and decoder.
// PatchSize is the downsampling ratio: the signal is folded into frames of
// PatchSize samples per channel before the transformer runs.
type AttentionCodecConfig struct {
	AudioChannels int
	LatentDim     int
	PatchSize     int
	EmbedDim      int
	Depth         int
	Heads         int
	FFMult        int
}

func (c *AttentionCodecConfig) applyDefaults() {
	if c.AudioChannels == 0 {
		c.AudioChannels = 2
	}
	if c.LatentDim == 0 {
		c.LatentDim = 32
	}
	if c.PatchSize == 0 {
		c.PatchSize = 128
	}
	if c.EmbedDim == 0 {
		c.EmbedDim = 768
	}
	if c.Depth == 0 {
		c.Depth = 12
	}
	if c.Heads == 0 {
		c.Heads = 8
	}
	if c.FFMult == 0 {
		c.FFMult = 4
	}
}

func (c AttentionCodecConfig) validate() error {
	if c.PatchSize < 1 {
		return fmt.Errorf("codec: patch size must be positive, got %d", c.PatchSize)
	}
	if c.EmbedDim%c.Heads != 0 {
		return fmt.Errorf("codec: embed dim %d not divisible by %d heads", c.EmbedDim, c.Heads)
	}
	return nil
}

// patchify folds [B, C, T] into [B, C*P, T/P] frames, interleaving the P
// samples of each patch under the channel axis.
func patchify(x *tensor.Signal, patch int) (*tensor.Signal, error) {
	if x.Len()%patch != 0 {
		return nil, fmt.Errorf("codec: signal length %d not divisible by patch size %d", x.Len(), patch)
	}
	frames := x.Len() / patch
	out := tensor.New(x.Batch(), x.Channels()*patch, frames)
	for b := 0; b < x.Batch(); b++ {
		for c := 0; c < x.Channels(); c++ {
			src := x.Row(b, c)
			for p := 0; p < patch; p++ {
				dst := out.Row(b, c*patch+p)
				for f := 0; f < frames; f++ {
					dst[f] = src[f*patch+p]
				}
			}
		}
	}
	return out, nil
}

// unpatchify is the inverse of patchify.
func unpatchify(x *tensor.Signal, channels, patch int) (*tensor.Signal, error) {
	if x.Channels() != channels*patch {
		return nil, fmt.Errorf("codec: expected %d patch channels, got %d", channels*patch, x.Channels())
	}
	out := tensor.New(x.Batch(), channels, x.Len()*patch)
	for b := 0; b < x.Batch(); b++ {
		for c := 0; c < channels; c++ {
			dst := out.Row(b, c)
			for p := 0; p < patch; p++ {
				src := x.Row(b, c*patch+p)
				for f, v := range src {
					dst[f*patch+p] = v
				}
			}
		}
	}
	return out, nil
}

// AttentionEncoder maps patches of PatchSize samples through a transformer
// stack and projects to the latent dimension. One latent frame per patch,
// so the temporal ratio equals the patch size.
type AttentionEncoder struct {
	audioChannels int
	latentDim     int
	patch         int

	proj   *nn.Linear
	blocks []*attnBlock
	norm   *nn.LayerNorm
	out    *nn.Linear
}

// NewAttentionEncoder assembles the encoder from its configuration.
func NewAttentionEncoder(cfg AttentionCodecConfig) (*AttentionEncoder, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &AttentionEncoder{
		audioChannels: cfg.AudioChannels,
		latentDim:     cfg.LatentDim,
		patch:         cfg.PatchSize,
		proj:          nn.NewLinear(cfg.AudioChannels*cfg.PatchSize, cfg.EmbedDim),
		norm:          nn.NewLayerNorm(cfg.EmbedDim),
		out:           nn.NewLinear(cfg.EmbedDim, cfg.LatentDim),
	}
	for i := 0; i < cfg.Depth; i++ {
		b, err := newAttnBlock(cfg.EmbedDim, cfg.Heads, cfg.FFMult)
		if err != nil {
			return nil, err
		}
		e.blocks = append(e.blocks, b)
	}
	return e, nil
}

// Forward encodes audio [B, C, T] into latents [B, D, T/P].
func (e *AttentionEncoder) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	if x.Channels() != e.audioChannels {
		return nil, fmt.Errorf("codec: encoder expects %d audio channels, got %d", e.audioChannels, x.Channels())
	}
	h, err := patchify(x, e.patch)
	if err != nil {
		return nil, err
	}
	if h, err = e.proj.Forward(h); err != nil {
		return nil, err
	}
	for _, b := range e.blocks {
		if h, err = b.forward(h); err != nil {
			return nil, err
		}
	}
	if h, err = e.norm.Forward(h); err != nil {
		return nil, err
	}
	return e.out.Forward(h)
}

func (e *AttentionEncoder) Ratio() int         { return e.patch }
func (e *AttentionEncoder) LatentDim() int     { return e.latentDim }
func (e *AttentionEncoder) AudioChannels() int { return e.audioChannels }

// InitRandom fills every projection with random weights.
func (e *AttentionEncoder) InitRandom(rng *rand.Rand) {
	e.proj.InitRandom(rng)
	for _, b := range e.blocks {
		b.initRandom(rng)
	}
	e.out.InitRandom(rng)
}

// Parameters returns the flat parameter map.
func (e *AttentionEncoder) Parameters() map[string][]float32 {
	p := map[string][]float32{}
	mergeParams(p, "proj", e.proj.Params())
	for i, b := range e.blocks {
		mergeParams(p, fmt.Sprintf("blocks.%d", i), b.params())
	}
	mergeParams(p, "norm", e.norm.Params())
	mergeParams(p, "out", e.out.Params())
	return p
}

// AttentionDecoder is the mirror of AttentionEncoder: latents are projected
// into the transformer width, run through the stack, and unfolded back into
// PatchSize samples per frame.
type AttentionDecoder struct {
	audioChannels int
	latentDim     int
	patch         int

	proj   *nn.Linear
	blocks []*attnBlock
	norm   *nn.LayerNorm
	out    *nn.Linear
}

// NewAttentionDecoder assembles the decoder from its configuration.
func NewAttentionDecoder(cfg AttentionCodecConfig) (*AttentionDecoder, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	d := &AttentionDecoder{
		audioChannels: cfg.AudioChannels,
		latentDim:     cfg.LatentDim,
		patch:         cfg.PatchSize,
		proj:          nn.NewLinear(cfg.LatentDim, cfg.EmbedDim),
		norm:          nn.NewLayerNorm(cfg.EmbedDim),
		out:           nn.NewLinear(cfg.EmbedDim, cfg.AudioChannels*cfg.PatchSize),
	}
	for i := 0; i < cfg.Depth; i++ {
		b, err := newAttnBlock(cfg.EmbedDim, cfg.Heads, cfg.FFMult)
		if err != nil {
			return nil, err
		}
		d.blocks = append(d.blocks, b)
	}
	return d, nil
}

// Forward decodes latents [B, D, T] into audio [B, C, T*P].
func (d *AttentionDecoder) Forward(z *tensor.Signal) (*tensor.Signal, error) {
	if z.Channels() != d.latentDim {
		return nil, fmt.Errorf("codec: decoder expects %d latent channels, got %d", d.latentDim, z.Channels())
	}
	h, err := d.proj.Forward(z)
	if err != nil {
		return nil, err
	}
	for _, b := range d.blocks {
		if h, err = b.forward(h); err != nil {
			return nil, err
		}
	}
	if h, err = d.norm.Forward(h); err != nil {
		return nil, err
	}
	if h, err = d.out.Forward(h); err != nil {
		return nil, err
	}
	return unpatchify(h, d.audioChannels, d.patch)
}

func (d *AttentionDecoder) Ratio() int         { return d.patch }
func (d *AttentionDecoder) LatentDim() int     { return d.latentDim }
func (d *AttentionDecoder) AudioChannels() int { return d.audioChannels }

// InitRandom fills every projection with random weights.
func (d *AttentionDecoder) InitRandom(rng *rand.Rand) {
	d.proj.InitRandom(rng)
	for _, b := range d.blocks {
		b.initRandom(rng)
	}
	d.out.InitRandom(rng)
}

// Parameters returns the flat parameter map.
func (d *AttentionDecoder) Parameters() map[string][]float32 {
	p := map[string][]float32{}
	mergeParams(p, "proj", d.proj.Params())
	for i, b := range d.blocks {
		mergeParams(p, fmt.Sprintf("blocks.%d", i), b.params())
	}
	mergeParams(p, "norm", d.norm.Params())
	mergeParams(p, "out", d.out.Params())
	return p
}

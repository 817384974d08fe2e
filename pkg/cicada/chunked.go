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
	"time"

	"go.uber.org/zap"

	"github.com/antflydb/cicada/pkg/cicada/lib/chunking"
	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// ChunkConfig controls the streaming paths. ChunkSize and Overlap are in
// latent frames regardless of direction, so the same values serve encoding
// and decoding; the encode path converts them to samples with the model
// ratio. Overlap should be at least the codec's receptive field; zero is
// legal but leaves boundary artifacts. Disabled, the whole signal goes
// through the codec in one call.
type ChunkConfig struct {
	Enabled   bool
	ChunkSize int
	Overlap   int
}

// DefaultChunkConfig trades a small chunk (less memory, more windows) for
// a generous overlap.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{Enabled: true, ChunkSize: 128, Overlap: 32}
}

func (c ChunkConfig) validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		return fmt.Errorf("overlap must be in [0, chunk size), got %d with chunk size %d", c.Overlap, c.ChunkSize)
	}
	return nil
}

// EncodeAudio encodes audio of arbitrary length. With chunking disabled or
// a signal no longer than one window, it is a single Encode call. Otherwise
// the signal is windowed, each window encoded independently, and the
// outputs stitched into one latent sequence with the window edges trimmed.
// The input length must be a multiple of the model ratio; use the
// preprocessing helpers to pad first.
func (a *AudioAutoencoder) EncodeAudio(x *tensor.Signal, cc ChunkConfig) (*tensor.Signal, error) {
	start := time.Now()
	defer func() {
		encodeDuration.Observe(time.Since(start).Seconds())
		encodesTotal.Inc()
	}()

	ratio := a.Ratio()
	if x.Len()%ratio != 0 {
		return nil, fmt.Errorf("signal length %d is not a multiple of the model ratio %d; pad the input first",
			x.Len(), ratio)
	}
	chunkSamples := cc.ChunkSize * ratio
	overlapSamples := cc.Overlap * ratio
	if !cc.Enabled || x.Len() <= chunkSamples {
		return a.Encode(x)
	}
	if err := cc.validate(); err != nil {
		return nil, err
	}

	windows, err := chunking.Plan(x.Len(), chunkSamples, overlapSamples)
	if err != nil {
		return nil, err
	}
	a.log.Debug("chunked encode",
		zap.Int("samples", x.Len()),
		zap.Int("windows", len(windows)),
		zap.Int("chunk_size", cc.ChunkSize),
		zap.Int("overlap", cc.Overlap))

	scale := chunking.Scale{Num: 1, Den: ratio}
	chunkOut := cc.ChunkSize
	outLen := scale.Apply(x.Len())
	placements := chunking.Placements(windows, chunkSamples, overlapSamples, outLen, scale)

	var out *tensor.Signal
	for i, w := range windows {
		z, err := a.Encode(x.TimeSlice(w.Start, w.End))
		if err != nil {
			return nil, fmt.Errorf("encoding window %d [%d, %d): %w", i, w.Start, w.End, err)
		}
		if z.Len() != chunkOut {
			return nil, fmt.Errorf("encoder produced %d latent frames for window %d, expected %d",
				z.Len(), i, chunkOut)
		}
		if out == nil {
			out = tensor.New(x.Batch(), z.Channels(), outLen)
		}
		p := placements[i]
		if err := out.PasteTime(z, p.DstStart, p.DstEnd, p.SrcStart, p.SrcEnd); err != nil {
			return nil, fmt.Errorf("stitching window %d: %w", i, err)
		}
		chunksTotal.Inc()
	}
	return out, nil
}

// DecodeAudio decodes latents of arbitrary length, the mirror of
// EncodeAudio. ChunkSize and Overlap are already in latent frames, the
// domain being chunked, so no conversion happens on the way in.
func (a *AudioAutoencoder) DecodeAudio(z *tensor.Signal, cc ChunkConfig) (*tensor.Signal, error) {
	start := time.Now()
	defer func() {
		decodeDuration.Observe(time.Since(start).Seconds())
		decodesTotal.Inc()
	}()

	ratio := a.Ratio()
	if !cc.Enabled || z.Len() <= cc.ChunkSize {
		return a.Decode(z)
	}
	if err := cc.validate(); err != nil {
		return nil, err
	}

	windows, err := chunking.Plan(z.Len(), cc.ChunkSize, cc.Overlap)
	if err != nil {
		return nil, err
	}
	a.log.Debug("chunked decode",
		zap.Int("latents", z.Len()),
		zap.Int("windows", len(windows)),
		zap.Int("chunk_size", cc.ChunkSize),
		zap.Int("overlap", cc.Overlap))

	scale := chunking.Scale{Num: ratio, Den: 1}
	chunkOut := cc.ChunkSize * ratio
	outLen := scale.Apply(z.Len())
	placements := chunking.Placements(windows, cc.ChunkSize, cc.Overlap, outLen, scale)

	var out *tensor.Signal
	for i, w := range windows {
		y, err := a.Decode(z.TimeSlice(w.Start, w.End))
		if err != nil {
			return nil, fmt.Errorf("decoding window %d [%d, %d): %w", i, w.Start, w.End, err)
		}
		if y.Len() != chunkOut {
			return nil, fmt.Errorf("decoder produced %d samples for window %d, expected %d",
				y.Len(), i, chunkOut)
		}
		if out == nil {
			out = tensor.New(z.Batch(), y.Channels(), outLen)
		}
		p := placements[i]
		if err := out.PasteTime(y, p.DstStart, p.DstEnd, p.SrcStart, p.SrcEnd); err != nil {
			return nil, fmt.Errorf("stitching window %d: %w", i, err)
		}
		chunksTotal.Inc()
	}
	return out, nil
}

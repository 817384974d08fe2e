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

package audio

import (
	"fmt"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// Resample converts a signal between sample rates with linear
// interpolation. Identical rates return the input unchanged.
func Resample(sig *tensor.Signal, from, to int) (*tensor.Signal, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", from, to)
	}
	if from == to {
		return sig, nil
	}
	outLen := int(int64(sig.Len()) * int64(to) / int64(from))
	if outLen == 0 {
		return nil, fmt.Errorf("resampling %d samples from %dHz to %dHz yields no output", sig.Len(), from, to)
	}
	out := tensor.New(sig.Batch(), sig.Channels(), outLen)
	ratio := float64(from) / float64(to)
	for b := 0; b < sig.Batch(); b++ {
		for c := 0; c < sig.Channels(); c++ {
			src := sig.Row(b, c)
			dst := out.Row(b, c)
			for t := 0; t < outLen; t++ {
				pos := float64(t) * ratio
				i := int(pos)
				if i >= len(src)-1 {
					dst[t] = src[len(src)-1]
					continue
				}
				frac := float32(pos - float64(i))
				dst[t] = src[i]*(1-frac) + src[i+1]*frac
			}
		}
	}
	return out, nil
}

// ToChannels adapts a signal's channel count: mono is duplicated up,
// multi-channel is averaged down to mono. Other conversions fail.
func ToChannels(sig *tensor.Signal, channels int) (*tensor.Signal, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("invalid target channel count %d", channels)
	}
	if sig.Channels() == channels {
		return sig, nil
	}
	if sig.Channels() == 1 {
		out := tensor.New(sig.Batch(), channels, sig.Len())
		for b := 0; b < sig.Batch(); b++ {
			src := sig.Row(b, 0)
			for c := 0; c < channels; c++ {
				copy(out.Row(b, c), src)
			}
		}
		return out, nil
	}
	if channels == 1 {
		out := tensor.New(sig.Batch(), 1, sig.Len())
		inv := 1 / float32(sig.Channels())
		for b := 0; b < sig.Batch(); b++ {
			dst := out.Row(b, 0)
			for c := 0; c < sig.Channels(); c++ {
				for t, v := range sig.Row(b, c) {
					dst[t] += v * inv
				}
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot convert %d channels to %d", sig.Channels(), channels)
}

// PadToMultiple zero-pads the signal's tail so its length is a multiple of
// n. Already-aligned signals return unchanged.
func PadToMultiple(sig *tensor.Signal, n int) (*tensor.Signal, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid alignment %d", n)
	}
	rem := sig.Len() % n
	if rem == 0 {
		return sig, nil
	}
	out := tensor.New(sig.Batch(), sig.Channels(), sig.Len()+n-rem)
	for b := 0; b < sig.Batch(); b++ {
		for c := 0; c < sig.Channels(); c++ {
			copy(out.Row(b, c), sig.Row(b, c))
		}
	}
	return out, nil
}

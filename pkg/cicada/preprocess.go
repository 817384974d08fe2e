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

	"github.com/antflydb/cicada/pkg/cicada/lib/audio"
	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// PreprocessAudio prepares a decoded file for the encoder: resamples to the
// model rate, adapts the channel count, and zero-pads the tail to a
// multiple of the model ratio.
func (a *AudioAutoencoder) PreprocessAudio(sig *tensor.Signal, sourceRate int) (*tensor.Signal, error) {
	sig, err := audio.Resample(sig, sourceRate, a.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("resampling: %w", err)
	}
	sig, err = audio.ToChannels(sig, a.InChannels)
	if err != nil {
		return nil, fmt.Errorf("adapting channels: %w", err)
	}
	sig, err = audio.PadToMultiple(sig, a.Ratio())
	if err != nil {
		return nil, fmt.Errorf("aligning length: %w", err)
	}
	return sig, nil
}

// PreprocessAudioList prepares several signals and batch-pads them to a
// common length so they can be encoded in one call.
func (a *AudioAutoencoder) PreprocessAudioList(sigs []*tensor.Signal, sourceRates []int) (*tensor.Signal, error) {
	if len(sigs) == 0 {
		return nil, fmt.Errorf("empty signal list")
	}
	if len(sigs) != len(sourceRates) {
		return nil, fmt.Errorf("%d signals but %d sample rates", len(sigs), len(sourceRates))
	}

	prepared := make([]*tensor.Signal, len(sigs))
	maxLen := 0
	for i, sig := range sigs {
		p, err := a.PreprocessAudio(sig, sourceRates[i])
		if err != nil {
			return nil, fmt.Errorf("preprocessing signal %d: %w", i, err)
		}
		prepared[i] = p
		if p.Len() > maxLen {
			maxLen = p.Len()
		}
	}

	for i, p := range prepared {
		if p.Len() == maxLen {
			continue
		}
		padded := tensor.New(p.Batch(), p.Channels(), maxLen)
		for b := 0; b < p.Batch(); b++ {
			for c := 0; c < p.Channels(); c++ {
				copy(padded.Row(b, c), p.Row(b, c))
			}
		}
		prepared[i] = padded
	}

	return tensor.StackBatch(prepared)
}

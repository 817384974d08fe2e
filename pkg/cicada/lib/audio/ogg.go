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
	"bytes"
	"fmt"

	"github.com/jfreymuth/oggvorbis"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// ParseOgg decodes an Ogg Vorbis file into a [1, C, T] signal. Vorbis
// decodes to float32 directly, no quantization scale applies.
func ParseOgg(data []byte) (*tensor.Signal, Format, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, Format{}, fmt.Errorf("decoding Ogg Vorbis: %w", err)
	}
	if len(samples) == 0 {
		return nil, Format{}, fmt.Errorf("Ogg file contains no audio data")
	}

	channels := format.Channels
	frames := len(samples) / channels
	sig := tensor.New(1, channels, frames)
	for c := 0; c < channels; c++ {
		dst := sig.Row(0, c)
		for t := 0; t < frames; t++ {
			dst[t] = samples[t*channels+c]
		}
	}

	return sig, Format{
		SampleRate:    format.SampleRate,
		BitsPerSample: 32,
		NumChannels:   channels,
	}, nil
}

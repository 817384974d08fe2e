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
	"encoding/binary"
	"fmt"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// ParseMP3 decodes an MP3 file into a [1, 2, T] stereo signal in [-1, 1].
// The decoder always outputs signed 16-bit little-endian stereo PCM at the
// MP3's sample rate.
func ParseMP3(data []byte) (*tensor.Signal, Format, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, Format{}, fmt.Errorf("creating MP3 decoder: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, Format{}, fmt.Errorf("decoding MP3: %w", err)
	}
	if len(pcm) == 0 {
		return nil, Format{}, fmt.Errorf("MP3 file contains no audio data")
	}

	// go-mp3 outputs signed 16-bit LE stereo (4 bytes per frame: 2 channels * 2 bytes)
	const (
		bytesPerSample = 2
		numChannels    = 2
		bytesPerFrame  = bytesPerSample * numChannels
	)

	frames := len(pcm) / bytesPerFrame
	sig := tensor.New(1, numChannels, frames)
	left := sig.Row(0, 0)
	right := sig.Row(0, 1)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerFrame:]))
		r := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerFrame+bytesPerSample:]))
		left[i] = float32(l) / 32768.0
		right[i] = float32(r) / 32768.0
	}

	return sig, Format{
		SampleRate:    decoder.SampleRate(),
		BitsPerSample: 16,
		NumChannels:   numChannels,
	}, nil
}

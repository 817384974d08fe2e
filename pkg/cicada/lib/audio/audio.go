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

// Package audio decodes and encodes audio files and prepares signals for
// the model: resampling, channel folding, and length alignment. Decoded
// audio is float32 in [-1, 1] with shape [1, channels, samples].
package audio

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// Format describes decoded audio.
type Format struct {
	SampleRate    int
	BitsPerSample int
	NumChannels   int
}

// Parse decodes an audio file by extension: .wav, .mp3, .ogg.
func Parse(path string, data []byte) (*tensor.Signal, Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return ParseWAV(data)
	case ".mp3":
		return ParseMP3(data)
	case ".ogg":
		return ParseOgg(data)
	default:
		return nil, Format{}, fmt.Errorf("unsupported audio extension %q (want .wav, .mp3 or .ogg)", ext)
	}
}

// ParseWAV decodes a WAV file into a [1, C, T] signal in [-1, 1].
func ParseWAV(data []byte) (*tensor.Signal, Format, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, Format{}, fmt.Errorf("invalid WAV data")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("decoding WAV: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, Format{}, fmt.Errorf("WAV file contains no audio data")
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		return nil, Format{}, fmt.Errorf("WAV file reports %d channels", channels)
	}
	frames := len(buf.Data) / channels
	bitDepth := int(decoder.BitDepth)
	scale := float32(1) / float32(int64(1)<<(bitDepth-1))

	sig := tensor.New(1, channels, frames)
	for c := 0; c < channels; c++ {
		dst := sig.Row(0, c)
		for t := 0; t < frames; t++ {
			dst[t] = float32(buf.Data[t*channels+c]) * scale
		}
	}

	return sig, Format{
		SampleRate:    buf.Format.SampleRate,
		BitsPerSample: bitDepth,
		NumChannels:   channels,
	}, nil
}

// writeSeeker is an in-memory io.WriteSeeker for the WAV encoder, which
// seeks back to patch chunk sizes.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if need := w.pos + len(p); need > len(w.buf) {
		w.buf = append(w.buf, make([]byte, need-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(w.pos) + offset
	case io.SeekEnd:
		pos = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative seek position %d", pos)
	}
	w.pos = int(pos)
	return pos, nil
}

// EncodeWAV writes a [1, C, T] signal as PCM WAV. Samples outside [-1, 1]
// are clipped.
func EncodeWAV(sig *tensor.Signal, sampleRate, bitDepth int) ([]byte, error) {
	if sig.Batch() != 1 {
		return nil, fmt.Errorf("encoding expects a single signal, got batch %d", sig.Batch())
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d (want 16, 24 or 32)", bitDepth)
	}

	channels := sig.Channels()
	frames := sig.Len()
	maxVal := float64(int64(1)<<(bitDepth-1) - 1)

	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: bitDepth,
		Data:           make([]int, frames*channels),
	}
	for c := 0; c < channels; c++ {
		src := sig.Row(0, c)
		for t, v := range src {
			f := float64(v)
			if f > 1 {
				f = 1
			} else if f < -1 {
				f = -1
			}
			buf.Data[t*channels+c] = int(f * maxVal)
		}
	}

	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, bitDepth, channels, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encoding WAV: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalizing WAV: %w", err)
	}
	return ws.buf, nil
}

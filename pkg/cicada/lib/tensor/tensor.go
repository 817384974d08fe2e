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

// Package tensor provides the 3-axis float32 signal type shared by every
// model component: a batch of multi-channel sequences, indexed either in
// the sample domain (raw audio) or the latent domain (downsampled frames).
package tensor

import "fmt"

// Signal is a (batch, channel, time) tensor backed by a single flat slice.
// The time axis unit depends on context: one audio sample, or one latent
// frame. A Signal is exclusively owned by the call that allocated it.
type Signal struct {
	data     []float32
	batch    int
	channels int
	length   int
}

// New allocates a zero-initialized Signal of the given shape.
func New(batch, channels, length int) *Signal {
	if batch <= 0 || channels <= 0 || length < 0 {
		panic(fmt.Sprintf("tensor: invalid shape (%d, %d, %d)", batch, channels, length))
	}
	return &Signal{
		data:     make([]float32, batch*channels*length),
		batch:    batch,
		channels: channels,
		length:   length,
	}
}

// FromData wraps an existing flat slice laid out as [batch][channel][time].
// The slice is owned by the returned Signal afterwards.
func FromData(data []float32, batch, channels, length int) (*Signal, error) {
	if len(data) != batch*channels*length {
		return nil, fmt.Errorf("tensor: data length %d does not match shape (%d, %d, %d)",
			len(data), batch, channels, length)
	}
	return &Signal{data: data, batch: batch, channels: channels, length: length}, nil
}

// Batch returns the batch size.
func (s *Signal) Batch() int { return s.batch }

// Channels returns the channel count.
func (s *Signal) Channels() int { return s.channels }

// Len returns the time-axis length.
func (s *Signal) Len() int { return s.length }

// Data returns the flat backing slice.
func (s *Signal) Data() []float32 { return s.data }

// At returns the value at (b, c, t).
func (s *Signal) At(b, c, t int) float32 {
	return s.data[(b*s.channels+c)*s.length+t]
}

// Set stores v at (b, c, t).
func (s *Signal) Set(b, c, t int, v float32) {
	s.data[(b*s.channels+c)*s.length+t] = v
}

// Row returns the contiguous time series for (b, c). The returned slice
// aliases the backing store.
func (s *Signal) Row(b, c int) []float32 {
	off := (b*s.channels + c) * s.length
	return s.data[off : off+s.length]
}

// Clone returns a deep copy.
func (s *Signal) Clone() *Signal {
	out := New(s.batch, s.channels, s.length)
	copy(out.data, s.data)
	return out
}

// TimeSlice copies the window [start, end) along the time axis.
func (s *Signal) TimeSlice(start, end int) *Signal {
	if start < 0 || end > s.length || start > end {
		panic(fmt.Sprintf("tensor: time slice [%d, %d) out of range for length %d", start, end, s.length))
	}
	out := New(s.batch, s.channels, end-start)
	for b := 0; b < s.batch; b++ {
		for c := 0; c < s.channels; c++ {
			copy(out.Row(b, c), s.Row(b, c)[start:end])
		}
	}
	return out
}

// PasteTime writes src[srcStart:srcEnd) into s[dstStart:dstEnd) along the
// time axis for every (batch, channel). Both ranges must have equal length;
// batch and channel counts must match. This is the arena-style write the
// chunk stitcher relies on.
func (s *Signal) PasteTime(src *Signal, dstStart, dstEnd, srcStart, srcEnd int) error {
	if src.batch != s.batch || src.channels != s.channels {
		return fmt.Errorf("tensor: paste shape mismatch: (%d, %d) into (%d, %d)",
			src.batch, src.channels, s.batch, s.channels)
	}
	if dstEnd-dstStart != srcEnd-srcStart {
		return fmt.Errorf("tensor: paste range mismatch: [%d, %d) <- [%d, %d)",
			dstStart, dstEnd, srcStart, srcEnd)
	}
	if dstStart < 0 || dstEnd > s.length || srcStart < 0 || srcEnd > src.length {
		return fmt.Errorf("tensor: paste range out of bounds: dst [%d, %d) of %d, src [%d, %d) of %d",
			dstStart, dstEnd, s.length, srcStart, srcEnd, src.length)
	}
	for b := 0; b < s.batch; b++ {
		for c := 0; c < s.channels; c++ {
			copy(s.Row(b, c)[dstStart:dstEnd], src.Row(b, c)[srcStart:srcEnd])
		}
	}
	return nil
}

// StackBatch concatenates signals along the batch axis. All inputs must
// share channel count and length.
func StackBatch(signals []*Signal) (*Signal, error) {
	if len(signals) == 0 {
		return nil, fmt.Errorf("tensor: cannot stack zero signals")
	}
	channels, length := signals[0].channels, signals[0].length
	total := 0
	for i, sig := range signals {
		if sig.channels != channels || sig.length != length {
			return nil, fmt.Errorf("tensor: stack shape mismatch at %d: (%d, %d) != (%d, %d)",
				i, sig.channels, sig.length, channels, length)
		}
		total += sig.batch
	}
	out := New(total, channels, length)
	off := 0
	for _, sig := range signals {
		copy(out.data[off:], sig.data)
		off += len(sig.data)
	}
	return out, nil
}

// BatchSlice copies the batch rows [start, end).
func (s *Signal) BatchSlice(start, end int) *Signal {
	if start < 0 || end > s.batch || start >= end {
		panic(fmt.Sprintf("tensor: batch slice [%d, %d) out of range for batch %d", start, end, s.batch))
	}
	out := New(end-start, s.channels, s.length)
	copy(out.data, s.data[start*s.channels*s.length:end*s.channels*s.length])
	return out
}

// MaxAbsDiff returns the maximum absolute elementwise difference between two
// signals of identical shape. Used to measure chunked-vs-unchunked drift.
func MaxAbsDiff(a, b *Signal) (float32, error) {
	if a.batch != b.batch || a.channels != b.channels || a.length != b.length {
		return 0, fmt.Errorf("tensor: diff shape mismatch: (%d, %d, %d) vs (%d, %d, %d)",
			a.batch, a.channels, a.length, b.batch, b.channels, b.length)
	}
	var maxDiff float32
	for i, v := range a.data {
		d := v - b.data[i]
		if d < 0 {
			d = -d
		}
		if d > maxDiff {
			maxDiff = d
		}
	}
	return maxDiff, nil
}

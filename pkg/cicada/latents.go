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
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// Latent files are a small binary container: magic, version, the model
// parameters needed to decode, then raw little-endian float32 frames.
var latentsMagic = [4]byte{'C', 'C', 'D', 'A'}

const latentsVersion = 1

// latentsHeader is the fixed-size file prologue.
type latentsHeader struct {
	Magic      [4]byte
	Version    uint32
	SampleRate uint32
	Ratio      uint32
	Batch      uint32
	Channels   uint32
	Frames     uint32
}

// EncodeLatents serializes a latent sequence with the model parameters
// needed to interpret it.
func EncodeLatents(z *tensor.Signal, sampleRate, ratio int) ([]byte, error) {
	if sampleRate <= 0 || ratio <= 0 {
		return nil, fmt.Errorf("invalid latent metadata (rate %d, ratio %d)", sampleRate, ratio)
	}
	h := latentsHeader{
		Magic:      latentsMagic,
		Version:    latentsVersion,
		SampleRate: uint32(sampleRate),
		Ratio:      uint32(ratio),
		Batch:      uint32(z.Batch()),
		Channels:   uint32(z.Channels()),
		Frames:     uint32(z.Len()),
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("writing latent header: %w", err)
	}
	for _, v := range z.Data() {
		if err := binary.Write(&buf, binary.LittleEndian, math.Float32bits(v)); err != nil {
			return nil, fmt.Errorf("writing latent data: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeLatents parses a latent file back into a signal and its metadata.
func DecodeLatents(data []byte) (*tensor.Signal, int, int, error) {
	var h latentsHeader
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, 0, 0, fmt.Errorf("reading latent header: %w", err)
	}
	if h.Magic != latentsMagic {
		return nil, 0, 0, fmt.Errorf("not a latent file (bad magic %q)", h.Magic)
	}
	if h.Version != latentsVersion {
		return nil, 0, 0, fmt.Errorf("unsupported latent file version %d", h.Version)
	}
	n := int(h.Batch) * int(h.Channels) * int(h.Frames)
	if r.Len() != n*4 {
		return nil, 0, 0, fmt.Errorf("latent file has %d data bytes, header promises %d", r.Len(), n*4)
	}
	values := make([]float32, n)
	raw := data[len(data)-r.Len():]
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	z, err := tensor.FromData(values, int(h.Batch), int(h.Channels), int(h.Frames))
	if err != nil {
		return nil, 0, 0, err
	}
	return z, int(h.SampleRate), int(h.Ratio), nil
}

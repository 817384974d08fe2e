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

// Package pretransform applies a reversible signal transform before the
// encoder and after the decoder. Pretransforms with a ratio greater than
// one change the effective samples-per-latent of the whole model.
package pretransform

import (
	"fmt"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// Pretransform is the pair of maps wrapped around the codec: Encode runs
// before the encoder, Decode after the decoder, and Decode(Encode(x))
// recovers x up to numerical error.
type Pretransform interface {
	Encode(x *tensor.Signal) (*tensor.Signal, error)
	Decode(x *tensor.Signal) (*tensor.Signal, error)

	// Ratio is the temporal downsampling the pretransform contributes,
	// 1 for sample-rate preserving transforms.
	Ratio() int
}

// Scale multiplies by 1/Factor on encode and Factor on decode, used to
// match the dynamic range a codec was trained at.
type Scale struct {
	Factor float32
}

// NewScale validates the scale factor.
func NewScale(factor float32) (*Scale, error) {
	if factor == 0 {
		return nil, fmt.Errorf("pretransform: scale factor must be non-zero")
	}
	return &Scale{Factor: factor}, nil
}

// Encode divides the signal by the factor.
func (s *Scale) Encode(x *tensor.Signal) (*tensor.Signal, error) {
	out := x.Clone()
	inv := 1 / s.Factor
	data := out.Data()
	for i := range data {
		data[i] *= inv
	}
	return out, nil
}

// Decode multiplies the signal by the factor.
func (s *Scale) Decode(x *tensor.Signal) (*tensor.Signal, error) {
	out := x.Clone()
	data := out.Data()
	for i := range data {
		data[i] *= s.Factor
	}
	return out, nil
}

// Ratio returns 1; scaling preserves the sample rate.
func (s *Scale) Ratio() int { return 1 }

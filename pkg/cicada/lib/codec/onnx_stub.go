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

//go:build !onnx || !ORT || darwin

package codec

import (
	"fmt"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

var errONNXUnavailable = fmt.Errorf("codec: ONNX support not compiled in (build with -tags 'onnx ORT')")

// ONNXEncoder runs an exported encoder graph. This build does not include
// ONNX Runtime; construction always fails.
type ONNXEncoder struct{}

// NewONNXEncoder reports that ONNX support is not compiled in.
func NewONNXEncoder(cfg ONNXCodecConfig) (*ONNXEncoder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return nil, errONNXUnavailable
}

func (e *ONNXEncoder) Forward(*tensor.Signal) (*tensor.Signal, error) {
	return nil, errONNXUnavailable
}

func (e *ONNXEncoder) Ratio() int         { return 0 }
func (e *ONNXEncoder) LatentDim() int     { return 0 }
func (e *ONNXEncoder) AudioChannels() int { return 0 }
func (e *ONNXEncoder) Close() error       { return nil }

// ONNXDecoder runs an exported decoder graph. This build does not include
// ONNX Runtime; construction always fails.
type ONNXDecoder struct{}

// NewONNXDecoder reports that ONNX support is not compiled in.
func NewONNXDecoder(cfg ONNXCodecConfig) (*ONNXDecoder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return nil, errONNXUnavailable
}

func (d *ONNXDecoder) Forward(*tensor.Signal) (*tensor.Signal, error) {
	return nil, errONNXUnavailable
}

func (d *ONNXDecoder) Ratio() int         { return 0 }
func (d *ONNXDecoder) LatentDim() int     { return 0 }
func (d *ONNXDecoder) AudioChannels() int { return 0 }
func (d *ONNXDecoder) Close() error       { return nil }

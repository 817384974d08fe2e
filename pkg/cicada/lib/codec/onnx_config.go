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

package codec

import "fmt"

// ONNXCodecConfig parameterizes an encoder or decoder exported to ONNX.
// The temporal ratio and latent dimensionality cannot be read from the
// graph, so they are declared here and checked against the session output.
type ONNXCodecConfig struct {
	ModelPath     string
	Ratio         int
	LatentDim     int
	AudioChannels int
	NumThreads    int
	UseCUDA       bool
}

func (c ONNXCodecConfig) validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("codec: ONNX codec requires a model path")
	}
	if c.Ratio <= 0 {
		return fmt.Errorf("codec: ONNX codec requires a positive ratio, got %d", c.Ratio)
	}
	if c.LatentDim <= 0 {
		return fmt.Errorf("codec: ONNX codec requires a positive latent dim, got %d", c.LatentDim)
	}
	if c.AudioChannels <= 0 {
		return fmt.Errorf("codec: ONNX codec requires a positive channel count, got %d", c.AudioChannels)
	}
	return nil
}

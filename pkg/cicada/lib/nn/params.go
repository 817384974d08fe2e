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

package nn

// Params returns the layer's learnable parameters keyed by name. The
// slices alias the layer's storage so checkpoint loading can copy into
// them directly.
func (c *Conv1d) Params() map[string][]float32 {
	p := map[string][]float32{"weight": c.Weight}
	if c.Gain != nil {
		p["gain"] = c.Gain
	}
	if c.Bias != nil {
		p["bias"] = c.Bias
	}
	return p
}

// Params returns the layer's learnable parameters keyed by name.
func (c *ConvTranspose1d) Params() map[string][]float32 {
	p := map[string][]float32{"weight": c.Weight}
	if c.Gain != nil {
		p["gain"] = c.Gain
	}
	if c.Bias != nil {
		p["bias"] = c.Bias
	}
	return p
}

// Params returns the activation's learnable parameters keyed by name.
func (s *SnakeBeta) Params() map[string][]float32 {
	return map[string][]float32{"log_alpha": s.LogAlpha, "log_beta": s.LogBeta}
}

// Params returns the layer's learnable parameters keyed by name.
func (l *Linear) Params() map[string][]float32 {
	return map[string][]float32{"weight": l.Weight, "bias": l.Bias}
}

// Params returns the layer's learnable parameters keyed by name.
func (l *LayerNorm) Params() map[string][]float32 {
	return map[string][]float32{"gamma": l.Gamma, "beta": l.Beta}
}

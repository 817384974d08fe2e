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

// Package config describes autoencoder model files on disk and builds the
// model components they name. Configs load from JSON or YAML; required
// fields fail fast with the field name, unknown keys inside a component
// config are logged and ignored.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/antflydb/cicada/pkg/cicada/lib/bottleneck"
	"github.com/antflydb/cicada/pkg/cicada/lib/codec"
	"github.com/antflydb/cicada/pkg/cicada/lib/nn"
	"github.com/antflydb/cicada/pkg/cicada/lib/pretransform"
)

// Codec type tags accepted in model configs.
const (
	CodecConv      = "conv"
	CodecAttention = "attention"
	CodecONNX      = "onnx"
)

// Bottleneck type tags.
const (
	BottleneckVAE  = "vae"
	BottleneckTanh = "tanh"
	BottleneckVQ   = "vq"
)

// Pretransform type tags.
const (
	PretransformScale = "scale"
)

// File is the top-level model config.
type File struct {
	SampleRate int   `json:"sample_rate" yaml:"sample_rate"`
	Model      Model `json:"model" yaml:"model"`
}

// Model describes the autoencoder assembly.
type Model struct {
	Encoder *Component `json:"encoder" yaml:"encoder"`
	Decoder *Component `json:"decoder" yaml:"decoder"`

	LatentDim         int `json:"latent_dim" yaml:"latent_dim"`
	DownsamplingRatio int `json:"downsampling_ratio" yaml:"downsampling_ratio"`
	IOChannels        int `json:"io_channels" yaml:"io_channels"`
	InChannels        int `json:"in_channels" yaml:"in_channels"`
	OutChannels       int `json:"out_channels" yaml:"out_channels"`

	Bottleneck   *Component `json:"bottleneck" yaml:"bottleneck"`
	Pretransform *Component `json:"pretransform" yaml:"pretransform"`

	SoftClip bool `json:"soft_clip" yaml:"soft_clip"`
}

// Component is a tagged component config: a type name plus a free-form
// parameter map interpreted by the matching builder.
type Component struct {
	Type   string         `json:"type" yaml:"type"`
	Config map[string]any `json:"config" yaml:"config"`
}

// Load reads and validates a model config. The format follows the file
// extension: .json, or .yaml/.yml.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model config: %w", err)
	}
	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parsing model config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parsing model config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported model config extension %q (want .json, .yaml or .yml)", ext)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the required fields.
func (f *File) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("config: sample_rate is required and must be positive")
	}
	m := &f.Model
	if m.LatentDim <= 0 {
		return fmt.Errorf("config: model.latent_dim is required and must be positive")
	}
	if m.DownsamplingRatio <= 0 {
		return fmt.Errorf("config: model.downsampling_ratio is required and must be positive")
	}
	if m.IOChannels <= 0 && (m.InChannels <= 0 || m.OutChannels <= 0) {
		return fmt.Errorf("config: model.io_channels (or in_channels and out_channels) is required")
	}
	if m.Encoder != nil && m.Encoder.Type == "" {
		return fmt.Errorf("config: model.encoder.type is required")
	}
	if m.Decoder == nil {
		return fmt.Errorf("config: model.decoder is required")
	}
	if m.Decoder.Type == "" {
		return fmt.Errorf("config: model.decoder.type is required")
	}
	return nil
}

// AudioInChannels resolves the encoder-side channel count.
func (m *Model) AudioInChannels() int {
	if m.InChannels > 0 {
		return m.InChannels
	}
	return m.IOChannels
}

// AudioOutChannels resolves the decoder-side channel count.
func (m *Model) AudioOutChannels() int {
	if m.OutChannels > 0 {
		return m.OutChannels
	}
	return m.IOChannels
}

// fields reads typed values out of a component's parameter map, tracking
// which keys were consumed so leftovers can be reported.
type fields struct {
	m    map[string]any
	used map[string]bool
}

func newFields(m map[string]any) *fields {
	return &fields{m: m, used: map[string]bool{}}
}

func (f *fields) intOr(key string, def int) int {
	f.used[key] = true
	v, ok := f.m[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

func (f *fields) floatOr(key string, def float64) float64 {
	f.used[key] = true
	v, ok := f.m[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

func (f *fields) stringOr(key, def string) string {
	f.used[key] = true
	if s, ok := f.m[key].(string); ok {
		return s
	}
	return def
}

func (f *fields) boolOr(key string, def bool) bool {
	f.used[key] = true
	if b, ok := f.m[key].(bool); ok {
		return b
	}
	return def
}

func (f *fields) ints(key string) []int {
	f.used[key] = true
	raw, ok := f.m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case int:
			out = append(out, n)
		case int64:
			out = append(out, int(n))
		case float64:
			out = append(out, int(n))
		}
	}
	return out
}

// warnUnknown logs keys nothing consumed.
func (f *fields) warnUnknown(log *zap.Logger, where string) {
	for key := range f.m {
		if !f.used[key] {
			log.Warn("ignoring unknown config key",
				zap.String("component", where),
				zap.String("key", key))
		}
	}
}

// BuildEncoder constructs the encoder a component config names. A nil
// component yields a nil encoder (decode-only models).
func BuildEncoder(c *Component, m *Model, log *zap.Logger) (codec.Encoder, error) {
	if c == nil {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	f := newFields(c.Config)
	switch c.Type {
	case CodecConv:
		cfg := codec.ConvEncoderConfig{
			InChannels: f.intOr("in_channels", m.AudioInChannels()),
			Channels:   f.intOr("channels", 0),
			LatentDim:  f.intOr("latent_dim", m.LatentDim),
			CMults:     f.ints("c_mults"),
			Strides:    f.ints("strides"),
			Activation: f.stringOr("activation", ""),
			Causal:     f.boolOr("causal", false),
		}
		if f.stringOr("padding_mode", "") == string(nn.PadReflect) {
			cfg.PaddingMode = nn.PadReflect
		}
		f.warnUnknown(log, "model.encoder")
		return codec.NewConvEncoder(cfg)
	case CodecAttention:
		cfg := attentionConfig(f, m)
		f.warnUnknown(log, "model.encoder")
		return codec.NewAttentionEncoder(cfg)
	case CodecONNX:
		cfg := onnxConfig(f, m)
		cfg.AudioChannels = m.AudioInChannels()
		f.warnUnknown(log, "model.encoder")
		return codec.NewONNXEncoder(cfg)
	default:
		return nil, fmt.Errorf("config: unknown encoder type %q", c.Type)
	}
}

// BuildDecoder constructs the decoder a component config names.
func BuildDecoder(c *Component, m *Model, log *zap.Logger) (codec.Decoder, error) {
	if c == nil {
		return nil, fmt.Errorf("config: model.decoder is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	f := newFields(c.Config)
	switch c.Type {
	case CodecConv:
		cfg := codec.ConvDecoderConfig{
			OutChannels:     f.intOr("out_channels", m.AudioOutChannels()),
			Channels:        f.intOr("channels", 0),
			LatentDim:       f.intOr("latent_dim", m.LatentDim),
			CMults:          f.ints("c_mults"),
			Strides:         f.ints("strides"),
			Activation:      f.stringOr("activation", ""),
			NearestUpsample: f.boolOr("use_nearest_upsample", false),
			FinalTanh:       f.boolOr("final_tanh", false),
			Causal:          f.boolOr("causal", false),
		}
		if f.stringOr("padding_mode", "") == string(nn.PadReflect) {
			cfg.PaddingMode = nn.PadReflect
		}
		f.warnUnknown(log, "model.decoder")
		return codec.NewConvDecoder(cfg)
	case CodecAttention:
		cfg := attentionConfig(f, m)
		f.warnUnknown(log, "model.decoder")
		return codec.NewAttentionDecoder(cfg)
	case CodecONNX:
		cfg := onnxConfig(f, m)
		cfg.AudioChannels = m.AudioOutChannels()
		f.warnUnknown(log, "model.decoder")
		return codec.NewONNXDecoder(cfg)
	default:
		return nil, fmt.Errorf("config: unknown decoder type %q", c.Type)
	}
}

func attentionConfig(f *fields, m *Model) codec.AttentionCodecConfig {
	return codec.AttentionCodecConfig{
		AudioChannels: f.intOr("io_channels", m.AudioInChannels()),
		LatentDim:     f.intOr("latent_dim", m.LatentDim),
		PatchSize:     f.intOr("patch_size", m.DownsamplingRatio),
		EmbedDim:      f.intOr("embed_dim", 0),
		Depth:         f.intOr("depth", 0),
		Heads:         f.intOr("heads", 0),
		FFMult:        f.intOr("ff_mult", 0),
	}
}

func onnxConfig(f *fields, m *Model) codec.ONNXCodecConfig {
	return codec.ONNXCodecConfig{
		ModelPath:  f.stringOr("model_path", ""),
		Ratio:      f.intOr("ratio", m.DownsamplingRatio),
		LatentDim:  f.intOr("latent_dim", m.LatentDim),
		NumThreads: f.intOr("num_threads", 0),
		UseCUDA:    f.boolOr("use_cuda", false),
	}
}

// BuildBottleneck constructs the bottleneck a component config names. A nil
// component yields a nil bottleneck.
func BuildBottleneck(c *Component, m *Model, log *zap.Logger) (bottleneck.Bottleneck, error) {
	if c == nil {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	f := newFields(c.Config)
	switch c.Type {
	case BottleneckVAE:
		b := &bottleneck.VAE{Sample: f.boolOr("sample", false)}
		f.warnUnknown(log, "model.bottleneck")
		return b, nil
	case BottleneckTanh:
		f.warnUnknown(log, "model.bottleneck")
		return bottleneck.Tanh{}, nil
	case BottleneckVQ:
		dim := f.intOr("dim", m.LatentDim)
		codes := f.intOr("num_codes", 0)
		f.warnUnknown(log, "model.bottleneck")
		if codes <= 0 {
			return nil, fmt.Errorf("config: model.bottleneck.config.num_codes is required for vq")
		}
		return bottleneck.NewVQ(dim, codes)
	default:
		return nil, fmt.Errorf("config: unknown bottleneck type %q", c.Type)
	}
}

// BuildPretransform constructs the pretransform a component config names.
// A nil component yields a nil pretransform.
func BuildPretransform(c *Component, log *zap.Logger) (pretransform.Pretransform, error) {
	if c == nil {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	f := newFields(c.Config)
	switch c.Type {
	case PretransformScale:
		factor := f.floatOr("scale", 1)
		f.warnUnknown(log, "model.pretransform")
		return pretransform.NewScale(float32(factor))
	default:
		return nil, fmt.Errorf("config: unknown pretransform type %q", c.Type)
	}
}

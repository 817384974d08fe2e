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

//go:build onnx && ORT && !darwin

package codec

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// ONNX-exported codecs run through ONNX Runtime instead of the native
// kernels. The exported graphs take a single [B, C, T] float32 input named
// "audio" (encoder) or "latents" (decoder) and return one output.
//
// Runtime Requirements:
//   - Set LD_LIBRARY_PATH before running:
//     export LD_LIBRARY_PATH=/path/to/onnxruntime/lib
//
// Build Requirements:
//   - CGO must be enabled (CGO_ENABLED=1)
//   - ONNX Runtime libraries must be available at link time

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initONNX() error {
	ortInitOnce.Do(func() {
		if libPath := onnxLibraryPath(); libPath != "" {
			ort.SetSharedLibraryPath(filepath.Join(libPath, onnxLibraryName()))
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// onnxLibraryPath returns the directory containing libonnxruntime.so from
// environment. Checks ONNXRUNTIME_ROOT first, then LD_LIBRARY_PATH.
func onnxLibraryPath() string {
	platform := runtime.GOOS + "-" + runtime.GOARCH

	if root := os.Getenv("ONNXRUNTIME_ROOT"); root != "" {
		platformDir := filepath.Join(root, platform, "lib")
		if _, err := os.Stat(filepath.Join(platformDir, onnxLibraryName())); err == nil {
			return platformDir
		}
		directDir := filepath.Join(root, "lib")
		if _, err := os.Stat(filepath.Join(directDir, onnxLibraryName())); err == nil {
			return directDir
		}
	}

	if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
		for _, dir := range filepath.SplitList(ldPath) {
			if _, err := os.Stat(filepath.Join(dir, onnxLibraryName())); err == nil {
				return dir
			}
		}
	}

	return ""
}

func onnxLibraryName() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

// onnxSession wraps a single-input single-output codec graph.
type onnxSession struct {
	session     *ort.DynamicAdvancedSession
	sessionOpts *ort.SessionOptions

	ratio     int
	latentDim int
	channels  int
	inName    string
}

func newONNXSession(modelPath, inputName, outputName string, cfg ONNXCodecConfig) (*onnxSession, error) {
	if err := initONNX(); err != nil {
		return nil, fmt.Errorf("initializing ONNX Runtime: %w", err)
	}
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("ONNX model not found: %s", modelPath)
	}

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("creating session options: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := sessionOpts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			sessionOpts.Destroy()
			return nil, fmt.Errorf("setting thread count: %w", err)
		}
	}
	if cfg.UseCUDA {
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err == nil {
			if err := sessionOpts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
				// CUDA not available, fall back to CPU
				cudaOpts.Destroy()
			} else {
				defer cudaOpts.Destroy()
			}
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inputName}, []string{outputName}, sessionOpts)
	if err != nil {
		sessionOpts.Destroy()
		return nil, fmt.Errorf("creating ONNX session: %w", err)
	}

	return &onnxSession{
		session:     session,
		sessionOpts: sessionOpts,
		ratio:       cfg.Ratio,
		latentDim:   cfg.LatentDim,
		channels:    cfg.AudioChannels,
		inName:      inputName,
	}, nil
}

func (s *onnxSession) run(x *tensor.Signal) (*tensor.Signal, error) {
	if s.session == nil {
		return nil, fmt.Errorf("ONNX session is closed")
	}

	in, err := ort.NewTensor(
		ort.NewShape(int64(x.Batch()), int64(x.Channels()), int64(x.Len())),
		x.Data())
	if err != nil {
		return nil, fmt.Errorf("creating %s tensor: %w", s.inName, err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, fmt.Errorf("running ONNX inference: %w", err)
	}
	out := outputs[0]
	defer out.Destroy()

	shape := out.GetShape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("unexpected output shape: %v", shape)
	}
	floatTensor, ok := out.(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("output tensor is not float32")
	}
	data := make([]float32, len(floatTensor.GetData()))
	copy(data, floatTensor.GetData())
	return tensor.FromData(data, int(shape[0]), int(shape[1]), int(shape[2]))
}

func (s *onnxSession) close() error {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.sessionOpts != nil {
		s.sessionOpts.Destroy()
		s.sessionOpts = nil
	}
	return nil
}

// ONNXEncoder runs an exported encoder graph.
type ONNXEncoder struct {
	s *onnxSession
}

// NewONNXEncoder opens the exported encoder at the configured path.
func NewONNXEncoder(cfg ONNXCodecConfig) (*ONNXEncoder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s, err := newONNXSession(cfg.ModelPath, "audio", "latents", cfg)
	if err != nil {
		return nil, err
	}
	return &ONNXEncoder{s: s}, nil
}

// Forward encodes audio [B, C, T] into latents [B, D, T/R].
func (e *ONNXEncoder) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	if x.Channels() != e.s.channels {
		return nil, fmt.Errorf("codec: encoder expects %d audio channels, got %d", e.s.channels, x.Channels())
	}
	z, err := e.s.run(x)
	if err != nil {
		return nil, err
	}
	if z.Channels() != e.s.latentDim {
		return nil, fmt.Errorf("codec: ONNX encoder returned %d latent channels, expected %d",
			z.Channels(), e.s.latentDim)
	}
	return z, nil
}

func (e *ONNXEncoder) Ratio() int         { return e.s.ratio }
func (e *ONNXEncoder) LatentDim() int     { return e.s.latentDim }
func (e *ONNXEncoder) AudioChannels() int { return e.s.channels }

// Close releases the underlying session.
func (e *ONNXEncoder) Close() error { return e.s.close() }

// ONNXDecoder runs an exported decoder graph.
type ONNXDecoder struct {
	s *onnxSession
}

// NewONNXDecoder opens the exported decoder at the configured path.
func NewONNXDecoder(cfg ONNXCodecConfig) (*ONNXDecoder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s, err := newONNXSession(cfg.ModelPath, "latents", "audio", cfg)
	if err != nil {
		return nil, err
	}
	return &ONNXDecoder{s: s}, nil
}

// Forward decodes latents [B, D, T] into audio [B, C, T*R].
func (d *ONNXDecoder) Forward(z *tensor.Signal) (*tensor.Signal, error) {
	if z.Channels() != d.s.latentDim {
		return nil, fmt.Errorf("codec: decoder expects %d latent channels, got %d", d.s.latentDim, z.Channels())
	}
	y, err := d.s.run(z)
	if err != nil {
		return nil, err
	}
	if y.Channels() != d.s.channels {
		return nil, fmt.Errorf("codec: ONNX decoder returned %d audio channels, expected %d",
			y.Channels(), d.s.channels)
	}
	return y, nil
}

func (d *ONNXDecoder) Ratio() int         { return d.s.ratio }
func (d *ONNXDecoder) LatentDim() int     { return d.s.latentDim }
func (d *ONNXDecoder) AudioChannels() int { return d.s.channels }

// Close releases the underlying session.
func (d *ONNXDecoder) Close() error { return d.s.close() }

// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/antflydb/cicada/pkg/cicada"
	"github.com/antflydb/cicada/pkg/cicada/lib/audio"
	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

var roundtripOutDir string

var roundtripCmd = &cobra.Command{
	Use:   "roundtrip [files...]",
	Short: "Run audio files through the codec and back",
	Long: `Encode each audio file to latents, decode it again, and write the
reconstruction as <name>.roundtrip.wav. Useful for judging codec quality
on real material.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRoundtrip,
}

func init() {
	rootCmd.AddCommand(roundtripCmd)

	roundtripCmd.Flags().StringVar(&roundtripOutDir, "out-dir", "", "write reconstructions here instead of next to the inputs")
}

func runRoundtrip(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	model, err := loadModel(logger)
	if err != nil {
		return err
	}
	cc := chunkConfig()

	return forEachInput(ctx, args, func(ctx context.Context, path string) error {
		out, maxErr, err := roundtripFile(model, cc, path)
		if err != nil {
			return fmt.Errorf("round-tripping %s: %w", path, err)
		}
		fields := []zap.Field{zap.String("input", path), zap.String("output", out)}
		if maxErr >= 0 {
			fields = append(fields, zap.Float32("max_abs_error", maxErr))
		}
		logger.Info("round-tripped", fields...)
		return nil
	})
}

// roundtripFile encodes and decodes one file. It returns the output path and
// the max absolute reconstruction error, or -1 when the input and output
// shapes differ.
func roundtripFile(model *cicada.AudioAutoencoder, cc cicada.ChunkConfig, path string) (string, float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	sig, format, err := audio.Parse(path, data)
	if err != nil {
		return "", 0, err
	}

	sig, err = model.PreprocessAudio(sig, format.SampleRate)
	if err != nil {
		return "", 0, err
	}
	z, err := model.EncodeAudio(sig, cc)
	if err != nil {
		return "", 0, err
	}
	y, err := model.DecodeAudio(z, cc)
	if err != nil {
		return "", 0, err
	}

	maxErr := float32(-1)
	if diff, err := tensor.MaxAbsDiff(sig, y); err == nil {
		maxErr = diff
	}

	wavData, err := audio.EncodeWAV(y, model.SampleRate, 16)
	if err != nil {
		return "", 0, err
	}
	out := outputPath(path, roundtripOutDir, ".roundtrip.wav")
	if err := os.WriteFile(out, wavData, 0o644); err != nil {
		return "", 0, err
	}
	return out, maxErr, nil
}

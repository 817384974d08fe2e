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
)

var (
	decodeOutDir   string
	decodeBitDepth int
)

var decodeCmd = &cobra.Command{
	Use:   "decode [files...]",
	Short: "Reconstruct audio from latent files",
	Long: `Read .latents files produced by encode and write the reconstructed
audio next to each input as a .wav file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().StringVar(&decodeOutDir, "out-dir", "", "write audio files here instead of next to the inputs")
	decodeCmd.Flags().IntVar(&decodeBitDepth, "bit-depth", 16, "output WAV bit depth (16, 24 or 32)")
}

func runDecode(cmd *cobra.Command, args []string) error {
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
		out, err := decodeFile(model, cc, path)
		if err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
		logger.Info("decoded", zap.String("input", path), zap.String("output", out))
		return nil
	})
}

// decodeFile reconstructs audio from a single latent file and returns the
// output path.
func decodeFile(model *cicada.AudioAutoencoder, cc cicada.ChunkConfig, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	z, rate, ratio, err := cicada.DecodeLatents(data)
	if err != nil {
		return "", err
	}
	if rate != model.SampleRate || ratio != model.Ratio() {
		return "", fmt.Errorf("latents were encoded at rate %d ratio %d, model expects rate %d ratio %d",
			rate, ratio, model.SampleRate, model.Ratio())
	}

	y, err := model.DecodeAudio(z, cc)
	if err != nil {
		return "", err
	}
	wavData, err := audio.EncodeWAV(y, model.SampleRate, decodeBitDepth)
	if err != nil {
		return "", err
	}
	out := outputPath(path, decodeOutDir, ".wav")
	if err := os.WriteFile(out, wavData, 0o644); err != nil {
		return "", err
	}
	return out, nil
}

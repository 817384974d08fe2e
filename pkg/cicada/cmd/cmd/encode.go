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

var encodeOutDir string

var encodeCmd = &cobra.Command{
	Use:   "encode [files...]",
	Short: "Encode audio files into latent sequences",
	Long: `Read audio files (.wav, .mp3, .ogg), resample and pad them to the
model's grid, and write the encoded latents next to each input as a
.latents file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)

	encodeCmd.Flags().StringVar(&encodeOutDir, "out-dir", "", "write latent files here instead of next to the inputs")
}

func runEncode(cmd *cobra.Command, args []string) error {
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
		out, err := encodeFile(model, cc, path)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", path, err)
		}
		logger.Info("encoded", zap.String("input", path), zap.String("output", out))
		return nil
	})
}

// encodeFile encodes a single audio file and returns the output path.
func encodeFile(model *cicada.AudioAutoencoder, cc cicada.ChunkConfig, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sig, format, err := audio.Parse(path, data)
	if err != nil {
		return "", err
	}

	sig, err = model.PreprocessAudio(sig, format.SampleRate)
	if err != nil {
		return "", err
	}
	z, err := model.EncodeAudio(sig, cc)
	if err != nil {
		return "", err
	}

	encoded, err := cicada.EncodeLatents(z, model.SampleRate, model.Ratio())
	if err != nil {
		return "", err
	}
	out := outputPath(path, encodeOutDir, ".latents")
	if err := os.WriteFile(out, encoded, 0o644); err != nil {
		return "", err
	}
	return out, nil
}

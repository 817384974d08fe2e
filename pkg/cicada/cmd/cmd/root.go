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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/antflydb/cicada/pkg/cicada"
	"github.com/antflydb/cicada/pkg/cicada/lib/config"
	"github.com/antflydb/cicada/pkg/cicada/lib/logging"
	"github.com/antflydb/cicada/pkg/cicada/lib/weights"
)

var (
	cfgFile string
	Version string

	modelConfigPath string
	checkpointPath  string

	chunked   bool
	chunkSize int
	overlap   int
	jobs      int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cicada",
	Short: "Encode and decode audio through a latent audio codec",
	Long: `Run audio through a neural audio autoencoder: compress audio files
into latent sequences, reconstruct audio from latents, or round-trip
files to inspect codec quality.

Examples:
  # Encode a file to latents
  cicada encode --model model.json --weights model.safetensors track.wav

  # Reconstruct audio from latents
  cicada decode --model model.json --weights model.safetensors track.latents

  # Round-trip files through the codec
  cicada roundtrip --model model.json --weights model.safetensors *.wav`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file path (e.g. cicada.yaml)")
	rootCmd.PersistentFlags().
		String("log-level", "info", "set the logging level (e.g. debug, info, warn, error)")
	rootCmd.PersistentFlags().
		String("log-style", "terminal", "set the logging output style (terminal, json, noop)")
	rootCmd.PersistentFlags().
		StringVar(&modelConfigPath, "model", "", "model config file (.json or .yaml)")
	rootCmd.PersistentFlags().
		StringVar(&checkpointPath, "weights", "", "model checkpoint (.safetensors or .json)")
	rootCmd.PersistentFlags().
		BoolVar(&chunked, "chunked", true, "process long signals in overlapping windows")
	rootCmd.PersistentFlags().
		IntVar(&chunkSize, "chunk-size", cicada.DefaultChunkConfig().ChunkSize, "window size in latent frames for chunked processing")
	rootCmd.PersistentFlags().
		IntVar(&overlap, "overlap", cicada.DefaultChunkConfig().Overlap, "window overlap in latent frames for chunked processing")
	rootCmd.PersistentFlags().
		IntVar(&jobs, "jobs", 1, "number of files processed concurrently")

	mustBindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	mustBindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("log.style", rootCmd.PersistentFlags().Lookup("log-style"))

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.style", "terminal")
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", key, err))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			fmt.Fprintf(os.Stderr, "Config file not found: %s\n", cfgFile)
			os.Exit(1)
		}
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".cicada")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("cicada")
	}

	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("CICADA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		// Only error if user explicitly specified a config file
		fmt.Fprintf(os.Stderr, "Error reading config file [%s]: %v\n", viper.ConfigFileUsed(), err)
		os.Exit(1)
	}
}

// newLogger builds the logger from the resolved flags.
func newLogger() *zap.Logger {
	return logging.NewLogger(&logging.Config{
		Level: logging.Level(viper.GetString("log.level")),
		Style: logging.Style(viper.GetString("log.style")),
	})
}

// loadModel builds the autoencoder from --model and applies --weights when
// given.
func loadModel(logger *zap.Logger) (*cicada.AudioAutoencoder, error) {
	if modelConfigPath == "" {
		return nil, fmt.Errorf("--model is required")
	}
	cfg, err := config.Load(modelConfigPath)
	if err != nil {
		return nil, err
	}
	model, err := cicada.FromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	if checkpointPath != "" {
		sd, err := weights.Load(checkpointPath)
		if err != nil {
			return nil, err
		}
		if err := model.LoadWeights(sd); err != nil {
			return nil, err
		}
		logger.Info("loaded checkpoint", zap.String("path", checkpointPath))
	}
	return model, nil
}

// chunkConfig resolves the chunking flags.
func chunkConfig() cicada.ChunkConfig {
	return cicada.ChunkConfig{
		Enabled:   chunked,
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

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

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print a summary of the model config",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	model, err := loadModel(logger)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "sample rate:        %d Hz\n", model.SampleRate)
	fmt.Fprintf(w, "latent dim:         %d\n", model.LatentDim)
	fmt.Fprintf(w, "downsampling ratio: %d\n", model.Ratio())
	fmt.Fprintf(w, "input channels:     %d\n", model.InChannels)
	fmt.Fprintf(w, "output channels:    %d\n", model.OutChannels)
	fmt.Fprintf(w, "has encoder:        %t\n", model.Encoder != nil)
	discrete := model.Bottleneck != nil && model.Bottleneck.IsDiscrete()
	fmt.Fprintf(w, "discrete latents:   %t\n", discrete)
	fmt.Fprintf(w, "soft clip:          %t\n", model.SoftClip)
	return nil
}

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

package e2e

import (
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/antflydb/cicada/pkg/cicada"
	"github.com/antflydb/cicada/pkg/cicada/lib/audio"
	"github.com/antflydb/cicada/pkg/cicada/lib/codec"
	"github.com/antflydb/cicada/pkg/cicada/lib/config"
	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
	"github.com/antflydb/cicada/pkg/cicada/lib/weights"
)

const (
	testSampleRate = 8000
	testRatio      = 8
	testLatentDim  = 4
)

// testModelConfig is a small conv autoencoder that runs fast on CPU.
const testModelConfig = `{
  "sample_rate": 8000,
  "model": {
    "latent_dim": 4,
    "downsampling_ratio": 8,
    "io_channels": 2,
    "encoder": {
      "type": "conv",
      "config": {"channels": 8, "c_mults": [1, 2], "strides": [2, 4]}
    },
    "decoder": {
      "type": "conv",
      "config": {"channels": 8, "c_mults": [1, 2], "strides": [2, 4]}
    },
    "bottleneck": {"type": "tanh"}
  }
}`

// stereoTone generates n samples of a 440 Hz tone with the right channel
// phase-inverted.
func stereoTone(n int) *tensor.Signal {
	x := tensor.New(1, 2, n)
	left := x.Row(0, 0)
	right := x.Row(0, 1)
	for t := range left {
		v := float32(0.5 * math.Sin(2*math.Pi*440*float64(t)/testSampleRate))
		left[t] = v
		right[t] = -v
	}
	return x
}

func allFinite(x *tensor.Signal) bool {
	for _, v := range x.Data() {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

var _ = Describe("Codec pipeline", func() {
	var model *cicada.AudioAutoencoder

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		cfgPath := filepath.Join(dir, "model.json")
		Expect(os.WriteFile(cfgPath, []byte(testModelConfig), 0o644)).To(Succeed())

		cfg, err := config.Load(cfgPath)
		Expect(err).NotTo(HaveOccurred())
		model, err = cicada.FromConfig(cfg, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		rng := rand.New(rand.NewSource(42))
		model.Encoder.(*codec.ConvEncoder).InitRandom(rng)
		model.Decoder.(*codec.ConvDecoder).InitRandom(rng)
	})

	It("encodes and decodes audio parsed from a WAV file", func() {
		wavData, err := audio.EncodeWAV(stereoTone(testSampleRate), testSampleRate, 16)
		Expect(err).NotTo(HaveOccurred())

		sig, format, err := audio.Parse("tone.wav", wavData)
		Expect(err).NotTo(HaveOccurred())
		Expect(format.SampleRate).To(Equal(testSampleRate))

		sig, err = model.PreprocessAudio(sig, format.SampleRate)
		Expect(err).NotTo(HaveOccurred())

		z, err := model.EncodeAudio(sig, cicada.ChunkConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(z.Channels()).To(Equal(testLatentDim))
		Expect(z.Len()).To(Equal(sig.Len() / testRatio))
		Expect(allFinite(z)).To(BeTrue())

		y, err := model.DecodeAudio(z, cicada.ChunkConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(y.Channels()).To(Equal(2))
		Expect(y.Len()).To(Equal(sig.Len()))
		Expect(allFinite(y)).To(BeTrue())
	})

	It("produces the same shapes chunked and whole", func() {
		sig := stereoTone(testSampleRate)
		cc := cicada.ChunkConfig{Enabled: true, ChunkSize: 128, Overlap: 16}

		whole, err := model.EncodeAudio(sig, cicada.ChunkConfig{})
		Expect(err).NotTo(HaveOccurred())
		chunked, err := model.EncodeAudio(sig, cc)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunked.Len()).To(Equal(whole.Len()))
		Expect(chunked.Channels()).To(Equal(whole.Channels()))
		Expect(allFinite(chunked)).To(BeTrue())

		y, err := model.DecodeAudio(chunked, cc)
		Expect(err).NotTo(HaveOccurred())
		Expect(y.Len()).To(Equal(sig.Len()))
		Expect(allFinite(y)).To(BeTrue())
	})

	It("round-trips latents through the container format", func() {
		z, err := model.EncodeAudio(stereoTone(2048), cicada.ChunkConfig{})
		Expect(err).NotTo(HaveOccurred())

		data, err := cicada.EncodeLatents(z, model.SampleRate, model.Ratio())
		Expect(err).NotTo(HaveOccurred())

		back, rate, ratio, err := cicada.DecodeLatents(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(rate).To(Equal(model.SampleRate))
		Expect(ratio).To(Equal(model.Ratio()))
		Expect(back.Data()).To(Equal(z.Data()))
	})

	It("loads a checkpoint written to disk", func() {
		sd := weights.StateDict{}
		for name, p := range model.Encoder.(*codec.ConvEncoder).Parameters() {
			sd["encoder."+name] = p
		}
		for name, p := range model.Decoder.(*codec.ConvDecoder).Parameters() {
			sd["decoder."+name] = p
		}

		raw, err := json.Marshal(map[string]any{"state_dict": sd})
		Expect(err).NotTo(HaveOccurred())
		path := filepath.Join(GinkgoT().TempDir(), "ckpt.json")
		Expect(os.WriteFile(path, raw, 0o644)).To(Succeed())

		loaded, err := weights.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(model.LoadWeights(loaded)).To(Succeed())

		z, err := model.EncodeAudio(stereoTone(1024), cicada.ChunkConfig{})
		Expect(err).NotTo(HaveOccurred())
		y, err := model.DecodeAudio(z, cicada.ChunkConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(allFinite(y)).To(BeTrue())
	})
})

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

package discriminator

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// Resolution is one STFT analysis setting.
type Resolution struct {
	NFFT int
	Hop  int
}

// DefaultResolutions covers the octave ladder commonly used for audio
// codecs.
var DefaultResolutions = []Resolution{
	{NFFT: 2048, Hop: 512},
	{NFFT: 1024, Hop: 256},
	{NFFT: 512, Hop: 128},
}

// MultiResolutionSTFT scores log-magnitude spectrograms of the signal at
// several window sizes, one trunk per resolution with the frequency bins
// as input channels.
type MultiResolutionSTFT struct {
	resolutions []Resolution
	ffts        []*fourier.FFT
	windows     [][]float64
	nets        []*convNet
}

// NewMultiResolutionSTFT builds the ensemble. Channels is the audio
// channel count; spectrograms of each channel are stacked under the bin
// axis.
func NewMultiResolutionSTFT(channels int, resolutions []Resolution) (*MultiResolutionSTFT, error) {
	if len(resolutions) == 0 {
		resolutions = DefaultResolutions
	}
	d := &MultiResolutionSTFT{resolutions: resolutions}
	for _, r := range resolutions {
		if r.NFFT < 2 || r.Hop < 1 {
			return nil, fmt.Errorf("discriminator: invalid STFT resolution (nfft %d, hop %d)", r.NFFT, r.Hop)
		}
		d.ffts = append(d.ffts, fourier.NewFFT(r.NFFT))
		d.windows = append(d.windows, hannWindow(r.NFFT))
		bins := r.NFFT/2 + 1
		d.nets = append(d.nets, newConvNet(channels*bins))
	}
	return d, nil
}

// InitRandom fills every trunk with random weights.
func (d *MultiResolutionSTFT) InitRandom(rng *rand.Rand) {
	for _, n := range d.nets {
		n.initRandom(rng)
	}
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}

// spectrogram computes the log-magnitude STFT of a [B, C, T] signal as
// [B, C*bins, frames].
func (d *MultiResolutionSTFT) spectrogram(x *tensor.Signal, res int) (*tensor.Signal, error) {
	r := d.resolutions[res]
	if x.Len() < r.NFFT {
		return nil, fmt.Errorf("discriminator: signal length %d shorter than STFT window %d", x.Len(), r.NFFT)
	}
	frames := 1 + (x.Len()-r.NFFT)/r.Hop
	bins := r.NFFT/2 + 1

	out := tensor.New(x.Batch(), x.Channels()*bins, frames)
	seq := make([]float64, r.NFFT)
	coeff := make([]complex128, bins)
	for b := 0; b < x.Batch(); b++ {
		for c := 0; c < x.Channels(); c++ {
			src := x.Row(b, c)
			for f := 0; f < frames; f++ {
				start := f * r.Hop
				for i := range seq {
					seq[i] = float64(src[start+i]) * d.windows[res][i]
				}
				d.ffts[res].Coefficients(coeff, seq)
				for bin, v := range coeff {
					mag := math.Hypot(real(v), imag(v))
					out.Set(b, c*bins+bin, f, float32(math.Log1p(mag)))
				}
			}
		}
	}
	return out, nil
}

// Forward scores the spectrogram at every resolution and sums the results.
func (d *MultiResolutionSTFT) Forward(x *tensor.Signal) (*Result, error) {
	total := &Result{}
	for i := range d.resolutions {
		spec, err := d.spectrogram(x, i)
		if err != nil {
			return nil, err
		}
		r, err := d.nets[i].forward(spec)
		if err != nil {
			return nil, err
		}
		total.Score += r.Score
		total.Features = append(total.Features, r.Features...)
	}
	return total, nil
}

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

// Package discriminator implements the adversarial ensemble that scores
// reconstructions during codec training: multi-scale, multi-period, and
// multi-resolution STFT discriminators over a shared convolutional trunk,
// with hinge losses and feature matching.
package discriminator

import (
	"fmt"
	"math/rand"

	"github.com/antflydb/cicada/pkg/cicada/lib/nn"
	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// Result is one discriminator pass: a realness score and the intermediate
// feature maps used for feature matching.
type Result struct {
	Score    float32
	Features []*tensor.Signal
}

// Discriminator scores a signal batch.
type Discriminator interface {
	Forward(x *tensor.Signal) (*Result, error)
}

// convNet is the shared trunk: a wide input convolution, strided
// downsampling stages with SiLU, and a 1-channel head. All convolutions
// are weight-normalized.
type convNet struct {
	layers []*nn.Conv1d
	head   *nn.Conv1d
}

const (
	trunkKernel   = 15
	trunkStride   = 4
	trunkCapacity = 32
	trunkLayers   = 4
	trunkMaxWidth = 1024
)

func newConvNet(inChannels int) *convNet {
	net := &convNet{}
	width := trunkCapacity
	net.layers = append(net.layers, nn.NewConv1d(nn.Conv1dConfig{
		InChannels: inChannels, OutChannels: width,
		KernelSize: trunkKernel, PadLeft: trunkKernel / 2, PadRight: trunkKernel / 2,
		WeightNorm: true,
	}))
	for i := 0; i < trunkLayers; i++ {
		next := width * 4
		if next > trunkMaxWidth {
			next = trunkMaxWidth
		}
		net.layers = append(net.layers, nn.NewConv1d(nn.Conv1dConfig{
			InChannels: width, OutChannels: next,
			KernelSize: trunkKernel, Stride: trunkStride,
			PadLeft: trunkKernel / 2, PadRight: trunkKernel / 2,
			WeightNorm: true,
		}))
		width = next
	}
	net.head = nn.NewConv1d(nn.Conv1dConfig{
		InChannels: width, OutChannels: 1, KernelSize: 1, WeightNorm: true,
	})
	return net
}

func (n *convNet) initRandom(rng *rand.Rand) {
	for _, l := range n.layers {
		l.InitRandom(rng)
	}
	n.head.InitRandom(rng)
}

func (n *convNet) forward(x *tensor.Signal) (*Result, error) {
	res := &Result{}
	var err error
	for _, l := range n.layers {
		if x, err = l.Forward(x); err != nil {
			return nil, err
		}
		if x, err = (nn.SiLU{}).Forward(x); err != nil {
			return nil, err
		}
		res.Features = append(res.Features, x)
	}
	if x, err = n.head.Forward(x); err != nil {
		return nil, err
	}
	var sum float64
	for _, v := range x.Data() {
		sum += float64(v)
	}
	res.Score = float32(sum / float64(len(x.Data())))
	return res, nil
}

// MultiScale runs the trunk on the signal and on average-pooled octaves of
// it.
type MultiScale struct {
	octaves int
	net     *convNet
	pool    *nn.AvgPool1d
}

// NewMultiScale builds a discriminator over the given number of octaves
// (1 scores only the input rate).
func NewMultiScale(channels, octaves int) (*MultiScale, error) {
	if octaves < 1 {
		return nil, fmt.Errorf("discriminator: octave count must be at least 1, got %d", octaves)
	}
	return &MultiScale{
		octaves: octaves,
		net:     newConvNet(channels),
		pool:    &nn.AvgPool1d{KernelSize: 4, Stride: 2, Pad: 1},
	}, nil
}

// InitRandom fills the trunk with random weights.
func (d *MultiScale) InitRandom(rng *rand.Rand) { d.net.initRandom(rng) }

// Forward scores the signal at every octave and sums the results.
func (d *MultiScale) Forward(x *tensor.Signal) (*Result, error) {
	total := &Result{}
	cur := x
	for oct := 0; oct < d.octaves; oct++ {
		if oct > 0 {
			var err error
			if cur, err = d.pool.Forward(cur); err != nil {
				return nil, err
			}
		}
		r, err := d.net.forward(cur)
		if err != nil {
			return nil, err
		}
		total.Score += r.Score
		total.Features = append(total.Features, r.Features...)
	}
	return total, nil
}

// MultiPeriod folds the time axis by each period, stacking the phases
// under the channel axis, and scores every folding.
type MultiPeriod struct {
	channels int
	periods  []int
	nets     []*convNet
}

// NewMultiPeriod builds one trunk per period. Typical periods are small
// coprime values (2, 3, 5, 7, 11).
func NewMultiPeriod(channels int, periods []int) (*MultiPeriod, error) {
	if len(periods) == 0 {
		return nil, fmt.Errorf("discriminator: at least one period is required")
	}
	d := &MultiPeriod{channels: channels, periods: periods}
	for _, p := range periods {
		if p < 1 {
			return nil, fmt.Errorf("discriminator: period must be positive, got %d", p)
		}
		d.nets = append(d.nets, newConvNet(channels*p))
	}
	return d, nil
}

// InitRandom fills every trunk with random weights.
func (d *MultiPeriod) InitRandom(rng *rand.Rand) {
	for _, n := range d.nets {
		n.initRandom(rng)
	}
}

// foldPeriod reshapes [B, C, T] to [B, C*p, T/p], truncating the tail that
// does not fill a whole period.
func foldPeriod(x *tensor.Signal, p int) *tensor.Signal {
	frames := x.Len() / p
	out := tensor.New(x.Batch(), x.Channels()*p, frames)
	for b := 0; b < x.Batch(); b++ {
		for c := 0; c < x.Channels(); c++ {
			src := x.Row(b, c)
			for phase := 0; phase < p; phase++ {
				dst := out.Row(b, c*p+phase)
				for f := 0; f < frames; f++ {
					dst[f] = src[f*p+phase]
				}
			}
		}
	}
	return out
}

// Forward scores every period folding and sums the results.
func (d *MultiPeriod) Forward(x *tensor.Signal) (*Result, error) {
	if x.Channels() != d.channels {
		return nil, fmt.Errorf("discriminator: expected %d channels, got %d", d.channels, x.Channels())
	}
	total := &Result{}
	for i, p := range d.periods {
		if x.Len() < p {
			return nil, fmt.Errorf("discriminator: signal length %d shorter than period %d", x.Len(), p)
		}
		r, err := d.nets[i].forward(foldPeriod(x, p))
		if err != nil {
			return nil, err
		}
		total.Score += r.Score
		total.Features = append(total.Features, r.Features...)
	}
	return total, nil
}

// Hinge losses. Real signals should score above 1, fakes below -1.

// DiscriminatorLoss is the hinge objective for the discriminator:
// mean(relu(1 - real)) + mean(relu(1 + fake)).
func DiscriminatorLoss(real, fake *Result) float32 {
	var loss float32
	if v := 1 - real.Score; v > 0 {
		loss += v
	}
	if v := 1 + fake.Score; v > 0 {
		loss += v
	}
	return loss
}

// GeneratorLoss is the hinge objective for the generator: -mean(fake).
func GeneratorLoss(fake *Result) float32 {
	return -fake.Score
}

// FeatureMatchingLoss is the mean absolute distance between real and fake
// feature maps, averaged over layers.
func FeatureMatchingLoss(real, fake *Result) (float32, error) {
	if len(real.Features) != len(fake.Features) {
		return 0, fmt.Errorf("discriminator: feature count mismatch (%d vs %d)",
			len(real.Features), len(fake.Features))
	}
	if len(real.Features) == 0 {
		return 0, nil
	}
	var total float64
	for i, rf := range real.Features {
		ff := fake.Features[i]
		if len(rf.Data()) != len(ff.Data()) {
			return 0, fmt.Errorf("discriminator: feature %d shape mismatch", i)
		}
		var sum float64
		for j, v := range rf.Data() {
			d := float64(v - ff.Data()[j])
			if d < 0 {
				d = -d
			}
			sum += d
		}
		total += sum / float64(len(rf.Data()))
	}
	return float32(total / float64(len(real.Features))), nil
}

package cicada

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/antflydb/cicada/pkg/cicada/lib/bottleneck"
	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// avgCodec is a linear, perfectly local codec used to exercise the
// orchestration paths: the encoder averages every ratio samples into one
// latent frame, the decoder repeats every frame ratio times. Locality makes
// chunked and whole-signal processing exactly equal.
type avgEncoder struct {
	ratio    int
	channels int
}

func (e *avgEncoder) Forward(x *tensor.Signal) (*tensor.Signal, error) {
	out := tensor.New(x.Batch(), x.Channels(), x.Len()/e.ratio)
	inv := 1 / float32(e.ratio)
	for b := 0; b < x.Batch(); b++ {
		for c := 0; c < x.Channels(); c++ {
			src := x.Row(b, c)
			dst := out.Row(b, c)
			for t := range dst {
				var acc float32
				for k := 0; k < e.ratio; k++ {
					acc += src[t*e.ratio+k]
				}
				dst[t] = acc * inv
			}
		}
	}
	return out, nil
}

func (e *avgEncoder) Ratio() int         { return e.ratio }
func (e *avgEncoder) LatentDim() int     { return e.channels }
func (e *avgEncoder) AudioChannels() int { return e.channels }

type repeatDecoder struct {
	ratio    int
	channels int
}

func (d *repeatDecoder) Forward(z *tensor.Signal) (*tensor.Signal, error) {
	out := tensor.New(z.Batch(), z.Channels(), z.Len()*d.ratio)
	for b := 0; b < z.Batch(); b++ {
		for c := 0; c < z.Channels(); c++ {
			src := z.Row(b, c)
			dst := out.Row(b, c)
			for t, v := range src {
				for k := 0; k < d.ratio; k++ {
					dst[t*d.ratio+k] = v
				}
			}
		}
	}
	return out, nil
}

func (d *repeatDecoder) Ratio() int         { return d.ratio }
func (d *repeatDecoder) LatentDim() int     { return d.channels }
func (d *repeatDecoder) AudioChannels() int { return d.channels }

func testModel(ratio int) *AudioAutoencoder {
	return &AudioAutoencoder{
		Encoder:           &avgEncoder{ratio: ratio, channels: 2},
		Decoder:           &repeatDecoder{ratio: ratio, channels: 2},
		SampleRate:        44100,
		LatentDim:         2,
		DownsamplingRatio: ratio,
		InChannels:        2,
		OutChannels:       2,
		log:               zap.NewNop(),
	}
}

func rampSignal(b, c, n int) *tensor.Signal {
	x := tensor.New(b, c, n)
	for i := range x.Data() {
		x.Data()[i] = float32(i%17) - 8
	}
	return x
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a := testModel(4)
	x := rampSignal(1, 2, 64)

	z, err := a.Encode(x)
	require.NoError(t, err)
	assert.Equal(t, 16, z.Len())

	y, err := a.Decode(z)
	require.NoError(t, err)
	assert.Equal(t, 64, y.Len())
}

func TestEncodeNilEncoder(t *testing.T) {
	a := testModel(4)
	a.Encoder = nil
	_, err := a.Encode(rampSignal(1, 2, 16))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no encoder")
}

func TestIterateBatchMatchesBatched(t *testing.T) {
	a := testModel(4)
	x := rampSignal(3, 2, 32)

	whole, err := a.Encode(x)
	require.NoError(t, err)
	iterated, err := a.Encode(x, WithIterateBatch())
	require.NoError(t, err)

	diff, err := tensor.MaxAbsDiff(whole, iterated)
	require.NoError(t, err)
	assert.Zero(t, diff)
}

func TestChunkedEncodeMatchesWhole(t *testing.T) {
	a := testModel(4)
	x := rampSignal(1, 2, 1000)

	whole, err := a.EncodeAudio(x, ChunkConfig{})
	require.NoError(t, err)

	chunked, err := a.EncodeAudio(x, ChunkConfig{Enabled: true, ChunkSize: 60, Overlap: 4})
	require.NoError(t, err)
	require.Equal(t, whole.Len(), chunked.Len())

	diff, err := tensor.MaxAbsDiff(whole, chunked)
	require.NoError(t, err)
	assert.Zero(t, diff, "a local codec must stitch without error")
}

func TestChunkedDecodeMatchesWhole(t *testing.T) {
	a := testModel(4)
	z := rampSignal(1, 2, 250)

	whole, err := a.DecodeAudio(z, ChunkConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1000, whole.Len())

	chunked, err := a.DecodeAudio(z, ChunkConfig{Enabled: true, ChunkSize: 60, Overlap: 4})
	require.NoError(t, err)
	require.Equal(t, whole.Len(), chunked.Len())

	diff, err := tensor.MaxAbsDiff(whole, chunked)
	require.NoError(t, err)
	assert.Zero(t, diff)
}

func TestChunkedRoundTripRecoversAverages(t *testing.T) {
	a := testModel(4)
	x := rampSignal(1, 2, 960)
	cc := ChunkConfig{Enabled: true, ChunkSize: 64, Overlap: 8}

	z, err := a.EncodeAudio(x, cc)
	require.NoError(t, err)
	y, err := a.DecodeAudio(z, cc)
	require.NoError(t, err)
	require.Equal(t, x.Len(), y.Len())

	// The stub codec reconstructs each block of 4 samples as its average.
	for tt := 0; tt < x.Len(); tt += 4 {
		var want float32
		for k := 0; k < 4; k++ {
			want += x.At(0, 0, tt+k)
		}
		want /= 4
		assert.InDelta(t, want, y.At(0, 0, tt), 1e-5)
	}
}

func TestEncodeAudioUnalignedLength(t *testing.T) {
	a := testModel(4)
	_, err := a.EncodeAudio(rampSignal(1, 2, 1001), ChunkConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pad the input")
}

func TestChunkConfigValidation(t *testing.T) {
	a := testModel(4)
	x := rampSignal(1, 2, 1000)

	_, err := a.EncodeAudio(x, ChunkConfig{Enabled: true, ChunkSize: 0, Overlap: 0})
	require.Error(t, err, "chunk size must be positive")

	_, err = a.EncodeAudio(x, ChunkConfig{Enabled: true, ChunkSize: 60, Overlap: -1})
	require.Error(t, err, "negative overlap")

	_, err = a.EncodeAudio(x, ChunkConfig{Enabled: true, ChunkSize: 60, Overlap: 60})
	require.Error(t, err, "overlap must be smaller than the chunk")
}

func TestShortSignalBypassesChunking(t *testing.T) {
	a := testModel(4)
	x := rampSignal(1, 2, 64)
	z, err := a.EncodeAudio(x, ChunkConfig{Enabled: true, ChunkSize: 60, Overlap: 4})
	require.NoError(t, err)
	assert.Equal(t, 16, z.Len())
}

func TestSoftClipBoundsOutput(t *testing.T) {
	a := testModel(4)
	a.SoftClip = true
	z := tensor.New(1, 2, 4)
	for i := range z.Data() {
		z.Data()[i] = 50
	}
	y, err := a.Decode(z)
	require.NoError(t, err)
	for _, v := range y.Data() {
		assert.LessOrEqual(t, v, float32(1))
		assert.GreaterOrEqual(t, v, float32(-1))
	}
}

func TestDecodeTokens(t *testing.T) {
	a := testModel(4)
	q, err := bottleneck.NewVQ(2, 8)
	require.NoError(t, err)
	q.InitRandom(rand.New(rand.NewSource(1)))
	a.Bottleneck = q

	y, err := a.DecodeTokens([][]int{{0, 3, 5, 2}})
	require.NoError(t, err)
	assert.Equal(t, 16, y.Len())

	a.Bottleneck = &bottleneck.VAE{}
	_, err = a.DecodeTokens([][]int{{0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not discrete")
}

func TestVAEBottleneckHalvesLatent(t *testing.T) {
	a := testModel(4)
	a.Bottleneck = &bottleneck.VAE{}
	x := rampSignal(1, 2, 64)
	z, err := a.Encode(x)
	require.NoError(t, err)
	assert.Equal(t, 1, z.Channels())
}

func TestPreprocessAudio(t *testing.T) {
	a := testModel(4)
	// Mono input at half the model rate with an unaligned length.
	mono := rampSignal(1, 1, 501)
	out, err := a.PreprocessAudio(mono, a.SampleRate/2)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Channels())
	assert.Zero(t, out.Len()%a.Ratio())
}

func TestPreprocessAudioList(t *testing.T) {
	a := testModel(4)
	batch, err := a.PreprocessAudioList(
		[]*tensor.Signal{rampSignal(1, 2, 64), rampSignal(1, 2, 32)},
		[]int{a.SampleRate, a.SampleRate},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Batch())
	assert.Equal(t, 64, batch.Len())

	_, err = a.PreprocessAudioList(nil, nil)
	require.Error(t, err)
}

// echoSampler returns the conditioning signal, making the diffusion
// wrapper deterministic.
type echoSampler struct{}

func (echoSampler) Sample(noise, cond *tensor.Signal) (*tensor.Signal, error) {
	if noise.Len() != cond.Len() {
		return nil, assert.AnError
	}
	return cond, nil
}

func TestDiffusionAutoencoderDecode(t *testing.T) {
	enc := &avgEncoder{ratio: 4, channels: 2}
	d, err := NewDiffusionAutoencoder(enc, echoSampler{}, nil, 2)
	require.NoError(t, err)

	x := rampSignal(1, 2, 64)
	z, err := d.Encode(x)
	require.NoError(t, err)
	assert.Equal(t, 16, z.Len())

	y, err := d.Decode(z)
	require.NoError(t, err)
	assert.Equal(t, 64, y.Len())
	// The echo sampler returns the nearest-upsampled latents.
	assert.Equal(t, z.At(0, 0, 0), y.At(0, 0, 3))
}

func TestNewDiffusionAutoencoderValidation(t *testing.T) {
	_, err := NewDiffusionAutoencoder(nil, echoSampler{}, nil, 2)
	require.Error(t, err)
	_, err = NewDiffusionAutoencoder(&avgEncoder{ratio: 4, channels: 2}, nil, nil, 2)
	require.Error(t, err)
}

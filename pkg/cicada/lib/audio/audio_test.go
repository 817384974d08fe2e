package audio

import (
	"math"
	"testing"

	"github.com/antflydb/cicada/pkg/cicada/lib/tensor"
)

// sineSignal creates a 440Hz stereo sine wave at the given sample rate and
// duration, with the right channel phase-inverted.
func sineSignal(sampleRate, durationMs int) *tensor.Signal {
	frames := sampleRate * durationMs / 1000
	sig := tensor.New(1, 2, frames)
	left := sig.Row(0, 0)
	right := sig.Row(0, 1)
	for i := 0; i < frames; i++ {
		v := float32(math.Sin(2.0 * math.Pi * 440.0 * float64(i) / float64(sampleRate)))
		left[i] = v
		right[i] = -v
	}
	return sig
}

func TestWAVEncode_Roundtrip(t *testing.T) {
	sampleRate := 16000
	sig := sineSignal(sampleRate, 500)

	encoded, err := EncodeWAV(sig, sampleRate, 16)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, format, err := ParseWAV(encoded)
	if err != nil {
		t.Fatalf("ParseWAV failed: %v", err)
	}
	if format.SampleRate != sampleRate {
		t.Errorf("SampleRate = %d, want %d", format.SampleRate, sampleRate)
	}
	if format.NumChannels != 2 {
		t.Errorf("NumChannels = %d, want 2", format.NumChannels)
	}
	if decoded.Len() != sig.Len() {
		t.Fatalf("decoded length = %d, want %d", decoded.Len(), sig.Len())
	}

	// 16-bit quantization introduces rounding error; tolerance of 0.01 is reasonable.
	const tolerance = 0.01
	diff, err := tensor.MaxAbsDiff(sig, decoded)
	if err != nil {
		t.Fatalf("MaxAbsDiff failed: %v", err)
	}
	if diff > tolerance {
		t.Errorf("round trip error %g exceeds %g", diff, tolerance)
	}
}

func TestWAVEncode_Clipping(t *testing.T) {
	sig := tensor.New(1, 1, 2)
	sig.Set(0, 0, 0, 2.5)
	sig.Set(0, 0, 1, -2.5)

	encoded, err := EncodeWAV(sig, 8000, 16)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	decoded, _, err := ParseWAV(encoded)
	if err != nil {
		t.Fatalf("ParseWAV failed: %v", err)
	}
	if decoded.At(0, 0, 0) < 0.99 || decoded.At(0, 0, 1) > -0.99 {
		t.Errorf("samples not clipped to [-1, 1]: (%f, %f)", decoded.At(0, 0, 0), decoded.At(0, 0, 1))
	}
}

func TestWAVEncode_InvalidArgs(t *testing.T) {
	sig := sineSignal(8000, 10)
	if _, err := EncodeWAV(sig, 0, 16); err == nil {
		t.Error("zero sample rate should return error")
	}
	if _, err := EncodeWAV(sig, 8000, 12); err == nil {
		t.Error("unsupported bit depth should return error")
	}
	if _, err := EncodeWAV(tensor.New(2, 1, 4), 8000, 16); err == nil {
		t.Error("batched signal should return error")
	}
}

func TestParseWAV_InvalidData(t *testing.T) {
	if _, _, err := ParseWAV([]byte{0xDE, 0xAD, 0xBE, 0xEF}); err == nil {
		t.Fatal("ParseWAV with garbage data should return error")
	}
}

func TestParseMP3_InvalidData(t *testing.T) {
	garbage := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01, 0x02, 0x03}
	if _, _, err := ParseMP3(garbage); err == nil {
		t.Fatal("ParseMP3 with garbage data should return error")
	}
}

func TestParseMP3_EmptyData(t *testing.T) {
	if _, _, err := ParseMP3([]byte{}); err == nil {
		t.Fatal("ParseMP3 with empty data should return error")
	}
}

func TestParseOgg_InvalidData(t *testing.T) {
	if _, _, err := ParseOgg([]byte("not an ogg stream")); err == nil {
		t.Fatal("ParseOgg with garbage data should return error")
	}
}

func TestParse_UnknownExtension(t *testing.T) {
	if _, _, err := Parse("track.flac", nil); err == nil {
		t.Fatal("unsupported extension should return error")
	}
}

func TestResample_Downsample(t *testing.T) {
	sig := sineSignal(32000, 100)
	out, err := Resample(sig, 32000, 16000)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if out.Len() != sig.Len()/2 {
		t.Fatalf("resampled length = %d, want %d", out.Len(), sig.Len()/2)
	}
}

func TestResample_Identity(t *testing.T) {
	sig := sineSignal(16000, 10)
	out, err := Resample(sig, 16000, 16000)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if out != sig {
		t.Fatal("equal rates should return the input signal")
	}
}

func TestResample_LinearMidpoints(t *testing.T) {
	sig := tensor.New(1, 1, 3)
	sig.Set(0, 0, 0, 0)
	sig.Set(0, 0, 1, 2)
	sig.Set(0, 0, 2, 4)
	out, err := Resample(sig, 1, 2)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if out.Len() != 6 {
		t.Fatalf("resampled length = %d, want 6", out.Len())
	}
	if out.At(0, 0, 1) != 1 || out.At(0, 0, 3) != 3 {
		t.Fatalf("interpolated midpoints = (%f, %f), want (1, 3)", out.At(0, 0, 1), out.At(0, 0, 3))
	}
}

func TestToChannels(t *testing.T) {
	mono := tensor.New(1, 1, 2)
	mono.Set(0, 0, 0, 0.5)
	mono.Set(0, 0, 1, -0.5)

	stereo, err := ToChannels(mono, 2)
	if err != nil {
		t.Fatalf("ToChannels up failed: %v", err)
	}
	if stereo.At(0, 1, 0) != 0.5 {
		t.Fatal("mono should be duplicated to both channels")
	}

	back, err := ToChannels(stereo, 1)
	if err != nil {
		t.Fatalf("ToChannels down failed: %v", err)
	}
	if back.At(0, 0, 1) != -0.5 {
		t.Fatal("stereo fold should average channels")
	}

	if _, err := ToChannels(tensor.New(1, 3, 2), 2); err == nil {
		t.Fatal("3 -> 2 channel conversion should return error")
	}
}

func TestPadToMultiple(t *testing.T) {
	sig := tensor.New(1, 2, 10)
	for i := range sig.Data() {
		sig.Data()[i] = 1
	}
	padded, err := PadToMultiple(sig, 8)
	if err != nil {
		t.Fatalf("PadToMultiple failed: %v", err)
	}
	if padded.Len() != 16 {
		t.Fatalf("padded length = %d, want 16", padded.Len())
	}
	if padded.At(0, 0, 9) != 1 || padded.At(0, 0, 10) != 0 {
		t.Fatal("padding should preserve content and append zeros")
	}

	aligned, err := PadToMultiple(padded, 8)
	if err != nil {
		t.Fatalf("PadToMultiple failed: %v", err)
	}
	if aligned != padded {
		t.Fatal("aligned signal should return unchanged")
	}
}

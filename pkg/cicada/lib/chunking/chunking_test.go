package chunking

import "testing"

// coverage applies placements to a write-count buffer, honoring paste order:
// a later write over an already-written index replaces it, so the count
// tracks first-writes plus a separate overwrite tally.
func coverage(t *testing.T, placements []Placement, outLen int) (written []int, overwrites int) {
	t.Helper()
	written = make([]int, outLen)
	for pi, p := range placements {
		if p.SrcEnd-p.SrcStart != p.DstEnd-p.DstStart {
			t.Fatalf("placement %d: src range [%d, %d) does not match dst range [%d, %d)",
				pi, p.SrcStart, p.SrcEnd, p.DstStart, p.DstEnd)
		}
		for i := p.DstStart; i < p.DstEnd; i++ {
			if i < 0 || i >= outLen {
				t.Fatalf("placement %d writes out of bounds index %d (buffer length %d)", pi, i, outLen)
			}
			if written[i] > 0 {
				overwrites++
			}
			written[i]++
		}
	}
	return written, overwrites
}

func TestPlanBasic(t *testing.T) {
	windows, err := Plan(100, 32, 8)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	// hop = 24: grid windows at 0, 24, 48, then a right-aligned tail at 68.
	wantStarts := []int{0, 24, 48, 68}
	if len(windows) != len(wantStarts) {
		t.Fatalf("got %d windows, want %d", len(windows), len(wantStarts))
	}
	for i, w := range windows {
		if w.Start != wantStarts[i] {
			t.Errorf("window[%d].Start = %d, want %d", i, w.Start, wantStarts[i])
		}
		if w.End-w.Start != 32 {
			t.Errorf("window[%d] has length %d, want 32", i, w.End-w.Start)
		}
	}
}

func TestPlanRightAlignment(t *testing.T) {
	for _, tc := range []struct {
		totalLen, chunkSize, overlap int
	}{
		{100, 32, 8},
		{1000, 320, 80},
		{97, 16, 5},
		{129, 64, 0},
		{64, 64, 16},
	} {
		windows, err := Plan(tc.totalLen, tc.chunkSize, tc.overlap)
		if err != nil {
			t.Fatalf("Plan(%d, %d, %d) failed: %v", tc.totalLen, tc.chunkSize, tc.overlap, err)
		}
		last := windows[len(windows)-1]
		if last.End != tc.totalLen {
			t.Errorf("Plan(%d, %d, %d): last window ends at %d, want %d",
				tc.totalLen, tc.chunkSize, tc.overlap, last.End, tc.totalLen)
		}
		if windows[0].Start != 0 {
			t.Errorf("Plan(%d, %d, %d): first window starts at %d, want 0",
				tc.totalLen, tc.chunkSize, tc.overlap, windows[0].Start)
		}
	}
}

func TestPlanExactFit(t *testing.T) {
	// Hop-aligned signal: no extra right-aligned tail window.
	windows, err := Plan(128, 32, 0)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(windows) != 4 {
		t.Fatalf("got %d windows, want 4", len(windows))
	}
}

func TestPlanErrors(t *testing.T) {
	if _, err := Plan(100, 0, 0); err == nil {
		t.Error("Plan with zero chunk size should return error")
	}
	if _, err := Plan(100, 32, 32); err == nil {
		t.Error("Plan with overlap == chunk size should return error")
	}
	if _, err := Plan(100, 32, -1); err == nil {
		t.Error("Plan with negative overlap should return error")
	}
	if _, err := Plan(16, 32, 8); err == nil {
		t.Error("Plan with signal shorter than chunk size should return error")
	}
}

func TestPlacementsCoverageNoGaps(t *testing.T) {
	// Sweep valid configurations in both domains; the union of pasted
	// ranges must cover [0, outLen) with no gaps.
	scales := []Scale{{1, 1}, {1, 4}, {4, 1}, {1, 10}, {10, 1}}
	for _, scale := range scales {
		for _, chunkSize := range []int{8, 16, 32} {
			for _, overlap := range []int{0, 2, 4, 7, chunkSize / 2} {
				if overlap >= chunkSize {
					continue
				}
				for _, totalLen := range []int{chunkSize, chunkSize * 3, chunkSize*3 + chunkSize/2, 100} {
					if totalLen < chunkSize {
						continue
					}
					// Downscaling domains require unit-aligned sizes, as
					// guaranteed upstream by pre-padding and by chunk
					// parameters being specified in latent units.
					if scale.Den > 1 && (totalLen%scale.Den != 0 || chunkSize%scale.Den != 0 || overlap%scale.Den != 0) {
						continue
					}

					windows, err := Plan(totalLen, chunkSize, overlap)
					if err != nil {
						t.Fatalf("Plan(%d, %d, %d) failed: %v", totalLen, chunkSize, overlap, err)
					}
					outLen := scale.Apply(totalLen)
					placements := Placements(windows, chunkSize, overlap, outLen, scale)

					written, _ := coverage(t, placements, outLen)
					for i, n := range written {
						if n == 0 {
							t.Fatalf("Plan(%d, %d, %d) scale %d/%d: output index %d never written",
								totalLen, chunkSize, overlap, scale.Num, scale.Den, i)
						}
					}
				}
			}
		}
	}
}

func TestPlacementsNoDoubleWritesOnHopGrid(t *testing.T) {
	// When the signal length sits exactly on the hop grid there is no
	// force-aligned tail window, and every output index is written exactly
	// once.
	for _, tc := range []struct {
		totalLen, chunkSize, overlap int
		scale                        Scale
	}{
		{128, 32, 0, Scale{1, 1}},
		{104, 32, 8, Scale{1, 1}},  // 32 + 3*24
		{104, 32, 8, Scale{4, 1}},  // decode domain
		{1040, 320, 80, Scale{1, 10}}, // encode domain
	} {
		windows, err := Plan(tc.totalLen, tc.chunkSize, tc.overlap)
		if err != nil {
			t.Fatalf("Plan failed: %v", err)
		}
		outLen := tc.scale.Apply(tc.totalLen)
		placements := Placements(windows, tc.chunkSize, tc.overlap, outLen, tc.scale)

		written, overwrites := coverage(t, placements, outLen)
		if overwrites != 0 {
			t.Errorf("Plan(%d, %d, %d) scale %d/%d: %d overwrites on hop-aligned signal, want 0",
				tc.totalLen, tc.chunkSize, tc.overlap, tc.scale.Num, tc.scale.Den, overwrites)
		}
		for i, n := range written {
			if n != 1 {
				t.Fatalf("output index %d written %d times, want exactly once", i, n)
			}
		}
	}
}

func TestPlacementsZeroOverlap(t *testing.T) {
	// Degenerate overlap must not fail; boundaries become visible as
	// discontinuities but coverage still holds.
	windows, err := Plan(100, 25, 0)
	if err != nil {
		t.Fatalf("Plan with zero overlap failed: %v", err)
	}
	placements := Placements(windows, 25, 0, 100, Scale{1, 1})
	written, overwrites := coverage(t, placements, 100)
	if overwrites != 0 {
		t.Errorf("zero overlap on aligned signal produced %d overwrites, want 0", overwrites)
	}
	for i, n := range written {
		if n != 1 {
			t.Fatalf("output index %d written %d times, want exactly once", i, n)
		}
	}
}

func TestPlacementsEncodeScenario(t *testing.T) {
	// 1000 samples at ratio 10 -> 100 latent frames, chunk 32 latent frames
	// (320 samples), overlap 8 (80 samples), hop 24 (240 samples). The hop
	// grid yields sample windows at 0, 240, 480; 720 no longer fits, so the
	// tail window is right-aligned at 680 (latent 68).
	windows, err := Plan(1000, 320, 80)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	wantStarts := []int{0, 240, 480, 680}
	if len(windows) != len(wantStarts) {
		t.Fatalf("got %d windows, want %d", len(windows), len(wantStarts))
	}
	for i, w := range windows {
		if w.Start != wantStarts[i] {
			t.Errorf("window[%d].Start = %d, want %d", i, w.Start, wantStarts[i])
		}
	}

	placements := Placements(windows, 320, 80, 100, Scale{1, 10})

	// Half the 8-frame latent overlap is trimmed from each interior edge.
	want := []Placement{
		{DstStart: 0, DstEnd: 28, SrcStart: 0, SrcEnd: 28},
		{DstStart: 28, DstEnd: 52, SrcStart: 4, SrcEnd: 28},
		{DstStart: 52, DstEnd: 76, SrcStart: 4, SrcEnd: 28},
		{DstStart: 72, DstEnd: 100, SrcStart: 4, SrcEnd: 32},
	}
	for i, p := range placements {
		if p != want[i] {
			t.Errorf("placement[%d] = %+v, want %+v", i, p, want[i])
		}
	}

	// The force-aligned tail overlaps the previous write; the union still
	// covers the full buffer with no gaps.
	written, _ := coverage(t, placements, 100)
	for i, n := range written {
		if n == 0 {
			t.Fatalf("latent frame %d never written", i)
		}
	}
}

func TestPlacementsDecodeScenario(t *testing.T) {
	// The decode direction of the same configuration: 100 latent frames,
	// chunk 32, overlap 8, ratio 10 -> 1000 output samples.
	windows, err := Plan(100, 32, 8)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	placements := Placements(windows, 32, 8, 1000, Scale{10, 1})

	first := placements[0]
	if first.DstStart != 0 || first.DstEnd != 280 {
		t.Errorf("first placement dst [%d, %d), want [0, 280)", first.DstStart, first.DstEnd)
	}
	last := placements[len(placements)-1]
	if last.DstEnd != 1000 {
		t.Errorf("last placement ends at %d, want 1000", last.DstEnd)
	}
	if last.SrcEnd != 320 {
		t.Errorf("last placement src end = %d, want 320 (keeps trailing edge)", last.SrcEnd)
	}

	written, _ := coverage(t, placements, 1000)
	for i, n := range written {
		if n == 0 {
			t.Fatalf("sample %d never written", i)
		}
	}
}

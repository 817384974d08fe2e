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

// Package chunking implements the window planning and overlap-stitch
// arithmetic that lets a codec trained on short fixed-length windows process
// signals of arbitrary length with bounded memory.
//
// A signal is split into overlapping fixed-size windows. Each window is run
// through the codec independently, then the unreliable edges of each
// window's output are discarded and the trustworthy centers are pasted into
// a pre-allocated output buffer. The same arithmetic serves both directions:
// encoding scales positions down by the codec ratio, decoding scales them
// up.
package chunking

import "fmt"

// Window is a contiguous slice [Start, End) of a signal's time axis, in the
// units of the domain being chunked.
type Window struct {
	Start int
	End   int
}

// Scale converts positions from the chunked input domain to the output
// domain: outputPos = inputPos * Num / Den. Encoding audio at ratio R uses
// Scale{1, R}; decoding latents uses Scale{R, 1}.
type Scale struct {
	Num int
	Den int
}

// Apply converts an input-domain position to the output domain.
func (s Scale) Apply(pos int) int {
	return pos * s.Num / s.Den
}

// Placement describes where one window's codec output is pasted: the
// half-open target range [DstStart, DstEnd) in the output buffer and the
// source range [SrcStart, SrcEnd) within the window's output, both in
// output-domain units.
type Placement struct {
	DstStart int
	DstEnd   int
	SrcStart int
	SrcEnd   int
}

// Plan slides a window of chunkSize across a signal of totalLen with hop
// chunkSize-overlap, starting at offset 0, while the window still fits. If
// the hop grid stops short of the end, one final window is anchored at
// totalLen-chunkSize so the signal is always fully covered without a short
// trailing window. The last two windows may therefore overlap by more than
// the nominal overlap.
//
// An overlap of zero is legal but leaves discontinuity artifacts at every
// window boundary.
func Plan(totalLen, chunkSize, overlap int) ([]Window, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunking: chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("chunking: overlap must be in [0, chunk size), got overlap %d with chunk size %d",
			overlap, chunkSize)
	}
	if totalLen < chunkSize {
		return nil, fmt.Errorf("chunking: signal length %d is shorter than chunk size %d; pad the input first",
			totalLen, chunkSize)
	}

	hop := chunkSize - overlap
	var windows []Window
	for off := 0; off+chunkSize <= totalLen; off += hop {
		windows = append(windows, Window{Start: off, End: off + chunkSize})
	}
	if windows[len(windows)-1].End != totalLen {
		// Right-align the final window to the end of the signal.
		windows = append(windows, Window{Start: totalLen - chunkSize, End: totalLen})
	}
	return windows, nil
}

// Placements computes the paste ranges for every planned window.
//
// Each interior window defers its overlap edges to its neighbors: the
// leading edge is trimmed by floor(overlap/2) and the trailing edge by the
// remainder, both converted to the output domain, so adjacent trimmed
// ranges meet exactly. The first window keeps its leading edge and the last
// keeps its trailing edge, since those have no neighbor to defer to. The
// last window is pasted right-aligned against the end of the output buffer;
// when it was force-aligned off the hop grid its write overlaps the
// previous one, and the later write wins.
//
// outLen is the output buffer length; each window's codec output is assumed
// to have length scale.Apply(chunkSize).
func Placements(windows []Window, chunkSize, overlap, outLen int, scale Scale) []Placement {
	chunkOut := scale.Apply(chunkSize)
	overlapOut := scale.Apply(overlap)
	trimHead := overlapOut / 2
	trimTail := overlapOut - trimHead

	placements := make([]Placement, len(windows))
	for i, w := range windows {
		last := i == len(windows)-1

		var p Placement
		if last {
			p.DstEnd = outLen
			p.DstStart = p.DstEnd - chunkOut
		} else {
			p.DstStart = scale.Apply(w.Start)
			p.DstEnd = p.DstStart + chunkOut
		}
		p.SrcStart = 0
		p.SrcEnd = chunkOut

		if i > 0 {
			p.DstStart += trimHead
			p.SrcStart += trimHead
		}
		if !last {
			p.DstEnd -= trimTail
			p.SrcEnd -= trimTail
		}
		placements[i] = p
	}
	return placements
}

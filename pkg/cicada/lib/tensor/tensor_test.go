package tensor

import "testing"

func TestAtSetLayout(t *testing.T) {
	s := New(2, 3, 4)
	s.Set(1, 2, 3, 7.5)
	if got := s.At(1, 2, 3); got != 7.5 {
		t.Fatalf("At(1,2,3) = %f, want 7.5", got)
	}
	// Last element of the flat layout
	if got := s.Data()[len(s.Data())-1]; got != 7.5 {
		t.Fatalf("flat[-1] = %f, want 7.5", got)
	}
}

func TestFromDataShapeMismatch(t *testing.T) {
	_, err := FromData(make([]float32, 5), 1, 2, 3)
	if err == nil {
		t.Fatal("FromData with wrong length should return error")
	}
}

func TestTimeSliceAndPaste(t *testing.T) {
	s := New(1, 2, 10)
	for c := 0; c < 2; c++ {
		for i := 0; i < 10; i++ {
			s.Set(0, c, i, float32(c*100+i))
		}
	}

	win := s.TimeSlice(3, 7)
	if win.Len() != 4 {
		t.Fatalf("window length = %d, want 4", win.Len())
	}
	if got := win.At(0, 1, 0); got != 103 {
		t.Fatalf("win(0,1,0) = %f, want 103", got)
	}

	dst := New(1, 2, 10)
	if err := dst.PasteTime(win, 2, 6, 0, 4); err != nil {
		t.Fatalf("PasteTime failed: %v", err)
	}
	if got := dst.At(0, 0, 2); got != 3 {
		t.Fatalf("dst(0,0,2) = %f, want 3", got)
	}
	if got := dst.At(0, 0, 6); got != 0 {
		t.Fatalf("dst(0,0,6) = %f, want 0 (outside pasted range)", got)
	}
}

func TestPasteTimeRangeMismatch(t *testing.T) {
	dst := New(1, 1, 10)
	src := New(1, 1, 10)
	if err := dst.PasteTime(src, 0, 5, 0, 4); err == nil {
		t.Fatal("PasteTime with mismatched ranges should return error")
	}
	if err := dst.PasteTime(src, 8, 13, 0, 5); err == nil {
		t.Fatal("PasteTime out of bounds should return error")
	}
}

func TestStackBatchAndSlice(t *testing.T) {
	a := New(1, 2, 3)
	b := New(2, 2, 3)
	a.Set(0, 0, 0, 1)
	b.Set(1, 1, 2, 9)

	stacked, err := StackBatch([]*Signal{a, b})
	if err != nil {
		t.Fatalf("StackBatch failed: %v", err)
	}
	if stacked.Batch() != 3 {
		t.Fatalf("stacked batch = %d, want 3", stacked.Batch())
	}
	if got := stacked.At(0, 0, 0); got != 1 {
		t.Fatalf("stacked(0,0,0) = %f, want 1", got)
	}
	if got := stacked.At(2, 1, 2); got != 9 {
		t.Fatalf("stacked(2,1,2) = %f, want 9", got)
	}

	tail := stacked.BatchSlice(1, 3)
	if tail.Batch() != 2 {
		t.Fatalf("tail batch = %d, want 2", tail.Batch())
	}
	if got := tail.At(1, 1, 2); got != 9 {
		t.Fatalf("tail(1,1,2) = %f, want 9", got)
	}
}

func TestStackBatchShapeMismatch(t *testing.T) {
	if _, err := StackBatch([]*Signal{New(1, 2, 3), New(1, 2, 4)}); err == nil {
		t.Fatal("StackBatch with mismatched lengths should return error")
	}
	if _, err := StackBatch(nil); err == nil {
		t.Fatal("StackBatch with no signals should return error")
	}
}

func TestMaxAbsDiff(t *testing.T) {
	a := New(1, 1, 4)
	b := New(1, 1, 4)
	a.Set(0, 0, 2, 1.5)
	b.Set(0, 0, 2, -0.5)

	d, err := MaxAbsDiff(a, b)
	if err != nil {
		t.Fatalf("MaxAbsDiff failed: %v", err)
	}
	if d != 2.0 {
		t.Fatalf("MaxAbsDiff = %f, want 2.0", d)
	}

	if _, err := MaxAbsDiff(a, New(1, 1, 5)); err == nil {
		t.Fatal("MaxAbsDiff with mismatched shapes should return error")
	}
}

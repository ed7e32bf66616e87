package entropy

import "testing"

func TestStream_SameSeedSameSequence(t *testing.T) {
	a := NewStream(42, "economy.price")
	b := NewStream(42, "economy.price")
	for i := 0; i < 100; i++ {
		if av, bv := a.Float64(), b.Float64(); av != bv {
			t.Fatalf("draw %d diverged: %v vs %v", i, av, bv)
		}
	}
}

func TestStream_NamesAreIndependent(t *testing.T) {
	a := NewStream(42, "economy.price")
	b := NewStream(42, "economy.event")
	same := 0
	for i := 0; i < 50; i++ {
		if a.Float64() == b.Float64() {
			same++
		}
	}
	if same == 50 {
		t.Fatal("differently named streams produced identical sequences")
	}
}

func TestStream_RestoreReplaysPosition(t *testing.T) {
	s := NewStream(7, "crafting.quality")
	for i := 0; i < 37; i++ {
		s.Float64()
	}
	st := s.State()
	want := []float64{s.Float64(), s.Float64(), s.Float64()}

	r := NewStream(0, "crafting.quality")
	r.Restore(st)
	for i, w := range want {
		if got := r.Float64(); got != w {
			t.Fatalf("replayed draw %d = %v, want %v", i, got, w)
		}
	}
	if r.State().Draws != st.Draws+3 {
		t.Fatalf("draw count = %d, want %d", r.State().Draws, st.Draws+3)
	}
}

func TestStream_ChanceBounds(t *testing.T) {
	s := NewStream(1, "test")
	if s.Chance(0) {
		t.Error("Chance(0) returned true")
	}
	if !s.Chance(1) {
		t.Error("Chance(1) returned false")
	}
}

func TestStream_WeightedIndex(t *testing.T) {
	s := NewStream(1, "test")
	if got := s.WeightedIndex([]float64{0, 0, 0}); got != -1 {
		t.Errorf("all-zero weights: got %d, want -1", got)
	}
	for i := 0; i < 100; i++ {
		got := s.WeightedIndex([]float64{0, 5, 0})
		if got != 1 {
			t.Fatalf("single positive weight: got index %d", got)
		}
	}
}

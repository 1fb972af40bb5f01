package sample

import "testing"

func TestSampleSeconds(t *testing.T) {
	s := Sample{DTS: 45000, Timescale: 90000}
	if got, want := s.Seconds(), 0.5; got != want {
		t.Errorf("Seconds() = %v, want %v", got, want)
	}
}

func TestSampleSecondsZeroTimescale(t *testing.T) {
	s := Sample{DTS: 1}
	if got := s.Seconds(); got != 0 {
		t.Errorf("Seconds() with zero timescale = %v, want 0", got)
	}
}

func TestSequenceIV(t *testing.T) {
	tests := []struct {
		index int
		want  [16]byte
	}{
		{0, [16]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
		{1, [16]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}},
		{256, [16]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0}},
	}
	for _, tt := range tests {
		if got := SequenceIV(tt.index); got != tt.want {
			t.Errorf("SequenceIV(%d) = %x, want %x", tt.index, got, tt.want)
		}
	}
}

package db

import (
	"slices"
	"testing"
)

func TestEncodeVector_Layout(t *testing.T) {
	got := EncodeVector([]float32{1, -2})
	want := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0xc0}
	if !slices.Equal(got, want) {
		t.Errorf("EncodeVector = % x, want % x", got, want)
	}
}

func TestDecodeVector(t *testing.T) {
	in := []float32{0.25, 3.5, -1e-3}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(out, in) {
		t.Errorf("DecodeVector = %v, want %v", out, in)
	}

	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for a truncated blob")
	}
}

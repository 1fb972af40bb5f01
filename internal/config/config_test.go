package config

import (
	"strings"
	"testing"

	"github.com/jmylchreest/mp42hls/internal/sample"
)

func baseFlags() Flags {
	return Flags{
		InputPath:         "movie.mp4",
		OutputDir:         ".",
		SegmentPattern:    "stream-%d.ts",
		SegmentFilename:   "stream.ts",
		PlaylistFilename:  "stream.m3u8",
		TargetDuration:    "10s",
		DurationThreshold: "50ms",
		EncryptionMode:    "none",
		IVMode:            "sequence",
	}
}

func TestResolve_DefaultsToPlainConversion(t *testing.T) {
	r, err := Resolve(baseFlags())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Options.TargetDuration != 10 {
		t.Errorf("TargetDuration = %v, want 10", r.Options.TargetDuration)
	}
	if r.Options.DurationThreshold != 0.05 {
		t.Errorf("DurationThreshold = %v, want 0.05", r.Options.DurationThreshold)
	}
	if r.Options.Encryption.Mode != sample.ModeNone {
		t.Errorf("Encryption.Mode = %v, want none", r.Options.Encryption.Mode)
	}
}

func TestResolve_RejectsMissingInput(t *testing.T) {
	f := baseFlags()
	f.InputPath = ""
	if _, err := Resolve(f); err == nil {
		t.Fatal("expected an error for missing input path")
	}
}

func TestResolve_RejectsMultiFilePatternWithoutPercentD(t *testing.T) {
	f := baseFlags()
	f.SegmentPattern = "stream.ts"
	_, err := Resolve(f)
	if err == nil || !strings.Contains(err.Error(), "%d") {
		t.Fatalf("expected a %%d validation error, got %v", err)
	}
}

func TestResolve_RejectsSingleFilePatternWithPercentD(t *testing.T) {
	f := baseFlags()
	f.SingleFile = true
	f.SegmentFilename = "stream-%d.ts"
	_, err := Resolve(f)
	if err == nil {
		t.Fatal("expected an error for %d in single-file mode")
	}
}

func TestResolve_Aes128RequiresValidKeyLength(t *testing.T) {
	f := baseFlags()
	f.EncryptionMode = "aes-128"
	f.Key = "00112233" // too short
	if _, err := Resolve(f); err == nil {
		t.Fatal("expected an error for a short key")
	}

	f.Key = strings.Repeat("ab", 16)
	r, err := Resolve(f)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Options.Encryption.Key[0] != 0xab {
		t.Errorf("Key[0] = %x, want 0xab", r.Options.Encryption.Key[0])
	}
}

func TestResolve_FpsModeSplitsKeyAndIV(t *testing.T) {
	f := baseFlags()
	f.EncryptionMode = "sample-aes"
	f.IVMode = "fps"
	f.Key = strings.Repeat("aa", 16) + strings.Repeat("bb", 16)

	r, err := Resolve(f)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Options.Encryption.Key[0] != 0xaa {
		t.Errorf("Key[0] = %x, want 0xaa", r.Options.Encryption.Key[0])
	}
	if r.Options.Encryption.IV[0] != 0xbb {
		t.Errorf("IV[0] = %x, want 0xbb", r.Options.Encryption.IV[0])
	}
}

func TestResolve_FpsModeRejectsSixteenByteKey(t *testing.T) {
	f := baseFlags()
	f.EncryptionMode = "aes-128"
	f.IVMode = "fps"
	f.Key = strings.Repeat("aa", 16)
	if _, err := Resolve(f); err == nil {
		t.Fatal("expected an error: fps mode requires a 32-byte key")
	}
}

func TestResolve_RejectsUnknownEncryptionMode(t *testing.T) {
	f := baseFlags()
	f.EncryptionMode = "rot13"
	if _, err := Resolve(f); err == nil {
		t.Fatal("expected an error for an unknown encryption mode")
	}
}

func TestResolve_RandomModeDrawsNonZeroIV(t *testing.T) {
	f := baseFlags()
	f.EncryptionMode = "aes-128"
	f.IVMode = "random"
	f.Key = strings.Repeat("ab", 16)

	r, err := Resolve(f)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Options.Encryption.IV == ([16]byte{}) {
		t.Fatal("Encryption.IV is zero, want a randomly drawn IV")
	}

	r2, err := Resolve(f)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Options.Encryption.IV == r2.Options.Encryption.IV {
		t.Fatal("two Resolve calls under --iv-mode=random produced the same IV")
	}
}

func TestResolve_RejectsUnknownIVMode(t *testing.T) {
	f := baseFlags()
	f.IVMode = "lunar"
	if _, err := Resolve(f); err == nil {
		t.Fatal("expected an error for an unknown iv mode")
	}
}

// Package config resolves and validates CLI flags into an
// internal/sample.RunOptions, the immutable value threaded through the
// rest of the conversion pipeline. There is no config file or environment
// binding: a one-shot CLI conversion reads its options once per process.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jmylchreest/mp42hls/internal/sample"
	"github.com/jmylchreest/mp42hls/pkg/duration"
)

// Flags is the raw, unvalidated set of CLI flag values, filled directly by
// cmd/mp42hls's pflag bindings.
type Flags struct {
	InputPath string

	OutputDir        string
	SegmentPattern   string
	SegmentFilename  string
	PlaylistFilename string
	SingleFile       bool

	TargetDuration    string
	DurationThreshold string
	HLSVersion        int

	EncryptionMode    string
	IVMode            string
	Key               string
	KeyURI            string
	KeyFormat         string
	KeyFormatVersions string

	VideoPID uint16
	AudioPID uint16

	LogLevel  string
	LogFormat string
}

// Resolved is the validated configuration for one conversion run.
type Resolved struct {
	InputPath string
	Options   sample.RunOptions
}

// Resolve validates f and builds the immutable RunOptions consumed by
// internal/segment and internal/playlist. Every check the original CLI
// performs at startup (filename-pattern shape, key length, mode
// combinations) runs here rather than surfacing as a runtime panic deep in
// the pipeline.
func Resolve(f Flags) (*Resolved, error) {
	if f.InputPath == "" {
		return nil, fmt.Errorf("config: an input file is required")
	}

	target, err := duration.Parse(f.TargetDuration)
	if err != nil {
		return nil, fmt.Errorf("config: --target-duration: %w", err)
	}
	threshold, err := duration.Parse(f.DurationThreshold)
	if err != nil {
		return nil, fmt.Errorf("config: --duration-threshold: %w", err)
	}

	pattern := f.SegmentPattern
	if f.SingleFile {
		pattern = f.SegmentFilename
	}
	if err := validateSegmentPattern(pattern, f.SingleFile); err != nil {
		return nil, err
	}

	mode, err := parseMode(f.EncryptionMode)
	if err != nil {
		return nil, err
	}
	ivMode, err := parseIVMode(f.IVMode)
	if err != nil {
		return nil, err
	}

	enc := sample.EncryptionState{
		Mode:              mode,
		IVMode:            ivMode,
		KeyURI:            f.KeyURI,
		KeyFormat:         f.KeyFormat,
		KeyFormatVersions: f.KeyFormatVersions,
	}
	if mode != sample.ModeNone {
		key, iv, err := parseKey(f.Key, ivMode)
		if err != nil {
			return nil, err
		}
		enc.Key = key
		enc.IV = iv

		if ivMode == sample.IVRandom {
			if _, err := rand.Read(enc.IV[:]); err != nil {
				return nil, fmt.Errorf("config: generating random IV: %w", err)
			}
		}
	}

	opts := sample.RunOptions{
		OutputDir:         f.OutputDir,
		SegmentPattern:    f.SegmentPattern,
		SegmentFilename:   f.SegmentFilename,
		PlaylistFilename:  f.PlaylistFilename,
		SingleFile:        f.SingleFile,
		TargetDuration:    target.Seconds(),
		DurationThreshold: threshold.Seconds(),
		HLSVersion:        f.HLSVersion,
		Encryption:        enc,
		VideoPID:          f.VideoPID,
		AudioPID:          f.AudioPID,
	}

	return &Resolved{InputPath: f.InputPath, Options: opts}, nil
}

// validateSegmentPattern enforces the original tool's rule: exactly one
// %d-style conversion in the --segment-pattern used in multi-file mode (one
// name per segment index), none in the --segment-filename used in
// single-file mode (the filename never varies).
func validateSegmentPattern(pattern string, singleFile bool) error {
	count := strings.Count(pattern, "%d")
	if singleFile {
		if count != 0 {
			return fmt.Errorf("config: --segment-filename must not contain %%d in single-file mode")
		}
		return nil
	}
	if count != 1 {
		return fmt.Errorf("config: --segment-pattern must contain exactly one %%d, got %d", count)
	}
	return nil
}

func parseMode(s string) (sample.Mode, error) {
	switch sample.Mode(s) {
	case sample.ModeNone, sample.ModeAes128, sample.ModeSampleAES:
		return sample.Mode(s), nil
	default:
		return "", fmt.Errorf("config: --encryption-mode must be one of none|aes-128|sample-aes, got %q", s)
	}
}

func parseIVMode(s string) (sample.IVMode, error) {
	switch sample.IVMode(s) {
	case sample.IVSequence, sample.IVRandom, sample.IVFps:
		return sample.IVMode(s), nil
	default:
		return "", fmt.Errorf("config: --iv-mode must be one of sequence|random|fps, got %q", s)
	}
}

// parseKey decodes --key: 16 hex bytes normally, or 32 hex bytes under
// --iv-mode=fps, where the first 16 bytes are the key and the last 16 the
// fixed IV (spec's FairPlay-style single-input key+IV split).
func parseKey(hexKey string, ivMode sample.IVMode) (key, iv [16]byte, err error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return key, iv, fmt.Errorf("config: --key is not valid hex: %w", err)
	}

	if ivMode == sample.IVFps {
		if len(raw) != 32 {
			return key, iv, fmt.Errorf("config: --key must be 32 bytes (64 hex chars) under --iv-mode=fps, got %d bytes", len(raw))
		}
		copy(key[:], raw[:16])
		copy(iv[:], raw[16:])
		return key, iv, nil
	}

	if len(raw) != 16 {
		return key, iv, fmt.Errorf("config: --key must be 16 bytes (32 hex chars), got %d bytes", len(raw))
	}
	copy(key[:], raw)
	return key, iv, nil
}

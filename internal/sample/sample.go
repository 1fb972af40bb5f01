// Package sample defines the data model shared by every stage of the
// mp42hls conversion pipeline: the per-sample record pulled from the input
// movie, the per-segment bookkeeping record, and the encryption
// configuration threaded through the whole run.
package sample

import "github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

// Sample is one decoded-order audio or video access unit pulled from the
// input movie. It is immutable for the lifetime of the pipeline: each
// stage (encryptor, sink) consumes Payload in place and the sample is then
// discarded.
type Sample struct {
	// DTS and PTS are measured in Timescale units.
	DTS, PTS int64
	// Timescale is the track's media timescale (ticks per second).
	Timescale uint32
	// IsSync marks a video sync (IDR) sample. Always true for audio.
	IsSync bool
	// DescriptionIndex is the 1-based sample description index (stsd
	// entry) this sample was encoded against.
	DescriptionIndex uint32
	// Payload is the raw access unit: length-prefixed NAL units for
	// H.264, or a raw AAC frame (no ADTS header) for AAC.
	Payload []byte
}

// Seconds returns the sample's DTS converted to seconds.
func (s Sample) Seconds() float64 {
	if s.Timescale == 0 {
		return 0
	}
	return float64(s.DTS) / float64(s.Timescale)
}

// SegmentRecord is the bookkeeping record for one closed TS segment,
// accumulated by the Segmenter and consumed by the playlist writer once
// the run completes.
type SegmentRecord struct {
	Index int
	// DurationSec is the wall-clock-independent duration derived purely
	// from sample timestamps (spec's "elapsed" at the cut point).
	DurationSec float64
	// ByteSize is the segment's output byte count (ciphertext length
	// when encrypted).
	ByteSize uint64
	// ByteOffset is nonzero only in single-file mode.
	ByteOffset uint64
}

// Mode selects the encryption applied to segment output.
type Mode string

// Encryption modes.
const (
	ModeNone      Mode = "none"
	ModeAes128    Mode = "aes-128"
	ModeSampleAES Mode = "sample-aes"
)

// IVMode selects how the per-segment initialization vector is derived.
type IVMode string

// IV derivation modes.
const (
	// IVSequence derives the IV for segment i as 12 zero bytes followed
	// by the big-endian uint32 i, re-derived at every segment boundary.
	IVSequence IVMode = "sequence"
	// IVRandom draws one IV at startup, reused for every segment and
	// emitted in the playlist's EXT-X-KEY IV attribute.
	IVRandom IVMode = "random"
	// IVFps draws both key and IV from a single 32-byte input (first 16
	// bytes key, last 16 bytes IV); named after the original tool's
	// FairPlay Streaming key-format option.
	IVFps IVMode = "fps"
)

// EncryptionState is the resolved encryption configuration for the run. It
// is constructed once at startup and lives for the full run; the
// Segmenter re-derives the per-segment IV from it at every cut.
type EncryptionState struct {
	Mode   Mode
	IVMode IVMode
	Key    [16]byte
	IV     [16]byte

	// KeyURI, KeyFormat and KeyFormatVersions are copied verbatim into
	// the playlist's EXT-X-KEY attributes; this tool never resolves or
	// validates them.
	KeyURI            string
	KeyFormat         string
	KeyFormatVersions string
}

// SequenceIV returns the IV for segment index i under IVSequence:
// 12 zero bytes followed by the big-endian uint32 i.
func SequenceIV(index int) [16]byte {
	var iv [16]byte
	n := uint32(index)
	iv[12] = byte(n >> 24)
	iv[13] = byte(n >> 16)
	iv[14] = byte(n >> 8)
	iv[15] = byte(n)
	return iv
}

// VideoParams is the resolved decoder configuration for an H.264 video
// track, extracted from its avcC box.
type VideoParams struct {
	// NALULengthSize is 1, 2, or 4 bytes, per avcC's lengthSizeMinusOne.
	NALULengthSize int
	SPS, PPS       [][]byte
}

// AudioParams is the resolved decoder configuration for an AAC audio
// track, extracted from its esds box.
type AudioParams struct {
	ASC mpeg4audio.AudioSpecificConfig
}

// CodecParams bundles the resolved decoder configuration for whichever
// tracks are present. Produced by internal/mp4source, consumed by
// internal/segment, which reads the NAL length size for SAMPLE-AES video
// encryption and the Annex B rewrite.
type CodecParams struct {
	Video *VideoParams
	Audio *AudioParams
}

// RunOptions is the immutable configuration for one conversion run,
// assembled once from CLI flags and passed by reference into the
// Segmenter. It never changes for the lifetime of the run.
type RunOptions struct {
	OutputDir          string
	SegmentPattern     string
	SegmentFilename    string
	PlaylistFilename   string
	SingleFile         bool
	TargetDuration     float64 // whole seconds
	DurationThreshold  float64 // seconds
	HLSVersion         int     // 0 means auto-select
	Encryption         EncryptionState
	VideoPID           uint16
	AudioPID           uint16
}

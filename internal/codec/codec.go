// Package codec identifies the video and audio codecs carried in an MP4
// sample table and maps them to the MPEG-TS stream-type bytes that go in
// the PMT, including the SAMPLE-AES variants HLS uses for selective
// encryption (section 2.3.4 of the HLS spec's SAMPLE-AES extension).
package codec

import "strings"

// Video represents a video codec identified from an MP4 sample description.
type Video string

// Video codec constants. Only codecs the segmenter can actually carry are
// named; anything else resolves to VideoUnsupported.
const (
	VideoH264        Video = "h264"
	VideoUnsupported Video = ""
)

// Audio represents an audio codec identified from an MP4 sample description.
type Audio string

// Audio codec constants.
const (
	AudioAAC         Audio = "aac"
	AudioUnsupported Audio = ""
)

// MPEG-TS stream type constants (ISO/IEC 13818-1 Table 2-34 plus the
// SAMPLE-AES overrides defined by the HLS SAMPLE-AES extension).
const (
	StreamTypeH264 uint8 = 0x1B
	StreamTypeAAC  uint8 = 0x0F

	// StreamTypeH264SampleAES and StreamTypeAACSampleAES are the stream
	// types Apple's HLS tools write in the PMT when the corresponding
	// elementary stream is SAMPLE-AES encrypted, so a compliant player
	// knows to apply the 1-in-10 NAL / AAC frame decryption scheme
	// instead of treating the PES payload as cleartext.
	StreamTypeH264SampleAES uint8 = 0xDB
	StreamTypeAACSampleAES  uint8 = 0xCF

	// StreamTypeAC3SampleAES is unused by this tool (AC-3 audio is out
	// of scope) but is listed for completeness of the SAMPLE-AES
	// stream-type table; 0xC1 is Apple's private stream type for
	// SAMPLE-AES AC-3.
	StreamTypeAC3SampleAES uint8 = 0xC1
)

// videoFourCCs maps ISO/IEC 14496-12 sample entry codes to Video.
var videoFourCCs = map[string]Video{
	"avc1": VideoH264,
	"avc3": VideoH264,
}

// audioFourCCs maps ISO/IEC 14496-12 sample entry codes to Audio.
var audioFourCCs = map[string]Audio{
	"mp4a": AudioAAC,
}

// ParseVideoFourCC resolves an MP4 sample entry fourcc (e.g. "avc1") to a
// Video codec. ok is false for any fourcc this tool cannot carry.
func ParseVideoFourCC(fourcc string) (codec Video, ok bool) {
	v, found := videoFourCCs[strings.ToLower(strings.TrimSpace(fourcc))]
	return v, found
}

// ParseAudioFourCC resolves an MP4 sample entry fourcc (e.g. "mp4a") to an
// Audio codec. ok is false for any fourcc this tool cannot carry.
func ParseAudioFourCC(fourcc string) (codec Audio, ok bool) {
	a, found := audioFourCCs[strings.ToLower(strings.TrimSpace(fourcc))]
	return a, found
}

// StreamType returns the PMT stream-type byte for the video codec, using
// the SAMPLE-AES override when sampleAES is true.
func (v Video) StreamType(sampleAES bool) uint8 {
	switch v {
	case VideoH264:
		if sampleAES {
			return StreamTypeH264SampleAES
		}
		return StreamTypeH264
	default:
		return 0
	}
}

// StreamType returns the PMT stream-type byte for the audio codec, using
// the SAMPLE-AES override when sampleAES is true.
func (a Audio) StreamType(sampleAES bool) uint8 {
	switch a {
	case AudioAAC:
		if sampleAES {
			return StreamTypeAACSampleAES
		}
		return StreamTypeAAC
	default:
		return 0
	}
}

// String returns the canonical codec name.
func (v Video) String() string { return string(v) }

// String returns the canonical codec name.
func (a Audio) String() string { return string(a) }

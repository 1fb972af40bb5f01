package mp4source

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/jmylchreest/mp42hls/internal/sample"
)

// parseAvcC decodes an avcC box's payload (ISO 14496-15) into the SPS/PPS
// parameter sets and NAL length size a video track was encoded against.
func parseAvcC(data []byte) (*sample.VideoParams, error) {
	if len(data) < 7 {
		return nil, fmt.Errorf("mp4source: avcC too short (%d bytes)", len(data))
	}

	lengthSize := int(data[4]&0x03) + 1
	pos := 5

	numSPS := int(data[pos] & 0x1F)
	pos++
	sps := make([][]byte, 0, numSPS)
	for i := 0; i < numSPS; i++ {
		nal, next, err := readLengthPrefixed(data, pos)
		if err != nil {
			return nil, fmt.Errorf("mp4source: avcC SPS %d: %w", i, err)
		}
		sps = append(sps, nal)
		pos = next
	}

	if pos >= len(data) {
		return nil, fmt.Errorf("mp4source: avcC missing PPS count")
	}
	numPPS := int(data[pos])
	pos++
	pps := make([][]byte, 0, numPPS)
	for i := 0; i < numPPS; i++ {
		nal, next, err := readLengthPrefixed(data, pos)
		if err != nil {
			return nil, fmt.Errorf("mp4source: avcC PPS %d: %w", i, err)
		}
		pps = append(pps, nal)
		pos = next
	}

	return &sample.VideoParams{NALULengthSize: lengthSize, SPS: sps, PPS: pps}, nil
}

func readLengthPrefixed(data []byte, pos int) ([]byte, int, error) {
	if pos+2 > len(data) {
		return nil, 0, fmt.Errorf("truncated length prefix at offset %d", pos)
	}
	l := int(data[pos])<<8 | int(data[pos+1])
	pos += 2
	if pos+l > len(data) {
		return nil, 0, fmt.Errorf("truncated payload at offset %d (want %d bytes)", pos, l)
	}
	out := append([]byte(nil), data[pos:pos+l]...)
	return out, pos + l, nil
}

// parseEsdsASC walks an esds box's MPEG-4 descriptor chain (ISO 14496-1) to
// find the decoder-specific-info descriptor, then decodes it as an MPEG-4
// AudioSpecificConfig.
func parseEsdsASC(data []byte) (*sample.AudioParams, error) {
	ptr, end := 0, len(data)

	if ptr >= end || data[ptr] != 0x03 {
		return nil, fmt.Errorf("mp4source: esds missing ES_Descriptor tag")
	}
	ptr++
	ptr = skipDescLen(data, ptr, end)
	if ptr < 0 || ptr+3 > end {
		return nil, fmt.Errorf("mp4source: esds truncated ES_Descriptor")
	}

	flags := data[ptr+2]
	ptr += 3
	if flags&0x80 != 0 { // streamDependenceFlag
		ptr += 2
	}
	if flags&0x40 != 0 { // URL_Flag
		if ptr >= end {
			return nil, fmt.Errorf("mp4source: esds truncated URL")
		}
		ptr += 1 + int(data[ptr])
	}
	if flags&0x20 != 0 { // OCRstreamFlag
		ptr += 2
	}

	if ptr >= end || data[ptr] != 0x04 {
		return nil, fmt.Errorf("mp4source: esds missing DecoderConfigDescriptor tag")
	}
	ptr++
	ptr = skipDescLen(data, ptr, end)
	if ptr < 0 || ptr+13 > end {
		return nil, fmt.Errorf("mp4source: esds truncated DecoderConfigDescriptor")
	}
	ptr += 13 // objectTypeIndication..avgBitrate, not needed once we have the ASC

	if ptr >= end || data[ptr] != 0x05 {
		return nil, fmt.Errorf("mp4source: esds missing DecoderSpecificInfo tag")
	}
	ptr++
	ptr = skipDescLen(data, ptr, end)
	if ptr < 0 || ptr > end {
		return nil, fmt.Errorf("mp4source: esds truncated DecoderSpecificInfo")
	}

	asc := append([]byte(nil), data[ptr:end]...)
	if len(asc) == 0 {
		return nil, fmt.Errorf("mp4source: esds empty AudioSpecificConfig")
	}

	var cfg mpeg4audio.AudioSpecificConfig
	if err := cfg.Unmarshal(asc); err != nil {
		return nil, fmt.Errorf("mp4source: parsing AudioSpecificConfig: %w", err)
	}
	return &sample.AudioParams{ASC: cfg}, nil
}

// skipDescLen advances past an MPEG-4 descriptor's variable-length size
// field (one or more bytes, each carrying a continuation bit in 0x80).
func skipDescLen(data []byte, ptr, end int) int {
	for ptr < end {
		b := data[ptr]
		ptr++
		if b&0x80 == 0 {
			return ptr
		}
	}
	return -1
}

package mp4source

import (
	"bytes"
	"testing"
)

func buildAvcC(sps, pps [][]byte, lengthSizeMinusOne byte) []byte {
	buf := []byte{1, 0x64, 0x00, 0x1e, 0xfc | lengthSizeMinusOne&0x03}
	buf = append(buf, 0xe0|byte(len(sps)))
	for _, s := range sps {
		buf = append(buf, byte(len(s)>>8), byte(len(s)))
		buf = append(buf, s...)
	}
	buf = append(buf, byte(len(pps)))
	for _, p := range pps {
		buf = append(buf, byte(len(p)>>8), byte(len(p)))
		buf = append(buf, p...)
	}
	return buf
}

func TestParseAvcC(t *testing.T) {
	sps := []byte{0x67, 0x64, 0x00, 0x1e}
	pps := []byte{0x68, 0xeb}
	buf := buildAvcC([][]byte{sps}, [][]byte{pps}, 3)

	vp, err := parseAvcC(buf)
	if err != nil {
		t.Fatalf("parseAvcC: %v", err)
	}
	if vp.NALULengthSize != 4 {
		t.Errorf("NALULengthSize = %d, want 4", vp.NALULengthSize)
	}
	if len(vp.SPS) != 1 || !bytes.Equal(vp.SPS[0], sps) {
		t.Errorf("SPS = %x, want %x", vp.SPS, sps)
	}
	if len(vp.PPS) != 1 || !bytes.Equal(vp.PPS[0], pps) {
		t.Errorf("PPS = %x, want %x", vp.PPS, pps)
	}
}

func TestParseAvcCTooShort(t *testing.T) {
	if _, err := parseAvcC([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated avcC")
	}
}

func TestParseAvcCTruncatedSPS(t *testing.T) {
	buf := []byte{1, 0x64, 0x00, 0x1e, 0xff, 0xe1, 0x00, 0x10} // claims a 16-byte SPS but has none
	if _, err := parseAvcC(buf); err == nil {
		t.Fatal("expected error for truncated SPS payload")
	}
}

// buildEsds constructs a minimal esds payload carrying a two-byte AAC-LC
// AudioSpecificConfig (44100Hz stereo): object type 2, sample rate index 4,
// channel config 2.
func buildEsds(asc []byte) []byte {
	decSpecificInfo := append([]byte{0x05, byte(len(asc))}, asc...)
	decConfig := append([]byte{0x04, byte(13 + len(decSpecificInfo))}, make([]byte, 13)...)
	decConfig = append(decConfig, decSpecificInfo...)
	esDescriptor := append([]byte{0x03, byte(3 + len(decConfig)), 0x00, 0x00, 0x00}, decConfig...)
	return esDescriptor
}

func TestParseEsdsASC(t *testing.T) {
	asc := []byte{0x12, 0x10} // AAC-LC, 44100Hz, stereo
	buf := buildEsds(asc)

	ap, err := parseEsdsASC(buf)
	if err != nil {
		t.Fatalf("parseEsdsASC: %v", err)
	}
	if ap == nil {
		t.Fatal("expected non-nil AudioParams")
	}
}

func TestParseEsdsASCMissingTag(t *testing.T) {
	if _, err := parseEsdsASC([]byte{0x04, 0x00}); err == nil {
		t.Fatal("expected error for missing ES_Descriptor tag")
	}
}

func TestReadBoxHeaderAt(t *testing.T) {
	var buf [8]byte
	buf[0], buf[1], buf[2], buf[3] = 0, 0, 0, 16
	copy(buf[4:8], "trak")
	size, boxType := readBoxHeaderAt(buf[:])
	if size != 16 || boxType != "trak" {
		t.Errorf("readBoxHeaderAt = (%d, %q), want (16, trak)", size, boxType)
	}
}

func TestContainsMvex(t *testing.T) {
	var mvhd [8]byte
	mvhd[3] = 8
	copy(mvhd[4:], "mvhd")

	var mvex [8]byte
	mvex[3] = 8
	copy(mvex[4:], "mvex")

	moov := append([]byte{0, 0, 0, 24, 'm', 'o', 'o', 'v'}, mvhd[:]...)
	moov = append(moov, mvex[:]...)

	if !containsMvex(moov) {
		t.Error("containsMvex = false, want true")
	}

	moovNoMvex := append([]byte{0, 0, 0, 16, 'm', 'o', 'o', 'v'}, mvhd[:]...)
	if containsMvex(moovNoMvex) {
		t.Error("containsMvex = true, want false")
	}
}

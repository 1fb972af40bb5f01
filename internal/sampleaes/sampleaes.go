// Package sampleaes implements HLS SAMPLE-AES selective encryption: the
// AAC audio leader/trailer scheme and the H.264 "1-in-10" NAL-unit
// encryption pattern with start-code emulation prevention.
package sampleaes

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// blockSize is the AES block size; SAMPLE-AES always operates in whole
// 16-byte blocks.
const blockSize = 16

// nalStride is the "1-in-10" stride: one protected 16-byte block is
// encrypted per 160-byte span within a slice NAL's encrypted region.
const nalStride = 10 * blockSize

// Encryptor applies SAMPLE-AES to audio and video sample payloads. A fresh
// Encryptor is constructed per segment, keyed by the segment's derived IV;
// cipher state is reset to that IV at the start of every sample (and, for
// video, at the start of every protected block) — it is never chained
// across samples.
type Encryptor struct {
	key [16]byte
	iv  [16]byte
}

// New returns an Encryptor keyed by key, resetting to iv at every sample
// and every protected NAL block.
func New(key, iv [16]byte) *Encryptor {
	return &Encryptor{key: key, iv: iv}
}

// cbcEncrypt runs one fresh CBC pass over plaintext (len must be a
// multiple of 16), always starting from e.iv, never chaining state across
// calls.
func (e *Encryptor) cbcEncrypt(dst, src []byte) error {
	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return fmt.Errorf("sampleaes: %w", err)
	}
	iv := e.iv
	mode := cipher.NewCBCEncrypter(block, iv[:])
	mode.CryptBlocks(dst, src)
	return nil
}

// EncryptAudio applies the AAC leader/trailer rule to payload in place.
// Samples of 16 bytes or fewer are left unchanged. Otherwise the first 16
// bytes are an unencrypted leader, the largest following multiple-of-16
// prefix is encrypted, and the 0-15 remaining bytes are an unencrypted
// trailer.
func (e *Encryptor) EncryptAudio(payload []byte) error {
	l := len(payload)
	if l <= blockSize {
		return nil
	}
	encLen := ((l - blockSize) / blockSize) * blockSize
	if encLen == 0 {
		return nil
	}
	region := payload[blockSize : blockSize+encLen]
	return e.cbcEncrypt(region, region)
}

// EncryptVideo applies the H.264 1-in-10 NAL encryption pattern to a
// sample payload consisting of [lengthSize-byte length][NAL] pairs, and
// returns the (possibly longer, due to emulation-prevention escaping)
// rewritten payload. The input slice is not modified.
func (e *Encryptor) EncryptVideo(payload []byte, lengthSize int) ([]byte, error) {
	if lengthSize != 1 && lengthSize != 2 && lengthSize != 4 {
		return nil, fmt.Errorf("sampleaes: invalid NAL length size %d", lengthSize)
	}

	out := make([]byte, 0, len(payload))
	pos := 0
	for pos < len(payload) {
		if pos+lengthSize > len(payload) {
			break
		}
		n := readLength(payload[pos:pos+lengthSize], lengthSize)
		if pos+lengthSize+n > len(payload) {
			break
		}
		nal := payload[pos+lengthSize : pos+lengthSize+n]
		pos += lengthSize + n

		if n == 0 {
			out = appendLength(out, 0, lengthSize)
			continue
		}

		naluType := h264.NALUType(nal[0] & 0x1F)
		if n > 48 && (naluType == h264.NALUTypeNonIDR || naluType == h264.NALUTypeIDR) {
			escaped, err := e.encryptSliceNAL(nal, n)
			if err != nil {
				return nil, err
			}
			out = appendLength(out, len(escaped), lengthSize)
			out = append(out, escaped...)
			continue
		}

		out = appendLength(out, n, lengthSize)
		out = append(out, nal...)
	}
	return out, nil
}

// encryptSliceNAL encrypts the 1-in-10 protected blocks of one slice NAL
// (nal has length n) and applies emulation prevention to the full NAL
// payload, returning the escaped buffer.
func (e *Encryptor) encryptSliceNAL(nal []byte, n int) ([]byte, error) {
	encryptedSpan := blockSize * ((n - 32) / blockSize)
	if n%blockSize == 0 {
		encryptedSpan -= blockSize
	}

	protected := make([]byte, len(nal))
	copy(protected, nal)

	for off := 0; off < encryptedSpan; off += nalStride {
		start := 32 + off
		end := start + blockSize
		if end > len(protected) {
			break
		}
		block := protected[start:end]
		if err := e.cbcEncrypt(block, block); err != nil {
			return nil, err
		}
	}

	return escapeEmulation(protected), nil
}

// escapeEmulation inserts a 0x03 emulation-prevention byte before any
// byte in {0x00, 0x01, 0x02, 0x03} that is preceded by two consecutive
// 0x00 bytes, resetting the zero run each time.
func escapeEmulation(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+len(payload)/16)
	zeroRun := 0
	for _, b := range payload {
		if zeroRun >= 2 && b <= 0x03 {
			out = append(out, 0x03)
			zeroRun = 0
		}
		out = append(out, b)
		if b == 0x00 {
			zeroRun++
		} else {
			zeroRun = 0
		}
	}
	return out
}

// readLength decodes a big-endian length prefix of the given byte width.
func readLength(b []byte, size int) int {
	n := 0
	for i := 0; i < size; i++ {
		n = n<<8 | int(b[i])
	}
	return n
}

// appendLength appends a big-endian length prefix of the given byte width.
func appendLength(dst []byte, n, size int) []byte {
	buf := make([]byte, size)
	v := n
	for i := size - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return append(dst, buf...)
}

package tsmux

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
)

const aesBlockSize = 16

// Aes128Sink wraps an io.Writer with AES-128-CBC encryption and PKCS#7
// padding, for HLS's full-segment (METHOD=AES-128) encryption mode. Plain
// TS bytes pushed via Write are buffered until a full block accumulates,
// encrypted, and forwarded; Close flushes the final short block with
// padding. It is itself an io.Writer, so a RawSink can target one directly.
type Aes128Sink struct {
	w       io.Writer
	block   cipher.Block
	mode    cipher.BlockMode
	pending []byte
	n       uint64
	closed  bool
}

// NewAes128Sink constructs a sink that encrypts everything written to it
// with AES-128-CBC under key/iv before forwarding to w.
func NewAes128Sink(w io.Writer, key, iv []byte) (*Aes128Sink, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("tsmux: building AES cipher: %w", err)
	}
	if len(iv) != aesBlockSize {
		return nil, fmt.Errorf("tsmux: IV must be %d bytes, got %d", aesBlockSize, len(iv))
	}
	return &Aes128Sink{
		w:    w,
		block: block,
		mode: cipher.NewCBCEncrypter(block, iv),
	}, nil
}

// Write buffers p, encrypting and forwarding each full 16-byte block as it
// accumulates. The final partial block is held until Close.
func (s *Aes128Sink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("tsmux: write to closed Aes128Sink")
	}
	s.pending = append(s.pending, p...)
	full := len(s.pending) - len(s.pending)%aesBlockSize
	if full == 0 {
		return len(p), nil
	}

	out := make([]byte, full)
	s.mode.CryptBlocks(out, s.pending[:full])
	if _, err := s.w.Write(out); err != nil {
		return 0, err
	}
	s.n += uint64(full)
	s.pending = s.pending[full:]
	return len(p), nil
}

// Close PKCS#7-pads whatever remains in the buffer (always a full block,
// even when the input ended on an exact block boundary, per RFC 5652) and
// flushes it.
func (s *Aes128Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	padLen := aesBlockSize - len(s.pending)%aesBlockSize
	padded := append(s.pending, make([]byte, padLen)...)
	for i := len(s.pending); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}

	out := make([]byte, len(padded))
	s.mode.CryptBlocks(out, padded)
	if _, err := s.w.Write(out); err != nil {
		return err
	}
	s.n += uint64(len(out))
	return nil
}

// BytesWritten returns the number of ciphertext bytes flushed so far.
func (s *Aes128Sink) BytesWritten() uint64 {
	return s.n
}

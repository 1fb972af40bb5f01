// Package convert implements the mp42hls conversion pipeline: wiring an
// MP4 sample source, the segmenter, optional SAMPLE-AES encryption, the TS
// sink, and the playlist writer behind a single Run entry point.
package convert

import "fmt"

// Kind identifies one of the five error conditions the conversion pipeline
// can fail with. The CLI boundary maps a Kind to its exit diagnostic.
type Kind string

const (
	// InvalidInput covers a missing movie/tracks, an unsupported codec, or
	// a malformed hex key.
	InvalidInput Kind = "invalid_input"
	// UnsupportedCombination covers SAMPLE-AES requested against a video
	// track with no parsed avcC. Run returns it only in that case:
	// internal/mp4source skips non-AVC video and non-AAC audio tracks when
	// opening the file, so such tracks never reach this check.
	UnsupportedCombination Kind = "unsupported_combination"
	// IoFailure covers any read/write/open/seek failure against the
	// input file, a segment file, or the playlist file.
	IoFailure Kind = "io_failure"
	// CipherFailure covers any crypto/aes or crypto/cipher construction
	// or encryption failure.
	CipherFailure Kind = "cipher_failure"
	// DecoderConfigParseFailure names a malformed avcC or esds box that
	// cannot be resolved into CodecParams. Run does not return this kind:
	// every failure from mp4source.Open, a malformed avcC or esds
	// included, is reported as InvalidInput.
	DecoderConfigParseFailure Kind = "decoder_config_parse_failure"
)

// KindError is a typed error carrying one of the five Kind values. The CLI
// boundary matches on Kind via errors.As to select the exit diagnostic;
// Unwrap exposes the underlying cause for %w-style wrapping and logging.
type KindError struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *KindError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *KindError) Unwrap() error {
	return e.Err
}

// newKindError constructs a *KindError, wrapping err (which may be nil).
func newKindError(kind Kind, err error) *KindError {
	return &KindError{Kind: kind, Err: err}
}

// NewInvalidInput wraps err as an InvalidInput error.
func NewInvalidInput(err error) *KindError { return newKindError(InvalidInput, err) }

// NewUnsupportedCombination wraps err as an UnsupportedCombination error.
func NewUnsupportedCombination(err error) *KindError {
	return newKindError(UnsupportedCombination, err)
}

// NewIoFailure wraps err as an IoFailure error.
func NewIoFailure(err error) *KindError { return newKindError(IoFailure, err) }

// NewCipherFailure wraps err as a CipherFailure error.
func NewCipherFailure(err error) *KindError { return newKindError(CipherFailure, err) }

// NewDecoderConfigParseFailure wraps err as a DecoderConfigParseFailure error.
func NewDecoderConfigParseFailure(err error) *KindError {
	return newKindError(DecoderConfigParseFailure, err)
}

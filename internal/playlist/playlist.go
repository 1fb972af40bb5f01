// Package playlist writes the HLS VOD playlist (.m3u8) once a conversion
// run's segment records are known, in the teacher's streaming Writer style
// but against the HLS VOD tag set rather than live-TV attributes.
package playlist

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/jmylchreest/mp42hls/internal/sample"
)

// crlf is used for every line: HLS playlists are CRLF-terminated.
const crlf = "\r\n"

// Segment is one playlist entry: a closed segment's bookkeeping plus the
// URL under which it will be served.
type Segment struct {
	DurationSec float64
	ByteSize    uint64
	ByteOffset  uint64
	URL         string
}

// Options configures the playlist header. Version is the user-requested
// EXT-X-VERSION (0 means unspecified, auto-select).
type Options struct {
	Version    int
	SingleFile bool
	Encryption sample.EncryptionState
}

// Writer emits an HLS VOD playlist: a header written once, one line group
// per segment, and a final EXT-X-ENDLIST, all from a single WriteAll call.
type Writer struct {
	w             io.Writer
	version       int
	logger        *slog.Logger
	headerWritten bool
	err           error
}

// NewWriter resolves the effective EXT-X-VERSION (bumping and warning via
// logger if the caller's request is too low for opts) and returns a Writer
// ready for WriteAll. The header is not written until the segment
// durations needed for EXT-X-TARGETDURATION are known, so callers pass
// segments to WriteAll rather than NewWriter.
func NewWriter(w io.Writer, opts Options, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{w: w, version: resolveVersion(opts, logger), logger: logger}
}

// Version returns the resolved EXT-X-VERSION this writer will emit.
func (pw *Writer) Version() int { return pw.version }

// WriteAll writes the complete playlist (header, every segment, and
// EXT-X-ENDLIST) in one pass, the only way internal/convert calls this
// package: segment records are fully known only once the Segmenter run
// completes.
func (pw *Writer) WriteAll(opts Options, segments []Segment) error {
	if err := pw.writeHeader(opts, segments); err != nil {
		return err
	}
	for _, seg := range segments {
		if err := pw.writeSegment(opts, seg); err != nil {
			return err
		}
	}
	return pw.close()
}

func (pw *Writer) writeLine(s string) error {
	if pw.err != nil {
		return pw.err
	}
	_, err := io.WriteString(pw.w, s+crlf)
	if err != nil {
		pw.err = err
	}
	return err
}

func (pw *Writer) writeHeader(opts Options, segments []Segment) error {
	if pw.headerWritten {
		return nil
	}
	pw.headerWritten = true

	if err := pw.writeLine("#EXTM3U"); err != nil {
		return fmt.Errorf("playlist: writing header: %w", err)
	}
	if pw.version != 1 {
		if err := pw.writeLine(fmt.Sprintf("#EXT-X-VERSION:%d", pw.version)); err != nil {
			return fmt.Errorf("playlist: writing version: %w", err)
		}
	}
	if err := pw.writeLine("#EXT-X-PLAYLIST-TYPE:VOD"); err != nil {
		return fmt.Errorf("playlist: writing playlist type: %w", err)
	}
	if err := pw.writeLine("#EXT-X-INDEPENDENT-SEGMENTS"); err != nil {
		return fmt.Errorf("playlist: writing independent-segments: %w", err)
	}

	target := 0
	for _, seg := range segments {
		if d := roundHalfUp(seg.DurationSec); d > target {
			target = d
		}
	}
	if err := pw.writeLine(fmt.Sprintf("#EXT-X-TARGETDURATION:%d", target)); err != nil {
		return fmt.Errorf("playlist: writing target duration: %w", err)
	}
	if err := pw.writeLine("#EXT-X-MEDIA-SEQUENCE:0"); err != nil {
		return fmt.Errorf("playlist: writing media sequence: %w", err)
	}

	if opts.Encryption.Mode != sample.ModeNone {
		if err := pw.writeLine(buildKeyLine(opts.Encryption)); err != nil {
			return fmt.Errorf("playlist: writing key: %w", err)
		}
	}
	return nil
}

func (pw *Writer) writeSegment(opts Options, seg Segment) error {
	if err := pw.writeLine("#EXTINF:" + formatDuration(seg.DurationSec, pw.version) + ","); err != nil {
		return fmt.Errorf("playlist: writing EXTINF: %w", err)
	}
	if opts.SingleFile {
		line := fmt.Sprintf("#EXT-X-BYTERANGE:%d@%d", seg.ByteSize, seg.ByteOffset)
		if err := pw.writeLine(line); err != nil {
			return fmt.Errorf("playlist: writing byterange: %w", err)
		}
	}
	if err := pw.writeLine(seg.URL); err != nil {
		return fmt.Errorf("playlist: writing segment url: %w", err)
	}
	return nil
}

func (pw *Writer) close() error {
	if err := pw.writeLine("#EXT-X-ENDLIST"); err != nil {
		return fmt.Errorf("playlist: writing endlist: %w", err)
	}
	return nil
}

// buildKeyLine constructs the EXT-X-KEY attribute line. IV is emitted only
// under IVRandom, per spec: sequence IVs change every segment and so
// cannot be advertised once in the playlist header, and fps-derived IVs
// are not advertised either, even though they are fixed for the run.
func buildKeyLine(enc sample.EncryptionState) string {
	method := "AES-128"
	if enc.Mode == sample.ModeSampleAES {
		method = "SAMPLE-AES"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `#EXT-X-KEY:METHOD=%s,URI="%s"`, method, enc.KeyURI)
	if enc.IVMode == sample.IVRandom {
		fmt.Fprintf(&b, ",IV=0x%s", hex.EncodeToString(enc.IV[:]))
	}
	if enc.KeyFormat != "" {
		fmt.Fprintf(&b, `,KEYFORMAT="%s"`, enc.KeyFormat)
	}
	if enc.KeyFormatVersions != "" {
		fmt.Fprintf(&b, `,KEYFORMATVERSIONS="%s"`, enc.KeyFormatVersions)
	}
	return b.String()
}

// formatDuration renders a segment's EXTINF duration: a float for version
// 3 and above, an integer rounded half up for version 1-2 playlists.
func formatDuration(d float64, version int) string {
	if version < 3 {
		return strconv.Itoa(roundHalfUp(d))
	}
	s := strconv.FormatFloat(d, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" {
		s = "0"
	}
	return s
}

// roundHalfUp rounds a non-negative duration to the nearest integer,
// rounding .5 up, per spec.md's TARGETDURATION rule.
func roundHalfUp(d float64) int {
	return int(math.Floor(d + 0.5))
}

// resolveVersion applies spec.md §6.2's version selection and bump rules,
// warning via logger whenever a user-supplied version had to be raised.
func resolveVersion(opts Options, logger *slog.Logger) int {
	sampleAES := opts.Encryption.Mode == sample.ModeSampleAES
	keyFormatSet := opts.Encryption.KeyFormat != "" || opts.Encryption.KeyFormatVersions != ""

	if opts.Version == 0 {
		switch {
		case sampleAES:
			return 5
		case opts.SingleFile:
			return 4
		default:
			return 3
		}
	}

	min := 1
	if opts.SingleFile {
		min = 4
	}
	if sampleAES || keyFormatSet {
		min = 5
	}
	if opts.Version < min {
		logger.Warn("bumping EXT-X-VERSION to satisfy playlist requirements",
			"requested", opts.Version, "resolved", min)
		return min
	}
	return opts.Version
}

// Package mp4source implements the input side of the mp42hls conversion
// pipeline: opening an MP4 file and exposing its video and audio tracks as
// pull-based sample iterators, regardless of whether the file stores its
// media in a single moov/stbl sample table or in moof/mdat fragments.
package mp4source

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/jmylchreest/mp42hls/internal/sample"
)

// Source is a pull-based iterator over one track's samples in decode order.
// Next returns io.EOF once the track is exhausted.
type Source interface {
	Next() (sample.Sample, error)
}

// Movie is an opened MP4 input. Video and Audio are nil when the
// corresponding track is absent; callers drive whichever tracks are
// present through Source.Next.
type Movie struct {
	HasFragments bool
	Video        Source
	Audio        Source
	Codecs       sample.CodecParams

	closeFn func() error
}

// Close releases the underlying file handle.
func (m *Movie) Close() error {
	if m.closeFn == nil {
		return nil
	}
	return m.closeFn()
}

// Open parses path's top-level box structure, classifies it as fragmented
// or non-fragmented, and returns a Movie ready for sample iteration.
func Open(path string) (*Movie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mp4source: opening %s: %w", path, err)
	}

	loc, err := scanTopLevel(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if loc.moov == nil {
		f.Close()
		return nil, fmt.Errorf("mp4source: %s: no moov box found", path)
	}

	if loc.fragmented {
		movie, err := openFragmented(f, loc)
		if err != nil {
			f.Close()
			return nil, err
		}
		return movie, nil
	}

	movie, err := openNonFragmented(f, loc.moov)
	if err != nil {
		f.Close()
		return nil, err
	}
	return movie, nil
}

// movieLayout is the result of a single sequential pass over a file's
// top-level boxes.
type movieLayout struct {
	moov []byte
	// moovEnd is the file offset immediately after the moov box, where the
	// fragment sequence (styp/moof/mdat) begins for a fragmented file.
	moovEnd int64
	// initEnd is the file offset immediately after the last box that
	// belongs to the init segment (ftyp, moov, and any free/sidx boxes
	// between them and the first moof). For a fragmented file with no moof
	// seen during the scan, f is left positioned here.
	initEnd    int64
	fragmented bool
}

// scanTopLevel walks f's top-level boxes once, capturing the moov box
// bytes and detecting whether the file carries movie fragments (a moof box
// appears, or moov itself declares an mvex box).
func scanTopLevel(f *os.File) (movieLayout, error) {
	var loc movieLayout
	var offset int64
	r := bufio.NewReaderSize(f, 64*1024)

	for {
		hdr, boxType, size, err := peekBoxHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return loc, err
		}

		switch boxType {
		case "moov":
			buf := make([]byte, size)
			copy(buf, hdr)
			if _, err := io.ReadFull(r, buf[len(hdr):]); err != nil {
				return loc, fmt.Errorf("mp4source: reading moov: %w", err)
			}
			loc.moov = buf
			offset += size
			loc.moovEnd = offset
			loc.initEnd = offset
			if containsMvex(buf) {
				loc.fragmented = true
			}
			continue
		case "moof":
			loc.fragmented = true
			if loc.moov != nil {
				// Stop scanning: the fragment sequence starts here.
				if _, err := f.Seek(offset, io.SeekStart); err != nil {
					return loc, err
				}
				return loc, nil
			}
		case "ftyp", "free", "sidx", "styp":
			// Part of the init segment when seen before moov/moof.
		}

		if _, err := io.CopyN(io.Discard, r, size-int64(len(hdr))); err != nil {
			return loc, fmt.Errorf("mp4source: skipping %s box: %w", boxType, err)
		}
		offset += size
		if loc.moov != nil {
			loc.initEnd = offset
		}
	}

	if loc.fragmented {
		if _, err := f.Seek(loc.initEnd, io.SeekStart); err != nil {
			return loc, err
		}
	}
	return loc, nil
}

// containsMvex reports whether a moov box buffer (including its own
// header) declares a mvex child, the standard fragmentation marker.
func containsMvex(moovBuf []byte) bool {
	pos := 8 // skip moov's own header
	for pos+8 <= len(moovBuf) {
		size, boxType := readBoxHeaderAt(moovBuf[pos:])
		if size < 8 || pos+int(size) > len(moovBuf) {
			return false
		}
		if boxType == "mvex" {
			return true
		}
		pos += int(size)
	}
	return false
}

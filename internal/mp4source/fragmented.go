package mp4source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	mp4codecs "github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/jmylchreest/mp42hls/internal/sample"
)

// openFragmented parses a moov/mvex init segment and wires up a shared
// fragmentDemuxer that both track Sources pull from: the file's moof/mdat
// pairs interleave samples for both tracks in one pass, so advancing one
// track's queue may also fill the other's.
func openFragmented(f *os.File, loc movieLayout) (*Movie, error) {
	var init fmp4.Init
	if err := init.Unmarshal(bytes.NewReader(loc.moov)); err != nil {
		return nil, fmt.Errorf("mp4source: parsing fragmented init segment: %w", err)
	}

	demux := &fragmentDemuxer{r: bufio.NewReaderSize(f, 256*1024)}
	movie := &Movie{HasFragments: true, closeFn: f.Close}

	for _, trk := range init.Tracks {
		switch codec := trk.Codec.(type) {
		case *mp4codecs.CodecH264:
			if movie.Video != nil {
				continue
			}
			ft := &fragmentTrack{id: trk.ID, timescale: trk.TimeScale}
			demux.video = ft
			movie.Video = &fragmentSource{demux: demux, track: ft}
			movie.Codecs.Video = &sample.VideoParams{
				NALULengthSize: 4,
				SPS:            [][]byte{codec.SPS},
				PPS:            [][]byte{codec.PPS},
			}
		case *mp4codecs.CodecMPEG4Audio:
			if movie.Audio != nil {
				continue
			}
			ft := &fragmentTrack{id: trk.ID, timescale: trk.TimeScale}
			demux.audio = ft
			movie.Audio = &fragmentSource{demux: demux, track: ft}
			movie.Codecs.Audio = &sample.AudioParams{ASC: codec.Config}
		}
	}

	if movie.Video == nil && movie.Audio == nil {
		return nil, fmt.Errorf("mp4source: fragmented init segment has no usable H.264/AAC tracks")
	}
	return movie, nil
}

// fragmentTrack buffers the samples for one track that have been demuxed
// from fragments but not yet consumed by the pipeline.
type fragmentTrack struct {
	id        uint32
	timescale uint32
	queue     []sample.Sample
}

// fragmentDemuxer reads moof/mdat fragment pairs sequentially from the
// underlying file and fans their samples out into the video/audio track
// queues, advancing only as far as needed to satisfy whichever track asks
// next.
type fragmentDemuxer struct {
	r     *bufio.Reader
	eof   bool
	video *fragmentTrack
	audio *fragmentTrack
}

func (d *fragmentDemuxer) fillUntil(t *fragmentTrack) error {
	for len(t.queue) == 0 && !d.eof {
		if err := d.readOneFragment(); err != nil {
			if err == io.EOF {
				d.eof = true
				break
			}
			return err
		}
	}
	return nil
}

// readOneFragment reads one moof box followed by its mdat box (skipping
// any free/styp/sidx boxes in between), hands the combined bytes to
// fmp4.Parts, and appends each track's decoded samples to its queue.
func (d *fragmentDemuxer) readOneFragment() error {
	moofBuf, err := d.readBoxOfType("moof")
	if err != nil {
		return err
	}
	mdatBuf, err := d.readBoxOfType("mdat")
	if err != nil {
		return fmt.Errorf("mp4source: reading mdat after moof: %w", err)
	}

	combined := make([]byte, 0, len(moofBuf)+len(mdatBuf))
	combined = append(combined, moofBuf...)
	combined = append(combined, mdatBuf...)

	var parts fmp4.Parts
	if err := parts.Unmarshal(combined); err != nil {
		return fmt.Errorf("mp4source: parsing fragment: %w", err)
	}

	for _, part := range parts {
		for _, trk := range part.Tracks {
			ft := d.trackFor(trk.ID)
			if ft == nil {
				continue
			}
			dts := int64(trk.BaseTime)
			for _, s := range trk.Samples {
				ft.queue = append(ft.queue, sample.Sample{
					DTS:       dts,
					PTS:       dts + int64(s.PTSOffset),
					Timescale: ft.timescale,
					IsSync:    !s.IsNonSyncSample,
					Payload:   s.Payload,
				})
				dts += int64(s.Duration)
			}
		}
	}
	return nil
}

func (d *fragmentDemuxer) trackFor(id uint32) *fragmentTrack {
	if d.video != nil && d.video.id == id {
		return d.video
	}
	if d.audio != nil && d.audio.id == id {
		return d.audio
	}
	return nil
}

// readBoxOfType reads and discards boxes until one of the given type is
// found, returning its full raw bytes (header included).
func (d *fragmentDemuxer) readBoxOfType(want string) ([]byte, error) {
	for {
		hdr, boxType, size, err := peekBoxHeader(d.r)
		if err != nil {
			return nil, err
		}
		rest := size - int64(len(hdr))
		if boxType == want {
			buf := make([]byte, size)
			copy(buf, hdr)
			if _, err := io.ReadFull(d.r, buf[len(hdr):]); err != nil {
				return nil, fmt.Errorf("mp4source: reading %s box body: %w", want, err)
			}
			return buf, nil
		}
		if _, err := io.CopyN(io.Discard, d.r, rest); err != nil {
			return nil, fmt.Errorf("mp4source: skipping %s box while seeking %s: %w", boxType, want, err)
		}
	}
}

// fragmentSource adapts the shared fragmentDemuxer into a per-track Source.
type fragmentSource struct {
	demux *fragmentDemuxer
	track *fragmentTrack
}

func (s *fragmentSource) Next() (sample.Sample, error) {
	if err := s.demux.fillUntil(s.track); err != nil {
		return sample.Sample{}, err
	}
	if len(s.track.queue) == 0 {
		return sample.Sample{}, io.EOF
	}
	sm := s.track.queue[0]
	s.track.queue = s.track.queue[1:]
	return sm, nil
}

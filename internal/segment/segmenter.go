// Package segment implements the merge loop that drives the interleaved
// audio/video sample streams into MPEG-TS segments: the Priming, Running,
// Draining, Done state machine, the video-sync cut-point policy, and the
// per-segment encryption and byte-range bookkeeping that feeds the
// playlist writer.
package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmylchreest/mp42hls/internal/codec"
	"github.com/jmylchreest/mp42hls/internal/mp4source"
	"github.com/jmylchreest/mp42hls/internal/sample"
	"github.com/jmylchreest/mp42hls/internal/sampleaes"
	"github.com/jmylchreest/mp42hls/internal/tsmux"
	"github.com/jmylchreest/mp42hls/pkg/format"
)

// ErrCipher wraps every error originating from cipher construction or
// sample encryption, so internal/convert can classify it as a
// CipherFailure without this package importing internal/convert's error
// kinds and creating a circular dependency.
var ErrCipher = errors.New("segment: cipher error")

// segmentOpen tracks the state of the segment currently being written. It
// is created lazily on the first sample of a segment and discarded at
// close.
type segmentOpen struct {
	raw        *tsmux.RawSink
	cipherSink *tsmux.Aes128Sink // non-nil only under ModeAes128
	file       *os.File          // the segment's own file in multi-file mode; the shared file otherwise
	startedAtTS float64
	startOffset uint64
}

// Segmenter owns the merge loop's mutable state: the buffered lookahead
// sample from each source, the open segment, and the accumulated segment
// record list. A Segmenter is single-use — construct one per conversion
// run via Run.
type Segmenter struct {
	opts   *sample.RunOptions
	codecs sample.CodecParams
	logger *slog.Logger

	audio mp4source.Source
	video mp4source.Source

	audioSample *sample.Sample
	videoSample *sample.Sample
	audioDone   bool
	videoDone   bool

	segmentIndex       int
	segmentStartedAtTS float64
	lastTS             float64
	records            []sample.SegmentRecord

	open *segmentOpen
	file *os.File // shared output file, single-file mode only
	sw   *tsmux.SwappableWriter

	videoEncryptor *sampleaes.Encryptor
	audioEncryptor *sampleaes.Encryptor
}

// Run drives audio and video (either may be nil, not both) to completion,
// writing TS segments under opts and returning the accumulated segment
// records in order. codecs supplies the decoder configuration needed for
// PMT stream types and NAL length-prefix parsing.
func Run(ctx context.Context, opts *sample.RunOptions, codecs sample.CodecParams, audio, video mp4source.Source, logger *slog.Logger) ([]sample.SegmentRecord, error) {
	if audio == nil && video == nil {
		return nil, fmt.Errorf("segment: no audio or video source")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Segmenter{
		opts:   opts,
		codecs: codecs,
		logger: logger,
		audio:  audio,
		video:  video,
	}

	if err := s.prime(); err != nil {
		return nil, err
	}

	if err := s.run(ctx); err != nil {
		return nil, err
	}

	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return nil, fmt.Errorf("segment: closing %s: %w", s.file.Name(), err)
		}
	}

	return s.records, nil
}

// prime fetches the first sample from each present source (Priming state).
func (s *Segmenter) prime() error {
	if s.audio == nil {
		s.audioDone = true
	} else if err := s.fetchAudio(); err != nil {
		return err
	}
	if s.video == nil {
		s.videoDone = true
	} else if err := s.fetchVideo(); err != nil {
		return err
	}
	return nil
}

func (s *Segmenter) fetchAudio() error {
	sm, err := s.audio.Next()
	if err == io.EOF {
		s.audioSample = nil
		s.audioDone = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("segment: reading audio sample: %w", err)
	}
	s.audioSample = &sm
	return nil
}

func (s *Segmenter) fetchVideo() error {
	sm, err := s.video.Next()
	if err == io.EOF {
		s.videoSample = nil
		s.videoDone = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("segment: reading video sample: %w", err)
	}
	s.videoSample = &sm
	return nil
}

// run implements the Running and Draining states: the merge loop and
// final segment close.
func (s *Segmenter) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chosen, isVideo, ok := s.selectNext()
		if !ok {
			break
		}

		if err := s.maybeCut(chosen, isVideo); err != nil {
			return err
		}
		if err := s.writeSample(chosen, isVideo); err != nil {
			return err
		}

		var err error
		if isVideo {
			err = s.fetchVideo()
		} else {
			err = s.fetchAudio()
		}
		if err != nil {
			return err
		}
	}

	if s.open != nil {
		last := s.currentTS()
		if err := s.closeSegment(last - s.segmentStartedAtTS); err != nil {
			return err
		}
	}
	return nil
}

// currentTS returns the timestamp (seconds) of whichever buffered sample
// was most recently chosen, used to compute the final segment's duration
// once both sources are exhausted. Tracked via the last selection rather
// than recomputed, since at Draining time neither buffer holds a usable
// sample.
func (s *Segmenter) currentTS() float64 {
	return s.lastTS
}

// selectNext implements spec's per-iteration selection rule: video wins
// ties, and either source alone is chosen outright once the other is
// exhausted.
func (s *Segmenter) selectNext() (chosen *sample.Sample, isVideo bool, ok bool) {
	haveA := !s.audioDone
	haveV := !s.videoDone

	switch {
	case haveA && haveV:
		if s.videoSample.Seconds() <= s.audioSample.Seconds() {
			return s.videoSample, true, true
		}
		return s.audioSample, false, true
	case haveV:
		return s.videoSample, true, true
	case haveA:
		return s.audioSample, false, true
	default:
		return nil, false, false
	}
}

// maybeCut evaluates the cut-point policy before the chosen sample is
// written, opening the first segment immediately or closing and reopening
// once the elapsed threshold is reached.
func (s *Segmenter) maybeCut(chosen *sample.Sample, isVideo bool) error {
	ts := chosen.Seconds()
	s.lastTS = ts

	if s.open == nil {
		s.segmentStartedAtTS = ts
		return s.openSegment(ts)
	}

	isCutPoint := (isVideo && chosen.IsSync) || (s.video == nil && !isVideo)
	if !isCutPoint {
		return nil
	}

	elapsed := ts - s.segmentStartedAtTS
	if elapsed < s.opts.TargetDuration-s.opts.DurationThreshold {
		return nil
	}

	if err := s.closeSegment(elapsed); err != nil {
		return err
	}
	s.segmentIndex++
	s.segmentStartedAtTS = ts
	return s.openSegment(ts)
}

// openSegment opens the backing file (multi-file mode, or the first
// single-file open), wraps it in the configured cipher, and constructs a
// fresh RawSink, which emits PAT/PMT ahead of the segment's first access
// unit.
func (s *Segmenter) openSegment(tsSec float64) error {
	var w io.Writer
	var startOffset uint64
	var segFile *os.File

	if s.opts.SingleFile {
		if s.file == nil {
			f, err := os.Create(filepath.Join(s.opts.OutputDir, s.opts.SegmentFilename))
			if err != nil {
				return fmt.Errorf("segment: creating %s: %w", s.opts.SegmentFilename, err)
			}
			s.file = f
			s.sw = tsmux.NewSwappableWriter(f)
		}
		pos, err := s.file.Seek(0, io.SeekCurrent)
		if err != nil {
			return fmt.Errorf("segment: seeking %s: %w", s.opts.SegmentFilename, err)
		}
		startOffset = uint64(pos)
		segFile = s.file
		w = s.sw
	} else {
		name := fmt.Sprintf(s.opts.SegmentPattern, s.segmentIndex)
		f, err := os.Create(filepath.Join(s.opts.OutputDir, name))
		if err != nil {
			return fmt.Errorf("segment: creating %s: %w", name, err)
		}
		segFile = f
		w = f
	}

	open := &segmentOpen{file: segFile, startedAtTS: tsSec, startOffset: startOffset}

	if s.opts.Encryption.Mode == sample.ModeAes128 {
		iv := s.deriveIV()
		cs, err := tsmux.NewAes128Sink(w, s.opts.Encryption.Key[:], iv[:])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCipher, err)
		}
		open.cipherSink = cs
		w = cs
	}

	videoST, audioST := s.streamTypes()
	pids := tsmux.PIDs{Video: s.opts.VideoPID, Audio: s.opts.AudioPID}
	raw, err := tsmux.NewRawSink(w, videoST, audioST, pids)
	if err != nil {
		return fmt.Errorf("segment: writing PAT/PMT: %w", err)
	}
	open.raw = raw

	if s.opts.Encryption.Mode == sample.ModeSampleAES {
		iv := s.deriveIV()
		s.videoEncryptor = sampleaes.New(s.opts.Encryption.Key, iv)
		s.audioEncryptor = sampleaes.New(s.opts.Encryption.Key, iv)
	}

	s.open = open
	s.logger.Debug("segment opened", "index", s.segmentIndex, "ts", tsSec, "offset", startOffset)
	return nil
}

// deriveIV resolves the IV for the segment currently being opened. Under
// IVSequence it is re-derived from the segment index at every boundary;
// under IVRandom/IVFps the run's single fixed IV is reused unchanged.
func (s *Segmenter) deriveIV() [16]byte {
	if s.opts.Encryption.IVMode == sample.IVSequence {
		return sample.SequenceIV(s.segmentIndex)
	}
	return s.opts.Encryption.IV
}

// streamTypes resolves the PMT stream-type bytes for whichever tracks are
// present, using the SAMPLE-AES override when that mode is active. Only
// H.264 video and AAC audio ever reach this point: internal/mp4source
// only resolves decoder configuration for those two codecs, so there is
// no third codec.Video/codec.Audio value to dispatch on here.
func (s *Segmenter) streamTypes() (video, audio uint8) {
	sampleAES := s.opts.Encryption.Mode == sample.ModeSampleAES
	if s.video != nil {
		video = codec.VideoH264.StreamType(sampleAES)
	}
	if s.audio != nil {
		audio = codec.AudioAAC.StreamType(sampleAES)
	}
	return video, audio
}

// writeSample applies the configured encryption (if any) and hands the
// sample to the open segment's RawSink.
func (s *Segmenter) writeSample(chosen *sample.Sample, isVideo bool) error {
	pts90k := rescaleTo90kHz(chosen.PTS, chosen.Timescale)

	if isVideo {
		payload := chosen.Payload
		lengthSize := 4
		if s.codecs.Video != nil {
			lengthSize = s.codecs.Video.NALULengthSize
		}
		if s.videoEncryptor != nil {
			var err error
			payload, err = s.videoEncryptor.EncryptVideo(payload, lengthSize)
			if err != nil {
				return fmt.Errorf("%w: encrypting video sample: %v", ErrCipher, err)
			}
		}
		annexB := avccToAnnexB(payload, lengthSize)
		dts90k := rescaleTo90kHz(chosen.DTS, chosen.Timescale)
		if err := s.open.raw.WriteVideo(pts90k, dts90k, annexB, chosen.IsSync); err != nil {
			return fmt.Errorf("segment: writing video PES: %w", err)
		}
		return nil
	}

	payload := append([]byte(nil), chosen.Payload...)
	if s.audioEncryptor != nil {
		if err := s.audioEncryptor.EncryptAudio(payload); err != nil {
			return fmt.Errorf("%w: encrypting audio sample: %v", ErrCipher, err)
		}
	}
	if err := s.open.raw.WriteAudio(pts90k, payload); err != nil {
		return fmt.Errorf("segment: writing audio PES: %w", err)
	}
	return nil
}

// rescaleTo90kHz converts a timestamp from its track's native timescale to
// the 90kHz clock MPEG-TS PES and PCR fields require.
func rescaleTo90kHz(ts int64, timescale uint32) int64 {
	if timescale == 0 || timescale == 90000 {
		return ts
	}
	return ts * 90000 / int64(timescale)
}

// closeSegment flushes the open segment's sink(s), records its
// SegmentRecord, and closes the backing file in multi-file mode.
func (s *Segmenter) closeSegment(elapsed float64) error {
	o := s.open

	var byteSize uint64
	if o.cipherSink != nil {
		if err := o.cipherSink.Close(); err != nil {
			return fmt.Errorf("%w: flushing cipher: %v", ErrCipher, err)
		}
		byteSize = o.cipherSink.BytesWritten()
	} else {
		byteSize = o.raw.BytesWritten()
	}

	if !s.opts.SingleFile {
		if err := o.file.Close(); err != nil {
			return fmt.Errorf("segment: closing %s: %w", o.file.Name(), err)
		}
	}

	s.records = append(s.records, sample.SegmentRecord{
		Index:       s.segmentIndex,
		DurationSec: elapsed,
		ByteSize:    byteSize,
		ByteOffset:  o.startOffset,
	})
	s.logger.Debug("segment closed", "index", s.segmentIndex, "duration", elapsed, "size", format.Bytes(int64(byteSize)))
	s.open = nil
	return nil
}

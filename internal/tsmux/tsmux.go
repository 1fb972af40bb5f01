// Package tsmux implements the HLS segment sink: an MPEG-2 Transport
// Stream muxer built on github.com/asticode/go-astits, plus the
// full-segment AES-128-CBC wrapper (Aes128Sink). SAMPLE-AES payloads are
// encrypted before they reach this package (internal/sampleaes); here
// SAMPLE-AES only shows up as the PMT stream-type bytes the caller passes
// to NewRawSink. go-astits is used instead of mediacommon's
// higher-level mpegts.Writer because SAMPLE-AES needs non-standard PMT
// stream-type bytes (0xDB/0xCF) that Writer's fixed codec-to-stream-type
// mapping cannot produce, while astits.PMTElementaryStream.StreamType
// accepts any byte value.
package tsmux

import (
	"context"
	"fmt"
	"io"

	"github.com/asticode/go-astits"
)

// MPEG-TS structural constants.
const (
	PacketSize = 188
	SyncByte   = 0x47

	DefaultVideoPID = 0x0100
	DefaultAudioPID = 0x0101

	streamIDVideo = 0xE0
	streamIDAudio = 0xC0
)

// PIDs holds the elementary-stream PID assignments for one mux. A zero
// field takes the MPEG-TS default for that stream, so a caller that
// doesn't care about PID overrides can pass a zero-value PIDs. go-astits
// does not expose a way to override the PMT table's own PID (only
// per-elementary-stream PIDs and the PCR PID), so PIDs carries no PMT
// field; see DESIGN.md.
type PIDs struct {
	Video uint16
	Audio uint16
}

func (p PIDs) videoPID() uint16 {
	if p.Video == 0 {
		return DefaultVideoPID
	}
	return p.Video
}

func (p PIDs) audioPID() uint16 {
	if p.Audio == 0 {
		return DefaultAudioPID
	}
	return p.Audio
}

// RawSink muxes one segment's worth of video and audio access units into
// MPEG-TS. PAT and PMT are emitted automatically by the underlying
// astits.Muxer on the first write carrying RandomAccessIndicator against
// the PCR-carrying PID, which for HLS segments is always the first access
// unit written (every segment starts on a keyframe). A fresh RawSink is
// constructed per segment, so every segment is a self-contained,
// independently playable TS file.
type RawSink struct {
	w   io.Writer
	n   uint64
	mux *astits.Muxer

	pids PIDs

	hasVideo   bool
	hasAudio   bool
	pcrOnVideo bool
}

// Write implements io.Writer so RawSink can be handed to astits.NewMuxer
// directly, giving BytesWritten an accurate count that includes the
// automatically emitted PAT/PMT table packets.
func (s *RawSink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.n += uint64(n)
	return n, err
}

// NewRawSink constructs a RawSink and registers its elementary streams.
// videoStreamType/audioStreamType of 0 means that elementary stream is
// absent. A zero-value pids uses the MPEG-TS defaults for every PID;
// --video-pid/--audio-pid overrides flow in here.
func NewRawSink(w io.Writer, videoStreamType, audioStreamType uint8, pids PIDs) (*RawSink, error) {
	s := &RawSink{
		w:        w,
		pids:     pids,
		hasVideo: videoStreamType != 0,
		hasAudio: audioStreamType != 0,
	}
	if !s.hasVideo && !s.hasAudio {
		return nil, fmt.Errorf("tsmux: at least one of video or audio stream type must be set")
	}
	s.pcrOnVideo = s.hasVideo

	s.mux = astits.NewMuxer(context.Background(), s)

	if s.hasVideo {
		s.mux.AddElementaryStream(astits.PMTElementaryStream{
			ElementaryPID: s.pids.videoPID(),
			StreamType:    astits.StreamType(videoStreamType),
		})
	}
	if s.hasAudio {
		s.mux.AddElementaryStream(astits.PMTElementaryStream{
			ElementaryPID: s.pids.audioPID(),
			StreamType:    astits.StreamType(audioStreamType),
		})
	}

	if s.pcrOnVideo {
		s.mux.SetPCRPID(s.pids.videoPID())
	} else {
		s.mux.SetPCRPID(s.pids.audioPID())
	}

	return s, nil
}

// BytesWritten returns the total number of bytes written so far, used by
// the segmenter to size single-file byte ranges.
func (s *RawSink) BytesWritten() uint64 {
	return s.n
}

// WriteVideo writes one video access unit (Annex B: start-code-delimited
// NAL units) as a PES packet. pts and dts must already be expressed in the
// 90kHz clock PES and PCR require, not the track's native timescale; the
// caller (internal/segment) does that rescaling, since RawSink has no
// notion of a sample's source timescale. dts also carries the PCR for this
// segment's clock when the program has a video track.
func (s *RawSink) WriteVideo(pts, dts int64, annexBAU []byte, isKeyframe bool) error {
	var af *astits.PacketAdaptationField
	if isKeyframe {
		af = &astits.PacketAdaptationField{RandomAccessIndicator: true}
	}
	if s.pcrOnVideo {
		if af == nil {
			af = &astits.PacketAdaptationField{}
		}
		af.HasPCR = true
		af.PCR = &astits.ClockReference{Base: dts}
	}

	oh := &astits.PESOptionalHeader{MarkerBits: 2}
	if dts == pts {
		oh.PTSDTSIndicator = astits.PTSDTSIndicatorOnlyPTS
		oh.PTS = &astits.ClockReference{Base: pts}
	} else {
		oh.PTSDTSIndicator = astits.PTSDTSIndicatorBothPresent
		oh.DTS = &astits.ClockReference{Base: dts}
		oh.PTS = &astits.ClockReference{Base: pts}
	}

	_, err := s.mux.WriteData(&astits.MuxerData{
		PID:             s.pids.videoPID(),
		AdaptationField: af,
		PES: &astits.PESData{
			Header: &astits.PESHeader{
				OptionalHeader: oh,
				StreamID:       streamIDVideo,
			},
			Data: annexBAU,
		},
	})
	if err != nil {
		return fmt.Errorf("tsmux: writing video PES: %w", err)
	}
	return nil
}

// WriteAudio writes one raw (ADTS-less) AAC frame as a PES packet. pts must
// already be in 90kHz units; see WriteVideo. When there is no video track,
// every audio access unit carries the PCR and is marked random-access,
// since an audio-only program has no other keyframe concept.
func (s *RawSink) WriteAudio(pts int64, frame []byte) error {
	af := &astits.PacketAdaptationField{}
	if !s.pcrOnVideo {
		af.RandomAccessIndicator = true
		af.HasPCR = true
		af.PCR = &astits.ClockReference{Base: pts}
	}

	_, err := s.mux.WriteData(&astits.MuxerData{
		PID:             s.pids.audioPID(),
		AdaptationField: af,
		PES: &astits.PESData{
			Header: &astits.PESHeader{
				OptionalHeader: &astits.PESOptionalHeader{
					MarkerBits:      2,
					PTSDTSIndicator: astits.PTSDTSIndicatorOnlyPTS,
					PTS:             &astits.ClockReference{Base: pts},
				},
				StreamID: streamIDAudio,
			},
			Data: frame,
		},
	})
	if err != nil {
		return fmt.Errorf("tsmux: writing audio PES: %w", err)
	}
	return nil
}

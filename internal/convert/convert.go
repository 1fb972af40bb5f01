package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmylchreest/mp42hls/internal/mp4source"
	"github.com/jmylchreest/mp42hls/internal/playlist"
	"github.com/jmylchreest/mp42hls/internal/sample"
	"github.com/jmylchreest/mp42hls/internal/segment"
)

// Run drives the full conversion pipeline: opening input, at
// inputPath, segmenting it into TS per opts, and writing the resulting
// playlist. Every error returned is a *KindError, classified at this
// boundary from the plain errors each stage returns.
func Run(ctx context.Context, inputPath string, opts sample.RunOptions, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	movie, err := mp4source.Open(inputPath)
	if err != nil {
		return NewInvalidInput(err)
	}
	defer movie.Close()

	if movie.Video == nil && movie.Audio == nil {
		return NewInvalidInput(fmt.Errorf("convert: %s has neither an audio nor a video track", inputPath))
	}

	if opts.Encryption.Mode == sample.ModeSampleAES && movie.Codecs.Video == nil && movie.Video != nil {
		return NewUnsupportedCombination(fmt.Errorf("convert: SAMPLE-AES requires a parsed avcC for the video track"))
	}

	logger.Info("starting conversion",
		"input", inputPath,
		"single_file", opts.SingleFile,
		"encryption_mode", opts.Encryption.Mode,
		"has_video", movie.Video != nil,
		"has_audio", movie.Audio != nil,
	)

	records, err := segment.Run(ctx, &opts, movie.Codecs, movie.Audio, movie.Video, logger)
	if err != nil {
		return classifySegmentError(err)
	}

	if err := writePlaylist(opts, records, logger); err != nil {
		return NewIoFailure(err)
	}

	logger.Info("conversion complete", "segments", len(records))
	return nil
}

// writePlaylist renders the playlist file from the Segmenter's closed
// segment records, resolving each segment's URL from the configured
// filename pattern.
func writePlaylist(opts sample.RunOptions, records []sample.SegmentRecord, logger *slog.Logger) error {
	path := filepath.Join(opts.OutputDir, opts.PlaylistFilename)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("convert: creating %s: %w", path, err)
	}
	defer f.Close()

	segs := make([]playlist.Segment, len(records))
	for i, r := range records {
		url := opts.SegmentFilename
		if !opts.SingleFile {
			url = fmt.Sprintf(opts.SegmentPattern, r.Index)
		}
		segs[i] = playlist.Segment{
			DurationSec: r.DurationSec,
			ByteSize:    r.ByteSize,
			ByteOffset:  r.ByteOffset,
			URL:         url,
		}
	}

	plOpts := playlist.Options{
		Version:    opts.HLSVersion,
		SingleFile: opts.SingleFile,
		Encryption: opts.Encryption,
	}
	w := playlist.NewWriter(f, plOpts, logger)
	return w.WriteAll(plOpts, segs)
}

// classifySegmentError maps the plain, fmt.Errorf-wrapped errors
// internal/segment returns into the pipeline's typed error kinds. Kept
// out of internal/segment itself to avoid a circular import: that package
// is a dependency of this one, not the reverse.
func classifySegmentError(err error) error {
	if errors.Is(err, segment.ErrCipher) {
		return NewCipherFailure(err)
	}
	return NewIoFailure(err)
}

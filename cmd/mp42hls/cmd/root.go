// Package cmd implements the CLI command for mp42hls.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmylchreest/mp42hls/internal/config"
	"github.com/jmylchreest/mp42hls/internal/convert"
	"github.com/jmylchreest/mp42hls/internal/observability"
	"github.com/jmylchreest/mp42hls/internal/version"
	"github.com/spf13/cobra"
)

var flags config.Flags

// rootCmd is the single command this CLI exposes: mp42hls is a one-shot
// converter, not a daemon, so there are no subcommands.
var rootCmd = &cobra.Command{
	Use:     "mp42hls [flags] <input.mp4>",
	Short:   "Convert an MP4 file into an HLS playlist and MPEG-TS segments",
	Version: version.Short(),
	Args:    cobra.ExactArgs(1),
	Long: `mp42hls converts a single-audio/single-video ISO-BMFF (MP4) input
into an HLS Variant Playlist backed by MPEG-2 Transport Stream segments,
with optional AES-128 (full segment) or SAMPLE-AES (selective NAL/AAC
frame) encryption.

Examples:
  # Plain multi-file conversion
  mp42hls -o out/ movie.mp4

  # Single-file output with byte-range segments
  mp42hls --single-file -o out/ movie.mp4

  # AES-128 full-segment encryption
  mp42hls --encryption-mode=aes-128 --iv-mode=random \
    --key=00112233445566778899aabbccddeeff --key-uri=https://example.com/key \
    -o out/ movie.mp4`,
	RunE: runConvert,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing mp42hls: %w", err)
	}
	return nil
}

func init() {
	f := rootCmd.Flags()

	f.StringVarP(&flags.OutputDir, "output-dir", "o", ".", "directory for segments and playlist")
	f.StringVar(&flags.SegmentPattern, "segment-pattern", "stream-%d.ts", "printf-style name for multi-file segments")
	f.StringVar(&flags.SegmentFilename, "segment-filename", "stream.ts", "fixed name for single-file mode")
	f.StringVar(&flags.PlaylistFilename, "playlist-filename", "stream.m3u8", "m3u8 output filename")
	f.BoolVar(&flags.SingleFile, "single-file", false, "emit one .ts with EXT-X-BYTERANGE indices")

	f.StringVar(&flags.TargetDuration, "target-duration", "10s", "target segment duration")
	f.StringVar(&flags.DurationThreshold, "duration-threshold", "50ms", "cut-point slack")
	f.IntVar(&flags.HLSVersion, "hls-version", 0, "override EXT-X-VERSION (0 = auto-select)")

	f.StringVar(&flags.EncryptionMode, "encryption-mode", "none", "none|aes-128|sample-aes")
	f.StringVar(&flags.IVMode, "iv-mode", "sequence", "sequence|random|fps")
	f.StringVar(&flags.Key, "key", "", "hex-encoded 16-byte key (or 32 bytes with --iv-mode=fps)")
	f.StringVar(&flags.KeyURI, "key-uri", "", "URI value for EXT-X-KEY")
	f.StringVar(&flags.KeyFormat, "key-format", "", "KEYFORMAT value for EXT-X-KEY")
	f.StringVar(&flags.KeyFormatVersions, "key-format-versions", "", "KEYFORMATVERSIONS value for EXT-X-KEY")

	f.Uint16Var(&flags.VideoPID, "video-pid", 0, "video elementary stream PID (0 = default)")
	f.Uint16Var(&flags.AudioPID, "audio-pid", 0, "audio elementary stream PID (0 = default)")

	f.StringVar(&flags.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.StringVar(&flags.LogFormat, "log-format", "text", "log format (text, json)")
}

func runConvert(cmd *cobra.Command, args []string) error {
	flags.InputPath = args[0]

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  flags.LogLevel,
		Format: flags.LogFormat,
	})

	resolved, err := config.Resolve(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = convert.Run(ctx, resolved.InputPath, resolved.Options, logger)
	if err == nil {
		return nil
	}

	var kindErr *convert.KindError
	if errors.As(err, &kindErr) {
		fmt.Fprintf(os.Stderr, "mp42hls: %s: %v\n", kindErr.Kind, kindErr.Unwrap())
	} else {
		fmt.Fprintf(os.Stderr, "mp42hls: %v\n", err)
	}
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return err
}

// Package main is the entry point for mp42hls.
//
// mp42hls converts a single-audio/single-video ISO-BMFF (MP4) input into an
// HLS Variant Playlist backed by MPEG-2 TS segments, with optional AES-128
// (full segment) or SAMPLE-AES (selective NAL/AAC-frame) encryption.
package main

import (
	"os"

	"github.com/jmylchreest/mp42hls/cmd/mp42hls/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

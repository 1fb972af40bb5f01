package cmd

import "testing"

func TestRootCmd_DefaultFlags(t *testing.T) {
	f := rootCmd.Flags()

	cases := map[string]string{
		"output-dir":         ".",
		"segment-pattern":    "stream-%d.ts",
		"segment-filename":   "stream.ts",
		"playlist-filename":  "stream.m3u8",
		"target-duration":    "10s",
		"duration-threshold": "50ms",
		"encryption-mode":    "none",
		"iv-mode":            "sequence",
		"log-level":          "info",
		"log-format":         "text",
	}
	for name, want := range cases {
		flag := f.Lookup(name)
		if flag == nil {
			t.Fatalf("flag %q not registered", name)
		}
		if flag.DefValue != want {
			t.Errorf("flag %q default = %q, want %q", name, flag.DefValue, want)
		}
	}
}

func TestRootCmd_RequiresExactlyOneArg(t *testing.T) {
	if err := rootCmd.Args(rootCmd, nil); err == nil {
		t.Error("expected an error with zero args")
	}
	if err := rootCmd.Args(rootCmd, []string{"a.mp4", "b.mp4"}); err == nil {
		t.Error("expected an error with two args")
	}
	if err := rootCmd.Args(rootCmd, []string{"a.mp4"}); err != nil {
		t.Errorf("expected no error with one arg, got %v", err)
	}
}

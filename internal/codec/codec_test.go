package codec

import "testing"

func TestParseVideoFourCC(t *testing.T) {
	tests := []struct {
		input    string
		expected Video
		ok       bool
	}{
		{"avc1", VideoH264, true},
		{"avc3", VideoH264, true},
		{"AVC1", VideoH264, true},
		{" avc1 ", VideoH264, true},
		{"hev1", VideoUnsupported, false},
		{"", VideoUnsupported, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseVideoFourCC(tt.input)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("ParseVideoFourCC(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestParseAudioFourCC(t *testing.T) {
	tests := []struct {
		input    string
		expected Audio
		ok       bool
	}{
		{"mp4a", AudioAAC, true},
		{"MP4A", AudioAAC, true},
		{"ac-3", AudioUnsupported, false},
		{"", AudioUnsupported, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseAudioFourCC(tt.input)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("ParseAudioFourCC(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestVideoStreamType(t *testing.T) {
	if got := VideoH264.StreamType(false); got != StreamTypeH264 {
		t.Errorf("StreamType(false) = 0x%02X, want 0x%02X", got, StreamTypeH264)
	}
	if got := VideoH264.StreamType(true); got != StreamTypeH264SampleAES {
		t.Errorf("StreamType(true) = 0x%02X, want 0x%02X", got, StreamTypeH264SampleAES)
	}
	if got := VideoUnsupported.StreamType(false); got != 0 {
		t.Errorf("StreamType on unsupported codec = 0x%02X, want 0", got)
	}
}

func TestAudioStreamType(t *testing.T) {
	if got := AudioAAC.StreamType(false); got != StreamTypeAAC {
		t.Errorf("StreamType(false) = 0x%02X, want 0x%02X", got, StreamTypeAAC)
	}
	if got := AudioAAC.StreamType(true); got != StreamTypeAACSampleAES {
		t.Errorf("StreamType(true) = 0x%02X, want 0x%02X", got, StreamTypeAACSampleAES)
	}
	if got := AudioUnsupported.StreamType(true); got != 0 {
		t.Errorf("StreamType on unsupported codec = 0x%02X, want 0", got)
	}
}

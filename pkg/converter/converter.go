package converter

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format represents a file format
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMIDI    Format = "midi"
	FormatUnknown Format = "unknown"
)

// DetectFormat detects the format of a file from its extension
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".mid", ".midi":
		return FormatMIDI
	default:
		return FormatUnknown
	}
}

// DetectFormatFromContent detects format from the file header
func DetectFormatFromContent(data []byte) Format {
	if len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return FormatWAV
	}
	if len(data) >= 4 && bytes.Equal(data[:4], []byte("MThd")) {
		return FormatMIDI
	}
	return FormatUnknown
}

package converter

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/james-see/drum2midi/pkg/onset"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		expected Format
	}{
		{"take.wav", FormatWAV},
		{"take.WAVE", FormatWAV},
		{"drums.mid", FormatMIDI},
		{"drums.midi", FormatMIDI},
		{"take.mp3", FormatUnknown},
		{"take", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			result := DetectFormat(tt.filename)
			if result != tt.expected {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.filename, result, tt.expected)
			}
		})
	}
}

func TestDetectFormatFromContent(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected Format
	}{
		{"MIDI file", []byte("MThd\x00\x00\x00\x06"), FormatMIDI},
		{"WAV file", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), FormatWAV},
		{"RIFF but not WAVE", []byte("RIFF\x24\x00\x00\x00AVI LIST"), FormatUnknown},
		{"Short data", []byte{0x00, 0x01}, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectFormatFromContent(tt.data)
			if result != tt.expected {
				t.Errorf("DetectFormatFromContent() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestStrengthToVelocity(t *testing.T) {
	tests := []struct {
		strength float64
		want     uint8
	}{
		{0, 1},
		{1, 127},
		{0.5, 64},
		{-3, 1},
		{7, 127},
		{math.NaN(), 1},
	}
	for _, tt := range tests {
		if got := StrengthToVelocity(tt.strength); got != tt.want {
			t.Errorf("StrengthToVelocity(%v) = %d, want %d", tt.strength, got, tt.want)
		}
	}
}

func TestDrumMap(t *testing.T) {
	want := map[string]uint8{
		"kick": 36, "snare": 38, "hihat": 42, "hihat_closed": 42, "hihat_open": 46,
		"tom_low": 45, "tom_mid": 47, "tom_high": 50, "toms": 47, "crash": 49, "ride": 51,
	}
	for stem, note := range want {
		if got, ok := NoteFor(stem); !ok || got != note {
			t.Errorf("NoteFor(%q) = %d, %v; want %d", stem, got, ok, note)
		}
	}
	if _, ok := NoteFor("cowbell"); ok {
		t.Error("cowbell should not be mapped")
	}
}

func TestEncodeHeader(t *testing.T) {
	conv := NewMIDIConverter()
	data, n, err := conv.Encode(map[string][]onset.Onset{
		"kick": {{Time: 0, Strength: 1}},
	}, 120)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Encode() notes = %d, want 1", n)
	}

	if !bytes.Equal(data[:4], []byte("MThd")) {
		t.Fatalf("missing MThd: %x", data[:4])
	}
	if format := binary.BigEndian.Uint16(data[8:10]); format != 0 {
		t.Errorf("format = %d, want 0", format)
	}
	if tracks := binary.BigEndian.Uint16(data[10:12]); tracks != 1 {
		t.Errorf("tracks = %d, want 1", tracks)
	}
	if division := binary.BigEndian.Uint16(data[12:14]); division != 480 {
		t.Errorf("division = %d, want 480", division)
	}
	if !bytes.Equal(data[14:18], []byte("MTrk")) {
		t.Fatalf("missing MTrk: %x", data[14:18])
	}

	// tempo 500000 us per beat, then kick on/off on channel 10
	body := data[22:]
	wantBody := []byte{
		0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20,
		0x00, 0x99, 36, 127,
		0x30, 0x89, 36, 0x00,
		0x00, 0xFF, 0x2F, 0x00,
	}
	if !bytes.Equal(body, wantBody) {
		t.Errorf("track body = % x\nwant          % x", body, wantBody)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	conv := NewMIDIConverter()
	stems := map[string][]onset.Onset{
		"kick":    {{Time: 0, Strength: 1}, {Time: 1.0, Strength: 0.8}},
		"snare":   {{Time: 0.5, Strength: 0.6}, {Time: 1.5, Strength: 0.6}},
		"hihat":   {{Time: 0, Strength: 0.3}, {Time: 0.25, Strength: 0.3}, {Time: 0.5, Strength: 0.3}},
		"cowbell": {{Time: 0.75, Strength: 1}},
	}

	data, n, err := conv.Encode(stems, 120)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if n != 7 {
		t.Errorf("Encode() notes = %d, want 7", n)
	}

	song, err := conv.ParseMIDI(data)
	if err != nil {
		t.Fatalf("ParseMIDI() error = %v", err)
	}
	if math.Abs(song.Tempo-120) > 1e-9 {
		t.Errorf("tempo = %v, want 120", song.Tempo)
	}
	if len(song.Notes) != 7 {
		t.Fatalf("got %d notes, want 7", len(song.Notes))
	}

	counts := song.CountByPitch()
	if counts[36] != 2 || counts[38] != 2 || counts[42] != 3 {
		t.Errorf("counts by pitch = %v", counts)
	}
	for i := 1; i < len(song.Notes); i++ {
		if song.Notes[i].Tick < song.Notes[i-1].Tick {
			t.Fatalf("notes out of order at %d", i)
		}
	}
	for _, note := range song.Notes {
		if note.Pitch == 38 && note.Tick == 480 {
			if note.Velocity != StrengthToVelocity(0.6) {
				t.Errorf("snare velocity = %d", note.Velocity)
			}
			if note.Beat != 1 || math.Abs(note.Time-0.5) > 1e-9 {
				t.Errorf("snare at beat %v time %v, want 1 and 0.5", note.Beat, note.Time)
			}
		}
	}
}

func TestEncodeKeepsCollidingHits(t *testing.T) {
	conv := NewMIDIConverter()
	// a kick flam and two hihat stems landing on the same tick
	data, n, err := conv.Encode(map[string][]onset.Onset{
		"kick":         {{Time: 0.5, Strength: 0.4}, {Time: 0.5, Strength: 1}},
		"hihat":        {{Time: 0.5, Strength: 0.2}},
		"hihat_closed": {{Time: 0.5, Strength: 0.9}},
	}, 120)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("Encode() notes = %d, want 4", n)
	}
	song, err := conv.ParseMIDI(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(song.Notes) != 4 {
		t.Fatalf("notes = %+v, want 4", song.Notes)
	}
	kicks := 0
	for _, note := range song.Notes {
		if note.Tick != 480 {
			t.Errorf("note %+v not at tick 480", note)
		}
		if note.Pitch == 36 {
			kicks++
		}
	}
	if kicks != 2 {
		t.Errorf("kick notes = %d, want 2", kicks)
	}
}

func TestEncodeCollidingHitsStayPaired(t *testing.T) {
	conv := NewMIDIConverter()
	hits := conv.schedule(conv.collect(map[string][]onset.Onset{
		"kick": {{Time: 0.5, Strength: 0.5}, {Time: 0.5, Strength: 0.5}},
	}, 120))
	if len(hits) != 4 {
		t.Fatalf("events = %+v, want 4", hits)
	}
	want := []struct {
		tick uint32
		on   bool
	}{{480, true}, {480, true}, {481, false}, {528, false}}
	for i, w := range want {
		if hits[i].tick != w.tick || hits[i].on != w.on {
			t.Errorf("event %d = %+v, want tick %d on %v", i, hits[i], w.tick, w.on)
		}
	}
}

func TestEncodeEmptyAndInvalid(t *testing.T) {
	conv := NewMIDIConverter()
	data, n, err := conv.Encode(nil, 100)
	if err != nil {
		t.Fatalf("Encode(nil) error = %v", err)
	}
	if n != 0 {
		t.Errorf("Encode(nil) notes = %d", n)
	}
	song, err := conv.ParseMIDI(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(song.Notes) != 0 || math.Abs(song.Tempo-100) > 0.01 {
		t.Errorf("song = %+v", song)
	}

	for _, bpm := range []float64{0, -1, math.Inf(1)} {
		if _, _, err := conv.Encode(nil, bpm); err == nil {
			t.Errorf("Encode(bpm=%v) should fail", bpm)
		}
	}
}

func TestParseMIDIErrors(t *testing.T) {
	conv := NewMIDIConverter()
	if _, err := conv.ParseMIDI(nil); err == nil {
		t.Error("ParseMIDI(nil) should fail")
	}
	if _, err := conv.ParseMIDI([]byte("not a midi file")); err == nil {
		t.Error("ParseMIDI(garbage) should fail")
	}
	if _, err := conv.ParseMIDIFile(filepath.Join(t.TempDir(), "missing.mid")); err == nil {
		t.Error("ParseMIDIFile(missing) should fail")
	}
}

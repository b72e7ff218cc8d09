package converter

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/drum2midi/pkg/onset"
)

// MIDIConverter handles drum MIDI generation and parsing
type MIDIConverter struct {
	ticksPerQuarter uint16
	noteLength      uint32 // ticks
}

// NewMIDIConverter creates a converter with 480 ticks per quarter note
// and hits one tenth of a beat long
func NewMIDIConverter() *MIDIConverter {
	return &MIDIConverter{
		ticksPerQuarter: 480,
		noteLength:      48,
	}
}

type event struct {
	tick     uint32
	on       bool
	pitch    uint8
	velocity uint8
}

// Encode writes one format-0 SMF containing every onset of every mapped
// stem on the percussion channel. Stems without a GM key are skipped.
// It returns the file bytes and the number of notes written.
func (m *MIDIConverter) Encode(stems map[string][]onset.Onset, bpm float64) ([]byte, int, error) {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return nil, 0, fmt.Errorf("invalid tempo %v", bpm)
	}

	hits := m.collect(stems, bpm)
	events := m.schedule(hits)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(m.ticksPerQuarter)

	var track smf.Track

	// Tempo meta event
	microsecondsPerBeat := uint32(math.Round(60000000.0 / bpm))
	tempoData := smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(microsecondsPerBeat >> 16),
		byte(microsecondsPerBeat >> 8),
		byte(microsecondsPerBeat),
	})
	track.Add(0, tempoData)

	var currentTick uint32
	for _, ev := range events {
		delta := ev.tick - currentTick
		if ev.on {
			track.Add(delta, midi.NoteOn(PercussionChannel, ev.pitch, ev.velocity))
		} else {
			track.Add(delta, midi.NoteOff(PercussionChannel, ev.pitch))
		}
		currentTick = ev.tick
	}

	track.Close(0)

	if err := s.Add(track); err != nil {
		return nil, 0, fmt.Errorf("failed to add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, 0, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), len(hits), nil
}

// collect converts onsets to note-on events, one per onset, ordered by
// tick then key.
func (m *MIDIConverter) collect(stems map[string][]onset.Onset, bpm float64) []event {
	names := make([]string, 0, len(stems))
	for name := range stems {
		names = append(names, name)
	}
	sort.Strings(names)

	var hits []event
	for _, name := range names {
		pitch, ok := NoteFor(name)
		if !ok {
			continue
		}
		for _, o := range stems[name] {
			hits = append(hits, event{
				tick:     m.secondsToTicks(o.Time, bpm),
				on:       true,
				pitch:    pitch,
				velocity: StrengthToVelocity(o.Strength),
			})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].tick != hits[j].tick {
			return hits[i].tick < hits[j].tick
		}
		return hits[i].pitch < hits[j].pitch
	})
	return hits
}

// schedule pairs each hit with its note-off. A note is cut short when
// the same key sounds again before it ends, down to one tick when both
// hits share a tick. At equal ticks note-offs precede note-ons.
func (m *MIDIConverter) schedule(hits []event) []event {
	next := make(map[uint8]uint32)
	events := make([]event, 0, 2*len(hits))
	for i := len(hits) - 1; i >= 0; i-- {
		h := hits[i]
		length := m.noteLength
		if n, ok := next[h.pitch]; ok && n-h.tick < length {
			length = max(1, n-h.tick)
		}
		next[h.pitch] = h.tick
		events = append(events, h, event{tick: h.tick + length, pitch: h.pitch})
	}
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.tick != b.tick {
			return a.tick < b.tick
		}
		if a.on != b.on {
			return !a.on
		}
		return a.pitch < b.pitch
	})
	return events
}

func (m *MIDIConverter) secondsToTicks(sec, bpm float64) uint32 {
	if sec <= 0 {
		return 0
	}
	return uint32(math.Round(sec * bpm / 60 * float64(m.ticksPerQuarter)))
}

// WriteMIDIFile writes MIDI data to a file
func WriteMIDIFile(filename string, data []byte) error {
	return os.WriteFile(filename, data, 0644)
}

// ParseMIDIFile reads a MIDI file and extracts its drum notes
func (m *MIDIConverter) ParseMIDIFile(filename string) (*Song, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	return m.ParseMIDI(data)
}

// ParseMIDI returns every note-on of the percussion channel with its
// position in ticks, beats and seconds. The first tempo event sets the
// tempo; without one 120 BPM is assumed.
func (m *MIDIConverter) ParseMIDI(data []byte) (*Song, error) {
	if len(data) == 0 {
		return nil, errors.New("empty MIDI data")
	}
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	song := &Song{Tempo: 120, TicksPerQuarter: m.ticksPerQuarter}
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		song.TicksPerQuarter = mt.Resolution()
	}

	tempoSet := false
	for _, track := range s.Tracks {
		var currentTick uint32
		for _, ev := range track {
			currentTick += ev.Delta
			msg := ev.Message

			// Tempo meta message (FF 51 03 tt tt tt)
			if len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03 {
				microsecondsPerBeat := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
				if microsecondsPerBeat > 0 && !tempoSet {
					song.Tempo = 60000000.0 / float64(microsecondsPerBeat)
					tempoSet = true
				}
				continue
			}

			// Note On on channel 10: 0x99 nn vv
			if len(msg) >= 3 && msg[0] == 0x90|PercussionChannel && msg[2] > 0 {
				song.Notes = append(song.Notes, Note{
					Pitch:    msg[1],
					Velocity: msg[2],
					Tick:     currentTick,
				})
			}
		}
	}

	for i := range song.Notes {
		beat := float64(song.Notes[i].Tick) / float64(song.TicksPerQuarter)
		song.Notes[i].Beat = beat
		song.Notes[i].Time = beat * 60 / song.Tempo
	}
	sort.SliceStable(song.Notes, func(i, j int) bool { return song.Notes[i].Tick < song.Notes[j].Tick })
	return song, nil
}

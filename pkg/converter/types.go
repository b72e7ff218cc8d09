// Package converter turns detected drum onsets into Standard MIDI Files
// and reads them back.
package converter

import (
	"math"
	"sort"
)

// PercussionChannel is the zero-based General MIDI drum channel (10).
const PercussionChannel uint8 = 9

// DrumMap maps stem names to General MIDI percussion keys.
var DrumMap = map[string]uint8{
	"kick":         36,
	"snare":        38,
	"hihat":        42,
	"hihat_closed": 42,
	"hihat_open":   46,
	"tom_low":      45,
	"toms":         47,
	"tom_mid":      47,
	"tom_high":     50,
	"crash":        49,
	"ride":         51,
}

// NoteFor returns the GM key for a stem.
func NoteFor(stem string) (uint8, bool) {
	n, ok := DrumMap[stem]
	return n, ok
}

// MappedStems returns the stem names that have a GM key, sorted.
func MappedStems() []string {
	out := make([]string, 0, len(DrumMap))
	for k := range DrumMap {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// StrengthToVelocity maps an onset strength in [0, 1] to a MIDI velocity
// in [1, 127].
func StrengthToVelocity(strength float64) uint8 {
	v := math.Round(1 + strength*126)
	if math.IsNaN(v) || v < 1 {
		return 1
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}

// Note is one percussion hit read from a MIDI file.
type Note struct {
	Pitch    uint8   `json:"pitch"`
	Velocity uint8   `json:"velocity"`
	Tick     uint32  `json:"tick"`
	Beat     float64 `json:"beat"`
	Time     float64 `json:"time"`
}

// Song is the content of a decoded drum MIDI file.
type Song struct {
	Tempo           float64 `json:"tempo"`
	TicksPerQuarter uint16  `json:"ticks_per_quarter"`
	Notes           []Note  `json:"notes"`
}

// CountByPitch tallies notes per GM key.
func (s Song) CountByPitch() map[uint8]int {
	out := make(map[uint8]int)
	for _, n := range s.Notes {
		out[n.Pitch]++
	}
	return out
}

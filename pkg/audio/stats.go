package audio

import "math"

// SilenceFloorDB is reported as the level of an all-zero signal.
const SilenceFloorDB = -120.0

// Stats holds level statistics of one signal.
type Stats struct {
	RMS    float64
	RMSdB  float64
	Peak   float64
	PeakdB float64
}

// Measure computes RMS and peak level in a single pass.
func Measure(s Signal) Stats {
	if s.Len() == 0 {
		return Stats{RMSdB: SilenceFloorDB, PeakdB: SilenceFloorDB}
	}
	var energy, peak float64
	for _, v := range s.Samples {
		x := float64(v)
		energy += x * x
		if a := math.Abs(x); a > peak {
			peak = a
		}
	}
	rms := math.Sqrt(energy / float64(s.Len()))
	return Stats{
		RMS:    rms,
		RMSdB:  AmpToDB(rms),
		Peak:   peak,
		PeakdB: AmpToDB(peak),
	}
}

// RMS returns the root-mean-square level.
func RMS(s Signal) float64 { return Measure(s).RMS }

// Peak returns max |x|.
func Peak(s Signal) float64 {
	var peak float64
	for _, v := range s.Samples {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
	}
	return peak
}

// AmpToDB converts an amplitude to dBFS, floored at SilenceFloorDB.
func AmpToDB(amp float64) float64 {
	a := math.Abs(amp)
	if a == 0 || !isFinite(a) {
		return SilenceFloorDB
	}
	return math.Max(20*math.Log10(a), SilenceFloorDB)
}

// DBToAmp converts dBFS to a linear amplitude.
func DBToAmp(db float64) float64 {
	return math.Pow(10, db/20)
}

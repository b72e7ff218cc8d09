package onset

import "sort"

const (
	// DefaultThreshold is the minimum normalised strength of a reported onset.
	DefaultThreshold = 0.1
	// DefaultMinDistance is the minimum spacing between onsets in seconds.
	DefaultMinDistance = 0.030
)

// Onset is a detected event: seconds from the start and strength in [0, 1].
type Onset struct {
	Time     float64 `json:"time"`
	Strength float64 `json:"strength"`
}

// Pick returns the local maxima of env whose strength exceeds threshold,
// thinned so that no two are closer than minDistance seconds.
//
// Thinning is greedy: stronger peaks are kept first, and among equal
// strengths the earlier frame wins. The result is ordered by time. Fewer
// than three frames, or no qualifying peak, yields an empty slice.
func Pick(env Envelope, threshold, minDistance float64) []Onset {
	n := env.Len()
	if n < 3 {
		return []Onset{}
	}

	distance := 1
	if len(env.Times) > 1 {
		dt := env.Times[1] - env.Times[0]
		if dt > 0 {
			distance = max(1, int(minDistance/dt))
		}
	}

	candidates := localMaxima(env.Strength)
	peaks := candidates[:0]
	for _, i := range candidates {
		if env.Strength[i] > threshold {
			peaks = append(peaks, i)
		}
	}
	if len(peaks) == 0 {
		return []Onset{}
	}

	if distance > 1 && len(peaks) > 1 {
		peaks = suppress(peaks, env.Strength, distance)
	}

	out := make([]Onset, len(peaks))
	for i, p := range peaks {
		out[i] = Onset{Time: env.Times[p], Strength: env.Strength[p]}
	}
	return out
}

// localMaxima returns indices of interior local maxima. A flat-topped peak
// is reported at the middle of its plateau.
func localMaxima(x []float64) []int {
	var out []int
	last := len(x) - 1
	i := 1
	for i < last {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < last && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				left, right := i, ahead-1
				out = append(out, (left+right)/2)
				i = ahead
				continue
			}
		}
		i++
	}
	return out
}

// suppress applies greedy non-maximum suppression over sorted peak indices.
func suppress(peaks []int, strength []float64, distance int) []int {
	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return strength[peaks[order[a]]] > strength[peaks[order[b]]]
	})

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}
	for _, i := range order {
		if !keep[i] {
			continue
		}
		for j := i - 1; j >= 0 && peaks[i]-peaks[j] < distance; j-- {
			keep[j] = false
		}
		for j := i + 1; j < len(peaks) && peaks[j]-peaks[i] < distance; j++ {
			keep[j] = false
		}
	}

	out := make([]int, 0, len(peaks))
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

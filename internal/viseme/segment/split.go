package segment

import (
	"github.com/MrWong99/mouthpiece/pkg/audio"
)

// splitTolerance is the fraction of the window's energy range above the
// minimum that still counts as lowest energy.
const splitTolerance = 0.01

// BestSplitPoint returns the time within [from, to] where buf is quietest:
// the centre of the longest run of lowest-energy frames whose centres lie in
// the window. A window holding no frame yields its midpoint.
func (s *Segmenter) BestSplitPoint(buf audio.Buffer, from, to float64) float64 {
	if to < from {
		from, to = to, from
	}
	framing := s.Framing(buf.SampleRate)
	if buf.SampleRate <= 0 {
		return (from + to) / 2
	}
	t, _, ok := bestSplit(framing.FrameEnergies(buf.Samples), framing, from, to)
	if !ok {
		return (from + to) / 2
	}
	return t
}

// bestSplit returns the split time and the minimum energy found, or ok=false
// when no frame centre lies in [from, to].
func bestSplit(energies []float64, f audio.Framing, from, to float64) (t, energy float64, ok bool) {
	first, last := -1, -1
	for i := range energies {
		c := f.Centre(i)
		if c < from {
			continue
		}
		if c > to {
			break
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 {
		return 0, 0, false
	}

	lo, hi := energies[first], energies[first]
	for _, e := range energies[first : last+1] {
		lo = min(lo, e)
		hi = max(hi, e)
	}
	limit := lo + splitTolerance*(hi-lo)

	bestStart, bestLen := first, 0
	runStart := -1
	for i := first; i <= last+1; i++ {
		quiet := i <= last && energies[i] <= limit
		switch {
		case quiet && runStart < 0:
			runStart = i
		case !quiet && runStart >= 0:
			if n := i - runStart; n > bestLen {
				bestStart, bestLen = runStart, n
			}
			runStart = -1
		}
	}
	mid := (f.Centre(bestStart) + f.Centre(bestStart+bestLen-1)) / 2
	return mid, lo, true
}

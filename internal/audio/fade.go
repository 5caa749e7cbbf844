package audio

import "time"

// Lerp interpolates between a and b. The ratio is clamped to [0,1].
func Lerp(a, b, ratio float64) float64 {
	return a + (b-a)*clamp01(ratio)
}

// FadeGain is the gain of a linear fade from start to silence after elapsed
// out of duration. Both backends fade through it, the graph as param
// automation and the element pool on its frame ticker.
func FadeGain(start float64, elapsed, duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}
	return clamp01(Lerp(clamp01(start), 0, float64(elapsed)/float64(duration)))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

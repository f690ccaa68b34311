package feature

// StaticDistance returns a DistanceFunc backed by a fixed lookup table
// keyed by "a|b" location label pairs (checked in both orders). Unknown
// pairs resolve to 0, never an error. It is intended for tests and for small,
// curated location sets (e.g. branch codes) where a full geocoding
// dependency would be overkill.
func StaticDistance(table map[[2]string]float64) DistanceFunc {
	return func(a, b string) float64 {
		if a == b {
			return 0
		}
		if d, ok := table[[2]string{a, b}]; ok {
			return d
		}
		if d, ok := table[[2]string{b, a}]; ok {
			return d
		}
		return 0
	}
}

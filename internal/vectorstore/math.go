package vectorstore

import "math"

// normalizeInPlace L2-normalises a vector so cosine distance behaves like
// the teacher's store.HNSWStore normalization step.
func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i, x := range v {
		v[i] = float32(float64(x) / norm)
	}
}

// cosineDistanceToScore maps a cosine distance in [0, 2] to a similarity
// score in [0, 1].
func cosineDistanceToScore(distance float32) float64 {
	score := 1.0 - float64(distance)/2.0
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

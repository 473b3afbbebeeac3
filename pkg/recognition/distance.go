package recognition

import "math"

// CosineDistance computes 1 - cos(a, b).
// Returns a value between 0 (same direction) and 2 (opposite).
// Vectors of different or zero length are maximally distant (2); a zero
// vector carries no direction and is treated as orthogonal (1).
func CosineDistance(a, b Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1.0
	}

	// sqrt(normA*normB) rather than sqrt(normA)*sqrt(normB) keeps d(a,a) at exactly 0.
	similarity := dot / math.Sqrt(normA*normB)
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}

// IoU returns the Intersection over Union of two boxes.
func IoU(a, b BoundingBox) float64 {
	x0 := max(a.X0, b.X0)
	y0 := max(a.Y0, b.Y0)
	x1 := min(a.X1, b.X1)
	y1 := min(a.Y1, b.Y1)

	if x1 <= x0 || y1 <= y0 {
		return 0
	}

	intersection := (x1 - x0) * (y1 - y0)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}

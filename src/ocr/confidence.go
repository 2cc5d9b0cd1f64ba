package ocr

import "math"

// Word is a recognized word with a 0..100 confidence.
type Word struct {
	Text       string  `json:"WordText"`
	Confidence float64 `json:"Confidence"`
}

// CalculateAverageConfidence returns the rounded mean word confidence, 0 for no words.
func CalculateAverageConfidence(words []Word) int {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += w.Confidence
	}
	return clamp(int(math.Round(sum / float64(len(words)))))
}

// OverallConfidence averages per-fragment means. A fragment without words
// contributes its sum over max(n,1), i.e. zero.
func OverallConfidence(fragments [][]float64) int {
	if len(fragments) == 0 {
		return 0
	}
	var total float64
	for _, f := range fragments {
		var sum float64
		for _, c := range f {
			sum += c
		}
		total += sum / float64(max(len(f), 1))
	}
	return clamp(int(math.Round(total / float64(len(fragments)))))
}

func clamp(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

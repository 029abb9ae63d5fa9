package embedding

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatalf("CosineSimilarity failed: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestFindTopK(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{
		{0, 1},       // orthogonal
		{1, 0},       // identical
		{0.9, 0.1},   // close
		{-1, 0},      // opposite
		{1, 0, 0, 0}, // wrong dimensions, skipped
	}

	results := FindTopK(query, corpus, 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Index != 1 {
		t.Fatalf("best match should be the identical vector, got index %d", results[0].Index)
	}
	if results[1].Index != 2 {
		t.Fatalf("second match should be the close vector, got index %d", results[1].Index)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Fatal("results not sorted by descending similarity")
	}
}

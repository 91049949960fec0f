package pipeline

import "github.com/dgallion1/studykit/internal/chunker"

type unitEstimator struct{}

func (unitEstimator) Estimate(string) int { return 1 }

// chunkerConfigForTwoChunks splits nine one-token words into two chunks.
func chunkerConfigForTwoChunks() chunker.Config {
	return chunker.Config{MaxChunkSize: 8, OverlapSize: 2, Estimator: unitEstimator{}}
}

package aggregate

import (
	"context"
	"math/rand"
	"time"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// sampleStage implements $sample: a uniform random sample of `size`
// documents, via a Fisher-Yates shuffle followed by truncation. Inputs
// no larger than size pass through unchanged.
type sampleStage struct {
	size int64
	rnd  *rand.Rand
}

func newSampleStage(size int64) (Stage, error) {
	if size < 1 {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$sample size must be at least 1")
	}
	return &sampleStage{size: size, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}, nil
}

func (s *sampleStage) Apply(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
	if int64(len(docs)) <= s.size {
		return docs, nil
	}
	shuffled := append([]*value.Document(nil), docs...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := s.rnd.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:s.size], nil
}

package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reviewreplai/reviewrepl/internal/analysis"
)

const maxReviewsPerJob = 500

// ReviewProcessingHandler summarizes a batch of reviews.
type ReviewProcessingHandler struct{}

type reviewPayload struct {
	Reviews []reviewItem `json:"reviews"`
}

type reviewItem struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Rating int    `json:"rating"`
	Author string `json:"author"`
}

func (ReviewProcessingHandler) Handle(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p reviewPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if len(p.Reviews) == 0 {
		return nil, fmt.Errorf("%w: reviews must not be empty", ErrInvalidPayload)
	}
	if len(p.Reviews) > maxReviewsPerJob {
		return nil, fmt.Errorf("%w: at most %d reviews per job, got %d", ErrInvalidPayload, maxReviewsPerJob, len(p.Reviews))
	}

	seen := make(map[string]int, len(p.Reviews))
	reviews := make([]analysis.Review, 0, len(p.Reviews))
	for i, r := range p.Reviews {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: reviews[%d].id is required", ErrInvalidPayload, i)
		}
		if first, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: reviews[%d].id duplicates reviews[%d].id", ErrInvalidPayload, i, first)
		}
		seen[id] = i
		if err := requireText(fmt.Sprintf("reviews[%d].text", i), r.Text); err != nil {
			return nil, err
		}
		if r.Rating < 1 || r.Rating > 5 {
			return nil, fmt.Errorf("%w: reviews[%d].rating must be between 1 and 5, got %d", ErrInvalidPayload, i, r.Rating)
		}
		reviews = append(reviews, analysis.Review{ID: id, Text: r.Text, Rating: r.Rating, Author: r.Author})
	}

	return json.Marshal(analysis.Summarize(reviews))
}

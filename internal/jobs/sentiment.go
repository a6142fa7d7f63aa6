package jobs

import (
	"context"
	"encoding/json"

	"github.com/reviewreplai/reviewrepl/internal/analysis"
)

// SentimentHandler scores a single text.
type SentimentHandler struct{}

type sentimentPayload struct {
	Text string `json:"text"`
}

func (SentimentHandler) Handle(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p sentimentPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if err := requireText("text", p.Text); err != nil {
		return nil, err
	}
	return json.Marshal(analysis.Score(p.Text))
}

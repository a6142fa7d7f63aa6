// Package analysis scores review text and aggregates review batches.
package analysis

import (
	"math"
	"sort"
	"strconv"
)

const (
	attentionRating = 2
	topTermsLimit   = 5
)

// Review is one customer review in a batch.
type Review struct {
	ID     string
	Text   string
	Rating int
	Author string
}

// ReviewSentiment is the per-review outcome.
type ReviewSentiment struct {
	ID     string  `json:"id"`
	Rating int     `json:"rating"`
	Label  Label   `json:"label"`
	Score  float64 `json:"score"`
}

// SentimentCounts tallies reviews per label.
type SentimentCounts struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// TermCount is a lexicon term and how many reviews used it.
type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// Summary aggregates a batch of reviews.
type Summary struct {
	Total              int               `json:"total"`
	AverageRating      float64           `json:"average_rating"`
	RatingDistribution map[string]int    `json:"rating_distribution"`
	Sentiment          SentimentCounts   `json:"sentiment"`
	Reviews            []ReviewSentiment `json:"reviews"`
	NeedsAttention     []string          `json:"needs_attention"`
	TopPositiveTerms   []TermCount       `json:"top_positive_terms"`
	TopNegativeTerms   []TermCount       `json:"top_negative_terms"`
	// Duplicates groups ids of reviews whose normalized text is identical.
	Duplicates [][]string `json:"duplicates"`
}

// Summarize scores every review and aggregates the batch. Reviews keep
// their input order. Returns a zero-count summary for empty input.
func Summarize(reviews []Review) Summary {
	s := Summary{
		Total:              len(reviews),
		RatingDistribution: map[string]int{"1": 0, "2": 0, "3": 0, "4": 0, "5": 0},
		Reviews:            make([]ReviewSentiment, 0, len(reviews)),
		NeedsAttention:     []string{},
		TopPositiveTerms:   []TermCount{},
		TopNegativeTerms:   []TermCount{},
		Duplicates:         [][]string{},
	}
	if len(reviews) == 0 {
		return s
	}

	pos := map[string]int{}
	neg := map[string]int{}
	groups := map[string][]string{}
	var order []string
	ratingSum := 0

	for _, r := range reviews {
		sent := Score(r.Text)
		s.Reviews = append(s.Reviews, ReviewSentiment{ID: r.ID, Rating: r.Rating, Label: sent.Label, Score: sent.Score})
		s.RatingDistribution[strconv.Itoa(r.Rating)]++
		ratingSum += r.Rating

		switch sent.Label {
		case LabelPositive:
			s.Sentiment.Positive++
		case LabelNegative:
			s.Sentiment.Negative++
		default:
			s.Sentiment.Neutral++
		}

		if r.Rating <= attentionRating || sent.Label == LabelNegative {
			s.NeedsAttention = append(s.NeedsAttention, r.ID)
		}

		countDistinct(pos, sent.PositiveTerms)
		countDistinct(neg, sent.NegativeTerms)

		fp := Fingerprint(r.Text)
		if _, ok := groups[fp]; !ok {
			order = append(order, fp)
		}
		groups[fp] = append(groups[fp], r.ID)
	}

	s.AverageRating = math.Round(float64(ratingSum)/float64(len(reviews))*100) / 100
	s.TopPositiveTerms = topTerms(pos)
	s.TopNegativeTerms = topTerms(neg)
	for _, fp := range order {
		if ids := groups[fp]; len(ids) > 1 {
			s.Duplicates = append(s.Duplicates, ids)
		}
	}
	return s
}

func countDistinct(counts map[string]int, terms []string) {
	seen := map[string]bool{}
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			counts[t]++
		}
	}
}

// topTerms returns up to topTermsLimit terms sorted by (Count DESC, Term ASC).
func topTerms(counts map[string]int) []TermCount {
	out := make([]TermCount, 0, len(counts))
	for term, n := range counts {
		out = append(out, TermCount{Term: term, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > topTermsLimit {
		out = out[:topTermsLimit]
	}
	return out
}

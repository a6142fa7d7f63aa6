package analysis

import (
	"math"
	"strings"
)

// Label is the coarse sentiment class of a text.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNeutral  Label = "neutral"
	LabelNegative Label = "negative"
)

const (
	labelThreshold = 0.05
	// normAlpha controls how quickly the raw sum saturates towards +-1.
	normAlpha        = 15.0
	negationWindow   = 3
	negationFactor   = -0.75
	exclamationBoost = 0.3
	maxExclamations  = 3
)

// Sentiment is the result of scoring a text.
type Sentiment struct {
	Label         Label    `json:"label"`
	Score         float64  `json:"score"`
	PositiveTerms []string `json:"positive_terms"`
	NegativeTerms []string `json:"negative_terms"`
}

var lexicon = map[string]float64{
	// positive
	"good": 1.9, "great": 3.1, "excellent": 3.2, "amazing": 2.8, "awesome": 3.1,
	"fantastic": 3.0, "wonderful": 2.7, "perfect": 2.7, "love": 3.2, "loved": 2.9,
	"lovely": 2.8, "best": 3.2, "nice": 1.8, "friendly": 2.2, "helpful": 1.9,
	"delicious": 2.7, "tasty": 2.0, "clean": 1.7, "fast": 1.2, "quick": 1.2,
	"recommend": 1.5, "recommended": 1.5, "happy": 2.7, "pleased": 1.9, "enjoyed": 2.3,
	"attentive": 1.7, "professional": 1.5, "fresh": 1.3, "comfortable": 1.5, "polite": 1.8,
	"beautiful": 2.9, "thanks": 1.9, "thank": 1.5, "outstanding": 3.0, "superb": 3.1,
	"reasonable": 1.0, "cozy": 1.8, "satisfied": 1.9, "impressed": 2.2, "welcoming": 2.0,
	// negative
	"bad": -2.5, "terrible": -3.1, "awful": -3.1, "horrible": -3.0, "worst": -3.1,
	"poor": -2.1, "rude": -2.6, "slow": -1.4, "dirty": -2.1, "cold": -0.9,
	"disappointing": -2.2, "disappointed": -2.1, "hate": -2.7, "hated": -2.6,
	"overpriced": -1.9, "expensive": -1.0, "late": -1.1, "broken": -1.8, "wrong": -2.1,
	"unfriendly": -2.2, "unhelpful": -1.9, "bland": -1.3, "stale": -1.6, "noisy": -1.2,
	"waited": -0.8, "wait": -0.5, "ignored": -1.9, "mess": -1.8, "refund": -1.0,
	"disgusting": -2.9, "mediocre": -1.3, "avoid": -2.0, "problem": -1.7, "complaint": -1.8,
	"unacceptable": -2.8, "scam": -3.0, "crowded": -0.9, "burnt": -1.6, "undercooked": -2.0,
}

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "nothing": true, "nobody": true,
	"hardly": true, "without": true, "isn't": true, "wasn't": true, "aren't": true,
	"weren't": true, "don't": true, "didn't": true, "doesn't": true, "can't": true,
	"couldn't": true, "won't": true, "wouldn't": true, "shouldn't": true, "nor": true,
}

var intensifiers = map[string]float64{
	"very": 1.3, "really": 1.3, "extremely": 1.5, "so": 1.2, "super": 1.4,
	"incredibly": 1.5, "absolutely": 1.4, "truly": 1.3, "totally": 1.3, "highly": 1.3,
	"slightly": 0.6, "somewhat": 0.7, "barely": 0.5, "kinda": 0.7, "fairly": 0.8,
}

// Score rates text on a -1..1 scale using a weighted lexicon. A negator
// within three words before a term flips and dampens it, and a modifier
// immediately before it scales it.
func Score(text string) Sentiment {
	tokens := Tokenize(text)
	s := Sentiment{PositiveTerms: []string{}, NegativeTerms: []string{}}

	var sum float64
	exclamations := 0
	for i, tok := range tokens {
		if tok == "!" {
			exclamations++
			continue
		}
		w, ok := lexicon[tok]
		if !ok {
			continue
		}

		term := tok
		if i > 0 {
			if m, ok := intensifiers[tokens[i-1]]; ok {
				w *= m
				term = tokens[i-1] + " " + tok
			}
		}
		if neg := negatedBy(tokens, i); neg != "" {
			w *= negationFactor
			term = neg + " " + term
		}

		sum += w
		if w > 0 {
			s.PositiveTerms = append(s.PositiveTerms, term)
		} else if w < 0 {
			s.NegativeTerms = append(s.NegativeTerms, term)
		}
	}

	if sum != 0 {
		boost := float64(min(exclamations, maxExclamations)) * exclamationBoost
		sum += math.Copysign(boost, sum)
	}

	s.Score = round3(clamp(sum/math.Sqrt(sum*sum+normAlpha), -1, 1))
	switch {
	case s.Score >= labelThreshold:
		s.Label = LabelPositive
	case s.Score <= -labelThreshold:
		s.Label = LabelNegative
	default:
		s.Label = LabelNeutral
	}
	return s
}

// negatedBy returns the negator preceding tokens[i] within the window, if any.
func negatedBy(tokens []string, i int) string {
	for j := i - 1; j >= 0 && j >= i-negationWindow; j-- {
		if tokens[j] == "!" {
			break
		}
		if negators[tokens[j]] || strings.HasSuffix(tokens[j], "n't") {
			return tokens[j]
		}
	}
	return ""
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

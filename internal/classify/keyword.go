package classify

import (
	"context"
	"regexp"

	"github.com/arbitrageos/campaignd/internal/models"
)

// Keyword patterns for local classification.
var (
	interestedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(sounds?|looks?)\s+(good|great|interesting)\b`),
		regexp.MustCompile(`(?i)\b(i'?m|we'?re|we\s+are)\s+interested\b`),
		regexp.MustCompile(`(?i)\btell\s+me\s+more\b`),
		regexp.MustCompile(`(?i)\b(book|schedule|set\s*up)\s+(a\s+)?(call|demo|meeting)\b`),
		regexp.MustCompile(`(?i)\bsend\s+(me\s+|over\s+)?(more\s+)?(info|information|details|pricing)\b`),
		regexp.MustCompile(`(?i)\bwhat('?s|\s+is)\s+(the\s+)?(price|pricing|cost)\b`),
		regexp.MustCompile(`(?i)\blet'?s\s+(talk|chat|connect)\b`),
		regexp.MustCompile(`(?i)\bhappy\s+to\s+(chat|discuss|hear\s+more)\b`),
	}

	notInterestedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bnot\s+interested\b`),
		regexp.MustCompile(`(?i)\b(unsubscribe|opt\s*out|remove\s+me)\b`),
		regexp.MustCompile(`(?i)\bstop\s+(emailing|contacting|messaging)\b`),
		regexp.MustCompile(`(?i)\bno\s+thanks?\b`),
		regexp.MustCompile(`(?i)\bnot\s+(a\s+)?(good\s+)?fit\b`),
		regexp.MustCompile(`(?i)\bdo\s+not\s+(email|contact)\s+(me|us)\b`),
		regexp.MustCompile(`(?i)\bwe('?re|\s+are)\s+(all\s+set|not\s+looking)\b`),
	}

	actionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\?`),
		regexp.MustCompile(`(?i)\b(call|phone)\s+me\b`),
		regexp.MustCompile(`(?i)\b(reply|respond|get\s+back)\b`),
		regexp.MustCompile(`(?i)\b(when|what\s+time)\s+(are\s+you|works)\b`),
		regexp.MustCompile(`(?i)\bnext\s+(week|monday|tuesday|wednesday|thursday|friday)\b`),
	}
)

// KeywordClassifier is a deterministic pattern-based classifier. It is the
// fallback when no remote gateway is configured and the stub of choice in
// tests.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (c *KeywordClassifier) Classify(_ context.Context, text string) (Result, error) {
	res := Result{Sentiment: models.SentimentNeutral}

	// Negative signals win: "not interested, stop emailing" must never be
	// tagged interested because of a stray positive keyword.
	if matchAny(notInterestedPatterns, text) {
		res.Sentiment = models.SentimentNotInterested
		return res, nil
	}
	if matchAny(interestedPatterns, text) {
		res.Sentiment = models.SentimentInterested
		res.RequiresAction = true
		return res, nil
	}
	if matchAny(actionPatterns, text) {
		res.RequiresAction = true
	}
	return res, nil
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

package classify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arbitrageos/campaignd/internal/models"
)

// Result is the classification of one inbound message.
type Result struct {
	Sentiment      string
	RequiresAction bool
}

// Classifier tags an inbound message with a sentiment and whether it needs a
// human-visible action (or an automated reply).
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Service runs the remote classifier when one is configured and falls back to
// local keyword heuristics when the remote call fails or is absent.
// Classification failure is never fatal to the caller.
type Service struct {
	remote   Classifier
	fallback Classifier
}

func NewService(remote Classifier) *Service {
	return &Service{
		remote:   remote,
		fallback: NewKeywordClassifier(),
	}
}

func (s *Service) Classify(ctx context.Context, text string) (Result, error) {
	if s.remote != nil {
		res, err := s.remote.Classify(ctx, text)
		if err == nil {
			return res, nil
		}
		slog.WarnContext(ctx, "remote classifier failed, using keyword fallback", "error", err)
	}
	return s.fallback.Classify(ctx, text)
}

func validSentiment(s string) bool {
	switch s {
	case models.SentimentInterested, models.SentimentNeutral, models.SentimentNotInterested:
		return true
	}
	return false
}

func normalizeSentiment(s string) (string, error) {
	if !validSentiment(s) {
		return "", fmt.Errorf("unknown sentiment %q", s)
	}
	return s, nil
}

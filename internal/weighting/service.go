package weighting

import (
	"sync"

	"sniper-trading-bot/internal/logging"
)

// Weights are the adaptive multipliers applied to signal components. They
// always sum to 1.0.
type Weights struct {
	Technical float64 `json:"technical"`
	Sentiment float64 `json:"sentiment"`
	AI        float64 `json:"ai"`
}

// defaultWeights is the prior before any outcomes are recorded
var defaultWeights = Weights{Technical: 0.5, Sentiment: 0.2, AI: 0.3}

// Defaults returns the prior weights
func Defaults() Weights {
	return defaultWeights
}

// componentOutcome tracks how often a component's contribution agreed with
// the eventual trade outcome
type componentOutcome struct {
	agreed int
	total  int
}

func (c *componentOutcome) hitRate() float64 {
	if c.total == 0 {
		return 0.5
	}
	return float64(c.agreed) / float64(c.total)
}

// Service derives component weights from historical signal outcomes. Weights
// move slowly: each is the component's hit rate normalized across the three,
// blended 50/50 with the prior to damp small-sample swings.
type Service struct {
	mu        sync.RWMutex
	technical componentOutcome
	sentiment componentOutcome
	ai        componentOutcome

	minSamples int
	logger     *logging.Logger
}

// NewService creates a weighting service
func NewService() *Service {
	return &Service{
		minSamples: 20,
		logger:     logging.Default().WithComponent("weighting"),
	}
}

// GetWeights returns the current adaptive weights. Before minSamples
// outcomes exist the defaults are returned unchanged.
func (s *Service) GetWeights() Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := s.technical.total
	if total < s.minSamples {
		return defaultWeights
	}

	tRate := s.technical.hitRate()
	sRate := s.sentiment.hitRate()
	aRate := s.ai.hitRate()

	sum := tRate + sRate + aRate
	if sum == 0 {
		return defaultWeights
	}

	raw := Weights{
		Technical: tRate / sum,
		Sentiment: sRate / sum,
		AI:        aRate / sum,
	}

	return Weights{
		Technical: 0.5*raw.Technical + 0.5*defaultWeights.Technical,
		Sentiment: 0.5*raw.Sentiment + 0.5*defaultWeights.Sentiment,
		AI:        0.5*raw.AI + 0.5*defaultWeights.AI,
	}
}

// RecordOutcome feeds one closed trade back. Each bool says whether that
// component's reading agreed with the direction that would have won.
func (s *Service) RecordOutcome(technicalAgreed, sentimentAgreed, aiAgreed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := func(c *componentOutcome, agreed bool) {
		c.total++
		if agreed {
			c.agreed++
		}
	}
	record(&s.technical, technicalAgreed)
	record(&s.sentiment, sentimentAgreed)
	record(&s.ai, aiAgreed)
}

// GetStats returns hit rates for the status endpoint
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"samples":        s.technical.total,
		"technical_rate": s.technical.hitRate(),
		"sentiment_rate": s.sentiment.hitRate(),
		"ai_rate":        s.ai.hitRate(),
	}
}

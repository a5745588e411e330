package feedback

import (
	"context"

	"go.uber.org/zap"
)

// LearningStats summarizes how the assistant is learning from feedback.
type LearningStats struct {
	Total       int              `json:"total"`
	Pending     int              `json:"pending"`
	Good        int              `json:"good"`
	Edited      int              `json:"edited"`
	BySituation map[string]int   `json:"bySituation"`
	Counters    map[string]int64 `json:"counters,omitempty"`
}

// Stats aggregates the ledger into learning statistics. Counter values come
// from Redis and are best effort; a missing counter hash is not an error.
func (p *Promoter) Stats(ctx context.Context) (*LearningStats, error) {
	entries, err := p.ledger.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &LearningStats{
		Total:       len(entries),
		BySituation: make(map[string]int),
	}

	for i := range entries {
		switch entries[i].Status {
		case StatusPending:
			stats.Pending++
		case StatusGood:
			stats.Good++
		case StatusEdited:
			stats.Edited++
		}

		if entries[i].Situation != "" {
			stats.BySituation[entries[i].Situation]++
		}
	}

	if p.counters != nil {
		counters, err := p.counters.All(ctx)
		if err != nil {
			p.logger.Debug("Failed to load feedback counters", zap.Error(err))
		} else {
			stats.Counters = counters
		}
	}

	return stats, nil
}

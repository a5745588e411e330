package feedback

import (
	"context"
	"fmt"
	"sync"

	"github.com/chatmod/chatmod/internal/corpus"
	"github.com/chatmod/chatmod/internal/policy"
	"github.com/chatmod/chatmod/internal/policy/classifier"
	"github.com/chatmod/chatmod/internal/redis"
	"github.com/chatmod/chatmod/pkg/utils"
	"go.uber.org/zap"
)

// SimilarityThreshold is the token overlap above which two customer messages
// are treated as the same message during back-reference scans.
const SimilarityThreshold = 0.9

// Promoter turns judged feedback entries into training corpus records.
type Promoter struct {
	ledger     *Ledger
	corpus     *corpus.Store
	policy     *policy.Store
	classifier *classifier.Classifier
	counters   *redis.Counters
	logger     *zap.Logger
	mu         sync.Mutex
}

// NewPromoter creates a Promoter. The counters may be nil when stats
// tracking is disabled.
func NewPromoter(
	ledger *Ledger, corpusStore *corpus.Store, policyStore *policy.Store,
	cls *classifier.Classifier, counters *redis.Counters, logger *zap.Logger,
) *Promoter {
	return &Promoter{
		ledger:     ledger,
		corpus:     corpusStore,
		policy:     policyStore,
		classifier: cls,
		counters:   counters,
		logger:     logger.Named("feedback_promoter"),
	}
}

// Judge records a verdict on a pending entry and promotes it into the
// training corpus. A "good" verdict trains on the AI reply as generated; an
// "edited" verdict trains on the human rewrite and keeps the original reply
// for reference. Judging a non-pending entry returns ErrAlreadyJudged.
func (p *Promoter) Judge(ctx context.Context, id string, status Status, editedText string) (*Entry, error) {
	if status != StatusGood && status != StatusEdited {
		return nil, fmt.Errorf("invalid feedback status %q", status)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entry, err := p.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if entry.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyJudged, id, entry.Status)
	}

	if status == StatusEdited {
		if editedText == "" {
			return nil, fmt.Errorf("edited feedback %s has no edited text", id)
		}

		entry.EditedResponse = editedText
	}

	entry.Status = status
	entry.SetSituation(p.effectiveSituation(ctx, entry))

	if entry.IsASA {
		err = p.promoteASA(ctx, entry)
	} else {
		err = p.promoteExample(ctx, entry)
	}

	if err != nil {
		return nil, err
	}

	if err := p.ledger.Update(ctx, entry); err != nil {
		return nil, err
	}

	// Best effort from here on. The promotion itself already succeeded, so
	// propagation or stats failures are logged rather than surfaced.
	p.refreshRelated(ctx, entry)
	p.recordStats(ctx, entry)

	p.logger.Info("Promoted feedback entry",
		zap.String("id", entry.ID),
		zap.String("status", string(entry.Status)),
		zap.String("situation", entry.Situation),
		zap.Bool("isASA", entry.IsASA))

	return entry, nil
}

// SelfHeal flips pending ledger entries that already have corpus records to
// edited. Covers entries whose promotion write succeeded but whose ledger
// update was lost. Safe to run repeatedly.
func (p *Promoter) SelfHeal(ctx context.Context) (int, error) {
	examples, err := p.corpus.Examples(ctx)
	if err != nil {
		return 0, err
	}

	asa, err := p.corpus.ASAExamples(ctx)
	if err != nil {
		return 0, err
	}

	referenced := make(map[string]struct{}, len(examples)+len(asa))

	for i := range examples {
		if examples[i].FeedbackID != "" {
			referenced[examples[i].FeedbackID] = struct{}{}
		}
	}

	for i := range asa {
		if asa[i].FeedbackID != "" {
			referenced[asa[i].FeedbackID] = struct{}{}
		}
	}

	return p.ledger.MarkEdited(ctx, referenced)
}

// effectiveSituation resolves the situation a promotion is filed under. ASA
// entries always use the reactivation tag; everything else is classified
// fresh so late policy edits are reflected.
func (p *Promoter) effectiveSituation(ctx context.Context, entry *Entry) string {
	if entry.IsASA {
		return policy.ASASituation
	}

	cfg, err := p.policy.Get(ctx)
	if err != nil {
		p.logger.Warn("Failed to load policy for classification, using default rules",
			zap.String("id", entry.ID), zap.Error(err))

		cfg = &policy.Config{}
		cfg.MergeDefaults()
	}

	return p.classifier.DetectPrimary(entry.CustomerMessage, cfg)
}

func (p *Promoter) promoteExample(ctx context.Context, entry *Entry) error {
	example := corpus.Example{
		CustomerMessage:   entry.CustomerMessage,
		ModeratorResponse: entry.EffectiveResponse(),
		Situation:         entry.Situation,
		Situations:        entry.Situations,
		Source:            promotionSource(entry),
		FeedbackID:        entry.ID,
		Priority:          true,
	}

	if entry.Status == StatusEdited {
		example.OriginalResponse = entry.AIResponse
	}

	return p.corpus.Append(ctx, example)
}

func (p *Promoter) promoteASA(ctx context.Context, entry *Entry) error {
	example := corpus.ASAExample{
		CustomerType: asaCustomerType(entry),
		ASAMessage:   entry.EffectiveResponse(),
		Source:       promotionSource(entry),
		FeedbackID:   entry.ID,
		Priority:     true,
	}

	if entry.Context != nil {
		example.LastTopic = entry.Context.LastModeratorMessage
	}

	return p.corpus.AppendASA(ctx, example)
}

// refreshRelated retags older corpus records and ledger entries that carry
// the same customer message, so one judgment corrects the whole family.
func (p *Promoter) refreshRelated(ctx context.Context, entry *Entry) {
	if entry.IsASA || entry.CustomerMessage == "" {
		return
	}

	changed, err := p.corpus.RefreshSituations(ctx, entry.CustomerMessage, entry.Situation, SameMessage)
	if err != nil {
		p.logger.Warn("Failed to refresh related corpus records",
			zap.String("id", entry.ID), zap.Error(err))
	} else if changed > 0 {
		p.logger.Debug("Retagged related corpus records",
			zap.String("situation", entry.Situation), zap.Int("changed", changed))
	}

	retagged, err := p.ledger.RefreshSituations(ctx, entry.ID, entry.CustomerMessage, entry.Situation, SameMessage)
	if err != nil {
		p.logger.Warn("Failed to refresh related ledger entries",
			zap.String("id", entry.ID), zap.Error(err))
	} else if retagged > 0 {
		p.logger.Debug("Retagged related ledger entries",
			zap.String("situation", entry.Situation), zap.Int("changed", retagged))
	}
}

func (p *Promoter) recordStats(ctx context.Context, entry *Entry) {
	if p.counters == nil {
		return
	}

	fields := []string{"total", string(entry.Status)}
	if entry.Situation != "" {
		fields = append(fields, "situation:"+entry.Situation)
	}

	for _, field := range fields {
		if err := p.counters.Incr(ctx, field, 1); err != nil {
			p.logger.Debug("Failed to record feedback stats", zap.Error(err))

			return
		}
	}
}

// SameMessage reports whether two customer messages should be treated as the
// same message: exact match or near-duplicate by token overlap.
func SameMessage(a, b string) bool {
	return a == b || utils.TokenOverlap(a, b) > SimilarityThreshold
}

func promotionSource(entry *Entry) corpus.Source {
	switch {
	case entry.IsGenerated && entry.Status == StatusEdited:
		return corpus.SourceFeedbackGeneratedEdit
	case entry.IsGenerated:
		return corpus.SourceFeedbackGenerated
	case entry.Status == StatusEdited:
		return corpus.SourceFeedbackEdited
	default:
		return corpus.SourceFeedbackGood
	}
}

func asaCustomerType(entry *Entry) string {
	if entry.Context != nil && entry.Context.CustomerName != "" {
		return entry.Context.CustomerName
	}

	return "unbekannt"
}

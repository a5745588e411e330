package finetune

import (
	"context"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// maxModerationConcurrency bounds parallel moderation calls per filter run.
const maxModerationConcurrency = 4

// ModerationService is the content-safety surface the filter talks to.
// Tests provide a fake implementation.
type ModerationService interface {
	Check(ctx context.Context, text string) (*openai.Moderation, error)
}

// openaiModerations implements ModerationService on the OpenAI client.
type openaiModerations struct {
	client *openai.Client
	model  string
}

// NewModerationService creates a ModerationService over the given client.
func NewModerationService(client *openai.Client, model string) ModerationService {
	return &openaiModerations{client: client, model: model}
}

func (s *openaiModerations) Check(ctx context.Context, text string) (*openai.Moderation, error) {
	params := openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
	}
	if s.model != "" {
		params.Model = openai.ModerationModel(s.model)
	}

	resp, err := s.client.Moderations.New(ctx, params)
	if err != nil {
		return nil, err
	}

	if len(resp.Results) == 0 {
		return &openai.Moderation{}, nil
	}

	return &resp.Results[0], nil
}

// FilterResult partitions candidates after a safety-filter run.
type FilterResult struct {
	Safe     []Candidate
	Warnings []Candidate
	Snapshot *FilterSnapshot
}

// SafetyFilter drops training candidates with disqualifying content.
// Ordinary adult sexual content is the platform's business and only worth a
// warning; violence, self-harm and anything involving minors is dropped.
type SafetyFilter struct {
	moderations ModerationService
	logger      *zap.Logger
}

// NewSafetyFilter creates a SafetyFilter.
func NewSafetyFilter(moderations ModerationService, logger *zap.Logger) *SafetyFilter {
	return &SafetyFilter{
		moderations: moderations,
		logger:      logger.Named("safety_filter"),
	}
}

// Partition classifies every candidate as safe, warning (kept) or flagged
// (dropped). An unreachable moderation service degrades to all-safe rather
// than blocking training; the degradation is recorded on the snapshot.
func (f *SafetyFilter) Partition(ctx context.Context, candidates []Candidate) *FilterResult {
	snapshot := &FilterSnapshot{
		FlaggedCategories: make(map[string]int),
		Timestamp:         time.Now().UTC(),
	}
	result := &FilterResult{Snapshot: snapshot}

	var (
		p  = pool.New().WithMaxGoroutines(maxModerationConcurrency).WithContext(ctx)
		mu sync.Mutex
	)

	for i := range candidates {
		candidate := candidates[i]

		p.Go(func(ctx context.Context) error {
			moderation, err := f.moderations.Check(ctx, candidate.UserContent+"\n"+candidate.AssistantContent)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				f.logger.Warn("Moderation service unreachable, keeping candidate as safe", zap.Error(err))

				snapshot.Degraded = true
				result.Safe = append(result.Safe, candidate)

				return nil
			}

			switch categories := flagCategories(moderation); {
			case len(categories) > 0:
				for _, category := range categories {
					snapshot.FlaggedCategories[category]++
				}

				snapshot.FlaggedMessages = append(snapshot.FlaggedMessages, candidate.UserContent)

				f.logger.Info("Dropped training candidate",
					zap.Strings("categories", categories))
			case moderation.Categories.Sexual:
				result.Safe = append(result.Safe, candidate)
				result.Warnings = append(result.Warnings, candidate)
			default:
				result.Safe = append(result.Safe, candidate)
			}

			return nil
		})
	}

	// Workers only return nil; Wait is for completion.
	_ = p.Wait()

	snapshot.Safe = len(result.Safe)
	snapshot.Warnings = len(result.Warnings)
	snapshot.Flagged = len(candidates) - len(result.Safe)

	return result
}

// flagCategories returns the moderation categories that disqualify a
// candidate from training.
func flagCategories(m *openai.Moderation) []string {
	var categories []string

	c := m.Categories

	if c.Violence || c.ViolenceGraphic {
		categories = append(categories, "violence")
	}

	if c.SelfHarm || c.SelfHarmIntent || c.SelfHarmInstructions {
		categories = append(categories, "self-harm")
	}

	if c.SexualMinors {
		categories = append(categories, "sexual/minors")
	}

	return categories
}

package finetune

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/chatmod/chatmod/internal/corpus"
	"github.com/chatmod/chatmod/internal/feedback"
	"github.com/chatmod/chatmod/internal/setup/config"
	"github.com/chatmod/chatmod/internal/store"
	"github.com/openai/openai-go"
	"go.uber.org/zap"
)

// StatePaths lists the candidate document locations of the fine-tuning
// state, in read priority order.
var StatePaths = []string{
	"config/finetune.json",
	"data/finetuning_config.json",
}

// trainingSystemPrompt is the system message baked into every exported
// training record.
const trainingSystemPrompt = "Du bist eine Moderatorin auf einer Dating-Plattform. " +
	"Antworte locker, warm und menschlich, per Du, und beende deine Antworten mit einer Gegenfrage."

// Orchestrator owns the fine-tuning job lifecycle: one job at a time,
// state persisted between runs.
type Orchestrator struct {
	corpus    *corpus.Store
	docs      *store.Documents
	trainer   TrainingService
	filter    *SafetyFilter
	logger    *zap.Logger
	baseModel string

	minExamples      int
	retrainThreshold int
	minMessageLength int

	mu sync.Mutex
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	corpusStore *corpus.Store, docs *store.Documents, trainer TrainingService,
	filter *SafetyFilter, cfg *config.FineTune, baseModel string, logger *zap.Logger,
) *Orchestrator {
	minExamples := cfg.MinExamples
	if minExamples <= 0 {
		minExamples = 10
	}

	return &Orchestrator{
		corpus:           corpusStore,
		docs:             docs,
		trainer:          trainer,
		filter:           filter,
		logger:           logger.Named("finetune"),
		baseModel:        baseModel,
		minExamples:      minExamples,
		retrainThreshold: cfg.RetrainThreshold,
		minMessageLength: cfg.MinMessageLength,
	}
}

// Retrain runs the full training pipeline: collect, filter, export, upload,
// submit. Fails fast with exact counts when too little data qualifies.
func (o *Orchestrator) Retrain(ctx context.Context) (*State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, err := o.loadState(ctx)
	if err != nil {
		return nil, err
	}

	if state.Status == StatusRunning && state.CurrentJobID != "" {
		return nil, fmt.Errorf("%w: %s", ErrJobAlreadyRunning, state.CurrentJobID)
	}

	candidates, err := o.collectCandidates(ctx)
	if err != nil {
		return nil, err
	}

	if len(candidates) < o.minExamples {
		return nil, fmt.Errorf("%w: have %d qualifying examples, need at least %d",
			ErrInsufficientData, len(candidates), o.minExamples)
	}

	result := o.filter.Partition(ctx, candidates)
	if len(result.Safe) < o.minExamples {
		return nil, fmt.Errorf("%w after safety filter: %d safe of %d (flagged %d: %s), need at least %d",
			ErrInsufficientData, len(result.Safe), len(candidates),
			result.Snapshot.Flagged, categorySummary(result.Snapshot), o.minExamples)
	}

	data, err := ExportJSONL(trainingSystemPrompt, result.Safe)
	if err != nil {
		return nil, err
	}

	fileID, err := o.trainer.UploadFile(ctx, "training.jsonl", data)
	if err != nil {
		return nil, err
	}

	job, err := o.trainer.CreateJob(ctx, fileID, o.baseModel)
	if err != nil {
		return nil, err
	}

	state.CurrentJobID = job.ID
	state.Status = StatusRunning
	state.TrainingExamplesCount = len(result.Safe)
	state.NextRetrainAt = len(candidates) + o.retrainThreshold
	state.LastFiltered = result.Snapshot
	state.LastError = ""

	if err := o.saveState(ctx, state); err != nil {
		return nil, err
	}

	o.logger.Info("Fine-tuning job submitted",
		zap.String("jobId", job.ID),
		zap.String("baseModel", o.baseModel),
		zap.Int("examples", len(result.Safe)))

	return state, nil
}

// Status returns the current state, polling the in-flight job first. On
// terminal success the new model ID is captured and the job ID cleared; on
// failure or cancellation the job ID is cleared but status and error kept.
// Safe to call repeatedly.
func (o *Orchestrator) Status(ctx context.Context) (*State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, err := o.loadState(ctx)
	if err != nil {
		return nil, err
	}

	if state.CurrentJobID == "" {
		return state, nil
	}

	job, err := o.trainer.GetJob(ctx, state.CurrentJobID)
	if err != nil {
		o.logger.Warn("Failed to poll fine-tuning job", zap.Error(err))

		return state, nil
	}

	switch job.Status {
	case "succeeded":
		state.ModelID = job.FineTunedModel
		state.CurrentJobID = ""
		state.Status = StatusSucceeded
	case "failed":
		state.CurrentJobID = ""
		state.Status = StatusFailed
		state.LastError = job.Error.Message
	case "cancelled":
		state.CurrentJobID = ""
		state.Status = StatusCancelled
	default:
		return state, nil
	}

	if err := o.saveState(ctx, state); err != nil {
		return nil, err
	}

	return state, nil
}

// Stats summarizes the corpus for the training dashboard.
type Stats struct {
	Total         int            `json:"total"`
	ASA           int            `json:"asa"`
	BySource      map[string]int `json:"bySource"`
	BySituation   map[string]int `json:"bySituation"`
	Qualifying    int            `json:"qualifying"`
	MinExamples   int            `json:"minExamples"`
	NextRetrainAt int            `json:"nextRetrainAt,omitempty"`
}

// Stats computes corpus statistics and threshold progress.
func (o *Orchestrator) Stats(ctx context.Context) (*Stats, error) {
	examples, err := o.corpus.Examples(ctx)
	if err != nil {
		return nil, err
	}

	asa, err := o.corpus.ASAExamples(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Total:       len(examples),
		ASA:         len(asa),
		BySource:    make(map[string]int),
		BySituation: make(map[string]int),
		MinExamples: o.minExamples,
	}

	for i := range examples {
		stats.BySource[sourceLabel(examples[i].Source)]++

		for _, situation := range examples[i].Situations {
			stats.BySituation[situation]++
		}
	}

	for i := range asa {
		stats.BySource[sourceLabel(asa[i].Source)]++
	}

	candidates, err := o.collectCandidates(ctx)
	if err != nil {
		return nil, err
	}

	stats.Qualifying = len(candidates)

	state, err := o.loadState(ctx)
	if err == nil {
		stats.NextRetrainAt = state.NextRetrainAt
	}

	return stats, nil
}

// Jobs lists the most recent fine-tuning jobs.
func (o *Orchestrator) Jobs(ctx context.Context, limit int) ([]openai.FineTuningJob, error) {
	if limit <= 0 {
		limit = 10
	}

	return o.trainer.ListJobs(ctx, limit)
}

// Export serializes the current qualifying corpus to JSONL for download.
func (o *Orchestrator) Export(ctx context.Context) ([]byte, error) {
	candidates, err := o.collectCandidates(ctx)
	if err != nil {
		return nil, err
	}

	return ExportJSONL(trainingSystemPrompt, candidates)
}

// LastFiltered returns the audit snapshot of the last safety-filter run.
func (o *Orchestrator) LastFiltered(ctx context.Context) (*FilterSnapshot, error) {
	state, err := o.loadState(ctx)
	if err != nil {
		return nil, err
	}

	return state.LastFiltered, nil
}

// collectCandidates gathers training pairs from both corpus collections,
// deduplicated by message, skipping negative examples and messages below the
// minimum length.
func (o *Orchestrator) collectCandidates(ctx context.Context) ([]Candidate, error) {
	examples, err := o.corpus.Examples(ctx)
	if err != nil {
		return nil, err
	}

	asa, err := o.corpus.ASAExamples(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(examples)+len(asa))
	candidates := make([]Candidate, 0, len(examples)+len(asa))

	for i := range examples {
		message := strings.TrimSpace(examples[i].CustomerMessage)

		if examples[i].IsNegativeExample || len(message) < o.minMessageLength {
			continue
		}

		if _, ok := seen[message]; ok {
			continue
		}

		seen[message] = struct{}{}
		candidates = append(candidates, Candidate{
			UserContent:      message,
			AssistantContent: examples[i].ModeratorResponse,
		})
	}

	for i := range asa {
		message := strings.TrimSpace(asa[i].ASAMessage)
		if len(message) < o.minMessageLength {
			continue
		}

		if _, ok := seen[message]; ok {
			continue
		}

		seen[message] = struct{}{}
		candidates = append(candidates, Candidate{
			UserContent:      feedback.ASASentinel,
			AssistantContent: message,
		})
	}

	return candidates, nil
}

func (o *Orchestrator) loadState(ctx context.Context) (*State, error) {
	data, err := o.docs.Load(ctx, StatePaths)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &State{Status: StatusIdle}, nil
		}

		return nil, fmt.Errorf("failed to load fine-tuning state: %w", err)
	}

	var state State
	if err := sonic.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse fine-tuning state: %w", err)
	}

	if state.Status == "" {
		state.Status = StatusIdle
	}

	return &state, nil
}

func (o *Orchestrator) saveState(ctx context.Context, state *State) error {
	state.UpdatedAt = time.Now().UTC()

	data, err := sonic.ConfigDefault.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize fine-tuning state: %w", err)
	}

	return o.docs.Save(ctx, StatePaths[0], data, "Update fine-tuning state")
}

func sourceLabel(source corpus.Source) string {
	if source == "" {
		return string(corpus.SourceManual)
	}

	return string(source)
}

func categorySummary(snapshot *FilterSnapshot) string {
	if len(snapshot.FlaggedCategories) == 0 {
		return "none"
	}

	categories := make([]string, 0, len(snapshot.FlaggedCategories))
	for category, count := range snapshot.FlaggedCategories {
		categories = append(categories, fmt.Sprintf("%s=%d", category, count))
	}

	sort.Strings(categories)

	return strings.Join(categories, ", ")
}

package finetune_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chatmod/chatmod/internal/corpus"
	"github.com/chatmod/chatmod/internal/finetune"
	"github.com/chatmod/chatmod/internal/setup/config"
	"github.com/chatmod/chatmod/internal/store"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRemote struct {
	files map[string][]byte
}

func (f *fakeRemote) Read(_ context.Context, path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, store.ErrNotFound
	}

	return data, nil
}

func (f *fakeRemote) Write(_ context.Context, path string, content []byte, _ string) error {
	if f.files == nil {
		f.files = make(map[string][]byte)
	}

	f.files[path] = content

	return nil
}

// fakeModerations flags candidates whose text contains a trigger word and
// optionally fails every call.
type fakeModerations struct {
	violentWord string
	down        bool
}

func (f *fakeModerations) Check(_ context.Context, text string) (*openai.Moderation, error) {
	if f.down {
		return nil, errors.New("moderation unavailable")
	}

	var m openai.Moderation
	if f.violentWord != "" && strings.Contains(text, f.violentWord) {
		m.Categories.Violence = true
	}

	return &m, nil
}

type fakeTrainer struct {
	uploaded []byte
	jobs     map[string]*openai.FineTuningJob
	nextID   int
}

func (f *fakeTrainer) UploadFile(_ context.Context, _ string, data []byte) (string, error) {
	f.uploaded = data

	return "file-1", nil
}

func (f *fakeTrainer) CreateJob(_ context.Context, _, _ string) (*openai.FineTuningJob, error) {
	f.nextID++
	job := &openai.FineTuningJob{
		ID:     fmt.Sprintf("ftjob-%d", f.nextID),
		Status: "running",
	}

	if f.jobs == nil {
		f.jobs = make(map[string]*openai.FineTuningJob)
	}

	f.jobs[job.ID] = job

	return job, nil
}

func (f *fakeTrainer) GetJob(_ context.Context, jobID string) (*openai.FineTuningJob, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, errors.New("job not found")
	}

	return job, nil
}

func (f *fakeTrainer) ListJobs(_ context.Context, _ int) ([]openai.FineTuningJob, error) {
	jobs := make([]openai.FineTuningJob, 0, len(f.jobs))
	for _, job := range f.jobs {
		jobs = append(jobs, *job)
	}

	return jobs, nil
}

type orchestratorFixture struct {
	orchestrator *finetune.Orchestrator
	corpus       *corpus.Store
	trainer      *fakeTrainer
	moderations  *fakeModerations
}

func newOrchestrator(t *testing.T) *orchestratorFixture {
	t.Helper()

	docs := store.NewDocuments(&fakeRemote{}, t.TempDir(), zap.NewNop())
	corpusStore := corpus.NewStore(docs, zap.NewNop())
	trainer := &fakeTrainer{}
	moderations := &fakeModerations{}

	filter := finetune.NewSafetyFilter(moderations, zap.NewNop())
	cfg := &config.FineTune{MinExamples: 10, RetrainThreshold: 20, MinMessageLength: 5}

	return &orchestratorFixture{
		orchestrator: finetune.NewOrchestrator(
			corpusStore, docs, trainer, filter, cfg, "gpt-base", zap.NewNop()),
		corpus:      corpusStore,
		trainer:     trainer,
		moderations: moderations,
	}
}

func seedExamples(t *testing.T, corpusStore *corpus.Store, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		require.NoError(t, corpusStore.Append(context.Background(), corpus.Example{
			CustomerMessage:   fmt.Sprintf("Wie läuft dein Abend so, Nummer %d?", i),
			ModeratorResponse: "Ganz entspannt gerade. Und bei dir?",
			Situation:         "allgemein",
		}))
	}
}

func TestRetrainInsufficientData(t *testing.T) {
	t.Parallel()

	fix := newOrchestrator(t)
	seedExamples(t, fix.corpus, 9)

	_, err := fix.orchestrator.Retrain(context.Background())
	require.ErrorIs(t, err, finetune.ErrInsufficientData)
	assert.Contains(t, err.Error(), "9")
	assert.Contains(t, err.Error(), "10")
}

func TestRetrainSubmitsJob(t *testing.T) {
	t.Parallel()

	fix := newOrchestrator(t)
	seedExamples(t, fix.corpus, 10)

	state, err := fix.orchestrator.Retrain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, finetune.StatusRunning, state.Status)
	assert.Equal(t, "ftjob-1", state.CurrentJobID)
	assert.Equal(t, 10, state.TrainingExamplesCount)
	assert.Equal(t, 30, state.NextRetrainAt)

	lines := bytes.Split(bytes.TrimSpace(fix.trainer.uploaded), []byte("\n"))
	assert.Len(t, lines, 10)
	assert.Contains(t, string(lines[0]), `"role":"system"`)
	assert.Contains(t, string(lines[0]), `"role":"assistant"`)
}

func TestRetrainRejectsSecondJob(t *testing.T) {
	t.Parallel()

	fix := newOrchestrator(t)
	seedExamples(t, fix.corpus, 10)
	ctx := context.Background()

	_, err := fix.orchestrator.Retrain(ctx)
	require.NoError(t, err)

	_, err = fix.orchestrator.Retrain(ctx)
	assert.ErrorIs(t, err, finetune.ErrJobAlreadyRunning)
}

func TestRetrainSafetyFilterBreakdown(t *testing.T) {
	t.Parallel()

	fix := newOrchestrator(t)
	fix.moderations.violentWord = "Nummer"
	seedExamples(t, fix.corpus, 10)

	_, err := fix.orchestrator.Retrain(context.Background())
	require.ErrorIs(t, err, finetune.ErrInsufficientData)
	assert.Contains(t, err.Error(), "violence")
	assert.Contains(t, err.Error(), "0 safe of 10")
}

func TestRetrainDegradesWhenModerationDown(t *testing.T) {
	t.Parallel()

	fix := newOrchestrator(t)
	fix.moderations.down = true
	seedExamples(t, fix.corpus, 10)

	state, err := fix.orchestrator.Retrain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, finetune.StatusRunning, state.Status)
	assert.True(t, state.LastFiltered.Degraded)
}

func TestRetrainDedupAndMinLength(t *testing.T) {
	t.Parallel()

	fix := newOrchestrator(t)
	ctx := context.Background()

	seedExamples(t, fix.corpus, 9)

	// Duplicate of an existing message and a too-short one must not count.
	require.NoError(t, fix.corpus.Append(ctx, corpus.Example{
		CustomerMessage:   "Wie läuft dein Abend so, Nummer 0?",
		ModeratorResponse: "Nochmal anders formuliert.",
	}))
	require.NoError(t, fix.corpus.Append(ctx, corpus.Example{
		CustomerMessage:   "Hi",
		ModeratorResponse: "Hey du!",
	}))

	_, err := fix.orchestrator.Retrain(ctx)
	require.ErrorIs(t, err, finetune.ErrInsufficientData)
	assert.Contains(t, err.Error(), "9")
}

func TestStatusCapturesModelOnSuccess(t *testing.T) {
	t.Parallel()

	fix := newOrchestrator(t)
	seedExamples(t, fix.corpus, 10)
	ctx := context.Background()

	state, err := fix.orchestrator.Retrain(ctx)
	require.NoError(t, err)

	fix.trainer.jobs[state.CurrentJobID].Status = "succeeded"
	fix.trainer.jobs[state.CurrentJobID].FineTunedModel = "ft:gpt-base:custom"

	polled, err := fix.orchestrator.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, finetune.StatusSucceeded, polled.Status)
	assert.Equal(t, "ft:gpt-base:custom", polled.ModelID)
	assert.Empty(t, polled.CurrentJobID)

	// Polling again is idempotent.
	again, err := fix.orchestrator.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, polled.Status, again.Status)
	assert.Equal(t, polled.ModelID, again.ModelID)
}

func TestStatusKeepsErrorOnFailure(t *testing.T) {
	t.Parallel()

	fix := newOrchestrator(t)
	seedExamples(t, fix.corpus, 10)
	ctx := context.Background()

	state, err := fix.orchestrator.Retrain(ctx)
	require.NoError(t, err)

	job := fix.trainer.jobs[state.CurrentJobID]
	job.Status = "failed"
	job.Error.Message = "invalid training data"

	polled, err := fix.orchestrator.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, finetune.StatusFailed, polled.Status)
	assert.Equal(t, "invalid training data", polled.LastError)
	assert.Empty(t, polled.CurrentJobID)
}

func TestStatsCountsCorpus(t *testing.T) {
	t.Parallel()

	fix := newOrchestrator(t)
	ctx := context.Background()

	seedExamples(t, fix.corpus, 3)
	require.NoError(t, fix.corpus.AppendASA(ctx, corpus.ASAExample{
		CustomerType: "ruhig",
		ASAMessage:   "Na, bist du noch wach?",
		Source:       corpus.SourceFeedbackGood,
	}))

	stats, err := fix.orchestrator.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ASA)
	assert.Equal(t, 3, stats.BySource["manual"])
	assert.Equal(t, 1, stats.BySource["feedback_good"])
	assert.Equal(t, 3, stats.BySituation["allgemein"])
	assert.Equal(t, 4, stats.Qualifying)
	assert.Equal(t, 10, stats.MinExamples)
}

func TestExportJSONL(t *testing.T) {
	t.Parallel()

	data, err := finetune.ExportJSONL("system", []finetune.Candidate{
		{UserContent: "Hallo", AssistantContent: "Hey du!"},
		{UserContent: "Wie geht's?", AssistantContent: "Gut, und dir?"},
	})
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[1]), `"content":"Wie geht's?"`)
}

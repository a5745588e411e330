package rest_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/chatmod/chatmod/internal/corpus"
	"github.com/chatmod/chatmod/internal/feedback"
	"github.com/chatmod/chatmod/internal/finetune"
	"github.com/chatmod/chatmod/internal/pipeline"
	"github.com/chatmod/chatmod/internal/policy"
	"github.com/chatmod/chatmod/internal/policy/classifier"
	"github.com/chatmod/chatmod/internal/rest"
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

type fakeChat struct {
	reply string
}

func (f *fakeChat) New(_ context.Context, _ openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
	}, nil
}

func (f *fakeChat) NewWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return f.New(ctx, params)
}

type fakeModerations struct{}

func (fakeModerations) Check(_ context.Context, _ string) (*openai.Moderation, error) {
	return &openai.Moderation{}, nil
}

type fakeTrainer struct{}

func (fakeTrainer) UploadFile(_ context.Context, _ string, _ []byte) (string, error) {
	return "file-1", nil
}

func (fakeTrainer) CreateJob(_ context.Context, _, _ string) (*openai.FineTuningJob, error) {
	return &openai.FineTuningJob{ID: "ftjob-1", Status: "running"}, nil
}

func (fakeTrainer) GetJob(_ context.Context, _ string) (*openai.FineTuningJob, error) {
	return nil, errors.New("job not found")
}

func (fakeTrainer) ListJobs(_ context.Context, _ int) ([]openai.FineTuningJob, error) {
	return nil, nil
}

type serverFixture struct {
	handler http.Handler
	ledger  *feedback.Ledger
	corpus  *corpus.Store
}

func newServer(t *testing.T) *serverFixture {
	t.Helper()

	logger := zap.NewNop()
	docs := store.NewDocuments(&fakeRemote{}, t.TempDir(), logger)
	policyStore := policy.NewStore(docs, nil, logger)
	corpusStore := corpus.NewStore(docs, logger)
	ledger := feedback.NewLedger(docs, logger)
	cls := classifier.New()
	promoter := feedback.NewPromoter(ledger, corpusStore, policyStore, cls, nil, logger)
	reconciler := feedback.NewReconciler(ledger, logger)

	assembler := pipeline.NewAssembler(&config.Assembler{}, logger)
	p := pipeline.New(&fakeChat{reply: "Klingt gut bei dir. Und wie war dein Tag so?"},
		policyStore, corpusStore, cls, assembler, ledger, "gpt-test", logger)

	filter := finetune.NewSafetyFilter(fakeModerations{}, logger)
	orchestrator := finetune.NewOrchestrator(corpusStore, docs, fakeTrainer{}, filter,
		&config.FineTune{MinExamples: 10}, "gpt-base", logger)

	return &serverFixture{
		handler: rest.NewServer(&rest.Deps{
			Policy:       policyStore,
			Corpus:       corpusStore,
			Ledger:       ledger,
			Promoter:     promoter,
			Reconciler:   reconciler,
			Pipeline:     p,
			Orchestrator: orchestrator,
		}, logger),
		ledger: ledger,
		corpus: corpusStore,
	}
}

func (s *serverFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader

	if body != nil {
		data, err := sonic.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &v))

	return v
}

func TestGetRulesReturnsDefaults(t *testing.T) {
	t.Parallel()

	fix := newServer(t)

	rec := fix.do(t, http.MethodGet, "/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cfg := decode[policy.Config](t, rec)
	_, ok := cfg.Situations.Get(policy.GenericSituation)
	assert.True(t, ok)
}

func TestPutRules(t *testing.T) {
	t.Parallel()

	fix := newServer(t)

	rec := fix.do(t, http.MethodPut, "/rules", map[string]any{
		"forbiddenWords": []string{"treffen"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fix.do(t, http.MethodGet, "/rules", nil)
	cfg := decode[policy.Config](t, rec)
	assert.Equal(t, []string{"treffen"}, cfg.ForbiddenWords)
}

func TestTestChatCreatesPendingEntry(t *testing.T) {
	t.Parallel()

	fix := newServer(t)

	rec := fix.do(t, http.MethodPost, "/test-chat", map[string]any{
		"message": "Wie geht es dir heute?",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	result := decode[pipeline.Result](t, rec)
	assert.NotEmpty(t, result.Reply)
	require.NotEmpty(t, result.FeedbackID)

	entry, err := fix.ledger.Get(context.Background(), result.FeedbackID)
	require.NoError(t, err)
	assert.Equal(t, feedback.StatusPending, entry.Status)
}

func TestTestChatRequiresMessage(t *testing.T) {
	t.Parallel()

	fix := newServer(t)

	rec := fix.do(t, http.MethodPost, "/test-chat", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedbackJudgeFlow(t *testing.T) {
	t.Parallel()

	fix := newServer(t)

	rec := fix.do(t, http.MethodPost, "/feedback", map[string]any{
		"customerMessage": "Bist du ein Bot?",
		"aiResponse":      "Nein, hier sitzt ein Mensch mit kaltem Kaffee.",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	entry := decode[feedback.Entry](t, rec)

	rec = fix.do(t, http.MethodPut, "/feedback/"+entry.ID, map[string]any{
		"status": "good",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	judged := decode[feedback.Entry](t, rec)
	assert.Equal(t, feedback.StatusGood, judged.Status)

	examples, err := fix.corpus.Examples(context.Background())
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, entry.ID, examples[0].FeedbackID)

	// Second judgment conflicts.
	rec = fix.do(t, http.MethodPut, "/feedback/"+entry.ID, map[string]any{
		"status": "good",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFeedbackGeneratedProvenance(t *testing.T) {
	t.Parallel()

	fix := newServer(t)

	rec := fix.do(t, http.MethodPost, "/feedback", map[string]any{
		"customerMessage": "Magst du Tiere?",
		"aiResponse":      "Sehr, ich habe zwei Katzen zuhause.",
		"isGenerated":     true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	entry := decode[feedback.Entry](t, rec)
	assert.True(t, entry.IsGenerated)

	rec = fix.do(t, http.MethodPut, "/feedback/"+entry.ID, map[string]any{
		"status": "good",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	examples, err := fix.corpus.Examples(context.Background())
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, corpus.SourceFeedbackGenerated, examples[0].Source)
}

func TestFeedbackNotFound(t *testing.T) {
	t.Parallel()

	fix := newServer(t)

	rec := fix.do(t, http.MethodGet, "/feedback/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := decode[map[string]string](t, rec)
	assert.NotEmpty(t, body["error"])
}

func TestTrainingDataCRUD(t *testing.T) {
	t.Parallel()

	fix := newServer(t)

	rec := fix.do(t, http.MethodPost, "/training-data", map[string]any{
		"customerMessage":   "Magst du Kino?",
		"moderatorResponse": "Sehr gerne, alte Filme vor allem. Du auch?",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = fix.do(t, http.MethodGet, "/training-data", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	examples := decode[[]corpus.Example](t, rec)
	require.Len(t, examples, 1)
	assert.Equal(t, corpus.SourceManual, examples[0].Source)

	rec = fix.do(t, http.MethodDelete, "/training-data/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fix.do(t, http.MethodDelete, "/training-data/0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetrainInsufficientDataIsBadRequest(t *testing.T) {
	t.Parallel()

	fix := newServer(t)

	rec := fix.do(t, http.MethodPost, "/fine-tuning/retrain", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode[map[string]string](t, rec)
	assert.Contains(t, body["error"], "10")
}

func TestFineTuningStatusIdle(t *testing.T) {
	t.Parallel()

	fix := newServer(t)

	rec := fix.do(t, http.MethodGet, "/fine-tuning/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	state := decode[finetune.State](t, rec)
	assert.Equal(t, finetune.StatusIdle, state.Status)
}

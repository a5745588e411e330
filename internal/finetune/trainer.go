package finetune

import (
	"bytes"
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// TrainingService is the fine-tuning surface the orchestrator talks to.
// Tests provide a fake implementation.
type TrainingService interface {
	// UploadFile uploads JSONL training data and returns the file ID.
	UploadFile(ctx context.Context, name string, data []byte) (string, error)
	// CreateJob starts a fine-tuning job on the uploaded file.
	CreateJob(ctx context.Context, fileID, baseModel string) (*openai.FineTuningJob, error)
	// GetJob fetches the current state of a job.
	GetJob(ctx context.Context, jobID string) (*openai.FineTuningJob, error)
	// ListJobs lists the most recent jobs.
	ListJobs(ctx context.Context, limit int) ([]openai.FineTuningJob, error)
}

// openaiTrainer implements TrainingService on the OpenAI client.
type openaiTrainer struct {
	client *openai.Client
}

// NewTrainingService creates a TrainingService over the given client.
func NewTrainingService(client *openai.Client) TrainingService {
	return &openaiTrainer{client: client}
}

func (t *openaiTrainer) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	file, err := t.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(bytes.NewReader(data), name, "application/jsonl"),
		Purpose: openai.FilePurposeFineTune,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload training file: %w", err)
	}

	return file.ID, nil
}

func (t *openaiTrainer) CreateJob(ctx context.Context, fileID, baseModel string) (*openai.FineTuningJob, error) {
	job, err := t.client.FineTuning.Jobs.New(ctx, openai.FineTuningJobNewParams{
		Model:        openai.FineTuningJobNewParamsModel(baseModel),
		TrainingFile: fileID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fine-tuning job: %w", err)
	}

	return job, nil
}

func (t *openaiTrainer) GetJob(ctx context.Context, jobID string) (*openai.FineTuningJob, error) {
	job, err := t.client.FineTuning.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fine-tuning job: %w", err)
	}

	return job, nil
}

func (t *openaiTrainer) ListJobs(ctx context.Context, limit int) ([]openai.FineTuningJob, error) {
	page, err := t.client.FineTuning.Jobs.List(ctx, openai.FineTuningJobListParams{
		Limit: openai.Int(int64(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list fine-tuning jobs: %w", err)
	}

	return page.Data, nil
}

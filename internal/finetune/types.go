package finetune

import (
	"errors"
	"time"
)

// JobStatus is the lifecycle state of the fine-tuning orchestrator.
type JobStatus string

const (
	StatusIdle      JobStatus = "idle"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

var (
	// ErrInsufficientData is returned when fewer qualifying examples exist
	// than the configured minimum.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrJobAlreadyRunning is returned when a retrain is requested while a
	// job is in flight.
	ErrJobAlreadyRunning = errors.New("fine-tuning job already running")
)

// FilterSnapshot is the audit record of the last safety-filter run.
type FilterSnapshot struct {
	Safe              int            `json:"safe"`
	Warnings          int            `json:"warnings"`
	Flagged           int            `json:"flagged"`
	FlaggedCategories map[string]int `json:"flaggedCategories,omitempty"`
	FlaggedMessages   []string       `json:"flaggedMessages,omitempty"`
	Degraded          bool           `json:"degraded,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
}

// State is the process-wide fine-tuning record, persisted between runs.
// CurrentJobID is non-empty exactly while Status is running.
type State struct {
	ModelID               string          `json:"modelId,omitempty"`
	CurrentJobID          string          `json:"currentJobId,omitempty"`
	Status                JobStatus       `json:"status"`
	TrainingExamplesCount int             `json:"trainingExamplesCount"`
	NextRetrainAt         int             `json:"nextRetrainAt,omitempty"`
	LastFiltered          *FilterSnapshot `json:"lastFilteredExamples,omitempty"`
	LastError             string          `json:"lastError,omitempty"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// Candidate is one training pair headed into the safety filter.
type Candidate struct {
	// UserContent is what the fine-tuned model sees as the user message.
	UserContent string
	// AssistantContent is the desired reply.
	AssistantContent string
}

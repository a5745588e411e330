package feedback

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a feedback entry.
type Status string

const (
	// StatusPending marks a freshly generated reply awaiting judgment.
	StatusPending Status = "pending"
	// StatusGood marks an unmodified acceptance.
	StatusGood Status = "good"
	// StatusEdited marks a human rewrite.
	StatusEdited Status = "edited"
)

// ASASentinel is the customer-message literal stored for reactivation
// entries, which have no real customer message.
const ASASentinel = "ASA Reaktivierung"

// ContextSnapshot captures the conversation surroundings at generation time.
type ContextSnapshot struct {
	CustomerName         string    `json:"customerName,omitempty"`
	CustomerAge          int       `json:"customerAge,omitempty"`
	ModeratorProfileName string    `json:"moderatorProfileName,omitempty"`
	SessionStart         time.Time `json:"sessionStart,omitempty"`
	LastModeratorMessage string    `json:"lastModeratorMessage,omitempty"`
}

// Entry is one judged (or not yet judged) generation attempt.
type Entry struct {
	ID              string           `json:"id"`
	ChatID          string           `json:"chatId,omitempty"`
	CustomerMessage string           `json:"customerMessage"`
	AIResponse      string           `json:"aiResponse"`
	EditedResponse  string           `json:"editedResponse,omitempty"`
	Status          Status           `json:"status"`
	IsASA           bool             `json:"isASA,omitempty"`
	IsGenerated     bool             `json:"isGenerated,omitempty"`
	Situation       string           `json:"situation,omitempty"`
	Situations      []string         `json:"situations,omitempty"`
	Reasoning       string           `json:"reasoning,omitempty"`
	UsedExampleIDs  []string         `json:"usedExampleIds,omitempty"`
	Context         *ContextSnapshot `json:"context,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// SetSituation replaces the situation tag on both fields.
func (e *Entry) SetSituation(situation string) {
	e.Situation = situation
	e.Situations = []string{situation}
	e.UpdatedAt = time.Now().UTC()
}

// Normalize keeps the joined and decomposed situation fields consistent.
func (e *Entry) Normalize() {
	switch {
	case len(e.Situations) > 0:
		e.Situation = strings.Join(e.Situations, ", ")
	case e.Situation != "":
		parts := strings.Split(e.Situation, ",")
		e.Situations = e.Situations[:0]

		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part != "" {
				e.Situations = append(e.Situations, part)
			}
		}
	}
}

// EffectiveResponse is the text a promotion trains on: the edit if present,
// the original AI reply otherwise.
func (e *Entry) EffectiveResponse() string {
	if e.EditedResponse != "" {
		return e.EditedResponse
	}

	return e.AIResponse
}

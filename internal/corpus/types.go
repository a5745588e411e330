package corpus

import (
	"strings"
	"time"
)

// Source describes where a training example came from.
type Source string

const (
	SourceManual                Source = "manual"
	SourceFeedbackGood          Source = "feedback_good"
	SourceFeedbackEdited        Source = "feedback_edited"
	SourceFeedbackGenerated     Source = "feedback_generated"
	SourceFeedbackGeneratedEdit Source = "feedback_generated_edited"
)

// Example is one (customer message, moderator reply) pair in the training
// corpus. Situation is the human-readable comma-joined label, Situations the
// decomposed form; both are persisted because older records only carried
// Situation.
type Example struct {
	CustomerMessage   string   `json:"customerMessage"`
	ModeratorResponse string   `json:"moderatorResponse"`
	Situation         string   `json:"situation"`
	Situations        []string `json:"situations,omitempty"`
	IsNegativeExample bool     `json:"isNegativeExample,omitempty"`
	Explanation       string   `json:"explanation,omitempty"`
	// OriginalResponse keeps the unedited AI reply of an edited feedback
	// promotion for reference. It is never trained on.
	OriginalResponse string     `json:"originalResponse,omitempty"`
	Source           Source     `json:"source,omitempty"`
	FeedbackID       string     `json:"feedbackId,omitempty"`
	Priority         bool       `json:"priority,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// ASAExample is a reactivation example used when no real customer message
// exists. Kept in its own collection, never mixed into the normal examples.
type ASAExample struct {
	CustomerType string    `json:"customerType"`
	LastTopic    string    `json:"lastTopic,omitempty"`
	ASAMessage   string    `json:"asaMessage"`
	Source       Source    `json:"source,omitempty"`
	FeedbackID   string    `json:"feedbackId,omitempty"`
	Priority     bool      `json:"priority,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Normalize keeps the joined and decomposed situation fields consistent.
// The decomposed form wins when both are set; otherwise the populated one is
// derived into the other.
func (e *Example) Normalize() {
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

// HasSituation reports whether the example is tagged with the situation.
func (e *Example) HasSituation(situation string) bool {
	for _, s := range e.Situations {
		if strings.EqualFold(s, situation) {
			return true
		}
	}

	return strings.EqualFold(e.Situation, situation)
}

// SetSituation replaces the situation tag on both fields.
func (e *Example) SetSituation(situation string) {
	e.Situation = situation
	e.Situations = []string{situation}
	e.UpdatedAt = time.Now().UTC()
}

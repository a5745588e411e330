package pipeline

import "github.com/chatmod/chatmod/internal/feedback"

// Conversation roles as they appear in history turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of the conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one generation request.
type Request struct {
	// Message is the customer message to reply to. Empty for ASA requests.
	Message string
	// History is the prior conversation, oldest first.
	History []Turn
	// ChatID links the resulting ledger entry to a conversation.
	ChatID string
	// IsASA requests a reactivation message instead of a reply.
	IsASA bool
	// ImageURLs are optional customer image attachments.
	ImageURLs []string
	// Context is the conversation snapshot stored with the ledger entry.
	Context *feedback.ContextSnapshot
	// ExtraInstruction is appended to the prompt, used for variation requests.
	ExtraInstruction string
	// SkipLedger suppresses the pending ledger entry, used for variation
	// generation where the parent entry already exists.
	SkipLedger bool
}

// Result is the outcome of a generation request.
type Result struct {
	// Reply is the final text, after validation and possible regeneration.
	Reply string `json:"reply"`
	// Situations are the matched policy categories, in rule order.
	Situations []string `json:"situations"`
	// Retried reports whether the bounded regeneration was taken.
	Retried bool `json:"retried"`
	// Warnings lists validation rules the delivered text still violates.
	Warnings []string `json:"warnings,omitempty"`
	// FeedbackID references the pending ledger entry, if one was created.
	FeedbackID string `json:"feedbackId,omitempty"`
	// UsedExampleIDs references the corpus records injected into the prompt.
	UsedExampleIDs []string `json:"usedExampleIds,omitempty"`
}

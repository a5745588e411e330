package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chatmod/chatmod/internal/ai/client"
	"github.com/chatmod/chatmod/internal/corpus"
	"github.com/chatmod/chatmod/internal/feedback"
	"github.com/chatmod/chatmod/internal/policy"
	"github.com/chatmod/chatmod/internal/policy/classifier"
	"github.com/openai/openai-go"
	"go.uber.org/zap"
)

// Pipeline runs one generation request to completion: classify, assemble,
// complete, validate, regenerate at most once, record.
type Pipeline struct {
	chat       client.ChatCompletions
	policy     *policy.Store
	corpus     *corpus.Store
	classifier *classifier.Classifier
	assembler  *Assembler
	validator  *Validator
	ledger     *feedback.Ledger
	httpClient *http.Client
	logger     *zap.Logger
	model      string
}

// New creates a Pipeline.
func New(
	chat client.ChatCompletions, policyStore *policy.Store, corpusStore *corpus.Store,
	cls *classifier.Classifier, assembler *Assembler, ledger *feedback.Ledger,
	model string, logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		chat:       chat,
		policy:     policyStore,
		corpus:     corpusStore,
		classifier: cls,
		assembler:  assembler,
		validator:  NewValidator(),
		ledger:     ledger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.Named("pipeline"),
		model:      model,
	}
}

// Reply generates a moderator reply for the request. Generation failures are
// fatal; validation failures never are. The delivered text is always the best
// available one, with remaining violations reported as warnings.
func (p *Pipeline) Reply(ctx context.Context, req *Request) (*Result, error) {
	cfg := p.policyConfig(ctx)

	prompt, situations, usedIDs, err := p.assemble(ctx, req, cfg)
	if err != nil {
		return nil, err
	}

	messages, err := p.requestMessages(ctx, req, prompt)
	if err != nil {
		return nil, err
	}

	reply, err := p.complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Situations:     situations,
		UsedExampleIDs: usedIDs,
	}

	cleaned, findings := p.validator.Check(reply, req.History, cfg)
	if len(findings) > 0 {
		cleaned = p.regenerate(ctx, messages, reply, cleaned, findings, cfg, result)
	}

	result.Reply = cleaned

	if !req.SkipLedger {
		p.recordPending(ctx, req, result)
	}

	return result, nil
}

// GenerateVariations produces n alternative replies for a judged feedback
// entry. Each variation carries a diversity instruction naming the texts it
// must differ from. No ledger entries are created.
func (p *Pipeline) GenerateVariations(ctx context.Context, entry *feedback.Entry, n int) ([]string, error) {
	variations := make([]string, 0, n)

	for i := 0; i < n; i++ {
		known := append([]string{entry.EffectiveResponse()}, variations...)

		result, err := p.Reply(ctx, &Request{
			Message:    entry.CustomerMessage,
			IsASA:      entry.IsASA,
			SkipLedger: true,
			ExtraInstruction: "Formuliere eine deutlich andere Antwort als diese bisherigen Varianten:\n- " +
				strings.Join(known, "\n- "),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to generate variation %d: %w", i+1, err)
		}

		variations = append(variations, result.Reply)
	}

	return variations, nil
}

// policyConfig loads the current policy, degrading to the built-in defaults
// when even the mirrored copy is unreadable. Generation must not fail on a
// policy read.
func (p *Pipeline) policyConfig(ctx context.Context) *policy.Config {
	cfg, err := p.policy.Get(ctx)
	if err != nil {
		p.logger.Warn("Failed to load policy, generating with default rules", zap.Error(err))

		cfg = &policy.Config{}
		cfg.MergeDefaults()
	}

	return cfg
}

func (p *Pipeline) assemble(
	ctx context.Context, req *Request, cfg *policy.Config,
) (prompt string, situations, usedIDs []string, err error) {
	if req.IsASA {
		prompt, err = p.assembleASA(ctx, req, cfg)

		return prompt, []string{policy.ASASituation}, nil, err
	}

	situations = p.classifier.Classify(req.Message, cfg)
	primary := p.classifier.DetectPrimary(req.Message, cfg)

	all, err := p.corpus.Examples(ctx)
	if err != nil {
		p.logger.Warn("Failed to load training examples, assembling without", zap.Error(err))
	}

	selected := corpus.SelectRelevant(all, req.Message, primary, 0)
	for i := range selected {
		if selected[i].FeedbackID != "" {
			usedIDs = append(usedIDs, selected[i].FeedbackID)
		}
	}

	prompt, err = p.assembler.Build(req.Message, req.History, situations, cfg, selected)
	if err != nil {
		return "", nil, nil, err
	}

	return p.withExtraInstruction(prompt, req), situations, usedIDs, nil
}

func (p *Pipeline) assembleASA(ctx context.Context, req *Request, cfg *policy.Config) (string, error) {
	examples, err := p.corpus.ASAExamples(ctx)
	if err != nil {
		p.logger.Warn("Failed to load ASA examples, assembling without", zap.Error(err))
	}

	lastTopic := ""
	if req.Context != nil {
		lastTopic = req.Context.LastModeratorMessage
	}

	prompt, err := p.assembler.BuildASA(lastTopic, req.History, cfg, examples)
	if err != nil {
		return "", err
	}

	return p.withExtraInstruction(prompt, req), nil
}

func (p *Pipeline) withExtraInstruction(prompt string, req *Request) string {
	if req.ExtraInstruction == "" {
		return prompt
	}

	return prompt + "\n## ZUSÄTZLICHE ANWEISUNG\n" + req.ExtraInstruction + "\n"
}

// requestMessages builds the chat messages, attaching any images as data
// URIs. An attachment that cannot be fetched fails the request; the reply
// would otherwise silently ignore what the customer sent.
func (p *Pipeline) requestMessages(
	ctx context.Context, req *Request, prompt string,
) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(SystemPrompt),
		openai.UserMessage(prompt),
	}

	for _, url := range req.ImageURLs {
		dataURI, err := FetchImageDataURI(ctx, p.httpClient, url)
		if err != nil {
			return nil, fmt.Errorf("failed to attach image: %w", err)
		}

		imagePart := openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURI,
		})
		messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{imagePart}))
	}

	return messages, nil
}

func (p *Pipeline) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := p.chat.NewWithRetry(ctx, openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       p.model,
		Temperature: openai.Float(0.8),
	})
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	return resp.Choices[0].Message.Content, nil
}

// regenerate performs the single bounded retry with an itemized correction
// prompt. The regenerated text is used even when the reduced recheck still
// fails; remaining violations become warnings on the result.
func (p *Pipeline) regenerate(
	ctx context.Context, messages []openai.ChatCompletionMessageParamUnion,
	original, cleaned string, findings []Finding, cfg *policy.Config, result *Result,
) string {
	result.Retried = true

	p.logger.Info("Validation failed, regenerating once",
		zap.Int("findings", len(findings)))

	retryMessages := append(messages,
		openai.AssistantMessage(original),
		openai.UserMessage(correctionPrompt(findings)),
	)

	regenerated, err := p.complete(ctx, retryMessages)
	if err != nil {
		// Keep the first reply rather than failing the request.
		p.logger.Warn("Regeneration failed, delivering original reply", zap.Error(err))

		for _, finding := range findings {
			result.Warnings = append(result.Warnings, finding.Detail)
		}

		return cleaned
	}

	recleaned, remaining := p.validator.CheckRetry(regenerated, cfg)

	for _, finding := range remaining {
		result.Warnings = append(result.Warnings, finding.Detail)
	}

	if len(remaining) > 0 {
		p.logger.Warn("Regenerated reply still violates rules, delivering anyway",
			zap.Strings("warnings", result.Warnings))
	}

	return recleaned
}

// correctionPrompt renders the itemized regeneration instruction.
func correctionPrompt(findings []Finding) string {
	var b strings.Builder

	b.WriteString("Deine Antwort verstößt gegen folgende Regeln:\n")

	for _, finding := range findings {
		b.WriteString("- ")
		b.WriteString(string(finding.Type))
		b.WriteString(": ")
		b.WriteString(finding.Detail)
		b.WriteString("\n")
	}

	b.WriteString("\nSchreibe die Antwort neu und behebe alle genannten Punkte. Nur den Antworttext.")

	return b.String()
}

// recordPending writes the pending ledger entry for the delivered reply.
// Failure to record is logged; the reply is delivered regardless.
func (p *Pipeline) recordPending(ctx context.Context, req *Request, result *Result) {
	entry := feedback.Entry{
		ChatID:          req.ChatID,
		CustomerMessage: req.Message,
		AIResponse:      result.Reply,
		IsASA:           req.IsASA,
		Situations:      result.Situations,
		UsedExampleIDs:  result.UsedExampleIDs,
		Context:         req.Context,
	}

	if len(result.Warnings) > 0 {
		entry.Reasoning = "Regeln verletzt: " + strings.Join(result.Warnings, "; ")
	}

	created, err := p.ledger.Create(ctx, entry)
	if err != nil {
		p.logger.Error("Failed to record pending feedback entry", zap.Error(err))

		return
	}

	result.FeedbackID = created.ID
}

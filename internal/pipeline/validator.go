package pipeline

import (
	"fmt"
	"strings"

	"github.com/chatmod/chatmod/internal/policy"
	"github.com/chatmod/chatmod/pkg/utils"
)

// FindingType names a validation rule.
type FindingType string

const (
	FindingForbiddenWord     FindingType = "forbidden_word"
	FindingMetaCommentary    FindingType = "meta_commentary"
	FindingFormalPhrasing    FindingType = "formal_phrasing"
	FindingEchoLoop          FindingType = "echo_loop"
	FindingImproperRefusal   FindingType = "improper_refusal"
	FindingSelfRepetition    FindingType = "self_repetition"
	FindingExcessiveEmphasis FindingType = "excessive_emphasis"
)

// Finding is one fired validation rule.
type Finding struct {
	Type FindingType `json:"type"`
	// Detail is human readable and, for echo-loop and refusal findings,
	// quotes the customer's answer so the correction prompt can cite it.
	Detail string `json:"detail"`
}

// Validator runs the post-generation rule battery.
type Validator struct {
	normalizer *utils.TextNormalizer
}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{normalizer: utils.NewTextNormalizer()}
}

// Patterns are stored in normalized form (lowercase, diacritics stripped)
// because all checks run on normalized text.
var (
	metaCommentaryPatterns = []string{
		"das ist eine direkte frage",
		"das ist eine sehr direkte",
		"das ist eine intime frage",
		"das klingt intensiv",
		"das fuhlt sich intensiv an",
		"das wirkt sehr intim",
		"deine nachricht zeigt",
		"ich nehme wahr, dass",
		"es ist wichtig, dass du",
		"es ist vollig in ordnung, dass",
		"als ki",
		"als sprachmodell",
		"als assistent",
		"in meiner rolle",
	}

	formalPhrasingPatterns = []string{
		"sehr geehrte",
		"mit freundlichen grussen",
		"diesbezuglich",
		"des weiteren",
		"daruber hinaus mochte ich",
		"ich wurde ihnen",
		"sie haben",
		"konnen sie mir",
	}

	refusalPatterns = []string{
		"darauf kann ich nicht eingehen",
		"darauf mochte ich nicht eingehen",
		"dazu kann ich nichts sagen",
		"dazu kann ich leider nichts",
		"das kann ich leider nicht beantworten",
		"daruber kann ich nicht sprechen",
	}
)

const (
	// echoHistoryTurns is how many prior assistant turns the echo-loop check
	// looks back over.
	echoHistoryTurns = 3
	// echoOverlapThreshold is the question token overlap above which a reply
	// counts as repeating a prior question.
	echoOverlapThreshold = 0.6
	// repetitionHistoryTurns is how many prior assistant turns the
	// self-repetition check looks back over.
	repetitionHistoryTurns = 5
	// repetitionWindow is the sliding substring width of the self-repetition
	// check.
	repetitionWindow = 15
	// repetitionThreshold is the window coverage above which two messages
	// count as repeats of each other.
	repetitionThreshold = 0.3
)

// Check runs the full rule battery over a fresh generation. The returned
// text always has excessive emphasis rewritten, findings or not.
func (v *Validator) Check(reply string, history []Turn, cfg *policy.Config) (string, []Finding) {
	var findings []Finding

	cleaned, rewritten := RewriteEmphasis(reply)
	if rewritten {
		findings = append(findings, Finding{
			Type:   FindingExcessiveEmphasis,
			Detail: "mehr als ein Ausrufezeichen",
		})
	}

	normalized := v.normalizer.Normalize(cleaned)

	findings = append(findings, v.checkForbiddenWords(normalized, cfg)...)
	findings = append(findings, v.checkPatterns(normalized, metaCommentaryPatterns, FindingMetaCommentary)...)
	findings = append(findings, v.checkPatterns(normalized, formalPhrasingPatterns, FindingFormalPhrasing)...)
	findings = append(findings, v.checkEchoLoop(normalized, history)...)
	findings = append(findings, v.checkImproperRefusal(normalized, history)...)
	findings = append(findings, v.checkSelfRepetition(normalized, history)...)

	return cleaned, findings
}

// CheckRetry runs the reduced battery applied to a regenerated reply:
// forbidden words and meta commentary only.
func (v *Validator) CheckRetry(reply string, cfg *policy.Config) (string, []Finding) {
	cleaned, _ := RewriteEmphasis(reply)
	normalized := v.normalizer.Normalize(cleaned)

	var findings []Finding
	findings = append(findings, v.checkForbiddenWords(normalized, cfg)...)
	findings = append(findings, v.checkPatterns(normalized, metaCommentaryPatterns, FindingMetaCommentary)...)

	return cleaned, findings
}

// RewriteEmphasis keeps the first exclamation mark and turns every further
// one into a period.
func RewriteEmphasis(s string) (string, bool) {
	if strings.Count(s, "!") <= 1 {
		return s, false
	}

	var b strings.Builder

	b.Grow(len(s))

	seen := false

	for _, r := range s {
		if r != '!' {
			b.WriteRune(r)
			continue
		}

		if seen {
			b.WriteRune('.')
		} else {
			b.WriteRune('!')
			seen = true
		}
	}

	return b.String(), true
}

func (v *Validator) checkForbiddenWords(normalized string, cfg *policy.Config) []Finding {
	var findings []Finding

	for _, word := range cfg.ForbiddenWords {
		if utils.ContainsWord(normalized, v.normalizer.Normalize(word)) {
			findings = append(findings, Finding{
				Type:   FindingForbiddenWord,
				Detail: fmt.Sprintf("verbotenes Wort %q", word),
			})
		}
	}

	return findings
}

func (v *Validator) checkPatterns(normalized string, patterns []string, kind FindingType) []Finding {
	for _, pattern := range patterns {
		if strings.Contains(normalized, pattern) {
			return []Finding{{
				Type:   kind,
				Detail: fmt.Sprintf("Formulierung %q", pattern),
			}}
		}
	}

	return nil
}

// checkEchoLoop flags the reply repeating a question already asked in the
// recent assistant turns while the customer has since given a concrete
// answer. Asking again means ignoring that answer.
func (v *Validator) checkEchoLoop(normalized string, history []Turn) []Finding {
	answer, ok := lastConcreteAnswer(history)
	if !ok {
		return nil
	}

	questions := extractQuestions(normalized)
	if len(questions) == 0 {
		return nil
	}

	for _, turn := range lastAssistantTurns(history, echoHistoryTurns) {
		for _, prior := range extractQuestions(v.normalizer.Normalize(turn)) {
			for _, question := range questions {
				if utils.TokenOverlap(question, prior) > echoOverlapThreshold {
					return []Finding{{
						Type:   FindingEchoLoop,
						Detail: fmt.Sprintf("Frage wurde bereits gestellt und beantwortet: %q", answer),
					}}
				}
			}
		}
	}

	return nil
}

// checkImproperRefusal flags a canned refusal when the customer only
// answered a question the assistant itself asked.
func (v *Validator) checkImproperRefusal(normalized string, history []Turn) []Finding {
	refused := false

	for _, pattern := range refusalPatterns {
		if strings.Contains(normalized, pattern) {
			refused = true
			break
		}
	}

	if !refused {
		return nil
	}

	answer, ok := lastConcreteAnswer(history)
	if !ok {
		return nil
	}

	assistant := lastAssistantTurns(history, 1)
	if len(assistant) == 0 || !strings.Contains(assistant[0], "?") {
		return nil
	}

	return []Finding{{
		Type:   FindingImproperRefusal,
		Detail: fmt.Sprintf("Kunde hat nur auf deine Frage geantwortet: %q", answer),
	}}
}

func (v *Validator) checkSelfRepetition(normalized string, history []Turn) []Finding {
	for _, turn := range lastAssistantTurns(history, repetitionHistoryTurns) {
		prior := v.normalizer.Normalize(turn)

		coverage := utils.WindowCoverage(normalized, prior, repetitionWindow)
		if coverage > repetitionThreshold {
			return []Finding{{
				Type:   FindingSelfRepetition,
				Detail: fmt.Sprintf("wiederholt eine frühere Antwort zu %.0f%%", coverage*100),
			}}
		}
	}

	return nil
}

// lastConcreteAnswer returns the customer's most recent message when it
// reads like an actual answer rather than a question or a throwaway.
func lastConcreteAnswer(history []Turn) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != RoleUser {
			continue
		}

		content := strings.TrimSpace(history[i].Content)
		if len(content) < 10 || strings.HasSuffix(content, "?") {
			return "", false
		}

		return content, true
	}

	return "", false
}

// lastAssistantTurns returns up to n most recent assistant messages, newest
// first.
func lastAssistantTurns(history []Turn, n int) []string {
	var turns []string

	for i := len(history) - 1; i >= 0 && len(turns) < n; i-- {
		if history[i].Role == RoleAssistant {
			turns = append(turns, history[i].Content)
		}
	}

	return turns
}

// extractQuestions splits text into sentences and keeps the ones ending in a
// question mark.
func extractQuestions(text string) []string {
	var questions []string

	start := 0

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '?':
			question := strings.TrimSpace(text[start : i+1])
			if question != "" {
				questions = append(questions, question)
			}

			start = i + 1
		case '.', '!':
			start = i + 1
		}
	}

	return questions
}

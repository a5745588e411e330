// Package classifier maps free-text customer messages to named policy
// situations. Matching is a deterministic keyword heuristic: situation names
// and their tokens are checked as substrings, and a fixed table of hand-coded
// detectors covers the situations that need more than substring matching.
package classifier

import (
	"strings"

	"github.com/chatmod/chatmod/internal/policy"
	"github.com/chatmod/chatmod/pkg/utils"
)

// negationWindow is the maximum distance in bytes between a bot keyword and a
// negation term for the negation to suppress the bot-accusation match.
const negationWindow = 50

// Classifier evaluates situation rules against customer messages.
type Classifier struct {
	normalizer *utils.TextNormalizer
	detectors  map[string]detectorFunc
}

type detectorFunc func(c *Classifier, message string) bool

// New creates a classifier.
func New() *Classifier {
	c := &Classifier{
		normalizer: utils.NewTextNormalizer(),
	}

	// Detector ids double as the default situation names they back.
	c.detectors = map[string]detectorFunc{
		"bot-vorwurf":         (*Classifier).detectBotAccusation,
		"moderator-identität": (*Classifier).detectModeratorIdentity,
		"sexuell":             (*Classifier).detectSexualTopic,
		"beruf":               (*Classifier).detectJobQuestion,
		"treffen":             (*Classifier).detectMeetingRequest,
		"geld":                (*Classifier).detectMoneyTopic,
	}

	return c
}

// Classify returns every situation whose rule matches the message, in rule
// order. Overlapping detectors may double-fire; that redundancy is wanted so
// all applicable policies reach the prompt.
func (c *Classifier) Classify(message string, cfg *policy.Config) []string {
	if message == "" || cfg == nil {
		return nil
	}

	normalized := c.normalizer.Normalize(message)

	var matched []string

	for _, rule := range cfg.Situations {
		if c.ruleMatches(rule.ID, message, normalized) {
			matched = append(matched, rule.ID)
		}
	}

	return matched
}

// DetectPrimary returns the single best-guess situation: the first matching
// rule, or the generic label when nothing matches.
func (c *Classifier) DetectPrimary(message string, cfg *policy.Config) string {
	if message == "" || cfg == nil {
		return policy.GenericSituation
	}

	normalized := c.normalizer.Normalize(message)

	for _, rule := range cfg.Situations {
		if rule.ID == policy.GenericSituation {
			continue
		}

		if c.ruleMatches(rule.ID, message, normalized) {
			return rule.ID
		}
	}

	return policy.GenericSituation
}

// ruleMatches decides whether one rule applies. Rules backed by a hand-coded
// detector use the detector alone: the negation and modal suppression logic
// would be defeated if a plain token match of the rule name could still fire.
// All other rules match on the full name or any name token as substring.
func (c *Classifier) ruleMatches(id, message, normalized string) bool {
	if detector, ok := c.detectors[id]; ok {
		return detector(c, normalized)
	}

	// Full situation name as substring
	if c.normalizer.Contains(message, id) {
		return true
	}

	// Any name token longer than 2 runes as substring
	for _, token := range utils.Tokenize(id, 2) {
		if strings.Contains(normalized, c.normalizer.Normalize(token)) {
			return true
		}
	}

	return false
}

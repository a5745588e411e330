package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SituationRule pairs a situation name with the instruction text injected
// into the prompt when the situation matches. Rules are evaluated in order;
// the persisted document order is authoritative.
type SituationRule struct {
	ID           string `json:"id"`
	Instructions string `json:"instructions"`
}

// Config is the mutable moderation policy: forbidden and preferred vocabulary,
// free-text general rules, and the ordered situational rule list.
type Config struct {
	ForbiddenWords []string      `json:"forbiddenWords"`
	PreferredWords []string      `json:"preferredWords"`
	GeneralRules   string        `json:"generalRules"`
	Situations     SituationList `json:"situationalResponses"`
}

// SituationList is an ordered set of situation rules that serializes to the
// legacy document shape: a JSON object keyed by situation name, iterated in
// insertion order.
type SituationList []SituationRule

// Get returns the rule with the given id.
func (l SituationList) Get(id string) (SituationRule, bool) {
	for _, rule := range l {
		if rule.ID == id {
			return rule, true
		}
	}

	return SituationRule{}, false
}

// Set replaces the instructions of an existing rule or appends a new one.
func (l *SituationList) Set(id, instructions string) {
	for i, rule := range *l {
		if rule.ID == id {
			(*l)[i].Instructions = instructions
			return
		}
	}

	*l = append(*l, SituationRule{ID: id, Instructions: instructions})
}

// Delete removes the rule with the given id, reporting whether it existed.
func (l *SituationList) Delete(id string) bool {
	for i, rule := range *l {
		if rule.ID == id {
			*l = append((*l)[:i], (*l)[i+1:]...)
			return true
		}
	}

	return false
}

// MarshalJSON renders the list as a JSON object in list order.
func (l SituationList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, rule := range l {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(rule.ID)
		if err != nil {
			return nil, err
		}

		val, err := json.Marshal(rule.Instructions)
		if err != nil {
			return nil, err
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON parses a JSON object preserving key order. The token-level
// decoder is used because order-preserving object decoding is not available
// through the regular map path.
func (l *SituationList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("situationalResponses: expected JSON object, got %v", tok)
	}

	var rules SituationList

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}

		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("situationalResponses: unexpected key token %v", keyTok)
		}

		var instructions string
		if err := dec.Decode(&instructions); err != nil {
			return fmt.Errorf("situationalResponses[%s]: %w", key, err)
		}

		rules = append(rules, SituationRule{ID: key, Instructions: instructions})
	}

	*l = rules

	return nil
}

// GenericSituation is the label used when no specific situation matches.
const GenericSituation = "allgemein"

// ASASituation is the fixed label attached to reactivation examples.
const ASASituation = "asa reaktivierung"

// DefaultSituations is the fixed set of situations that must always be
// present. Missing ones are merged in on every load; existing instruction
// text is never overwritten.
func DefaultSituations() SituationList {
	return SituationList{
		{
			ID: "treffen",
			Instructions: "Der Kunde möchte sich treffen. Weiche charmant aus, ohne das Treffen " +
				"direkt abzulehnen. Verwende keine konkreten Orts- oder Zeitangaben und stelle " +
				"eine Gegenfrage, die das Gespräch weiterführt.",
		},
		{
			ID: "bot-vorwurf",
			Instructions: "Der Kunde vermutet, mit einem Bot oder einer KI zu schreiben. Reagiere " +
				"locker und menschlich, leicht amüsiert, niemals defensiv. Beziehe dich auf etwas " +
				"Konkretes aus dem Gespräch.",
		},
		{
			ID: "sexuell",
			Instructions: "Das Gespräch hat ein sexuelles Thema. Bleibe im Flirt-Ton des Profils, " +
				"spiegele das Niveau des Kunden, werde aber nie expliziter als er.",
		},
		{
			ID: "geld",
			Instructions: "Der Kunde spricht über Geld, Coins oder Kosten. Gehe nicht auf " +
				"Preisdetails ein und lenke freundlich zurück auf das persönliche Gespräch.",
		},
		{
			ID: "moderator-identität",
			Instructions: "Der Kunde fragt, wer wirklich schreibt oder ob du hier arbeitest. " +
				"Bleibe in der Rolle des Profils und antworte ausweichend-humorvoll.",
		},
		{
			ID: "beruf",
			Instructions: "Der Kunde fragt nach Beruf oder Arbeit. Antworte passend zu den " +
				"Profilangaben und stelle eine Rückfrage zu seinem Alltag.",
		},
		{
			ID: GenericSituation,
			Instructions: "Keine besondere Situation. Antworte natürlich, persönlich und mit " +
				"einer offenen Frage am Ende.",
		},
	}
}

// MergeDefaults inserts any default situation missing from the config.
// Custom entries and customized instruction text are left untouched.
// Calling it repeatedly yields the same result as calling it once.
func (c *Config) MergeDefaults() {
	for _, def := range DefaultSituations() {
		if _, ok := c.Situations.Get(def.ID); !ok {
			c.Situations = append(c.Situations, def)
		}
	}
}

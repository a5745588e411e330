package classifier

import "strings"

// Keyword tables for the hand-coded detectors. All entries are in normalized
// form (lowercase, diacritics stripped) because detectors run on normalized
// messages.
var (
	botKeywords = []string{
		"bot", "roboter", "ki ", " ki", "kuenstliche intelligenz", "kunstliche intelligenz",
		"computer", "maschine", "fake", "automatisch", "programm", "chatgpt",
	}

	negationTerms = []string{
		"nicht", "kein", "keine", "niemals", "nie ", "glaube nicht", "denke nicht", "bestimmt nicht",
	}

	moderatorKeywords = []string{
		"wer bist du wirklich", "arbeitest du hier", "wirst du bezahlt", "moderator",
		"schreibst du wirklich", "bist du echt", "echtes profil", "wer schreibt hier",
	}

	sexualKeywords = []string{
		"sex", "geil", "heiss", "heiß", "nackt", "bett", "lust", "intim", "erotisch", "begehren",
	}

	jobKeywords = []string{
		"was arbeitest du", "was machst du beruflich", "dein beruf", "dein job",
		"wo arbeitest du", "arbeit", "beruflich",
	}

	meetingKeywords = []string{
		"treffen", "date", "sehen wir uns", "kennenlernen", "vorbeikommen", "besuchen",
	}

	meetingPhrases = []string{
		"lass uns treffen", "konnen wir uns treffen", "wollen wir uns treffen",
		"willst du dich mit mir treffen", "wann sehen wir uns", "lass uns ein date",
	}

	// Hypothetical modals immediately before a meeting keyword turn a real
	// invitation into a fantasy statement.
	hypotheticalModals = []string{
		"wurde", "konnte", "hatte", "wenn", "falls", "ware",
	}

	moneyKeywords = []string{
		"coins", "credits", "geld", "kosten", "bezahlen", "teuer", "abzocke", "euro", "preis",
	}
)

// detectBotAccusation fires on bot vocabulary unless a negation term occurs
// close to the keyword ("ich glaube nicht dass du ein bot bist" is not an
// accusation worth a scripted deflection).
func (c *Classifier) detectBotAccusation(message string) bool {
	for _, keyword := range botKeywords {
		idx := strings.Index(message, keyword)
		if idx < 0 {
			continue
		}

		if !c.negationNearby(message, idx) {
			return true
		}
	}

	return false
}

// negationNearby reports whether any negation term occurs within
// negationWindow bytes of position idx.
func (c *Classifier) negationNearby(message string, idx int) bool {
	for _, negation := range negationTerms {
		searchFrom := 0

		for {
			pos := strings.Index(message[searchFrom:], negation)
			if pos < 0 {
				break
			}

			pos += searchFrom

			distance := pos - idx
			if distance < 0 {
				distance = -distance
			}

			if distance <= negationWindow {
				return true
			}

			searchFrom = pos + 1
		}
	}

	return false
}

func (c *Classifier) detectModeratorIdentity(message string) bool {
	return containsAny(message, moderatorKeywords)
}

func (c *Classifier) detectSexualTopic(message string) bool {
	return containsAny(message, sexualKeywords)
}

func (c *Classifier) detectJobQuestion(message string) bool {
	return containsAny(message, jobKeywords)
}

// detectMeetingRequest distinguishes a real invitation from a hypothetical or
// fantasy statement. An explicit invitation phrase always fires; a bare
// meeting keyword fires only when not immediately preceded by a hypothetical
// modal such as "wurde"/"konnte"/"wenn".
func (c *Classifier) detectMeetingRequest(message string) bool {
	for _, phrase := range meetingPhrases {
		if strings.Contains(message, phrase) {
			return true
		}
	}

	for _, keyword := range meetingKeywords {
		idx := strings.Index(message, keyword)
		if idx < 0 {
			continue
		}

		if !hypotheticalBefore(message, idx) {
			return true
		}
	}

	return false
}

// modalWindow is how far back (in bytes) a hypothetical modal may stand
// before a meeting keyword and still turn it into a fantasy statement.
const modalWindow = 30

// hypotheticalBefore reports whether a hypothetical modal occurs shortly
// before position idx.
func hypotheticalBefore(message string, idx int) bool {
	start := idx - modalWindow
	if start < 0 {
		start = 0
	}

	for _, word := range strings.Fields(message[start:idx]) {
		for _, modal := range hypotheticalModals {
			// Prefix match covers inflections like "wurdest" and "konntest"
			// as well as trailing punctuation on "wenn" or "falls".
			if strings.HasPrefix(word, modal) {
				return true
			}
		}
	}

	return false
}

func (c *Classifier) detectMoneyTopic(message string) bool {
	return containsAny(message, moneyKeywords)
}

func containsAny(message string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}

	return false
}

package corpus_test

import (
	"testing"

	"github.com/chatmod/chatmod/internal/corpus"
	"github.com/stretchr/testify/assert"
)

func testExamples() []corpus.Example {
	return []corpus.Example{
		{CustomerMessage: "Willst du dich treffen?", ModeratorResponse: "a", Situations: []string{"treffen"}},
		{CustomerMessage: "Warum kosten Coins so viel?", ModeratorResponse: "b", Situations: []string{"geld"}},
		{CustomerMessage: "Wie war dein Tag heute?", ModeratorResponse: "c", Situations: []string{"allgemein"}},
	}
}

func TestSelectRelevantSituationMatch(t *testing.T) {
	t.Parallel()

	selected := corpus.SelectRelevant(testExamples(), "Lass uns treffen, die Coins sind teuer", "treffen", 0)
	assert.Len(t, selected, 2) // tag match first, then keyword overlap
	assert.Equal(t, "a", selected[0].ModeratorResponse)
	assert.Equal(t, "b", selected[1].ModeratorResponse)
}

func TestSelectRelevantKeywordFallback(t *testing.T) {
	t.Parallel()

	selected := corpus.SelectRelevant(testExamples(), "Was kosten die Coins?", "unbekannt", 0)
	assert.Len(t, selected, 1)
	assert.Equal(t, "b", selected[0].ModeratorResponse)
}

func TestSelectRelevantTakesAllWhenNothingMatches(t *testing.T) {
	t.Parallel()

	selected := corpus.SelectRelevant(testExamples(), "xyz", "unbekannt", 0)
	assert.Len(t, selected, 3)
}

func TestSelectRelevantHonorsCap(t *testing.T) {
	t.Parallel()

	selected := corpus.SelectRelevant(testExamples(), "xyz", "unbekannt", 2)
	assert.Len(t, selected, 2)
}

func TestSelectRelevantEmptyCorpus(t *testing.T) {
	t.Parallel()

	assert.Nil(t, corpus.SelectRelevant(nil, "hallo", "treffen", 0))
}

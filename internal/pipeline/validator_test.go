package pipeline_test

import (
	"testing"

	"github.com/chatmod/chatmod/internal/pipeline"
	"github.com/chatmod/chatmod/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(forbidden ...string) *policy.Config {
	cfg := &policy.Config{ForbiddenWords: forbidden}
	cfg.MergeDefaults()

	return cfg
}

func findingTypes(findings []pipeline.Finding) []pipeline.FindingType {
	types := make([]pipeline.FindingType, 0, len(findings))
	for _, f := range findings {
		types = append(types, f.Type)
	}

	return types
}

func TestCheckForbiddenWord(t *testing.T) {
	t.Parallel()

	v := pipeline.NewValidator()

	_, findings := v.Check("Lass uns doch im Park spazieren gehen.", nil, testPolicy("park"))
	assert.Contains(t, findingTypes(findings), pipeline.FindingForbiddenWord)
}

func TestCheckForbiddenWordInflected(t *testing.T) {
	t.Parallel()

	v := pipeline.NewValidator()

	// "treffens" is an inflected form of the forbidden "treffen".
	_, findings := v.Check("Wegen unseres Treffens morgen bin ich schon aufgeregt.", nil, testPolicy("treffen"))
	assert.Contains(t, findingTypes(findings), pipeline.FindingForbiddenWord)

	_, findings = v.Check("Ich bin heute gut drauf.", nil, testPolicy("treffen"))
	assert.Empty(t, findings)
}

func TestCheckMetaCommentary(t *testing.T) {
	t.Parallel()

	v := pipeline.NewValidator()

	_, findings := v.Check("Das ist eine direkte Frage, die ich spannend finde.", nil, testPolicy())
	assert.Contains(t, findingTypes(findings), pipeline.FindingMetaCommentary)
}

func TestCheckFormalPhrasing(t *testing.T) {
	t.Parallel()

	v := pipeline.NewValidator()

	_, findings := v.Check("Sehr geehrte Dame, wie verbringen Sie den Abend?", nil, testPolicy())
	assert.Contains(t, findingTypes(findings), pipeline.FindingFormalPhrasing)
}

func TestCheckEchoLoop(t *testing.T) {
	t.Parallel()

	v := pipeline.NewValidator()
	history := []pipeline.Turn{
		{Role: pipeline.RoleAssistant, Content: "Was machst du am Wochenende?"},
		{Role: pipeline.RoleUser, Content: "Ich gehe wandern mit Freunden in den Bergen."},
	}

	_, findings := v.Check("Klingt gut. Was machst du am Wochenende?", history, testPolicy())
	require.Contains(t, findingTypes(findings), pipeline.FindingEchoLoop)

	// The correction prompt must be able to quote the ignored answer.
	for _, f := range findings {
		if f.Type == pipeline.FindingEchoLoop {
			assert.Contains(t, f.Detail, "wandern")
		}
	}
}

func TestCheckEchoLoopNeedsConcreteAnswer(t *testing.T) {
	t.Parallel()

	v := pipeline.NewValidator()
	history := []pipeline.Turn{
		{Role: pipeline.RoleAssistant, Content: "Was machst du am Wochenende?"},
		{Role: pipeline.RoleUser, Content: "Und du so?"},
	}

	_, findings := v.Check("Was machst du am Wochenende?", history, testPolicy())
	assert.NotContains(t, findingTypes(findings), pipeline.FindingEchoLoop)
}

func TestCheckImproperRefusal(t *testing.T) {
	t.Parallel()

	v := pipeline.NewValidator()
	history := []pipeline.Turn{
		{Role: pipeline.RoleAssistant, Content: "Was arbeitest du eigentlich?"},
		{Role: pipeline.RoleUser, Content: "Ich bin Elektriker bei einer kleinen Firma."},
	}

	_, findings := v.Check("Darauf kann ich nicht eingehen.", history, testPolicy())
	assert.Contains(t, findingTypes(findings), pipeline.FindingImproperRefusal)
}

func TestCheckSelfRepetition(t *testing.T) {
	t.Parallel()

	v := pipeline.NewValidator()
	prior := "Ich war gestern mit meiner Schwester im Kino und wir haben danach noch lange geredet."
	history := []pipeline.Turn{
		{Role: pipeline.RoleAssistant, Content: prior},
		{Role: pipeline.RoleUser, Content: "Das klingt nach einem schönen Abend bei euch."},
	}

	_, findings := v.Check(prior, history, testPolicy())
	assert.Contains(t, findingTypes(findings), pipeline.FindingSelfRepetition)
}

func TestRewriteEmphasis(t *testing.T) {
	t.Parallel()

	rewritten, changed := pipeline.RewriteEmphasis("Super! Das freut mich! Bis bald!")
	assert.True(t, changed)
	assert.Equal(t, "Super! Das freut mich. Bis bald.", rewritten)

	unchanged, changed := pipeline.RewriteEmphasis("Super! Das freut mich.")
	assert.False(t, changed)
	assert.Equal(t, "Super! Das freut mich.", unchanged)
}

func TestCheckRewritesEmphasisAndFlags(t *testing.T) {
	t.Parallel()

	v := pipeline.NewValidator()

	cleaned, findings := v.Check("Toll! Wirklich! Mega!", nil, testPolicy())
	assert.Equal(t, "Toll! Wirklich. Mega.", cleaned)
	assert.Contains(t, findingTypes(findings), pipeline.FindingExcessiveEmphasis)
}

func TestCheckRetryRunsReducedBattery(t *testing.T) {
	t.Parallel()

	v := pipeline.NewValidator()
	history := []pipeline.Turn{
		{Role: pipeline.RoleAssistant, Content: "Was machst du am Wochenende?"},
		{Role: pipeline.RoleUser, Content: "Ich gehe wandern mit Freunden in den Bergen."},
	}

	// The echo loop fires on the full battery but not on the retry check.
	reply := "Was machst du am Wochenende?"

	_, findings := v.Check(reply, history, testPolicy())
	assert.NotEmpty(t, findings)

	_, findings = v.CheckRetry(reply, testPolicy())
	assert.Empty(t, findings)

	_, findings = v.CheckRetry("Gehen wir in den Park?", testPolicy("park"))
	assert.NotEmpty(t, findings)
}

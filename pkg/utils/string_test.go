package utils_test

import (
	"testing"

	"github.com/chatmod/chatmod/pkg/utils"
	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		minLen   int
		expected []string
	}{
		{
			name:     "splits on mixed separators",
			input:    "Bot-Vorwurf/Treffen_Anfrage",
			minLen:   2,
			expected: []string{"bot", "vorwurf", "treffen", "anfrage"},
		},
		{
			name:     "drops short tokens",
			input:    "Willst du dich mit mir treffen",
			minLen:   2,
			expected: []string{"willst", "dich", "mit", "mir", "treffen"},
		},
		{
			name:     "empty input",
			input:    "",
			minLen:   2,
			expected: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, utils.Tokenize(tt.input, tt.minLen))
		})
	}
}

func TestTokenOverlap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{
			name:     "identical messages",
			a:        "willst du dich mit mir treffen",
			b:        "willst du dich mit mir treffen",
			expected: 1,
		},
		{
			name:     "no shared words",
			a:        "hallo schatz",
			b:        "wie geht es dir heute",
			expected: 0,
		},
		{
			name:     "empty sides",
			a:        "",
			b:        "hallo",
			expected: 0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.InDelta(t, tt.expected, utils.TokenOverlap(tt.a, tt.b), 0.001)
		})
	}
}

func TestSharesToken(t *testing.T) {
	t.Parallel()

	assert.True(t, utils.SharesToken("bist du ein bot", "ich bin kein bot oder so"))
	assert.False(t, utils.SharesToken("hallo", "tschüss"))
	assert.False(t, utils.SharesToken("", "hallo welt"))
}

func TestWindowCoverage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{
			name: "identical texts fully covered",
			a:    "was machst du heute abend so schönes",
			b:    "was machst du heute abend so schönes",
			min:  0.99,
			max:  1.0,
		},
		{
			name: "unrelated texts barely covered",
			a:    "erzähl mir von deinem hund bitte",
			b:    "xyz qrs completely different content here",
			min:  0,
			max:  0.05,
		},
		{
			name: "short texts not equal",
			a:    "hi",
			b:    "du",
			min:  0,
			max:  0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			coverage := utils.WindowCoverage(tt.a, tt.b, 15)
			assert.GreaterOrEqual(t, coverage, tt.min)
			assert.LessOrEqual(t, coverage, tt.max)
		})
	}
}

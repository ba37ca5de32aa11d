package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrimLower(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "lowercases and trims",
			input:    []string{"  .TEST ", ".Example"},
			expected: []string{".test", ".example"},
		},
		{
			name:     "case-insensitive duplicates collapse to first",
			input:    []string{".test", ".TEST", ".Test"},
			expected: []string{".test"},
		},
		{
			name:     "drops blank entries",
			input:    []string{".test", "", "   ", ".dev"},
			expected: []string{".test", ".dev"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrimLower(tt.input))
		})
	}
}

func TestLongestFirst(t *testing.T) {
	input := []string{".test", ".co.test", ".b", ".a"}
	got := LongestFirst(input)

	assert.Equal(t, []string{".co.test", ".test", ".a", ".b"}, got)
	assert.Equal(t, []string{".test", ".co.test", ".b", ".a"}, input, "input must not be reordered")
}

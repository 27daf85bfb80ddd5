package xref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracegraph/tracegraph/internal/config"
)

func defaultExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(config.Default().Processing.JiraReferencePatterns)
	require.NoError(t, err)
	return e
}

func TestExtract(t *testing.T) {
	e := defaultExtractor(t)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "bare key",
			text: "fixes AAPRFE-2174",
			want: []string{"AAPRFE-2174"},
		},
		{
			name: "prefixed mention",
			text: "See JIRA: AAPRFE-100 for details",
			want: []string{"AAPRFE-100"},
		},
		{
			name: "tracker url",
			text: "tracked at https://issues.example.com/jira.browse/AAPRFE-7",
			want: []string{"AAPRFE-7"},
		},
		{
			name: "multiple distinct keys",
			text: "Relates to AAPRFE-1 and AAP-2, supersedes AAPRFE-1",
			want: []string{"AAPRFE-1", "AAP-2"},
		},
		{
			name: "duplicates across patterns collapse",
			text: "JIRA: AAPRFE-55 (also mentioned as AAPRFE-55)",
			want: []string{"AAPRFE-55"},
		},
		{
			name: "case preserved, lowercase ignored",
			text: "aaprfe-12 is not a key but AAPRFE-12 is",
			want: []string{"AAPRFE-12"},
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
		{
			name: "no references",
			text: "plain refactoring, nothing linked",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Extract(tt.text))
		})
	}
}

func TestNewExtractorRejectsBadConfig(t *testing.T) {
	_, err := NewExtractor(nil)
	assert.Error(t, err, "empty pattern set is a config error")

	_, err = NewExtractor([]config.Pattern{{Regex: "([A-Z"}})
	assert.Error(t, err, "uncompilable regex is a config error")

	_, err = NewExtractor([]config.Pattern{{Regex: `[A-Z]+-\d+`, Group: 2}})
	assert.Error(t, err, "capture group beyond the expression is a config error")
}

func TestExtractWholeMatchGroup(t *testing.T) {
	e, err := NewExtractor([]config.Pattern{{Regex: `[A-Z]+-\d+`, Group: 0}})
	require.NoError(t, err)
	assert.Equal(t, []string{"PROJ-9"}, e.Extract("closes PROJ-9"))
}

package xref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracegraph/tracegraph/internal/config"
)

func defaultClassifier(t *testing.T) *Classifier {
	t.Helper()
	def := config.Default().Processing
	c, err := NewClassifier(def.TechnologyPatterns, def.ComponentMapping)
	require.NoError(t, err)
	return c
}

func TestTechnologiesAllPatternsFire(t *testing.T) {
	c := defaultClassifier(t)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single tag",
			text: "Add Ansible module for X",
			want: []string{"ansible"},
		},
		{
			name: "tags from multiple patterns",
			text: "Terraform pipeline deploying to Kubernetes",
			want: []string{"kubernetes", "terraform", "pipeline"},
		},
		{
			name: "case insensitive, lowercased output",
			text: "DOCKER and Podman support",
			want: []string{"docker", "podman"},
		},
		{
			name: "duplicates collapse",
			text: "python python python",
			want: []string{"python"},
		},
		{
			name: "no matches",
			text: "documentation typo fix",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Technologies(tt.text))
		})
	}
}

func TestTechnologiesExplicitTag(t *testing.T) {
	c, err := NewClassifier([]config.TechPattern{
		{Regex: `(?i)\bk8s\b`, Tag: "Kubernetes"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"kubernetes"}, c.Technologies("migrate to k8s"))
	assert.Nil(t, c.Technologies("nothing here"))
}

func TestComponentCategoryFirstRuleWins(t *testing.T) {
	c := defaultClassifier(t)

	tests := []struct {
		repo string
		want string
	}{
		{repo: "ansible/ansible", want: "automation-platform"},
		{repo: "org/openshift-installer", want: "container-platform"},
		{repo: "org/tekton-tasks", want: "ci-cd"},
		{repo: "hashicorp/terraform-provider-aws", want: "infrastructure"},
		// "ansible" appears before "kubernetes" in the rule table, so the
		// earlier rule decides even when both substrings match.
		{repo: "org/ansible-kubernetes-modules", want: "automation-platform"},
		{repo: "org/unrelated-repo", want: CategoryOther},
		{repo: "", want: CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.repo, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ComponentCategory(tt.repo))
		})
	}
}

func TestNewClassifierRejectsBadPatterns(t *testing.T) {
	_, err := NewClassifier([]config.TechPattern{{Regex: "(unclosed"}}, nil)
	assert.Error(t, err)

	_, err = NewClassifier([]config.TechPattern{{Regex: `\bansible\b`}}, nil)
	assert.Error(t, err, "tagless pattern needs a capture group")
}

func TestNormalizeComponents(t *testing.T) {
	got := NormalizeComponents([]string{" Networking ", "networking", "AUTH", ""})
	assert.Equal(t, []string{"networking", "auth"}, got)
	assert.Nil(t, NormalizeComponents(nil))
}

package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefFilter_IncludeExclude(t *testing.T) {
	f, err := NewRefFilter([]string{"refs/heads/*", "HEAD"}, []string{"*/wip-*"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		expect bool
	}{
		{"refs/heads/main", true},
		{"refs/heads/feature/login", true},
		{"refs/heads/wip-thing", false},
		{"HEAD", true},
		{"refs/tags/v1.0.0", false},
	}
	for _, c := range cases {
		ok, _ := f.Match(c.name)
		assert.Equal(t, c.expect, ok, c.name)
	}
}

func TestRefFilter_ExcludePrecedence(t *testing.T) {
	f, err := NewRefFilter([]string{"*"}, []string{"refs/tags/*"})
	require.NoError(t, err)
	ok, reason := f.Match("refs/tags/v1")
	assert.False(t, ok)
	assert.Equal(t, "excluded_by_pattern", reason)
}

func TestRefFilter_EmptyIncludes(t *testing.T) {
	f, err := NewRefFilter(nil, []string{"refs/remotes/*"})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"HEAD", "refs/heads/main"},
		f.Apply([]string{"HEAD", "refs/heads/main", "refs/remotes/origin/main"}))

	ok, reason := f.Match("refs/remotes/origin/main")
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}

func TestRefFilter_Nil(t *testing.T) {
	var f *RefFilter
	ok, _ := f.Match("anything")
	assert.True(t, ok)
}

func TestRefFilter_QuestionMarkStaysInSegment(t *testing.T) {
	f, err := NewRefFilter([]string{"refs/tags/v?"}, nil)
	require.NoError(t, err)
	ok, _ := f.Match("refs/tags/v1")
	assert.True(t, ok)
	ok, _ = f.Match("refs/tags/v/")
	assert.False(t, ok)
}

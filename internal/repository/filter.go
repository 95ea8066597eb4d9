package repository

import (
	"regexp"
	"strings"

	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
)

// RefFilter selects reference names by shell-style globs. '*' also crosses
// '/' so "refs/heads/*" matches nested branch names.
type RefFilter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewRefFilter compiles include and exclude globs. No include globs means
// every name is included unless excluded.
func NewRefFilter(includeGlobs, excludeGlobs []string) (*RefFilter, error) {
	compile := func(globs []string) ([]*regexp.Regexp, error) {
		out := make([]*regexp.Regexp, 0, len(globs))
		for _, g := range globs {
			if strings.TrimSpace(g) == "" {
				continue
			}
			rx, err := regexp.Compile(globToRegex(g))
			if err != nil {
				return nil, gerrors.InvalidArgument("pattern", "cannot compile glob "+g)
			}
			out = append(out, rx)
		}
		return out, nil
	}
	incs, err := compile(includeGlobs)
	if err != nil {
		return nil, err
	}
	excs, err := compile(excludeGlobs)
	if err != nil {
		return nil, err
	}
	return &RefFilter{include: incs, exclude: excs}, nil
}

// Match reports whether name passes, with a reason when it does not.
// Exclusion wins over inclusion.
func (f *RefFilter) Match(name string) (bool, string) {
	if f == nil {
		return true, ""
	}
	for _, rx := range f.exclude {
		if rx.MatchString(name) {
			return false, "excluded_by_pattern"
		}
	}
	if len(f.include) == 0 {
		return true, ""
	}
	for _, rx := range f.include {
		if rx.MatchString(name) {
			return true, ""
		}
	}
	return false, "not_in_includes"
}

// Apply returns the names that pass, keeping their order.
func (f *RefFilter) Apply(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if ok, _ := f.Match(n); ok {
			out = append(out, n)
		}
	}
	return out
}

// globToRegex converts a shell-style glob to an anchored regex.
func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString("[^/]")
		case '.', '+', '(', ')', '|', '^', '$', '{', '}', '[', ']', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteString("$")
	return b.String()
}
